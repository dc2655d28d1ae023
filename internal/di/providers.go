package di

import (
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/dig"
	"gorm.io/gorm"

	"github.com/studymate/backend-go/internal/ai"
	"github.com/studymate/backend-go/internal/config"
	"github.com/studymate/backend-go/internal/database"
	"github.com/studymate/backend-go/internal/events"
	"github.com/studymate/backend-go/internal/extract"
	"github.com/studymate/backend-go/internal/pipeline"
	"github.com/studymate/backend-go/internal/repository"
	"github.com/studymate/backend-go/internal/retrieval"
	"github.com/studymate/backend-go/internal/segmenter"
	"github.com/studymate/backend-go/internal/storage"
	"github.com/studymate/backend-go/internal/vector"
)

// RegisterProviders 注册全部依赖提供者
// 数据库和Redis连接由bootstrap先行建立，这里只做装配
func RegisterProviders(container *dig.Container) error {
	providers := []interface{}{
		func() (*config.Config, error) {
			if config.AppConfig == nil {
				return nil, fmt.Errorf("config not loaded")
			}
			return config.AppConfig, nil
		},
		func() *gorm.DB { return database.DB },
		func() *redis.Client { return database.RedisClient },

		func(db *gorm.DB) repository.DocumentRepository {
			return repository.NewDocumentRepository(db)
		},
		func(db *gorm.DB) repository.ProjectRepository {
			return repository.NewProjectRepository(db)
		},

		func(cfg *config.Config) (storage.FileStore, error) {
			return storage.NewFileStore(cfg.Storage)
		},
		func() *extract.Manager { return extract.NewManager() },
		func(cfg *config.Config) *segmenter.Segmenter {
			return segmenter.NewSegmenter(
				cfg.Ingest.ChunkSize,
				cfg.Ingest.OverlapSize,
				cfg.Ingest.MinChunkSize,
				cfg.Ingest.MaxChunkSize)
		},

		func(cfg *config.Config) *ai.Provider {
			return ai.ResolveProvider(cfg.AI)
		},
		func(cfg *config.Config, provider *ai.Provider) (vector.Store, error) {
			return vector.NewStore(cfg.Ingest.VectorStore, provider.Embedder.Dimensions())
		},
		func(store vector.Store, provider *ai.Provider) *vector.Index {
			return vector.NewIndex(store, provider.Embedder)
		},

		func(cfg *config.Config) (*events.Producer, error) {
			return events.NewProducer(cfg.Kafka)
		},
		func(cfg *config.Config) *pipeline.Metrics {
			return pipeline.NewMetrics(cfg.Metrics.Enabled)
		},
		func(
			cfg *config.Config,
			repo repository.DocumentRepository,
			files storage.FileStore,
			manager *extract.Manager,
			seg *segmenter.Segmenter,
			index *vector.Index,
			provider *ai.Provider,
			producer *events.Producer,
			metrics *pipeline.Metrics,
		) *pipeline.Processor {
			// 分析器未配置时跳过分析阶段，而不是每个文档都报一次失败
			analyzer := provider.Analyzer
			if analyzer != nil && !analyzer.Ready() {
				analyzer = nil
			}
			return pipeline.NewProcessor(pipeline.Options{
				Repo:        repo,
				Files:       files,
				Extractor:   manager,
				Segmenter:   seg,
				Index:       index,
				Analyzer:    analyzer,
				Events:      producer,
				Metrics:     metrics,
				QueueSize:   cfg.Ingest.QueueSize,
				MaxParallel: cfg.Ingest.MaxParallel,
				PollTimeout: time.Duration(cfg.Ingest.PollTimeout) * time.Second,
			})
		},

		func(cfg *config.Config, index *vector.Index, cache *redis.Client) *retrieval.Assembler {
			return retrieval.NewAssembler(
				index,
				cache,
				time.Duration(cfg.Redis.TTL)*time.Second,
				cfg.Retrieval.MaxChunks)
		},
	}

	for _, provider := range providers {
		if err := container.Provide(provider); err != nil {
			return err
		}
	}
	return nil
}
