package vector

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
	"go.uber.org/zap"

	"github.com/studymate/backend-go/internal/logger"
)

// MilvusOptions Milvus客户端配置
type MilvusOptions struct {
	Address          string
	Username         string
	Password         string
	Database         string
	CollectionPrefix string
	VectorSize       int
	UseTLS           bool
	Timeout          time.Duration
}

type milvusStore struct {
	milvusClient     client.Client
	collectionPrefix string
	vectorSize       int

	mu      sync.Mutex
	ensured map[uint]bool
}

// NewMilvusStore 创建Milvus向量存储，每个项目一个collection
func NewMilvusStore(opts MilvusOptions) (Store, error) {
	if opts.Address == "" {
		opts.Address = "localhost:19530"
	}
	if opts.CollectionPrefix == "" {
		opts.CollectionPrefix = "project_chunks"
	}
	if opts.VectorSize == 0 {
		opts.VectorSize = 1536
	}
	if opts.Database == "" {
		opts.Database = "default"
	}

	timeout := opts.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	milvusClient, err := client.NewClient(ctx, client.Config{
		Address:       opts.Address,
		DBName:        opts.Database,
		Username:      opts.Username,
		Password:      opts.Password,
		EnableTLSAuth: opts.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create milvus client: %w", err)
	}

	return &milvusStore{
		milvusClient:     milvusClient,
		collectionPrefix: opts.CollectionPrefix,
		vectorSize:       opts.VectorSize,
		ensured:          make(map[uint]bool),
	}, nil
}

func (s *milvusStore) collection(projectID uint) string {
	return fmt.Sprintf("%s_%d", s.collectionPrefix, projectID)
}

func (s *milvusStore) ensureCollection(ctx context.Context, projectID uint) error {
	s.mu.Lock()
	if s.ensured[projectID] {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	name := s.collection(projectID)
	hasCollection, err := s.milvusClient.HasCollection(ctx, name)
	if err != nil {
		return fmt.Errorf("failed to check collection: %w", err)
	}

	if !hasCollection {
		schema := &entity.Schema{
			CollectionName: name,
			Description:    fmt.Sprintf("Project %d document chunks", projectID),
			Fields: []*entity.Field{
				{
					Name:       "id",
					DataType:   entity.FieldTypeInt64,
					PrimaryKey: true,
					AutoID:     false,
				},
				{
					Name:     "document_id",
					DataType: entity.FieldTypeInt64,
				},
				{
					Name:     "content",
					DataType: entity.FieldTypeVarChar,
					TypeParams: map[string]string{
						"max_length": "65535",
					},
				},
				{
					Name:     "metadata",
					DataType: entity.FieldTypeVarChar,
					TypeParams: map[string]string{
						"max_length": "65535",
					},
				},
				{
					Name:     "vector",
					DataType: entity.FieldTypeFloatVector,
					TypeParams: map[string]string{
						"dim": fmt.Sprintf("%d", s.vectorSize),
					},
				},
			},
		}
		if err := s.milvusClient.CreateCollection(ctx, schema, entity.DefaultShardNumber); err != nil {
			return fmt.Errorf("failed to create collection: %w", err)
		}

		var index entity.Index
		var indexErr error
		index, indexErr = entity.NewIndexHNSW(entity.COSINE, 8, 64)
		if indexErr != nil {
			index, indexErr = entity.NewIndexIvfFlat(entity.COSINE, 128)
			if indexErr != nil {
				return fmt.Errorf("failed to create index: %w", indexErr)
			}
		}
		if err := s.milvusClient.CreateIndex(ctx, name, "vector", index, false); err != nil {
			// 索引创建失败仍可暴力检索，只记录警告
			logger.Warn("failed to create milvus index", zap.String("collection", name), zap.Error(err))
		}
	}

	if err := s.milvusClient.LoadCollection(ctx, name, false); err != nil {
		logger.Warn("failed to load milvus collection", zap.String("collection", name), zap.Error(err))
	}

	s.mu.Lock()
	s.ensured[projectID] = true
	s.mu.Unlock()
	return nil
}

func (s *milvusStore) Upsert(ctx context.Context, projectID uint, entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}
	if err := s.ensureCollection(ctx, projectID); err != nil {
		return err
	}

	name := s.collection(projectID)

	ids := make([]int64, 0, len(entries))
	documentIDs := make([]int64, 0, len(entries))
	contents := make([]string, 0, len(entries))
	metadatas := make([]string, 0, len(entries))
	vectors := make([][]float32, 0, len(entries))
	for _, entry := range entries {
		metadata, err := json.Marshal(entry.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal chunk metadata: %w", err)
		}
		ids = append(ids, int64(entry.Key))
		documentIDs = append(documentIDs, int64(toUint(entry.Metadata["document_id"])))
		contents = append(contents, entry.Text)
		metadatas = append(metadatas, string(metadata))
		vectors = append(vectors, entry.Vector)
	}

	// 先按主键删除旧点，保证重复索引是覆盖语义
	idLiterals := make([]string, len(ids))
	for i, id := range ids {
		idLiterals[i] = strconv.FormatInt(id, 10)
	}
	expr := fmt.Sprintf("id in [%s]", strings.Join(idLiterals, ", "))
	if err := s.milvusClient.Delete(ctx, name, "", expr); err != nil {
		return fmt.Errorf("milvus delete before upsert failed: %w", err)
	}

	idColumn := entity.NewColumnInt64("id", ids)
	documentIDColumn := entity.NewColumnInt64("document_id", documentIDs)
	contentColumn := entity.NewColumnVarChar("content", contents)
	metadataColumn := entity.NewColumnVarChar("metadata", metadatas)
	vectorColumn := entity.NewColumnFloatVector("vector", s.vectorSize, vectors)

	if _, err := s.milvusClient.Insert(ctx, name, "", idColumn, documentIDColumn, contentColumn, metadataColumn, vectorColumn); err != nil {
		return fmt.Errorf("milvus insert failed: %w", err)
	}

	if err := s.milvusClient.Flush(ctx, name, false); err != nil {
		logger.Warn("failed to flush milvus collection", zap.String("collection", name), zap.Error(err))
	}
	return nil
}

func (s *milvusStore) Query(ctx context.Context, projectID uint, vector []float32, topK int) ([]Match, error) {
	if len(vector) == 0 || topK <= 0 {
		return nil, nil
	}
	if err := s.ensureCollection(ctx, projectID); err != nil {
		return nil, err
	}

	name := s.collection(projectID)
	sp, _ := entity.NewIndexHNSWSearchParam(64)
	searchResults, err := s.milvusClient.Search(
		ctx,
		name,
		[]string{},
		"",
		[]string{"document_id", "content", "metadata"},
		[]entity.Vector{entity.FloatVector(vector)},
		"vector",
		entity.COSINE,
		topK,
		sp,
	)
	if err != nil {
		return nil, fmt.Errorf("milvus search failed: %w", err)
	}
	if len(searchResults) == 0 {
		return nil, nil
	}
	result := searchResults[0]
	if result.Err != nil {
		return nil, fmt.Errorf("milvus search error: %w", result.Err)
	}

	var ids []int64
	if idCol, ok := result.IDs.(*entity.ColumnInt64); ok {
		ids = idCol.Data()
	}

	var contents, metadatas []string
	for _, field := range result.Fields {
		switch field.Name() {
		case "content":
			if col, ok := field.(*entity.ColumnVarChar); ok {
				contents = col.Data()
			}
		case "metadata":
			if col, ok := field.(*entity.ColumnVarChar); ok {
				metadatas = col.Data()
			}
		}
	}

	matches := make([]Match, 0, result.ResultCount)
	for i := 0; i < result.ResultCount; i++ {
		match := Match{Metadata: make(map[string]interface{})}
		if i < len(ids) {
			match.Key = uint64(ids[i])
		}
		if i < len(contents) {
			match.Text = contents[i]
		}
		if i < len(metadatas) && metadatas[i] != "" {
			_ = json.Unmarshal([]byte(metadatas[i]), &match.Metadata)
		}
		if i < len(result.Scores) {
			// COSINE度量下score是相似度
			match.Distance = scoreToDistance(float64(result.Scores[i]))
		}
		matches = append(matches, match)
	}
	return matches, nil
}

func (s *milvusStore) DeleteDocument(ctx context.Context, projectID, documentID uint) error {
	if err := s.ensureCollection(ctx, projectID); err != nil {
		return err
	}

	name := s.collection(projectID)
	expr := fmt.Sprintf("document_id == %d", documentID)
	if err := s.milvusClient.Delete(ctx, name, "", expr); err != nil {
		return fmt.Errorf("milvus delete failed: %w", err)
	}

	if err := s.milvusClient.Flush(ctx, name, false); err != nil {
		logger.Warn("failed to flush milvus collection after delete", zap.String("collection", name), zap.Error(err))
	}
	return nil
}

func (s *milvusStore) DeleteProject(ctx context.Context, projectID uint) error {
	name := s.collection(projectID)
	hasCollection, err := s.milvusClient.HasCollection(ctx, name)
	if err != nil {
		return fmt.Errorf("failed to check collection: %w", err)
	}
	if hasCollection {
		if err := s.milvusClient.DropCollection(ctx, name); err != nil {
			return fmt.Errorf("milvus drop collection failed: %w", err)
		}
	}

	s.mu.Lock()
	delete(s.ensured, projectID)
	s.mu.Unlock()
	return nil
}

func (s *milvusStore) Stats(ctx context.Context, projectID uint) (Stats, error) {
	name := s.collection(projectID)
	hasCollection, err := s.milvusClient.HasCollection(ctx, name)
	if err != nil {
		return Stats{}, fmt.Errorf("failed to check collection: %w", err)
	}
	if !hasCollection {
		return Stats{}, nil
	}

	stats, err := s.milvusClient.GetCollectionStatistics(ctx, name)
	if err != nil {
		return Stats{}, fmt.Errorf("failed to get collection statistics: %w", err)
	}
	count, _ := strconv.ParseInt(stats["row_count"], 10, 64)
	return Stats{EntryCount: count}, nil
}

func (s *milvusStore) Ready() bool {
	if s.milvusClient == nil {
		return false
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := s.milvusClient.ListCollections(ctx)
	return err == nil
}
