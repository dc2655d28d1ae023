package retrieval

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	apperrors "github.com/studymate/backend-go/internal/errors"
	"github.com/studymate/backend-go/internal/logger"
	"github.com/studymate/backend-go/internal/vector"
)

const defaultMaxChunks = 5

// ContextChunk 组装进AI上下文的一个文本块
type ContextChunk struct {
	DocumentID      uint                   `json:"document_id"`
	ChunkText       string                 `json:"chunk_text"`
	SimilarityScore float64                `json:"similarity_score"`
	Metadata        map[string]interface{} `json:"metadata"`
}

// Result 一次检索的组装结果
type Result struct {
	Query      string         `json:"query"`
	Chunks     []ContextChunk `json:"chunks"`
	Confidence float64        `json:"confidence"`
}

// Querier 向量检索接口，由vector.Index实现
type Querier interface {
	EmbedQuery(ctx context.Context, query string) ([]float32, error)
	Query(ctx context.Context, projectID uint, vector []float32, topK int) ([]vector.Match, error)
}

// Assembler 检索组装器：向量化查询、检索相关块、计算置信度
type Assembler struct {
	index     Querier
	cache     *redis.Client
	cacheTTL  time.Duration
	maxChunks int
}

// NewAssembler 创建检索组装器。cache可以为nil，此时不缓存查询向量
func NewAssembler(index Querier, cache *redis.Client, cacheTTL time.Duration, maxChunks int) *Assembler {
	if maxChunks <= 0 {
		maxChunks = defaultMaxChunks
	}
	if cacheTTL <= 0 {
		cacheTTL = 5 * time.Minute
	}
	return &Assembler{
		index:     index,
		cache:     cache,
		cacheTTL:  cacheTTL,
		maxChunks: maxChunks,
	}
}

// Retrieve 针对项目执行语义检索
// 索引查询失败降级为空结果而不是报错，让上层拿到"没有相关上下文"继续工作
func (a *Assembler) Retrieve(ctx context.Context, projectID uint, query string, maxChunks int) (*Result, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, apperrors.NewBadRequestError("query must not be empty")
	}
	if maxChunks <= 0 {
		maxChunks = a.maxChunks
	}

	embedding, err := a.embedQuery(ctx, query)
	if err != nil {
		return nil, err
	}

	matches, err := a.index.Query(ctx, projectID, embedding, maxChunks)
	if err != nil {
		if apperrors.IsIndexQueryError(err) {
			logger.Warn("vector search failed, returning empty context",
				zap.Uint("project_id", projectID),
				zap.Error(err))
			return &Result{Query: query, Chunks: []ContextChunk{}}, nil
		}
		return nil, err
	}

	chunks := make([]ContextChunk, 0, len(matches))
	for _, match := range matches {
		// 没有文本或元数据的命中无法组装进上下文，直接丢弃
		if match.Text == "" || len(match.Metadata) == 0 {
			continue
		}
		chunks = append(chunks, ContextChunk{
			DocumentID:      metadataUint(match.Metadata, "document_id"),
			ChunkText:       match.Text,
			SimilarityScore: similarity(match.Distance),
			Metadata:        match.Metadata,
		})
	}

	result := &Result{
		Query:      query,
		Chunks:     chunks,
		Confidence: Confidence(chunks),
	}
	logger.Debug("context assembled",
		zap.Uint("project_id", projectID),
		zap.Int("chunks", len(chunks)),
		zap.Float64("confidence", result.Confidence))
	return result, nil
}

// embedQuery 向量化查询，命中缓存时跳过嵌入调用
func (a *Assembler) embedQuery(ctx context.Context, query string) ([]float32, error) {
	key := queryCacheKey(query)
	if a.cache != nil {
		if cached, err := a.cache.Get(ctx, key).Bytes(); err == nil {
			var embedding []float32
			if err := json.Unmarshal(cached, &embedding); err == nil && len(embedding) > 0 {
				return embedding, nil
			}
		} else if err != redis.Nil {
			logger.Warn("query embedding cache read failed", zap.Error(err))
		}
	}

	embedding, err := a.index.EmbedQuery(ctx, query)
	if err != nil {
		return nil, err
	}

	if a.cache != nil {
		if data, err := json.Marshal(embedding); err == nil {
			if err := a.cache.Set(ctx, key, data, a.cacheTTL).Err(); err != nil {
				logger.Warn("query embedding cache write failed", zap.Error(err))
			}
		}
	}
	return embedding, nil
}

func queryCacheKey(query string) string {
	sum := sha256.Sum256([]byte(query))
	return fmt.Sprintf("retrieval:query_embedding:%x", sum[:16])
}

// similarity 余弦距离换算为相似度分数，下限0
func similarity(distance float64) float64 {
	score := 1 - distance
	if score < 0 {
		return 0
	}
	return score
}

// Confidence 检索置信度：相似度均值与覆盖度的加权和，覆盖度在5个块时饱和
func Confidence(chunks []ContextChunk) float64 {
	if len(chunks) == 0 {
		return 0
	}

	var sum float64
	for _, chunk := range chunks {
		sum += chunk.SimilarityScore
	}
	avg := sum / float64(len(chunks))

	coverage := float64(len(chunks)) / 5
	if coverage > 1 {
		coverage = 1
	}

	confidence := 0.7*avg + 0.3*coverage
	if confidence < 0 {
		return 0
	}
	if confidence > 1 {
		return 1
	}
	return confidence
}

func metadataUint(metadata map[string]interface{}, key string) uint {
	switch v := metadata[key].(type) {
	case uint:
		return v
	case int:
		return uint(v)
	case int64:
		return uint(v)
	case uint64:
		return uint(v)
	case float64:
		return uint(v)
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return uint(n)
		}
	}
	return 0
}
