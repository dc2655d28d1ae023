package vector

import (
	"context"
	"time"

	"go.uber.org/zap"

	apperrors "github.com/studymate/backend-go/internal/errors"
	"github.com/studymate/backend-go/internal/logger"
	"github.com/studymate/backend-go/internal/segmenter"
)

// Index 组合嵌入生成与向量存储，是流水线和检索共用的索引门面
type Index struct {
	store    Store
	embedder Embedder
}

// Embedder 批量文本向量化，与internal/ai的实现解耦
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Ready() bool
}

// NewIndex 创建索引门面
func NewIndex(store Store, embedder Embedder) *Index {
	return &Index{store: store, embedder: embedder}
}

// IndexChunks 向量化并写入一批分块，返回写入条数
// 点ID由文档ID和分块序号确定，重复索引同一文档不会产生重复条目
func (ix *Index) IndexChunks(ctx context.Context, projectID, documentID uint, chunks []segmenter.Chunk) (int, error) {
	if len(chunks) == 0 {
		return 0, nil
	}

	texts := make([]string, len(chunks))
	for i, chunk := range chunks {
		texts[i] = chunk.Text
	}

	vectors, err := ix.embedder.Embed(ctx, texts)
	if err != nil {
		if apperrors.IsAppError(err) {
			return 0, err
		}
		return 0, apperrors.NewEmbeddingError("failed to embed document chunks", err)
	}
	if len(vectors) != len(chunks) {
		return 0, apperrors.NewEmbeddingError("embedding count does not match chunk count", nil)
	}

	now := time.Now().Format(time.RFC3339)
	entries := make([]Entry, len(chunks))
	for i, chunk := range chunks {
		metadata := make(map[string]interface{}, len(chunk.Metadata)+6)
		for k, v := range chunk.Metadata {
			metadata[k] = v
		}
		metadata["project_id"] = projectID
		metadata["document_id"] = documentID
		metadata["chunk_index"] = i
		metadata["start_pos"] = chunk.StartPos
		metadata["end_pos"] = chunk.EndPos
		metadata["created_at"] = now

		entries[i] = Entry{
			Key:      ChunkKey(documentID, i),
			StringID: ChunkStringID(documentID, i),
			Vector:   vectors[i],
			Text:     chunk.Text,
			Metadata: metadata,
		}
	}

	if err := ix.store.Upsert(ctx, projectID, entries); err != nil {
		return 0, apperrors.NewIndexWriteError("failed to upsert chunk vectors", err)
	}

	logger.Debug("indexed document chunks",
		zap.Uint("project_id", projectID),
		zap.Uint("document_id", documentID),
		zap.Int("chunks", len(entries)))
	return len(entries), nil
}

// EmbedQuery 向量化一条检索查询
func (ix *Index) EmbedQuery(ctx context.Context, query string) ([]float32, error) {
	vectors, err := ix.embedder.Embed(ctx, []string{query})
	if err != nil {
		if apperrors.IsAppError(err) {
			return nil, err
		}
		return nil, apperrors.NewEmbeddingError("failed to embed query", err)
	}
	if len(vectors) != 1 {
		return nil, apperrors.NewEmbeddingError("embedding response size mismatch", nil)
	}
	return vectors[0], nil
}

// Query 按距离升序返回项目内最相似的topK个分块
func (ix *Index) Query(ctx context.Context, projectID uint, vector []float32, topK int) ([]Match, error) {
	matches, err := ix.store.Query(ctx, projectID, vector, topK)
	if err != nil {
		return nil, apperrors.NewIndexQueryError("vector search failed", err)
	}
	return matches, nil
}

// DeleteDocument 删除一个文档的全部向量
func (ix *Index) DeleteDocument(ctx context.Context, projectID, documentID uint) error {
	if err := ix.store.DeleteDocument(ctx, projectID, documentID); err != nil {
		return apperrors.NewIndexWriteError("failed to delete document vectors", err)
	}
	return nil
}

// DeleteProject 删除整个项目命名空间
func (ix *Index) DeleteProject(ctx context.Context, projectID uint) error {
	if err := ix.store.DeleteProject(ctx, projectID); err != nil {
		return apperrors.NewIndexWriteError("failed to delete project vectors", err)
	}
	return nil
}

// Stats 项目命名空间统计
func (ix *Index) Stats(ctx context.Context, projectID uint) (Stats, error) {
	stats, err := ix.store.Stats(ctx, projectID)
	if err != nil {
		return Stats{}, apperrors.NewIndexQueryError("failed to read index stats", err)
	}
	return stats, nil
}

// Ready 后端与嵌入服务是否都可用
func (ix *Index) Ready() bool {
	return ix.store.Ready() && ix.embedder.Ready()
}
