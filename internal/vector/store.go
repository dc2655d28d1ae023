package vector

import (
	"context"
	"fmt"

	"github.com/studymate/backend-go/internal/config"
)

// Entry 待写入的向量条目，Key在项目命名空间内唯一
type Entry struct {
	Key      uint64
	StringID string
	Vector   []float32
	Text     string
	Metadata map[string]interface{}
}

// Match 相似度检索命中，Distance为余弦距离，越小越相似
type Match struct {
	Key      uint64
	Text     string
	Distance float64
	Metadata map[string]interface{}
}

// Stats 命名空间统计信息
type Stats struct {
	EntryCount int64 `json:"entry_count"`
}

// Store 按项目隔离命名空间的向量存储后端
// Upsert对同一Key重复写入是覆盖而非追加，Query按距离升序返回
type Store interface {
	Upsert(ctx context.Context, projectID uint, entries []Entry) error
	Query(ctx context.Context, projectID uint, vector []float32, topK int) ([]Match, error)
	DeleteDocument(ctx context.Context, projectID, documentID uint) error
	DeleteProject(ctx context.Context, projectID uint) error
	Stats(ctx context.Context, projectID uint) (Stats, error)
	Ready() bool
}

// 单文档最多容纳 2^20 个分块
const chunkKeyBits = 20

// ChunkKey 由文档ID和分块序号生成确定性点ID，同一分块重复索引得到同一Key
func ChunkKey(documentID uint, chunkIndex int) uint64 {
	return uint64(documentID)<<chunkKeyBits | uint64(chunkIndex)
}

// ChunkStringID 点ID的可读形式，用于日志和外部存储的payload
func ChunkStringID(documentID uint, chunkIndex int) string {
	return fmt.Sprintf("doc_%d_chunk_%d", documentID, chunkIndex)
}

// NewStore 按配置创建向量存储后端
func NewStore(cfg config.VectorStoreConfig, vectorSize int) (Store, error) {
	switch cfg.Provider {
	case "qdrant":
		return NewQdrantStore(QdrantOptions{
			BaseURL:    cfg.Qdrant.BaseURL,
			APIKey:     cfg.Qdrant.APIKey,
			VectorSize: vectorSize,
		})
	case "milvus":
		return NewMilvusStore(MilvusOptions{
			Address:    cfg.Milvus.Address,
			Username:   cfg.Milvus.Username,
			Password:   cfg.Milvus.Password,
			Database:   cfg.Milvus.Database,
			UseTLS:     cfg.Milvus.TLS,
			VectorSize: vectorSize,
		})
	case "memory", "":
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown vector store provider: %s", cfg.Provider)
	}
}
