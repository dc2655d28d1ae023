package vector

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/studymate/backend-go/internal/errors"
	"github.com/studymate/backend-go/internal/segmenter"
)

// stubEmbedder 给每段文本一个确定性向量
type stubEmbedder struct {
	vectors map[string][]float32
}

func (s *stubEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	result := make([][]float32, len(texts))
	for i, text := range texts {
		vec, ok := s.vectors[text]
		if !ok {
			vec = []float32{1, 0, 0}
		}
		result[i] = vec
	}
	return result, nil
}

func (s *stubEmbedder) Ready() bool {
	return true
}

type failingEmbedder struct{}

func (f *failingEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return nil, apperrors.NewEmbeddingError("embedding request failed", nil)
}

func (f *failingEmbedder) Ready() bool {
	return false
}

func chunksOf(texts ...string) []segmenter.Chunk {
	chunks := make([]segmenter.Chunk, len(texts))
	pos := 0
	for i, text := range texts {
		chunks[i] = segmenter.Chunk{
			Text:     text,
			Type:     segmenter.ChunkTypeParagraph,
			StartPos: pos,
			EndPos:   pos + len(text),
			Metadata: map[string]interface{}{"chunk_type": "paragraph"},
		}
		pos += len(text) + 1
	}
	return chunks
}

func TestChunkKey_Deterministic(t *testing.T) {
	assert.Equal(t, ChunkKey(1, 0), ChunkKey(1, 0))
	assert.NotEqual(t, ChunkKey(1, 0), ChunkKey(1, 1))
	assert.NotEqual(t, ChunkKey(1, 0), ChunkKey(2, 0))
	assert.Equal(t, "doc_7_chunk_3", ChunkStringID(7, 3))
}

func TestIndexChunks_ReindexDoesNotDuplicate(t *testing.T) {
	store := NewMemoryStore()
	ix := NewIndex(store, &stubEmbedder{vectors: map[string][]float32{}})
	ctx := context.Background()

	chunks := chunksOf("primo blocco", "secondo blocco", "terzo blocco")

	count, err := ix.IndexChunks(ctx, 1, 10, chunks)
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	// 重复索引同一文档，点ID相同，覆盖而非追加
	_, err = ix.IndexChunks(ctx, 1, 10, chunks)
	require.NoError(t, err)

	stats, err := ix.Stats(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(3), stats.EntryCount)
}

func TestIndexQuery_AscendingDistance(t *testing.T) {
	store := NewMemoryStore()
	ix := NewIndex(store, &stubEmbedder{vectors: map[string][]float32{
		"vicino":   {1, 0, 0},
		"medio":    {1, 1, 0},
		"lontano":  {0, 0, 1},
		"la query": {1, 0, 0},
	}})
	ctx := context.Background()

	_, err := ix.IndexChunks(ctx, 1, 10, chunksOf("vicino", "medio", "lontano"))
	require.NoError(t, err)

	queryVec, err := ix.EmbedQuery(ctx, "la query")
	require.NoError(t, err)

	matches, err := ix.Query(ctx, 1, queryVec, 10)
	require.NoError(t, err)
	require.Len(t, matches, 3)

	assert.Equal(t, "vicino", matches[0].Text)
	assert.Equal(t, "medio", matches[1].Text)
	assert.Equal(t, "lontano", matches[2].Text)
	assert.True(t, matches[0].Distance <= matches[1].Distance)
	assert.True(t, matches[1].Distance <= matches[2].Distance)
	assert.InDelta(t, 0, matches[0].Distance, 1e-6)
}

func TestIndexQuery_TopKLimit(t *testing.T) {
	store := NewMemoryStore()
	ix := NewIndex(store, &stubEmbedder{vectors: map[string][]float32{}})
	ctx := context.Background()

	_, err := ix.IndexChunks(ctx, 1, 10, chunksOf("a", "b", "c", "d", "e"))
	require.NoError(t, err)

	matches, err := ix.Query(ctx, 1, []float32{1, 0, 0}, 2)
	require.NoError(t, err)
	assert.Len(t, matches, 2)
}

func TestIndex_ProjectIsolation(t *testing.T) {
	store := NewMemoryStore()
	ix := NewIndex(store, &stubEmbedder{vectors: map[string][]float32{}})
	ctx := context.Background()

	_, err := ix.IndexChunks(ctx, 1, 10, chunksOf("progetto uno"))
	require.NoError(t, err)
	_, err = ix.IndexChunks(ctx, 2, 20, chunksOf("progetto due"))
	require.NoError(t, err)

	matches, err := ix.Query(ctx, 1, []float32{1, 0, 0}, 10)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "progetto uno", matches[0].Text)
}

func TestIndex_DeleteDocument(t *testing.T) {
	store := NewMemoryStore()
	ix := NewIndex(store, &stubEmbedder{vectors: map[string][]float32{}})
	ctx := context.Background()

	_, err := ix.IndexChunks(ctx, 1, 10, chunksOf("doc dieci"))
	require.NoError(t, err)
	_, err = ix.IndexChunks(ctx, 1, 11, chunksOf("doc undici"))
	require.NoError(t, err)

	require.NoError(t, ix.DeleteDocument(ctx, 1, 10))

	matches, err := ix.Query(ctx, 1, []float32{1, 0, 0}, 10)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "doc undici", matches[0].Text)
}

func TestIndex_DeleteProject(t *testing.T) {
	store := NewMemoryStore()
	ix := NewIndex(store, &stubEmbedder{vectors: map[string][]float32{}})
	ctx := context.Background()

	_, err := ix.IndexChunks(ctx, 1, 10, chunksOf("a", "b"))
	require.NoError(t, err)

	require.NoError(t, ix.DeleteProject(ctx, 1))

	stats, err := ix.Stats(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(0), stats.EntryCount)
}

func TestIndexChunks_MetadataEnriched(t *testing.T) {
	store := NewMemoryStore()
	ix := NewIndex(store, &stubEmbedder{vectors: map[string][]float32{}})
	ctx := context.Background()

	_, err := ix.IndexChunks(ctx, 3, 42, chunksOf("testo del blocco"))
	require.NoError(t, err)

	matches, err := ix.Query(ctx, 3, []float32{1, 0, 0}, 1)
	require.NoError(t, err)
	require.Len(t, matches, 1)

	metadata := matches[0].Metadata
	assert.Equal(t, uint(3), toUint(metadata["project_id"]))
	assert.Equal(t, uint(42), toUint(metadata["document_id"]))
	assert.Equal(t, "paragraph", metadata["chunk_type"])
	assert.Equal(t, 0, metadata["start_pos"])
	assert.Equal(t, len("testo del blocco"), metadata["end_pos"])
	assert.NotEmpty(t, metadata["created_at"])
}

func TestIndexChunks_EmbeddingErrorPropagates(t *testing.T) {
	ix := NewIndex(NewMemoryStore(), &failingEmbedder{})

	count, err := ix.IndexChunks(context.Background(), 1, 10, chunksOf("testo"))
	assert.Zero(t, count)
	require.Error(t, err)
	assert.True(t, apperrors.IsEmbeddingError(err))
}

func TestCosineDistance(t *testing.T) {
	assert.InDelta(t, 0, cosineDistance([]float32{1, 0}, []float32{2, 0}), 1e-9)
	assert.InDelta(t, 1, cosineDistance([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.InDelta(t, 2, cosineDistance([]float32{1, 0}, []float32{-1, 0}), 1e-9)
	// 零向量与维度不匹配按最远处理
	assert.Equal(t, float64(1), cosineDistance([]float32{0, 0}, []float32{1, 0}))
	assert.Equal(t, float64(1), cosineDistance([]float32{1}, []float32{1, 0}))
}
