package retrieval

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/studymate/backend-go/internal/errors"
	"github.com/studymate/backend-go/internal/vector"
)

// stubQuerier 返回预设命中列表
type stubQuerier struct {
	matches  []vector.Match
	queryErr error
	embedErr error
}

func (s *stubQuerier) EmbedQuery(ctx context.Context, query string) ([]float32, error) {
	if s.embedErr != nil {
		return nil, s.embedErr
	}
	return []float32{1, 0, 0}, nil
}

func (s *stubQuerier) Query(ctx context.Context, projectID uint, vec []float32, topK int) ([]vector.Match, error) {
	if s.queryErr != nil {
		return nil, s.queryErr
	}
	if topK < len(s.matches) {
		return s.matches[:topK], nil
	}
	return s.matches, nil
}

func match(docID uint, text string, distance float64) vector.Match {
	return vector.Match{
		Text:     text,
		Distance: distance,
		Metadata: map[string]interface{}{"document_id": float64(docID), "chunk_type": "paragraph"},
	}
}

func TestRetrieve_AssemblesChunks(t *testing.T) {
	querier := &stubQuerier{matches: []vector.Match{
		match(1, "il primo blocco", 0.1),
		match(2, "il secondo blocco", 0.4),
	}}
	a := NewAssembler(querier, nil, 0, 0)

	result, err := a.Retrieve(context.Background(), 1, "patrimonio culturale", 0)
	require.NoError(t, err)
	require.Len(t, result.Chunks, 2)

	assert.Equal(t, uint(1), result.Chunks[0].DocumentID)
	assert.Equal(t, "il primo blocco", result.Chunks[0].ChunkText)
	assert.InDelta(t, 0.9, result.Chunks[0].SimilarityScore, 1e-9)
	assert.InDelta(t, 0.6, result.Chunks[1].SimilarityScore, 1e-9)
	assert.Equal(t, "patrimonio culturale", result.Query)
	assert.Greater(t, result.Confidence, 0.0)
}

func TestRetrieve_DropsUnusableMatches(t *testing.T) {
	querier := &stubQuerier{matches: []vector.Match{
		match(1, "blocco valido", 0.2),
		{Text: "", Distance: 0.1, Metadata: map[string]interface{}{"document_id": 2}},
		{Text: "senza metadati", Distance: 0.1},
	}}
	a := NewAssembler(querier, nil, 0, 0)

	result, err := a.Retrieve(context.Background(), 1, "query", 0)
	require.NoError(t, err)
	require.Len(t, result.Chunks, 1)
	assert.Equal(t, "blocco valido", result.Chunks[0].ChunkText)
}

func TestRetrieve_EmptyQueryRejected(t *testing.T) {
	a := NewAssembler(&stubQuerier{}, nil, 0, 0)

	_, err := a.Retrieve(context.Background(), 1, "   ", 0)
	require.Error(t, err)
	appErr := apperrors.GetAppError(err)
	assert.Equal(t, apperrors.ErrCodeBadRequest, appErr.Code)
}

func TestRetrieve_IndexQueryErrorDegradesToEmpty(t *testing.T) {
	querier := &stubQuerier{queryErr: apperrors.NewIndexQueryError("vector search failed", nil)}
	a := NewAssembler(querier, nil, 0, 0)

	result, err := a.Retrieve(context.Background(), 1, "query", 0)
	require.NoError(t, err)
	assert.Empty(t, result.Chunks)
	assert.Zero(t, result.Confidence)
}

func TestRetrieve_EmbeddingErrorPropagates(t *testing.T) {
	querier := &stubQuerier{embedErr: apperrors.NewEmbeddingError("provider down", nil)}
	a := NewAssembler(querier, nil, 0, 0)

	_, err := a.Retrieve(context.Background(), 1, "query", 0)
	require.Error(t, err)
	assert.True(t, apperrors.IsEmbeddingError(err))
}

func TestRetrieve_MaxChunksDefault(t *testing.T) {
	matches := make([]vector.Match, 8)
	for i := range matches {
		matches[i] = match(uint(i+1), "blocco", 0.1)
	}
	a := NewAssembler(&stubQuerier{matches: matches}, nil, 0, 0)

	result, err := a.Retrieve(context.Background(), 1, "query", 0)
	require.NoError(t, err)
	assert.Len(t, result.Chunks, defaultMaxChunks)
}

func TestSimilarity_FloorsAtZero(t *testing.T) {
	assert.InDelta(t, 0.75, similarity(0.25), 1e-9)
	assert.Zero(t, similarity(1.5))
}

func TestConfidence(t *testing.T) {
	assert.Zero(t, Confidence(nil))

	// 一个块，相似度1：0.7*1 + 0.3*(1/5) = 0.76
	one := []ContextChunk{{SimilarityScore: 1}}
	assert.InDelta(t, 0.76, Confidence(one), 1e-9)

	// 五个块把覆盖度推到饱和
	five := make([]ContextChunk, 5)
	for i := range five {
		five[i] = ContextChunk{SimilarityScore: 0.5}
	}
	assert.InDelta(t, 0.65, Confidence(five), 1e-9)

	// 超过五个块覆盖度不再增长
	eight := make([]ContextChunk, 8)
	for i := range eight {
		eight[i] = ContextChunk{SimilarityScore: 0.5}
	}
	assert.InDelta(t, 0.65, Confidence(eight), 1e-9)

	// 上限1
	perfect := make([]ContextChunk, 5)
	for i := range perfect {
		perfect[i] = ContextChunk{SimilarityScore: 1}
	}
	assert.InDelta(t, 1, Confidence(perfect), 1e-9)
}
