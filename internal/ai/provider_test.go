package ai

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/studymate/backend-go/internal/config"
	apperrors "github.com/studymate/backend-go/internal/errors"
)

func TestResolveProvider_ExplicitConfigWins(t *testing.T) {
	p := ResolveProvider(config.AIConfig{
		Provider:        "dashscope",
		OpenAIAPIKey:    "sk-openai",
		DashScopeAPIKey: "sk-dash",
	})
	assert.Equal(t, "dashscope", p.Name)
	assert.True(t, p.Embedder.Ready())
}

func TestResolveProvider_FallbackChain(t *testing.T) {
	p := ResolveProvider(config.AIConfig{OpenAIAPIKey: "sk-openai"})
	assert.Equal(t, "openai", p.Name)

	p = ResolveProvider(config.AIConfig{DashScopeAPIKey: "sk-dash"})
	assert.Equal(t, "dashscope", p.Name)

	p = ResolveProvider(config.AIConfig{})
	assert.Equal(t, "noop", p.Name)
	assert.False(t, p.Embedder.Ready())
	assert.False(t, p.Analyzer.Ready())
}

func TestResolveProvider_UnknownFallsBack(t *testing.T) {
	p := ResolveProvider(config.AIConfig{Provider: "bedrock", OpenAIAPIKey: "sk-openai"})
	assert.Equal(t, "openai", p.Name)
}

func TestNoopEmbedder_ReturnsTypedError(t *testing.T) {
	e := &NoopEmbedder{}

	vectors, err := e.Embed(context.Background(), []string{"some text"})
	assert.Nil(t, vectors)
	require.Error(t, err)
	assert.True(t, apperrors.IsEmbeddingError(err))
}

func TestNoopAnalyzer_ReturnsTypedError(t *testing.T) {
	a := &NoopAnalyzer{}

	result, err := a.Analyze(context.Background(), strings.Repeat("testo ", 50), "file.pdf")
	assert.Nil(t, result)
	require.Error(t, err)
	assert.True(t, apperrors.IsAnalysisError(err))
}

func TestAnalyzer_ShortTextRejected(t *testing.T) {
	a := NewOpenAIAnalyzer("sk-test", "gpt-4")

	result, err := a.Analyze(context.Background(), "troppo corto", "short.pdf")
	assert.Nil(t, result)
	require.Error(t, err)
	assert.True(t, apperrors.IsAnalysisError(err))
}

func TestParseConceptList(t *testing.T) {
	concepts := ParseConceptList("economia, beni culturali , , storia", 8)
	assert.Equal(t, []string{"economia", "beni culturali", "storia"}, concepts)

	many := ParseConceptList(strings.Repeat("concetto,", 12), 8)
	assert.Len(t, many, 8)
}

func TestExtractJSONObject(t *testing.T) {
	parsed, ok := ExtractJSONObject(`Ecco la struttura: {"introduction": "intro", "main_arguments": ["a"]} spero sia utile`)
	require.True(t, ok)
	assert.Equal(t, "intro", parsed["introduction"])

	_, ok = ExtractJSONObject("nessun json qui")
	assert.False(t, ok)
}

func TestParseCitations(t *testing.T) {
	citations := ParseCitations(`[{"author":"Eco","title":"Opera aperta","year":"1962","type":"secondaria","citation_context":"cap. 1"}]`, 10)
	require.Len(t, citations, 1)
	assert.Equal(t, "Eco", citations[0].Author)
	assert.Equal(t, "1962", citations[0].Year)

	assert.Nil(t, ParseCitations("risposta senza array", 10))
}
