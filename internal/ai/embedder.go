package ai

import (
	"context"
	"strings"
	"sync"

	openai "github.com/sashabaranov/go-openai"

	apperrors "github.com/studymate/backend-go/internal/errors"
)

// Embedder 定义文本批量向量化接口
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	Ready() bool
}

// NoopEmbedder 默认占位实现
type NoopEmbedder struct{}

func (n *NoopEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return nil, apperrors.NewEmbeddingError("embedding provider not configured", nil)
}

func (n *NoopEmbedder) Dimensions() int {
	return 0
}

func (n *NoopEmbedder) Ready() bool {
	return false
}

var embeddingDimensions = map[string]int{
	"text-embedding-3-large": 3072,
	"text-embedding-3-small": 1536,
	"text-embedding-ada-002": 1536,
	"text-embedding-v1":      1536,
	"text-embedding-v2":      1536,
	"text-embedding-v3":      1536,
	"text-embedding-v4":      1536,
}

// dashScopeBaseURL 阿里云DashScope的OpenAI兼容模式端点
const dashScopeBaseURL = "https://dashscope.aliyuncs.com/compatible-mode/v1"

// OpenAIEmbedder 使用OpenAI Embedding API（DashScope通过兼容模式复用本实现）
type OpenAIEmbedder struct {
	client     *openai.Client
	model      string
	dimensions int
	limiter    sync.Mutex
}

// NewOpenAIEmbedder 创建OpenAI嵌入向量生成器
func NewOpenAIEmbedder(apiKey, model string) Embedder {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return &NoopEmbedder{}
	}
	if model == "" {
		model = "text-embedding-3-small"
	}

	return newEmbedderWithClient(openai.NewClient(apiKey), model)
}

// NewDashScopeEmbedder 创建DashScope嵌入向量生成器（OpenAI兼容模式）
func NewDashScopeEmbedder(apiKey, model string) Embedder {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return &NoopEmbedder{}
	}
	if model == "" {
		model = "text-embedding-v1"
	}

	cfg := openai.DefaultConfig(apiKey)
	cfg.BaseURL = dashScopeBaseURL
	return newEmbedderWithClient(openai.NewClientWithConfig(cfg), model)
}

func newEmbedderWithClient(client *openai.Client, model string) *OpenAIEmbedder {
	dims, ok := embeddingDimensions[model]
	if !ok {
		dims = 1536
	}
	return &OpenAIEmbedder{
		client:     client,
		model:      model,
		dimensions: dims,
	}
}

// Embed 批量向量化，输入输出一一对应
func (e *OpenAIEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if e.client == nil {
		return nil, apperrors.NewEmbeddingError("embedding client not initialized", nil)
	}

	e.limiter.Lock()
	defer e.limiter.Unlock()

	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Model: openai.EmbeddingModel(e.model),
		Input: texts,
	})
	if err != nil {
		return nil, apperrors.NewEmbeddingError("embedding request failed", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, apperrors.NewEmbeddingError("embedding response size mismatch", nil)
	}

	result := make([][]float32, len(resp.Data))
	for i, item := range resp.Data {
		vec := make([]float32, len(item.Embedding))
		copy(vec, item.Embedding)
		result[i] = vec
	}
	return result, nil
}

func (e *OpenAIEmbedder) Dimensions() int {
	return e.dimensions
}

func (e *OpenAIEmbedder) Ready() bool {
	return e.client != nil
}
