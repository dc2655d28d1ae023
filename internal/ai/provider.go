package ai

import (
	"strings"

	"go.uber.org/zap"

	"github.com/studymate/backend-go/internal/config"
	"github.com/studymate/backend-go/internal/logger"
)

// Provider 一组绑定的嵌入与分析实现
type Provider struct {
	Name     string
	Embedder Embedder
	Analyzer Analyzer
}

// ResolveProvider 解析AI提供方：显式配置优先，否则按openai→dashscope→noop回退链
// 选择第一个有凭证的提供方
func ResolveProvider(cfg config.AIConfig) *Provider {
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "openai":
		return newOpenAIProvider(cfg)
	case "dashscope":
		return newDashScopeProvider(cfg)
	case "noop":
		return newNoopProvider()
	case "":
		// 未显式指定，走回退链
	default:
		logger.Warn("unknown ai provider, falling back", zap.String("provider", cfg.Provider))
	}

	if strings.TrimSpace(cfg.OpenAIAPIKey) != "" {
		return newOpenAIProvider(cfg)
	}
	if strings.TrimSpace(cfg.DashScopeAPIKey) != "" {
		return newDashScopeProvider(cfg)
	}
	return newNoopProvider()
}

func newOpenAIProvider(cfg config.AIConfig) *Provider {
	return &Provider{
		Name:     "openai",
		Embedder: NewOpenAIEmbedder(cfg.OpenAIAPIKey, cfg.EmbeddingModel),
		Analyzer: NewOpenAIAnalyzer(cfg.OpenAIAPIKey, cfg.AnalysisModel),
	}
}

func newDashScopeProvider(cfg config.AIConfig) *Provider {
	// OpenAI系模型名对DashScope无效，换用其默认模型
	embeddingModel := cfg.EmbeddingModel
	if strings.HasPrefix(embeddingModel, "text-embedding-3") || embeddingModel == "text-embedding-ada-002" {
		embeddingModel = ""
	}
	analysisModel := cfg.AnalysisModel
	if strings.HasPrefix(analysisModel, "gpt-") {
		analysisModel = ""
	}
	return &Provider{
		Name:     "dashscope",
		Embedder: NewDashScopeEmbedder(cfg.DashScopeAPIKey, embeddingModel),
		Analyzer: NewDashScopeAnalyzer(cfg.DashScopeAPIKey, analysisModel),
	}
}

func newNoopProvider() *Provider {
	return &Provider{
		Name:     "noop",
		Embedder: &NoopEmbedder{},
		Analyzer: &NoopAnalyzer{},
	}
}
