package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	apperrors "github.com/studymate/backend-go/internal/errors"
	"github.com/studymate/backend-go/internal/logger"
	"github.com/studymate/backend-go/internal/models"
)

// 分析输入的边界：太短没有分析价值，太长截断控制token消耗
const (
	minAnalyzableLength = 100
	analysisInputCap    = 3000
)

// Analyzer 语义分析接口：提取中心论点、关键概念、论证结构和引用
type Analyzer interface {
	Analyze(ctx context.Context, text, filename string) (*models.AnalysisResult, error)
	Ready() bool
}

// NoopAnalyzer 默认占位实现
type NoopAnalyzer struct{}

func (n *NoopAnalyzer) Analyze(ctx context.Context, text, filename string) (*models.AnalysisResult, error) {
	return nil, apperrors.NewAnalysisError("analysis provider not configured", nil)
}

func (n *NoopAnalyzer) Ready() bool {
	return false
}

// OpenAIAnalyzer 基于chat completion的文档分析器（DashScope走兼容模式）
type OpenAIAnalyzer struct {
	client   *openai.Client
	model    string
	provider string
}

// NewOpenAIAnalyzer 创建OpenAI分析器
func NewOpenAIAnalyzer(apiKey, model string) Analyzer {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return &NoopAnalyzer{}
	}
	if model == "" {
		model = "gpt-4"
	}
	return &OpenAIAnalyzer{
		client:   openai.NewClient(apiKey),
		model:    model,
		provider: "openai",
	}
}

// NewDashScopeAnalyzer 创建DashScope分析器（OpenAI兼容模式）
func NewDashScopeAnalyzer(apiKey, model string) Analyzer {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return &NoopAnalyzer{}
	}
	if model == "" {
		model = "qwen-plus"
	}
	cfg := openai.DefaultConfig(apiKey)
	cfg.BaseURL = dashScopeBaseURL
	return &OpenAIAnalyzer{
		client:   openai.NewClientWithConfig(cfg),
		model:    model,
		provider: "dashscope",
	}
}

func (a *OpenAIAnalyzer) Ready() bool {
	return a.client != nil
}

// Analyze 对文档执行四路分析。单路失败回退到占位结果，不中断整体分析
func (a *OpenAIAnalyzer) Analyze(ctx context.Context, text, filename string) (*models.AnalysisResult, error) {
	if len(strings.TrimSpace(text)) < minAnalyzableLength {
		return nil, apperrors.NewAnalysisError("document text is too short for meaningful analysis", nil)
	}

	start := time.Now()
	excerpt := text
	if len(excerpt) > analysisInputCap {
		excerpt = excerpt[:analysisInputCap]
	}

	thesis := a.extractCentralThesis(ctx, excerpt, filename)
	concepts := a.extractKeyConcepts(ctx, excerpt, filename)
	structure := a.analyzeArgumentativeStructure(ctx, excerpt, filename)
	citations := a.extractCitations(ctx, excerpt, filename)

	result := &models.AnalysisResult{
		CentralThesis:          thesis,
		KeyConcepts:            concepts,
		ArgumentativeStructure: structure,
		CitedSources:           citations,
		AnalysisMetadata: map[string]interface{}{
			"ai_model":           a.model,
			"ai_provider":        a.provider,
			"processing_time_ms": time.Since(start).Milliseconds(),
			"analyzed_at":        time.Now().Format(time.RFC3339),
			"document_length":    len(text),
			"filename":           filename,
		},
	}
	return result, nil
}

func (a *OpenAIAnalyzer) complete(ctx context.Context, prompt string, temperature float32, maxTokens int) (string, error) {
	resp, err := a.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: a.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: temperature,
		MaxTokens:   maxTokens,
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("empty completion response")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// extractCentralThesis 提取中心论点
func (a *OpenAIAnalyzer) extractCentralThesis(ctx context.Context, excerpt, filename string) string {
	prompt := fmt.Sprintf(`Analizza il seguente documento accademico e identifica la tesi centrale.

DOCUMENTO: %s

TESTO:
%s...

ISTRUZIONI:
1. Identifica la tesi centrale o argomentazione principale del documento
2. Riassumi in 2-3 frasi la tesi centrale
3. Sii preciso e accademicamente rigoroso
4. Se il documento non ha una tesi chiara, spiega qual è l'obiettivo principale

RISPOSTA (solo la tesi centrale, senza introduzioni):`, filename, excerpt)

	response, err := a.complete(ctx, prompt, 0.3, 800)
	if err != nil || response == "" {
		logger.Warn("central thesis extraction failed", zap.String("filename", filename), zap.Error(err))
		return "Tesi centrale non identificata"
	}
	return response
}

// extractKeyConcepts 提取关键概念，最多8个
func (a *OpenAIAnalyzer) extractKeyConcepts(ctx context.Context, excerpt, filename string) []string {
	prompt := fmt.Sprintf(`Analizza il seguente documento accademico e identifica i concetti chiave.

DOCUMENTO: %s

TESTO:
%s...

ISTRUZIONI:
1. Identifica i 5-8 concetti più importanti del documento
2. Concentrati su concetti specifici e significativi
3. Evita termini troppo generici o ovvi
4. Ordina per importanza

RISPOSTA (solo i concetti separati da virgole, senza numerazione):`, filename, excerpt)

	response, err := a.complete(ctx, prompt, 0.2, 400)
	if err != nil || response == "" {
		logger.Warn("key concept extraction failed", zap.String("filename", filename), zap.Error(err))
		return nil
	}

	return ParseConceptList(response, 8)
}

// analyzeArgumentativeStructure 分析论证结构，返回结构化JSON
func (a *OpenAIAnalyzer) analyzeArgumentativeStructure(ctx context.Context, excerpt, filename string) map[string]interface{} {
	prompt := fmt.Sprintf(`Analizza la struttura argomentativa del seguente documento accademico.

DOCUMENTO: %s

TESTO:
%s...

ISTRUZIONI:
1. Identifica l'introduzione, sviluppo e conclusione
2. Individua i passaggi logici principali dell'argomentazione
3. Identifica le transizioni e i collegamenti tra le sezioni
4. Descrivi la strategia argomentativa usata

RISPOSTA in formato JSON:
{
    "introduction": "descrizione dell'introduzione",
    "main_arguments": ["argomento 1", "argomento 2", "argomento 3"],
    "logical_flow": "descrizione del flusso logico",
    "conclusion": "descrizione della conclusione",
    "argumentative_strategy": "strategia argomentativa utilizzata"
}`, filename, excerpt)

	response, err := a.complete(ctx, prompt, 0.3, 1000)
	if err != nil {
		logger.Warn("argumentative structure analysis failed", zap.String("filename", filename), zap.Error(err))
		return fallbackStructure("Errore nell'analisi")
	}
	if response == "" {
		return fallbackStructure("Analisi non disponibile")
	}

	if parsed, ok := ExtractJSONObject(response); ok {
		return parsed
	}

	// JSON解析失败时保留原始文本作为流程描述
	out := fallbackStructure("Struttura non identificata")
	out["logical_flow"] = response
	return out
}

// extractCitations 提取引用与文献，最多10条
func (a *OpenAIAnalyzer) extractCitations(ctx context.Context, excerpt, filename string) []models.CitedSource {
	prompt := fmt.Sprintf(`Identifica tutte le citazioni e fonti bibliografiche nel seguente documento.

DOCUMENTO: %s

TESTO:
%s...

ISTRUZIONI:
1. Identifica citazioni dirette e indirette
2. Trova riferimenti bibliografici
3. Identifica autori, opere e date quando possibile
4. Distingui tra fonti primarie e secondarie

RISPOSTA in formato JSON array:
[
    {
        "author": "nome autore",
        "title": "titolo opera",
        "year": "anno pubblicazione",
        "type": "primaria/secondaria",
        "citation_context": "contesto della citazione"
    }
]`, filename, excerpt)

	response, err := a.complete(ctx, prompt, 0.2, 1000)
	if err != nil || response == "" {
		logger.Warn("citation extraction failed", zap.String("filename", filename), zap.Error(err))
		return nil
	}

	return ParseCitations(response, 10)
}

func fallbackStructure(placeholder string) map[string]interface{} {
	return map[string]interface{}{
		"introduction":           placeholder,
		"main_arguments":         []interface{}{},
		"logical_flow":           placeholder,
		"conclusion":             placeholder,
		"argumentative_strategy": placeholder,
	}
}

// ParseConceptList 把逗号分隔的概念列表解析为切片并截断
func ParseConceptList(response string, limit int) []string {
	parts := strings.Split(response, ",")
	concepts := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part != "" {
			concepts = append(concepts, part)
		}
	}
	if len(concepts) > limit {
		concepts = concepts[:limit]
	}
	return concepts
}

// ExtractJSONObject 从可能夹杂说明文字的回复中截取最外层JSON对象
func ExtractJSONObject(response string) (map[string]interface{}, bool) {
	start := strings.Index(response, "{")
	end := strings.LastIndex(response, "}")
	if start < 0 || end <= start {
		return nil, false
	}

	var parsed map[string]interface{}
	if err := json.Unmarshal([]byte(response[start:end+1]), &parsed); err != nil {
		return nil, false
	}
	return parsed, true
}

// ParseCitations 从回复中截取JSON数组并解析为引用列表
func ParseCitations(response string, limit int) []models.CitedSource {
	start := strings.Index(response, "[")
	end := strings.LastIndex(response, "]")
	if start < 0 || end <= start {
		return nil
	}

	var citations []models.CitedSource
	if err := json.Unmarshal([]byte(response[start:end+1]), &citations); err != nil {
		return nil
	}
	if len(citations) > limit {
		citations = citations[:limit]
	}
	return citations
}
