package extract

import (
	"bytes"
	"io"
	"path/filepath"
	"strings"

	"github.com/unidoc/unioffice/document"
	"github.com/unidoc/unipdf/v3/extractor"
	"github.com/unidoc/unipdf/v3/model"

	apperrors "github.com/studymate/backend-go/internal/errors"
)

// Result 提取结果。PageCount对PDF是物理页数，对DOCX按段落数折算
type Result struct {
	Text      string
	PageCount int
}

// Extractor 文本提取器接口
type Extractor interface {
	Extract(reader io.Reader, filename string) (*Result, error)
	Supports(filename string) bool
}

// TextExtractor 纯文本/Markdown提取器
type TextExtractor struct{}

func (e *TextExtractor) Supports(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	return ext == ".txt" || ext == ".md" || ext == ".markdown"
}

func (e *TextExtractor) Extract(reader io.Reader, filename string) (*Result, error) {
	content, err := io.ReadAll(reader)
	if err != nil {
		return nil, apperrors.NewExtractionError("failed to read text file", err)
	}
	return &Result{Text: string(content), PageCount: 1}, nil
}

// PDFExtractor PDF提取器
type PDFExtractor struct{}

func (e *PDFExtractor) Supports(filename string) bool {
	return strings.ToLower(filepath.Ext(filename)) == ".pdf"
}

func (e *PDFExtractor) Extract(reader io.Reader, filename string) (*Result, error) {
	pdfBytes, err := io.ReadAll(reader)
	if err != nil {
		return nil, apperrors.NewExtractionError("failed to read pdf file", err)
	}

	pdfReader, err := model.NewPdfReader(bytes.NewReader(pdfBytes))
	if err != nil {
		return nil, apperrors.NewExtractionError("failed to parse pdf", err)
	}

	numPages, err := pdfReader.GetNumPages()
	if err != nil {
		return nil, apperrors.NewExtractionError("failed to get pdf page count", err)
	}

	// 逐页提取，单页失败跳过不中断
	var textBuilder strings.Builder
	for i := 1; i <= numPages; i++ {
		page, err := pdfReader.GetPage(i)
		if err != nil {
			continue
		}

		ex, err := extractor.New(page)
		if err != nil {
			continue
		}

		text, err := ex.ExtractText()
		if err != nil {
			continue
		}

		textBuilder.WriteString(text)
		textBuilder.WriteString("\n")
	}

	return &Result{Text: textBuilder.String(), PageCount: numPages}, nil
}

// DocxExtractor Word文档提取器
type DocxExtractor struct{}

func (e *DocxExtractor) Supports(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	return ext == ".docx" || ext == ".doc"
}

func (e *DocxExtractor) Extract(reader io.Reader, filename string) (*Result, error) {
	if strings.ToLower(filepath.Ext(filename)) == ".doc" {
		return nil, apperrors.NewUnsupportedFormatError(".doc")
	}

	docBytes, err := io.ReadAll(reader)
	if err != nil {
		return nil, apperrors.NewExtractionError("failed to read docx file", err)
	}

	// bytes.Reader实现ReaderAt接口
	readerAt := bytes.NewReader(docBytes)
	doc, err := document.Read(readerAt, int64(len(docBytes)))
	if err != nil {
		return nil, apperrors.NewExtractionError("failed to parse docx", err)
	}
	defer doc.Close()

	var textBuilder strings.Builder
	paragraphCount := 0
	for _, para := range doc.Paragraphs() {
		for _, run := range para.Runs() {
			textBuilder.WriteString(run.Text())
		}
		textBuilder.WriteString("\n")
		paragraphCount++
	}

	return &Result{
		Text:      textBuilder.String(),
		PageCount: DocxPageEstimate(paragraphCount),
	}, nil
}

// DocxPageEstimate DOCX没有物理页概念，按每10个段落折算一页，至少一页
func DocxPageEstimate(paragraphCount int) int {
	pages := paragraphCount / 10
	if pages < 1 {
		pages = 1
	}
	return pages
}

// Manager 提取器管理器，按注册顺序匹配
type Manager struct {
	extractors []Extractor
}

// NewManager 创建提取器管理器
func NewManager() *Manager {
	return &Manager{
		extractors: []Extractor{
			&PDFExtractor{},
			&DocxExtractor{},
			&TextExtractor{},
		},
	}
}

// Extract 按文件名选择提取器并执行提取
func (m *Manager) Extract(reader io.Reader, filename string) (*Result, error) {
	for _, e := range m.extractors {
		if e.Supports(filename) {
			return e.Extract(reader, filename)
		}
	}
	return nil, apperrors.NewUnsupportedFormatError(filepath.Ext(filename))
}

// SupportedFormats 支持的扩展名列表
func (m *Manager) SupportedFormats() []string {
	return []string{".pdf", ".docx", ".txt", ".md", ".markdown"}
}

// Supported 文件名是否有匹配的提取器
func (m *Manager) Supported(filename string) bool {
	for _, e := range m.extractors {
		if e.Supports(filename) {
			return true
		}
	}
	return false
}

// Describe 返回文件的提取元信息（供上传接口回显）
func (m *Manager) Describe(filename string) map[string]interface{} {
	return map[string]interface{}{
		"filename":  filename,
		"extension": filepath.Ext(filename),
		"supported": m.Supported(filename),
	}
}
