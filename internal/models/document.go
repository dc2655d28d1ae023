package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// 文档状态常量，状态迁移规则见 internal/pipeline/state.go
const (
	DocStatusUploading  = "UPLOADING"
	DocStatusUploaded   = "UPLOADED"
	DocStatusProcessing = "PROCESSING"
	DocStatusProcessed  = "PROCESSED"
	DocStatusAnalyzed   = "ANALYZED"
	DocStatusError      = "ERROR"
)

// AnalysisResult 语义分析结果，整体作为JSON列存储
type AnalysisResult struct {
	CentralThesis          string                 `json:"central_thesis"`
	KeyConcepts            []string               `json:"key_concepts"`
	ArgumentativeStructure map[string]interface{} `json:"argumentative_structure"`
	CitedSources           []CitedSource          `json:"cited_sources"`
	AnalysisMetadata       map[string]interface{} `json:"analysis_metadata"`
}

// CitedSource 引用来源
type CitedSource struct {
	Author          string `json:"author"`
	Title           string `json:"title"`
	Year            string `json:"year"`
	Type            string `json:"type"`
	CitationContext string `json:"citation_context"`
}

// Value 实现driver.Valuer，序列化为JSON写库
func (a AnalysisResult) Value() (driver.Value, error) {
	return json.Marshal(a)
}

// Scan 实现sql.Scanner，从JSON列反序列化
func (a *AnalysisResult) Scan(value interface{}) error {
	if value == nil {
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported type for AnalysisResult: %T", value)
	}
	return json.Unmarshal(data, a)
}

// Document 文档表
type Document struct {
	DocumentID       uint            `gorm:"primaryKey;column:document_id" json:"document_id"`
	ProjectID        uint            `gorm:"column:project_id;not null;index" json:"project_id"`
	Filename         string          `gorm:"size:255;not null" json:"filename"`
	OriginalFilename string          `gorm:"column:original_filename;size:255" json:"original_filename"`
	FilePath         string          `gorm:"column:file_path;size:500" json:"file_path"`
	FileSize         int64           `gorm:"column:file_size;not null;default:0" json:"file_size"`
	FileType         string          `gorm:"column:file_type;size:20" json:"file_type"`
	Status           string          `gorm:"size:20;default:UPLOADED;not null;index" json:"status"`
	ExtractedText    string          `gorm:"type:text;column:extracted_text" json:"-"`
	PageCount        int             `gorm:"column:page_count;default:0" json:"page_count"`
	IsAnalyzed       bool            `gorm:"column:is_analyzed;default:false" json:"is_analyzed"`
	Analysis         *AnalysisResult `gorm:"type:json;column:analysis" json:"analysis,omitempty"`
	ErrorMessage     string          `gorm:"type:text;column:error_message" json:"error_message,omitempty"`
	CreateTime       time.Time       `gorm:"column:create_time;autoCreateTime" json:"create_time"`
	UpdateTime       time.Time       `gorm:"column:update_time;autoUpdateTime" json:"update_time"`
	AnalyzedAt       *time.Time      `gorm:"column:analyzed_at" json:"analyzed_at,omitempty"`

	Project Project `gorm:"foreignKey:ProjectID" json:"-"`
}

func (Document) TableName() string {
	return "documents"
}

// SetError 置为ERROR态并记录错误信息
func (d *Document) SetError(message string) {
	d.Status = DocStatusError
	d.ErrorMessage = message
}

// MarkAnalyzed 置为ANALYZED态并记录分析时间
func (d *Document) MarkAnalyzed(result *AnalysisResult) {
	now := time.Now()
	d.Status = DocStatusAnalyzed
	d.IsAnalyzed = result != nil
	d.Analysis = result
	d.AnalyzedAt = &now
}

// ResetForReprocess 重置为UPLOADED态，清空上一轮处理产物
func (d *Document) ResetForReprocess() {
	d.Status = DocStatusUploaded
	d.ExtractedText = ""
	d.PageCount = 0
	d.IsAnalyzed = false
	d.Analysis = nil
	d.AnalyzedAt = nil
	d.ErrorMessage = ""
}
