package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// ErrorCode 错误码类型
type ErrorCode string

// 预定义错误码
const (
	// 通用错误
	ErrCodeInternalServer  ErrorCode = "INTERNAL_SERVER_ERROR"
	ErrCodeBadRequest      ErrorCode = "BAD_REQUEST"
	ErrCodeNotFound        ErrorCode = "NOT_FOUND"
	ErrCodeInvalidState    ErrorCode = "INVALID_STATE"
	ErrCodeDatabaseError   ErrorCode = "DATABASE_ERROR"
	ErrCodeExternalService ErrorCode = "EXTERNAL_SERVICE_ERROR"

	// 文档处理流水线错误
	ErrCodeExtractionFailed  ErrorCode = "EXTRACTION_FAILED"
	ErrCodeUnsupportedFormat ErrorCode = "UNSUPPORTED_FORMAT"
	ErrCodeAnalysisFailed    ErrorCode = "ANALYSIS_FAILED"
	ErrCodeSegmentationEmpty ErrorCode = "SEGMENTATION_EMPTY"
	ErrCodeEmbeddingFailed   ErrorCode = "EMBEDDING_FAILED"
	ErrCodeIndexWriteFailed  ErrorCode = "INDEX_WRITE_FAILED"
	ErrCodeIndexQueryFailed  ErrorCode = "INDEX_QUERY_FAILED"
)

// Stage 流水线阶段标识，用于日志与指标维度
type Stage string

const (
	StageExtraction   Stage = "extraction"
	StageAnalysis     Stage = "analysis"
	StageSegmentation Stage = "segmentation"
	StageEmbedding    Stage = "embedding"
	StageIndexing     Stage = "indexing"
	StageRetrieval    Stage = "retrieval"
)

// AppError 应用错误结构体
type AppError struct {
	Code     ErrorCode   `json:"code"`
	Message  string      `json:"message"`
	Stage    Stage       `json:"stage,omitempty"`
	HTTPCode int         `json:"-"`
	Details  interface{} `json:"details,omitempty"`
	Cause    error       `json:"-"`
}

// Error 实现error接口
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap 返回底层错误
func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithDetails 添加错误详情
func (e *AppError) WithDetails(details interface{}) *AppError {
	e.Details = details
	return e
}

// WithCause 添加错误原因
func (e *AppError) WithCause(cause error) *AppError {
	e.Cause = cause
	return e
}

// 错误构造函数

// NewSystemError 创建系统错误
func NewSystemError(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:     code,
		Message:  message,
		HTTPCode: http.StatusInternalServerError,
	}
}

// NewBadRequestError 创建参数错误
func NewBadRequestError(message string) *AppError {
	return &AppError{
		Code:     ErrCodeBadRequest,
		Message:  message,
		HTTPCode: http.StatusBadRequest,
	}
}

// NewNotFoundError 创建资源未找到错误
func NewNotFoundError(resource string) *AppError {
	return &AppError{
		Code:     ErrCodeNotFound,
		Message:  fmt.Sprintf("%s not found", resource),
		HTTPCode: http.StatusNotFound,
	}
}

// NewInvalidStateError 创建状态非法错误（状态机拒绝迁移时使用）
func NewInvalidStateError(message string) *AppError {
	return &AppError{
		Code:     ErrCodeInvalidState,
		Message:  message,
		HTTPCode: http.StatusConflict,
	}
}

// NewExtractionError 创建文本提取错误（致命，文档进入ERROR态）
func NewExtractionError(message string, cause error) *AppError {
	return &AppError{
		Code:     ErrCodeExtractionFailed,
		Message:  message,
		Stage:    StageExtraction,
		HTTPCode: http.StatusUnprocessableEntity,
		Cause:    cause,
	}
}

// NewUnsupportedFormatError 创建不支持格式错误
func NewUnsupportedFormatError(fileType string) *AppError {
	return &AppError{
		Code:     ErrCodeUnsupportedFormat,
		Message:  fmt.Sprintf("unsupported file type: %s", fileType),
		Stage:    StageExtraction,
		HTTPCode: http.StatusUnsupportedMediaType,
	}
}

// NewAnalysisError 创建语义分析错误（非致命，流水线继续）
func NewAnalysisError(message string, cause error) *AppError {
	return &AppError{
		Code:     ErrCodeAnalysisFailed,
		Message:  message,
		Stage:    StageAnalysis,
		HTTPCode: http.StatusInternalServerError,
		Cause:    cause,
	}
}

// NewSegmentationEmptyError 创建分段结果为空错误
func NewSegmentationEmptyError() *AppError {
	return &AppError{
		Code:     ErrCodeSegmentationEmpty,
		Message:  "no indexable content",
		Stage:    StageSegmentation,
		HTTPCode: http.StatusUnprocessableEntity,
	}
}

// NewEmbeddingError 创建向量化错误（致命，不重试）
func NewEmbeddingError(message string, cause error) *AppError {
	return &AppError{
		Code:     ErrCodeEmbeddingFailed,
		Message:  message,
		Stage:    StageEmbedding,
		HTTPCode: http.StatusBadGateway,
		Cause:    cause,
	}
}

// NewIndexWriteError 创建索引写入错误
func NewIndexWriteError(message string, cause error) *AppError {
	return &AppError{
		Code:     ErrCodeIndexWriteFailed,
		Message:  message,
		Stage:    StageIndexing,
		HTTPCode: http.StatusBadGateway,
		Cause:    cause,
	}
}

// NewIndexQueryError 创建索引查询错误（检索侧降级为空结果）
func NewIndexQueryError(message string, cause error) *AppError {
	return &AppError{
		Code:     ErrCodeIndexQueryFailed,
		Message:  message,
		Stage:    StageRetrieval,
		HTTPCode: http.StatusBadGateway,
		Cause:    cause,
	}
}

// hasCode 检查错误链上是否存在指定错误码的AppError
func hasCode(err error, code ErrorCode) bool {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

// IsExtractionError 检查是否为提取错误
func IsExtractionError(err error) bool {
	return hasCode(err, ErrCodeExtractionFailed) || hasCode(err, ErrCodeUnsupportedFormat)
}

// IsAnalysisError 检查是否为分析错误
func IsAnalysisError(err error) bool {
	return hasCode(err, ErrCodeAnalysisFailed)
}

// IsSegmentationEmpty 检查是否为分段结果为空
func IsSegmentationEmpty(err error) bool {
	return hasCode(err, ErrCodeSegmentationEmpty)
}

// IsEmbeddingError 检查是否为向量化错误
func IsEmbeddingError(err error) bool {
	return hasCode(err, ErrCodeEmbeddingFailed)
}

// IsIndexQueryError 检查是否为索引查询错误
func IsIndexQueryError(err error) bool {
	return hasCode(err, ErrCodeIndexQueryFailed)
}

// IsAppError 检查是否为AppError
func IsAppError(err error) bool {
	var appErr *AppError
	return stderrors.As(err, &appErr)
}

// GetAppError 获取AppError，如果不是则包装为系统错误
func GetAppError(err error) *AppError {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr
	}

	return NewSystemError(ErrCodeInternalServer, "Internal server error").WithCause(err)
}
