package pipeline

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/studymate/backend-go/internal/logger"
	"github.com/studymate/backend-go/internal/models"
)

// 文档状态转换规则。回到UPLOADED的边对应重新处理
var documentTransitions = map[string][]string{
	models.DocStatusUploading:  {models.DocStatusUploaded},
	models.DocStatusUploaded:   {models.DocStatusProcessing},
	models.DocStatusProcessing: {models.DocStatusProcessed, models.DocStatusError},
	models.DocStatusProcessed:  {models.DocStatusAnalyzed, models.DocStatusError, models.DocStatusUploaded},
	models.DocStatusAnalyzed:   {models.DocStatusUploaded},
	models.DocStatusError:      {models.DocStatusProcessing, models.DocStatusUploaded},
}

// CanTransition 检查状态转换是否合法
func CanTransition(from, to string) bool {
	for _, allowed := range documentTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// CanTrigger 文档当前状态是否允许触发处理
// 只有UPLOADED和ERROR可以进入流水线，避免重复处理已完成的文档
func CanTrigger(status string) bool {
	return status == models.DocStatusUploaded || status == models.DocStatusError
}

// transition 校验并切换文档状态
func transition(doc *models.Document, to string) error {
	if !CanTransition(doc.Status, to) {
		return fmt.Errorf("invalid transition from %s to %s", doc.Status, to)
	}

	logger.Debug("document status transition",
		zap.Uint("document_id", doc.DocumentID),
		zap.String("from", doc.Status),
		zap.String("to", to))
	doc.Status = to
	return nil
}
