package controllers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	apperrors "github.com/studymate/backend-go/internal/errors"
	"github.com/studymate/backend-go/internal/logger"
	"github.com/studymate/backend-go/internal/models"
	"github.com/studymate/backend-go/internal/pipeline"
)

// DocumentController 文档上传与处理接口
type DocumentController struct {
	BaseController
}

// Upload POST /api/v1/projects/:id/documents
// multipart上传，落盘后建档并置为UPLOADED
func (c *DocumentController) Upload() {
	projectID, ok := c.mustParseUintParam(":id")
	if !ok {
		return
	}

	if _, err := deps.ProjectRepo.GetByID(c.Ctx.Request.Context(), projectID); err != nil {
		c.JSONAppError(apperrors.NewNotFoundError("project"))
		return
	}

	file, header, err := c.GetFile("file")
	if err != nil {
		c.JSONError(http.StatusBadRequest, "missing file field")
		return
	}
	defer file.Close()

	if !deps.Extractor.Supported(header.Filename) {
		c.JSONAppError(apperrors.NewUnsupportedFormatError(filepath.Ext(header.Filename)))
		return
	}

	ctx := c.Ctx.Request.Context()
	storedName := fmt.Sprintf("%d_%s", time.Now().UnixNano(), filepath.Base(header.Filename))
	storagePath := fmt.Sprintf("projects/%d/%s", projectID, storedName)

	if err := deps.Files.Write(ctx, storagePath, file, header.Size); err != nil {
		logger.Error("failed to store uploaded file",
			zap.String("path", storagePath),
			zap.Error(err))
		c.JSONError(http.StatusInternalServerError, "failed to store file")
		return
	}

	ext := filepath.Ext(header.Filename)
	doc := &models.Document{
		ProjectID:        projectID,
		Filename:         storedName,
		OriginalFilename: header.Filename,
		FilePath:         storagePath,
		FileSize:         header.Size,
		FileType:         ext,
		Status:           models.DocStatusUploaded,
	}
	if err := deps.DocumentRepo.Create(ctx, doc); err != nil {
		logger.Error("failed to create document record", zap.Error(err))
		c.JSONError(http.StatusInternalServerError, "failed to create document")
		return
	}

	logger.Info("document uploaded",
		zap.Uint("document_id", doc.DocumentID),
		zap.Uint("project_id", projectID),
		zap.String("filename", header.Filename),
		zap.Int64("size", header.Size))
	c.JSONSuccess(doc)
}

// List GET /api/v1/projects/:id/documents
func (c *DocumentController) List() {
	projectID, ok := c.mustParseUintParam(":id")
	if !ok {
		return
	}

	docs, err := deps.DocumentRepo.GetByProjectID(c.Ctx.Request.Context(), projectID)
	if err != nil {
		c.JSONAppError(err)
		return
	}
	c.JSONSuccess(map[string]interface{}{
		"documents": docs,
		"count":     len(docs),
	})
}

// Get GET /api/v1/documents/:id
func (c *DocumentController) Get() {
	docID, ok := c.mustParseUintParam(":id")
	if !ok {
		return
	}

	doc, err := deps.DocumentRepo.GetByID(c.Ctx.Request.Context(), docID)
	if err != nil {
		c.JSONRepoError(err, "document")
		return
	}
	c.JSONSuccess(doc)
}

type processRequest struct {
	Priority string `json:"priority"`
}

// Process POST /api/v1/documents/:id/process
// 只接受UPLOADED和ERROR状态的文档
func (c *DocumentController) Process() {
	docID, ok := c.mustParseUintParam(":id")
	if !ok {
		return
	}

	doc, err := deps.DocumentRepo.GetByID(c.Ctx.Request.Context(), docID)
	if err != nil {
		c.JSONRepoError(err, "document")
		return
	}

	if !pipeline.CanTrigger(doc.Status) {
		c.JSONAppError(apperrors.NewInvalidStateError(
			fmt.Sprintf("document in status %s cannot be processed", doc.Status)))
		return
	}

	var req processRequest
	if body := c.Ctx.Input.RequestBody; len(body) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			c.JSONError(http.StatusBadRequest, "invalid request body")
			return
		}
	}

	if err := deps.Processor.Enqueue(doc.DocumentID, req.Priority); err != nil {
		c.JSONAppError(err)
		return
	}
	c.JSONSuccess(map[string]interface{}{
		"document_id": doc.DocumentID,
		"message":     "processing started",
	})
}

// Reprocess POST /api/v1/documents/:id/reprocess
// 清掉旧向量和分析结果，从头重新处理
func (c *DocumentController) Reprocess() {
	docID, ok := c.mustParseUintParam(":id")
	if !ok {
		return
	}

	if err := deps.Processor.Reprocess(c.Ctx.Request.Context(), docID); err != nil {
		c.JSONRepoError(err, "document")
		return
	}
	c.JSONSuccess(map[string]interface{}{
		"document_id": docID,
		"message":     "reprocessing started",
	})
}

// Delete DELETE /api/v1/documents/:id
// 依次清理向量、原始文件和数据库记录
func (c *DocumentController) Delete() {
	docID, ok := c.mustParseUintParam(":id")
	if !ok {
		return
	}

	ctx := c.Ctx.Request.Context()
	doc, err := deps.DocumentRepo.GetByID(ctx, docID)
	if err != nil {
		c.JSONRepoError(err, "document")
		return
	}

	if err := deps.Index.DeleteDocument(ctx, doc.ProjectID, doc.DocumentID); err != nil {
		logger.Warn("failed to delete document vectors",
			zap.Uint("document_id", docID),
			zap.Error(err))
	}
	if err := deps.Files.Delete(ctx, doc.FilePath); err != nil {
		logger.Warn("failed to delete document file",
			zap.String("path", doc.FilePath),
			zap.Error(err))
	}
	if err := deps.DocumentRepo.Delete(ctx, docID); err != nil {
		c.JSONAppError(err)
		return
	}

	logger.Info("document deleted", zap.Uint("document_id", docID))
	c.JSONSuccess(map[string]interface{}{"document_id": docID})
}
