package controllers

import (
	"encoding/json"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/studymate/backend-go/internal/logger"
	"github.com/studymate/backend-go/internal/models"
)

// ProjectController 项目与检索接口
type ProjectController struct {
	BaseController
}

type createProjectRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Create POST /api/v1/projects
func (c *ProjectController) Create() {
	var req createProjectRequest
	if err := json.Unmarshal(c.Ctx.Input.RequestBody, &req); err != nil {
		c.JSONError(http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		c.JSONError(http.StatusBadRequest, "project name is required")
		return
	}

	project := &models.Project{
		Name:        strings.TrimSpace(req.Name),
		Description: req.Description,
	}
	if err := deps.ProjectRepo.Create(c.Ctx.Request.Context(), project); err != nil {
		logger.Error("failed to create project", zap.Error(err))
		c.JSONError(http.StatusInternalServerError, "failed to create project")
		return
	}

	logger.Info("project created",
		zap.Uint("project_id", project.ProjectID),
		zap.String("name", project.Name))
	c.JSONSuccess(project)
}

// Get GET /api/v1/projects/:id
func (c *ProjectController) Get() {
	projectID, ok := c.mustParseUintParam(":id")
	if !ok {
		return
	}

	project, err := deps.ProjectRepo.GetByID(c.Ctx.Request.Context(), projectID)
	if err != nil {
		c.JSONRepoError(err, "project")
		return
	}
	c.JSONSuccess(project)
}

// Delete DELETE /api/v1/projects/:id
// 连带删除项目的向量命名空间与文档记录
func (c *ProjectController) Delete() {
	projectID, ok := c.mustParseUintParam(":id")
	if !ok {
		return
	}

	ctx := c.Ctx.Request.Context()
	if _, err := deps.ProjectRepo.GetByID(ctx, projectID); err != nil {
		c.JSONRepoError(err, "project")
		return
	}

	if err := deps.Index.DeleteProject(ctx, projectID); err != nil {
		logger.Warn("failed to delete project vectors",
			zap.Uint("project_id", projectID),
			zap.Error(err))
	}
	if err := deps.ProjectRepo.Delete(ctx, projectID); err != nil {
		c.JSONAppError(err)
		return
	}

	logger.Info("project deleted", zap.Uint("project_id", projectID))
	c.JSONSuccess(map[string]interface{}{"project_id": projectID})
}

// Process POST /api/v1/projects/:id/process
// 批量入队项目内UPLOADED与ERROR状态的文档
func (c *ProjectController) Process() {
	projectID, ok := c.mustParseUintParam(":id")
	if !ok {
		return
	}

	ctx := c.Ctx.Request.Context()
	if _, err := deps.ProjectRepo.GetByID(ctx, projectID); err != nil {
		c.JSONRepoError(err, "project")
		return
	}

	count, err := deps.Processor.ProcessProjectDocuments(ctx, projectID)
	if err != nil {
		c.JSONAppError(err)
		return
	}
	c.JSONSuccess(map[string]interface{}{
		"project_id":     projectID,
		"enqueued_count": count,
	})
}

type retrieveRequest struct {
	Query     string `json:"query"`
	MaxChunks int    `json:"max_chunks"`
}

// Retrieve POST /api/v1/projects/:id/retrieve
// 对项目执行语义检索，返回上下文块与置信度
func (c *ProjectController) Retrieve() {
	projectID, ok := c.mustParseUintParam(":id")
	if !ok {
		return
	}

	var req retrieveRequest
	if err := json.Unmarshal(c.Ctx.Input.RequestBody, &req); err != nil {
		c.JSONError(http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := deps.Assembler.Retrieve(c.Ctx.Request.Context(), projectID, req.Query, req.MaxChunks)
	if err != nil {
		c.JSONAppError(err)
		return
	}
	c.JSONSuccess(result)
}

// IndexStats GET /api/v1/projects/:id/index/stats
func (c *ProjectController) IndexStats() {
	projectID, ok := c.mustParseUintParam(":id")
	if !ok {
		return
	}

	stats, err := deps.Index.Stats(c.Ctx.Request.Context(), projectID)
	if err != nil {
		c.JSONAppError(err)
		return
	}
	c.JSONSuccess(stats)
}
