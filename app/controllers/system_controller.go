package controllers

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/studymate/backend-go/internal/config"
	"github.com/studymate/backend-go/internal/database"
)

// RootController 服务信息
type RootController struct {
	BaseController
}

// Index GET /
func (c *RootController) Index() {
	c.JSONSuccess(map[string]interface{}{
		"service": "studymate-ingestion",
		"env":     config.AppConfig.Server.Env,
	})
}

// HealthController 健康检查
type HealthController struct {
	BaseController
}

// Health GET /health
// 数据库不可用视为不健康，向量索引和处理器状态仅回报
func (c *HealthController) Health() {
	ctx := c.Ctx.Request.Context()

	dbHealthy := database.Ping(ctx) == nil
	status := map[string]interface{}{
		"database":     dbHealthy,
		"vector_index": deps.Index.Ready(),
		"processor":    deps.Processor.Status(),
	}

	if !dbHealthy {
		c.JSON(http.StatusServiceUnavailable, map[string]interface{}{
			"success": false,
			"data":    status,
		})
		return
	}
	c.JSONSuccess(status)
}

// ProcessingController 流水线状态
type ProcessingController struct {
	BaseController
}

// Status GET /api/v1/processing/status
func (c *ProcessingController) Status() {
	c.JSONSuccess(deps.Processor.Status())
}

// MetricsController Prometheus指标
type MetricsController struct {
	BaseController
}

// Metrics GET /metrics
func (c *MetricsController) Metrics() {
	if !config.AppConfig.Metrics.Enabled {
		c.JSONError(http.StatusNotFound, "metrics disabled")
		return
	}
	promhttp.Handler().ServeHTTP(c.Ctx.ResponseWriter, c.Ctx.Request)
}
