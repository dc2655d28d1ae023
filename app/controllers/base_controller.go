package controllers

import (
	stderrors "errors"
	"net/http"
	"strconv"

	"github.com/beego/beego/v2/server/web"
	"gorm.io/gorm"

	apperrors "github.com/studymate/backend-go/internal/errors"
)

// BaseController 提供统一的JSON响应封装
type BaseController struct {
	web.Controller
}

// JSON 按指定状态码输出JSON
func (c *BaseController) JSON(status int, payload interface{}) {
	c.Ctx.Output.SetStatus(status)
	c.Data["json"] = payload
	c.ServeJSON()
}

// JSONSuccess 标准成功响应
func (c *BaseController) JSONSuccess(data interface{}) {
	c.JSON(http.StatusOK, map[string]interface{}{
		"success": true,
		"data":    data,
	})
}

// JSONError 标准错误响应
func (c *BaseController) JSONError(status int, message string) {
	c.JSON(status, map[string]interface{}{
		"success": false,
		"error": map[string]interface{}{
			"message": message,
		},
	})
}

// JSONAppError 按AppError携带的状态码与错误码输出
func (c *BaseController) JSONAppError(err error) {
	appErr := apperrors.GetAppError(err)
	payload := map[string]interface{}{
		"code":    appErr.Code,
		"message": appErr.Message,
	}
	if appErr.Stage != "" {
		payload["stage"] = appErr.Stage
	}
	if appErr.Details != nil {
		payload["details"] = appErr.Details
	}
	c.JSON(appErr.HTTPCode, map[string]interface{}{
		"success": false,
		"error":   payload,
	})
}

// JSONRepoError 仓库层错误响应，记录未找到时映射为404
func (c *BaseController) JSONRepoError(err error, resource string) {
	if stderrors.Is(err, gorm.ErrRecordNotFound) {
		c.JSONAppError(apperrors.NewNotFoundError(resource))
		return
	}
	c.JSONAppError(err)
}

// mustParseUintParam 解析路径参数为uint，失败时直接写400响应
func (c *BaseController) mustParseUintParam(name string) (uint, bool) {
	value := c.Ctx.Input.Param(name)
	id, err := strconv.ParseUint(value, 10, 32)
	if err != nil || id == 0 {
		c.JSONError(http.StatusBadRequest, "invalid id parameter")
		return 0, false
	}
	return uint(id), true
}
