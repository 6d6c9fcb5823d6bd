package controllers

import (
	"encoding/json"
	"net/http"

	"github.com/beego/beego/v2/server/web"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	apperrors "github.com/aihub/testweaver-go/internal/errors"
	"github.com/aihub/testweaver-go/internal/logger"
)

var validate = validator.New()

// BaseController provides helpers for consistent JSON responses.
type BaseController struct {
	web.Controller
}

// JSON writes a JSON response with the supplied HTTP status code.
func (c *BaseController) JSON(status int, payload interface{}) {
	c.Ctx.Output.SetStatus(status)
	c.Data["json"] = payload
	c.ServeJSON()
}

// JSONSuccess writes a standard success envelope.
func (c *BaseController) JSONSuccess(data interface{}) {
	c.JSON(http.StatusOK, map[string]interface{}{
		"success": true,
		"data":    data,
	})
}

// JSONError writes an error envelope with message.
func (c *BaseController) JSONError(status int, message string) {
	c.JSON(status, map[string]interface{}{
		"success": false,
		"error":   message,
	})
}

// JSONAppError 按错误分类映射HTTP状态码
func (c *BaseController) JSONAppError(err error) {
	appErr := apperrors.GetAppError(err)
	if appErr.HTTPCode >= http.StatusInternalServerError {
		logger.Error("request failed", zap.String("code", string(appErr.Code)), zap.Error(err))
	}
	c.JSON(appErr.HTTPCode, map[string]interface{}{
		"success": false,
		"code":    appErr.Code,
		"error":   appErr.Message,
	})
}

// bindAndValidate 解析请求体并做结构校验
func (c *BaseController) bindAndValidate(target interface{}) bool {
	if err := json.Unmarshal(c.Ctx.Input.RequestBody, target); err != nil {
		c.JSONError(http.StatusBadRequest, "invalid JSON body")
		return false
	}
	if err := validate.Struct(target); err != nil {
		c.JSONError(http.StatusBadRequest, err.Error())
		return false
	}
	return true
}

// RootController 服务信息
type RootController struct {
	BaseController
}

func (c *RootController) Index() {
	c.JSONSuccess(map[string]string{
		"service": "testweaver",
		"purpose": "retrieval-augmented agent memory",
	})
}

// HealthController 健康检查
type HealthController struct {
	BaseController
}

func (c *HealthController) Health() {
	c.JSONSuccess(map[string]string{"status": "ok"})
}
