package controllers

import (
	"github.com/google/uuid"

	"github.com/aihub/testweaver-go/app/bootstrap"
)

// ChatController 对话与会话记忆入口
type ChatController struct {
	BaseController
}

// ChatRequest 一轮对话请求
type ChatRequest struct {
	SessionID   string `json:"session_id"`
	Message     string `json:"message" validate:"required"`
	QueryForRAG string `json:"query_for_rag"`
}

// Chat 处理一轮对话
func (c *ChatController) Chat() {
	app := bootstrap.GetApp()

	var req ChatRequest
	if !c.bindAndValidate(&req) {
		return
	}
	if req.SessionID == "" {
		req.SessionID = uuid.NewString()
	}

	reply, err := app.Agent.Chat(c.Ctx.Request.Context(), req.SessionID, req.Message, req.QueryForRAG)
	if err != nil {
		c.JSONAppError(err)
		return
	}
	c.JSONSuccess(map[string]string{
		"session_id": req.SessionID,
		"reply":      reply,
	})
}

// RecallRequest 长期记忆检索请求
type RecallRequest struct {
	SessionID string `json:"session_id"`
	Query     string `json:"query" validate:"required"`
	TopK      int    `json:"top_k"`
}

// Recall 检索长期记忆，按相关度降序返回
func (c *ChatController) Recall() {
	app := bootstrap.GetApp()

	var req RecallRequest
	if !c.bindAndValidate(&req) {
		return
	}

	recalls, err := app.Agent.Recall(c.Ctx.Request.Context(), req.Query, req.TopK)
	if err != nil {
		c.JSONAppError(err)
		return
	}
	c.JSONSuccess(map[string]interface{}{
		"count":   len(recalls),
		"results": recalls,
	})
}

// RememberRequest 存入临时事实请求
type RememberRequest struct {
	Text string            `json:"text" validate:"required"`
	Meta map[string]string `json:"meta"`
}

// Remember 将一条事实写入长期记忆，返回首块逻辑ID
func (c *ChatController) Remember() {
	app := bootstrap.GetApp()

	var req RememberRequest
	if !c.bindAndValidate(&req) {
		return
	}

	logicalID, err := app.LongTerm.Remember(c.Ctx.Request.Context(), req.Text, req.Meta)
	if err != nil {
		c.JSONAppError(err)
		return
	}
	c.JSONSuccess(map[string]string{"logical_id": logicalID})
}

// TurnRequest 追加会话轮次请求
type TurnRequest struct {
	Role string `json:"role" validate:"required,oneof=user assistant system"`
	Text string `json:"text" validate:"required"`
}

// AppendTurn 向会话短期记忆追加一轮发言
func (c *ChatController) AppendTurn() {
	app := bootstrap.GetApp()

	sessionID := c.Ctx.Input.Param(":session_id")
	var req TurnRequest
	if !c.bindAndValidate(&req) {
		return
	}

	app.ShortTerm.Append(sessionID, req.Role, req.Text)
	c.JSONSuccess(map[string]interface{}{
		"session_id": sessionID,
		"turns":      len(app.ShortTerm.History(sessionID)),
	})
}

// History 返回会话历史（时间升序）
func (c *ChatController) History() {
	app := bootstrap.GetApp()

	sessionID := c.Ctx.Input.Param(":session_id")
	c.JSONSuccess(map[string]interface{}{
		"session_id": sessionID,
		"turns":      app.ShortTerm.History(sessionID),
	})
}

// ClearSession 清空会话短期记忆
func (c *ChatController) ClearSession() {
	app := bootstrap.GetApp()

	sessionID := c.Ctx.Input.Param(":session_id")
	app.ShortTerm.Clear(sessionID)
	c.JSONSuccess(map[string]string{"session_id": sessionID})
}
