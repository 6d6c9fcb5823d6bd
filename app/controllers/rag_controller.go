package controllers

import (
	"net/http"

	"github.com/aihub/testweaver-go/app/bootstrap"
	"github.com/aihub/testweaver-go/internal/knowledge"
)

// RAGController 长期记忆的查询与管理
type RAGController struct {
	BaseController
}

// ListDocs 列出已存文档（按来源聚合）
func (c *RAGController) ListDocs() {
	app := bootstrap.GetApp()

	docs, err := app.Documents.ListDocuments(c.Ctx.Request.Context())
	if err != nil {
		c.JSONAppError(err)
		return
	}
	c.JSONSuccess(map[string]interface{}{
		"count": len(docs),
		"docs":  docs,
	})
}

// ListChunks 列出存储块预览
// 可选query参数：source_type, source_name, preview_chars
func (c *RAGController) ListChunks() {
	app := bootstrap.GetApp()

	var filter *knowledge.Filter
	sourceType := c.GetString("source_type")
	sourceName := c.GetString("source_name")
	if sourceType != "" || sourceName != "" {
		filter = &knowledge.Filter{SourceType: sourceType, SourceName: sourceName}
	}
	previewChars, _ := c.GetInt("preview_chars", 200)

	chunks, err := app.Documents.ListChunks(c.Ctx.Request.Context(), filter, previewChars)
	if err != nil {
		c.JSONAppError(err)
		return
	}
	c.JSONSuccess(map[string]interface{}{
		"count":  len(chunks),
		"chunks": chunks,
	})
}

// DeleteChunk 按逻辑ID删除一个块
func (c *RAGController) DeleteChunk() {
	app := bootstrap.GetApp()

	logicalID := c.GetString("logical_id")
	if logicalID == "" {
		c.JSONError(http.StatusBadRequest, "missing query parameter 'logical_id'")
		return
	}

	found, err := app.Documents.DeleteChunk(c.Ctx.Request.Context(), logicalID)
	if err != nil {
		c.JSONAppError(err)
		return
	}
	if !found {
		c.JSONError(http.StatusNotFound, "chunk not found")
		return
	}
	c.JSONSuccess(map[string]interface{}{"deleted": logicalID})
}
