package controllers

import (
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/aihub/testweaver-go/app/bootstrap"
	apperrors "github.com/aihub/testweaver-go/internal/errors"
	"github.com/aihub/testweaver-go/internal/knowledge"
	"github.com/aihub/testweaver-go/internal/services"
)

// IngestController 文档摄取入口
type IngestController struct {
	BaseController
}

// IngestFile 摄取上传的文件（PDF/docx/文本）
// multipart字段：file
func (c *IngestController) IngestFile() {
	app := bootstrap.GetApp()

	file, header, err := c.GetFile("file")
	if err != nil {
		c.JSONError(http.StatusBadRequest, "missing multipart field 'file'")
		return
	}
	defer file.Close()

	if header.Size > app.Config.Knowledge.Upload.MaxSize {
		c.JSONError(http.StatusRequestEntityTooLarge, "file exceeds upload limit")
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		c.JSONError(http.StatusBadRequest, "cannot read uploaded file")
		return
	}

	result, err := app.Ingestion.Ingest(c.Ctx.Request.Context(), services.IngestRequest{
		SourceType: sourceTypeForFilename(header.Filename),
		SourceName: header.Filename,
		Data:       data,
	})
	if err != nil {
		c.JSONAppError(err)
		return
	}
	c.JSONSuccess(result)
}

// SwaggerIngestRequest Swagger摄取请求
type SwaggerIngestRequest struct {
	URL string `json:"url" validate:"required,url"`
}

// IngestSwagger 拉取OpenAPI JSON并摄取
func (c *IngestController) IngestSwagger() {
	app := bootstrap.GetApp()

	var req SwaggerIngestRequest
	if !c.bindAndValidate(&req) {
		return
	}

	data, err := fetchSwaggerJSON(req.URL)
	if err != nil {
		c.JSONAppError(err)
		return
	}

	result, err := app.Ingestion.Ingest(c.Ctx.Request.Context(), services.IngestRequest{
		SourceType: knowledge.SourceTypeSwagger,
		SourceName: req.URL,
		Data:       data,
	})
	if err != nil {
		c.JSONAppError(err)
		return
	}
	c.JSONSuccess(result)
}

func sourceTypeForFilename(filename string) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".pdf":
		return knowledge.SourceTypePDF
	case ".docx", ".doc":
		return knowledge.SourceTypeWord
	case ".json":
		return knowledge.SourceTypeSwagger
	default:
		return knowledge.SourceTypeText
	}
}

var swaggerHTTPClient = &http.Client{Timeout: 10 * time.Second}

// fetchSwaggerJSON 拉取OpenAPI文档，拉取失败归类为源解析错误
func fetchSwaggerJSON(url string) ([]byte, error) {
	resp, err := swaggerHTTPClient.Get(url)
	if err != nil {
		return nil, apperrors.NewExtractionError(url, "swagger url unreachable").WithCause(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, apperrors.NewExtractionError(url, "swagger fetch failed: "+resp.Status)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return nil, apperrors.NewExtractionError(url, "cannot read swagger response").WithCause(err)
	}
	return data, nil
}
