package knowledge

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/unidoc/unioffice/document"
	"github.com/unidoc/unipdf/v3/extractor"
	"github.com/unidoc/unipdf/v3/model"

	apperrors "github.com/aihub/testweaver-go/internal/errors"
)

// 支持的来源类型，同时是逻辑ID的<source_type>段
const (
	SourceTypePDF     = "pdf"
	SourceTypeText    = "text"
	SourceTypeWord    = "docx"
	SourceTypeSwagger = "swagger"
	SourceTypeNote    = "note"
)

// Extractor 源文本提取器
// Extract返回有序片段：整篇文本的提取器返回单个片段，
// 结构化来源（如OpenAPI）按语义单元返回多个片段，流水线再对超长片段分块
type Extractor interface {
	SourceType() string
	Extract(data []byte, sourceName string) ([]string, error)
}

// ExtractorFor 按来源类型选择提取器
func ExtractorFor(sourceType string) (Extractor, error) {
	switch sourceType {
	case SourceTypePDF:
		return &PDFExtractor{}, nil
	case SourceTypeText:
		return &TextExtractor{}, nil
	case SourceTypeWord:
		return &WordExtractor{}, nil
	case SourceTypeSwagger:
		return &SwaggerExtractor{}, nil
	default:
		return nil, apperrors.NewInvalidInputError("source_type",
			fmt.Sprintf("unsupported source type %q", sourceType))
	}
}

// TextExtractor 纯文本/Markdown提取器
type TextExtractor struct{}

func (p *TextExtractor) SourceType() string { return SourceTypeText }

func (p *TextExtractor) Extract(data []byte, sourceName string) ([]string, error) {
	text := NormalizeWhitespace(string(data))
	if text == "" {
		return nil, nil
	}
	return []string{text}, nil
}

// PDFExtractor PDF文本提取器
type PDFExtractor struct{}

func (p *PDFExtractor) SourceType() string { return SourceTypePDF }

func (p *PDFExtractor) Extract(data []byte, sourceName string) ([]string, error) {
	pdfReader, err := model.NewPdfReader(bytes.NewReader(data))
	if err != nil {
		return nil, apperrors.NewExtractionError(sourceName, "not a readable PDF").WithCause(err)
	}

	numPages, err := pdfReader.GetNumPages()
	if err != nil {
		return nil, apperrors.NewExtractionError(sourceName, "cannot determine page count").WithCause(err)
	}

	var textBuilder strings.Builder
	extracted := 0
	for i := 1; i <= numPages; i++ {
		page, err := pdfReader.GetPage(i)
		if err != nil {
			continue
		}

		ex, err := extractor.New(page)
		if err != nil {
			continue
		}

		text, err := ex.ExtractText()
		if err != nil {
			continue
		}

		textBuilder.WriteString(text)
		textBuilder.WriteString("\n")
		extracted++
	}

	if numPages > 0 && extracted == 0 {
		return nil, apperrors.NewExtractionError(sourceName, "no extractable text on any page")
	}

	text := NormalizeWhitespace(textBuilder.String())
	if text == "" {
		return nil, nil
	}
	return []string{text}, nil
}

// WordExtractor Word文档提取器（仅.docx）
type WordExtractor struct{}

func (p *WordExtractor) SourceType() string { return SourceTypeWord }

func (p *WordExtractor) Extract(data []byte, sourceName string) ([]string, error) {
	if strings.HasSuffix(strings.ToLower(sourceName), ".doc") {
		return nil, apperrors.NewExtractionError(sourceName, "legacy .doc is not supported, use .docx")
	}

	doc, err := document.Read(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, apperrors.NewExtractionError(sourceName, "not a readable docx").WithCause(err)
	}
	defer doc.Close()

	var textBuilder strings.Builder
	for _, para := range doc.Paragraphs() {
		for _, run := range para.Runs() {
			textBuilder.WriteString(run.Text())
		}
		textBuilder.WriteString("\n")
	}

	text := NormalizeWhitespace(textBuilder.String())
	if text == "" {
		return nil, nil
	}
	return []string{text}, nil
}
