package services

import (
	"context"
	"sort"

	"github.com/aihub/testweaver-go/internal/knowledge"
	"github.com/aihub/testweaver-go/internal/memory"
)

// DocumentSummary 按来源聚合的文档摘要
type DocumentSummary struct {
	SourceName string `json:"source_name"`
	SourceType string `json:"source_type"`
	ChunkCount int    `json:"chunk_count"`
}

// ChunkPreview 存储块的预览
type ChunkPreview struct {
	LogicalID   string            `json:"logical_id"`
	Meta        map[string]string `json:"meta"`
	TextPreview string            `json:"text_preview"`
}

// DocumentService 已存文档的查询与删除
type DocumentService struct {
	store    knowledge.VectorStore
	longTerm *memory.LongTermMemory
}

// NewDocumentService 创建文档服务
func NewDocumentService(store knowledge.VectorStore, longTerm *memory.LongTermMemory) *DocumentService {
	return &DocumentService{
		store:    store,
		longTerm: longTerm,
	}
}

// ListDocuments 按(source_name, source_type)聚合所有存储块
func (s *DocumentService) ListDocuments(ctx context.Context) ([]DocumentSummary, error) {
	payloads, err := s.store.List(ctx, nil)
	if err != nil {
		return nil, err
	}

	type key struct{ name, typ string }
	counts := map[key]int{}
	for _, payload := range payloads {
		counts[key{payload.Meta["source_name"], payload.Meta["source_type"]}]++
	}

	summaries := make([]DocumentSummary, 0, len(counts))
	for k, count := range counts {
		summaries = append(summaries, DocumentSummary{
			SourceName: k.name,
			SourceType: k.typ,
			ChunkCount: count,
		})
	}
	sort.Slice(summaries, func(i, j int) bool {
		if summaries[i].SourceName != summaries[j].SourceName {
			return summaries[i].SourceName < summaries[j].SourceName
		}
		return summaries[i].SourceType < summaries[j].SourceType
	})
	return summaries, nil
}

// ListChunks 返回存储块预览，previewChars限制预览长度
func (s *DocumentService) ListChunks(ctx context.Context, filter *knowledge.Filter, previewChars int) ([]ChunkPreview, error) {
	if previewChars <= 0 {
		previewChars = 200
	}

	payloads, err := s.store.List(ctx, filter)
	if err != nil {
		return nil, err
	}

	previews := make([]ChunkPreview, 0, len(payloads))
	for _, payload := range payloads {
		text := payload.Text
		if runes := []rune(text); len(runes) > previewChars {
			text = string(runes[:previewChars])
		}
		previews = append(previews, ChunkPreview{
			LogicalID:   payload.LogicalID,
			Meta:        payload.Meta,
			TextPreview: text,
		})
	}
	sort.Slice(previews, func(i, j int) bool {
		return previews[i].LogicalID < previews[j].LogicalID
	})
	return previews, nil
}

// DeleteChunk 按逻辑ID删除一个块，返回是否存在
func (s *DocumentService) DeleteChunk(ctx context.Context, logicalID string) (bool, error) {
	return s.longTerm.Forget(ctx, logicalID)
}
