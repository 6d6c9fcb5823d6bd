package memory

import (
	"context"
	"strings"

	"github.com/google/uuid"

	apperrors "github.com/aihub/testweaver-go/internal/errors"
	"github.com/aihub/testweaver-go/internal/knowledge"
)

// Recalled 长期记忆的检索命中
type Recalled struct {
	LogicalID string            `json:"logical_id"`
	Text      string            `json:"text"`
	Score     float64           `json:"score"`
	Meta      map[string]string `json:"meta"`
}

// LongTermMemory 向量库支撑的长期记忆
// 在VectorStore之上提供领域操作：记住、回忆、遗忘
type LongTermMemory struct {
	store    knowledge.VectorStore
	embedder knowledge.Embedder
	chunker  *knowledge.Chunker
}

// NewLongTermMemory 创建长期记忆
func NewLongTermMemory(store knowledge.VectorStore, embedder knowledge.Embedder, chunker *knowledge.Chunker) *LongTermMemory {
	return &LongTermMemory{
		store:    store,
		embedder: embedder,
		chunker:  chunker,
	}
}

// Store 返回底层向量存储
func (m *LongTermMemory) Store() knowledge.VectorStore { return m.store }

// Embedder 返回向量化器
func (m *LongTermMemory) Embedder() knowledge.Embedder { return m.embedder }

// Remember 存入一条临时事实：分块、向量化、幂等upsert
// 返回首块的逻辑ID
func (m *LongTermMemory) Remember(ctx context.Context, text string, meta map[string]string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", apperrors.NewInvalidInputError("text", "must not be empty")
	}

	if meta == nil {
		meta = map[string]string{}
	}
	sourceType := meta["source_type"]
	if sourceType == "" {
		sourceType = knowledge.SourceTypeNote
	}
	sourceName := meta["source_name"]
	if sourceName == "" {
		sourceName = uuid.NewString()
	}

	chunks := m.chunker.Split(text)
	texts := make([]string, 0, len(chunks))
	for _, chunk := range chunks {
		texts = append(texts, chunk.Text)
	}

	vectors, err := m.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return "", err
	}

	points := make([]knowledge.Point, 0, len(chunks))
	for i, chunk := range chunks {
		logicalID := knowledge.LogicalID(sourceType, sourceName, chunk.Index)
		chunkMeta := map[string]string{
			"source_type": sourceType,
			"source_name": sourceName,
		}
		for k, v := range meta {
			if k == "source_type" || k == "source_name" {
				continue
			}
			chunkMeta[k] = v
		}
		points = append(points, knowledge.Point{
			ID:     knowledge.PointID(logicalID),
			Vector: vectors[i],
			Payload: knowledge.Payload{
				LogicalID: logicalID,
				Text:      chunk.Text,
				Meta:      chunkMeta,
			},
		})
	}

	if _, err := m.store.Upsert(ctx, points); err != nil {
		return "", err
	}

	return knowledge.LogicalID(sourceType, sourceName, 0), nil
}

// Recall 语义检索：向量化查询文本，返回按相关度降序的命中
// 空库返回空序列，不是错误
func (m *LongTermMemory) Recall(ctx context.Context, query string, topK int) ([]Recalled, error) {
	if strings.TrimSpace(query) == "" {
		return nil, nil
	}
	if topK <= 0 {
		topK = 5
	}

	vector, err := m.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}

	hits, err := m.store.Query(ctx, vector, topK, nil)
	if err != nil {
		return nil, err
	}

	recalled := make([]Recalled, 0, len(hits))
	for _, hit := range hits {
		recalled = append(recalled, Recalled{
			LogicalID: hit.Payload.LogicalID,
			Text:      hit.Payload.Text,
			Score:     hit.Score,
			Meta:      hit.Payload.Meta,
		})
	}
	return recalled, nil
}

// Forget 按逻辑ID删除一个块
// 只命中精确匹配的逻辑ID，不影响共享source_name前缀的其他块。
// 目标不存在返回false，不是错误。
func (m *LongTermMemory) Forget(ctx context.Context, logicalID string) (bool, error) {
	sourceType, sourceName, _, ok := knowledge.ParseLogicalID(logicalID)
	if !ok {
		return false, apperrors.NewInvalidInputError("logical_id",
			"must match <source_type>:<source_name>:chunk:<index>")
	}

	// 存在性检查限定在同一来源内，避免全库扫描
	payloads, err := m.store.List(ctx, &knowledge.Filter{
		SourceType: sourceType,
		SourceName: sourceName,
	})
	if err != nil {
		return false, err
	}

	found := false
	for _, payload := range payloads {
		if payload.LogicalID == logicalID {
			found = true
			break
		}
	}
	if !found {
		return false, nil
	}

	if err := m.store.Delete(ctx, []uint64{knowledge.PointID(logicalID)}); err != nil {
		return false, err
	}
	return true, nil
}
