package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/aihub/testweaver-go/internal/memory"
)

// AssembledContext 为一轮对话装配的上下文
type AssembledContext struct {
	History []memory.Turn
	Recalls []memory.Recalled
}

// ContextAssembler 检索装配器
// 合并短期会话历史与长期记忆命中，产出有界的agent上下文
type ContextAssembler struct {
	shortTerm       *memory.ShortTermMemory
	longTerm        *memory.LongTermMemory
	maxContextChars int
}

// NewContextAssembler 创建检索装配器
func NewContextAssembler(shortTerm *memory.ShortTermMemory, longTerm *memory.LongTermMemory, maxContextChars int) *ContextAssembler {
	if maxContextChars <= 0 {
		maxContextChars = 12000
	}
	return &ContextAssembler{
		shortTerm:       shortTerm,
		longTerm:        longTerm,
		maxContextChars: maxContextChars,
	}
}

// BuildContext 装配一轮对话的上下文
// 历史永远保留；长期命中按分数降序纳入，与历史逐字重复的丢弃，
// 超出字符预算时先丢分数最低的命中
func (a *ContextAssembler) BuildContext(ctx context.Context, sessionID, query string, topK int) (AssembledContext, error) {
	history := a.shortTerm.History(sessionID)

	assembled := AssembledContext{History: history}
	if strings.TrimSpace(query) == "" {
		return assembled, nil
	}

	recalls, err := a.longTerm.Recall(ctx, query, topK)
	if err != nil {
		return AssembledContext{}, err
	}

	// 逐字去重：历史里已出现的块不重复注入
	seen := make(map[string]bool, len(history))
	for _, turn := range history {
		seen[turn.Text] = true
	}

	budget := a.maxContextChars
	for _, turn := range history {
		budget -= len([]rune(turn.Text))
	}

	// recalls已按分数降序，预算不足时后面的（低分）先被丢弃
	for _, recall := range recalls {
		if seen[recall.Text] {
			continue
		}
		cost := len([]rune(recall.Text))
		if cost > budget {
			break
		}
		budget -= cost
		assembled.Recalls = append(assembled.Recalls, recall)
	}

	return assembled, nil
}

// RenderRecalls 将长期命中渲染为提示词中的上下文块
func RenderRecalls(recalls []memory.Recalled) string {
	if len(recalls) == 0 {
		return ""
	}
	parts := make([]string, 0, len(recalls))
	for _, recall := range recalls {
		parts = append(parts, fmt.Sprintf("[DOC %s | %s] %s",
			recall.LogicalID, recall.Meta["source_type"], recall.Text))
	}
	return strings.Join(parts, "\n\n")
}
