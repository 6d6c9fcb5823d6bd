package services

import (
	"context"
	"fmt"
	"time"

	"github.com/aihub/testweaver-go/internal/llm"
	"github.com/aihub/testweaver-go/internal/memory"
)

const defaultSystemPrompt = `You are TestWeaver, an assistant for API and test engineering questions.
Ground your answers in the provided <context> block when it is present.
If the context does not cover the question, say so instead of guessing.`

// AgentService 对话代理：装配上下文、调用LLM、维护会话记忆
type AgentService struct {
	assembler    *ContextAssembler
	shortTerm    *memory.ShortTermMemory
	client       llm.Client
	metrics      *MetricsService
	systemPrompt string
	recallTopK   int
}

// NewAgentService 创建对话代理
func NewAgentService(assembler *ContextAssembler, shortTerm *memory.ShortTermMemory, client llm.Client, metrics *MetricsService, recallTopK int) *AgentService {
	if recallTopK <= 0 {
		recallTopK = 5
	}
	return &AgentService{
		assembler:    assembler,
		shortTerm:    shortTerm,
		client:       client,
		metrics:      metrics,
		systemPrompt: defaultSystemPrompt,
		recallTopK:   recallTopK,
	}
}

// Chat 处理一轮对话
// ragQuery非空时检索长期记忆注入上下文；
// 用户与助手的发言在成功后写入短期记忆
func (s *AgentService) Chat(ctx context.Context, sessionID, userMessage, ragQuery string) (string, error) {
	assembled, err := s.assembler.BuildContext(ctx, sessionID, ragQuery, s.recallTopK)
	if err != nil {
		return "", err
	}

	messages := []llm.Message{{Role: "system", Content: s.systemPrompt}}
	for _, turn := range assembled.History {
		messages = append(messages, llm.Message{Role: turn.Role, Content: turn.Text})
	}
	if contextBlock := RenderRecalls(assembled.Recalls); contextBlock != "" {
		messages = append(messages, llm.Message{
			Role:    "user",
			Content: fmt.Sprintf("<context>\n%s\n</context>", contextBlock),
		})
	}
	messages = append(messages, llm.Message{Role: "user", Content: userMessage})

	reply, err := s.client.Chat(ctx, messages)
	if err != nil {
		return "", err
	}

	s.shortTerm.Append(sessionID, "user", userMessage)
	s.shortTerm.Append(sessionID, "assistant", reply)
	return reply, nil
}

// Recall 直接检索长期记忆，供HTTP层与agent消费
func (s *AgentService) Recall(ctx context.Context, query string, topK int) ([]memory.Recalled, error) {
	if topK <= 0 {
		topK = s.recallTopK
	}
	start := time.Now()
	recalls, err := s.assembler.longTerm.Recall(ctx, query, topK)
	if err != nil {
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.ObserveRecall(len(recalls), time.Since(start))
	}
	return recalls, nil
}
