package llm

import (
	"context"
	"errors"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	apperrors "github.com/aihub/testweaver-go/internal/errors"
	"github.com/aihub/testweaver-go/internal/logger"
)

// Message 一条对话消息
type Message struct {
	Role    string
	Content string
}

// Client 文本生成客户端，对外是单次调用的黑盒
type Client interface {
	Chat(ctx context.Context, messages []Message) (string, error)
	Ready() bool
}

// Options LLM客户端配置
type Options struct {
	APIKey      string
	BaseURL     string
	Model       string
	MaxTokens   int
	Temperature float64
	MaxRetries  int
}

type openAIClient struct {
	client      *openai.Client
	model       string
	maxTokens   int
	temperature float64
	maxRetries  int
}

// NewClient 创建OpenAI兼容的chat-completion客户端
func NewClient(opts Options) Client {
	if strings.TrimSpace(opts.APIKey) == "" {
		return &noopClient{}
	}
	if opts.Model == "" {
		opts.Model = "gpt-4o-mini"
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 3
	}

	cfg := openai.DefaultConfig(opts.APIKey)
	if opts.BaseURL != "" {
		cfg.BaseURL = opts.BaseURL
	}

	return &openAIClient{
		client:      openai.NewClientWithConfig(cfg),
		model:       opts.Model,
		maxTokens:   opts.MaxTokens,
		temperature: opts.Temperature,
		maxRetries:  opts.MaxRetries,
	}
}

// Chat 单次补全调用，限流时有限重试
func (c *openAIClient) Chat(ctx context.Context, messages []Message) (string, error) {
	chatMessages := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, msg := range messages {
		chatMessages = append(chatMessages, openai.ChatCompletionMessage{
			Role:    msg.Role,
			Content: msg.Content,
		})
	}

	req := openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    chatMessages,
		MaxTokens:   c.maxTokens,
		Temperature: float32(c.temperature),
	}

	backoff := time.Second
	var lastErr error
	for attempt := 1; attempt <= c.maxRetries; attempt++ {
		resp, err := c.client.CreateChatCompletion(ctx, req)
		if err == nil {
			if len(resp.Choices) == 0 {
				return "", apperrors.NewBackendRejectedError("llm returned no choices")
			}
			return resp.Choices[0].Message.Content, nil
		}

		lastErr = err
		if !isRateLimited(err) || ctx.Err() != nil {
			break
		}
		logger.Warn("llm rate limited, backing off",
			zap.Int("attempt", attempt),
			zap.Duration("backoff", backoff))
		select {
		case <-ctx.Done():
			return "", apperrors.NewBackendUnavailableError("llm request cancelled").WithCause(ctx.Err())
		case <-time.After(backoff):
		}
		backoff *= 2
	}

	return "", apperrors.NewBackendUnavailableError("llm request failed").WithCause(lastErr)
}

func (c *openAIClient) Ready() bool {
	return c.client != nil
}

func isRateLimited(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == 429
	}
	return false
}

// noopClient API key未配置时的占位实现
type noopClient struct{}

func (n *noopClient) Chat(ctx context.Context, messages []Message) (string, error) {
	return "", apperrors.NewBackendUnavailableError("llm provider not configured")
}

func (n *noopClient) Ready() bool { return false }
