// Package llm 封装与大模型的交互：一次调用 = 一条可选的 system 消息 + 一条 user 消息，返回助手文本。
package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"career-agent-go/internal/config"
)

var (
	// ErrRequestFailed 传输失败或非2xx响应
	ErrRequestFailed = errors.New("大模型请求失败")
	// ErrResponseMalformed 2xx响应中缺少 choices[0].message.content
	ErrResponseMalformed = errors.New("大模型响应格式错误")
)

// Client 大模型对话客户端。实现必须可并发调用。
type Client interface {
	// Chat 发送一次对话请求，systemPrompt 为空时不发送 system 消息
	Chat(ctx context.Context, systemPrompt, userMessage string) (string, error)
}

// ModelNamer 可选接口，返回实际使用的模型名
type ModelNamer interface {
	ModelName() string
}

// ModelNameOf 取客户端的模型名，无法获取时返回空串
func ModelNameOf(c Client) string {
	if n, ok := c.(ModelNamer); ok {
		return n.ModelName()
	}
	return ""
}

// RequestFailedError 请求失败的详细信息。StatusCode 为0表示未拿到HTTP响应。
type RequestFailedError struct {
	StatusCode int
	Body       string
	Cause      error
}

func (e *RequestFailedError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: HTTP %d: %s", ErrRequestFailed, e.StatusCode, e.Body)
	}
	return fmt.Sprintf("%s: %v", ErrRequestFailed, e.Cause)
}

func (e *RequestFailedError) Unwrap() error {
	return e.Cause
}

// Is 实现 errors.Is 接口以支持错误比较
func (e *RequestFailedError) Is(target error) bool {
	return target == ErrRequestFailed
}

// Retryable 传输失败、429 和 5xx 可重试，调用方取消不重试
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var rf *RequestFailedError
	if !errors.As(err, &rf) {
		return false
	}
	return rf.StatusCode == 0 ||
		rf.StatusCode == http.StatusTooManyRequests ||
		rf.StatusCode >= http.StatusInternalServerError
}

// 可选的 llm.provider
const (
	ProviderQwen = "qwen"
	ProviderEino = "eino"
)

// NewClient 按配置构造客户端：mock 模式返回固定结果，否则调用远端并按配置叠加重试和限流
func NewClient(cfg config.LLMConfig) (Client, error) {
	if cfg.MockMode {
		return NewMockClient(), nil
	}

	var client Client
	qwen, err := NewQwenClient(cfg.APIKey,
		WithBaseURL(cfg.BaseURL),
		WithModel(cfg.Model),
		WithTimeout(time.Duration(cfg.TimeoutSeconds)*time.Second),
		WithSampling(cfg.Temperature, cfg.MaxTokens),
	)
	if err != nil {
		return nil, err
	}
	switch cfg.Provider {
	case "", ProviderQwen:
		client = qwen
	case ProviderEino:
		// 经 Eino ChatModel 接口调用，便于替换为其他 Eino 模型实现
		client = NewChatModelClient(qwen, qwen.ModelName())
	default:
		return nil, fmt.Errorf("不支持的大模型提供方: %s", cfg.Provider)
	}

	if cfg.MaxRetries > 0 {
		client = NewRetryClient(client, cfg.MaxRetries, time.Duration(cfg.RetryWaitSeconds)*time.Second)
	}
	if cfg.QPM > 0 {
		client = NewRateLimitedClient(client, cfg.QPM)
	}
	return client, nil
}
