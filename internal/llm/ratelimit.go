package llm

import (
	"context"
	"fmt"
	"time"

	"career-agent-go/internal/logger"

	"golang.org/x/time/rate"
)

// RateLimitedClient 对大模型调用进行限流的代理
type RateLimitedClient struct {
	original Client
	limiter  *rate.Limiter
}

// NewRateLimitedClient 按每分钟请求数限流，突发容量为QPM的一半
func NewRateLimitedClient(original Client, qpm int) *RateLimitedClient {
	if qpm <= 0 {
		qpm = 30 // 默认QPM
	}
	burst := qpm / 2
	if burst <= 0 {
		burst = 1
	}
	return &RateLimitedClient{
		original: original,
		limiter:  rate.NewLimiter(rate.Limit(float64(qpm)/60.0), burst),
	}
}

// Chat 等待令牌后转发，ctx 取消时立即返回
func (rl *RateLimitedClient) Chat(ctx context.Context, systemPrompt, userMessage string) (string, error) {
	if err := rl.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("等待限流令牌失败: %w", err)
	}
	return rl.original.Chat(ctx, systemPrompt, userMessage)
}

// ModelName 实现 ModelNamer
func (rl *RateLimitedClient) ModelName() string {
	return ModelNameOf(rl.original)
}

// RetryClient 对可重试错误做有限次数的重试
type RetryClient struct {
	original   Client
	maxRetries int
	wait       time.Duration
}

// NewRetryClient 创建重试代理，第n次重试前等待 n*wait
func NewRetryClient(original Client, maxRetries int, wait time.Duration) *RetryClient {
	if maxRetries < 0 {
		maxRetries = 0
	}
	if wait <= 0 {
		wait = time.Second
	}
	return &RetryClient{original: original, maxRetries: maxRetries, wait: wait}
}

// Chat 只重试 Retryable 的错误，格式错误和4xx直接返回
func (r *RetryClient) Chat(ctx context.Context, systemPrompt, userMessage string) (string, error) {
	var lastErr error
	for attempt := 0; attempt <= r.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(attempt) * r.wait
			logger.Warn().
				Err(lastErr).
				Int("attempt", attempt).
				Dur("backoff", backoff).
				Msg("大模型调用失败，准备重试")

			timer := time.NewTimer(backoff)
			select {
			case <-ctx.Done():
				timer.Stop()
				return "", lastErr
			case <-timer.C:
			}
		}

		content, err := r.original.Chat(ctx, systemPrompt, userMessage)
		if err == nil {
			return content, nil
		}
		lastErr = err
		if !Retryable(err) {
			return "", err
		}
	}
	return "", lastErr
}

// ModelName 实现 ModelNamer
func (r *RetryClient) ModelName() string {
	return ModelNameOf(r.original)
}
