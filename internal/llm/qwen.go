package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"career-agent-go/internal/logger"
	"career-agent-go/internal/tracing"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	// DefaultBaseURL DashScope 的 OpenAI 兼容接口
	DefaultBaseURL     = "https://dashscope.aliyuncs.com/compatible-mode/v1"
	DefaultModel       = "qwen-turbo"
	DefaultTemperature = 0.7
	DefaultMaxTokens   = 4096
	DefaultTimeout     = 60 * time.Second

	// 错误信息中保留的响应体长度
	maxErrorBodyLength = 512
)

var llmTracer = otel.Tracer("career-agent-go/llm")

var _ model.BaseChatModel = (*QwenClient)(nil)

// QwenClient 通过 OpenAI 兼容的 chat/completions 接口调用通义千问
type QwenClient struct {
	apiKey      string
	baseURL     string
	model       string
	temperature float64
	maxTokens   int
	httpClient  *http.Client
	logger      *zerolog.Logger
}

// QwenOption 配置 QwenClient
type QwenOption func(*QwenClient)

// WithBaseURL 设置接口地址（不含 /chat/completions）
func WithBaseURL(url string) QwenOption {
	return func(c *QwenClient) {
		if strings.TrimSpace(url) != "" {
			c.baseURL = strings.TrimRight(url, "/")
		}
	}
}

// WithModel 设置模型名
func WithModel(model string) QwenOption {
	return func(c *QwenClient) {
		if strings.TrimSpace(model) != "" {
			c.model = model
		}
	}
}

// WithTimeout 设置单次请求超时
func WithTimeout(timeout time.Duration) QwenOption {
	return func(c *QwenClient) {
		if timeout > 0 {
			c.httpClient.Timeout = timeout
		}
	}
}

// WithSampling 设置采样参数，所有调用共用
func WithSampling(temperature float64, maxTokens int) QwenOption {
	return func(c *QwenClient) {
		if temperature > 0 {
			c.temperature = temperature
		}
		if maxTokens > 0 {
			c.maxTokens = maxTokens
		}
	}
}

// WithHTTPClient 替换底层HTTP客户端
func WithHTTPClient(client *http.Client) QwenOption {
	return func(c *QwenClient) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithQwenLogger 设置日志记录器
func WithQwenLogger(l *zerolog.Logger) QwenOption {
	return func(c *QwenClient) {
		c.logger = l
	}
}

// NewQwenClient 创建客户端，apiKey 不能为空
func NewQwenClient(apiKey string, opts ...QwenOption) (*QwenClient, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("API 密钥不能为空")
	}

	c := &QwenClient{
		apiKey:      apiKey,
		baseURL:     DefaultBaseURL,
		model:       DefaultModel,
		temperature: DefaultTemperature,
		maxTokens:   DefaultMaxTokens,
		httpClient:  &http.Client{Timeout: DefaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = &logger.Logger
	}

	c.logger.Info().
		Str("base_url", c.baseURL).
		Str("model", c.model).
		Dur("timeout", c.httpClient.Timeout).
		Msg("使用通义千问 LLM 客户端")
	return c, nil
}

// ModelName 实现 ModelNamer
func (c *QwenClient) ModelName() string {
	return c.model
}

type chatCompletionRequest struct {
	Model       string            `json:"model"`
	Messages    []*schema.Message `json:"messages"`
	Temperature float64           `json:"temperature"`
	MaxTokens   int               `json:"max_tokens"`
}

type chatMessage struct {
	Role    string  `json:"role"`
	Content *string `json:"content"`
}

type chatChoice struct {
	Index        int         `json:"index"`
	Message      chatMessage `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

type chatCompletionResponse struct {
	ID      string       `json:"id"`
	Model   string       `json:"model"`
	Choices []chatChoice `json:"choices"`
	Usage   struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

// Chat 实现 Client。不做重试，重试由调用方决定。
func (c *QwenClient) Chat(ctx context.Context, systemPrompt, userMessage string) (string, error) {
	messages := make([]*schema.Message, 0, 2)
	if systemPrompt != "" {
		messages = append(messages, schema.SystemMessage(systemPrompt))
	}
	messages = append(messages, schema.UserMessage(userMessage))

	reply, err := c.Generate(ctx, messages)
	if err != nil {
		return "", err
	}
	return reply.Content, nil
}

// Generate 实现 Eino 的 model.BaseChatModel，opts 中的温度和最大 token 数覆盖客户端配置
func (c *QwenClient) Generate(ctx context.Context, messages []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	temperature, maxTokens := c.temperature, c.maxTokens
	options := model.GetCommonOptions(&model.Options{}, opts...)
	if options.Temperature != nil {
		temperature = float64(*options.Temperature)
	}
	if options.MaxTokens != nil {
		maxTokens = *options.MaxTokens
	}

	promptLength := 0
	for _, m := range messages {
		promptLength += len(m.Content)
	}
	ctx, span := llmTracer.Start(ctx, "llm.chat",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("llm.model", c.model),
			attribute.Int("llm.message_count", len(messages)),
			attribute.Int("llm.prompt_length", promptLength),
		))
	defer span.End()

	reqPayload := chatCompletionRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: temperature,
		MaxTokens:   maxTokens,
	}
	jsonData, err := json.Marshal(reqPayload)
	if err != nil {
		return nil, fmt.Errorf("序列化请求体失败: %w", err)
	}

	url := c.baseURL + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("创建 HTTP 请求失败: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	start := time.Now()
	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		reqErr := &RequestFailedError{Cause: err}
		tracing.RecordError(span, reqErr, tracing.ErrorTypeLLM)
		c.logger.Error().Err(err).Str("model", c.model).Msg("大模型请求发送失败")
		return nil, reqErr
	}
	defer httpResp.Body.Close()

	bodyBytes, err := io.ReadAll(httpResp.Body)
	if err != nil {
		reqErr := &RequestFailedError{StatusCode: httpResp.StatusCode, Cause: fmt.Errorf("读取响应体失败: %w", err)}
		tracing.RecordError(span, reqErr, tracing.ErrorTypeLLM)
		return nil, reqErr
	}
	span.SetAttributes(attribute.Int("http.status_code", httpResp.StatusCode))

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		reqErr := &RequestFailedError{
			StatusCode: httpResp.StatusCode,
			Body:       tracing.TruncateString(string(bodyBytes), maxErrorBodyLength),
		}
		tracing.RecordHTTPError(span, reqErr, httpResp.StatusCode)
		c.logger.Error().
			Int("status", httpResp.StatusCode).
			Str("model", c.model).
			Str("body", tracing.SafePrompt(string(bodyBytes))).
			Msg("大模型返回非2xx状态")
		return nil, reqErr
	}

	var resp chatCompletionResponse
	if err := json.Unmarshal(bodyBytes, &resp); err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeLLM)
		return nil, fmt.Errorf("%w: 反序列化响应失败: %v", ErrResponseMalformed, err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == nil {
		tracing.RecordError(span, ErrResponseMalformed, tracing.ErrorTypeLLM)
		return nil, fmt.Errorf("%w: %s", ErrResponseMalformed, tracing.SafePrompt(string(bodyBytes)))
	}

	content := *resp.Choices[0].Message.Content
	span.SetAttributes(
		attribute.Int("llm.completion_length", len(content)),
		attribute.Int("llm.usage.total_tokens", resp.Usage.TotalTokens),
	)
	c.logger.Debug().
		Str("model", c.model).
		Dur("elapsed", time.Since(start)).
		Int("completion_length", len(content)).
		Int("total_tokens", resp.Usage.TotalTokens).
		Msg("大模型调用完成")
	return schema.AssistantMessage(content, nil), nil
}

// Stream 不支持流式输出
func (c *QwenClient) Stream(ctx context.Context, messages []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, fmt.Errorf("qwen 客户端不支持流式输出")
}
