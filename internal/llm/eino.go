package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// ChatModelClient 把 Eino 的 ChatModel 适配为 Client
type ChatModelClient struct {
	model model.BaseChatModel
	name  string
	opts  []model.Option
}

var _ Client = (*ChatModelClient)(nil)

// NewChatModelClient 包装任意 Eino ChatModel，opts 在每次调用时传入
func NewChatModelClient(m model.BaseChatModel, name string, opts ...model.Option) *ChatModelClient {
	return &ChatModelClient{model: m, name: name, opts: opts}
}

// Chat 实现 Client。模型返回的其他错误包装为 RequestFailedError，空消息视为格式错误
func (c *ChatModelClient) Chat(ctx context.Context, systemPrompt, userMessage string) (string, error) {
	messages := []*schema.Message{
		schema.SystemMessage(systemPrompt),
		schema.UserMessage(userMessage),
	}
	resp, err := c.model.Generate(ctx, messages, c.opts...)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		if errors.Is(err, ErrRequestFailed) || errors.Is(err, ErrResponseMalformed) {
			return "", err
		}
		return "", &RequestFailedError{Cause: err}
	}
	if resp == nil {
		return "", fmt.Errorf("%w: 模型未返回消息", ErrResponseMalformed)
	}
	return resp.Content, nil
}

// ModelName 实现 ModelNamer
func (c *ChatModelClient) ModelName() string {
	return c.name
}
