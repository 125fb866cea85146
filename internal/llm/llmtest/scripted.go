// Package llmtest 提供测试用的大模型客户端
package llmtest

import (
	"context"
	"errors"
	"sync"
)

// Response 单次调用的预设结果
type Response struct {
	Content string
	Err     error
}

// Call 记录一次收到的调用
type Call struct {
	SystemPrompt string
	UserMessage  string
}

// ScriptedClient 按顺序返回预设结果，并记录收到的每次调用
type ScriptedClient struct {
	mu        sync.Mutex
	responses []Response
	index     int
	calls     []Call
}

// ErrNoMoreResponses 预设结果已用完
var ErrNoMoreResponses = errors.New("scripted client has run out of responses")

// NewScriptedClient 创建按顺序返回 responses 的客户端
func NewScriptedClient(responses ...Response) *ScriptedClient {
	return &ScriptedClient{responses: responses}
}

// Chat 实现 llm.Client
func (s *ScriptedClient) Chat(ctx context.Context, systemPrompt, userMessage string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls = append(s.calls, Call{SystemPrompt: systemPrompt, UserMessage: userMessage})
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if s.index >= len(s.responses) {
		return "", ErrNoMoreResponses
	}
	resp := s.responses[s.index]
	s.index++
	return resp.Content, resp.Err
}

// ModelName 实现 llm.ModelNamer
func (s *ScriptedClient) ModelName() string {
	return "scripted"
}

// Calls 返回已收到的调用副本
func (s *ScriptedClient) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Call, len(s.calls))
	copy(out, s.calls)
	return out
}
