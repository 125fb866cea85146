package llm

import (
	"context"
	"sync"
)

// MockPayload mock 模式下每次调用返回的固定抽取结果
const MockPayload = `{
  "candidateName": "测试用户",
  "contactInfo": {
    "phone": "13800138000",
    "email": "test@example.com",
    "address": null
  },
  "targetPosition": null,
  "summary": "这是一份测试简历的摘要",
  "skills": [
    {"name": "Java", "level": 4, "category": "编程语言", "years": 3},
    {"name": "Spring Boot", "level": 3, "category": "框架", "years": 2}
  ],
  "education": [
    {
      "school": "测试大学",
      "degree": "本科",
      "major": "计算机科学",
      "startDate": "2015-09",
      "endDate": "2019-06",
      "gpa": null,
      "description": null
    }
  ],
  "workExperience": [
    {
      "company": "测试公司",
      "position": "Java开发",
      "department": null,
      "startDate": "2019-07",
      "endDate": "2023-01",
      "description": "负责后端开发",
      "achievements": null
    }
  ],
  "projects": []
}`

// MockClient 不访问网络，任何调用都返回 MockPayload
type MockClient struct {
	mu    sync.Mutex
	calls int
}

// NewMockClient 创建 mock 客户端
func NewMockClient() *MockClient {
	return &MockClient{}
}

// Chat 实现 Client
func (m *MockClient) Chat(ctx context.Context, systemPrompt, userMessage string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
	return MockPayload, nil
}

// ModelName 实现 ModelNamer
func (m *MockClient) ModelName() string {
	return "mock"
}

// Calls 已发生的调用次数
func (m *MockClient) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}
