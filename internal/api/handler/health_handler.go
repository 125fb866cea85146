package handler

import (
	"context"
	"time"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/common/utils"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
)

// HealthCheck 单个依赖的探活函数
type HealthCheck struct {
	Name     string
	Required bool // 必需依赖失败时返回503
	Check    func(ctx context.Context) error
}

// HealthHandler GET /health
type HealthHandler struct {
	checks  []HealthCheck
	timeout time.Duration
}

// NewHealthHandler 创建健康检查处理器
func NewHealthHandler(checks ...HealthCheck) *HealthHandler {
	return &HealthHandler{checks: checks, timeout: 2 * time.Second}
}

func (h *HealthHandler) Health(ctx context.Context, c *app.RequestContext) {
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	status := "ok"
	code := consts.StatusOK
	components := make(map[string]string, len(h.checks))
	for _, check := range h.checks {
		if err := check.Check(ctx); err != nil {
			components[check.Name] = err.Error()
			if check.Required {
				status = "unavailable"
				code = consts.StatusServiceUnavailable
			} else if status == "ok" {
				status = "degraded"
			}
			continue
		}
		components[check.Name] = "ok"
	}
	c.JSON(code, utils.H{"status": status, "components": components})
}
