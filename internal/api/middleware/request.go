package middleware

import (
	"context"
	"time"

	"career-agent-go/internal/constants"
	"career-agent-go/internal/logger"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/google/uuid"
)

// RequestID 为每个请求分配ID，写入响应头，并把带 request_id 的 logger 放进 context
func RequestID() app.HandlerFunc {
	return func(ctx context.Context, c *app.RequestContext) {
		id := string(c.GetHeader(constants.HeaderRequestID))
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(constants.ContextKeyRequestID, id)
		c.Response.Header.Set(constants.HeaderRequestID, id)
		c.Next(logger.WithRequestID(ctx, id))
	}
}

// AccessLog 请求完成后记录一条访问日志
func AccessLog() app.HandlerFunc {
	return func(ctx context.Context, c *app.RequestContext) {
		start := time.Now()
		c.Next(ctx)

		status := c.Response.StatusCode()
		event := logger.Info()
		if status >= 500 {
			event = logger.Error()
		} else if status >= 400 {
			event = logger.Warn()
		}
		if id, ok := c.Get(constants.ContextKeyRequestID); ok {
			event = event.Interface("request_id", id)
		}
		if userID, ok := UserID(c); ok {
			event = event.Uint64("user_id", userID)
		}
		event.
			Str("method", string(c.Method())).
			Str("path", string(c.Path())).
			Int("status", status).
			Dur("latency", time.Since(start)).
			Msg("request")
	}
}
