package router

import (
	"career-agent-go/internal/api/handler"
	"career-agent-go/internal/api/middleware"
	"career-agent-go/internal/config"

	"github.com/cloudwego/hertz/pkg/app/server"
)

// RegisterRoutes 注册 API 路由，/health 不需要鉴权
func RegisterRoutes(h *server.Hertz, auth config.AuthConfig, resumeHandler *handler.ResumeHandler, healthHandler *handler.HealthHandler) {
	h.Use(middleware.RequestID(), middleware.AccessLog())

	api := h.Group("/api/v1")
	api.GET("/health", healthHandler.Health)

	resume := api.Group("/resume", middleware.NewAuth(auth))
	resume.POST("/upload", resumeHandler.Upload)
	resume.POST("/save-parsed", resumeHandler.SaveParsed)
	resume.GET("", resumeHandler.GetResume)
	resume.GET("/versions", resumeHandler.ListVersions)
	resume.GET("/versions/:id", resumeHandler.GetVersion)
	resume.DELETE("/versions/:id", resumeHandler.DeleteVersion)
	resume.POST("/versions/:id/report", resumeHandler.RegenerateReport)
	resume.GET("/versions/:id/file", resumeHandler.FileURL)
	resume.GET("/versions/:id/download", resumeHandler.Download)
}
