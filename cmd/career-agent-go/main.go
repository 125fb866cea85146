package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"career-agent-go/internal/api/handler"
	"career-agent-go/internal/api/router"
	"career-agent-go/internal/config"
	"career-agent-go/internal/extractor"
	"career-agent-go/internal/llm"
	"career-agent-go/internal/logger"
	"career-agent-go/internal/outbox"
	"career-agent-go/internal/pipeline"
	"career-agent-go/internal/processor"
	"career-agent-go/internal/storage"
	"career-agent-go/internal/tracing"

	"github.com/cloudwego/hertz/pkg/app/server"
	hertzconfig "github.com/cloudwego/hertz/pkg/common/config"
	"github.com/cloudwego/hertz/pkg/common/hlog"
	hertztracing "github.com/hertz-contrib/obs-opentelemetry/tracing"
	"github.com/spf13/pflag"
)

var (
	version     = "1.0.0"           //nolint:gochecknoglobals
	serviceName = "career-agent-go" //nolint:gochecknoglobals
)

func main() {
	var configPath string
	pflag.StringVarP(&configPath, "config", "c", "", "配置文件路径，为空时自动查找")
	pflag.Parse()

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("加载配置文件失败")
	}
	initLogger(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracing, err := tracing.InitTracerProvider(ctx, cfg.Tracing)
	if err != nil {
		logger.Warn().Err(err).Msg("初始化链路追踪失败，继续运行")
	}

	storageManager, err := storage.NewStorage(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("初始化存储失败")
	}
	defer storageManager.Close()
	logger.Info().Msg("存储服务初始化成功")

	// 没有 RabbitMQ 时不写 outbox，也不启动中继
	var relay *outbox.MessageRelay
	if storageManager.RabbitMQ != nil {
		relay = outbox.NewMessageRelay(storageManager.MySQL.DB(), storageManager.RabbitMQ, &cfg.RabbitMQ)
		relay.Start()
	}

	resumeService, err := newResumeService(ctx, cfg, storageManager)
	if err != nil {
		logger.Fatal().Err(err).Msg("初始化简历服务失败")
	}

	h := newServer(cfg)
	router.RegisterRoutes(h, cfg.Auth, handler.NewResumeHandler(resumeService), newHealthHandler(storageManager))

	go func() {
		logger.Info().Str("address", cfg.Server.Address).Msg("HTTP 服务器启动中")
		if err := h.Run(); err != nil {
			logger.Fatal().Err(err).Msg("启动HTTP服务器失败")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info().Msg("接收到终止信号，正在优雅退出...")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := h.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("服务器关闭失败")
	}
	if relay != nil {
		relay.Stop()
	}
	if shutdownTracing != nil {
		if err := shutdownTracing(shutdownCtx); err != nil {
			logger.Warn().Err(err).Msg("关闭链路追踪失败")
		}
	}
	logger.Info().Msg("优雅退出完成")
}

func initLogger(cfg *config.Config) {
	logger.Init(logger.Config{
		Level:        cfg.Logger.Level,
		Format:       cfg.Logger.Format,
		TimeFormat:   cfg.Logger.TimeFormat,
		ReportCaller: cfg.Logger.ReportCaller,
	})
	logger.Logger = logger.Logger.With().
		Str("app", serviceName).
		Str("version", version).
		Logger()

	hlog.SetLogger(logger.HertzLogger())
	hlog.SetLevel(hlog.LevelInfo)
}

func newResumeService(ctx context.Context, cfg *config.Config, s *storage.Storage) (*processor.ResumeService, error) {
	ext, err := extractor.NewFromConfig(ctx, cfg.Extractor)
	if err != nil {
		return nil, err
	}
	client, err := llm.NewClient(cfg.LLM)
	if err != nil {
		return nil, err
	}
	logger.Info().Str("model", llm.ModelNameOf(client)).Bool("mock", cfg.LLM.MockMode).Msg("大模型客户端初始化成功")

	db := s.MySQL.DB()
	opts := []processor.Option{
		processor.WithObjectStorage(s.ObjectStorage()),
		processor.WithMaxFileSize(cfg.MaxFileSizeBytes()),
		processor.WithPresignExpiry(time.Duration(cfg.MinIO.PresignExpiryMinutes) * time.Minute),
	}
	if s.Redis != nil {
		opts = append(opts, processor.WithUploadLock(s.Redis, s.Redis.UploadLockTTL()))
	}
	if s.RabbitMQ != nil {
		opts = append(opts, processor.WithVersionEvents(cfg.RabbitMQ.ResumeEventsExchange, cfg.RabbitMQ.VersionCreatedRoutingKey))
	}

	return processor.NewResumeService(
		pipeline.New(ext, client),
		storage.NewResumeVersionStore(db),
		storage.NewResumeProjectionSync(db),
		opts...,
	), nil
}

func newServer(cfg *config.Config) *server.Hertz {
	opts := []hertzconfig.Option{
		server.WithHostPorts(cfg.Server.Address),
		server.WithHandleMethodNotAllowed(true),
		server.WithMaxRequestBodySize(cfg.Server.MaxRequestBodyMB << 20),
		server.WithExitWaitTime(5 * time.Second),
	}
	if !cfg.Tracing.Enabled {
		return server.New(opts...)
	}

	tracer, tracerCfg := hertztracing.NewServerTracer()
	h := server.New(append(opts, tracer)...)
	h.Use(hertztracing.ServerMiddleware(tracerCfg))
	return h
}

func newHealthHandler(s *storage.Storage) *handler.HealthHandler {
	checks := []handler.HealthCheck{{
		Name:     "mysql",
		Required: true,
		Check: func(ctx context.Context) error {
			sqlDB, err := s.MySQL.DB().DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		},
	}}
	if s.Redis != nil {
		checks = append(checks, handler.HealthCheck{Name: "redis", Check: s.Redis.Ping})
	}
	if s.MinIO != nil {
		checks = append(checks, handler.HealthCheck{Name: "minio", Check: s.MinIO.Ping})
	}
	return handler.NewHealthHandler(checks...)
}
