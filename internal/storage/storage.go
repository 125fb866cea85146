package storage

import (
	"context"
	"fmt"

	"career-agent-go/internal/config"
	appLogger "career-agent-go/internal/logger"
)

// Storage 存储管理器，聚合所有存储相关依赖。
// MySQL 必需，其余组件未配置或初始化失败时为 nil，由调用方降级处理。
type Storage struct {
	// 关系型数据库
	MySQL *MySQL

	// 对象存储
	MinIO *MinIO

	// 消息队列
	RabbitMQ *RabbitMQ

	// 键值存储
	Redis *Redis
}

// NewStorage 创建存储管理器
func NewStorage(ctx context.Context, cfg *config.Config) (*Storage, error) {
	if cfg == nil {
		return nil, fmt.Errorf("配置不能为空")
	}

	storage := &Storage{}
	var err error

	storage.MySQL, err = NewMySQL(&cfg.MySQL)
	if err != nil {
		return nil, fmt.Errorf("初始化MySQL失败: %w", err)
	}

	if cfg.MinIO.Endpoint != "" {
		storage.MinIO, err = NewMinIO(&cfg.MinIO)
		if err != nil {
			appLogger.Warn().Err(err).Msg("初始化MinIO失败，原始文件将不会归档")
			storage.MinIO = nil
		}
	}

	if cfg.RabbitMQ.URL != "" {
		storage.RabbitMQ, err = NewRabbitMQ(&cfg.RabbitMQ)
		if err != nil {
			appLogger.Warn().Err(err).Msg("初始化RabbitMQ失败，outbox 消息将保留在数据库中")
			storage.RabbitMQ = nil
		} else if err := storage.RabbitMQ.SetupResumeTopology(); err != nil {
			appLogger.Warn().Err(err).Msg("声明简历事件交换机失败")
		}
	}

	if cfg.Redis.Address != "" {
		storage.Redis, err = NewRedis(&cfg.Redis)
		if err != nil {
			appLogger.Warn().Err(err).Msg("初始化Redis失败，上传锁将被跳过")
			storage.Redis = nil
		}
	} else {
		appLogger.Info().Msg("Redis未配置, 跳过初始化")
	}

	return storage, nil
}

// ObjectStorage 返回对象存储，未初始化时为 nil 接口
func (s *Storage) ObjectStorage() ObjectStorage {
	if s.MinIO == nil {
		return nil
	}
	return s.MinIO
}

// Close 关闭所有连接
func (s *Storage) Close() {
	if s.RabbitMQ != nil {
		if err := s.RabbitMQ.Close(); err != nil {
			appLogger.Error().Err(err).Msg("关闭RabbitMQ连接失败")
		}
	}
	if s.Redis != nil {
		if err := s.Redis.Close(); err != nil {
			appLogger.Error().Err(err).Msg("关闭Redis连接失败")
		}
	}
	if s.MySQL != nil {
		if err := s.MySQL.Close(); err != nil {
			appLogger.Error().Err(err).Msg("关闭MySQL连接失败")
		}
	}
}
