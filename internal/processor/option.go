package processor

import (
	"time"

	"career-agent-go/internal/storage"

	"github.com/rs/zerolog"
)

// Option 配置 ResumeService
type Option func(*ResumeService)

// WithObjectStorage 上传时归档原始文件
func WithObjectStorage(objects storage.ObjectStorage) Option {
	return func(s *ResumeService) {
		s.objects = objects
	}
}

// WithUploadLock 同一用户的上传串行执行
func WithUploadLock(locker UploadLocker, ttl time.Duration) Option {
	return func(s *ResumeService) {
		s.locker = locker
		if ttl > 0 {
			s.lockTTL = ttl
		}
	}
}

// WithVersionEvents 新版本写入时同事务写入 outbox 消息
func WithVersionEvents(exchange, routingKey string) Option {
	return func(s *ResumeService) {
		s.exchange = exchange
		s.routingKey = routingKey
	}
}

// WithMaxFileSize 上传文件大小上限，0表示不限制
func WithMaxFileSize(n int64) Option {
	return func(s *ResumeService) {
		s.maxFileSize = n
	}
}

// WithPresignExpiry 原始文件下载链接的有效期
func WithPresignExpiry(d time.Duration) Option {
	return func(s *ResumeService) {
		s.presignExpiry = d
	}
}

// WithLogger 设置日志
func WithLogger(l *zerolog.Logger) Option {
	return func(s *ResumeService) {
		if l != nil {
			s.logger = l
		}
	}
}
