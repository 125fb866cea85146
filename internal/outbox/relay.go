// Package outbox 发件箱模式的投递端：轮询 outbox_messages 表并发布到 RabbitMQ
package outbox

import (
	"context"
	"sync"
	"time"

	"career-agent-go/internal/config"
	appLogger "career-agent-go/internal/logger"
	"career-agent-go/internal/storage/models"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	defaultPollingInterval = 5 * time.Second // 默认轮询间隔
	defaultBatchSize       = 10              // 每次轮询处理的消息数
	maxRetryCount          = 5               // 超过后标记为 FAILED
)

// Publisher 消息发布器，storage.RabbitMQ 实现了它
type Publisher interface {
	PublishMessage(ctx context.Context, exchangeName, routingKey string, message []byte, persistent bool) error
}

// MessageRelay 轮询 outbox 表并将消息发布到消息代理
type MessageRelay struct {
	db              *gorm.DB
	publisher       Publisher
	logger          *zerolog.Logger
	pollingInterval time.Duration
	batchSize       int
	tracer          trace.Tracer

	done     chan struct{}
	stopped  chan struct{}
	started  bool
	stopOnce sync.Once
}

// NewMessageRelay 创建 MessageRelay，cfg 为 nil 时使用默认轮询参数
func NewMessageRelay(db *gorm.DB, publisher Publisher, cfg *config.RabbitMQConfig) *MessageRelay {
	r := &MessageRelay{
		db:              db,
		publisher:       publisher,
		logger:          &appLogger.Logger,
		pollingInterval: defaultPollingInterval,
		batchSize:       defaultBatchSize,
		tracer:          otel.Tracer("career-agent-go/outbox"),
		done:            make(chan struct{}),
		stopped:         make(chan struct{}),
	}
	if cfg != nil {
		if cfg.RelayIntervalSeconds > 0 {
			r.pollingInterval = time.Duration(cfg.RelayIntervalSeconds) * time.Second
		}
		if cfg.RelayBatchSize > 0 {
			r.batchSize = cfg.RelayBatchSize
		}
	}
	return r
}

// Start 在后台开始轮询
func (r *MessageRelay) Start() {
	r.logger.Info().Dur("interval", r.pollingInterval).Int("batch_size", r.batchSize).Msg("MessageRelay starting")
	ticker := time.NewTicker(r.pollingInterval)
	r.started = true

	go func() {
		defer close(r.stopped)
		defer ticker.Stop()
		for {
			select {
			case <-r.done:
				r.logger.Info().Msg("MessageRelay stopped")
				return
			case <-ticker.C:
				if _, err := r.ProcessPending(context.Background()); err != nil {
					r.logger.Error().Err(err).Msg("处理 outbox 消息失败")
				}
			}
		}
	}()
}

// Stop 停止轮询并等待当前批次结束
func (r *MessageRelay) Stop() {
	r.stopOnce.Do(func() {
		close(r.done)
	})
	if r.started {
		<-r.stopped
	}
}

// ProcessPending 取一批 PENDING 消息发布并更新状态，返回本批处理的条数
func (r *MessageRelay) ProcessPending(ctx context.Context) (int, error) {
	var messages []models.OutboxMessage

	tx := r.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return 0, tx.Error
	}
	defer tx.Rollback()

	// SKIP LOCKED 让多个实例各取不同的行
	err := tx.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
		Where("status = ?", models.OutboxStatusPending).
		Order("created_at asc").
		Order("id asc").
		Limit(r.batchSize).
		Find(&messages).Error
	if err != nil {
		return 0, err
	}

	// 空轮询不创建 span
	if len(messages) == 0 {
		return 0, tx.Commit().Error
	}

	ctx, span := r.tracer.Start(ctx, "outbox.ProcessBatch",
		trace.WithAttributes(attribute.Int("messaging.batch.message_count", len(messages))),
	)
	defer span.End()

	r.logger.Debug().Int("count", len(messages)).Msg("获取到待发布的 outbox 消息")

	for i := range messages {
		msg := &messages[i]
		err := r.publisher.PublishMessage(ctx, msg.TargetExchange, msg.TargetRoutingKey, []byte(msg.Payload), true)
		if err != nil {
			msg.RetryCount++
			msg.ErrorMessage = err.Error()
			if msg.RetryCount >= maxRetryCount {
				msg.Status = models.OutboxStatusFailed
			}
			r.logger.Warn().Err(err).
				Uint64("message_id", msg.ID).
				Str("aggregate_id", msg.AggregateID).
				Int("retries", msg.RetryCount).
				Msg("发布 outbox 消息失败")
		} else {
			now := time.Now()
			msg.Status = models.OutboxStatusSent
			msg.ProcessedAt = &now
			msg.ErrorMessage = ""
		}

		// 更新失败时整批回滚，下次轮询重新拾取
		if err := tx.Save(msg).Error; err != nil {
			r.logger.Error().Err(err).Uint64("message_id", msg.ID).Msg("更新 outbox 消息状态失败")
			return 0, err
		}
	}

	return len(messages), tx.Commit().Error
}
