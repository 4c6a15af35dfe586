// Package outbox 实现发件箱模式：业务事务内写表，中继异步投递到消息代理
package outbox

import (
	"context"
	"sync"
	"time"

	"resume-matcher-go/internal/storage"
	"resume-matcher-go/internal/storage/models"
	"resume-matcher-go/internal/tracing"
	"resume-matcher-go/pkg/utils"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	defaultPollingInterval = 5 * time.Second // 轮询outbox表的间隔
	defaultBatchSize       = 10              // 每次轮询处理的消息批量大小
	maxRetryCount          = 5               // 消息发布失败的最大重试次数
)

// MessageRelay 轮询outbox表并将PENDING消息发布到消息代理
type MessageRelay struct {
	db              *gorm.DB
	publisher       *storage.RabbitMQ
	logger          zerolog.Logger
	pollingInterval time.Duration
	batchSize       int
	done            chan struct{}
	stopOnce        sync.Once
	tracer          trace.Tracer
}

// NewMessageRelay 创建一个新的 MessageRelay 实例
func NewMessageRelay(db *gorm.DB, publisher *storage.RabbitMQ, logger zerolog.Logger) *MessageRelay {
	return &MessageRelay{
		db:              db,
		publisher:       publisher,
		logger:          logger.With().Str("component", "outbox_relay").Logger(),
		pollingInterval: defaultPollingInterval,
		batchSize:       defaultBatchSize,
		done:            make(chan struct{}),
		tracer:          otel.Tracer("outbox-relay"),
	}
}

// Start 启动后台轮询
func (r *MessageRelay) Start() {
	r.logger.Info().Dur("interval", r.pollingInterval).Msg("outbox中继启动")
	ticker := time.NewTicker(r.pollingInterval)

	go func() {
		for {
			select {
			case <-r.done:
				ticker.Stop()
				r.logger.Info().Msg("outbox中继已停止")
				return
			case <-ticker.C:
				if err := r.processPendingMessages(context.Background()); err != nil {
					r.logger.Error().Err(err).Msg("处理待发布消息失败")
				}
			}
		}
	}()
}

// Stop 优雅地停止中继，重复调用是安全的
func (r *MessageRelay) Stop() {
	r.stopOnce.Do(func() {
		r.logger.Info().Msg("outbox中继停止中")
		close(r.done)
	})
}

// processPendingMessages 取出并发布一批PENDING消息
// 空轮询不创建Span，避免追踪系统里充满无信息的噪声
func (r *MessageRelay) processPendingMessages(ctx context.Context) error {
	var messages []models.OutboxMessage

	tx := r.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return tx.Error
	}
	defer tx.Rollback()

	// SKIP LOCKED让多实例部署时各自拾取不同的行
	err := tx.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
		Where("status = ?", "PENDING").
		Order("created_at asc").
		Limit(r.batchSize).
		Find(&messages).Error
	if err != nil {
		r.logger.Error().Err(err).Msg("查询待发布outbox消息失败")
		return err
	}

	if len(messages) == 0 {
		return tx.Commit().Error
	}

	ctx, span := r.tracer.Start(ctx, "outbox.ProcessBatch",
		trace.WithAttributes(
			attribute.Int("messaging.batch.message_count", len(messages)),
		),
	)
	defer span.End()

	r.logger.Debug().Int("count", len(messages)).Msg("拾取到待发布消息")

	for _, msg := range messages {
		err := r.publisher.PublishMessage(
			ctx,
			msg.TargetExchange,
			msg.TargetRoutingKey,
			[]byte(msg.Payload),
			true, // 持久化
		)

		if err != nil {
			r.logger.Warn().Err(err).
				Uint64("message_id", msg.ID).
				Str("aggregate_id", msg.AggregateID).
				Int("retry_count", msg.RetryCount+1).
				Msg("发布outbox消息失败")
			tracing.RecordRabbitMQNack(span, msg.AggregateID, err.Error())
			msg.RetryCount++
			msg.ErrorMessage = err.Error()
			if msg.RetryCount >= maxRetryCount {
				msg.Status = "FAILED"
			}
		} else {
			msg.Status = "SENT"
			msg.ProcessedAt = utils.TimePtr(time.Now())
			msg.ErrorMessage = ""
		}

		// 更新失败则整批回滚，消息保持PENDING，下一轮重新拾取
		if err := tx.Save(&msg).Error; err != nil {
			r.logger.Error().Err(err).Uint64("message_id", msg.ID).Msg("更新outbox消息状态失败")
			return err
		}
	}

	return tx.Commit().Error
}
