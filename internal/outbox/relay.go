package outbox // 定义了发件箱模式（Outbox Pattern）的实现

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"resume-matcher/internal/logger"
	"resume-matcher/internal/tracing"
)

const (
	defaultPollingInterval = 5 * time.Second // 默认轮询间隔
	defaultBatchSize       = 10              // 每次轮询处理的消息批量大小
	maxRetryCount          = 5               // 消息发布失败的最大重试次数
)

// Message 待投递的消息，发布失败时暂存在发件箱中
type Message struct {
	ID         string            `json:"id"`
	Exchange   string            `json:"exchange"`
	RoutingKey string            `json:"routing_key"`
	Body       []byte            `json:"body"`
	Headers    map[string]string `json:"headers,omitempty"`
	RetryCount int               `json:"retry_count"`
	LastError  string            `json:"last_error,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
}

// Store 发件箱存储
type Store interface {
	// Enqueue 追加到待发送队列末尾
	Enqueue(ctx context.Context, msg Message) error
	// Claim 从队列头部取出至多 limit 条消息，取出的消息由调用方负责重新入队或归档
	Claim(ctx context.Context, limit int) ([]Message, error)
	// Fail 归档超过重试次数的消息
	Fail(ctx context.Context, msg Message) error
}

// Publisher 消息发布者
type Publisher interface {
	Publish(ctx context.Context, msg Message) error
}

// Option MessageRelay 选项
type Option func(*MessageRelay)

// WithPollingInterval 设置轮询间隔
func WithPollingInterval(d time.Duration) Option {
	return func(r *MessageRelay) {
		if d > 0 {
			r.pollingInterval = d
		}
	}
}

// WithBatchSize 设置每次轮询的批量大小
func WithBatchSize(n int) Option {
	return func(r *MessageRelay) {
		if n > 0 {
			r.batchSize = n
		}
	}
}

// WithLogger 设置日志记录器
func WithLogger(l *zerolog.Logger) Option {
	return func(r *MessageRelay) {
		r.logger = logger.OrNop(l)
	}
}

// MessageRelay 轮询发件箱并将消息重新发布到消息代理
type MessageRelay struct {
	store           Store
	publisher       Publisher
	logger          *zerolog.Logger
	pollingInterval time.Duration
	batchSize       int
	tracer          trace.Tracer

	stopOnce sync.Once
	done     chan struct{}
	stopped  chan struct{}
}

// NewMessageRelay 创建一个新的 MessageRelay 实例
func NewMessageRelay(store Store, publisher Publisher, opts ...Option) *MessageRelay {
	r := &MessageRelay{
		store:           store,
		publisher:       publisher,
		logger:          logger.OrNop(nil),
		pollingInterval: defaultPollingInterval,
		batchSize:       defaultBatchSize,
		tracer:          otel.Tracer("outbox-relay"),
		done:            make(chan struct{}),
		stopped:         make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Start 开始轮询
func (r *MessageRelay) Start() {
	r.logger.Info().Dur("interval", r.pollingInterval).Msg("MessageRelay starting")
	ticker := time.NewTicker(r.pollingInterval)

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
					r.logger.Error().Err(err).Msg("处理发件箱消息失败")
				}
			}
		}
	}()
}

// Stop 停止轮询并等待当前一轮处理结束
func (r *MessageRelay) Stop() {
	r.stopOnce.Do(func() {
		close(r.done)
	})
	<-r.stopped
}

// ProcessPending 处理一批待发送消息，返回成功发布的条数
func (r *MessageRelay) ProcessPending(ctx context.Context) (int, error) {
	messages, err := r.store.Claim(ctx, r.batchSize)
	if err != nil {
		return 0, err
	}
	// 空轮询不创建 span
	if len(messages) == 0 {
		return 0, nil
	}

	ctx, span := r.tracer.Start(ctx, "outbox.ProcessBatch",
		trace.WithAttributes(attribute.Int("messaging.batch.message_count", len(messages))),
	)
	defer span.End()

	sent := 0
	for _, msg := range messages {
		err := r.publisher.Publish(ctx, msg)
		if err == nil {
			sent++
			continue
		}

		msg.RetryCount++
		msg.LastError = err.Error()
		r.logger.Warn().Err(err).Str("message_id", msg.ID).Int("retries", msg.RetryCount).Msg("重新发布消息失败")

		if msg.RetryCount >= maxRetryCount {
			tracing.RecordError(span, err, tracing.ErrorTypeRabbitMQ, attribute.String("messaging.message.id", msg.ID))
			if fErr := r.store.Fail(ctx, msg); fErr != nil {
				return sent, fErr
			}
			continue
		}
		if eErr := r.store.Enqueue(ctx, msg); eErr != nil {
			return sent, eErr
		}
	}

	span.SetAttributes(attribute.Int("messaging.batch.sent_count", sent))
	if sent > 0 {
		r.logger.Info().Int("sent", sent).Int("claimed", len(messages)).Msg("发件箱消息已重新发布")
	}
	return sent, nil
}
