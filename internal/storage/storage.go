package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"resume-matcher/internal/config"
	"resume-matcher/internal/logger"
	"resume-matcher/internal/outbox"
	"resume-matcher/internal/types"
)

// Storage 存储管理器，聚合所有外部依赖。每个组件都是可选的，未配置时为 nil
type Storage struct {
	// 对象存储
	MinIO *MinIO

	// 消息队列
	RabbitMQ *RabbitMQ

	// 键值存储
	Redis *Redis

	logger *zerolog.Logger
}

// NewStorage 按配置初始化存储组件。已配置但连接失败的组件会返回错误
func NewStorage(ctx context.Context, cfg *config.Config, l *zerolog.Logger) (*Storage, error) {
	if cfg == nil {
		return nil, fmt.Errorf("配置不能为空")
	}
	l = logger.OrNop(l)
	s := &Storage{logger: l}
	var initErrors []error

	if cfg.MinIO.Endpoint != "" {
		m, err := NewMinIO(ctx, &cfg.MinIO, l)
		if err != nil {
			initErrors = append(initErrors, fmt.Errorf("MinIO: %w", err))
		} else {
			s.MinIO = m
		}
	}

	if cfg.RabbitMQ.URL != "" {
		mq, err := NewRabbitMQ(&cfg.RabbitMQ, l)
		if err != nil {
			initErrors = append(initErrors, fmt.Errorf("RabbitMQ: %w", err))
		} else {
			s.RabbitMQ = mq
		}
	}

	if cfg.Redis.Address != "" {
		r, err := NewRedisAdapter(&cfg.Redis)
		if err != nil {
			initErrors = append(initErrors, fmt.Errorf("Redis: %w", err))
		} else {
			s.Redis = r
		}
	}

	if len(initErrors) > 0 {
		s.Close()
		return nil, fmt.Errorf("存储组件初始化失败: %w", errors.Join(initErrors...))
	}

	l.Info().
		Bool("minio", s.MinIO != nil).
		Bool("rabbitmq", s.RabbitMQ != nil).
		Bool("redis", s.Redis != nil).
		Msg("存储组件初始化完成")
	return s, nil
}

// Close 关闭所有连接
func (s *Storage) Close() {
	if s.RabbitMQ != nil {
		if err := s.RabbitMQ.Close(); err != nil {
			s.logger.Warn().Err(err).Msg("关闭RabbitMQ连接失败")
		}
	}
	if s.Redis != nil {
		if err := s.Redis.Close(); err != nil {
			s.logger.Warn().Err(err).Msg("关闭Redis连接失败")
		}
	}
}

// Ping 检查各组件连通性，返回组件名到错误的映射（nil 表示正常）
func (s *Storage) Ping(ctx context.Context) map[string]error {
	status := make(map[string]error)
	if s.Redis != nil {
		status["redis"] = s.Redis.Ping(ctx)
	}
	if s.MinIO != nil {
		_, err := s.MinIO.client.BucketExists(ctx, s.MinIO.bucket)
		status["minio"] = err
	}
	if s.RabbitMQ != nil {
		var err error
		if s.RabbitMQ.conn.IsClosed() {
			err = errors.New("connection closed")
		}
		status["rabbitmq"] = err
	}
	return status
}

// ProfileCache 画像缓存，未配置 Redis 时返回 nil
func (s *Storage) ProfileCache() *Redis {
	return s.Redis
}

// EventSink 批处理事件出口：进度和汇总发往 RabbitMQ，汇总同时写入 Redis。
// 两者都未配置时返回 nil
func (s *Storage) EventSink() *EventSink {
	if s.RabbitMQ == nil && s.Redis == nil {
		return nil
	}
	sink := &EventSink{mq: s.RabbitMQ, redis: s.Redis, logger: s.logger}
	if s.Redis != nil {
		sink.outbox = s.Redis
	}
	return sink
}

// MessageRelay 发件箱中继，需要同时配置 RabbitMQ 和 Redis
func (s *Storage) MessageRelay(opts ...outbox.Option) *outbox.MessageRelay {
	if s.RabbitMQ == nil || s.Redis == nil {
		return nil
	}
	return outbox.NewMessageRelay(s.Redis, s.RabbitMQ, opts...)
}

// EventSink 将批处理事件分发到已配置的组件
type EventSink struct {
	mq     *RabbitMQ
	redis  *Redis
	outbox outbox.Store
	logger *zerolog.Logger
}

// PublishProgress 只发往消息队列，进度事件丢失不重试
func (e *EventSink) PublishProgress(ctx context.Context, event types.ProgressEvent) error {
	if e.mq == nil {
		return nil
	}
	return e.mq.PublishProgress(ctx, event)
}

// PublishSummary 发往消息队列并持久化到 Redis。
// 发布失败的汇总进入发件箱等待重试，只有入箱也失败时才返回错误
func (e *EventSink) PublishSummary(ctx context.Context, summary types.BatchSummary) error {
	var errs []error
	if e.mq != nil {
		errs = append(errs, e.publishSummary(ctx, summary))
	}
	if e.redis != nil {
		errs = append(errs, e.redis.SaveSummary(ctx, summary))
	}
	return errors.Join(errs...)
}

func (e *EventSink) publishSummary(ctx context.Context, summary types.BatchSummary) error {
	msg, err := e.mq.SummaryMessage(summary)
	if err != nil {
		return err
	}
	err = e.mq.Publish(ctx, msg)
	if err == nil || e.outbox == nil {
		return err
	}

	msg.LastError = err.Error()
	if oErr := e.outbox.Enqueue(ctx, msg); oErr != nil {
		return errors.Join(err, oErr)
	}
	e.logger.Warn().Err(err).Str("run_id", summary.RunID).Str("message_id", msg.ID).Msg("汇总发布失败，已写入发件箱")
	return nil
}
