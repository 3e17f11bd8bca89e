package processor

import (
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"

	"resume-matcher/internal/config"
	"resume-matcher/internal/logger"
)

// Option 编排器选项函数类型
type Option func(*Orchestrator)

// RunOption 单次批处理的选项
type RunOption func(*runSettings)

type runSettings struct {
	listeners []ProgressListener
}

// ----- 编排器选项 -----

// WithWorkers 设置工作池大小 K，小于1时忽略
func WithWorkers(workers int) Option {
	return func(o *Orchestrator) {
		if workers > 0 {
			o.workers = workers
		}
	}
}

// WithLogger 设置日志记录器
func WithLogger(l *zerolog.Logger) Option {
	return func(o *Orchestrator) {
		o.logger = logger.OrNop(l)
	}
}

// WithProfileCache 设置画像缓存
func WithProfileCache(cache ProfileCache) Option {
	return func(o *Orchestrator) {
		o.cache = cache
	}
}

// WithEventPublisher 设置事件发布者
func WithEventPublisher(publisher EventPublisher) Option {
	return func(o *Orchestrator) {
		o.publisher = publisher
	}
}

// WithPublishProgress 是否向发布者发送逐条进度事件（汇总总是发送）
func WithPublishProgress(enabled bool) Option {
	return func(o *Orchestrator) {
		o.publishProgress = enabled
	}
}

// WithTracer 设置 tracer，默认使用全局 TracerProvider
func WithTracer(t trace.Tracer) Option {
	return func(o *Orchestrator) {
		if t != nil {
			o.tracer = t
		}
	}
}

// FromConfig 将配置转换为编排器选项
func FromConfig(cfg *config.Config) []Option {
	return []Option{
		WithWorkers(cfg.Engine.Workers),
		WithPublishProgress(cfg.RabbitMQ.PublishProgress),
	}
}

// ----- 批处理选项 -----

// WithProgressListener 注册进度回调
func WithProgressListener(listener ProgressListener) RunOption {
	return func(s *runSettings) {
		if listener != nil {
			s.listeners = append(s.listeners, listener)
		}
	}
}
