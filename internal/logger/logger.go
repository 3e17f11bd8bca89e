package logger // 匹配引擎的日志组件

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"resume-matcher/internal/config"
)

var (
	// Logger 全局日志实例，Init 之前为 zerolog 默认实例
	Logger = log.Logger
)

// Init 根据配置初始化全局日志
func Init(cfg config.LoggerConfig) {
	InitWithWriter(cfg, os.Stdout)
}

// InitWithWriter 与 Init 相同，但允许指定输出目标，便于测试
func InitWithWriter(cfg config.LoggerConfig, out io.Writer) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.TimeFormat == "" {
		zerolog.TimeFieldFormat = time.RFC3339
	} else {
		zerolog.TimeFieldFormat = cfg.TimeFormat
	}

	output := out
	if cfg.Format == "pretty" {
		output = zerolog.ConsoleWriter{
			Out:        out,
			TimeFormat: cfg.TimeFormat,
		}
	}

	builder := zerolog.New(output).Level(level).With().Timestamp()
	if cfg.ReportCaller {
		builder = builder.Caller()
	}

	Logger = builder.Logger()
	log.Logger = Logger
}

// Component 返回带 component 字段的子日志器，各组件持有各自的实例
func Component(name string) *zerolog.Logger {
	l := Logger.With().Str("component", name).Logger()
	return &l
}

// OrNop nil 时返回一个丢弃所有输出的日志器
func OrNop(l *zerolog.Logger) *zerolog.Logger {
	if l != nil {
		return l
	}
	nop := zerolog.Nop()
	return &nop
}

// Debug 开始一条调试级别的日志事件
func Debug() *zerolog.Event {
	return Logger.Debug()
}

// Info 开始一条信息级别的日志事件
func Info() *zerolog.Event {
	return Logger.Info()
}

// Warn 开始一条警告级别的日志事件
func Warn() *zerolog.Event {
	return Logger.Warn()
}

// Error 开始一条错误级别的日志事件
func Error() *zerolog.Event {
	return Logger.Error()
}

// Fatal 记录后程序将退出
func Fatal() *zerolog.Event {
	return Logger.Fatal()
}

// Ctx 从上下文中获取日志记录器
func Ctx(ctx context.Context) *zerolog.Logger {
	return zerolog.Ctx(ctx)
}

// WithContext 将全局日志记录器放入上下文
func WithContext(ctx context.Context) context.Context {
	return Logger.WithContext(ctx)
}
