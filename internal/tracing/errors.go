package tracing

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"resume-matcher/internal/types"
)

// ErrorType 定义错误类型，便于分类和过滤
type ErrorType string

const (
	// ErrorTypeHTTP HTTP错误
	ErrorTypeHTTP ErrorType = "http"
	// ErrorTypeRedis Redis错误
	ErrorTypeRedis ErrorType = "redis"
	// ErrorTypeRabbitMQ RabbitMQ错误
	ErrorTypeRabbitMQ ErrorType = "rabbitmq"
	// ErrorTypeStorage 对象存储错误
	ErrorTypeStorage ErrorType = "storage"
	// ErrorTypeValidation 验证错误
	ErrorTypeValidation ErrorType = "validation"
	// ErrorTypeUnsupported 不支持的文档格式
	ErrorTypeUnsupported ErrorType = "unsupported_format"
	// ErrorTypeExtraction 文本提取错误
	ErrorTypeExtraction ErrorType = "extraction"
	// ErrorTypeCancelled 批处理被取消
	ErrorTypeCancelled ErrorType = "cancelled"
	// ErrorTypeInternal 内部错误
	ErrorTypeInternal ErrorType = "internal"
	// ErrorTypeTimeout 超时错误
	ErrorTypeTimeout ErrorType = "timeout"
)

// ErrorTypeForKind 文档错误分类到 span 错误类型的映射
func ErrorTypeForKind(kind types.ErrorKind) ErrorType {
	switch kind {
	case types.KindUnsupportedFormat:
		return ErrorTypeUnsupported
	case types.KindExtraction:
		return ErrorTypeExtraction
	case types.KindInvalidBatchInput:
		return ErrorTypeValidation
	case types.KindCancelled:
		return ErrorTypeCancelled
	default:
		return ErrorTypeInternal
	}
}

// RecordError 记录错误，添加统一的错误类型和详情
func RecordError(span trace.Span, err error, errorType ErrorType, attributes ...attribute.KeyValue) {
	if span == nil || err == nil {
		return
	}

	span.RecordError(err)
	span.SetAttributes(
		attribute.String("error.type", string(errorType)),
		attribute.String("error.message", TruncateString(err.Error(), DefaultMaxLength)),
	)
	if len(attributes) > 0 {
		span.SetAttributes(attributes...)
	}
	span.SetStatus(codes.Error, err.Error())
}

// RecordHTTPError 专门记录HTTP错误
func RecordHTTPError(span trace.Span, err error, statusCode int) {
	if span == nil || err == nil {
		return
	}

	// 根据HTTP状态码分类错误
	var errorCategory string
	switch {
	case statusCode >= 400 && statusCode < 500:
		errorCategory = "client_error"
	case statusCode >= 500:
		errorCategory = "server_error"
	default:
		errorCategory = "unknown"
	}

	RecordError(span, err, ErrorTypeHTTP,
		attribute.Int("http.status_code", statusCode),
		attribute.String("error.category", errorCategory),
	)
}
