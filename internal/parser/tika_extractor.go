package parser

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/hertz/pkg/app/client"
	"github.com/cloudwego/hertz/pkg/protocol"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
	"github.com/rs/zerolog"

	"resume-matcher/internal/logger"
	"resume-matcher/internal/types"
)

// Tika 各格式对应的 Content-Type
var tikaContentTypes = map[string]string{
	FormatPDF:  "application/pdf",
	FormatDOC:  "application/msword",
	FormatDOCX: "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
}

// TikaExtractor 调用 Apache Tika 服务器（PUT /tika）提取纯文本。
// 配置了 Tika 时替换内置的 PDF/DOC 提取器
type TikaExtractor struct {
	serverURL          string
	client             *client.Client
	timeout            time.Duration
	formats            []string
	extractAnnotations bool
	logger             *zerolog.Logger
}

// TikaOption 定义配置选项函数
type TikaOption func(*TikaExtractor)

// WithTikaFormats 由 Tika 处理的格式，默认 pdf 和 doc
func WithTikaFormats(formats ...string) TikaOption {
	return func(e *TikaExtractor) {
		if len(formats) > 0 {
			e.formats = formats
		}
	}
}

// WithAnnotations 配置是否提取PDF链接注释文本
func WithAnnotations(extract bool) TikaOption {
	return func(e *TikaExtractor) {
		e.extractAnnotations = extract
	}
}

// WithTikaLogger 配置日志记录器
func WithTikaLogger(l *zerolog.Logger) TikaOption {
	return func(e *TikaExtractor) {
		e.logger = logger.OrNop(l)
	}
}

// WithTimeout 单个文档的请求超时
func WithTimeout(timeout time.Duration) TikaOption {
	return func(e *TikaExtractor) {
		if timeout > 0 {
			e.timeout = timeout
		}
	}
}

// NewTikaExtractor 创建 Tika 提取器，serverURL 例如 http://localhost:9998
func NewTikaExtractor(serverURL string, options ...TikaOption) (*TikaExtractor, error) {
	if serverURL == "" {
		return nil, fmt.Errorf("tika server url is required")
	}
	c, err := client.NewClient(client.WithDialTimeout(5 * time.Second))
	if err != nil {
		return nil, fmt.Errorf("创建Tika客户端失败: %w", err)
	}

	e := &TikaExtractor{
		serverURL:          strings.TrimRight(serverURL, "/"),
		client:             c,
		timeout:            60 * time.Second,
		formats:            []string{FormatPDF, FormatDOC},
		extractAnnotations: true,
		logger:             logger.OrNop(nil),
	}
	for _, option := range options {
		option(e)
	}
	return e, nil
}

func (e *TikaExtractor) Formats() []string {
	return e.formats
}

// Extract 实现 FormatExtractor
func (e *TikaExtractor) Extract(ctx context.Context, doc types.Document) (string, error) {
	start := time.Now()

	req := protocol.AcquireRequest()
	resp := protocol.AcquireResponse()
	defer protocol.ReleaseRequest(req)
	defer protocol.ReleaseResponse(resp)

	req.SetRequestURI(e.serverURL + "/tika")
	req.Header.SetMethod(consts.MethodPut)
	req.Header.Set("Accept", "text/plain")
	if ct, ok := tikaContentTypes[CanonicalFormat(doc.Format)]; ok {
		req.Header.SetContentTypeBytes([]byte(ct))
	}
	if doc.Name != "" {
		req.Header.Set("X-Tika-Resource-Name", doc.Name)
	}
	if !e.extractAnnotations {
		req.Header.Set("X-Tika-PDFExtractAnnotationText", "false")
	}
	req.SetBody(doc.Content)

	if err := e.client.DoTimeout(ctx, req, resp, e.timeout); err != nil {
		return "", types.NewExtractionError(doc.Name, fmt.Sprintf("发送请求到Tika服务器失败: %v", err))
	}
	if status := resp.StatusCode(); status != consts.StatusOK {
		// 422 表示 Tika 无法解析该文档
		return "", types.NewExtractionError(doc.Name, fmt.Sprintf("tika服务器返回错误状态码: %d", status))
	}

	text := string(resp.Body())
	e.logger.Debug().
		Str("document", doc.Name).
		Int("chars", len(text)).
		Dur("duration", time.Since(start)).
		Msg("Tika提取完成")
	return text, nil
}
