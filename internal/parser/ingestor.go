package parser

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"runtime/debug"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"resume-matcher/internal/logger"
	"resume-matcher/internal/types"
)

// 规范化后的格式名
const (
	FormatText = "txt"
	FormatPDF  = "pdf"
	FormatDOC  = "doc"
	FormatDOCX = "docx"
)

// mimeAliases MIME类型及常见扩展名到规范格式名的映射
var mimeAliases = map[string]string{
	"text/plain":         FormatText,
	"text":               FormatText,
	"text/markdown":      FormatText,
	"md":                 FormatText,
	"application/pdf":    FormatPDF,
	"application/x-pdf":  FormatPDF,
	"application/msword": FormatDOC,
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": FormatDOCX,
}

// CanonicalFormat 将声明的扩展名或MIME类型规范化
// 大小写不敏感，忽略前导点和MIME参数（如 "; charset=utf-8"）
func CanonicalFormat(declared string) string {
	f := strings.ToLower(strings.TrimSpace(declared))
	if i := strings.IndexByte(f, ';'); i >= 0 {
		f = strings.TrimSpace(f[:i])
	}
	f = strings.TrimPrefix(f, ".")
	if canonical, ok := mimeAliases[f]; ok {
		return canonical
	}
	return f
}

// FormatExtractor 某一类格式的文本提取器
type FormatExtractor interface {
	// Formats 返回该提取器处理的规范格式名
	Formats() []string
	// Extract 从文档字节中提取纯文本
	Extract(ctx context.Context, doc types.Document) (string, error)
}

// Ingestor 文档摄取器：校验格式并分派到对应的提取器
// 除读取传入的字节外没有任何副作用
type Ingestor struct {
	supported  map[string]struct{}
	extractors map[string]FormatExtractor
	logger     *zerolog.Logger
}

// IngestorOption 摄取器的配置选项
type IngestorOption func(*Ingestor)

// WithSupportedFormats 覆盖支持的格式集合
func WithSupportedFormats(formats []string) IngestorOption {
	return func(in *Ingestor) {
		in.supported = make(map[string]struct{}, len(formats))
		for _, f := range formats {
			in.supported[CanonicalFormat(f)] = struct{}{}
		}
	}
}

// WithExtractor 注册（或替换）某些格式的提取器
func WithExtractor(extractor FormatExtractor) IngestorOption {
	return func(in *Ingestor) {
		for _, f := range extractor.Formats() {
			in.extractors[CanonicalFormat(f)] = extractor
		}
	}
}

// WithIngestorLogger 设置日志记录器
func WithIngestorLogger(l *zerolog.Logger) IngestorOption {
	return func(in *Ingestor) {
		in.logger = logger.OrNop(l)
	}
}

// NewIngestor 创建摄取器。默认注册 txt/docx/doc 提取器；
// PDF 提取器依赖外部解析器，需要通过 WithExtractor 注入（见 NewDefaultIngestor）
func NewIngestor(opts ...IngestorOption) *Ingestor {
	in := &Ingestor{
		extractors: make(map[string]FormatExtractor),
		logger:     logger.OrNop(nil),
	}
	WithSupportedFormats([]string{FormatText, FormatPDF, FormatDOC, FormatDOCX})(in)
	WithExtractor(NewTextExtractor(""))(in)
	WithExtractor(NewDOCXExtractor())(in)
	WithExtractor(NewDOCExtractor())(in)

	for _, opt := range opts {
		opt(in)
	}
	return in
}

// NewDefaultIngestor 创建包含PDF解析器的完整摄取器
func NewDefaultIngestor(ctx context.Context, textEncoding string, pdfTimeout time.Duration, opts ...IngestorOption) (*Ingestor, error) {
	pdfExtractor, err := NewPDFExtractor(ctx, WithPDFTimeout(pdfTimeout))
	if err != nil {
		return nil, fmt.Errorf("初始化PDF解析器失败: %w", err)
	}
	base := []IngestorOption{
		WithExtractor(NewTextExtractor(textEncoding)),
		WithExtractor(pdfExtractor),
	}
	return NewIngestor(append(base, opts...)...), nil
}

// Supports 是否支持该格式
func (in *Ingestor) Supports(declared string) bool {
	_, ok := in.supported[CanonicalFormat(declared)]
	return ok
}

// ExtractText 将文档转换为纯文本
// 不支持的格式在解析前即返回 UnsupportedFormatError；其它失败返回 ExtractionError
func (in *Ingestor) ExtractText(ctx context.Context, doc types.Document) (text string, err error) {
	declared := doc.Format
	if strings.TrimSpace(declared) == "" {
		declared = filepath.Ext(doc.Name)
	}
	format := CanonicalFormat(declared)

	if _, ok := in.supported[format]; !ok {
		return "", types.NewUnsupportedFormatError(doc.Name, declared)
	}
	extractor, ok := in.extractors[format]
	if !ok {
		return "", types.NewUnsupportedFormatError(doc.Name, declared)
	}
	if len(doc.Content) == 0 {
		return "", types.NewExtractionError(doc.Name, "document is empty")
	}

	start := time.Now()
	defer func() {
		// 第三方解析器在畸形输入上可能panic
		if r := recover(); r != nil {
			in.logger.Error().Str("document", doc.Name).Interface("panic", r).Bytes("stack", debug.Stack()).Msg("文本提取发生panic")
			text, err = "", types.NewExtractionError(doc.Name, fmt.Sprintf("extractor panicked: %v", r))
		}
	}()

	raw, extractErr := extractor.Extract(ctx, doc)
	if extractErr != nil {
		in.logger.Debug().Err(extractErr).Str("document", doc.Name).Str("format", format).Msg("文本提取失败")
		var docErr *types.DocumentError
		if errors.As(extractErr, &docErr) {
			return "", extractErr
		}
		return "", types.NewExtractionError(doc.Name, extractErr.Error())
	}

	text = NormalizeWhitespace(raw)
	if text == "" {
		return "", types.NewExtractionError(doc.Name, "no readable text after extraction")
	}

	in.logger.Debug().
		Str("document", doc.Name).
		Str("format", format).
		Int("chars", len(text)).
		Dur("duration", time.Since(start)).
		Msg("文本提取完成")
	return text, nil
}

// NormalizeWhitespace 去除每行首尾空白并合并多余空行
func NormalizeWhitespace(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	blank := false
	for _, line := range lines {
		line = strings.Join(strings.Fields(line), " ")
		if line == "" {
			if !blank && len(out) > 0 {
				out = append(out, "")
			}
			blank = true
			continue
		}
		blank = false
		out = append(out, line)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}
