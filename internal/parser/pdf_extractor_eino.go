package parser

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/document/parser/pdf"
	einoParser "github.com/cloudwego/eino/components/document/parser"
	ledongpdf "github.com/ledongthuc/pdf"
	"github.com/rs/zerolog"

	"resume-matcher/internal/logger"
	"resume-matcher/internal/types"
)

const defaultPDFTimeout = 30 * time.Second

// PDFExtractor 使用 Eino PDF Parser 提取文本，失败或结果为空时回退到逐页读取
type PDFExtractor struct {
	parser   *pdf.PDFParser
	timeout  time.Duration
	fallback bool
	logger   *zerolog.Logger
}

// PDFOption PDF提取器的配置选项
type PDFOption func(*PDFExtractor)

// WithPDFLogger 配置日志记录器
func WithPDFLogger(l *zerolog.Logger) PDFOption {
	return func(e *PDFExtractor) {
		e.logger = logger.OrNop(l)
	}
}

// WithPDFTimeout 单个文档的解析超时
func WithPDFTimeout(d time.Duration) PDFOption {
	return func(e *PDFExtractor) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// WithPageFallback 是否在 Eino 解析失败时使用逐页读取
func WithPageFallback(enabled bool) PDFOption {
	return func(e *PDFExtractor) {
		e.fallback = enabled
	}
}

// NewPDFExtractor 初始化 PDF 文本提取器
// 不按页面分割，以获取整个文档的连续文本
func NewPDFExtractor(ctx context.Context, options ...PDFOption) (*PDFExtractor, error) {
	p, err := pdf.NewPDFParser(ctx, &pdf.Config{
		ToPages: false,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Eino PDF parser: %w", err)
	}

	extractor := &PDFExtractor{
		parser:   p,
		timeout:  defaultPDFTimeout,
		fallback: true,
		logger:   logger.OrNop(nil),
	}
	for _, option := range options {
		option(extractor)
	}
	return extractor, nil
}

func (e *PDFExtractor) Formats() []string {
	return []string{FormatPDF}
}

// Extract 实现 FormatExtractor
func (e *PDFExtractor) Extract(ctx context.Context, doc types.Document) (string, error) {
	if !bytes.HasPrefix(bytes.TrimLeft(doc.Content, "\x00\t\r\n "), []byte("%PDF-")) {
		return "", types.NewExtractionError(doc.Name, "missing %PDF- header")
	}

	start := time.Now()
	text, err := e.extractWithEino(ctx, doc)
	if err == nil && strings.TrimSpace(text) != "" {
		e.logger.Debug().Str("document", doc.Name).Int("chars", len(text)).Dur("duration", time.Since(start)).Msg("PDF提取完成")
		return text, nil
	}

	if !e.fallback {
		if err == nil {
			err = fmt.Errorf("eino PDF parser returned no text")
		}
		return "", types.NewExtractionError(doc.Name, err.Error())
	}

	e.logger.Debug().Err(err).Str("document", doc.Name).Msg("Eino解析无结果，尝试逐页读取")
	pageText, pageErr := extractPages(doc.Content)
	if pageErr != nil {
		detail := pageErr.Error()
		if err != nil {
			detail = fmt.Sprintf("%v; fallback: %v", err, pageErr)
		}
		return "", types.NewExtractionError(doc.Name, detail)
	}
	e.logger.Debug().Str("document", doc.Name).Int("chars", len(pageText)).Dur("duration", time.Since(start)).Msg("PDF逐页读取完成")
	return pageText, nil
}

func (e *PDFExtractor) extractWithEino(ctx context.Context, doc types.Document) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	docs, err := e.parser.Parse(ctx, bytes.NewReader(doc.Content),
		einoParser.WithURI(doc.Name),
		einoParser.WithExtraMeta(map[string]interface{}{"source_document": doc.Name}),
	)
	if err != nil {
		return "", fmt.Errorf("eino PDF parser failed for %s: %w", doc.Name, err)
	}
	if len(docs) == 0 {
		return "", fmt.Errorf("eino PDF parser returned no documents for %s", doc.Name)
	}

	var sb strings.Builder
	for i, d := range docs {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString(d.Content)
	}
	return sb.String(), nil
}

// extractPages 使用 ledongthuc/pdf 逐页读取纯文本，跳过无法解析的页面
func extractPages(data []byte) (string, error) {
	r, err := ledongpdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("failed to open PDF: %w", err)
	}

	var sb strings.Builder
	for pageIndex := 1; pageIndex <= r.NumPage(); pageIndex++ {
		page := r.Page(pageIndex)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		sb.WriteString(text)
		sb.WriteString("\n\n")
	}

	text := sb.String()
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("no text content found in PDF")
	}
	return text, nil
}
