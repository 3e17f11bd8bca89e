package types

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrorKind 错误分类，作为数据记录在 MatchResult 上
type ErrorKind string

const (
	KindUnsupportedFormat ErrorKind = "unsupported_format"
	KindExtraction        ErrorKind = "extraction"
	KindInvalidBatchInput ErrorKind = "invalid_batch_input"
	KindCancelled         ErrorKind = "cancelled"
)

// 基础错误
var (
	ErrUnsupportedFormat = errors.New("unsupported document format")
	ErrExtraction        = errors.New("text extraction failed")
	ErrInvalidBatchInput = errors.New("invalid batch input")
	ErrCancelled         = errors.New("batch cancelled before document started")
)

var kindSentinels = map[ErrorKind]error{
	KindUnsupportedFormat: ErrUnsupportedFormat,
	KindExtraction:        ErrExtraction,
	KindInvalidBatchInput: ErrInvalidBatchInput,
	KindCancelled:         ErrCancelled,
}

// Err 返回该分类对应的基础错误
func (k ErrorKind) Err() error {
	return kindSentinels[k]
}

func (k ErrorKind) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(k))
}

// DocumentError 带上下文的错误，结构与处理链路中的其它错误保持一致
type DocumentError struct {
	Document string
	Op       string
	Kind     ErrorKind
	BaseErr  error
	Detail   string
}

func (e *DocumentError) Error() string {
	if e.Document == "" {
		if e.Detail != "" {
			return fmt.Sprintf("%s (op:%s): %s", e.BaseErr, e.Op, e.Detail)
		}
		return fmt.Sprintf("%s (op:%s)", e.BaseErr, e.Op)
	}
	if e.Detail != "" {
		return fmt.Sprintf("%s (op:%s, document:%s): %s", e.BaseErr, e.Op, e.Document, e.Detail)
	}
	return fmt.Sprintf("%s (op:%s, document:%s)", e.BaseErr, e.Op, e.Document)
}

func (e *DocumentError) Unwrap() error {
	return e.BaseErr
}

// Is 实现 errors.Is 接口以支持错误比较
func (e *DocumentError) Is(target error) bool {
	return errors.Is(e.BaseErr, target)
}

func newDocumentError(kind ErrorKind, document, op, detail string) error {
	return &DocumentError{
		Document: document,
		Op:       op,
		Kind:     kind,
		BaseErr:  kind.Err(),
		Detail:   detail,
	}
}

// 错误构造函数
func NewUnsupportedFormatError(document, format string) error {
	return newDocumentError(KindUnsupportedFormat, document, "ingest", fmt.Sprintf("format %q is not supported", format))
}

func NewExtractionError(document, detail string) error {
	return newDocumentError(KindExtraction, document, "ingest", detail)
}

func NewInvalidBatchInputError(detail string) error {
	return newDocumentError(KindInvalidBatchInput, "", "submit", detail)
}

func NewCancelledError(document string) error {
	return newDocumentError(KindCancelled, document, "dispatch", "")
}

// KindOf 将任意错误映射到错误分类，无法识别的错误归为 extraction
func KindOf(err error) ErrorKind {
	var docErr *DocumentError
	if errors.As(err, &docErr) && docErr.Kind != "" {
		return docErr.Kind
	}
	for kind, sentinel := range kindSentinels {
		if errors.Is(err, sentinel) {
			return kind
		}
	}
	return KindExtraction
}
