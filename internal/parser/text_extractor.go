package parser

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/unicode"

	"resume-matcher/internal/types"
)

var (
	bomUTF8    = []byte{0xEF, 0xBB, 0xBF}
	bomUTF16LE = []byte{0xFF, 0xFE}
	bomUTF16BE = []byte{0xFE, 0xFF}
)

// TextExtractor 纯文本文档提取器，按声明的编码解码
type TextExtractor struct {
	encodingName string
}

// NewTextExtractor 创建纯文本提取器，encodingName 为空时使用 utf-8
func NewTextExtractor(encodingName string) *TextExtractor {
	if strings.TrimSpace(encodingName) == "" {
		encodingName = "utf-8"
	}
	return &TextExtractor{encodingName: encodingName}
}

func (t *TextExtractor) Formats() []string {
	return []string{FormatText}
}

func (t *TextExtractor) Extract(_ context.Context, doc types.Document) (string, error) {
	text, err := DecodeText(doc.Content, t.encodingName)
	if err != nil {
		return "", types.NewExtractionError(doc.Name, err.Error())
	}
	return text, nil
}

// DecodeText 按声明的编码解码字节。BOM 优先于声明的编码
func DecodeText(data []byte, encodingName string) (string, error) {
	switch {
	case bytes.HasPrefix(data, bomUTF8):
		return decodeUTF8(data[len(bomUTF8):])
	case bytes.HasPrefix(data, bomUTF16LE):
		return decodeUTF16(data, unicode.UTF16(unicode.LittleEndian, unicode.ExpectBOM))
	case bytes.HasPrefix(data, bomUTF16BE):
		return decodeUTF16(data, unicode.UTF16(unicode.BigEndian, unicode.ExpectBOM))
	}

	enc, err := htmlindex.Get(encodingName)
	if err != nil {
		return "", fmt.Errorf("unknown text encoding %q", encodingName)
	}
	name, _ := htmlindex.Name(enc)

	switch name {
	case "utf-8":
		return decodeUTF8(data)
	case "utf-16le", "utf-16be":
		return decodeUTF16(data, enc)
	}

	out, err := enc.NewDecoder().Bytes(data)
	if err != nil {
		return "", fmt.Errorf("decode %s: %w", name, err)
	}
	return checkNoBinary(string(out))
}

func decodeUTF8(data []byte) (string, error) {
	if !utf8.Valid(data) {
		return "", fmt.Errorf("content is not valid utf-8")
	}
	return checkNoBinary(string(data))
}

func decodeUTF16(data []byte, enc encoding.Encoding) (string, error) {
	if len(data)%2 != 0 {
		return "", fmt.Errorf("utf-16 content has odd byte length %d", len(data))
	}
	out, err := enc.NewDecoder().Bytes(data)
	if err != nil {
		return "", fmt.Errorf("decode utf-16: %w", err)
	}
	s := string(out)
	if strings.ContainsRune(s, utf8.RuneError) {
		return "", fmt.Errorf("content contains invalid utf-16 sequences")
	}
	return checkNoBinary(s)
}

// checkNoBinary 含NUL字符的内容视为二进制文件
func checkNoBinary(s string) (string, error) {
	if strings.ContainsRune(s, 0) {
		return "", fmt.Errorf("content looks binary (NUL byte found)")
	}
	return s, nil
}
