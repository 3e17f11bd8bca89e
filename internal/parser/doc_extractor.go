package parser

import (
	"bytes"
	"context"
	"encoding/binary"
	"strings"
	"unicode"
	"unicode/utf16"

	"resume-matcher/internal/types"
)

// oleSignature OLE2 复合文档文件头（.doc 所用的容器）
var oleSignature = []byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1}

// minRunLength 少于该长度的字符片段视为二进制噪声
const minRunLength = 4

// minLetters 去掉容器结构名后至少要有这么多字母，否则视为没有正文
const minLetters = 12

// containerNames 复合文档的目录项、流名与 CompObj 中的类型描述，不属于正文
var containerNames = map[string]bool{
	"root entry":                      true,
	"worddocument":                    true,
	"0table":                          true,
	"1table":                          true,
	"data":                            true,
	"objectpool":                      true,
	"compobj":                         true,
	"summaryinformation":              true,
	"documentsummaryinformation":      true,
	"msworddoc":                       true,
	"word.document.8":                 true,
	"microsoft word 97-2003 document": true,
	"microsoft word document":         true,
	"microsoft office word":           true,
	"normal.dot":                      true,
	"normal.dotm":                     true,
}

// DOCExtractor 旧版 Word 二进制格式的文本恢复
// Word 97-2003 在 WordDocument 流中以 UTF-16LE 或 8 位编码保存正文，
// 这里直接扫描可读字符片段，不解析 FIB/piece table
type DOCExtractor struct{}

func NewDOCExtractor() *DOCExtractor {
	return &DOCExtractor{}
}

func (d *DOCExtractor) Formats() []string {
	return []string{FormatDOC}
}

func (d *DOCExtractor) Extract(_ context.Context, doc types.Document) (string, error) {
	if !bytes.HasPrefix(doc.Content, oleSignature) {
		return "", types.NewExtractionError(doc.Name, "not an OLE2 compound document")
	}
	body := doc.Content[len(oleSignature):]

	wide := utf16Runs(body)
	narrow := asciiRuns(body)

	// 取字母更多的一种解读
	text := wide
	if letterCount(narrow) > letterCount(wide) {
		text = narrow
	}
	if letterCount(text) < minLetters {
		return "", types.NewExtractionError(doc.Name, "no readable text found in legacy document")
	}
	return text, nil
}

func utf16Runs(data []byte) string {
	var runs []string
	var current []uint16
	flush := func() {
		if len(current) >= minRunLength {
			s := string(utf16.Decode(current))
			if isContent(s) {
				runs = append(runs, s)
			}
		}
		current = current[:0]
	}
	for i := 0; i+1 < len(data); i += 2 {
		u := binary.LittleEndian.Uint16(data[i : i+2])
		r := rune(u)
		if r == '\r' || r == '\n' || r == '\t' || (unicode.IsPrint(r) && isLatinRange(r)) {
			current = append(current, u)
			continue
		}
		flush()
	}
	flush()
	return strings.Join(runs, "\n")
}

func asciiRuns(data []byte) string {
	var runs []string
	var current []byte
	flush := func() {
		if len(current) >= minRunLength {
			s := string(current)
			if isContent(s) {
				runs = append(runs, s)
			}
		}
		current = current[:0]
	}
	for _, b := range data {
		if b == '\r' || b == '\n' || b == '\t' || (b >= 0x20 && b < 0x7F) {
			current = append(current, b)
			continue
		}
		flush()
	}
	flush()
	return strings.Join(runs, "\n")
}

// isLatinRange 只接受拉丁字母与常用标点，随机二进制按 UTF-16 解读时多落在CJK区
func isLatinRange(r rune) bool {
	return r < 0x0250 || (r >= 0x2000 && r <= 0x206F)
}

// isContent 含字母且不是容器结构名
func isContent(s string) bool {
	if strings.IndexFunc(s, unicode.IsLetter) < 0 {
		return false
	}
	return !containerNames[strings.ToLower(strings.TrimSpace(s))]
}

func letterCount(s string) int {
	n := 0
	for _, r := range s {
		if unicode.IsLetter(r) {
			n++
		}
	}
	return n
}
