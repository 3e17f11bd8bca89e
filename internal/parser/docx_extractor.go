package parser

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"resume-matcher/internal/types"
)

const docxBodyPart = "word/document.xml"

// maxDocxXMLSize 限制解压后的正文大小，防止压缩炸弹
const maxDocxXMLSize = 32 << 20

// DOCXExtractor 从 word/document.xml 中读取段落文本
type DOCXExtractor struct{}

func NewDOCXExtractor() *DOCXExtractor {
	return &DOCXExtractor{}
}

func (d *DOCXExtractor) Formats() []string {
	return []string{FormatDOCX}
}

func (d *DOCXExtractor) Extract(_ context.Context, doc types.Document) (string, error) {
	reader, err := zip.NewReader(bytes.NewReader(doc.Content), int64(len(doc.Content)))
	if err != nil {
		return "", types.NewExtractionError(doc.Name, fmt.Sprintf("not a valid docx container: %v", err))
	}

	for _, file := range reader.File {
		if file.Name != docxBodyPart {
			continue
		}
		rc, err := file.Open()
		if err != nil {
			return "", types.NewExtractionError(doc.Name, fmt.Sprintf("open %s: %v", docxBodyPart, err))
		}
		defer rc.Close()

		text, err := parseDocumentXML(io.LimitReader(rc, maxDocxXMLSize))
		if err != nil {
			return "", types.NewExtractionError(doc.Name, fmt.Sprintf("parse %s: %v", docxBodyPart, err))
		}
		return text, nil
	}
	return "", types.NewExtractionError(doc.Name, "docx container has no "+docxBodyPart)
}

// parseDocumentXML 以流式方式遍历XML：w:t 为文本，w:tab 为制表符，w:br 与段落结束为换行
// 表格中的段落同样会被读取
func parseDocumentXML(r io.Reader) (string, error) {
	decoder := xml.NewDecoder(r)
	var sb strings.Builder
	inText := false

	for {
		tok, err := decoder.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", err
		}

		switch el := tok.(type) {
		case xml.StartElement:
			switch el.Name.Local {
			case "t":
				inText = true
			case "tab":
				sb.WriteByte('\t')
			case "br", "cr":
				sb.WriteByte('\n')
			}
		case xml.EndElement:
			switch el.Name.Local {
			case "t":
				inText = false
			case "p":
				sb.WriteByte('\n')
			}
		case xml.CharData:
			if inText {
				sb.Write(el)
			}
		}
	}
	return sb.String(), nil
}
