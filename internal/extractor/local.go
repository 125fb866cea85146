package extractor

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/nguyenthenguyen/docx"
)

const docxMimeType = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"

var (
	xmlTagPattern      = regexp.MustCompile(`<[^>]+>`)
	inlineSpacePattern = regexp.MustCompile(`[ \t\r\f\v]+`)
	blankLinesPattern  = regexp.MustCompile(`\n\s*\n+`)
)

// LocalParser 进程内解析PDF和DOCX，不依赖外部服务
type LocalParser struct{}

var _ DocumentParser = (*LocalParser)(nil)

// NewLocalParser 创建本地解析后端
func NewLocalParser() *LocalParser {
	return &LocalParser{}
}

// Name 实现 DocumentParser
func (p *LocalParser) Name() string {
	return "local"
}

// Parse 实现 DocumentParser
func (p *LocalParser) Parse(ctx context.Context, data []byte, filename, mimeType string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	switch {
	case isPDF(filename, mimeType):
		return extractPDFText(data)
	case isDocx(filename, mimeType):
		return extractDocxText(data)
	default:
		return "", ErrUnsupportedFormat
	}
}

func isDocx(filename, mimeType string) bool {
	if strings.EqualFold(filepath.Ext(filename), ".docx") {
		return true
	}
	return strings.EqualFold(strings.TrimSpace(mimeType), docxMimeType)
}

// extractPDFText 逐页提取，空页跳过
func extractPDFText(data []byte) (text string, err error) {
	// 损坏的PDF可能在解析库内部panic
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("解析PDF时发生异常: %v", r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("failed to read pdf: %w", err)
	}

	var builder strings.Builder
	numPages := reader.NumPage()
	for i := 1; i <= numPages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		pageText, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		builder.WriteString(pageText)
		builder.WriteString("\n")
	}
	return normalizeWhitespace(builder.String()), nil
}

// extractDocxText 读取 word/document.xml 内容并去掉XML标签
func extractDocxText(data []byte) (string, error) {
	doc, err := docx.ReadDocxFromMemory(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("failed to parse docx: %w", err)
	}
	defer doc.Close()

	content := doc.Editable().GetContent()
	content = strings.ReplaceAll(content, "</w:p>", "\n")
	content = strings.ReplaceAll(content, "<w:tab/>", "\t")
	content = xmlTagPattern.ReplaceAllString(content, "")
	return normalizeWhitespace(unescapeXML(content)), nil
}

var xmlUnescaper = strings.NewReplacer(
	"&lt;", "<",
	"&gt;", ">",
	"&quot;", `"`,
	"&apos;", "'",
	"&amp;", "&",
)

func unescapeXML(s string) string {
	return xmlUnescaper.Replace(s)
}

func normalizeWhitespace(s string) string {
	s = strings.ReplaceAll(s, "\u00a0", " ")
	s = inlineSpacePattern.ReplaceAllString(s, " ")
	s = blankLinesPattern.ReplaceAllString(s, "\n")
	return strings.TrimSpace(s)
}
