package extractor

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/document/parser/pdf"
	einoParser "github.com/cloudwego/eino/components/document/parser"
)

// EinoPDFParser 使用 Eino PDF Parser 提取文本，仅支持PDF
type EinoPDFParser struct {
	parser  *pdf.PDFParser
	timeout time.Duration
}

var _ DocumentParser = (*EinoPDFParser)(nil)

// NewEinoPDFParser 初始化 Eino PDF 解析后端
// 不按页面分割，获取整个文档的连续文本
func NewEinoPDFParser(ctx context.Context) (*EinoPDFParser, error) {
	p, err := pdf.NewPDFParser(ctx, &pdf.Config{
		ToPages: false,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Eino PDF parser: %w", err)
	}
	return &EinoPDFParser{parser: p, timeout: 30 * time.Second}, nil
}

// Name 实现 DocumentParser
func (e *EinoPDFParser) Name() string {
	return "eino-pdf"
}

// Parse 实现 DocumentParser
func (e *EinoPDFParser) Parse(ctx context.Context, data []byte, filename, mimeType string) (string, error) {
	if !isPDF(filename, mimeType) {
		return "", ErrUnsupportedFormat
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	docs, err := e.parser.Parse(ctx, bytes.NewReader(data),
		einoParser.WithURI(filename),
		einoParser.WithExtraMeta(map[string]any{
			"source_file_name": filename,
			"extraction_time":  time.Now().Format(time.RFC3339),
		}),
	)
	if err != nil {
		return "", fmt.Errorf("eino PDF parser failed for %s: %w", filename, err)
	}
	if len(docs) == 0 {
		return "", fmt.Errorf("eino PDF parser returned no documents for %s", filename)
	}

	parts := make([]string, 0, len(docs))
	for _, doc := range docs {
		parts = append(parts, doc.Content)
	}
	return strings.Join(parts, "\n\n"), nil
}

func isPDF(filename, mimeType string) bool {
	if strings.EqualFold(filepath.Ext(filename), ".pdf") {
		return true
	}
	return strings.EqualFold(strings.TrimSpace(mimeType), "application/pdf")
}
