package extractor

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// TikaParser 基于Apache Tika服务器的文档解析后端，支持PDF、DOC、DOCX等Tika能识别的格式
type TikaParser struct {
	// Tika服务器地址，例如 http://localhost:9998
	ServerURL string
	// HTTP客户端，可配置超时等参数
	Client *http.Client
	// 是否提取链接注释文本
	extractAnnotations bool
}

// TikaOption 定义配置选项函数
type TikaOption func(*TikaParser)

// WithTikaTimeout 配置HTTP客户端超时时间
func WithTikaTimeout(timeout time.Duration) TikaOption {
	return func(p *TikaParser) {
		if timeout > 0 {
			p.Client.Timeout = timeout
		}
	}
}

// WithAnnotations 配置是否提取PDF链接注释文本
func WithAnnotations(extract bool) TikaOption {
	return func(p *TikaParser) {
		p.extractAnnotations = extract
	}
}

var _ DocumentParser = (*TikaParser)(nil)

// NewTikaParser 创建Tika解析后端
func NewTikaParser(serverURL string, options ...TikaOption) *TikaParser {
	p := &TikaParser{
		ServerURL:          strings.TrimRight(serverURL, "/"),
		Client:             &http.Client{Timeout: 60 * time.Second},
		extractAnnotations: true, // 默认提取注释文本
	}
	for _, option := range options {
		option(p)
	}
	return p
}

// Name 实现 DocumentParser
func (p *TikaParser) Name() string {
	return "tika"
}

// Parse 以纯文本模式调用 PUT /tika
func (p *TikaParser) Parse(ctx context.Context, data []byte, filename, mimeType string) (string, error) {
	url := fmt.Sprintf("%s/tika", p.ServerURL)

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("创建HTTP请求失败: %w", err)
	}

	contentType := mimeType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "text/plain")
	// 让Tika根据文件名辅助识别格式
	if filename != "" {
		req.Header.Set("X-Tika-Resource-Name", filename)
	}
	if !p.extractAnnotations {
		req.Header.Set("X-Tika-PDFExtractAnnotationText", "false")
	}

	resp, err := p.Client.Do(req)
	if err != nil {
		return "", fmt.Errorf("发送请求到Tika服务器失败: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnsupportedMediaType:
		return "", ErrUnsupportedFormat
	case resp.StatusCode != http.StatusOK:
		return "", fmt.Errorf("tika服务器返回错误状态码: %d", resp.StatusCode)
	}

	textBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("读取Tika响应失败: %w", err)
	}
	return string(textBytes), nil
}
