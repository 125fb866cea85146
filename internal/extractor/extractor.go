// Package extractor 把上传文件的原始字节转换为纯文本。
// 纯文本文件直接按UTF-8解码，其余格式交给配置的文档解析后端（Tika、Eino或本地解析库）。
package extractor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"career-agent-go/internal/config"
	"career-agent-go/internal/logger"
	"career-agent-go/internal/tracing"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var (
	// ErrUnreadableDocument 无法从文件中得到文本，上传失败
	ErrUnreadableDocument = errors.New("无法读取简历文件内容")
	// ErrUnsupportedFormat 后端不支持该文件格式
	ErrUnsupportedFormat = errors.New("不支持的文件格式")
)

var extractorTracer = otel.Tracer("career-agent-go/extractor")

// plainTextExtensions 直接解码、不经过解析后端的扩展名
var plainTextExtensions = map[string]bool{
	".txt":  true,
	".text": true,
	".md":   true,
}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// UnreadableDocumentError 文本提取失败的详细信息
type UnreadableDocumentError struct {
	Filename string
	Reason   string
	Cause    error
}

func (e *UnreadableDocumentError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s (文件:%s): %s: %v", ErrUnreadableDocument, e.Filename, e.Reason, e.Cause)
	}
	return fmt.Sprintf("%s (文件:%s): %s", ErrUnreadableDocument, e.Filename, e.Reason)
}

func (e *UnreadableDocumentError) Unwrap() error {
	return e.Cause
}

// Is 实现 errors.Is 接口以支持错误比较
func (e *UnreadableDocumentError) Is(target error) bool {
	return target == ErrUnreadableDocument
}

// DocumentParser 二进制文档解析后端
type DocumentParser interface {
	// Name 后端名称，用于日志
	Name() string
	// Parse 返回文档的纯文本，不支持的格式返回 ErrUnsupportedFormat
	Parse(ctx context.Context, data []byte, filename, mimeType string) (string, error)
}

// TextExtractor 纯函数式的文本提取器，无副作用，可并发使用
type TextExtractor struct {
	backend DocumentParser
	logger  *zerolog.Logger
}

// Option 配置 TextExtractor
type Option func(*TextExtractor)

// WithLogger 设置日志记录器
func WithLogger(l *zerolog.Logger) Option {
	return func(e *TextExtractor) {
		e.logger = l
	}
}

// New 创建文本提取器，backend 为 nil 时只能处理纯文本
func New(backend DocumentParser, opts ...Option) *TextExtractor {
	e := &TextExtractor{backend: backend}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = &logger.Logger
	}
	return e
}

// NewFromConfig 按配置选择解析后端
func NewFromConfig(ctx context.Context, cfg config.ExtractorConfig) (*TextExtractor, error) {
	var backend DocumentParser
	switch strings.ToLower(cfg.Backend) {
	case "", "tika":
		backend = NewTikaParser(cfg.Tika.ServerURL,
			WithTikaTimeout(time.Duration(cfg.Tika.Timeout)*time.Second))
	case "eino":
		p, err := NewEinoPDFParser(ctx)
		if err != nil {
			return nil, err
		}
		backend = p
	case "local":
		backend = NewLocalParser()
	default:
		return nil, fmt.Errorf("未知的文本提取后端: %s", cfg.Backend)
	}
	return New(backend), nil
}

// IsPlainText 按扩展名（其次按MIME）判断是否为纯文本文件
func IsPlainText(filename, mimeType string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	if ext != "" {
		return plainTextExtensions[ext]
	}
	mt := strings.ToLower(strings.TrimSpace(mimeType))
	return strings.HasPrefix(mt, "text/plain") || strings.HasPrefix(mt, "text/markdown")
}

// Extract 提取文本。结果为空白时视为无法读取。
func (e *TextExtractor) Extract(ctx context.Context, data []byte, filename, mimeType string) (string, error) {
	ctx, span := extractorTracer.Start(ctx, "extractor.extract")
	defer span.End()
	span.SetAttributes(
		attribute.String("file.name", tracing.SafeAttributeValue("file.name", filename, tracing.DefaultMaxLength)),
		attribute.Int("file.size", len(data)),
	)

	if len(data) == 0 {
		err := &UnreadableDocumentError{Filename: filename, Reason: "文件为空"}
		tracing.RecordError(span, err, tracing.ErrorTypeValidation)
		return "", err
	}

	start := time.Now()
	var (
		text    string
		err     error
		backend = "plain"
	)
	if IsPlainText(filename, mimeType) {
		text = decodePlainText(data)
	} else {
		if e.backend == nil {
			err = &UnreadableDocumentError{Filename: filename, Reason: "未配置文档解析后端", Cause: ErrUnsupportedFormat}
			tracing.RecordError(span, err, tracing.ErrorTypeExtraction)
			return "", err
		}
		backend = e.backend.Name()
		text, err = e.backend.Parse(ctx, data, filename, mimeType)
		if err != nil {
			wrapped := &UnreadableDocumentError{Filename: filename, Reason: backend + " 解析失败", Cause: err}
			tracing.RecordError(span, wrapped, tracing.ErrorTypeExtraction)
			e.logger.Warn().Err(err).Str("file", filename).Str("backend", backend).Msg("文档解析失败")
			return "", wrapped
		}
	}

	text = strings.TrimSpace(text)
	if text == "" {
		err = &UnreadableDocumentError{Filename: filename, Reason: "未提取到任何文本"}
		tracing.RecordError(span, err, tracing.ErrorTypeExtraction)
		return "", err
	}

	span.SetAttributes(attribute.Int("text.length", len(text)), attribute.String("extractor.backend", backend))
	e.logger.Debug().
		Str("file", filename).
		Str("backend", backend).
		Int("text_length", len(text)).
		Dur("elapsed", time.Since(start)).
		Msg("文本提取完成")
	return text, nil
}

// decodePlainText 去掉BOM，非法UTF-8序列替换为U+FFFD
func decodePlainText(data []byte) string {
	data = bytes.TrimPrefix(data, utf8BOM)
	return strings.ToValidUTF8(string(data), "�")
}
