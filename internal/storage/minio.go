package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"career-agent-go/internal/config"
	"career-agent-go/internal/constants"
	appLogger "career-agent-go/internal/logger"
	"career-agent-go/internal/tracing"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/minio/minio-go/v7/pkg/lifecycle"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var minioTracer = otel.Tracer("career-agent-go/storage/minio")

// ObjectStorage 对象存储接口
type ObjectStorage interface {
	// ArchiveOriginal 归档上传的原始简历文件，返回对象键
	ArchiveOriginal(ctx context.Context, userID uint64, filename string, data []byte) (string, error)
	// UploadParsedText 保存提取出的纯文本，对象键与原始文件对应
	UploadParsedText(ctx context.Context, originalKey string, text string) (string, error)
	// DownloadFile 下载原始文件
	DownloadFile(ctx context.Context, objectKey string) ([]byte, error)
	// GetPresignedURL 获取原始文件的预签名URL
	GetPresignedURL(ctx context.Context, objectKey string, expiry time.Duration) (string, error)
	// DeleteFile 删除原始文件及对应的解析文本
	DeleteFile(ctx context.Context, objectKey string) error
}

// 确保MinIO实现了ObjectStorage接口
var _ ObjectStorage = (*MinIO)(nil)

// MinIO 提供对象存储功能
type MinIO struct {
	client         *minio.Client
	cfg            *config.MinIOConfig
	originalBucket string
	parsedBucket   string
	logger         *zerolog.Logger
}

// NewMinIO 创建MinIO客户端
func NewMinIO(cfg *config.MinIOConfig) (*MinIO, error) {
	if cfg == nil {
		return nil, fmt.Errorf("MinIO配置不能为空")
	}
	log := &appLogger.Logger
	log.Info().
		Str("endpoint", cfg.Endpoint).
		Str("original_bucket", cfg.OriginalsBucket).
		Str("parsed_bucket", cfg.ParsedTextBucket).
		Msg("初始化MinIO客户端")

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("创建MinIO客户端失败: %w", err)
	}

	m := &MinIO{
		client:         client,
		cfg:            cfg,
		originalBucket: cfg.OriginalsBucket,
		parsedBucket:   cfg.ParsedTextBucket,
		logger:         log,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	for _, bucket := range []string{m.originalBucket, m.parsedBucket} {
		if err := m.ensureBucketExists(ctx, bucket, cfg.Location); err != nil {
			return nil, err
		}
	}

	if cfg.OriginalFileExpireDays > 0 || cfg.ParsedTextExpireDays > 0 {
		if err := m.setupLifecycleRules(ctx); err != nil {
			// 生命周期规则不影响读写
			log.Warn().Err(err).Msg("设置MinIO生命周期规则失败")
		}
	}

	log.Info().Str("endpoint", cfg.Endpoint).Msg("MinIO客户端初始化完成")
	return m, nil
}

// Ping 检查原始文件存储桶是否可访问
func (m *MinIO) Ping(ctx context.Context) error {
	exists, err := m.client.BucketExists(ctx, m.originalBucket)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("存储桶 %s 不存在", m.originalBucket)
	}
	return nil
}

// ensureBucketExists 确保存储桶存在
func (m *MinIO) ensureBucketExists(ctx context.Context, bucketName, location string) error {
	exists, err := m.client.BucketExists(ctx, bucketName)
	if err != nil {
		return fmt.Errorf("检查存储桶 %s 是否存在时出错: %w", bucketName, err)
	}
	if exists {
		return nil
	}
	if err := m.client.MakeBucket(ctx, bucketName, minio.MakeBucketOptions{Region: location}); err != nil {
		return fmt.Errorf("创建存储桶 %s 失败: %w", bucketName, err)
	}
	m.logger.Info().Str("bucket", bucketName).Msg("存储桶已创建")
	return nil
}

// setupLifecycleRules 设置对象生命周期规则
func (m *MinIO) setupLifecycleRules(ctx context.Context) error {
	if m.cfg.OriginalFileExpireDays > 0 {
		if err := m.setupBucketLifecycle(ctx, m.originalBucket, "expire-originals", m.cfg.OriginalFileExpireDays); err != nil {
			return fmt.Errorf("为原始文件存储桶 %s 设置生命周期失败: %w", m.originalBucket, err)
		}
	}
	if m.cfg.ParsedTextExpireDays > 0 {
		if err := m.setupBucketLifecycle(ctx, m.parsedBucket, "expire-parsed-text", m.cfg.ParsedTextExpireDays); err != nil {
			return fmt.Errorf("为解析文本存储桶 %s 设置生命周期失败: %w", m.parsedBucket, err)
		}
	}
	return nil
}

func (m *MinIO) setupBucketLifecycle(ctx context.Context, bucketName, ruleID string, expiryDays int) error {
	cfg := lifecycle.NewConfiguration()
	cfg.Rules = []lifecycle.Rule{
		{
			ID:     ruleID,
			Status: "Enabled",
			Expiration: lifecycle.Expiration{
				Days: lifecycle.ExpirationDays(expiryDays),
			},
		},
	}
	return m.client.SetBucketLifecycle(ctx, bucketName, cfg)
}

// OriginalObjectKey 原始文件的对象键：resumes/{userID}/{uuid}/original{ext}
func OriginalObjectKey(userID uint64, filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	return fmt.Sprintf("%s/%d/%s/original%s", constants.ResumeObjectPrefix, userID, uuid.NewString(), ext)
}

// ParsedTextObjectKey 与原始文件对应的解析文本对象键
func ParsedTextObjectKey(originalKey string) string {
	dir := strings.TrimPrefix(filepath.ToSlash(filepath.Dir(originalKey)), constants.ResumeObjectPrefix+"/")
	return fmt.Sprintf("%s/%s/parsed_text.txt", constants.ParsedTextObjectPrefix, dir)
}

// ArchiveOriginal 上传原始简历文件到 originals 存储桶
func (m *MinIO) ArchiveOriginal(ctx context.Context, userID uint64, filename string, data []byte) (string, error) {
	objectKey := OriginalObjectKey(userID, filename)
	contentType := getContentType(filepath.Ext(filename))

	ctx, span := minioTracer.Start(ctx, "MinIO.ArchiveOriginal", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	span.SetAttributes(
		attribute.String("minio.bucket", m.originalBucket),
		attribute.String("minio.object_key", objectKey),
		attribute.Int("minio.size", len(data)),
	)

	info, err := m.client.PutObject(ctx, m.originalBucket, objectKey, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeStorage)
		return "", fmt.Errorf("上传对象 %s/%s 失败: %w", m.originalBucket, objectKey, err)
	}
	m.logger.Debug().
		Str("object_key", objectKey).
		Str("etag", info.ETag).
		Int64("size", info.Size).
		Msg("原始简历已归档")
	return objectKey, nil
}

// UploadParsedText 上传解析后的文本到 parsed 存储桶
func (m *MinIO) UploadParsedText(ctx context.Context, originalKey string, text string) (string, error) {
	objectKey := ParsedTextObjectKey(originalKey)
	_, err := m.client.PutObject(ctx, m.parsedBucket, objectKey, strings.NewReader(text), int64(len(text)),
		minio.PutObjectOptions{ContentType: "text/plain; charset=utf-8"})
	if err != nil {
		return "", fmt.Errorf("上传解析文本 %s 到存储桶 %s 失败: %w", objectKey, m.parsedBucket, err)
	}
	return objectKey, nil
}

// DownloadFile 下载原始文件
func (m *MinIO) DownloadFile(ctx context.Context, objectKey string) ([]byte, error) {
	obj, err := m.client.GetObject(ctx, m.originalBucket, objectKey, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("获取对象 %s/%s 失败: %w", m.originalBucket, objectKey, err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, fmt.Errorf("读取对象 %s/%s 数据失败: %w", m.originalBucket, objectKey, err)
	}
	return data, nil
}

// GetPresignedURL 获取预签名URL，expiry 为0时使用配置的有效期
func (m *MinIO) GetPresignedURL(ctx context.Context, objectKey string, expiry time.Duration) (string, error) {
	if expiry <= 0 {
		expiry = time.Duration(m.cfg.PresignExpiryMinutes) * time.Minute
	}
	presignedURL, err := m.client.PresignedGetObject(ctx, m.originalBucket, objectKey, expiry, nil)
	if err != nil {
		return "", fmt.Errorf("生成MinIO预签名URL失败: %w", err)
	}
	return presignedURL.String(), nil
}

// DeleteFile 删除原始文件，解析文本尽力删除
func (m *MinIO) DeleteFile(ctx context.Context, objectKey string) error {
	if err := m.client.RemoveObject(ctx, m.originalBucket, objectKey, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("删除对象 %s 失败: %w", objectKey, err)
	}
	parsedKey := ParsedTextObjectKey(objectKey)
	if err := m.client.RemoveObject(ctx, m.parsedBucket, parsedKey, minio.RemoveObjectOptions{}); err != nil {
		m.logger.Warn().Err(err).Str("object_key", parsedKey).Msg("删除解析文本失败")
	}
	return nil
}

// ContentTypeOf 按文件扩展名推断 Content-Type
func ContentTypeOf(filename string) string {
	return getContentType(filepath.Ext(filename))
}

// 获取内容类型
func getContentType(ext string) string {
	switch strings.ToLower(ext) {
	case ".pdf":
		return "application/pdf"
	case ".doc":
		return "application/msword"
	case ".docx":
		return "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	case ".txt":
		return "text/plain"
	case ".html", ".htm":
		return "text/html"
	default:
		return "application/octet-stream"
	}
}
