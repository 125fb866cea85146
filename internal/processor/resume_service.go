package processor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"
	"unicode/utf8"

	"career-agent-go/internal/constants"
	"career-agent-go/internal/logger"
	"career-agent-go/internal/pipeline"
	"career-agent-go/internal/storage"
	"career-agent-go/internal/storage/models"
	"career-agent-go/internal/tracing"
	"career-agent-go/internal/types"

	"github.com/gofrs/uuid/v5"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"gorm.io/datatypes"
)

// 定义tracer
var tracer = otel.Tracer("career-agent-go/processor")

// UploadLocker 用户级上传锁，storage.Redis 实现了它
type UploadLocker interface {
	AcquireLock(ctx context.Context, lockKey string, expiration time.Duration) (string, error)
	ReleaseLock(ctx context.Context, lockKey string, lockValue string) (bool, error)
}

// UploadResult 一次上传的结果
type UploadResult struct {
	Resume       *models.Resume
	Version      *models.ResumeVersion
	Parsed       *types.ParsedResume
	Report       string
	ReportStatus string
	ReportError  string
}

// ResumeService 编排简历上传：分析流水线、版本存储、当前简历投影、原始文件归档和事件
type ResumeService struct {
	pipeline   *pipeline.Pipeline
	versions   *storage.ResumeVersionStore
	projection *storage.ResumeProjectionSync

	objects       storage.ObjectStorage
	locker        UploadLocker
	lockTTL       time.Duration
	exchange      string
	routingKey    string
	maxFileSize   int64
	presignExpiry time.Duration

	logger *zerolog.Logger
	now    func() time.Time
}

// NewResumeService 创建简历服务
func NewResumeService(p *pipeline.Pipeline, versions *storage.ResumeVersionStore, projection *storage.ResumeProjectionSync, opts ...Option) *ResumeService {
	s := &ResumeService{
		pipeline:   p,
		versions:   versions,
		projection: projection,
		lockTTL:    3 * time.Minute,
		logger:     &logger.Logger,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// UploadAndAnalyze 解析上传的简历，生成新版本并更新当前简历。
// 文本提取或结构化提取失败时不产生任何版本；报告失败时版本照常写入，报告留空。
func (s *ResumeService) UploadAndAnalyze(ctx context.Context, userID uint64, doc pipeline.Document, note *string) (*UploadResult, error) {
	ctx, span := tracer.Start(ctx, "ResumeService.UploadAndAnalyze")
	defer span.End()
	span.SetAttributes(
		attribute.Int64("user.id", int64(userID)),
		attribute.String("file.name", tracing.SafeAttributeValue("file.name", doc.Filename, tracing.DefaultMaxLength)),
		attribute.Int("file.size", len(doc.Data)),
	)

	if userID == 0 {
		return nil, ErrInvalidUser
	}
	if len(doc.Data) == 0 {
		return nil, ErrEmptyFile
	}
	if s.maxFileSize > 0 && int64(len(doc.Data)) > s.maxFileSize {
		return nil, fmt.Errorf("%w: %d > %d 字节", ErrFileTooLarge, len(doc.Data), s.maxFileSize)
	}
	if utf8.RuneCountInString(doc.Filename) > constants.MaxFileNameLength {
		return nil, fmt.Errorf("%w: 最多 %d 个字符", ErrFileNameTooLong, constants.MaxFileNameLength)
	}
	if note != nil && utf8.RuneCountInString(*note) > constants.MaxVersionNoteLength {
		return nil, fmt.Errorf("%w: 最多 %d 个字符", ErrNoteTooLong, constants.MaxVersionNoteLength)
	}

	unlock, err := s.lockUser(ctx, userID)
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeValidation)
		return nil, err
	}
	defer unlock()

	log := s.logger.With().Uint64("user_id", userID).Str("file", doc.Filename).Logger()
	log.Info().Int("size", len(doc.Data)).Msg("开始处理上传的简历")

	analysis, err := s.pipeline.Analyze(ctx, doc)
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeInternal)
		log.Warn().Err(err).Msg("简历分析失败，不创建版本")
		return nil, NewAnalyzeError(userID, err)
	}
	parsed := analysis.Parsed

	objectKey := s.archiveOriginal(ctx, userID, doc, parsed.RawText)

	version, err := s.newVersion(doc, objectKey, analysis, note)
	if err != nil {
		s.discardArchive(ctx, objectKey)
		return nil, NewPersistError(userID, "build_version", err)
	}
	// 首次上传的简历行与版本行同一事务写入，版本失败时不留下简历
	resolve := s.projection.Resolver(userID, parsed)
	if err := s.versions.AppendResolved(ctx, version, resolve, s.versionEvents(userID)); err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeDB)
		s.discardArchive(ctx, objectKey)
		return nil, NewPersistError(userID, "append_version", err)
	}
	span.SetAttributes(attribute.Int("version.number", version.VersionNumber))

	// 版本已提交；投影失败时版本仍然有效，当前简历保持旧值直到下次成功上传
	current, err := s.projection.Apply(ctx, userID, parsed)
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeDB)
		log.Error().Err(err).Uint64("version_id", version.ID).Msg("当前简历更新失败，版本已保存")
		return nil, NewPersistError(userID, "apply_projection", err)
	}

	result := &UploadResult{
		Resume:       current,
		Version:      version,
		Parsed:       parsed,
		Report:       analysis.Report,
		ReportStatus: analysis.ReportStatus(),
	}
	if analysis.ReportErr != nil {
		result.ReportError = analysis.ReportErr.Error()
	}

	log.Info().
		Uint64("resume_id", version.ResumeID).
		Uint64("version_id", version.ID).
		Int("version_number", version.VersionNumber).
		Str("report_status", result.ReportStatus).
		Msg("简历上传处理完成")
	return result, nil
}

// lockUser 获取用户上传锁。锁被占用返回 ErrUploadInProgress；Redis 本身不可用时跳过加锁。
func (s *ResumeService) lockUser(ctx context.Context, userID uint64) (func(), error) {
	if s.locker == nil {
		return func() {}, nil
	}
	key := storage.UploadLockKey(userID)
	value, err := s.locker.AcquireLock(ctx, key, s.lockTTL)
	if errors.Is(err, storage.ErrLockNotAcquired) {
		return nil, &ResumeProcessError{UserID: userID, Op: "lock", BaseErr: ErrUploadInProgress}
	}
	if err != nil {
		s.logger.Warn().Err(err).Uint64("user_id", userID).Msg("获取上传锁失败，继续处理")
		return func() {}, nil
	}
	return func() {
		// 请求取消后仍需释放锁
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 3*time.Second)
		defer cancel()
		if _, err := s.locker.ReleaseLock(releaseCtx, key, value); err != nil {
			s.logger.Warn().Err(err).Uint64("user_id", userID).Msg("释放上传锁失败")
		}
	}, nil
}

// archiveOriginal 归档原始文件和提取出的文本，失败只记录日志，返回空对象键
func (s *ResumeService) archiveOriginal(ctx context.Context, userID uint64, doc pipeline.Document, text string) string {
	if s.objects == nil {
		return ""
	}
	key, err := s.objects.ArchiveOriginal(ctx, userID, doc.Filename, doc.Data)
	if err != nil {
		s.logger.Warn().Err(err).Uint64("user_id", userID).Msg("归档原始简历失败")
		return ""
	}
	if _, err := s.objects.UploadParsedText(ctx, key, text); err != nil {
		s.logger.Warn().Err(err).Str("object_key", key).Msg("保存解析文本失败")
	}
	return key
}

// discardArchive 版本未写入时删除已归档的文件
func (s *ResumeService) discardArchive(ctx context.Context, objectKey string) {
	if s.objects == nil || objectKey == "" {
		return
	}
	if err := s.objects.DeleteFile(ctx, objectKey); err != nil {
		s.logger.Warn().Err(err).Str("object_key", objectKey).Msg("清理归档文件失败")
	}
}

func (s *ResumeService) newVersion(doc pipeline.Document, objectKey string, analysis *pipeline.AnalysisResult, note *string) (*models.ResumeVersion, error) {
	parsedJSON, err := json.Marshal(analysis.Parsed)
	if err != nil {
		return nil, fmt.Errorf("序列化解析结果失败: %w", err)
	}
	now := s.now()
	meta := pipeline.NewAnalysisMetadata(s.pipeline.ModelName(), analysis.Parsed, analysis.ReportErr, now)

	v := &models.ResumeVersion{
		FileName:         doc.Filename,
		FileSize:         int64(len(doc.Data)),
		FileObjectKey:    objectKey,
		RawText:          analysis.Parsed.RawText,
		ParsedData:       string(parsedJSON),
		AnalysisMetadata: datatypes.JSON(meta.JSON()),
		UploadTime:       now,
		VersionNote:      note,
	}
	if analysis.HasReport() {
		report := analysis.Report
		v.AnalysisReport = &report
	}
	return v, nil
}

// versionEvents 构造版本创建事件；未配置交换机时不写 outbox
func (s *ResumeService) versionEvents(userID uint64) storage.EventBuilder {
	if s.exchange == "" {
		return nil
	}
	return func(v *models.ResumeVersion) ([]*models.OutboxMessage, error) {
		eventID, err := uuid.NewV7()
		if err != nil {
			return nil, fmt.Errorf("生成事件ID失败: %w", err)
		}
		payload, err := json.Marshal(storage.ResumeVersionCreatedMessage{
			EventID:       eventID.String(),
			UserID:        userID,
			ResumeID:      v.ResumeID,
			VersionID:     v.ID,
			VersionNumber: v.VersionNumber,
			FileName:      v.FileName,
			FileObjectKey: v.FileObjectKey,
			HasAnalysis:   v.HasAnalysis(),
			CreatedAt:     v.UploadTime,
		})
		if err != nil {
			return nil, err
		}
		return []*models.OutboxMessage{{
			AggregateID:      strconv.FormatUint(v.ID, 10),
			EventType:        storage.EventResumeVersionCreated,
			Payload:          string(payload),
			TargetExchange:   s.exchange,
			TargetRoutingKey: s.routingKey,
			Status:           models.OutboxStatusPending,
		}}, nil
	}
}

// RegenerateReport 用版本保存的解析结果重新生成报告并回填
func (s *ResumeService) RegenerateReport(ctx context.Context, userID, versionID uint64) (*models.ResumeVersion, error) {
	ctx, span := tracer.Start(ctx, "ResumeService.RegenerateReport")
	defer span.End()

	v, err := s.ownedVersion(ctx, userID, versionID)
	if err != nil {
		return nil, err
	}
	if v.ParsedData == "" {
		return nil, &ResumeProcessError{UserID: userID, Op: "regenerate", BaseErr: ErrNoParsedData}
	}

	parsed := types.NewParsedResume()
	if err := json.Unmarshal([]byte(v.ParsedData), parsed); err != nil {
		return nil, &ResumeProcessError{UserID: userID, Op: "regenerate", BaseErr: ErrNoParsedData, Detail: err.Error()}
	}
	parsed.EnsureCollections()
	if parsed.RawText == "" {
		parsed.RawText = v.RawText
	}

	report, reportErr := s.pipeline.GenerateReport(ctx, parsed)
	meta := pipeline.NewAnalysisMetadata(s.pipeline.ModelName(), parsed, reportErr, s.now())
	if reportErr != nil {
		tracing.RecordError(span, reportErr, tracing.ErrorTypeLLM)
		// 只更新元数据，保留已有报告
		if err := s.versions.UpdateAnalysis(ctx, v.ID, v.AnalysisReport, datatypes.JSON(meta.JSON())); err != nil {
			s.logger.Warn().Err(err).Uint64("version_id", v.ID).Msg("更新报告元数据失败")
		}
		return nil, NewAnalyzeError(userID, reportErr)
	}

	if err := s.versions.UpdateAnalysis(ctx, v.ID, &report, datatypes.JSON(meta.JSON())); err != nil {
		return nil, NewPersistError(userID, "update_analysis", err)
	}
	s.logger.Info().Uint64("user_id", userID).Uint64("version_id", v.ID).Msg("分析报告已重新生成")
	return s.versions.Get(ctx, v.ID)
}

// SaveParsedResult 用户确认或修改解析结果后写入当前简历，不产生新版本
func (s *ResumeService) SaveParsedResult(ctx context.Context, userID uint64, parsed *types.ParsedResume) (*models.Resume, error) {
	if userID == 0 {
		return nil, ErrInvalidUser
	}
	if parsed == nil {
		parsed = types.NewParsedResume()
	}
	parsed.EnsureCollections()
	for i := range parsed.Skills {
		if parsed.Skills[i].Level < 1 || parsed.Skills[i].Level > 5 {
			parsed.Skills[i].Level = types.DefaultSkillLevel
		}
		if parsed.Skills[i].Years < 0 {
			parsed.Skills[i].Years = 0
		}
	}

	resume, err := s.projection.Apply(ctx, userID, parsed)
	if err != nil {
		return nil, NewPersistError(userID, "save_parsed", err)
	}
	return resume, nil
}

// GetCurrentResume 用户当前简历，没有时返回 nil, nil
func (s *ResumeService) GetCurrentResume(ctx context.Context, userID uint64) (*models.Resume, error) {
	resume, err := s.projection.Current(ctx, userID)
	if err != nil {
		return nil, NewPersistError(userID, "current_resume", err)
	}
	return resume, nil
}

// ListVersions 用户的版本列表，按版本号倒序
func (s *ResumeService) ListVersions(ctx context.Context, userID uint64, limit int) ([]models.ResumeVersion, error) {
	resume, err := s.projection.ResumeOf(ctx, userID)
	if err != nil {
		return nil, NewPersistError(userID, "list_versions", err)
	}
	if resume == nil {
		return []models.ResumeVersion{}, nil
	}
	versions, err := s.versions.List(ctx, resume.ID, limit)
	if err != nil {
		return nil, NewPersistError(userID, "list_versions", err)
	}
	return versions, nil
}

// GetVersion 版本详情
func (s *ResumeService) GetVersion(ctx context.Context, userID, versionID uint64) (*models.ResumeVersion, error) {
	return s.ownedVersion(ctx, userID, versionID)
}

// DeleteVersion 删除单个版本，不影响其他版本和当前简历
func (s *ResumeService) DeleteVersion(ctx context.Context, userID, versionID uint64) error {
	v, err := s.ownedVersion(ctx, userID, versionID)
	if err != nil {
		return err
	}
	if err := s.versions.Delete(ctx, v.ID); err != nil {
		if errors.Is(err, storage.ErrVersionNotFound) {
			return NewVersionNotFoundError(userID, versionID)
		}
		return NewPersistError(userID, "delete_version", err)
	}
	if s.objects != nil && v.FileObjectKey != "" {
		if err := s.objects.DeleteFile(ctx, v.FileObjectKey); err != nil {
			s.logger.Warn().Err(err).Str("object_key", v.FileObjectKey).Msg("删除归档文件失败")
		}
	}
	s.logger.Info().Uint64("user_id", userID).Uint64("version_id", versionID).Msg("简历版本已删除")
	return nil
}

// FileURL 归档原始文件的预签名下载链接
func (s *ResumeService) FileURL(ctx context.Context, userID, versionID uint64) (string, error) {
	v, err := s.ownedVersion(ctx, userID, versionID)
	if err != nil {
		return "", err
	}
	if s.objects == nil {
		return "", ErrStorageNotInit
	}
	if v.FileObjectKey == "" {
		return "", &ResumeProcessError{UserID: userID, Op: "file_url", BaseErr: ErrFileNotArchived}
	}
	return s.objects.GetPresignedURL(ctx, v.FileObjectKey, s.presignExpiry)
}

// OriginalFile 归档的原始文件内容
type OriginalFile struct {
	FileName    string
	ContentType string
	Data        []byte
}

// DownloadOriginal 读取版本归档的原始文件，供不方便直连 MinIO 的客户端下载
func (s *ResumeService) DownloadOriginal(ctx context.Context, userID, versionID uint64) (*OriginalFile, error) {
	v, err := s.ownedVersion(ctx, userID, versionID)
	if err != nil {
		return nil, err
	}
	if s.objects == nil {
		return nil, ErrStorageNotInit
	}
	if v.FileObjectKey == "" {
		return nil, &ResumeProcessError{UserID: userID, Op: "download", BaseErr: ErrFileNotArchived}
	}
	data, err := s.objects.DownloadFile(ctx, v.FileObjectKey)
	if err != nil {
		return nil, fmt.Errorf("下载归档文件失败: %w", err)
	}
	return &OriginalFile{
		FileName:    v.FileName,
		ContentType: storage.ContentTypeOf(v.FileName),
		Data:        data,
	}, nil
}

// ownedVersion 读取属于该用户的版本；不属于该用户时同样返回 ErrVersionNotFound
func (s *ResumeService) ownedVersion(ctx context.Context, userID, versionID uint64) (*models.ResumeVersion, error) {
	v, err := s.versions.Get(ctx, versionID)
	if errors.Is(err, storage.ErrVersionNotFound) {
		return nil, NewVersionNotFoundError(userID, versionID)
	}
	if err != nil {
		return nil, NewPersistError(userID, "get_version", err)
	}
	resume, err := s.projection.ResumeOf(ctx, userID)
	if err != nil {
		return nil, NewPersistError(userID, "get_version", err)
	}
	if resume == nil || resume.ID != v.ResumeID {
		return nil, NewVersionNotFoundError(userID, versionID)
	}
	return v, nil
}
