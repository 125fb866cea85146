package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	appLogger "career-agent-go/internal/logger"
	"career-agent-go/internal/storage/models"

	"github.com/rs/zerolog"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	// ErrVersionNotFound 简历版本不存在
	ErrVersionNotFound = errors.New("简历版本不存在")
	// ErrVersionConflict 多次重试后仍然无法分配版本号
	ErrVersionConflict = errors.New("简历版本号冲突")
)

// maxAppendAttempts 版本号冲突时的最大尝试次数
const maxAppendAttempts = 5

// DefaultVersionListLimit List 未指定数量时返回的条数
const DefaultVersionListLimit = 20

// EventBuilder 在版本行写入后、同一事务内构造需要发出的 outbox 消息
type EventBuilder func(v *models.ResumeVersion) ([]*models.OutboxMessage, error)

// ResumeResolver 在追加事务内取得（必要时创建）版本所属的简历ID，事务回滚时一并撤销
type ResumeResolver func(tx *gorm.DB) (uint64, error)

// ResumeVersionStore 简历版本的只追加存储
type ResumeVersionStore struct {
	db     *gorm.DB
	logger *zerolog.Logger
}

// NewResumeVersionStore 创建版本存储
func NewResumeVersionStore(db *gorm.DB) *ResumeVersionStore {
	return &ResumeVersionStore{db: db, logger: &appLogger.Logger}
}

// NextVersionNumber 在事务内计算下一个版本号，没有版本时为1。
// 先对简历行加锁，同一简历的并发追加在这里排队。
func (s *ResumeVersionStore) NextVersionNumber(ctx context.Context, tx *gorm.DB, resumeID uint64) (int, error) {
	var locked []models.Resume
	if err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Select("id").
		Where("id = ?", resumeID).
		Find(&locked).Error; err != nil {
		return 0, fmt.Errorf("锁定简历失败: %w", err)
	}

	var maxVersion sql.NullInt64
	if err := tx.WithContext(ctx).
		Model(&models.ResumeVersion{}).
		Where("resume_id = ?", resumeID).
		Select("MAX(version_number)").
		Scan(&maxVersion).Error; err != nil {
		return 0, fmt.Errorf("查询最大版本号失败: %w", err)
	}
	if !maxVersion.Valid {
		return 1, nil
	}
	return int(maxVersion.Int64) + 1, nil
}

// Append 在一个事务内分配版本号并写入版本行，buildEvents 不为空时同事务写入 outbox 消息。
// 唯一索引冲突（并发写入者抢先）时整体重试。成功后 v.ID 与 v.VersionNumber 已回填。
func (s *ResumeVersionStore) Append(ctx context.Context, v *models.ResumeVersion, buildEvents EventBuilder) error {
	return s.AppendResolved(ctx, v, nil, buildEvents)
}

// AppendResolved 同 Append，resolve 不为空时先在同一事务内解析简历ID并写入 v.ResumeID。
// 版本写入失败时 resolve 创建的简历行随事务回滚。
func (s *ResumeVersionStore) AppendResolved(ctx context.Context, v *models.ResumeVersion, resolve ResumeResolver, buildEvents EventBuilder) error {
	if v == nil || (v.ResumeID == 0 && resolve == nil) {
		return fmt.Errorf("版本缺少简历ID")
	}
	if v.UploadTime.IsZero() {
		v.UploadTime = time.Now()
	}

	var lastErr error
	for attempt := 1; attempt <= maxAppendAttempts; attempt++ {
		row := *v
		row.ID = 0
		err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if resolve != nil {
				resumeID, err := resolve(tx)
				if err != nil {
					return err
				}
				row.ResumeID = resumeID
			}
			next, err := s.NextVersionNumber(ctx, tx, row.ResumeID)
			if err != nil {
				return err
			}
			row.VersionNumber = next
			if err := tx.Create(&row).Error; err != nil {
				return err
			}
			if buildEvents == nil {
				return nil
			}
			events, err := buildEvents(&row)
			if err != nil {
				return fmt.Errorf("构造版本事件失败: %w", err)
			}
			for _, event := range events {
				if err := tx.Create(event).Error; err != nil {
					return fmt.Errorf("写入outbox消息失败: %w", err)
				}
			}
			return nil
		})
		if err == nil {
			*v = row
			return nil
		}
		if !isRetryableWriteConflict(err) || ctx.Err() != nil {
			return err
		}
		lastErr = err
		s.logger.Warn().Err(err).
			Uint64("resume_id", v.ResumeID).
			Int("attempt", attempt).
			Msg("版本号冲突，重试追加")
	}
	return fmt.Errorf("%w: %v", ErrVersionConflict, lastErr)
}

// isRetryableWriteConflict 唯一键冲突或死锁，可以整体重试
func isRetryableWriteConflict(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "Duplicate entry") ||
		strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "Deadlock found") ||
		strings.Contains(msg, "database is locked")
}

// Latest 版本号最大的版本，没有版本时返回 nil, nil
func (s *ResumeVersionStore) Latest(ctx context.Context, resumeID uint64) (*models.ResumeVersion, error) {
	var versions []models.ResumeVersion
	if err := s.db.WithContext(ctx).
		Where("resume_id = ?", resumeID).
		Order("version_number DESC").
		Limit(1).
		Find(&versions).Error; err != nil {
		return nil, fmt.Errorf("查询最新版本失败: %w", err)
	}
	if len(versions) == 0 {
		return nil, nil
	}
	return &versions[0], nil
}

// Get 按ID获取版本
func (s *ResumeVersionStore) Get(ctx context.Context, versionID uint64) (*models.ResumeVersion, error) {
	var v models.ResumeVersion
	err := s.db.WithContext(ctx).First(&v, "id = ?", versionID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrVersionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("查询版本失败: %w", err)
	}
	return &v, nil
}

// List 按版本号倒序列出版本，不加载原文和解析数据
func (s *ResumeVersionStore) List(ctx context.Context, resumeID uint64, limit int) ([]models.ResumeVersion, error) {
	if limit <= 0 {
		limit = DefaultVersionListLimit
	}
	var versions []models.ResumeVersion
	if err := s.db.WithContext(ctx).
		Omit("raw_text", "parsed_data").
		Where("resume_id = ?", resumeID).
		Order("version_number DESC").
		Limit(limit).
		Find(&versions).Error; err != nil {
		return nil, fmt.Errorf("查询版本列表失败: %w", err)
	}
	return versions, nil
}

// Count 简历的版本数
func (s *ResumeVersionStore) Count(ctx context.Context, resumeID uint64) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&models.ResumeVersion{}).Where("resume_id = ?", resumeID).Count(&n).Error
	return n, err
}

// UpdateAnalysis 回填分析报告和元数据
func (s *ResumeVersionStore) UpdateAnalysis(ctx context.Context, versionID uint64, report *string, metadata datatypes.JSON) error {
	return s.updateColumns(ctx, versionID, map[string]interface{}{
		"analysis_report":   report,
		"analysis_metadata": metadata,
	})
}

// UpdateNote 回填版本备注
func (s *ResumeVersionStore) UpdateNote(ctx context.Context, versionID uint64, note *string) error {
	return s.updateColumns(ctx, versionID, map[string]interface{}{
		"version_note": note,
	})
}

func (s *ResumeVersionStore) updateColumns(ctx context.Context, versionID uint64, columns map[string]interface{}) error {
	result := s.db.WithContext(ctx).
		Model(&models.ResumeVersion{}).
		Where("id = ?", versionID).
		Updates(columns)
	if result.Error != nil {
		return fmt.Errorf("更新版本失败: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		// 值未变化时 MySQL 也返回0行，再确认一次是否存在
		if _, err := s.Get(ctx, versionID); err != nil {
			return err
		}
	}
	return nil
}

// Delete 删除单个版本
func (s *ResumeVersionStore) Delete(ctx context.Context, versionID uint64) error {
	result := s.db.WithContext(ctx).Where("id = ?", versionID).Delete(&models.ResumeVersion{})
	if result.Error != nil {
		return fmt.Errorf("删除版本失败: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrVersionNotFound
	}
	return nil
}
