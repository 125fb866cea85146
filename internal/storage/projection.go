package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	appLogger "career-agent-go/internal/logger"
	"career-agent-go/internal/storage/models"
	"career-agent-go/internal/types"

	"github.com/rs/zerolog"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DefaultResumeTitle 自动创建简历时的标题
const DefaultResumeTitle = "我的简历"

// ResumeProjectionSync 维护用户的当前简历：基本信息加技能、教育、工作经历三张表。
// 每次应用解析结果都整体替换三类子记录，不做合并；历史只保存在 resume_versions 中。
type ResumeProjectionSync struct {
	db     *gorm.DB
	logger *zerolog.Logger
}

// NewResumeProjectionSync 创建投影同步器
func NewResumeProjectionSync(db *gorm.DB) *ResumeProjectionSync {
	return &ResumeProjectionSync{db: db, logger: &appLogger.Logger}
}

// EnsureResume 返回用户的简历，不存在时用解析结果的基本信息创建
func (p *ResumeProjectionSync) EnsureResume(ctx context.Context, userID uint64, parsed *types.ParsedResume) (*models.Resume, error) {
	var resume *models.Resume
	err := p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		resume, _, err = p.ensureResumeTx(tx, userID, parsed)
		return err
	})
	if err != nil {
		return nil, err
	}
	return resume, nil
}

// Resolver 返回在版本追加事务内使用的 ResumeResolver，用户没有简历时随版本一起创建
func (p *ResumeProjectionSync) Resolver(userID uint64, parsed *types.ParsedResume) ResumeResolver {
	return func(tx *gorm.DB) (uint64, error) {
		resume, _, err := p.ensureResumeTx(tx, userID, parsed)
		if err != nil {
			return 0, err
		}
		return resume.ID, nil
	}
}

// ensureResumeTx 加锁读取用户简历，不存在则创建，返回值 created 表示是否新建
func (p *ResumeProjectionSync) ensureResumeTx(tx *gorm.DB, userID uint64, parsed *types.ParsedResume) (*models.Resume, bool, error) {
	var existing []models.Resume
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id = ?", userID).
		Limit(1).
		Find(&existing).Error; err != nil {
		return nil, false, fmt.Errorf("查询用户简历失败: %w", err)
	}
	if len(existing) > 0 {
		return &existing[0], false, nil
	}

	resume := NewResumeFromParsed(userID, parsed)
	if err := tx.Create(resume).Error; err != nil {
		if !isRetryableWriteConflict(err) {
			return nil, false, fmt.Errorf("创建用户简历失败: %w", err)
		}
		// 并发请求已创建，读取对方的结果
		var winner models.Resume
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("user_id = ?", userID).
			First(&winner).Error; err != nil {
			return nil, false, fmt.Errorf("查询用户简历失败: %w", err)
		}
		return &winner, false, nil
	}
	return resume, true, nil
}

// NewResumeFromParsed 新建简历行，解析结果中缺失的字段置空
func NewResumeFromParsed(userID uint64, parsed *types.ParsedResume) *models.Resume {
	resume := &models.Resume{UserID: userID, Title: DefaultResumeTitle}
	if parsed != nil {
		resume.RealName = types.StringValue(parsed.CandidateName)
		resume.TargetPosition = types.StringValue(parsed.TargetPosition)
		resume.SelfIntroduction = types.StringValue(parsed.Summary)
	}
	return resume
}

// ApplyProfile 只覆盖解析结果中存在的基本信息字段
func ApplyProfile(resume *models.Resume, parsed *types.ParsedResume) {
	resume.Title = DefaultResumeTitle
	if parsed == nil {
		return
	}
	if parsed.CandidateName != nil {
		resume.RealName = *parsed.CandidateName
	}
	if parsed.TargetPosition != nil {
		resume.TargetPosition = *parsed.TargetPosition
	}
	if parsed.Summary != nil {
		resume.SelfIntroduction = *parsed.Summary
	}
}

// Apply 在一个事务内用解析结果重建用户的当前简历
func (p *ResumeProjectionSync) Apply(ctx context.Context, userID uint64, parsed *types.ParsedResume) (*models.Resume, error) {
	if parsed == nil {
		return nil, fmt.Errorf("解析结果不能为空")
	}

	var resumeID uint64
	err := p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		resume, created, err := p.ensureResumeTx(tx, userID, parsed)
		if err != nil {
			return err
		}
		resumeID = resume.ID

		if !created {
			ApplyProfile(resume, parsed)
			if err := tx.Model(resume).Select("title", "real_name", "target_position", "self_introduction", "updated_at").
				Updates(resume).Error; err != nil {
				return fmt.Errorf("更新简历基本信息失败: %w", err)
			}
		}

		return replaceCollections(tx, resume.ID, parsed)
	})
	if err != nil {
		return nil, err
	}

	p.logger.Info().
		Uint64("user_id", userID).
		Uint64("resume_id", resumeID).
		Int("skills", len(parsed.Skills)).
		Int("educations", len(parsed.Educations)).
		Int("work_experiences", len(parsed.WorkExperiences)).
		Msg("当前简历已更新")
	return p.load(ctx, p.db.Where("id = ?", resumeID))
}

// replaceCollections 删除全部旧的子记录后批量插入新记录
func replaceCollections(tx *gorm.DB, resumeID uint64, parsed *types.ParsedResume) error {
	for _, model := range []interface{}{&models.Skill{}, &models.Education{}, &models.WorkExperience{}} {
		if err := tx.Where("resume_id = ?", resumeID).Delete(model).Error; err != nil {
			return fmt.Errorf("清除简历子记录失败: %w", err)
		}
	}

	if len(parsed.Skills) > 0 {
		skills := make([]models.Skill, 0, len(parsed.Skills))
		for _, s := range parsed.Skills {
			skills = append(skills, SkillFromInfo(resumeID, s))
		}
		if err := tx.Create(&skills).Error; err != nil {
			return fmt.Errorf("保存技能失败: %w", err)
		}
	}
	if len(parsed.Educations) > 0 {
		educations := make([]models.Education, 0, len(parsed.Educations))
		for _, e := range parsed.Educations {
			educations = append(educations, EducationFromInfo(resumeID, e))
		}
		if err := tx.Create(&educations).Error; err != nil {
			return fmt.Errorf("保存教育经历失败: %w", err)
		}
	}
	if len(parsed.WorkExperiences) > 0 {
		works := make([]models.WorkExperience, 0, len(parsed.WorkExperiences))
		for _, w := range parsed.WorkExperiences {
			works = append(works, WorkExperienceFromInfo(resumeID, w))
		}
		if err := tx.Create(&works).Error; err != nil {
			return fmt.Errorf("保存工作经历失败: %w", err)
		}
	}
	return nil
}

// Current 用户当前简历及其子记录，没有简历时返回 nil, nil
func (p *ResumeProjectionSync) Current(ctx context.Context, userID uint64) (*models.Resume, error) {
	resume, err := p.load(ctx, p.db.Where("user_id = ?", userID))
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	return resume, err
}

// ResumeOf 用户的简历行（不加载子记录），没有简历时返回 nil, nil
func (p *ResumeProjectionSync) ResumeOf(ctx context.Context, userID uint64) (*models.Resume, error) {
	var resumes []models.Resume
	if err := p.db.WithContext(ctx).Where("user_id = ?", userID).Limit(1).Find(&resumes).Error; err != nil {
		return nil, fmt.Errorf("查询用户简历失败: %w", err)
	}
	if len(resumes) == 0 {
		return nil, nil
	}
	return &resumes[0], nil
}

func (p *ResumeProjectionSync) load(ctx context.Context, query *gorm.DB) (*models.Resume, error) {
	var resume models.Resume
	err := query.WithContext(ctx).
		Preload("Skills", func(db *gorm.DB) *gorm.DB { return db.Order("id") }).
		Preload("Educations", func(db *gorm.DB) *gorm.DB { return db.Order("id") }).
		Preload("WorkExperiences", func(db *gorm.DB) *gorm.DB { return db.Order("id") }).
		First(&resume).Error
	if err != nil {
		return nil, err
	}
	return &resume, nil
}

// SkillFromInfo 解析出的技能转换为数据库记录
func SkillFromInfo(resumeID uint64, info types.SkillInfo) models.Skill {
	return models.Skill{
		ResumeID: resumeID,
		Name:     info.Name,
		Level:    info.Level,
		Category: info.Category,
		Years:    info.Years,
	}
}

// EducationFromInfo 解析出的教育经历转换为数据库记录
func EducationFromInfo(resumeID uint64, info types.EducationInfo) models.Education {
	return models.Education{
		ResumeID:    resumeID,
		School:      info.School,
		Degree:      info.Degree,
		Major:       info.Major,
		StartDate:   toDBDate(info.StartDate),
		EndDate:     toDBDate(info.EndDate),
		GPA:         info.GPA,
		Description: info.Description,
	}
}

// WorkExperienceFromInfo 解析出的工作经历转换为数据库记录
func WorkExperienceFromInfo(resumeID uint64, info types.WorkInfo) models.WorkExperience {
	return models.WorkExperience{
		ResumeID:     resumeID,
		Company:      info.Company,
		Position:     info.Position,
		Department:   info.Department,
		StartDate:    toDBDate(info.StartDate),
		EndDate:      toDBDate(info.EndDate),
		Description:  info.Description,
		Achievements: info.Achievements,
	}
}

// SkillToInfo 数据库技能记录转换为解析结构
func SkillToInfo(s models.Skill) types.SkillInfo {
	return types.SkillInfo{
		Name:     s.Name,
		Level:    s.Level,
		Category: s.Category,
		Years:    s.Years,
	}
}

// EducationToInfo 数据库教育记录转换为解析结构
func EducationToInfo(e models.Education) types.EducationInfo {
	return types.EducationInfo{
		School:      e.School,
		Degree:      e.Degree,
		Major:       e.Major,
		StartDate:   fromDBDate(e.StartDate),
		EndDate:     fromDBDate(e.EndDate),
		GPA:         e.GPA,
		Description: e.Description,
	}
}

// WorkExperienceToInfo 数据库工作记录转换为解析结构
func WorkExperienceToInfo(w models.WorkExperience) types.WorkInfo {
	return types.WorkInfo{
		Company:      w.Company,
		Position:     w.Position,
		Department:   w.Department,
		StartDate:    fromDBDate(w.StartDate),
		EndDate:      fromDBDate(w.EndDate),
		Description:  w.Description,
		Achievements: w.Achievements,
	}
}

func toDBDate(d *types.Date) *datatypes.Date {
	if d == nil || d.IsZero() {
		return nil
	}
	// 按本地时区零点存储，避免驱动转换时区后日期偏移
	v := datatypes.Date(time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.Local))
	return &v
}

func fromDBDate(d *datatypes.Date) *types.Date {
	if d == nil {
		return nil
	}
	t := time.Time(*d)
	if t.IsZero() {
		return nil
	}
	return types.DatePtr(t.Year(), t.Month(), t.Day())
}
