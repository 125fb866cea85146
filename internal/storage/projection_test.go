package storage

import (
	"context"
	"testing"
	"time"

	"career-agent-go/internal/storage/models"
	"career-agent-go/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleParsed() *types.ParsedResume {
	gpa := 3.8
	p := types.NewParsedResume()
	p.CandidateName = types.StringPtr("张三")
	p.TargetPosition = types.StringPtr("后端工程师")
	p.Summary = types.StringPtr("五年Go开发经验")
	p.Skills = []types.SkillInfo{
		{Name: "Go", Level: 4, Category: "编程语言", Years: 5},
		{Name: "MySQL", Level: 3, Years: 3},
	}
	p.Educations = []types.EducationInfo{{
		School:    "浙江大学",
		Degree:    "本科",
		Major:     "计算机科学",
		StartDate: types.DatePtr(2012, time.September, 1),
		EndDate:   types.DatePtr(2016, time.June, 30),
		GPA:       &gpa,
	}}
	p.WorkExperiences = []types.WorkInfo{{
		Company:   "某科技公司",
		Position:  "高级工程师",
		StartDate: types.DatePtr(2016, time.July, 1),
	}}
	return p
}

func TestApplyCreatesResumeWithCollections(t *testing.T) {
	db := newTestDB(t)
	sync := NewResumeProjectionSync(db)
	ctx := context.Background()

	resume, err := sync.Apply(ctx, 10, sampleParsed())
	require.NoError(t, err)
	assert.Equal(t, uint64(10), resume.UserID)
	assert.Equal(t, DefaultResumeTitle, resume.Title)
	assert.Equal(t, "张三", resume.RealName)
	assert.Equal(t, "后端工程师", resume.TargetPosition)
	require.Len(t, resume.Skills, 2)
	assert.Equal(t, "Go", resume.Skills[0].Name)
	require.Len(t, resume.Educations, 1)
	require.Len(t, resume.WorkExperiences, 1)
	assert.Nil(t, resume.WorkExperiences[0].EndDate)

	edu := EducationToInfo(resume.Educations[0])
	require.NotNil(t, edu.StartDate)
	assert.Equal(t, "2012-09-01", edu.StartDate.String())
	assert.Equal(t, "2016-06-30", edu.EndDate.String())
	require.NotNil(t, edu.GPA)
	assert.InDelta(t, 3.8, *edu.GPA, 1e-9)
}

func TestApplyReplacesCollectionsWholesale(t *testing.T) {
	db := newTestDB(t)
	sync := NewResumeProjectionSync(db)
	ctx := context.Background()

	first, err := sync.Apply(ctx, 10, sampleParsed())
	require.NoError(t, err)

	second := types.NewParsedResume()
	second.Skills = []types.SkillInfo{{Name: "Rust", Level: 2, Years: 1}}
	got, err := sync.Apply(ctx, 10, second)
	require.NoError(t, err)

	assert.Equal(t, first.ID, got.ID, "每个用户只有一份简历")
	require.Len(t, got.Skills, 1)
	assert.Equal(t, "Rust", got.Skills[0].Name)
	assert.Empty(t, got.Educations)
	assert.Empty(t, got.WorkExperiences)

	// 缺失的基本信息保留旧值
	assert.Equal(t, "张三", got.RealName)
	assert.Equal(t, "后端工程师", got.TargetPosition)

	var resumes int64
	require.NoError(t, db.Model(&models.Resume{}).Count(&resumes).Error)
	assert.EqualValues(t, 1, resumes)
	var skills int64
	require.NoError(t, db.Model(&models.Skill{}).Count(&skills).Error)
	assert.EqualValues(t, 1, skills)
}

func TestApplyRollsBackWhenReplaceFails(t *testing.T) {
	db := newTestDB(t)
	sync := NewResumeProjectionSync(db)
	ctx := context.Background()

	_, err := sync.Apply(ctx, 10, sampleParsed())
	require.NoError(t, err)

	// 让工作经历插入失败，此时技能和教育已在同一事务内被替换
	require.NoError(t, db.Exec(`CREATE TRIGGER block_work BEFORE INSERT ON resume_work_experiences
		BEGIN SELECT RAISE(ABORT, 'work insert blocked'); END`).Error)

	next := types.NewParsedResume()
	next.CandidateName = types.StringPtr("李四")
	next.Skills = []types.SkillInfo{{Name: "Rust", Level: 2}}
	next.WorkExperiences = []types.WorkInfo{{Company: "新公司"}}
	_, err = sync.Apply(ctx, 10, next)
	require.Error(t, err)

	current, err := sync.Current(ctx, 10)
	require.NoError(t, err)
	require.NotNil(t, current)
	assert.Equal(t, "张三", current.RealName)
	require.Len(t, current.Skills, 2)
	assert.Equal(t, "Go", current.Skills[0].Name)
	assert.Len(t, current.Educations, 1)
	require.Len(t, current.WorkExperiences, 1)
	assert.Equal(t, "某科技公司", current.WorkExperiences[0].Company)
}

func TestApplyDoesNotTouchVersions(t *testing.T) {
	db := newTestDB(t)
	sync := NewResumeProjectionSync(db)
	store := NewResumeVersionStore(db)
	ctx := context.Background()

	resume, err := sync.EnsureResume(ctx, 3, sampleParsed())
	require.NoError(t, err)
	v := &models.ResumeVersion{ResumeID: resume.ID, RawText: "原文", ParsedData: `{"a":1}`}
	require.NoError(t, store.Append(ctx, v, nil))

	_, err = sync.Apply(ctx, 3, types.NewParsedResume())
	require.NoError(t, err)

	got, err := store.Get(ctx, v.ID)
	require.NoError(t, err)
	assert.Equal(t, "原文", got.RawText)
	assert.Equal(t, `{"a":1}`, got.ParsedData)
}

func TestEnsureResumeIsIdempotent(t *testing.T) {
	db := newTestDB(t)
	sync := NewResumeProjectionSync(db)
	ctx := context.Background()

	a, err := sync.EnsureResume(ctx, 5, nil)
	require.NoError(t, err)
	b, err := sync.EnsureResume(ctx, 5, sampleParsed())
	require.NoError(t, err)
	assert.Equal(t, a.ID, b.ID)
	assert.Empty(t, b.RealName)
}

func TestCurrentWithoutResume(t *testing.T) {
	sync := NewResumeProjectionSync(newTestDB(t))
	ctx := context.Background()

	resume, err := sync.Current(ctx, 99)
	require.NoError(t, err)
	assert.Nil(t, resume)

	row, err := sync.ResumeOf(ctx, 99)
	require.NoError(t, err)
	assert.Nil(t, row)
}

func TestApplyRejectsNil(t *testing.T) {
	sync := NewResumeProjectionSync(newTestDB(t))
	_, err := sync.Apply(context.Background(), 1, nil)
	assert.Error(t, err)
}

func TestMappersRoundTrip(t *testing.T) {
	parsed := sampleParsed()

	skill := SkillToInfo(SkillFromInfo(1, parsed.Skills[0]))
	assert.Equal(t, parsed.Skills[0], skill)

	edu := EducationToInfo(EducationFromInfo(1, parsed.Educations[0]))
	assert.Equal(t, parsed.Educations[0].School, edu.School)
	assert.Equal(t, parsed.Educations[0].StartDate.String(), edu.StartDate.String())

	work := WorkExperienceToInfo(WorkExperienceFromInfo(1, parsed.WorkExperiences[0]))
	assert.Equal(t, parsed.WorkExperiences[0].Company, work.Company)
	assert.Nil(t, work.EndDate)
}
