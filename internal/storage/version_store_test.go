package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"testing"

	"career-agent-go/internal/storage/models"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// newTestDB 每个测试独立的内存数据库，单连接保证写入串行
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	m, err := OpenDatabase(sqlite.Open(dsn), "test", "sqlite", logger.Silent)
	require.NoError(t, err)

	sqlDB, err := m.DB().DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	t.Cleanup(func() { _ = m.Close() })
	return m.DB()
}

func createResume(t *testing.T, db *gorm.DB, userID uint64) *models.Resume {
	t.Helper()
	resume := &models.Resume{UserID: userID, Title: DefaultResumeTitle}
	require.NoError(t, db.Create(resume).Error)
	return resume
}

func TestAppendAssignsSequentialVersionNumbers(t *testing.T) {
	db := newTestDB(t)
	store := NewResumeVersionStore(db)
	ctx := context.Background()
	resume := createResume(t, db, 1)

	for i := 1; i <= 3; i++ {
		v := &models.ResumeVersion{ResumeID: resume.ID, FileName: fmt.Sprintf("v%d.pdf", i), RawText: "text"}
		require.NoError(t, store.Append(ctx, v, nil))
		assert.Equal(t, i, v.VersionNumber)
		assert.NotZero(t, v.ID)
		assert.False(t, v.UploadTime.IsZero())
	}

	n, err := store.Count(ctx, resume.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)

	latest, err := store.Latest(ctx, resume.ID)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, 3, latest.VersionNumber)
	assert.Equal(t, "v3.pdf", latest.FileName)
}

func TestAppendNumbersAreScopedPerResume(t *testing.T) {
	db := newTestDB(t)
	store := NewResumeVersionStore(db)
	ctx := context.Background()
	a := createResume(t, db, 1)
	b := createResume(t, db, 2)

	va := &models.ResumeVersion{ResumeID: a.ID}
	vb := &models.ResumeVersion{ResumeID: b.ID}
	require.NoError(t, store.Append(ctx, va, nil))
	require.NoError(t, store.Append(ctx, vb, nil))
	assert.Equal(t, 1, va.VersionNumber)
	assert.Equal(t, 1, vb.VersionNumber)
}

func TestAppendConcurrentWritersGetDistinctNumbers(t *testing.T) {
	db := newTestDB(t)
	store := NewResumeVersionStore(db)
	ctx := context.Background()
	resume := createResume(t, db, 1)

	const writers = 8
	var wg sync.WaitGroup
	numbers := make([]int, writers)
	errs := make([]error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v := &models.ResumeVersion{ResumeID: resume.ID, FileName: fmt.Sprintf("f%d.pdf", i)}
			errs[i] = store.Append(ctx, v, nil)
			numbers[i] = v.VersionNumber
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}
	sort.Ints(numbers)
	for i, n := range numbers {
		assert.Equal(t, i+1, n)
	}
}

func TestAppendWritesEventsInSameTransaction(t *testing.T) {
	db := newTestDB(t)
	store := NewResumeVersionStore(db)
	ctx := context.Background()
	resume := createResume(t, db, 7)

	v := &models.ResumeVersion{ResumeID: resume.ID, FileName: "cv.pdf"}
	err := store.Append(ctx, v, func(row *models.ResumeVersion) ([]*models.OutboxMessage, error) {
		payload, err := json.Marshal(ResumeVersionCreatedMessage{
			ResumeID:      row.ResumeID,
			VersionID:     row.ID,
			VersionNumber: row.VersionNumber,
		})
		if err != nil {
			return nil, err
		}
		return []*models.OutboxMessage{{
			AggregateID:      fmt.Sprintf("%d", row.ID),
			EventType:        EventResumeVersionCreated,
			Payload:          string(payload),
			TargetExchange:   "resume.events.exchange",
			TargetRoutingKey: "resume.version.created",
			Status:           models.OutboxStatusPending,
		}}, nil
	})
	require.NoError(t, err)

	var messages []models.OutboxMessage
	require.NoError(t, db.Find(&messages).Error)
	require.Len(t, messages, 1)
	assert.Equal(t, fmt.Sprintf("%d", v.ID), messages[0].AggregateID)

	var msg ResumeVersionCreatedMessage
	require.NoError(t, json.Unmarshal([]byte(messages[0].Payload), &msg))
	assert.Equal(t, v.ID, msg.VersionID)
	assert.Equal(t, 1, msg.VersionNumber)
}

func TestAppendRollsBackWhenEventBuilderFails(t *testing.T) {
	db := newTestDB(t)
	store := NewResumeVersionStore(db)
	ctx := context.Background()
	resume := createResume(t, db, 7)

	v := &models.ResumeVersion{ResumeID: resume.ID}
	err := store.Append(ctx, v, func(*models.ResumeVersion) ([]*models.OutboxMessage, error) {
		return nil, fmt.Errorf("boom")
	})
	require.Error(t, err)

	n, err := store.Count(ctx, resume.ID)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestAppendResolvedCreatesResumeWithVersion(t *testing.T) {
	db := newTestDB(t)
	store := NewResumeVersionStore(db)
	projection := NewResumeProjectionSync(db)
	ctx := context.Background()

	v := &models.ResumeVersion{FileName: "a.pdf"}
	require.NoError(t, store.AppendResolved(ctx, v, projection.Resolver(21, sampleParsed()), nil))
	assert.NotZero(t, v.ResumeID)
	assert.Equal(t, 1, v.VersionNumber)

	resume, err := projection.ResumeOf(ctx, 21)
	require.NoError(t, err)
	require.NotNil(t, resume)
	assert.Equal(t, resume.ID, v.ResumeID)
	assert.Equal(t, "张三", resume.RealName)

	// 已有简历时复用同一行
	again := &models.ResumeVersion{FileName: "b.pdf"}
	require.NoError(t, store.AppendResolved(ctx, again, projection.Resolver(21, nil), nil))
	assert.Equal(t, resume.ID, again.ResumeID)
	assert.Equal(t, 2, again.VersionNumber)
}

func TestAppendResolvedRollsBackCreatedResume(t *testing.T) {
	db := newTestDB(t)
	store := NewResumeVersionStore(db)
	projection := NewResumeProjectionSync(db)
	ctx := context.Background()

	v := &models.ResumeVersion{FileName: "a.pdf"}
	err := store.AppendResolved(ctx, v, projection.Resolver(22, sampleParsed()),
		func(*models.ResumeVersion) ([]*models.OutboxMessage, error) {
			return nil, fmt.Errorf("boom")
		})
	require.Error(t, err)

	var resumes, versions int64
	require.NoError(t, db.Model(&models.Resume{}).Count(&resumes).Error)
	require.NoError(t, db.Model(&models.ResumeVersion{}).Count(&versions).Error)
	assert.Zero(t, resumes)
	assert.Zero(t, versions)
}

func TestAppendRequiresResumeID(t *testing.T) {
	store := NewResumeVersionStore(newTestDB(t))
	assert.Error(t, store.Append(context.Background(), &models.ResumeVersion{}, nil))
}

func TestLatestWithoutVersions(t *testing.T) {
	db := newTestDB(t)
	store := NewResumeVersionStore(db)
	resume := createResume(t, db, 1)

	latest, err := store.Latest(context.Background(), resume.ID)
	require.NoError(t, err)
	assert.Nil(t, latest)
}

func TestGetAndDeleteMissingVersion(t *testing.T) {
	store := NewResumeVersionStore(newTestDB(t))
	ctx := context.Background()

	_, err := store.Get(ctx, 42)
	assert.ErrorIs(t, err, ErrVersionNotFound)
	assert.ErrorIs(t, store.Delete(ctx, 42), ErrVersionNotFound)
	assert.ErrorIs(t, store.UpdateNote(ctx, 42, nil), ErrVersionNotFound)
}

func TestListOrdersDescendingAndOmitsBodies(t *testing.T) {
	db := newTestDB(t)
	store := NewResumeVersionStore(db)
	ctx := context.Background()
	resume := createResume(t, db, 1)

	for i := 0; i < 3; i++ {
		require.NoError(t, store.Append(ctx, &models.ResumeVersion{
			ResumeID:   resume.ID,
			RawText:    "很长的原文",
			ParsedData: `{"skills":[]}`,
		}, nil))
	}

	versions, err := store.List(ctx, resume.ID, 2)
	require.NoError(t, err)
	require.Len(t, versions, 2)
	assert.Equal(t, 3, versions[0].VersionNumber)
	assert.Equal(t, 2, versions[1].VersionNumber)
	assert.Empty(t, versions[0].RawText)
	assert.Empty(t, versions[0].ParsedData)

	full, err := store.Get(ctx, versions[0].ID)
	require.NoError(t, err)
	assert.Equal(t, "很长的原文", full.RawText)
}

func TestUpdateAnalysisAndNote(t *testing.T) {
	db := newTestDB(t)
	store := NewResumeVersionStore(db)
	ctx := context.Background()
	resume := createResume(t, db, 1)

	v := &models.ResumeVersion{ResumeID: resume.ID, RawText: "text"}
	require.NoError(t, store.Append(ctx, v, nil))
	assert.False(t, v.HasAnalysis())

	report := "# 报告"
	meta := datatypes.JSON(`{"model":"mock","reportStatus":"COMPLETED"}`)
	require.NoError(t, store.UpdateAnalysis(ctx, v.ID, &report, meta))

	note := "投递字节"
	require.NoError(t, store.UpdateNote(ctx, v.ID, &note))
	// 值不变时再次更新也应成功
	require.NoError(t, store.UpdateNote(ctx, v.ID, &note))

	got, err := store.Get(ctx, v.ID)
	require.NoError(t, err)
	assert.True(t, got.HasAnalysis())
	assert.Equal(t, report, *got.AnalysisReport)
	assert.JSONEq(t, string(meta), string(got.AnalysisMetadata))
	require.NotNil(t, got.VersionNote)
	assert.Equal(t, note, *got.VersionNote)
	assert.Equal(t, "text", got.RawText)
	assert.Equal(t, 1, got.VersionNumber)
}

func TestDeleteKeepsOtherNumbers(t *testing.T) {
	db := newTestDB(t)
	store := NewResumeVersionStore(db)
	ctx := context.Background()
	resume := createResume(t, db, 1)

	first := &models.ResumeVersion{ResumeID: resume.ID}
	second := &models.ResumeVersion{ResumeID: resume.ID}
	require.NoError(t, store.Append(ctx, first, nil))
	require.NoError(t, store.Append(ctx, second, nil))
	require.NoError(t, store.Delete(ctx, second.ID))

	// 删除最新版本后编号按当前最大值继续
	third := &models.ResumeVersion{ResumeID: resume.ID}
	require.NoError(t, store.Append(ctx, third, nil))
	assert.Equal(t, 2, third.VersionNumber)

	got, err := store.Get(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.VersionNumber)
}
