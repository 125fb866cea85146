package processor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"career-agent-go/internal/constants"
	"career-agent-go/internal/extractor"
	"career-agent-go/internal/llm"
	"career-agent-go/internal/llm/llmtest"
	"career-agent-go/internal/pipeline"
	"career-agent-go/internal/storage"
	"career-agent-go/internal/storage/models"
	"career-agent-go/internal/types"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const plainResume = "测试用户\n电话：13800138000\nJava开发，三年经验"

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	m, err := storage.OpenDatabase(sqlite.Open(dsn), "test", "sqlite", logger.Silent)
	require.NoError(t, err)
	sqlDB, err := m.DB().DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = m.Close() })
	return m.DB()
}

func newService(t *testing.T, client llm.Client, opts ...Option) (*ResumeService, *gorm.DB) {
	t.Helper()
	db := newTestDB(t)
	p := pipeline.New(extractor.New(nil), client)
	return NewResumeService(p, storage.NewResumeVersionStore(db), storage.NewResumeProjectionSync(db), opts...), db
}

func textDoc(text string) pipeline.Document {
	return pipeline.Document{Data: []byte(text), Filename: "resume.txt", MimeType: "text/plain"}
}

// fakeObjects 内存对象存储
type fakeObjects struct {
	mu         sync.Mutex
	files      map[string][]byte
	texts      map[string]string
	archiveErr error
}

func newFakeObjects() *fakeObjects {
	return &fakeObjects{files: map[string][]byte{}, texts: map[string]string{}}
}

func (f *fakeObjects) ArchiveOriginal(_ context.Context, userID uint64, filename string, data []byte) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.archiveErr != nil {
		return "", f.archiveErr
	}
	key := storage.OriginalObjectKey(userID, filename)
	f.files[key] = data
	return key, nil
}

func (f *fakeObjects) UploadParsedText(_ context.Context, originalKey string, text string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := storage.ParsedTextObjectKey(originalKey)
	f.texts[key] = text
	return key, nil
}

func (f *fakeObjects) DownloadFile(_ context.Context, objectKey string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.files[objectKey]
	if !ok {
		return nil, errors.New("not found")
	}
	return data, nil
}

func (f *fakeObjects) GetPresignedURL(_ context.Context, objectKey string, _ time.Duration) (string, error) {
	return "http://minio.local/resume-originals/" + objectKey, nil
}

func (f *fakeObjects) DeleteFile(_ context.Context, objectKey string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.files, objectKey)
	return nil
}

// fakeLocker 记录加锁和释放
type fakeLocker struct {
	mu       sync.Mutex
	held     map[string]string
	err      error
	released int
}

func (l *fakeLocker) AcquireLock(_ context.Context, key string, _ time.Duration) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return "", l.err
	}
	if l.held == nil {
		l.held = map[string]string{}
	}
	if _, ok := l.held[key]; ok {
		return "", storage.ErrLockNotAcquired
	}
	value := uuid.NewString()
	l.held[key] = value
	return value, nil
}

func (l *fakeLocker) ReleaseLock(_ context.Context, key, value string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[key] != value {
		return false, nil
	}
	delete(l.held, key)
	l.released++
	return true, nil
}

func TestUploadAndAnalyzeWithMockClient(t *testing.T) {
	objects := newFakeObjects()
	svc, db := newService(t, llm.NewMockClient(),
		WithObjectStorage(objects),
		WithVersionEvents("resume.events.exchange", "resume.version.created"),
	)
	ctx := context.Background()
	note := "第一次上传"

	result, err := svc.UploadAndAnalyze(ctx, 1, textDoc(plainResume), &note)
	require.NoError(t, err)

	assert.Equal(t, "测试用户", types.StringValue(result.Parsed.CandidateName))
	require.NotEmpty(t, result.Parsed.Skills)
	assert.Equal(t, "Java", result.Parsed.Skills[0].Name)
	assert.Equal(t, 4, result.Parsed.Skills[0].Level)
	assert.Equal(t, "编程语言", result.Parsed.Skills[0].Category)
	assert.Equal(t, pipeline.ReportStatusCompleted, result.ReportStatus)

	v := result.Version
	assert.Equal(t, 1, v.VersionNumber)
	assert.Equal(t, "resume.txt", v.FileName)
	assert.EqualValues(t, len(plainResume), v.FileSize)
	assert.Equal(t, plainResume, v.RawText)
	assert.True(t, v.HasAnalysis())
	require.NotNil(t, v.VersionNote)
	assert.Equal(t, note, *v.VersionNote)
	assert.NotEmpty(t, v.FileObjectKey)
	assert.Contains(t, objects.files, v.FileObjectKey)
	assert.Contains(t, objects.texts, storage.ParsedTextObjectKey(v.FileObjectKey))

	var meta pipeline.AnalysisMetadata
	require.NoError(t, json.Unmarshal(v.AnalysisMetadata, &meta))
	assert.Equal(t, "mock", meta.Model)
	assert.Equal(t, pipeline.ReportStatusCompleted, meta.ReportStatus)

	require.NotNil(t, result.Resume)
	assert.Equal(t, "测试用户", result.Resume.RealName)
	assert.Len(t, result.Resume.Skills, 2)

	var messages []models.OutboxMessage
	require.NoError(t, db.Find(&messages).Error)
	require.Len(t, messages, 1)
	var event storage.ResumeVersionCreatedMessage
	require.NoError(t, json.Unmarshal([]byte(messages[0].Payload), &event))
	assert.Equal(t, uint64(1), event.UserID)
	assert.Equal(t, v.ID, event.VersionID)
	assert.True(t, event.HasAnalysis)
	assert.NotEmpty(t, event.EventID)
}

func TestUploadTwiceIncrementsVersion(t *testing.T) {
	svc, _ := newService(t, llm.NewMockClient())
	ctx := context.Background()

	first, err := svc.UploadAndAnalyze(ctx, 1, textDoc(plainResume), nil)
	require.NoError(t, err)
	second, err := svc.UploadAndAnalyze(ctx, 1, textDoc(plainResume+"\n补充"), nil)
	require.NoError(t, err)

	assert.Equal(t, 1, first.Version.VersionNumber)
	assert.Equal(t, 2, second.Version.VersionNumber)
	assert.Equal(t, first.Resume.ID, second.Resume.ID)

	// 另一个用户从1开始编号
	other, err := svc.UploadAndAnalyze(ctx, 2, textDoc(plainResume), nil)
	require.NoError(t, err)
	assert.Equal(t, 1, other.Version.VersionNumber)
}

func TestUploadReportFailureStillPersistsVersion(t *testing.T) {
	client := llmtest.NewScriptedClient(
		llmtest.Response{Content: `{"candidateName":"李四","skills":[{"name":"Go"}]}`},
		llmtest.Response{Err: &llm.RequestFailedError{StatusCode: 503, Body: "busy"}},
	)
	svc, _ := newService(t, client)
	ctx := context.Background()

	result, err := svc.UploadAndAnalyze(ctx, 3, textDoc(plainResume), nil)
	require.NoError(t, err)
	assert.Equal(t, pipeline.ReportStatusFailed, result.ReportStatus)
	assert.NotEmpty(t, result.ReportError)
	assert.Nil(t, result.Version.AnalysisReport)
	assert.Equal(t, 1, result.Version.VersionNumber)
	assert.Equal(t, "李四", result.Resume.RealName)

	stored, err := svc.GetVersion(ctx, 3, result.Version.ID)
	require.NoError(t, err)
	assert.False(t, stored.HasAnalysis())
	var meta pipeline.AnalysisMetadata
	require.NoError(t, json.Unmarshal(stored.AnalysisMetadata, &meta))
	assert.Equal(t, pipeline.ReportStatusFailed, meta.ReportStatus)
}

func TestUploadFailedAppendLeavesNoResume(t *testing.T) {
	objects := newFakeObjects()
	svc, db := newService(t, llm.NewMockClient(), WithObjectStorage(objects))
	ctx := context.Background()

	require.NoError(t, db.Migrator().DropTable(&models.ResumeVersion{}))

	_, err := svc.UploadAndAnalyze(ctx, 1, textDoc(plainResume), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPersistFailed)

	var resumes int64
	require.NoError(t, db.Model(&models.Resume{}).Count(&resumes).Error)
	assert.Zero(t, resumes)
	current, err := svc.GetCurrentResume(ctx, 1)
	require.NoError(t, err)
	assert.Nil(t, current)

	// 已归档的原始文件被清理
	assert.Empty(t, objects.files)
}

func TestUploadExtractionFailuresCreateNoVersion(t *testing.T) {
	cases := []struct {
		name    string
		client  llm.Client
		doc     pipeline.Document
		wantErr error
	}{
		{
			name:    "unreadable document",
			client:  llm.NewMockClient(),
			doc:     textDoc("   \n  "),
			wantErr: extractor.ErrUnreadableDocument,
		},
		{
			name:    "extraction call failed",
			client:  llmtest.NewScriptedClient(llmtest.Response{Err: &llm.RequestFailedError{StatusCode: 500}}),
			doc:     textDoc(plainResume),
			wantErr: llm.ErrRequestFailed,
		},
		{
			name:    "malformed response",
			client:  llmtest.NewScriptedClient(llmtest.Response{Err: llm.ErrResponseMalformed}),
			doc:     textDoc(plainResume),
			wantErr: llm.ErrResponseMalformed,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc, db := newService(t, tc.client)
			_, err := svc.UploadAndAnalyze(context.Background(), 1, tc.doc, nil)
			require.Error(t, err)
			assert.ErrorIs(t, err, tc.wantErr)

			var n int64
			require.NoError(t, db.Model(&models.ResumeVersion{}).Count(&n).Error)
			assert.Zero(t, n)
			require.NoError(t, db.Model(&models.Resume{}).Count(&n).Error)
			assert.Zero(t, n)
		})
	}
}

func TestUploadValidation(t *testing.T) {
	svc, _ := newService(t, llm.NewMockClient(), WithMaxFileSize(10))
	ctx := context.Background()

	_, err := svc.UploadAndAnalyze(ctx, 0, textDoc("x"), nil)
	assert.ErrorIs(t, err, ErrInvalidUser)
	_, err = svc.UploadAndAnalyze(ctx, 1, pipeline.Document{Filename: "a.pdf"}, nil)
	assert.ErrorIs(t, err, ErrEmptyFile)
	_, err = svc.UploadAndAnalyze(ctx, 1, textDoc(plainResume), nil)
	assert.ErrorIs(t, err, ErrFileTooLarge)
}

func TestUploadRejectsOverlongNoteAndFileName(t *testing.T) {
	mock := llm.NewMockClient()
	svc, db := newService(t, mock)
	ctx := context.Background()

	note := strings.Repeat("备", constants.MaxVersionNoteLength+1)
	_, err := svc.UploadAndAnalyze(ctx, 1, textDoc(plainResume), &note)
	assert.ErrorIs(t, err, ErrNoteTooLong)

	doc := textDoc(plainResume)
	doc.Filename = strings.Repeat("简", constants.MaxFileNameLength) + ".txt"
	_, err = svc.UploadAndAnalyze(ctx, 1, doc, nil)
	assert.ErrorIs(t, err, ErrFileNameTooLong)

	// 校验在调用大模型之前完成
	assert.Zero(t, mock.Calls())
	var versions int64
	require.NoError(t, db.Model(&models.ResumeVersion{}).Count(&versions).Error)
	assert.Zero(t, versions)

	// 恰好达到上限的备注可以保存
	note = strings.Repeat("备", constants.MaxVersionNoteLength)
	result, err := svc.UploadAndAnalyze(ctx, 1, textDoc(plainResume), &note)
	require.NoError(t, err)
	assert.Equal(t, note, *result.Version.VersionNote)
}

func TestUploadArchiveFailureIsNotFatal(t *testing.T) {
	objects := newFakeObjects()
	objects.archiveErr = errors.New("minio down")
	svc, _ := newService(t, llm.NewMockClient(), WithObjectStorage(objects))

	result, err := svc.UploadAndAnalyze(context.Background(), 1, textDoc(plainResume), nil)
	require.NoError(t, err)
	assert.Empty(t, result.Version.FileObjectKey)

	_, err = svc.FileURL(context.Background(), 1, result.Version.ID)
	assert.ErrorIs(t, err, ErrFileNotArchived)
}

func TestUploadLock(t *testing.T) {
	locker := &fakeLocker{}
	svc, _ := newService(t, llm.NewMockClient(), WithUploadLock(locker, time.Minute))
	ctx := context.Background()

	// 锁被其他请求持有
	_, err := locker.AcquireLock(ctx, storage.UploadLockKey(1), time.Minute)
	require.NoError(t, err)
	_, err = svc.UploadAndAnalyze(ctx, 1, textDoc(plainResume), nil)
	assert.ErrorIs(t, err, ErrUploadInProgress)

	// 其他用户不受影响，处理完成后释放锁
	_, err = svc.UploadAndAnalyze(ctx, 2, textDoc(plainResume), nil)
	require.NoError(t, err)
	assert.Equal(t, 1, locker.released)
	assert.NotContains(t, locker.held, storage.UploadLockKey(2))
}

func TestUploadLockBackendFailureIsSkipped(t *testing.T) {
	locker := &fakeLocker{err: errors.New("redis: connection refused")}
	svc, _ := newService(t, llm.NewMockClient(), WithUploadLock(locker, time.Minute))

	_, err := svc.UploadAndAnalyze(context.Background(), 1, textDoc(plainResume), nil)
	require.NoError(t, err)
}

func TestVersionOwnership(t *testing.T) {
	svc, _ := newService(t, llm.NewMockClient())
	ctx := context.Background()

	owned, err := svc.UploadAndAnalyze(ctx, 1, textDoc(plainResume), nil)
	require.NoError(t, err)
	_, err = svc.UploadAndAnalyze(ctx, 2, textDoc(plainResume), nil)
	require.NoError(t, err)

	_, err = svc.GetVersion(ctx, 2, owned.Version.ID)
	assert.ErrorIs(t, err, ErrVersionNotFound)
	assert.ErrorIs(t, svc.DeleteVersion(ctx, 2, owned.Version.ID), ErrVersionNotFound)

	_, err = svc.GetVersion(ctx, 1, 9999)
	assert.ErrorIs(t, err, ErrVersionNotFound)
}

func TestListAndDeleteVersions(t *testing.T) {
	objects := newFakeObjects()
	svc, _ := newService(t, llm.NewMockClient(), WithObjectStorage(objects))
	ctx := context.Background()

	empty, err := svc.ListVersions(ctx, 1, 0)
	require.NoError(t, err)
	assert.Empty(t, empty)

	var last *UploadResult
	for i := 0; i < 3; i++ {
		last, err = svc.UploadAndAnalyze(ctx, 1, textDoc(fmt.Sprintf("%s\n%d", plainResume, i)), nil)
		require.NoError(t, err)
	}

	versions, err := svc.ListVersions(ctx, 1, 0)
	require.NoError(t, err)
	require.Len(t, versions, 3)
	assert.Equal(t, 3, versions[0].VersionNumber)

	require.NoError(t, svc.DeleteVersion(ctx, 1, last.Version.ID))
	assert.NotContains(t, objects.files, last.Version.FileObjectKey)

	versions, err = svc.ListVersions(ctx, 1, 0)
	require.NoError(t, err)
	require.Len(t, versions, 2)
	assert.Equal(t, 2, versions[0].VersionNumber)

	// 删除版本不影响当前简历
	current, err := svc.GetCurrentResume(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, current)
	assert.Equal(t, "测试用户", current.RealName)
}

func TestRegenerateReport(t *testing.T) {
	client := llmtest.NewScriptedClient(
		llmtest.Response{Content: `{"candidateName":"王五"}`},
		llmtest.Response{Err: errors.New("timeout")},
		llmtest.Response{Content: "# 新报告"},
	)
	svc, _ := newService(t, client)
	ctx := context.Background()

	result, err := svc.UploadAndAnalyze(ctx, 1, textDoc(plainResume), nil)
	require.NoError(t, err)
	require.Nil(t, result.Version.AnalysisReport)

	v, err := svc.RegenerateReport(ctx, 1, result.Version.ID)
	require.NoError(t, err)
	require.NotNil(t, v.AnalysisReport)
	assert.Equal(t, "# 新报告", *v.AnalysisReport)
	assert.Equal(t, result.Version.VersionNumber, v.VersionNumber)

	calls := client.Calls()
	require.Len(t, calls, 3)
	assert.Contains(t, calls[2].UserMessage, "王五")
	assert.Contains(t, calls[2].UserMessage, plainResume)
}

func TestSaveParsedResult(t *testing.T) {
	svc, _ := newService(t, llm.NewMockClient())
	ctx := context.Background()

	current, err := svc.GetCurrentResume(ctx, 1)
	require.NoError(t, err)
	assert.Nil(t, current)

	parsed := types.NewParsedResume()
	parsed.CandidateName = types.StringPtr("赵六")
	parsed.Skills = []types.SkillInfo{{Name: "Kotlin", Level: 9, Years: -1}}
	resume, err := svc.SaveParsedResult(ctx, 1, parsed)
	require.NoError(t, err)
	assert.Equal(t, "赵六", resume.RealName)
	require.Len(t, resume.Skills, 1)
	assert.Equal(t, types.DefaultSkillLevel, resume.Skills[0].Level)
	assert.Zero(t, resume.Skills[0].Years)

	versions, err := svc.ListVersions(ctx, 1, 0)
	require.NoError(t, err)
	assert.Empty(t, versions)
}

func TestFileURL(t *testing.T) {
	objects := newFakeObjects()
	svc, _ := newService(t, llm.NewMockClient(), WithObjectStorage(objects))
	ctx := context.Background()

	result, err := svc.UploadAndAnalyze(ctx, 1, textDoc(plainResume), nil)
	require.NoError(t, err)

	url, err := svc.FileURL(ctx, 1, result.Version.ID)
	require.NoError(t, err)
	assert.Contains(t, url, result.Version.FileObjectKey)

	noStore, _ := newService(t, llm.NewMockClient())
	r2, err := noStore.UploadAndAnalyze(ctx, 1, textDoc(plainResume), nil)
	require.NoError(t, err)
	_, err = noStore.FileURL(ctx, 1, r2.Version.ID)
	assert.ErrorIs(t, err, ErrStorageNotInit)
}

func TestDownloadOriginal(t *testing.T) {
	objects := newFakeObjects()
	svc, _ := newService(t, llm.NewMockClient(), WithObjectStorage(objects))
	ctx := context.Background()

	result, err := svc.UploadAndAnalyze(ctx, 1, textDoc(plainResume), nil)
	require.NoError(t, err)

	file, err := svc.DownloadOriginal(ctx, 1, result.Version.ID)
	require.NoError(t, err)
	assert.Equal(t, "resume.txt", file.FileName)
	assert.Equal(t, "text/plain", file.ContentType)
	assert.Equal(t, []byte(plainResume), file.Data)

	_, err = svc.DownloadOriginal(ctx, 2, result.Version.ID)
	assert.ErrorIs(t, err, ErrVersionNotFound)

	objects.archiveErr = errors.New("minio down")
	unarchived, err := svc.UploadAndAnalyze(ctx, 1, textDoc(plainResume), nil)
	require.NoError(t, err)
	_, err = svc.DownloadOriginal(ctx, 1, unarchived.Version.ID)
	assert.ErrorIs(t, err, ErrFileNotArchived)
}
