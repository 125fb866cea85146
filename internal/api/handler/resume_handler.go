package handler

import (
	"context"
	"encoding/json"
	"io"
	"net/url"
	"strconv"
	"strings"
	"time"

	"career-agent-go/internal/api/middleware"
	"career-agent-go/internal/logger"
	"career-agent-go/internal/pipeline"
	"career-agent-go/internal/processor"
	"career-agent-go/internal/storage/models"
	"career-agent-go/internal/types"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
	"gorm.io/datatypes"
)

// ResumeHandler 简历上传和版本管理接口
type ResumeHandler struct {
	service *processor.ResumeService
}

// NewResumeHandler 创建简历处理器
func NewResumeHandler(service *processor.ResumeService) *ResumeHandler {
	return &ResumeHandler{service: service}
}

// UploadResponse 上传接口返回的数据
type UploadResponse struct {
	ResumeID      uint64              `json:"resumeId"`
	VersionID     uint64              `json:"versionId"`
	VersionNumber int                 `json:"versionNumber"`
	Parsed        *types.ParsedResume `json:"parsed"`
	Report        string              `json:"report"`
	ReportStatus  string              `json:"reportStatus"`
	ReportError   string              `json:"reportError,omitempty"`
}

// VersionSummary 版本列表项
type VersionSummary struct {
	ID            uint64    `json:"id"`
	VersionNumber int       `json:"versionNumber"`
	FileName      string    `json:"fileName"`
	FileSize      int64     `json:"fileSize"`
	UploadTime    time.Time `json:"uploadTime"`
	VersionNote   *string   `json:"versionNote"`
	HasAnalysis   bool      `json:"hasAnalysis"`
	HasFile       bool      `json:"hasFile"`
}

// VersionDetail 版本详情
type VersionDetail struct {
	VersionSummary
	RawText          string              `json:"rawText"`
	Parsed           *types.ParsedResume `json:"parsed"`
	AnalysisReport   *string             `json:"analysisReport"`
	AnalysisMetadata datatypes.JSON      `json:"analysisMetadata"`
}

func toSummary(v *models.ResumeVersion) VersionSummary {
	return VersionSummary{
		ID:            v.ID,
		VersionNumber: v.VersionNumber,
		FileName:      v.FileName,
		FileSize:      v.FileSize,
		UploadTime:    v.UploadTime,
		VersionNote:   v.VersionNote,
		HasAnalysis:   v.HasAnalysis(),
		HasFile:       v.FileObjectKey != "",
	}
}

func toDetail(ctx context.Context, v *models.ResumeVersion) VersionDetail {
	d := VersionDetail{
		VersionSummary:   toSummary(v),
		RawText:          v.RawText,
		AnalysisReport:   v.AnalysisReport,
		AnalysisMetadata: v.AnalysisMetadata,
	}
	if v.ParsedData != "" {
		parsed := types.NewParsedResume()
		if err := json.Unmarshal([]byte(v.ParsedData), parsed); err != nil {
			logger.Ctx(ctx).Warn().Err(err).Uint64("version_id", v.ID).Msg("版本解析数据无法反序列化")
		} else {
			parsed.EnsureCollections()
			d.Parsed = parsed
		}
	}
	return d
}

// Upload POST /resume/upload，multipart 字段 file 和可选的 note
func (h *ResumeHandler) Upload(ctx context.Context, c *app.RequestContext) {
	userID, ok := middleware.UserID(c)
	if !ok {
		writeError(c, consts.StatusUnauthorized, "未授权访问")
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		writeError(c, consts.StatusBadRequest, "文件未找到")
		return
	}
	file, err := fileHeader.Open()
	if err != nil {
		writeError(c, consts.StatusInternalServerError, "打开文件失败")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(c, consts.StatusBadRequest, "读取上传文件失败")
		return
	}

	var note *string
	if n := strings.TrimSpace(c.PostForm("note")); n != "" {
		note = &n
	}

	doc := pipeline.Document{
		Data:     data,
		Filename: fileHeader.Filename,
		MimeType: fileHeader.Header.Get("Content-Type"),
	}
	result, err := h.service.UploadAndAnalyze(ctx, userID, doc, note)
	if err != nil {
		writeServiceError(ctx, c, err)
		return
	}

	resp := UploadResponse{
		VersionID:     result.Version.ID,
		VersionNumber: result.Version.VersionNumber,
		Parsed:        result.Parsed,
		Report:        result.Report,
		ReportStatus:  result.ReportStatus,
		ReportError:   result.ReportError,
	}
	if result.Resume != nil {
		resp.ResumeID = result.Resume.ID
	} else {
		resp.ResumeID = result.Version.ResumeID
	}
	writeOK(c, resp)
}

// SaveParsed POST /resume/save-parsed，用户修改后的解析结果写入当前简历
func (h *ResumeHandler) SaveParsed(ctx context.Context, c *app.RequestContext) {
	userID, ok := middleware.UserID(c)
	if !ok {
		writeError(c, consts.StatusUnauthorized, "未授权访问")
		return
	}

	parsed := types.NewParsedResume()
	if err := json.Unmarshal(c.Request.Body(), parsed); err != nil {
		writeError(c, consts.StatusBadRequest, "请求体不是合法的解析结果")
		return
	}

	resume, err := h.service.SaveParsedResult(ctx, userID, parsed)
	if err != nil {
		writeServiceError(ctx, c, err)
		return
	}
	writeOK(c, resume)
}

// GetResume GET /resume，没有简历时 data 为 null
func (h *ResumeHandler) GetResume(ctx context.Context, c *app.RequestContext) {
	userID, ok := middleware.UserID(c)
	if !ok {
		writeError(c, consts.StatusUnauthorized, "未授权访问")
		return
	}
	resume, err := h.service.GetCurrentResume(ctx, userID)
	if err != nil {
		writeServiceError(ctx, c, err)
		return
	}
	if resume == nil {
		writeOK(c, nil)
		return
	}
	writeOK(c, resume)
}

// ListVersions GET /resume/versions?limit=
func (h *ResumeHandler) ListVersions(ctx context.Context, c *app.RequestContext) {
	userID, ok := middleware.UserID(c)
	if !ok {
		writeError(c, consts.StatusUnauthorized, "未授权访问")
		return
	}

	limit := 0
	if s := c.Query("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 || n > 100 {
			writeError(c, consts.StatusBadRequest, "limit 必须是 1-100 的整数")
			return
		}
		limit = n
	}

	versions, err := h.service.ListVersions(ctx, userID, limit)
	if err != nil {
		writeServiceError(ctx, c, err)
		return
	}
	items := make([]VersionSummary, 0, len(versions))
	for i := range versions {
		items = append(items, toSummary(&versions[i]))
	}
	writeOK(c, items)
}

// GetVersion GET /resume/versions/:id
func (h *ResumeHandler) GetVersion(ctx context.Context, c *app.RequestContext) {
	userID, versionID, ok := h.versionParams(c)
	if !ok {
		return
	}
	v, err := h.service.GetVersion(ctx, userID, versionID)
	if err != nil {
		writeServiceError(ctx, c, err)
		return
	}
	writeOK(c, toDetail(ctx, v))
}

// DeleteVersion DELETE /resume/versions/:id
func (h *ResumeHandler) DeleteVersion(ctx context.Context, c *app.RequestContext) {
	userID, versionID, ok := h.versionParams(c)
	if !ok {
		return
	}
	if err := h.service.DeleteVersion(ctx, userID, versionID); err != nil {
		writeServiceError(ctx, c, err)
		return
	}
	writeOK(c, nil)
}

// RegenerateReport POST /resume/versions/:id/report
func (h *ResumeHandler) RegenerateReport(ctx context.Context, c *app.RequestContext) {
	userID, versionID, ok := h.versionParams(c)
	if !ok {
		return
	}
	v, err := h.service.RegenerateReport(ctx, userID, versionID)
	if err != nil {
		writeServiceError(ctx, c, err)
		return
	}
	writeOK(c, toDetail(ctx, v))
}

// FileURL GET /resume/versions/:id/file
func (h *ResumeHandler) FileURL(ctx context.Context, c *app.RequestContext) {
	userID, versionID, ok := h.versionParams(c)
	if !ok {
		return
	}
	url, err := h.service.FileURL(ctx, userID, versionID)
	if err != nil {
		writeServiceError(ctx, c, err)
		return
	}
	writeOK(c, map[string]string{"url": url})
}

// Download GET /resume/versions/:id/download 直接返回原始文件
func (h *ResumeHandler) Download(ctx context.Context, c *app.RequestContext) {
	userID, versionID, ok := h.versionParams(c)
	if !ok {
		return
	}
	file, err := h.service.DownloadOriginal(ctx, userID, versionID)
	if err != nil {
		writeServiceError(ctx, c, err)
		return
	}
	c.Header("Content-Disposition", "attachment; filename*=UTF-8''"+url.PathEscape(file.FileName))
	c.Data(consts.StatusOK, file.ContentType, file.Data)
}

func (h *ResumeHandler) versionParams(c *app.RequestContext) (uint64, uint64, bool) {
	userID, ok := middleware.UserID(c)
	if !ok {
		writeError(c, consts.StatusUnauthorized, "未授权访问")
		return 0, 0, false
	}
	versionID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || versionID == 0 {
		writeError(c, consts.StatusBadRequest, "版本ID无效")
		return 0, 0, false
	}
	return userID, versionID, true
}
