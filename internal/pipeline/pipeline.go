// Package pipeline 把一份上传的简历文件变成结构化结果和分析报告：
// 文本提取、一次结构化提取调用、结果规范化，再基于规范化结果生成Markdown报告。
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"career-agent-go/internal/extractor"
	"career-agent-go/internal/llm"
	"career-agent-go/internal/logger"
	"career-agent-go/internal/normalizer"
	"career-agent-go/internal/tracing"
	"career-agent-go/internal/types"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// 报告生成状态，写入版本的 analysis_metadata
const (
	ReportStatusCompleted = "completed"
	ReportStatusFailed    = "failed"
	ReportStatusPending   = "pending"
)

var (
	// ErrExtractionCallFailed 结构化提取调用失败，上传不能继续
	ErrExtractionCallFailed = errors.New("简历解析调用失败")
	// ErrEmptyReport 模型返回了空报告
	ErrEmptyReport = errors.New("分析报告为空")
)

var pipelineTracer = otel.Tracer("career-agent-go/pipeline")

// Document 一次上传的文件
type Document struct {
	Data     []byte
	Filename string
	MimeType string
}

// AnalysisResult Analyze 的结果。
// 报告生成失败不影响 Parsed，此时 Report 为空且 ReportErr 非 nil。
type AnalysisResult struct {
	Parsed    *types.ParsedResume
	Report    string
	ReportErr error
}

// HasReport 报告是否生成成功
func (r *AnalysisResult) HasReport() bool {
	return r != nil && r.ReportErr == nil && r.Report != ""
}

// ReportStatus completed 或 failed
func (r *AnalysisResult) ReportStatus() string {
	if r.HasReport() {
		return ReportStatusCompleted
	}
	return ReportStatusFailed
}

// AnalysisMetadata 与报告一起保存的元数据
type AnalysisMetadata struct {
	Model          string    `json:"model"`
	ReportStatus   string    `json:"reportStatus"`
	ReportError    string    `json:"reportError,omitempty"`
	TextLength     int       `json:"textLength"`
	SkillCount     int       `json:"skillCount"`
	EducationCount int       `json:"educationCount"`
	WorkCount      int       `json:"workCount"`
	GeneratedAt    time.Time `json:"generatedAt"`
}

// NewAnalysisMetadata 根据解析结果和报告调用的结果构造元数据
func NewAnalysisMetadata(model string, parsed *types.ParsedResume, reportErr error, generatedAt time.Time) AnalysisMetadata {
	meta := AnalysisMetadata{
		Model:        model,
		ReportStatus: ReportStatusCompleted,
		GeneratedAt:  generatedAt.UTC(),
	}
	if reportErr != nil {
		meta.ReportStatus = ReportStatusFailed
		meta.ReportError = reportErr.Error()
	}
	if parsed != nil {
		meta.TextLength = len([]rune(parsed.RawText))
		meta.SkillCount = len(parsed.Skills)
		meta.EducationCount = len(parsed.Educations)
		meta.WorkCount = len(parsed.WorkExperiences)
	}
	return meta
}

// JSON 序列化，用于 datatypes.JSON 列
func (m AnalysisMetadata) JSON() []byte {
	data, err := json.Marshal(m)
	if err != nil {
		return nil
	}
	return data
}

// Pipeline 简历分析流水线。无状态，可并发使用。
type Pipeline struct {
	extractor *extractor.TextExtractor
	client    llm.Client
	logger    *zerolog.Logger
}

// Option 配置 Pipeline
type Option func(*Pipeline)

// WithLogger 设置日志记录器
func WithLogger(l *zerolog.Logger) Option {
	return func(p *Pipeline) {
		p.logger = l
	}
}

// New 创建流水线
func New(ext *extractor.TextExtractor, client llm.Client, opts ...Option) *Pipeline {
	p := &Pipeline{extractor: ext, client: client}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = &logger.Logger
	}
	return p
}

// ModelName 当前大模型客户端的模型名
func (p *Pipeline) ModelName() string {
	return llm.ModelNameOf(p.client)
}

// Analyze 执行完整流水线。
// 文本提取或结构化提取调用失败时返回错误；报告失败记录在 AnalysisResult.ReportErr。
func (p *Pipeline) Analyze(ctx context.Context, doc Document) (*AnalysisResult, error) {
	ctx, span := pipelineTracer.Start(ctx, "pipeline.analyze")
	defer span.End()
	span.SetAttributes(
		attribute.String("file.name", tracing.SafeAttributeValue("file.name", doc.Filename, tracing.DefaultMaxLength)),
		attribute.Int("file.size", len(doc.Data)),
	)

	text, err := p.extractor.Extract(ctx, doc.Data, doc.Filename, doc.MimeType)
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeExtraction)
		return nil, err
	}
	p.logger.Info().Str("file", doc.Filename).Int("text_length", len(text)).Msg("简历文本提取完成")

	parsed, err := p.Parse(ctx, text)
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeLLM)
		return nil, err
	}

	result := &AnalysisResult{Parsed: parsed}
	result.Report, result.ReportErr = p.GenerateReport(ctx, parsed)
	if result.ReportErr != nil {
		// 报告失败不终止上传
		span.AddEvent("report_failed", trace.WithAttributes(attribute.String("error", result.ReportErr.Error())))
		p.logger.Warn().Err(result.ReportErr).Str("file", doc.Filename).Msg("分析报告生成失败，版本将不含报告")
	}
	span.SetAttributes(
		attribute.String("candidate.name", tracing.SafeAttributeValue("candidate.name", types.StringValue(parsed.CandidateName), tracing.DefaultMaxLength)),
		attribute.Int("resume.skill_count", len(parsed.Skills)),
		attribute.String("report.status", result.ReportStatus()),
	)
	return result, nil
}

// Parse 对已提取的文本执行结构化提取和规范化
func (p *Pipeline) Parse(ctx context.Context, text string) (*types.ParsedResume, error) {
	ctx, span := pipelineTracer.Start(ctx, "pipeline.parse")
	defer span.End()

	start := time.Now()
	completion, err := p.client.Chat(ctx, ExtractionPrompt, extractionMessagePrefix+text)
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeLLM)
		return nil, fmt.Errorf("%w: %w", ErrExtractionCallFailed, err)
	}
	p.logger.Debug().
		Dur("elapsed", time.Since(start)).
		Str("completion", tracing.SafePrompt(completion)).
		Msg("结构化提取调用完成")

	parsed := normalizer.Normalize(completion)
	parsed.RawText = text
	return parsed, nil
}

// GenerateReport 根据规范化结果生成Markdown分析报告
func (p *Pipeline) GenerateReport(ctx context.Context, parsed *types.ParsedResume) (string, error) {
	ctx, span := pipelineTracer.Start(ctx, "pipeline.generate_report")
	defer span.End()

	summary := BuildSummary(parsed)
	span.SetAttributes(attribute.Int("summary.length", len(summary)))

	p.logger.Info().Msg("开始生成简历分析报告")
	report, err := p.client.Chat(ctx, AnalysisPrompt, reportMessagePrefix+summary)
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeLLM)
		return "", err
	}
	if strings.TrimSpace(report) == "" {
		tracing.RecordError(span, ErrEmptyReport, tracing.ErrorTypeLLM)
		return "", ErrEmptyReport
	}
	p.logger.Info().Int("report_length", len(report)).Msg("简历分析报告生成完成")
	return report, nil
}

// BuildSummary 报告调用使用的简历摘要
func BuildSummary(parsed *types.ParsedResume) string {
	if parsed == nil {
		parsed = types.NewParsedResume()
	}

	var b strings.Builder
	fmt.Fprintf(&b, "候选人姓名：%s\n", orNotProvided(parsed.CandidateName))
	fmt.Fprintf(&b, "目标职位：%s\n", orNotProvided(parsed.TargetPosition))
	fmt.Fprintf(&b, "个人简介：%s\n\n", orNotProvided(parsed.Summary))

	b.WriteString("技能列表：\n")
	for _, skill := range parsed.Skills {
		fmt.Fprintf(&b, "- %s (%s, %d年经验", skill.Name, types.LevelName(skill.Level), skill.Years)
		if skill.Category != "" {
			fmt.Fprintf(&b, ", %s", skill.Category)
		}
		b.WriteString(")\n")
	}

	b.WriteString("\n教育经历：\n")
	for _, edu := range parsed.Educations {
		fmt.Fprintf(&b, "- %s, %s, %s (%s - %s)\n",
			edu.School, edu.Major, edu.Degree, formatDate(edu.StartDate, "未知"), formatDate(edu.EndDate, "未知"))
		if edu.Description != "" {
			fmt.Fprintf(&b, "  描述：%s\n", edu.Description)
		}
	}

	b.WriteString("\n工作经历：\n")
	for _, work := range parsed.WorkExperiences {
		fmt.Fprintf(&b, "- %s - %s (%s - %s)\n",
			work.Company, work.Position, formatDate(work.StartDate, "未知"), formatDate(work.EndDate, "至今"))
		if work.Description != "" {
			fmt.Fprintf(&b, "  职责：%s\n", work.Description)
		}
		if work.Achievements != "" {
			fmt.Fprintf(&b, "  成就：%s\n", work.Achievements)
		}
	}

	b.WriteString("\n原始简历内容：\n")
	b.WriteString(parsed.RawText)
	return b.String()
}

func orNotProvided(s *string) string {
	if s == nil {
		return "未提供"
	}
	return *s
}

func formatDate(d *types.Date, absent string) string {
	if d == nil || d.IsZero() {
		return absent
	}
	return d.String()
}
