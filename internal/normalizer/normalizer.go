// Package normalizer 把大模型返回的简历抽取结果转换为结构化的 ParsedResume。
// 模型输出并不可靠：可能包裹在 markdown 代码块里、字段缺失、类型不符或日期格式混杂，
// 这里对每个字段单独容错，任何单个字段的问题都不会影响其他字段。
package normalizer

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"career-agent-go/internal/logger"
	"career-agent-go/internal/types"

	"github.com/tidwall/gjson"
)

var (
	yearMonthDash = regexp.MustCompile(`^\d{4}-\d{2}$`)
	yearMonthDot  = regexp.MustCompile(`^\d{4}\.\d{2}$`)
)

// maxSkillYears 超过该值的技能年限视为无效
const maxSkillYears = 100

// Normalize 解析模型输出。永远不会返回错误：
// 无法解析时返回集合为空、RawModelOutput 为原始输出的结果。
// RawText 由调用方填充。
func Normalize(completion string) *types.ParsedResume {
	result := types.NewParsedResume()

	cleaned := CleanJSON(completion)
	doc, ok := parseObject(cleaned)
	if !ok {
		// 模型在JSON前后附带了说明文字
		if sub, found := outermostObject(cleaned); found {
			if doc, ok = parseObject(sub); ok {
				cleaned = sub
			}
		}
	}
	if !ok {
		logger.Warn().
			Int("completion_len", len(completion)).
			Msg("模型输出无法解析为JSON对象，返回降级结果")
		result.RawModelOutput = completion
		return result
	}
	result.RawModelOutput = cleaned

	contact := doc.Get("contactInfo")
	result.CandidateName = scalar(doc.Get("candidateName"))
	result.Phone = firstScalar(contact.Get("phone"), doc.Get("phone"))
	result.Email = firstScalar(contact.Get("email"), doc.Get("email"))
	result.Address = firstScalar(contact.Get("address"), doc.Get("address"))
	result.TargetPosition = scalar(doc.Get("targetPosition"))
	result.Summary = scalar(doc.Get("summary"))

	for _, item := range firstArray(doc, "skills") {
		if skill, ok := toSkill(item); ok {
			result.Skills = append(result.Skills, skill)
		}
	}
	for _, item := range firstArray(doc, "education", "educations") {
		if edu, ok := toEducation(item); ok {
			result.Educations = append(result.Educations, edu)
		}
	}
	for _, item := range firstArray(doc, "workExperience", "workExperiences") {
		if work, ok := toWork(item); ok {
			result.WorkExperiences = append(result.WorkExperiences, work)
		}
	}

	logger.Debug().
		Int("skills", len(result.Skills)).
		Int("educations", len(result.Educations)).
		Int("work_experiences", len(result.WorkExperiences)).
		Msg("模型输出解析完成")
	return result
}

// CleanJSON 去掉 ```json ... ``` 代码块包裹并去除首尾空白。幂等。
func CleanJSON(s string) string {
	for {
		next := stripFenceOnce(s)
		if next == s {
			return next
		}
		s = next
	}
}

func stripFenceOnce(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```")
		if len(s) >= 4 && strings.EqualFold(s[:4], "json") {
			s = s[4:]
		}
	}
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

func parseObject(s string) (gjson.Result, bool) {
	if s == "" || !gjson.Valid(s) {
		return gjson.Result{}, false
	}
	r := gjson.Parse(s)
	return r, r.IsObject()
}

// outermostObject 取第一个 '{' 到最后一个 '}' 之间的内容
func outermostObject(s string) (string, bool) {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return "", false
	}
	return s[start : end+1], true
}

func firstArray(doc gjson.Result, keys ...string) []gjson.Result {
	for _, k := range keys {
		if v := doc.Get(k); v.IsArray() {
			return v.Array()
		}
	}
	return nil
}

// scalar 宽松读取标量：null、空白、字面量 "null" 以及对象数组都视为缺失
func scalar(r gjson.Result) *string {
	var s string
	switch r.Type {
	case gjson.String:
		s = strings.TrimSpace(r.Str)
	case gjson.Number:
		s = strings.TrimSpace(r.Raw)
	case gjson.True, gjson.False:
		s = r.String()
	default:
		return nil
	}
	if s == "" || strings.EqualFold(s, "null") {
		return nil
	}
	return &s
}

func firstScalar(rs ...gjson.Result) *string {
	for _, r := range rs {
		if s := scalar(r); s != nil {
			return s
		}
	}
	return nil
}

func text(r gjson.Result) string {
	return types.StringValue(scalar(r))
}

func toSkill(item gjson.Result) (types.SkillInfo, bool) {
	if !item.IsObject() {
		return types.SkillInfo{}, false
	}
	name := scalar(item.Get("name"))
	if name == nil {
		return types.SkillInfo{}, false
	}
	return types.SkillInfo{
		Name:     *name,
		Level:    parseLevel(item.Get("level")),
		Category: text(item.Get("category")),
		Years:    parseYears(item.Get("years")),
	}, true
}

func toEducation(item gjson.Result) (types.EducationInfo, bool) {
	if !item.IsObject() {
		return types.EducationInfo{}, false
	}
	edu := types.EducationInfo{
		School:      text(item.Get("school")),
		Degree:      text(item.Get("degree")),
		Major:       text(item.Get("major")),
		StartDate:   NormalizeDate(item.Get("startDate").String()),
		EndDate:     NormalizeDate(item.Get("endDate").String()),
		GPA:         parseGPA(item.Get("gpa")),
		Description: text(item.Get("description")),
	}
	if edu.School == "" && edu.Degree == "" && edu.Major == "" && edu.Description == "" &&
		edu.StartDate == nil && edu.EndDate == nil {
		return types.EducationInfo{}, false
	}
	return edu, true
}

func toWork(item gjson.Result) (types.WorkInfo, bool) {
	if !item.IsObject() {
		return types.WorkInfo{}, false
	}
	work := types.WorkInfo{
		Company:      text(item.Get("company")),
		Position:     text(item.Get("position")),
		Department:   text(item.Get("department")),
		StartDate:    NormalizeDate(item.Get("startDate").String()),
		EndDate:      NormalizeDate(item.Get("endDate").String()),
		Description:  text(item.Get("description")),
		Achievements: text(item.Get("achievements")),
	}
	if work.Company == "" && work.Position == "" && work.Description == "" && work.StartDate == nil {
		return types.WorkInfo{}, false
	}
	return work, true
}

// parseLevel 等级缺失、无法解析或不在1-5范围内时取默认值3，接受中文等级名
func parseLevel(r gjson.Result) int {
	var f float64
	switch r.Type {
	case gjson.Number:
		f = r.Float()
	case gjson.String:
		s := strings.TrimSpace(r.Str)
		if level, ok := types.LevelFromName(s); ok {
			return level
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return types.DefaultSkillLevel
		}
		f = v
	default:
		return types.DefaultSkillLevel
	}
	if math.IsNaN(f) || f < 1 || f >= 6 {
		return types.DefaultSkillLevel
	}
	return int(f)
}

// parseYears 年限缺失、无法解析、为负或过大时取0，小数截断
func parseYears(r gjson.Result) int {
	var f float64
	switch r.Type {
	case gjson.Number:
		f = r.Float()
	case gjson.String:
		v, err := strconv.ParseFloat(strings.TrimSpace(r.Str), 64)
		if err != nil {
			return 0
		}
		f = v
	default:
		return 0
	}
	if math.IsNaN(f) || f < 0 || f > maxSkillYears {
		return 0
	}
	return int(f)
}

// parseGPA 接受数字或数字字符串，"3.6/4.0" 取斜杠前部分
func parseGPA(r gjson.Result) *float64 {
	switch r.Type {
	case gjson.Number:
		v := r.Float()
		return &v
	case gjson.String:
		s := strings.TrimSpace(r.Str)
		if i := strings.Index(s, "/"); i > 0 {
			s = strings.TrimSpace(s[:i])
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
			return nil
		}
		return &v
	}
	return nil
}

// NormalizeDate 依次尝试 YYYY-MM、YYYY.MM（均取当月1日）和 YYYY-MM-DD，
// 其余输入（包括 "至今"、"null"、空串）返回 nil。
func NormalizeDate(s string) *types.Date {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	switch {
	case yearMonthDash.MatchString(s):
		s += "-01"
	case yearMonthDot.MatchString(s):
		s = strings.Replace(s, ".", "-", 1) + "-01"
	}
	t, err := time.Parse(types.DateLayout, s)
	if err != nil {
		return nil
	}
	return &types.Date{Time: t}
}
