package types

import (
	"fmt"
	"strings"
	"time"
)

// DateLayout 日期字段统一的序列化格式
const DateLayout = "2006-01-02"

// DefaultSkillLevel 技能等级缺失或非法时使用的默认值
const DefaultSkillLevel = 3

// Date 只保留到日的日期值，JSON 中以 "YYYY-MM-DD" 表示
type Date struct {
	time.Time
}

// NewDate 构造一个UTC零点的日期
func NewDate(year int, month time.Month, day int) Date {
	return Date{Time: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DatePtr 便捷构造 *Date
func DatePtr(year int, month time.Month, day int) *Date {
	d := NewDate(year, month, day)
	return &d
}

// ParseDate 按 DateLayout 解析
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, err
	}
	return Date{Time: t}, nil
}

func (d Date) String() string {
	return d.Format(DateLayout)
}

// MarshalJSON 输出 "YYYY-MM-DD"
func (d Date) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.Format(DateLayout) + `"`), nil
}

// UnmarshalJSON 接受 "YYYY-MM-DD"，null 或空串保持零值
func (d *Date) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		return nil
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return fmt.Errorf("日期格式错误 %q: %w", s, err)
	}
	*d = parsed
	return nil
}

// SkillInfo 解析出的单条技能
type SkillInfo struct {
	Name     string `json:"name"`
	Level    int    `json:"level"`    // 1-5，默认3
	Category string `json:"category"` // 可为空
	Years    int    `json:"years"`    // >=0，默认0
}

// EducationInfo 解析出的单条教育经历
type EducationInfo struct {
	School      string   `json:"school"`
	Degree      string   `json:"degree"`
	Major       string   `json:"major"`
	StartDate   *Date    `json:"startDate"`
	EndDate     *Date    `json:"endDate"`
	GPA         *float64 `json:"gpa"`
	Description string   `json:"description"`
}

// WorkInfo 解析出的单条工作经历，EndDate 为空表示至今
type WorkInfo struct {
	Company      string `json:"company"`
	Position     string `json:"position"`
	Department   string `json:"department"`
	StartDate    *Date  `json:"startDate"`
	EndDate      *Date  `json:"endDate"`
	Description  string `json:"description"`
	Achievements string `json:"achievements"`
}

// ParsedResume 一次解析的结构化结果。
// 标量字段为 nil 表示模型未给出，集合字段永远非 nil。
type ParsedResume struct {
	CandidateName  *string `json:"candidateName"`
	Phone          *string `json:"phone"`
	Email          *string `json:"email"`
	Address        *string `json:"address"`
	TargetPosition *string `json:"targetPosition"`
	Summary        *string `json:"summary"`

	Skills          []SkillInfo     `json:"skills"`
	Educations      []EducationInfo `json:"educations"`
	WorkExperiences []WorkInfo      `json:"workExperiences"`

	RawText        string `json:"rawText"`
	RawModelOutput string `json:"rawModelOutput"`
}

// NewParsedResume 返回集合已初始化的空结果
func NewParsedResume() *ParsedResume {
	return &ParsedResume{
		Skills:          []SkillInfo{},
		Educations:      []EducationInfo{},
		WorkExperiences: []WorkInfo{},
	}
}

// EnsureCollections 把 nil 集合替换为空切片，反序列化外部输入后调用
func (p *ParsedResume) EnsureCollections() {
	if p.Skills == nil {
		p.Skills = []SkillInfo{}
	}
	if p.Educations == nil {
		p.Educations = []EducationInfo{}
	}
	if p.WorkExperiences == nil {
		p.WorkExperiences = []WorkInfo{}
	}
}

// StringValue 取可选字符串的值，nil 时返回空串
func StringValue(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// StringPtr 返回 s 的指针
func StringPtr(s string) *string {
	return &s
}

var levelNames = map[int]string{
	1: "了解",
	2: "熟悉",
	3: "掌握",
	4: "精通",
	5: "专家",
}

// LevelName 技能等级对应的中文名称，范围外返回"未知"
func LevelName(level int) string {
	if name, ok := levelNames[level]; ok {
		return name
	}
	return "未知"
}

// LevelFromName 中文等级名称反查等级数值
func LevelFromName(name string) (int, bool) {
	name = strings.TrimSpace(name)
	for level, n := range levelNames {
		if n == name {
			return level, true
		}
	}
	return 0, false
}
