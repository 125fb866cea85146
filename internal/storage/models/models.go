package models

import (
	"time"

	"gorm.io/datatypes"
)

// Resume 用户当前简历（每个用户一份），由最近一次上传或手工保存的解析结果投影而来
type Resume struct {
	ID                  uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID              uint64    `gorm:"not null;uniqueIndex:idx_resumes_user_id" json:"userId"`
	Title               string    `gorm:"type:varchar(255)" json:"title"`
	RealName            string    `gorm:"type:varchar(100)" json:"realName"`
	TargetPosition      string    `gorm:"type:varchar(255)" json:"targetPosition"`
	ExpectedSalary      string    `gorm:"type:varchar(100)" json:"expectedSalary"`
	WorkCity            string    `gorm:"type:varchar(100)" json:"workCity"`
	Education           string    `gorm:"type:varchar(50)" json:"education"` // 最高学历
	School              string    `gorm:"type:varchar(255)" json:"school"`
	Major               string    `gorm:"type:varchar(255)" json:"major"`
	GraduationYear      *int      `json:"graduationYear"`
	WorkExperienceYears *int      `json:"workExperienceYears"`
	SelfIntroduction    string    `gorm:"type:text" json:"selfIntroduction"`
	CreatedAt           time.Time `gorm:"precision:6" json:"createdAt"`
	UpdatedAt           time.Time `gorm:"precision:6;autoUpdateTime" json:"updatedAt"`

	Skills          []Skill          `gorm:"foreignKey:ResumeID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"skills"`
	Educations      []Education      `gorm:"foreignKey:ResumeID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"educations"`
	WorkExperiences []WorkExperience `gorm:"foreignKey:ResumeID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"workExperiences"`
}

func (Resume) TableName() string {
	return "resumes"
}

// Skill 简历技能
type Skill struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	ResumeID  uint64    `gorm:"not null;index:idx_skills_resume_id" json:"resumeId"`
	Name      string    `gorm:"type:varchar(100);not null" json:"name"`
	Level     int       `gorm:"not null;default:3" json:"level"`
	Category  string    `gorm:"type:varchar(100)" json:"category"`
	Years     int       `gorm:"not null;default:0" json:"years"`
	CreatedAt time.Time `gorm:"precision:6" json:"createdAt"`
}

func (Skill) TableName() string {
	return "resume_skills"
}

// Education 简历教育经历
type Education struct {
	ID          uint64          `gorm:"primaryKey;autoIncrement" json:"id"`
	ResumeID    uint64          `gorm:"not null;index:idx_educations_resume_id" json:"resumeId"`
	School      string          `gorm:"type:varchar(255)" json:"school"`
	Degree      string          `gorm:"type:varchar(50)" json:"degree"`
	Major       string          `gorm:"type:varchar(255)" json:"major"`
	StartDate   *datatypes.Date `gorm:"type:date" json:"startDate"`
	EndDate     *datatypes.Date `gorm:"type:date" json:"endDate"`
	GPA         *float64        `json:"gpa"`
	Description string          `gorm:"type:text" json:"description"`
	CreatedAt   time.Time       `gorm:"precision:6" json:"createdAt"`
}

func (Education) TableName() string {
	return "resume_educations"
}

// WorkExperience 简历工作经历，EndDate 为空表示至今
type WorkExperience struct {
	ID           uint64          `gorm:"primaryKey;autoIncrement" json:"id"`
	ResumeID     uint64          `gorm:"not null;index:idx_work_experiences_resume_id" json:"resumeId"`
	Company      string          `gorm:"type:varchar(255)" json:"company"`
	Position     string          `gorm:"type:varchar(255)" json:"position"`
	Department   string          `gorm:"type:varchar(255)" json:"department"`
	StartDate    *datatypes.Date `gorm:"type:date" json:"startDate"`
	EndDate      *datatypes.Date `gorm:"type:date" json:"endDate"`
	Description  string          `gorm:"type:text" json:"description"`
	Achievements string          `gorm:"type:text" json:"achievements"`
	CreatedAt    time.Time       `gorm:"precision:6" json:"createdAt"`
}

func (WorkExperience) TableName() string {
	return "resume_work_experiences"
}

// ResumeVersion 简历上传快照，只追加。
// 除 AnalysisReport、AnalysisMetadata、VersionNote 外写入后不再修改。
type ResumeVersion struct {
	ID               uint64         `gorm:"primaryKey;autoIncrement" json:"id"`
	ResumeID         uint64         `gorm:"not null;uniqueIndex:uk_resume_versions_resume_version,priority:1" json:"resumeId"`
	VersionNumber    int            `gorm:"not null;uniqueIndex:uk_resume_versions_resume_version,priority:2" json:"versionNumber"`
	FileName         string         `gorm:"type:varchar(255)" json:"fileName"`
	FileSize         int64          `json:"fileSize"`
	FileObjectKey    string         `gorm:"type:varchar(1024)" json:"-"` // MinIO中的原始文件路径，归档失败时为空
	RawText          string         `gorm:"type:longtext" json:"rawText"`
	ParsedData       string         `gorm:"type:longtext" json:"-"` // ParsedResume 的 JSON
	AnalysisReport   *string        `gorm:"type:longtext" json:"analysisReport"`
	AnalysisMetadata datatypes.JSON `gorm:"type:json" json:"analysisMetadata"`
	UploadTime       time.Time      `gorm:"precision:6;index:idx_resume_versions_upload_time" json:"uploadTime"`
	VersionNote      *string        `gorm:"type:varchar(500)" json:"versionNote"`
	CreatedAt        time.Time      `gorm:"precision:6" json:"createdAt"`
}

func (ResumeVersion) TableName() string {
	return "resume_versions"
}

// HasAnalysis 报告是否已生成
func (v *ResumeVersion) HasAnalysis() bool {
	return v.AnalysisReport != nil && *v.AnalysisReport != ""
}
