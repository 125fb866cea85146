package storage

import "time"

// EventResumeVersionCreated 新简历版本写入后发出的事件类型
const EventResumeVersionCreated = "resume.version.created"

// ResumeVersionCreatedMessage 简历版本创建事件，经 outbox 投递到 RabbitMQ
type ResumeVersionCreatedMessage struct {
	EventID       string    `json:"event_id"`
	UserID        uint64    `json:"user_id"`
	ResumeID      uint64    `json:"resume_id"`
	VersionID     uint64    `json:"version_id"`
	VersionNumber int       `json:"version_number"`
	FileName      string    `json:"file_name"`
	FileObjectKey string    `json:"file_object_key,omitempty"` // MinIO中的对象路径
	HasAnalysis   bool      `json:"has_analysis"`
	CreatedAt     time.Time `json:"created_at"`
}
