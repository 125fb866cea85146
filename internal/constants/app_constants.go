package constants

const (
	// ResumeObjectPrefix 原始简历在对象存储中的目录
	// 格式: resumes/{userID}/{uuid}/original{ext}
	ResumeObjectPrefix = "resumes"

	// ParsedTextObjectPrefix 提取文本在对象存储中的目录
	// 格式: parsed/{userID}/{uuid}/parsed_text.txt
	ParsedTextObjectPrefix = "parsed"

	// ContextKeyUserID 鉴权中间件写入请求上下文的用户ID键
	ContextKeyUserID = "userId"

	// ContextKeyRequestID 请求ID键
	ContextKeyRequestID = "requestId"

	// HeaderRequestID 请求ID响应头
	HeaderRequestID = "X-Request-ID"

	// HeaderUserID 关闭鉴权时用于指定用户的请求头
	HeaderUserID = "X-User-ID"
)

// 与 resume_versions 列宽一致，按字符计
const (
	MaxFileNameLength    = 255
	MaxVersionNoteLength = 500
)
