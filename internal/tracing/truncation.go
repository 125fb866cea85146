package tracing

import (
	"regexp"
	"strings"
)

const (
	// DefaultMaxLength 默认最大属性长度
	DefaultMaxLength = 200

	// MaxSQLLength SQL语句最大长度
	MaxSQLLength = 500

	// MaxRedisLength Redis键最大长度
	MaxRedisLength = 100

	// MaxPromptLength 模型输入输出最大长度
	MaxPromptLength = 300
)

// 属性名包含这些片段时整体掩码
var sensitiveKeyParts = []string{"candidate", "email", "phone", "address", "姓名", "电话", "邮箱", "地址", "token", "secret"}

var (
	emailPattern = regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)
	phonePattern = regexp.MustCompile(`\b1[3-9]\d{9}\b`)
)

// SafeAttributeValue 按属性名处理属性值：候选人和联系方式整体掩码，其余截断
func SafeAttributeValue(key, value string, maxLength int) string {
	lower := strings.ToLower(key)
	for _, part := range sensitiveKeyParts {
		if strings.Contains(lower, part) {
			return MaskPII(value)
		}
	}
	return TruncateString(MaskContacts(value), maxLength)
}

// MaskPII 保留首尾少量字符，其余替换为 *
// "张三" -> "张*"，"王小明" -> "王*明"，"13812345678" -> "13*******78"
func MaskPII(value string) string {
	runes := []rune(value)
	n := len(runes)
	switch {
	case n == 0:
		return ""
	case n == 1:
		return "*"
	case n == 2:
		return string(runes[0]) + "*"
	case n <= 4:
		return string(runes[0]) + strings.Repeat("*", n-2) + string(runes[n-1])
	default:
		return string(runes[:2]) + strings.Repeat("*", n-4) + string(runes[n-2:])
	}
}

// MaskContacts 掩码自由文本中的邮箱和手机号
func MaskContacts(text string) string {
	text = emailPattern.ReplaceAllStringFunc(text, MaskPII)
	return phonePattern.ReplaceAllStringFunc(text, MaskPII)
}

// TruncateString 超长时保留首尾，中间以 ... 连接
func TruncateString(s string, maxLength int) string {
	runes := []rune(s)
	if len(runes) <= maxLength {
		return s
	}
	if maxLength <= 3 {
		return string(runes[:maxLength])
	}
	half := (maxLength - 3) / 2
	if half < 1 {
		half = 1
	}
	return string(runes[:half]) + "..." + string(runes[len(runes)-half:])
}

// SafeSQL 截断SQL语句
func SafeSQL(sql string) string {
	return TruncateString(sql, MaxSQLLength)
}

// SafeRedisKey 截断Redis键
func SafeRedisKey(key string) string {
	return TruncateString(key, MaxRedisLength)
}

// SafePrompt 模型输入输出写入日志或span前掩码联系方式并截断
func SafePrompt(content string) string {
	return TruncateString(MaskContacts(content), MaxPromptLength)
}
