package storage

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestObjectKeys(t *testing.T) {
	key := OriginalObjectKey(12, "简历.PDF")
	assert.True(t, strings.HasPrefix(key, "resumes/12/"), key)
	assert.True(t, strings.HasSuffix(key, "/original.pdf"), key)

	parsed := ParsedTextObjectKey(key)
	assert.True(t, strings.HasPrefix(parsed, "parsed/12/"), parsed)
	assert.True(t, strings.HasSuffix(parsed, "/parsed_text.txt"), parsed)

	// 两次归档的对象键不同
	assert.NotEqual(t, key, OriginalObjectKey(12, "简历.PDF"))
}

func TestGetContentType(t *testing.T) {
	assert.Equal(t, "application/pdf", getContentType(".PDF"))
	assert.Equal(t, "application/vnd.openxmlformats-officedocument.wordprocessingml.document", getContentType(".docx"))
	assert.Equal(t, "application/octet-stream", getContentType(".bin"))
}

func TestUploadLockKey(t *testing.T) {
	assert.Equal(t, "app:resume:lock:42", UploadLockKey(42))
}
