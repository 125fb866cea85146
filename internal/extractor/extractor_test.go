package extractor

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"career-agent-go/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractPlainText(t *testing.T) {
	e := New(nil)

	text, err := e.Extract(context.Background(), []byte("  张三\nJava, 5 years\n"), "resume.txt", "")
	require.NoError(t, err)
	assert.Equal(t, "张三\nJava, 5 years", text)

	// BOM 与非法字节
	data := append([]byte{0xEF, 0xBB, 0xBF}, []byte("简历\xff内容")...)
	text, err = e.Extract(context.Background(), data, "resume.MD", "")
	require.NoError(t, err)
	assert.Equal(t, "简历�内容", text)

	// 无扩展名时看MIME
	text, err = e.Extract(context.Background(), []byte("hello"), "resume", "text/plain; charset=utf-8")
	require.NoError(t, err)
	assert.Equal(t, "hello", text)
}

func TestExtractEmptyOrBlank(t *testing.T) {
	e := New(nil)

	_, err := e.Extract(context.Background(), nil, "resume.txt", "")
	assert.ErrorIs(t, err, ErrUnreadableDocument)

	_, err = e.Extract(context.Background(), []byte(" \n\t "), "resume.txt", "")
	assert.ErrorIs(t, err, ErrUnreadableDocument)
}

func TestExtractBinaryWithoutBackend(t *testing.T) {
	_, err := New(nil).Extract(context.Background(), []byte("%PDF-1.4"), "resume.pdf", "application/pdf")
	assert.ErrorIs(t, err, ErrUnreadableDocument)
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestExtractViaTika(t *testing.T) {
	var gotMethod, gotPath, gotAccept, gotName, gotType string
	var gotBody []byte
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod, gotPath = r.Method, r.URL.Path
		gotAccept = r.Header.Get("Accept")
		gotName = r.Header.Get("X-Tika-Resource-Name")
		gotType = r.Header.Get("Content-Type")
		gotBody, _ = io.ReadAll(r.Body)
		_, _ = w.Write([]byte("\n  李四 Go工程师  \n"))
	}))
	defer server.Close()

	e := New(NewTikaParser(server.URL + "/"))
	text, err := e.Extract(context.Background(), []byte("%PDF-1.4 fake"), "cv.pdf", "application/pdf")
	require.NoError(t, err)

	assert.Equal(t, "李四 Go工程师", text)
	assert.Equal(t, http.MethodPut, gotMethod)
	assert.Equal(t, "/tika", gotPath)
	assert.Equal(t, "text/plain", gotAccept)
	assert.Equal(t, "cv.pdf", gotName)
	assert.Equal(t, "application/pdf", gotType)
	assert.Equal(t, []byte("%PDF-1.4 fake"), gotBody)
}

func TestExtractTikaFailures(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
	}{
		{"server error", http.StatusInternalServerError, "boom"},
		{"unsupported", http.StatusUnsupportedMediaType, ""},
		{"blank output", http.StatusOK, "   \n  "},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(c.status)
				_, _ = w.Write([]byte(c.body))
			}))
			defer server.Close()

			_, err := New(NewTikaParser(server.URL)).Extract(context.Background(), []byte("data"), "cv.doc", "")
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrUnreadableDocument)

			var ude *UnreadableDocumentError
			require.True(t, errors.As(err, &ude))
			assert.Equal(t, "cv.doc", ude.Filename)
		})
	}
}

func TestLocalParserUnsupportedAndCorrupt(t *testing.T) {
	e := New(NewLocalParser())

	_, err := e.Extract(context.Background(), []byte("binary"), "photo.png", "image/png")
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
	assert.ErrorIs(t, err, ErrUnreadableDocument)

	_, err = e.Extract(context.Background(), []byte("not really a pdf"), "cv.pdf", "")
	assert.ErrorIs(t, err, ErrUnreadableDocument)

	_, err = e.Extract(context.Background(), []byte("not a zip"), "cv.docx", "")
	assert.ErrorIs(t, err, ErrUnreadableDocument)
}

func TestLocalParserDocx(t *testing.T) {
	data := buildDocx(t, `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>`+
		`<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>`+
		`<w:p><w:r><w:t>王五</w:t></w:r></w:p>`+
		`<w:p><w:r><w:t>技能：Go &amp; MySQL</w:t></w:r></w:p>`+
		`</w:body></w:document>`)

	text, err := New(NewLocalParser()).Extract(context.Background(), data, "cv.docx", "")
	require.NoError(t, err)
	assert.Equal(t, "王五\n技能：Go & MySQL", text)
}

func TestNewFromConfig(t *testing.T) {
	e, err := NewFromConfig(context.Background(), config.ExtractorConfig{Backend: "local"})
	require.NoError(t, err)
	assert.Equal(t, "local", e.backend.Name())

	e, err = NewFromConfig(context.Background(), config.ExtractorConfig{Tika: config.TikaConfig{ServerURL: "http://tika:9998"}})
	require.NoError(t, err)
	assert.Equal(t, "tika", e.backend.Name())

	_, err = NewFromConfig(context.Background(), config.ExtractorConfig{Backend: "ocr"})
	assert.Error(t, err)
}

func buildDocx(t *testing.T, documentXML string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	files := map[string]string{
		"[Content_Types].xml": `<?xml version="1.0" encoding="UTF-8"?><Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types"></Types>`,
		"word/document.xml":   documentXML,
		"word/_rels/document.xml.rels": `<?xml version="1.0" encoding="UTF-8"?>` +
			`<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships"></Relationships>`,
	}
	for name, content := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}
