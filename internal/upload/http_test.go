package upload

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/launchpad/internal/storage"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x06\x00\x00\x00\x1f\x15\xc4\x89")

func newTestRouter(t *testing.T, maxSize int64) (*gin.Engine, *storage.Local) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	local, err := storage.NewLocal(t.TempDir(), "/files", nil)
	require.NoError(t, err)
	h, err := NewHandler(local, maxSize, nil)
	require.NoError(t, err)
	h.now = func() time.Time { return time.UnixMilli(1700000000000) }

	router := gin.New()
	h.RegisterRoutes(router.Group("/api"))
	return router, local
}

func multipartRequest(t *testing.T, filename string, content []byte, fields map[string]string) *http.Request {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	if filename != "" {
		part, err := writer.CreateFormFile("file", filename)
		require.NoError(t, err)
		_, err = part.Write(content)
		require.NoError(t, err)
	}
	for k, v := range fields {
		require.NoError(t, writer.WriteField(k, v))
	}
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/upload", body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

func fields(fileType string) map[string]string {
	return map[string]string{"userId": "user-42", "agentName": "Support Bot", "fileType": fileType}
}

func TestUploadKnowledgeDocument(t *testing.T) {
	router, local := newTestRouter(t, 1024)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, multipartRequest(t, "FAQ.TXT", []byte("Q: hours?\nA: 9-5\n"), fields("knowledge")))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "/files/user-42/Support Bot/knowledge_doc_1700000000000.txt", body["url"])

	data, err := os.ReadFile(filepath.Join(local.Root(), "user-42", "Support Bot", "knowledge_doc_1700000000000.txt"))
	require.NoError(t, err)
	assert.Equal(t, "Q: hours?\nA: 9-5\n", string(data))
}

func TestUploadAvatarUsesFixedName(t *testing.T) {
	router, _ := newTestRouter(t, 1024)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, multipartRequest(t, "me.png", pngHeader, fields("avatar")))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), "/files/user-42/Support Bot/agent_avatar.png")
}

func TestUploadRejectsWrongContent(t *testing.T) {
	router, _ := newTestRouter(t, 1024)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, multipartRequest(t, "me.png", []byte("just text"), fields("avatar")))
	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, multipartRequest(t, "blob.bin", []byte{0x00, 0x01, 0x02, 0xff, 0x00}, fields("knowledge")))
	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
}

func TestUploadLimitExceeded(t *testing.T) {
	router, _ := newTestRouter(t, 8)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, multipartRequest(t, "big.txt", bytes.Repeat([]byte("a"), 64), fields("knowledge")))

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Contains(t, rec.Body.String(), "LIMIT_EXCEEDED")
}

func TestUploadValidation(t *testing.T) {
	router, _ := newTestRouter(t, 1024)
	tests := []struct {
		name     string
		filename string
		fields   map[string]string
	}{
		{"missing file", "", fields("knowledge")},
		{"missing user", "a.txt", map[string]string{"agentName": "bot", "fileType": "knowledge"}},
		{"bad file type", "a.txt", fields("video")},
		{"slash in agent", "a.txt", map[string]string{"userId": "u", "agentName": "../etc", "fileType": "knowledge"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, multipartRequest(t, tt.filename, []byte("hello"), tt.fields))
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func deleteRequestFor(t *testing.T, payload deleteRequest) *http.Request {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/api/upload/delete", bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestDeleteUploadedFile(t *testing.T) {
	router, local := newTestRouter(t, 1024)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, multipartRequest(t, "faq.txt", []byte("hello"), fields("knowledge")))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, deleteRequestFor(t, deleteRequest{
		UserID:    "user-42",
		AgentName: "Support Bot",
		FileName:  "knowledge_doc_1700000000000.txt",
		FileType:  FileTypeKnowledge,
	}))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	_, err := os.Stat(filepath.Join(local.Root(), "user-42", "Support Bot", "knowledge_doc_1700000000000.txt"))
	assert.True(t, os.IsNotExist(err))
}

func TestDeleteRejectsForeignNames(t *testing.T) {
	router, _ := newTestRouter(t, 1024)
	for _, name := range []string{"../other/knowledge_doc_1.txt", "notes.txt", ""} {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, deleteRequestFor(t, deleteRequest{
			UserID:    "user-42",
			AgentName: "Support Bot",
			FileName:  name,
			FileType:  FileTypeKnowledge,
		}))
		assert.Equal(t, http.StatusBadRequest, rec.Code, name)
	}
}

func TestObjectKey(t *testing.T) {
	now := time.UnixMilli(42)
	assert.Equal(t, "u/bot/knowledge_doc_42.pdf", ObjectKey("u", "bot", FileTypeKnowledge, ".pdf", now))
	assert.Equal(t, "u/bot/agent_avatar.jpg", ObjectKey("u", "bot", FileTypeAvatar, ".jpg", now))
}
