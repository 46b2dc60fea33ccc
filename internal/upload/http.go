// Package upload はナレッジ文書とアイコンのアップロードを扱います。
package upload

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/gin-gonic/gin"

	"github.com/yourusername/launchpad/internal/storage"
)

// FileType はアップロードの用途です。
type FileType string

const (
	FileTypeKnowledge FileType = "knowledge"
	FileTypeAvatar    FileType = "avatar"
)

const (
	knowledgePrefix = "knowledge_doc"
	avatarBaseName  = "agent_avatar"
)

// Handler はアップロードと削除のハンドラーです。
type Handler struct {
	store   storage.Storage
	maxSize int64
	logger  *slog.Logger
	now     func() time.Time
}

// NewHandler は Handler を作成します。
func NewHandler(store storage.Storage, maxSize int64, logger *slog.Logger) (*Handler, error) {
	if store == nil {
		return nil, errors.New("storage is nil")
	}
	if maxSize <= 0 {
		maxSize = 10 * 1024 * 1024
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		store:   store,
		maxSize: maxSize,
		logger:  logger.With("component", "upload"),
		now:     time.Now,
	}, nil
}

// RegisterRoutes はアップロード関連のルートを登録します。
func (h *Handler) RegisterRoutes(group *gin.RouterGroup) {
	group.POST("/upload", h.Upload)
	group.POST("/upload/delete", h.Delete)
}

// Upload は POST /api/upload を処理し、保存先のURLを返します。
func (h *Handler) Upload(c *gin.Context) {
	header, err := c.FormFile("file")
	if err != nil {
		badRequest(c, "アップロードするファイルを指定してください。")
		return
	}
	userID := strings.TrimSpace(c.PostForm("userId"))
	agentName := strings.TrimSpace(c.PostForm("agentName"))
	fileType := FileType(c.PostForm("fileType"))
	if msg := validateOwner(userID, agentName, fileType); msg != "" {
		badRequest(c, msg)
		return
	}
	if header.Size > h.maxSize {
		tooLarge(c, h.maxSize)
		return
	}

	file, err := header.Open()
	if err != nil {
		internalError(c, "アップロードファイルの読み込みに失敗しました。")
		return
	}
	defer file.Close()
	data, err := io.ReadAll(io.LimitReader(file, h.maxSize+1))
	if err != nil {
		internalError(c, "アップロードファイルの読み込みに失敗しました。")
		return
	}
	if int64(len(data)) > h.maxSize {
		tooLarge(c, h.maxSize)
		return
	}

	mtype := mimetype.Detect(data)
	if !accepts(fileType, mtype) {
		c.JSON(http.StatusUnsupportedMediaType, gin.H{
			"code":    "UNSUPPORTED_FILE_TYPE",
			"message": fmt.Sprintf("このファイル形式 (%s) はアップロードできません。", mtype.String()),
		})
		return
	}

	key := ObjectKey(userID, agentName, fileType, extension(header.Filename, mtype), h.now())
	url, err := h.store.Put(c.Request.Context(), key, data, mtype.String())
	if err != nil {
		if errors.Is(err, storage.ErrInvalidKey) {
			badRequest(c, "userId または agentName に使用できない文字が含まれています。")
			return
		}
		h.logger.Error("upload failed", "key", key, "error", err)
		internalError(c, "ファイルの保存に失敗しました。")
		return
	}

	h.logger.Info("file uploaded", "key", key, "content_type", mtype.String(), "size", len(data))
	c.JSON(http.StatusOK, gin.H{"url": url})
}

type deleteRequest struct {
	UserID    string   `json:"userId"`
	AgentName string   `json:"agentName"`
	FileName  string   `json:"fileName"`
	FileType  FileType `json:"fileType"`
}

// Delete は POST /api/upload/delete を処理します。
func (h *Handler) Delete(c *gin.Context) {
	var req deleteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "JSON 形式で削除対象を指定してください。")
		return
	}
	req.UserID = strings.TrimSpace(req.UserID)
	req.AgentName = strings.TrimSpace(req.AgentName)
	if msg := validateOwner(req.UserID, req.AgentName, req.FileType); msg != "" {
		badRequest(c, msg)
		return
	}
	name := strings.TrimSpace(req.FileName)
	if !ownsFileName(req.FileType, name) {
		badRequest(c, "fileName が不正です。")
		return
	}

	key := req.UserID + "/" + req.AgentName + "/" + name
	if err := h.store.Delete(c.Request.Context(), key); err != nil {
		switch {
		case errors.Is(err, storage.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{
				"code":    "FILE_NOT_FOUND",
				"message": "指定されたファイルは存在しません。",
			})
		case errors.Is(err, storage.ErrInvalidKey):
			badRequest(c, "fileName が不正です。")
		default:
			h.logger.Error("delete failed", "key", key, "error", err)
			internalError(c, "ファイルの削除に失敗しました。")
		}
		return
	}

	h.logger.Info("file deleted", "key", key)
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// ObjectKey は <userId>/<agentName>/<ファイル名> 形式のキーを返します。
// ナレッジ文書はアップロード時刻で区別し、アイコンは常に同じ名前で上書きします。
func ObjectKey(userID, agentName string, fileType FileType, ext string, now time.Time) string {
	var name string
	if fileType == FileTypeAvatar {
		name = avatarBaseName + ext
	} else {
		name = fmt.Sprintf("%s_%d%s", knowledgePrefix, now.UnixMilli(), ext)
	}
	return userID + "/" + agentName + "/" + name
}

func validateOwner(userID, agentName string, fileType FileType) string {
	switch {
	case userID == "":
		return "userId を指定してください。"
	case agentName == "":
		return "agentName を指定してください。"
	case strings.ContainsAny(userID+agentName, "/\\"):
		return "userId と agentName にスラッシュは使用できません。"
	case fileType != FileTypeKnowledge && fileType != FileTypeAvatar:
		return "fileType は knowledge または avatar を指定してください。"
	}
	return ""
}

// ownsFileName は削除対象が用途に合ったアップロード済みファイル名かを返します。
func ownsFileName(fileType FileType, name string) bool {
	if name == "" || strings.ContainsAny(name, "/\\") || name == ".." {
		return false
	}
	if fileType == FileTypeAvatar {
		return strings.HasPrefix(name, avatarBaseName+".") || name == avatarBaseName
	}
	return strings.HasPrefix(name, knowledgePrefix+"_")
}

// accepts はナレッジなら PDF とテキスト系、アイコンなら画像だけを許可します。
func accepts(fileType FileType, mtype *mimetype.MIME) bool {
	if fileType == FileTypeAvatar {
		return strings.HasPrefix(mtype.String(), "image/")
	}
	for m := mtype; m != nil; m = m.Parent() {
		if m.Is("application/pdf") || m.Is("text/plain") {
			return true
		}
	}
	return false
}

// extension は元のファイル名の拡張子を優先し、無ければ判定結果から補います。
func extension(filename string, mtype *mimetype.MIME) string {
	ext := strings.ToLower(filepath.Ext(filename))
	if ext == "" || ext == "." {
		ext = mtype.Extension()
	}
	return ext
}

func badRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, gin.H{
		"code":    "INVALID_INPUT",
		"message": message,
	})
}

func tooLarge(c *gin.Context, limit int64) {
	c.JSON(http.StatusRequestEntityTooLarge, gin.H{
		"code":    "LIMIT_EXCEEDED",
		"message": fmt.Sprintf("ファイルサイズは %dMB 以下にしてください。", limit/(1024*1024)),
	})
}

func internalError(c *gin.Context, message string) {
	c.JSON(http.StatusInternalServerError, gin.H{
		"code":    "INTERNAL_ERROR",
		"message": message,
	})
}
