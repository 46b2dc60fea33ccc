package creation

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/yourusername/launchpad/internal/agent"
	"github.com/yourusername/launchpad/internal/jobs"
)

// Starter はエージェント作成ジョブを受け付けます。
type Starter interface {
	Start(ctx context.Context, cfg agent.Config) (string, error)
}

// StatusReader はジョブレコードを読み出します。
type StatusReader interface {
	Get(ctx context.Context, jobID string) (*jobs.Record, error)
}

// CreateHandler は POST /api/agent/create のハンドラーを返します。
func CreateHandler(starter Starter) gin.HandlerFunc {
	return func(c *gin.Context) {
		var cfg agent.Config
		if err := c.ShouldBindJSON(&cfg); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"success": false,
				"code":    "INVALID_INPUT",
				"message": "JSON 形式でエージェント設定を送信してください。",
			})
			return
		}

		jobID, err := starter.Start(c.Request.Context(), cfg)
		if err != nil {
			if errors.Is(err, agent.ErrInvalidConfig) {
				c.JSON(http.StatusBadRequest, gin.H{
					"success": false,
					"code":    "INVALID_INPUT",
					"message": strings.TrimPrefix(err.Error(), agent.ErrInvalidConfig.Error()+": "),
				})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{
				"success": false,
				"code":    "INTERNAL_ERROR",
				"message": "エージェント作成ジョブの登録に失敗しました。",
			})
			return
		}

		c.JSON(http.StatusAccepted, gin.H{
			"success": true,
			"jobId":   jobID,
			"message": "Agent creation started",
		})
	}
}

// StatusHandler は GET /api/agent/status/:jobId のハンドラーを返します。
// 存在しないジョブは 404 と初期ステージで応答します。
func StatusHandler(reader StatusReader) gin.HandlerFunc {
	return func(c *gin.Context) {
		jobID := strings.TrimSpace(c.Param("jobId"))
		if jobID == "" {
			c.JSON(http.StatusBadRequest, gin.H{
				"success": false,
				"code":    "INVALID_INPUT",
				"message": "jobId を指定してください。",
			})
			return
		}

		record, err := reader.Get(c.Request.Context(), jobID)
		if err != nil {
			if errors.Is(err, jobs.ErrNotFound) {
				c.JSON(http.StatusNotFound, gin.H{
					"success":  false,
					"code":     "JOB_NOT_FOUND",
					"message":  "指定されたジョブは存在しません。",
					"progress": jobs.Status{Stage: jobs.StageStoringConfig},
				})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{
				"success": false,
				"code":    "INTERNAL_ERROR",
				"message": "ジョブ情報の取得に失敗しました。",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"success":  true,
			"progress": record.Status(),
		})
	}
}

// RegisterRoutes は作成とステータス取得のルートを登録します。
func RegisterRoutes(group *gin.RouterGroup, starter Starter, reader StatusReader) {
	group.POST("/agent/create", CreateHandler(starter))
	group.GET("/agent/status/:jobId", StatusHandler(reader))
}
