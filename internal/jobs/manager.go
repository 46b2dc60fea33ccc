package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/hibiken/asynq"
)

const (
	taskTypeCreateAgent = "agent:create"
	queueName           = "agents"
)

// ManagerConfig は Manager の設定です。
type ManagerConfig struct {
	RedisURL    string
	Concurrency int
}

// Manager は Asynq を使ってジョブを投入・実行します。
type Manager struct {
	client *asynq.Client
	server *asynq.Server
	mux    *asynq.ServeMux
	store  Store
	logger *slog.Logger

	mu     sync.RWMutex
	runner Runner
}

// TaskPayload はエージェント作成タスクのペイロードです。
type TaskPayload struct {
	JobID string `json:"jobId"`
}

// NewManager は Manager を初期化します。
func NewManager(cfg ManagerConfig, store Store, logger *slog.Logger) (*Manager, error) {
	if store == nil {
		return nil, errors.New("store is nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	opt, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 4
	}

	logger = logger.With("component", "job-manager")
	client := asynq.NewClient(opt)
	server := asynq.NewServer(
		opt,
		asynq.Config{
			Concurrency: concurrency,
			Queues: map[string]int{
				queueName: 1,
			},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				logger.Error("task failed", "type", task.Type(), "error", err)
			}),
		},
	)

	mux := asynq.NewServeMux()
	manager := &Manager{
		client: client,
		server: server,
		mux:    mux,
		store:  store,
		logger: logger,
	}
	mux.HandleFunc(taskTypeCreateAgent, manager.handleCreateTask)
	return manager, nil
}

// Register はジョブ本体を登録します。
func (m *Manager) Register(runner Runner) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runner = runner
}

// StartWorkers は Asynq サーバーをバックグラウンドで起動します。
func (m *Manager) StartWorkers() {
	go func() {
		if err := m.server.Run(m.mux); err != nil && !errors.Is(err, asynq.ErrServerClosed) {
			m.logger.Error("asynq server stopped with error", "error", err)
		}
	}()
}

// Shutdown はサーバーとクライアントを閉じます。
func (m *Manager) Shutdown(ctx context.Context) error {
	m.server.Shutdown()
	return m.client.Close()
}

// Schedule はジョブをキューに投入します。
// 再試行は行いません。失敗はレコードの failed として記録されます。
func (m *Manager) Schedule(ctx context.Context, jobID string) (*Handle, error) {
	if jobID == "" {
		return nil, fmt.Errorf("jobID is required")
	}
	body, err := json.Marshal(&TaskPayload{JobID: jobID})
	if err != nil {
		return nil, err
	}

	task := asynq.NewTask(taskTypeCreateAgent, body, asynq.Queue(queueName))
	info, err := m.client.EnqueueContext(ctx, task, asynq.MaxRetry(0), asynq.TaskID(jobID))
	if err != nil {
		return nil, err
	}
	m.logger.Info("job enqueued", "job_id", jobID, "task_id", info.ID)
	return &Handle{JobID: jobID, TaskID: info.ID}, nil
}

func (m *Manager) handleCreateTask(ctx context.Context, task *asynq.Task) error {
	var payload TaskPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}
	if payload.JobID == "" {
		return fmt.Errorf("missing jobId in payload: %w", asynq.SkipRetry)
	}

	m.mu.RLock()
	runner := m.runner
	m.mu.RUnlock()
	if runner == nil {
		failJob(ctx, m.store, m.logger, payload.JobID, ErrNoRunner)
		return fmt.Errorf("%w: %w", ErrNoRunner, asynq.SkipRetry)
	}

	// キャンセル API は持たないため、ワーカー停止時のキャンセルはジョブに伝えない
	runCtx := context.WithoutCancel(ctx)
	if err := execute(runCtx, m.store, runner, m.logger, payload.JobID); err != nil {
		return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
	}
	return nil
}
