// Package jobs はエージェント作成ジョブの状態管理と非同期実行を提供します。
package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"

	"github.com/panjf2000/ants/v2"
)

// Runner はジョブ本体を実行します。
type Runner interface {
	Run(ctx context.Context, jobID string) error
}

// RunnerFunc は関数を Runner として扱うためのアダプタです。
type RunnerFunc func(ctx context.Context, jobID string) error

// Run は f(ctx, jobID) を呼び出します。
func (f RunnerFunc) Run(ctx context.Context, jobID string) error {
	return f(ctx, jobID)
}

// Handle は投入済みタスクへの参照です。
type Handle struct {
	JobID  string
	TaskID string

	done chan struct{}
	err  error
}

// Done はタスク終了時に閉じられるチャネルを返します。
// キュー経由で別プロセスが実行するタスクでは nil です。
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Err はタスクの戻り値です。Done が閉じた後に参照してください。
func (h *Handle) Err() error {
	return h.err
}

// Wait はタスク終了か ctx のキャンセルまで待ちます。
func (h *Handle) Wait(ctx context.Context) error {
	select {
	case <-h.done:
		return h.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Pool は ants のワーカープールでジョブを実行するディスパッチャです。
type Pool struct {
	pool   *ants.Pool
	store  Store
	logger *slog.Logger

	mu     sync.RWMutex
	runner Runner
	wg     sync.WaitGroup
}

// NewPool は Pool を作成します。
func NewPool(store Store, size int, logger *slog.Logger) (*Pool, error) {
	if store == nil {
		return nil, errors.New("store is nil")
	}
	if size <= 0 {
		size = 4
	}
	if logger == nil {
		logger = slog.Default()
	}
	pool, err := ants.NewPool(size)
	if err != nil {
		return nil, fmt.Errorf("failed to create worker pool: %w", err)
	}
	return &Pool{
		pool:   pool,
		store:  store,
		logger: logger.With("component", "job-pool"),
	}, nil
}

// Register はジョブ本体を登録します。
func (p *Pool) Register(runner Runner) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.runner = runner
}

// Schedule はジョブをプールに投入し、完了を待てる Handle を返します。
// タスクは呼び出し元のリクエストとは切り離されたコンテキストで動きます。
func (p *Pool) Schedule(ctx context.Context, jobID string) (*Handle, error) {
	p.mu.RLock()
	runner := p.runner
	p.mu.RUnlock()
	if runner == nil {
		return nil, ErrNoRunner
	}

	handle := &Handle{JobID: jobID, TaskID: jobID, done: make(chan struct{})}
	p.wg.Add(1)
	err := p.pool.Submit(func() {
		defer p.wg.Done()
		defer close(handle.done)
		handle.err = execute(context.Background(), p.store, runner, p.logger, jobID)
	})
	if err != nil {
		p.wg.Done()
		return nil, fmt.Errorf("failed to submit job %s: %w", jobID, err)
	}
	p.logger.Debug("job submitted", "job_id", jobID, "running", p.pool.Running())
	return handle, nil
}

// Shutdown は実行中のジョブを待ってからプールを解放します。
func (p *Pool) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	defer p.pool.Release()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// execute はランナーを実行し、戻り値やパニックを failed としてレコードに残します。
func execute(ctx context.Context, store Store, runner Runner, logger *slog.Logger, jobID string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("job panicked", "job_id", jobID, "panic", r, "stack", string(debug.Stack()))
			err = fmt.Errorf("panic: %v", r)
		}
		if err != nil && !errors.Is(err, ErrAlreadyStarted) {
			failJob(ctx, store, logger, jobID, err)
		}
	}()
	return runner.Run(ctx, jobID)
}

// failJob は failed を書き込みます。既に終端ステージなら何もしません。
func failJob(ctx context.Context, store Store, logger *slog.Logger, jobID string, cause error) {
	err := store.UpdateStage(ctx, jobID, StageFailed, cause.Error())
	switch {
	case err == nil:
		logger.Warn("job failed", "job_id", jobID, "error", cause)
	case errors.Is(err, ErrTerminalStage):
		logger.Debug("job already terminal", "job_id", jobID, "error", cause)
	default:
		logger.Error("failed to record job failure", "job_id", jobID, "error", err, "cause", cause)
	}
}
