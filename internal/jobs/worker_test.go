package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/launchpad/internal/agent"
)

func testConfig() agent.Config {
	return agent.Config{Name: "Bot", OwnerID: "owner-1"}
}

func newTestPool(t *testing.T, store Store) *Pool {
	t.Helper()
	pool, err := NewPool(store, 2, nil)
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = pool.Shutdown(ctx)
	})
	return pool
}

func waitHandle(t *testing.T, h *Handle) error {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := h.Wait(ctx)
	require.False(t, errors.Is(err, context.DeadlineExceeded), "task did not finish")
	return err
}

func TestPoolScheduleRunsRunner(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	require.NoError(t, store.Create(ctx, NewRecord("job-1", testConfig(), time.Now())))

	pool := newTestPool(t, store)
	pool.Register(RunnerFunc(func(ctx context.Context, jobID string) error {
		for st := StageCreatingVectorIndex; st != ""; st = st.Next() {
			if err := store.UpdateStage(ctx, jobID, st, ""); err != nil {
				return err
			}
		}
		return nil
	}))

	handle, err := pool.Schedule(ctx, "job-1")
	require.NoError(t, err)
	assert.NoError(t, waitHandle(t, handle))

	rec, err := store.Get(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, StageCompleted, rec.Stage)
}

func TestPoolRecordsRunnerError(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	require.NoError(t, store.Create(ctx, NewRecord("job-1", testConfig(), time.Now())))

	pool := newTestPool(t, store)
	pool.Register(RunnerFunc(func(ctx context.Context, jobID string) error {
		return errors.New("record vanished")
	}))

	handle, err := pool.Schedule(ctx, "job-1")
	require.NoError(t, err)
	assert.EqualError(t, waitHandle(t, handle), "record vanished")

	rec, err := store.Get(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, StageFailed, rec.Stage)
	assert.Equal(t, "record vanished", rec.Error)
}

func TestPoolRecordsPanic(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	require.NoError(t, store.Create(ctx, NewRecord("job-1", testConfig(), time.Now())))

	pool := newTestPool(t, store)
	pool.Register(RunnerFunc(func(ctx context.Context, jobID string) error {
		panic("boom")
	}))

	handle, err := pool.Schedule(ctx, "job-1")
	require.NoError(t, err)
	assert.Error(t, waitHandle(t, handle))

	rec, err := store.Get(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, StageFailed, rec.Stage)
	assert.Contains(t, rec.Error, "boom")
}

func TestPoolKeepsExistingFailure(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	require.NoError(t, store.Create(ctx, NewRecord("job-1", testConfig(), time.Now())))

	pool := newTestPool(t, store)
	pool.Register(RunnerFunc(func(ctx context.Context, jobID string) error {
		_ = store.UpdateStage(ctx, jobID, StageFailed, "original cause")
		return errors.New("wrapped cause")
	}))

	handle, err := pool.Schedule(ctx, "job-1")
	require.NoError(t, err)
	_ = waitHandle(t, handle)

	rec, err := store.Get(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, "original cause", rec.Error)
}

func TestPoolIgnoresDuplicateDelivery(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	require.NoError(t, store.Create(ctx, NewRecord("job-1", testConfig(), time.Now())))
	require.NoError(t, store.UpdateStage(ctx, "job-1", StageCreatingVectorIndex, ""))

	pool := newTestPool(t, store)
	pool.Register(RunnerFunc(func(ctx context.Context, jobID string) error {
		return ErrAlreadyStarted
	}))

	handle, err := pool.Schedule(ctx, "job-1")
	require.NoError(t, err)
	assert.True(t, errors.Is(waitHandle(t, handle), ErrAlreadyStarted))

	rec, err := store.Get(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, StageCreatingVectorIndex, rec.Stage)
}

func TestPoolWithoutRunner(t *testing.T) {
	pool := newTestPool(t, NewMemoryStore())
	_, err := pool.Schedule(context.Background(), "job-1")
	assert.True(t, errors.Is(err, ErrNoRunner))
}

func TestNewManagerRejectsBadInput(t *testing.T) {
	_, err := NewManager(ManagerConfig{RedisURL: "redis://localhost:6379/0"}, nil, nil)
	assert.Error(t, err)

	_, err = NewManager(ManagerConfig{RedisURL: "://bad"}, NewMemoryStore(), nil)
	assert.Error(t, err)
}
