package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/launchpad/internal/agent"
	"github.com/yourusername/launchpad/internal/vector"
)

// storeContract は Store 実装が満たすべき振る舞いをまとめて検証します。
func storeContract(t *testing.T, newStore func(t *testing.T) Store) {
	ctx := context.Background()
	cfg := agent.Config{Name: "Bot", OwnerID: "owner-1"}

	t.Run("get unknown job", func(t *testing.T) {
		store := newStore(t)
		_, err := store.Get(ctx, "nope")
		assert.True(t, errors.Is(err, ErrNotFound), "got %v", err)
	})

	t.Run("create rejects duplicates", func(t *testing.T) {
		store := newStore(t)
		require.NoError(t, store.Create(ctx, NewRecord("job-1", cfg, time.Now())))
		err := store.Create(ctx, NewRecord("job-1", cfg, time.Now()))
		assert.True(t, errors.Is(err, ErrAlreadyExists), "got %v", err)
	})

	t.Run("stages only move forward", func(t *testing.T) {
		store := newStore(t)
		require.NoError(t, store.Create(ctx, NewRecord("job-2", cfg, time.Now())))

		stages := []Stage{StageCreatingVectorIndex, StageUpdatingConfig, StageDeployingAgent, StageFinalizingAgent}
		var last time.Time
		for _, st := range stages {
			require.NoError(t, store.UpdateStage(ctx, "job-2", st, ""))
			rec, err := store.Get(ctx, "job-2")
			require.NoError(t, err)
			assert.Equal(t, st, rec.Stage)
			assert.False(t, rec.UpdatedAt.Before(last), "updatedAt must not regress")
			last = rec.UpdatedAt
		}

		err := store.UpdateStage(ctx, "job-2", StageUpdatingConfig, "")
		assert.True(t, errors.Is(err, ErrStageRegression), "got %v", err)
		err = store.UpdateStage(ctx, "job-2", StageFinalizingAgent, "")
		assert.True(t, errors.Is(err, ErrStageRegression), "rewriting the same stage is rejected")

		require.NoError(t, store.UpdateStage(ctx, "job-2", StageCompleted, ""))
		err = store.UpdateStage(ctx, "job-2", StageFailed, "late failure")
		assert.True(t, errors.Is(err, ErrTerminalStage), "got %v", err)
	})

	t.Run("progress only during ingestion", func(t *testing.T) {
		store := newStore(t)
		require.NoError(t, store.Create(ctx, NewRecord("job-3", cfg, time.Now())))

		err := store.UpdateProgress(ctx, "job-3", 1, 2, "early")
		assert.True(t, errors.Is(err, ErrNoIngestion), "got %v", err)

		require.NoError(t, store.UpdateStage(ctx, "job-3", StageCreatingVectorIndex, ""))
		require.NoError(t, store.UpdateProgress(ctx, "job-3", 1, 2, "Processing a.pdf"))
		rec, err := store.Get(ctx, "job-3")
		require.NoError(t, err)
		require.NotNil(t, rec.Progress)
		assert.Equal(t, Progress{Current: 1, Total: 2, Message: "Processing a.pdf"}, *rec.Progress)

		require.NoError(t, store.RecordIngestion(ctx, "job-3", IngestionTally{
			DocumentCount: 1,
			Documents:     []string{"a.pdf"},
			Status:        "active",
		}))
		require.NoError(t, store.UpdateStage(ctx, "job-3", StageUpdatingConfig, ""))
		rec, err = store.Get(ctx, "job-3")
		require.NoError(t, err)
		assert.Nil(t, rec.Progress, "progress is cleared once ingestion ends")
		assert.Equal(t, 1, rec.DocumentCount)
		assert.Equal(t, []string{"a.pdf"}, rec.ProcessedDocuments)
		assert.Equal(t, vector.Namespace("owner-1", "job-3"), rec.VectorNamespace)
	})

	t.Run("failure is absorbing and reads are stable", func(t *testing.T) {
		store := newStore(t)
		require.NoError(t, store.Create(ctx, NewRecord("job-4", cfg, time.Now())))
		require.NoError(t, store.UpdateStage(ctx, "job-4", StageFailed, "db unavailable"))

		first, err := store.Get(ctx, "job-4")
		require.NoError(t, err)
		for i := 0; i < 3; i++ {
			again, err := store.Get(ctx, "job-4")
			require.NoError(t, err)
			assert.Equal(t, first.Stage, again.Stage)
			assert.Equal(t, first.Error, again.Error)
			assert.Equal(t, first.DocumentCount, again.DocumentCount)
		}
		assert.Equal(t, "db unavailable", first.Status().Error)

		err = store.UpdateStage(ctx, "job-4", StageCreatingVectorIndex, "")
		assert.True(t, errors.Is(err, ErrTerminalStage))
	})

	t.Run("concurrent progress writers", func(t *testing.T) {
		store := newStore(t)
		require.NoError(t, store.Create(ctx, NewRecord("job-5", cfg, time.Now())))
		require.NoError(t, store.UpdateStage(ctx, "job-5", StageCreatingVectorIndex, ""))

		var wg sync.WaitGroup
		for i := 1; i <= 10; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				assert.NoError(t, store.UpdateProgress(ctx, "job-5", i, 10, fmt.Sprintf("doc %d", i)))
			}(i)
		}
		wg.Wait()

		rec, err := store.Get(ctx, "job-5")
		require.NoError(t, err)
		assert.Equal(t, StageCreatingVectorIndex, rec.Stage)
		require.NotNil(t, rec.Progress)
		assert.Equal(t, 10, rec.Progress.Total)
	})
}

func TestMemoryStore(t *testing.T) {
	storeContract(t, func(t *testing.T) Store { return NewMemoryStore() })
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	require.NoError(t, store.Create(ctx, NewRecord("job-1", agent.Config{OwnerID: "o"}, time.Now())))

	rec, err := store.Get(ctx, "job-1")
	require.NoError(t, err)
	rec.Stage = StageCompleted

	again, err := store.Get(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, StageStoringConfig, again.Stage)
}

func TestStageNext(t *testing.T) {
	st := StageStoringConfig
	var seen []Stage
	for !st.Terminal() {
		seen = append(seen, st)
		st = st.Next()
	}
	assert.Equal(t, []Stage{
		StageStoringConfig, StageCreatingVectorIndex, StageUpdatingConfig,
		StageDeployingAgent, StageFinalizingAgent,
	}, seen)
	assert.Equal(t, StageCompleted, st)
	assert.Equal(t, Stage(""), StageFailed.Next())
}

func TestStageCanAdvanceTo(t *testing.T) {
	tests := []struct {
		from, to Stage
		want     bool
	}{
		{StageStoringConfig, StageCreatingVectorIndex, true},
		{StageStoringConfig, StageFailed, true},
		{StageStoringConfig, StageUpdatingConfig, false},
		{StageDeployingAgent, StageCreatingVectorIndex, false},
		{StageFinalizingAgent, StageCompleted, true},
		{StageCompleted, StageFailed, false},
		{StageFailed, StageCompleted, false},
		{StageCreatingVectorIndex, Stage("bogus"), false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.from.CanAdvanceTo(tt.to), "%s -> %s", tt.from, tt.to)
	}
}
