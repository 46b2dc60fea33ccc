package main

import (
	"bytes"
	"context"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/launchpad/internal/agent"
	"github.com/yourusername/launchpad/internal/creation"
	"github.com/yourusername/launchpad/internal/jobs"
)

// instantStarter はジョブを作成し、すぐに最終ステージまで進めます。
type instantStarter struct {
	store *jobs.MemoryStore
	final jobs.Stage
}

func (s instantStarter) Start(ctx context.Context, cfg agent.Config) (string, error) {
	const jobID = "agent_1_cafebabe"
	if err := s.store.Create(ctx, jobs.NewRecord(jobID, cfg, time.Now())); err != nil {
		return "", err
	}
	if s.final == jobs.StageFailed {
		return jobID, s.store.UpdateStage(ctx, jobID, jobs.StageFailed, "deploying_agent: hosting unavailable")
	}
	for st := jobs.StageCreatingVectorIndex; st != ""; st = st.Next() {
		if err := s.store.UpdateStage(ctx, jobID, st, ""); err != nil {
			return "", err
		}
	}
	return jobID, nil
}

func startServer(t *testing.T, final jobs.Stage) *jobs.MemoryStore {
	t.Helper()
	gin.SetMode(gin.TestMode)
	store := jobs.NewMemoryStore()
	router := gin.New()
	creation.RegisterRoutes(router.Group("/api"), instantStarter{store: store, final: final}, store)
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	t.Setenv("LAUNCHPAD_SERVER_URL", srv.URL)
	return store
}

func writeAgentFile(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "agent.yaml")
	require.NoError(t, os.WriteFile(path, []byte("agent_name: Support Bot\nuser_id: user-42\n"), 0o644))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestCreateAndWatch(t *testing.T) {
	startServer(t, jobs.StageCompleted)

	out, err := execute(t, "create", "-f", writeAgentFile(t), "--watch", "--interval", "10ms")
	require.NoError(t, err)
	assert.Contains(t, out, "Job agent_1_cafebabe started")
	assert.Contains(t, out, "Completed")
}

func TestWatchReportsFailure(t *testing.T) {
	startServer(t, jobs.StageFailed)

	_, err := execute(t, "create", "-f", writeAgentFile(t), "--watch", "--interval", "10ms")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "hosting unavailable")
}

func TestStatusUnknownJob(t *testing.T) {
	startServer(t, jobs.StageCompleted)

	out, err := execute(t, "status", "agent_0_00000000")
	require.NoError(t, err)
	assert.Contains(t, out, "Storing configuration")
}

func TestCreateRequiresFile(t *testing.T) {
	startServer(t, jobs.StageCompleted)
	_, err := execute(t, "create")
	assert.Error(t, err)
}
