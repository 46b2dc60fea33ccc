package agent

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRepository(t *testing.T) *SQLiteRepository {
	t.Helper()
	repo, err := OpenSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return repo
}

func sampleConfig() Config {
	cfg := Config{
		Name:         "Support Bot",
		OwnerID:      "user-1",
		SystemPrompt: "be nice",
		KnowledgeBase: []Asset{
			{Name: "faq.pdf", Type: "application/pdf", URL: "user-1/support/faq.pdf"},
			{Name: "prices.csv", Type: "text/csv", URL: "user-1/support/prices.csv"},
		},
		Icon:          &Asset{Name: "icon.png", URL: "user-1/support/agent_avatar.png"},
		QuickMessages: []string{"hi"},
	}
	cfg.Normalize()
	return cfg
}

func TestSQLiteRepositoryLifecycle(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t)

	require.NoError(t, repo.Insert(ctx, "agent_1", sampleConfig()))

	rec, err := repo.Get(ctx, "agent_1")
	require.NoError(t, err)
	assert.Equal(t, StatusStoring, rec.Status)
	assert.Equal(t, ModelClaude, rec.Config.PrimaryModel)
	assert.Equal(t, DefaultUserMessageColor, rec.Config.UserMessageColor)
	assert.Equal(t, []string{"user-1/support/faq.pdf", "user-1/support/prices.csv"}, rec.DocumentURLs)
	require.NotNil(t, rec.Config.Icon)
	assert.Equal(t, "icon.png", rec.Config.Icon.Name)
	assert.Nil(t, rec.Vector)
	assert.Nil(t, rec.Deployment)

	require.NoError(t, repo.ApplyDerived(ctx, "agent_1", Derived{
		DocumentURLs: []string{"user-1/support/faq.pdf"},
		LogoURL:      "user-1/support/agent_avatar.png",
		Vector:       VectorConfig{Namespace: "user-1-agent_1", DocumentCount: 1, Documents: []string{"faq.pdf"}, Status: "active"},
	}))
	rec, err = repo.Get(ctx, "agent_1")
	require.NoError(t, err)
	assert.Equal(t, StatusConfigured, rec.Status)
	require.NotNil(t, rec.Vector)
	assert.Equal(t, 1, rec.Vector.DocumentCount)

	require.NoError(t, repo.SetDeployment(ctx, "agent_1", Deployment{ID: "deploy_1", URL: "http://x/agent/agent_1"}))
	require.NoError(t, repo.SetStatus(ctx, "agent_1", StatusActive))
	rec, err = repo.Get(ctx, "agent_1")
	require.NoError(t, err)
	assert.Equal(t, StatusActive, rec.Status)
	require.NotNil(t, rec.Deployment)
	assert.Equal(t, "deploy_1", rec.Deployment.ID)
}

func TestSQLiteRepositoryErrors(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t)

	_, err := repo.Get(ctx, "missing")
	assert.True(t, errors.Is(err, ErrNotFound))

	err = repo.SetStatus(ctx, "missing", StatusActive)
	assert.True(t, errors.Is(err, ErrNotFound))

	require.NoError(t, repo.Insert(ctx, "agent_1", sampleConfig()))
	err = repo.Insert(ctx, "agent_1", sampleConfig())
	assert.True(t, errors.Is(err, ErrAlreadyExists))
}

func TestPublisherDeploy(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t)
	require.NoError(t, repo.Insert(ctx, "agent_1", sampleConfig()))

	pub, err := NewPublisher(repo, "https://agents.example.com/", nil)
	require.NoError(t, err)
	pub.now = func() time.Time { return time.UnixMilli(1700000000000) }

	_, err = pub.Deploy(ctx, "agent_1")
	require.Error(t, err, "an unconfigured agent cannot be deployed")

	require.NoError(t, repo.ApplyDerived(ctx, "agent_1", Derived{}))
	dep, err := pub.Deploy(ctx, "agent_1")
	require.NoError(t, err)
	assert.Equal(t, "deploy_1700000000000", dep.ID)
	assert.Equal(t, "https://agents.example.com/agent/agent_1", dep.URL)

	rec, err := repo.Get(ctx, "agent_1")
	require.NoError(t, err)
	assert.Equal(t, StatusDeployed, rec.Status)
}
