package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"
)

// Deployer はエージェントを公開します。
type Deployer interface {
	Deploy(ctx context.Context, id string) (*Deployment, error)
}

// Publisher はエージェント行から公開URLを払い出す Deployer 実装です。
type Publisher struct {
	repo    Repository
	baseURL string
	logger  *slog.Logger
	now     func() time.Time
}

// NewPublisher は Publisher を作成します。
func NewPublisher(repo Repository, baseURL string, logger *slog.Logger) (*Publisher, error) {
	if repo == nil {
		return nil, errors.New("repository is nil")
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("invalid public base url: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		repo:    repo,
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  logger.With("component", "publisher"),
		now:     time.Now,
	}, nil
}

// Deploy は設定済みのエージェントに公開URLを割り当てて保存します。
func (p *Publisher) Deploy(ctx context.Context, id string) (*Deployment, error) {
	rec, err := p.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec.Status != StatusConfigured {
		return nil, fmt.Errorf("agent %s is not configured (status=%s)", id, rec.Status)
	}

	deployment := Deployment{
		ID:  fmt.Sprintf("deploy_%d", p.now().UnixMilli()),
		URL: fmt.Sprintf("%s/agent/%s", p.baseURL, url.PathEscape(id)),
	}
	if err := p.repo.SetDeployment(ctx, id, deployment); err != nil {
		return nil, err
	}
	p.logger.Info("agent deployed", "agent_id", id, "deployment_id", deployment.ID, "url", deployment.URL)
	return &deployment, nil
}
