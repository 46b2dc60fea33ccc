// Package creation はエージェント作成のステージ列を実行するオーケストレーターです。
//
// 各ステージは作業を終えてから次のステージ値を書き込みます。
// ステージ値が進んでいれば、その前のステージの作業は完了しています。
package creation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/yourusername/launchpad/internal/agent"
	"github.com/yourusername/launchpad/internal/ingest"
	"github.com/yourusername/launchpad/internal/jobs"
	"github.com/yourusername/launchpad/internal/vector"
)

// Scheduler はジョブを非同期に実行するディスパッチャです。
type Scheduler interface {
	Schedule(ctx context.Context, jobID string) (*jobs.Handle, error)
}

// Ingester はナレッジ文書をベクトルインデックスへ取り込みます。
type Ingester interface {
	Ingest(ctx context.Context, jobID, ownerID string, docs []ingest.DocumentRef) (*ingest.VectorConfig, error)
}

// Deps は Orchestrator の依存です。Index は省略できます。
type Deps struct {
	Store     jobs.Store
	Repo      agent.Repository
	Ingester  Ingester
	Deployer  agent.Deployer
	Index     vector.Index
	Scheduler Scheduler
	Logger    *slog.Logger
}

// Orchestrator はジョブの受付とステージ実行を担います。
type Orchestrator struct {
	store     jobs.Store
	repo      agent.Repository
	ingester  Ingester
	deployer  agent.Deployer
	index     vector.Index
	scheduler Scheduler
	logger    *slog.Logger
	now       func() time.Time
}

// New は Orchestrator を作成します。
func New(deps Deps) (*Orchestrator, error) {
	switch {
	case deps.Store == nil:
		return nil, errors.New("job store is nil")
	case deps.Repo == nil:
		return nil, errors.New("agent repository is nil")
	case deps.Ingester == nil:
		return nil, errors.New("ingester is nil")
	case deps.Deployer == nil:
		return nil, errors.New("deployer is nil")
	case deps.Scheduler == nil:
		return nil, errors.New("scheduler is nil")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		store:     deps.Store,
		repo:      deps.Repo,
		ingester:  deps.Ingester,
		deployer:  deps.Deployer,
		index:     deps.Index,
		scheduler: deps.Scheduler,
		logger:    logger.With("component", "orchestrator"),
		now:       time.Now,
	}, nil
}

// Start は設定を検証してジョブを登録し、ジョブIDを返します。
// ステージの実行はディスパッチャに任せ、完了を待ちません。
func (o *Orchestrator) Start(ctx context.Context, cfg agent.Config) (string, error) {
	handle, err := o.StartJob(ctx, cfg)
	if err != nil {
		return "", err
	}
	return handle.JobID, nil
}

// StartJob は Start と同じですが、完了を待てる Handle を返します。
func (o *Orchestrator) StartJob(ctx context.Context, cfg agent.Config) (*jobs.Handle, error) {
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	now := o.now()
	jobID := NewJobID(cfg, now)
	if err := o.store.Create(ctx, jobs.NewRecord(jobID, cfg, now)); err != nil {
		return nil, fmt.Errorf("failed to create job record: %w", err)
	}

	handle, err := o.scheduler.Schedule(ctx, jobID)
	if err != nil {
		o.fail(context.WithoutCancel(ctx), jobID, jobs.StageStoringConfig, fmt.Errorf("dispatch: %w", err))
		return nil, fmt.Errorf("failed to dispatch job %s: %w", jobID, err)
	}
	o.logger.Info("agent creation accepted", "job_id", jobID, "owner_id", cfg.OwnerID, "agent_name", cfg.Name, "documents", len(cfg.KnowledgeBase))
	return handle, nil
}

// NewJobID は agent_<unix ms>_<8桁の16進> 形式のジョブIDを生成します。
func NewJobID(cfg agent.Config, now time.Time) string {
	seed := fmt.Sprintf("%s|%s|%d", cfg.OwnerID, cfg.Name, now.UnixNano())
	sum := uuid.NewSHA1(uuid.NameSpaceOID, []byte(seed))
	return fmt.Sprintf("agent_%d_%s", now.UnixMilli(), strings.ReplaceAll(sum.String(), "-", "")[:8])
}

// runState はステージ間で受け渡す値です。
type runState struct {
	record     *jobs.Record
	vector     *ingest.VectorConfig
	deployment *agent.Deployment
}

type stageStep struct {
	stage jobs.Stage
	run   func(ctx context.Context, state *runState) error
}

// Run は storing_initial_config から completed までのステージを順に実行します。
// 失敗したステージで中断し、failed とエラーメッセージを書き込みます。
func (o *Orchestrator) Run(ctx context.Context, jobID string) error {
	rec, err := o.store.Get(ctx, jobID)
	if err != nil {
		return fmt.Errorf("failed to load job %s: %w", jobID, err)
	}
	if rec.Stage != jobs.StageStoringConfig {
		o.logger.Warn("job already started", "job_id", jobID, "stage", rec.Stage)
		return fmt.Errorf("%w: %s is at %s", jobs.ErrAlreadyStarted, jobID, rec.Stage)
	}

	logger := o.logger.With("job_id", jobID)
	started := o.now()
	steps := []stageStep{
		{jobs.StageStoringConfig, o.storeConfig},
		{jobs.StageCreatingVectorIndex, o.createVectorIndex},
		{jobs.StageUpdatingConfig, o.updateConfig},
		{jobs.StageDeployingAgent, o.deploy},
		{jobs.StageFinalizingAgent, o.finalize},
	}
	state := &runState{record: rec}
	for _, step := range steps {
		logger.Info("stage started", "stage", step.stage)
		if err := step.run(ctx, state); err != nil {
			o.fail(ctx, jobID, step.stage, err)
			return fmt.Errorf("%s: %w", step.stage, err)
		}
		next := step.stage.Next()
		if err := o.store.UpdateStage(ctx, jobID, next, ""); err != nil {
			o.fail(ctx, jobID, step.stage, err)
			return fmt.Errorf("failed to advance to %s: %w", next, err)
		}
	}
	logger.Info("agent creation completed", "elapsed", o.now().Sub(started).String())
	return nil
}

func (o *Orchestrator) storeConfig(ctx context.Context, state *runState) error {
	rec := state.record
	if err := o.repo.Insert(ctx, rec.JobID, rec.Config); err != nil {
		return fmt.Errorf("store initial config: %w", err)
	}
	return nil
}

func (o *Orchestrator) createVectorIndex(ctx context.Context, state *runState) error {
	rec := state.record
	docs := make([]ingest.DocumentRef, 0, len(rec.Config.KnowledgeBase))
	for _, asset := range rec.Config.KnowledgeBase {
		docs = append(docs, ingest.DocumentRef{Name: asset.Name, Type: asset.Type, Locator: asset.URL})
	}

	result, err := o.ingester.Ingest(ctx, rec.JobID, rec.OwnerID, docs)
	if err != nil {
		return fmt.Errorf("create vector index: %w", err)
	}
	state.vector = result

	tally := jobs.IngestionTally{
		Namespace:     result.Namespace,
		DocumentCount: result.DocumentCount,
		Documents:     result.Documents,
		Status:        result.Status,
	}
	if err := o.store.RecordIngestion(ctx, rec.JobID, tally); err != nil {
		return fmt.Errorf("record ingestion result: %w", err)
	}
	return nil
}

func (o *Orchestrator) updateConfig(ctx context.Context, state *runState) error {
	rec := state.record
	derived := agent.Derived{
		DocumentURLs: rec.Config.DocumentURLs(),
		LogoURL:      rec.Config.LogoURL(),
	}
	if v := state.vector; v != nil {
		derived.Vector = agent.VectorConfig{
			Namespace:     v.Namespace,
			DocumentCount: v.DocumentCount,
			Documents:     v.Documents,
			Status:        v.Status,
		}
	}
	if err := o.repo.ApplyDerived(ctx, rec.JobID, derived); err != nil {
		return fmt.Errorf("update config: %w", err)
	}
	return nil
}

func (o *Orchestrator) deploy(ctx context.Context, state *runState) error {
	deployment, err := o.deployer.Deploy(ctx, state.record.JobID)
	if err != nil {
		return fmt.Errorf("deploy agent: %w", err)
	}
	state.deployment = deployment
	return nil
}

// finalize は保存済みの行を読み直してデプロイ結果を確認し、active にします。
func (o *Orchestrator) finalize(ctx context.Context, state *runState) error {
	rec := state.record
	row, err := o.repo.Get(ctx, rec.JobID)
	if err != nil {
		return fmt.Errorf("finalize agent: %w", err)
	}
	if row.Deployment == nil || row.Deployment.URL == "" {
		return fmt.Errorf("finalize agent: deployment for %s was not recorded", rec.JobID)
	}

	if o.index != nil && state.vector != nil && state.vector.Status == ingest.StatusActive {
		stats, err := o.index.DescribeStats(ctx, state.vector.Namespace)
		if err != nil {
			o.logger.Warn("vector stats unavailable", "job_id", rec.JobID, "error", err)
		} else {
			o.logger.Info("vector namespace ready", "job_id", rec.JobID, "namespace", stats.Namespace, "vectors", stats.VectorCount)
		}
	}

	if err := o.repo.SetStatus(ctx, rec.JobID, agent.StatusActive); err != nil {
		return fmt.Errorf("finalize agent: %w", err)
	}
	return nil
}

// fail は failed を書き込みます。書き込めなかった場合はログだけ残します。
func (o *Orchestrator) fail(ctx context.Context, jobID string, stage jobs.Stage, cause error) {
	o.logger.Error("stage failed", "job_id", jobID, "stage", stage, "error", cause)
	if err := o.store.UpdateStage(ctx, jobID, jobs.StageFailed, cause.Error()); err != nil && !errors.Is(err, jobs.ErrTerminalStage) {
		o.logger.Error("failed to record job failure", "job_id", jobID, "error", err)
	}
}
