package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/yourusername/launchpad/internal/agent"
	"github.com/yourusername/launchpad/internal/config"
	"github.com/yourusername/launchpad/internal/creation"
	"github.com/yourusername/launchpad/internal/embedding"
	"github.com/yourusername/launchpad/internal/ingest"
	"github.com/yourusername/launchpad/internal/jobs"
	"github.com/yourusername/launchpad/internal/logging"
	"github.com/yourusername/launchpad/internal/storage"
	"github.com/yourusername/launchpad/internal/upload"
	"github.com/yourusername/launchpad/internal/vector"
)

// application はサーバーが使う依存をまとめます。
type application struct {
	store        jobs.Store
	orchestrator *creation.Orchestrator
	dispatcher   dispatcher
	uploads      *upload.Handler
	localRoot    string

	closers []func() error

	stopOnce sync.Once
	stopErr  error
}

func newApplication(ctx context.Context, cfg *config.Config, logger *slog.Logger) (_ *application, err error) {
	app := &application{}
	defer func() {
		if err != nil {
			app.Close()
		}
	}()

	store, closeStore, err := setupJobStore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	app.store = store
	app.closers = append(app.closers, closeStore)

	blobs, err := setupStorage(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	if local, ok := blobs.(*storage.Local); ok {
		app.localRoot = local.Root()
	}

	repo, err := agent.OpenSQLite(cfg.DatabasePath)
	if err != nil {
		return nil, err
	}
	app.closers = append(app.closers, repo.Close)

	index, err := vector.OpenBadger(cfg.VectorDir, logger)
	if err != nil {
		return nil, err
	}
	app.closers = append(app.closers, index.Close)

	embedder, err := embedding.New(embedding.Config{
		Provider:  cfg.EmbedProvider,
		Model:     cfg.EmbedModel,
		Dimension: cfg.EmbedDimension,
		APIKey:    cfg.OpenAIAPIKey,
		Host:      cfg.OllamaHost,
	}, logger)
	if err != nil {
		return nil, err
	}

	ingester, err := ingest.New(blobs, embedder, index,
		ingest.WithProgress(store),
		ingest.WithSplitter(ingest.NewSplitter(cfg.ChunkSize, cfg.ChunkOverlap)),
		ingest.WithBatchSize(cfg.UpsertBatchSize),
		ingest.WithLogger(logger),
		ingest.WithJobLogs(logging.NewJobLogs(cfg.IngestLogDir, "vectordb", cfg.SlogLevel())),
	)
	if err != nil {
		return nil, err
	}

	publisher, err := agent.NewPublisher(repo, cfg.PublicBaseURL, logger)
	if err != nil {
		return nil, err
	}

	// ディスパッチャを先に作り、オーケストレーターを登録してからワーカーを起動する
	disp, startWorkers, err := setupDispatcher(cfg, store, logger)
	if err != nil {
		return nil, err
	}
	app.dispatcher = disp
	app.closers = append(app.closers, func() error {
		return app.shutdownDispatcher(context.Background())
	})

	orchestrator, err := creation.New(creation.Deps{
		Store:     store,
		Repo:      repo,
		Ingester:  ingester,
		Deployer:  publisher,
		Index:     index,
		Scheduler: disp,
		Logger:    logger,
	})
	if err != nil {
		return nil, err
	}
	disp.Register(orchestrator)
	startWorkers()
	app.orchestrator = orchestrator

	uploads, err := upload.NewHandler(blobs, cfg.MaxFileSize, logger)
	if err != nil {
		return nil, err
	}
	app.uploads = uploads
	return app, nil
}

func setupStorage(ctx context.Context, cfg *config.Config, logger *slog.Logger) (storage.Storage, error) {
	switch cfg.BlobBackend {
	case config.BlobS3:
		return storage.NewS3(ctx, cfg.S3Bucket, cfg.AWSRegion, logger)
	case config.BlobLocal:
		return storage.NewLocal(cfg.BlobDir, cfg.BlobBaseURL, logger)
	default:
		return nil, fmt.Errorf("unsupported blob backend: %s", cfg.BlobBackend)
	}
}

// Close は開いた資源を逆順に閉じます。
// shutdownDispatcher は実行中のジョブを待ってディスパッチャを止めます。2回目以降は何もしません。
func (a *application) shutdownDispatcher(ctx context.Context) error {
	a.stopOnce.Do(func() {
		a.stopErr = a.dispatcher.Shutdown(ctx)
	})
	return a.stopErr
}

func (a *application) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
