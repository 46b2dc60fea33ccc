// Package ingest はナレッジ文書を取得・分割・埋め込みし、ベクトルインデックスへ登録します。
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/yourusername/launchpad/internal/embedding"
	"github.com/yourusername/launchpad/internal/logging"
	"github.com/yourusername/launchpad/internal/storage"
	"github.com/yourusername/launchpad/internal/vector"
)

// 取り込み結果のステータス
const (
	StatusActive          = "active"
	StatusNoKnowledgeBase = "no_knowledge_base"
)

// ErrEmptyDocument は文書からテキストが1文字も取り出せなかった場合のエラーです。
var ErrEmptyDocument = errors.New("ingest: document has no extractable text")

// DocumentRef は取り込み対象の文書です。
type DocumentRef struct {
	Name    string
	Type    string
	Locator string
}

// VectorConfig は取り込み結果の集計です。
type VectorConfig struct {
	Namespace     string
	DocumentCount int
	Documents     []string
	Status        string
}

// ProgressReporter は文書ごとの進捗を受け取ります。
type ProgressReporter interface {
	UpdateProgress(ctx context.Context, jobID string, current, total int, message string) error
}

// Outcome は1文書の処理結果です。Err が nil なら成功、そうでなければスキップです。
type Outcome struct {
	Name   string
	Chunks int
	Err    error
}

// OK は文書が最後まで処理されたかを返します。
func (o Outcome) OK() bool {
	return o.Err == nil
}

// Tally は成功した文書の件数と名前を宣言順で返します。
func Tally(outcomes []Outcome) (int, []string) {
	names := make([]string, 0, len(outcomes))
	for _, o := range outcomes {
		if o.OK() {
			names = append(names, o.Name)
		}
	}
	return len(names), names
}

// Ingester は文書を順番に処理します。
type Ingester struct {
	blobs     storage.Storage
	embedder  embedding.Embedder
	index     vector.Index
	progress  ProgressReporter
	splitter  Splitter
	batchSize int
	logger    *slog.Logger
	jobLogs   *logging.JobLogs
	newID     func() string
}

// Option は Ingester の設定を変更します。
type Option func(*Ingester)

// WithProgress は進捗の通知先を設定します。
func WithProgress(p ProgressReporter) Option {
	return func(in *Ingester) {
		in.progress = p
	}
}

// WithSplitter は分割器を差し替えます。
func WithSplitter(s Splitter) Option {
	return func(in *Ingester) {
		if s != nil {
			in.splitter = s
		}
	}
}

// WithBatchSize は1回の upsert で送るベクトル数を設定します。
func WithBatchSize(n int) Option {
	return func(in *Ingester) {
		if n > 0 {
			in.batchSize = n
		}
	}
}

// WithLogger はロガーを設定します。
func WithLogger(logger *slog.Logger) Option {
	return func(in *Ingester) {
		if logger != nil {
			in.logger = logger
		}
	}
}

// WithJobLogs はジョブ単位のログファイル出力を有効にします。
func WithJobLogs(logs *logging.JobLogs) Option {
	return func(in *Ingester) {
		in.jobLogs = logs
	}
}

// New は Ingester を作成します。
func New(blobs storage.Storage, embedder embedding.Embedder, index vector.Index, opts ...Option) (*Ingester, error) {
	if blobs == nil {
		return nil, errors.New("storage is nil")
	}
	if embedder == nil {
		return nil, errors.New("embedder is nil")
	}
	if index == nil {
		return nil, errors.New("vector index is nil")
	}
	in := &Ingester{
		blobs:     blobs,
		embedder:  embedder,
		index:     index,
		splitter:  NewSplitter(DefaultChunkSize, DefaultChunkOverlap),
		batchSize: DefaultBatchSize,
		logger:    slog.Default(),
		newID:     uuid.NewString,
	}
	for _, opt := range opts {
		opt(in)
	}
	in.logger = in.logger.With("component", "ingest")
	return in, nil
}

// Ingest は文書を宣言順に1件ずつ処理します。
// 個々の文書の失敗はスキップとして記録し、残りの文書の処理を続けます。
// コンテキストの終了は文書単位の失敗ではなく全体の失敗として返します。
func (in *Ingester) Ingest(ctx context.Context, jobID, ownerID string, docs []DocumentRef) (*VectorConfig, error) {
	namespace := vector.Namespace(ownerID, jobID)
	if len(docs) == 0 {
		in.logger.Info("no knowledge base documents", "job_id", jobID)
		return &VectorConfig{
			Namespace: namespace,
			Documents: []string{},
			Status:    StatusNoKnowledgeBase,
		}, nil
	}

	logger, logPath, closeLog, err := in.jobLogs.Open(in.logger, jobID)
	if err != nil {
		in.logger.Warn("job log unavailable", "job_id", jobID, "error", err)
	}
	defer closeLog()
	logger.Info("vector index creation started", "namespace", namespace, "documents", len(docs), "log_file", logPath)

	outcomes := make([]Outcome, 0, len(docs))
	for i, doc := range docs {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("ingestion aborted before %s: %w", doc.Name, err)
		}
		in.reportProgress(ctx, logger, jobID, i+1, len(docs), fmt.Sprintf("Processing %s (%d/%d)", doc.Name, i+1, len(docs)))

		chunks, err := in.ingestDocument(ctx, logger, namespace, doc)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, fmt.Errorf("ingestion aborted during %s: %w", doc.Name, ctxErr)
			}
			logger.Warn("document skipped", "name", doc.Name, "error", err)
		} else {
			logger.Info("document ingested", "name", doc.Name, "chunks", chunks)
		}
		outcomes = append(outcomes, Outcome{Name: doc.Name, Chunks: chunks, Err: err})
	}

	count, names := Tally(outcomes)
	logger.Info("vector index creation finished", "processed", count, "skipped", len(docs)-count)
	return &VectorConfig{
		Namespace:     namespace,
		DocumentCount: count,
		Documents:     names,
		Status:        StatusActive,
	}, nil
}

func (in *Ingester) ingestDocument(ctx context.Context, logger *slog.Logger, namespace string, doc DocumentRef) (int, error) {
	data, err := in.blobs.Fetch(ctx, doc.Locator)
	if err != nil {
		return 0, fmt.Errorf("fetch: %w", err)
	}

	kind := KindOf(doc.Name, doc.Locator, data)
	text, err := Parse(ctx, kind, data)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", kind, err)
	}
	if strings.TrimSpace(text) == "" {
		return 0, ErrEmptyDocument
	}

	pieces, err := in.splitter.SplitText(text)
	if err != nil {
		return 0, fmt.Errorf("split: %w", err)
	}
	chunks := buildChunks(doc, in.newID(), pieces)
	if len(chunks) == 0 {
		return 0, ErrEmptyDocument
	}
	logger.Debug("document split", "name", doc.Name, "kind", kind.String(), "chars", len(text), "chunks", len(chunks))

	vectors := make([]vector.Vector, 0, len(chunks))
	for _, c := range chunks {
		values, err := in.embedder.Embed(ctx, c.Text)
		if err != nil {
			return 0, fmt.Errorf("embed chunk %d: %w", c.Metadata.ChunkIndex, err)
		}
		vectors = append(vectors, vector.Vector{ID: c.ID, Values: values, Metadata: c.Metadata})
	}

	if err := in.upsertBatches(ctx, namespace, vectors); err != nil {
		return 0, err
	}
	return len(chunks), nil
}

// upsertBatches は batchSize 件ずつ順番に upsert します。
func (in *Ingester) upsertBatches(ctx context.Context, namespace string, vectors []vector.Vector) error {
	for start := 0; start < len(vectors); start += in.batchSize {
		end := min(start+in.batchSize, len(vectors))
		if err := in.index.Upsert(ctx, namespace, vectors[start:end]); err != nil {
			return fmt.Errorf("upsert vectors %d-%d: %w", start, end, err)
		}
	}
	return nil
}

func (in *Ingester) reportProgress(ctx context.Context, logger *slog.Logger, jobID string, current, total int, message string) {
	logger.Info(message)
	if in.progress == nil {
		return
	}
	if err := in.progress.UpdateProgress(ctx, jobID, current, total, message); err != nil {
		logger.Warn("failed to update progress", "current", current, "total", total, "error", err)
	}
}
