// Package poller はエージェント作成ジョブの進捗を一定間隔で取得します。
package poller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/yourusername/launchpad/internal/jobs"
)

// DefaultInterval はポーリング間隔の既定値です。
const DefaultInterval = 2 * time.Second

// Source はジョブの現在状態を返します。
// 存在しないジョブには jobs.ErrNotFound を返します。
type Source interface {
	Status(ctx context.Context, jobID string) (*jobs.Status, error)
}

// StoreSource はジョブストアを直接読む Source です。
type StoreSource struct {
	Store interface {
		Get(ctx context.Context, jobID string) (*jobs.Record, error)
	}
}

// Status はレコードを外部向けビューに変換して返します。
func (s StoreSource) Status(ctx context.Context, jobID string) (*jobs.Status, error) {
	rec, err := s.Store.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	st := rec.Status()
	return &st, nil
}

// Poller は Source を繰り返し読み、変化があった時だけ通知します。
type Poller struct {
	source   Source
	interval time.Duration
	logger   *slog.Logger
}

// New は Poller を作成します。interval が0以下なら DefaultInterval を使います。
func New(source Source, interval time.Duration, logger *slog.Logger) (*Poller, error) {
	if source == nil {
		return nil, errors.New("status source is nil")
	}
	if interval <= 0 {
		interval = DefaultInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Poller{
		source:   source,
		interval: interval,
		logger:   logger.With("component", "poller"),
	}, nil
}

// Watch は最初に即座に読み、その後は一定間隔で読み続けます。
// completed か failed に達するか、ctx が終了すると戻ります。
// 見つからないジョブは storing_initial_config として扱い、読み続けます。
// 取得エラーはログに残してポーリングを続けます。
func (p *Poller) Watch(ctx context.Context, jobID string, onUpdate func(jobs.Status)) (*jobs.Status, error) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	var last *jobs.Status
	for {
		st, err := p.poll(ctx, jobID)
		switch {
		case err != nil && ctx.Err() != nil:
			return last, ctx.Err()
		case err != nil:
			p.logger.Warn("status poll failed", "job_id", jobID, "error", err)
		default:
			if last == nil || changed(*last, *st) {
				if onUpdate != nil {
					onUpdate(*st)
				}
			}
			last = st
			if st.Stage.Terminal() {
				return st, nil
			}
		}

		select {
		case <-ctx.Done():
			return last, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (p *Poller) poll(ctx context.Context, jobID string) (*jobs.Status, error) {
	st, err := p.source.Status(ctx, jobID)
	if err != nil {
		if errors.Is(err, jobs.ErrNotFound) {
			return &jobs.Status{JobID: jobID, Stage: jobs.StageStoringConfig}, nil
		}
		return nil, fmt.Errorf("fetch status for %s: %w", jobID, err)
	}
	if st.JobID == "" {
		st.JobID = jobID
	}
	return st, nil
}

// changed は表示に関わる項目が変わったかを返します。
func changed(prev, next jobs.Status) bool {
	return prev.Stage != next.Stage ||
		!prev.UpdatedAt.Equal(next.UpdatedAt) ||
		prev.Error != next.Error ||
		prev.Current != next.Current ||
		prev.Total != next.Total ||
		prev.Message != next.Message
}
