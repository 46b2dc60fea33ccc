package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	jobKeyPrefix = "agentjob:"
	// 楽観ロックの再試行上限
	maxTxRetries = 32
)

// Store はジョブレコードの保存先です。
// 1レコードへの書き込みはフィールド単位でアトミックに行われます。
type Store interface {
	Create(ctx context.Context, record *Record) error
	UpdateStage(ctx context.Context, jobID string, stage Stage, errMsg string) error
	UpdateProgress(ctx context.Context, jobID string, current, total int, message string) error
	RecordIngestion(ctx context.Context, jobID string, tally IngestionTally) error
	Get(ctx context.Context, jobID string) (*Record, error)
}

// RedisStore はジョブ状態を Redis に保存します。
type RedisStore struct {
	rdb *redis.Client
	ttl time.Duration
	now func() time.Time
}

// NewRedisStore は RedisStore を作成します。ttl が 0 の場合は期限を設定しません。
func NewRedisStore(rdb *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{
		rdb: rdb,
		ttl: ttl,
		now: time.Now,
	}
}

// Get はジョブ情報を取得します。
func (s *RedisStore) Get(ctx context.Context, jobID string) (*Record, error) {
	if jobID == "" {
		return nil, fmt.Errorf("jobID is required")
	}
	data, err := s.rdb.Get(ctx, jobKey(jobID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, jobID)
		}
		return nil, err
	}
	var record Record
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, err
	}
	return &record, nil
}

// Create はレコードを新規作成します。既に存在する場合はエラーになります。
func (s *RedisStore) Create(ctx context.Context, record *Record) error {
	if record == nil {
		return fmt.Errorf("record is nil")
	}
	if record.JobID == "" {
		return fmt.Errorf("record.JobID is required")
	}
	prepareCreate(record, s.now(), s.ttl)

	payload, err := json.Marshal(record)
	if err != nil {
		return err
	}
	ok, err := s.rdb.SetNX(ctx, jobKey(record.JobID), payload, s.ttl).Result()
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrAlreadyExists, record.JobID)
	}
	return nil
}

// UpdateStage はステージを進めます。failed の場合は errMsg を保存します。
func (s *RedisStore) UpdateStage(ctx context.Context, jobID string, stage Stage, errMsg string) error {
	return s.update(ctx, jobID, func(record *Record, now time.Time) error {
		return applyStage(record, stage, errMsg, now)
	})
}

// UpdateProgress は取り込みの進捗を更新します。
func (s *RedisStore) UpdateProgress(ctx context.Context, jobID string, current, total int, message string) error {
	return s.update(ctx, jobID, func(record *Record, now time.Time) error {
		return applyProgress(record, current, total, message, now)
	})
}

// RecordIngestion は取り込み結果の集計を保存します。
func (s *RedisStore) RecordIngestion(ctx context.Context, jobID string, tally IngestionTally) error {
	return s.update(ctx, jobID, func(record *Record, now time.Time) error {
		return applyTally(record, tally, now)
	})
}

// update は WATCH/MULTI による楽観ロックでレコードを書き換えます。
func (s *RedisStore) update(ctx context.Context, jobID string, mutate func(*Record, time.Time) error) error {
	key := jobKey(jobID)
	txf := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return fmt.Errorf("%w: %s", ErrNotFound, jobID)
			}
			return err
		}
		var record Record
		if err := json.Unmarshal(data, &record); err != nil {
			return err
		}
		if err := mutate(&record, s.now()); err != nil {
			return err
		}
		payload, err := json.Marshal(&record)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, payload, keepTTL(s.ttl))
			return nil
		})
		return err
	}

	for i := 0; i < maxTxRetries; i++ {
		err := s.rdb.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return fmt.Errorf("job %s: too many concurrent updates", jobID)
}

func keepTTL(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return 0
	}
	// 作成時に付けた期限を維持する
	return redis.KeepTTL
}

func jobKey(id string) string {
	return jobKeyPrefix + id
}

func prepareCreate(record *Record, now time.Time, ttl time.Duration) {
	now = now.UTC()
	if record.Stage == "" {
		record.Stage = StageStoringConfig
	}
	if record.StartedAt.IsZero() {
		record.StartedAt = now
	}
	record.UpdatedAt = now
	if ttl > 0 && record.ExpiresAt.IsZero() {
		record.ExpiresAt = record.StartedAt.Add(ttl)
	}
}

func applyStage(record *Record, stage Stage, errMsg string, now time.Time) error {
	if record.Stage.Terminal() {
		return fmt.Errorf("%w: %s is %s", ErrTerminalStage, record.JobID, record.Stage)
	}
	if !record.Stage.CanAdvanceTo(stage) {
		return fmt.Errorf("%w: %s -> %s", ErrStageRegression, record.Stage, stage)
	}
	record.Stage = stage
	record.Progress = nil
	if stage == StageFailed {
		record.Error = errMsg
	}
	touch(record, now)
	return nil
}

func applyProgress(record *Record, current, total int, message string, now time.Time) error {
	if record.Stage != StageCreatingVectorIndex {
		return fmt.Errorf("%w: %s is %s", ErrNoIngestion, record.JobID, record.Stage)
	}
	record.Progress = &Progress{Current: current, Total: total, Message: message}
	touch(record, now)
	return nil
}

func applyTally(record *Record, tally IngestionTally, now time.Time) error {
	if record.Stage != StageCreatingVectorIndex {
		return fmt.Errorf("%w: %s is %s", ErrNoIngestion, record.JobID, record.Stage)
	}
	if tally.Namespace != "" {
		record.VectorNamespace = tally.Namespace
	}
	record.DocumentCount = tally.DocumentCount
	record.ProcessedDocuments = append([]string(nil), tally.Documents...)
	record.VectorStatus = tally.Status
	touch(record, now)
	return nil
}

// touch は updatedAt を進めます。時計が戻っても後退させません。
func touch(record *Record, now time.Time) {
	now = now.UTC()
	if now.After(record.UpdatedAt) {
		record.UpdatedAt = now
	}
}
