package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// MemoryStore はプロセス内に保持する Store 実装です。
// 読み出しはコピーを返すため、呼び出し側の変更はストアに影響しません。
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string][]byte
	now     func() time.Time
}

// NewMemoryStore は MemoryStore を作成します。
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string][]byte),
		now:     time.Now,
	}
}

// Create はレコードを新規作成します。
func (s *MemoryStore) Create(ctx context.Context, record *Record) error {
	if record == nil {
		return fmt.Errorf("record is nil")
	}
	if record.JobID == "" {
		return fmt.Errorf("record.JobID is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[record.JobID]; ok {
		return fmt.Errorf("%w: %s", ErrAlreadyExists, record.JobID)
	}
	prepareCreate(record, s.now(), 0)
	data, err := json.Marshal(record)
	if err != nil {
		return err
	}
	s.records[record.JobID] = data
	return nil
}

// UpdateStage はステージを進めます。
func (s *MemoryStore) UpdateStage(ctx context.Context, jobID string, stage Stage, errMsg string) error {
	return s.update(jobID, func(record *Record, now time.Time) error {
		return applyStage(record, stage, errMsg, now)
	})
}

// UpdateProgress は取り込みの進捗を更新します。
func (s *MemoryStore) UpdateProgress(ctx context.Context, jobID string, current, total int, message string) error {
	return s.update(jobID, func(record *Record, now time.Time) error {
		return applyProgress(record, current, total, message, now)
	})
}

// RecordIngestion は取り込み結果の集計を保存します。
func (s *MemoryStore) RecordIngestion(ctx context.Context, jobID string, tally IngestionTally) error {
	return s.update(jobID, func(record *Record, now time.Time) error {
		return applyTally(record, tally, now)
	})
}

// Get はジョブ情報を取得します。
func (s *MemoryStore) Get(ctx context.Context, jobID string) (*Record, error) {
	s.mu.RLock()
	data, ok := s.records[jobID]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, jobID)
	}
	var record Record
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, err
	}
	return &record, nil
}

func (s *MemoryStore) update(jobID string, mutate func(*Record, time.Time) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, ok := s.records[jobID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, jobID)
	}
	var record Record
	if err := json.Unmarshal(data, &record); err != nil {
		return err
	}
	if err := mutate(&record, s.now()); err != nil {
		return err
	}
	data, err := json.Marshal(&record)
	if err != nil {
		return err
	}
	s.records[jobID] = data
	return nil
}
