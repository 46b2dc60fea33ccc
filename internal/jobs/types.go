package jobs

import (
	"time"

	"github.com/yourusername/launchpad/internal/agent"
	"github.com/yourusername/launchpad/internal/vector"
)

// Stage はエージェント作成ジョブの進行段階を表します。
type Stage string

const (
	StageStoringConfig       Stage = "storing_initial_config"
	StageCreatingVectorIndex Stage = "creating_vectordb"
	StageUpdatingConfig      Stage = "updating_config"
	StageDeployingAgent      Stage = "deploying_agent"
	StageFinalizingAgent     Stage = "finalizing_agent"
	StageCompleted           Stage = "completed"
	StageFailed              Stage = "failed"
)

var stageOrder = map[Stage]int{
	StageStoringConfig:       0,
	StageCreatingVectorIndex: 1,
	StageUpdatingConfig:      2,
	StageDeployingAgent:      3,
	StageFinalizingAgent:     4,
	StageCompleted:           5,
}

// Valid は既知のステージかどうかを返します。
func (s Stage) Valid() bool {
	_, ok := stageOrder[s]
	return ok || s == StageFailed
}

// Terminal は completed / failed のいずれかであれば true を返します。
func (s Stage) Terminal() bool {
	return s == StageCompleted || s == StageFailed
}

// CanAdvanceTo は s から next への遷移が許されるかを返します。
// 非終端ステージからは直後のステージか failed にのみ進めます。
func (s Stage) CanAdvanceTo(next Stage) bool {
	if s.Terminal() || !next.Valid() {
		return false
	}
	if next == StageFailed {
		return true
	}
	return stageOrder[next] == stageOrder[s]+1
}

// Next は順序上の次のステージを返します。終端ステージでは空文字を返します。
func (s Stage) Next() Stage {
	if s.Terminal() {
		return ""
	}
	for st, order := range stageOrder {
		if order == stageOrder[s]+1 {
			return st
		}
	}
	return ""
}

// Progress は取り込み中の進捗です。
type Progress struct {
	Current int    `json:"current"`
	Total   int    `json:"total"`
	Message string `json:"message,omitempty"`
}

// IngestionTally は取り込み完了時に記録する集計です。
type IngestionTally struct {
	Namespace     string
	DocumentCount int
	Documents     []string
	Status        string
}

// Record はジョブの現在状態を表します。
type Record struct {
	JobID              string       `json:"jobId"`
	OwnerID            string       `json:"ownerId"`
	Config             agent.Config `json:"config"`
	Stage              Stage        `json:"stage"`
	Error              string       `json:"error,omitempty"`
	Progress           *Progress    `json:"progress,omitempty"`
	VectorNamespace    string       `json:"vectorNamespace"`
	VectorStatus       string       `json:"vectorStatus,omitempty"`
	DocumentCount      int          `json:"documentCount"`
	ProcessedDocuments []string     `json:"processedDocuments,omitempty"`
	StartedAt          time.Time    `json:"startedAt"`
	UpdatedAt          time.Time    `json:"updatedAt"`
	ExpiresAt          time.Time    `json:"expiresAt,omitzero"`
}

// Status はポーリングで返す外部向けのビューです。
type Status struct {
	JobID     string    `json:"jobId,omitempty"`
	Stage     Stage     `json:"stage"`
	UpdatedAt time.Time `json:"updatedAt,omitzero"`
	Error     string    `json:"error,omitempty"`
	Current   int       `json:"current,omitempty"`
	Total     int       `json:"total,omitempty"`
	Message   string    `json:"message,omitempty"`
}

// Status はレコードから外部向けビューを作成します。
func (r *Record) Status() Status {
	st := Status{
		JobID:     r.JobID,
		Stage:     r.Stage,
		UpdatedAt: r.UpdatedAt,
	}
	if r.Stage == StageFailed {
		st.Error = r.Error
	}
	if r.Progress != nil {
		st.Current = r.Progress.Current
		st.Total = r.Progress.Total
		st.Message = r.Progress.Message
	}
	return st
}

// NewRecord は storing_initial_config で始まるレコードを作成します。
func NewRecord(jobID string, cfg agent.Config, now time.Time) *Record {
	return &Record{
		JobID:           jobID,
		OwnerID:         cfg.OwnerID,
		Config:          cfg,
		Stage:           StageStoringConfig,
		VectorNamespace: vector.Namespace(cfg.OwnerID, jobID),
		StartedAt:       now.UTC(),
		UpdatedAt:       now.UTC(),
	}
}
