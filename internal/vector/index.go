// Package vector はジョブ単位の名前空間を持つベクトルインデックスを提供します。
package vector

import (
	"context"
	"errors"
)

// ErrInvalidNamespace は名前空間が空の場合のエラーです。
var ErrInvalidNamespace = errors.New("vector: namespace is required")

// Metadata はチャンクに付与するメタデータです。
type Metadata struct {
	Source        string `json:"source"`
	FileType      string `json:"fileType"`
	ChunkIndex    int    `json:"chunkIndex"`
	CharCount     int    `json:"charCount"`
	TokenEstimate int    `json:"tokens"`
	DocumentID    string `json:"documentId"`
	Text          string `json:"text"`
}

// Vector はインデックスに格納する1件のレコードです。
type Vector struct {
	ID       string    `json:"id"`
	Values   []float32 `json:"values"`
	Metadata Metadata  `json:"metadata"`
}

// Stats は名前空間の統計情報です。
type Stats struct {
	Namespace   string `json:"namespace"`
	VectorCount int    `json:"vectorCount"`
	Dimension   int    `json:"dimension"`
}

// Index はベクトルの書き込みと統計取得を提供します。
type Index interface {
	Upsert(ctx context.Context, namespace string, vectors []Vector) error
	DescribeStats(ctx context.Context, namespace string) (*Stats, error)
}

// Namespace はジョブ単位の名前空間を ownerID と jobID から導出します。
func Namespace(ownerID, jobID string) string {
	return ownerID + "-" + jobID
}
