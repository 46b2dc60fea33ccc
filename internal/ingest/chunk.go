package ingest

import (
	"fmt"
	"unicode/utf8"

	"github.com/tmc/langchaingo/textsplitter"

	"github.com/yourusername/launchpad/internal/vector"
)

// 既定の分割パラメータ
const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 100
	DefaultBatchSize    = 100
)

// Splitter はテキストをチャンクに分割します。
type Splitter interface {
	SplitText(text string) ([]string, error)
}

// NewSplitter は段落 → 行 → 文 → 単語 → 文字の順で区切る再帰分割器を返します。
func NewSplitter(size, overlap int) Splitter {
	return textsplitter.NewRecursiveCharacter(
		textsplitter.WithChunkSize(size),
		textsplitter.WithChunkOverlap(overlap),
		textsplitter.WithSeparators([]string{"\n\n", "\n", ". ", " ", ""}),
	)
}

// Chunk は分割済みテキストとそのメタデータです。
type Chunk struct {
	ID       string
	Text     string
	Metadata vector.Metadata
}

// buildChunks はチャンクにメタデータを付与します。
func buildChunks(doc DocumentRef, documentID string, pieces []string) []Chunk {
	chunks := make([]Chunk, 0, len(pieces))
	for i, text := range pieces {
		n := utf8.RuneCountInString(text)
		chunks = append(chunks, Chunk{
			ID:   fmt.Sprintf("%s#%d", documentID, i),
			Text: text,
			Metadata: vector.Metadata{
				Source:        doc.Name,
				FileType:      doc.Type,
				ChunkIndex:    i,
				CharCount:     n,
				TokenEstimate: EstimateTokens(n),
				DocumentID:    documentID,
				Text:          text,
			},
		})
	}
	return chunks
}

// EstimateTokens は文字数からトークン数を概算します（4文字で1トークン、切り上げ）。
func EstimateTokens(chars int) int {
	return (chars + 3) / 4
}
