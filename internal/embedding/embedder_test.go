package embedding

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubModel は embeddings.Embedder を満たすテスト用の実装です。
type stubModel struct {
	vectors [][]float32
	err     error
	calls   int
}

func (s *stubModel) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	s.calls++
	return s.vectors, s.err
}

func (s *stubModel) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if len(s.vectors) == 0 {
		return nil, s.err
	}
	return s.vectors[0], s.err
}

func TestClientEmbed(t *testing.T) {
	model := &stubModel{vectors: [][]float32{{0.1, 0.2, 0.3}}}
	client := newClient(model, 3, "test-model", nil)

	vec, err := client.Embed(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, vec)
	assert.Equal(t, 1, model.calls)
}

func TestClientEmbedDimensionMismatch(t *testing.T) {
	client := newClient(&stubModel{vectors: [][]float32{{0.1}}}, 3, "test-model", nil)

	_, err := client.Embed(context.Background(), "hello")
	assert.True(t, errors.Is(err, ErrDimensionMismatch))
}

func TestClientEmbedErrors(t *testing.T) {
	client := newClient(&stubModel{err: errors.New("rate limited")}, 3, "test-model", nil)
	_, err := client.Embed(context.Background(), "hello")
	assert.ErrorContains(t, err, "rate limited")

	client = newClient(&stubModel{}, 3, "test-model", nil)
	_, err = client.Embed(context.Background(), "hello")
	assert.Error(t, err)
}

func TestNewRejectsUnknownProvider(t *testing.T) {
	_, err := New(Config{Provider: "bedrock"}, nil)
	assert.Error(t, err)

	_, err = New(Config{Provider: "openai", Model: "text-embedding-3-small"}, nil)
	assert.ErrorContains(t, err, "API key")
}
