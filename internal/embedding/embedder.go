// Package embedding はテキストの埋め込みベクトル生成を提供します。
package embedding

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
)

// ErrDimensionMismatch は返却されたベクトルの次元が設定と異なる場合のエラーです。
var ErrDimensionMismatch = errors.New("embedding: dimension mismatch")

// Embedder は1件のテキストを1本のベクトルに変換します。
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Config は埋め込みクライアントの設定です。
type Config struct {
	Provider  string // openai | ollama
	Model     string
	Dimension int
	APIKey    string
	Host      string
}

// Client は langchaingo の埋め込みモデルをラップします。
type Client struct {
	model     embeddings.Embedder
	dimension int
	modelName string
	logger    *slog.Logger
}

// New は設定に応じた埋め込みクライアントを作成します。
func New(cfg Config, logger *slog.Logger) (*Client, error) {
	var (
		model embeddings.Embedder
		err   error
	)

	switch cfg.Provider {
	case "ollama":
		llm, ollamaErr := ollama.New(
			ollama.WithModel(cfg.Model),
			ollama.WithServerURL(cfg.Host),
		)
		if ollamaErr != nil {
			return nil, fmt.Errorf("create ollama client: %w", ollamaErr)
		}
		model, err = embeddings.NewEmbedder(llm)
		if err != nil {
			return nil, fmt.Errorf("create ollama embedder: %w", err)
		}

	case "openai":
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("OpenAI API key required")
		}
		llm, openaiErr := openai.New(
			openai.WithToken(cfg.APIKey),
			openai.WithEmbeddingModel(cfg.Model),
		)
		if openaiErr != nil {
			return nil, fmt.Errorf("create openai client: %w", openaiErr)
		}
		model, err = embeddings.NewEmbedder(llm, embeddings.WithStripNewLines(true))
		if err != nil {
			return nil, fmt.Errorf("create openai embedder: %w", err)
		}

	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", cfg.Provider)
	}

	return newClient(model, cfg.Dimension, cfg.Model, logger), nil
}

func newClient(model embeddings.Embedder, dimension int, modelName string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		model:     model,
		dimension: dimension,
		modelName: modelName,
		logger:    logger.With("component", "embedder"),
	}
}

// Embed はテキストの埋め込みベクトルを返します。
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	start := time.Now()
	vectors, err := c.model.EmbedDocuments(ctx, []string{text})
	duration := time.Since(start)
	if err != nil {
		c.logger.Warn("embedding failed", "model", c.modelName, "text_len", len(text), "duration_ms", duration.Milliseconds(), "error", err)
		return nil, fmt.Errorf("embed: %w", err)
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("no embedding returned")
	}

	vec := vectors[0]
	if c.dimension > 0 && len(vec) != c.dimension {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(vec), c.dimension)
	}
	c.logger.Debug("embedding done", "model", c.modelName, "text_len", len(text), "duration_ms", duration.Milliseconds())
	return vec, nil
}

// Dimension は設定された次元数を返します。
func (c *Client) Dimension() int {
	return c.dimension
}
