package agent

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaSQL string

// Repository はエージェント行の永続化を担います。
type Repository interface {
	Insert(ctx context.Context, id string, cfg Config) error
	ApplyDerived(ctx context.Context, id string, derived Derived) error
	SetDeployment(ctx context.Context, id string, deployment Deployment) error
	SetStatus(ctx context.Context, id string, status Status) error
	Get(ctx context.Context, id string) (*Record, error)
}

// SQLiteRepository は sqlite に保存する Repository 実装です。
type SQLiteRepository struct {
	db  *sql.DB
	now func() time.Time
}

// OpenSQLite はデータベースを開いてスキーマを適用します。
// path に ":memory:" を渡すとインメモリ DB になります。
func OpenSQLite(path string) (*SQLiteRepository, error) {
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("failed to create database dir: %w", err)
			}
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// sqlite は単一ライターのため接続を1本に絞る
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}
	return &SQLiteRepository{db: db, now: time.Now}, nil
}

// Close はデータベースを閉じます。
func (r *SQLiteRepository) Close() error {
	return r.db.Close()
}

// Insert は初期設定を保存します。
func (r *SQLiteRepository) Insert(ctx context.Context, id string, cfg Config) error {
	knowledge, err := json.Marshal(cfg.KnowledgeBase)
	if err != nil {
		return err
	}
	quick, err := json.Marshal(cfg.QuickMessages)
	if err != nil {
		return err
	}
	var icon sql.NullString
	if cfg.Icon != nil {
		data, err := json.Marshal(cfg.Icon)
		if err != nil {
			return err
		}
		icon = sql.NullString{String: string(data), Valid: true}
	}
	urls, err := json.Marshal(cfg.DocumentURLs())
	if err != nil {
		return err
	}

	now := r.timestamp()
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO agents (
			agent_id, user_id, agent_name, description, primary_model, fallback_model,
			system_prompt, knowledge_base, agent_icon, user_message_color, agent_message_color,
			opening_message, quick_messages, is_paid, is_public, status, document_urls,
			logo_url, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, cfg.OwnerID, cfg.Name, cfg.Description, string(cfg.PrimaryModel), string(cfg.FallbackModel),
		cfg.SystemPrompt, string(knowledge), icon, cfg.UserMessageColor, cfg.AgentMessageColor,
		cfg.OpeningMessage, string(quick), cfg.IsPaid, cfg.IsPublic, string(StatusStoring), string(urls),
		cfg.LogoURL(), now, now,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return fmt.Errorf("%w: %s", ErrAlreadyExists, id)
		}
		return fmt.Errorf("failed to insert agent: %w", err)
	}
	return nil
}

// ApplyDerived はドキュメントURL・ロゴURL・ベクトル設定を書き込みます。
func (r *SQLiteRepository) ApplyDerived(ctx context.Context, id string, derived Derived) error {
	urls := derived.DocumentURLs
	if urls == nil {
		urls = []string{}
	}
	urlsJSON, err := json.Marshal(urls)
	if err != nil {
		return err
	}
	vectorJSON, err := json.Marshal(derived.Vector)
	if err != nil {
		return err
	}
	return r.exec(ctx, id, `
		UPDATE agents
		SET document_urls = ?, logo_url = ?, vector_config = ?, status = ?, updated_at = ?
		WHERE agent_id = ?`,
		string(urlsJSON), derived.LogoURL, string(vectorJSON), string(StatusConfigured), r.timestamp(), id,
	)
}

// SetDeployment はデプロイ結果を保存します。
func (r *SQLiteRepository) SetDeployment(ctx context.Context, id string, deployment Deployment) error {
	return r.exec(ctx, id, `
		UPDATE agents
		SET deployment_id = ?, deployment_url = ?, status = ?, updated_at = ?
		WHERE agent_id = ?`,
		deployment.ID, deployment.URL, string(StatusDeployed), r.timestamp(), id,
	)
}

// SetStatus は行のステータスのみを更新します。
func (r *SQLiteRepository) SetStatus(ctx context.Context, id string, status Status) error {
	return r.exec(ctx, id, `UPDATE agents SET status = ?, updated_at = ? WHERE agent_id = ?`,
		string(status), r.timestamp(), id,
	)
}

// Get はエージェント行を取得します。
func (r *SQLiteRepository) Get(ctx context.Context, id string) (*Record, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT agent_id, user_id, agent_name, description, primary_model, fallback_model,
			system_prompt, knowledge_base, agent_icon, user_message_color, agent_message_color,
			opening_message, quick_messages, is_paid, is_public, status, document_urls, logo_url,
			vector_config, deployment_id, deployment_url, created_at, updated_at
		FROM agents WHERE agent_id = ?`, id)

	var (
		rec                         Record
		primary, fallback, status   string
		knowledge, quick, urls      string
		icon, vector                sql.NullString
		deploymentID, deploymentURL sql.NullString
		createdAt, updatedAt        string
	)
	err := row.Scan(
		&rec.ID, &rec.Config.OwnerID, &rec.Config.Name, &rec.Config.Description, &primary, &fallback,
		&rec.Config.SystemPrompt, &knowledge, &icon, &rec.Config.UserMessageColor, &rec.Config.AgentMessageColor,
		&rec.Config.OpeningMessage, &quick, &rec.Config.IsPaid, &rec.Config.IsPublic, &status, &urls, &rec.LogoURL,
		&vector, &deploymentID, &deploymentURL, &createdAt, &updatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to load agent: %w", err)
	}

	rec.Config.PrimaryModel = Model(primary)
	rec.Config.FallbackModel = Model(fallback)
	rec.Status = Status(status)
	if err := json.Unmarshal([]byte(knowledge), &rec.Config.KnowledgeBase); err != nil {
		return nil, fmt.Errorf("decode knowledge_base: %w", err)
	}
	if err := json.Unmarshal([]byte(quick), &rec.Config.QuickMessages); err != nil {
		return nil, fmt.Errorf("decode quick_messages: %w", err)
	}
	if err := json.Unmarshal([]byte(urls), &rec.DocumentURLs); err != nil {
		return nil, fmt.Errorf("decode document_urls: %w", err)
	}
	if icon.Valid {
		rec.Config.Icon = &Asset{}
		if err := json.Unmarshal([]byte(icon.String), rec.Config.Icon); err != nil {
			return nil, fmt.Errorf("decode agent_icon: %w", err)
		}
	}
	if vector.Valid {
		rec.Vector = &VectorConfig{}
		if err := json.Unmarshal([]byte(vector.String), rec.Vector); err != nil {
			return nil, fmt.Errorf("decode vector_config: %w", err)
		}
	}
	if deploymentID.Valid {
		rec.Deployment = &Deployment{ID: deploymentID.String, URL: deploymentURL.String}
	}
	rec.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	rec.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
	return &rec, nil
}

func (r *SQLiteRepository) exec(ctx context.Context, id, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update agent %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

func (r *SQLiteRepository) timestamp() string {
	return r.now().UTC().Format(time.RFC3339Nano)
}
