// Package config は環境変数から設定を読み込み、アプリケーション全体で使用する設定を提供します。
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// ディスパッチ方式
const (
	DispatchQueue = "queue" // Asynq + Redis
	DispatchPool  = "pool"  // プロセス内ワーカープール
)

// ジョブレコードの保存先
const (
	JobStoreRedis  = "redis"
	JobStoreMemory = "memory" // pool モード専用
)

// ストレージバックエンド
const (
	BlobLocal = "local"
	BlobS3    = "s3"
)

// 埋め込みプロバイダ
const (
	ProviderOpenAI = "openai"
	ProviderOllama = "ollama"
)

// Config はアプリケーションの設定を保持する構造体です。
type Config struct {
	// サーバー設定
	Port    string // APIサーバーのポート番号
	GinMode string // Ginの実行モード (debug, release, test)

	// CORS設定
	CORSAllowedOrigins string // CORS許可オリジン（カンマ区切り）

	// ファイル制限
	MaxFileSize      int64 // アップロード1件あたりの最大サイズ（バイト）
	JobExpireMinutes int   // ジョブレコードの保持期間（分）。0 は無期限

	// ジョブ/キュー設定
	QueueRedisURL     string // Asynq とジョブレコード用の Redis 接続URL
	DispatchMode      string // queue | pool
	JobStore          string // redis | memory
	WorkerConcurrency int    // 同時に実行するジョブ数

	// ストレージ設定
	BlobBackend string // local | s3
	BlobDir     string // ローカルストレージのルート
	BlobBaseURL string // ローカルストレージのURLプレフィックス
	S3Bucket    string
	AWSRegion   string

	// 埋め込み設定
	EmbedProvider  string // openai | ollama
	EmbedModel     string
	EmbedDimension int
	OpenAIAPIKey   string
	OllamaHost     string

	// ベクトルインデックス/DB
	VectorDir    string // badger のデータディレクトリ。空ならインメモリ
	DatabasePath string // sqlite ファイル

	// デプロイ
	PublicBaseURL string // 公開エージェントURLのベース

	// ログ
	LogLevel     string
	LogFormat    string // text | json
	LogFile      string
	IngestLogDir string // ジョブ単位の取り込みログ出力先（空なら出力しない）

	// 取り込み設定
	ChunkSize       int
	ChunkOverlap    int
	UpsertBatchSize int
}

// Load は環境変数から設定を読み込みます。
// .env.local ファイルが存在する場合はそこから読み込みます。
func Load() (*Config, error) {
	// .env.local ファイルを読み込む（存在しない場合はスキップ）
	loadEnvFile()

	config := &Config{
		// サーバー設定
		Port:    getEnv("PORT", "8080"),
		GinMode: getEnv("GIN_MODE", "debug"),

		// CORS設定
		CORSAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000"),

		// ファイル制限
		MaxFileSize:      getEnvAsInt64("MAX_FILE_SIZE", 10*1024*1024), // 10MB
		JobExpireMinutes: getEnvAsInt("JOB_EXPIRE_MINUTES", 0),

		// ジョブ/キュー設定
		QueueRedisURL:     getEnv("QUEUE_REDIS_URL", "redis://127.0.0.1:6379/0"),
		DispatchMode:      getEnv("DISPATCH_MODE", DispatchQueue),
		JobStore:          getEnv("JOB_STORE", JobStoreRedis),
		WorkerConcurrency: getEnvAsInt("WORKER_CONCURRENCY", 4),

		// ストレージ設定
		BlobBackend: getEnv("BLOB_BACKEND", BlobLocal),
		BlobDir:     getEnv("BLOB_DIR", "./data/blobs"),
		BlobBaseURL: getEnv("BLOB_BASE_URL", "/files"),
		S3Bucket:    getEnv("S3_BUCKET", ""),
		AWSRegion:   getEnv("AWS_REGION", "us-east-1"),

		// 埋め込み設定
		EmbedProvider:  getEnv("EMBED_PROVIDER", ProviderOpenAI),
		EmbedModel:     getEnv("EMBED_MODEL", "text-embedding-3-small"),
		EmbedDimension: getEnvAsInt("EMBED_DIMENSION", 1536),
		OpenAIAPIKey:   getEnv("OPENAI_API_KEY", ""),
		OllamaHost:     getEnv("OLLAMA_HOST", "http://localhost:11434"),

		VectorDir:    getEnv("VECTOR_DIR", "./data/vectors"),
		DatabasePath: getEnv("DATABASE_PATH", "./data/launchpad.db"),

		PublicBaseURL: getEnv("PUBLIC_BASE_URL", "http://localhost:3000"),

		LogLevel:     getEnv("LOG_LEVEL", "info"),
		LogFormat:    getEnv("LOG_FORMAT", "text"),
		LogFile:      getEnv("LOG_FILE", ""),
		IngestLogDir: getEnv("INGEST_LOG_DIR", ""),

		ChunkSize:       getEnvAsInt("CHUNK_SIZE", 1000),
		ChunkOverlap:    getEnvAsInt("CHUNK_OVERLAP", 100),
		UpsertBatchSize: getEnvAsInt("UPSERT_BATCH_SIZE", 100),
	}

	// 必須設定のバリデーション
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func loadEnvFile() {
	if err := godotenv.Load(".env.local"); err == nil {
		return
	}

	cwd, err := os.Getwd()
	if err != nil {
		return
	}

	parent := filepath.Dir(cwd)
	if parent == "" || parent == cwd {
		return
	}

	_ = godotenv.Load(filepath.Join(parent, ".env.local"))
}

// Validate は設定の妥当性を検証します。
func (c *Config) Validate() error {
	switch c.DispatchMode {
	case DispatchQueue, DispatchPool:
	default:
		return fmt.Errorf("DISPATCH_MODE must be %q or %q, got %q", DispatchQueue, DispatchPool, c.DispatchMode)
	}
	switch c.JobStore {
	case JobStoreRedis:
	case JobStoreMemory:
		if c.DispatchMode != DispatchPool {
			return fmt.Errorf("JOB_STORE=memory requires DISPATCH_MODE=%s", DispatchPool)
		}
	default:
		return fmt.Errorf("unsupported JOB_STORE: %s", c.JobStore)
	}
	switch c.BlobBackend {
	case BlobLocal:
	case BlobS3:
		if c.S3Bucket == "" {
			return fmt.Errorf("S3_BUCKET is required when BLOB_BACKEND=s3")
		}
	default:
		return fmt.Errorf("unsupported BLOB_BACKEND: %s", c.BlobBackend)
	}
	switch c.EmbedProvider {
	case ProviderOpenAI, ProviderOllama:
	default:
		return fmt.Errorf("unsupported EMBED_PROVIDER: %s", c.EmbedProvider)
	}
	if c.ChunkSize <= 0 {
		return fmt.Errorf("CHUNK_SIZE must be positive")
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("CHUNK_OVERLAP must be in [0, CHUNK_SIZE)")
	}
	if c.UpsertBatchSize <= 0 {
		return fmt.Errorf("UPSERT_BATCH_SIZE must be positive")
	}
	if c.WorkerConcurrency <= 0 {
		return fmt.Errorf("WORKER_CONCURRENCY must be positive")
	}

	// 本番環境では外部依存の設定を厳格にチェックする
	if c.GinMode == "release" {
		if c.QueueRedisURL == "" {
			return fmt.Errorf("QUEUE_REDIS_URL is required in release mode")
		}
		if c.EmbedProvider == ProviderOpenAI && c.OpenAIAPIKey == "" {
			return fmt.Errorf("OPENAI_API_KEY is required in release mode")
		}
		if c.DatabasePath == "" {
			return fmt.Errorf("DATABASE_PATH is required in release mode")
		}
	}

	return nil
}

// JobTTL はジョブレコードの保持期間を返します。0 は無期限です。
func (c *Config) JobTTL() time.Duration {
	if c.JobExpireMinutes <= 0 {
		return 0
	}
	return time.Duration(c.JobExpireMinutes) * time.Minute
}

// SlogLevel は LOG_LEVEL を slog.Level に変換します。
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// getEnv は環境変数を取得し、存在しない場合はデフォルト値を返します。
func getEnv(key string, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvAsInt は環境変数を整数として取得します。
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsInt64 は環境変数を64ビット整数として取得します。
func getEnvAsInt64(key string, defaultValue int64) int64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseInt(valueStr, 10, 64)
	if err != nil {
		return defaultValue
	}
	return value
}
