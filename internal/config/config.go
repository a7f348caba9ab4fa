// Package config は環境変数から設定を読み込み、アプリケーション全体で使用する設定を提供します。
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// バックエンド種別
const (
	StoreMemory   = "memory"
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
	StoreRedis    = "redis"

	QueueLocal = "local"
	QueueAsynq = "asynq"

	StorageLocal = "local"
	StorageGCS   = "gcs"

	RasterizerFitz        = "fitz"
	RasterizerGhostscript = "ghostscript"
)

// Config はアプリケーションの設定を保持する構造体です。
type Config struct {
	// 認証設定（未設定なら認証なしで公開）
	AppUsername     string // ログイン用ユーザー名
	AppPasswordHash string // bcryptでハッシュ化されたパスワード
	SessionSecret   string // セッション署名用の秘密鍵

	// サーバー設定
	Port            string        // APIサーバーのポート番号
	GinMode         string        // Ginの実行モード (debug, release, test)
	ShutdownTimeout time.Duration // グレースフルシャットダウンの猶予

	// CORS設定
	CORSAllowedOrigins string // CORS許可オリジン（カンマ区切り）

	// ログ設定
	LogLevel  string // debug, info, warn, error
	LogFormat string // console または json

	// ファイル制限
	MaxFileSize int64 // アップロード1件の最大サイズ（バイト）
	MaxPages    int   // 変換できる最大ページ数

	// レコードストア設定
	StoreBackend     string        // memory, sqlite, postgres, redis
	SQLitePath       string        // SQLiteファイルのパス
	DatabaseURL      string        // PostgreSQL接続URL
	DBMaxConns       int32         // pgxpool の最大接続数
	DBMinConns       int32         // pgxpool の最小接続数
	DBDialTimeout    time.Duration // 接続タイムアウト
	StatementTimeout time.Duration // PostgreSQL statement_timeout（0なら無効）
	RedisURL         string        // レコード保存用Redis接続URL

	// ジョブ/キュー設定
	QueueBackend      string        // local または asynq
	QueueRedisURL     string        // Asynq用Redis接続URL
	WorkerConcurrency int           // Asynqワーカー数
	JobTimeout        time.Duration // 1件の変換にかけられる時間（0なら無制限）

	// 画像保存設定
	StorageBackend       string // local または gcs
	ResultsDir           string // ローカル保存先ディレクトリ
	GCSBucket            string // Google Cloud Storageバケット名
	GCSPrefix            string // GCSオブジェクト名のプレフィックス
	PageWriteConcurrency int    // ページ画像の並列書き込み数

	// ラスタライズ設定
	Rasterizer           string        // fitz または ghostscript
	GhostscriptPath      string        // Ghostscript実行ファイルのパス
	RenderDPI            int           // ページ画像の解像度
	SimulateProcessDelay time.Duration // デモ用の変換遅延
}

// Load は環境変数から設定を読み込みます。
// .env.local ファイルが存在する場合はそこから読み込みます。
func Load() (*Config, error) {
	loadEnvFile()

	config := &Config{
		AppUsername:     getEnv("APP_USERNAME", ""),
		AppPasswordHash: getEnv("APP_PASSWORD_HASH", ""),
		SessionSecret:   getEnv("SESSION_SECRET", ""),

		Port:            getEnv("PORT", "8080"),
		GinMode:         getEnv("GIN_MODE", "debug"),
		ShutdownTimeout: getEnvAsDuration("SHUTDOWN_TIMEOUT", 30*time.Second),

		CORSAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:8501"),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "console"),

		MaxFileSize: getEnvAsInt64("MAX_FILE_SIZE", 104857600), // 100MB
		MaxPages:    getEnvAsInt("MAX_PAGES", 500),

		StoreBackend:     strings.ToLower(getEnv("STORE_BACKEND", StoreSQLite)),
		SQLitePath:       getEnv("SQLITE_PATH", "pdf2img.db"),
		DatabaseURL:      getEnv("DATABASE_URL", ""),
		DBMaxConns:       int32(getEnvAsInt("DB_MAX_CONNS", 10)),
		DBMinConns:       int32(getEnvAsInt("DB_MIN_CONNS", 1)),
		DBDialTimeout:    getEnvAsDuration("DB_DIAL_TIMEOUT", 5*time.Second),
		StatementTimeout: getEnvAsDuration("DB_STATEMENT_TIMEOUT", 0),
		RedisURL:         getEnv("REDIS_URL", "redis://127.0.0.1:6379/1"),

		QueueBackend:      strings.ToLower(getEnv("QUEUE_BACKEND", QueueLocal)),
		QueueRedisURL:     getEnv("QUEUE_REDIS_URL", "redis://127.0.0.1:6379/0"),
		WorkerConcurrency: getEnvAsInt("WORKER_CONCURRENCY", 4),
		JobTimeout:        getEnvAsDuration("JOB_TIMEOUT", 0),

		StorageBackend:       strings.ToLower(getEnv("STORAGE_BACKEND", StorageLocal)),
		ResultsDir:           getEnv("RESULTS_DIR", "results"),
		GCSBucket:            getEnv("GCS_BUCKET", ""),
		GCSPrefix:            getEnv("GCS_PREFIX", ""),
		PageWriteConcurrency: getEnvAsInt("PAGE_WRITE_CONCURRENCY", 8),

		Rasterizer:           strings.ToLower(getEnv("RASTERIZER", RasterizerFitz)),
		GhostscriptPath:      getEnv("GHOSTSCRIPT_PATH", "gs"),
		RenderDPI:            getEnvAsInt("RENDER_DPI", 200),
		SimulateProcessDelay: time.Duration(getEnvAsInt("SIMULATE_PROCESS_DELAY", 0)) * time.Second,
	}

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

// AuthEnabled は認証情報が揃っている場合に true を返します。
func (c *Config) AuthEnabled() bool {
	return c.AppUsername != "" && c.AppPasswordHash != "" && c.SessionSecret != ""
}

// Validate は設定の妥当性を検証します。
func (c *Config) Validate() error {
	switch c.StoreBackend {
	case StoreMemory:
	case StoreSQLite:
		if c.SQLitePath == "" {
			return fmt.Errorf("SQLITE_PATH is required when STORE_BACKEND=%s", StoreSQLite)
		}
	case StorePostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when STORE_BACKEND=%s", StorePostgres)
		}
	case StoreRedis:
		if c.RedisURL == "" {
			return fmt.Errorf("REDIS_URL is required when STORE_BACKEND=%s", StoreRedis)
		}
	default:
		return fmt.Errorf("unknown STORE_BACKEND: %q", c.StoreBackend)
	}

	switch c.QueueBackend {
	case QueueLocal:
	case QueueAsynq:
		if c.QueueRedisURL == "" {
			return fmt.Errorf("QUEUE_REDIS_URL is required when QUEUE_BACKEND=%s", QueueAsynq)
		}
		if c.StoreBackend == StoreMemory {
			return fmt.Errorf("STORE_BACKEND=%s cannot be shared with asynq workers", StoreMemory)
		}
	default:
		return fmt.Errorf("unknown QUEUE_BACKEND: %q", c.QueueBackend)
	}

	switch c.StorageBackend {
	case StorageLocal:
		if c.ResultsDir == "" {
			return fmt.Errorf("RESULTS_DIR is required when STORAGE_BACKEND=%s", StorageLocal)
		}
	case StorageGCS:
		if c.GCSBucket == "" {
			return fmt.Errorf("GCS_BUCKET is required when STORAGE_BACKEND=%s", StorageGCS)
		}
	default:
		return fmt.Errorf("unknown STORAGE_BACKEND: %q", c.StorageBackend)
	}

	switch c.Rasterizer {
	case RasterizerFitz:
	case RasterizerGhostscript:
		if c.GhostscriptPath == "" {
			return fmt.Errorf("GHOSTSCRIPT_PATH is required when RASTERIZER=%s", RasterizerGhostscript)
		}
	default:
		return fmt.Errorf("unknown RASTERIZER: %q", c.Rasterizer)
	}

	if c.JobTimeout < 0 {
		return fmt.Errorf("JOB_TIMEOUT must not be negative")
	}

	if c.RenderDPI <= 0 {
		return fmt.Errorf("RENDER_DPI must be positive")
	}

	// 本番環境では認証を必須にする
	if c.GinMode == "release" {
		if c.AppUsername == "" {
			return fmt.Errorf("APP_USERNAME is required in release mode")
		}
		if c.AppPasswordHash == "" {
			return fmt.Errorf("APP_PASSWORD_HASH is required in release mode")
		}
		if c.SessionSecret == "" {
			return fmt.Errorf("SESSION_SECRET is required in release mode")
		}
	}

	return nil
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

// getEnvAsDuration は "30s" のような表記の環境変数を取得します。
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
