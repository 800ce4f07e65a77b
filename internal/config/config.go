// Package config は環境変数からアプリケーション設定を読み込む。
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// RateLimitFailurePolicy はカウンタストア障害時のレートリミッターの振る舞いを表す。
type RateLimitFailurePolicy string

const (
	// FailurePolicyError は障害をリトライ可能なエラーとして呼び出し元に返す。
	FailurePolicyError RateLimitFailurePolicy = "error"
	// FailurePolicyOpen は障害時にリクエストを許可する。
	FailurePolicyOpen RateLimitFailurePolicy = "open"
	// FailurePolicyClosed は障害時にリクエストを拒否する。
	FailurePolicyClosed RateLimitFailurePolicy = "closed"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string

	// Redis（レート制限カウンタとpub/subブローカーを兼ねる）
	RedisURL string

	// Session
	JWTSecret string

	// Debug はtrueの場合レート制限をバイパスする。
	Debug bool

	// Rate Limit
	RateLimitFailurePolicy RateLimitFailurePolicy
	RateLimitReports       int
	RateLimitReportsWindow time.Duration
	RateLimitWrites        int
	RateLimitWritesWindow  time.Duration

	// Ranking
	FeedTopic       string
	HotCandidateCap int

	// WebSocket
	WSWriteTimeout time.Duration
	WSPingInterval time.Duration
	WSReadTimeout  time.Duration
	WSInboundRate  float64
	WSInboundBurst int

	// Logging
	LogLevel string

	// Server
	ServerPort string

	// CORS
	CORSAllowedOrigin string
}

// Load は環境変数からConfigを読み込む。
// カレントディレクトリに.envが存在する場合は先に読み込む（既存の環境変数が優先される）。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	cfg.JWTSecret = os.Getenv("JWT_SECRET")
	if cfg.JWTSecret == "" {
		missing = append(missing, "JWT_SECRET")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.RedisURL = getEnvString("REDIS_URL", "redis://localhost:6379/0")
	cfg.Debug = getEnvBool("DEBUG", false)
	cfg.RateLimitFailurePolicy = parseFailurePolicy(getEnvString("RATE_LIMIT_FAILURE_POLICY", string(FailurePolicyError)))
	cfg.RateLimitReports = getEnvInt("RATE_LIMIT_REPORTS", 5)
	cfg.RateLimitReportsWindow = getEnvDuration("RATE_LIMIT_REPORTS_WINDOW", time.Hour)
	cfg.RateLimitWrites = getEnvInt("RATE_LIMIT_WRITES", 30)
	cfg.RateLimitWritesWindow = getEnvDuration("RATE_LIMIT_WRITES_WINDOW", time.Minute)
	cfg.FeedTopic = getEnvString("FEED_TOPIC", "feed")
	cfg.HotCandidateCap = getEnvInt("HOT_CANDIDATE_CAP", 500)
	cfg.WSWriteTimeout = getEnvDuration("WS_WRITE_TIMEOUT", 10*time.Second)
	cfg.WSPingInterval = getEnvDuration("WS_PING_INTERVAL", 30*time.Second)
	cfg.WSReadTimeout = getEnvDuration("WS_READ_TIMEOUT", 75*time.Second)
	cfg.WSInboundRate = getEnvFloat("WS_INBOUND_RATE", 5)
	cfg.WSInboundBurst = getEnvInt("WS_INBOUND_BURST", 10)
	cfg.LogLevel = getEnvString("LOG_LEVEL", "info")
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:3000")

	// カウンタの有効期限はミリ秒単位で設定するため、1ms未満のウィンドウは制限にならない
	for name, window := range map[string]time.Duration{
		"RATE_LIMIT_REPORTS_WINDOW": cfg.RateLimitReportsWindow,
		"RATE_LIMIT_WRITES_WINDOW":  cfg.RateLimitWritesWindow,
	} {
		if window < time.Millisecond {
			return nil, fmt.Errorf("%s must be at least 1ms, got %s", name, window)
		}
	}

	return cfg, nil
}

// parseFailurePolicy は未知の値をFailurePolicyErrorとして扱う。
func parseFailurePolicy(v string) RateLimitFailurePolicy {
	switch RateLimitFailurePolicy(strings.ToLower(v)) {
	case FailurePolicyOpen:
		return FailurePolicyOpen
	case FailurePolicyClosed:
		return FailurePolicyClosed
	default:
		return FailurePolicyError
	}
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvFloat(key string, defaultVal float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return defaultVal
	}
	return f
}

func getEnvBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
