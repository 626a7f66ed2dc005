package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string

	// Identity provider
	IdentityURL    string
	IdentityAPIKey string
	JWTSecret      string
	JWTAudience    string

	// Google OAuth
	GoogleClientID          string
	GoogleClientSecret      string
	GoogleRedirectURL       string
	GoogleRequestsPerSecond float64
	CalendarEndpoint        string

	// Dashboard
	DashboardURL string
	// パスワード再設定メールのリンク先。空の場合はIDプロバイダーの既定値
	PasswordResetURL string

	// Gatekeeper
	AllowedOrigins       []string
	BlockedIPs           []string
	BlockedUserAgents    []string
	MaxRequestsPerMinute int

	// Rate limit store
	RedisURL      string
	SweepInterval time.Duration

	// Outbound
	OutboundTimeout time.Duration

	// Logging
	LogLevel slog.Level

	// Server
	ServerPort string
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string
	required := func(key string) string {
		v := os.Getenv(key)
		if v == "" {
			missing = append(missing, key)
		}
		return v
	}

	cfg.DatabaseURL = required("DATABASE_URL")
	cfg.IdentityURL = required("IDENTITY_URL")
	cfg.IdentityAPIKey = required("IDENTITY_API_KEY")
	cfg.JWTSecret = required("JWT_SECRET")
	cfg.GoogleClientID = required("GOOGLE_CLIENT_ID")
	cfg.GoogleClientSecret = required("GOOGLE_CLIENT_SECRET")
	cfg.GoogleRedirectURL = required("GOOGLE_REDIRECT_URL")
	cfg.DashboardURL = required("DASHBOARD_URL")

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.JWTAudience = getEnvString("JWT_AUDIENCE", "authenticated")
	cfg.GoogleRequestsPerSecond = getEnvFloat("GOOGLE_REQUESTS_PER_SECOND", 5)
	cfg.CalendarEndpoint = getEnvString("CALENDAR_ENDPOINT", "")
	cfg.PasswordResetURL = getEnvString("PASSWORD_RESET_URL", "")
	cfg.AllowedOrigins = getEnvList("ALLOWED_ORIGINS", []string{"http://localhost:3000"})
	cfg.BlockedIPs = getEnvList("BLOCKED_IPS", nil)
	cfg.BlockedUserAgents = getEnvList("BLOCKED_USER_AGENTS", nil)
	cfg.MaxRequestsPerMinute = getEnvInt("MAX_REQUESTS_PER_MINUTE", 100)
	cfg.RedisURL = getEnvString("REDIS_URL", "")
	cfg.SweepInterval = getEnvDuration("RATE_LIMIT_SWEEP_INTERVAL", 5*time.Minute)
	cfg.OutboundTimeout = getEnvDuration("OUTBOUND_TIMEOUT", 10*time.Second)
	cfg.LogLevel = getEnvLevel("LOG_LEVEL", slog.LevelInfo)
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")

	return cfg, nil
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
	if err != nil || f <= 0 {
		return defaultVal
	}
	return f
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

// getEnvList はカンマ区切りの値を空要素を除いて返す。
func getEnvList(key string, defaultVal []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return defaultVal
	}
	return out
}

func getEnvLevel(key string, defaultVal slog.Level) slog.Level {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(v)); err != nil {
		return defaultVal
	}
	return level
}
