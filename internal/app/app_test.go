package app

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/hitoshi/planner/internal/logger"
)

func TestInit_WithValidConfig_Succeeds(t *testing.T) {
	setTestEnv(t)

	var buf bytes.Buffer
	cfg, err := Init(&buf)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if cfg == nil {
		t.Fatal("expected non-nil config")
	}

	if cfg.DashboardURL != "http://localhost:3000/dashboard" {
		t.Errorf("DashboardURL = %q", cfg.DashboardURL)
	}

	// slogのグローバルロガーがJSON出力に設定されていること
	slog.Default().Info("init test")
	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("expected JSON log output, got error: %v\nraw: %s", err, buf.String())
	}
	if entry["msg"] != "init test" {
		t.Errorf("msg = %q, want %q", entry["msg"], "init test")
	}
}

func TestInit_AppliesLogLevel(t *testing.T) {
	setTestEnv(t)
	t.Setenv("LOG_LEVEL", "warn")
	t.Cleanup(func() { logger.SetLevel(slog.LevelInfo) })

	var buf bytes.Buffer
	if _, err := Init(&buf); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if slog.Default().Enabled(context.Background(), slog.LevelInfo) {
		t.Error("info level should be disabled when LOG_LEVEL=warn")
	}
	if !slog.Default().Enabled(context.Background(), slog.LevelWarn) {
		t.Error("warn level should be enabled when LOG_LEVEL=warn")
	}
}

func TestInit_WithMissingConfig_ReturnsError(t *testing.T) {
	clearRequiredEnv(t)

	var buf bytes.Buffer
	cfg, err := Init(&buf)
	if err == nil {
		t.Fatal("expected error for missing required env vars, got nil")
	}
	if cfg != nil {
		t.Error("expected nil config on error")
	}
}
