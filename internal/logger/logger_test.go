package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestSetup_ReturnsJSONLogger(t *testing.T) {
	var buf bytes.Buffer
	l := Setup(&buf)

	if l == nil {
		t.Fatal("expected non-nil logger")
	}

	l.Info("test message", slog.String("key", "value"))

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("expected valid JSON log output, got error: %v\nraw output: %s", err, buf.String())
	}

	if entry["msg"] != "test message" {
		t.Errorf("msg = %q, want %q", entry["msg"], "test message")
	}
	if entry["key"] != "value" {
		t.Errorf("key = %q, want %q", entry["key"], "value")
	}
}

func TestSetup_IncludesTimeField(t *testing.T) {
	var buf bytes.Buffer
	l := Setup(&buf)

	l.Info("test")

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to parse JSON: %v", err)
	}

	if _, ok := entry["time"]; !ok {
		t.Error("expected 'time' field in JSON log output")
	}
}

func TestSetup_IncludesLevelField(t *testing.T) {
	var buf bytes.Buffer
	l := Setup(&buf)

	l.Warn("warning test")

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to parse JSON: %v", err)
	}

	if entry["level"] != "WARN" {
		t.Errorf("level = %q, want %q", entry["level"], "WARN")
	}
}

func TestSetup_MultipleAttributes(t *testing.T) {
	var buf bytes.Buffer
	l := Setup(&buf)

	l.Info("request_completed",
		slog.String("request_id", "r-123"),
		slog.String("path", "/api/calendar/events"),
		slog.Int("status", 200),
		slog.Float64("duration_ms", 12.5),
	)

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to parse JSON: %v", err)
	}

	if entry["request_id"] != "r-123" {
		t.Errorf("request_id = %q, want %q", entry["request_id"], "r-123")
	}
	if entry["path"] != "/api/calendar/events" {
		t.Errorf("path = %q, want %q", entry["path"], "/api/calendar/events")
	}
	if entry["status"] != float64(200) {
		t.Errorf("status = %v, want %v", entry["status"], 200)
	}
	if entry["duration_ms"] != 12.5 {
		t.Errorf("duration_ms = %v, want %v", entry["duration_ms"], 12.5)
	}
}

func TestSetup_RedactsCredentials(t *testing.T) {
	var buf bytes.Buffer
	l := Setup(&buf)

	l.Info("token stored",
		slog.String("user_id", "u-1"),
		slog.String("access_token", "ya29.secret"),
		slog.String("refresh_token", "1//secret"),
	)

	raw := buf.String()
	if strings.Contains(raw, "secret") {
		t.Errorf("credentials leaked into log: %s", raw)
	}

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to parse JSON: %v", err)
	}
	if entry["access_token"] != "[REDACTED]" {
		t.Errorf("access_token = %v, want [REDACTED]", entry["access_token"])
	}
	if entry["user_id"] != "u-1" {
		t.Errorf("user_id = %v, want u-1", entry["user_id"])
	}
}

func TestSetLevel_ChangesExistingLoggers(t *testing.T) {
	t.Cleanup(func() { SetLevel(slog.LevelInfo) })

	var buf bytes.Buffer
	l := Setup(&buf)

	l.Debug("hidden")
	if buf.Len() != 0 {
		t.Fatalf("debug should be suppressed at INFO, got %s", buf.String())
	}

	SetLevel(slog.LevelDebug)
	l.Debug("shown")
	if !strings.Contains(buf.String(), `"msg":"shown"`) {
		t.Errorf("debug should be emitted after SetLevel, got %s", buf.String())
	}

	buf.Reset()
	SetLevel(slog.LevelError)
	l.Warn("suppressed")
	if buf.Len() != 0 {
		t.Errorf("warn should be suppressed at ERROR, got %s", buf.String())
	}
}

func TestSetupDefault_SetsGlobalLogger(t *testing.T) {
	var buf bytes.Buffer
	SetupDefault(&buf)

	slog.Default().Info("global test", slog.String("test_key", "test_val"))

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to parse JSON: %v\nraw: %s", err, buf.String())
	}

	if entry["msg"] != "global test" {
		t.Errorf("msg = %q, want %q", entry["msg"], "global test")
	}
	if entry["test_key"] != "test_val" {
		t.Errorf("test_key = %q, want %q", entry["test_key"], "test_val")
	}
}
