package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/planner/internal/config"
	"github.com/hitoshi/planner/internal/metrics"
	"github.com/hitoshi/planner/internal/ratelimit"
)

func testConfig(identityURL string) *config.Config {
	return &config.Config{
		IdentityURL:          identityURL,
		IdentityAPIKey:       "anon-key",
		JWTSecret:            "test-jwt-secret",
		JWTAudience:          "authenticated",
		GoogleClientID:       "client-id",
		GoogleClientSecret:   "client-secret",
		GoogleRedirectURL:    "http://localhost:8080/api/calendar/callback",
		DashboardURL:         "http://localhost:3000/dashboard",
		AllowedOrigins:       []string{"http://localhost:3000"},
		BlockedUserAgents:    []string{"evilbot", "python-requests"},
		MaxRequestsPerMinute: 100,
	}
}

func newTestRouter(t *testing.T, cfg *config.Config) http.Handler {
	t.Helper()
	reg := prometheus.NewRegistry()
	router, err := buildRouter(cfg, nil, ratelimit.NewMemoryStore(), reg, metrics.NewCollector(reg))
	if err != nil {
		t.Fatalf("buildRouter: %v", err)
	}
	return router
}

func TestBuildRouter_SignupReachesIdentityProvider(t *testing.T) {
	var gotPath, gotAPIKey string
	identity := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAPIKey = r.Header.Get("apikey")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"6f1c2d3e-4a5b-4c6d-8e7f-901234567890","email":"taro@example.com"}`))
	}))
	defer identity.Close()

	router := newTestRouter(t, testConfig(identity.URL))

	req := httptest.NewRequest(http.MethodPost, "/auth/signup",
		strings.NewReader(`{"email":"taro@example.com","password":"abcd1234","confirm_password":"abcd1234"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	if gotPath != "/auth/v1/signup" {
		t.Errorf("identity path = %q", gotPath)
	}
	if gotAPIKey != "anon-key" {
		t.Errorf("apikey = %q", gotAPIKey)
	}
}

func TestBuildRouter_HealthAndMetrics(t *testing.T) {
	router := newTestRouter(t, testConfig("https://identity.example"))

	for _, path := range []string{"/health", "/metrics"} {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		if w.Code != http.StatusOK {
			t.Errorf("GET %s status = %d, want 200", path, w.Code)
		}
	}
}

func TestBuildRouter_ConfiguredUserAgentBlocked(t *testing.T) {
	router := newTestRouter(t, testConfig("https://identity.example"))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("User-Agent", "EvilBot/2.0")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", w.Code)
	}
	var body map[string]any
	json.NewDecoder(w.Body).Decode(&body)
	if body["code"] != "BLOCKED_USER_AGENT" {
		t.Errorf("code = %v", body["code"])
	}
}

func TestBuildRouter_InvalidUserAgentPattern(t *testing.T) {
	cfg := testConfig("https://identity.example")
	cfg.BlockedUserAgents = []string{"("}

	reg := prometheus.NewRegistry()
	if _, err := buildRouter(cfg, nil, ratelimit.NewMemoryStore(), reg, metrics.NewCollector(reg)); err == nil {
		t.Fatal("expected error for invalid pattern")
	}
}

func TestCompileUserAgentPatterns_CaseInsensitive(t *testing.T) {
	patterns, err := compileUserAgentPatterns([]string{"scrapy"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(patterns) != 1 || !patterns[0].MatchString("Scrapy/2.11") {
		t.Error("pattern should match regardless of case")
	}
}

func TestNewRateLimitStore(t *testing.T) {
	t.Run("memory when redis url is empty", func(t *testing.T) {
		store, closeFn, err := newRateLimitStore(context.Background(), &config.Config{})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		defer closeFn()
		if _, ok := store.(*ratelimit.MemoryStore); !ok {
			t.Errorf("store = %T, want *ratelimit.MemoryStore", store)
		}
	})

	t.Run("redis when redis url is set", func(t *testing.T) {
		mr := miniredis.RunT(t)

		store, closeFn, err := newRateLimitStore(context.Background(), &config.Config{RedisURL: "redis://" + mr.Addr()})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		defer closeFn()
		if _, ok := store.(*ratelimit.RedisStore); !ok {
			t.Fatalf("store = %T, want *ratelimit.RedisStore", store)
		}

		d, err := store.Check(context.Background(), "signup:203.0.113.7", 3, ratelimit.AuthAttemptPolicy.Window)
		if err != nil || !d.Allowed {
			t.Fatalf("Check = %+v, %v", d, err)
		}
		if !mr.Exists("planner:ratelimit:signup:203.0.113.7") {
			t.Errorf("expected prefixed key, got keys %v", mr.Keys())
		}
	})

	t.Run("invalid redis url", func(t *testing.T) {
		if _, _, err := newRateLimitStore(context.Background(), &config.Config{RedisURL: "http://not-redis"}); err == nil {
			t.Fatal("expected error for invalid url")
		}
	})

	t.Run("unreachable redis", func(t *testing.T) {
		if _, _, err := newRateLimitStore(context.Background(), &config.Config{RedisURL: "redis://127.0.0.1:1"}); err == nil {
			t.Fatal("expected error for unreachable redis")
		}
	})
}

func TestMaskDatabaseURL(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"postgres://user:secret@db:5432/planner?sslmode=disable", "postgres://user:xxxxx@db:5432/planner?sslmode=disable"},
		{"postgres://db:5432/planner", "postgres://db:5432/planner"},
		{"not a url", "***"},
	}

	for _, tt := range tests {
		if got := maskDatabaseURL(tt.in); got != tt.want {
			t.Errorf("maskDatabaseURL(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
	if strings.Contains(maskDatabaseURL(tests[0].in), "secret") {
		t.Error("password must not appear in masked url")
	}
}
