// Package middleware はHTTPミドルウェアを提供する。
//
// 中心となるのはゲートキーパーパイプラインで、すべてのリクエストに対して
// ルーティング前に決められた順序でチェックを適用する。
package middleware

import (
	"log/slog"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/hitoshi/planner/internal/model"
)

const (
	requestIDHeader = "X-Request-ID"

	// maxLoggedUserAgent はログに出力するUser-Agentの最大長。
	maxLoggedUserAgent = 100

	unknownClientIP = "unknown"
)

// RequestInfo はチェックが参照するリクエストのメタデータ。
type RequestInfo struct {
	RequestID string
	ClientIP  string
	UserAgent string
	Method    string
	Path      string
	Origin    string
}

// Halt はチェックがリクエストを打ち切る場合の応答内容。
// Errがnilの場合はステータスのみを書き込む（CORSプリフライト等）。
type Halt struct {
	Status     int
	Err        *model.APIError
	RetryAfter int // 429の場合のみ使用（秒）
}

// Check はパイプラインの1段。nilを返すと次の段に進む。
// 許可時に応答ヘッダーを付与してよいが、ボディを書き込んではならない。
type Check interface {
	Name() string
	Evaluate(w http.ResponseWriter, r *http.Request, info RequestInfo) *Halt
}

// DecisionRecorder はパイプラインの判定結果を記録する。
type DecisionRecorder interface {
	RecordGatekeeperHalt(check string, status int)
	RecordHTTPRequest(method string, status int, duration time.Duration)
}

type nopRecorder struct{}

func (nopRecorder) RecordGatekeeperHalt(string, int)             {}
func (nopRecorder) RecordHTTPRequest(string, int, time.Duration) {}

// Pipeline はチェックを順に適用し、すべて通過したリクエストのみ次のハンドラーに渡す。
type Pipeline struct {
	checks   []Check
	logger   *slog.Logger
	recorder DecisionRecorder
}

// NewPipeline は指定順のチェックからなるPipelineを生成する。
func NewPipeline(logger *slog.Logger, recorder DecisionRecorder, checks ...Check) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	if recorder == nil {
		recorder = nopRecorder{}
	}
	return &Pipeline{
		checks:   checks,
		logger:   logger,
		recorder: recorder,
	}
}

// CheckNames はチェックの適用順を返す。
func (p *Pipeline) CheckNames() []string {
	names := make([]string, len(p.checks))
	for i, c := range p.checks {
		names[i] = c.Name()
	}
	return names
}

// Middleware はパイプラインをHTTPミドルウェアとして返す。
//
// 実行順序:
//
//	静的アセット除外 → 各チェック（順序固定） → セキュリティヘッダー付与 → next
func (p *Pipeline) Middleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isStaticAsset(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			start := time.Now()
			info := RequestInfo{
				RequestID: uuid.NewString(),
				ClientIP:  ClientIP(r),
				UserAgent: r.UserAgent(),
				Method:    r.Method,
				Path:      r.URL.Path,
				Origin:    r.Header.Get("Origin"),
			}
			w.Header().Set(requestIDHeader, info.RequestID)

			p.logger.Info("request_started",
				slog.String("request_id", info.RequestID),
				slog.String("method", info.Method),
				slog.String("path", info.Path),
				slog.String("user_agent", truncate(info.UserAgent, maxLoggedUserAgent)),
				slog.String("client_ip", info.ClientIP),
			)

			rec := newStatusRecorder(w)

			for _, c := range p.checks {
				halt := c.Evaluate(rec, r, info)
				if halt == nil {
					continue
				}
				p.writeHalt(rec, halt)
				p.recorder.RecordGatekeeperHalt(c.Name(), halt.Status)
				p.logger.Warn("request_halted",
					slog.String("request_id", info.RequestID),
					slog.String("check", c.Name()),
					slog.Int("status", halt.Status),
					slog.String("client_ip", info.ClientIP),
					slog.String("path", info.Path),
				)
				p.logCompleted(r, info, rec, start)
				return
			}

			applySecurityHeaders(rec.Header(), isSecureRequest(r))
			next.ServeHTTP(rec, r)

			p.logCompleted(r, info, rec, start)
		})
	}
}

func (p *Pipeline) writeHalt(w http.ResponseWriter, halt *Halt) {
	switch {
	case halt.Status == http.StatusTooManyRequests:
		WriteRateLimitResponse(w, halt.RetryAfter)
	case halt.Err != nil:
		WriteErrorResponse(w, halt.Status, halt.Err)
	default:
		w.WriteHeader(halt.Status)
	}
}

func (p *Pipeline) logCompleted(r *http.Request, info RequestInfo, rec *statusRecorder, start time.Time) {
	status := rec.statusCode
	duration := time.Since(start)
	durationMs := float64(duration.Nanoseconds()) / float64(time.Millisecond)

	// slogのログレベルをステータスコードに応じて変更
	level := slog.LevelInfo
	if status >= 500 {
		level = slog.LevelError
	} else if status >= 400 {
		level = slog.LevelWarn
	}

	p.logger.Log(r.Context(), level, "request_completed",
		slog.String("request_id", info.RequestID),
		slog.String("method", info.Method),
		slog.String("path", info.Path),
		slog.String("user_agent", truncate(info.UserAgent, maxLoggedUserAgent)),
		slog.String("client_ip", info.ClientIP),
		slog.Int("status", status),
		slog.Int("bytes", rec.bytes),
		slog.Float64("duration_ms", durationMs),
	)
	p.recorder.RecordHTTPRequest(info.Method, status, duration)
}

// ClientIP はX-Forwarded-Forの先頭エントリをクライアントIPとして返す。
// ヘッダーがない場合は"unknown"を返す。
func ClientIP(r *http.Request) string {
	xff := r.Header.Get("X-Forwarded-For")
	if xff == "" {
		return unknownClientIP
	}
	first, _, _ := strings.Cut(xff, ",")
	first = strings.TrimSpace(first)
	if first == "" {
		return unknownClientIP
	}
	return first
}

// staticPrefixes と staticExtensions はパイプラインの対象外とする静的アセット。
var (
	staticPrefixes = []string{"/_next/static/", "/_next/image", "/static/", "/favicon.ico"}

	staticExtensions = []string{
		".svg", ".png", ".jpg", ".jpeg", ".gif", ".webp", ".ico",
		".css", ".js", ".map", ".woff", ".woff2",
	}
)

func isStaticAsset(path string) bool {
	for _, p := range staticPrefixes {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	// APIパスは拡張子に関係なく検査する
	if strings.HasPrefix(path, "/api/") || path == "/api" {
		return false
	}
	lower := strings.ToLower(path)
	for _, ext := range staticExtensions {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}

// truncate はsを先頭nバイト以内に、文字の途中で切らずに切り詰める。
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
