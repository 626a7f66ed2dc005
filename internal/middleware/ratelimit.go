package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/hitoshi/planner/internal/model"
	"github.com/hitoshi/planner/internal/ratelimit"
)

// RateLimitCheck は(clientIP, path)ごとの固定ウィンドウでリクエスト数を制限する。
// ストアの障害時はリクエストを通過させ、警告ログを出力する。
type RateLimitCheck struct {
	store  ratelimit.Store
	policy ratelimit.Policy
	logger *slog.Logger
	now    func() time.Time
}

// NewRateLimitCheck はRateLimitCheckを生成する。
// maxPerMinuteが0以下の場合はratelimit.DefaultRequestPolicyを使用する。
func NewRateLimitCheck(store ratelimit.Store, maxPerMinute int, logger *slog.Logger) *RateLimitCheck {
	policy := ratelimit.DefaultRequestPolicy
	if maxPerMinute > 0 {
		policy.Limit = maxPerMinute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RateLimitCheck{store: store, policy: policy, logger: logger, now: time.Now}
}

func (c *RateLimitCheck) Name() string { return "rate_limit" }

func (c *RateLimitCheck) Evaluate(_ http.ResponseWriter, r *http.Request, info RequestInfo) *Halt {
	key := info.ClientIP + ":" + info.Path
	d, err := c.store.Check(r.Context(), key, c.policy.Limit, c.policy.Window)
	if err != nil {
		c.logger.Warn("rate limit store unavailable, allowing request",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		return nil
	}
	if d.Allowed {
		return nil
	}
	return &Halt{
		Status:     http.StatusTooManyRequests,
		Err:        model.NewRateLimitError(),
		RetryAfter: d.RetryAfter(c.now()),
	}
}

// 認証系エンドポイントの用途。レート制限キーの接頭辞として使用する。
const (
	PurposeSignup         = "signup"
	PurposeForgotPassword = "forgot-password"
	PurposeResetPassword  = "reset-password"
)

// AuthRateLimiter は認証系エンドポイント専用の厳しいレート制限を提供する。
// キーは purpose + ":" + clientIP。
type AuthRateLimiter struct {
	store  ratelimit.Store
	policy ratelimit.Policy
	logger *slog.Logger
	now    func() time.Time
}

// NewAuthRateLimiter はratelimit.AuthAttemptPolicyを適用するAuthRateLimiterを生成する。
func NewAuthRateLimiter(store ratelimit.Store, logger *slog.Logger) *AuthRateLimiter {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthRateLimiter{
		store:  store,
		policy: ratelimit.AuthAttemptPolicy,
		logger: logger,
		now:    time.Now,
	}
}

// Limit はpurposeの試行回数を制限するミドルウェアを返す。
// 上限到達時はretryAfterを含む429を返し、ハンドラーを呼び出さない。
func (l *AuthRateLimiter) Limit(purpose string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := AuthRateLimitKey(purpose, ClientIP(r))
			d, err := l.store.Check(r.Context(), key, l.policy.Limit, l.policy.Window)
			if err != nil {
				l.logger.Warn("auth rate limit store unavailable, allowing request",
					slog.String("purpose", purpose),
					slog.String("error", err.Error()),
				)
				next.ServeHTTP(w, r)
				return
			}
			if !d.Allowed {
				l.logger.Warn("rate limit exceeded",
					slog.String("purpose", purpose),
					slog.String("client_ip", ClientIP(r)),
				)
				WriteRateLimitResponse(w, d.RetryAfter(l.now()))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Clear はpurposeごとのclientIPの試行履歴を削除する。
// 保護されたフローが成功した後に呼び出す。
func (l *AuthRateLimiter) Clear(ctx context.Context, clientIP string, purposes ...string) error {
	for _, p := range purposes {
		if err := l.store.Clear(ctx, AuthRateLimitKey(p, clientIP)); err != nil {
			return fmt.Errorf("clear rate limit %s: %w", p, err)
		}
	}
	return nil
}

// AuthRateLimitKey は認証系レート制限のキーを返す。
func AuthRateLimitKey(purpose, clientIP string) string {
	return purpose + ":" + clientIP
}
