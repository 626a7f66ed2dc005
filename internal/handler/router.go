package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/planner/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Gatekeeper      *middleware.Pipeline
	SessionVerifier middleware.SessionVerifier
	AuthLimiter     *middleware.AuthRateLimiter
	Logger          *slog.Logger

	// 運用
	HealthChecker  HealthChecker
	MetricsHandler http.Handler

	// 認証
	AuthHandler *AuthHandler

	// カレンダー連携
	CalendarHandler *CalendarHandler
}

// NewRouter は全エンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Gatekeeper → Recovery → (認証系: AuthRateLimit) / (/api: BearerAuth)
//
// OAuthコールバックはブラウザのリダイレクトで呼ばれるためBearer認証の外に置く。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	if deps.Gatekeeper != nil {
		r.Use(deps.Gatekeeper.Middleware())
	}
	r.Use(middleware.NewRecoveryMiddleware(deps.Logger))

	// --- 運用エンドポイント ---
	r.Get("/health", Health(deps.HealthChecker))
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	// --- 認証ルート（試行回数制限つき） ---
	r.Route("/auth", func(r chi.Router) {
		h := deps.AuthHandler
		r.With(deps.AuthLimiter.Limit(middleware.PurposeSignup)).Post("/signup", h.Signup)
		r.With(deps.AuthLimiter.Limit(middleware.PurposeForgotPassword)).Post("/forgot-password", h.ForgotPassword)
		r.With(deps.AuthLimiter.Limit(middleware.PurposeResetPassword)).Post("/reset-password", h.ResetPassword)
		r.Post("/session/refresh", h.RefreshSession)
	})

	// --- カレンダー連携 ---
	r.Route("/api/calendar", func(r chi.Router) {
		h := deps.CalendarHandler
		r.Get("/callback", h.Callback)

		r.Group(func(r chi.Router) {
			r.Use(middleware.NewBearerAuthMiddleware(deps.SessionVerifier))
			r.Get("/connect", h.Connect)
			r.Post("/refresh", h.Refresh)
			r.Post("/disconnect", h.Disconnect)
			r.Get("/events", h.Events)
		})
	})

	return r
}
