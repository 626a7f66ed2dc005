package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/hitoshi/planner/internal/auth"
	"github.com/hitoshi/planner/internal/middleware"
	"github.com/hitoshi/planner/internal/model"
	"github.com/hitoshi/planner/internal/security"
	"github.com/hitoshi/planner/internal/validation"
)

// IdentityService は認証ハンドラーが必要とするIDプロバイダー操作。
type IdentityService interface {
	SignUp(ctx context.Context, email, password, name string) (*model.User, error)
	SendPasswordRecovery(ctx context.Context, email, redirectTo string) error
	UpdatePassword(ctx context.Context, accessToken, newPassword string) error
}

// SessionRefreshDecider はセッション更新の要否判定と更新を行う。
type SessionRefreshDecider interface {
	MaybeRefresh(ctx context.Context, current model.Session) auth.RefreshOutcome
}

// RateLimitClearer は認証フロー成功後に試行履歴を削除する。
type RateLimitClearer interface {
	Clear(ctx context.Context, clientIP string, purposes ...string) error
}

// AuthHandlerConfig は認証ハンドラーの設定。
type AuthHandlerConfig struct {
	// RecoveryRedirectURL はredirect_to未指定時にパスワード再設定メールのリンク先とするURL。
	RecoveryRedirectURL string
	// AllowedRedirectOrigins はredirect_toとして受け付けるオリジン。
	AllowedRedirectOrigins []string
}

// AuthHandler はサインアップ・パスワード再設定・セッション更新のHTTPハンドラー。
type AuthHandler struct {
	identity  IdentityService
	refresher SessionRefreshDecider
	validator *validation.Validator
	limits    RateLimitClearer
	config    AuthHandlerConfig
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(
	identity IdentityService,
	refresher SessionRefreshDecider,
	validator *validation.Validator,
	limits RateLimitClearer,
	config AuthHandlerConfig,
) *AuthHandler {
	if validator == nil {
		validator = validation.NewValidator(nil)
	}
	return &AuthHandler{
		identity:  identity,
		refresher: refresher,
		validator: validator,
		limits:    limits,
		config:    config,
	}
}

type userResponse struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

func toUserResponse(u model.User) userResponse {
	return userResponse{ID: u.ID, Email: u.Email, Name: u.Name}
}

// Signup は新規ユーザー登録を処理する。
// POST /auth/signup
func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var req validation.SignupInput
	if err := decodeJSON(w, r, &req); err != nil {
		writeInvalidBody(w)
		return
	}

	result := h.validator.Signup(req)
	if !result.IsValid {
		middleware.WriteValidationErrorResponse(w, result.Errors)
		return
	}
	in := result.Sanitized

	user, err := h.identity.SignUp(r.Context(), in.Email, in.Password, in.Name)
	if err != nil {
		if errors.Is(err, auth.ErrIdentityRejected) {
			slog.Info("signup rejected by identity provider", slog.String("error", err.Error()))
			middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewValidationError())
			return
		}
		slog.Error("signup failed", slog.String("error", err.Error()))
		middleware.WriteErrorResponse(w, http.StatusBadGateway, model.NewUpstreamError())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"user":                  toUserResponse(*user),
		"confirmation_required": true,
	})
}

type forgotPasswordRequest struct {
	Email      string `json:"email"`
	RedirectTo string `json:"redirect_to"`
}

// ForgotPassword はパスワード再設定メールの送信を処理する。
// アカウントの有無を推測させないため、IDプロバイダーが拒否した場合も成功を返す。
// POST /auth/forgot-password
func (h *AuthHandler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req forgotPasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeInvalidBody(w)
		return
	}

	result := h.validator.ForgotPassword(validation.ForgotPasswordInput{Email: req.Email})
	errs := result.Errors

	redirectTo := h.config.RecoveryRedirectURL
	if req.RedirectTo != "" {
		if err := security.ValidateRedirectTarget(req.RedirectTo, h.config.AllowedRedirectOrigins); err != nil {
			slog.Warn("untrusted recovery redirect", slog.String("error", err.Error()))
			errs = append(errs, model.ValidationRedirectInvalid)
		}
		redirectTo = req.RedirectTo
	}
	if len(errs) > 0 {
		middleware.WriteValidationErrorResponse(w, errs)
		return
	}

	if err := h.identity.SendPasswordRecovery(r.Context(), result.Sanitized.Email, redirectTo); err != nil {
		if !errors.Is(err, auth.ErrIdentityRejected) {
			slog.Error("password recovery failed", slog.String("error", err.Error()))
			middleware.WriteErrorResponse(w, http.StatusBadGateway, model.NewUpstreamError())
			return
		}
		slog.Info("password recovery rejected by identity provider", slog.String("error", err.Error()))
	}

	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// ResetPassword はリカバリートークンによるパスワード更新を処理する。
// 成功した場合は呼び出し元IPの再設定系レート制限をリセットする。
// POST /auth/reset-password
func (h *AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req validation.ResetPasswordInput
	if err := decodeJSON(w, r, &req); err != nil {
		writeInvalidBody(w)
		return
	}

	result := h.validator.ResetPassword(req)
	if !result.IsValid {
		middleware.WriteValidationErrorResponse(w, result.Errors)
		return
	}

	err := h.identity.UpdatePassword(r.Context(), result.Sanitized.AccessToken, result.Sanitized.Password)
	if err != nil {
		if errors.Is(err, auth.ErrIdentityRejected) {
			middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewSessionExpiredError())
			return
		}
		slog.Error("password update failed", slog.String("error", err.Error()))
		middleware.WriteErrorResponse(w, http.StatusBadGateway, model.NewUpstreamError())
		return
	}

	if h.limits != nil {
		clientIP := middleware.ClientIP(r)
		if err := h.limits.Clear(r.Context(), clientIP, middleware.PurposeResetPassword, middleware.PurposeForgotPassword); err != nil {
			slog.Warn("failed to clear auth rate limits",
				slog.String("client_ip", clientIP),
				slog.String("error", err.Error()),
			)
		}
	}

	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

type sessionRefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
	ExpiresAt    int64  `json:"expires_at"` // UNIX秒
}

type sessionResponse struct {
	AccessToken  string       `json:"access_token"`
	RefreshToken string       `json:"refresh_token"`
	ExpiresAt    int64        `json:"expires_at"`
	User         userResponse `json:"user"`
}

// RefreshSession はセッションの失効が近い場合のみIDプロバイダーで更新する。
// POST /auth/session/refresh
func (h *AuthHandler) RefreshSession(w http.ResponseWriter, r *http.Request) {
	var req sessionRefreshRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeInvalidBody(w)
		return
	}

	outcome := h.refresher.MaybeRefresh(r.Context(), model.Session{
		RefreshToken: req.RefreshToken,
		ExpiresAt:    time.Unix(req.ExpiresAt, 0),
	})

	switch outcome.Kind {
	case auth.RefreshNotNeeded:
		writeJSON(w, http.StatusOK, map[string]any{
			"status":     outcome.Kind.String(),
			"expires_in": int64(outcome.TimeUntilExpiry / time.Second),
		})
	case auth.RefreshSucceeded:
		s := outcome.Session
		writeJSON(w, http.StatusOK, map[string]any{
			"status": outcome.Kind.String(),
			"session": sessionResponse{
				AccessToken:  s.AccessToken,
				RefreshToken: s.RefreshToken,
				ExpiresAt:    s.ExpiresAt.Unix(),
				User:         toUserResponse(s.User),
			},
		})
	default:
		apiErr := model.NewSessionExpiredError()
		writeJSON(w, http.StatusUnauthorized, map[string]any{
			"code":            apiErr.Code,
			"message":         apiErr.Message,
			"category":        apiErr.Category,
			"action":          apiErr.Action,
			"reauth_required": outcome.ReauthRequired(),
		})
	}
}
