package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/planner/internal/calendar"
	"github.com/hitoshi/planner/internal/integration"
	"github.com/hitoshi/planner/internal/middleware"
	"github.com/hitoshi/planner/internal/model"
)

// コールバックでダッシュボードに返すエラーコード。
// プロバイダーのエラー内容はブラウザに渡さない。
const (
	CallbackErrInvalid       = "invalid_callback"
	CallbackErrExchange      = "token_exchange_failed"
	CallbackErrNoAccessToken = "no_access_token"
	CallbackErrStorage       = "storage_failed"
	CallbackErrUnexpected    = "unexpected_error"
)

// IntegrationService はカレンダー連携ハンドラーが必要とするトークン操作。
type IntegrationService interface {
	AuthCodeURL(userID string) string
	ExchangeCode(ctx context.Context, code, userID string) (*model.Integration, error)
	RefreshToken(ctx context.Context, userID string) (*model.Integration, error)
	Disconnect(ctx context.Context, userID string) error
}

// EventLister は連携済みカレンダーの予定を取得する。
type EventLister interface {
	UpcomingEvents(ctx context.Context, userID string) ([]calendar.Event, error)
}

// CalendarHandlerConfig はカレンダー連携ハンドラーの設定。
type CalendarHandlerConfig struct {
	// DashboardURL はOAuthコールバック後のリダイレクト先。
	DashboardURL string
}

// CalendarHandler はGoogleカレンダー連携のHTTPハンドラー。
type CalendarHandler struct {
	service IntegrationService
	events  EventLister
	config  CalendarHandlerConfig
}

// NewCalendarHandler はCalendarHandlerを生成する。
func NewCalendarHandler(service IntegrationService, events EventLister, config CalendarHandlerConfig) *CalendarHandler {
	return &CalendarHandler{
		service: service,
		events:  events,
		config:  config,
	}
}

// integrationResponse は連携情報のAPIレスポンス。リフレッシュトークンは含めない。
type integrationResponse struct {
	Provider    model.Provider `json:"provider"`
	AccessToken string         `json:"access_token"`
	ExpiresAt   time.Time      `json:"expires_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// Connect は同意画面のURLを返す。
// GET /api/calendar/connect
func (h *CalendarHandler) Connect(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"url": h.service.AuthCodeURL(userID)})
}

// Callback は同意画面からのリダイレクトを処理し、結果に応じてダッシュボードへリダイレクトする。
// stateにはConnectで渡したユーザーIDが入る。
// GET /api/calendar/callback?code=xxx&state=yyy
func (h *CalendarHandler) Callback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	if providerErr := q.Get("error"); providerErr != "" {
		slog.Warn("calendar authorization denied",
			slog.String("error", providerErr),
			slog.String("error_description", q.Get("error_description")),
		)
		h.redirectError(w, r, CallbackErrInvalid)
		return
	}

	code := q.Get("code")
	userID := q.Get("state")
	if code == "" || userID == "" {
		h.redirectError(w, r, CallbackErrInvalid)
		return
	}
	if _, err := uuid.Parse(userID); err != nil {
		slog.Warn("calendar callback with malformed state", slog.String("state", userID))
		h.redirectError(w, r, CallbackErrInvalid)
		return
	}

	if _, err := h.service.ExchangeCode(r.Context(), code, userID); err != nil {
		h.redirectError(w, r, callbackErrorCode(err))
		return
	}

	h.redirect(w, r, url.Values{"calendar_success": {"true"}})
}

func callbackErrorCode(err error) string {
	switch {
	case errors.Is(err, integration.ErrNoAccessToken):
		return CallbackErrNoAccessToken
	case errors.Is(err, integration.ErrTokenExchangeFailed):
		return CallbackErrExchange
	case errors.Is(err, integration.ErrStorage):
		return CallbackErrStorage
	default:
		return CallbackErrUnexpected
	}
}

func (h *CalendarHandler) redirectError(w http.ResponseWriter, r *http.Request, code string) {
	h.redirect(w, r, url.Values{"calendar_error": {code}})
}

func (h *CalendarHandler) redirect(w http.ResponseWriter, r *http.Request, params url.Values) {
	target, err := url.Parse(h.config.DashboardURL)
	if err != nil {
		slog.Error("invalid dashboard url", slog.String("error", err.Error()))
		middleware.WriteInternalServerError(w)
		return
	}
	q := target.Query()
	for k, v := range params {
		q[k] = v
	}
	target.RawQuery = q.Encode()
	http.Redirect(w, r, target.String(), http.StatusTemporaryRedirect)
}

// Refresh は保存済みのリフレッシュトークンでアクセストークンを更新する。
// POST /api/calendar/refresh
func (h *CalendarHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	updated, err := h.service.RefreshToken(r.Context(), userID)
	if err != nil {
		writeIntegrationError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, integrationResponse{
		Provider:    updated.Provider,
		AccessToken: updated.AccessToken,
		ExpiresAt:   updated.ExpiresAt,
		UpdatedAt:   updated.UpdatedAt,
	})
}

// Disconnect は連携を解除する。
// POST /api/calendar/disconnect
func (h *CalendarHandler) Disconnect(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	if err := h.service.Disconnect(r.Context(), userID); err != nil {
		slog.Error("calendar disconnect failed",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
		middleware.WriteErrorResponse(w, http.StatusInternalServerError, model.NewStorageError())
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// Events は直近の予定を返す。
// GET /api/calendar/events
func (h *CalendarHandler) Events(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	events, err := h.events.UpcomingEvents(r.Context(), userID)
	if err != nil {
		switch {
		case errors.Is(err, calendar.ErrCalendarUnauthorized):
			middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewTokenRefreshFailedError())
		case errors.Is(err, calendar.ErrCalendarUnavailable):
			slog.Error("calendar api failed",
				slog.String("user_id", userID),
				slog.String("error", err.Error()),
			)
			middleware.WriteErrorResponse(w, http.StatusBadGateway, model.NewUpstreamError())
		default:
			writeIntegrationError(w, err)
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"events": events})
}

// writeIntegrationError はトークン操作のエラーをHTTPステータスに対応付けて書き込む。
func writeIntegrationError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, integration.ErrIntegrationNotFound):
		middleware.WriteErrorResponse(w, http.StatusNotFound, model.NewIntegrationNotFoundError())
	case errors.Is(err, integration.ErrNoRefreshToken):
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewNoRefreshTokenError())
	case errors.Is(err, integration.ErrTokenRefreshFailed):
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewTokenRefreshFailedError())
	case errors.Is(err, integration.ErrStorage):
		slog.Error("integration storage failed", slog.String("error", err.Error()))
		middleware.WriteErrorResponse(w, http.StatusInternalServerError, model.NewStorageError())
	default:
		slog.Error("unexpected integration error", slog.String("error", err.Error()))
		middleware.WriteInternalServerError(w)
	}
}
