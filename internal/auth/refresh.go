package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/planner/internal/model"
)

// RefreshThreshold は残り有効期間がこれ以下になったときにセッションを更新する閾値。
const RefreshThreshold = 900 * time.Second

// ErrMissingRefreshToken はセッションにリフレッシュトークンがないことを示す。
var ErrMissingRefreshToken = errors.New("session has no refresh token")

// SessionRefresher はIDプロバイダーのセッション更新操作。
type SessionRefresher interface {
	RefreshSession(ctx context.Context, refreshToken string) (*model.Session, error)
}

// RefreshOutcomeKind はMaybeRefreshの結果の種類。
type RefreshOutcomeKind int

const (
	RefreshNotNeeded RefreshOutcomeKind = iota + 1
	RefreshSucceeded
	RefreshFailed
)

func (k RefreshOutcomeKind) String() string {
	switch k {
	case RefreshNotNeeded:
		return "not_needed"
	case RefreshSucceeded:
		return "refreshed"
	case RefreshFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// RefreshOutcome はセッション更新判定の結果。
//
//   - RefreshNotNeeded: TimeUntilExpiryのみ設定
//   - RefreshSucceeded: Sessionに新しいセッション
//   - RefreshFailed: Reasonに原因。呼び出し側は再ログインを求める
type RefreshOutcome struct {
	Kind            RefreshOutcomeKind
	TimeUntilExpiry time.Duration
	Session         *model.Session
	Reason          error
}

// ReauthRequired は再認証が必要かを返す。
func (o RefreshOutcome) ReauthRequired() bool {
	return o.Kind == RefreshFailed
}

// SessionRefreshDecider はセッションの失効時刻から更新の要否を判定し、必要な場合のみ更新する。
// リトライは行わない。
type SessionRefreshDecider struct {
	refresher SessionRefresher
	threshold time.Duration
	now       func() time.Time
	logger    *slog.Logger
}

// NewSessionRefreshDecider はSessionRefreshDeciderを生成する。
func NewSessionRefreshDecider(refresher SessionRefresher, logger *slog.Logger) *SessionRefreshDecider {
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionRefreshDecider{
		refresher: refresher,
		threshold: RefreshThreshold,
		now:       time.Now,
		logger:    logger,
	}
}

// WithClock はテスト用に時計を差し替える。
func (d *SessionRefreshDecider) WithClock(now func() time.Time) *SessionRefreshDecider {
	if now != nil {
		d.now = now
	}
	return d
}

// MaybeRefresh は残り時間が閾値を超えていればネットワーク呼び出しなしにRefreshNotNeededを返す。
// それ以外はIDプロバイダーで更新する。
func (d *SessionRefreshDecider) MaybeRefresh(ctx context.Context, current model.Session) RefreshOutcome {
	remaining := current.TimeUntilExpiry(d.now())
	if remaining > d.threshold {
		return RefreshOutcome{Kind: RefreshNotNeeded, TimeUntilExpiry: remaining}
	}

	if current.RefreshToken == "" {
		return RefreshOutcome{Kind: RefreshFailed, TimeUntilExpiry: remaining, Reason: ErrMissingRefreshToken}
	}

	session, err := d.refresher.RefreshSession(ctx, current.RefreshToken)
	if err != nil {
		d.logger.Warn("session refresh failed",
			slog.String("user_id", current.User.ID),
			slog.String("error", err.Error()),
		)
		return RefreshOutcome{
			Kind:            RefreshFailed,
			TimeUntilExpiry: remaining,
			Reason:          fmt.Errorf("refresh session: %w", err),
		}
	}

	d.logger.Info("session refreshed",
		slog.String("user_id", session.User.ID),
		slog.Time("expires_at", session.ExpiresAt),
	)
	return RefreshOutcome{
		Kind:            RefreshSucceeded,
		TimeUntilExpiry: session.TimeUntilExpiry(d.now()),
		Session:         session,
	}
}
