package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hitoshi/planner/internal/model"
)

// --- モック定義 ---

type mockRefresher struct {
	calls     int
	refreshFn func(ctx context.Context, refreshToken string) (*model.Session, error)
}

func (m *mockRefresher) RefreshSession(ctx context.Context, refreshToken string) (*model.Session, error) {
	m.calls++
	if m.refreshFn != nil {
		return m.refreshFn(ctx, refreshToken)
	}
	return nil, errors.New("not implemented")
}

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestDecider(r SessionRefresher) *SessionRefreshDecider {
	return NewSessionRefreshDecider(r, nil).WithClock(func() time.Time { return testNow })
}

// --- テスト ---

func TestMaybeRefresh_AboveThresholdMakesNoCall(t *testing.T) {
	refresher := &mockRefresher{}
	d := newTestDecider(refresher)

	out := d.MaybeRefresh(context.Background(), model.Session{
		RefreshToken: "r",
		ExpiresAt:    testNow.Add(901 * time.Second),
	})

	if out.Kind != RefreshNotNeeded {
		t.Errorf("kind = %v, want not_needed", out.Kind)
	}
	if out.TimeUntilExpiry != 901*time.Second {
		t.Errorf("timeUntilExpiry = %v, want 901s", out.TimeUntilExpiry)
	}
	if refresher.calls != 0 {
		t.Errorf("refresh calls = %d, want 0", refresher.calls)
	}
}

func TestMaybeRefresh_BelowThresholdRefreshesOnce(t *testing.T) {
	refresher := &mockRefresher{
		refreshFn: func(ctx context.Context, refreshToken string) (*model.Session, error) {
			if refreshToken != "r" {
				t.Errorf("refreshToken = %q, want r", refreshToken)
			}
			return &model.Session{
				User:         model.User{ID: "user-1", Email: "a@example.com", Name: "Alice"},
				AccessToken:  "new",
				RefreshToken: "r2",
				ExpiresAt:    testNow.Add(time.Hour),
			}, nil
		},
	}
	d := newTestDecider(refresher)

	out := d.MaybeRefresh(context.Background(), model.Session{
		RefreshToken: "r",
		ExpiresAt:    testNow.Add(899 * time.Second),
	})

	if out.Kind != RefreshSucceeded {
		t.Fatalf("kind = %v, want refreshed (reason: %v)", out.Kind, out.Reason)
	}
	if refresher.calls != 1 {
		t.Errorf("refresh calls = %d, want 1", refresher.calls)
	}
	if out.Session.User.Name != "Alice" || out.TimeUntilExpiry != time.Hour {
		t.Errorf("session = %+v, timeUntilExpiry = %v", out.Session, out.TimeUntilExpiry)
	}
}

func TestMaybeRefresh_ExactlyAtThresholdRefreshes(t *testing.T) {
	refresher := &mockRefresher{
		refreshFn: func(ctx context.Context, refreshToken string) (*model.Session, error) {
			return &model.Session{ExpiresAt: testNow.Add(time.Hour)}, nil
		},
	}
	d := newTestDecider(refresher)

	d.MaybeRefresh(context.Background(), model.Session{RefreshToken: "r", ExpiresAt: testNow.Add(RefreshThreshold)})

	if refresher.calls != 1 {
		t.Errorf("refresh calls = %d, want 1", refresher.calls)
	}
}

func TestMaybeRefresh_FailureRequiresReauth(t *testing.T) {
	refresher := &mockRefresher{
		refreshFn: func(ctx context.Context, refreshToken string) (*model.Session, error) {
			return nil, ErrIdentityRejected
		},
	}
	d := newTestDecider(refresher)

	out := d.MaybeRefresh(context.Background(), model.Session{RefreshToken: "r", ExpiresAt: testNow.Add(-time.Minute)})

	if out.Kind != RefreshFailed || !out.ReauthRequired() {
		t.Errorf("kind = %v, want failed", out.Kind)
	}
	if !errors.Is(out.Reason, ErrIdentityRejected) {
		t.Errorf("reason = %v, want ErrIdentityRejected", out.Reason)
	}
	if refresher.calls != 1 {
		t.Errorf("refresh calls = %d, want 1 (no retry)", refresher.calls)
	}
}

func TestMaybeRefresh_MissingRefreshTokenFailsWithoutCall(t *testing.T) {
	refresher := &mockRefresher{}
	d := newTestDecider(refresher)

	out := d.MaybeRefresh(context.Background(), model.Session{ExpiresAt: testNow.Add(time.Minute)})

	if out.Kind != RefreshFailed || !errors.Is(out.Reason, ErrMissingRefreshToken) {
		t.Errorf("outcome = %+v, want failed/ErrMissingRefreshToken", out)
	}
	if refresher.calls != 0 {
		t.Errorf("refresh calls = %d, want 0", refresher.calls)
	}
}

func TestRefreshOutcomeKind_String(t *testing.T) {
	tests := map[RefreshOutcomeKind]string{
		RefreshNotNeeded: "not_needed",
		RefreshSucceeded: "refreshed",
		RefreshFailed:    "failed",
		0:                "unknown",
	}
	for k, want := range tests {
		if got := k.String(); got != want {
			t.Errorf("%d.String() = %q, want %q", k, got, want)
		}
	}
}
