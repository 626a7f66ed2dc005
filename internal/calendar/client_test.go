package calendar

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

type stubTokens struct {
	token string
	err   error
}

func (s stubTokens) AccessToken(ctx context.Context, userID string) (string, error) {
	return s.token, s.err
}

func newTestClient(t *testing.T, tokens AccessTokenSource, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	return NewClient(tokens, srv.Client(), Config{Endpoint: srv.URL + "/calendar/v3/"}).
		WithClock(func() time.Time { return now })
}

func TestClient_UpcomingEvents(t *testing.T) {
	client := newTestClient(t, stubTokens{token: "access-123"}, func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/calendars/primary/events") {
			t.Errorf("path = %q", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer access-123" {
			t.Errorf("Authorization = %q", got)
		}
		q := r.URL.Query()
		if q.Get("singleEvents") != "true" || q.Get("orderBy") != "startTime" {
			t.Errorf("query = %v", q)
		}
		if q.Get("timeMin") != "2026-03-02T09:00:00Z" || q.Get("timeMax") != "2026-03-09T09:00:00Z" {
			t.Errorf("time range = %s..%s", q.Get("timeMin"), q.Get("timeMax"))
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"items": []map[string]any{
				{
					"id":       "ev1",
					"summary":  "Standup",
					"status":   "confirmed",
					"htmlLink": "https://calendar.google.com/event?eid=1",
					"start":    map[string]string{"dateTime": "2026-03-02T10:00:00+09:00"},
					"end":      map[string]string{"dateTime": "2026-03-02T10:15:00+09:00"},
				},
				{
					"id":      "ev2",
					"summary": "Holiday",
					"start":   map[string]string{"date": "2026-03-03"},
					"end":     map[string]string{"date": "2026-03-04"},
				},
				{
					"id":     "ev3",
					"status": "cancelled",
				},
			},
		})
	})

	events, err := client.UpcomingEvents(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("len(events) = %d, want 2 (cancelled excluded)", len(events))
	}

	if events[0].ID != "ev1" || events[0].AllDay {
		t.Errorf("events[0] = %+v", events[0])
	}
	if want := time.Date(2026, 3, 2, 1, 0, 0, 0, time.UTC); !events[0].Start.Equal(want) {
		t.Errorf("start = %v, want %v", events[0].Start, want)
	}
	if !events[1].AllDay {
		t.Error("date-only event should be all day")
	}
	if want := time.Date(2026, 3, 3, 0, 0, 0, 0, time.UTC); !events[1].Start.Equal(want) {
		t.Errorf("all-day start = %v, want %v", events[1].Start, want)
	}
}

func TestClient_UpcomingEvents_Errors(t *testing.T) {
	tokenErr := errors.New("integration not found")

	tests := []struct {
		name    string
		tokens  stubTokens
		status  int
		wantErr error
	}{
		{"token source error is returned as is", stubTokens{err: tokenErr}, http.StatusOK, tokenErr},
		{"401 from api", stubTokens{token: "t"}, http.StatusUnauthorized, ErrCalendarUnauthorized},
		{"500 from api", stubTokens{token: "t"}, http.StatusInternalServerError, ErrCalendarUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, tt.tokens, func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				w.Write([]byte(`{"error":{"message":"request failed"}}`))
			})

			_, err := client.UpcomingEvents(context.Background(), "user-1")
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}
