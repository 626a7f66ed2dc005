// Package calendar は連携済みユーザーのGoogleカレンダーから予定を取得する。
package calendar

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/oauth2"
	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

const (
	// DefaultWindow は予定を取得する期間（現在時刻から）。
	DefaultWindow = 7 * 24 * time.Hour

	// DefaultMaxResults は1回に取得する予定の最大件数。
	DefaultMaxResults = 50

	primaryCalendarID = "primary"
)

var (
	// ErrCalendarUnauthorized はプロバイダーがアクセストークンを拒否したことを示す。
	ErrCalendarUnauthorized = errors.New("calendar access token rejected")

	// ErrCalendarUnavailable はカレンダーAPIの呼び出しに失敗したことを示す。
	ErrCalendarUnavailable = errors.New("calendar api unavailable")
)

// AccessTokenSource はユーザーの利用可能なアクセストークンを返す。
// integration.Serviceが実装する。
type AccessTokenSource interface {
	AccessToken(ctx context.Context, userID string) (string, error)
}

// Event はダッシュボードに表示する予定。
type Event struct {
	ID       string    `json:"id"`
	Summary  string    `json:"summary"`
	Location string    `json:"location,omitempty"`
	Start    time.Time `json:"start"`
	End      time.Time `json:"end"`
	AllDay   bool      `json:"all_day"`
	Link     string    `json:"link,omitempty"`
}

// Config はClientの設定。Endpointが空の場合はGoogleの本番エンドポイントを使う。
type Config struct {
	Endpoint   string
	Window     time.Duration
	MaxResults int64
}

// Client はカレンダーAPIクライアント。
type Client struct {
	tokens     AccessTokenSource
	httpClient *http.Client
	cfg        Config
	now        func() time.Time
}

// NewClient はClientを生成する。httpClientにはSSRF対策済みのクライアントを渡す。
func NewClient(tokens AccessTokenSource, httpClient *http.Client, cfg Config) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if cfg.Window <= 0 {
		cfg.Window = DefaultWindow
	}
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = DefaultMaxResults
	}
	return &Client{
		tokens:     tokens,
		httpClient: httpClient,
		cfg:        cfg,
		now:        time.Now,
	}
}

// WithClock はテスト用に時計を差し替える。
func (c *Client) WithClock(now func() time.Time) *Client {
	if now != nil {
		c.now = now
	}
	return c
}

// UpcomingEvents はプライマリカレンダーの直近の予定を開始時刻順に返す。
// アクセストークンの取得・更新エラーはそのまま返す。
func (c *Client) UpcomingEvents(ctx context.Context, userID string) ([]Event, error) {
	accessToken, err := c.tokens.AccessToken(ctx, userID)
	if err != nil {
		return nil, err
	}

	svc, err := c.service(ctx, accessToken)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCalendarUnavailable, err)
	}

	now := c.now()
	res, err := svc.Events.List(primaryCalendarID).
		Context(ctx).
		TimeMin(now.Format(time.RFC3339)).
		TimeMax(now.Add(c.cfg.Window).Format(time.RFC3339)).
		SingleEvents(true).
		OrderBy("startTime").
		MaxResults(c.cfg.MaxResults).
		Do()
	if err != nil {
		var apiErr *googleapi.Error
		if errors.As(err, &apiErr) && apiErr.Code == http.StatusUnauthorized {
			return nil, ErrCalendarUnauthorized
		}
		return nil, fmt.Errorf("%w: %v", ErrCalendarUnavailable, err)
	}

	events := make([]Event, 0, len(res.Items))
	for _, item := range res.Items {
		if item.Status == "cancelled" {
			continue
		}
		events = append(events, toEvent(item))
	}
	return events, nil
}

func (c *Client) service(ctx context.Context, accessToken string) (*gcal.Service, error) {
	client := &http.Client{
		Timeout: c.httpClient.Timeout,
		Transport: &oauth2.Transport{
			Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken, TokenType: "Bearer"}),
			Base:   c.httpClient.Transport,
		},
	}

	opts := []option.ClientOption{option.WithHTTPClient(client)}
	if c.cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(c.cfg.Endpoint))
	}
	return gcal.NewService(ctx, opts...)
}

func toEvent(item *gcal.Event) Event {
	ev := Event{
		ID:       item.Id,
		Summary:  item.Summary,
		Location: item.Location,
		Link:     item.HtmlLink,
	}
	ev.Start, ev.AllDay = parseEventTime(item.Start)
	ev.End, _ = parseEventTime(item.End)
	return ev
}

// parseEventTime は日時指定または終日（日付のみ）の予定時刻を解釈する。
func parseEventTime(t *gcal.EventDateTime) (time.Time, bool) {
	if t == nil {
		return time.Time{}, false
	}
	if t.DateTime != "" {
		parsed, err := time.Parse(time.RFC3339, t.DateTime)
		if err == nil {
			return parsed, false
		}
	}
	if t.Date != "" {
		parsed, err := time.Parse(time.DateOnly, t.Date)
		if err == nil {
			return parsed, true
		}
	}
	return time.Time{}, false
}
