package integration

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"golang.org/x/time/rate"
	"google.golang.org/api/calendar/v3"
)

// errProviderRejected はトークンエンドポイントが非2xxを返したことを示す。
var errProviderRejected = errors.New("provider rejected token request")

// Token はトークンエンドポイントのレスポンスのうち保存に必要な部分。
type Token struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	RefreshToken string `json:"refresh_token"`
}

// GoogleTokenConfig はGoogle OAuthの設定。
type GoogleTokenConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string

	// テスト用にオーバーライド可能なURL
	AuthURL  string
	TokenURL string

	// RequestsPerSecond はトークンエンドポイント呼び出しの上限。0の場合は制限しない。
	RequestsPerSecond float64
}

// GoogleTokenClient はGoogleのトークンエンドポイントを呼び出す。
// 同意画面URLの生成にはoauth2.Configを使用する。
type GoogleTokenClient struct {
	config     GoogleTokenConfig
	oauth      *oauth2.Config
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewGoogleTokenClient はGoogleTokenClientを生成する。
// httpClientがnilの場合はhttp.DefaultClientを使用する。
func NewGoogleTokenClient(config GoogleTokenConfig, httpClient *http.Client) *GoogleTokenClient {
	endpoint := google.Endpoint
	if config.AuthURL != "" {
		endpoint.AuthURL = config.AuthURL
	}
	if config.TokenURL == "" {
		config.TokenURL = endpoint.TokenURL
	}
	endpoint.TokenURL = config.TokenURL

	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if config.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(config.RequestsPerSecond), 1)
	}

	return &GoogleTokenClient{
		config: config,
		oauth: &oauth2.Config{
			ClientID:     config.ClientID,
			ClientSecret: config.ClientSecret,
			RedirectURL:  config.RedirectURL,
			Endpoint:     endpoint,
			Scopes:       []string{calendar.CalendarReadonlyScope},
		},
		httpClient: httpClient,
		limiter:    limiter,
	}
}

// AuthCodeURL はカレンダー連携の同意画面URLを生成する。
// リフレッシュトークンを毎回受け取るため、access_type=offlineとprompt=consentを付与する。
func (c *GoogleTokenClient) AuthCodeURL(state string) string {
	return c.oauth.AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.SetAuthURLParam("prompt", "consent"),
	)
}

// ExchangeCode は認可コードをトークンに交換する。
func (c *GoogleTokenClient) ExchangeCode(ctx context.Context, code string) (*Token, error) {
	token, err := c.postToken(ctx, url.Values{
		"code":          {code},
		"client_id":     {c.config.ClientID},
		"client_secret": {c.config.ClientSecret},
		"redirect_uri":  {c.config.RedirectURL},
		"grant_type":    {"authorization_code"},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTokenExchangeFailed, err)
	}
	if token.AccessToken == "" {
		return nil, fmt.Errorf("%w: %w", ErrTokenExchangeFailed, ErrNoAccessToken)
	}
	return token, nil
}

// RefreshToken はリフレッシュトークンで新しいアクセストークンを取得する。
func (c *GoogleTokenClient) RefreshToken(ctx context.Context, refreshToken string) (*Token, error) {
	token, err := c.postToken(ctx, url.Values{
		"client_id":     {c.config.ClientID},
		"client_secret": {c.config.ClientSecret},
		"refresh_token": {refreshToken},
		"grant_type":    {"refresh_token"},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTokenRefreshFailed, err)
	}
	if token.AccessToken == "" {
		return nil, fmt.Errorf("%w: %w", ErrTokenRefreshFailed, ErrNoAccessToken)
	}
	return token, nil
}

// postToken はトークンエンドポイントへフォームをPOSTする。
// プロバイダーのエラーボディはエラーに含めるのみで、ブラウザには返さない。
func (c *GoogleTokenClient) postToken(ctx context.Context, data url.Values) (*Token, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("token request throttled: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.TokenURL, strings.NewReader(data.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("token request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read token response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: status %d: %s", errProviderRejected, resp.StatusCode, string(body))
	}

	var token Token
	if err := json.Unmarshal(body, &token); err != nil {
		return nil, fmt.Errorf("failed to parse token response: %w", err)
	}
	return &token, nil
}

// compile-time interface check
var _ TokenProvider = (*GoogleTokenClient)(nil)
