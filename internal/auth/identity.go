// Package auth はIDプロバイダーとのセッション連携を提供する。
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/supabase-community/gotrue-go"
	"github.com/supabase-community/gotrue-go/types"

	"github.com/hitoshi/planner/internal/model"
)

// IDプロバイダー呼び出しのエラー。
var (
	// ErrIdentityRejected はIDプロバイダーが4xxでリクエストを拒否したことを示す。
	ErrIdentityRejected = errors.New("identity provider rejected request")
	// ErrIdentityUnavailable はIDプロバイダーへの到達失敗または5xx応答を示す。
	ErrIdentityUnavailable = errors.New("identity provider unavailable")
)

// IdentityConfig はIDプロバイダー（GoTrue互換API）の設定。
type IdentityConfig struct {
	BaseURL string // 例: https://xyz.supabase.co
	APIKey  string // anonキー
}

// IdentityClient はgotrue-goでGoTrue互換のREST APIを呼び出すクライアント。
// 呼び出しごとにcontextをHTTPリクエストへ結び付け、エラーをErrIdentityRejected/ErrIdentityUnavailableに分類する。
type IdentityClient struct {
	api        gotrue.Client
	apiKey     string
	httpClient *http.Client
	now        func() time.Time
}

// NewIdentityClient はIdentityClientを生成する。
// httpClientがnilの場合はhttp.DefaultClientを使用する。
func NewIdentityClient(config IdentityConfig, httpClient *http.Client) *IdentityClient {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	base := strings.TrimRight(config.BaseURL, "/") + "/auth/v1"
	return &IdentityClient{
		api:        gotrue.New("", config.APIKey).WithCustomGoTrueURL(base),
		apiKey:     config.APIKey,
		httpClient: httpClient,
		now:        time.Now,
	}
}

// RefreshSession はリフレッシュトークンで新しいセッションを取得する。
func (c *IdentityClient) RefreshSession(ctx context.Context, refreshToken string) (*model.Session, error) {
	resp, err := c.bind(ctx, nil).RefreshToken(refreshToken)
	if err != nil {
		return nil, classifyIdentityError(err)
	}
	if resp.AccessToken == "" {
		return nil, fmt.Errorf("%w: empty access token in refresh response", ErrIdentityRejected)
	}

	expiresAt := time.Unix(resp.ExpiresAt, 0)
	if resp.ExpiresAt == 0 {
		expiresAt = c.now().Add(time.Duration(resp.ExpiresIn) * time.Second)
	}

	return &model.Session{
		User:         toUser(resp.User),
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		ExpiresAt:    expiresAt,
	}, nil
}

// SignUp はメールアドレスとパスワードで新規ユーザーを登録する。
// 確認メールの送信はIDプロバイダーが行う。
func (c *IdentityClient) SignUp(ctx context.Context, email, password, name string) (*model.User, error) {
	req := types.SignupRequest{Email: email, Password: password}
	if name != "" {
		req.Data = map[string]interface{}{"name": name}
	}

	resp, err := c.bind(ctx, nil).Signup(req)
	if err != nil {
		return nil, classifyIdentityError(err)
	}
	user := toUser(resp.User)
	return &user, nil
}

// SendPasswordRecovery はパスワード再設定メールを送信する。
// redirect_toはGoTrueがクエリパラメータで受け取る。
func (c *IdentityClient) SendPasswordRecovery(ctx context.Context, email, redirectTo string) error {
	var query url.Values
	if redirectTo != "" {
		query = url.Values{"redirect_to": {redirectTo}}
	}
	if err := c.bind(ctx, query).Recover(types.RecoverRequest{Email: email}); err != nil {
		return classifyIdentityError(err)
	}
	return nil
}

// UpdatePassword はリカバリーセッションのアクセストークンでパスワードを更新する。
func (c *IdentityClient) UpdatePassword(ctx context.Context, accessToken, newPassword string) error {
	_, err := c.bind(ctx, nil).WithToken(accessToken).UpdateUser(types.UpdateUserRequest{Password: &newPassword})
	if err != nil {
		return classifyIdentityError(err)
	}
	return nil
}

// bind はctxとqueryを付与するトランスポートを持つクライアントのコピーを返す。
func (c *IdentityClient) bind(ctx context.Context, query url.Values) gotrue.Client {
	base := c.httpClient.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	return c.api.WithClient(http.Client{
		Transport: &boundTransport{ctx: ctx, base: base, apiKey: c.apiKey, query: query},
		Timeout:   c.httpClient.Timeout,
	})
}

// boundTransport はリクエストをctxに結び付け、Authorizationがなければanonキーを設定する。
type boundTransport struct {
	ctx    context.Context
	base   http.RoundTripper
	apiKey string
	query  url.Values
}

func (t *boundTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	r := req.Clone(t.ctx)
	if len(t.query) > 0 {
		q := r.URL.Query()
		for k, vs := range t.query {
			for _, v := range vs {
				q.Add(k, v)
			}
		}
		r.URL.RawQuery = q.Encode()
	}
	if r.Header.Get("Authorization") == "" {
		r.Header.Set("Authorization", "Bearer "+t.apiKey)
	}
	return t.base.RoundTrip(r)
}

// classifyIdentityError はgotrue-goのエラーを分類する。
// gotrue-goは非2xx応答を "response status code %d: body" 形式で返す。
func classifyIdentityError(err error) error {
	var status int
	if _, scanErr := fmt.Sscanf(err.Error(), "response status code %d", &status); scanErr == nil {
		if status >= 500 {
			return fmt.Errorf("%w: %v", ErrIdentityUnavailable, err)
		}
		return fmt.Errorf("%w: %v", ErrIdentityRejected, err)
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return fmt.Errorf("%w: %w", ErrIdentityUnavailable, err)
	}
	if errors.Is(err, types.ErrInvalidTokenRequest) {
		return fmt.Errorf("%w: %v", ErrIdentityRejected, err)
	}
	return fmt.Errorf("failed to parse identity response: %w", err)
}

func toUser(u types.User) model.User {
	name, _ := u.UserMetadata["name"].(string)
	if name == "" {
		name, _ = u.UserMetadata["full_name"].(string)
	}
	return model.User{ID: u.ID.String(), Email: u.Email, Name: name}
}
