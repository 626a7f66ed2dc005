package integration

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/planner/internal/model"
	"github.com/hitoshi/planner/internal/repository"
)

const (
	// DefaultExpiresIn はプロバイダーがexpires_inを返さない場合の有効期間。
	DefaultExpiresIn = 3600 * time.Second

	// AccessTokenRefreshMargin はAccessTokenが事前更新を行う残り時間。
	AccessTokenRefreshMargin = 5 * time.Minute
)

// TokenProvider はOAuthプロバイダーのトークン操作。
type TokenProvider interface {
	AuthCodeURL(state string) string
	ExchangeCode(ctx context.Context, code string) (*Token, error)
	RefreshToken(ctx context.Context, refreshToken string) (*Token, error)
}

// Recorder はトークン操作の結果を記録する。
type Recorder interface {
	RecordTokenOperation(operation, outcome string)
}

type nopRecorder struct{}

func (nopRecorder) RecordTokenOperation(string, string) {}

// Service はカレンダー連携のトークン交換・更新・保存・切断を提供する。
type Service struct {
	tokens   TokenProvider
	repo     repository.IntegrationRepository
	provider model.Provider
	recorder Recorder
	logger   *slog.Logger
	now      func() time.Time
}

// NewService はGoogleカレンダー連携のServiceを生成する。
func NewService(tokens TokenProvider, repo repository.IntegrationRepository, logger *slog.Logger, recorder Recorder) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if recorder == nil {
		recorder = nopRecorder{}
	}
	return &Service{
		tokens:   tokens,
		repo:     repo,
		provider: model.ProviderGoogleCalendar,
		recorder: recorder,
		logger:   logger,
		now:      time.Now,
	}
}

// WithClock はテスト用に時計を差し替える。
func (s *Service) WithClock(now func() time.Time) *Service {
	if now != nil {
		s.now = now
	}
	return s
}

// AuthCodeURL は同意画面URLを返す。stateにはユーザーIDを載せ、コールバックで受け取る。
func (s *Service) AuthCodeURL(userID string) string {
	return s.tokens.AuthCodeURL(userID)
}

// ExchangeCode は認可コードをトークンに交換し、連携行をアップサートする。
// 既存行がある場合はcreated_atを維持し、プロバイダーがリフレッシュトークンを省略した場合は保存済みの値を維持する。
func (s *Service) ExchangeCode(ctx context.Context, code, userID string) (*model.Integration, error) {
	token, err := s.tokens.ExchangeCode(ctx, code)
	if err != nil {
		s.recorder.RecordTokenOperation("exchange", "provider_error")
		s.logger.Error("token exchange failed",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
		return nil, err
	}

	now := s.now()
	saved, err := s.repo.Upsert(ctx, &model.Integration{
		UserID:       userID,
		Provider:     s.provider,
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		ExpiresAt:    expiresAt(now, token.ExpiresIn),
		CreatedAt:    now,
		UpdatedAt:    now,
	})
	if err != nil {
		s.recorder.RecordTokenOperation("exchange", "storage_error")
		s.logger.Error("failed to store integration",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}

	s.recorder.RecordTokenOperation("exchange", "success")
	s.logger.Info("calendar integration stored",
		slog.String("user_id", userID),
		slog.Bool("has_refresh_token", saved.RefreshToken != ""),
	)
	return saved, nil
}

// RefreshToken は保存済みのリフレッシュトークンでアクセストークンを更新する。
// 失敗時は保存済みの行を変更しない。成功時もリフレッシュトークンは変更しない。
func (s *Service) RefreshToken(ctx context.Context, userID string) (*model.Integration, error) {
	current, err := s.repo.Find(ctx, userID, s.provider)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	if current == nil {
		return nil, ErrIntegrationNotFound
	}
	return s.refresh(ctx, current)
}

func (s *Service) refresh(ctx context.Context, current *model.Integration) (*model.Integration, error) {
	if current.RefreshToken == "" {
		return nil, ErrNoRefreshToken
	}

	token, err := s.tokens.RefreshToken(ctx, current.RefreshToken)
	if err != nil {
		s.recorder.RecordTokenOperation("refresh", "provider_error")
		s.logger.Warn("token refresh failed",
			slog.String("user_id", current.UserID),
			slog.String("error", err.Error()),
		)
		return nil, err
	}

	now := s.now()
	updated, err := s.repo.UpdateAccessToken(ctx, current.UserID, s.provider, token.AccessToken, expiresAt(now, token.ExpiresIn), now)
	if err != nil {
		s.recorder.RecordTokenOperation("refresh", "storage_error")
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	if updated == nil {
		// 更新中に切断された
		return nil, ErrIntegrationNotFound
	}

	s.recorder.RecordTokenOperation("refresh", "success")
	return updated, nil
}

// Disconnect は連携行を削除する。プロバイダー側での取り消しは行わない。
func (s *Service) Disconnect(ctx context.Context, userID string) error {
	if err := s.repo.Delete(ctx, userID, s.provider); err != nil {
		s.recorder.RecordTokenOperation("disconnect", "storage_error")
		return fmt.Errorf("%w: %v", ErrStorage, err)
	}
	s.recorder.RecordTokenOperation("disconnect", "success")
	s.logger.Info("calendar integration deleted", slog.String("user_id", userID))
	return nil
}

// AccessToken は利用可能なアクセストークンを返す。
// 残り時間がAccessTokenRefreshMargin以下の場合は先に更新する。
// 更新に失敗してもトークンがまだ有効であればそのまま返す。
func (s *Service) AccessToken(ctx context.Context, userID string) (string, error) {
	current, err := s.repo.Find(ctx, userID, s.provider)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrStorage, err)
	}
	if current == nil {
		return "", ErrIntegrationNotFound
	}

	now := s.now()
	if !current.ExpiresWithin(now, AccessTokenRefreshMargin) {
		return current.AccessToken, nil
	}

	updated, err := s.refresh(ctx, current)
	if err != nil {
		if current.ExpiresAt.After(now) {
			return current.AccessToken, nil
		}
		return "", err
	}
	return updated.AccessToken, nil
}

func expiresAt(now time.Time, expiresIn int64) time.Time {
	if expiresIn <= 0 {
		return now.Add(DefaultExpiresIn)
	}
	return now.Add(time.Duration(expiresIn) * time.Second)
}
