package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/planner/internal/model"
)

const integrationColumns = `id, user_id, provider, access_token, refresh_token, expires_at, created_at, updated_at`

// PostgresIntegrationRepo はPostgreSQLを使用した連携行リポジトリ。
type PostgresIntegrationRepo struct {
	db *sql.DB
}

// NewPostgresIntegrationRepo はPostgresIntegrationRepoを生成する。
func NewPostgresIntegrationRepo(db *sql.DB) *PostgresIntegrationRepo {
	return &PostgresIntegrationRepo{db: db}
}

// Find は連携行を取得する。見つからない場合はnilを返す。
func (r *PostgresIntegrationRepo) Find(ctx context.Context, userID string, provider model.Provider) (*model.Integration, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+integrationColumns+`
		 FROM oauth_integrations
		 WHERE user_id = $1 AND provider = $2`,
		userID, string(provider),
	)

	integration, err := scanIntegration(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find integration: %w", err)
	}
	return integration, nil
}

// Upsert は INSERT ... ON CONFLICT DO UPDATE で連携行を保存する。
func (r *PostgresIntegrationRepo) Upsert(ctx context.Context, in *model.Integration) (*model.Integration, error) {
	id := in.ID
	if id == "" {
		id = uuid.NewString()
	}

	row := r.db.QueryRowContext(ctx,
		`INSERT INTO oauth_integrations
		   (id, user_id, provider, access_token, refresh_token, expires_at, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (user_id, provider) DO UPDATE SET
		   access_token  = EXCLUDED.access_token,
		   refresh_token = COALESCE(NULLIF(EXCLUDED.refresh_token, ''), oauth_integrations.refresh_token),
		   expires_at    = EXCLUDED.expires_at,
		   updated_at    = EXCLUDED.updated_at
		 RETURNING `+integrationColumns,
		id, in.UserID, string(in.Provider), in.AccessToken, in.RefreshToken,
		in.ExpiresAt, in.CreatedAt, in.UpdatedAt,
	)

	saved, err := scanIntegration(row)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert integration: %w", err)
	}
	return saved, nil
}

// UpdateAccessToken はaccess_token、expires_at、updated_atのみを更新する。
func (r *PostgresIntegrationRepo) UpdateAccessToken(
	ctx context.Context,
	userID string,
	provider model.Provider,
	accessToken string,
	expiresAt, updatedAt time.Time,
) (*model.Integration, error) {
	row := r.db.QueryRowContext(ctx,
		`UPDATE oauth_integrations
		 SET access_token = $3, expires_at = $4, updated_at = $5
		 WHERE user_id = $1 AND provider = $2
		 RETURNING `+integrationColumns,
		userID, string(provider), accessToken, expiresAt, updatedAt,
	)

	updated, err := scanIntegration(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update integration access token: %w", err)
	}
	return updated, nil
}

// Delete は連携行を削除する。
func (r *PostgresIntegrationRepo) Delete(ctx context.Context, userID string, provider model.Provider) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM oauth_integrations WHERE user_id = $1 AND provider = $2`,
		userID, string(provider),
	)
	if err != nil {
		return fmt.Errorf("failed to delete integration: %w", err)
	}
	return nil
}

func scanIntegration(row *sql.Row) (*model.Integration, error) {
	var (
		i        model.Integration
		provider string
	)
	err := row.Scan(
		&i.ID, &i.UserID, &provider, &i.AccessToken, &i.RefreshToken,
		&i.ExpiresAt, &i.CreatedAt, &i.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	i.Provider = model.Provider(provider)
	return &i, nil
}

// compile-time interface check
var _ IntegrationRepository = (*PostgresIntegrationRepo)(nil)
