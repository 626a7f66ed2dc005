// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"time"

	"github.com/hitoshi/planner/internal/model"
)

// IntegrationRepository は外部プロバイダー連携行の永続化インターフェース。
// 行は (user_id, provider) で一意。
type IntegrationRepository interface {
	// Find は連携行を取得する。見つからない場合はnilを返す。
	Find(ctx context.Context, userID string, provider model.Provider) (*model.Integration, error)

	// Upsert は連携行を1文で挿入または更新し、保存後の行を返す。
	// 既存行のcreated_atは維持する。RefreshTokenが空の場合は既存のリフレッシュトークンを維持する。
	Upsert(ctx context.Context, integration *model.Integration) (*model.Integration, error)

	// UpdateAccessToken はaccess_token、expires_at、updated_atのみを更新し、更新後の行を返す。
	// 行が存在しない場合はnilを返す。
	UpdateAccessToken(ctx context.Context, userID string, provider model.Provider, accessToken string, expiresAt, updatedAt time.Time) (*model.Integration, error)

	// Delete は連携行を削除する。行が存在しなくてもエラーにしない。
	Delete(ctx context.Context, userID string, provider model.Provider) error
}
