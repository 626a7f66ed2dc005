// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, rate_limit, upstream, storage, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// エラーカテゴリ
const (
	CategoryValidation = "validation"
	CategoryAuth       = "auth"
	CategoryRateLimit  = "rate_limit"
	CategoryUpstream   = "upstream"
	CategoryStorage    = "storage"
	CategorySystem     = "system"
)

// 定義済みエラーコード
const (
	ErrCodeBlockedAgent        = "BLOCKED_USER_AGENT"
	ErrCodeBlockedIP           = "BLOCKED_IP"
	ErrCodeCORSViolation       = "CORS_VIOLATION"
	ErrCodeRateLimitExceeded   = "RATE_LIMIT_EXCEEDED"
	ErrCodeUnauthorized        = "UNAUTHORIZED"
	ErrCodeSessionExpired      = "SESSION_EXPIRED"
	ErrCodeValidationFailed    = "VALIDATION_FAILED"
	ErrCodeIntegrationNotFound = "INTEGRATION_NOT_FOUND"
	ErrCodeNoRefreshToken      = "NO_REFRESH_TOKEN"
	ErrCodeTokenRefreshFailed  = "TOKEN_REFRESH_FAILED"
	ErrCodeUpstreamFailed      = "UPSTREAM_FAILED"
	ErrCodeStorageFailed       = "STORAGE_FAILED"
	ErrCodeInternal            = "INTERNAL_ERROR"
)

// NewBlockedAgentError はブロック対象のUser-Agentからのリクエストに対するエラーを生成する。
func NewBlockedAgentError() *APIError {
	return &APIError{
		Code:     ErrCodeBlockedAgent,
		Message:  "自動化クライアントからのアクセスは許可されていません。",
		Category: CategoryAuth,
		Action:   "ブラウザからアクセスしてください。",
	}
}

// NewBlockedIPError はブロック対象IPからのリクエストに対するエラーを生成する。
func NewBlockedIPError() *APIError {
	return &APIError{
		Code:     ErrCodeBlockedIP,
		Message:  "このIPアドレスからのアクセスはブロックされています。",
		Category: CategoryAuth,
		Action:   "管理者にお問い合わせください。",
	}
}

// NewCORSViolationError は許可されていないオリジンからのAPIリクエストに対するエラーを生成する。
func NewCORSViolationError(origin string) *APIError {
	return &APIError{
		Code:     ErrCodeCORSViolation,
		Message:  fmt.Sprintf("許可されていないオリジンです: %s", origin),
		Category: CategoryAuth,
		Action:   "許可されたドメインからアクセスしてください。",
	}
}

// NewRateLimitError はレート制限超過エラーを生成する。
func NewRateLimitError() *APIError {
	return &APIError{
		Code:     ErrCodeRateLimitExceeded,
		Message:  "リクエストが多すぎます。",
		Category: CategoryRateLimit,
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewUnauthorizedError は未認証エラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "認証が必要です。",
		Category: CategoryAuth,
		Action:   "ログインし直してください。",
	}
}

// NewSessionExpiredError はセッション更新に失敗し再認証が必要な場合のエラーを生成する。
func NewSessionExpiredError() *APIError {
	return &APIError{
		Code:     ErrCodeSessionExpired,
		Message:  "セッションの有効期限が切れました。",
		Category: CategoryAuth,
		Action:   "再度ログインしてください。",
	}
}

// NewValidationError は入力値検証エラーを生成する。
func NewValidationError() *APIError {
	return &APIError{
		Code:     ErrCodeValidationFailed,
		Message:  "入力内容に誤りがあります。",
		Category: CategoryValidation,
		Action:   "エラーのある項目を修正してください。",
	}
}

// NewIntegrationNotFoundError はカレンダー連携が存在しない場合のエラーを生成する。
func NewIntegrationNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeIntegrationNotFound,
		Message:  "Googleカレンダーが連携されていません。",
		Category: CategoryValidation,
		Action:   "設定画面からGoogleカレンダーを連携してください。",
	}
}

// NewNoRefreshTokenError はリフレッシュトークンが保存されていない場合のエラーを生成する。
func NewNoRefreshTokenError() *APIError {
	return &APIError{
		Code:     ErrCodeNoRefreshToken,
		Message:  "リフレッシュトークンがありません。",
		Category: CategoryUpstream,
		Action:   "Googleカレンダーを再連携してください。",
	}
}

// NewTokenRefreshFailedError はプロバイダーがトークン更新を拒否した場合のエラーを生成する。
func NewTokenRefreshFailedError() *APIError {
	return &APIError{
		Code:     ErrCodeTokenRefreshFailed,
		Message:  "アクセストークンの更新に失敗しました。",
		Category: CategoryUpstream,
		Action:   "Googleカレンダーを再連携してください。",
	}
}

// NewUpstreamError は外部プロバイダー呼び出しの失敗を表すエラーを生成する。
// プロバイダーのレスポンス本文は含めない。
func NewUpstreamError() *APIError {
	return &APIError{
		Code:     ErrCodeUpstreamFailed,
		Message:  "外部サービスとの通信に失敗しました。",
		Category: CategoryUpstream,
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewStorageError は永続化の失敗を表すエラーを生成する。
func NewStorageError() *APIError {
	return &APIError{
		Code:     ErrCodeStorageFailed,
		Message:  "データの保存に失敗しました。",
		Category: CategoryStorage,
		Action:   "しばらく待ってから再度お試しください。",
	}
}
