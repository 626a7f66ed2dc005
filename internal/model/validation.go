package model

// ValidationErrorCode はフィールド単位の入力検証エラーコード。
type ValidationErrorCode string

const (
	ValidationEmailRequired    ValidationErrorCode = "EMAIL_REQUIRED"
	ValidationEmailInvalid     ValidationErrorCode = "EMAIL_INVALID"
	ValidationPasswordRequired ValidationErrorCode = "PASSWORD_REQUIRED"
	ValidationPasswordTooShort ValidationErrorCode = "PASSWORD_TOO_SHORT"
	ValidationPasswordTooLong  ValidationErrorCode = "PASSWORD_TOO_LONG"
	ValidationPasswordWeak     ValidationErrorCode = "PASSWORD_WEAK"
	ValidationPasswordMismatch ValidationErrorCode = "PASSWORD_MISMATCH"
	ValidationNameTooLong      ValidationErrorCode = "NAME_TOO_LONG"
	ValidationTokenRequired    ValidationErrorCode = "TOKEN_REQUIRED"
	ValidationRedirectInvalid  ValidationErrorCode = "REDIRECT_INVALID"
)

// ValidationResult は1リクエスト内で生成・消費される入力検証結果。
// Errorsは検出順に並ぶ。IsValidがtrueの場合のみSanitizedが設定される。
type ValidationResult[T any] struct {
	IsValid   bool
	Errors    []ValidationErrorCode
	Sanitized *T
}
