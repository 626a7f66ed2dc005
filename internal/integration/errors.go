// Package integration は外部カレンダープロバイダーとのOAuth連携のライフサイクルを管理する。
package integration

import "errors"

// 連携ライフサイクルのエラー。呼び出し側はerrors.Isで分類する。
var (
	ErrTokenExchangeFailed = errors.New("token exchange failed")
	ErrNoAccessToken       = errors.New("no access token in provider response")
	ErrIntegrationNotFound = errors.New("integration not found")
	ErrNoRefreshToken      = errors.New("no refresh token stored")
	ErrTokenRefreshFailed  = errors.New("token refresh failed")
	ErrStorage             = errors.New("integration storage failed")
)
