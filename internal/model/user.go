package model

import "time"

// User はIDプロバイダーが管理するユーザーの最小限の識別情報を表す。
type User struct {
	ID    string
	Email string
	Name  string
}

// Session はIDプロバイダーが発行したログインセッションを表す。
// アプリケーションはトークンをそのまま保持するのみで、内容を解釈しない。
type Session struct {
	User         User
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

// TimeUntilExpiry はnow時点からセッション失効までの残り時間を返す。
func (s Session) TimeUntilExpiry(now time.Time) time.Duration {
	return s.ExpiresAt.Sub(now)
}
