package model

import "time"

// Provider は外部連携先のプロバイダー種別を表す。
type Provider string

const (
	// ProviderGoogleCalendar はGoogleカレンダー連携を表す。
	ProviderGoogleCalendar Provider = "google_calendar"
)

// Integration はユーザーと外部プロバイダーの認可情報（連携行）を表す。
// (UserID, Provider) の組で一意に識別される。
type Integration struct {
	ID           string
	UserID       string
	Provider     Provider
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// ExpiresWithin はアクセストークンがnowからd以内に失効するかを返す。
func (i *Integration) ExpiresWithin(now time.Time, d time.Duration) bool {
	return !i.ExpiresAt.After(now.Add(d))
}
