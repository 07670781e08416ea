package model

import "time"

// TokenSet is the persisted bearer session state.
type TokenSet struct {
	AccessToken      string    `json:"access_token"`
	RefreshToken     string    `json:"refresh_token"`
	UserID           string    `json:"user_id"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}

// HasAccess reports whether an access token is present and unexpired.
func (t *TokenSet) HasAccess(now time.Time) bool {
	return t != nil && t.AccessToken != "" && now.Before(t.AccessExpiresAt)
}

// HasRefresh reports whether the session can still be refreshed.
func (t *TokenSet) HasRefresh(now time.Time) bool {
	return t != nil && t.RefreshToken != "" && now.Before(t.RefreshExpiresAt)
}

// AccessExpiringWithin reports whether the access token expires within d.
func (t *TokenSet) AccessExpiringWithin(now time.Time, d time.Duration) bool {
	if t == nil || t.AccessToken == "" {
		return false
	}
	return t.AccessExpiresAt.Sub(now) <= d
}
