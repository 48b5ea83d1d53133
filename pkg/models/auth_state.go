package models

import "time"

// OAuth2Token is the persisted token set of an OAuth2 connection.
type OAuth2Token struct {
	ConnectionID string    `json:"connection_id"`
	AccessToken  string    `json:"-"`
	RefreshToken string    `json:"-"`
	TokenType    string    `json:"token_type"`
	ExpiresAt    time.Time `json:"expires_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// ExpiredAt reports whether the token must be refreshed at the given time,
// treating tokens inside the skew window as already expired.
func (t *OAuth2Token) ExpiredAt(now time.Time, skew time.Duration) bool {
	if t.ExpiresAt.IsZero() {
		return false
	}

	return !now.Add(skew).Before(t.ExpiresAt)
}

// RateLimitState is the persisted token bucket for one rate limit key.
type RateLimitState struct {
	Key          string    `json:"key"`
	Tokens       float64   `json:"tokens"`
	LastRefillAt time.Time `json:"last_refill_at"`
}
