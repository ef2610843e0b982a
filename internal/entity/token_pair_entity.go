package entity

import "time"

// ExpirySafetyMargin treats a token as expired slightly before its real expiry.
const ExpirySafetyMargin = 5 * time.Second

// TokenPair expiries are epoch seconds, as issued by the backend.
type TokenPair struct {
	AccessToken   string `json:"access_token" validate:"required"`
	AccessExpiry  int64  `json:"access_expiration_time" validate:"gt=0"`
	RefreshToken  string `json:"refresh_token" validate:"required"`
	RefreshExpiry int64  `json:"refresh_expiration_time" validate:"gt=0"`
}

// IsExpired reports whether an epoch-second expiry has passed, margin included.
// A zero expiry counts as expired.
func IsExpired(expiry int64, now time.Time) bool {
	if expiry <= 0 {
		return true
	}
	return now.Unix() >= expiry-int64(ExpirySafetyMargin/time.Second)
}

func (p *TokenPair) AccessExpired(now time.Time) bool {
	return p == nil || p.AccessToken == "" || IsExpired(p.AccessExpiry, now)
}

func (p *TokenPair) RefreshExpired(now time.Time) bool {
	return p == nil || p.RefreshToken == "" || IsExpired(p.RefreshExpiry, now)
}
