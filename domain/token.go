package domain

import "time"

// Token is a signed, time-bounded assertion binding a bearer to an Identity.
type Token struct {
	ID        string    `json:"id"`
	Subject   string    `json:"sub"`
	Issuer    string    `json:"iss,omitempty"`
	Value     string    `json:"-"`
	IssuedAt  time.Time `json:"iat"`
	ExpiresAt time.Time `json:"exp"`
}

// Expired reports whether the token is past its expiry at the given instant.
func (t *Token) Expired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}
