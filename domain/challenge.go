package domain

import (
	"strings"
	"time"
)

// Challenge is a single-use human-verification puzzle held by the challenge registry.
type Challenge struct {
	ID        string    `json:"id"`
	Answer    string    `json:"answer"`
	IssuedAt  time.Time `json:"issuedAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Expired reports whether the challenge can no longer be answered at now.
func (c *Challenge) Expired(now time.Time) bool {
	return !c.ExpiresAt.IsZero() && !now.Before(c.ExpiresAt)
}

// Matches compares a submitted answer case-insensitively.
func (c *Challenge) Matches(answer string) bool {
	answer = strings.TrimSpace(answer)
	return answer != "" && strings.EqualFold(answer, c.Answer)
}

// IssuedChallenge is what the caller receives: the id and a renderable image, never the answer.
type IssuedChallenge struct {
	ID        string    `json:"captchaId"`
	Image     string    `json:"captchaImage"`
	ExpiresAt time.Time `json:"expiresAt"`
}
