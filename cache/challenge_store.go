package cache

import (
	"context"
	"errors"

	"github.com/pilab-dev/shadow-auth/domain"
)

// ErrStoreUnavailable is returned when a remote challenge store cannot be reached.
var ErrStoreUnavailable = errors.New("challenge store unavailable")

// ChallengeStore holds pending challenges keyed by challenge id.
//
// Take must remove the entry and return it in one atomic step, so two
// concurrent callers can never both observe the same entry. Expired entries
// are never returned, whether or not they have been swept yet.
type ChallengeStore interface {
	Put(ctx context.Context, entry *domain.Challenge) error
	Take(ctx context.Context, id string) (*domain.Challenge, bool, error)
	Count(ctx context.Context) int
	Close() error
}
