package services

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"

	"github.com/pilab-dev/shadow-auth/cache"
	"github.com/pilab-dev/shadow-auth/domain"
	"github.com/pilab-dev/shadow-auth/internal/metrics"
	"github.com/rs/zerolog/log"
)

// DefaultChallengeTTL is how long an unanswered challenge stays verifiable.
const DefaultChallengeTTL = 5 * time.Minute

// ChallengeService is the challenge registry: it issues captcha challenges
// and consumes them on the first verification attempt.
type ChallengeService struct {
	store    cache.ChallengeStore
	renderer ChallengeRenderer
	ttl      time.Duration
	now      func() time.Time
}

// NewChallengeService creates a new ChallengeService.
func NewChallengeService(store cache.ChallengeStore, renderer ChallengeRenderer, ttl time.Duration) *ChallengeService {
	if ttl <= 0 {
		ttl = DefaultChallengeTTL
	}
	return &ChallengeService{
		store:    store,
		renderer: renderer,
		ttl:      ttl,
		now:      time.Now,
	}
}

// newChallengeID combines a nanosecond clock reading with 64 random bits.
func newChallengeID(now time.Time) (string, error) {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	return strconv.FormatInt(now.UnixNano(), 36) + "-" + hex.EncodeToString(b[:]), nil
}

// Issue renders a new challenge, stores its answer and returns the id and image.
func (s *ChallengeService) Issue(ctx context.Context) (*domain.IssuedChallenge, error) {
	answer, image, err := s.renderer.Render()
	if err != nil {
		return nil, fmt.Errorf("failed to render challenge: %w", err)
	}

	now := s.now()
	id, err := newChallengeID(now)
	if err != nil {
		return nil, err
	}

	challenge := &domain.Challenge{
		ID:        id,
		Answer:    answer,
		IssuedAt:  now,
		ExpiresAt: now.Add(s.ttl),
	}
	if err := s.store.Put(ctx, challenge); err != nil {
		return nil, fmt.Errorf("failed to store challenge: %w", err)
	}

	metrics.ChallengesIssuedTotal.Inc()
	log.Debug().Str("challengeId", id).Msg("challenge issued")

	return &domain.IssuedChallenge{
		ID:        id,
		Image:     image,
		ExpiresAt: challenge.ExpiresAt,
	}, nil
}

// Verify consumes the challenge and reports whether answer matched.
// The entry is removed whether or not the answer is right; an unknown,
// consumed or expired id yields false. An error means the store failed.
func (s *ChallengeService) Verify(ctx context.Context, id, answer string) (bool, error) {
	if id == "" {
		metrics.ChallengeVerificationsTotal.WithLabelValues(metrics.ResultMissing).Inc()
		return false, nil
	}

	challenge, ok, err := s.store.Take(ctx, id)
	if err != nil {
		return false, fmt.Errorf("failed to take challenge: %w", err)
	}
	if !ok || challenge.Expired(s.now()) {
		metrics.ChallengeVerificationsTotal.WithLabelValues(metrics.ResultMissing).Inc()
		return false, nil
	}

	if !challenge.Matches(answer) {
		metrics.ChallengeVerificationsTotal.WithLabelValues(metrics.ResultMismatch).Inc()
		return false, nil
	}

	metrics.ChallengeVerificationsTotal.WithLabelValues(metrics.ResultOK).Inc()
	return true, nil
}

// Pending returns the number of challenges waiting for an answer.
func (s *ChallengeService) Pending(ctx context.Context) int {
	return s.store.Count(ctx)
}
