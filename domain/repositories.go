package domain

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrIdentityNotFound is returned when no identity matches the lookup.
	ErrIdentityNotFound = errors.New("identity not found")
	// ErrStoreUnavailable wraps timeouts and connectivity failures of the backing store.
	ErrStoreUnavailable = errors.New("identity store unavailable")
)

// DuplicateIdentityError reports a violated uniqueness constraint.
type DuplicateIdentityError struct {
	Field string // "email", "handle", "google_id", "apple_id" or "" when unknown
}

func (e *DuplicateIdentityError) Error() string {
	if e.Field == "" {
		return "identity already exists"
	}
	return fmt.Sprintf("identity with this %s already exists", e.Field)
}

// IsDuplicate reports whether err is a uniqueness violation.
func IsDuplicate(err error) bool {
	var dup *DuplicateIdentityError
	return errors.As(err, &dup)
}

// IdentityRepository is the Credential Store. Implementations must enforce the
// uniqueness of handle, case-insensitive email and (provider, subject) at the
// storage level and report violations as *DuplicateIdentityError.
type IdentityRepository interface {
	CreateIdentity(ctx context.Context, identity *Identity) error
	GetIdentityByID(ctx context.Context, id string) (*Identity, error)
	GetIdentityByEmail(ctx context.Context, email string) (*Identity, error)
	GetIdentityByProviderSubject(ctx context.Context, origin Origin, subject string) (*Identity, error)
	// LinkProviderSubject records subject on an identity of the same origin that has none yet.
	LinkProviderSubject(ctx context.Context, id string, origin Origin, subject string) error
	UpdateProfile(ctx context.Context, id string, update ProfileUpdate) (*Identity, error)
	UpdatePasswordHash(ctx context.Context, id, passwordHash string) error
	TouchLastAuthenticated(ctx context.Context, id string, at time.Time) error
	Ping(ctx context.Context) error
}
