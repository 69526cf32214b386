package services_test

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/pilab-dev/shadow-auth/cache"
	"github.com/pilab-dev/shadow-auth/domain"
	serrors "github.com/pilab-dev/shadow-auth/errors"
	"github.com/pilab-dev/shadow-auth/internal/auth"
	"github.com/pilab-dev/shadow-auth/internal/federation"
	"github.com/pilab-dev/shadow-auth/services"
)

const (
	testAnswer   = "AbC123"
	testClientID = "client-1.apps.googleusercontent.com"
)

// memoryRepo is an in-memory IdentityRepository enforcing the same uniqueness
// rules as the MongoDB indexes.
type memoryRepo struct {
	mu          sync.Mutex
	identities  map[string]*domain.Identity
	seq         int
	unavailable bool
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{identities: make(map[string]*domain.Identity)}
}

func (r *memoryRepo) down() error {
	if r.unavailable {
		return fmt.Errorf("%w: connection refused", domain.ErrStoreUnavailable)
	}
	return nil
}

func (r *memoryRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.identities)
}

func (r *memoryRepo) CreateIdentity(_ context.Context, identity *domain.Identity) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.down(); err != nil {
		return err
	}

	for _, existing := range r.identities {
		switch {
		case strings.EqualFold(existing.Email, identity.Email):
			return &domain.DuplicateIdentityError{Field: "email"}
		case existing.Handle == identity.Handle:
			return &domain.DuplicateIdentityError{Field: "handle"}
		case identity.GoogleID != "" && existing.GoogleID == identity.GoogleID:
			return &domain.DuplicateIdentityError{Field: "google_id"}
		case identity.AppleID != "" && existing.AppleID == identity.AppleID:
			return &domain.DuplicateIdentityError{Field: "apple_id"}
		}
	}

	if identity.ID == "" {
		r.seq++
		identity.ID = fmt.Sprintf("id-%d", r.seq)
	}
	c := *identity
	r.identities[c.ID] = &c
	return nil
}

func (r *memoryRepo) find(match func(*domain.Identity) bool) (*domain.Identity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.down(); err != nil {
		return nil, err
	}
	for _, identity := range r.identities {
		if match(identity) {
			c := *identity
			return &c, nil
		}
	}
	return nil, domain.ErrIdentityNotFound
}

func (r *memoryRepo) GetIdentityByID(_ context.Context, id string) (*domain.Identity, error) {
	return r.find(func(i *domain.Identity) bool { return i.ID == id })
}

func (r *memoryRepo) GetIdentityByEmail(_ context.Context, email string) (*domain.Identity, error) {
	return r.find(func(i *domain.Identity) bool { return strings.EqualFold(i.Email, email) })
}

func (r *memoryRepo) GetIdentityByProviderSubject(_ context.Context, origin domain.Origin, subject string) (*domain.Identity, error) {
	return r.find(func(i *domain.Identity) bool {
		switch origin {
		case domain.OriginGoogle:
			return i.GoogleID == subject
		case domain.OriginApple:
			return i.AppleID == subject
		}
		return false
	})
}

func (r *memoryRepo) LinkProviderSubject(_ context.Context, id string, origin domain.Origin, subject string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	identity, ok := r.identities[id]
	if !ok {
		return domain.ErrIdentityNotFound
	}
	if identity.Origin != origin || identity.ProviderSubject() != "" {
		return &domain.DuplicateIdentityError{Field: string(origin) + "_id"}
	}
	switch origin {
	case domain.OriginGoogle:
		identity.GoogleID = subject
	case domain.OriginApple:
		identity.AppleID = subject
	}
	return nil
}

func (r *memoryRepo) UpdateProfile(_ context.Context, id string, update domain.ProfileUpdate) (*domain.Identity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	identity, ok := r.identities[id]
	if !ok {
		return nil, domain.ErrIdentityNotFound
	}
	if update.DisplayName != nil {
		identity.DisplayName = *update.DisplayName
	}
	if update.AvatarURL != nil {
		identity.AvatarURL = *update.AvatarURL
	}
	if update.Location != nil {
		identity.Location = *update.Location
	}
	c := *identity
	return &c, nil
}

func (r *memoryRepo) UpdatePasswordHash(_ context.Context, id, passwordHash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	identity, ok := r.identities[id]
	if !ok || identity.Origin != domain.OriginLocal {
		return domain.ErrIdentityNotFound
	}
	identity.PasswordHash = passwordHash
	return nil
}

func (r *memoryRepo) TouchLastAuthenticated(_ context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	identity, ok := r.identities[id]
	if !ok {
		return domain.ErrIdentityNotFound
	}
	identity.LastAuthenticatedAt = &at
	return nil
}

func (r *memoryRepo) Ping(context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.down()
}

type fixedRenderer struct{}

func (fixedRenderer) Render() (string, string, error) {
	return testAnswer, "data:image/png;base64,AAAA", nil
}

type stubVerifier struct {
	err error
}

func (s stubVerifier) Verify(context.Context, federation.Assertion) (*federation.Claim, error) {
	return nil, s.err
}

type fixture struct {
	svc    *services.AuthService
	repo   *memoryRepo
	tokens *services.TokenService
	google *rsa.PrivateKey
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	store := cache.NewMemoryChallengeStore(time.Minute)
	t.Cleanup(func() { _ = store.Close() })

	tokens, err := services.NewTokenService(strings.Repeat("k", services.MinSecretLength), "shadow-auth")
	require.NoError(t, err)

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	google, err := federation.NewGoogleVerifierWithKeySet(
		federation.GoogleConfig{ClientID: testClientID},
		&oidc.StaticKeySet{PublicKeys: []crypto.PublicKey{&key.PublicKey}},
	)
	require.NoError(t, err)

	verifier := federation.NewVerifier(time.Second)
	verifier.Register(domain.OriginGoogle, google)
	verifier.Register(domain.OriginApple, federation.NewAppleVerifier())

	repo := newMemoryRepo()
	svc := services.NewAuthService(
		repo,
		services.NewChallengeService(store, fixedRenderer{}, time.Minute),
		auth.NewBcryptPasswordHasher(bcrypt.MinCost),
		tokens,
		verifier,
		services.AuthConfig{},
	)

	return &fixture{svc: svc, repo: repo, tokens: tokens, google: key}
}

func (f *fixture) challenge(t *testing.T) string {
	t.Helper()
	issued, err := f.svc.IssueChallenge(context.Background())
	require.NoError(t, err)
	return issued.ID
}

func (f *fixture) register(t *testing.T, handle, email, password string) (*services.AuthResult, error) {
	t.Helper()
	return f.svc.Register(context.Background(), services.RegisterInput{
		Handle:          handle,
		Email:           email,
		Password:        password,
		Location:        "NYC",
		ChallengeAnswer: testAnswer,
		ChallengeID:     f.challenge(t),
	})
}

func (f *fixture) login(t *testing.T, email, password string) (*services.AuthResult, error) {
	t.Helper()
	return f.svc.Login(context.Background(), services.LoginInput{
		Email:           email,
		Password:        password,
		ChallengeAnswer: testAnswer,
		ChallengeID:     f.challenge(t),
	})
}

func (f *fixture) googleToken(t *testing.T, audience, subject, email string) string {
	t.Helper()
	now := time.Now()
	raw, err := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.MapClaims{
		"iss":            federation.GoogleIssuer,
		"aud":            audience,
		"sub":            subject,
		"email":          email,
		"email_verified": true,
		"name":           "Alice Liddell",
		"picture":        "https://example.com/a.png",
		"iat":            now.Unix(),
		"exp":            now.Add(time.Hour).Unix(),
	}).SignedString(f.google)
	require.NoError(t, err)
	return raw
}

func TestRegister_ThenReplayChallenge(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	challengeID := f.challenge(t)
	in := services.RegisterInput{
		Handle:          "alice",
		Email:           "a@x.com",
		Password:        "secret1",
		Location:        "NYC",
		ChallengeAnswer: testAnswer,
		ChallengeID:     challengeID,
	}

	res, err := f.svc.Register(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, domain.OriginLocal, res.Identity.Origin)
	assert.Empty(t, res.Identity.PasswordHash)
	assert.NotNil(t, res.Identity.LastAuthenticatedAt)

	token, err := f.tokens.Verify(res.Token.Value)
	require.NoError(t, err)
	assert.Equal(t, res.Identity.ID, token.Subject)
	assert.Equal(t, services.DefaultLocalTokenTTL, token.ExpiresAt.Sub(token.IssuedAt))

	stored, err := f.repo.GetIdentityByEmail(ctx, "a@x.com")
	require.NoError(t, err)
	assert.NotEqual(t, "secret1", stored.PasswordHash)
	assert.Equal(t, "NYC", stored.Location)

	in.Handle, in.Email = "bob", "b@x.com"
	_, err = f.svc.Register(ctx, in)
	assert.ErrorIs(t, err, serrors.ErrInvalidChallenge)
	assert.Equal(t, 1, f.repo.count())
}

func TestRegister_DuplicateEmail(t *testing.T) {
	f := newFixture(t)

	_, err := f.register(t, "alice", "a@x.com", "secret1")
	require.NoError(t, err)

	_, err = f.register(t, "alice2", "A@X.com", "secret2")
	assert.ErrorIs(t, err, serrors.ErrAccountExists)

	_, err = f.register(t, "alice", "other@x.com", "secret2")
	assert.ErrorIs(t, err, serrors.ErrAccountExists)
	assert.Equal(t, 1, f.repo.count())
}

func TestRegister_WrongChallengeCreatesNothing(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	challengeID := f.challenge(t)
	in := services.RegisterInput{
		Handle: "alice", Email: "a@x.com", Password: "secret1", Location: "NYC",
		ChallengeAnswer: "wrong", ChallengeID: challengeID,
	}
	_, err := f.svc.Register(ctx, in)
	assert.ErrorIs(t, err, serrors.ErrInvalidChallenge)
	assert.Equal(t, 0, f.repo.count())

	// The failed attempt consumed the challenge.
	in.ChallengeAnswer = testAnswer
	_, err = f.svc.Register(ctx, in)
	assert.ErrorIs(t, err, serrors.ErrInvalidChallenge)
}

func TestRegister_InvalidInputKeepsChallenge(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	challengeID := f.challenge(t)
	in := services.RegisterInput{
		Handle: "alice", Email: "not-an-email", Password: "12345", Location: "NYC",
		ChallengeAnswer: testAnswer, ChallengeID: challengeID,
	}
	_, err := f.svc.Register(ctx, in)
	require.ErrorIs(t, err, serrors.ErrInvalidInput)

	authErr := serrors.From(err)
	fields := make([]string, 0, len(authErr.Fields))
	for _, fe := range authErr.Fields {
		fields = append(fields, fe.Field)
	}
	assert.ElementsMatch(t, []string{"email", "password"}, fields)

	in.Email, in.Password = "a@x.com", "secret1"
	_, err = f.svc.Register(ctx, in)
	assert.NoError(t, err)
}

func TestRegister_ConcurrentSameEmail(t *testing.T) {
	f := newFixture(t)

	const n = 8
	ids := make([]string, n)
	for i := range ids {
		ids[i] = f.challenge(t)
	}

	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = f.svc.Register(context.Background(), services.RegisterInput{
				Handle:          fmt.Sprintf("user%d", i),
				Email:           "same@x.com",
				Password:        "secret1",
				Location:        "NYC",
				ChallengeAnswer: testAnswer,
				ChallengeID:     ids[i],
			})
		}()
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, serrors.ErrAccountExists)
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 1, f.repo.count())
}

func TestRegister_StoreUnavailable(t *testing.T) {
	f := newFixture(t)
	f.repo.unavailable = true

	_, err := f.register(t, "alice", "a@x.com", "secret1")
	assert.ErrorIs(t, err, serrors.ErrServiceUnavailable)
	assert.True(t, serrors.From(err).Retryable)
}

// downChallengeStore behaves like a remote challenge store that cannot be reached.
type downChallengeStore struct{}

func (downChallengeStore) Put(context.Context, *domain.Challenge) error {
	return fmt.Errorf("%w: dial tcp: connection refused", cache.ErrStoreUnavailable)
}

func (downChallengeStore) Take(context.Context, string) (*domain.Challenge, bool, error) {
	return nil, false, fmt.Errorf("%w: dial tcp: connection refused", cache.ErrStoreUnavailable)
}

func (downChallengeStore) Count(context.Context) int { return 0 }
func (downChallengeStore) Close() error              { return nil }

func TestChallengeStoreUnavailable(t *testing.T) {
	tokens, err := services.NewTokenService(strings.Repeat("k", services.MinSecretLength), "shadow-auth")
	require.NoError(t, err)
	svc := services.NewAuthService(
		newMemoryRepo(),
		services.NewChallengeService(downChallengeStore{}, fixedRenderer{}, time.Minute),
		auth.NewBcryptPasswordHasher(bcrypt.MinCost),
		tokens,
		federation.NewVerifier(time.Second),
		services.AuthConfig{},
	)

	_, err = svc.IssueChallenge(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, serrors.ErrServiceUnavailable)
	assert.True(t, serrors.From(err).Retryable)

	_, err = svc.Login(context.Background(), services.LoginInput{
		Email:           "a@x.com",
		Password:        "secret1",
		ChallengeAnswer: testAnswer,
		ChallengeID:     "some-id",
	})
	assert.ErrorIs(t, err, serrors.ErrServiceUnavailable)
}

func TestLogin(t *testing.T) {
	f := newFixture(t)
	_, err := f.register(t, "alice", "a@x.com", "secret1")
	require.NoError(t, err)

	res, err := f.login(t, " A@x.com ", "secret1")
	require.NoError(t, err)
	assert.Equal(t, "alice", res.Identity.Handle)

	_, err = f.login(t, "a@x.com", "secret2")
	assert.ErrorIs(t, err, serrors.ErrInvalidCredentials)

	_, err = f.login(t, "nobody@x.com", "secret1")
	assert.ErrorIs(t, err, serrors.ErrInvalidCredentials)
}

func TestLogin_WrongChallenge(t *testing.T) {
	f := newFixture(t)
	_, err := f.register(t, "alice", "a@x.com", "secret1")
	require.NoError(t, err)

	_, err = f.svc.Login(context.Background(), services.LoginInput{
		Email: "a@x.com", Password: "secret1", ChallengeAnswer: testAnswer, ChallengeID: "unknown",
	})
	assert.ErrorIs(t, err, serrors.ErrInvalidChallenge)
}

func TestLogin_FederatedIdentityHasNoPassword(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.FederatedLogin(context.Background(), federation.Assertion{
		Provider: domain.OriginApple, Subject: "apple-1", Email: "a@x.com",
	})
	require.NoError(t, err)

	_, err = f.login(t, "a@x.com", "anything")
	assert.ErrorIs(t, err, serrors.ErrInvalidCredentials)
}

func TestFederatedLogin_Google(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	assertion := federation.Assertion{
		Provider: domain.OriginGoogle,
		IDToken:  f.googleToken(t, testClientID, "g-123", "Alice@Example.com"),
	}
	first, err := f.svc.FederatedLogin(ctx, assertion)
	require.NoError(t, err)
	assert.Equal(t, domain.OriginGoogle, first.Identity.Origin)
	assert.Equal(t, "alice@example.com", first.Identity.Email)
	assert.Equal(t, "Alice Liddell", first.Identity.DisplayName)
	assert.Regexp(t, `^alice-[0-9a-f]{8}$`, first.Identity.Handle)
	assert.Equal(t, services.DefaultFederatedTokenTTL, first.Token.ExpiresAt.Sub(first.Token.IssuedAt))

	second, err := f.svc.FederatedLogin(ctx, assertion)
	require.NoError(t, err)
	assert.Equal(t, first.Identity.ID, second.Identity.ID)
	assert.Equal(t, 1, f.repo.count())
}

func TestFederatedLogin_GoogleAudienceMismatch(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.FederatedLogin(context.Background(), federation.Assertion{
		Provider: domain.OriginGoogle,
		IDToken:  f.googleToken(t, "someone-else", "g-123", "a@x.com"),
	})
	assert.ErrorIs(t, err, serrors.ErrFederatedVerificationFailed)
	assert.Equal(t, 0, f.repo.count())
}

func TestFederatedLogin_EmailOfOtherOrigin(t *testing.T) {
	f := newFixture(t)
	_, err := f.register(t, "alice", "a@x.com", "secret1")
	require.NoError(t, err)

	_, err = f.svc.FederatedLogin(context.Background(), federation.Assertion{
		Provider: domain.OriginGoogle,
		IDToken:  f.googleToken(t, testClientID, "g-123", "a@x.com"),
	})
	assert.ErrorIs(t, err, serrors.ErrAccountExists)
	assert.Equal(t, 1, f.repo.count())
}

func TestFederatedLogin_AppleCreateAndLink(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	// An Apple identity recorded before subjects were stored.
	legacy := &domain.Identity{Handle: "legacy", Email: "old@x.com", Origin: domain.OriginApple}
	require.NoError(t, f.repo.CreateIdentity(ctx, legacy))

	res, err := f.svc.FederatedLogin(ctx, federation.Assertion{
		Provider: domain.OriginApple, Subject: "apple-old", Email: "old@x.com",
	})
	require.NoError(t, err)
	assert.Equal(t, legacy.ID, res.Identity.ID)
	linked, err := f.repo.GetIdentityByProviderSubject(ctx, domain.OriginApple, "apple-old")
	require.NoError(t, err)
	assert.Equal(t, legacy.ID, linked.ID)

	// Same email, different subject.
	_, err = f.svc.FederatedLogin(ctx, federation.Assertion{
		Provider: domain.OriginApple, Subject: "apple-other", Email: "old@x.com",
	})
	assert.ErrorIs(t, err, serrors.ErrAccountExists)

	res, err = f.svc.FederatedLogin(ctx, federation.Assertion{
		Provider: domain.OriginApple,
		Subject:  "apple-new",
		Email:    "new@x.com",
		Name:     federation.PersonName{GivenName: "Alice", FamilyName: "Liddell"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Alice Liddell", res.Identity.DisplayName)
	assert.Equal(t, 2, f.repo.count())
}

func TestFederatedLogin_Errors(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.svc.FederatedLogin(ctx, federation.Assertion{Provider: domain.OriginGoogle})
	assert.ErrorIs(t, err, serrors.ErrInvalidInput)

	_, err = f.svc.FederatedLogin(ctx, federation.Assertion{Provider: domain.OriginApple, Email: "a@x.com"})
	assert.ErrorIs(t, err, serrors.ErrInvalidInput)

	_, err = f.svc.FederatedLogin(ctx, federation.Assertion{Provider: "facebook", IDToken: "x"})
	assert.ErrorIs(t, err, serrors.ErrInvalidInput)

	_, err = f.svc.FederatedLogin(ctx, federation.Assertion{Provider: domain.OriginGoogle, IDToken: "garbage"})
	assert.ErrorIs(t, err, serrors.ErrFederatedVerificationFailed)
}

func TestFederatedLogin_ProviderUnavailable(t *testing.T) {
	store := cache.NewMemoryChallengeStore(time.Minute)
	t.Cleanup(func() { _ = store.Close() })
	tokens, err := services.NewTokenService(strings.Repeat("k", services.MinSecretLength), "")
	require.NoError(t, err)

	svc := services.NewAuthService(
		newMemoryRepo(),
		services.NewChallengeService(store, fixedRenderer{}, time.Minute),
		auth.NewBcryptPasswordHasher(bcrypt.MinCost),
		tokens,
		stubVerifier{err: fmt.Errorf("%w: jwks timeout", federation.ErrProviderUnavailable)},
		services.AuthConfig{},
	)

	_, err = svc.FederatedLogin(context.Background(), federation.Assertion{Provider: domain.OriginGoogle, IDToken: "x"})
	assert.ErrorIs(t, err, serrors.ErrServiceUnavailable)
}

func TestResolveCaller(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	res, err := f.register(t, "alice", "a@x.com", "secret1")
	require.NoError(t, err)

	identity, err := f.svc.ResolveCaller(ctx, res.Token.Value)
	require.NoError(t, err)
	assert.Equal(t, res.Identity.ID, identity.ID)
	assert.Empty(t, identity.PasswordHash)

	_, err = f.svc.ResolveCaller(ctx, "garbage")
	assert.ErrorIs(t, err, serrors.ErrUnauthorized)

	orphan, err := f.tokens.Issue("id-does-not-exist", time.Hour)
	require.NoError(t, err)
	_, err = f.svc.ResolveCaller(ctx, orphan.Value)
	assert.ErrorIs(t, err, serrors.ErrUnauthorized)

	f.repo.unavailable = true
	_, err = f.svc.ResolveCaller(ctx, res.Token.Value)
	assert.ErrorIs(t, err, serrors.ErrServiceUnavailable)
}

func TestUpdateProfile(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	res, err := f.register(t, "alice", "a@x.com", "secret1")
	require.NoError(t, err)

	name := "  Alice  "
	updated, err := f.svc.UpdateProfile(ctx, res.Identity.ID, services.ProfileInput{DisplayName: &name})
	require.NoError(t, err)
	assert.Equal(t, "Alice", updated.DisplayName)
	assert.Equal(t, "NYC", updated.Location)
	assert.Equal(t, "a@x.com", updated.Email)

	_, err = f.svc.UpdateProfile(ctx, res.Identity.ID, services.ProfileInput{})
	assert.ErrorIs(t, err, serrors.ErrInvalidInput)

	empty := " "
	_, err = f.svc.UpdateProfile(ctx, res.Identity.ID, services.ProfileInput{Location: &empty})
	assert.ErrorIs(t, err, serrors.ErrInvalidInput)

	_, err = f.svc.UpdateProfile(ctx, "missing", services.ProfileInput{DisplayName: &name})
	assert.ErrorIs(t, err, serrors.ErrUnauthorized)
}

func TestChangePassword(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	res, err := f.register(t, "alice", "a@x.com", "secret1")
	require.NoError(t, err)

	err = f.svc.ChangePassword(ctx, res.Identity.ID, services.ChangePasswordInput{CurrentPassword: "wrong", NewPassword: "secret2"})
	assert.ErrorIs(t, err, serrors.ErrInvalidCredentials)

	err = f.svc.ChangePassword(ctx, res.Identity.ID, services.ChangePasswordInput{CurrentPassword: "secret1", NewPassword: "short"})
	assert.ErrorIs(t, err, serrors.ErrInvalidInput)

	err = f.svc.ChangePassword(ctx, res.Identity.ID, services.ChangePasswordInput{CurrentPassword: "secret1", NewPassword: "secret2"})
	require.NoError(t, err)

	_, err = f.login(t, "a@x.com", "secret1")
	assert.ErrorIs(t, err, serrors.ErrInvalidCredentials)
	_, err = f.login(t, "a@x.com", "secret2")
	assert.NoError(t, err)
}

func TestChangePassword_FederatedIdentity(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	res, err := f.svc.FederatedLogin(ctx, federation.Assertion{
		Provider: domain.OriginApple, Subject: "apple-1", Email: "a@x.com",
	})
	require.NoError(t, err)

	err = f.svc.ChangePassword(ctx, res.Identity.ID, services.ChangePasswordInput{CurrentPassword: "anything", NewPassword: "secret2"})
	assert.ErrorIs(t, err, serrors.ErrInvalidCredentials)
}
