package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/go-playground/validator/v10"
	"github.com/pilab-dev/shadow-auth/cache"
	"github.com/pilab-dev/shadow-auth/domain"
	serrors "github.com/pilab-dev/shadow-auth/errors"
	"github.com/pilab-dev/shadow-auth/internal/audit"
	"github.com/pilab-dev/shadow-auth/internal/federation"
	"github.com/pilab-dev/shadow-auth/internal/metrics"
	"github.com/pilab-dev/shadow-auth/tracing"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Default token lifetimes per flow.
const (
	DefaultLocalTokenTTL     = 24 * time.Hour
	DefaultFederatedTokenTTL = 7 * 24 * time.Hour
)

// RegisterInput is a local registration request.
type RegisterInput struct {
	Handle          string `json:"username"  validate:"required,max=64"`
	Email           string `json:"email"     validate:"required,email,max=254"`
	Password        string `json:"password"  validate:"required,min=6,max=72"`
	Location        string `json:"city"      validate:"required,max=128"`
	ChallengeAnswer string `json:"captcha"   validate:"required"`
	ChallengeID     string `json:"captchaId" validate:"required"`
}

// LoginInput is a local login request.
type LoginInput struct {
	Email           string `json:"email"     validate:"required,email"`
	Password        string `json:"password"  validate:"required"`
	ChallengeAnswer string `json:"captcha"   validate:"required"`
	ChallengeID     string `json:"captchaId" validate:"required"`
}

// ProfileInput carries profile changes. Nil fields are left as they are.
type ProfileInput struct {
	DisplayName *string `json:"name"         validate:"omitempty,max=128"`
	AvatarURL   *string `json:"profileImage" validate:"omitempty,max=2048"`
	Location    *string `json:"city"         validate:"omitempty,min=1,max=128"`
}

// ChangePasswordInput replaces the password of a local identity.
type ChangePasswordInput struct {
	CurrentPassword string `json:"currentPassword" validate:"required"`
	NewPassword     string `json:"newPassword"     validate:"required,min=6,max=72"`
}

// AuthResult is returned by every successful authentication flow.
type AuthResult struct {
	Token    *domain.Token
	Identity *domain.Identity // credential redacted
}

// AuthConfig holds the orchestrator settings.
type AuthConfig struct {
	LocalTokenTTL     time.Duration
	FederatedTokenTTL time.Duration
}

// AuthService composes the challenge registry, password hasher, token service
// and federated verifier into the registration, login and caller resolution flows.
type AuthService struct {
	identities domain.IdentityRepository
	challenges *ChallengeService
	hasher     PasswordHasher
	tokens     *TokenService
	federated  FederatedVerifier
	cfg        AuthConfig
	validate   *validator.Validate
	now        func() time.Time

	dummyOnce sync.Once
	dummyHash string
}

// NewAuthService creates a new AuthService.
func NewAuthService(
	identities domain.IdentityRepository,
	challenges *ChallengeService,
	hasher PasswordHasher,
	tokens *TokenService,
	federated FederatedVerifier,
	cfg AuthConfig,
) *AuthService {
	if cfg.LocalTokenTTL <= 0 {
		cfg.LocalTokenTTL = DefaultLocalTokenTTL
	}
	if cfg.FederatedTokenTTL <= 0 {
		cfg.FederatedTokenTTL = DefaultFederatedTokenTTL
	}

	return &AuthService{
		identities: identities,
		challenges: challenges,
		hasher:     hasher,
		tokens:     tokens,
		federated:  federated,
		cfg:        cfg,
		validate:   newValidator(),
		now:        time.Now,
	}
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report wire names so field errors match what the client sent.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})
	return v
}

// IssueChallenge issues a new captcha challenge.
func (s *AuthService) IssueChallenge(ctx context.Context) (*domain.IssuedChallenge, error) {
	ctx, span := tracing.Start(ctx, "AuthService.IssueChallenge")
	defer span.End()

	issued, err := s.challenges.Issue(ctx)
	if err != nil {
		tracing.Fail(span, err)
		if errors.Is(err, cache.ErrStoreUnavailable) {
			log.Warn().Err(err).Msg("challenge store unavailable")
			return nil, fmt.Errorf("%w: %w", serrors.ErrServiceUnavailable, err)
		}
		return nil, s.internalError("issue challenge", err)
	}
	return issued, nil
}

// Register creates a local identity and returns a token for it.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*AuthResult, error) {
	ctx, span := tracing.Start(ctx, "AuthService.Register")
	defer span.End()

	res, err := s.register(ctx, in)
	s.finish(span, audit.ActionRegister, domain.OriginLocal, res, err)
	return res, err
}

func (s *AuthService) register(ctx context.Context, in RegisterInput) (*AuthResult, error) {
	in.Handle = strings.TrimSpace(in.Handle)
	in.Email = domain.NormalizeEmail(in.Email)
	in.Location = strings.TrimSpace(in.Location)
	if err := s.validateInput(in); err != nil {
		return nil, err
	}

	if err := s.checkChallenge(ctx, in.ChallengeID, in.ChallengeAnswer); err != nil {
		return nil, err
	}

	if _, err := s.identities.GetIdentityByEmail(ctx, in.Email); err == nil {
		return nil, serrors.ErrAccountExists
	} else if !errors.Is(err, domain.ErrIdentityNotFound) {
		return nil, s.storeError("lookup identity by email", err)
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, s.internalError("hash password", err)
	}

	now := s.now().UTC()
	identity := &domain.Identity{
		Handle:              in.Handle,
		Email:               in.Email,
		PasswordHash:        hash,
		Origin:              domain.OriginLocal,
		Location:            in.Location,
		CreatedAt:           now,
		UpdatedAt:           now,
		LastAuthenticatedAt: &now,
	}
	// The unique indexes decide concurrent registrations with the same email.
	if err := s.identities.CreateIdentity(ctx, identity); err != nil {
		if domain.IsDuplicate(err) {
			return nil, serrors.ErrAccountExists
		}
		return nil, s.storeError("create identity", err)
	}
	metrics.IdentitiesCreatedTotal.WithLabelValues(string(domain.OriginLocal)).Inc()

	return s.issue(identity, s.cfg.LocalTokenTTL, "local")
}

// Login authenticates a local identity by email and password.
func (s *AuthService) Login(ctx context.Context, in LoginInput) (*AuthResult, error) {
	ctx, span := tracing.Start(ctx, "AuthService.Login")
	defer span.End()

	res, err := s.login(ctx, in)
	s.finish(span, audit.ActionLogin, domain.OriginLocal, res, err)
	return res, err
}

func (s *AuthService) login(ctx context.Context, in LoginInput) (*AuthResult, error) {
	in.Email = domain.NormalizeEmail(in.Email)
	if err := s.validateInput(in); err != nil {
		return nil, err
	}

	if err := s.checkChallenge(ctx, in.ChallengeID, in.ChallengeAnswer); err != nil {
		return nil, err
	}

	identity, err := s.identities.GetIdentityByEmail(ctx, in.Email)
	if err != nil {
		if errors.Is(err, domain.ErrIdentityNotFound) {
			// Spend the same bcrypt time as a real comparison.
			s.hasher.Verify(s.dummyPasswordHash(), in.Password)
			return nil, serrors.ErrInvalidCredentials
		}
		return nil, s.storeError("lookup identity by email", err)
	}

	if !identity.HasLocalCredential() {
		s.hasher.Verify(s.dummyPasswordHash(), in.Password)
		return nil, serrors.ErrInvalidCredentials
	}
	if !s.hasher.Verify(identity.PasswordHash, in.Password) {
		return nil, serrors.ErrInvalidCredentials
	}

	s.touch(ctx, identity)
	return s.issue(identity, s.cfg.LocalTokenTTL, "local")
}

// FederatedLogin verifies a provider assertion, resolves or creates the
// matching identity and returns a token for it.
func (s *AuthService) FederatedLogin(ctx context.Context, a federation.Assertion) (*AuthResult, error) {
	ctx, span := tracing.Start(ctx, "AuthService.FederatedLogin")
	defer span.End()
	span.SetAttributes(attribute.String("auth.provider", string(a.Provider)))

	res, err := s.federatedLogin(ctx, a)
	s.finish(span, audit.ActionFederatedLogin, a.Provider, res, err)
	return res, err
}

func (s *AuthService) federatedLogin(ctx context.Context, a federation.Assertion) (*AuthResult, error) {
	if err := validateAssertion(a); err != nil {
		return nil, err
	}

	claim, err := s.federated.Verify(ctx, a)
	if err != nil {
		switch {
		case errors.Is(err, federation.ErrProviderUnavailable):
			return nil, fmt.Errorf("%w: %w", serrors.ErrServiceUnavailable, err)
		case errors.Is(err, federation.ErrUnsupportedProvider):
			return nil, serrors.NewInvalidInput(serrors.FieldError{Field: "provider", Message: "unsupported provider"})
		default:
			return nil, fmt.Errorf("%w: %w", serrors.ErrFederatedVerificationFailed, err)
		}
	}

	identity, err := s.resolveFederated(ctx, claim)
	if err != nil {
		return nil, err
	}

	s.touch(ctx, identity)
	return s.issue(identity, s.cfg.FederatedTokenTTL, string(claim.Provider))
}

func validateAssertion(a federation.Assertion) error {
	var fields []serrors.FieldError
	switch a.Provider {
	case domain.OriginGoogle:
		if strings.TrimSpace(a.IDToken) == "" {
			fields = append(fields, serrors.FieldError{Field: "token", Message: "is required"})
		}
	case domain.OriginApple:
		if strings.TrimSpace(a.Subject) == "" {
			fields = append(fields, serrors.FieldError{Field: "user", Message: "is required"})
		}
		if strings.TrimSpace(a.Email) == "" {
			fields = append(fields, serrors.FieldError{Field: "email", Message: "is required"})
		}
	}
	if len(fields) > 0 {
		return serrors.NewInvalidInput(fields...)
	}
	return nil
}

// resolveFederated finds the identity for claim by provider subject, then by
// email, and creates one when neither matches.
func (s *AuthService) resolveFederated(ctx context.Context, claim *federation.Claim) (*domain.Identity, error) {
	identity, err := s.identities.GetIdentityByProviderSubject(ctx, claim.Provider, claim.Subject)
	if err == nil {
		return identity, nil
	}
	if !errors.Is(err, domain.ErrIdentityNotFound) {
		return nil, s.storeError("lookup identity by provider subject", err)
	}

	identity, err = s.identities.GetIdentityByEmail(ctx, claim.Email)
	switch {
	case err == nil:
		return s.linkFederated(ctx, identity, claim)
	case !errors.Is(err, domain.ErrIdentityNotFound):
		return nil, s.storeError("lookup identity by email", err)
	}

	now := s.now().UTC()
	identity = &domain.Identity{
		Handle:              federatedHandle(claim),
		Email:               claim.Email,
		Origin:              claim.Provider,
		DisplayName:         claim.DisplayName,
		AvatarURL:           claim.AvatarURL,
		CreatedAt:           now,
		UpdatedAt:           now,
		LastAuthenticatedAt: &now,
	}
	switch claim.Provider {
	case domain.OriginGoogle:
		identity.GoogleID = claim.Subject
	case domain.OriginApple:
		identity.AppleID = claim.Subject
	}

	if err := s.identities.CreateIdentity(ctx, identity); err != nil {
		if !domain.IsDuplicate(err) {
			return nil, s.storeError("create federated identity", err)
		}
		// A concurrent first login for the same subject may have won the insert.
		existing, lookupErr := s.identities.GetIdentityByProviderSubject(ctx, claim.Provider, claim.Subject)
		if lookupErr == nil {
			return existing, nil
		}
		return nil, serrors.ErrAccountExists
	}
	metrics.IdentitiesCreatedTotal.WithLabelValues(string(claim.Provider)).Inc()

	return identity, nil
}

// linkFederated accepts an identity found by email only when it was created by
// the same provider and carries no subject yet.
func (s *AuthService) linkFederated(ctx context.Context, identity *domain.Identity, claim *federation.Claim) (*domain.Identity, error) {
	if identity.Origin != claim.Provider {
		log.Info().Str("identityId", identity.ID).Str("provider", string(claim.Provider)).
			Msg("federated login email belongs to an identity of another origin")
		return nil, serrors.ErrAccountExists
	}
	if subject := identity.ProviderSubject(); subject != "" {
		if subject != claim.Subject {
			return nil, serrors.ErrAccountExists
		}
		return identity, nil
	}

	if err := s.identities.LinkProviderSubject(ctx, identity.ID, claim.Provider, claim.Subject); err != nil {
		if domain.IsDuplicate(err) {
			return nil, serrors.ErrAccountExists
		}
		return nil, s.storeError("link provider subject", err)
	}
	switch claim.Provider {
	case domain.OriginGoogle:
		identity.GoogleID = claim.Subject
	case domain.OriginApple:
		identity.AppleID = claim.Subject
	}

	return identity, nil
}

// federatedHandle derives a stable handle from the email local part and the
// provider subject.
func federatedHandle(claim *federation.Claim) string {
	local, _, _ := strings.Cut(claim.Email, "@")
	local = strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '.' || r == '_' || r == '-' {
			return unicode.ToLower(r)
		}
		return -1
	}, local)
	if len(local) > 32 {
		local = local[:32]
	}
	if local == "" {
		local = string(claim.Provider)
	}

	sum := sha256.Sum256([]byte(string(claim.Provider) + ":" + claim.Subject))
	return local + "-" + hex.EncodeToString(sum[:4])
}

// ResolveCaller verifies a bearer token and loads the identity it names.
func (s *AuthService) ResolveCaller(ctx context.Context, rawToken string) (*domain.Identity, error) {
	ctx, span := tracing.Start(ctx, "AuthService.ResolveCaller")
	defer span.End()

	token, err := s.tokens.Verify(rawToken)
	if err != nil {
		metrics.TokenVerificationFailuresTotal.Inc()
		return nil, serrors.ErrUnauthorized
	}

	identity, err := s.identities.GetIdentityByID(ctx, token.Subject)
	if err != nil {
		if errors.Is(err, domain.ErrIdentityNotFound) {
			log.Debug().Str("subject", token.Subject).Msg("token subject no longer exists")
			return nil, serrors.ErrUnauthorized
		}
		tracing.Fail(span, err)
		return nil, s.storeError("lookup identity by id", err)
	}

	return identity.Redacted(), nil
}

// UpdateProfile changes the display name, avatar or location of identity id.
func (s *AuthService) UpdateProfile(ctx context.Context, id string, in ProfileInput) (*domain.Identity, error) {
	ctx, span := tracing.Start(ctx, "AuthService.UpdateProfile")
	defer span.End()

	update := domain.ProfileUpdate{
		DisplayName: trimmed(in.DisplayName),
		AvatarURL:   trimmed(in.AvatarURL),
		Location:    trimmed(in.Location),
	}
	in = ProfileInput{DisplayName: update.DisplayName, AvatarURL: update.AvatarURL, Location: update.Location}
	if err := s.validateInput(in); err != nil {
		return nil, err
	}
	if update.Empty() {
		return nil, serrors.NewInvalidInput(serrors.FieldError{Field: "body", Message: "no profile fields to update"})
	}

	identity, err := s.identities.UpdateProfile(ctx, id, update)
	if err != nil {
		if errors.Is(err, domain.ErrIdentityNotFound) {
			err = serrors.ErrUnauthorized
		} else {
			tracing.Fail(span, err)
			err = s.storeError("update profile", err)
		}
		audit.Log(audit.Event{Action: audit.ActionProfileUpdate, IdentityID: id, Reason: serrors.From(err).Code})
		return nil, err
	}

	audit.Log(audit.Event{Action: audit.ActionProfileUpdate, IdentityID: id, Origin: string(identity.Origin), Success: true})
	return identity.Redacted(), nil
}

// ChangePassword replaces the password of a local identity after checking the current one.
func (s *AuthService) ChangePassword(ctx context.Context, id string, in ChangePasswordInput) error {
	ctx, span := tracing.Start(ctx, "AuthService.ChangePassword")
	defer span.End()

	err := s.changePassword(ctx, id, in)
	event := audit.Event{Action: audit.ActionPasswordChange, IdentityID: id, Origin: string(domain.OriginLocal), Success: err == nil}
	if err != nil {
		tracing.Fail(span, err)
		event.Reason = serrors.From(err).Code
	}
	audit.Log(event)

	return err
}

func (s *AuthService) changePassword(ctx context.Context, id string, in ChangePasswordInput) error {
	if err := s.validateInput(in); err != nil {
		return err
	}

	identity, err := s.identities.GetIdentityByID(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrIdentityNotFound) {
			return serrors.ErrUnauthorized
		}
		return s.storeError("lookup identity by id", err)
	}

	if !identity.HasLocalCredential() || !s.hasher.Verify(identity.PasswordHash, in.CurrentPassword) {
		return serrors.ErrInvalidCredentials
	}

	hash, err := s.hasher.Hash(in.NewPassword)
	if err != nil {
		return s.internalError("hash password", err)
	}
	if err := s.identities.UpdatePasswordHash(ctx, id, hash); err != nil {
		if errors.Is(err, domain.ErrIdentityNotFound) {
			return serrors.ErrUnauthorized
		}
		return s.storeError("update password hash", err)
	}

	return nil
}

// Ping reports whether the credential store is reachable.
func (s *AuthService) Ping(ctx context.Context) error {
	return s.identities.Ping(ctx)
}

func trimmed(p *string) *string {
	if p == nil {
		return nil
	}
	v := strings.TrimSpace(*p)
	return &v
}

func (s *AuthService) validateInput(in any) error {
	err := s.validate.Struct(in)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return s.internalError("validate input", err)
	}

	fields := make([]serrors.FieldError, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, serrors.FieldError{Field: fe.Field(), Message: fieldMessage(fe)})
	}
	return serrors.NewInvalidInput(fields...)
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "min":
		return "must be at least " + fe.Param() + " characters long"
	case "max":
		return "must be at most " + fe.Param() + " characters long"
	default:
		return "is invalid"
	}
}

func (s *AuthService) checkChallenge(ctx context.Context, id, answer string) error {
	ok, err := s.challenges.Verify(ctx, id, answer)
	if err != nil {
		log.Error().Err(err).Msg("challenge store failure")
		return fmt.Errorf("%w: %w", serrors.ErrServiceUnavailable, err)
	}
	if !ok {
		return serrors.ErrInvalidChallenge
	}
	return nil
}

func (s *AuthService) issue(identity *domain.Identity, ttl time.Duration, flow string) (*AuthResult, error) {
	token, err := s.tokens.Issue(identity.ID, ttl)
	if err != nil {
		return nil, s.internalError("issue token", err)
	}
	metrics.TokensIssuedTotal.WithLabelValues(flow).Inc()

	return &AuthResult{Token: token, Identity: identity.Redacted()}, nil
}

// touch refreshes the last-authentication timestamp. Failure does not fail the login.
func (s *AuthService) touch(ctx context.Context, identity *domain.Identity) {
	now := s.now().UTC()
	if err := s.identities.TouchLastAuthenticated(ctx, identity.ID, now); err != nil {
		log.Warn().Err(err).Str("identityId", identity.ID).Msg("failed to refresh last authentication time")
		return
	}
	identity.LastAuthenticatedAt = &now
}

func (s *AuthService) dummyPasswordHash() string {
	s.dummyOnce.Do(func() {
		hash, err := s.hasher.Hash("shadow-auth-timing-equalizer")
		if err != nil {
			log.Warn().Err(err).Msg("failed to prepare dummy password hash")
			return
		}
		s.dummyHash = hash
	})
	return s.dummyHash
}

func (s *AuthService) storeError(op string, err error) error {
	if errors.Is(err, domain.ErrStoreUnavailable) {
		log.Warn().Err(err).Str("op", op).Msg("credential store unavailable")
		return fmt.Errorf("%w: %s: %w", serrors.ErrServiceUnavailable, op, err)
	}
	return s.internalError(op, err)
}

func (s *AuthService) internalError(op string, err error) error {
	log.Error().Err(err).Str("op", op).Msg("unexpected failure")
	return fmt.Errorf("%w: %s: %w", serrors.ErrServerError, op, err)
}

// finish records metrics, audit and span status for an authentication flow.
func (s *AuthService) finish(span trace.Span, action audit.Action, origin domain.Origin, res *AuthResult, err error) {
	event := audit.Event{Action: action, Origin: string(origin), Success: err == nil}
	if err != nil {
		code := serrors.From(err).Code
		event.Reason = code
		metrics.LoginFailureTotal.WithLabelValues(code).Inc()
		span.SetAttributes(attribute.String("auth.outcome", code))
		if !serrors.IsClassified(err) || errors.Is(err, serrors.ErrServiceUnavailable) {
			tracing.Fail(span, err)
		}
	} else {
		event.IdentityID = res.Identity.ID
		metrics.LoginSuccessTotal.WithLabelValues(string(origin)).Inc()
		span.SetAttributes(attribute.String("auth.outcome", "ok"))
	}
	audit.Log(event)
}
