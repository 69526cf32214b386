package mongodb

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/pilab-dev/shadow-auth/domain"
	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"
)

// Index names, used to tell which uniqueness constraint an insert violated.
const (
	handleIndex   = "handle_unique"
	emailIndex    = "email_unique"
	googleIDIndex = "google_id_unique"
	appleIDIndex  = "apple_id_unique"
)

// caseInsensitive is the collation of the email index. Email lookups use it too
// so they can be served by the index.
var caseInsensitive = &options.Collation{Locale: "en", Strength: 2}

// IdentityRepository implements domain.IdentityRepository
type IdentityRepository struct {
	db         *mongo.Database
	identities *mongo.Collection
	timeout    time.Duration
}

// NewIdentityRepository creates a new IdentityRepository and ensures its unique
// indexes. An index failure is returned, since uniqueness is enforced only there.
func NewIdentityRepository(ctx context.Context, db *mongo.Database, timeout time.Duration) (*IdentityRepository, error) {
	repo := &IdentityRepository{
		db:         db,
		identities: db.Collection(IdentitiesCollection),
		timeout:    timeout,
	}
	if err := repo.createIndexes(ctx); err != nil {
		return nil, err
	}
	return repo, nil
}

func (r *IdentityRepository) createIndexes(ctx context.Context) error {
	subjectIndex := func(field, name string) mongo.IndexModel {
		return mongo.IndexModel{
			Keys: bson.D{{Key: field, Value: 1}},
			Options: options.Index().
				SetName(name).
				SetUnique(true).
				SetPartialFilterExpression(bson.D{{Key: field, Value: bson.D{{Key: "$exists", Value: true}}}}),
		}
	}

	indexModels := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "handle", Value: 1}},
			Options: options.Index().SetName(handleIndex).SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "email", Value: 1}},
			Options: options.Index().SetName(emailIndex).SetUnique(true).SetCollation(caseInsensitive), // Case-insensitive unique email
		},
		subjectIndex("google_id", googleIDIndex),
		subjectIndex("apple_id", appleIDIndex),
	}

	if _, err := r.identities.Indexes().CreateMany(ctx, indexModels); err != nil {
		return fmt.Errorf("failed to create indexes for %s collection: %w", IdentitiesCollection, err)
	}
	log.Info().Msg("Indexes for identities collection ensured.")
	return nil
}

func (r *IdentityRepository) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, r.timeout)
}

// CreateIdentity inserts a new identity. ID is generated when empty.
func (r *IdentityRepository) CreateIdentity(ctx context.Context, identity *domain.Identity) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	if identity.ID == "" {
		identity.ID = NewObjectID()
	}
	now := time.Now().UTC()
	if identity.CreatedAt.IsZero() {
		identity.CreatedAt = now
	}
	if identity.UpdatedAt.IsZero() {
		identity.UpdatedAt = now
	}
	identity.Email = domain.NormalizeEmail(identity.Email)

	if _, err := r.identities.InsertOne(ctx, identity); err != nil {
		return mapError(err)
	}
	return nil
}

// GetIdentityByID retrieves an identity by its ID.
func (r *IdentityRepository) GetIdentityByID(ctx context.Context, id string) (*domain.Identity, error) {
	return r.findOne(ctx, bson.D{{Key: "_id", Value: id}}, nil)
}

// GetIdentityByEmail retrieves an identity by email, ignoring case.
func (r *IdentityRepository) GetIdentityByEmail(ctx context.Context, email string) (*domain.Identity, error) {
	return r.findOne(ctx,
		bson.D{{Key: "email", Value: domain.NormalizeEmail(email)}},
		options.FindOne().SetCollation(caseInsensitive),
	)
}

// GetIdentityByProviderSubject retrieves the identity linked to a provider subject.
func (r *IdentityRepository) GetIdentityByProviderSubject(ctx context.Context, origin domain.Origin, subject string) (*domain.Identity, error) {
	field, err := subjectField(origin)
	if err != nil {
		return nil, err
	}
	return r.findOne(ctx, bson.D{{Key: field, Value: subject}}, nil)
}

func (r *IdentityRepository) findOne(ctx context.Context, filter bson.D, opts *options.FindOneOptionsBuilder) (*domain.Identity, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	var res *mongo.SingleResult
	if opts != nil {
		res = r.identities.FindOne(ctx, filter, opts)
	} else {
		res = r.identities.FindOne(ctx, filter)
	}

	var identity domain.Identity
	if err := res.Decode(&identity); err != nil {
		return nil, mapError(err)
	}
	return &identity, nil
}

// LinkProviderSubject records subject on identity id when the identity has
// the same origin and no subject yet.
func (r *IdentityRepository) LinkProviderSubject(ctx context.Context, id string, origin domain.Origin, subject string) error {
	field, err := subjectField(origin)
	if err != nil {
		return err
	}

	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	filter := bson.D{
		{Key: "_id", Value: id},
		{Key: "origin", Value: origin},
		{Key: field, Value: bson.D{{Key: "$exists", Value: false}}},
	}
	update := bson.D{{Key: "$set", Value: bson.D{
		{Key: field, Value: subject},
		{Key: "updated_at", Value: time.Now().UTC()},
	}}}

	res, err := r.identities.UpdateOne(ctx, filter, update)
	if err != nil {
		return mapError(err)
	}
	if res.MatchedCount == 0 {
		if _, err := r.GetIdentityByID(ctx, id); err != nil {
			return err
		}
		// Exists but belongs to another origin or is already linked.
		return &domain.DuplicateIdentityError{Field: field}
	}
	return nil
}

// UpdateProfile applies the non-nil fields of update and returns the result.
func (r *IdentityRepository) UpdateProfile(ctx context.Context, id string, update domain.ProfileUpdate) (*domain.Identity, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	set := bson.D{{Key: "updated_at", Value: time.Now().UTC()}}
	if update.DisplayName != nil {
		set = append(set, bson.E{Key: "display_name", Value: *update.DisplayName})
	}
	if update.AvatarURL != nil {
		set = append(set, bson.E{Key: "avatar_url", Value: *update.AvatarURL})
	}
	if update.Location != nil {
		set = append(set, bson.E{Key: "location", Value: *update.Location})
	}

	var identity domain.Identity
	err := r.identities.FindOneAndUpdate(ctx,
		bson.D{{Key: "_id", Value: id}},
		bson.D{{Key: "$set", Value: set}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&identity)
	if err != nil {
		return nil, mapError(err)
	}
	return &identity, nil
}

// UpdatePasswordHash replaces the credential of a local identity.
func (r *IdentityRepository) UpdatePasswordHash(ctx context.Context, id, passwordHash string) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	res, err := r.identities.UpdateOne(ctx,
		bson.D{{Key: "_id", Value: id}, {Key: "origin", Value: domain.OriginLocal}},
		bson.D{{Key: "$set", Value: bson.D{
			{Key: "password_hash", Value: passwordHash},
			{Key: "updated_at", Value: time.Now().UTC()},
		}}},
	)
	if err != nil {
		return mapError(err)
	}
	if res.MatchedCount == 0 {
		return domain.ErrIdentityNotFound
	}
	return nil
}

// TouchLastAuthenticated records a successful authentication time.
func (r *IdentityRepository) TouchLastAuthenticated(ctx context.Context, id string, at time.Time) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	res, err := r.identities.UpdateOne(ctx,
		bson.D{{Key: "_id", Value: id}},
		bson.D{{Key: "$set", Value: bson.D{{Key: "last_authenticated_at", Value: at.UTC()}}}},
	)
	if err != nil {
		return mapError(err)
	}
	if res.MatchedCount == 0 {
		return domain.ErrIdentityNotFound
	}
	return nil
}

// Ping checks that the primary is reachable.
func (r *IdentityRepository) Ping(ctx context.Context) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	if err := r.db.Client().Ping(ctx, readpref.Primary()); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrStoreUnavailable, err)
	}
	return nil
}

func subjectField(origin domain.Origin) (string, error) {
	switch origin {
	case domain.OriginGoogle:
		return "google_id", nil
	case domain.OriginApple:
		return "apple_id", nil
	default:
		return "", fmt.Errorf("origin %q has no provider subject", origin)
	}
}

// mapError translates driver errors into the domain store errors.
func mapError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, mongo.ErrNoDocuments):
		return domain.ErrIdentityNotFound
	case mongo.IsDuplicateKeyError(err):
		return &domain.DuplicateIdentityError{Field: duplicateField(err)}
	case mongo.IsTimeout(err), mongo.IsNetworkError(err),
		errors.Is(err, context.DeadlineExceeded), errors.Is(err, mongo.ErrClientDisconnected):
		return fmt.Errorf("%w: %w", domain.ErrStoreUnavailable, err)
	default:
		return err
	}
}

func duplicateField(err error) string {
	msg := err.Error()
	switch {
	case strings.Contains(msg, emailIndex):
		return "email"
	case strings.Contains(msg, handleIndex):
		return "handle"
	case strings.Contains(msg, googleIDIndex):
		return "google_id"
	case strings.Contains(msg, appleIDIndex):
		return "apple_id"
	default:
		return ""
	}
}

var _ domain.IdentityRepository = (*IdentityRepository)(nil)
