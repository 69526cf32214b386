package domain

import (
	"strings"
	"time"
)

// Origin tags where an identity was first created. It never changes afterwards.
type Origin string

const (
	OriginLocal  Origin = "local"
	OriginGoogle Origin = "google"
	OriginApple  Origin = "apple"
)

// IsFederated reports whether the origin is an external identity provider.
func (o Origin) IsFederated() bool {
	return o == OriginGoogle || o == OriginApple
}

// Identity is the canonical account record, local or federated.
type Identity struct {
	ID           string `bson:"_id"                     json:"id"`
	Handle       string `bson:"handle"                  json:"username"`
	Email        string `bson:"email"                   json:"email"`
	PasswordHash string `bson:"password_hash,omitempty" json:"-"`
	Origin       Origin `bson:"origin"                  json:"authProvider"`

	// Provider subject ids. Only the one matching Origin is ever populated.
	GoogleID string `bson:"google_id,omitempty" json:"-"`
	AppleID  string `bson:"apple_id,omitempty"  json:"-"`

	DisplayName string `bson:"display_name,omitempty" json:"name,omitempty"`
	AvatarURL   string `bson:"avatar_url,omitempty"   json:"profileImage,omitempty"`
	Location    string `bson:"location,omitempty"     json:"city,omitempty"`

	CreatedAt           time.Time  `bson:"created_at"                      json:"createdAt"`
	UpdatedAt           time.Time  `bson:"updated_at"                      json:"updatedAt"`
	LastAuthenticatedAt *time.Time `bson:"last_authenticated_at,omitempty" json:"lastAuthenticatedAt,omitempty"`
}

// HasLocalCredential reports whether a password may be checked against this identity.
func (i *Identity) HasLocalCredential() bool {
	return i.Origin == OriginLocal && i.PasswordHash != ""
}

// ProviderSubject returns the provider-issued subject id recorded for the identity's origin.
func (i *Identity) ProviderSubject() string {
	switch i.Origin {
	case OriginGoogle:
		return i.GoogleID
	case OriginApple:
		return i.AppleID
	default:
		return ""
	}
}

// Redacted returns a copy of the identity without the password credential.
func (i *Identity) Redacted() *Identity {
	c := *i
	c.PasswordHash = ""
	return &c
}

// NormalizeEmail lower-cases and trims an email for storage and lookup.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ProfileUpdate carries the mutable profile attributes. Nil fields are left unchanged.
type ProfileUpdate struct {
	DisplayName *string
	AvatarURL   *string
	Location    *string
}

// Empty reports whether the update carries no changes.
func (p ProfileUpdate) Empty() bool {
	return p.DisplayName == nil && p.AvatarURL == nil && p.Location == nil
}
