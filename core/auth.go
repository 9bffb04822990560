package core

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Identity is an opaque reference to an account. The account record itself
// lives outside this module.
type Identity string

// String returns the identity as a plain string
func (i Identity) String() string {
	return string(i)
}

// Token represents an issued API token
type Token struct {
	Value      string    // Opaque bearer value, immutable once created
	Owner      Identity  // Account the token was issued to
	CreatedAt  time.Time // When the token was issued
	LastUsedAt time.Time // Last successful validation, only moves forward
}

// Fingerprint returns a short, non-reversible identifier for the token that is
// safe to log and publish.
func (t Token) Fingerprint() string {
	return Fingerprint(t.Value)
}

// Fingerprint derives a log-safe identifier from a raw token value.
func Fingerprint(value string) string {
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:8])
}

// Profile holds account attributes (username, email, first_name, ...).
type Profile map[string]string

// Select returns a copy of the profile restricted to the given fields.
// Missing fields are returned as empty strings.
func (p Profile) Select(fields []string) Profile {
	out := make(Profile, len(fields))
	for _, f := range fields {
		out[f] = p[f]
	}
	return out
}

// ExternalIdentity is a caller identity verified by a third-party OAuth provider
type ExternalIdentity struct {
	Provider string  // e.g. "graph", "oidc"
	Handle   string  // Stable provider-side subject identifier
	Profile  Profile // Provider profile, must carry the configured required field
}
