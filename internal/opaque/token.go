// Package opaque manages single-purpose random-secret tokens: refresh,
// email verification, password reset, phone OTP, account restore, and the
// ACCESS companion rows that make bearer tokens revocable. Only a one-way
// digest of each secret is ever persisted.
package opaque

import (
	"context"
	"errors"
	"time"
)

// Kind tags a token with its single purpose. All kinds share the same state
// machine and storage shape; they differ only in default TTL and issuance
// trigger.
type Kind string

const (
	KindAccess            Kind = "ACCESS"
	KindRefresh           Kind = "REFRESH"
	KindEmailVerification Kind = "EMAIL_VERIFICATION"
	KindPasswordReset     Kind = "PASSWORD_RESET"
	KindPhoneOTP          Kind = "PHONE_OTP"
	KindAccountRestore    Kind = "ACCOUNT_RESTORE"
)

// KindAny matches every kind in lookups.
const KindAny Kind = ""

var (
	// ErrNotFound indicates no live row matches the digest (and kind).
	ErrNotFound = errors.New("opaque: token not found")
	// ErrRevoked indicates the token was consumed or revoked.
	ErrRevoked = errors.New("opaque: token revoked")
	// ErrExpired indicates the token's validity window has passed.
	ErrExpired = errors.New("opaque: token expired")
)

// Token is one persisted opaque token row. The plaintext secret is handed to
// the caller exactly once at issuance and never stored.
type Token struct {
	ID        string
	Digest    string
	Kind      Kind
	OwnerID   string
	ExpiresAt time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
	Revoked   bool
}

// Store is the persistence contract. MarkRevoked and RevokeAllForOwner must
// be conditional writes: already-revoked rows are not revoked twice, which is
// what makes concurrent consumption at-most-once.
type Store interface {
	Create(ctx context.Context, tok *Token) error
	// FindByDigest returns the row matching digest, restricted to kind
	// unless kind is KindAny.
	FindByDigest(ctx context.Context, digest string, kind Kind) (*Token, error)
	// MarkRevoked sets revoked on the row if it is not yet revoked and
	// reports whether this call performed the transition.
	MarkRevoked(ctx context.Context, id string) (bool, error)
	// RevokeAllForOwner revokes every live row for the owner, restricted to
	// kind unless kind is KindAny. Returns the number of rows transitioned.
	RevokeAllForOwner(ctx context.Context, ownerID string, kind Kind) (int64, error)
	// DeleteStale removes rows that are revoked or expired as of now and
	// were last updated before cutoff. Returns the number of rows deleted.
	DeleteStale(ctx context.Context, now, cutoff time.Time) (int64, error)
}
