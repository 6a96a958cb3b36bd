package opaque

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/polyshop/auth-service/internal/ids"
	"github.com/polyshop/auth-service/internal/obs"
)

// Default validity windows per kind, overridable via WithTTL.
var defaultTTLs = map[Kind]time.Duration{
	KindAccess:            15 * time.Minute,
	KindRefresh:           30 * 24 * time.Hour,
	KindEmailVerification: time.Hour,
	KindPasswordReset:     time.Hour,
	KindPhoneOTP:          10 * time.Minute,
	KindAccountRestore:    24 * time.Hour,
}

// Service implements the opaque token lifecycle on top of a Store.
type Service struct {
	store Store
	now   func() time.Time
	ttls  map[Kind]time.Duration
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service)

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) ServiceOption {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// WithTTL overrides the default validity window for one kind.
func WithTTL(kind Kind, ttl time.Duration) ServiceOption {
	return func(s *Service) {
		if ttl > 0 {
			s.ttls[kind] = ttl
		}
	}
}

// NewService constructs a Service.
func NewService(store Store, opts ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, errors.New("opaque: store is required")
	}
	s := &Service{store: store, now: time.Now, ttls: make(map[Kind]time.Duration, len(defaultTTLs))}
	for kind, ttl := range defaultTTLs {
		s.ttls[kind] = ttl
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// TTL returns the effective validity window for a kind.
func (s *Service) TTL(kind Kind) time.Duration {
	return s.ttls[kind]
}

// Issue creates a token of the given kind for ownerID and returns the
// plaintext secret exactly once. A non-positive ttl selects the kind's
// default window. Delivery of the secret is the caller's concern.
func (s *Service) Issue(ctx context.Context, ownerID string, kind Kind, ttl time.Duration) (string, *Token, error) {
	ownerID = strings.TrimSpace(ownerID)
	if ownerID == "" {
		return "", nil, errors.New("opaque: owner id is required")
	}
	if _, ok := defaultTTLs[kind]; !ok {
		return "", nil, fmt.Errorf("opaque: unknown kind %q", kind)
	}
	if ttl <= 0 {
		ttl = s.ttls[kind]
	}

	secret, err := newSecret()
	if err != nil {
		return "", nil, err
	}
	now := s.now().UTC()
	tok := &Token{
		ID:        ids.New(),
		Digest:    DigestSecret(secret),
		Kind:      kind,
		OwnerID:   ownerID,
		ExpiresAt: now.Add(ttl),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.Create(ctx, tok); err != nil {
		return "", nil, fmt.Errorf("opaque: create token: %w", err)
	}
	obs.OpaqueIssued.WithLabelValues(string(kind)).Inc()
	return secret, tok, nil
}

// Validate resolves the secret's row and checks its state without consuming
// it. On expiry detection the row is opportunistically revoked; correctness
// never depends on that write because the timestamp comparison decides.
func (s *Service) Validate(ctx context.Context, secret string, kind Kind) (*Token, error) {
	return s.validateDigest(ctx, DigestSecret(secret), kind)
}

func (s *Service) validateDigest(ctx context.Context, digest string, kind Kind) (*Token, error) {
	tok, err := s.store.FindByDigest(ctx, digest, kind)
	if err != nil {
		return nil, err
	}
	if tok.Revoked {
		return nil, ErrRevoked
	}
	if !tok.ExpiresAt.After(s.now()) {
		// Lazy cleanup: flag the expired row so the sweep can reclaim it.
		_, _ = s.store.MarkRevoked(ctx, tok.ID)
		return nil, ErrExpired
	}
	return tok, nil
}

// ValidateAndConsume validates the secret and atomically revokes the row,
// guaranteeing at-most-once successful consumption: when two callers race on
// the same still-valid secret, the conditional revoke admits exactly one.
func (s *Service) ValidateAndConsume(ctx context.Context, secret string, kind Kind) (*Token, error) {
	tok, err := s.Validate(ctx, secret, kind)
	if err != nil {
		return nil, err
	}
	ok, err := s.store.MarkRevoked(ctx, tok.ID)
	if err != nil {
		return nil, fmt.Errorf("opaque: consume token: %w", err)
	}
	if !ok {
		return nil, ErrRevoked
	}
	tok.Revoked = true
	obs.OpaqueConsumed.WithLabelValues(string(tok.Kind)).Inc()
	return tok, nil
}

// RotateRefresh consumes the old refresh secret and issues a replacement for
// the same owner. Refresh tokens are strictly single-use: replaying an
// already-rotated secret fails with ErrRevoked.
func (s *Service) RotateRefresh(ctx context.Context, oldSecret string, ttl time.Duration) (string, *Token, error) {
	old, err := s.ValidateAndConsume(ctx, oldSecret, KindRefresh)
	if err != nil {
		return "", nil, err
	}
	return s.Issue(ctx, old.OwnerID, KindRefresh, ttl)
}

// Revoke marks the row matching the secret as revoked, if one exists.
func (s *Service) Revoke(ctx context.Context, secret string) error {
	tok, err := s.store.FindByDigest(ctx, DigestSecret(secret), KindAny)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	_, err = s.store.MarkRevoked(ctx, tok.ID)
	return err
}

// RevokeAllForOwner revokes every live token for the owner across all kinds.
// Used on logout-everywhere, password change, disable, and deletion.
func (s *Service) RevokeAllForOwner(ctx context.Context, ownerID string) error {
	_, err := s.store.RevokeAllForOwner(ctx, ownerID, KindAny)
	return err
}

// RevokeAllAccessForOwner revokes only ACCESS rows, invalidating sessions
// without destroying pending verification or reset tokens.
func (s *Service) RevokeAllAccessForOwner(ctx context.Context, ownerID string) error {
	_, err := s.store.RevokeAllForOwner(ctx, ownerID, KindAccess)
	return err
}

// TrackAccess records an ACCESS companion row for a bearer token's jti so the
// bearer can be killed server-side. Every bearer issuance pairs with this call.
func (s *Service) TrackAccess(ctx context.Context, ownerID, jti string, ttl time.Duration) error {
	if jti == "" {
		return errors.New("opaque: jti is required")
	}
	now := s.now().UTC()
	if ttl <= 0 {
		ttl = s.ttls[KindAccess]
	}
	tok := &Token{
		ID:        ids.New(),
		Digest:    DigestSecret(jti),
		Kind:      KindAccess,
		OwnerID:   ownerID,
		ExpiresAt: now.Add(ttl),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.Create(ctx, tok); err != nil {
		return fmt.Errorf("opaque: track access: %w", err)
	}
	obs.OpaqueIssued.WithLabelValues(string(KindAccess)).Inc()
	return nil
}

// IsAccessValid reports whether the ACCESS companion row for jti is live.
// A signed bearer token whose companion row is gone, revoked, or expired
// must be treated as invalid by callers.
func (s *Service) IsAccessValid(ctx context.Context, jti string) bool {
	if jti == "" {
		return false
	}
	_, err := s.validateDigest(ctx, DigestSecret(jti), KindAccess)
	return err == nil
}

// RevokeAccess kills the single session identified by jti.
func (s *Service) RevokeAccess(ctx context.Context, jti string) error {
	tok, err := s.store.FindByDigest(ctx, DigestSecret(jti), KindAccess)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	_, err = s.store.MarkRevoked(ctx, tok.ID)
	return err
}

// Sweep deletes rows that are revoked or expired and were last updated
// before the retention cutoff. Idempotent; safe on any schedule.
func (s *Service) Sweep(ctx context.Context, retention time.Duration) (int64, error) {
	now := s.now().UTC()
	deleted, err := s.store.DeleteStale(ctx, now, now.Add(-retention))
	if err != nil {
		return 0, fmt.Errorf("opaque: sweep: %w", err)
	}
	obs.SweepDeleted.Add(float64(deleted))
	return deleted, nil
}

// SweepEvery runs Sweep on the given interval until stop is closed. A failed
// sweep only delays cleanup; it is logged and retried next tick.
func (s *Service) SweepEvery(interval, retention time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
			deleted, err := s.Sweep(ctx, retention)
			cancel()
			if err != nil {
				obs.Log(map[string]any{"level": "error", "msg": "opaque: sweep failed", "error": err.Error()})
				continue
			}
			if deleted > 0 {
				obs.Log(map[string]any{"level": "info", "msg": "opaque: sweep", "deleted": deleted})
			}
		case <-stop:
			return
		}
	}
}
