// Package token issues and verifies signed bearer tokens. Verification is a
// pure computation over the current keyring snapshot; revocation lives in the
// opaque token store via ACCESS companion rows keyed by the bearer's jti.
package token

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/polyshop/auth-service/internal/keys"
	"github.com/polyshop/auth-service/internal/obs"
)

var (
	// ErrMalformed indicates the token structure cannot be parsed or the
	// claims fail basic validation.
	ErrMalformed = errors.New("token: malformed")
	// ErrExpired indicates the token's expiry has passed.
	ErrExpired = errors.New("token: expired")
	// ErrBadKey indicates the header kid is missing or unknown, or the
	// signature does not verify under the identified key.
	ErrBadKey = errors.New("token: bad signing key")
)

// Claims carries the verified bearer token payload.
type Claims struct {
	Roles []string `json:"roles"`
	jwt.RegisteredClaims
}

// Keyring is the key material the issuer needs: the active pair for signing
// and strict by-kid lookup for verification.
type Keyring interface {
	Active() keys.Pair
	PublicKey(kid string) (*rsa.PublicKey, bool)
}

// Issuer signs and verifies bearer tokens.
type Issuer struct {
	keyring Keyring
	issuer  string
	ttl     time.Duration
	now     func() time.Time
}

// Option configures Issuer behavior.
type Option func(*Issuer)

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) Option {
	return func(i *Issuer) {
		if fn != nil {
			i.now = fn
		}
	}
}

// NewIssuer constructs an Issuer. ttl bounds every issued token's validity.
func NewIssuer(keyring Keyring, issuer string, ttl time.Duration, opts ...Option) (*Issuer, error) {
	if keyring == nil {
		return nil, errors.New("token: keyring is required")
	}
	if strings.TrimSpace(issuer) == "" {
		return nil, errors.New("token: issuer is required")
	}
	if ttl <= 0 {
		return nil, errors.New("token: ttl must be greater than zero")
	}
	iss := &Issuer{keyring: keyring, issuer: issuer, ttl: ttl, now: time.Now}
	for _, opt := range opts {
		opt(iss)
	}
	return iss, nil
}

// Issue signs a token asserting subject and roles under the currently active
// key. An empty tokenID is replaced with a fresh unpredictable jti.
func (i *Issuer) Issue(subject string, roles []string, tokenID string) (signed string, claims *Claims, err error) {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return "", nil, fmt.Errorf("%w: subject is required", ErrMalformed)
	}
	if tokenID == "" {
		tokenID = uuid.NewString()
	}

	now := i.now().UTC()
	claims = &Claims{
		Roles: roles,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    i.issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
			ID:        tokenID,
		},
	}

	active := i.keyring.Active()
	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	tok.Header["kid"] = active.Kid
	signed, err = tok.SignedString(active.PrivateKey)
	if err != nil {
		return "", nil, fmt.Errorf("token: sign: %w", err)
	}
	obs.BearerIssued.Inc()
	return signed, claims, nil
}

// Verify parses and validates a bearer token. The verification key is
// resolved strictly by the kid carried in the header; no other key is tried.
func (i *Issuer) Verify(signed string) (*Claims, error) {
	claims, err := i.verify(signed)
	switch {
	case err == nil:
		obs.BearerVerified.WithLabelValues("ok").Inc()
	case errors.Is(err, ErrExpired):
		obs.BearerVerified.WithLabelValues("expired").Inc()
	case errors.Is(err, ErrBadKey):
		obs.BearerVerified.WithLabelValues("bad_key").Inc()
	default:
		obs.BearerVerified.WithLabelValues("malformed").Inc()
	}
	return claims, err
}

func (i *Issuer) verify(signed string) (*Claims, error) {
	signed = strings.TrimSpace(signed)
	if signed == "" {
		return nil, ErrMalformed
	}

	parsed, err := jwt.ParseWithClaims(signed, &Claims{}, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodRS256 {
			return nil, ErrBadKey
		}
		kid, ok := t.Header["kid"].(string)
		if !ok || kid == "" {
			return nil, ErrBadKey
		}
		pub, ok := i.keyring.PublicKey(kid)
		if !ok {
			return nil, ErrBadKey
		}
		return pub, nil
	}, jwt.WithTimeFunc(i.now), jwt.WithIssuer(i.issuer))
	if err != nil {
		switch {
		case errors.Is(err, ErrBadKey), errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return nil, ErrBadKey
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, ErrExpired
		default:
			return nil, ErrMalformed
		}
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrMalformed
	}
	if strings.TrimSpace(claims.Subject) == "" || claims.ID == "" {
		return nil, ErrMalformed
	}
	if claims.ExpiresAt == nil || claims.IssuedAt == nil {
		return nil, ErrMalformed
	}
	return claims, nil
}

// TTL returns the configured bearer token lifetime.
func (i *Issuer) TTL() time.Duration {
	return i.ttl
}

// Name returns the issuer claim stamped into every token.
func (i *Issuer) Name() string {
	return i.issuer
}
