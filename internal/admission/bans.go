package admission

import (
	"context"
	"errors"
	"strings"
	"time"
)

// ErrBanNotFound indicates no ban row exists for the key.
var ErrBanNotFound = errors.New("admission: ban not found")

// Ban blocks a key until a deadline. Bans persist so they survive restarts.
type Ban struct {
	ID     string
	Key    string
	Until  time.Time
	Reason string
}

// BanStore is the persistence contract for bans.
type BanStore interface {
	Find(ctx context.Context, key string) (*Ban, error)
	Upsert(ctx context.Context, ban *Ban) error
	Delete(ctx context.Context, key string) error
}

// Banlist answers ban queries with lazy lifting: an expired ban is removed
// the first time a read observes it.
type Banlist struct {
	store BanStore
	now   func() time.Time
}

// BanlistOption configures Banlist construction.
type BanlistOption func(*Banlist)

// WithBanlistClock overrides the time source (useful for tests).
func WithBanlistClock(fn func() time.Time) BanlistOption {
	return func(b *Banlist) {
		if fn != nil {
			b.now = fn
		}
	}
}

// NewBanlist constructs a Banlist over the given store.
func NewBanlist(store BanStore, opts ...BanlistOption) (*Banlist, error) {
	if store == nil {
		return nil, errors.New("admission: ban store is required")
	}
	b := &Banlist{store: store, now: time.Now}
	for _, opt := range opts {
		opt(b)
	}
	return b, nil
}

// IsBanned reports whether key is currently banned. Reads tolerate store
// errors by failing open: bans are a coarse secondary defense and an outage
// must not lock everyone out.
func (b *Banlist) IsBanned(ctx context.Context, key string) bool {
	ban, err := b.store.Find(ctx, key)
	if err != nil {
		return false
	}
	if !ban.Until.After(b.now()) {
		_ = b.store.Delete(ctx, key)
		return false
	}
	return true
}

// BanFor upserts a ban on key lasting the given duration.
func (b *Banlist) BanFor(ctx context.Context, key string, d time.Duration, reason string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return errors.New("admission: ban key is required")
	}
	return b.store.Upsert(ctx, &Ban{
		Key:    key,
		Until:  b.now().UTC().Add(d),
		Reason: reason,
	})
}

// Unban removes any ban on key unconditionally.
func (b *Banlist) Unban(ctx context.Context, key string) error {
	err := b.store.Delete(ctx, key)
	if errors.Is(err, ErrBanNotFound) {
		return nil
	}
	return err
}
