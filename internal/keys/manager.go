// Package keys owns the signing key set: loading from disk, rotation, and
// lookup for token verification.
package keys

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/polyshop/auth-service/internal/obs"
)

// ErrNoUsableKeys is returned when the key directory yields nothing and
// generated development keys are disallowed.
var ErrNoUsableKeys = errors.New("keys: no usable signing keys")

// Pair is one signing key pair. Immutable after creation.
type Pair struct {
	Kid        string
	PrivateKey *rsa.PrivateKey
	PublicKey  *rsa.PublicKey
	CreatedAt  time.Time
}

// snapshot is an immutable view of the keyring. Readers load it through a
// single atomic pointer and never take a lock.
type snapshot struct {
	active *Pair
	pairs  map[string]*Pair
}

// Manager maintains the keyring. Rotation adds keys, it never removes them:
// a token signed by any historical key stays verifiable for its lifetime.
type Manager struct {
	current  atomic.Pointer[snapshot]
	rotateMu sync.Mutex
	now      func() time.Time
}

// Option configures Manager construction.
type Option func(*Manager)

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) Option {
	return func(m *Manager) {
		if fn != nil {
			m.now = fn
		}
	}
}

// NewManager loads key pairs from dir (each pair is <kid>.pem plus
// <kid>.pub.pem). Malformed pairs are skipped individually. With an empty or
// fruitless directory the manager either generates a development pair
// (allowGenerated) or fails.
func NewManager(dir string, allowGenerated bool, opts ...Option) (*Manager, error) {
	m := &Manager{now: time.Now}
	for _, opt := range opts {
		opt(m)
	}

	pairs := map[string]*Pair{}
	if strings.TrimSpace(dir) != "" {
		loadDir(dir, pairs, m.now)
	}

	if len(pairs) == 0 {
		if !allowGenerated {
			return nil, ErrNoUsableKeys
		}
		pair, err := m.newPair()
		if err != nil {
			return nil, err
		}
		pairs[pair.Kid] = pair
		obs.Logger().Println(`{"level":"warn","msg":"keys: no key directory configured, generated a development signing key"}`)
	}

	m.current.Store(&snapshot{active: newest(pairs), pairs: pairs})
	return m, nil
}

// Active returns the pair used for signing new tokens.
func (m *Manager) Active() Pair {
	return *m.current.Load().active
}

// PublicKey resolves a verification key strictly by kid.
func (m *Manager) PublicKey(kid string) (*rsa.PublicKey, bool) {
	pair, ok := m.current.Load().pairs[kid]
	if !ok {
		return nil, false
	}
	return pair.PublicKey, true
}

// PublicKeys returns every known verification key keyed by kid.
func (m *Manager) PublicKeys() map[string]*rsa.PublicKey {
	snap := m.current.Load()
	out := make(map[string]*rsa.PublicKey, len(snap.pairs))
	for kid, pair := range snap.pairs {
		out[kid] = pair.PublicKey
	}
	return out
}

// Rotate generates a fresh pair, makes it active, and publishes the new
// keyring in one atomic swap. Old keys remain available for verification.
func (m *Manager) Rotate() (string, error) {
	m.rotateMu.Lock()
	defer m.rotateMu.Unlock()

	pair, err := m.newPair()
	if err != nil {
		return "", err
	}

	old := m.current.Load()
	pairs := make(map[string]*Pair, len(old.pairs)+1)
	for kid, p := range old.pairs {
		pairs[kid] = p
	}
	pairs[pair.Kid] = pair
	m.current.Store(&snapshot{active: pair, pairs: pairs})
	obs.KeyRotations.Inc()
	return pair.Kid, nil
}

// RotateEvery runs Rotate on the given interval until stop is closed.
// Rotation failures are logged and do not affect request handling.
func (m *Manager) RotateEvery(interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if _, err := m.Rotate(); err != nil {
				obs.Logger().Println(fmt.Sprintf(`{"level":"error","msg":"keys: rotation failed","error":%q}`, err.Error()))
			}
		case <-stop:
			return
		}
	}
}

func (m *Manager) newPair() (*Pair, error) {
	key, err := GeneratePair()
	if err != nil {
		return nil, err
	}
	return &Pair{
		Kid:        uuid.NewString(),
		PrivateKey: key,
		PublicKey:  &key.PublicKey,
		CreatedAt:  m.now().UTC(),
	}, nil
}

func newest(pairs map[string]*Pair) *Pair {
	var latest *Pair
	for _, p := range pairs {
		if latest == nil || p.CreatedAt.After(latest.CreatedAt) {
			latest = p
		}
	}
	return latest
}

// loadDir reads every <kid>.pem / <kid>.pub.pem pair under dir. A pair that
// fails to parse is skipped so one bad file cannot poison the keyring.
func loadDir(dir string, pairs map[string]*Pair, now func() time.Time) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		obs.Logger().Println(fmt.Sprintf(`{"level":"warn","msg":"keys: read key directory","error":%q}`, err.Error()))
		return
	}
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".pem") || strings.HasSuffix(name, ".pub.pem") {
			continue
		}
		kid := strings.TrimSuffix(name, ".pem")
		privPEM, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			continue
		}
		pubPEM, err := os.ReadFile(filepath.Join(dir, kid+".pub.pem"))
		if err != nil {
			continue
		}
		priv, err := ParsePrivateKeyPEM(privPEM)
		if err != nil {
			obs.Logger().Println(fmt.Sprintf(`{"level":"warn","msg":"keys: skip malformed private key","kid":%q}`, kid))
			continue
		}
		pub, err := ParsePublicKeyPEM(pubPEM)
		if err != nil {
			obs.Logger().Println(fmt.Sprintf(`{"level":"warn","msg":"keys: skip malformed public key","kid":%q}`, kid))
			continue
		}
		createdAt := now().UTC()
		if info, err := entry.Info(); err == nil {
			createdAt = info.ModTime().UTC()
		}
		pairs[kid] = &Pair{Kid: kid, PrivateKey: priv, PublicKey: pub, CreatedAt: createdAt}
	}
}
