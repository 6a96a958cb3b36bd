// Package ids generates lexicographically sortable identifiers for storage
// rows. Entropy comes from crypto/rand so identifiers are also unpredictable.
package ids

import (
	cryptorand "crypto/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(cryptorand.Reader, 0)
)

// New returns a new ULID string.
func New() string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}
