package opaque

import (
	"context"
	"sync"
	"time"
)

var _ Store = (*MemStore)(nil)

// MemStore is an in-memory Store used in development mode and tests. The
// mutex gives it the same conditional-write semantics as the SQL backend.
type MemStore struct {
	mu   sync.Mutex
	byID map[string]*Token
}

// NewMemStore constructs an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{byID: make(map[string]*Token)}
}

func (s *MemStore) Create(_ context.Context, tok *Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *tok
	s.byID[tok.ID] = &cp
	return nil
}

func (s *MemStore) FindByDigest(_ context.Context, digest string, kind Kind) (*Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, tok := range s.byID {
		if tok.Digest != digest {
			continue
		}
		if kind != KindAny && tok.Kind != kind {
			continue
		}
		cp := *tok
		return &cp, nil
	}
	return nil, ErrNotFound
}

func (s *MemStore) MarkRevoked(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tok, ok := s.byID[id]
	if !ok || tok.Revoked {
		return false, nil
	}
	tok.Revoked = true
	tok.UpdatedAt = time.Now().UTC()
	return true, nil
}

func (s *MemStore) RevokeAllForOwner(_ context.Context, ownerID string, kind Kind) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, tok := range s.byID {
		if tok.OwnerID != ownerID || tok.Revoked {
			continue
		}
		if kind != KindAny && tok.Kind != kind {
			continue
		}
		tok.Revoked = true
		tok.UpdatedAt = time.Now().UTC()
		n++
	}
	return n, nil
}

func (s *MemStore) DeleteStale(_ context.Context, now, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, tok := range s.byID {
		if (tok.Revoked || tok.ExpiresAt.Before(now)) && tok.UpdatedAt.Before(cutoff) {
			delete(s.byID, id)
			n++
		}
	}
	return n, nil
}
