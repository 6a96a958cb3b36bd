package admission

import (
	"context"
	"sync"

	"github.com/polyshop/auth-service/internal/ids"
)

var _ BanStore = (*MemBanStore)(nil)

// MemBanStore is an in-memory BanStore for development mode and tests.
type MemBanStore struct {
	mu    sync.Mutex
	byKey map[string]*Ban
}

// NewMemBanStore constructs an empty MemBanStore.
func NewMemBanStore() *MemBanStore {
	return &MemBanStore{byKey: make(map[string]*Ban)}
}

func (s *MemBanStore) Find(_ context.Context, key string) (*Ban, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ban, ok := s.byKey[key]
	if !ok {
		return nil, ErrBanNotFound
	}
	cp := *ban
	return &cp, nil
}

func (s *MemBanStore) Upsert(_ context.Context, ban *Ban) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ban.ID == "" {
		ban.ID = ids.New()
	}
	cp := *ban
	s.byKey[ban.Key] = &cp
	return nil
}

func (s *MemBanStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.byKey, key)
	return nil
}
