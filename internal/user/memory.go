package user

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/polyshop/auth-service/internal/ids"
)

var _ Directory = (*MemDirectory)(nil)

// MemDirectory is an in-memory Directory for development mode and tests.
type MemDirectory struct {
	mu   sync.Mutex
	byID map[string]*User
}

// NewMemDirectory constructs an empty MemDirectory.
func NewMemDirectory() *MemDirectory {
	return &MemDirectory{byID: make(map[string]*User)}
}

func (s *MemDirectory) Create(_ context.Context, u *User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.byID {
		if existing.Email != "" && strings.EqualFold(existing.Email, u.Email) {
			return ErrAlreadyExists
		}
	}
	if u.ID == "" {
		u.ID = ids.New()
	}
	if u.Status == "" {
		u.Status = StatusActive
	}
	now := time.Now().UTC()
	u.CreatedAt, u.UpdatedAt = now, now
	cp := *u
	s.byID[u.ID] = &cp
	return nil
}

func (s *MemDirectory) Find(_ context.Context, id string) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *MemDirectory) FindByEmail(_ context.Context, email string) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.byID {
		if strings.EqualFold(u.Email, email) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemDirectory) FindByPhone(_ context.Context, phone string) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.byID {
		if u.Phone != "" && u.Phone == phone {
			cp := *u
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemDirectory) UpdatePassword(_ context.Context, id, passwordHash string) error {
	return s.mutate(id, func(u *User) { u.PasswordHash = passwordHash })
}

func (s *MemDirectory) UpdateStatus(_ context.Context, id, status string) error {
	return s.mutate(id, func(u *User) { u.Status = status })
}

func (s *MemDirectory) SetEmailVerified(_ context.Context, id string, verified bool) error {
	return s.mutate(id, func(u *User) { u.EmailVerified = verified })
}

func (s *MemDirectory) SetPhoneVerified(_ context.Context, id string, verified bool) error {
	return s.mutate(id, func(u *User) { u.PhoneVerified = verified })
}

func (s *MemDirectory) SetTOTP(_ context.Context, id, secret string, enabled bool) error {
	return s.mutate(id, func(u *User) {
		u.TOTPSecret = secret
		u.TOTPEnabled = enabled
	})
}

func (s *MemDirectory) mutate(id string, fn func(*User)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.byID[id]
	if !ok {
		return ErrNotFound
	}
	fn(u)
	u.UpdatedAt = time.Now().UTC()
	return nil
}
