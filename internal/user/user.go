// Package user is the minimal principal directory the credential flows need.
// Full profile and role administration live in other services.
package user

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound      = errors.New("user: not found")
	ErrAlreadyExists = errors.New("user: already exists")
)

// Account statuses.
const (
	StatusActive   = "active"
	StatusDisabled = "disabled"
	StatusDeleted  = "deleted"
)

// User is a principal that can hold credentials.
type User struct {
	ID            string
	Email         string
	Phone         string
	PasswordHash  string
	Status        string
	Roles         []string
	EmailVerified bool
	PhoneVerified bool
	TOTPSecret    string
	TOTPEnabled   bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Directory is the persistence contract for principals.
type Directory interface {
	Create(ctx context.Context, u *User) error
	Find(ctx context.Context, id string) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
	FindByPhone(ctx context.Context, phone string) (*User, error)
	UpdatePassword(ctx context.Context, id, passwordHash string) error
	UpdateStatus(ctx context.Context, id, status string) error
	SetEmailVerified(ctx context.Context, id string, verified bool) error
	SetPhoneVerified(ctx context.Context, id string, verified bool) error
	SetTOTP(ctx context.Context, id, secret string, enabled bool) error
}
