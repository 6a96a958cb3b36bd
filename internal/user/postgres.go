package user

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/polyshop/auth-service/internal/ids"
)

const pgErrUniqueViolation = "23505"

var _ Directory = (*PGDirectory)(nil)

// PGDirectory implements Directory on PostgreSQL.
type PGDirectory struct {
	db *sql.DB
}

// NewPGDirectory constructs a PGDirectory.
func NewPGDirectory(db *sql.DB) *PGDirectory {
	return &PGDirectory{db: db}
}

const userColumns = `id, email, phone, password_hash, status, roles, email_verified, phone_verified, totp_secret, totp_enabled, created_at, updated_at`

func (s *PGDirectory) Create(ctx context.Context, u *User) error {
	if u.ID == "" {
		u.ID = ids.New()
	}
	if u.Status == "" {
		u.Status = StatusActive
	}
	roles, _ := json.Marshal(u.Roles)
	_, err := s.db.ExecContext(ctx,
		`insert into users(id, email, phone, password_hash, status, roles) values($1,$2,$3,$4,$5,$6)`,
		u.ID, u.Email, u.Phone, u.PasswordHash, u.Status, roles,
	)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return ErrAlreadyExists
		}
		return err
	}
	return nil
}

func maybePgError(err error) (*pgconn.PgError, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr, true
	}
	return nil, false
}

func (s *PGDirectory) Find(ctx context.Context, id string) (*User, error) {
	return s.scanOne(s.db.QueryRowContext(ctx,
		`select `+userColumns+` from users where id=$1`, id))
}

func (s *PGDirectory) FindByEmail(ctx context.Context, email string) (*User, error) {
	return s.scanOne(s.db.QueryRowContext(ctx,
		`select `+userColumns+` from users where email=$1`, email))
}

func (s *PGDirectory) FindByPhone(ctx context.Context, phone string) (*User, error) {
	return s.scanOne(s.db.QueryRowContext(ctx,
		`select `+userColumns+` from users where phone=$1`, phone))
}

func (s *PGDirectory) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	return s.update(ctx, `update users set password_hash=$2, updated_at=$3 where id=$1`, id, passwordHash)
}

func (s *PGDirectory) UpdateStatus(ctx context.Context, id, status string) error {
	return s.update(ctx, `update users set status=$2, updated_at=$3 where id=$1`, id, status)
}

func (s *PGDirectory) SetEmailVerified(ctx context.Context, id string, verified bool) error {
	return s.update(ctx, `update users set email_verified=$2, updated_at=$3 where id=$1`, id, verified)
}

func (s *PGDirectory) SetPhoneVerified(ctx context.Context, id string, verified bool) error {
	return s.update(ctx, `update users set phone_verified=$2, updated_at=$3 where id=$1`, id, verified)
}

func (s *PGDirectory) SetTOTP(ctx context.Context, id, secret string, enabled bool) error {
	res, err := s.db.ExecContext(ctx,
		`update users set totp_secret=$2, totp_enabled=$3, updated_at=$4 where id=$1`,
		id, secret, enabled, time.Now().UTC())
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *PGDirectory) update(ctx context.Context, query, id string, value any) error {
	res, err := s.db.ExecContext(ctx, query, id, value, time.Now().UTC())
	if err != nil {
		return err
	}
	return requireRow(res)
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PGDirectory) scanOne(row *sql.Row) (*User, error) {
	var (
		u     User
		roles []byte
	)
	err := row.Scan(&u.ID, &u.Email, &u.Phone, &u.PasswordHash, &u.Status, &roles,
		&u.EmailVerified, &u.PhoneVerified, &u.TOTPSecret, &u.TOTPEnabled, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	_ = json.Unmarshal(roles, &u.Roles)
	return &u, nil
}
