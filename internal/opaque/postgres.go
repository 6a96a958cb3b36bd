package opaque

import (
	"context"
	"database/sql"
	"time"
)

var _ Store = (*PGStore)(nil)

// PGStore implements Store on PostgreSQL. The conditional UPDATEs are the
// single point of truth for the revoked flag under concurrent access.
type PGStore struct {
	db *sql.DB
}

// NewPGStore constructs a PGStore.
func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

const tokenColumns = `id, token_digest, kind, owner_id, expires_at, created_at, updated_at, revoked`

func (s *PGStore) Create(ctx context.Context, tok *Token) error {
	_, err := s.db.ExecContext(ctx,
		`insert into auth_tokens(id, token_digest, kind, owner_id, expires_at, created_at, updated_at, revoked)
		 values($1,$2,$3,$4,$5,$6,$7,$8)`,
		tok.ID, tok.Digest, string(tok.Kind), tok.OwnerID, tok.ExpiresAt, tok.CreatedAt, tok.UpdatedAt, tok.Revoked,
	)
	return err
}

func (s *PGStore) FindByDigest(ctx context.Context, digest string, kind Kind) (*Token, error) {
	var row *sql.Row
	if kind == KindAny {
		row = s.db.QueryRowContext(ctx,
			`select `+tokenColumns+` from auth_tokens where token_digest=$1`, digest)
	} else {
		row = s.db.QueryRowContext(ctx,
			`select `+tokenColumns+` from auth_tokens where token_digest=$1 and kind=$2`, digest, string(kind))
	}
	var (
		tok     Token
		kindStr string
	)
	if err := row.Scan(&tok.ID, &tok.Digest, &kindStr, &tok.OwnerID, &tok.ExpiresAt, &tok.CreatedAt, &tok.UpdatedAt, &tok.Revoked); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	tok.Kind = Kind(kindStr)
	return &tok, nil
}

func (s *PGStore) MarkRevoked(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`update auth_tokens set revoked=true, updated_at=$2 where id=$1 and revoked=false`,
		id, time.Now().UTC(),
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *PGStore) RevokeAllForOwner(ctx context.Context, ownerID string, kind Kind) (int64, error) {
	var (
		res sql.Result
		err error
	)
	if kind == KindAny {
		res, err = s.db.ExecContext(ctx,
			`update auth_tokens set revoked=true, updated_at=$2 where owner_id=$1 and revoked=false`,
			ownerID, time.Now().UTC())
	} else {
		res, err = s.db.ExecContext(ctx,
			`update auth_tokens set revoked=true, updated_at=$3 where owner_id=$1 and kind=$2 and revoked=false`,
			ownerID, string(kind), time.Now().UTC())
	}
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *PGStore) DeleteStale(ctx context.Context, now, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`delete from auth_tokens where (revoked=true or expires_at < $1) and updated_at < $2`,
		now, cutoff,
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
