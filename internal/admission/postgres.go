package admission

import (
	"context"
	"database/sql"

	"github.com/polyshop/auth-service/internal/ids"
)

var _ BanStore = (*PGBanStore)(nil)

// PGBanStore implements BanStore on PostgreSQL.
type PGBanStore struct {
	db *sql.DB
}

// NewPGBanStore constructs a PGBanStore.
func NewPGBanStore(db *sql.DB) *PGBanStore {
	return &PGBanStore{db: db}
}

func (s *PGBanStore) Find(ctx context.Context, key string) (*Ban, error) {
	row := s.db.QueryRowContext(ctx,
		`select id, ban_key, until, reason from bans where ban_key=$1`, key)
	var ban Ban
	if err := row.Scan(&ban.ID, &ban.Key, &ban.Until, &ban.Reason); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrBanNotFound
		}
		return nil, err
	}
	return &ban, nil
}

func (s *PGBanStore) Upsert(ctx context.Context, ban *Ban) error {
	if ban.ID == "" {
		ban.ID = ids.New()
	}
	_, err := s.db.ExecContext(ctx,
		`insert into bans(id, ban_key, until, reason) values($1,$2,$3,$4)
		 on conflict (ban_key) do update set until=excluded.until, reason=excluded.reason`,
		ban.ID, ban.Key, ban.Until, ban.Reason,
	)
	return err
}

func (s *PGBanStore) Delete(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `delete from bans where ban_key=$1`, key)
	return err
}
