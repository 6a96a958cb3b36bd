package opaque

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestPGStoreFindByDigest(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	store := NewPGStore(db)
	now := time.Now().UTC()
	cols := []string{"id", "token_digest", "kind", "owner_id", "expires_at", "created_at", "updated_at", "revoked"}

	mock.ExpectQuery("select .* from auth_tokens where token_digest=\\$1 and kind=\\$2").
		WithArgs("digest-1", "REFRESH").
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow("id-1", "digest-1", "REFRESH", "u1", now.Add(time.Hour), now, now, false))

	tok, err := store.FindByDigest(context.Background(), "digest-1", KindRefresh)
	if err != nil {
		t.Fatalf("FindByDigest: %v", err)
	}
	if tok.ID != "id-1" || tok.Kind != KindRefresh || tok.OwnerID != "u1" {
		t.Fatalf("unexpected token %+v", tok)
	}

	mock.ExpectQuery("select .* from auth_tokens where token_digest=\\$1$").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(cols))

	if _, err := store.FindByDigest(context.Background(), "missing", KindAny); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPGStoreMarkRevokedIsConditional(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	store := NewPGStore(db)

	mock.ExpectExec("update auth_tokens set revoked=true, updated_at=\\$2 where id=\\$1 and revoked=false").
		WithArgs("id-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	ok, err := store.MarkRevoked(context.Background(), "id-1")
	if err != nil || !ok {
		t.Fatalf("expected first revoke to win, ok=%v err=%v", ok, err)
	}

	// A second caller racing on the same row affects zero rows.
	mock.ExpectExec("update auth_tokens set revoked=true").
		WithArgs("id-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))
	ok, err = store.MarkRevoked(context.Background(), "id-1")
	if err != nil {
		t.Fatalf("MarkRevoked: %v", err)
	}
	if ok {
		t.Fatalf("loser of the race must not report a transition")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPGStoreRevokeAllForOwner(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	store := NewPGStore(db)

	mock.ExpectExec("update auth_tokens set revoked=true, updated_at=\\$2 where owner_id=\\$1 and revoked=false").
		WithArgs("u1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 3))
	n, err := store.RevokeAllForOwner(context.Background(), "u1", KindAny)
	if err != nil || n != 3 {
		t.Fatalf("RevokeAllForOwner: n=%d err=%v", n, err)
	}

	mock.ExpectExec("update auth_tokens set revoked=true, updated_at=\\$3 where owner_id=\\$1 and kind=\\$2 and revoked=false").
		WithArgs("u1", "ACCESS", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 2))
	n, err = store.RevokeAllForOwner(context.Background(), "u1", KindAccess)
	if err != nil || n != 2 {
		t.Fatalf("RevokeAllForOwner(ACCESS): n=%d err=%v", n, err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPGStoreDeleteStale(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	store := NewPGStore(db)
	now := time.Now().UTC()

	mock.ExpectExec("delete from auth_tokens where \\(revoked=true or expires_at < \\$1\\) and updated_at < \\$2").
		WithArgs(now, now.Add(-time.Hour)).
		WillReturnResult(sqlmock.NewResult(0, 5))

	n, err := store.DeleteStale(context.Background(), now, now.Add(-time.Hour))
	if err != nil || n != 5 {
		t.Fatalf("DeleteStale: n=%d err=%v", n, err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
