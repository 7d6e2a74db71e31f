package postgres

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/geocoder89/accounthub/internal/domain/user"
	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v4"
)

func TestRefreshTokensRepo_RotateInTx(t *testing.T) {
	mock := newMock(t)
	repo := NewRefreshTokensRepo(mock, nil)
	ctx := context.Background()

	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	newID := "b5c1f3c2-0000-4000-8000-000000000002"

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`FOR UPDATE`)).
		WithArgs("a5c1f3c2-0000-4000-8000-000000000001").
		WillReturnRows(pgxmock.NewRows([]string{"id", "user_id", "token_hash", "expires_at", "revoked_at", "replaced_by", "created_at"}).
			AddRow("a5c1f3c2-0000-4000-8000-000000000001", "u1", "hash", now.Add(time.Hour), (*time.Time)(nil), (*string)(nil), now))
	mock.ExpectExec(regexp.QuoteMeta(`SET revoked_at = NOW(), replaced_by = $2`)).
		WithArgs("a5c1f3c2-0000-4000-8000-000000000001", &newID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO refresh_tokens`)).
		WithArgs(newID, "u1", "hash2", pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	tx, err := repo.BeginTx(ctx)
	if err != nil {
		t.Fatalf("BeginTx: %v", err)
	}

	row, err := repo.GetForUpdate(ctx, tx, "a5c1f3c2-0000-4000-8000-000000000001")
	if err != nil {
		t.Fatalf("GetForUpdate: %v", err)
	}
	if row.UserID != "u1" || row.RevokedAt != nil {
		t.Fatalf("unexpected row %+v", row)
	}

	if err := repo.Revoke(ctx, tx, row.ID, &newID); err != nil {
		t.Fatalf("Revoke: %v", err)
	}

	err = repo.Create(ctx, tx, user.RefreshToken{ID: newID, UserID: "u1", TokenHash: "hash2", ExpiresAt: now.Add(time.Hour), CreatedAt: now})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if err := tx.Commit(ctx); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestRefreshTokensRepo_GetForUpdateNotFound(t *testing.T) {
	mock := newMock(t)
	repo := NewRefreshTokensRepo(mock, nil)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`FOR UPDATE`)).
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectRollback()

	tx, err := repo.BeginTx(ctx)
	if err != nil {
		t.Fatalf("BeginTx: %v", err)
	}

	if _, err := repo.GetForUpdate(ctx, tx, "missing"); !errors.Is(err, user.ErrRefreshTokenNotFound) {
		t.Fatalf("expected ErrRefreshTokenNotFound, got %v", err)
	}

	_ = tx.Rollback(ctx)

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

type notPgxTx struct{}

func (notPgxTx) Commit(context.Context) error   { return nil }
func (notPgxTx) Rollback(context.Context) error { return nil }

func TestRefreshTokensRepo_RejectsForeignTx(t *testing.T) {
	repo := NewRefreshTokensRepo(newMock(t), nil)

	if err := repo.RevokeAllForUser(context.Background(), notPgxTx{}, "u1"); !errors.Is(err, ErrNotPgxTx) {
		t.Fatalf("expected ErrNotPgxTx, got %v", err)
	}
}
