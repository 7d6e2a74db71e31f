package postgres

import (
	"context"
	"errors"

	"github.com/geocoder89/accounthub/internal/domain/user"
	"github.com/geocoder89/accounthub/internal/observability"
	"github.com/jackc/pgx/v5"
)

var ErrNotPgxTx = errors.New("postgres: transaction was not started by this store")

type RefreshTokensRepo struct {
	db DB
	observer
}

func NewRefreshTokensRepo(db DB, prom *observability.Prom) *RefreshTokensRepo {
	return &RefreshTokensRepo{db: db, observer: observer{prom: prom}}
}

func (r *RefreshTokensRepo) BeginTx(ctx context.Context) (user.Tx, error) {
	return r.db.BeginTx(ctx, pgx.TxOptions{})
}

func (r *RefreshTokensRepo) Create(ctx context.Context, tx user.Tx, row user.RefreshToken) error {
	ptx, err := asPgxTx(tx)
	if err != nil {
		return err
	}

	return r.observe("refresh_tokens.create", func() error {
		_, err := ptx.Exec(ctx,
			`INSERT INTO refresh_tokens (id, user_id, token_hash, expires_at, revoked_at, replaced_by, created_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7)`,
			row.ID, row.UserID, row.TokenHash, row.ExpiresAt, row.RevokedAt, row.ReplacedBy, row.CreatedAt,
		)
		return err
	})
}

// Locks the row to prevent concurrent refresh races

func (r *RefreshTokensRepo) GetForUpdate(ctx context.Context, tx user.Tx, id string) (user.RefreshToken, error) {
	ptx, err := asPgxTx(tx)
	if err != nil {
		return user.RefreshToken{}, err
	}

	var row user.RefreshToken

	err = r.observe("refresh_tokens.get_for_update", func() error {
		return ptx.QueryRow(ctx, `
			SELECT id, user_id, token_hash, expires_at, revoked_at, replaced_by, created_at
			FROM refresh_tokens
			WHERE id = $1
			FOR UPDATE
		`, id).Scan(
			&row.ID,
			&row.UserID,
			&row.TokenHash,
			&row.ExpiresAt,
			&row.RevokedAt,
			&row.ReplacedBy,
			&row.CreatedAt,
		)
	})

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return user.RefreshToken{}, user.ErrRefreshTokenNotFound
		}

		return user.RefreshToken{}, err
	}

	return row, nil
}

func (r *RefreshTokensRepo) Revoke(ctx context.Context, tx user.Tx, id string, replacedBy *string) error {
	ptx, err := asPgxTx(tx)
	if err != nil {
		return err
	}

	return r.observe("refresh_tokens.revoke", func() error {
		_, err := ptx.Exec(ctx, `
			UPDATE refresh_tokens
			SET revoked_at = NOW(), replaced_by = $2
			WHERE id = $1
		`, id, replacedBy)
		return err
	})
}

func (r *RefreshTokensRepo) RevokeAllForUser(ctx context.Context, tx user.Tx, userID string) error {
	ptx, err := asPgxTx(tx)
	if err != nil {
		return err
	}

	return r.observe("refresh_tokens.revoke_all", func() error {
		_, err := ptx.Exec(ctx, `
			UPDATE refresh_tokens
			SET revoked_at = NOW()
			WHERE user_id = $1 AND revoked_at IS NULL
		`, userID)
		return err
	})
}

func asPgxTx(tx user.Tx) (pgx.Tx, error) {
	ptx, ok := tx.(pgx.Tx)
	if !ok {
		return nil, ErrNotPgxTx
	}
	return ptx, nil
}
