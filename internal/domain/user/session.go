package user

import (
	"context"
	"errors"
	"time"
)

var ErrRefreshTokenNotFound = errors.New("refresh token not found")

type RefreshToken struct {
	ID         string
	UserID     string
	TokenHash  string
	ExpiresAt  time.Time
	RevokedAt  *time.Time
	ReplacedBy *string
	CreatedAt  time.Time
}

// Tx is the subset of a database transaction the session store needs.
type Tx interface {
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

type SessionStore interface {
	BeginTx(ctx context.Context) (Tx, error)
	Create(ctx context.Context, tx Tx, row RefreshToken) error
	GetForUpdate(ctx context.Context, tx Tx, id string) (RefreshToken, error)
	Revoke(ctx context.Context, tx Tx, id string, replacedBy *string) error
	RevokeAllForUser(ctx context.Context, tx Tx, userID string) error
}
