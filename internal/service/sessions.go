package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/geocoder89/accounthub/internal/domain/user"
)

// Session is what a successful login or refresh hands back to the client.
type Session struct {
	AccessToken      string
	RefreshToken     string
	RefreshExpiresAt time.Time
	User             user.User
}

var errInvalidRefresh = &user.Error{Kind: user.KindUnauthorized, Msg: "invalid refresh token"}

func (s *UserService) Login(ctx context.Context, email, password string) (sess Session, err error) {
	const op = "users.login"
	defer func() { s.metrics.ObserveLogin(resultOf(err)) }()

	u, err := s.users.FindByEmail(ctx, user.NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			s.burnCompare(password)
			return Session{}, user.ErrInvalidCredentials
		}
		return Session{}, user.NewError(user.KindInternal, op, "", err)
	}

	if err := s.hasher.Compare(u.PasswordHash, password); err != nil {
		return Session{}, user.ErrInvalidCredentials
	}

	sess, err = s.issueSession(ctx, op, u)
	if err != nil {
		return Session{}, err
	}

	slog.Default().InfoContext(ctx, "user_login", "user_id", u.ID)

	return sess, nil
}

// Refresh rotates a refresh token: the presented one is revoked and replaced
// inside a single transaction holding its row lock.
func (s *UserService) Refresh(ctx context.Context, raw string) (sess Session, err error) {
	const op = "users.refresh"
	defer func() { s.metrics.ObserveUserOp(op, resultOf(err)) }()

	claims, err := s.tokens.VerifyRefreshToken(raw)
	if err != nil {
		return Session{}, errInvalidRefresh
	}

	tx, err := s.sessions.BeginTx(ctx)
	if err != nil {
		return Session{}, user.NewError(user.KindInternal, op, "", err)
	}

	defer func() { _ = tx.Rollback(ctx) }()

	row, err := s.sessions.GetForUpdate(ctx, tx, claims.JTI)
	if err != nil {
		if errors.Is(err, user.ErrRefreshTokenNotFound) {
			return Session{}, errInvalidRefresh
		}
		return Session{}, user.NewError(user.KindInternal, op, "", err)
	}

	if row.RevokedAt != nil {
		return Session{}, errInvalidRefresh
	}

	if s.clock.Now().After(row.ExpiresAt) {
		return Session{}, &user.Error{Kind: user.KindUnauthorized, Op: op, Msg: "refresh token expired"}
	}

	// prevents token substitution
	if row.TokenHash != s.tokens.HashRefreshToken(raw) {
		return Session{}, errInvalidRefresh
	}

	u, err := s.users.FindByID(ctx, row.UserID)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return Session{}, errInvalidRefresh
		}
		return Session{}, user.NewError(user.KindInternal, op, "", err)
	}

	newRaw, newJTI, newExpiresAt, err := s.tokens.GenerateRefreshToken(u.ID, u.Email, string(u.Role))
	if err != nil {
		return Session{}, user.NewError(user.KindInternal, op, "", err)
	}

	if err := s.sessions.Revoke(ctx, tx, row.ID, &newJTI); err != nil {
		return Session{}, user.NewError(user.KindInternal, op, "", err)
	}

	err = s.sessions.Create(ctx, tx, user.RefreshToken{
		ID:        newJTI,
		UserID:    u.ID,
		TokenHash: s.tokens.HashRefreshToken(newRaw),
		ExpiresAt: newExpiresAt,
		CreatedAt: s.clock.Now(),
	})
	if err != nil {
		return Session{}, user.NewError(user.KindInternal, op, "", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return Session{}, user.NewError(user.KindInternal, op, "", err)
	}

	access, err := s.tokens.GenerateAccessToken(u.ID, u.Email, string(u.Role))
	if err != nil {
		return Session{}, user.NewError(user.KindInternal, op, "", err)
	}

	return Session{
		AccessToken:      access,
		RefreshToken:     newRaw,
		RefreshExpiresAt: newExpiresAt,
		User:             u,
	}, nil
}

// Logout revokes the presented refresh token. Unknown or malformed tokens
// are ignored.
func (s *UserService) Logout(ctx context.Context, raw string) (err error) {
	const op = "users.logout"
	defer func() { s.metrics.ObserveUserOp(op, resultOf(err)) }()

	if raw == "" {
		return nil
	}

	claims, err := s.tokens.VerifyRefreshToken(raw)
	if err != nil {
		return nil
	}

	tx, err := s.sessions.BeginTx(ctx)
	if err != nil {
		return user.NewError(user.KindInternal, op, "", err)
	}

	defer func() { _ = tx.Rollback(ctx) }()

	if err := s.sessions.Revoke(ctx, tx, claims.JTI, nil); err != nil {
		return user.NewError(user.KindInternal, op, "", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return user.NewError(user.KindInternal, op, "", err)
	}

	return nil
}

func (s *UserService) issueSession(ctx context.Context, op string, u user.User) (Session, error) {
	access, err := s.tokens.GenerateAccessToken(u.ID, u.Email, string(u.Role))
	if err != nil {
		return Session{}, user.NewError(user.KindInternal, op, "could not generate access token", err)
	}

	raw, jti, expiresAt, err := s.tokens.GenerateRefreshToken(u.ID, u.Email, string(u.Role))
	if err != nil {
		return Session{}, user.NewError(user.KindInternal, op, "could not generate refresh token", err)
	}

	tx, err := s.sessions.BeginTx(ctx)
	if err != nil {
		return Session{}, user.NewError(user.KindInternal, op, "could not create session", err)
	}

	defer func() { _ = tx.Rollback(ctx) }()

	err = s.sessions.Create(ctx, tx, user.RefreshToken{
		ID:        jti,
		UserID:    u.ID,
		TokenHash: s.tokens.HashRefreshToken(raw),
		ExpiresAt: expiresAt,
		CreatedAt: s.clock.Now(),
	})
	if err != nil {
		return Session{}, user.NewError(user.KindInternal, op, "could not create session", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return Session{}, user.NewError(user.KindInternal, op, "could not create session", err)
	}

	return Session{
		AccessToken:      access,
		RefreshToken:     raw,
		RefreshExpiresAt: expiresAt,
		User:             u,
	}, nil
}

func (s *UserService) revokeAll(ctx context.Context, userID string) error {
	if s.sessions == nil {
		return nil
	}

	tx, err := s.sessions.BeginTx(ctx)
	if err != nil {
		return err
	}

	defer func() { _ = tx.Rollback(ctx) }()

	if err := s.sessions.RevokeAllForUser(ctx, tx, userID); err != nil {
		return err
	}

	return tx.Commit(ctx)
}
