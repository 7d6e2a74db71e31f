package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/geocoder89/accounthub/internal/domain/user"
)

type CreateUserInput struct {
	Name     string
	Email    string
	Password string
	Memo     *string
	Role     user.Role
}

// UpdateUserInput fields left nil are not changed. A provided name must not
// be blank and a provided password must not be empty.
type UpdateUserInput struct {
	ID       string
	Name     *string
	Password *string
}

func (s *UserService) CreateUser(ctx context.Context, in CreateUserInput) (u user.User, err error) {
	const op = "users.create"
	defer func() { s.metrics.ObserveUserOp(op, resultOf(err)) }()

	name := strings.TrimSpace(in.Name)
	email := user.NormalizeEmail(in.Email)

	if name == "" {
		return user.User{}, user.Validation(op, "name is required")
	}
	if email == "" {
		return user.User{}, user.Validation(op, "email is required")
	}
	if in.Password == "" {
		return user.User{}, user.Validation(op, "password is required")
	}

	role := in.Role
	if role == "" {
		role = user.RoleUser
	}
	if !role.IsValid() {
		return user.User{}, user.Validation(op, "unknown role")
	}

	_, err = s.users.FindByEmail(ctx, email)
	if err == nil {
		return user.User{}, user.ErrEmailTaken
	}
	if !errors.Is(err, user.ErrNotFound) {
		return user.User{}, user.NewError(user.KindInternal, op, "", err)
	}

	now := s.clock.Now()

	id, err := s.ids.NewID(now)
	if err != nil {
		return user.User{}, user.NewError(user.KindInternal, op, "", err)
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return user.User{}, user.NewError(user.KindInternal, op, "", err)
	}

	u = user.User{
		ID:           id,
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		Memo:         in.Memo,
		Role:         role,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	// the repository enforces uniqueness too, for concurrent sign ups
	err = s.users.Create(ctx, u)
	if err != nil {
		if errors.Is(err, user.ErrEmailTaken) {
			return user.User{}, user.ErrEmailTaken
		}
		return user.User{}, user.NewError(user.KindInternal, op, "", err)
	}

	slog.Default().InfoContext(ctx, "user_created", "user_id", u.ID, "role", u.Role)

	return u, nil
}

func (s *UserService) UpdateUser(ctx context.Context, in UpdateUserInput) (u user.User, err error) {
	const op = "users.update"
	defer func() { s.metrics.ObserveUserOp(op, resultOf(err)) }()

	var name string
	if in.Name != nil {
		if name = strings.TrimSpace(*in.Name); name == "" {
			return user.User{}, user.Validation(op, "name must not be blank")
		}
	}
	if in.Password != nil && *in.Password == "" {
		return user.User{}, user.Validation(op, "password must not be empty")
	}

	u, err = s.findByID(ctx, op, in.ID)
	if err != nil {
		return user.User{}, err
	}

	if in.Name != nil {
		u.Name = name
	}

	if in.Password != nil {
		hash, err := s.hasher.Hash(*in.Password)
		if err != nil {
			return user.User{}, user.NewError(user.KindInternal, op, "", err)
		}
		u.PasswordHash = hash
	}

	u.UpdatedAt = s.clock.Now()

	err = s.users.Update(ctx, u)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return user.User{}, user.ErrNotFound
		}
		return user.User{}, user.NewError(user.KindInternal, op, "", err)
	}

	return u, nil
}

func (s *UserService) GetUser(ctx context.Context, id string) (user.User, error) {
	return s.findByID(ctx, "users.get", id)
}

// GetUsers returns one page of users ordered by creation time along with the
// total number of users across all pages.
func (s *UserService) GetUsers(ctx context.Context, page, itemsPerPage int) (total int, users []user.User, err error) {
	const op = "users.list"
	defer func() { s.metrics.ObserveUserOp(op, resultOf(err)) }()

	users, total, err = s.users.List(ctx, user.NewPage(page, itemsPerPage))
	if err != nil {
		return 0, nil, user.NewError(user.KindInternal, op, "", err)
	}

	return total, users, nil
}

// DeleteUser reports NotFound for unknown ids and revokes the user's
// refresh tokens.
func (s *UserService) DeleteUser(ctx context.Context, id string) (err error) {
	const op = "users.delete"
	defer func() { s.metrics.ObserveUserOp(op, resultOf(err)) }()

	if strings.TrimSpace(id) == "" {
		return user.Validation(op, "id is required")
	}

	err = s.users.Delete(ctx, id)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return user.ErrNotFound
		}
		return user.NewError(user.KindInternal, op, "", err)
	}

	if err := s.revokeAll(ctx, id); err != nil {
		slog.Default().WarnContext(ctx, "revoke_sessions_failed", "user_id", id, "err", err)
	}

	slog.Default().InfoContext(ctx, "user_deleted", "user_id", id)

	return nil
}

func (s *UserService) findByID(ctx context.Context, op, id string) (user.User, error) {
	if strings.TrimSpace(id) == "" {
		return user.User{}, user.Validation(op, "id is required")
	}

	u, err := s.users.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return user.User{}, user.ErrNotFound
		}
		return user.User{}, user.NewError(user.KindInternal, op, "", err)
	}

	return u, nil
}
