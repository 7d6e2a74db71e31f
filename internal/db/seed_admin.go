package db

import (
	"context"
	"errors"
	"log/slog"

	"github.com/geocoder89/accounthub/internal/config"
	"github.com/geocoder89/accounthub/internal/domain/user"
	"github.com/geocoder89/accounthub/internal/service"
)

type UserCreator interface {
	CreateUser(ctx context.Context, in service.CreateUserInput) (user.User, error)
}

// EnsureAdminUser creates the configured admin account once. An existing
// account with the same email is left untouched.
func EnsureAdminUser(ctx context.Context, users UserCreator, cfg config.Config) error {
	if cfg.AdminEmail == "" || cfg.AdminPassword == "" {
		return nil
	}

	u, err := users.CreateUser(ctx, service.CreateUserInput{
		Name:     cfg.AdminName,
		Email:    cfg.AdminEmail,
		Password: cfg.AdminPassword,
		Role:     user.RoleAdmin,
	})

	if err != nil {
		if errors.Is(err, user.ErrEmailTaken) {
			return nil
		}
		return err
	}

	slog.Default().InfoContext(ctx, "admin_seeded", "user_id", u.ID)

	return nil
}
