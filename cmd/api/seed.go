package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/yourusername/technotes/internal/config"
	"github.com/yourusername/technotes/internal/password"
	"github.com/yourusername/technotes/internal/storage"
	"github.com/yourusername/technotes/internal/users"
)

// seedAdmin はユーザーが 1 人もいない場合に限り、設定された管理者を作成します。
// /users は認証必須のため、空のストアでは最初のユーザーを作る手段がこれしかありません。
func seedAdmin(ctx context.Context, cfg *config.Config, store *storage.Store, hasher *password.Hasher, logger *slog.Logger) error {
	if cfg.SeedAdminUsername == "" || cfg.SeedAdminPassword == "" {
		return nil
	}

	existing, err := store.Users.List(ctx)
	if err != nil {
		return fmt.Errorf("seed admin: %w", err)
	}
	if len(existing) > 0 {
		logger.Debug("seed.skipped", "users", len(existing))
		return nil
	}

	svc := users.NewService(store.Users, store.Notes, hasher)
	user, err := svc.Create(ctx, users.CreateInput{
		Username: cfg.SeedAdminUsername,
		Password: cfg.SeedAdminPassword,
		Roles:    []string{users.RoleEmployee, users.RoleManager, users.RoleAdmin},
	})
	if err != nil {
		return fmt.Errorf("seed admin: %w", err)
	}

	logger.Info("seed.admin_created", "username", user.Username)
	return nil
}
