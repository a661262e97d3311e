package users

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// CreateInput はユーザー作成の入力です。
type CreateInput struct {
	Username string
	Password string
	Roles    []string
}

// UpdateInput はユーザー更新の入力です。Active は必須、Password は任意です。
type UpdateInput struct {
	ID       string
	Username string
	Roles    []string
	Active   *bool
	Password string
}

// Service はユーザーの作成・更新・削除のルールを実装します。
type Service struct {
	repo   Repository
	notes  NoteChecker
	hasher PasswordHasher
}

// NewService は Service を作成します。
func NewService(repo Repository, notes NoteChecker, hasher PasswordHasher) *Service {
	return &Service{
		repo:   repo,
		notes:  notes,
		hasher: hasher,
	}
}

// List は全ユーザーを返します。
func (s *Service) List(ctx context.Context) ([]User, error) {
	return s.repo.List(ctx)
}

// Create はユーザーを作成します。重複チェックは事前確認で、最終的な判定はストアの一意制約です。
func (s *Service) Create(ctx context.Context, in CreateInput) (*User, error) {
	username := strings.TrimSpace(in.Username)
	if username == "" || in.Password == "" {
		return nil, ErrMissingFields
	}

	if err := s.ensureUsernameFree(ctx, username, ""); err != nil {
		return nil, err
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	roles := in.Roles
	if len(roles) == 0 {
		roles = DefaultRoles()
	}

	user := &User{
		Username:     username,
		PasswordHash: hash,
		Roles:        roles,
		Active:       true,
	}
	if err := s.repo.Create(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// Update はユーザーを更新します。Password が空の場合はハッシュを変更しません。
func (s *Service) Update(ctx context.Context, in UpdateInput) (*User, error) {
	username := strings.TrimSpace(in.Username)
	if in.ID == "" || username == "" || len(in.Roles) == 0 || in.Active == nil {
		return nil, ErrMissingFields
	}

	user, err := s.repo.FindByID(ctx, in.ID)
	if err != nil {
		return nil, err
	}

	if err := s.ensureUsernameFree(ctx, username, user.ID); err != nil {
		return nil, err
	}

	user.Username = username
	user.Roles = in.Roles
	user.Active = *in.Active

	if in.Password != "" {
		hash, err := s.hasher.Hash(in.Password)
		if err != nil {
			return nil, fmt.Errorf("hash password: %w", err)
		}
		user.PasswordHash = hash
	}

	if err := s.repo.Update(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// Delete はノートが割り当てられていないユーザーを削除し、削除したユーザーを返します。
func (s *Service) Delete(ctx context.Context, id string) (*User, error) {
	if id == "" {
		return nil, ErrMissingID
	}

	hasNotes, err := s.notes.HasNotes(ctx, id)
	if err != nil {
		return nil, err
	}
	if hasNotes {
		return nil, ErrHasNotes
	}

	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := s.repo.Delete(ctx, user.ID); err != nil {
		return nil, err
	}
	return user, nil
}

// ensureUsernameFree は username が selfID 以外のユーザーに使われていないことを確認します。
func (s *Service) ensureUsernameFree(ctx context.Context, username, selfID string) error {
	existing, err := s.repo.FindByUsername(ctx, username)
	switch {
	case errors.Is(err, ErrNotFound):
		return nil
	case err != nil:
		return err
	case existing.ID != selfID:
		return ErrDuplicateUsername
	default:
		return nil
	}
}
