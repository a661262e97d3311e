// Package users はユーザー（認証情報）の管理機能を提供します。
package users

import (
	"context"
	"errors"
	"time"
)

// ロール名。
const (
	RoleEmployee = "Employee"
	RoleManager  = "Manager"
	RoleAdmin    = "Admin"
)

var (
	// ErrNotFound は指定したユーザーが存在しない場合に返されます。
	ErrNotFound = errors.New("user not found")
	// ErrDuplicateUsername はユーザー名が既に使われている場合に返されます（大文字小文字・アクセントは区別しない）。
	ErrDuplicateUsername = errors.New("duplicate username")
	// ErrHasNotes はノートが割り当てられたユーザーを削除しようとした場合に返されます。
	ErrHasNotes = errors.New("user has assigned notes")
	// ErrMissingFields は必須項目が欠けている場合に返されます。
	ErrMissingFields = errors.New("all fields are required")
	// ErrMissingID は ID が指定されていない場合に返されます。
	ErrMissingID = errors.New("user id required")
)

// User は永続化されるユーザーです。PasswordHash はクライアントに返しません。
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	Roles        []string  `json:"roles"`
	Active       bool      `json:"active"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// DefaultRoles は作成時にロール指定が無い場合のロールです。
func DefaultRoles() []string {
	return []string{RoleEmployee}
}

// Repository はユーザーの永続化を担います。
// ユーザー名の比較は大文字小文字とアクセントを区別しない照合順序で行い、
// 一意制約違反は ErrDuplicateUsername として返します。
type Repository interface {
	// List は全ユーザーを返します。
	List(ctx context.Context) ([]User, error)
	// FindByID は ID でユーザーを取得します。存在しなければ ErrNotFound。
	FindByID(ctx context.Context, id string) (*User, error)
	// FindByUsername は照合順序に従ってユーザー名で検索します。存在しなければ ErrNotFound。
	FindByUsername(ctx context.Context, username string) (*User, error)
	// Create は ID と作成日時を設定して保存します。重複時は ErrDuplicateUsername。
	Create(ctx context.Context, user *User) error
	// Update は既存ユーザーを置き換えます。存在しなければ ErrNotFound。
	Update(ctx context.Context, user *User) error
	// Delete は ID でユーザーを削除します。存在しなければ ErrNotFound。
	Delete(ctx context.Context, id string) error
}

// NoteChecker はユーザーに割り当てられたノートの有無を確認します。
type NoteChecker interface {
	HasNotes(ctx context.Context, userID string) (bool, error)
}

// PasswordHasher はパスワードのハッシュ化を行います。
type PasswordHasher interface {
	Hash(plain string) (string, error)
}
