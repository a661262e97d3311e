// Package notes はユーザーに割り当てるノートの管理機能を提供します。
package notes

import (
	"context"
	"errors"
	"time"

	"github.com/yourusername/technotes/internal/users"
)

// FirstTicket は最初に採番されるチケット番号です。
const FirstTicket int64 = 500

var (
	// ErrNotFound は指定したノートが存在しない場合に返されます。
	ErrNotFound = errors.New("note not found")
	// ErrDuplicateTitle はタイトルが他のノートと重複する場合に返されます。
	ErrDuplicateTitle = errors.New("duplicate note title")
	// ErrMissingFields は必須項目が欠けている場合に返されます。
	ErrMissingFields = errors.New("all fields are required")
	// ErrMissingID は ID が指定されていない場合に返されます。
	ErrMissingID = errors.New("note id required")
	// ErrUnknownUser は割り当て先のユーザーが存在しない場合に返されます。
	ErrUnknownUser = errors.New("assigned user not found")
)

// Note はユーザーに割り当てられたノートです。User はユーザーIDへの参照です。
type Note struct {
	ID        string    `json:"id"`
	User      string    `json:"user"`
	Username  string    `json:"username,omitempty"`
	Title     string    `json:"title"`
	Text      string    `json:"text"`
	Completed bool      `json:"completed"`
	Ticket    int64     `json:"ticket"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Repository はノートの永続化を担います。
// Create は ID と Ticket を採番します。タイトルの一意性は大文字小文字とアクセントを区別しません。
type Repository interface {
	// List は全ノートを返します。
	List(ctx context.Context) ([]Note, error)
	// FindByID は ID でノートを取得します。存在しなければ ErrNotFound。
	FindByID(ctx context.Context, id string) (*Note, error)
	// FindByTitle は照合順序に従ってタイトルで検索します。存在しなければ ErrNotFound。
	FindByTitle(ctx context.Context, title string) (*Note, error)
	// HasNotes は userID に割り当てられたノートがあるかを返します。
	HasNotes(ctx context.Context, userID string) (bool, error)
	// Create は ID・Ticket・作成日時を設定して保存します。重複時は ErrDuplicateTitle。
	Create(ctx context.Context, note *Note) error
	// Update は既存ノートを置き換えます。存在しなければ ErrNotFound。
	Update(ctx context.Context, note *Note) error
	// Delete は ID でノートを削除します。存在しなければ ErrNotFound。
	Delete(ctx context.Context, id string) error
}

// UserFinder は割り当て先ユーザーの存在確認と名前解決に使います。
type UserFinder interface {
	FindByID(ctx context.Context, id string) (*users.User, error)
}
