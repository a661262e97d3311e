// Package storage はユーザーとノートの永続化を提供します。
// 本番は MongoDB、開発・テストではプロセス内のメモリストアを使います。
package storage

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/yourusername/technotes/internal/notes"
	"github.com/yourusername/technotes/internal/users"
)

// Memory はプロセス内にユーザーとノートを保持するストアです。
// ユーザー名・タイトルの比較は MongoDB の照合順序 {locale: en, strength: 1} と同じく
// 大文字小文字とアクセントを区別しません。
type Memory struct {
	mu       sync.Mutex
	collator *collate.Collator
	now      func() time.Time

	users     map[string]users.User
	userOrder []string
	notes     map[string]notes.Note
	noteOrder []string
	ticketSeq int64
}

// NewMemory は空のメモリストアを作成します。
func NewMemory() *Memory {
	return &Memory{
		collator: collate.New(language.English, collate.IgnoreCase, collate.IgnoreDiacritics),
		now:      func() time.Time { return time.Now().UTC() },
		users:    make(map[string]users.User),
		notes:    make(map[string]notes.Note),
	}
}

// Users は users.Repository としてのビューを返します。
func (m *Memory) Users() *MemoryUsers { return &MemoryUsers{m: m} }

// Notes は notes.Repository としてのビューを返します。
func (m *Memory) Notes() *MemoryNotes { return &MemoryNotes{m: m} }

// Ping は常に成功します。
func (m *Memory) Ping(context.Context) error { return nil }

// Close はメモリストアでは何もしません。
func (m *Memory) Close(context.Context) error { return nil }

func (m *Memory) sameText(a, b string) bool {
	return m.collator.CompareString(a, b) == 0
}

// MemoryUsers はメモリストア上のユーザーリポジトリです。
type MemoryUsers struct {
	m *Memory
}

// List は全ユーザーを作成順に返します。
func (r *MemoryUsers) List(ctx context.Context) ([]users.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.m.mu.Lock()
	defer r.m.mu.Unlock()

	out := make([]users.User, 0, len(r.m.userOrder))
	for _, id := range r.m.userOrder {
		out = append(out, cloneUser(r.m.users[id]))
	}
	return out, nil
}

// FindByID は ID でユーザーを取得します。見つからない場合は users.ErrNotFound です。
func (r *MemoryUsers) FindByID(ctx context.Context, id string) (*users.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.m.mu.Lock()
	defer r.m.mu.Unlock()

	user, ok := r.m.users[id]
	if !ok {
		return nil, users.ErrNotFound
	}
	out := cloneUser(user)
	return &out, nil
}

// FindByUsername は大文字小文字・アクセントを区別せずにユーザーを取得します。
func (r *MemoryUsers) FindByUsername(ctx context.Context, username string) (*users.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.m.mu.Lock()
	defer r.m.mu.Unlock()

	if id, ok := r.findUsername(username); ok {
		out := cloneUser(r.m.users[id])
		return &out, nil
	}
	return nil, users.ErrNotFound
}

// Create はユーザーを保存し、ID と作成日時を設定します。
func (r *MemoryUsers) Create(ctx context.Context, user *users.User) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.m.mu.Lock()
	defer r.m.mu.Unlock()

	if _, taken := r.findUsername(user.Username); taken {
		return users.ErrDuplicateUsername
	}

	now := r.m.now()
	user.ID = uuid.NewString()
	user.CreatedAt = now
	user.UpdatedAt = now
	r.m.users[user.ID] = cloneUser(*user)
	r.m.userOrder = append(r.m.userOrder, user.ID)
	return nil
}

// Update はユーザーを上書きします。
func (r *MemoryUsers) Update(ctx context.Context, user *users.User) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.m.mu.Lock()
	defer r.m.mu.Unlock()

	current, ok := r.m.users[user.ID]
	if !ok {
		return users.ErrNotFound
	}
	if id, taken := r.findUsername(user.Username); taken && id != user.ID {
		return users.ErrDuplicateUsername
	}

	user.CreatedAt = current.CreatedAt
	user.UpdatedAt = r.m.now()
	r.m.users[user.ID] = cloneUser(*user)
	return nil
}

// Delete はユーザーを削除します。
func (r *MemoryUsers) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.m.mu.Lock()
	defer r.m.mu.Unlock()

	if _, ok := r.m.users[id]; !ok {
		return users.ErrNotFound
	}
	delete(r.m.users, id)
	r.m.userOrder = slices.DeleteFunc(r.m.userOrder, func(v string) bool { return v == id })
	return nil
}

// findUsername は呼び出し側でロックを保持している前提です。
func (r *MemoryUsers) findUsername(username string) (string, bool) {
	for _, id := range r.m.userOrder {
		if r.m.sameText(r.m.users[id].Username, username) {
			return id, true
		}
	}
	return "", false
}

// MemoryNotes はメモリストア上のノートリポジトリです。
type MemoryNotes struct {
	m *Memory
}

// List は全ノートをチケット番号順に返します。
func (r *MemoryNotes) List(ctx context.Context) ([]notes.Note, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.m.mu.Lock()
	defer r.m.mu.Unlock()

	out := make([]notes.Note, 0, len(r.m.noteOrder))
	for _, id := range r.m.noteOrder {
		out = append(out, r.m.notes[id])
	}
	return out, nil
}

// FindByID は ID でノートを取得します。見つからない場合は notes.ErrNotFound です。
func (r *MemoryNotes) FindByID(ctx context.Context, id string) (*notes.Note, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.m.mu.Lock()
	defer r.m.mu.Unlock()

	note, ok := r.m.notes[id]
	if !ok {
		return nil, notes.ErrNotFound
	}
	return &note, nil
}

// FindByTitle は大文字小文字・アクセントを区別せずにノートを取得します。
func (r *MemoryNotes) FindByTitle(ctx context.Context, title string) (*notes.Note, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.m.mu.Lock()
	defer r.m.mu.Unlock()

	if id, ok := r.findTitle(title); ok {
		note := r.m.notes[id]
		return &note, nil
	}
	return nil, notes.ErrNotFound
}

// HasNotes は userID に割り当てられたノートがあるかどうかを返します。
func (r *MemoryNotes) HasNotes(ctx context.Context, userID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	r.m.mu.Lock()
	defer r.m.mu.Unlock()

	for _, note := range r.m.notes {
		if note.User == userID {
			return true, nil
		}
	}
	return false, nil
}

// Create はノートを保存し、ID とチケット番号を採番します。
func (r *MemoryNotes) Create(ctx context.Context, note *notes.Note) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.m.mu.Lock()
	defer r.m.mu.Unlock()

	if _, taken := r.findTitle(note.Title); taken {
		return notes.ErrDuplicateTitle
	}

	now := r.m.now()
	note.ID = uuid.NewString()
	note.Ticket = notes.FirstTicket + r.m.ticketSeq
	note.CreatedAt = now
	note.UpdatedAt = now
	r.m.ticketSeq++

	stored := *note
	stored.Username = ""
	r.m.notes[note.ID] = stored
	r.m.noteOrder = append(r.m.noteOrder, note.ID)
	return nil
}

// Update はノートを上書きします。チケット番号は変更しません。
func (r *MemoryNotes) Update(ctx context.Context, note *notes.Note) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.m.mu.Lock()
	defer r.m.mu.Unlock()

	current, ok := r.m.notes[note.ID]
	if !ok {
		return notes.ErrNotFound
	}
	if id, taken := r.findTitle(note.Title); taken && id != note.ID {
		return notes.ErrDuplicateTitle
	}

	// チケット番号と作成日時は作成時の値を維持する
	note.Ticket = current.Ticket
	note.CreatedAt = current.CreatedAt
	note.UpdatedAt = r.m.now()

	stored := *note
	stored.Username = ""
	r.m.notes[note.ID] = stored
	return nil
}

// Delete はノートを削除します。
func (r *MemoryNotes) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.m.mu.Lock()
	defer r.m.mu.Unlock()

	if _, ok := r.m.notes[id]; !ok {
		return notes.ErrNotFound
	}
	delete(r.m.notes, id)
	r.m.noteOrder = slices.DeleteFunc(r.m.noteOrder, func(v string) bool { return v == id })
	return nil
}

func (r *MemoryNotes) findTitle(title string) (string, bool) {
	for _, id := range r.m.noteOrder {
		if r.m.sameText(r.m.notes[id].Title, title) {
			return id, true
		}
	}
	return "", false
}

func cloneUser(u users.User) users.User {
	u.Roles = slices.Clone(u.Roles)
	return u
}
