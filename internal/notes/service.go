package notes

import (
	"context"
	"errors"
	"strings"

	"github.com/yourusername/technotes/internal/users"
)

// CreateInput はノート作成の入力です。
type CreateInput struct {
	User  string
	Title string
	Text  string
}

// UpdateInput はノート更新の入力です。Completed は必須です。
type UpdateInput struct {
	ID        string
	User      string
	Title     string
	Text      string
	Completed *bool
}

// Service はノートの作成・更新・削除のルールを実装します。
type Service struct {
	repo  Repository
	users UserFinder
}

// NewService は Service を作成します。
func NewService(repo Repository, finder UserFinder) *Service {
	return &Service{repo: repo, users: finder}
}

// List は全ノートを割り当て先のユーザー名付きで返します。
// 割り当て先が見つからないノートはユーザー名を空のまま返します。
func (s *Service) List(ctx context.Context) ([]Note, error) {
	list, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}

	names := make(map[string]string)
	for i := range list {
		userID := list[i].User
		name, ok := names[userID]
		if !ok {
			user, err := s.users.FindByID(ctx, userID)
			switch {
			case errors.Is(err, users.ErrNotFound):
			case err != nil:
				return nil, err
			default:
				name = user.Username
			}
			names[userID] = name
		}
		list[i].Username = name
	}
	return list, nil
}

// Create はノートを作成します。
func (s *Service) Create(ctx context.Context, in CreateInput) (*Note, error) {
	title := strings.TrimSpace(in.Title)
	if in.User == "" || title == "" || in.Text == "" {
		return nil, ErrMissingFields
	}

	if err := s.ensureUser(ctx, in.User); err != nil {
		return nil, err
	}
	if err := s.ensureTitleFree(ctx, title, ""); err != nil {
		return nil, err
	}

	note := &Note{
		User:  in.User,
		Title: title,
		Text:  in.Text,
	}
	if err := s.repo.Create(ctx, note); err != nil {
		return nil, err
	}
	return note, nil
}

// Update はノートを更新します。
func (s *Service) Update(ctx context.Context, in UpdateInput) (*Note, error) {
	title := strings.TrimSpace(in.Title)
	if in.ID == "" || in.User == "" || title == "" || in.Text == "" || in.Completed == nil {
		return nil, ErrMissingFields
	}

	note, err := s.repo.FindByID(ctx, in.ID)
	if err != nil {
		return nil, err
	}
	if in.User != note.User {
		if err := s.ensureUser(ctx, in.User); err != nil {
			return nil, err
		}
	}
	if err := s.ensureTitleFree(ctx, title, note.ID); err != nil {
		return nil, err
	}

	note.User = in.User
	note.Title = title
	note.Text = in.Text
	note.Completed = *in.Completed

	if err := s.repo.Update(ctx, note); err != nil {
		return nil, err
	}
	return note, nil
}

// Delete はノートを削除し、削除したノートを返します。
func (s *Service) Delete(ctx context.Context, id string) (*Note, error) {
	if id == "" {
		return nil, ErrMissingID
	}
	note, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.repo.Delete(ctx, note.ID); err != nil {
		return nil, err
	}
	return note, nil
}

func (s *Service) ensureUser(ctx context.Context, userID string) error {
	if _, err := s.users.FindByID(ctx, userID); err != nil {
		if errors.Is(err, users.ErrNotFound) {
			return ErrUnknownUser
		}
		return err
	}
	return nil
}

func (s *Service) ensureTitleFree(ctx context.Context, title, selfID string) error {
	existing, err := s.repo.FindByTitle(ctx, title)
	switch {
	case errors.Is(err, ErrNotFound):
		return nil
	case err != nil:
		return err
	case existing.ID != selfID:
		return ErrDuplicateTitle
	default:
		return nil
	}
}
