package storage

import (
	"context"
	"strings"

	"github.com/yourusername/technotes/internal/notes"
	"github.com/yourusername/technotes/internal/users"
)

// MemoryURI を DATABASE_URI に指定するとメモリストアを使います。
const MemoryURI = "memory://"

// Store はアプリケーションが使うリポジトリと接続管理をまとめたものです。
type Store struct {
	Users users.Repository
	Notes notes.Repository

	ping  func(context.Context) error
	close func(context.Context) error
}

// Open は uri に応じて MongoDB またはメモリストアを開きます。
func Open(ctx context.Context, uri, database string) (*Store, error) {
	if strings.HasPrefix(uri, MemoryURI) {
		mem := NewMemory()
		return &Store{
			Users: mem.Users(),
			Notes: mem.Notes(),
			ping:  mem.Ping,
			close: mem.Close,
		}, nil
	}

	db, err := ConnectMongo(ctx, uri, database)
	if err != nil {
		return nil, err
	}
	if err := db.EnsureIndexes(ctx); err != nil {
		_ = db.Close(context.Background())
		return nil, err
	}
	return &Store{
		Users: db.Users(),
		Notes: db.Notes(),
		ping:  db.Ping,
		close: db.Close,
	}, nil
}

// Ping はバックエンドへの疎通を確認します。
func (s *Store) Ping(ctx context.Context) error {
	return s.ping(ctx)
}

// Close はバックエンドとの接続を閉じます。
func (s *Store) Close(ctx context.Context) error {
	return s.close(ctx)
}
