package labels

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"stellarview/internal/storage"
)

//go:embed migrations/*.sql
var migrations embed.FS

// SQLiteStore keeps each image's labels as one JSON row.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(ctx context.Context, path string) (*SQLiteStore, error) {
	sub, err := fs.Sub(migrations, "migrations")
	if err != nil {
		return nil, err
	}

	db, err := storage.OpenSQLite(ctx, path, sub)
	if err != nil {
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func load(ctx context.Context, q querier, key string) ([]Label, error) {
	var data string
	err := q.QueryRowContext(ctx, `SELECT data FROM labels WHERE key = ?`, key).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return []Label{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read labels: %w", err)
	}

	labels := []Label{}
	if err := json.Unmarshal([]byte(data), &labels); err != nil {
		return nil, fmt.Errorf("failed to parse labels: %w", err)
	}
	return labels, nil
}

func store(ctx context.Context, q querier, key string, labels []Label) error {
	data, err := json.Marshal(labels)
	if err != nil {
		return fmt.Errorf("failed to marshal labels: %w", err)
	}

	query := `INSERT INTO labels (key, data, updated_at) VALUES (?, ?, ?)
	ON CONFLICT(key) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`
	if _, err := q.ExecContext(ctx, query, key, string(data), time.Now().Unix()); err != nil {
		return fmt.Errorf("failed to write labels: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Get(ctx context.Context, url string) ([]Label, error) {
	if err := checkURL(url); err != nil {
		return nil, err
	}
	return load(ctx, s.db, Key(url))
}

func (s *SQLiteStore) Save(ctx context.Context, url string, labels []Label) error {
	if err := checkURL(url); err != nil {
		return err
	}
	if err := checkAll(labels); err != nil {
		return err
	}
	if labels == nil {
		labels = []Label{}
	}
	return store(ctx, s.db, Key(url), labels)
}

func (s *SQLiteStore) Add(ctx context.Context, url string, label Label) ([]Label, error) {
	if err := checkURL(url); err != nil {
		return nil, err
	}
	if err := label.Validate(); err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	key := Key(url)
	labels, err := load(ctx, tx, key)
	if err != nil {
		return nil, err
	}
	labels = append(labels, label)
	if err := store(ctx, tx, key, labels); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit labels: %w", err)
	}
	return labels, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
