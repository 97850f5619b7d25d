package cache

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"io/fs"
	"time"

	"go.uber.org/zap"

	"stellarview/internal/storage"
)

//go:embed migrations/*.sql
var migrations embed.FS

type SQLiteCache struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewSQLiteCache(ctx context.Context, path string, logger *zap.Logger) (*SQLiteCache, error) {
	sub, err := fs.Sub(migrations, "migrations")
	if err != nil {
		return nil, err
	}

	db, err := storage.OpenSQLite(ctx, path, sub)
	if err != nil {
		return nil, err
	}

	return &SQLiteCache{db: db, logger: logger}, nil
}

func (c *SQLiteCache) Get(ctx context.Context, k TileKey) ([]byte, bool) {
	query := `SELECT data FROM tiles
	WHERE source = ? AND variant = ? AND z = ? AND x = ? AND y = ? AND format = ?`

	var data []byte
	err := c.db.QueryRowContext(ctx, query, k.Source, k.Variant, k.Z, k.X, k.Y, k.Format).Scan(&data)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			c.logger.Warn("sqlite cache get failed", zap.String("key", k.String()), zap.Error(err))
		}
		return nil, false
	}
	return data, true
}

func (c *SQLiteCache) Has(ctx context.Context, k TileKey) bool {
	query := `SELECT 1 FROM tiles
	WHERE source = ? AND variant = ? AND z = ? AND x = ? AND y = ? AND format = ?`

	var one int
	err := c.db.QueryRowContext(ctx, query, k.Source, k.Variant, k.Z, k.X, k.Y, k.Format).Scan(&one)
	return err == nil
}

func (c *SQLiteCache) Set(ctx context.Context, k TileKey, v []byte) {
	query := `INSERT INTO tiles (source, variant, z, x, y, format, data, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(source, variant, z, x, y, format) DO UPDATE SET data = excluded.data, created_at = excluded.created_at`

	_, err := c.db.ExecContext(ctx, query, k.Source, k.Variant, k.Z, k.X, k.Y, k.Format, v, time.Now().Unix())
	if err != nil {
		c.logger.Warn("sqlite cache set failed", zap.String("key", k.String()), zap.Error(err))
	}
}

func (c *SQLiteCache) Clear(ctx context.Context) {
	if _, err := c.db.ExecContext(ctx, `DELETE FROM tiles`); err != nil {
		c.logger.Warn("sqlite cache clear failed", zap.Error(err))
	}
}

func (c *SQLiteCache) Close() error {
	return c.db.Close()
}
