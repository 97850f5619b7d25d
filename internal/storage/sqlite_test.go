package storage

import (
	"context"
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenSQLiteRunsMigrations(t *testing.T) {
	migrations := fstest.MapFS{
		"00001_widgets.sql": &fstest.MapFile{Data: []byte(`-- +goose Up
CREATE TABLE widgets (name TEXT PRIMARY KEY);

-- +goose Down
DROP TABLE widgets;
`)},
	}
	path := filepath.Join(t.TempDir(), "nested", "test.db")

	db, err := OpenSQLite(context.Background(), path, migrations)
	require.NoError(t, err)

	_, err = db.Exec(`INSERT INTO widgets (name) VALUES ('a')`)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	// Reopening applies nothing new and keeps the data.
	db, err = OpenSQLite(context.Background(), path, migrations)
	require.NoError(t, err)
	defer db.Close()

	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM widgets`).Scan(&n))
	assert.Equal(t, 1, n)
}
