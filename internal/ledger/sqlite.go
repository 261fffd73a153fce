package ledger

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // pure go sqlite driver
)

// SQLiteStore persists run ledgers to a local SQLite database.
type SQLiteStore struct {
	*sqlStore
	path string
}

// NewSQLite opens (creating if needed) the ledger database at path.
func NewSQLite(path string) (*SQLiteStore, error) {
	if path == "" {
		path = "telinv.db"
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil && !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("create dirs: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	inner, err := newSQLStore(db, dialect{
		createTable: `CREATE TABLE IF NOT EXISTS runs (
			run_id TEXT NOT NULL,
			bucket TEXT NOT NULL,
			payload BLOB NOT NULL,
			PRIMARY KEY (run_id, bucket)
		)`,
		upsert:    `INSERT INTO runs(run_id,bucket,payload) VALUES(?,?,?) ON CONFLICT(run_id,bucket) DO UPDATE SET payload=excluded.payload`,
		selectOne: `SELECT payload FROM runs WHERE run_id=? AND bucket=?`,
		listRuns:  `SELECT DISTINCT run_id FROM runs ORDER BY run_id`,
	})
	if err != nil {
		return nil, err
	}
	return &SQLiteStore{sqlStore: inner, path: path}, nil
}

// Path returns the configured database path.
func (s *SQLiteStore) Path() string { return s.path }
