package ledger

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver
)

// PostgresStore persists run ledgers to a shared Postgres database so runs
// from different operator machines land in one place.
type PostgresStore struct {
	*sqlStore
}

// NewPostgres connects to dsn and prepares the runs table.
func NewPostgres(ctx context.Context, dsn string) (*PostgresStore, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	inner, err := newSQLStore(db, dialect{
		createTable: `CREATE TABLE IF NOT EXISTS runs (
			run_id TEXT NOT NULL,
			bucket TEXT NOT NULL,
			payload JSONB NOT NULL,
			PRIMARY KEY (run_id, bucket)
		)`,
		upsert:    `INSERT INTO runs(run_id,bucket,payload) VALUES($1,$2,$3) ON CONFLICT(run_id,bucket) DO UPDATE SET payload=excluded.payload`,
		selectOne: `SELECT payload FROM runs WHERE run_id=$1 AND bucket=$2`,
		listRuns:  `SELECT DISTINCT run_id FROM runs ORDER BY run_id`,
	})
	if err != nil {
		return nil, err
	}
	return &PostgresStore{sqlStore: inner}, nil
}
