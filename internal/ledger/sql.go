package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"telinv/internal/apply"
	"telinv/internal/status"
)

const (
	bucketStatuses = "statuses"
	bucketRunState = "run_state"
)

// sqlStore implements Store over database/sql. The dialect supplies the DDL
// and the upsert statement, which is all that differs between the backends.
type sqlStore struct {
	db      *sql.DB
	dialect dialect
}

type dialect struct {
	createTable string
	upsert      string
	selectOne   string
	listRuns    string
}

func newSQLStore(db *sql.DB, d dialect) (*sqlStore, error) {
	if _, err := db.Exec(d.createTable); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create runs table: %w", err)
	}
	return &sqlStore{db: db, dialect: d}, nil
}

func (s *sqlStore) save(ctx context.Context, runID, bucket string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s: %w", bucket, err)
	}
	if _, err := s.db.ExecContext(ctx, s.dialect.upsert, runID, bucket, data); err != nil {
		return fmt.Errorf("upsert %s/%s: %w", runID, bucket, err)
	}
	return nil
}

func (s *sqlStore) load(ctx context.Context, runID, bucket string, out any) error {
	var data []byte
	err := s.db.QueryRowContext(ctx, s.dialect.selectOne, runID, bucket).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s for run %s: %w", bucket, runID, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("select %s/%s: %w", runID, bucket, err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode %s: %w", bucket, err)
	}
	return nil
}

// SaveStatuses stores the status ledger for runID.
func (s *sqlStore) SaveStatuses(ctx context.Context, runID string, records []status.Record) error {
	return s.save(ctx, runID, bucketStatuses, records)
}

// LoadStatuses recalls the status ledger for runID.
func (s *sqlStore) LoadStatuses(ctx context.Context, runID string) ([]status.Record, error) {
	var out []status.Record
	if err := s.load(ctx, runID, bucketStatuses, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// SaveRunState stores the apply run state keyed by its run id.
func (s *sqlStore) SaveRunState(ctx context.Context, state *apply.RunState) error {
	if state == nil || state.RunID == "" {
		return fmt.Errorf("run state requires a run id")
	}
	return s.save(ctx, state.RunID, bucketRunState, state)
}

// LoadRunState recalls the apply run state for runID.
func (s *sqlStore) LoadRunState(ctx context.Context, runID string) (*apply.RunState, error) {
	var out apply.RunState
	if err := s.load(ctx, runID, bucketRunState, &out); err != nil {
		return nil, err
	}
	if out.Records == nil {
		out.Records = make(map[string]apply.RecordResult)
	}
	return &out, nil
}

// ListRuns returns distinct run ids in ascending order.
func (s *sqlStore) ListRuns(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, s.dialect.listRuns)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var out []string
	for rows.Next() {
		var runID string
		if err := rows.Scan(&runID); err != nil {
			return nil, fmt.Errorf("scan run id: %w", err)
		}
		out = append(out, runID)
	}
	return out, rows.Err()
}

// Close releases the underlying connection pool.
func (s *sqlStore) Close() error { return s.db.Close() }
