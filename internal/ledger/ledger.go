// Package ledger persists run outcomes: the per-module status ledger of an
// export run and the resumable state of an apply run. Payloads are stored as
// JSON blobs keyed by run id and bucket, so the schema never has to track
// the row shapes.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"

	"telinv/internal/apply"
	"telinv/internal/status"
)

// ErrNotFound reports a run or bucket that was never persisted.
var ErrNotFound = errors.New("ledger: not found")

// Store persists and recalls run ledgers.
type Store interface {
	SaveStatuses(ctx context.Context, runID string, records []status.Record) error
	LoadStatuses(ctx context.Context, runID string) ([]status.Record, error)
	SaveRunState(ctx context.Context, state *apply.RunState) error
	LoadRunState(ctx context.Context, runID string) (*apply.RunState, error)
	ListRuns(ctx context.Context) ([]string, error)
	Close() error
}

// Open selects a Store implementation using environment variables.
//
//	TELINV_LEDGER_DRIVER: memory|sqlite|postgres (default sqlite)
//	TELINV_LEDGER_SQLITE_PATH: database file when driver=sqlite (default telinv.db)
//	TELINV_LEDGER_POSTGRES_DSN: connection string when driver=postgres
func Open(ctx context.Context) (Store, error) {
	driver := os.Getenv("TELINV_LEDGER_DRIVER")
	if driver == "" {
		driver = "sqlite"
	}
	switch driver {
	case "memory":
		return NewMemory(), nil
	case "sqlite":
		return NewSQLite(os.Getenv("TELINV_LEDGER_SQLITE_PATH"))
	case "postgres":
		dsn := os.Getenv("TELINV_LEDGER_POSTGRES_DSN")
		if dsn == "" {
			return nil, fmt.Errorf("TELINV_LEDGER_POSTGRES_DSN required for postgres driver")
		}
		return NewPostgres(ctx, dsn)
	default:
		return nil, fmt.Errorf("unknown ledger driver %s", driver)
	}
}

type memoryRun struct {
	statuses []status.Record
	state    *apply.RunState
}

// MemoryStore keeps run ledgers in process memory. Intended for tests.
type MemoryStore struct {
	mu   sync.RWMutex
	runs map[string]*memoryRun
}

// NewMemory returns an in-memory ledger store.
func NewMemory() *MemoryStore { return &MemoryStore{runs: make(map[string]*memoryRun)} }

func (s *MemoryStore) run(runID string) *memoryRun {
	r, ok := s.runs[runID]
	if !ok {
		r = &memoryRun{}
		s.runs[runID] = r
	}
	return r
}

// SaveStatuses stores a copy of the status ledger for runID.
func (s *MemoryStore) SaveStatuses(_ context.Context, runID string, records []status.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cloned := make([]status.Record, len(records))
	copy(cloned, records)
	s.run(runID).statuses = cloned
	return nil
}

// LoadStatuses recalls the status ledger for runID.
func (s *MemoryStore) LoadStatuses(_ context.Context, runID string) ([]status.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.runs[runID]
	if !ok || r.statuses == nil {
		return nil, fmt.Errorf("statuses for run %s: %w", runID, ErrNotFound)
	}
	out := make([]status.Record, len(r.statuses))
	copy(out, r.statuses)
	return out, nil
}

// SaveRunState stores the apply run state keyed by its run id.
func (s *MemoryStore) SaveRunState(_ context.Context, state *apply.RunState) error {
	if state == nil || state.RunID == "" {
		return fmt.Errorf("run state requires a run id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cloned := *state
	s.run(state.RunID).state = &cloned
	return nil
}

// LoadRunState recalls the apply run state for runID.
func (s *MemoryStore) LoadRunState(_ context.Context, runID string) (*apply.RunState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.runs[runID]
	if !ok || r.state == nil {
		return nil, fmt.Errorf("run state for run %s: %w", runID, ErrNotFound)
	}
	cloned := *r.state
	return &cloned, nil
}

// ListRuns returns the known run ids in ascending order.
func (s *MemoryStore) ListRuns(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.runs))
	for runID := range s.runs {
		out = append(out, runID)
	}
	sort.Strings(out)
	return out, nil
}

// Close is a no-op for the memory store.
func (s *MemoryStore) Close() error { return nil }
