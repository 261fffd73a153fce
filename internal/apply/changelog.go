package apply

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"telinv/internal/normalize"
)

// ChangeStatus is the outcome of one (record, stage) execution attempt.
type ChangeStatus string

const (
	ChangeSuccess ChangeStatus = "success"
	ChangeFailed  ChangeStatus = "failed"
	ChangeSkipped ChangeStatus = "skipped"
)

// ChangeEntry records one stage attempt with its before/after snapshots.
type ChangeEntry struct {
	Email     string        `json:"user_email"`
	Stage     Stage         `json:"stage"`
	Status    ChangeStatus  `json:"status"`
	Before    normalize.Row `json:"before,omitempty"`
	After     normalize.Row `json:"after,omitempty"`
	Detail    string        `json:"detail"`
	Timestamp time.Time     `json:"timestamp"`
}

// FailureEntry records one failed (record, stage) attempt with enough
// context for triage and for only-failures re-runs.
type FailureEntry struct {
	Email      string `json:"user_email"`
	Stage      Stage  `json:"stage"`
	ErrorType  string `json:"error_type"`
	HTTPStatus int    `json:"http_status,omitempty"`
	TrackingID string `json:"tracking_id,omitempty"`
	Details    string `json:"details"`
}

// ChangeLog accumulates change and failure entries. Concurrent record
// workers share one log; appends serialize behind the mutex. When a writer
// is attached, change entries additionally stream out as JSON lines.
type ChangeLog struct {
	mu       sync.Mutex
	changes  []ChangeEntry
	failures []FailureEntry
	enc      *json.Encoder
}

// NewChangeLog constructs a change log. w may be nil; otherwise every change
// entry is appended to it as one JSON line (changes.log).
func NewChangeLog(w io.Writer) *ChangeLog {
	log := &ChangeLog{}
	if w != nil {
		log.enc = json.NewEncoder(w)
	}
	return log
}

// AddChange appends one change entry.
func (l *ChangeLog) AddChange(entry ChangeEntry) {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	l.mu.Lock()
	l.changes = append(l.changes, entry)
	if l.enc != nil {
		_ = l.enc.Encode(entry)
	}
	l.mu.Unlock()
}

// AddFailure appends one failure entry.
func (l *ChangeLog) AddFailure(entry FailureEntry) {
	l.mu.Lock()
	l.failures = append(l.failures, entry)
	l.mu.Unlock()
}

// Changes returns a copy of the change entries in append order.
func (l *ChangeLog) Changes() []ChangeEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]ChangeEntry, len(l.changes))
	copy(out, l.changes)
	return out
}

// ChangesFor returns the change entries for one record key.
func (l *ChangeLog) ChangesFor(email string) []ChangeEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []ChangeEntry
	for _, entry := range l.changes {
		if entry.Email == email {
			out = append(out, entry)
		}
	}
	return out
}

// Failures returns a copy of the failure entries in append order.
func (l *ChangeLog) Failures() []FailureEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]FailureEntry, len(l.failures))
	copy(out, l.failures)
	return out
}

// WriteFailuresCSV writes the failure table with its fixed header.
func (l *ChangeLog) WriteFailuresCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"user_email", "stage", "error_type", "http_status", "tracking_id", "details"}); err != nil {
		return err
	}
	for _, f := range l.Failures() {
		httpStatus := ""
		if f.HTTPStatus != 0 {
			httpStatus = fmt.Sprint(f.HTTPStatus)
		}
		if err := cw.Write([]string{f.Email, string(f.Stage), f.ErrorType, httpStatus, f.TrackingID, f.Details}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
