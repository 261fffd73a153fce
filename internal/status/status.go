// Package status accumulates the run-level ledger: one record per attempted
// module invocation, plus roll-up totals by outcome kind.
package status

import (
	"sync"

	"telinv/internal/capability"
)

// Record is one attempted artifact/module invocation.
type Record struct {
	Module     string            `json:"module"`
	Method     string            `json:"method"`
	Result     capability.Result `json:"result"`
	HTTPStatus int               `json:"http_status,omitempty"`
	Error      string            `json:"error,omitempty"`
	Count      int               `json:"count"`
	ElapsedMS  int64             `json:"elapsed_ms"`
}

// Summary aggregates record counts by outcome kind.
type Summary struct {
	Total     int `json:"total"`
	OK        int `json:"ok"`
	Forbidden int `json:"forbidden"`
	NotFound  int `json:"not_found"`
	Error     int `json:"error"`
}

// Recorder is an append-only, concurrency-safe status ledger. Concurrent
// resolver tasks share one recorder; appends serialize behind the mutex.
type Recorder struct {
	mu      sync.Mutex
	records []Record
}

// NewRecorder constructs an empty ledger.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Append adds one record to the ledger.
func (r *Recorder) Append(rec Record) {
	r.mu.Lock()
	r.records = append(r.records, rec)
	r.mu.Unlock()
}

// Records returns a defensive copy of the ledger in append order.
func (r *Recorder) Records() []Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Record, len(r.records))
	copy(out, r.records)
	return out
}

// Summary tallies the ledger by outcome kind.
func (r *Recorder) Summary() Summary {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := Summary{Total: len(r.records)}
	for _, rec := range r.records {
		switch rec.Result {
		case capability.ResultOK:
			s.OK++
		case capability.ResultForbidden:
			s.Forbidden++
		case capability.ResultNotFound:
			s.NotFound++
		default:
			s.Error++
		}
	}
	return s
}
