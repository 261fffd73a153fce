package apply

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// RecordStatus is the terminal status of one record within a run.
type RecordStatus string

const (
	RecordSuccess RecordStatus = "success"
	RecordFailed  RecordStatus = "failed"
)

// RecordResult captures how one record finished.
type RecordResult struct {
	Status      RecordStatus `json:"status"`
	FailedStage Stage        `json:"failed_stage,omitempty"`
	Reason      string       `json:"reason,omitempty"`
	Stages      []Stage      `json:"executed_stages,omitempty"`
}

// RunState is the persisted, resumable state of one apply run.
type RunState struct {
	RunID     string                  `json:"run_id"`
	StartedAt time.Time               `json:"started_at"`
	Decisions map[Stage]Decision      `json:"decisions"`
	Records   map[string]RecordResult `json:"records"`
	Completed int                     `json:"completed"`
	Failed    int                     `json:"failed"`
}

// NewRunState initializes state for a fresh run.
func NewRunState(runID string, decisions map[Stage]Decision) *RunState {
	cloned := make(map[Stage]Decision, len(decisions))
	for stage, d := range decisions {
		cloned[stage] = d
	}
	return &RunState{
		RunID:     runID,
		StartedAt: time.Now().UTC(),
		Decisions: cloned,
		Records:   make(map[string]RecordResult),
	}
}

// SetResult records one record's terminal result and updates the tallies.
func (s *RunState) SetResult(email string, result RecordResult) {
	if prev, ok := s.Records[email]; ok {
		// Re-runs replace the prior result and its tally contribution.
		if prev.Status == RecordSuccess {
			s.Completed--
		} else {
			s.Failed--
		}
	}
	s.Records[email] = result
	if result.Status == RecordSuccess {
		s.Completed++
	} else {
		s.Failed++
	}
}

// FailedRecords returns the keys whose last recorded status was failed.
func (s *RunState) FailedRecords() map[string]struct{} {
	out := make(map[string]struct{})
	for email, result := range s.Records {
		if result.Status == RecordFailed {
			out[email] = struct{}{}
		}
	}
	return out
}

// Save writes the run state atomically to path.
func (s *RunState) Save(path string) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("encode run state: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o640); err != nil {
		return fmt.Errorf("write run state: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replace run state: %w", err)
	}
	return nil
}

// LoadRunState reads a previously persisted run state.
func LoadRunState(path string) (*RunState, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read run state: %w", err)
	}
	var state RunState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("decode run state: %w", err)
	}
	if state.Records == nil {
		state.Records = make(map[string]RecordResult)
	}
	return &state, nil
}

// FilterOnlyFailures reduces records to those whose last status in prior
// state was failed. Records the prior run never saw are excluded too: an
// only-failures pass is strictly a retry.
func FilterOnlyFailures(records []InputRecord, prior *RunState) []InputRecord {
	failed := prior.FailedRecords()
	out := make([]InputRecord, 0, len(failed))
	for _, rec := range records {
		if _, ok := failed[rec.Key()]; ok {
			out = append(out, rec)
		}
	}
	return out
}
