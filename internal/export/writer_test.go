package export

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"telinv/internal/capability"
	"telinv/internal/normalize"
	"telinv/internal/status"
)

func newTestWriter(t *testing.T) (*Writer, *status.Recorder) {
	t.Helper()
	recorder := status.NewRecorder()
	w, err := NewWriter(t.TempDir(), recorder, nil)
	if err != nil {
		t.Fatalf("new writer: %v", err)
	}
	return w, recorder
}

func TestRunExportsResilience(t *testing.T) {
	w, recorder := newTestWriter(t)
	tasks := []Task{
		{Module: "people", Method: "people.list", Produce: func(context.Context) ([]normalize.Row, error) {
			return []normalize.Row{{"id": "p1"}}, nil
		}},
		{Module: "queues", Method: "queues.list", Produce: func(context.Context) ([]normalize.Row, error) {
			return nil, fs.ErrPermission
		}},
		{Module: "devices", Method: "devices.list", Produce: func(context.Context) ([]normalize.Row, error) {
			return []normalize.Row{{"id": "d1"}, {"id": "d2"}}, nil
		}},
	}

	summary := w.RunExports(context.Background(), tasks)
	want := status.Summary{Total: 3, OK: 2, Forbidden: 1, NotFound: 0, Error: 0}
	if diff := cmp.Diff(want, summary); diff != "" {
		t.Fatalf("summary mismatch (-want +got):\n%s", diff)
	}

	// The failing task still writes empty artifacts.
	data, err := os.ReadFile(filepath.Join(w.Dir(), "queues.csv"))
	if err != nil {
		t.Fatalf("queues.csv: %v", err)
	}
	if len(data) != 0 {
		t.Fatalf("expected empty csv for failed task, got %q", data)
	}
	env, err := ReadModuleJSON(filepath.Join(w.Dir(), "queues.json"))
	if err != nil {
		t.Fatalf("queues.json: %v", err)
	}
	if env.Count != 0 || len(env.Rows) != 0 {
		t.Fatalf("expected empty envelope, got %+v", env)
	}

	records := recorder.Records()
	if len(records) != 3 {
		t.Fatalf("expected 3 status rows, got %d", len(records))
	}
	order := []string{"people", "queues", "devices"}
	for i, module := range order {
		if records[i].Module != module {
			t.Fatalf("status rows must follow task order, got %v", records)
		}
	}
	if records[1].Result != capability.ResultForbidden {
		t.Fatalf("expected forbidden classification, got %s", records[1].Result)
	}
}

func TestWriteModuleCSVHeaderHomogenized(t *testing.T) {
	w, _ := newTestWriter(t)
	rows := []normalize.Row{
		{"id": "a", "name": "x", "raw_json": "{}", "source_method": "m", "raw_keys": "id,name"},
		{"id": "b", "extension": "100", "raw_json": "{}", "source_method": "m", "raw_keys": "extension,id"},
	}
	if err := w.WriteModule("people", rows); err != nil {
		t.Fatalf("write module: %v", err)
	}

	f, err := os.Open(filepath.Join(w.Dir(), "people.csv"))
	if err != nil {
		t.Fatalf("open csv: %v", err)
	}
	defer func() { _ = f.Close() }()
	all, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected header + 2 rows, got %d", len(all))
	}
	header := all[0]
	wantHeader := []string{"id", "name", "extension", "source_method", "raw_keys", "raw_json"}
	if diff := cmp.Diff(wantHeader, header); diff != "" {
		t.Fatalf("header mismatch (-want +got):\n%s", diff)
	}
	if all[2][2] != "100" {
		t.Fatalf("row 2 extension cell wrong: %v", all[2])
	}
	if all[1][2] != "" {
		t.Fatalf("missing column must serialize empty, got %q", all[1][2])
	}
}

func TestWriteStatusCSVColumns(t *testing.T) {
	w, recorder := newTestWriter(t)
	recorder.Append(status.Record{
		Module: "people", Method: "people.list", Result: capability.ResultOK, Count: 5, ElapsedMS: 120,
	})
	recorder.Append(status.Record{
		Module: "queues", Method: "queues.list", Result: capability.ResultForbidden, HTTPStatus: 403, Error: "denied",
	})
	if err := w.WriteStatus(); err != nil {
		t.Fatalf("write status: %v", err)
	}

	f, _ := os.Open(filepath.Join(w.Dir(), "status.csv"))
	defer func() { _ = f.Close() }()
	all, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("read status.csv: %v", err)
	}
	wantHeader := []string{"module", "method", "result", "http_status", "error", "count", "elapsed_ms"}
	if diff := cmp.Diff(wantHeader, all[0]); diff != "" {
		t.Fatalf("status header mismatch (-want +got):\n%s", diff)
	}
	if all[2][3] != "403" || all[1][3] != "" {
		t.Fatalf("http_status formatting wrong: %v", all)
	}
}

func TestCacheRoundTrip(t *testing.T) {
	w, _ := newTestWriter(t)
	entities := map[string][]normalize.Row{
		"people": {{"id": "p1", "email": "a@example.com"}},
	}
	if err := w.WriteCache(entities); err != nil {
		t.Fatalf("write cache: %v", err)
	}
	doc, err := ReadCache(filepath.Join(w.Dir(), "cache.json"))
	if err != nil {
		t.Fatalf("read cache: %v", err)
	}
	if doc.Meta.SchemaVersion != SchemaVersion {
		t.Fatalf("schema version lost: %+v", doc.Meta)
	}
	if doc.Entities["people"][0]["id"] != "p1" {
		t.Fatalf("entities lost: %+v", doc.Entities)
	}
}

func TestReadModuleJSONAcceptsLegacyBareArray(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "locations.json")
	legacy := []normalize.Row{{"id": "L1", "name": "HQ"}}
	data, _ := json.Marshal(legacy)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write legacy file: %v", err)
	}
	env, err := ReadModuleJSON(path)
	if err != nil {
		t.Fatalf("read legacy: %v", err)
	}
	if env.Module != "locations" || env.Count != 1 || env.Rows[0]["id"] != "L1" {
		t.Fatalf("legacy shape misread: %+v", env)
	}
}

func TestReadModuleJSONEnvelope(t *testing.T) {
	w, _ := newTestWriter(t)
	rows := []normalize.Row{{"id": "q1", "raw_keys": "id,name"}}
	if err := w.WriteModule("queues", rows); err != nil {
		t.Fatalf("write: %v", err)
	}
	env, err := ReadModuleJSON(filepath.Join(w.Dir(), "queues.json"))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if env.Module != "queues" || env.Count != 1 {
		t.Fatalf("envelope misread: %+v", env)
	}
	if diff := cmp.Diff([]string{"id", "name"}, env.RawKeys); diff != "" {
		t.Fatalf("raw key union mismatch (-want +got):\n%s", diff)
	}
}
