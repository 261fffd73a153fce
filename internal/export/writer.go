// Package export serializes entity caches to CSV and JSON artifact files,
// the run-level status ledger, the consolidated cache document, and the HTML
// report. Individual export failures never abort a run: a failing task
// writes an empty output file and a failed status row, and the remaining
// tasks still execute.
package export

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"telinv/internal/capability"
	"telinv/internal/normalize"
	"telinv/internal/status"
)

// SchemaVersion identifies the cache.json document layout.
const SchemaVersion = 2

// stampColumns always sort to the end of a CSV header.
var stampColumns = []string{"source_method", "raw_keys", "raw_json"}

// Envelope is the canonical per-module JSON document. Readers also accept
// the legacy bare row array shape; writers only emit this envelope.
type Envelope struct {
	Module  string          `json:"module"`
	Count   int             `json:"count"`
	Rows    []normalize.Row `json:"rows"`
	RawKeys []string        `json:"raw_keys,omitempty"`
}

// Task is one export unit: a producer whose rows land in <module>.csv and
// <module>.json.
type Task struct {
	Module  string
	Method  string
	Produce func(ctx context.Context) ([]normalize.Row, error)
}

// Writer emits export artifacts into a target directory.
type Writer struct {
	dir      string
	recorder *status.Recorder
	logger   *slog.Logger
}

// NewWriter constructs a writer rooted at dir, creating it if needed.
func NewWriter(dir string, recorder *status.Recorder, logger *slog.Logger) (*Writer, error) {
	if dir == "" {
		return nil, fmt.Errorf("output directory required")
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Writer{dir: dir, recorder: recorder, logger: logger}, nil
}

// Dir returns the output directory.
func (w *Writer) Dir() string { return w.dir }

// RunExports executes every task in declaration order, writing one CSV and
// one JSON file per module. A task failure is classified, recorded as a
// failed status row, and leaves empty output files; remaining tasks proceed.
// The returned summary covers exactly these tasks.
func (w *Writer) RunExports(ctx context.Context, tasks []Task) status.Summary {
	summary := status.Summary{Total: len(tasks)}
	for _, task := range tasks {
		start := time.Now()
		rows, err := task.Produce(ctx)
		result, httpStatus := capability.Classify(err)
		errText := ""
		if err != nil {
			errText = err.Error()
			rows = nil
			w.logger.Warn("export task failed", "module", task.Module, "result", result, "error", errText)
		}

		if writeErr := w.WriteModule(task.Module, rows); writeErr != nil {
			w.logger.Error("write module artifacts", "module", task.Module, "error", writeErr)
			if err == nil {
				result = capability.ResultError
				errText = writeErr.Error()
			}
		}

		switch result {
		case capability.ResultOK:
			summary.OK++
		case capability.ResultForbidden:
			summary.Forbidden++
		case capability.ResultNotFound:
			summary.NotFound++
		default:
			summary.Error++
		}
		w.recorder.Append(status.Record{
			Module:     task.Module,
			Method:     task.Method,
			Result:     result,
			HTTPStatus: httpStatus,
			Error:      errText,
			Count:      len(rows),
			ElapsedMS:  time.Since(start).Milliseconds(),
		})
	}
	return summary
}

// WriteModule writes <module>.csv and <module>.json for the given rows.
func (w *Writer) WriteModule(module string, rows []normalize.Row) error {
	if err := w.writeCSV(module+".csv", rows); err != nil {
		return err
	}
	return w.writeModuleJSON(module, rows)
}

func (w *Writer) writeCSV(name string, rows []normalize.Row) error {
	header := csvHeader(rows)
	f, err := os.Create(filepath.Join(w.dir, name))
	if err != nil {
		return fmt.Errorf("create %s: %w", name, err)
	}
	defer func() { _ = f.Close() }()

	cw := csv.NewWriter(f)
	if len(header) > 0 {
		if err := cw.Write(header); err != nil {
			return err
		}
	}
	for _, row := range rows {
		record := make([]string, len(header))
		for i, col := range header {
			record[i] = formatValue(row[col])
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func (w *Writer) writeModuleJSON(module string, rows []normalize.Row) error {
	env := Envelope{Module: module, Count: len(rows), Rows: rows, RawKeys: rawKeySet(rows)}
	if env.Rows == nil {
		env.Rows = []normalize.Row{}
	}
	return w.writeJSON(module+".json", env)
}

// WriteStatus writes status.csv and status.json from the ledger.
func (w *Writer) WriteStatus() error {
	records := w.recorder.Records()
	f, err := os.Create(filepath.Join(w.dir, "status.csv"))
	if err != nil {
		return fmt.Errorf("create status.csv: %w", err)
	}
	defer func() { _ = f.Close() }()

	cw := csv.NewWriter(f)
	if err := cw.Write([]string{"module", "method", "result", "http_status", "error", "count", "elapsed_ms"}); err != nil {
		return err
	}
	for _, rec := range records {
		httpStatus := ""
		if rec.HTTPStatus != 0 {
			httpStatus = fmt.Sprint(rec.HTTPStatus)
		}
		if err := cw.Write([]string{
			rec.Module, rec.Method, string(rec.Result), httpStatus,
			rec.Error, fmt.Sprint(rec.Count), fmt.Sprint(rec.ElapsedMS),
		}); err != nil {
			return err
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return err
	}
	return w.writeJSON("status.json", records)
}

// CacheDocument is the consolidated cache.json layout.
type CacheDocument struct {
	Meta     CacheMeta                  `json:"meta"`
	Entities map[string][]normalize.Row `json:"entities"`
}

// CacheMeta carries generation metadata for cache.json.
type CacheMeta struct {
	GeneratedAtUTC time.Time `json:"generated_at_utc"`
	SchemaVersion  int       `json:"schema_version"`
}

// WriteCache writes the consolidated cache.json document.
func (w *Writer) WriteCache(entities map[string][]normalize.Row) error {
	doc := CacheDocument{
		Meta:     CacheMeta{GeneratedAtUTC: time.Now().UTC(), SchemaVersion: SchemaVersion},
		Entities: entities,
	}
	return w.writeJSON("cache.json", doc)
}

func (w *Writer) writeJSON(name string, v any) error {
	f, err := os.Create(filepath.Join(w.dir, name))
	if err != nil {
		return fmt.Errorf("create %s: %w", name, err)
	}
	defer func() { _ = f.Close() }()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode %s: %w", name, err)
	}
	return nil
}

// csvHeader computes the homogenized column set: union of row columns in
// first-seen order (keys sorted within each row for determinism), with the
// stamp columns moved to the end.
func csvHeader(rows []normalize.Row) []string {
	seen := make(map[string]struct{})
	var header []string
	for _, row := range rows {
		keys := make([]string, 0, len(row))
		for key := range row {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			if _, dup := seen[key]; dup {
				continue
			}
			if isStampColumn(key) {
				continue
			}
			seen[key] = struct{}{}
			header = append(header, key)
		}
	}
	if len(header) == 0 && len(rows) == 0 {
		return nil
	}
	for _, stamp := range stampColumns {
		for _, row := range rows {
			if _, ok := row[stamp]; ok {
				header = append(header, stamp)
				break
			}
		}
	}
	return header
}

func isStampColumn(key string) bool {
	for _, stamp := range stampColumns {
		if key == stamp {
			return true
		}
	}
	return false
}

// rawKeySet unions the raw_keys stamps across rows, sorted.
func rawKeySet(rows []normalize.Row) []string {
	seen := make(map[string]struct{})
	for _, row := range rows {
		stamp, ok := row["raw_keys"].(string)
		if !ok {
			continue
		}
		for _, key := range strings.Split(stamp, ",") {
			if key != "" {
				seen[key] = struct{}{}
			}
		}
	}
	if len(seen) == 0 {
		return nil
	}
	out := make([]string, 0, len(seen))
	for key := range seen {
		out = append(out, key)
	}
	sort.Strings(out)
	return out
}

func formatValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case []any, map[string]any:
		data, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(data)
	default:
		return fmt.Sprint(t)
	}
}
