package resolver

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"telinv/internal/capability"
	"telinv/internal/metrics"
	"telinv/internal/normalize"
	"telinv/internal/status"
)

// Caller dispatches one capability call. *capability.Invoker satisfies it.
type Caller interface {
	Call(ctx context.Context, name string, args capability.Args) (any, error)
}

// identityColumns are back-filled from call arguments when a returned row
// lacks them, so every output row carries the foreign keys it was fetched by.
var identityColumns = []string{
	"location_id", "person_id", "workspace_id", "license_id",
	"virtual_line_id", "group_id", "id", "name",
}

// standardColumns is the homogenized projection applied to every output row.
// Values are extracted alias-tolerantly; the original payload is preserved in
// raw_json.
var standardColumns = []string{
	"id", "name", "display_name", "email", "phone_number", "extension",
	"location_id", "person_id", "workspace_id", "license_id",
	"virtual_line_id", "group_id",
}

// SourceDiagnostic reports how many rows a param source saw versus how many
// usable values it yielded; retained for troubleshooting empty expansions.
type SourceDiagnostic struct {
	Param    string `json:"param"`
	Module   string `json:"module"`
	RowsSeen int    `json:"rows_seen"`
	Values   int    `json:"values"`
}

// ArtifactResult summarizes one artifact's resolution.
type ArtifactResult struct {
	Module      string
	Method      string
	Result      capability.Result
	HTTPStatus  int
	Err         error
	Rows        int
	Calls       int
	FailedCalls int
	Diagnostics []SourceDiagnostic
	Elapsed     time.Duration
}

// Resolver walks a catalog in dependency order and populates an entity cache.
type Resolver struct {
	catalog     *Catalog
	caller      Caller
	cache       *EntityCache
	recorder    *status.Recorder
	metrics     metrics.Recorder
	logger      *slog.Logger
	concurrency int
	haltOnError bool
}

// Option customizes resolver construction.
type Option func(*Resolver)

// WithConcurrency bounds the number of in-flight calls within one artifact's
// parameter expansion. Cross-artifact ordering is always sequential.
func WithConcurrency(n int) Option {
	return func(r *Resolver) {
		if n > 0 {
			r.concurrency = n
		}
	}
}

// WithHaltOnError aborts an artifact at its first failed call instead of
// continuing with the remaining parameter combinations.
func WithHaltOnError() Option {
	return func(r *Resolver) { r.haltOnError = true }
}

// WithMetrics attaches a call-outcome recorder.
func WithMetrics(rec metrics.Recorder) Option {
	return func(r *Resolver) {
		if rec != nil {
			r.metrics = rec
		}
	}
}

// WithLogger attaches a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Resolver) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// New constructs a resolver over the catalog, caller, shared cache, and
// status ledger.
func New(catalog *Catalog, caller Caller, cache *EntityCache, recorder *status.Recorder, opts ...Option) *Resolver {
	r := &Resolver{
		catalog:     catalog,
		caller:      caller,
		cache:       cache,
		recorder:    recorder,
		metrics:     metrics.Noop{},
		logger:      slog.Default(),
		concurrency: 1,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve runs every artifact in dependency order. Individual artifact
// failures never abort the run; each failed artifact records a failed status
// row and resolution proceeds. The returned results follow execution order.
func (r *Resolver) Resolve(ctx context.Context) ([]ArtifactResult, error) {
	ordered := r.catalog.Ordered()
	results := make([]ArtifactResult, 0, len(ordered))
	for _, spec := range ordered {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		res := r.resolveArtifact(ctx, spec)
		results = append(results, res)

		errText := ""
		if res.Err != nil {
			errText = res.Err.Error()
		}
		r.recorder.Append(status.Record{
			Module:     spec.Module,
			Method:     spec.MethodPath,
			Result:     res.Result,
			HTTPStatus: res.HTTPStatus,
			Error:      errText,
			Count:      res.Rows,
			ElapsedMS:  res.Elapsed.Milliseconds(),
		})
		r.metrics.ObserveCall(spec.Module, res.Result, res.Elapsed)
		r.logger.Info("artifact resolved",
			"module", spec.Module, "result", res.Result,
			"rows", res.Rows, "calls", res.Calls, "failed_calls", res.FailedCalls,
			"elapsed_ms", res.Elapsed.Milliseconds())
	}
	return results, nil
}

type callOutcome struct {
	rows []normalize.Row
	err  error
}

func (r *Resolver) resolveArtifact(ctx context.Context, spec ArtifactSpec) ArtifactResult {
	start := time.Now()
	res := ArtifactResult{Module: spec.Module, Method: spec.MethodPath, Result: capability.ResultOK}

	combos, diags, err := r.expandParams(spec)
	res.Diagnostics = diags
	if err != nil {
		res.Result = capability.ResultError
		res.Err = err
		res.Elapsed = time.Since(start)
		r.cache.Put(spec.Module, nil)
		return res
	}
	if combos == nil {
		// A source yielded zero eligible values: no qualifying inputs, the
		// artifact still succeeds with zero rows.
		r.cache.Put(spec.Module, []normalize.Row{})
		res.Elapsed = time.Since(start)
		return res
	}

	outcomes := make([]callOutcome, len(combos))
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(r.concurrency)
	for i, combo := range combos {
		group.Go(func() error {
			raw, callErr := r.caller.Call(groupCtx, spec.MethodPath, combo)
			if callErr != nil {
				outcomes[i] = callOutcome{err: callErr}
				if r.haltOnError {
					return callErr
				}
				return nil
			}
			rows := make([]normalize.Row, 0, 4)
			for _, original := range normalize.MaterializeRows(raw) {
				rows = append(rows, buildOutputRow(original, combo, spec.MethodPath))
			}
			outcomes[i] = callOutcome{rows: rows}
			return nil
		})
	}
	haltErr := group.Wait()

	var rows []normalize.Row
	var firstErr error
	succeeded := 0
	for _, outcome := range outcomes {
		if outcome.err != nil {
			res.FailedCalls++
			if firstErr == nil {
				firstErr = outcome.err
			}
			continue
		}
		succeeded++
		rows = append(rows, outcome.rows...)
	}
	res.Calls = len(combos)
	res.Rows = len(rows)

	switch {
	case haltErr != nil && r.haltOnError:
		res.Result, res.HTTPStatus = capability.Classify(haltErr)
		res.Err = haltErr
	case succeeded == 0 && firstErr != nil:
		res.Result, res.HTTPStatus = capability.Classify(firstErr)
		res.Err = firstErr
	default:
		if res.FailedCalls > 0 {
			r.logger.Warn("artifact had failing calls",
				"module", spec.Module, "failed", res.FailedCalls, "total", res.Calls)
		}
	}

	r.cache.Put(spec.Module, rows)
	res.Elapsed = time.Since(start)
	return res
}

// expandParams derives the ordered list of argument combinations for a spec.
// A nil combos slice with nil error means a source yielded no eligible values.
func (r *Resolver) expandParams(spec ArtifactSpec) ([]capability.Args, []SourceDiagnostic, error) {
	if len(spec.ParamSources) == 0 {
		return []capability.Args{cloneArgs(spec.StaticArgs)}, nil, nil
	}

	valueLists := make([][]any, 0, len(spec.ParamSources))
	diags := make([]SourceDiagnostic, 0, len(spec.ParamSources))
	empty := false
	for _, src := range spec.ParamSources {
		cached, ok := r.cache.Rows(src.Module)
		if !ok {
			return nil, diags, fmt.Errorf("artifact %s: source module %s not resolved", spec.Module, src.Module)
		}
		values := extractValues(cached, src)
		diags = append(diags, SourceDiagnostic{
			Param:    src.Name,
			Module:   src.Module,
			RowsSeen: len(cached),
			Values:   len(values),
		})
		if len(values) == 0 {
			empty = true
		}
		valueLists = append(valueLists, values)
	}
	if empty {
		return nil, diags, nil
	}

	combos := []capability.Args{cloneArgs(spec.StaticArgs)}
	for i, src := range spec.ParamSources {
		next := make([]capability.Args, 0, len(combos)*len(valueLists[i]))
		for _, base := range combos {
			for _, value := range valueLists[i] {
				merged := cloneArgs(base)
				merged[src.Name] = value
				next = append(next, merged)
			}
		}
		combos = next
	}
	return combos, diags, nil
}

// extractValues reads the source field from every row, applies the
// required-field filter, and deduplicates preserving first-seen order.
func extractValues(rows []normalize.Row, src ParamSource) []any {
	seen := make(map[string]struct{})
	var out []any
	for _, row := range rows {
		if src.RequiredField != "" {
			companion, ok := normalize.Extract(row, src.RequiredField)
			if !ok || normalize.IsEmpty(companion) {
				continue
			}
		}
		value, ok := normalize.Extract(row, src.Field)
		if !ok || normalize.IsEmpty(value) {
			continue
		}
		key := fmt.Sprint(value)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, value)
	}
	return out
}

// buildOutputRow projects one returned row into the homogenized output shape:
// standard columns, identity back-fill from call arguments, pass-through of
// *_id arguments, and the source_method / raw_keys / raw_json stamps.
func buildOutputRow(original normalize.Row, args capability.Args, method string) normalize.Row {
	out := make(normalize.Row, len(standardColumns)+len(args)+3)
	for _, col := range standardColumns {
		if value, ok := normalize.Extract(original, col); ok {
			out[col] = value
		}
	}

	for name, value := range args {
		snake := camelToSnake(name)
		if isIdentityColumn(snake) {
			if normalize.IsEmpty(out[snake]) {
				out[snake] = value
			}
			continue
		}
		if strings.HasSuffix(snake, "_id") {
			if _, ok := out[snake]; !ok {
				out[snake] = value
			}
		}
	}

	keys := make([]string, 0, len(original))
	for key := range original {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	out["source_method"] = method
	out["raw_keys"] = strings.Join(keys, ",")
	if raw, err := json.Marshal(original); err == nil {
		out["raw_json"] = string(raw)
	} else {
		out["raw_json"] = fmt.Sprintf("%q", fmt.Sprint(original))
	}
	return out
}

func isIdentityColumn(name string) bool {
	for _, col := range identityColumns {
		if col == name {
			return true
		}
	}
	return false
}

func cloneArgs(in capability.Args) capability.Args {
	out := make(capability.Args, len(in)+2)
	for k, v := range in {
		out[k] = v
	}
	return out
}

func camelToSnake(s string) string {
	var b strings.Builder
	for i, r := range s {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				b.WriteByte('_')
			}
			b.WriteRune(r | 0x20)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
