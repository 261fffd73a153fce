package resolver

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"

	"telinv/internal/capability"
	"telinv/internal/normalize"
	"telinv/internal/status"
)

// fakeCaller records invocations and serves canned responses per method.
type fakeCaller struct {
	mu        sync.Mutex
	calls     []recordedCall
	responses map[string]func(args capability.Args) (any, error)
}

type recordedCall struct {
	method string
	args   capability.Args
}

func newFakeCaller() *fakeCaller {
	return &fakeCaller{responses: make(map[string]func(capability.Args) (any, error))}
}

func (f *fakeCaller) respond(method string, fn func(capability.Args) (any, error)) {
	f.responses[method] = fn
}

func (f *fakeCaller) Call(_ context.Context, name string, args capability.Args) (any, error) {
	f.mu.Lock()
	f.calls = append(f.calls, recordedCall{method: name, args: args})
	f.mu.Unlock()
	fn, ok := f.responses[name]
	if !ok {
		return nil, fmt.Errorf("%s: %w", name, capability.ErrOperationNotFound)
	}
	return fn(args)
}

func (f *fakeCaller) callsFor(method string) []recordedCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []recordedCall
	for _, c := range f.calls {
		if c.method == method {
			out = append(out, c)
		}
	}
	return out
}

func TestCatalogRejectsDuplicateModules(t *testing.T) {
	_, err := NewCatalog([]ArtifactSpec{
		{Module: "people", MethodPath: "people.list"},
		{Module: "people", MethodPath: "people.list"},
	})
	if err == nil {
		t.Fatal("expected duplicate module error")
	}
}

func TestCatalogRejectsCycles(t *testing.T) {
	_, err := NewCatalog([]ArtifactSpec{
		{Module: "a", MethodPath: "a.list", ParamSources: []ParamSource{{Name: "x", Module: "b", Field: "id"}}},
		{Module: "b", MethodPath: "b.list", ParamSources: []ParamSource{{Name: "y", Module: "a", Field: "id"}}},
	})
	if err == nil {
		t.Fatal("expected cycle error")
	}
}

func TestCatalogRejectsUnknownSource(t *testing.T) {
	_, err := NewCatalog([]ArtifactSpec{
		{Module: "a", MethodPath: "a.list", ParamSources: []ParamSource{{Name: "x", Module: "ghost", Field: "id"}}},
	})
	if err == nil {
		t.Fatal("expected unknown source error")
	}
}

func TestCatalogAllowsSeededSource(t *testing.T) {
	_, err := NewCatalog([]ArtifactSpec{
		{Module: "a", MethodPath: "a.list", ParamSources: []ParamSource{{Name: "x", Module: "seeded", Field: "id"}}},
	}, "seeded")
	if err != nil {
		t.Fatalf("seeded source must be allowed: %v", err)
	}
}

func TestOrderedRespectsDependencies(t *testing.T) {
	catalog, err := NewCatalog([]ArtifactSpec{
		{Module: "members", MethodPath: "m.list", ParamSources: []ParamSource{{Name: "q", Module: "queues", Field: "id"}}},
		{Module: "locations", MethodPath: "l.list"},
		{Module: "queues", MethodPath: "q.list", ParamSources: []ParamSource{{Name: "l", Module: "locations", Field: "id"}}},
	})
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	var order []string
	for _, spec := range catalog.Ordered() {
		order = append(order, spec.Module)
	}
	want := []string{"locations", "queues", "members"}
	if diff := cmp.Diff(want, order); diff != "" {
		t.Fatalf("order mismatch (-want +got):\n%s", diff)
	}
}

func TestCartesianExpansionOrderAndCount(t *testing.T) {
	catalog, err := NewCatalog([]ArtifactSpec{
		{Module: "combo", MethodPath: "combo.get", ParamSources: []ParamSource{
			{Name: "a", Module: "alphas", Field: "id"},
			{Name: "b", Module: "betas", Field: "id"},
		}},
	}, "alphas", "betas")
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}

	cache := NewEntityCache()
	cache.Seed("alphas", []normalize.Row{
		{"id": "a1"}, {"id": "a2"}, {"id": "a1"}, {"id": "a3"},
	})
	cache.Seed("betas", []normalize.Row{{"id": "b1"}, {"id": "b2"}})

	caller := newFakeCaller()
	caller.respond("combo.get", func(args capability.Args) (any, error) {
		return map[string]any{"pair": fmt.Sprintf("%s-%s", args["a"], args["b"])}, nil
	})

	r := New(catalog, caller, cache, status.NewRecorder())
	results, err := r.Resolve(context.Background())
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if results[0].Calls != 6 {
		t.Fatalf("expected 3x2=6 calls, got %d", results[0].Calls)
	}

	rows, _ := cache.Rows("combo")
	var pairs []string
	for _, row := range rows {
		var raw map[string]any
		if err := json.Unmarshal([]byte(row["raw_json"].(string)), &raw); err != nil {
			t.Fatalf("raw_json: %v", err)
		}
		pairs = append(pairs, raw["pair"].(string))
	}
	want := []string{"a1-b1", "a1-b2", "a2-b1", "a2-b2", "a3-b1", "a3-b2"}
	if diff := cmp.Diff(want, pairs); diff != "" {
		t.Fatalf("expansion order mismatch (-want +got):\n%s", diff)
	}
}

func TestRequiredFieldFiltersRows(t *testing.T) {
	catalog, err := NewCatalog([]ArtifactSpec{
		{Module: "numbers", MethodPath: "numbers.list", ParamSources: []ParamSource{
			{Name: "personId", Module: "people", Field: "person_id", RequiredField: "location_id"},
		}},
	}, "people")
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}

	cache := NewEntityCache()
	cache.Seed("people", []normalize.Row{
		{"person_id": "p1", "location_id": "L1"},
		{"person_id": "p2", "location_id": ""},
	})
	caller := newFakeCaller()
	caller.respond("numbers.list", func(args capability.Args) (any, error) {
		return []map[string]any{{"number": "+1555"}}, nil
	})

	r := New(catalog, caller, cache, status.NewRecorder())
	if _, err := r.Resolve(context.Background()); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	calls := caller.callsFor("numbers.list")
	if len(calls) != 1 {
		t.Fatalf("expected 1 call, got %d", len(calls))
	}
	if calls[0].args["personId"] != "p1" {
		t.Fatalf("p2 must be filtered out, got %v", calls[0].args)
	}
}

func TestZeroEligibleSourceResolvesOKWithZeroRows(t *testing.T) {
	catalog, err := NewCatalog([]ArtifactSpec{
		{Module: "numbers", MethodPath: "numbers.list", ParamSources: []ParamSource{
			{Name: "personId", Module: "people", Field: "person_id"},
		}},
	}, "people")
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}

	cache := NewEntityCache()
	cache.Seed("people", []normalize.Row{{"person_id": ""}})
	caller := newFakeCaller()
	recorder := status.NewRecorder()

	r := New(catalog, caller, cache, recorder)
	results, err := r.Resolve(context.Background())
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if results[0].Result != capability.ResultOK {
		t.Fatalf("zero eligible sources must be ok, got %s", results[0].Result)
	}
	rows, ok := cache.Rows("numbers")
	if !ok || len(rows) != 0 {
		t.Fatalf("expected resolved empty module, rows=%v ok=%v", rows, ok)
	}
	if len(caller.calls) != 0 {
		t.Fatalf("no calls expected, got %d", len(caller.calls))
	}
	if results[0].Diagnostics[0].RowsSeen != 1 || results[0].Diagnostics[0].Values != 0 {
		t.Fatalf("diagnostics not retained: %+v", results[0].Diagnostics)
	}
}

func TestPartialCallFailureContinuesAndRecordsLedger(t *testing.T) {
	catalog, err := NewCatalog([]ArtifactSpec{
		{Module: "details", MethodPath: "detail.get", ParamSources: []ParamSource{
			{Name: "id", Module: "ids", Field: "id"},
		}},
	}, "ids")
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	cache := NewEntityCache()
	cache.Seed("ids", []normalize.Row{{"id": "x1"}, {"id": "x2"}, {"id": "x3"}})

	caller := newFakeCaller()
	caller.respond("detail.get", func(args capability.Args) (any, error) {
		if args["id"] == "x2" {
			return nil, &capability.APIError{StatusCode: 404, Message: "gone"}
		}
		return map[string]any{"id": args["id"]}, nil
	})

	recorder := status.NewRecorder()
	r := New(catalog, caller, cache, recorder)
	results, err := r.Resolve(context.Background())
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	res := results[0]
	if res.Result != capability.ResultOK {
		t.Fatalf("partial failure with surviving rows must stay ok, got %s", res.Result)
	}
	if res.Rows != 2 || res.FailedCalls != 1 || res.Calls != 3 {
		t.Fatalf("unexpected result %+v", res)
	}
	records := recorder.Records()
	if len(records) != 1 || records[0].Count != 2 {
		t.Fatalf("expected one ledger row with count 2, got %+v", records)
	}
}

func TestAllCallsFailedClassifiesArtifact(t *testing.T) {
	catalog, _ := NewCatalog([]ArtifactSpec{
		{Module: "queues", MethodPath: "queues.list"},
	})
	caller := newFakeCaller()
	caller.respond("queues.list", func(capability.Args) (any, error) {
		return nil, &capability.APIError{StatusCode: 403, Message: "denied"}
	})
	cache := NewEntityCache()
	recorder := status.NewRecorder()

	r := New(catalog, caller, cache, recorder)
	results, err := r.Resolve(context.Background())
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if results[0].Result != capability.ResultForbidden || results[0].HTTPStatus != 403 {
		t.Fatalf("expected forbidden/403, got %+v", results[0])
	}
	if rows, ok := cache.Rows("queues"); !ok || len(rows) != 0 {
		t.Fatalf("failed artifact must still write empty module, rows=%v", rows)
	}
}

func TestOutputRowProjectionAndStamps(t *testing.T) {
	catalog, _ := NewCatalog([]ArtifactSpec{
		{Module: "queues", MethodPath: "telephony.queues.get", ParamSources: []ParamSource{
			{Name: "locationId", Module: "locations", Field: "id"},
		}},
	}, "locations")
	cache := NewEntityCache()
	cache.Seed("locations", []normalize.Row{{"id": "L1"}})

	original := map[string]any{"id": "q1", "displayName": "Support Queue", "phoneNumber": "+15550001"}
	caller := newFakeCaller()
	caller.respond("telephony.queues.get", func(capability.Args) (any, error) {
		return original, nil
	})

	r := New(catalog, caller, cache, status.NewRecorder())
	if _, err := r.Resolve(context.Background()); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	rows, _ := cache.Rows("queues")
	if len(rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(rows))
	}
	row := rows[0]

	if row["location_id"] != "L1" {
		t.Fatalf("identity back-fill from args missing: %v", row)
	}
	if row["display_name"] != "Support Queue" || row["phone_number"] != "+15550001" {
		t.Fatalf("alias-tolerant projection failed: %v", row)
	}
	if row["source_method"] != "telephony.queues.get" {
		t.Fatalf("source_method stamp missing: %v", row)
	}
	if row["raw_keys"] != "displayName,id,phoneNumber" {
		t.Fatalf("raw_keys must be sorted comma-joined originals, got %v", row["raw_keys"])
	}
	var roundTrip map[string]any
	if err := json.Unmarshal([]byte(row["raw_json"].(string)), &roundTrip); err != nil {
		t.Fatalf("raw_json decode: %v", err)
	}
	if diff := cmp.Diff(original, roundTrip); diff != "" {
		t.Fatalf("raw_json round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestSingletonResultIsOneRow(t *testing.T) {
	catalog, _ := NewCatalog([]ArtifactSpec{
		{Module: "org", MethodPath: "org.get"},
	})
	caller := newFakeCaller()
	caller.respond("org.get", func(capability.Args) (any, error) {
		return map[string]any{"id": "org1", "name": "Acme", "region": "emea"}, nil
	})
	cache := NewEntityCache()
	r := New(catalog, caller, cache, status.NewRecorder())
	if _, err := r.Resolve(context.Background()); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	rows, _ := cache.Rows("org")
	if len(rows) != 1 {
		t.Fatalf("singleton result must be exactly one row, got %d", len(rows))
	}
}

func TestBoundedConcurrencyKeepsDeterministicOrder(t *testing.T) {
	catalog, _ := NewCatalog([]ArtifactSpec{
		{Module: "detail", MethodPath: "d.get", ParamSources: []ParamSource{
			{Name: "id", Module: "ids", Field: "id"},
		}},
	}, "ids")
	cache := NewEntityCache()
	var seed []normalize.Row
	for i := 0; i < 20; i++ {
		seed = append(seed, normalize.Row{"id": fmt.Sprintf("v%02d", i)})
	}
	cache.Seed("ids", seed)

	caller := newFakeCaller()
	caller.respond("d.get", func(args capability.Args) (any, error) {
		return map[string]any{"got": args["id"]}, nil
	})

	r := New(catalog, caller, cache, status.NewRecorder(), WithConcurrency(8))
	if _, err := r.Resolve(context.Background()); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	rows, _ := cache.Rows("detail")
	for i, row := range rows {
		var raw map[string]any
		_ = json.Unmarshal([]byte(row["raw_json"].(string)), &raw)
		if want := fmt.Sprintf("v%02d", i); raw["got"] != want {
			t.Fatalf("row %d out of order: got %v want %s", i, raw["got"], want)
		}
	}
}
