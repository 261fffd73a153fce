package capability

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		wantResult Result
		wantStatus int
	}{
		{"nil", nil, ResultOK, 0},
		{"forbidden 403", &APIError{StatusCode: 403, Message: "no"}, ResultForbidden, 403},
		{"unauthorized 401", &APIError{StatusCode: 401}, ResultForbidden, 401},
		{"not found 404", &APIError{StatusCode: 404}, ResultNotFound, 404},
		{"unrecognized 500", &APIError{StatusCode: 500}, ResultError, 500},
		{"unrecognized 418", &APIError{StatusCode: 418}, ResultError, 418},
		{"unknown operation", ErrOperationNotFound, ResultNotFound, 0},
		{"generic", errors.New("boom"), ResultError, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			result, status := Classify(tc.err)
			if result != tc.wantResult || status != tc.wantStatus {
				t.Fatalf("Classify() = (%s, %d), want (%s, %d)", result, status, tc.wantResult, tc.wantStatus)
			}
		})
	}
}

func TestClassifyWrappedError(t *testing.T) {
	wrapped := errors.Join(errors.New("context"), &APIError{StatusCode: 403})
	result, status := Classify(wrapped)
	if result != ResultForbidden || status != 403 {
		t.Fatalf("wrapped classify = (%s, %d)", result, status)
	}
}

func TestInvokerFiltersUnsupportedArgs(t *testing.T) {
	registry := NewRegistry()
	var got Args
	err := registry.Register(Operation{
		Name:   "people.list",
		Params: []string{"locationId", "max"},
		Invoke: func(ctx context.Context, args Args) (any, error) {
			got = args
			return nil, nil
		},
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	inv := NewInvoker(registry)
	_, err = inv.Call(context.Background(), "people.list", Args{
		"locationId": "L1",
		"max":        100,
		"orgId":      "should-be-dropped",
	})
	if err != nil {
		t.Fatalf("call: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 surviving args, got %v", got)
	}
	if _, ok := got["orgId"]; ok {
		t.Fatal("undeclared arg leaked through the whitelist")
	}
}

func TestInvokerUnknownOperation(t *testing.T) {
	inv := NewInvoker(NewRegistry())
	_, err := inv.Call(context.Background(), "missing.op", nil)
	if !errors.Is(err, ErrOperationNotFound) {
		t.Fatalf("expected ErrOperationNotFound, got %v", err)
	}
	result, _ := Classify(err)
	if result != ResultNotFound {
		t.Fatalf("unknown operation must classify not_found, got %s", result)
	}
}

func TestInvokerRetriesRateLimitThenSucceeds(t *testing.T) {
	registry := NewRegistry()
	attempts := 0
	_ = registry.Register(Operation{
		Name: "workspaces.list",
		Invoke: func(ctx context.Context, args Args) (any, error) {
			attempts++
			if attempts < 3 {
				return nil, &APIError{StatusCode: 429, Message: "slow down"}
			}
			return map[string]any{"id": "w1"}, nil
		},
	})

	inv := NewInvoker(registry, WithMaxAttempts(3), WithBackoffBase(time.Millisecond))
	inv.sleep = func(context.Context, time.Duration) error { return nil }
	result, err := inv.Call(context.Background(), "workspaces.list", nil)
	if err != nil {
		t.Fatalf("call: %v", err)
	}
	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
	if result == nil {
		t.Fatal("expected result after retry")
	}
}

func TestInvokerRateLimitExhaustsAttempts(t *testing.T) {
	registry := NewRegistry()
	attempts := 0
	_ = registry.Register(Operation{
		Name: "workspaces.list",
		Invoke: func(ctx context.Context, args Args) (any, error) {
			attempts++
			return nil, &APIError{StatusCode: 429}
		},
	})
	inv := NewInvoker(registry, WithMaxAttempts(2), WithBackoffBase(time.Millisecond))
	inv.sleep = func(context.Context, time.Duration) error { return nil }
	_, err := inv.Call(context.Background(), "workspaces.list", nil)
	if StatusOf(err) != 429 {
		t.Fatalf("expected surfaced 429, got %v", err)
	}
	if attempts != 2 {
		t.Fatalf("expected attempt cap of 2, got %d", attempts)
	}
}

func TestInvokerNonRateLimitErrorPropagatesImmediately(t *testing.T) {
	registry := NewRegistry()
	attempts := 0
	_ = registry.Register(Operation{
		Name: "people.get",
		Invoke: func(ctx context.Context, args Args) (any, error) {
			attempts++
			return nil, &APIError{StatusCode: 500, TrackingID: "TRK-1"}
		},
	})
	inv := NewInvoker(registry)
	_, err := inv.Call(context.Background(), "people.get", nil)
	if attempts != 1 {
		t.Fatalf("non-429 must not retry, attempts=%d", attempts)
	}
	if TrackingIDOf(err) != "TRK-1" {
		t.Fatalf("tracking id lost: %v", err)
	}
}

func TestRegistryNames(t *testing.T) {
	registry := NewRegistry()
	for _, name := range []string{"b.op", "a.op", "c.op"} {
		_ = registry.Register(Operation{Name: name, Invoke: func(context.Context, Args) (any, error) { return nil, nil }})
	}
	names := registry.Names()
	if len(names) != 3 || names[0] != "a.op" || names[2] != "c.op" {
		t.Fatalf("expected sorted names, got %v", names)
	}
}
