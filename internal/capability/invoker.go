package capability

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

const (
	defaultMaxAttempts = 3
	defaultBackoffBase = 500 * time.Millisecond
)

// Invoker dispatches calls through a Registry, filtering keyword arguments
// down to each operation's declared whitelist and retrying on rate-limit
// responses with capped exponential backoff.
type Invoker struct {
	registry    *Registry
	logger      *slog.Logger
	maxAttempts int
	backoffBase time.Duration
	sleep       func(context.Context, time.Duration) error
}

// InvokerOption customizes Invoker construction.
type InvokerOption func(*Invoker)

// WithMaxAttempts caps the total attempts made for a rate-limited call.
func WithMaxAttempts(n int) InvokerOption {
	return func(inv *Invoker) {
		if n > 0 {
			inv.maxAttempts = n
		}
	}
}

// WithBackoffBase sets the initial backoff delay used after a 429.
func WithBackoffBase(d time.Duration) InvokerOption {
	return func(inv *Invoker) {
		if d > 0 {
			inv.backoffBase = d
		}
	}
}

// WithLogger attaches a logger for retry diagnostics.
func WithLogger(logger *slog.Logger) InvokerOption {
	return func(inv *Invoker) {
		if logger != nil {
			inv.logger = logger
		}
	}
}

// NewInvoker constructs an invoker over the provided registry.
func NewInvoker(registry *Registry, opts ...InvokerOption) *Invoker {
	inv := &Invoker{
		registry:    registry,
		logger:      slog.Default(),
		maxAttempts: defaultMaxAttempts,
		backoffBase: defaultBackoffBase,
		sleep:       sleepCtx,
	}
	for _, opt := range opts {
		opt(inv)
	}
	return inv
}

// Call invokes the named operation with args filtered to its parameter
// whitelist. Unknown operation names return ErrOperationNotFound. A 429
// triggers backoff-and-retry up to the attempt cap; every other error
// propagates immediately.
func (inv *Invoker) Call(ctx context.Context, name string, args Args) (any, error) {
	op, ok := inv.registry.Resolve(name)
	if !ok {
		return nil, fmt.Errorf("%s: %w", name, ErrOperationNotFound)
	}
	filtered := filterArgs(op, args)

	var lastErr error
	for attempt := 1; attempt <= inv.maxAttempts; attempt++ {
		result, err := op.Invoke(ctx, filtered)
		if err == nil {
			return result, nil
		}
		if !isRateLimited(err) {
			return nil, err
		}
		lastErr = err
		if attempt == inv.maxAttempts {
			break
		}
		delay := inv.backoffBase << (attempt - 1)
		inv.logger.Warn("rate limited, backing off",
			"operation", name, "attempt", attempt, "delay", delay)
		if err := inv.sleep(ctx, delay); err != nil {
			return nil, err
		}
	}
	return nil, lastErr
}

func filterArgs(op Operation, args Args) Args {
	filtered := make(Args, len(args))
	for name, value := range args {
		if op.accepts(name) {
			filtered[name] = value
		}
	}
	return filtered
}

func isRateLimited(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == 429
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
