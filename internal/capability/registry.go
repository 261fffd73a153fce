// Package capability exposes the vendor API as a registry of named
// operations. Operation names are dotted paths (telephony.queues.list) bound
// to callables at startup; the rest of the system never performs runtime
// attribute traversal against the vendor client.
package capability

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Args holds keyword arguments for one operation invocation.
type Args = map[string]any

// InvokeFunc performs the remote call for one operation. It returns either a
// single structured result or a slice of them.
type InvokeFunc func(ctx context.Context, args Args) (any, error)

// Operation is one registered API operation. Params is the explicit parameter
// whitelist: the invoker drops any argument not listed here before calling,
// which tolerates catalog entries that declare a superset of parameters across
// API variations.
type Operation struct {
	Name   string
	Params []string
	Invoke InvokeFunc
}

func (op Operation) accepts(name string) bool {
	for _, p := range op.Params {
		if p == name {
			return true
		}
	}
	return false
}

// Registry maps dotted operation names to bound operations. Construct once at
// process start and pass by reference; registration after that point is safe
// but unusual.
type Registry struct {
	mu  sync.RWMutex
	ops map[string]Operation
}

// NewRegistry constructs an empty operation registry.
func NewRegistry() *Registry {
	return &Registry{ops: make(map[string]Operation)}
}

// Register binds an operation under its dotted name. Re-registering a name
// replaces the previous binding.
func (r *Registry) Register(op Operation) error {
	if op.Name == "" {
		return fmt.Errorf("operation name required")
	}
	if op.Invoke == nil {
		return fmt.Errorf("operation %s has no invoke function", op.Name)
	}
	r.mu.Lock()
	r.ops[op.Name] = op
	r.mu.Unlock()
	return nil
}

// Resolve returns the operation bound to name.
func (r *Registry) Resolve(name string) (Operation, bool) {
	r.mu.RLock()
	op, ok := r.ops[name]
	r.mu.RUnlock()
	return op, ok
}

// Names returns all registered operation names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.ops))
	for name := range r.ops {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
