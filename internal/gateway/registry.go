// internal/gateway/registry.go
//
// A super-light registry: the gateway constructor calls register(name,
// handler) for each named operation, and Dispatch looks the name up (exact
// match, no wildcards) and executes the handler.
//
// Handler signature:
//
//	func(ctx context.Context, call Call) (any, error)
//
// The returned value is JSON-encoded verbatim as the operation result, so
// a handler returning `true` answers the caller with the literal `true`.
package gateway

import (
	"context"
	"encoding/json"
	"sync"
)

// Handler is what operations register.
type Handler func(ctx context.Context, call Call) (any, error)

// Call carries the caller identity and the raw operation arguments.
type Call struct {
	Identity Identity
	Params   json.RawMessage
}

// Bind decodes the call arguments into dst.  An absent body binds the zero
// value, for operations like create_code that take no arguments.
func (c Call) Bind(dst any) error {
	if len(c.Params) == 0 {
		return nil
	}
	return json.Unmarshal(c.Params, dst)
}

type registry struct {
	mu  sync.RWMutex
	ops map[string]Handler
}

func newRegistry() *registry {
	return &registry{ops: map[string]Handler{}}
}

func (r *registry) register(name string, h Handler) {
	r.mu.Lock()
	r.ops[name] = h
	r.mu.Unlock()
}

// lookup returns the handler for an exact operation name or nil.
func (r *registry) lookup(name string) Handler {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.ops[name]
}
