// Package router dispatches change envelopes to the evaluator registered for
// their table. The registry is a sparse whitelist: tables without an evaluator
// are ignored.
package router

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/chihqiang/dbxnotify/envelope"
	"github.com/chihqiang/dbxnotify/types"
)

// Handler evaluates one change of a table.
type Handler interface {
	Handle(ctx context.Context, op types.Operation, before, after json.RawMessage) ([]types.Intent, error)
}

// Evaluator is a change evaluator over decoded rows of type T.
// before is nil for creates (and for updates whose previous image is missing);
// after is nil for deletes.
type Evaluator[T any] func(ctx context.Context, op types.Operation, before, after *T) ([]types.Intent, error)

// Typed adapts an evaluator over T into a Handler that decodes rows at the router
// boundary. A row that does not decode into T is a malformed envelope.
func Typed[T any](fn Evaluator[T]) Handler {
	return typedHandler[T](fn)
}

type typedHandler[T any] Evaluator[T]

func (h typedHandler[T]) Handle(ctx context.Context, op types.Operation, before, after json.RawMessage) ([]types.Intent, error) {
	b, err := decodeRow[T](before)
	if err != nil {
		return nil, fmt.Errorf("%w: before: %v", envelope.ErrMalformedEnvelope, err)
	}
	a, err := decodeRow[T](after)
	if err != nil {
		return nil, fmt.Errorf("%w: after: %v", envelope.ErrMalformedEnvelope, err)
	}
	return h(ctx, op, b, a)
}

func decodeRow[T any](raw json.RawMessage) (*T, error) {
	if raw == nil {
		return nil, nil
	}
	row := new(T)
	if err := json.Unmarshal(raw, row); err != nil {
		return nil, err
	}
	return row, nil
}

// Routes maps table identities to handlers.
type Routes map[types.Table]Handler

// Router is the static table registry.
type Router struct {
	routes Routes
}

// New builds a router. Entries keyed by TableUnknown are dropped: unknown tables
// always take the no-op path.
func New(routes Routes) *Router {
	r := &Router{routes: make(Routes, len(routes))}
	for table, h := range routes {
		if !table.Known() || h == nil {
			continue
		}
		r.routes[table] = h
	}
	return r
}

// Route evaluates env with the handler of its table. A table without handler
// yields no intents and no error.
func (r *Router) Route(ctx context.Context, env *types.ChangeEnvelope) ([]types.Intent, error) {
	h, ok := r.Lookup(env.Source.Table)
	if !ok {
		return nil, nil
	}
	return h.Handle(ctx, env.Op, env.Before, env.After)
}

// Lookup returns the handler registered for a table name.
func (r *Router) Lookup(table string) (Handler, bool) {
	t := types.ParseTable(table)
	if !t.Known() {
		return nil, false
	}
	h, ok := r.routes[t]
	return h, ok
}

// Tables lists the registered tables in name order.
func (r *Router) Tables() []types.Table {
	tables := make([]types.Table, 0, len(r.routes))
	for t := range r.routes {
		tables = append(tables, t)
	}
	sort.Slice(tables, func(i, j int) bool { return tables[i] < tables[j] })
	return tables
}
