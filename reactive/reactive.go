// Package reactive implements the subscription registry and fine-grained
// reactivity: registration, the per-delta re-execution decision, and the
// list-reconciliation + value-diff patch algorithm that turns a
// re-executed result into a minimal QueryDelta.
package reactive

import (
	"sort"

	"github.com/go-mizu/ldb/path"
	"github.com/go-mizu/ldb/queryast"
	"github.com/go-mizu/ldb/queryexec"
	"github.com/go-mizu/ldb/schema"
	"github.com/go-mizu/ldb/store"
	"github.com/go-mizu/ldb/value"
)

// Subscription is a registered live query: its parsed query, opaque caller
// input, cached result and row-id tracking, and its monotonic revision.
type Subscription struct {
	QueryID string
	Query   queryast.Query
	Input   any

	// ResultRowIDs is table -> id(string) -> true for every base row the
	// last emitted result was built from. A table key present with an
	// empty set means the query ran against that table and found nothing
	// (distinct from the table never having been visited at all).
	ResultRowIDs map[string]map[string]bool
	Revision     int64
	LastResult   map[string][]value.Row
	HasResult    bool
}

// FullResult carries a complete query result.
type FullResult struct {
	Result map[string][]value.Row
}

// DeltaResult carries an ops-based patch over the previous result.
type DeltaResult struct {
	Ops []path.Op
}

// QueryDelta is one emission for one subscription: either Full or Delta is
// set, never both.
type QueryDelta struct {
	QueryID  string
	Revision int64
	Full     *FullResult
	Delta    *DeltaResult
}

// Registry holds every live subscription against one schema/store pair and
// computes re-execution decisions and QueryDelta emissions as deltas land.
// It is mutated only by the controller and does not lock internally.
type Registry struct {
	meta schema.Metadata
	db   *store.Database
	subs map[string]*Subscription
}

// New builds an empty Registry.
func New(meta schema.Metadata, db *store.Database) *Registry {
	return &Registry{
		meta: meta,
		db:   db,
		subs: make(map[string]*Subscription),
	}
}

// Register inserts a subscription at revision 0 with no cached result,
// immediately executes q, and returns the initial full emission at
// revision 1.
func (r *Registry) Register(queryID string, q queryast.Query, input any) QueryDelta {
	sub := &Subscription{QueryID: queryID, Query: q, Input: input}
	r.subs[queryID] = sub
	return r.executeAndEmitFull(sub)
}

// UpdateInput mutates a subscription's opaque input and emits a fresh full
// result. ok is false if queryID is not registered.
func (r *Registry) UpdateInput(queryID string, input any) (qd QueryDelta, ok bool) {
	sub, found := r.subs[queryID]
	if !found {
		return QueryDelta{}, false
	}
	sub.Input = input
	return r.executeAndEmitFull(sub), true
}

// Unregister drops a subscription. It is a no-op if queryID is unknown.
func (r *Registry) Unregister(queryID string) {
	delete(r.subs, queryID)
}

// Subscriptions returns a snapshot slice of every registered subscription,
// ordered by query id.
func (r *Registry) Subscriptions() []*Subscription {
	ids := r.sortedIDs()
	out := make([]*Subscription, 0, len(ids))
	for _, id := range ids {
		out = append(out, r.subs[id])
	}
	return out
}

// ReExecuteAll re-runs every subscription's query and emits an unconditional
// full result for each, in queryID order. Used at controller startup once
// the in-memory store has been populated from persistence: subscriptions
// registered before bootstrap completed otherwise carry a result computed
// against an empty store.
func (r *Registry) ReExecuteAll() []QueryDelta {
	var out []QueryDelta
	for _, id := range r.sortedIDs() {
		out = append(out, r.executeAndEmitFull(r.subs[id]))
	}
	return out
}

func (r *Registry) executeAndEmitFull(sub *Subscription) QueryDelta {
	res := queryexec.Execute(r.meta, r.db, sub.Query)
	sub.LastResult = res.Results
	sub.ResultRowIDs = res.RowIDs
	sub.HasResult = true
	sub.Revision++
	return QueryDelta{
		QueryID:  sub.QueryID,
		Revision: sub.Revision,
		Full:     &FullResult{Result: res.Results},
	}
}

// OnDelta applies the reactivity decision and patch emission to every
// subscription for one applied delta, returning the envelopes that
// actually need to go out. Subscriptions are visited in queryID order for
// deterministic emission sequencing.
func (r *Registry) OnDelta(applied store.ApplyResult) []QueryDelta {
	var out []QueryDelta
	for _, id := range r.sortedIDs() {
		sub := r.subs[id]
		if qd, ok := r.reactToDelta(sub, applied); ok {
			out = append(out, qd)
		}
	}
	return out
}

func (r *Registry) sortedIDs() []string {
	ids := make([]string, 0, len(r.subs))
	for id := range r.subs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (r *Registry) reactToDelta(sub *Subscription, applied store.ApplyResult) (QueryDelta, bool) {
	if decide(r.meta, sub, applied) != ReExecuteFull {
		return QueryDelta{}, false
	}

	res := queryexec.Execute(r.meta, r.db, sub.Query)

	if !sub.HasResult {
		sub.LastResult = res.Results
		sub.ResultRowIDs = res.RowIDs
		sub.HasResult = true
		sub.Revision++
		return QueryDelta{
			QueryID:  sub.QueryID,
			Revision: sub.Revision,
			Full:     &FullResult{Result: res.Results},
		}, true
	}

	ops := diffResults(sub.LastResult, res.Results)
	sub.LastResult = res.Results
	sub.ResultRowIDs = res.RowIDs

	if len(ops) == 0 {
		// Re-executed to the same shape: cache refreshed, no emission and
		// no revision bump.
		return QueryDelta{}, false
	}

	sub.Revision++
	return QueryDelta{
		QueryID:  sub.QueryID,
		Revision: sub.Revision,
		Delta:    &DeltaResult{Ops: ops},
	}, true
}
