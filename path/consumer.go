package path

import (
	"fmt"

	"github.com/go-mizu/ldb/value"
)

// Envelope is one QueryDelta emission: either a full result replacing
// whatever the consumer held, or an ops delta applied on top of it.
type Envelope struct {
	QueryID  string
	Revision int
	Full     bool
	Result   value.Value // valid when Full
	Ops      []Op        // valid when !Full
}

type subState struct {
	revision int
	result   value.Value
}

// Consumer applies QueryDelta envelopes for many subscriptions, enforcing
// revision ordering: an envelope whose revision does not strictly exceed
// the subscription's current revision is dropped rather than applied.
type Consumer struct {
	subs map[string]subState
}

// NewConsumer returns an empty Consumer.
func NewConsumer() *Consumer {
	return &Consumer{subs: make(map[string]subState)}
}

// Apply applies env against the consumer's held state for env.QueryID. It
// returns the resulting value and any per-op errors, and reports whether
// the envelope was applied at all (false means it was dropped as stale, or
// it was a delta for an unknown queryId, which is also reported as an error).
func (c *Consumer) Apply(env Envelope) (result value.Value, applied bool, errs []error) {
	cur, ok := c.subs[env.QueryID]
	if ok && env.Revision <= cur.revision {
		return cur.result, false, nil
	}

	if env.Full {
		c.subs[env.QueryID] = subState{revision: env.Revision, result: env.Result}
		return env.Result, true, nil
	}

	if !ok {
		return value.Value{}, false, []error{fmt.Errorf("path: delta for unknown queryId %q", env.QueryID)}
	}

	newResult, errs := Apply(cur.result, env.Ops)
	c.subs[env.QueryID] = subState{revision: env.Revision, result: newResult}
	return newResult, true, errs
}

// Result returns the last applied result for queryId, if any.
func (c *Consumer) Result(queryID string) (value.Value, bool) {
	s, ok := c.subs[queryID]
	if !ok {
		return value.Value{}, false
	}
	return s.result, true
}

// Revision returns the current revision for queryId, if any.
func (c *Consumer) Revision(queryID string) (int, bool) {
	s, ok := c.subs[queryID]
	if !ok {
		return 0, false
	}
	return s.revision, true
}

// Forget drops all held state for queryId, mirroring an unregister.
func (c *Consumer) Forget(queryID string) {
	delete(c.subs, queryID)
}
