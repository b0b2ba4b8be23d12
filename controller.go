package ldb

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/go-mizu/ldb/catchup"
	"github.com/go-mizu/ldb/livestream"
	"github.com/go-mizu/ldb/persist"
	"github.com/go-mizu/ldb/queryast"
	"github.com/go-mizu/ldb/reactive"
	"github.com/go-mizu/ldb/schema"
	"github.com/go-mizu/ldb/store"
	"golang.org/x/sync/errgroup"
)

// Controller orchestrates the whole sync pipeline: it owns the in-memory
// store, the subscription registry, the catchup driver, and the
// live-stream client, and is the only component that mutates the store or
// registry. mu serializes every state transition so no two delta
// applications or query executions ever interleave, giving single-actor
// semantics without a literal message-passing actor.
type Controller struct {
	mu sync.Mutex

	meta     schema.Metadata
	db       *store.Database
	registry *reactive.Registry
	rowStore persist.RowStore

	catchupDriver *catchup.Driver
	liveClient    *livestream.Client

	emitter Emitter
	log     *slog.Logger
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the controller's logger. If nil, slog.Default is used.
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) {
		if l != nil {
			c.log = l
		}
	}
}

// WithEmitter sets the outbound message sink. If nil, NopEmitter is used.
func WithEmitter(e Emitter) Option {
	return func(c *Controller) {
		if e != nil {
			c.emitter = e
		}
	}
}

// New builds a Controller. meta describes the relational schema,
// rowStore is the durable backing store, transport fetches catchup pages,
// baseURL is the server's catchup base URL (SendMutation takes its own),
// and liveURL is the live-stream endpoint.
func New(meta schema.Metadata, rowStore persist.RowStore, transport catchup.Transport, baseURL, liveURL string, opts ...Option) *Controller {
	db := store.New(meta)
	c := &Controller{
		meta:     meta,
		db:       db,
		registry: reactive.New(meta, db),
		rowStore: rowStore,
		emitter:  NopEmitter{},
		log:      slog.Default(),
	}
	for _, o := range opts {
		o(c)
	}
	c.catchupDriver = catchup.New(transport, rowStore, catchupSink{c}, baseURL, catchup.WithLogger(c.log))
	c.liveClient = livestream.New(liveURL, liveHandler{c}, livestream.WithLogger(c.log))
	return c
}

// Database exposes the underlying in-memory store for read-only use by
// callers that need direct lookups outside the live-query surface.
func (c *Controller) Database() *store.Database { return c.db }

// Bootstrap loads every persisted row into the in-memory store and builds
// FK indices, then re-executes every subscription registered so far (so
// one registered before Bootstrap runs sees real data instead of the
// empty store it saw at registration time) and emits a fresh full for
// each.
func (c *Controller) Bootstrap(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	tables, err := c.rowStore.GetAllTables(ctx)
	if err != nil {
		return fmt.Errorf("ldb: bootstrap: load persisted rows: %w", err)
	}
	for table, rows := range tables {
		for _, row := range rows {
			c.db.Ingest(table, row)
		}
	}

	for _, qd := range c.registry.ReExecuteAll() {
		c.emitQueryDelta(qd)
	}
	return nil
}

// Run drives the controller through its full lifecycle: Bootstrap, then
// catchup to Synced or Error, then the live-stream client until ctx is
// canceled.
func (c *Controller) Run(ctx context.Context) error {
	if err := c.Bootstrap(ctx); err != nil {
		return err
	}

	if err := c.catchupDriver.Run(ctx, c.db); err != nil {
		c.mu.Lock()
		c.emitError(ErrorEvent{Kind: CatchupTransportErrorKind, Message: err.Error()})
		c.mu.Unlock()
		// Catchup exhausting retries still lets the live stream start, so
		// this is not returned as a fatal Run error.
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := c.liveClient.Run(gctx); err != nil {
			c.mu.Lock()
			c.emitError(ErrorEvent{Kind: StreamTransportErrorKind, Message: err.Error()})
			c.mu.Unlock()
		}
		return nil
	})
	return g.Wait()
}

// Disconnect stops the live stream and its automatic reconnection.
func (c *Controller) Disconnect() error {
	return c.liveClient.Disconnect()
}

// Register implements the inbound `register` port: querySource is the
// JSON-encoded Query, queryInput is opaque caller state threaded through
// to future UpdateInput calls.
func (c *Controller) Register(queryID string, querySource []byte, queryInput any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	q, err := queryast.Decode(bytesReader(querySource))
	if err != nil {
		c.emitError(ErrorEvent{Kind: DecodeErrorKind, QueryID: queryID, Message: err.Error()})
		return fmt.Errorf("ldb: register %s: %w", queryID, err)
	}

	qd := c.registry.Register(queryID, q, queryInput)
	c.emitQueryDelta(qd)
	return nil
}

// UpdateInput implements the inbound `update-input` port.
func (c *Controller) UpdateInput(queryID string, queryInput any) {
	c.mu.Lock()
	defer c.mu.Unlock()

	qd, ok := c.registry.UpdateInput(queryID, queryInput)
	if !ok {
		return
	}
	c.emitQueryDelta(qd)
}

// Unregister implements the inbound `unregister` port.
func (c *Controller) Unregister(queryID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.registry.Unregister(queryID)
}

// emitQueryDelta renders a reactive.QueryDelta through the Emitter. Callers
// must hold c.mu.
func (c *Controller) emitQueryDelta(qd reactive.QueryDelta) {
	switch {
	case qd.Full != nil:
		c.emitter.EmitFull(qd.QueryID, qd.Revision, qd.Full.Result)
	case qd.Delta != nil:
		c.emitter.EmitDelta(qd.QueryID, qd.Revision, qd.Delta.Ops)
	}
}

func (c *Controller) emitError(e ErrorEvent) {
	c.log.Warn("ldb: error", "kind", e.Kind, "queryId", e.QueryID, "message", e.Message)
	c.emitter.EmitError(e)
}

// applyDelta ingests d into the store, maintains FK indices, persists the
// touched rows, and runs every subscription's reactivity decision.
// Re-execution happens only after the delta has fully mutated store and
// indices. Callers must hold c.mu.
func (c *Controller) applyDelta(ctx context.Context, d store.Delta) {
	applied := c.db.ApplyDelta(d)
	c.persistTouched(ctx, applied)

	for _, qd := range c.registry.OnDelta(applied) {
		c.emitQueryDelta(qd)
	}
}

// persistTouched writes every applied row back to the durable store,
// grouped by table. A write failure is logged and surfaced on the error
// port, but the in-memory state it already reflects is never rolled back;
// persistence catches up on the next successful write.
func (c *Controller) persistTouched(ctx context.Context, applied store.ApplyResult) {
	for table, rows := range applied.Touched {
		var toPersist []persist.Row
		for _, rc := range rows {
			if rc.Applied {
				toPersist = append(toPersist, rc.New)
			}
		}
		if len(toPersist) == 0 {
			continue
		}
		if err := c.rowStore.PutRows(ctx, table, toPersist); err != nil {
			c.emitError(ErrorEvent{Kind: PersistWriteErrorKind, Message: err.Error()})
		}
	}
}

// decodeDelta decodes a wire delta payload (the `data` field of a `delta`
// live-stream event) into a store.Delta. A payload without a `tableGroups`
// key is rejected.
func decodeDelta(payload json.RawMessage) (store.Delta, error) {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(payload, &probe); err != nil {
		return store.Delta{}, fmt.Errorf("ldb: decode delta: %w", err)
	}
	if _, ok := probe["tableGroups"]; !ok {
		return store.Delta{}, fmt.Errorf("ldb: decode delta: missing tableGroups")
	}
	var wire struct {
		TableGroups []struct {
			TableName string            `json:"tableName"`
			Headers   []string          `json:"headers"`
			Rows      []json.RawMessage `json:"rows"`
		} `json:"tableGroups"`
	}
	if err := json.Unmarshal(payload, &wire); err != nil {
		return store.Delta{}, fmt.Errorf("ldb: decode delta: %w", err)
	}

	d := store.Delta{TableGroups: make([]store.TableGroup, 0, len(wire.TableGroups))}
	for _, g := range wire.TableGroups {
		tg := store.TableGroup{TableName: g.TableName, Headers: g.Headers}
		for _, rawRow := range g.Rows {
			v, err := decodeValueArray(rawRow)
			if err != nil {
				return store.Delta{}, fmt.Errorf("ldb: decode delta row for %s: %w", g.TableName, err)
			}
			tg.Rows = append(tg.Rows, v)
		}
		d.TableGroups = append(d.TableGroups, tg)
	}
	return d, nil
}
