// Package catchup implements the paged server-fetch driver: a state
// machine that walks pages from a remote snapshot endpoint, applying each
// page through the ordinary delta path, with exponential-backoff retry on
// transport failure.
package catchup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/go-mizu/ldb/internal/backoff"
	"github.com/go-mizu/ldb/persist"
	"github.com/go-mizu/ldb/value"
)

// State is the catchup driver's lifecycle state.
type State int

const (
	NotStarted State = iota
	Syncing
	Synced
	Error
)

func (s State) String() string {
	switch s {
	case NotStarted:
		return "not-started"
	case Syncing:
		return "syncing"
	case Synced:
		return "synced"
	case Error:
		return "error"
	default:
		return "unknown"
	}
}

// TablePage is one table's slice of a catchup response.
type TablePage struct {
	Rows              []value.Row
	PermissionHash    string
	LastSeenUpdatedAt *float64
}

// Page is one catchup response: a page of rows per table, plus whether
// another page remains.
type Page struct {
	Tables  map[string]TablePage
	HasMore bool
}

// Transport fetches one catchup page from the server. The default
// implementation (see HTTPTransport) issues a GET against catchupPath;
// tests substitute a fake.
type Transport interface {
	Fetch(ctx context.Context, baseURL string, cursor persist.Cursor) (Page, error)
}

// StoreView is the subset of store.Database the driver needs to fold the
// in-memory store's state into the catchup cursor on its first tick.
// *store.Database satisfies this interface without catchup importing store.
type StoreView interface {
	Tables() []string
	Rows(table string) []value.Row
}

// Sink receives each applied catchup page's rows, already partitioned by
// table, so the caller can run them through the same ingestion path as a
// live delta: in-memory apply, index maintenance, persistence, and
// subscription notification.
type Sink interface {
	ApplyCatchupPage(ctx context.Context, table string, rows []value.Row) error
}

// Driver runs the catchup state machine against one baseURL/endpoint.
type Driver struct {
	transport Transport
	rowStore  persist.RowStore
	sink      Sink
	policy    backoff.Policy
	log       *slog.Logger

	baseURL string

	state    State
	errMsg   string
	progress SyncProgress
}

// SyncProgress mirrors the outbound syncProgress event's payload.
type SyncProgress struct {
	Table        string
	TablesSynced int
	TotalTables  int
	Complete     bool
	Error        string
}

// Option configures a Driver.
type Option func(*Driver)

func WithLogger(l *slog.Logger) Option {
	return func(d *Driver) {
		if l != nil {
			d.log = l
		}
	}
}

func WithBackoff(p backoff.Policy) Option {
	return func(d *Driver) { d.policy = p }
}

// New builds a Driver. transport fetches catchup pages, rowStore supplies
// and persists the sync cursor, sink applies each page's rows, and baseURL
// is the server base URL passed to the transport. The in-memory view used
// on the first tick is passed to Run.
func New(transport Transport, rowStore persist.RowStore, sink Sink, baseURL string, opts ...Option) *Driver {
	d := &Driver{
		transport: transport,
		rowStore:  rowStore,
		sink:      sink,
		policy:    backoff.New(backoff.WithMaxRetries(8)),
		log:       slog.Default(),
		baseURL:   baseURL,
		state:     NotStarted,
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// State returns the driver's current lifecycle state.
func (d *Driver) State() State { return d.state }

// Progress returns the most recent syncProgress snapshot.
func (d *Driver) Progress() SyncProgress { return d.progress }

// Run drives catchup to completion: it pages through Transport.Fetch,
// applying each page via Sink and persisting rows and cursor, until
// HasMore is false (Synced) or the retry budget is exhausted (Error).
// view, if non-nil, is consulted once on the first tick to fold the
// in-memory store's max updatedAt per table into the cursor.
func (d *Driver) Run(ctx context.Context, view StoreView) error {
	d.state = Syncing

	cursor, err := d.rowStore.GetCursor(ctx)
	if err != nil {
		return d.fail(fmt.Errorf("catchup: load cursor: %w", err))
	}
	if cursor == nil {
		cursor = persist.Cursor{}
	}
	if view != nil {
		cursor = foldStoreIntoCursor(cursor, view)
	}

	for {
		var page Page
		fetchErr := backoff.Run(ctx, d.policy, func(ctx context.Context) error {
			p, err := d.transport.Fetch(ctx, d.baseURL, cursor)
			if err != nil {
				return err
			}
			page = p
			return nil
		}, func(err error, attempt int) {
			d.log.Warn("catchup: fetch failed, retrying", "attempt", attempt, "error", err)
		})
		if fetchErr != nil {
			return d.fail(fmt.Errorf("catchup: fetch: %w", fetchErr))
		}

		tablesSynced := 0
		totalTables := len(page.Tables)
		for table, tp := range page.Tables {
			if err := d.sink.ApplyCatchupPage(ctx, table, tp.Rows); err != nil {
				return d.fail(fmt.Errorf("catchup: apply page for %s: %w", table, err))
			}

			entry := cursor[table]
			entry.PermissionHash = tp.PermissionHash
			if tp.LastSeenUpdatedAt != nil {
				entry.LastSeenUpdatedAt = tp.LastSeenUpdatedAt
			}
			cursor[table] = entry
			tablesSynced++

			d.progress = SyncProgress{Table: table, TablesSynced: tablesSynced, TotalTables: totalTables}
			if err := d.rowStore.PutCursor(ctx, cursor); err != nil {
				return d.fail(fmt.Errorf("catchup: persist cursor: %w", err))
			}
		}

		if !page.HasMore {
			d.state = Synced
			d.progress = SyncProgress{TablesSynced: tablesSynced, TotalTables: totalTables, Complete: true}
			return nil
		}
	}
}

func (d *Driver) fail(err error) error {
	d.state = Error
	d.errMsg = err.Error()
	d.progress = SyncProgress{Error: d.errMsg, Complete: true}
	return err
}

// ErrMessage returns the message surfaced by the last Error transition.
func (d *Driver) ErrMessage() string { return d.errMsg }

// foldStoreIntoCursor computes the max updatedAt per table currently held
// in the in-memory store and merges it into the cursor's
// lastSeenUpdatedAt, taking the larger of the two, so catchup resumes from
// what bootstrap already loaded rather than re-fetching it.
func foldStoreIntoCursor(cursor persist.Cursor, view StoreView) persist.Cursor {
	out := make(persist.Cursor, len(cursor))
	for k, v := range cursor {
		out[k] = v
	}

	for _, table := range view.Tables() {
		var max float64
		found := false
		for _, row := range view.Rows(table) {
			ts, ok := value.RowUpdatedAt(row)
			if !ok {
				continue
			}
			if !found || ts > max {
				max = ts
				found = true
			}
		}
		if !found {
			continue
		}
		entry := out[table]
		if entry.LastSeenUpdatedAt == nil || max > *entry.LastSeenUpdatedAt {
			entry.LastSeenUpdatedAt = &max
		}
		out[table] = entry
	}
	return out
}

// ErrTransport wraps a transport-level failure so callers can distinguish
// it from a decode or application error.
var ErrTransport = errors.New("catchup: transport error")
