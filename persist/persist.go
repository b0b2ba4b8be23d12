// Package persist defines the durable row store contract: per-row upsert
// keyed by (table, id) with last-writer-wins on updatedAt, plus cursor
// persistence for the catchup driver.
package persist

import (
	"context"

	"github.com/go-mizu/ldb/value"
)

// Row is a persisted row: an alias of value.Row so rows pass between the
// in-memory store and durable storage without a lossy re-encode through
// encoding/json's untyped numbers.
type Row = value.Row

// TableCursor is the catchup progress recorded for one table: the newest
// updatedAt value folded from either a catchup page or the in-memory store,
// and the server's opaque permission hash for that table's last page.
type TableCursor struct {
	LastSeenUpdatedAt *float64 `json:"lastSeenUpdatedAt,omitempty"`
	PermissionHash    string   `json:"permissionHash,omitempty"`
}

// Cursor is the full catchup cursor: one TableCursor per table name. The
// core treats PermissionHash as opaque and never interprets it beyond
// equality.
type Cursor map[string]TableCursor

// RowStore is the durable per-row store a Controller bootstraps from and
// writes back to as deltas and catchup pages arrive. Implementations must
// make PutRows atomic per call (all rows land, or none do) and must not
// expose any notion of their own internal write version; callers treat
// storage as a dumb log.
type RowStore interface {
	// GetAllTables loads every persisted row, grouped by table name, used
	// once at bootstrap to populate the in-memory store.
	GetAllTables(ctx context.Context) (map[string][]Row, error)

	// PutRows upserts rows into table keyed by their id field, applying
	// last-writer-wins on updatedAt per row: an incoming row strictly
	// older than the stored row is dropped; a new row is accepted
	// regardless of whether it carries updatedAt.
	PutRows(ctx context.Context, table string, rows []Row) error

	// GetCursor returns the persisted catchup cursor, or an empty Cursor
	// if none has been written yet.
	GetCursor(ctx context.Context) (Cursor, error)

	// PutCursor persists the catchup cursor after each successfully
	// applied catchup page.
	PutCursor(ctx context.Context, cursor Cursor) error

	// Reset discards all persisted rows and the cursor, returning the
	// store to its empty initial state.
	Reset(ctx context.Context) error
}
