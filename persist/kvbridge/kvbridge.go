// Package kvbridge adapts an arbitrary embedded key-value store to
// persist.RowStore, so the durable backing store is swappable behind one
// small interface.
package kvbridge

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-mizu/ldb/persist"
	"github.com/go-mizu/ldb/value"
)

// cursorBucket is the reserved table name the bridge uses to store the
// catchup cursor, keyed under cursorKey.
const (
	cursorBucket = "__cursor__"
	cursorKey    = "cursor"
)

// Store is a minimal embedded key-value store: named buckets of
// byte-keyed, byte-valued entries, with bucket-scoped iteration. Any
// backend that can implement this (bbolt, badger, a pure in-memory map for
// tests) can back persist.RowStore through Bridge.
type Store interface {
	// Open prepares bucket for use, creating it if necessary.
	Open(ctx context.Context, bucket string) error

	// Get returns the value stored at (bucket, key), or ok=false if absent.
	Get(ctx context.Context, bucket, key string) (val []byte, ok bool, err error)

	// Put stores val at (bucket, key), overwriting any existing value.
	Put(ctx context.Context, bucket, key string, val []byte) error

	// Delete removes (bucket, key), if present.
	Delete(ctx context.Context, bucket, key string) error

	// Scan calls fn for every (key, value) pair in bucket. Iteration order
	// is backend-defined; Bridge does not depend on it.
	Scan(ctx context.Context, bucket string, fn func(key string, val []byte) error) error

	// Buckets lists every bucket name currently open, used at bootstrap to
	// discover which tables have persisted data.
	Buckets(ctx context.Context) ([]string, error)

	// Reset discards every bucket and its contents.
	Reset(ctx context.Context) error
}

// Bridge adapts a Store into a persist.RowStore. Rows are JSON-encoded
// through value's codec so Int/Float and nested structure round-trip
// exactly; keys are the row's stringified id.
type Bridge struct {
	kv Store
}

// New wraps kv as a persist.RowStore.
func New(kv Store) *Bridge {
	return &Bridge{kv: kv}
}

var _ persist.RowStore = (*Bridge)(nil)

func (b *Bridge) GetAllTables(ctx context.Context) (map[string][]persist.Row, error) {
	buckets, err := b.kv.Buckets(ctx)
	if err != nil {
		return nil, fmt.Errorf("kvbridge: list buckets: %w", err)
	}

	out := make(map[string][]persist.Row)
	for _, bucket := range buckets {
		if bucket == cursorBucket {
			continue
		}
		var rows []persist.Row
		scanErr := b.kv.Scan(ctx, bucket, func(key string, val []byte) error {
			row, err := value.DecodeRow(val)
			if err != nil {
				return fmt.Errorf("kvbridge: decode row %s/%s: %w", bucket, key, err)
			}
			rows = append(rows, row)
			return nil
		})
		if scanErr != nil {
			return nil, scanErr
		}
		if len(rows) > 0 {
			out[bucket] = rows
		}
	}
	return out, nil
}

// PutRows upserts rows into table, applying last-writer-wins against
// whatever is already persisted. All rows are staged before any write
// lands; once writes begin, PutRows attempts every row and returns the
// last error encountered.
func (b *Bridge) PutRows(ctx context.Context, table string, rows []persist.Row) error {
	if err := b.kv.Open(ctx, table); err != nil {
		return fmt.Errorf("kvbridge: open bucket %s: %w", table, err)
	}

	type staged struct {
		id  string
		row persist.Row
	}
	var toWrite []staged
	for _, row := range rows {
		id, ok := value.RowIDString(row)
		if !ok {
			continue
		}

		existing, hadExisting, err := b.getRow(ctx, table, id)
		if err != nil {
			return err
		}
		if !value.ShouldApplyLWW(existing, hadExisting, row) {
			continue
		}
		toWrite = append(toWrite, staged{id: id, row: row})
	}

	var lastErr error
	for _, s := range toWrite {
		enc, err := value.EncodeRow(s.row)
		if err != nil {
			lastErr = fmt.Errorf("kvbridge: encode row %s/%s: %w", table, s.id, err)
			continue
		}
		if err := b.kv.Put(ctx, table, s.id, enc); err != nil {
			lastErr = fmt.Errorf("kvbridge: put row %s/%s: %w", table, s.id, err)
		}
	}
	return lastErr
}

func (b *Bridge) getRow(ctx context.Context, table, id string) (persist.Row, bool, error) {
	raw, ok, err := b.kv.Get(ctx, table, id)
	if err != nil {
		return nil, false, fmt.Errorf("kvbridge: get row %s/%s: %w", table, id, err)
	}
	if !ok {
		return nil, false, nil
	}
	row, err := value.DecodeRow(raw)
	if err != nil {
		return nil, false, fmt.Errorf("kvbridge: decode row %s/%s: %w", table, id, err)
	}
	return row, true, nil
}

func (b *Bridge) GetCursor(ctx context.Context) (persist.Cursor, error) {
	if err := b.kv.Open(ctx, cursorBucket); err != nil {
		return nil, fmt.Errorf("kvbridge: open cursor bucket: %w", err)
	}
	raw, ok, err := b.kv.Get(ctx, cursorBucket, cursorKey)
	if err != nil {
		return nil, fmt.Errorf("kvbridge: get cursor: %w", err)
	}
	if !ok {
		return persist.Cursor{}, nil
	}
	var cursor persist.Cursor
	if err := json.Unmarshal(raw, &cursor); err != nil {
		return nil, fmt.Errorf("kvbridge: decode cursor: %w", err)
	}
	return cursor, nil
}

func (b *Bridge) PutCursor(ctx context.Context, cursor persist.Cursor) error {
	if err := b.kv.Open(ctx, cursorBucket); err != nil {
		return fmt.Errorf("kvbridge: open cursor bucket: %w", err)
	}
	raw, err := json.Marshal(cursor)
	if err != nil {
		return fmt.Errorf("kvbridge: encode cursor: %w", err)
	}
	return b.kv.Put(ctx, cursorBucket, cursorKey, raw)
}

func (b *Bridge) Reset(ctx context.Context) error {
	return b.kv.Reset(ctx)
}
