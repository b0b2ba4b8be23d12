package kvbridge

import (
	"context"
	"testing"

	"github.com/go-mizu/ldb/persist"
	"github.com/go-mizu/ldb/value"
)

// fakeStore is an in-memory Store used to exercise Bridge without bbolt.
type fakeStore struct {
	buckets map[string]map[string][]byte
}

func newFakeStore() *fakeStore {
	return &fakeStore{buckets: make(map[string]map[string][]byte)}
}

func (f *fakeStore) Open(ctx context.Context, bucket string) error {
	if _, ok := f.buckets[bucket]; !ok {
		f.buckets[bucket] = make(map[string][]byte)
	}
	return nil
}

func (f *fakeStore) Get(ctx context.Context, bucket, key string) ([]byte, bool, error) {
	b, ok := f.buckets[bucket]
	if !ok {
		return nil, false, nil
	}
	v, ok := b[key]
	return v, ok, nil
}

func (f *fakeStore) Put(ctx context.Context, bucket, key string, val []byte) error {
	if _, ok := f.buckets[bucket]; !ok {
		f.buckets[bucket] = make(map[string][]byte)
	}
	f.buckets[bucket][key] = val
	return nil
}

func (f *fakeStore) Delete(ctx context.Context, bucket, key string) error {
	if b, ok := f.buckets[bucket]; ok {
		delete(b, key)
	}
	return nil
}

func (f *fakeStore) Scan(ctx context.Context, bucket string, fn func(key string, val []byte) error) error {
	for k, v := range f.buckets[bucket] {
		if err := fn(k, v); err != nil {
			return err
		}
	}
	return nil
}

func (f *fakeStore) Buckets(ctx context.Context) ([]string, error) {
	out := make([]string, 0, len(f.buckets))
	for b := range f.buckets {
		out = append(out, b)
	}
	return out, nil
}

func (f *fakeStore) Reset(ctx context.Context) error {
	f.buckets = make(map[string]map[string][]byte)
	return nil
}

func TestBridgePutRowsThenGetAllTables(t *testing.T) {
	ctx := context.Background()
	b := New(newFakeStore())

	err := b.PutRows(ctx, "user", []value.Row{
		{"id": value.NewInt(1), "name": value.NewString("Bob")},
		{"id": value.NewInt(2), "name": value.NewString("Alice")},
	})
	if err != nil {
		t.Fatalf("PutRows: %v", err)
	}

	all, err := b.GetAllTables(ctx)
	if err != nil {
		t.Fatalf("GetAllTables: %v", err)
	}
	if len(all["user"]) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(all["user"]))
	}
}

// A persisted write older than the stored row must be dropped.
func TestBridgePutRowsLWWDropsOlder(t *testing.T) {
	ctx := context.Background()
	b := New(newFakeStore())

	must(t, b.PutRows(ctx, "t", []value.Row{{"id": value.NewInt(1), "updatedAt": value.NewInt(100), "name": value.NewString("keep")}}))
	must(t, b.PutRows(ctx, "t", []value.Row{{"id": value.NewInt(1), "updatedAt": value.NewInt(50), "name": value.NewString("drop")}}))

	all, err := b.GetAllTables(ctx)
	if err != nil {
		t.Fatalf("GetAllTables: %v", err)
	}
	if len(all["t"]) != 1 {
		t.Fatalf("expected 1 row, got %d", len(all["t"]))
	}
	name, _ := all["t"][0]["name"].String()
	if name != "keep" {
		t.Fatalf("expected LWW to retain %q, got %q", "keep", name)
	}
}

func TestBridgeCursorRoundTrip(t *testing.T) {
	ctx := context.Background()
	b := New(newFakeStore())

	ts := 7.0
	in := persist.Cursor{"user": persist.TableCursor{LastSeenUpdatedAt: &ts, PermissionHash: "abc"}}
	must(t, b.PutCursor(ctx, in))

	out, err := b.GetCursor(ctx)
	if err != nil {
		t.Fatalf("GetCursor: %v", err)
	}
	if out["user"].PermissionHash != "abc" {
		t.Fatalf("unexpected cursor: %+v", out)
	}
}

func TestBridgeResetClearsEverything(t *testing.T) {
	ctx := context.Background()
	b := New(newFakeStore())

	ts := 1.0
	must(t, b.PutRows(ctx, "t", []value.Row{{"id": value.NewInt(1)}}))
	must(t, b.PutCursor(ctx, persist.Cursor{"t": persist.TableCursor{LastSeenUpdatedAt: &ts, PermissionHash: "x"}}))
	must(t, b.Reset(ctx))

	all, _ := b.GetAllTables(ctx)
	if len(all) != 0 {
		t.Fatalf("expected empty store after reset, got %v", all)
	}
	cursor, _ := b.GetCursor(ctx)
	if len(cursor) != 0 {
		t.Fatalf("expected empty cursor after reset, got %v", cursor)
	}
}

func must(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
