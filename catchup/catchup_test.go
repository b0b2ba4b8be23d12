package catchup

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-mizu/ldb/internal/backoff"
	"github.com/go-mizu/ldb/persist"
	"github.com/go-mizu/ldb/value"
)

type fakeRowStore struct {
	cursor persist.Cursor
}

func (f *fakeRowStore) GetAllTables(ctx context.Context) (map[string][]persist.Row, error) {
	return nil, nil
}
func (f *fakeRowStore) PutRows(ctx context.Context, table string, rows []persist.Row) error {
	return nil
}
func (f *fakeRowStore) GetCursor(ctx context.Context) (persist.Cursor, error) {
	if f.cursor == nil {
		return persist.Cursor{}, nil
	}
	return f.cursor, nil
}
func (f *fakeRowStore) PutCursor(ctx context.Context, c persist.Cursor) error {
	f.cursor = c
	return nil
}
func (f *fakeRowStore) Reset(ctx context.Context) error { return nil }

type fakeSink struct {
	applied map[string][]value.Row
}

func newFakeSink() *fakeSink { return &fakeSink{applied: make(map[string][]value.Row)} }

func (s *fakeSink) ApplyCatchupPage(ctx context.Context, table string, rows []value.Row) error {
	s.applied[table] = append(s.applied[table], rows...)
	return nil
}

type fakeTransport struct {
	pages []Page
	calls int
	err   error
}

func (f *fakeTransport) Fetch(ctx context.Context, baseURL string, cursor persist.Cursor) (Page, error) {
	if f.err != nil {
		return Page{}, f.err
	}
	p := f.pages[f.calls]
	f.calls++
	return p, nil
}

func TestDriverRunsToSyncedAcrossPages(t *testing.T) {
	transport := &fakeTransport{pages: []Page{
		{Tables: map[string]TablePage{"user": {Rows: []value.Row{{"id": value.NewInt(1)}}}}, HasMore: true},
		{Tables: map[string]TablePage{"user": {Rows: []value.Row{{"id": value.NewInt(2)}}}}, HasMore: false},
	}}
	rs := &fakeRowStore{}
	sink := newFakeSink()

	d := New(transport, rs, sink, "http://example.invalid")
	if err := d.Run(context.Background(), nil); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if d.State() != Synced {
		t.Fatalf("expected Synced, got %v", d.State())
	}
	if len(sink.applied["user"]) != 2 {
		t.Fatalf("expected both pages applied, got %v", sink.applied["user"])
	}
	if transport.calls != 2 {
		t.Fatalf("expected 2 fetches, got %d", transport.calls)
	}
}

func TestDriverPersistsCursorAfterEachPage(t *testing.T) {
	ts := 50.0
	transport := &fakeTransport{pages: []Page{
		{Tables: map[string]TablePage{"user": {Rows: nil, PermissionHash: "h1", LastSeenUpdatedAt: &ts}}, HasMore: false},
	}}
	rs := &fakeRowStore{}
	sink := newFakeSink()

	d := New(transport, rs, sink, "http://example.invalid")
	if err := d.Run(context.Background(), nil); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rs.cursor["user"].PermissionHash != "h1" {
		t.Fatalf("expected cursor to be persisted, got %+v", rs.cursor)
	}
}

func TestDriverEntersErrorAfterTransportFailures(t *testing.T) {
	transport := &fakeTransport{err: errors.New("boom")}
	rs := &fakeRowStore{}
	sink := newFakeSink()

	d := New(transport, rs, sink, "http://example.invalid",
		WithBackoff(backoff.New(backoff.WithInitial(time.Millisecond), backoff.WithMax(2*time.Millisecond), backoff.WithMaxRetries(2))))

	err := d.Run(context.Background(), nil)
	if err == nil {
		t.Fatalf("expected an error after exhausting retries")
	}
	if d.State() != Error {
		t.Fatalf("expected Error state, got %v", d.State())
	}
	if d.ErrMessage() == "" {
		t.Fatalf("expected a non-empty error message")
	}
}

type fakeStoreView struct {
	rows map[string][]value.Row
}

func (f fakeStoreView) Tables() []string {
	out := make([]string, 0, len(f.rows))
	for t := range f.rows {
		out = append(out, t)
	}
	return out
}
func (f fakeStoreView) Rows(table string) []value.Row { return f.rows[table] }

func TestDriverFoldsStoreMaxUpdatedAtIntoCursor(t *testing.T) {
	view := fakeStoreView{rows: map[string][]value.Row{
		"user": {
			{"id": value.NewInt(1), "updatedAt": value.NewInt(10)},
			{"id": value.NewInt(2), "updatedAt": value.NewInt(99)},
		},
	}}

	transport := &fakeTransport{pages: []Page{
		{Tables: map[string]TablePage{"user": {PermissionHash: "h1"}}, HasMore: false},
	}}
	rs := &fakeRowStore{}
	sink := newFakeSink()

	d := New(transport, rs, sink, "http://example.invalid")
	if err := d.Run(context.Background(), view); err != nil {
		t.Fatalf("Run: %v", err)
	}

	cursor, err := rs.GetCursor(context.Background())
	if err != nil {
		t.Fatalf("GetCursor: %v", err)
	}
	entry := cursor["user"]
	if entry.LastSeenUpdatedAt == nil || *entry.LastSeenUpdatedAt != 99 {
		t.Fatalf("expected folded lastSeenUpdatedAt 99, got %+v", entry)
	}
}
