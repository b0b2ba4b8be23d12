package ldb

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/go-mizu/ldb/catchup"
	"github.com/go-mizu/ldb/livestream"
	"github.com/go-mizu/ldb/store"
	"github.com/go-mizu/ldb/value"
)

// catchupSink adapts Controller to catchup.Sink: each applied page's rows
// are folded into a synthetic single-table Delta and pushed through the
// normal ingestion path.
type catchupSink struct{ c *Controller }

var (
	_ catchup.Sink       = catchupSink{}
	_ livestream.Handler = liveHandler{}
)

func (s catchupSink) ApplyCatchupPage(ctx context.Context, table string, rows []value.Row) error {
	if len(rows) == 0 {
		return nil
	}

	headers := value.SortedKeys(map[string]value.Value(rows[0]))
	// "id" must sit at position 0.
	headers = moveToFront(headers, "id")

	tg := store.TableGroup{TableName: table, Headers: headers, Rows: make([][]value.Value, 0, len(rows))}
	for _, row := range rows {
		cols := make([]value.Value, len(headers))
		for i, h := range headers {
			cols[i] = row[h]
		}
		tg.Rows = append(tg.Rows, cols)
	}

	s.c.mu.Lock()
	defer s.c.mu.Unlock()
	s.c.applyDelta(ctx, store.Delta{TableGroups: []store.TableGroup{tg}})
	return nil
}

func moveToFront(headers []string, field string) []string {
	out := make([]string, 0, len(headers))
	out = append(out, field)
	for _, h := range headers {
		if h != field {
			out = append(out, h)
		}
	}
	return out
}

// liveHandler adapts Controller to livestream.Handler.
type liveHandler struct{ c *Controller }

func (h liveHandler) OnConnected(sessionID string) {
	h.c.log.Info("ldb: live stream connected", "sessionId", sessionID)
}

func (h liveHandler) OnDelta(payload json.RawMessage) {
	var env struct {
		Data json.RawMessage `json:"data"`
	}
	err := json.Unmarshal(payload, &env)
	var d store.Delta
	if err == nil {
		d, err = decodeDelta(env.Data)
	}
	if err != nil {
		h.c.mu.Lock()
		h.c.emitError(ErrorEvent{Kind: DecodeErrorKind, Message: err.Error()})
		h.c.mu.Unlock()
		return
	}
	h.c.mu.Lock()
	defer h.c.mu.Unlock()
	h.c.applyDelta(context.Background(), d)
}

func (h liveHandler) OnSyncProgress(payload json.RawMessage) {
	var wire struct {
		Table        string `json:"table"`
		TablesSynced int    `json:"tablesSynced"`
		TotalTables  int    `json:"totalTables"`
		Complete     bool   `json:"complete"`
		Error        string `json:"error"`
	}
	if err := json.Unmarshal(payload, &wire); err != nil {
		h.c.mu.Lock()
		h.c.emitError(ErrorEvent{Kind: DecodeErrorKind, Message: err.Error()})
		h.c.mu.Unlock()
		return
	}
	h.c.mu.Lock()
	h.c.emitter.EmitSyncProgress(SyncProgressEvent{
		Table:        wire.Table,
		TablesSynced: wire.TablesSynced,
		TotalTables:  wire.TotalTables,
		Complete:     wire.Complete,
		Error:        wire.Error,
	})
	h.c.mu.Unlock()
}

func (h liveHandler) OnSyncComplete() {
	h.c.mu.Lock()
	h.c.emitter.EmitSyncProgress(SyncProgressEvent{Complete: true})
	h.c.mu.Unlock()
}

func (h liveHandler) OnDecodeError(err error) {
	h.c.mu.Lock()
	h.c.emitError(ErrorEvent{Kind: DecodeErrorKind, Message: err.Error()})
	h.c.mu.Unlock()
}

func bytesReader(b []byte) io.Reader { return bytes.NewReader(b) }

func decodeValueArray(raw json.RawMessage) ([]value.Value, error) {
	var rawItems []json.RawMessage
	if err := json.Unmarshal(raw, &rawItems); err != nil {
		return nil, fmt.Errorf("decode row array: %w", err)
	}
	out := make([]value.Value, len(rawItems))
	for i, item := range rawItems {
		v, err := value.Decode(item)
		if err != nil {
			return nil, fmt.Errorf("decode row value at %d: %w", i, err)
		}
		out[i] = v
	}
	return out, nil
}
