package catchup

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/go-mizu/ldb/persist"
	"github.com/go-mizu/ldb/value"
)

// HTTPTransport is the default Transport: GET {baseURL}{Path} with the
// cursor JSON-encoded into the syncCursor query parameter.
type HTTPTransport struct {
	Client *http.Client
	Path   string
}

// NewHTTPTransport builds an HTTPTransport using http.DefaultClient and the
// conventional /catchup path.
func NewHTTPTransport() *HTTPTransport {
	return &HTTPTransport{Client: http.DefaultClient, Path: "/catchup"}
}

var _ Transport = (*HTTPTransport)(nil)

func (t *HTTPTransport) Fetch(ctx context.Context, baseURL string, cursor persist.Cursor) (Page, error) {
	cursorJSON, err := json.Marshal(cursor)
	if err != nil {
		return Page{}, fmt.Errorf("catchup: encode cursor: %w", err)
	}

	u := baseURL + t.Path + "?syncCursor=" + url.QueryEscape(string(cursorJSON))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return Page{}, fmt.Errorf("catchup: build request: %w", err)
	}

	client := t.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return Page{}, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return Page{}, fmt.Errorf("%w: status %d: %s", ErrTransport, resp.StatusCode, body)
	}

	var wire struct {
		Tables map[string]struct {
			Rows              []json.RawMessage `json:"rows"`
			PermissionHash    string            `json:"permission_hash"`
			LastSeenUpdatedAt *float64          `json:"last_seen_updated_at"`
		} `json:"tables"`
		HasMore bool `json:"has_more"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return Page{}, fmt.Errorf("catchup: decode response: %w", err)
	}

	page := Page{Tables: make(map[string]TablePage, len(wire.Tables)), HasMore: wire.HasMore}
	for name, tp := range wire.Tables {
		rows := make([]value.Row, 0, len(tp.Rows))
		for _, raw := range tp.Rows {
			row, err := value.DecodeRow(raw)
			if err != nil {
				return Page{}, fmt.Errorf("catchup: decode row for %s: %w", name, err)
			}
			rows = append(rows, row)
		}
		page.Tables[name] = TablePage{
			Rows:              rows,
			PermissionHash:    tp.PermissionHash,
			LastSeenUpdatedAt: tp.LastSeenUpdatedAt,
		}
	}
	return page, nil
}
