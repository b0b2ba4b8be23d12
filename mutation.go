package ldb

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/go-mizu/ldb/value"
)

// SendMutation POSTs input as JSON to {baseURL}/{mutationId} with the
// given headers and delivers the decoded response (or a structured
// transport error) through the `mutationResult` outbound port. An empty
// mutationID gets a generated ULID so the result correlation id is never
// empty. Mutations are never applied optimistically; their effects arrive
// later through the ordinary delta path.
func (c *Controller) SendMutation(ctx context.Context, mutationID, baseURL string, input any, headers map[string]string) {
	if mutationID == "" {
		mutationID = NewMutationID()
	}
	result := c.doMutation(ctx, mutationID, baseURL, input, headers)
	c.mu.Lock()
	c.emitter.EmitMutationResult(mutationID, result)
	c.mu.Unlock()
}

func (c *Controller) doMutation(ctx context.Context, mutationID, baseURL string, input any, headers map[string]string) MutationResult {
	body, err := json.Marshal(input)
	if err != nil {
		return MutationResult{Ok: false, Error: fmt.Sprintf("ldb: encode mutation input: %v", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/"+mutationID, bytes.NewReader(body))
	if err != nil {
		return MutationResult{Ok: false, Error: fmt.Sprintf("ldb: build mutation request: %v", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return MutationResult{Ok: false, Error: fmt.Sprintf("ldb: mutation transport: %v", err)}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return MutationResult{Ok: false, Error: fmt.Sprintf("ldb: read mutation response: %v", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return MutationResult{Ok: false, Error: fmt.Sprintf("ldb: mutation %s failed: status %d: %s", mutationID, resp.StatusCode, respBody)}
	}

	if len(respBody) == 0 {
		return MutationResult{Ok: true, Value: value.NewNull()}
	}
	v, err := value.Decode(respBody)
	if err != nil {
		return MutationResult{Ok: false, Error: fmt.Sprintf("ldb: decode mutation response: %v", err)}
	}
	return MutationResult{Ok: true, Value: v}
}
