package ldb

import (
	"math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// mutationIDEntropy is a single package-level monotonic entropy source,
// guarded by mutationIDMu since ulid.MonotonicReader is not safe for concurrent use.
// Sharing it across calls is what lets ulid.Monotonic guarantee strictly
// increasing ids for calls landing in the same millisecond; a fresh source
// per call would instead produce identical ids for any two such calls.
var (
	mutationIDMu      sync.Mutex
	mutationIDEntropy = ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0)
)

// NewMutationID returns a fresh ULID for callers of SendMutation that do
// not supply their own correlation id. ULIDs are lexicographically sortable
// and collision-resistant without a central allocator.
func NewMutationID() string {
	mutationIDMu.Lock()
	defer mutationIDMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), mutationIDEntropy).String()
}
