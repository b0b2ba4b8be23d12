package ldb

import (
	"github.com/go-mizu/ldb/path"
	"github.com/go-mizu/ldb/value"
)

// ErrorKind discriminates the error categories surfaced on the outbound
// error port.
type ErrorKind int

const (
	DecodeErrorKind ErrorKind = iota
	PathErrorKind
	RevisionOutOfOrderErrorKind
	PersistWriteErrorKind
	CatchupTransportErrorKind
	StreamTransportErrorKind
	MutationTransportErrorKind
)

func (k ErrorKind) String() string {
	switch k {
	case DecodeErrorKind:
		return "decode"
	case PathErrorKind:
		return "path"
	case RevisionOutOfOrderErrorKind:
		return "revision-out-of-order"
	case PersistWriteErrorKind:
		return "persist-write"
	case CatchupTransportErrorKind:
		return "catchup-transport"
	case StreamTransportErrorKind:
		return "stream-transport"
	case MutationTransportErrorKind:
		return "mutation-transport"
	default:
		return "unknown"
	}
}

// ErrorEvent is the outbound `error` port's payload.
type ErrorEvent struct {
	Kind    ErrorKind
	Message string
	QueryID string
	Op      string
	Path    string
	Details string
}

// SyncProgressEvent is the outbound `syncProgress` port's payload.
type SyncProgressEvent struct {
	Table        string
	TablesSynced int
	TotalTables  int
	Complete     bool
	Error        string
}

// MutationResult is delivered through the outbound `mutationResult` port:
// either Ok is true and Value carries the decoded response body, or Ok is
// false and Error carries a structured error message.
type MutationResult struct {
	Ok    bool
	Value value.Value
	Error string
}

// Emitter receives every message the controller produces on its outbound
// ports: full/delta query results, mutation results, sync progress, and
// errors. Implementations must not block for long, since emission happens
// inline with the controller's single-actor processing.
type Emitter interface {
	EmitFull(queryID string, revision int64, result map[string][]value.Row)
	EmitDelta(queryID string, revision int64, ops []path.Op)
	EmitMutationResult(id string, result MutationResult)
	EmitSyncProgress(p SyncProgressEvent)
	EmitError(e ErrorEvent)
}

// NopEmitter discards every outbound message; it is the zero-value default
// so a Controller never needs a nil check before emitting.
type NopEmitter struct{}

func (NopEmitter) EmitFull(string, int64, map[string][]value.Row) {}
func (NopEmitter) EmitDelta(string, int64, []path.Op)             {}
func (NopEmitter) EmitMutationResult(string, MutationResult)      {}
func (NopEmitter) EmitSyncProgress(SyncProgressEvent)             {}
func (NopEmitter) EmitError(ErrorEvent)                           {}

var _ Emitter = NopEmitter{}
