// Package ldb implements a reactive, permission-aware local database core: a
// normalized in-memory snapshot kept durable in an embedded key-value store,
// synchronized from a remote server through bootstrap, catchup, and a live
// push stream, and exposed to callers through live queries that emit an
// initial result followed by ordered, minimal QueryDelta patches.
package ldb
