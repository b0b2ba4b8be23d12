// Package store implements the in-memory relational store with
// foreign-key-backed secondary indices that every live query reads from.
package store

import (
	"sync"

	"github.com/go-mizu/ldb/schema"
	"github.com/go-mizu/ldb/value"
)

// Table is an id(string) -> Row map.
type Table map[string]value.Row

// FKIndex maps a derived index key to the ordered set of row ids carrying
// that value in one (table, column) pair.
type FKIndex struct {
	// buckets maps indexKey -> rowId -> insertion order, so iteration stays
	// stable without needing a second ordered structure.
	buckets map[string]*idSet
}

func newFKIndex() *FKIndex {
	return &FKIndex{buckets: make(map[string]*idSet)}
}

// idSet is an insertion-ordered set of row ids.
type idSet struct {
	order []string
	at    map[string]int
}

func newIDSet() *idSet {
	return &idSet{at: make(map[string]int)}
}

func (s *idSet) add(id string) {
	if _, ok := s.at[id]; ok {
		return
	}
	s.at[id] = len(s.order)
	s.order = append(s.order, id)
}

func (s *idSet) remove(id string) {
	i, ok := s.at[id]
	if !ok {
		return
	}
	s.order = append(s.order[:i], s.order[i+1:]...)
	delete(s.at, id)
	for j := i; j < len(s.order); j++ {
		s.at[s.order[j]] = j
	}
}

func (s *idSet) empty() bool { return len(s.order) == 0 }

// Ids returns the row ids for key, in insertion order, or nil if absent.
func (idx *FKIndex) Ids(key string) []string {
	b, ok := idx.buckets[key]
	if !ok {
		return nil
	}
	out := make([]string, len(b.order))
	copy(out, b.order)
	return out
}

func (idx *FKIndex) add(key, id string) {
	b, ok := idx.buckets[key]
	if !ok {
		b = newIDSet()
		idx.buckets[key] = b
	}
	b.add(id)
}

func (idx *FKIndex) remove(key, id string) {
	b, ok := idx.buckets[key]
	if !ok {
		return
	}
	b.remove(id)
	if b.empty() {
		delete(idx.buckets, key)
	}
}

type indexKey struct {
	table  string
	column string
}

// Database is the full in-memory relational store: tables plus the FK
// indices declared by the schema.
type Database struct {
	mu      sync.RWMutex
	schema  schema.Metadata
	tables  map[string]Table
	indices map[indexKey]*FKIndex
}

// New builds an empty Database for the given schema, with FK indices
// pre-created (but empty) for every indexed (table, column) pair.
func New(meta schema.Metadata) *Database {
	db := &Database{
		schema:  meta,
		tables:  make(map[string]Table),
		indices: make(map[indexKey]*FKIndex),
	}
	for table, cols := range meta.IndexedColumns() {
		for col := range cols {
			db.indices[indexKey{table, col}] = newFKIndex()
		}
	}
	return db
}

// Schema returns the database's schema metadata.
func (db *Database) Schema() schema.Metadata { return db.schema }

// HasIndex reports whether (table, column) has a maintained FK index.
func (db *Database) HasIndex(table, column string) bool {
	db.mu.RLock()
	defer db.mu.RUnlock()
	_, ok := db.indices[indexKey{table, column}]
	return ok
}

// GetByID returns the row with the given id in table, or nil if absent.
func (db *Database) GetByID(table, id string) (value.Row, bool) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	t, ok := db.tables[table]
	if !ok {
		return nil, false
	}
	r, ok := t[id]
	return r, ok
}

// Tables returns the names of every table currently holding at least one
// row.
func (db *Database) Tables() []string {
	db.mu.RLock()
	defer db.mu.RUnlock()
	out := make([]string, 0, len(db.tables))
	for name := range db.tables {
		out = append(out, name)
	}
	return out
}

// Rows returns a snapshot slice of every row in table, in map iteration
// order (unspecified but stable within a single call).
func (db *Database) Rows(table string) []value.Row {
	db.mu.RLock()
	defer db.mu.RUnlock()
	t := db.tables[table]
	out := make([]value.Row, 0, len(t))
	for _, r := range t {
		out = append(out, r)
	}
	return out
}

// LookupByFK returns rows from table whose column holds the FK value
// matching key. It uses an index when one exists; otherwise it falls back to
// a linear scan, which must return the identical result set.
func (db *Database) LookupByFK(table, column, key string) []value.Row {
	db.mu.RLock()
	defer db.mu.RUnlock()

	t := db.tables[table]
	if idx, ok := db.indices[indexKey{table, column}]; ok {
		ids := idx.Ids(key)
		out := make([]value.Row, 0, len(ids))
		for _, id := range ids {
			if r, ok := t[id]; ok {
				out = append(out, r)
			}
		}
		return out
	}

	var out []value.Row
	for _, r := range t {
		if k, ok := value.IndexKeyOf(r[column]); ok && k == key {
			out = append(out, r)
		}
	}
	return out
}

// indexUpdate is the minimal index change to apply for one ingested row.
type indexUpdate struct {
	table, column, oldKey, newKey, rowID string
	oldOK, newOK                         bool
}

// Ingest applies an upsert of row into table, maintaining FK indices
// incrementally, and returns the prior row (if any) for the caller's own
// LWW decision. It does not itself apply LWW; callers decide whether to
// call Ingest at all.
func (db *Database) Ingest(table string, row value.Row) (prior value.Row, hadPrior bool) {
	id, ok := value.RowIDString(row)
	if !ok {
		return nil, false
	}

	db.mu.Lock()
	defer db.mu.Unlock()

	t, ok := db.tables[table]
	if !ok {
		t = make(Table)
		db.tables[table] = t
	}
	prior, hadPrior = t[id]

	updates := db.computeIndexUpdates(table, id, prior, hadPrior, row)
	t[id] = row
	db.applyIndexUpdates(updates)

	return prior, hadPrior
}

func (db *Database) computeIndexUpdates(table, id string, prior value.Row, hadPrior bool, next value.Row) []indexUpdate {
	var updates []indexUpdate
	for key := range db.indices {
		if key.table != table {
			continue
		}

		var oldKey string
		var oldOK bool
		if hadPrior {
			oldKey, oldOK = value.IndexKeyOf(prior[key.column])
		}
		newKey, newOK := value.IndexKeyOf(next[key.column])

		if oldOK == newOK && oldKey == newKey {
			continue
		}
		updates = append(updates, indexUpdate{
			table: table, column: key.column,
			oldKey: oldKey, oldOK: oldOK,
			newKey: newKey, newOK: newOK,
			rowID: id,
		})
	}
	return updates
}

func (db *Database) applyIndexUpdates(updates []indexUpdate) {
	for _, u := range updates {
		idx := db.indices[indexKey{u.table, u.column}]
		if u.oldOK {
			idx.remove(u.oldKey, u.rowID)
		}
		if u.newOK {
			idx.add(u.newKey, u.rowID)
		}
	}
}
