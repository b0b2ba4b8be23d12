package store

import "github.com/go-mizu/ldb/value"

// TableGroup is one table's slice of an inbound Delta: a positionally
// aligned header/row pair, with "id" always at position 0.
type TableGroup struct {
	TableName string
	Headers   []string
	Rows      [][]value.Value
}

// Delta is a server-authored change description, addressed to all clients.
type Delta struct {
	TableGroups []TableGroup
}

// ChangedIDs returns, for a given table, the set of row ids present in the
// delta's matching TableGroup (position 0 of each row), or nil if the delta
// has no group for that table.
func (d Delta) ChangedIDs(table string) []string {
	for _, g := range d.TableGroups {
		if g.TableName != table {
			continue
		}
		out := make([]string, 0, len(g.Rows))
		for _, row := range g.Rows {
			if len(row) == 0 {
				continue
			}
			if s, ok := value.IDString(row[0]); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// toRows renders a TableGroup's positional rows into field->Value Rows.
func (g TableGroup) toRows() []value.Row {
	out := make([]value.Row, 0, len(g.Rows))
	for _, cols := range g.Rows {
		row := make(value.Row, len(g.Headers))
		for i, h := range g.Headers {
			if i < len(cols) {
				row[h] = cols[i]
			}
		}
		out = append(out, row)
	}
	return out
}

// ApplyResult summarizes what ApplyDelta did, for callers (reactivity,
// tests) that need the before/after state of touched rows.
type ApplyResult struct {
	// Touched maps table -> rowID -> {old, new, applied}. applied is false
	// when the incoming row lost an LWW comparison and was dropped.
	Touched map[string]map[string]RowChange
}

// RowChange records the before/after state of one ingested row.
type RowChange struct {
	Old     value.Row
	HadOld  bool
	New     value.Row
	Applied bool
}

// ApplyDelta ingests every row in d into db, honoring LWW on updatedAt:
// a row older than the stored row is dropped; a row with no updatedAt
// against a stored row that has one keeps the stored row; otherwise the
// incoming row wins. Index maintenance happens only for rows that are
// actually applied.
func (db *Database) ApplyDelta(d Delta) ApplyResult {
	result := ApplyResult{Touched: make(map[string]map[string]RowChange)}

	for _, g := range d.TableGroups {
		rows := g.toRows()
		byID := make(map[string]RowChange, len(rows))

		for _, row := range rows {
			id, ok := value.RowIDString(row)
			if !ok {
				continue // rows lacking an id are rejected at ingress
			}

			db.mu.RLock()
			prior, hadPrior := db.tables[g.TableName][id]
			db.mu.RUnlock()

			if value.ShouldApplyLWW(prior, hadPrior, row) {
				db.Ingest(g.TableName, row)
				byID[id] = RowChange{Old: prior, HadOld: hadPrior, New: row, Applied: true}
			} else {
				byID[id] = RowChange{Old: prior, HadOld: hadPrior, New: row, Applied: false}
			}
		}

		if len(byID) > 0 {
			result.Touched[g.TableName] = byID
		}
	}

	return result
}
