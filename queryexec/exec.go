// Package queryexec executes parsed queries against the in-memory store:
// filter, sort, limit, project, and resolve nested relations via FK
// indices.
package queryexec

import (
	"sort"

	"github.com/go-mizu/ldb/queryast"
	"github.com/go-mizu/ldb/schema"
	"github.com/go-mizu/ldb/store"
	"github.com/go-mizu/ldb/value"
)

// Result is the output of executing a Query: one row slice per top-level
// query field, plus the set of base-row ids visited at any projection depth.
type Result struct {
	Results map[string][]value.Row
	RowIDs  map[string]map[string]bool // table -> id(string) -> true
}

func newResult() Result {
	return Result{
		Results: make(map[string][]value.Row),
		RowIDs:  make(map[string]map[string]bool),
	}
}

func (r Result) recordID(table string, row value.Row) {
	id, ok := value.RowIDString(row)
	if !ok {
		return
	}
	if _, ok := r.RowIDs[table]; !ok {
		r.RowIDs[table] = make(map[string]bool)
	}
	r.RowIDs[table][id] = true
}

// Execute runs q against db using meta for relation/table resolution.
func Execute(meta schema.Metadata, db *store.Database, q queryast.Query) Result {
	result := newResult()

	for queryField, fq := range q {
		table, ok := meta.TableFor(queryField)
		if !ok {
			continue
		}
		// Mark the table as visited even if zero rows survive the query,
		// so the re-execution decision can tell "ran and found nothing"
		// apart from "never ran".
		if _, ok := result.RowIDs[table]; !ok {
			result.RowIDs[table] = make(map[string]bool)
		}
		rows := executeField(meta, db, table, fq, result)
		result.Results[queryField] = rows
	}

	return result
}

func executeField(meta schema.Metadata, db *store.Database, table string, fq *queryast.FieldQuery, result Result) []value.Row {
	rows := db.Rows(table)

	if fq.Where != nil {
		filtered := rows[:0:0]
		for _, r := range rows {
			if evaluate(*fq.Where, r) {
				filtered = append(filtered, r)
			}
		}
		rows = filtered
	}

	if len(fq.Sort) > 0 {
		rows = stableSort(rows, fq.Sort)
	}

	if fq.Limit != nil {
		n := *fq.Limit
		if n < 0 {
			n = 0
		}
		if n < len(rows) {
			rows = rows[:n]
		}
	}

	out := make([]value.Row, len(rows))
	for i, r := range rows {
		out[i] = project(meta, db, table, r, fq.Selections, result)
	}
	return out
}

// Evaluate reports whether row satisfies w. It exists for callers outside
// this package: the reactive registry evaluates WHERE against a single
// delta-derived row without running a full query.
func Evaluate(w queryast.WhereClause, row value.Row) bool {
	return evaluate(w, row)
}

// evaluate requires every key of w to hold: $and requires all sub-clauses,
// $or requires any, and a plain field key applies its filter to the row's
// value (missing fields read as Null).
func evaluate(w queryast.WhereClause, row value.Row) bool {
	for field, fv := range w {
		if field == queryast.KeyAnd {
			for _, sub := range fv.Clauses {
				if !evaluate(sub, row) {
					return false
				}
			}
			continue
		}
		if field == queryast.KeyOr {
			any := false
			for _, sub := range fv.Clauses {
				if evaluate(sub, row) {
					any = true
					break
				}
			}
			if !any {
				return false
			}
			continue
		}
		if !evaluateField(fv, row[field]) {
			return false
		}
	}
	return true
}

func evaluateField(fv queryast.FilterValue, rowVal value.Value) bool {
	switch fv.Kind {
	case queryast.FilterNull:
		return rowVal.IsNull()
	case queryast.FilterSimple:
		return value.Equal(fv.Simple, rowVal)
	case queryast.FilterOperators:
		for op, operand := range fv.Operators {
			if !evaluateOperator(op, operand.Simple, rowVal) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

func evaluateOperator(op string, operand, rowVal value.Value) bool {
	cmp := value.Compare(rowVal, operand)
	switch op {
	case queryast.OpEq:
		return value.Equal(rowVal, operand)
	case queryast.OpNe:
		return !value.Equal(rowVal, operand)
	case queryast.OpGt:
		return cmp > 0
	case queryast.OpGte:
		return cmp >= 0
	case queryast.OpLt:
		return cmp < 0
	case queryast.OpLte:
		return cmp <= 0
	default:
		return false // unsupported operators evaluate to false
	}
}

// stableSort is a stable multi-key sort: Desc negates comparison, and
// unknown/missing fields compare as Null-vs-Null (0), so ties keep their
// prior relative order.
func stableSort(rows []value.Row, clauses []queryast.SortClause) []value.Row {
	out := make([]value.Row, len(rows))
	copy(out, rows)

	sort.SliceStable(out, func(i, j int) bool {
		for _, c := range clauses {
			a := out[i][c.Field]
			b := out[j][c.Field]
			cmp := value.Compare(a, b)
			if c.Direction == queryast.Desc {
				cmp = -cmp
			}
			if cmp != 0 {
				return cmp < 0
			}
		}
		return false
	})
	return out
}

// project walks selections, copying plain fields and resolving nested
// relations via the store's FK indices.
func project(meta schema.Metadata, db *store.Database, table string, row value.Row, selections map[string]queryast.Selection, result Result) value.Row {
	result.recordID(table, row)

	if len(selections) == 0 {
		return value.CloneRow(row)
	}

	out := make(value.Row, len(selections))
	for field, sel := range selections {
		if sel.Nested == nil {
			if v, ok := row[field]; ok {
				out[field] = v
			}
			continue
		}

		rel, ok := meta.Relationship(table, field)
		if !ok {
			out[field] = value.NewNull()
			continue
		}
		out[field] = resolveRelation(meta, db, rel, row, sel.Nested, result)
	}
	return out
}

func resolveRelation(meta schema.Metadata, db *store.Database, rel schema.Relationship, parent value.Row, fq *queryast.FieldQuery, result Result) value.Value {
	switch rel.Kind {
	case schema.OneToMany:
		parentID, ok := value.RowIDString(parent)
		if !ok {
			return value.NewNull()
		}
		children := db.LookupByFK(rel.RelatedTable, rel.ToField, parentID)
		children = applyFieldQueryToRows(children, fq)
		out := make([]value.Value, len(children))
		for i, c := range children {
			projected := project(meta, db, rel.RelatedTable, c, fq.Selections, result)
			out[i] = value.NewObject(map[string]value.Value(projected))
		}
		return value.NewArray(out)

	case schema.ManyToOne, schema.OneToOne:
		fkVal, ok := parent[rel.FromField]
		if !ok {
			return value.NewNull()
		}
		fkID, ok := value.IDString(fkVal)
		if !ok {
			return value.NewNull()
		}
		related, ok := db.GetByID(rel.RelatedTable, fkID)
		if !ok {
			return value.NewNull()
		}
		projected := project(meta, db, rel.RelatedTable, related, fq.Selections, result)
		return value.NewObject(map[string]value.Value(projected))

	default:
		return value.NewNull()
	}
}

// applyFieldQueryToRows applies where/sort/limit to an already-resolved
// child row set, mirroring the top-level executeField pipeline for nested
// one-to-many relations.
func applyFieldQueryToRows(rows []value.Row, fq *queryast.FieldQuery) []value.Row {
	if fq.Where != nil {
		filtered := rows[:0:0]
		for _, r := range rows {
			if evaluate(*fq.Where, r) {
				filtered = append(filtered, r)
			}
		}
		rows = filtered
	}
	if len(fq.Sort) > 0 {
		rows = stableSort(rows, fq.Sort)
	}
	if fq.Limit != nil {
		n := *fq.Limit
		if n < 0 {
			n = 0
		}
		if n < len(rows) {
			rows = rows[:n]
		}
	}
	return rows
}
