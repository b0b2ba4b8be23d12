package reactive

import (
	"github.com/go-mizu/ldb/queryast"
	"github.com/go-mizu/ldb/queryexec"
	"github.com/go-mizu/ldb/schema"
	"github.com/go-mizu/ldb/store"
	"github.com/go-mizu/ldb/value"
)

// Decision is the outcome of the re-execution rule for one subscription
// against one applied delta.
type Decision int

const (
	NoReExecute Decision = iota
	ReExecuteFull
)

// decide runs the re-execution rule across every table sub's query reads:
// each top-level field's table plus the tables reached through its nested
// relation selections. The subscription re-executes if any table's
// analysis calls for it.
func decide(meta schema.Metadata, sub *Subscription, applied store.ApplyResult) Decision {
	for field, fq := range sub.Query {
		table, ok := meta.TableFor(field)
		if !ok {
			continue
		}
		if decideTree(meta, sub, applied, table, fq) == ReExecuteFull {
			return ReExecuteFull
		}
	}
	return NoReExecute
}

// decideTree analyzes fq against its own table, then recurses into nested
// relation selections so a delta touching only a child table still
// re-executes the parent query. Recursion is bounded by the query tree,
// never the (possibly cyclic) relation graph.
func decideTree(meta schema.Metadata, sub *Subscription, applied store.ApplyResult, table string, fq *queryast.FieldQuery) Decision {
	if touched, ok := applied.Touched[table]; ok && len(touched) > 0 {
		tracked, hasTracked := sub.ResultRowIDs[table]
		if decideField(fq, touched, tracked, hasTracked) == ReExecuteFull {
			return ReExecuteFull
		}
	}

	for field, sel := range fq.Selections {
		if sel.Nested == nil {
			continue
		}
		rel, ok := meta.Relationship(table, field)
		if !ok {
			continue
		}
		if decideTree(meta, sub, applied, rel.RelatedTable, sel.Nested) == ReExecuteFull {
			return ReExecuteFull
		}
	}
	return NoReExecute
}

// decideField analyzes one table read by one query field, top-level or a
// nested relation reached through decideTree.
// touched is every row the delta changed (or tried to change) in this
// table, keyed by id; tracked is the subscription's previously recorded id
// set for this table.
func decideField(fq *queryast.FieldQuery, touched map[string]store.RowChange, tracked map[string]bool, hasTracked bool) Decision {
	if !hasTracked {
		// First run or unknown state: conservatively re-execute.
		return ReExecuteFull
	}

	var overlapping, fresh []string
	for id := range touched {
		if tracked[id] {
			overlapping = append(overlapping, id)
		} else {
			fresh = append(fresh, id)
		}
	}

	if len(overlapping) > 0 {
		switch {
		case len(fq.Sort) > 0 || fq.Limit != nil:
			// LIMIT or SORT present: only a change to a sort key can move
			// a row across the boundary or reorder the list. A LIMIT with
			// no SORT has no sort key to compare, so any overlap is
			// conservatively re-executed since nothing here can prove the
			// limit boundary is unaffected.
			if len(fq.Sort) == 0 {
				return ReExecuteFull
			}
			for _, id := range overlapping {
				rc := touched[id]
				newRow := effectiveRow(rc)
				for _, sc := range fq.Sort {
					if !value.Equal(rc.Old[sc.Field], newRow[sc.Field]) {
						return ReExecuteFull
					}
				}
			}
		case fq.Where == nil:
			// No LIMIT/SORT and no WHERE: any overlap is visible as-is.
			return ReExecuteFull
		default:
			if overlapFieldsChanged(fq, touched, overlapping) {
				return ReExecuteFull
			}
		}
	}

	if len(fresh) > 0 {
		if fq.Where == nil {
			return ReExecuteFull
		}
		for _, id := range fresh {
			rc := touched[id]
			if queryexec.Evaluate(*fq.Where, effectiveRow(rc)) {
				return ReExecuteFull
			}
		}
	}

	return NoReExecute
}

// overlapFieldsChanged reports whether any field referenced anywhere in
// fq.Where differs between the stored old row and the delta-derived new
// row, for any of the given overlapping ids.
func overlapFieldsChanged(fq *queryast.FieldQuery, touched map[string]store.RowChange, overlapping []string) bool {
	fields := fq.Where.ReferencedFields()
	for _, id := range overlapping {
		rc := touched[id]
		newRow := effectiveRow(rc)
		for f := range fields {
			if !value.Equal(rc.Old[f], newRow[f]) {
				return true
			}
		}
	}
	return false
}

// effectiveRow returns the row currently in the store after the delta was
// applied: the incoming row if it won LWW, otherwise the row that was
// already stored (since an LWW-losing write leaves the store untouched).
func effectiveRow(rc store.RowChange) value.Row {
	if rc.Applied {
		return rc.New
	}
	return rc.Old
}
