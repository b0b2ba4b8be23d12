// Package queryast defines the query AST: selections, where-clauses,
// sort, limit, and nested relations, plus its JSON decoder.
package queryast

import "github.com/go-mizu/ldb/value"

// Query is a top-level query: one FieldQuery per query field name.
type Query map[string]*FieldQuery

// FieldQuery describes how to select, filter, sort, and limit rows for one
// query field.
type FieldQuery struct {
	Selections map[string]Selection
	Where      *WhereClause
	Sort       []SortClause
	Limit      *int
}

// Selection is either a plain field projection or a nested relation query.
type Selection struct {
	Field  bool        // true: SelectField
	Nested *FieldQuery // non-nil: SelectNested
}

func SelectField() Selection               { return Selection{Field: true} }
func SelectNested(fq *FieldQuery) Selection { return Selection{Nested: fq} }

// Direction is a sort direction.
type Direction int

const (
	Asc Direction = iota
	Desc
)

// SortClause orders results by one field.
type SortClause struct {
	Field     string
	Direction Direction
}

// FilterKind discriminates a WhereClause field value's shape.
type FilterKind int

const (
	FilterNull FilterKind = iota
	FilterSimple
	FilterOperators
	FilterAnd
	FilterOr
)

// WhereClause is a map fieldName -> FilterValue. The combinators $and/$or
// appear as ordinary keys whose FilterValue is FilterAnd/FilterOr, each
// carrying a list of sub-clauses.
type WhereClause map[string]FilterValue

// Combinator key names.
const (
	KeyAnd = "$and"
	KeyOr  = "$or"
)

// FilterValue is the value attached to one key inside a WhereClause.
type FilterValue struct {
	Kind FilterKind
	// Simple holds the equality-shorthand value (FilterSimple).
	Simple value.Value
	// Operators holds opName -> FilterValue for FilterOperators, e.g.
	// {"$gt": FilterValue{Kind: FilterSimple, Simple: ...}}.
	Operators map[string]FilterValue
	// Clauses holds the sub-clause list for FilterAnd/FilterOr.
	Clauses []WhereClause
}

// Supported comparison operators.
const (
	OpEq  = "$eq"
	OpNe  = "$ne"
	OpGt  = "$gt"
	OpGte = "$gte"
	OpLt  = "$lt"
	OpLte = "$lte"
)

// ReferencedFields returns the set of field names referenced anywhere in w,
// recursing through $and/$or.
func (w WhereClause) ReferencedFields() map[string]bool {
	out := make(map[string]bool)
	w.collectFields(out)
	return out
}

func (w WhereClause) collectFields(out map[string]bool) {
	for field, fv := range w {
		switch fv.Kind {
		case FilterAnd, FilterOr:
			for _, sub := range fv.Clauses {
				sub.collectFields(out)
			}
		default:
			out[field] = true
		}
	}
}
