// Package schema describes the relationship metadata the query executor and
// FK-index builder use to resolve nested selections and foreign keys. It
// carries no enforcement of row shape; tables remain schemaless maps.
package schema

// RelationKind enumerates the supported relationship shapes.
type RelationKind int

const (
	OneToOne RelationKind = iota
	OneToMany
	ManyToOne
)

func (k RelationKind) String() string {
	switch k {
	case OneToOne:
		return "one-to-one"
	case OneToMany:
		return "one-to-many"
	case ManyToOne:
		return "many-to-one"
	default:
		return "unknown"
	}
}

// Relationship describes how one field of a table's rows resolves to rows of
// another table.
type Relationship struct {
	Kind         RelationKind
	RelatedTable string
	// FromField is the field on the *parent* row holding the foreign key,
	// used for ManyToOne/OneToOne lookups (relatedTable primary key lookup
	// using parent[FromField]). Empty for OneToMany, where the foreign key
	// lives on the child row instead (ToField).
	FromField string
	// ToField is the field on the *child* row carrying the foreign key back
	// to the parent's id, used for OneToMany index-assisted lookups.
	ToField string
}

// TableSchema holds the relationship metadata for a single table.
type TableSchema struct {
	Relationships map[string]Relationship
}

// Metadata is schema information for the whole database: per-table
// relationships, plus the query-field-name -> table-name mapping used to
// resolve top-level query fields.
type Metadata struct {
	Tables      map[string]TableSchema
	QueryFields map[string]string // queryFieldName -> tableName
}

// TableFor resolves a top-level query field name to its backing table name.
func (m Metadata) TableFor(queryField string) (string, bool) {
	t, ok := m.QueryFields[queryField]
	return t, ok
}

// Relationship looks up relationship metadata for a field on a table.
func (m Metadata) Relationship(table, field string) (Relationship, bool) {
	ts, ok := m.Tables[table]
	if !ok {
		return Relationship{}, false
	}
	rel, ok := ts.Relationships[field]
	return rel, ok
}

// IndexedColumns returns the set of (table, column) pairs that need a
// secondary FK index: every OneToMany relationship's ToField on its child
// table, deduplicated across all tables that declare it.
func (m Metadata) IndexedColumns() map[string]map[string]bool {
	out := make(map[string]map[string]bool)
	for _, ts := range m.Tables {
		for _, rel := range ts.Relationships {
			if rel.Kind != OneToMany || rel.ToField == "" {
				continue
			}
			if out[rel.RelatedTable] == nil {
				out[rel.RelatedTable] = make(map[string]bool)
			}
			out[rel.RelatedTable][rel.ToField] = true
		}
	}
	return out
}
