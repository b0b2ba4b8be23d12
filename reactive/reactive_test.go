package reactive

import (
	"testing"

	"github.com/go-mizu/ldb/path"
	"github.com/go-mizu/ldb/queryast"
	"github.com/go-mizu/ldb/schema"
	"github.com/go-mizu/ldb/store"
	"github.com/go-mizu/ldb/value"
)

func userSchema() schema.Metadata {
	return schema.Metadata{
		Tables:      map[string]schema.TableSchema{"user": {}, "post": {}},
		QueryFields: map[string]string{"user": "user", "post": "post"},
	}
}

func simpleEq(field string, v value.Value) queryast.WhereClause {
	return queryast.WhereClause{field: {Kind: queryast.FilterSimple, Simple: v}}
}

// S1: an update to a row outside a subscription's tracked set produces no
// emission and leaves resultRowIds untouched.
func TestOnDelta_UnrelatedUpdate(t *testing.T) {
	meta := userSchema()
	db := store.New(meta)
	db.Ingest("user", value.Row{"id": value.NewInt(1), "role": value.NewString("admin")})
	db.Ingest("user", value.Row{"id": value.NewInt(2), "role": value.NewString("admin")})
	db.Ingest("user", value.Row{"id": value.NewInt(999), "role": value.NewString("user"), "email": value.NewString("a")})

	reg := New(meta, db)
	q := queryast.Query{"user": {
		Selections: map[string]queryast.Selection{"id": queryast.SelectField(), "role": queryast.SelectField()},
		Where:      ptrWhere(simpleEq("role", value.NewString("admin"))),
	}}
	full := reg.Register("q1", q, nil)
	if full.Revision != 1 || full.Full == nil {
		t.Fatalf("expected initial full at revision 1, got %+v", full)
	}
	if len(full.Full.Result["user"]) != 2 {
		t.Fatalf("expected 2 admin users, got %d", len(full.Full.Result["user"]))
	}

	delta := store.Delta{TableGroups: []store.TableGroup{{
		TableName: "user",
		Headers:   []string{"id", "email"},
		Rows:      [][]value.Value{{value.NewInt(999), value.NewString("b")}},
	}}}
	applied := db.ApplyDelta(delta)

	emissions := reg.OnDelta(applied)
	if len(emissions) != 0 {
		t.Fatalf("expected no emissions for unrelated update, got %+v", emissions)
	}

	sub := reg.subs["q1"]
	if len(sub.ResultRowIDs["user"]) != 2 {
		t.Fatalf("resultRowIds should be unchanged, got %v", sub.ResultRowIDs["user"])
	}
}

// S3: an insert that matches a WHERE clause on a previously empty result
// produces an insert-row op and updates resultRowIds.
func TestOnDelta_InsertMatchesWhere(t *testing.T) {
	meta := userSchema()
	db := store.New(meta)

	reg := New(meta, db)
	q := queryast.Query{"post": {
		Selections: map[string]queryast.Selection{"id": queryast.SelectField(), "title": queryast.SelectField(), "published": queryast.SelectField()},
		Where:      ptrWhere(simpleEq("published", value.NewBool(true))),
	}}
	full := reg.Register("q1", q, nil)
	if len(full.Full.Result["post"]) != 0 {
		t.Fatalf("expected empty initial result, got %+v", full.Full.Result["post"])
	}

	delta := store.Delta{TableGroups: []store.TableGroup{{
		TableName: "post",
		Headers:   []string{"id", "title", "published"},
		Rows:      [][]value.Value{{value.NewInt(10), value.NewString("T"), value.NewBool(true)}},
	}}}
	applied := db.ApplyDelta(delta)

	emissions := reg.OnDelta(applied)
	if len(emissions) != 1 {
		t.Fatalf("expected one emission, got %d", len(emissions))
	}
	qd := emissions[0]
	if qd.Revision != 2 || qd.Delta == nil {
		t.Fatalf("expected delta emission at revision 2, got %+v", qd)
	}
	if len(qd.Delta.Ops) != 1 || qd.Delta.Ops[0].Kind != path.InsertRow {
		t.Fatalf("expected single insert-row op, got %+v", qd.Delta.Ops)
	}
	if qd.Delta.Ops[0].Index != 0 || qd.Delta.Ops[0].Path != ".post" {
		t.Fatalf("unexpected op shape: %+v", qd.Delta.Ops[0])
	}

	sub := reg.subs["q1"]
	if !sub.ResultRowIDs["post"]["10"] {
		t.Fatalf("expected post 10 tracked, got %v", sub.ResultRowIDs["post"])
	}
}

// S2: a sorted list re-executes and emits a move-row plus a set-row when a
// sort key changes on a tracked row.
func TestOnDelta_MoveWithinSortedList(t *testing.T) {
	meta := userSchema()
	db := store.New(meta)
	db.Ingest("user", value.Row{"id": value.NewInt(1), "name": value.NewString("Bob")})
	db.Ingest("user", value.Row{"id": value.NewInt(2), "name": value.NewString("Alice")})
	db.Ingest("user", value.Row{"id": value.NewInt(3), "name": value.NewString("Carol")})

	reg := New(meta, db)
	q := queryast.Query{"user": {
		Selections: map[string]queryast.Selection{"id": queryast.SelectField(), "name": queryast.SelectField()},
		Sort:       []queryast.SortClause{{Field: "name", Direction: queryast.Asc}},
	}}
	full := reg.Register("q1", q, nil)
	gotOrder := idOrder(t, full.Full.Result["user"])
	if want := []string{"2", "1", "3"}; !equalSlices(gotOrder, want) {
		t.Fatalf("initial order = %v, want %v", gotOrder, want)
	}

	delta := store.Delta{TableGroups: []store.TableGroup{{
		TableName: "user",
		Headers:   []string{"id", "name"},
		Rows:      [][]value.Value{{value.NewInt(1), value.NewString("Zed")}},
	}}}
	applied := db.ApplyDelta(delta)

	emissions := reg.OnDelta(applied)
	if len(emissions) != 1 {
		t.Fatalf("expected one emission, got %d", len(emissions))
	}
	qd := emissions[0]
	if qd.Delta == nil {
		t.Fatalf("expected a delta emission, got %+v", qd)
	}

	base := value.NewObject(map[string]value.Value{
		"user": value.NewArray([]value.Value{
			rowValue(full.Full.Result["user"][0]),
			rowValue(full.Full.Result["user"][1]),
			rowValue(full.Full.Result["user"][2]),
		}),
	})
	result, errs := path.Apply(base, qd.Delta.Ops)
	if len(errs) != 0 {
		t.Fatalf("unexpected apply errors: %v", errs)
	}
	obj, _ := result.Object()
	arr, _ := obj["user"].Array()
	var order []string
	for _, v := range arr {
		o, _ := v.Object()
		id, _ := value.IDString(o["id"])
		order = append(order, id)
	}
	if want := []string{"2", "3", "1"}; !equalSlices(order, want) {
		t.Fatalf("post-apply order = %v, want %v", order, want)
	}
	obj2, _ := arr[2].Object()
	name, _ := obj2["name"].String()
	if name != "Zed" {
		t.Fatalf("expected user 1's name to be Zed after apply, got %q", name)
	}
}

func nestedSchema() schema.Metadata {
	return schema.Metadata{
		Tables: map[string]schema.TableSchema{
			"user": {Relationships: map[string]schema.Relationship{
				"posts": {Kind: schema.OneToMany, RelatedTable: "post", ToField: "userId"},
			}},
			"post": {},
		},
		QueryFields: map[string]string{"user": "user", "post": "post"},
	}
}

func nestedPostsQuery() queryast.Query {
	return queryast.Query{"user": {
		Selections: map[string]queryast.Selection{
			"id": queryast.SelectField(),
			"posts": queryast.SelectNested(&queryast.FieldQuery{
				Selections: map[string]queryast.Selection{"id": queryast.SelectField(), "title": queryast.SelectField()},
			}),
		},
	}}
}

// A delta touching only a child table reached through a nested relation
// must still re-execute the parent query, or the nested list goes stale.
func TestOnDelta_NestedRelationChildUpdate(t *testing.T) {
	meta := nestedSchema()
	db := store.New(meta)
	db.Ingest("user", value.Row{"id": value.NewInt(1), "name": value.NewString("Bob")})
	db.Ingest("post", value.Row{"id": value.NewInt(10), "userId": value.NewInt(1), "title": value.NewString("hi")})

	reg := New(meta, db)
	reg.Register("q1", nestedPostsQuery(), nil)
	if !reg.subs["q1"].ResultRowIDs["post"]["10"] {
		t.Fatalf("expected nested post 10 tracked, got %v", reg.subs["q1"].ResultRowIDs)
	}

	delta := store.Delta{TableGroups: []store.TableGroup{{
		TableName: "post",
		Headers:   []string{"id", "userId", "title"},
		Rows:      [][]value.Value{{value.NewInt(10), value.NewInt(1), value.NewString("updated")}},
	}}}
	applied := db.ApplyDelta(delta)

	emissions := reg.OnDelta(applied)
	if len(emissions) != 1 {
		t.Fatalf("expected one emission for nested child update, got %d", len(emissions))
	}
	qd := emissions[0]
	if qd.Revision != 2 || qd.Delta == nil {
		t.Fatalf("expected delta emission at revision 2, got %+v", qd)
	}
	if len(qd.Delta.Ops) != 1 || qd.Delta.Ops[0].Kind != path.SetRow {
		t.Fatalf("expected a single set-row op on the parent row, got %+v", qd.Delta.Ops)
	}

	rows := reg.subs["q1"].LastResult["user"]
	posts, _ := rows[0]["posts"].Array()
	obj, _ := posts[0].Object()
	title, _ := obj["title"].String()
	if title != "updated" {
		t.Fatalf("expected nested title refreshed, got %q", title)
	}
}

// A child insert pointing at a parent outside the result re-executes
// conservatively, but the unchanged result produces no emission and no
// revision bump.
func TestOnDelta_NestedRelationUnrelatedChildNoEmission(t *testing.T) {
	meta := nestedSchema()
	db := store.New(meta)
	db.Ingest("user", value.Row{"id": value.NewInt(1), "name": value.NewString("Bob")})
	db.Ingest("post", value.Row{"id": value.NewInt(10), "userId": value.NewInt(1), "title": value.NewString("hi")})

	reg := New(meta, db)
	reg.Register("q1", nestedPostsQuery(), nil)

	delta := store.Delta{TableGroups: []store.TableGroup{{
		TableName: "post",
		Headers:   []string{"id", "userId", "title"},
		Rows:      [][]value.Value{{value.NewInt(20), value.NewInt(2), value.NewString("other")}},
	}}}
	applied := db.ApplyDelta(delta)

	emissions := reg.OnDelta(applied)
	if len(emissions) != 0 {
		t.Fatalf("expected no emissions for a child of another parent, got %+v", emissions)
	}
	if reg.subs["q1"].Revision != 1 {
		t.Fatalf("expected revision to stay at 1, got %d", reg.subs["q1"].Revision)
	}
}

func TestRegisterThenUnregister(t *testing.T) {
	meta := userSchema()
	db := store.New(meta)
	reg := New(meta, db)
	reg.Register("q1", queryast.Query{"user": {}}, nil)
	if _, ok := reg.subs["q1"]; !ok {
		t.Fatalf("expected subscription registered")
	}
	reg.Unregister("q1")
	if _, ok := reg.subs["q1"]; ok {
		t.Fatalf("expected subscription removed")
	}
}

func TestUpdateInputEmitsFreshFull(t *testing.T) {
	meta := userSchema()
	db := store.New(meta)
	db.Ingest("user", value.Row{"id": value.NewInt(1)})
	reg := New(meta, db)
	reg.Register("q1", queryast.Query{"user": {}}, "a")
	qd, ok := reg.UpdateInput("q1", "b")
	if !ok || qd.Revision != 2 || qd.Full == nil {
		t.Fatalf("expected fresh full at revision 2, got %+v ok=%v", qd, ok)
	}
	if reg.subs["q1"].Input != "b" {
		t.Fatalf("expected input updated")
	}
}

func ptrWhere(w queryast.WhereClause) *queryast.WhereClause { return &w }

func idOrder(t *testing.T, rows []value.Row) []string {
	t.Helper()
	out := make([]string, len(rows))
	for i, r := range rows {
		id, ok := value.RowIDString(r)
		if !ok {
			t.Fatalf("row missing id: %+v", r)
		}
		out[i] = id
	}
	return out
}

func rowValue(r value.Row) value.Value { return value.NewObject(map[string]value.Value(r)) }

func equalSlices(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
