// Package value implements the tagged scalar/compound value model that
// every row, query literal, and wire payload in ldb is built from.
package value

import (
	"fmt"
	"sort"
	"time"
)

// Kind discriminates the variant held by a Value.
type Kind int

const (
	Null Kind = iota
	Bool
	Int
	Float
	String
	Array
	Object
)

func (k Kind) String() string {
	switch k {
	case Null:
		return "null"
	case Bool:
		return "bool"
	case Int:
		return "int"
	case Float:
		return "float"
	case String:
		return "string"
	case Array:
		return "array"
	case Object:
		return "object"
	default:
		return "unknown"
	}
}

// Value is a tagged union over {Null, Bool, Int, Float, String, Array, Object}.
// The zero Value is Null.
type Value struct {
	kind Kind
	b    bool
	i    int64
	f    float64
	s    string
	arr  []Value
	obj  map[string]Value
}

// Row is a field -> Value mapping. Every row is expected to carry an "id"
// field whose Value is Int or String (enforced at ingress, not here).
type Row map[string]Value

func NewNull() Value            { return Value{kind: Null} }
func NewBool(b bool) Value      { return Value{kind: Bool, b: b} }
func NewInt(i int64) Value      { return Value{kind: Int, i: i} }
func NewFloat(f float64) Value  { return Value{kind: Float, f: f} }
func NewString(s string) Value  { return Value{kind: String, s: s} }
func NewArray(vs []Value) Value { return Value{kind: Array, arr: vs} }
func NewObject(m map[string]Value) Value {
	return Value{kind: Object, obj: m}
}

func (v Value) Kind() Kind   { return v.kind }
func (v Value) IsNull() bool { return v.kind == Null }

func (v Value) Bool() (bool, bool)     { return v.b, v.kind == Bool }
func (v Value) Int() (int64, bool)     { return v.i, v.kind == Int }
func (v Value) Float() (float64, bool) { return v.f, v.kind == Float }
func (v Value) String() (string, bool) { return v.s, v.kind == String }
func (v Value) Array() ([]Value, bool) { return v.arr, v.kind == Array }
func (v Value) Object() (map[string]Value, bool) { return v.obj, v.kind == Object }

// GoString renders a debug representation; useful in test failure messages.
func (v Value) GoString() string {
	switch v.kind {
	case Null:
		return "null"
	case Bool:
		return fmt.Sprintf("%v", v.b)
	case Int:
		return fmt.Sprintf("%d", v.i)
	case Float:
		return fmt.Sprintf("%g", v.f)
	case String:
		return fmt.Sprintf("%q", v.s)
	case Array:
		return fmt.Sprintf("%v", v.arr)
	case Object:
		return fmt.Sprintf("%v", v.obj)
	default:
		return "<invalid>"
	}
}

// Equal is structural equality.
func Equal(a, b Value) bool {
	if a.kind != b.kind {
		return false
	}
	switch a.kind {
	case Null:
		return true
	case Bool:
		return a.b == b.b
	case Int:
		return a.i == b.i
	case Float:
		return a.f == b.f
	case String:
		return a.s == b.s
	case Array:
		if len(a.arr) != len(b.arr) {
			return false
		}
		for i := range a.arr {
			if !Equal(a.arr[i], b.arr[i]) {
				return false
			}
		}
		return true
	case Object:
		if len(a.obj) != len(b.obj) {
			return false
		}
		for k, av := range a.obj {
			bv, ok := b.obj[k]
			if !ok || !Equal(av, bv) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// RowEqual compares two rows field by field.
func RowEqual(a, b Row) bool {
	return Equal(NewObject(map[string]Value(a)), NewObject(map[string]Value(b)))
}

// Compare defines a total ordering that is partial across type boundaries:
// like-typed scalars (Int-Int, Float-Float, String-String) compare normally;
// any other pairing, including mixed types, returns 0 (EQ).
func Compare(a, b Value) int {
	switch {
	case a.kind == Int && b.kind == Int:
		switch {
		case a.i < b.i:
			return -1
		case a.i > b.i:
			return 1
		default:
			return 0
		}
	case a.kind == Float && b.kind == Float:
		switch {
		case a.f < b.f:
			return -1
		case a.f > b.f:
			return 1
		default:
			return 0
		}
	case a.kind == String && b.kind == String:
		switch {
		case a.s < b.s:
			return -1
		case a.s > b.s:
			return 1
		default:
			return 0
		}
	default:
		return 0
	}
}

// IndexKeyOf returns the secondary-index key for v: decimal for Int, raw for
// String. Null and every other kind are unrepresentable and return ok=false,
// so they are never indexed.
func IndexKeyOf(v Value) (key string, ok bool) {
	switch v.kind {
	case Int:
		return fmt.Sprintf("%d", v.i), true
	case String:
		return v.s, true
	default:
		return "", false
	}
}

// RowID extracts the row's id field, which must be Int or String.
func RowID(r Row) (Value, bool) {
	id, ok := r["id"]
	if !ok {
		return Value{}, false
	}
	if id.kind != Int && id.kind != String {
		return Value{}, false
	}
	return id, true
}

// RowIDString renders the id as a string for use as a map key, regardless of
// its underlying Int/String kind.
func RowIDString(r Row) (string, bool) {
	id, ok := RowID(r)
	if !ok {
		return "", false
	}
	return IDString(id)
}

// IDString renders an arbitrary Value as a primary-key string, accepting
// only Int and String kinds (the two id-eligible kinds per the data model).
func IDString(v Value) (string, bool) {
	if s, ok := v.String(); ok {
		return s, true
	}
	if i, ok := v.Int(); ok {
		return fmt.Sprintf("%d", i), true
	}
	return "", false
}

// SortedKeys returns an object's field names in sorted order, useful for
// deterministic iteration (e.g. deriving headers from a row).
func SortedKeys(m map[string]Value) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ParseUpdatedAt extracts a row's monotonic version: Int and Float are epoch
// seconds, String is parsed as an ISO-8601 timestamp. Any other kind, or an
// unparseable string, reports ok=false.
func ParseUpdatedAt(v Value) (float64, bool) {
	switch v.kind {
	case Int:
		return float64(v.i), true
	case Float:
		return v.f, true
	case String:
		t, err := time.Parse(time.RFC3339, v.s)
		if err != nil {
			return 0, false
		}
		return float64(t.Unix()), true
	default:
		return 0, false
	}
}

// RowUpdatedAt extracts and parses a row's updatedAt field, if present.
func RowUpdatedAt(r Row) (float64, bool) {
	v, ok := r["updatedAt"]
	if !ok {
		return 0, false
	}
	return ParseUpdatedAt(v)
}

// ShouldApplyLWW implements the last-writer-wins policy shared by every
// ingestion path (in-memory store, persistent store): drop an incoming row
// strictly older than the stored one; accept a brand-new row regardless of
// whether it carries updatedAt; if the existing row has updatedAt and the
// incoming one doesn't, keep the existing row.
func ShouldApplyLWW(prior Row, hadPrior bool, next Row) bool {
	if !hadPrior {
		return true
	}

	oldTS, oldOK := RowUpdatedAt(prior)
	newTS, newOK := RowUpdatedAt(next)

	switch {
	case !oldOK && !newOK:
		return true
	case !oldOK && newOK:
		return true
	case oldOK && !newOK:
		return false
	default:
		return newTS >= oldTS
	}
}

// Clone performs a deep copy of v.
func Clone(v Value) Value {
	switch v.kind {
	case Array:
		out := make([]Value, len(v.arr))
		for i, e := range v.arr {
			out[i] = Clone(e)
		}
		return Value{kind: Array, arr: out}
	case Object:
		out := make(map[string]Value, len(v.obj))
		for k, e := range v.obj {
			out[k] = Clone(e)
		}
		return Value{kind: Object, obj: out}
	default:
		return v
	}
}

// CloneRow deep-copies a row.
func CloneRow(r Row) Row {
	out := make(Row, len(r))
	for k, v := range r {
		out[k] = Clone(v)
	}
	return out
}
