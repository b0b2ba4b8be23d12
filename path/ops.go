package path

import (
	"fmt"

	"github.com/go-mizu/ldb/value"
)

// OpKind discriminates the five mutation ops.
type OpKind int

const (
	SetRow OpKind = iota
	RemoveRow
	InsertRow
	MoveRow
	RemoveRowByIndex
)

func (k OpKind) String() string {
	switch k {
	case SetRow:
		return "set-row"
	case RemoveRow:
		return "remove-row"
	case InsertRow:
		return "insert-row"
	case MoveRow:
		return "move-row"
	case RemoveRowByIndex:
		return "remove-row-by-index"
	default:
		return "unknown"
	}
}

// Op is one patch operation addressed at a path within a query result.
type Op struct {
	Kind OpKind
	Path string

	// Row carries the row payload for SetRow and InsertRow.
	Row value.Value
	// Index is the target index for InsertRow and RemoveRowByIndex.
	Index int
	// From/To are the source/destination indices for MoveRow.
	From int
	To   int
}

// step is a flattened path component: either a field descent or a
// selector descent into the list under the previous field.
type step struct {
	isField bool
	field   string
	sel     Selector
}

func flatten(p Path) []step {
	var steps []step
	for _, seg := range p {
		steps = append(steps, step{isField: true, field: seg.Field})
		for _, sel := range seg.Selectors {
			steps = append(steps, step{sel: sel})
		}
	}
	return steps
}

// Apply applies ops in order against base. A per-op failure (bad path,
// out-of-range index, type mismatch) is surfaced through the returned
// errors and the op is skipped; later ops continue against the unchanged
// value.
func Apply(base value.Value, ops []Op) (value.Value, []error) {
	result := base
	var errs []error
	for _, op := range ops {
		updated, err := applyOne(result, op)
		if err != nil {
			errs = append(errs, fmt.Errorf("path: op %s at %q: %w", op.Kind, op.Path, err))
			continue
		}
		result = updated
	}
	return result, errs
}

func applyOne(base value.Value, op Op) (value.Value, error) {
	switch op.Kind {
	case SetRow:
		segs, err := Parse(op.Path)
		if err != nil {
			return value.Value{}, err
		}
		return replaceAt(base, flatten(segs), func(value.Value) (value.Value, error) {
			return op.Row, nil
		})

	case RemoveRow:
		segs, err := Parse(op.Path)
		if err != nil {
			return value.Value{}, err
		}
		steps := flatten(segs)
		if len(steps) == 0 || steps[len(steps)-1].isField {
			return value.Value{}, fmt.Errorf("remove-row path must terminate with a selector")
		}
		return removeAt(base, steps)

	case InsertRow:
		segs, err := Parse(op.Path)
		if err != nil {
			return value.Value{}, err
		}
		return replaceAt(base, flatten(segs), func(cur value.Value) (value.Value, error) {
			arr, ok := cur.Array()
			if !ok {
				return value.Value{}, fmt.Errorf("insert-row target is not a list (%s)", cur.Kind())
			}
			idx := clamp(op.Index, 0, len(arr))
			out := make([]value.Value, 0, len(arr)+1)
			out = append(out, arr[:idx]...)
			out = append(out, op.Row)
			out = append(out, arr[idx:]...)
			return value.NewArray(out), nil
		})

	case MoveRow:
		segs, err := Parse(op.Path)
		if err != nil {
			return value.Value{}, err
		}
		return replaceAt(base, flatten(segs), func(cur value.Value) (value.Value, error) {
			arr, ok := cur.Array()
			if !ok {
				return value.Value{}, fmt.Errorf("move-row target is not a list (%s)", cur.Kind())
			}
			if op.From < 0 || op.From >= len(arr) {
				return value.Value{}, fmt.Errorf("move-row from index %d out of range [0,%d)", op.From, len(arr))
			}
			row := arr[op.From]
			rest := make([]value.Value, 0, len(arr)-1)
			rest = append(rest, arr[:op.From]...)
			rest = append(rest, arr[op.From+1:]...)
			to := clamp(op.To, 0, len(rest))
			out := make([]value.Value, 0, len(arr))
			out = append(out, rest[:to]...)
			out = append(out, row)
			out = append(out, rest[to:]...)
			return value.NewArray(out), nil
		})

	case RemoveRowByIndex:
		segs, err := Parse(op.Path)
		if err != nil {
			return value.Value{}, err
		}
		return replaceAt(base, flatten(segs), func(cur value.Value) (value.Value, error) {
			arr, ok := cur.Array()
			if !ok {
				return value.Value{}, fmt.Errorf("remove-row-by-index target is not a list (%s)", cur.Kind())
			}
			if op.Index < 0 || op.Index >= len(arr) {
				return value.Value{}, fmt.Errorf("remove-row-by-index index %d out of range [0,%d)", op.Index, len(arr))
			}
			out := make([]value.Value, 0, len(arr)-1)
			out = append(out, arr[:op.Index]...)
			out = append(out, arr[op.Index+1:]...)
			return value.NewArray(out), nil
		})

	default:
		return value.Value{}, fmt.Errorf("unknown op kind %v", op.Kind)
	}
}

func clamp(n, lo, hi int) int {
	if n < lo {
		return lo
	}
	if n > hi {
		return hi
	}
	return n
}

func resolveIndex(arr []value.Value, sel Selector) (int, error) {
	switch sel.Kind {
	case SelectIndex:
		if sel.Index < 0 || sel.Index >= len(arr) {
			return 0, fmt.Errorf("index %d out of range [0,%d)", sel.Index, len(arr))
		}
		return sel.Index, nil
	case SelectID:
		for i, row := range arr {
			obj, ok := row.Object()
			if !ok {
				continue
			}
			id, ok := value.IDString(obj["id"])
			if ok && id == sel.ID {
				return i, nil
			}
		}
		return 0, fmt.Errorf("no row with id %q", sel.ID)
	default:
		return 0, fmt.Errorf("unknown selector kind %v", sel.Kind)
	}
}

// replaceAt walks steps from the root, rebuilding every container along
// the way, and calls mutate on the value found at the end of the path.
func replaceAt(v value.Value, steps []step, mutate func(value.Value) (value.Value, error)) (value.Value, error) {
	if len(steps) == 0 {
		return mutate(v)
	}
	s := steps[0]

	if s.isField {
		obj, ok := v.Object()
		if !ok {
			return value.Value{}, fmt.Errorf("field %q requires an object, got %s", s.field, v.Kind())
		}
		child, ok := obj[s.field]
		if !ok {
			return value.Value{}, fmt.Errorf("field %q not found", s.field)
		}
		newChild, err := replaceAt(child, steps[1:], mutate)
		if err != nil {
			return value.Value{}, err
		}
		newObj := make(map[string]value.Value, len(obj))
		for k, vv := range obj {
			newObj[k] = vv
		}
		newObj[s.field] = newChild
		return value.NewObject(newObj), nil
	}

	arr, ok := v.Array()
	if !ok {
		return value.Value{}, fmt.Errorf("selector requires a list, got %s", v.Kind())
	}
	idx, err := resolveIndex(arr, s.sel)
	if err != nil {
		return value.Value{}, err
	}
	newChild, err := replaceAt(arr[idx], steps[1:], mutate)
	if err != nil {
		return value.Value{}, err
	}
	newArr := make([]value.Value, len(arr))
	copy(newArr, arr)
	newArr[idx] = newChild
	return value.NewArray(newArr), nil
}

// removeAt walks steps from the root like replaceAt, but the final
// selector step deletes the addressed element from its parent list
// instead of replacing its value.
func removeAt(v value.Value, steps []step) (value.Value, error) {
	if len(steps) == 1 {
		s := steps[0]
		if s.isField {
			return value.Value{}, fmt.Errorf("remove-row path must terminate with a selector")
		}
		arr, ok := v.Array()
		if !ok {
			return value.Value{}, fmt.Errorf("selector requires a list, got %s", v.Kind())
		}
		idx, err := resolveIndex(arr, s.sel)
		if err != nil {
			return value.Value{}, err
		}
		out := make([]value.Value, 0, len(arr)-1)
		out = append(out, arr[:idx]...)
		out = append(out, arr[idx+1:]...)
		return value.NewArray(out), nil
	}

	s := steps[0]
	if s.isField {
		obj, ok := v.Object()
		if !ok {
			return value.Value{}, fmt.Errorf("field %q requires an object, got %s", s.field, v.Kind())
		}
		child, ok := obj[s.field]
		if !ok {
			return value.Value{}, fmt.Errorf("field %q not found", s.field)
		}
		newChild, err := removeAt(child, steps[1:])
		if err != nil {
			return value.Value{}, err
		}
		newObj := make(map[string]value.Value, len(obj))
		for k, vv := range obj {
			newObj[k] = vv
		}
		newObj[s.field] = newChild
		return value.NewObject(newObj), nil
	}

	arr, ok := v.Array()
	if !ok {
		return value.Value{}, fmt.Errorf("selector requires a list, got %s", v.Kind())
	}
	idx, err := resolveIndex(arr, s.sel)
	if err != nil {
		return value.Value{}, err
	}
	newChild, err := removeAt(arr[idx], steps[1:])
	if err != nil {
		return value.Value{}, err
	}
	newArr := make([]value.Value, len(arr))
	copy(newArr, arr)
	newArr[idx] = newChild
	return value.NewArray(newArr), nil
}
