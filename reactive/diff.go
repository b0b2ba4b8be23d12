package reactive

import (
	"github.com/go-mizu/ldb/path"
	"github.com/go-mizu/ldb/value"
)

// diffResults computes the patch between two results across every
// top-level query field present in the new result (a field present only
// in the old result produces no ops): list reconciliation
// (move/insert/trailing-remove) followed by a value-diff pass.
func diffResults(oldResult, newResult map[string][]value.Row) []path.Op {
	var ops []path.Op
	for field, newRows := range newResult {
		ops = append(ops, diffField(field, oldResult[field], newRows)...)
	}
	return ops
}

// diffField diffs one top-level field's ordered row list.
func diffField(field string, oldRows, newRows []value.Row) []path.Op {
	base := path.Field(field)

	oldIDs := rowIDSequence(oldRows)
	newIDs := rowIDSequence(newRows)

	oldByID := rowsByID(oldRows)
	newByID := rowsByID(newRows)

	working := append([]string(nil), oldIDs...)
	var ops []path.Op

	indexIn := func(ids []string, id string) int {
		for i, x := range ids {
			if x == id {
				return i
			}
		}
		return -1
	}

	for i, id := range newIDs {
		idx := indexIn(working, id)
		if idx >= 0 {
			if idx != i {
				ops = append(ops, path.Op{Kind: path.MoveRow, Path: base.String(), From: idx, To: i})
				working = moveElement(working, idx, i)
			}
			continue
		}
		ops = append(ops, path.Op{
			Kind:  path.InsertRow,
			Path:  base.String(),
			Index: i,
			Row:   value.NewObject(map[string]value.Value(newByID[id])),
		})
		working = insertElement(working, i, id)
	}

	for k := len(working) - 1; k >= len(newIDs); k-- {
		ops = append(ops, path.Op{Kind: path.RemoveRowByIndex, Path: base.String(), Index: k})
		working = working[:k]
	}

	for i, id := range newIDs {
		oldRow, inOld := oldByID[id]
		if !inOld {
			continue
		}
		newRow := newByID[id]
		if value.RowEqual(oldRow, newRow) {
			continue
		}
		ops = append(ops, path.Op{
			Kind: path.SetRow,
			Path: base.WithIndex(i).String(),
			Row:  value.NewObject(map[string]value.Value(newRow)),
		})
	}

	return ops
}

func rowIDSequence(rows []value.Row) []string {
	out := make([]string, 0, len(rows))
	for _, r := range rows {
		id, ok := value.RowIDString(r)
		if !ok {
			continue
		}
		out = append(out, id)
	}
	return out
}

func rowsByID(rows []value.Row) map[string]value.Row {
	out := make(map[string]value.Row, len(rows))
	for _, r := range rows {
		if id, ok := value.RowIDString(r); ok {
			out[id] = r
		}
	}
	return out
}

// moveElement removes the element at from and reinserts it at to,
// clamping to into range.
func moveElement(ids []string, from, to int) []string {
	elem := ids[from]
	rest := make([]string, 0, len(ids)-1)
	rest = append(rest, ids[:from]...)
	rest = append(rest, ids[from+1:]...)
	if to > len(rest) {
		to = len(rest)
	}
	if to < 0 {
		to = 0
	}
	out := make([]string, 0, len(ids))
	out = append(out, rest[:to]...)
	out = append(out, elem)
	out = append(out, rest[to:]...)
	return out
}

func insertElement(ids []string, at int, id string) []string {
	if at > len(ids) {
		at = len(ids)
	}
	if at < 0 {
		at = 0
	}
	out := make([]string, 0, len(ids)+1)
	out = append(out, ids[:at]...)
	out = append(out, id)
	out = append(out, ids[at:]...)
	return out
}
