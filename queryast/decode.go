package queryast

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/go-mizu/ldb/value"
)

// Decode parses a Query from JSON of the form:
//
//	{
//	  "<queryField>": {
//	    "selections": { "<field>": true, "<relField>": { "selections": {...} } },
//	    "where": { "<field>": <FilterValue>, "$and": [ {...}, {...} ] },
//	    "sort": [ {"field": "name", "direction": "asc"} ],
//	    "limit": 10
//	  }
//	}
func Decode(r io.Reader) (Query, error) {
	var raw map[string]json.RawMessage
	dec := json.NewDecoder(r)
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("queryast: decode: %w", err)
	}

	out := make(Query, len(raw))
	for field, fqRaw := range raw {
		fq, err := decodeFieldQuery(fqRaw)
		if err != nil {
			return nil, fmt.Errorf("queryast: field %q: %w", field, err)
		}
		out[field] = fq
	}
	return out, nil
}

func decodeFieldQuery(raw json.RawMessage) (*FieldQuery, error) {
	var wire struct {
		Selections map[string]json.RawMessage `json:"selections"`
		Where      json.RawMessage            `json:"where"`
		Sort       []struct {
			Field     string `json:"field"`
			Direction string `json:"direction"`
		} `json:"sort"`
		Limit *int `json:"limit"`
	}
	if err := json.Unmarshal(raw, &wire); err != nil {
		return nil, err
	}

	fq := &FieldQuery{
		Selections: make(map[string]Selection, len(wire.Selections)),
		Limit:      wire.Limit,
	}

	for field, selRaw := range wire.Selections {
		sel, err := decodeSelection(selRaw)
		if err != nil {
			return nil, fmt.Errorf("selection %q: %w", field, err)
		}
		fq.Selections[field] = sel
	}

	for _, s := range wire.Sort {
		dir, err := decodeDirection(s.Direction)
		if err != nil {
			return nil, err
		}
		fq.Sort = append(fq.Sort, SortClause{Field: s.Field, Direction: dir})
	}

	if len(wire.Where) > 0 && string(wire.Where) != "null" {
		where, err := decodeWhereClause(wire.Where)
		if err != nil {
			return nil, err
		}
		fq.Where = &where
	}

	return fq, nil
}

// decodeDirection accepts both "asc"/"desc" and "Asc"/"Desc".
func decodeDirection(s string) (Direction, error) {
	switch strings.ToLower(s) {
	case "asc", "":
		return Asc, nil
	case "desc":
		return Desc, nil
	default:
		return Asc, fmt.Errorf("queryast: unknown sort direction %q", s)
	}
}

func decodeSelection(raw json.RawMessage) (Selection, error) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "true" {
		return SelectField(), nil
	}
	if strings.HasPrefix(trimmed, "{") {
		fq, err := decodeFieldQuery(raw)
		if err != nil {
			return Selection{}, err
		}
		return SelectNested(fq), nil
	}
	return Selection{}, fmt.Errorf("queryast: selection must be true or a nested query object, got %s", trimmed)
}

func decodeWhereClause(raw json.RawMessage) (WhereClause, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("queryast: where clause must be an object: %w", err)
	}

	out := make(WhereClause, len(fields))
	for key, fvRaw := range fields {
		fv, err := decodeFilterValue(key, fvRaw)
		if err != nil {
			return nil, err
		}
		out[key] = fv
	}
	return out, nil
}

func decodeFilterValue(key string, raw json.RawMessage) (FilterValue, error) {
	if key == KeyAnd || key == KeyOr {
		var clauseRaws []json.RawMessage
		if err := json.Unmarshal(raw, &clauseRaws); err != nil {
			return FilterValue{}, fmt.Errorf("queryast: %s must be an array: %w", key, err)
		}
		clauses := make([]WhereClause, 0, len(clauseRaws))
		for _, cr := range clauseRaws {
			wc, err := decodeWhereClause(cr)
			if err != nil {
				return FilterValue{}, err
			}
			clauses = append(clauses, wc)
		}
		kind := FilterAnd
		if key == KeyOr {
			kind = FilterOr
		}
		return FilterValue{Kind: kind, Clauses: clauses}, nil
	}

	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "null" {
		return FilterValue{Kind: FilterNull}, nil
	}

	if strings.HasPrefix(trimmed, "{") {
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(raw, &obj); err != nil {
			return FilterValue{}, err
		}
		hasDollar := false
		for k := range obj {
			if strings.HasPrefix(k, "$") {
				hasDollar = true
				break
			}
		}
		if !hasDollar {
			// An object with no $ keys at a field position is equality
			// shorthand over the whole object value.
			v, err := value.Decode(raw)
			if err != nil {
				return FilterValue{}, err
			}
			return FilterValue{Kind: FilterSimple, Simple: v}, nil
		}

		ops := make(map[string]FilterValue, len(obj))
		for opName, opRaw := range obj {
			opVal, err := value.Decode(opRaw)
			if err != nil {
				return FilterValue{}, err
			}
			ops[opName] = FilterValue{Kind: FilterSimple, Simple: opVal}
		}
		return FilterValue{Kind: FilterOperators, Operators: ops}, nil
	}

	v, err := value.Decode(raw)
	if err != nil {
		return FilterValue{}, err
	}
	return FilterValue{Kind: FilterSimple, Simple: v}, nil
}
