package value

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Decode parses raw JSON into a Value. It uses json.Number internally so
// that integers and floats keep their distinct Kind instead of collapsing to
// a single numeric type, which a plain json.Unmarshal into interface{} would
// do.
func Decode(data []byte) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw any
	if err := dec.Decode(&raw); err != nil {
		return Value{}, fmt.Errorf("value: decode: %w", err)
	}
	return fromAny(raw)
}

func fromAny(raw any) (Value, error) {
	switch v := raw.(type) {
	case nil:
		return NewNull(), nil
	case bool:
		return NewBool(v), nil
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return NewInt(i), nil
		}
		f, err := v.Float64()
		if err != nil {
			return Value{}, fmt.Errorf("value: decode number %q: %w", v.String(), err)
		}
		return NewFloat(f), nil
	case string:
		return NewString(v), nil
	case []any:
		out := make([]Value, len(v))
		for i, e := range v {
			cv, err := fromAny(e)
			if err != nil {
				return Value{}, err
			}
			out[i] = cv
		}
		return NewArray(out), nil
	case map[string]any:
		out := make(map[string]Value, len(v))
		for k, e := range v {
			cv, err := fromAny(e)
			if err != nil {
				return Value{}, err
			}
			out[k] = cv
		}
		return NewObject(out), nil
	default:
		return Value{}, fmt.Errorf("value: decode: unsupported type %T", raw)
	}
}

// Encode renders v as JSON, preserving the Int/Float distinction.
func Encode(v Value) ([]byte, error) {
	any, err := toAny(v)
	if err != nil {
		return nil, err
	}
	return json.Marshal(any)
}

func toAny(v Value) (any, error) {
	switch v.kind {
	case Null:
		return nil, nil
	case Bool:
		return v.b, nil
	case Int:
		return v.i, nil
	case Float:
		return v.f, nil
	case String:
		return v.s, nil
	case Array:
		out := make([]any, len(v.arr))
		for i, e := range v.arr {
			cv, err := toAny(e)
			if err != nil {
				return nil, err
			}
			out[i] = cv
		}
		return out, nil
	case Object:
		out := make(map[string]any, len(v.obj))
		for k, e := range v.obj {
			cv, err := toAny(e)
			if err != nil {
				return nil, err
			}
			out[k] = cv
		}
		return out, nil
	default:
		return nil, fmt.Errorf("value: encode: invalid kind %v", v.kind)
	}
}

// DecodeRow decodes a JSON object directly into a Row.
func DecodeRow(data []byte) (Row, error) {
	v, err := Decode(data)
	if err != nil {
		return nil, err
	}
	obj, ok := v.Object()
	if !ok {
		return nil, fmt.Errorf("value: decode row: expected object, got %s", v.Kind())
	}
	return Row(obj), nil
}

// EncodeRow renders a Row as JSON.
func EncodeRow(r Row) ([]byte, error) {
	return Encode(NewObject(map[string]Value(r)))
}

// MarshalJSON implements json.Marshaler.
func (v Value) MarshalJSON() ([]byte, error) {
	return Encode(v)
}

// UnmarshalJSON implements json.Unmarshaler.
func (v *Value) UnmarshalJSON(data []byte) error {
	parsed, err := Decode(data)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}
