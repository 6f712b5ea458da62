package pv

import (
	"fmt"
)

// checkValues validates that values is a slice matching the given type tag
// and element count and returns a defensive copy. Posted slices never alias
// caller memory.
func checkValues(t ValueType, elements int, values any) (any, error) {
	switch t {
	case Int8:
		return checkTyped[int8](t, elements, values)
	case UInt8:
		return checkTyped[uint8](t, elements, values)
	case Int16:
		return checkTyped[int16](t, elements, values)
	case UInt16:
		return checkTyped[uint16](t, elements, values)
	case Int32:
		return checkTyped[int32](t, elements, values)
	case UInt32:
		return checkTyped[uint32](t, elements, values)
	case Int64:
		return checkTyped[int64](t, elements, values)
	case UInt64:
		return checkTyped[uint64](t, elements, values)
	case Float32:
		return checkTyped[float32](t, elements, values)
	case Float64:
		return checkTyped[float64](t, elements, values)
	case String:
		return checkTyped[string](t, elements, values)
	default:
		return nil, fmt.Errorf("unsupported value type %s", t)
	}
}

func checkTyped[T Element](t ValueType, elements int, values any) (any, error) {
	vals, ok := values.([]T)
	if !ok {
		return nil, fmt.Errorf("value of type %T does not match element type %s", values, t)
	}
	if len(vals) != elements {
		return nil, fmt.Errorf("got %d elements, variable has %d", len(vals), elements)
	}
	out := make([]T, len(vals))
	copy(out, vals)
	return out, nil
}

// CoerceValues converts loosely typed values (as produced by JSON
// decoding: float64 for numbers, string for strings) into the typed slice
// expected by a variable of the given type and element count.
func CoerceValues(t ValueType, elements int, raw []any) (any, error) {
	if len(raw) != elements {
		return nil, fmt.Errorf("got %d elements, variable has %d", len(raw), elements)
	}
	switch t {
	case Int8:
		return coerceNumeric[int8](raw)
	case UInt8:
		return coerceNumeric[uint8](raw)
	case Int16:
		return coerceNumeric[int16](raw)
	case UInt16:
		return coerceNumeric[uint16](raw)
	case Int32:
		return coerceNumeric[int32](raw)
	case UInt32:
		return coerceNumeric[uint32](raw)
	case Int64:
		return coerceNumeric[int64](raw)
	case UInt64:
		return coerceNumeric[uint64](raw)
	case Float32:
		return coerceNumeric[float32](raw)
	case Float64:
		return coerceNumeric[float64](raw)
	case String:
		out := make([]string, len(raw))
		for i, r := range raw {
			s, ok := r.(string)
			if !ok {
				return nil, fmt.Errorf("element %d: expected string, got %T", i, r)
			}
			out[i] = s
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported value type %s", t)
	}
}

type numeric interface {
	~int8 | ~uint8 | ~int16 | ~uint16 | ~int32 | ~uint32 | ~int64 | ~uint64 | ~float32 | ~float64
}

func coerceNumeric[T numeric](raw []any) (any, error) {
	out := make([]T, len(raw))
	for i, r := range raw {
		f, ok := r.(float64)
		if !ok {
			return nil, fmt.Errorf("element %d: expected number, got %T", i, r)
		}
		out[i] = T(f)
	}
	return out, nil
}
