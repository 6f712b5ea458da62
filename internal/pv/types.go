package pv

import "fmt"

// ValueType identifies the element type of a process variable. Accessors
// and traversals dispatch on it; the set is closed.
type ValueType int

const (
	Int8 ValueType = iota
	UInt8
	Int16
	UInt16
	Int32
	UInt32
	Int64
	UInt64
	Float32
	Float64
	String
)

// Element is the compile-time counterpart of ValueType. Every accessor is
// instantiated for exactly one Element type.
type Element interface {
	~int8 | ~uint8 | ~int16 | ~uint16 | ~int32 | ~uint32 | ~int64 | ~uint64 | ~float32 | ~float64 | ~string
}

// TypeOf returns the ValueType tag matching the concrete element type T.
func TypeOf[T Element]() ValueType {
	var zero T
	switch any(zero).(type) {
	case int8:
		return Int8
	case uint8:
		return UInt8
	case int16:
		return Int16
	case uint16:
		return UInt16
	case int32:
		return Int32
	case uint32:
		return UInt32
	case int64:
		return Int64
	case uint64:
		return UInt64
	case float32:
		return Float32
	case float64:
		return Float64
	case string:
		return String
	default:
		// Unreachable for types admitted by the Element constraint.
		panic(fmt.Sprintf("pv: unmapped element type %T", zero))
	}
}

// String returns the canonical name of the value type, as used in
// configuration files and API responses.
func (t ValueType) String() string {
	switch t {
	case Int8:
		return "int8"
	case UInt8:
		return "uint8"
	case Int16:
		return "int16"
	case UInt16:
		return "uint16"
	case Int32:
		return "int32"
	case UInt32:
		return "uint32"
	case Int64:
		return "int64"
	case UInt64:
		return "uint64"
	case Float32:
		return "float32"
	case Float64:
		return "float64"
	case String:
		return "string"
	default:
		return fmt.Sprintf("ValueType(%d)", int(t))
	}
}

// ParseValueType converts a canonical type name into its ValueType tag.
func ParseValueType(s string) (ValueType, error) {
	switch s {
	case "int8":
		return Int8, nil
	case "uint8":
		return UInt8, nil
	case "int16":
		return Int16, nil
	case "uint16":
		return UInt16, nil
	case "int32":
		return Int32, nil
	case "uint32":
		return UInt32, nil
	case "int64":
		return Int64, nil
	case "uint64":
		return UInt64, nil
	case "float32":
		return Float32, nil
	case "float64":
		return Float64, nil
	case "string":
		return String, nil
	default:
		return 0, fmt.Errorf("unknown value type %q", s)
	}
}
