// Value: the runtime type tag and primitive conversions shared by Array,
// ArrayView and Channel. One tag per element type, chosen at construction
// and never changed afterwards.

package sihd_util

import (
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Type is the runtime tag for a single Array/Channel element.
type Type int

const (
	TypeBool Type = iota
	TypeInt8
	TypeInt16
	TypeInt32
	TypeInt64
	TypeUint8
	TypeUint16
	TypeUint32
	TypeUint64
	TypeFloat32
	TypeFloat64
	TypeChar
)

var typeSizes = map[Type]int{
	TypeBool:    1,
	TypeInt8:    1,
	TypeInt16:   2,
	TypeInt32:   4,
	TypeInt64:   8,
	TypeUint8:   1,
	TypeUint16:  2,
	TypeUint32:  4,
	TypeUint64:  8,
	TypeFloat32: 4,
	TypeFloat64: 8,
	TypeChar:    1,
}

var typeNames = map[Type]string{
	TypeBool:    "bool",
	TypeInt8:    "int8",
	TypeInt16:   "int16",
	TypeInt32:   "int32",
	TypeInt64:   "int64",
	TypeUint8:   "uint8",
	TypeUint16:  "uint16",
	TypeUint32:  "uint32",
	TypeUint64:  "uint64",
	TypeFloat32: "float32",
	TypeFloat64: "float64",
	TypeChar:    "char",
}

func (t Type) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("Type(%d)", int(t))
}

// ElemSize returns the number of bytes a single element of this type
// occupies; 0 for an unrecognised type.
func (t Type) ElemSize() int { return typeSizes[t] }

// IsFloat reports whether the type is one of the floating point variants;
// DevFilter validation needs this to reject a float trigger against an
// integer channel while accepting the reverse.
func (t Type) IsFloat() bool { return t == TypeFloat32 || t == TypeFloat64 }

// Value holds one decoded element plus the Type it was decoded as. It is
// the common currency between Array.At, Channel reads and DevFilter's rule
// evaluation.
type Value struct {
	Type Type
	// Stored as float64/int64/uint64 depending on Type's family; Bool in b.
	// AsFloat64/AsInt64/AsUint64 convert on demand.
	f float64
	i int64
	u uint64
	b bool
}

func BoolValue(v bool) Value               { return Value{Type: TypeBool, b: v} }
func Int64Value(t Type, v int64) Value     { return Value{Type: t, i: v} }
func Uint64Value(t Type, v uint64) Value   { return Value{Type: t, u: v} }
func Float64Value(t Type, v float64) Value { return Value{Type: t, f: v} }

func (v Value) AsBool() bool {
	switch v.Type {
	case TypeBool:
		return v.b
	case TypeFloat32, TypeFloat64:
		return v.f != 0
	default:
		return v.i != 0 || v.u != 0
	}
}

func (v Value) AsFloat64() float64 {
	switch v.Type {
	case TypeFloat32, TypeFloat64:
		return v.f
	case TypeBool:
		if v.b {
			return 1
		}
		return 0
	default:
		if isUnsignedType(v.Type) {
			return float64(v.u)
		}
		return float64(v.i)
	}
}

func (v Value) AsInt64() int64 {
	switch v.Type {
	case TypeFloat32, TypeFloat64:
		return int64(v.f)
	case TypeBool:
		if v.b {
			return 1
		}
		return 0
	default:
		if isUnsignedType(v.Type) {
			return int64(v.u)
		}
		return v.i
	}
}

func (v Value) AsUint64() uint64 {
	switch v.Type {
	case TypeFloat32, TypeFloat64:
		return uint64(v.f)
	case TypeBool:
		if v.b {
			return 1
		}
		return 0
	default:
		if isUnsignedType(v.Type) {
			return v.u
		}
		return uint64(v.i)
	}
}

func isUnsignedType(t Type) bool {
	switch t {
	case TypeUint8, TypeUint16, TypeUint32, TypeUint64:
		return true
	default:
		return false
	}
}

// Encode writes v's native-endian byte representation into buf[:t.ElemSize()].
func (v Value) Encode(buf []byte) {
	switch v.Type {
	case TypeBool, TypeChar, TypeUint8:
		buf[0] = byte(v.AsUint64())
	case TypeInt8:
		buf[0] = byte(v.AsInt64())
	case TypeInt16:
		binary.NativeEndian.PutUint16(buf, uint16(v.AsInt64()))
	case TypeUint16:
		binary.NativeEndian.PutUint16(buf, uint16(v.AsUint64()))
	case TypeInt32:
		binary.NativeEndian.PutUint32(buf, uint32(v.AsInt64()))
	case TypeUint32:
		binary.NativeEndian.PutUint32(buf, uint32(v.AsUint64()))
	case TypeInt64:
		binary.NativeEndian.PutUint64(buf, uint64(v.AsInt64()))
	case TypeUint64:
		binary.NativeEndian.PutUint64(buf, v.AsUint64())
	case TypeFloat32:
		binary.NativeEndian.PutUint32(buf, math.Float32bits(float32(v.AsFloat64())))
	case TypeFloat64:
		binary.NativeEndian.PutUint64(buf, math.Float64bits(v.AsFloat64()))
	}
}

// DecodeValue reads a single element of type t from buf (native-endian).
func DecodeValue(t Type, buf []byte) Value {
	switch t {
	case TypeBool:
		return BoolValue(buf[0] != 0)
	case TypeChar, TypeUint8:
		return Uint64Value(t, uint64(buf[0]))
	case TypeInt8:
		return Int64Value(t, int64(int8(buf[0])))
	case TypeInt16:
		return Int64Value(t, int64(int16(binary.NativeEndian.Uint16(buf))))
	case TypeUint16:
		return Uint64Value(t, uint64(binary.NativeEndian.Uint16(buf)))
	case TypeInt32:
		return Int64Value(t, int64(int32(binary.NativeEndian.Uint32(buf))))
	case TypeUint32:
		return Uint64Value(t, uint64(binary.NativeEndian.Uint32(buf)))
	case TypeInt64:
		return Int64Value(t, int64(binary.NativeEndian.Uint64(buf)))
	case TypeUint64:
		return Uint64Value(t, binary.NativeEndian.Uint64(buf))
	case TypeFloat32:
		return Float64Value(t, float64(math.Float32frombits(binary.NativeEndian.Uint32(buf))))
	case TypeFloat64:
		return Float64Value(t, math.Float64frombits(binary.NativeEndian.Uint64(buf)))
	default:
		return Value{}
	}
}

// ParseValue parses s as a value of the given type, for callers that know
// the target Type up front; DevFilter rule literals go through ParseAnyValue
// instead, since they are parsed before the channel's Type is known.
func ParseValue(t Type, s string) (Value, error) {
	switch t {
	case TypeBool:
		b, err := strconv.ParseBool(s)
		if err != nil {
			return Value{}, err
		}
		return BoolValue(b), nil
	case TypeFloat32, TypeFloat64:
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return Value{}, err
		}
		return Float64Value(t, f), nil
	case TypeChar, TypeUint8, TypeUint16, TypeUint32, TypeUint64:
		u, err := strconv.ParseUint(s, 0, 64)
		if err != nil {
			return Value{}, err
		}
		return Uint64Value(t, u), nil
	default:
		i, err := strconv.ParseInt(s, 0, 64)
		if err != nil {
			return Value{}, err
		}
		return Int64Value(t, i), nil
	}
}

// ParseAnyValue auto-detects a literal's type from its lexical form — used
// by DevFilter rule parsing, where a trigger/write literal's type must be
// known before the target channel (and hence its Type) has been resolved.
// Tries bool, then float (if it looks like one), then signed, then
// unsigned integer.
func ParseAnyValue(s string) (Value, error) {
	if b, err := strconv.ParseBool(s); err == nil {
		return BoolValue(b), nil
	}
	looksFloat := strings.ContainsAny(s, ".eE") && !strings.HasPrefix(s, "0x") && !strings.HasPrefix(s, "0X")
	if looksFloat {
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return Float64Value(TypeFloat64, f), nil
		}
	}
	if i, err := strconv.ParseInt(s, 0, 64); err == nil {
		return Int64Value(TypeInt64, i), nil
	}
	if u, err := strconv.ParseUint(s, 0, 64); err == nil {
		return Uint64Value(TypeUint64, u), nil
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return Float64Value(TypeFloat64, f), nil
	}
	return Value{}, fmt.Errorf("sihd_util: cannot convert %q to a value", s)
}

// CoerceValue reinterprets v's numeric content as the given type, the way
// DevFilter's write path must when a rule's literal was auto-detected by
// ParseAnyValue against a channel whose declared element type differs
// (e.g. a parsed int64 literal written into a uint8 channel).
func CoerceValue(t Type, v Value) Value {
	switch {
	case t == TypeBool:
		return BoolValue(v.AsBool())
	case t.IsFloat():
		return Float64Value(t, v.AsFloat64())
	case isUnsignedType(t):
		return Uint64Value(t, v.AsUint64())
	default:
		return Int64Value(t, v.AsInt64())
	}
}

func (v Value) String() string {
	switch v.Type {
	case TypeBool:
		return strconv.FormatBool(v.b)
	case TypeFloat32, TypeFloat64:
		return strconv.FormatFloat(v.f, 'g', -1, 64)
	default:
		if isUnsignedType(v.Type) {
			return strconv.FormatUint(v.u, 10)
		}
		return strconv.FormatInt(v.i, 10)
	}
}
