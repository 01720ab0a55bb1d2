package types

import (
	"encoding/binary"
	"fmt"
	"strings"
)

// Field is one typed value inside a tuple.
type Field interface {
	Type() Type

	// Compare applies op between this field and other. Comparing fields
	// of different types is an error.
	Compare(op Predicate, other Field) (bool, error)

	// Serialize writes the field into buf, which must be Type().Width()
	// bytes.
	Serialize(buf []byte)

	String() string
}

// IntField is a 64-bit integer value.
type IntField struct {
	Value int64
}

func NewIntField(v int64) IntField { return IntField{Value: v} }

func (f IntField) Type() Type { return IntType }

func (f IntField) Compare(op Predicate, other Field) (bool, error) {
	o, ok := other.(IntField)
	if !ok {
		return false, fmt.Errorf("comparing int against %s", other.Type())
	}
	return compareOrdered(op, f.Value, o.Value)
}

func (f IntField) Serialize(buf []byte) {
	binary.LittleEndian.PutUint64(buf, uint64(f.Value))
}

func (f IntField) String() string { return fmt.Sprintf("%d", f.Value) }

// StringField is a string value truncated to MaxStringLen bytes.
type StringField struct {
	Value string
}

func NewStringField(v string) StringField {
	if len(v) > MaxStringLen {
		v = v[:MaxStringLen]
	}
	return StringField{Value: v}
}

func (f StringField) Type() Type { return StringType }

func (f StringField) Compare(op Predicate, other Field) (bool, error) {
	o, ok := other.(StringField)
	if !ok {
		return false, fmt.Errorf("comparing string against %s", other.Type())
	}
	return compareOrdered(op, f.Value, o.Value)
}

func (f StringField) Serialize(buf []byte) {
	binary.LittleEndian.PutUint16(buf, uint16(len(f.Value)))
	copy(buf[2:], f.Value)
}

func (f StringField) String() string { return f.Value }

// Deserialize reads a field of type t from buf.
func Deserialize(t Type, buf []byte) (Field, error) {
	switch t {
	case IntType:
		return IntField{Value: int64(binary.LittleEndian.Uint64(buf))}, nil
	case StringType:
		n := int(binary.LittleEndian.Uint16(buf))
		if n > MaxStringLen {
			return nil, fmt.Errorf("corrupt string field: length %d", n)
		}
		return StringField{Value: strings.Clone(string(buf[2 : 2+n]))}, nil
	}
	return nil, fmt.Errorf("unknown type %d", t)
}

func compareOrdered[T int64 | string](op Predicate, a, b T) (bool, error) {
	switch op {
	case Equals:
		return a == b, nil
	case NotEquals:
		return a != b, nil
	case LessThan:
		return a < b, nil
	case LessThanOrEqual:
		return a <= b, nil
	case GreaterThan:
		return a > b, nil
	case GreaterThanOrEqual:
		return a >= b, nil
	}
	return false, fmt.Errorf("unknown predicate %d", op)
}
