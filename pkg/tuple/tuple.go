// Package tuple defines schemas and the fixed-width tuple encoding the
// heap pages store.
package tuple

import (
	"fmt"
	"strings"

	"relstore/pkg/primitives"
	"relstore/pkg/types"
)

// Schema describes a table's columns. Tuples under a schema serialize
// to a fixed width, which keeps heap page slots uniform.
type Schema struct {
	Names []string
	Types []types.Type
}

// NewSchema builds a schema from parallel name and type lists.
func NewSchema(names []string, typs []types.Type) (*Schema, error) {
	if len(names) != len(typs) {
		return nil, fmt.Errorf("schema: %d names for %d types", len(names), len(typs))
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("schema: no columns")
	}
	return &Schema{Names: names, Types: typs}, nil
}

// NumColumns returns the column count.
func (s *Schema) NumColumns() int { return len(s.Types) }

// TupleWidth returns the serialized size of one tuple.
func (s *Schema) TupleWidth() int {
	w := 0
	for _, t := range s.Types {
		w += t.Width()
	}
	return w
}

// ColumnIndex finds a column by name.
func (s *Schema) ColumnIndex(name string) (int, error) {
	for i, n := range s.Names {
		if n == name {
			return i, nil
		}
	}
	return 0, fmt.Errorf("schema: no column %q", name)
}

// Combine concatenates two schemas, for join outputs.
func Combine(left, right *Schema) *Schema {
	return &Schema{
		Names: append(append([]string{}, left.Names...), right.Names...),
		Types: append(append([]types.Type{}, left.Types...), right.Types...),
	}
}

// Tuple is one row: its field values and, once stored, the record id of
// its heap slot.
type Tuple struct {
	Fields []types.Field
	RID    primitives.RID
}

// NewTuple builds a tuple and checks it against the schema.
func NewTuple(schema *Schema, fields ...types.Field) (*Tuple, error) {
	if len(fields) != schema.NumColumns() {
		return nil, fmt.Errorf("tuple: %d fields for %d columns", len(fields), schema.NumColumns())
	}
	for i, f := range fields {
		if f.Type() != schema.Types[i] {
			return nil, fmt.Errorf("tuple: column %d is %s, got %s", i, schema.Types[i], f.Type())
		}
	}
	return &Tuple{Fields: fields}, nil
}

// Serialize writes the tuple into buf (schema.TupleWidth() bytes).
func (t *Tuple) Serialize(schema *Schema, buf []byte) error {
	if len(buf) < schema.TupleWidth() {
		return fmt.Errorf("tuple: buffer %d too small for width %d", len(buf), schema.TupleWidth())
	}
	off := 0
	for i, f := range t.Fields {
		f.Serialize(buf[off:])
		off += schema.Types[i].Width()
	}
	return nil
}

// Deserialize reads one tuple from buf.
func Deserialize(schema *Schema, buf []byte) (*Tuple, error) {
	fields := make([]types.Field, 0, schema.NumColumns())
	off := 0
	for _, typ := range schema.Types {
		f, err := types.Deserialize(typ, buf[off:])
		if err != nil {
			return nil, err
		}
		fields = append(fields, f)
		off += typ.Width()
	}
	return &Tuple{Fields: fields}, nil
}

// Join concatenates two tuples, for join outputs.
func Join(left, right *Tuple) *Tuple {
	fields := make([]types.Field, 0, len(left.Fields)+len(right.Fields))
	fields = append(fields, left.Fields...)
	fields = append(fields, right.Fields...)
	return &Tuple{Fields: fields}
}

func (t *Tuple) String() string {
	parts := make([]string, len(t.Fields))
	for i, f := range t.Fields {
		parts[i] = f.String()
	}
	return "(" + strings.Join(parts, ", ") + ")"
}
