package execution

import "relstore/pkg/tuple"

// Values feeds literal rows into a writing operator, the leaf of an
// insert tree.
type Values struct {
	*BaseIterator
	schema *tuple.Schema
	rows   []*tuple.Tuple
	pos    int
}

// NewValues builds a source over rows.
func NewValues(schema *tuple.Schema, rows []*tuple.Tuple) *Values {
	v := &Values{schema: schema, rows: rows}
	v.BaseIterator = newBaseIterator(v.readNext)
	return v
}

func (v *Values) Schema() *tuple.Schema { return v.schema }

func (v *Values) Open() error {
	v.pos = 0
	v.markOpened()
	return nil
}

func (v *Values) readNext() (*tuple.Tuple, error) {
	if v.pos >= len(v.rows) {
		return nil, nil
	}
	t := v.rows[v.pos]
	v.pos++
	return t, nil
}

func (v *Values) Close() error {
	v.markClosed()
	return nil
}
