package execution

import (
	"relstore/pkg/tuple"
	"relstore/pkg/types"
)

// Project narrows child tuples to a subset of columns.
type Project struct {
	*BaseIterator
	child   Executor
	columns []int
	schema  *tuple.Schema
}

// NewProject keeps the named column indices, in order.
func NewProject(child Executor, columns []int) *Project {
	in := child.Schema()
	names := make([]string, len(columns))
	typs := make([]types.Type, len(columns))
	for i, c := range columns {
		names[i] = in.Names[c]
		typs[i] = in.Types[c]
	}
	p := &Project{child: child, columns: columns, schema: &tuple.Schema{Names: names, Types: typs}}
	p.BaseIterator = newBaseIterator(p.readNext)
	return p
}

func (p *Project) Schema() *tuple.Schema { return p.schema }

func (p *Project) Open() error {
	if err := p.child.Open(); err != nil {
		return err
	}
	p.markOpened()
	return nil
}

func (p *Project) readNext() (*tuple.Tuple, error) {
	has, err := p.child.HasNext()
	if err != nil {
		return nil, err
	}
	if !has {
		return nil, nil
	}
	t, err := p.child.Next()
	if err != nil {
		return nil, err
	}
	fields := make([]types.Field, len(p.columns))
	for i, c := range p.columns {
		fields[i] = t.Fields[c]
	}
	return &tuple.Tuple{Fields: fields, RID: t.RID}, nil
}

func (p *Project) Close() error {
	p.markClosed()
	return p.child.Close()
}
