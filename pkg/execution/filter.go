package execution

import "relstore/pkg/tuple"

// Filter passes through child tuples matching a predicate.
type Filter struct {
	*BaseIterator
	child Executor
	pred  *Predicate
}

// NewFilter wraps child with pred.
func NewFilter(child Executor, pred *Predicate) *Filter {
	f := &Filter{child: child, pred: pred}
	f.BaseIterator = newBaseIterator(f.readNext)
	return f
}

func (f *Filter) Schema() *tuple.Schema { return f.child.Schema() }

func (f *Filter) Open() error {
	if err := f.child.Open(); err != nil {
		return err
	}
	f.markOpened()
	return nil
}

func (f *Filter) readNext() (*tuple.Tuple, error) {
	for {
		has, err := f.child.HasNext()
		if err != nil {
			return nil, err
		}
		if !has {
			return nil, nil
		}
		t, err := f.child.Next()
		if err != nil {
			return nil, err
		}
		ok, err := f.pred.Matches(t)
		if err != nil {
			return nil, err
		}
		if ok {
			return t, nil
		}
	}
}

func (f *Filter) Close() error {
	f.markClosed()
	return f.child.Close()
}
