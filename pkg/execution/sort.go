package execution

import (
	"sort"

	"relstore/pkg/tuple"
	"relstore/pkg/types"
)

// OrderBy names one sort key.
type OrderBy struct {
	Column int
	Desc   bool
}

// Sort materialises its child and emits the rows ordered by the sort
// keys, ties broken by the next key.
type Sort struct {
	*BaseIterator
	child  Executor
	orders []OrderBy

	rows []*tuple.Tuple
	pos  int
	err  error
}

// NewSort wraps child with the given sort keys.
func NewSort(child Executor, orders []OrderBy) *Sort {
	s := &Sort{child: child, orders: orders}
	s.BaseIterator = newBaseIterator(s.readNext)
	return s
}

func (s *Sort) Schema() *tuple.Schema { return s.child.Schema() }

func (s *Sort) Open() error {
	if err := s.child.Open(); err != nil {
		return err
	}
	for {
		has, err := s.child.HasNext()
		if err != nil {
			return err
		}
		if !has {
			break
		}
		t, err := s.child.Next()
		if err != nil {
			return err
		}
		s.rows = append(s.rows, t)
	}
	s.sortRows()
	if s.err != nil {
		return s.err
	}
	s.markOpened()
	return nil
}

func (s *Sort) sortRows() {
	sort.SliceStable(s.rows, func(i, j int) bool {
		a, b := s.rows[i], s.rows[j]
		for _, key := range s.orders {
			less, err := a.Fields[key.Column].Compare(types.LessThan, b.Fields[key.Column])
			if err != nil {
				s.err = err
				return false
			}
			greater, err := a.Fields[key.Column].Compare(types.GreaterThan, b.Fields[key.Column])
			if err != nil {
				s.err = err
				return false
			}
			if !less && !greater {
				continue
			}
			if key.Desc {
				return greater
			}
			return less
		}
		return false
	})
}

func (s *Sort) readNext() (*tuple.Tuple, error) {
	if s.pos >= len(s.rows) {
		return nil, nil
	}
	t := s.rows[s.pos]
	s.pos++
	return t, nil
}

func (s *Sort) Close() error {
	s.rows = nil
	s.markClosed()
	return s.child.Close()
}
