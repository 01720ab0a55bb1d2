package execution

import (
	"relstore/pkg/tuple"
	"relstore/pkg/types"
)

// JoinType selects the join semantics.
type JoinType int

const (
	InnerJoin JoinType = iota
	LeftJoin
)

// NestedLoopJoin joins two operator trees by scanning the buffered
// right side once per left tuple. Left join emits an unmatched left
// tuple padded with zero values for the right columns.
type NestedLoopJoin struct {
	*BaseIterator
	left, right Executor
	pred        *JoinPredicate
	joinType    JoinType
	schema      *tuple.Schema

	rightRows []*tuple.Tuple
	leftTuple *tuple.Tuple
	rightIdx  int
	matched   bool
}

// NewNestedLoopJoin builds a join of left and right under pred.
func NewNestedLoopJoin(left, right Executor, pred *JoinPredicate, joinType JoinType) *NestedLoopJoin {
	j := &NestedLoopJoin{
		left:     left,
		right:    right,
		pred:     pred,
		joinType: joinType,
		schema:   tuple.Combine(left.Schema(), right.Schema()),
	}
	j.BaseIterator = newBaseIterator(j.readNext)
	return j
}

func (j *NestedLoopJoin) Schema() *tuple.Schema { return j.schema }

// Open buffers the entire right side; the left side streams.
func (j *NestedLoopJoin) Open() error {
	if err := j.left.Open(); err != nil {
		return err
	}
	if err := j.right.Open(); err != nil {
		return err
	}
	for {
		has, err := j.right.HasNext()
		if err != nil {
			return err
		}
		if !has {
			break
		}
		t, err := j.right.Next()
		if err != nil {
			return err
		}
		j.rightRows = append(j.rightRows, t)
	}
	j.markOpened()
	return nil
}

func (j *NestedLoopJoin) readNext() (*tuple.Tuple, error) {
	for {
		if j.leftTuple == nil {
			has, err := j.left.HasNext()
			if err != nil {
				return nil, err
			}
			if !has {
				return nil, nil
			}
			j.leftTuple, err = j.left.Next()
			if err != nil {
				return nil, err
			}
			j.rightIdx = 0
			j.matched = false
		}

		for j.rightIdx < len(j.rightRows) {
			right := j.rightRows[j.rightIdx]
			j.rightIdx++
			ok, err := j.pred.Matches(j.leftTuple, right)
			if err != nil {
				return nil, err
			}
			if ok {
				j.matched = true
				return tuple.Join(j.leftTuple, right), nil
			}
		}

		// Right side exhausted for this left tuple.
		left := j.leftTuple
		matched := j.matched
		j.leftTuple = nil
		if j.joinType == LeftJoin && !matched {
			return tuple.Join(left, j.nullRight()), nil
		}
	}
}

// nullRight pads the right columns of an unmatched left-join output
// with zero values.
func (j *NestedLoopJoin) nullRight() *tuple.Tuple {
	schema := j.right.Schema()
	fields := make([]types.Field, schema.NumColumns())
	for i, t := range schema.Types {
		if t == types.IntType {
			fields[i] = types.NewIntField(0)
		} else {
			fields[i] = types.NewStringField("")
		}
	}
	return &tuple.Tuple{Fields: fields}
}

func (j *NestedLoopJoin) Close() error {
	j.rightRows = nil
	j.markClosed()
	if err := j.left.Close(); err != nil {
		j.right.Close()
		return err
	}
	return j.right.Close()
}
