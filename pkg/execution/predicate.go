package execution

import (
	"relstore/pkg/tuple"
	"relstore/pkg/types"
)

// Predicate filters tuples by comparing one column against a constant.
type Predicate struct {
	Column  int
	Op      types.Predicate
	Operand types.Field
}

// Matches evaluates the predicate against t.
func (p *Predicate) Matches(t *tuple.Tuple) (bool, error) {
	return t.Fields[p.Column].Compare(p.Op, p.Operand)
}

// JoinPredicate compares one column of the left tuple against one
// column of the right tuple.
type JoinPredicate struct {
	LeftColumn  int
	Op          types.Predicate
	RightColumn int
}

// Matches evaluates the join predicate for a pair of tuples.
func (p *JoinPredicate) Matches(left, right *tuple.Tuple) (bool, error) {
	return left.Fields[p.LeftColumn].Compare(p.Op, right.Fields[p.RightColumn])
}
