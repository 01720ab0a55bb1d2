package execution

import (
	"fmt"
	"sort"

	"relstore/pkg/tuple"
	"relstore/pkg/types"
)

// AggregateOp enumerates the supported aggregate functions.
type AggregateOp int

const (
	CountAgg AggregateOp = iota
	SumAgg
	MinAgg
	MaxAgg
	AvgAgg
)

func (op AggregateOp) String() string {
	switch op {
	case CountAgg:
		return "count"
	case SumAgg:
		return "sum"
	case MinAgg:
		return "min"
	case MaxAgg:
		return "max"
	case AvgAgg:
		return "avg"
	}
	return fmt.Sprintf("agg(%d)", int(op))
}

// Aggregate names one aggregate over an integer column. Count ignores
// its column.
type Aggregate struct {
	Op     AggregateOp
	Column int
}

// aggState accumulates one group.
type aggState struct {
	groupKey types.Field
	count    int64
	sums     []int64
	mins     []int64
	maxs     []int64
	seen     bool
}

// Aggregation materialises its child into per-group accumulators and
// emits one tuple per group: the group-by column (when present)
// followed by the aggregate values. An aggregation over an empty input
// emits nothing.
type Aggregation struct {
	*BaseIterator
	child      Executor
	groupBy    int // column index, or -1 for a single global group
	aggregates []Aggregate

	groups []*aggState
	pos    int
	schema *tuple.Schema
}

// NewAggregation builds an aggregation. groupBy is a column index or -1
// for no grouping.
func NewAggregation(child Executor, groupBy int, aggregates []Aggregate) *Aggregation {
	in := child.Schema()
	var names []string
	var typs []types.Type
	if groupBy >= 0 {
		names = append(names, in.Names[groupBy])
		typs = append(typs, in.Types[groupBy])
	}
	for _, agg := range aggregates {
		if agg.Op == CountAgg {
			names = append(names, "count")
		} else {
			names = append(names, fmt.Sprintf("%s(%s)", agg.Op, in.Names[agg.Column]))
		}
		typs = append(typs, types.IntType)
	}
	a := &Aggregation{
		child:      child,
		groupBy:    groupBy,
		aggregates: aggregates,
		schema:     &tuple.Schema{Names: names, Types: typs},
	}
	a.BaseIterator = newBaseIterator(a.readNext)
	return a
}

func (a *Aggregation) Schema() *tuple.Schema { return a.schema }

func (a *Aggregation) Open() error {
	if err := a.child.Open(); err != nil {
		return err
	}
	byKey := make(map[string]*aggState)
	var order []string
	for {
		has, err := a.child.HasNext()
		if err != nil {
			return err
		}
		if !has {
			break
		}
		t, err := a.child.Next()
		if err != nil {
			return err
		}
		key := ""
		var groupField types.Field
		if a.groupBy >= 0 {
			groupField = t.Fields[a.groupBy]
			key = groupField.String()
		}
		state, ok := byKey[key]
		if !ok {
			state = &aggState{
				groupKey: groupField,
				sums:     make([]int64, len(a.aggregates)),
				mins:     make([]int64, len(a.aggregates)),
				maxs:     make([]int64, len(a.aggregates)),
			}
			byKey[key] = state
			order = append(order, key)
		}
		if err := a.combine(state, t); err != nil {
			return err
		}
	}
	sort.Strings(order)
	for _, key := range order {
		a.groups = append(a.groups, byKey[key])
	}
	a.markOpened()
	return nil
}

func (a *Aggregation) combine(state *aggState, t *tuple.Tuple) error {
	state.count++
	for i, agg := range a.aggregates {
		if agg.Op == CountAgg {
			continue
		}
		f, ok := t.Fields[agg.Column].(types.IntField)
		if !ok {
			return fmt.Errorf("%s over non-integer column %d", agg.Op, agg.Column)
		}
		v := f.Value
		state.sums[i] += v
		if !state.seen || v < state.mins[i] {
			state.mins[i] = v
		}
		if !state.seen || v > state.maxs[i] {
			state.maxs[i] = v
		}
	}
	state.seen = true
	return nil
}

func (a *Aggregation) readNext() (*tuple.Tuple, error) {
	if a.pos >= len(a.groups) {
		return nil, nil
	}
	state := a.groups[a.pos]
	a.pos++

	var fields []types.Field
	if a.groupBy >= 0 {
		fields = append(fields, state.groupKey)
	}
	for i, agg := range a.aggregates {
		var v int64
		switch agg.Op {
		case CountAgg:
			v = state.count
		case SumAgg:
			v = state.sums[i]
		case MinAgg:
			v = state.mins[i]
		case MaxAgg:
			v = state.maxs[i]
		case AvgAgg:
			v = state.sums[i] / state.count
		}
		fields = append(fields, types.NewIntField(v))
	}
	return &tuple.Tuple{Fields: fields}, nil
}

func (a *Aggregation) Close() error {
	a.groups = nil
	a.markClosed()
	return a.child.Close()
}
