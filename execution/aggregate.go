package execution

import (
	"fmt"

	"mit.edu/dsg/heapdb/common"
	"mit.edu/dsg/heapdb/storage"
)

// NoGrouping selects a single aggregate over the whole input instead of one
// per group.
const NoGrouping = -1

// AggregateOp names the aggregate computed over a column.
type AggregateOp int

const (
	AggMin AggregateOp = iota
	AggMax
	AggSum
	AggAvg
	AggCount
)

func (op AggregateOp) String() string {
	switch op {
	case AggMin:
		return "min"
	case AggMax:
		return "max"
	case AggSum:
		return "sum"
	case AggAvg:
		return "avg"
	case AggCount:
		return "count"
	}
	return "???"
}

// ParseAggregateOp maps an aggregate name to its op.
func ParseAggregateOp(s string) (AggregateOp, bool) {
	switch s {
	case "min":
		return AggMin, true
	case "max":
		return AggMax, true
	case "sum":
		return AggSum, true
	case "avg":
		return AggAvg, true
	case "count":
		return AggCount, true
	}
	return 0, false
}

// Aggregator accumulates tuples into per-group aggregate state and exposes
// the results as an operator.
type Aggregator interface {
	// MergeTupleIntoGroup folds one input tuple into its group.
	MergeTupleIntoGroup(t *storage.Tuple)
	// Iterator returns an operator producing one (groupVal, aggregateVal)
	// tuple per group, or a single (aggregateVal) tuple when not grouping.
	// An empty input yields no tuples in either case.
	Iterator() Operator
}

// IntegerAggregator computes min/max/sum/avg/count over an int column.
// All arithmetic is int32 and avg is truncating integer division; results
// are bit-identical to the reference behavior.
type IntegerAggregator struct {
	gbField int
	aField  int
	op      AggregateOp
	desc    *storage.TupleDesc

	groups map[storage.Value][]int32
	// order preserves first-seen group order so results are deterministic.
	order []storage.Value
}

// NewIntegerAggregator aggregates the int column at aField with op,
// grouping by the column at gbField of type gbType (or NoGrouping with
// DefaultType).
func NewIntegerAggregator(gbField int, gbType common.Type, aField int, op AggregateOp) *IntegerAggregator {
	var desc *storage.TupleDesc
	if gbField == NoGrouping {
		desc = storage.NewTupleDesc([]common.Type{common.IntType}, nil)
	} else {
		desc = storage.NewTupleDesc([]common.Type{gbType, common.IntType}, nil)
	}
	return &IntegerAggregator{
		gbField: gbField,
		aField:  aField,
		op:      op,
		desc:    desc,
		groups:  make(map[storage.Value][]int32),
	}
}

func (a *IntegerAggregator) MergeTupleIntoGroup(t *storage.Tuple) {
	var key storage.Value
	if a.gbField != NoGrouping {
		key = t.GetValue(a.gbField)
	}
	val := t.GetValue(a.aField).IntValue()

	vals, ok := a.groups[key]
	if !ok {
		a.order = append(a.order, key)
		switch a.op {
		case AggMin, AggMax, AggSum:
			a.groups[key] = []int32{val}
		case AggAvg:
			a.groups[key] = []int32{val, 1}
		case AggCount:
			a.groups[key] = []int32{1}
		default:
			panic("unknown aggregate op")
		}
		return
	}
	switch a.op {
	case AggMin:
		if val < vals[0] {
			vals[0] = val
		}
	case AggMax:
		if val > vals[0] {
			vals[0] = val
		}
	case AggSum:
		vals[0] += val
	case AggAvg:
		vals[0] += val
		vals[1]++
	case AggCount:
		vals[0]++
	default:
		panic("unknown aggregate op")
	}
}

func (a *IntegerAggregator) result(vals []int32) int32 {
	switch a.op {
	case AggMin, AggMax, AggSum, AggCount:
		return vals[0]
	case AggAvg:
		// Truncating integer division, preserved from the reference
		// implementation.
		return vals[0] / vals[1]
	}
	panic("unknown aggregate op")
}

func (a *IntegerAggregator) Iterator() Operator {
	it := &aggIterator{
		desc:    a.desc,
		grouped: a.gbField != NoGrouping,
		keys:    a.order,
		result: func(key storage.Value) storage.Value {
			return storage.NewIntValue(a.result(a.groups[key]))
		},
	}
	it.self = it
	return it
}

// StringAggregator supports only count over a string column.
type StringAggregator struct {
	gbField int
	aField  int
	desc    *storage.TupleDesc

	counts map[storage.Value]int32
	order  []storage.Value
}

// NewStringAggregator counts string values at aField, grouping by gbField
// of type gbType (or NoGrouping). op must be AggCount; strings support no
// other aggregate.
func NewStringAggregator(gbField int, gbType common.Type, aField int, op AggregateOp) *StringAggregator {
	common.Assert(op == AggCount, "string columns only support count, not %s", op)
	var desc *storage.TupleDesc
	if gbField == NoGrouping {
		desc = storage.NewTupleDesc([]common.Type{common.IntType}, nil)
	} else {
		desc = storage.NewTupleDesc([]common.Type{gbType, common.IntType}, nil)
	}
	return &StringAggregator{
		gbField: gbField,
		aField:  aField,
		desc:    desc,
		counts:  make(map[storage.Value]int32),
	}
}

func (a *StringAggregator) MergeTupleIntoGroup(t *storage.Tuple) {
	var key storage.Value
	if a.gbField != NoGrouping {
		key = t.GetValue(a.gbField)
	}
	if _, ok := a.counts[key]; !ok {
		a.order = append(a.order, key)
	}
	a.counts[key]++
}

func (a *StringAggregator) Iterator() Operator {
	it := &aggIterator{
		desc:    a.desc,
		grouped: a.gbField != NoGrouping,
		keys:    a.order,
		result: func(key storage.Value) storage.Value {
			return storage.NewIntValue(a.counts[key])
		},
	}
	it.self = it
	return it
}

// aggIterator walks an aggregator's groups in first-seen order.
type aggIterator struct {
	opBase
	desc    *storage.TupleDesc
	grouped bool
	keys    []storage.Value
	result  func(storage.Value) storage.Value
	idx     int
}

func (it *aggIterator) Open() error {
	it.openBase()
	it.idx = 0
	return nil
}

func (it *aggIterator) fetchNext() (*storage.Tuple, error) {
	if it.idx >= len(it.keys) {
		return nil, nil
	}
	key := it.keys[it.idx]
	it.idx++
	t := storage.NewTuple(it.desc)
	if it.grouped {
		t.SetValue(0, key)
		t.SetValue(1, it.result(key))
	} else {
		t.SetValue(0, it.result(key))
	}
	return t, nil
}

func (it *aggIterator) Rewind() error {
	it.clearPending()
	it.idx = 0
	return nil
}

func (it *aggIterator) Close() error {
	it.closeBase()
	return nil
}

func (it *aggIterator) Desc() *storage.TupleDesc {
	return it.desc
}

func (it *aggIterator) Children() []Operator {
	return nil
}

func (it *aggIterator) SetChildren(children []Operator) {
	common.Assert(len(children) == 0, "aggregate iterator has no children")
}

// Aggregate computes one aggregate over its child, optionally grouped by a
// second column. It is a blocking operator: the child is fully drained on
// open.
type Aggregate struct {
	opBase
	child  Operator
	aField int
	gField int
	op     AggregateOp
	desc   *storage.TupleDesc
	iter   Operator
}

// NewAggregate aggregates child's column aField with op, grouped by gField
// (or NoGrouping).
func NewAggregate(child Operator, aField, gField int, op AggregateOp) *Aggregate {
	childDesc := child.Desc()
	aggName := fmt.Sprintf("%s(%s)", op, childDesc.FieldName(aField))
	var desc *storage.TupleDesc
	if gField == NoGrouping {
		desc = storage.NewTupleDesc([]common.Type{common.IntType}, []string{aggName})
	} else {
		desc = storage.NewTupleDesc(
			[]common.Type{childDesc.FieldType(gField), common.IntType},
			[]string{childDesc.FieldName(gField), aggName})
	}
	a := &Aggregate{child: child, aField: aField, gField: gField, op: op, desc: desc}
	a.self = a
	return a
}

func (a *Aggregate) Open() error {
	a.openBase()
	if err := a.child.Open(); err != nil {
		return err
	}
	defer a.child.Close()

	gbType := common.DefaultType
	if a.gField != NoGrouping {
		gbType = a.child.Desc().FieldType(a.gField)
	}
	var agg Aggregator
	switch a.child.Desc().FieldType(a.aField) {
	case common.IntType:
		agg = NewIntegerAggregator(a.gField, gbType, a.aField, a.op)
	case common.StringType:
		agg = NewStringAggregator(a.gField, gbType, a.aField, a.op)
	default:
		panic("aggregate over unknown column type")
	}

	for {
		t, err := a.child.Next()
		if err != nil {
			return err
		}
		if t == nil {
			break
		}
		agg.MergeTupleIntoGroup(t)
	}
	a.iter = agg.Iterator()
	return a.iter.Open()
}

func (a *Aggregate) fetchNext() (*storage.Tuple, error) {
	return a.iter.Next()
}

func (a *Aggregate) Rewind() error {
	a.clearPending()
	return a.iter.Rewind()
}

func (a *Aggregate) Close() error {
	if a.iter != nil {
		a.iter.Close()
		a.iter = nil
	}
	a.closeBase()
	return nil
}

func (a *Aggregate) Desc() *storage.TupleDesc {
	return a.desc
}

func (a *Aggregate) Children() []Operator {
	return []Operator{a.child}
}

func (a *Aggregate) SetChildren(children []Operator) {
	common.Assert(len(children) == 1, "Aggregate takes exactly one child")
	a.child = children[0]
}
