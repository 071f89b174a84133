package execution

import (
	"mit.edu/dsg/heapdb/common"
	"mit.edu/dsg/heapdb/storage"
)

// Filter passes through the child's tuples that satisfy a predicate.
type Filter struct {
	opBase
	pred  *Predicate
	child Operator
}

// NewFilter creates a filter over child.
func NewFilter(pred *Predicate, child Operator) *Filter {
	f := &Filter{pred: pred, child: child}
	f.self = f
	return f
}

func (f *Filter) Open() error {
	f.openBase()
	return f.child.Open()
}

func (f *Filter) fetchNext() (*storage.Tuple, error) {
	for {
		t, err := f.child.Next()
		if err != nil || t == nil {
			return nil, err
		}
		if f.pred.Filter(t) {
			return t, nil
		}
	}
}

func (f *Filter) Rewind() error {
	f.clearPending()
	return f.child.Rewind()
}

func (f *Filter) Close() error {
	err := f.child.Close()
	f.closeBase()
	return err
}

func (f *Filter) Desc() *storage.TupleDesc {
	return f.child.Desc()
}

func (f *Filter) Children() []Operator {
	return []Operator{f.child}
}

func (f *Filter) SetChildren(children []Operator) {
	common.Assert(len(children) == 1, "Filter takes exactly one child")
	f.child = children[0]
}
