package execution

import (
	"github.com/tidwall/btree"

	"mit.edu/dsg/heapdb/common"
	"mit.edu/dsg/heapdb/storage"
)

type orderItem struct {
	t *storage.Tuple
	// seq breaks ties between equal keys and keeps the sort stable.
	seq int
}

// OrderBy sorts the child's tuples by one field. It is a blocking operator:
// the child is drained into an ordered tree on open, and tuples are emitted
// from the tree thereafter.
type OrderBy struct {
	opBase
	child Operator
	field int
	asc   bool

	tuples []*storage.Tuple
	idx    int
}

// NewOrderBy sorts child by the field at the given index, ascending when
// asc is true.
func NewOrderBy(field int, asc bool, child Operator) *OrderBy {
	o := &OrderBy{child: child, field: field, asc: asc}
	o.self = o
	return o
}

func (o *OrderBy) Open() error {
	o.openBase()
	if err := o.child.Open(); err != nil {
		return err
	}
	defer o.child.Close()

	less := func(a, b orderItem) bool {
		cmp := a.t.GetValue(o.field).Compare(b.t.GetValue(o.field))
		if cmp != 0 {
			if o.asc {
				return cmp < 0
			}
			return cmp > 0
		}
		return a.seq < b.seq
	}
	tree := btree.NewBTreeG(less)

	seq := 0
	for {
		t, err := o.child.Next()
		if err != nil {
			return err
		}
		if t == nil {
			break
		}
		tree.Set(orderItem{t: t, seq: seq})
		seq++
	}

	o.tuples = make([]*storage.Tuple, 0, tree.Len())
	tree.Scan(func(item orderItem) bool {
		o.tuples = append(o.tuples, item.t)
		return true
	})
	o.idx = 0
	return nil
}

func (o *OrderBy) fetchNext() (*storage.Tuple, error) {
	if o.idx >= len(o.tuples) {
		return nil, nil
	}
	t := o.tuples[o.idx]
	o.idx++
	return t, nil
}

func (o *OrderBy) Rewind() error {
	o.clearPending()
	o.idx = 0
	return nil
}

func (o *OrderBy) Close() error {
	o.tuples = nil
	o.closeBase()
	return nil
}

func (o *OrderBy) Desc() *storage.TupleDesc {
	return o.child.Desc()
}

func (o *OrderBy) Children() []Operator {
	return []Operator{o.child}
}

func (o *OrderBy) SetChildren(children []Operator) {
	common.Assert(len(children) == 1, "OrderBy takes exactly one child")
	o.child = children[0]
}
