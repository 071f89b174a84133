package execution

import (
	"mit.edu/dsg/heapdb/common"
	"mit.edu/dsg/heapdb/storage"
)

// Delete drains its child on open, routing every tuple to its owning table
// through the buffer pool's delete path, and then produces a single
// one-column tuple holding the number of deleted records. Further Next
// calls return nil.
type Delete struct {
	opBase
	tid   common.TransactionID
	child Operator
	pool  *storage.BufferPool

	count     int32
	hasResult bool
}

// NewDelete creates a delete of child's tuples on behalf of tid. The child
// must produce tuples carrying record ids (e.g. a SeqScan or a Filter over
// one).
func NewDelete(tid common.TransactionID, child Operator, pool *storage.BufferPool) *Delete {
	d := &Delete{tid: tid, child: child, pool: pool}
	d.self = d
	return d
}

func (d *Delete) execute() error {
	if err := d.child.Open(); err != nil {
		return err
	}
	defer d.child.Close()
	d.count = 0
	for {
		t, err := d.child.Next()
		if err != nil {
			return err
		}
		if t == nil {
			break
		}
		if err := d.pool.DeleteTuple(d.tid, t); err != nil {
			return err
		}
		d.count++
	}
	d.hasResult = true
	return nil
}

func (d *Delete) Open() error {
	d.openBase()
	return d.execute()
}

func (d *Delete) fetchNext() (*storage.Tuple, error) {
	if !d.hasResult {
		return nil, nil
	}
	d.hasResult = false
	t := storage.NewTuple(countDesc)
	t.SetValue(0, storage.NewIntValue(d.count))
	return t, nil
}

// Rewind re-executes the deletion, mirroring Insert's test-harness
// contract.
func (d *Delete) Rewind() error {
	d.clearPending()
	return d.execute()
}

func (d *Delete) Close() error {
	d.hasResult = false
	d.closeBase()
	return nil
}

func (d *Delete) Desc() *storage.TupleDesc {
	return countDesc
}

func (d *Delete) Children() []Operator {
	return []Operator{d.child}
}

func (d *Delete) SetChildren(children []Operator) {
	common.Assert(len(children) == 1, "Delete takes exactly one child")
	d.child = children[0]
}
