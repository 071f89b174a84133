package execution

import (
	"mit.edu/dsg/heapdb/common"
	"mit.edu/dsg/heapdb/storage"
)

var countDesc = storage.NewTupleDesc([]common.Type{common.IntType}, []string{"count"})

// Insert drains its child on open, routing every tuple into the target
// table through the buffer pool, and then produces a single one-column
// tuple holding the number of inserted records. Further Next calls return
// nil.
type Insert struct {
	opBase
	tid     common.TransactionID
	child   Operator
	pool    *storage.BufferPool
	tableID common.TableID

	count     int32
	hasResult bool
}

// NewInsert creates an insert of child's tuples into tableID on behalf of
// tid.
func NewInsert(tid common.TransactionID, child Operator, pool *storage.BufferPool, tableID common.TableID) *Insert {
	ins := &Insert{tid: tid, child: child, pool: pool, tableID: tableID}
	ins.self = ins
	return ins
}

func (ins *Insert) execute() error {
	file, err := ins.pool.Files().DatabaseFile(ins.tableID)
	if err != nil {
		return err
	}
	if !ins.child.Desc().Equals(file.Desc()) {
		return common.NewDBError(common.SchemaMismatchError,
			"child schema [%s] does not match table schema [%s]", ins.child.Desc(), file.Desc())
	}
	if err := ins.child.Open(); err != nil {
		return err
	}
	defer ins.child.Close()
	ins.count = 0
	for {
		t, err := ins.child.Next()
		if err != nil {
			return err
		}
		if t == nil {
			break
		}
		if err := ins.pool.InsertTuple(ins.tid, ins.tableID, t); err != nil {
			return err
		}
		ins.count++
	}
	ins.hasResult = true
	return nil
}

func (ins *Insert) Open() error {
	ins.openBase()
	return ins.execute()
}

func (ins *Insert) fetchNext() (*storage.Tuple, error) {
	if !ins.hasResult {
		return nil, nil
	}
	ins.hasResult = false
	t := storage.NewTuple(countDesc)
	t.SetValue(0, storage.NewIntValue(ins.count))
	return t, nil
}

// Rewind re-executes the insertion of the child's tuples. This is a
// test-harness contract: rewinding an Insert in a real plan would insert
// every row a second time.
func (ins *Insert) Rewind() error {
	ins.clearPending()
	return ins.execute()
}

func (ins *Insert) Close() error {
	ins.hasResult = false
	ins.closeBase()
	return nil
}

func (ins *Insert) Desc() *storage.TupleDesc {
	return countDesc
}

func (ins *Insert) Children() []Operator {
	return []Operator{ins.child}
}

func (ins *Insert) SetChildren(children []Operator) {
	common.Assert(len(children) == 1, "Insert takes exactly one child")
	ins.child = children[0]
}
