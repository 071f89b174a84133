package heapdb

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mit.edu/dsg/heapdb/catalog"
	"mit.edu/dsg/heapdb/common"
	"mit.edu/dsg/heapdb/execution"
	"mit.edu/dsg/heapdb/storage"
)

func intColumns() []catalog.Column {
	return []catalog.Column{
		{Name: "a", Type: common.IntType},
		{Name: "b", Type: common.IntType},
	}
}

func makeTuple(desc *storage.TupleDesc, a, b int32) *storage.Tuple {
	t := storage.NewTuple(desc)
	t.SetValue(0, storage.NewIntValue(a))
	t.SetValue(1, storage.NewIntValue(b))
	return t
}

func scanPairs(t *testing.T, db *Database, tid common.TransactionID, table *catalog.Table) map[int32]int32 {
	t.Helper()
	scan := execution.NewSeqScan(tid, table.DBFile(), "")
	require.NoError(t, scan.Open())
	defer scan.Close()
	out := map[int32]int32{}
	for {
		tup, err := scan.Next()
		require.NoError(t, err)
		if tup == nil {
			return out
		}
		out[tup.GetValue(0).IntValue()] = tup.GetValue(1).IntValue()
	}
}

func TestCommitDurabilityAcrossRestart(t *testing.T) {
	dir := t.TempDir()

	db, err := Open(dir, 0)
	require.NoError(t, err)
	table, err := db.CreateTable("t", intColumns(), "a")
	require.NoError(t, err)

	// T1 inserts and commits.
	t1 := db.Begin()
	require.NoError(t, db.BufferPool.InsertTuple(t1, table.ID(), makeTuple(table.Desc(), 42, 42)))
	require.NoError(t, db.Commit(t1))

	// T2 observes the committed row.
	t2 := db.Begin()
	assert.Equal(t, map[int32]int32{42: 42}, scanPairs(t, db, t2, table))
	require.NoError(t, db.Commit(t2))

	// Restart: a fresh buffer pool over the same directory still sees it.
	require.NoError(t, db.Close())
	db2, err := Open(dir, 0)
	require.NoError(t, err)
	defer db2.Close()

	table2, err := db2.Catalog.GetTable("t")
	require.NoError(t, err)
	assert.Equal(t, table.ID(), table2.ID(), "table id is stable across restarts for the same path")

	t3 := db2.Begin()
	assert.Equal(t, map[int32]int32{42: 42}, scanPairs(t, db2, t3, table2))
	require.NoError(t, db2.Commit(t3))
}

func TestAbortRollsBack(t *testing.T) {
	db, err := Open(t.TempDir(), 0)
	require.NoError(t, err)
	defer db.Close()

	table, err := db.CreateTable("t", intColumns(), "a")
	require.NoError(t, err)

	t1 := db.Begin()
	require.NoError(t, db.BufferPool.InsertTuple(t1, table.ID(), makeTuple(table.Desc(), 99, 99)))
	require.NoError(t, db.Abort(t1))

	t2 := db.Begin()
	assert.Empty(t, scanPairs(t, db, t2, table), "aborted insert is invisible")
	require.NoError(t, db.Commit(t2))
}

func TestInsertOperatorEndToEnd(t *testing.T) {
	db, err := Open(t.TempDir(), 0)
	require.NoError(t, err)
	defer db.Close()

	table, err := db.CreateTable("t", intColumns(), "a")
	require.NoError(t, err)

	seed := db.Begin()
	for i := int32(1); i <= 3; i++ {
		require.NoError(t, db.BufferPool.InsertTuple(seed, table.ID(), makeTuple(table.Desc(), i, i*10)))
	}
	require.NoError(t, db.Commit(seed))

	// Copy t into a second table through the operator pipeline.
	dest, err := db.CreateTable("t_copy", intColumns(), "a")
	require.NoError(t, err)

	tid := db.Begin()
	ins := execution.NewInsert(tid, execution.NewSeqScan(tid, table.DBFile(), ""), db.BufferPool, dest.ID())
	require.NoError(t, ins.Open())
	tup, err := ins.Next()
	require.NoError(t, err)
	require.NotNil(t, tup)
	assert.Equal(t, int32(3), tup.GetValue(0).IntValue())
	require.NoError(t, ins.Close())
	require.NoError(t, db.Commit(tid))

	check := db.Begin()
	assert.Equal(t, map[int32]int32{1: 10, 2: 20, 3: 30}, scanPairs(t, db, check, dest))
	require.NoError(t, db.Commit(check))
}

func TestWoundedTransactionUnwinds(t *testing.T) {
	// A wounded transaction sees TransactionAbortedError from the buffer
	// pool and unwinds with Abort; the survivor proceeds.
	db, err := Open(t.TempDir(), 0)
	require.NoError(t, err)
	defer db.Close()

	table, err := db.CreateTable("t", intColumns(), "a")
	require.NoError(t, err)

	seed := db.Begin()
	require.NoError(t, db.BufferPool.InsertTuple(seed, table.ID(), makeTuple(table.Desc(), 1, 1)))
	require.NoError(t, db.Commit(seed))

	pid := common.PageID{Table: table.ID(), PageNum: 0}

	older := db.Begin()
	younger := db.Begin()

	// Both read the page; the older then upgrades, wounding the younger.
	_, err = db.BufferPool.GetPage(older, pid, common.ReadOnly)
	require.NoError(t, err)
	_, err = db.BufferPool.GetPage(younger, pid, common.ReadOnly)
	require.NoError(t, err)

	granted := make(chan error, 1)
	go func() {
		_, err := db.BufferPool.GetPage(older, pid, common.ReadWrite)
		granted <- err
	}()

	// The younger transaction's next page access surfaces the abort.
	var abortErr error
	for {
		_, abortErr = db.BufferPool.GetPage(younger, pid, common.ReadOnly)
		if abortErr != nil {
			break
		}
	}
	assert.True(t, common.IsAborted(abortErr))
	require.NoError(t, db.Abort(younger))

	require.NoError(t, <-granted)
	require.NoError(t, db.Commit(older))
}
