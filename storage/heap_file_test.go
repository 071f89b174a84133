package storage

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mit.edu/dsg/heapdb/common"
	"mit.edu/dsg/heapdb/transaction"
)

func TestHeapFileIDStablePerPath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "stable.dat")
	pool := NewBufferPool(0, newMapResolver(), transaction.NewLockManager())

	f1, err := NewHeapFile(path, intPairDesc(), pool)
	require.NoError(t, err)
	f2, err := NewHeapFile(path, intPairDesc(), pool)
	require.NoError(t, err)
	defer f1.Close()
	defer f2.Close()

	assert.Equal(t, f1.ID(), f2.ID(), "same path, same id")

	f3, err := NewHeapFile(filepath.Join(dir, "elsewhere.dat"), intPairDesc(), pool)
	require.NoError(t, err)
	defer f3.Close()
	assert.NotEqual(t, f1.ID(), f3.ID(), "distinct paths hash differently")
}

func TestHeapFileReadPastEOF(t *testing.T) {
	_, file, _ := setupTable(t, "eof", 0)

	require.Equal(t, 0, file.NumPages())
	page, err := file.ReadPage(common.PageID{Table: file.ID(), PageNum: 7})
	require.NoError(t, err)
	hp := page.(*HeapPage)
	assert.Equal(t, hp.NumSlots(), hp.NumEmptySlots(), "page past EOF reads as empty")
}

func TestHeapFileWriteReadRoundTrip(t *testing.T) {
	_, file, _ := setupTable(t, "roundtrip", 0)

	pid := common.PageID{Table: file.ID(), PageNum: 2}
	hp := NewHeapPage(pid, EmptyPageData(), file.Desc())
	require.NoError(t, hp.InsertTuple(intPair(file.Desc(), 11, 12)))
	require.NoError(t, file.WritePage(hp))
	assert.Equal(t, 3, file.NumPages(), "writing page 2 extends the file")

	got, err := file.ReadPage(pid)
	require.NoError(t, err)
	assert.Equal(t, hp.Data(), got.Data())
}

func TestHeapFileInsertAndScan(t *testing.T) {
	pool, file, _ := setupTable(t, "insertscan", 0)
	tid := common.TransactionID(1)

	// Out-of-order values; the scan must return the same multiset.
	values := []int32{5, 1, 4, 2, 3}
	for _, v := range values {
		require.NoError(t, pool.InsertTuple(tid, file.ID(), intPair(file.Desc(), v, v*10)))
	}

	got := map[int32]int32{}
	for _, tup := range scanAll(t, file, tid) {
		got[tup.GetValue(0).IntValue()] = tup.GetValue(1).IntValue()
		require.NotNil(t, tup.RID(), "scanned tuples carry their location")
	}
	require.Len(t, got, len(values))
	for _, v := range values {
		assert.Equal(t, v*10, got[v])
	}
	require.NoError(t, pool.TransactionComplete(tid, true))
}

func TestHeapFileInsertGrowsAcrossPages(t *testing.T) {
	pool, file, _ := setupTable(t, "grow", 0)
	tid := common.TransactionID(1)

	n := SlotsPerPage(file.Desc()) + 10
	for i := 0; i < n; i++ {
		require.NoError(t, pool.InsertTuple(tid, file.ID(), intPair(file.Desc(), int32(i), 0)))
	}
	require.NoError(t, pool.TransactionComplete(tid, true))
	assert.Equal(t, 2, file.NumPages(), "overflow spills onto a second page")

	tuples := scanAll(t, file, 2)
	assert.Len(t, tuples, n)
	require.NoError(t, pool.TransactionComplete(2, true))
}

func TestHeapFileDeleteTuple(t *testing.T) {
	pool, file, _ := setupTable(t, "delete", 0)
	tid := common.TransactionID(1)

	for i := int32(0); i < 5; i++ {
		require.NoError(t, pool.InsertTuple(tid, file.ID(), intPair(file.Desc(), i, i)))
	}
	tuples := scanAll(t, file, tid)
	require.Len(t, tuples, 5)

	require.NoError(t, pool.DeleteTuple(tid, tuples[2]))
	assert.Nil(t, tuples[2].RID())

	remaining := scanAll(t, file, tid)
	assert.Len(t, remaining, 4)

	// Deleting a tuple with no record id fails
	err := pool.DeleteTuple(tid, intPair(file.Desc(), 1, 1))
	assert.True(t, common.HasCode(err, common.NoSuchTupleError))
	require.NoError(t, pool.TransactionComplete(tid, true))
}

func TestHeapFileInsertSchemaMismatch(t *testing.T) {
	pool, file, _ := setupTable(t, "mismatch", 0)
	other := NewTupleDesc([]common.Type{common.StringType}, nil)
	tup := NewTuple(other)
	tup.SetValue(0, NewStringValue("nope"))
	err := pool.InsertTuple(1, file.ID(), tup)
	assert.True(t, common.HasCode(err, common.SchemaMismatchError))
}

func TestHeapFileIteratorRewind(t *testing.T) {
	pool, file, _ := setupTable(t, "rewind", 0)
	tid := common.TransactionID(1)
	for i := int32(0); i < 3; i++ {
		require.NoError(t, pool.InsertTuple(tid, file.ID(), intPair(file.Desc(), i, i)))
	}

	it := file.Iterator(tid)
	require.NoError(t, it.Open())
	first, err := it.Next()
	require.NoError(t, err)
	require.NotNil(t, first)

	require.NoError(t, it.Rewind())
	count := 0
	for {
		tup, err := it.Next()
		require.NoError(t, err)
		if tup == nil {
			break
		}
		count++
	}
	assert.Equal(t, 3, count, "rewind restarts from the first page")
	it.Close()
	require.NoError(t, pool.TransactionComplete(tid, true))
}
