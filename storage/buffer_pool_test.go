package storage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/puzpuzpuz/xsync/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mit.edu/dsg/heapdb/common"
	"mit.edu/dsg/heapdb/transaction"
)

// mapResolver is a minimal FileResolver for tests that do not want a
// catalog.
type mapResolver struct {
	files *xsync.MapOf[common.TableID, DBFile]
}

func newMapResolver() *mapResolver {
	return &mapResolver{files: xsync.NewMapOf[common.TableID, DBFile]()}
}

func (r *mapResolver) add(f DBFile) {
	r.files.Store(f.ID(), f)
}

func (r *mapResolver) DatabaseFile(id common.TableID) (DBFile, error) {
	f, ok := r.files.Load(id)
	if !ok {
		return nil, common.NewDBError(common.NoSuchObjectError, "no file for table %d", id)
	}
	return f, nil
}

// setupTable builds a pool with the given capacity and one empty int-pair
// table registered with it.
func setupTable(t *testing.T, name string, capacity int) (*BufferPool, *HeapFile, *mapResolver) {
	t.Helper()
	resolver := newMapResolver()
	pool := NewBufferPool(capacity, resolver, transaction.NewLockManager())
	file, err := NewHeapFile(filepath.Join(t.TempDir(), name+".dat"), intPairDesc(), pool)
	require.NoError(t, err)
	t.Cleanup(func() { file.Close() })
	resolver.add(file)
	return pool, file, resolver
}

func scanAll(t *testing.T, file *HeapFile, tid common.TransactionID) []*Tuple {
	t.Helper()
	it := file.Iterator(tid)
	require.NoError(t, it.Open())
	defer it.Close()
	var out []*Tuple
	for {
		tup, err := it.Next()
		require.NoError(t, err)
		if tup == nil {
			return out
		}
		out = append(out, tup)
	}
}

func TestGetPageCachesPages(t *testing.T) {
	pool, file, _ := setupTable(t, "cache", 0)
	pid := common.PageID{Table: file.ID(), PageNum: 0}

	p1, err := pool.GetPage(1, pid, common.ReadOnly)
	require.NoError(t, err)
	p2, err := pool.GetPage(1, pid, common.ReadOnly)
	require.NoError(t, err)
	assert.Same(t, p1, p2, "resident page is returned, not reloaded")
	assert.Equal(t, 1, pool.NumResident())
}

func TestGetPageAcquiresLocks(t *testing.T) {
	pool, file, _ := setupTable(t, "locks", 0)
	pid := common.PageID{Table: file.ID(), PageNum: 0}

	_, err := pool.GetPage(1, pid, common.ReadWrite)
	require.NoError(t, err)
	assert.True(t, pool.Locks().HoldsLock(1, pid))

	require.NoError(t, pool.TransactionComplete(1, true))
	assert.False(t, pool.Locks().HoldsLock(1, pid))
}

func TestInsertMarksDirty(t *testing.T) {
	pool, file, _ := setupTable(t, "dirty", 0)
	tid := common.TransactionID(1)

	require.NoError(t, pool.InsertTuple(tid, file.ID(), intPair(file.Desc(), 1, 10)))

	pid := common.PageID{Table: file.ID(), PageNum: 0}
	page, err := pool.GetPage(tid, pid, common.ReadOnly)
	require.NoError(t, err)

	dirtier, dirty := page.Dirtier()
	assert.True(t, dirty)
	assert.Equal(t, tid, dirtier)
	assert.True(t, pool.IsDirtyFor(tid, pid), "dirty page recorded in the transaction's dirty set")
}

func TestCommitForcesDirtyPages(t *testing.T) {
	pool, file, _ := setupTable(t, "commit", 0)
	tid := common.TransactionID(1)

	require.NoError(t, pool.InsertTuple(tid, file.ID(), intPair(file.Desc(), 42, 42)))

	// NO-STEAL: nothing on disk before commit
	stat, err := os.Stat(file.Path())
	require.NoError(t, err)
	assert.Equal(t, int64(0), stat.Size())

	require.NoError(t, pool.TransactionComplete(tid, true))

	stat, err = os.Stat(file.Path())
	require.NoError(t, err)
	assert.Equal(t, int64(common.PageSize), stat.Size(), "FORCE: committed page written through")

	pid := common.PageID{Table: file.ID(), PageNum: 0}
	page, err := pool.GetPage(2, pid, common.ReadOnly)
	require.NoError(t, err)
	_, dirty := page.Dirtier()
	assert.False(t, dirty, "flushed page is clean")

	// On-disk bytes match the in-memory page at commit time
	onDisk, err := file.ReadPage(pid)
	require.NoError(t, err)
	assert.Equal(t, page.Data(), onDisk.Data())
}

func TestAbortDiscardsPages(t *testing.T) {
	pool, file, _ := setupTable(t, "abort", 0)

	// Commit a baseline row
	require.NoError(t, pool.InsertTuple(1, file.ID(), intPair(file.Desc(), 1, 1)))
	require.NoError(t, pool.TransactionComplete(1, true))

	// Insert under T2 and abort
	require.NoError(t, pool.InsertTuple(2, file.ID(), intPair(file.Desc(), 99, 99)))
	tuples := scanAll(t, file, 2)
	require.Len(t, tuples, 2, "T2 sees its own uncommitted insert")
	require.NoError(t, pool.TransactionComplete(2, false))

	// T3 sees only the committed row
	tuples = scanAll(t, file, 3)
	require.Len(t, tuples, 1)
	assert.Equal(t, int32(1), tuples[0].GetValue(0).IntValue())
	require.NoError(t, pool.TransactionComplete(3, true))
}

func TestNoDirtyEviction(t *testing.T) {
	// Capacity 1: T1 dirties the only frame, T2 wants an unrelated page.
	pool, file, resolver := setupTable(t, "steal", 1)

	other, err := NewHeapFile(filepath.Join(t.TempDir(), "other.dat"), intPairDesc(), pool)
	require.NoError(t, err)
	defer other.Close()
	resolver.add(other)

	require.NoError(t, pool.InsertTuple(1, file.ID(), intPair(file.Desc(), 5, 5)))

	sizeBefore := func() int64 {
		stat, err := os.Stat(file.Path())
		require.NoError(t, err)
		return stat.Size()
	}()

	_, err = pool.GetPage(2, common.PageID{Table: other.ID(), PageNum: 0}, common.ReadOnly)
	assert.True(t, common.HasCode(err, common.BufferFullError),
		"pool must refuse rather than steal the dirty page")

	stat, err := os.Stat(file.Path())
	require.NoError(t, err)
	assert.Equal(t, sizeBefore, stat.Size(), "dirty page was not written to disk")

	// After T1 commits, the page is clean and evictable.
	require.NoError(t, pool.TransactionComplete(1, true))
	_, err = pool.GetPage(2, common.PageID{Table: other.ID(), PageNum: 0}, common.ReadOnly)
	assert.NoError(t, err)
	require.NoError(t, pool.TransactionComplete(2, true))
}

func TestCleanEviction(t *testing.T) {
	pool, file, _ := setupTable(t, "evict", 2)

	// Materialize three committed pages. Each insert commits immediately so
	// the pool only ever holds one dirty page and clean frames stay
	// evictable.
	for i := 0; i < 3*SlotsPerPage(file.Desc()); i++ {
		tid := common.TransactionID(i + 1)
		require.NoError(t, pool.InsertTuple(tid, file.ID(), intPair(file.Desc(), int32(i), 0)))
		require.NoError(t, pool.TransactionComplete(tid, true))
	}
	require.Equal(t, 3, file.NumPages())

	reader := common.TransactionID(100000)
	for pageNo := int32(0); pageNo < 3; pageNo++ {
		_, err := pool.GetPage(reader, common.PageID{Table: file.ID(), PageNum: pageNo}, common.ReadOnly)
		require.NoError(t, err)
		assert.LessOrEqual(t, pool.NumResident(), 2)
	}
	require.NoError(t, pool.TransactionComplete(reader, true))
}

func TestDiscardPage(t *testing.T) {
	pool, file, _ := setupTable(t, "discard", 0)
	pid := common.PageID{Table: file.ID(), PageNum: 0}

	_, err := pool.GetPage(1, pid, common.ReadOnly)
	require.NoError(t, err)
	require.Equal(t, 1, pool.NumResident())

	pool.DiscardPage(pid)
	assert.Equal(t, 0, pool.NumResident())
}

func TestFlushAllPages(t *testing.T) {
	pool, file, _ := setupTable(t, "flushall", 0)

	require.NoError(t, pool.InsertTuple(1, file.ID(), intPair(file.Desc(), 1, 2)))
	require.NoError(t, pool.FlushAllPages())

	stat, err := os.Stat(file.Path())
	require.NoError(t, err)
	assert.Equal(t, int64(common.PageSize), stat.Size())
}
