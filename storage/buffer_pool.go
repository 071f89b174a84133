package storage

import (
	"sync"

	"github.com/puzpuzpuz/xsync/v3"

	"mit.edu/dsg/heapdb/common"
	"mit.edu/dsg/heapdb/transaction"
)

// BufferPool is the bounded cache every page access goes through. It
// acquires page locks on behalf of callers before touching the page, tracks
// which pages each transaction has dirtied, and implements the
// NO-STEAL / FORCE discipline: a dirty page never reaches disk before its
// transaction commits, and commit forces every page the transaction
// dirtied.
type BufferPool struct {
	capacity int
	files    FileResolver
	locks    *transaction.LockManager

	pages *xsync.MapOf[common.PageID, Page]
	// dirty maps a transaction to the set of pages it has dirtied. The inner
	// set is only touched by the owning transaction's thread.
	dirty *xsync.MapOf[common.TransactionID, map[common.PageID]struct{}]

	// loadMu serializes miss handling so admission and eviction cannot race
	// the pool past its capacity.
	loadMu sync.Mutex
}

// NewBufferPool creates a pool caching at most capacity pages, resolving
// table ids through files and locking through locks. A non-positive
// capacity selects the default.
func NewBufferPool(capacity int, files FileResolver, locks *transaction.LockManager) *BufferPool {
	if capacity <= 0 {
		capacity = common.DefaultPoolPages
	}
	return &BufferPool{
		capacity: capacity,
		files:    files,
		locks:    locks,
		pages:    xsync.NewMapOf[common.PageID, Page](),
		dirty:    xsync.NewMapOf[common.TransactionID, map[common.PageID]struct{}](),
	}
}

// Files returns the resolver used to find table files.
func (bp *BufferPool) Files() FileResolver {
	return bp.files
}

// Locks returns the lock manager the pool acquires through.
func (bp *BufferPool) Locks() *transaction.LockManager {
	return bp.locks
}

// GetPage returns the requested page after acquiring the lock implied by
// perm (ReadOnly acquires shared, ReadWrite exclusive) on behalf of tid.
// It blocks while the lock is contended and propagates a
// TransactionAbortedError if tid is wounded. A miss on a full pool evicts a
// clean page; if every resident page is dirty the call fails with
// BufferFullError rather than steal an uncommitted page.
func (bp *BufferPool) GetPage(tid common.TransactionID, pid common.PageID, perm common.Permissions) (Page, error) {
	if err := bp.locks.Lock(tid, pid, perm); err != nil {
		return nil, err
	}

	if page, ok := bp.pages.Load(pid); ok {
		return page, nil
	}

	bp.loadMu.Lock()
	defer bp.loadMu.Unlock()
	// Another thread may have loaded the page while we waited.
	if page, ok := bp.pages.Load(pid); ok {
		return page, nil
	}

	if bp.pages.Size() >= bp.capacity {
		if err := bp.evictOne(); err != nil {
			return nil, err
		}
	}

	file, err := bp.files.DatabaseFile(pid.Table)
	if err != nil {
		return nil, err
	}
	page, err := file.ReadPage(pid)
	if err != nil {
		return nil, err
	}
	bp.pages.Store(pid, page)
	return page, nil
}

// evictOne drops one clean resident page. Dirty pages are never eviction
// candidates (NO-STEAL); when nothing is clean the pool is stuck and the
// caller's transaction should give up.
func (bp *BufferPool) evictOne() error {
	var victim common.PageID
	found := false
	bp.pages.Range(func(pid common.PageID, page Page) bool {
		if _, dirty := page.Dirtier(); dirty {
			return true
		}
		victim = pid
		found = true
		return false
	})
	if !found {
		return common.NewDBError(common.BufferFullError,
			"all %d resident pages are dirty", bp.capacity)
	}
	// A clean page matches its on-disk bytes, so dropping it loses nothing.
	bp.pages.Delete(victim)
	return nil
}

func (bp *BufferPool) recordDirty(tid common.TransactionID, page Page) {
	page.MarkDirty(true, tid)
	// Re-install the mutated copy: a concurrent miss may have evicted the
	// page while it was still clean, and the resident map must hold the
	// version the transaction modified.
	bp.pages.Store(page.ID(), page)
	set, _ := bp.dirty.LoadOrCompute(tid, func() map[common.PageID]struct{} {
		return make(map[common.PageID]struct{})
	})
	set[page.ID()] = struct{}{}
}

// InsertTuple adds t to the named table on behalf of tid, marking every
// page the file touched as dirtied by tid.
func (bp *BufferPool) InsertTuple(tid common.TransactionID, tableID common.TableID, t *Tuple) error {
	file, err := bp.files.DatabaseFile(tableID)
	if err != nil {
		return err
	}
	pages, err := file.InsertTuple(tid, t)
	if err != nil {
		return err
	}
	for _, page := range pages {
		bp.recordDirty(tid, page)
	}
	return nil
}

// DeleteTuple removes t from its table (located through its record id) on
// behalf of tid.
func (bp *BufferPool) DeleteTuple(tid common.TransactionID, t *Tuple) error {
	rid := t.RID()
	if rid == nil {
		return common.NewDBError(common.NoSuchTupleError, "tuple has no record id")
	}
	file, err := bp.files.DatabaseFile(rid.Table)
	if err != nil {
		return err
	}
	page, err := file.DeleteTuple(tid, t)
	if err != nil {
		return err
	}
	bp.recordDirty(tid, page)
	return nil
}

// TransactionComplete ends tid. On commit every page tid dirtied is written
// through to its file and marked clean; on abort the in-memory copies are
// discarded so the next access reloads the last committed bytes. Either
// way, all of tid's locks are then released. Must be called exactly once
// per transaction.
func (bp *BufferPool) TransactionComplete(tid common.TransactionID, commit bool) error {
	set, _ := bp.dirty.LoadAndDelete(tid)
	for pid := range set {
		page, ok := bp.pages.Load(pid)
		if !ok {
			continue
		}
		if commit {
			if err := bp.flushResident(page); err != nil {
				return err
			}
		} else {
			bp.pages.Delete(pid)
		}
	}
	bp.locks.ReleaseAll(tid)
	return nil
}

func (bp *BufferPool) flushResident(page Page) error {
	file, err := bp.files.DatabaseFile(page.ID().Table)
	if err != nil {
		return err
	}
	if err := file.WritePage(page); err != nil {
		return err
	}
	page.MarkDirty(false, common.InvalidTransactionID)
	return nil
}

// FlushPage writes the named page to disk if it is resident and dirty,
// regardless of transaction state. Test-harness use only.
func (bp *BufferPool) FlushPage(pid common.PageID) error {
	page, ok := bp.pages.Load(pid)
	if !ok {
		return nil
	}
	if _, dirty := page.Dirtier(); !dirty {
		return nil
	}
	return bp.flushResident(page)
}

// FlushAllPages writes every dirty resident page unconditionally.
// Test-harness use only; it violates NO-STEAL on purpose.
func (bp *BufferPool) FlushAllPages() error {
	var err error
	bp.pages.Range(func(pid common.PageID, page Page) bool {
		if _, dirty := page.Dirtier(); dirty {
			if e := bp.flushResident(page); e != nil {
				err = e
				return false
			}
		}
		return true
	})
	return err
}

// DiscardPage removes a page from the pool without flushing it.
func (bp *BufferPool) DiscardPage(pid common.PageID) {
	bp.pages.Delete(pid)
}

// NumResident returns the number of cached pages.
func (bp *BufferPool) NumResident() int {
	return bp.pages.Size()
}

// IsDirtyFor reports whether pid is in tid's dirty set. Used by invariant
// checks in tests.
func (bp *BufferPool) IsDirtyFor(tid common.TransactionID, pid common.PageID) bool {
	set, ok := bp.dirty.Load(tid)
	if !ok {
		return false
	}
	_, ok = set[pid]
	return ok
}
