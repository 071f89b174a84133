package transaction

import (
	"sync"

	"mit.edu/dsg/heapdb/common"
)

// LockManager grants shared and exclusive locks at page granularity, with
// wound-wait deadlock avoidance: an older transaction (smaller id) aborts
// younger holders and waiters that conflict with it, so a younger
// transaction never blocks an older one and the waits-for graph stays
// acyclic.
//
// One process-wide mutex protects all lock state. Waiters block on a
// per-page condition variable bound to that mutex, which atomically
// releases it while waiting; no other code path holds the mutex across a
// suspension point.
type LockManager struct {
	mu    sync.Mutex
	locks map[common.PageID]*lockInfo
	txns  map[common.TransactionID]*txnInfo
}

type lockReqState int

const (
	acquireRead lockReqState = iota
	acquireWrite
	acquired
	abortedReq
)

type lockReq struct {
	tid   common.TransactionID
	pid   common.PageID
	state lockReqState
}

func (r *lockReq) wantsWrite() bool {
	return r.state == acquireWrite
}

// lockInfo tracks one page with any lock activity. The request queue never
// contains an aborted request or a duplicate transaction.
type lockInfo struct {
	cond    *sync.Cond
	queue   []*lockReq
	holders map[common.TransactionID]struct{}
	// exclusive is meaningful only while holders is non-empty.
	exclusive bool
}

// txnInfo is the per-transaction bookkeeping. req and lockIDs stay mutually
// consistent with the lockInfo state: req is non-nil iff exactly one queue
// contains it.
type txnInfo struct {
	shouldAbort bool
	req         *lockReq
	lockIDs     map[common.PageID]struct{}
}

// NewLockManager initializes an empty lock manager.
func NewLockManager() *LockManager {
	return &LockManager{
		locks: make(map[common.PageID]*lockInfo),
		txns:  make(map[common.TransactionID]*txnInfo),
	}
}

func (lm *LockManager) txn(tid common.TransactionID) *txnInfo {
	ti, ok := lm.txns[tid]
	if !ok {
		ti = &txnInfo{lockIDs: make(map[common.PageID]struct{})}
		lm.txns[tid] = ti
	}
	return ti
}

func (lm *LockManager) lockInfo(pid common.PageID) *lockInfo {
	li, ok := lm.locks[pid]
	if !ok {
		li = &lockInfo{
			cond:    sync.NewCond(&lm.mu),
			holders: make(map[common.TransactionID]struct{}),
		}
		lm.locks[pid] = li
	}
	return li
}

func abortedError(tid common.TransactionID) error {
	return common.NewDBError(common.TransactionAbortedError, "transaction %d aborted by wound-wait", tid)
}

// Lock acquires pid for tid with the requested permission (ReadOnly maps to
// a shared lock, ReadWrite to exclusive), blocking until the lock is
// granted. It returns a TransactionAbortedError if the transaction has been
// wounded, either before the call or while waiting.
func (lm *LockManager) Lock(tid common.TransactionID, pid common.PageID, perm common.Permissions) error {
	common.Assert(tid != common.InvalidTransactionID, "invalid transaction id")
	lm.mu.Lock()
	defer lm.mu.Unlock()

	ti := lm.txn(tid)
	common.Assert(ti.req == nil, "transaction %d already has an outstanding lock request", tid)
	if ti.shouldAbort {
		return abortedError(tid)
	}

	li := lm.lockInfo(pid)
	_, isHolder := li.holders[tid]
	wantsWrite := perm == common.ReadWrite

	// Already holding a strong-enough lock.
	if isHolder && (li.exclusive || !wantsWrite) {
		return nil
	}

	// Wound step: abort every younger conflicting holder and waiter.
	var victims []common.TransactionID
	for h := range li.holders {
		if h > tid && (li.exclusive || wantsWrite) {
			victims = append(victims, h)
		}
	}
	for _, r := range li.queue {
		if r.tid > tid && (r.wantsWrite() || wantsWrite) {
			victims = append(victims, r.tid)
		}
	}
	for _, v := range victims {
		lm.wound(v)
	}

	if isHolder {
		// Upgrade: wounded waiters are gone and the queue must drain
		// completely, because a remaining older write waiter would have
		// wounded us when it enqueued.
		li.makeProgress(lm)
		common.Assert(len(li.queue) == 0, "non-empty queue on lock upgrade of %s", pid)
	}

	req := &lockReq{tid: tid, pid: pid, state: acquireRead}
	if wantsWrite {
		req.state = acquireWrite
	}
	li.queue = append(li.queue, req)
	ti.req = req

	for {
		li.makeProgress(lm)
		if req.state == acquired {
			return nil
		}
		if req.state == abortedReq {
			return abortedError(tid)
		}
		li.cond.Wait()
	}
}

// wound marks the victim for abort and, if it is currently waiting in some
// queue, removes the request and wakes the victim so it observes the abort.
func (lm *LockManager) wound(victim common.TransactionID) {
	ti, ok := lm.txns[victim]
	common.Assert(ok, "wounding unknown transaction %d", victim)
	ti.shouldAbort = true
	if ti.req == nil {
		return
	}
	li, ok := lm.locks[ti.req.pid]
	common.Assert(ok, "wounded request for %s has no lock entry", ti.req.pid)
	removed := false
	for i, r := range li.queue {
		if r == ti.req {
			li.queue = append(li.queue[:i], li.queue[i+1:]...)
			removed = true
			break
		}
	}
	common.Assert(removed, "wounded request missing from its queue")
	ti.req.state = abortedReq
	ti.req = nil
	li.cond.Broadcast()
}

// canMakeProgress reports whether the queue head can be granted: no
// holders, a read request joining shared holders, or a self-upgrade where
// the head is the page's only holder.
func (li *lockInfo) canMakeProgress() bool {
	if len(li.queue) == 0 {
		return false
	}
	if len(li.holders) == 0 {
		return true
	}
	head := li.queue[0]
	if !li.exclusive && head.state == acquireRead {
		return true
	}
	if len(li.holders) != 1 {
		return false
	}
	_, selfHeld := li.holders[head.tid]
	return selfHeld
}

// makeProgress pops and grants queue heads while possible, waking all
// waiters after each grant.
func (li *lockInfo) makeProgress(lm *LockManager) {
	for li.canMakeProgress() {
		head := li.queue[0]
		li.queue = li.queue[1:]

		ti := lm.txn(head.tid)
		ti.req = nil
		ti.lockIDs[head.pid] = struct{}{}

		li.holders[head.tid] = struct{}{}
		li.exclusive = head.state == acquireWrite
		head.state = acquired

		li.cond.Broadcast()
	}
}

func (lm *LockManager) unlockLocked(tid common.TransactionID, pid common.PageID) {
	li, ok := lm.locks[pid]
	common.Assert(ok, "unlock of %s which has no lock entry", pid)
	_, held := li.holders[tid]
	common.Assert(held, "transaction %d does not hold %s", tid, pid)
	delete(li.holders, tid)
	if li.canMakeProgress() {
		li.makeProgress(lm)
	}
	if len(li.holders) == 0 && len(li.queue) == 0 {
		delete(lm.locks, pid)
	}
}

// Unlock releases tid's lock on pid. The buffer pool does not call it:
// under strict two-phase locking every lock is kept until commit or abort
// and then released by ReleaseAll.
func (lm *LockManager) Unlock(tid common.TransactionID, pid common.PageID) {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	ti, ok := lm.txns[tid]
	common.Assert(ok, "unlock by unknown transaction %d", tid)
	_, held := ti.lockIDs[pid]
	common.Assert(held, "transaction %d does not hold %s", tid, pid)
	delete(ti.lockIDs, pid)
	lm.unlockLocked(tid, pid)
}

// ReleaseAll releases every lock held by tid and forgets the transaction.
// The transaction must have no outstanding request; a transaction unwinding
// from a TransactionAbortedError never does, because the aborted request
// was already dequeued.
func (lm *LockManager) ReleaseAll(tid common.TransactionID) {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	ti, ok := lm.txns[tid]
	if !ok {
		return
	}
	common.Assert(ti.req == nil, "releaseAll with outstanding lock request for %d", tid)
	for pid := range ti.lockIDs {
		lm.unlockLocked(tid, pid)
	}
	delete(lm.txns, tid)
}

// HoldsLock reports whether tid currently holds any lock on pid.
func (lm *LockManager) HoldsLock(tid common.TransactionID, pid common.PageID) bool {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	li, ok := lm.locks[pid]
	if !ok {
		return false
	}
	_, held := li.holders[tid]
	return held
}
