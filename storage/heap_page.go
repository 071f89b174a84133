package storage

import (
	"mit.edu/dsg/heapdb/common"
)

// Page is the unit of caching and locking. All concrete pages in the system
// are heap pages today, but the buffer pool and files only rely on this
// surface.
type Page interface {
	// ID returns the page's identity.
	ID() common.PageID
	// Data returns the exact PageSize-byte serialization of the page.
	Data() []byte
	// MarkDirty flags the page as modified by tid, or clears the flag when
	// dirty is false.
	MarkDirty(dirty bool, tid common.TransactionID)
	// Dirtier returns the transaction that dirtied the page, if any.
	Dirtier() (common.TransactionID, bool)
}

// HeapPage is a slotted page holding a fixed number of fixed-width tuples.
//
// Layout: a header of ceil(N/8) bytes, where N is the slot count below; the
// k-th bit (LSB-first within each byte) is 1 iff slot k is occupied.
// Immediately after the header come N tuple slots of Desc().Size() bytes
// each. Trailing bytes are padding and serialize as zero.
//
// A page's contents are only mutated by the transaction holding its
// exclusive lock, so HeapPage itself carries no synchronization.
type HeapPage struct {
	pid      common.PageID
	desc     *TupleDesc
	numSlots int
	header   []byte
	tuples   []*Tuple

	dirty   bool
	dirtier common.TransactionID
}

// SlotsPerPage returns N = floor(PageSize*8 / (tupleWidth*8 + 1)): each
// tuple costs its width in bits plus one header bit.
func SlotsPerPage(desc *TupleDesc) int {
	return (common.PageSize * 8) / (desc.Size()*8 + 1)
}

// headerBytes returns the header size for n slots.
func headerBytes(n int) int {
	return (n + 7) / 8
}

// EmptyPageData returns the serialization of a page with every slot empty.
func EmptyPageData() []byte {
	return make([]byte, common.PageSize)
}

// NewHeapPage materializes a page from its PageSize-byte serialization.
// It round-trips with Data: NewHeapPage(pid, data, desc).Data() == data for
// every valid encoding.
func NewHeapPage(pid common.PageID, data []byte, desc *TupleDesc) *HeapPage {
	common.Assert(len(data) == common.PageSize, "page buffer must be exactly PageSize")
	numSlots := SlotsPerPage(desc)
	hp := &HeapPage{
		pid:      pid,
		desc:     desc,
		numSlots: numSlots,
		header:   make([]byte, headerBytes(numSlots)),
		tuples:   make([]*Tuple, numSlots),
	}
	copy(hp.header, data[:len(hp.header)])
	for slot := 0; slot < numSlots; slot++ {
		if !hp.slotUsed(slot) {
			continue
		}
		off := len(hp.header) + slot*desc.Size()
		t := ReadTuple(desc, data[off:off+desc.Size()])
		rid := common.RecordID{PageID: pid, Slot: int32(slot)}
		t.SetRID(&rid)
		hp.tuples[slot] = t
	}
	return hp
}

// ID returns the page's identity.
func (hp *HeapPage) ID() common.PageID {
	return hp.pid
}

// Desc returns the schema of the tuples stored on this page.
func (hp *HeapPage) Desc() *TupleDesc {
	return hp.desc
}

// NumSlots returns the fixed slot count N.
func (hp *HeapPage) NumSlots() int {
	return hp.numSlots
}

func (hp *HeapPage) slotUsed(slot int) bool {
	return hp.header[slot/8]&(1<<(slot%8)) != 0
}

func (hp *HeapPage) setSlot(slot int, used bool) {
	if used {
		hp.header[slot/8] |= 1 << (slot % 8)
	} else {
		hp.header[slot/8] &^= 1 << (slot % 8)
	}
}

// IsSlotUsed reports whether slot holds a tuple.
func (hp *HeapPage) IsSlotUsed(slot int) bool {
	common.Assert(slot >= 0 && slot < hp.numSlots, "slot out of bounds")
	return hp.slotUsed(slot)
}

// NumEmptySlots returns the number of free slots on the page.
func (hp *HeapPage) NumEmptySlots() int {
	empty := 0
	for slot := 0; slot < hp.numSlots; slot++ {
		if !hp.slotUsed(slot) {
			empty++
		}
	}
	return empty
}

// InsertTuple places t in the lowest-indexed empty slot, sets the slot's
// header bit, and stamps t's record id. Fails with SchemaMismatchError if
// t's descriptor differs from the page's, and with PageFullError if no slot
// is free.
func (hp *HeapPage) InsertTuple(t *Tuple) error {
	if !t.Desc().Equals(hp.desc) {
		return common.NewDBError(common.SchemaMismatchError,
			"tuple schema [%s] does not match page schema [%s]", t.Desc(), hp.desc)
	}
	for slot := 0; slot < hp.numSlots; slot++ {
		if hp.slotUsed(slot) {
			continue
		}
		hp.setSlot(slot, true)
		hp.tuples[slot] = t
		rid := common.RecordID{PageID: hp.pid, Slot: int32(slot)}
		t.SetRID(&rid)
		return nil
	}
	return common.NewDBError(common.PageFullError, "no empty slot on %s", hp.pid)
}

// DeleteTuple clears the slot named by t's record id. Fails with
// NoSuchTupleError if t has no record id, the record id names another page,
// or the slot is already empty. On success t's record id is cleared.
func (hp *HeapPage) DeleteTuple(t *Tuple) error {
	rid := t.RID()
	if rid == nil {
		return common.NewDBError(common.NoSuchTupleError, "tuple has no record id")
	}
	if rid.PageID != hp.pid {
		return common.NewDBError(common.NoSuchTupleError,
			"%s does not refer to %s", rid, hp.pid)
	}
	slot := int(rid.Slot)
	common.Assert(slot >= 0 && slot < hp.numSlots, "slot out of bounds")
	if !hp.slotUsed(slot) {
		return common.NewDBError(common.NoSuchTupleError, "slot %d of %s is empty", slot, hp.pid)
	}
	hp.setSlot(slot, false)
	hp.tuples[slot] = nil
	t.SetRID(nil)
	return nil
}

// MarkDirty flags the page as modified by tid (or clears the flag).
func (hp *HeapPage) MarkDirty(dirty bool, tid common.TransactionID) {
	hp.dirty = dirty
	if dirty {
		hp.dirtier = tid
	} else {
		hp.dirtier = common.InvalidTransactionID
	}
}

// Dirtier returns the transaction that dirtied the page, if any.
func (hp *HeapPage) Dirtier() (common.TransactionID, bool) {
	return hp.dirtier, hp.dirty
}

// Data returns the exact PageSize-byte serialization of the page: header
// bitmap, then each slot's tuple bytes (zeros for empty slots), then zero
// padding.
func (hp *HeapPage) Data() []byte {
	data := make([]byte, common.PageSize)
	copy(data, hp.header)
	width := hp.desc.Size()
	for slot := 0; slot < hp.numSlots; slot++ {
		if hp.tuples[slot] == nil {
			continue
		}
		off := len(hp.header) + slot*width
		hp.tuples[slot].WriteTo(data[off : off+width])
	}
	return data
}

// Iterator returns a lazy cursor over the occupied slots in ascending
// order. The cursor is not restartable; callers rewind by requesting a
// fresh iterator.
func (hp *HeapPage) Iterator() *HeapPageIterator {
	return &HeapPageIterator{page: hp, slot: -1}
}

// HeapPageIterator walks the occupied slots of a single page.
type HeapPageIterator struct {
	page *HeapPage
	slot int
}

// HasNext reports whether another occupied slot remains.
func (it *HeapPageIterator) HasNext() bool {
	for s := it.slot + 1; s < it.page.numSlots; s++ {
		if it.page.slotUsed(s) {
			return true
		}
	}
	return false
}

// Next returns the tuple in the next occupied slot, or nil when exhausted.
func (it *HeapPageIterator) Next() *Tuple {
	for s := it.slot + 1; s < it.page.numSlots; s++ {
		if it.page.slotUsed(s) {
			it.slot = s
			return it.page.tuples[s]
		}
	}
	it.slot = it.page.numSlots
	return nil
}
