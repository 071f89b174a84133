package storage

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mit.edu/dsg/heapdb/common"
)

func intPairDesc() *TupleDesc {
	return NewTupleDesc([]common.Type{common.IntType, common.IntType}, []string{"a", "b"})
}

func intPair(desc *TupleDesc, a, b int32) *Tuple {
	t := NewTuple(desc)
	t.SetValue(0, NewIntValue(a))
	t.SetValue(1, NewIntValue(b))
	return t
}

func TestSlotsPerPage(t *testing.T) {
	desc := intPairDesc()
	// Each 8-byte tuple costs 65 bits: 4096*8 / 65 = 504.
	assert.Equal(t, 504, SlotsPerPage(desc))
}

func TestHeapPageInsertUntilFull(t *testing.T) {
	desc := intPairDesc()
	pid := common.PageID{Table: 1, PageNum: 0}
	hp := NewHeapPage(pid, EmptyPageData(), desc)

	numSlots := hp.NumSlots()
	assert.Equal(t, numSlots, hp.NumEmptySlots())

	for i := 0; i < numSlots; i++ {
		tup := intPair(desc, int32(i), int32(i*10))
		require.NoError(t, hp.InsertTuple(tup))
		require.NotNil(t, tup.RID())
		assert.Equal(t, pid, tup.RID().PageID)
		assert.Equal(t, int32(i), tup.RID().Slot, "lowest-indexed empty slot first")
	}
	assert.Equal(t, 0, hp.NumEmptySlots())

	err := hp.InsertTuple(intPair(desc, 1, 1))
	assert.True(t, common.HasCode(err, common.PageFullError))
}

func TestHeapPageInsertSchemaMismatch(t *testing.T) {
	hp := NewHeapPage(common.PageID{Table: 1}, EmptyPageData(), intPairDesc())
	other := NewTupleDesc([]common.Type{common.IntType}, nil)
	tup := NewTuple(other)
	tup.SetValue(0, NewIntValue(5))
	err := hp.InsertTuple(tup)
	assert.True(t, common.HasCode(err, common.SchemaMismatchError))
}

func TestHeapPageDelete(t *testing.T) {
	desc := intPairDesc()
	pid := common.PageID{Table: 1, PageNum: 0}
	hp := NewHeapPage(pid, EmptyPageData(), desc)

	tup := intPair(desc, 7, 70)
	require.NoError(t, hp.InsertTuple(tup))
	require.True(t, hp.IsSlotUsed(0))

	require.NoError(t, hp.DeleteTuple(tup))
	assert.False(t, hp.IsSlotUsed(0))
	assert.Nil(t, tup.RID(), "record id cleared on delete")

	// Deleting again fails: no record id
	err := hp.DeleteTuple(tup)
	assert.True(t, common.HasCode(err, common.NoSuchTupleError))

	// A tuple from another page fails
	foreign := intPair(desc, 1, 2)
	rid := common.RecordID{PageID: common.PageID{Table: 1, PageNum: 9}, Slot: 0}
	foreign.SetRID(&rid)
	err = hp.DeleteTuple(foreign)
	assert.True(t, common.HasCode(err, common.NoSuchTupleError))

	// A cleared slot fails
	ghost := intPair(desc, 1, 2)
	gone := common.RecordID{PageID: pid, Slot: 0}
	ghost.SetRID(&gone)
	err = hp.DeleteTuple(ghost)
	assert.True(t, common.HasCode(err, common.NoSuchTupleError))

	// The freed slot is reused first
	again := intPair(desc, 8, 80)
	require.NoError(t, hp.InsertTuple(again))
	assert.Equal(t, int32(0), again.RID().Slot)
}

func TestHeapPageIterator(t *testing.T) {
	desc := intPairDesc()
	hp := NewHeapPage(common.PageID{Table: 1}, EmptyPageData(), desc)

	var inserted []*Tuple
	for i := 0; i < 10; i++ {
		tup := intPair(desc, int32(i), int32(i))
		require.NoError(t, hp.InsertTuple(tup))
		inserted = append(inserted, tup)
	}
	// Punch holes so iteration has to skip empty slots
	require.NoError(t, hp.DeleteTuple(inserted[3]))
	require.NoError(t, hp.DeleteTuple(inserted[7]))

	it := hp.Iterator()
	var got []int32
	for it.HasNext() {
		got = append(got, it.Next().GetValue(0).IntValue())
	}
	assert.Equal(t, []int32{0, 1, 2, 4, 5, 6, 8, 9}, got, "ascending slot order")
	assert.Nil(t, it.Next(), "nil past the last occupied slot")
}

func TestHeapPageDataRoundTrip(t *testing.T) {
	desc := NewTupleDesc([]common.Type{common.IntType, common.StringType}, []string{"id", "name"})
	pid := common.PageID{Table: 3, PageNum: 5}
	hp := NewHeapPage(pid, EmptyPageData(), desc)

	for i := 0; i < 20; i++ {
		tup := NewTuple(desc)
		tup.SetValue(0, NewIntValue(int32(i)))
		tup.SetValue(1, NewStringValue(fmt.Sprintf("val-%d", i)))
		require.NoError(t, hp.InsertTuple(tup))
	}
	// Punch a hole to exercise an empty slot between occupied ones
	victim := NewTuple(desc)
	victim.SetValue(0, NewIntValue(0))
	victim.SetValue(1, NewStringValue("x"))
	rid := common.RecordID{PageID: pid, Slot: 4}
	victim.SetRID(&rid)
	require.NoError(t, hp.DeleteTuple(victim))

	data := hp.Data()
	require.Len(t, data, common.PageSize)

	reloaded := NewHeapPage(pid, data, desc)
	assert.Equal(t, data, reloaded.Data(), "serialization is a fixed point")
	assert.Equal(t, hp.NumEmptySlots(), reloaded.NumEmptySlots())

	it := reloaded.Iterator()
	count := 0
	for it.HasNext() {
		tup := it.Next()
		id := tup.GetValue(0).IntValue()
		assert.Equal(t, fmt.Sprintf("val-%d", id), tup.GetValue(1).StringValue())
		require.NotNil(t, tup.RID())
		count++
	}
	assert.Equal(t, 19, count)
}

func TestHeapPageEmptyRoundTrip(t *testing.T) {
	desc := intPairDesc()
	hp := NewHeapPage(common.PageID{Table: 1}, EmptyPageData(), desc)
	assert.Equal(t, EmptyPageData(), hp.Data())
}

func TestHeapPageDirtyTracking(t *testing.T) {
	hp := NewHeapPage(common.PageID{Table: 1}, EmptyPageData(), intPairDesc())

	_, dirty := hp.Dirtier()
	assert.False(t, dirty)

	hp.MarkDirty(true, 42)
	tid, dirty := hp.Dirtier()
	assert.True(t, dirty)
	assert.Equal(t, common.TransactionID(42), tid)

	hp.MarkDirty(false, 0)
	_, dirty = hp.Dirtier()
	assert.False(t, dirty)
}
