package transaction

import (
	"sync/atomic"

	"mit.edu/dsg/heapdb/common"
)

// IDAllocator hands out monotonically increasing transaction ids. The id
// doubles as the wound-wait priority: lower ids are older and win
// conflicts. Ids are unique for the process lifetime; zero is never issued.
type IDAllocator struct {
	next atomic.Uint64
}

// NewIDAllocator creates an allocator whose first id is 1.
func NewIDAllocator() *IDAllocator {
	return &IDAllocator{}
}

// Next returns a fresh transaction id.
func (a *IDAllocator) Next() common.TransactionID {
	return common.TransactionID(a.next.Add(1))
}
