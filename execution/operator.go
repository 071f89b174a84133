package execution

import (
	"mit.edu/dsg/heapdb/common"
	"mit.edu/dsg/heapdb/storage"
)

// Operator is a node in a pipelined, pull-based execution tree. Tuples flow
// upward one Next call at a time; a tree runs single-threaded within its
// transaction.
//
// Contract: Next returns nil once the operator is exhausted; HasNext is
// idempotent between consecutive Next calls; calling either before Open or
// after Close is a programmer error and panics. Tuples returned by Next are
// borrowed: a parent must not retain one past its following Next call.
type Operator interface {
	// Open prepares the operator (and its children) to produce tuples.
	Open() error
	// HasNext reports whether another tuple is available.
	HasNext() (bool, error)
	// Next returns the next tuple, or nil past end-of-stream.
	Next() (*storage.Tuple, error)
	// Rewind resets the stream to the first tuple.
	Rewind() error
	// Close releases the operator's resources; Open may be called again.
	Close() error
	// Desc returns the schema of the tuples this operator produces.
	Desc() *storage.TupleDesc
	// Children returns the child operators, if any.
	Children() []Operator
	// SetChildren replaces the child operators.
	SetChildren(children []Operator)
}

// fetcher is the one method each concrete operator contributes to the
// shared Next/HasNext machinery: produce the next tuple or nil at
// end-of-stream.
type fetcher interface {
	fetchNext() (*storage.Tuple, error)
}

// opBase implements the lookahead template shared by every operator:
// HasNext pulls one tuple ahead and caches it, Next hands the cached tuple
// out, and both enforce the open/closed state machine.
type opBase struct {
	self    fetcher
	opened  bool
	pending *storage.Tuple
}

func (b *opBase) openBase() {
	common.Assert(!b.opened, "operator already open")
	b.opened = true
	b.pending = nil
}

func (b *opBase) closeBase() {
	b.opened = false
	b.pending = nil
}

func (b *opBase) clearPending() {
	b.pending = nil
}

func (b *opBase) HasNext() (bool, error) {
	common.Assert(b.opened, "HasNext called on closed operator")
	if b.pending == nil {
		t, err := b.self.fetchNext()
		if err != nil {
			return false, err
		}
		b.pending = t
	}
	return b.pending != nil, nil
}

func (b *opBase) Next() (*storage.Tuple, error) {
	common.Assert(b.opened, "Next called on closed operator")
	ok, err := b.HasNext()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	t := b.pending
	b.pending = nil
	return t, nil
}
