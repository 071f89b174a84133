package execution

import (
	"mit.edu/dsg/heapdb/common"
	"mit.edu/dsg/heapdb/storage"
)

// SeqScan reads every tuple of a table in page order, wrapping the file's
// iterator. Pages are fetched through the buffer pool with read permission,
// so scans block behind writers and hold shared locks until the transaction
// completes.
type SeqScan struct {
	opBase
	tid   common.TransactionID
	file  storage.DBFile
	desc  *storage.TupleDesc
	iter  storage.DBFileIterator
}

// NewSeqScan creates a scan of file on behalf of tid. A non-empty alias
// qualifies the output column names ("alias.col").
func NewSeqScan(tid common.TransactionID, file storage.DBFile, alias string) *SeqScan {
	desc := file.Desc()
	if alias != "" {
		desc = desc.Prefixed(alias)
	}
	s := &SeqScan{tid: tid, file: file, desc: desc}
	s.self = s
	return s
}

func (s *SeqScan) Open() error {
	s.openBase()
	s.iter = s.file.Iterator(s.tid)
	return s.iter.Open()
}

func (s *SeqScan) fetchNext() (*storage.Tuple, error) {
	return s.iter.Next()
}

func (s *SeqScan) Rewind() error {
	s.clearPending()
	return s.iter.Rewind()
}

func (s *SeqScan) Close() error {
	if s.iter != nil {
		s.iter.Close()
		s.iter = nil
	}
	s.closeBase()
	return nil
}

func (s *SeqScan) Desc() *storage.TupleDesc {
	return s.desc
}

func (s *SeqScan) Children() []Operator {
	return nil
}

func (s *SeqScan) SetChildren(children []Operator) {
	common.Assert(len(children) == 0, "SeqScan has no children")
}
