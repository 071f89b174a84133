package storage

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync/atomic"

	"mit.edu/dsg/heapdb/common"
)

// DBFile abstracts the on-disk store of one table. It handles page-level
// reads and writes and tuple-level mutation; all tuple access must be
// mediated by the buffer pool so the lock manager sees it.
type DBFile interface {
	// ID returns the stable table id of this file.
	ID() common.TableID
	// Desc returns the schema of the tuples stored in this file.
	Desc() *TupleDesc
	// ReadPage reads the page identified by pid directly from disk,
	// bypassing the buffer pool. Only the buffer pool should call this.
	ReadPage(pid common.PageID) (Page, error)
	// WritePage writes the page's serialization at its offset, extending
	// the file if needed.
	WritePage(p Page) error
	// NumPages returns the number of pages currently in the file.
	NumPages() int
	// InsertTuple adds t to the file on behalf of tid and returns the pages
	// that were modified.
	InsertTuple(tid common.TransactionID, t *Tuple) ([]Page, error)
	// DeleteTuple removes t (located by its record id) on behalf of tid and
	// returns the page that was modified.
	DeleteTuple(tid common.TransactionID, t *Tuple) (Page, error)
	// Iterator returns a cursor over every tuple in the file. Pages are
	// fetched through the buffer pool with read permission.
	Iterator(tid common.TransactionID) DBFileIterator
}

// DBFileIterator is the restartable cursor over a file's tuples.
type DBFileIterator interface {
	Open() error
	HasNext() (bool, error)
	Next() (*Tuple, error)
	Rewind() error
	Close()
}

// FileResolver maps table ids to their files. The catalog is the production
// implementation; tests substitute small map-backed resolvers.
type FileResolver interface {
	DatabaseFile(id common.TableID) (DBFile, error)
}

// HeapFile stores tuples of a single table in no particular order, as a
// sequence of PageSize-byte heap pages. Its id is derived from the hash of
// the backing file's absolute path, so the same path yields the same id
// across runs.
type HeapFile struct {
	file *os.File
	path string
	id   common.TableID
	desc *TupleDesc
	pool *BufferPool

	// visible is the logical page count: the high-water mark of pages handed
	// to inserts, which may exceed the physical count until the dirtying
	// transaction commits and the pages are flushed. Scans iterate up to
	// this mark so a transaction sees its own uncommitted inserts; after an
	// abort the excess pages read back as empty, which is harmless.
	visible atomic.Int32
}

var _ DBFile = (*HeapFile)(nil)

// NewHeapFile opens (creating if needed) the heap file at path with the
// given schema. Tuple access goes through pool for locking.
func NewHeapFile(path string, desc *TupleDesc, pool *BufferPool) (*HeapFile, error) {
	common.Assert(SlotsPerPage(desc) > 0, "tuple width %d leaves no room on a page", desc.Size())
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, common.WrapIO(err)
	}
	f, err := os.OpenFile(abs, os.O_RDWR|os.O_CREATE, 0666)
	if err != nil {
		return nil, common.WrapIO(err)
	}
	hf := &HeapFile{
		file: f,
		path: abs,
		id:   common.TableID(int32(common.Hash([]byte(abs)))),
		desc: desc,
		pool: pool,
	}
	hf.visible.Store(int32(hf.NumPages()))
	return hf, nil
}

// ID returns the stable table id of this file.
func (f *HeapFile) ID() common.TableID {
	return f.id
}

// Desc returns the schema of the tuples stored in this file.
func (f *HeapFile) Desc() *TupleDesc {
	return f.desc
}

// Path returns the absolute path of the backing file.
func (f *HeapFile) Path() string {
	return f.path
}

// Close closes the underlying OS file.
func (f *HeapFile) Close() error {
	return f.file.Close()
}

// NumPages returns ceil(fileSize / PageSize).
func (f *HeapFile) NumPages() int {
	stat, err := f.file.Stat()
	if err != nil {
		return 0
	}
	return int((stat.Size() + int64(common.PageSize) - 1) / int64(common.PageSize))
}

// ReadPage reads the page at pid's offset. An offset at or past end-of-file
// yields a zero-initialized (all slots empty) page, which is how the insert
// path grows the file without a separate append call. A short final page is
// tolerated and zero-filled.
func (f *HeapFile) ReadPage(pid common.PageID) (Page, error) {
	common.Assert(pid.Table == f.id, "page %s read from file %d", pid, f.id)
	common.Assert(pid.PageNum >= 0, "negative page number")
	data := make([]byte, common.PageSize)
	offset := int64(pid.PageNum) * int64(common.PageSize)
	_, err := f.file.ReadAt(data, offset)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return nil, common.WrapIO(err)
	}
	return NewHeapPage(pid, data, f.desc), nil
}

// WritePage writes the page's serialization at its offset, extending the
// file if the page lies past the current end.
func (f *HeapFile) WritePage(p Page) error {
	pid := p.ID()
	common.Assert(pid.Table == f.id, "page %s written to file %d", pid, f.id)
	offset := int64(pid.PageNum) * int64(common.PageSize)
	if _, err := f.file.WriteAt(p.Data(), offset); err != nil {
		return common.WrapIO(err)
	}
	return nil
}

// Sync forces buffered writes to stable storage.
func (f *HeapFile) Sync() error {
	return f.file.Sync()
}

// InsertTuple acquires write access to pages 0, 1, 2, ... through the buffer
// pool until one has an empty slot, then places t there. When every existing
// page is full the walk reaches the page one past the end, which reads as a
// fresh empty page; writing it back at commit grows the file.
func (f *HeapFile) InsertTuple(tid common.TransactionID, t *Tuple) ([]Page, error) {
	if !t.Desc().Equals(f.desc) {
		return nil, common.NewDBError(common.SchemaMismatchError,
			"tuple schema [%s] does not match table schema [%s]", t.Desc(), f.desc)
	}
	for pageNo := int32(0); ; pageNo++ {
		pid := common.PageID{Table: f.id, PageNum: pageNo}
		page, err := f.pool.GetPage(tid, pid, common.ReadWrite)
		if err != nil {
			return nil, err
		}
		hp := page.(*HeapPage)
		if hp.NumEmptySlots() == 0 {
			continue
		}
		if err := hp.InsertTuple(t); err != nil {
			return nil, err
		}
		hp.MarkDirty(true, tid)
		for {
			cur := f.visible.Load()
			if pageNo+1 <= cur || f.visible.CompareAndSwap(cur, pageNo+1) {
				break
			}
		}
		return []Page{hp}, nil
	}
}

// pageCount is the bound scans iterate to: the physical page count or the
// logical high-water mark, whichever is larger.
func (f *HeapFile) pageCount() int {
	n := f.NumPages()
	if v := int(f.visible.Load()); v > n {
		return v
	}
	return n
}

// DeleteTuple removes t from the page named by its record id.
func (f *HeapFile) DeleteTuple(tid common.TransactionID, t *Tuple) (Page, error) {
	rid := t.RID()
	if rid == nil {
		return nil, common.NewDBError(common.NoSuchTupleError, "tuple has no record id")
	}
	if rid.Table != f.id {
		return nil, common.NewDBError(common.NoSuchTupleError,
			"%s does not belong to table %d", rid, f.id)
	}
	page, err := f.pool.GetPage(tid, rid.PageID, common.ReadWrite)
	if err != nil {
		return nil, err
	}
	hp := page.(*HeapPage)
	if err := hp.DeleteTuple(t); err != nil {
		return nil, err
	}
	hp.MarkDirty(true, tid)
	return hp, nil
}

// Iterator walks the file's pages in order, fetching each through the
// buffer pool with read permission, and produces the tuples of each page's
// iterator.
func (f *HeapFile) Iterator(tid common.TransactionID) DBFileIterator {
	return &heapFileIterator{file: f, tid: tid}
}

type heapFileIterator struct {
	file     *HeapFile
	tid      common.TransactionID
	pageNo   int32
	pageIter *HeapPageIterator
}

func (it *heapFileIterator) pageIterAt(pageNo int32) (*HeapPageIterator, error) {
	if pageNo < 0 || int(pageNo) >= it.file.pageCount() {
		return nil, nil
	}
	pid := common.PageID{Table: it.file.id, PageNum: pageNo}
	page, err := it.file.pool.GetPage(it.tid, pid, common.ReadOnly)
	if err != nil {
		return nil, err
	}
	return page.(*HeapPage).Iterator(), nil
}

func (it *heapFileIterator) Open() error {
	return it.Rewind()
}

func (it *heapFileIterator) Rewind() error {
	it.pageNo = 0
	iter, err := it.pageIterAt(0)
	if err != nil {
		return err
	}
	it.pageIter = iter
	return nil
}

func (it *heapFileIterator) HasNext() (bool, error) {
	for it.pageIter != nil {
		if it.pageIter.HasNext() {
			return true, nil
		}
		it.pageNo++
		iter, err := it.pageIterAt(it.pageNo)
		if err != nil {
			return false, err
		}
		it.pageIter = iter
	}
	return false, nil
}

func (it *heapFileIterator) Next() (*Tuple, error) {
	ok, err := it.HasNext()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return it.pageIter.Next(), nil
}

func (it *heapFileIterator) Close() {
	it.pageIter = nil
}
