// Package heapdb wires the storage engine together: a catalog of heap
// files, a lock manager, and the buffer pool every page access goes
// through. There are no process-global singletons; components hold the
// Database handle (or the specific collaborator they need) by reference.
package heapdb

import (
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"mit.edu/dsg/heapdb/catalog"
	"mit.edu/dsg/heapdb/common"
	"mit.edu/dsg/heapdb/storage"
	"mit.edu/dsg/heapdb/transaction"
)

// CatalogFileName is where a database directory persists its schema.
const CatalogFileName = "catalog.json"

// Database is the top-level container for one database instance.
type Database struct {
	Catalog     *catalog.Catalog
	BufferPool  *storage.BufferPool
	LockManager *transaction.LockManager

	dataDir string
	ids     *transaction.IDAllocator
	log     *logrus.Entry
}

// Open initializes a database rooted at dataDir, creating the directory if
// needed and loading a persisted catalog if one exists. poolPages bounds
// the buffer pool; pass 0 for the default.
func Open(dataDir string, poolPages int) (*Database, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, err
	}

	log := logrus.WithField("dir", dataDir)

	cat := catalog.NewCatalog()
	locks := transaction.NewLockManager()
	pool := storage.NewBufferPool(poolPages, cat, locks)

	catalogPath := filepath.Join(dataDir, CatalogFileName)
	if _, err := os.Stat(catalogPath); err == nil {
		if err := cat.Load(catalogPath, pool); err != nil {
			return nil, err
		}
		log.Info("loaded persisted catalog")
	}

	log.WithField("pool_pages", poolPages).Info("database open")
	return &Database{
		Catalog:     cat,
		BufferPool:  pool,
		LockManager: locks,
		dataDir:     dataDir,
		ids:         transaction.NewIDAllocator(),
		log:         log,
	}, nil
}

// DataDir returns the database's root directory.
func (db *Database) DataDir() string {
	return db.dataDir
}

// CreateTable creates a heap file for a new table, registers it, and
// persists the catalog.
func (db *Database) CreateTable(name string, columns []catalog.Column, pkey string) (*catalog.Table, error) {
	types := make([]common.Type, len(columns))
	names := make([]string, len(columns))
	for i, c := range columns {
		types[i] = c.Type
		names[i] = c.Name
	}
	desc := storage.NewTupleDesc(types, names)

	file, err := storage.NewHeapFile(filepath.Join(db.dataDir, name+".dat"), desc, db.BufferPool)
	if err != nil {
		return nil, err
	}
	t, err := db.Catalog.AddTable(file, name, columns, pkey)
	if err != nil {
		file.Close()
		return nil, err
	}
	if err := db.Catalog.Save(filepath.Join(db.dataDir, CatalogFileName)); err != nil {
		return nil, err
	}
	db.log.WithField("table", name).Info("created table")
	return t, nil
}

// LoadSchema bootstraps tables from a text schema file (see
// catalog.LoadSchema) and persists the resulting catalog.
func (db *Database) LoadSchema(path string) error {
	if err := db.Catalog.LoadSchema(path, db.dataDir, db.BufferPool); err != nil {
		return err
	}
	return db.Catalog.Save(filepath.Join(db.dataDir, CatalogFileName))
}

// Begin starts a new transaction and returns its id.
func (db *Database) Begin() common.TransactionID {
	tid := db.ids.Next()
	db.log.WithField("tid", tid).Debug("begin")
	return tid
}

// Commit completes tid, forcing its dirty pages to disk and releasing its
// locks.
func (db *Database) Commit(tid common.TransactionID) error {
	db.log.WithField("tid", tid).Debug("commit")
	return db.BufferPool.TransactionComplete(tid, true)
}

// Abort rolls tid back, discarding its in-memory page versions and
// releasing its locks. Call this whenever an operation surfaces a
// TransactionAbortedError.
func (db *Database) Abort(tid common.TransactionID) error {
	db.log.WithField("tid", tid).Debug("abort")
	return db.BufferPool.TransactionComplete(tid, false)
}

// Close shuts the database down. Committed state is already on disk
// (commits force their pages), so this only closes file handles.
func (db *Database) Close() error {
	var firstErr error
	db.Catalog.Range(func(t *catalog.Table) bool {
		if hf, ok := t.DBFile().(*storage.HeapFile); ok {
			if err := hf.Close(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
		return true
	})
	db.log.Info("database closed")
	return firstErr
}
