package catalog

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/puzpuzpuz/xsync/v3"

	"mit.edu/dsg/heapdb/common"
	"mit.edu/dsg/heapdb/storage"
)

// Catalog maps table names and ids to their heap files and schemas. It is
// the FileResolver the buffer pool consults on every page miss.
//
// The catalog is treated as immutable during concurrent operation: tables
// are registered single-threaded at bootstrap, after which lookups are
// read-only. Table ids come from the heap file (a hash of its absolute
// path), which is stable per path but changes when the file moves, and
// distinct paths may collide; a collision is rejected at registration.
type Catalog struct {
	byName *xsync.MapOf[string, *Table]
	byID   *xsync.MapOf[common.TableID, *Table]
}

// Column is one field of a table schema.
type Column struct {
	Name string      `json:"name"`
	Type common.Type `json:"type"`
}

// Table groups a registered table's metadata with its open heap file.
type Table struct {
	Name       string   `json:"name"`
	File       string   `json:"file"`
	PrimaryKey string   `json:"primary_key,omitempty"`
	Columns    []Column `json:"columns"`

	dbFile storage.DBFile
	desc   *storage.TupleDesc
}

// ID returns the table's id, derived from its file.
func (t *Table) ID() common.TableID {
	return t.dbFile.ID()
}

// DBFile returns the table's heap file.
func (t *Table) DBFile() storage.DBFile {
	return t.dbFile
}

// Desc returns the table's schema.
func (t *Table) Desc() *storage.TupleDesc {
	return t.desc
}

func descOf(columns []Column) *storage.TupleDesc {
	types := make([]common.Type, len(columns))
	names := make([]string, len(columns))
	for i, c := range columns {
		types[i] = c.Type
		names[i] = c.Name
	}
	return storage.NewTupleDesc(types, names)
}

// NewCatalog creates an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{
		byName: xsync.NewMapOf[string, *Table](),
		byID:   xsync.NewMapOf[common.TableID, *Table](),
	}
}

// AddTable registers a heap file under a table name. The file's schema must
// match the declared columns; pkey names the primary-key column (may be
// empty). Registering a duplicate name, or a file whose derived id collides
// with an existing table, fails with DuplicateObjectError.
func (c *Catalog) AddTable(file storage.DBFile, name string, columns []Column, pkey string) (*Table, error) {
	desc := descOf(columns)
	common.Assert(desc.Equals(file.Desc()), "declared columns do not match file schema for %q", name)

	t := &Table{
		Name:       name,
		PrimaryKey: pkey,
		Columns:    columns,
		dbFile:     file,
		desc:       desc,
	}
	if hf, ok := file.(*storage.HeapFile); ok {
		t.File = hf.Path()
	}
	if _, loaded := c.byName.LoadOrStore(name, t); loaded {
		return nil, common.NewDBError(common.DuplicateObjectError, "table %q already exists", name)
	}
	if _, loaded := c.byID.LoadOrStore(file.ID(), t); loaded {
		c.byName.Delete(name)
		return nil, common.NewDBError(common.DuplicateObjectError,
			"table id %d (path hash) collides with an existing table", file.ID())
	}
	return t, nil
}

// GetTable fetches a table by name.
func (c *Catalog) GetTable(name string) (*Table, error) {
	t, ok := c.byName.Load(name)
	if !ok {
		return nil, common.NewDBError(common.NoSuchObjectError, "table %q does not exist", name)
	}
	return t, nil
}

// GetTableByID fetches a table by id.
func (c *Catalog) GetTableByID(id common.TableID) (*Table, error) {
	t, ok := c.byID.Load(id)
	if !ok {
		return nil, common.NewDBError(common.NoSuchObjectError, "table id %d does not exist", id)
	}
	return t, nil
}

// DatabaseFile implements storage.FileResolver.
func (c *Catalog) DatabaseFile(id common.TableID) (storage.DBFile, error) {
	t, err := c.GetTableByID(id)
	if err != nil {
		return nil, err
	}
	return t.dbFile, nil
}

// Range calls fn for every registered table until it returns false.
func (c *Catalog) Range(fn func(*Table) bool) {
	c.byName.Range(func(_ string, t *Table) bool {
		return fn(t)
	})
}

// Save writes the catalog's metadata as a JSON blob, atomically via a
// temporary file.
func (c *Catalog) Save(path string) error {
	var tables []*Table
	c.Range(func(t *Table) bool {
		tables = append(tables, t)
		return true
	})
	blob, err := json.MarshalIndent(map[string]any{"tables": tables}, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, blob, 0644); err != nil {
		return common.WrapIO(err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return common.WrapIO(err)
	}
	return nil
}

// Load reads a previously saved catalog, reopening each table's heap file
// through pool.
func (c *Catalog) Load(path string, pool *storage.BufferPool) error {
	blob, err := os.ReadFile(path)
	if err != nil {
		return common.WrapIO(err)
	}
	var state struct {
		Tables []*Table `json:"tables"`
	}
	if err := json.Unmarshal(blob, &state); err != nil {
		return fmt.Errorf("failed to parse catalog state: %w", err)
	}
	for _, t := range state.Tables {
		file, err := storage.NewHeapFile(t.File, descOf(t.Columns), pool)
		if err != nil {
			return err
		}
		if _, err := c.AddTable(file, t.Name, t.Columns, t.PrimaryKey); err != nil {
			return err
		}
	}
	return nil
}

// LoadSchema bootstraps tables from a text schema file with one table per
// line:
//
//	name (col type, col type pk, ...)
//
// where type is "int" or "string" and a trailing "pk" marks the primary
// key. Each table's heap file lives at dataDir/name.dat.
func (c *Catalog) LoadSchema(path, dataDir string, pool *storage.BufferPool) error {
	f, err := os.Open(path)
	if err != nil {
		return common.WrapIO(err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		open := strings.Index(line, "(")
		end := strings.LastIndex(line, ")")
		if open < 0 || end < open {
			return fmt.Errorf("malformed schema line: %q", line)
		}
		name := strings.TrimSpace(line[:open])
		var columns []Column
		pkey := ""
		for _, decl := range strings.Split(line[open+1:end], ",") {
			fields := strings.Fields(decl)
			if len(fields) < 2 {
				return fmt.Errorf("malformed column declaration %q in table %q", decl, name)
			}
			typ, ok := common.ParseType(fields[1])
			if !ok {
				return fmt.Errorf("unknown type %q in table %q", fields[1], name)
			}
			if len(fields) > 2 {
				if fields[2] != "pk" {
					return fmt.Errorf("unexpected token %q in table %q", fields[2], name)
				}
				pkey = fields[0]
			}
			columns = append(columns, Column{Name: fields[0], Type: typ})
		}
		file, err := storage.NewHeapFile(filepath.Join(dataDir, name+".dat"), descOf(columns), pool)
		if err != nil {
			return err
		}
		if _, err := c.AddTable(file, name, columns, pkey); err != nil {
			return err
		}
	}
	return scanner.Err()
}
