package common

import "fmt"

// PageSize is the fixed size, in bytes, of every page in the system. It must
// not change while any heap file is open; tests may adjust it before opening
// a database.
var PageSize = 4096

const (
	// IntSize is the serialized size of an IntType field (big-endian int32).
	IntSize = 4
	// StringLength is the fixed payload length L of a StringType field.
	StringLength = 128
	// StringFieldSize is the serialized size of a StringType field:
	// a 4-byte big-endian length prefix followed by L payload bytes.
	StringFieldSize = IntSize + StringLength
)

// DefaultPoolPages is the default buffer pool capacity, in pages.
const DefaultPoolPages = 50

type Type int8

const (
	// For uninitialized Values
	DefaultType Type = iota
	IntType
	StringType
)

// Size returns the fixed-width storage size of the type in bytes.
func (t Type) Size() int {
	switch t {
	case IntType:
		return IntSize
	case StringType:
		return StringFieldSize
	default:
		panic("unknown type")
	}
}

func (t Type) String() string {
	switch t {
	case IntType:
		return "int"
	case StringType:
		return "string"
	}
	return "unknown"
}

// ParseType maps a schema-file type name to a Type.
func ParseType(s string) (Type, bool) {
	switch s {
	case "int":
		return IntType, true
	case "string":
		return StringType, true
	}
	return DefaultType, false
}

// TableID identifies a table. It is derived from the hash of the absolute
// path of the table's backing file, so it is stable across runs for the same
// path. Moving the file changes the id, and distinct paths may collide; the
// catalog rejects registrations that collide.
type TableID int32

// PageID uniquely identifies a page within the database.
type PageID struct {
	Table   TableID
	PageNum int32
}

func (p PageID) String() string {
	return fmt.Sprintf("Page(%d, %d)", p.Table, p.PageNum)
}

// RecordID identifies a specific tuple (row) via its PageID and slot index.
type RecordID struct {
	PageID
	Slot int32
}

func (r RecordID) String() string {
	return fmt.Sprintf("rid(%s, %d)", r.PageID.String(), r.Slot)
}

// TransactionID orders transactions by age: lower ids are older and win
// wound-wait conflicts. Zero is never a valid id.
type TransactionID uint64

const InvalidTransactionID TransactionID = 0

// Permissions describes the access a caller requests on a page.
type Permissions int

const (
	ReadOnly Permissions = iota
	ReadWrite
)

func (p Permissions) String() string {
	if p == ReadWrite {
		return "READ_WRITE"
	}
	return "READ_ONLY"
}
