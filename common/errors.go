package common

import (
	"errors"
	"fmt"
)

type DBErrorCode int

const (
	// TransactionAbortedError is returned by the lock manager when a request
	// is wounded, or when a transaction already marked for abort attempts any
	// further lock acquisition. The driver must respond by aborting.
	TransactionAbortedError DBErrorCode = iota
	// PageFullError indicates an insert into a page with no empty slot.
	PageFullError
	// BufferFullError indicates the buffer pool could not make room because
	// every resident page is dirty (NO-STEAL forbids evicting them).
	BufferFullError
	// SchemaMismatchError indicates a tuple whose descriptor differs from the
	// table or page it is bound for.
	SchemaMismatchError
	// NoSuchTupleError indicates a delete of a tuple with no record id, or a
	// record id that does not refer to an occupied slot.
	NoSuchTupleError
	// DuplicateObjectError indicates an attempt to register a table that
	// already exists in the catalog.
	DuplicateObjectError
	// NoSuchObjectError indicates a request for a table that does not exist
	// in the catalog.
	NoSuchObjectError
	// IOError wraps an underlying file I/O failure surfaced across the
	// operator boundary.
	IOError
)

func (ec DBErrorCode) String() string {
	switch ec {
	case TransactionAbortedError:
		return "TransactionAbortedError"
	case PageFullError:
		return "PageFullError"
	case BufferFullError:
		return "BufferFullError"
	case SchemaMismatchError:
		return "SchemaMismatchError"
	case NoSuchTupleError:
		return "NoSuchTupleError"
	case DuplicateObjectError:
		return "DuplicateObjectError"
	case NoSuchObjectError:
		return "NoSuchObjectError"
	case IOError:
		return "IOError"
	}
	return "unknown"
}

// DBError is the single error type for all recoverable failures in the
// engine. It wraps a DBErrorCode with a detailed message so callers can
// branch on the kind (most importantly TransactionAbortedError) without
// string matching. Programmer errors are not DBErrors; they panic via Assert.
type DBError struct {
	Code      DBErrorCode
	ErrString string
}

func (e DBError) Error() string {
	return fmt.Sprintf("err: %s; msg: %s", e.Code.String(), e.ErrString)
}

// NewDBError creates a DBError with a formatted message.
func NewDBError(code DBErrorCode, format string, args ...any) DBError {
	return DBError{Code: code, ErrString: fmt.Sprintf(format, args...)}
}

// WrapIO converts a low-level I/O failure into a DBError with the IOError
// kind, preserving the original message.
func WrapIO(err error) DBError {
	return DBError{Code: IOError, ErrString: err.Error()}
}

// IsAborted reports whether err is a transaction abort. Operators never
// swallow these; the driver reacts by completing the transaction with
// commit=false.
func IsAborted(err error) bool {
	var dbe DBError
	return errors.As(err, &dbe) && dbe.Code == TransactionAbortedError
}

// HasCode reports whether err is a DBError with the given code.
func HasCode(err error, code DBErrorCode) bool {
	var dbe DBError
	return errors.As(err, &dbe) && dbe.Code == code
}
