package common

import "fmt"

// Assert checks a condition and panics if it is false.
//
// Recoverable conditions (bad user input, I/O failures, aborts) return
// DBError instead. Assert is for invariants: a violated assertion means the
// engine's internal logic is broken and continuing would risk persisting
// corrupted state, so we crash with a stack trace pointing at the bug.
func Assert(cond bool, format string, args ...any) {
	if !cond {
		panic(fmt.Sprintf(format, args...))
	}
}

const (
	offset64 = 14695981039346656037
	prime64  = 1099511628211
)

// Hash computes the FNV-1a 64-bit hash of the provided byte slice without
// allocation. Table ids are derived from this hash of the backing file's
// absolute path.
func Hash(data []byte) uint64 {
	var h uint64 = offset64
	for _, b := range data {
		h ^= uint64(b)
		h *= prime64
	}
	return h
}
