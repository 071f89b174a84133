package storage

import (
	"encoding/binary"
	"fmt"
	"strings"

	"mit.edu/dsg/heapdb/common"
)

// Value represents one typed field of a tuple. Values are immutable.
type Value struct {
	t common.Type
	i int32
	s string
}

// NewIntValue creates a new integer Value.
func NewIntValue(v int32) Value {
	return Value{t: common.IntType, i: v}
}

// NewStringValue creates a new string Value.
func NewStringValue(v string) Value {
	if len(v) > common.StringLength {
		panic("string too long")
	}
	return Value{t: common.StringType, s: v}
}

// Type returns the type of the Value.
func (v Value) Type() common.Type {
	return v.t
}

// IsNil returns true if the Value is the uninitialized zero value.
func (v Value) IsNil() bool {
	return v.t == common.DefaultType
}

// IntValue returns the underlying integer.
func (v Value) IntValue() int32 {
	common.Assert(v.t == common.IntType, "type mismatch in IntValue")
	return v.i
}

// StringValue returns the underlying string.
func (v Value) StringValue() string {
	common.Assert(v.t == common.StringType, "type mismatch in StringValue")
	return v.s
}

// WriteTo serializes the Value into storage format: big-endian int32 for
// IntType; a big-endian int32 length prefix followed by StringLength payload
// bytes (zero-padded) for StringType.
func (v Value) WriteTo(data []byte) {
	common.Assert(len(data) >= v.t.Size(), "buffer too small")
	switch v.t {
	case common.IntType:
		binary.BigEndian.PutUint32(data, uint32(v.i))
	case common.StringType:
		binary.BigEndian.PutUint32(data, uint32(len(v.s)))
		n := copy(data[common.IntSize:], v.s)
		for i := common.IntSize + n; i < common.StringFieldSize; i++ {
			data[i] = 0
		}
	default:
		panic("cannot serialize uninitialized value")
	}
}

// ReadValue extracts a value of type t from a raw storage buffer.
func ReadValue(t common.Type, data []byte) Value {
	common.Assert(len(data) >= t.Size(), "buffer too small")
	switch t {
	case common.IntType:
		return NewIntValue(int32(binary.BigEndian.Uint32(data)))
	case common.StringType:
		n := int(int32(binary.BigEndian.Uint32(data)))
		if n < 0 {
			n = 0
		}
		if n > common.StringLength {
			n = common.StringLength
		}
		return NewStringValue(string(data[common.IntSize : common.IntSize+n]))
	}
	panic("unknown type")
}

// Compare compares two Values of the same type.
// Returns -1 if v < other, 0 if v == other, 1 if v > other.
func (v Value) Compare(other Value) int {
	common.Assert(v.t == other.t, "type mismatch in comparison")
	switch v.t {
	case common.IntType:
		if v.i < other.i {
			return -1
		}
		if v.i > other.i {
			return 1
		}
		return 0
	case common.StringType:
		return strings.Compare(v.s, other.s)
	}
	panic("unreachable")
}

func (v Value) String() string {
	switch v.t {
	case common.IntType:
		return fmt.Sprintf("%d", v.i)
	case common.StringType:
		return v.s
	}
	return "<nil>"
}

// TupleDesc describes the schema of a tuple: an ordered sequence of field
// types with optional names. The serialized size of every tuple conforming
// to a descriptor is fixed.
type TupleDesc struct {
	types   []common.Type
	names   []string
	offsets []int
	size    int
}

// NewTupleDesc creates a descriptor for the given field types and names.
// names may be nil, or individual entries may be empty, for anonymous
// columns.
func NewTupleDesc(types []common.Type, names []string) *TupleDesc {
	common.Assert(len(types) > 0, "descriptor must have at least one field")
	common.Assert(names == nil || len(names) == len(types), "name/type count mismatch")
	offsets := make([]int, len(types))
	size := 0
	for i, t := range types {
		offsets[i] = size
		size += t.Size()
	}
	common.Assert(size <= common.PageSize, "tuple size exceeds page size")
	if names == nil {
		names = make([]string, len(types))
	}
	return &TupleDesc{types: types, names: names, offsets: offsets, size: size}
}

// NumFields returns the number of fields in the schema.
func (desc *TupleDesc) NumFields() int {
	return len(desc.types)
}

// FieldType returns the type of the field at index i.
func (desc *TupleDesc) FieldType(i int) common.Type {
	return desc.types[i]
}

// FieldName returns the name of the field at index i, possibly empty.
func (desc *TupleDesc) FieldName(i int) string {
	return desc.names[i]
}

// IndexOf returns the index of the named field, or -1 if no field has that
// name. An exact match wins; otherwise an unqualified "name" also matches a
// field whose qualified name is "alias.name".
func (desc *TupleDesc) IndexOf(name string) int {
	for i, n := range desc.names {
		if n == name {
			return i
		}
	}
	// Fall back to matching the unqualified suffix
	for i, n := range desc.names {
		if j := strings.LastIndex(n, "."); j >= 0 && n[j+1:] == name {
			return i
		}
	}
	return -1
}

// Size returns the fixed serialized size of a conforming tuple, in bytes.
func (desc *TupleDesc) Size() int {
	return desc.size
}

// Equals reports whether two descriptors describe the same physical layout.
// Field names do not participate: a scan aliased as "t" still produces
// tuples insertable into the unaliased table.
func (desc *TupleDesc) Equals(other *TupleDesc) bool {
	if other == nil || len(desc.types) != len(other.types) {
		return false
	}
	for i, t := range desc.types {
		if t != other.types[i] {
			return false
		}
	}
	return true
}

// Prefixed returns a copy of the descriptor with every field name qualified
// by the given alias.
func (desc *TupleDesc) Prefixed(alias string) *TupleDesc {
	names := make([]string, len(desc.names))
	for i, n := range desc.names {
		names[i] = alias + "." + n
	}
	return NewTupleDesc(desc.types, names)
}

// Combine merges two descriptors into one describing the concatenation of
// their fields, left fields first. Used by joins.
func Combine(left, right *TupleDesc) *TupleDesc {
	types := make([]common.Type, 0, len(left.types)+len(right.types))
	names := make([]string, 0, len(left.names)+len(right.names))
	types = append(append(types, left.types...), right.types...)
	names = append(append(names, left.names...), right.names...)
	return NewTupleDesc(types, names)
}

func (desc *TupleDesc) String() string {
	parts := make([]string, len(desc.types))
	for i, t := range desc.types {
		parts[i] = fmt.Sprintf("%s(%s)", desc.names[i], t)
	}
	return strings.Join(parts, ", ")
}

// Tuple is one row: a TupleDesc plus one Value per column, and, when the
// tuple is resident on a page, the RecordID of its slot.
type Tuple struct {
	desc   *TupleDesc
	values []Value
	rid    *common.RecordID
}

// NewTuple creates an empty tuple conforming to desc. All fields start as
// the uninitialized Value and must be set before serialization.
func NewTuple(desc *TupleDesc) *Tuple {
	return &Tuple{desc: desc, values: make([]Value, desc.NumFields())}
}

// Desc returns the schema of the tuple.
func (t *Tuple) Desc() *TupleDesc {
	return t.desc
}

// GetValue retrieves the value at field index i.
func (t *Tuple) GetValue(i int) Value {
	return t.values[i]
}

// SetValue stores val at field index i. The value's type must match the
// schema.
func (t *Tuple) SetValue(i int, val Value) {
	common.Assert(val.Type() == t.desc.FieldType(i), "type mismatch in SetValue")
	t.values[i] = val
}

// RID returns the record id of the tuple, or nil if the tuple is not
// resident on any page.
func (t *Tuple) RID() *common.RecordID {
	return t.rid
}

// SetRID stamps (or clears, with nil) the tuple's location.
func (t *Tuple) SetRID(rid *common.RecordID) {
	t.rid = rid
}

// WriteTo serializes the tuple's fields in order into buf, which must hold
// at least Desc().Size() bytes.
func (t *Tuple) WriteTo(buf []byte) {
	common.Assert(len(buf) >= t.desc.Size(), "buffer too small")
	for i, v := range t.values {
		common.Assert(!v.IsNil(), "serializing tuple with unset field %d", i)
		v.WriteTo(buf[t.desc.offsets[i]:])
	}
}

// ReadTuple deserializes a tuple conforming to desc from buf.
func ReadTuple(desc *TupleDesc, buf []byte) *Tuple {
	common.Assert(len(buf) >= desc.Size(), "buffer too small")
	t := NewTuple(desc)
	for i := range desc.types {
		t.values[i] = ReadValue(desc.types[i], buf[desc.offsets[i]:])
	}
	return t
}

// Equals reports deep value equality. Record ids do not participate.
func (t *Tuple) Equals(other *Tuple) bool {
	if !t.desc.Equals(other.desc) {
		return false
	}
	for i, v := range t.values {
		if v.Compare(other.values[i]) != 0 {
			return false
		}
	}
	return true
}

func (t *Tuple) String() string {
	parts := make([]string, len(t.values))
	for i, v := range t.values {
		parts[i] = v.String()
	}
	return strings.Join(parts, "\t")
}
