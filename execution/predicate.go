package execution

import (
	"fmt"

	"mit.edu/dsg/heapdb/storage"
)

// Op is a comparison operator applied between two fields or a field and a
// constant.
type Op int

const (
	Equals Op = iota
	NotEquals
	GreaterThan
	LessThan
	GreaterThanOrEq
	LessThanOrEq
)

func (op Op) String() string {
	switch op {
	case Equals:
		return "="
	case NotEquals:
		return "!="
	case GreaterThan:
		return ">"
	case LessThan:
		return "<"
	case GreaterThanOrEq:
		return ">="
	case LessThanOrEq:
		return "<="
	}
	return "???"
}

// ParseOp maps an operator token to an Op.
func ParseOp(s string) (Op, bool) {
	switch s {
	case "=", "==":
		return Equals, true
	case "!=", "<>":
		return NotEquals, true
	case ">":
		return GreaterThan, true
	case "<":
		return LessThan, true
	case ">=":
		return GreaterThanOrEq, true
	case "<=":
		return LessThanOrEq, true
	}
	return 0, false
}

func (op Op) holds(cmp int) bool {
	switch op {
	case Equals:
		return cmp == 0
	case NotEquals:
		return cmp != 0
	case GreaterThan:
		return cmp > 0
	case LessThan:
		return cmp < 0
	case GreaterThanOrEq:
		return cmp >= 0
	case LessThanOrEq:
		return cmp <= 0
	}
	panic("unknown comparison op")
}

// Predicate compares one field of a tuple against a constant operand.
type Predicate struct {
	field   int
	op      Op
	operand storage.Value
}

// NewPredicate builds a predicate over the field at the given index.
func NewPredicate(field int, op Op, operand storage.Value) *Predicate {
	return &Predicate{field: field, op: op, operand: operand}
}

// Filter reports whether t satisfies the predicate.
func (p *Predicate) Filter(t *storage.Tuple) bool {
	return p.op.holds(t.GetValue(p.field).Compare(p.operand))
}

func (p *Predicate) String() string {
	return fmt.Sprintf("f%d %s %s", p.field, p.op, p.operand)
}

// JoinPredicate compares a field of a left tuple against a field of a right
// tuple.
type JoinPredicate struct {
	leftField  int
	rightField int
	op         Op
}

// NewJoinPredicate builds a join predicate over the two field indexes.
func NewJoinPredicate(leftField, rightField int, op Op) *JoinPredicate {
	return &JoinPredicate{leftField: leftField, rightField: rightField, op: op}
}

// Filter reports whether the pair (left, right) joins.
func (p *JoinPredicate) Filter(left, right *storage.Tuple) bool {
	return p.op.holds(left.GetValue(p.leftField).Compare(right.GetValue(p.rightField)))
}

func (p *JoinPredicate) String() string {
	return fmt.Sprintf("left.f%d %s right.f%d", p.leftField, p.op, p.rightField)
}
