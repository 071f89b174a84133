package execution

import (
	"mit.edu/dsg/heapdb/common"
	"mit.edu/dsg/heapdb/storage"
)

// Join is a nested-loops join: each tuple of the left child is matched
// against every tuple of the right child, emitting the concatenation of
// each satisfying pair. The right child is rewound once per left tuple, so
// it must be a restartable operator (every operator here is).
type Join struct {
	opBase
	pred        *JoinPredicate
	left, right Operator
	desc        *storage.TupleDesc
	curLeft     *storage.Tuple
}

// NewJoin joins left and right on pred.
func NewJoin(pred *JoinPredicate, left, right Operator) *Join {
	j := &Join{
		pred:  pred,
		left:  left,
		right: right,
		desc:  storage.Combine(left.Desc(), right.Desc()),
	}
	j.self = j
	return j
}

func (j *Join) Open() error {
	j.openBase()
	if err := j.left.Open(); err != nil {
		return err
	}
	return j.right.Open()
}

func (j *Join) fetchNext() (*storage.Tuple, error) {
	for {
		if j.curLeft == nil {
			t, err := j.left.Next()
			if err != nil || t == nil {
				return nil, err
			}
			j.curLeft = t
		}
		for {
			r, err := j.right.Next()
			if err != nil {
				return nil, err
			}
			if r == nil {
				break
			}
			if j.pred.Filter(j.curLeft, r) {
				return j.merge(j.curLeft, r), nil
			}
		}
		j.curLeft = nil
		if err := j.right.Rewind(); err != nil {
			return nil, err
		}
	}
}

func (j *Join) merge(left, right *storage.Tuple) *storage.Tuple {
	out := storage.NewTuple(j.desc)
	n := left.Desc().NumFields()
	for i := 0; i < n; i++ {
		out.SetValue(i, left.GetValue(i))
	}
	for i := 0; i < right.Desc().NumFields(); i++ {
		out.SetValue(n+i, right.GetValue(i))
	}
	return out
}

func (j *Join) Rewind() error {
	j.clearPending()
	j.curLeft = nil
	if err := j.left.Rewind(); err != nil {
		return err
	}
	return j.right.Rewind()
}

func (j *Join) Close() error {
	j.curLeft = nil
	err1 := j.left.Close()
	err2 := j.right.Close()
	j.closeBase()
	if err1 != nil {
		return err1
	}
	return err2
}

func (j *Join) Desc() *storage.TupleDesc {
	return j.desc
}

func (j *Join) Children() []Operator {
	return []Operator{j.left, j.right}
}

func (j *Join) SetChildren(children []Operator) {
	common.Assert(len(children) == 2, "Join takes exactly two children")
	j.left, j.right = children[0], children[1]
}
