package execution

import (
	"mit.edu/dsg/heapdb/common"
	"mit.edu/dsg/heapdb/storage"
)

// Project emits a subset (or reordering) of the child's columns.
type Project struct {
	opBase
	fields []int
	child  Operator
	desc   *storage.TupleDesc
}

// NewProject projects the child onto the columns named by fields, in that
// order.
func NewProject(fields []int, child Operator) *Project {
	childDesc := child.Desc()
	types := make([]common.Type, len(fields))
	names := make([]string, len(fields))
	for i, f := range fields {
		types[i] = childDesc.FieldType(f)
		names[i] = childDesc.FieldName(f)
	}
	p := &Project{
		fields: fields,
		child:  child,
		desc:   storage.NewTupleDesc(types, names),
	}
	p.self = p
	return p
}

func (p *Project) Open() error {
	p.openBase()
	return p.child.Open()
}

func (p *Project) fetchNext() (*storage.Tuple, error) {
	t, err := p.child.Next()
	if err != nil || t == nil {
		return nil, err
	}
	out := storage.NewTuple(p.desc)
	for i, f := range p.fields {
		out.SetValue(i, t.GetValue(f))
	}
	return out, nil
}

func (p *Project) Rewind() error {
	p.clearPending()
	return p.child.Rewind()
}

func (p *Project) Close() error {
	err := p.child.Close()
	p.closeBase()
	return err
}

func (p *Project) Desc() *storage.TupleDesc {
	return p.desc
}

func (p *Project) Children() []Operator {
	return []Operator{p.child}
}

func (p *Project) SetChildren(children []Operator) {
	common.Assert(len(children) == 1, "Project takes exactly one child")
	p.child = children[0]
}
