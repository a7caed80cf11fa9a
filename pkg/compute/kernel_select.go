// Copyright 2023-2024 daviszhen
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package compute

import (
	"github.com/pkg/errors"

	"github.com/daviszhen/colq/pkg/chunk"
	"github.com/daviszhen/colq/pkg/common"
)

func valueLen(v chunk.Value) int {
	switch x := v.(type) {
	case *chunk.Vector:
		return x.Len()
	case *chunk.Table:
		return x.RowCount()
	}
	return 1
}

// parallel runs fn over count independent column tasks, on the worker pool
// when rows is large enough.
func (g *Graph) parallel(count, rows int, fn func(i int) error) error {
	if g.pool == nil || rows < g.cfg.Engine.ParallelThreshold {
		for i := 0; i < count; i++ {
			if err := fn(i); err != nil {
				return err
			}
		}
		return nil
	}
	return g.pool.Run(g.ctx, count, fn)
}

// gatherTable builds a table whose columns are cols gathered at idx.
func (g *Graph) gatherTable(names []int32, cols []*chunk.Vector, idx []int) (*chunk.Table, error) {
	out := make([]*chunk.Vector, len(cols))
	err := g.parallel(len(cols), len(idx), func(i int) error {
		out[i] = cols[i].Gather(idx)
		return nil
	})
	if err != nil {
		for _, v := range out {
			if v != nil {
				v.Release()
			}
		}
		return nil, err
	}
	t := chunk.NewTable()
	for i, v := range out {
		if err = t.AddColumnSym(names[i], v); err != nil {
			for _, rest := range out[i+1:] {
				rest.Release()
			}
			t.Release()
			return nil, err
		}
	}
	return t, nil
}

func tableColumns(t *chunk.Table) ([]int32, []*chunk.Vector) {
	names := make([]int32, t.ColumnCount())
	cols := make([]*chunk.Vector, t.ColumnCount())
	for i := range cols {
		names[i] = t.ColumnSym(i)
		cols[i] = t.Column(i)
	}
	return names, cols
}

func (g *Graph) evalFilter(input, pred chunk.Value) (chunk.Value, error) {
	n := valueLen(input)
	var idx []int
	switch p := pred.(type) {
	case *chunk.Atom:
		if p.Type() != common.TID_BOOL {
			return nil, errors.Wrapf(common.ErrType, "predicate is %s", p.Type())
		}
		if p.Bool() {
			input.Retain()
			return input, nil
		}
		idx = []int{}
	case *chunk.Vector:
		if p.Type() != common.TID_BOOL {
			return nil, errors.Wrapf(common.ErrType, "predicate is %s", p.Type())
		}
		if p.Len() != n {
			return nil, errors.Wrapf(common.ErrLength, "predicate has %d elements, input %d", p.Len(), n)
		}
		flat := p.Flatten()
		defer flat.Release()
		idx = make([]int, 0, n)
		for i, b := range flat.Bools() {
			if b {
				idx = append(idx, i)
			}
		}
	default:
		return nil, errors.Wrap(common.ErrType, "table predicate")
	}
	switch x := input.(type) {
	case *chunk.Vector:
		return x.Gather(idx), nil
	case *chunk.Table:
		names, cols := tableColumns(x)
		return g.gatherTable(names, cols, idx)
	}
	return nil, errors.Wrap(common.ErrType, "atom input")
}

func evalHeadTail(op OpKind, input chunk.Value, count int64) (chunk.Value, error) {
	n := valueLen(input)
	k := n
	if count < int64(n) {
		k = int(count)
	}
	off := 0
	if op == OP_TAIL {
		off = n - k
	}
	switch x := input.(type) {
	case *chunk.Vector:
		return x.Slice(off, k), nil
	case *chunk.Table:
		return x.Slice(off, k), nil
	}
	return nil, errors.Wrapf(common.ErrType, "%s on atom", op)
}

// evalIf picks then where cond is true and els elsewhere. Both branches are
// converted to typ first.
func evalIf(typ common.TypeId, cond, then, els chunk.Value) (chunk.Value, error) {
	n, err := operandLen(cond, then, els)
	if err != nil {
		return nil, err
	}
	scalar := n < 0
	if scalar {
		n = 1
	}
	if ct := valueType(cond); ct != common.TID_BOOL {
		return nil, errors.Wrapf(common.ErrType, "condition is %s", ct)
	}
	a, err := ifBranch(then, typ)
	if err != nil {
		return nil, err
	}
	defer a.Release()
	b, err := ifBranch(els, typ)
	if err != nil {
		return nil, err
	}
	defer b.Release()
	_, as := then.(*chunk.Atom)
	_, bs := els.(*chunk.Atom)
	c := toBool(cond)

	if typ == common.TID_STR {
		ta, tb := toText(a), toText(b)
		ta.scalar, tb.scalar = as, bs
		strs := make([]string, n)
		pick(c, ta, tb, strs)
		return boxResult(chunk.NewStrVector(strs), scalar), nil
	}
	out := chunk.NewVector(typ, n)
	switch typ {
	case common.TID_BOOL:
		pick(c, view[bool](a, as), view[bool](b, bs), out.Bools())
	case common.TID_I32, common.TID_SYM:
		pick(c, view[int32](a, as), view[int32](b, bs), chunk.GetSlice[int32](out))
	case common.TID_I64:
		pick(c, view[int64](a, as), view[int64](b, bs), out.I64s())
	case common.TID_F64:
		pick(c, view[float64](a, as), view[float64](b, bs), out.F64s())
	default:
		out.Release()
		return nil, errors.Wrapf(common.ErrType, "if result %s", typ)
	}
	return boxResult(out, scalar), nil
}

func ifBranch(v chunk.Value, typ common.TypeId) (*chunk.Vector, error) {
	in := asVector(v)
	defer in.Release()
	return castVector(in, typ)
}

func view[T any](v *chunk.Vector, scalar bool) operand[T] {
	return operand[T]{vals: chunk.GetSlice[T](v), scalar: scalar}
}

func pick[T any](cond operand[bool], a, b operand[T], out []T) {
	for i := range out {
		if cond.at(i) {
			out[i] = a.at(i)
		} else {
			out[i] = b.at(i)
		}
	}
}
