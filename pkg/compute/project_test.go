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
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daviszhen/colq/pkg/chunk"
	"github.com/daviszhen/colq/pkg/common"
)

func boundTable(t *testing.T, g *Graph) OpId {
	bound := g.Bound()
	bound.Retain()
	return mustOp(t)(g.ConstTable(bound))
}

func Test_select(t *testing.T) {
	g := newTestGraph(t, salesTable(t))
	op := mustOp(t)
	tab := boundTable(t, g)
	area := op(g.Alias(g.Col("region"), "area"))

	res := execute(t, g, op(g.Select(tab, []OpId{g.Col("price"), area}))).(*chunk.Table)
	assert.Equal(t, []string{"price", "area"}, res.Names())
	assert.Equal(t, []string{"1.5,east", "2.5,west", "3.5,east", "null,north", "5.5,west"}, tableRows(res))
	//columns are shared, not copied
	assert.Same(t, g.Bound().Column(0), res.Column(1))
	assert.Same(t, g.Bound().Column(2), res.Column(0))
}

func Test_project(t *testing.T) {
	g := newTestGraph(t, salesTable(t))
	op := mustOp(t)
	tab := boundTable(t, g)
	qty := op(g.Scan("qty"))
	double := op(g.Alias(op(g.Add(qty, qty)), "double"))
	one := op(g.ConstAtom(chunk.NewI64Atom(1)))

	res := execute(t, g, op(g.Project(tab, []OpId{g.Col("region"), double, one}))).(*chunk.Table)
	assert.Equal(t, []string{"region", "double", "c2"}, res.Names())
	assert.Equal(t, []string{"east,2,1", "west,4,1", "east,6,1", "north,8,1", "west,10,1"}, tableRows(res))
	assert.Same(t, g.Bound().Column(0), res.Column(0))

	//computed columns must match the rows of the input table
	three := op(g.ConstAtom(chunk.NewI64Atom(3)))
	big := op(g.Filter(tab, op(g.Gt(qty, three))))
	_, err := Execute(g, op(g.Project(big, []OpId{g.Col("region"), qty})))
	assert.True(t, errors.Is(err, common.ErrLength))
}

func Test_aliasNamesGroupColumns(t *testing.T) {
	g := newTestGraph(t, salesTable(t))
	op := mustOp(t)
	area := op(g.Alias(op(g.Scan("region")), "area"))
	units := op(g.Alias(op(g.Scan("qty")), "units"))

	res := execute(t, g, op(g.Group([]OpId{area}, []OpKind{OP_SUM}, []OpId{units}))).(*chunk.Table)
	assert.Equal(t, []string{"area", "sum_units"}, res.Names())
	assert.Equal(t, []string{"east,4", "west,7", "north,4"}, tableRows(res))
}

func Test_materialize(t *testing.T) {
	g := newTestGraph(t, salesTable(t))
	op := mustOp(t)
	src := chunk.NewI64Vector([]int64{1, 2, 3, 4})
	src.Retain()
	defer src.Release()
	v := op(g.ConstVector(src))
	head := op(g.Head(v, 2))

	slice := execute(t, g, head).(*chunk.Vector)
	require.Equal(t, chunk.VEC_SLICE, slice.Ownership())
	own := execute(t, g, op(g.Materialize(head))).(*chunk.Vector)
	assert.Equal(t, chunk.VEC_OWNED, own.Ownership())
	assert.Equal(t, []int64{1, 2}, own.I64s())
	assert.NotSame(t, &src.I64s()[0], &own.I64s()[0])

	//owned vectors are shared as they are
	whole := execute(t, g, op(g.Materialize(v))).(*chunk.Vector)
	assert.Same(t, &src.I64s()[0], &whole.I64s()[0])

	top := op(g.Head(boundTable(t, g), 2))
	tab := execute(t, g, op(g.Materialize(top))).(*chunk.Table)
	assert.Equal(t, []string{"east,1,1.5", "west,2,2.5"}, tableRows(tab))
	for i := 0; i < tab.ColumnCount(); i++ {
		assert.Equal(t, chunk.VEC_OWNED, tab.Column(i).Ownership())
	}
}
