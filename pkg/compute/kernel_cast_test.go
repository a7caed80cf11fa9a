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
	"math"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daviszhen/colq/pkg/chunk"
	"github.com/daviszhen/colq/pkg/common"
)

func elems(v *chunk.Vector) []string {
	ret := make([]string, v.Len())
	for i := range ret {
		ret[i] = v.ElemString(i)
	}
	return ret
}

func Test_castNumeric(t *testing.T) {
	g := newTestGraph(t, salesTable(t))
	op := mustOp(t)
	price := op(g.Scan("price"))

	toI32 := execute(t, g, op(g.Cast(price, common.TID_I32))).(*chunk.Vector)
	assert.Equal(t, []int32{1, 2, 3, common.NullI32, 5}, toI32.I32s())

	toBool := execute(t, g, op(g.Cast(price, common.TID_BOOL))).(*chunk.Vector)
	assert.Equal(t, []bool{true, true, true, false, true}, toBool.Bools())

	big := op(g.ConstVector(chunk.NewF64Vector([]float64{1e20, -2.9, math.NaN()})))
	toI64 := execute(t, g, op(g.Cast(big, common.TID_I64))).(*chunk.Vector)
	assert.Equal(t, []int64{common.NullI64, -2, common.NullI64}, toI64.I64s())

	wide := op(g.ConstVector(chunk.NewI64Vector([]int64{1 << 40, -5, common.NullI64})))
	narrow := execute(t, g, op(g.Cast(wide, common.TID_I32))).(*chunk.Vector)
	assert.Equal(t, []int32{common.NullI32, -5, common.NullI32}, narrow.I32s())

	back := execute(t, g, op(g.Cast(wide, common.TID_F64))).(*chunk.Vector)
	assert.Equal(t, float64(1<<40), back.F64s()[0])
	assert.True(t, back.IsNull(2))

	two := op(g.ConstAtom(chunk.NewF64Atom(2.7)))
	atom := execute(t, g, op(g.Cast(two, common.TID_I64)))
	require.Equal(t, chunk.VK_ATOM, atom.Kind())
	assert.Equal(t, int64(2), atom.(*chunk.Atom).I64())
}

func Test_castText(t *testing.T) {
	g := newTestGraph(t, salesTable(t))
	op := mustOp(t)
	region := op(g.Scan("region"))
	qty := op(g.Scan("qty"))

	str := execute(t, g, op(g.Cast(region, common.TID_STR))).(*chunk.Vector)
	require.Equal(t, common.TID_STR, str.Type())
	assert.Equal(t, []string{"east", "west", "east", "north", "west"}, texts(t, str))

	round := execute(t, g, op(g.Cast(op(g.Cast(region, common.TID_STR)), common.TID_SYM))).(*chunk.Vector)
	bound, _ := g.Bound().ColumnBySym(g.Node(region).Name)
	assert.Equal(t, bound.Syms(), round.Syms())

	labels := execute(t, g, op(g.Cast(qty, common.TID_SYM))).(*chunk.Vector)
	assert.Equal(t, []string{"1", "2", "3", "4", "5"}, texts(t, labels))

	text := op(g.ConstVector(chunk.NewStrVector([]string{" 42", "x", "", "07", "2.5"})))
	ints := execute(t, g, op(g.Cast(text, common.TID_I64))).(*chunk.Vector)
	assert.Equal(t, []int64{42, common.NullI64, common.NullI64, 7, common.NullI64}, ints.I64s())

	floats := execute(t, g, op(g.Cast(text, common.TID_F64))).(*chunk.Vector)
	assert.Equal(t, []string{"42", "null", "null", "7", "2.5"}, elems(floats))

	flags := op(g.ConstVector(chunk.NewSymVectorStrings([]string{"true", "0", "", "1"})))
	bools := execute(t, g, op(g.Cast(flags, common.TID_BOOL))).(*chunk.Vector)
	assert.Equal(t, []bool{true, false, false, true}, bools.Bools())

	nulls := op(g.ConstVector(chunk.NewI64Vector([]int64{common.NullI64, 3})))
	strs := execute(t, g, op(g.Cast(nulls, common.TID_STR))).(*chunk.Vector)
	assert.Equal(t, []string{"", "3"}, texts(t, strs))
}

func Test_if(t *testing.T) {
	g := newTestGraph(t, salesTable(t))
	op := mustOp(t)
	region := op(g.Scan("region"))
	qty := op(g.Scan("qty"))
	price := op(g.Scan("price"))
	three := op(g.ConstAtom(chunk.NewI64Atom(3)))
	cond := op(g.Gt(qty, three))

	num := execute(t, g, op(g.If(cond, price, qty))).(*chunk.Vector)
	require.Equal(t, common.TID_F64, num.Type())
	assert.Equal(t, []string{"1", "2", "3", "null", "5.5"}, elems(num))

	big := op(g.ConstAtom(chunk.NewSymAtomString("big")))
	small := op(g.ConstAtom(chunk.NewStrAtom("small")))
	label := execute(t, g, op(g.If(cond, big, small))).(*chunk.Vector)
	require.Equal(t, common.TID_SYM, label.Type())
	assert.Equal(t, []string{"small", "small", "small", "big", "big"}, texts(t, label))

	other := execute(t, g, op(g.If(cond, region, small))).(*chunk.Vector)
	assert.Equal(t, []string{"small", "small", "small", "north", "west"}, texts(t, other))

	words := op(g.ConstVector(chunk.NewStrVector([]string{"a", "b", "c", "d", "e"})))
	str := execute(t, g, op(g.If(cond, words, small))).(*chunk.Vector)
	require.Equal(t, common.TID_STR, str.Type())
	assert.Equal(t, []string{"small", "small", "small", "d", "e"}, texts(t, str))

	yes := op(g.ConstAtom(chunk.NewBoolAtom(true)))
	one := op(g.ConstAtom(chunk.NewI64Atom(1)))
	two := op(g.ConstAtom(chunk.NewI32Atom(2)))
	atom := execute(t, g, op(g.If(yes, one, two)))
	require.Equal(t, chunk.VK_ATOM, atom.Kind())
	assert.Equal(t, int64(1), atom.(*chunk.Atom).I64())

	short := op(g.ConstVector(chunk.NewBoolVector([]bool{true, false})))
	_, err := Execute(g, op(g.If(short, qty, price)))
	assert.True(t, errors.Is(err, common.ErrLength))
}
