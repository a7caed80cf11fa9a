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
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daviszhen/colq/pkg/chunk"
	"github.com/daviszhen/colq/pkg/common"
	"github.com/daviszhen/colq/pkg/sym"
)

type testColumn struct {
	name string
	vec  *chunk.Vector
}

func newTestTable(t *testing.T, cols ...testColumn) *chunk.Table {
	tab := chunk.NewTable()
	for _, c := range cols {
		require.NoError(t, tab.AddColumn(c.name, c.vec))
	}
	return tab
}

// salesTable is the bound table shared by most tests:
//
//	region  qty  price
//	east    1    1.5
//	west    2    2.5
//	east    3    3.5
//	north   4    null
//	west    5    5.5
func salesTable(t *testing.T) *chunk.Table {
	return newTestTable(t,
		testColumn{"region", chunk.NewSymVectorStrings([]string{"east", "west", "east", "north", "west"})},
		testColumn{"qty", chunk.NewI64Vector([]int64{1, 2, 3, 4, 5})},
		testColumn{"price", chunk.NewF64Vector([]float64{1.5, 2.5, 3.5, common.F64Null(), 5.5})},
	)
}

func newTestGraph(t *testing.T, bound *chunk.Table) *Graph {
	g := NewGraph(bound)
	if bound != nil {
		bound.Release()
	}
	t.Cleanup(g.Free)
	return g
}

func mustOp(t *testing.T) func(OpId, error) OpId {
	return func(id OpId, err error) OpId {
		require.NoError(t, err)
		return id
	}
}

func execute(t *testing.T, g *Graph, root OpId) chunk.Value {
	v, err := Execute(g, root)
	require.NoError(t, err)
	t.Cleanup(v.Release)
	return v
}

func tableRows(tab *chunk.Table) []string {
	rows := make([]string, tab.RowCount())
	for i := range rows {
		rows[i] = strings.Join(tab.Row(i), ",")
	}
	return rows
}

func assertBuildError(t *testing.T, err error, kind error) {
	require.Error(t, err)
	var be *common.BuildError
	assert.True(t, errors.As(err, &be), "%v is not a build error", err)
	assert.True(t, errors.Is(err, kind), "%v is not %v", err, kind)
}

func Test_buildErrors(t *testing.T) {
	g := newTestGraph(t, salesTable(t))
	op := mustOp(t)
	qty := op(g.Scan("qty"))
	region := op(g.Scan("region"))
	price := op(g.Scan("price"))
	tab := op(g.Group([]OpId{region}, []OpKind{OP_SUM}, []OpId{qty}))

	_, err := g.Scan("missing")
	assertBuildError(t, err, common.ErrColumnNotFound)

	_, err = g.Add(region, qty)
	assertBuildError(t, err, common.ErrType)

	_, err = g.And(qty, qty)
	assertBuildError(t, err, common.ErrType)

	_, err = g.Eq(region, qty)
	assertBuildError(t, err, common.ErrType)

	_, err = g.Filter(qty, price)
	assertBuildError(t, err, common.ErrType)

	_, err = g.Sum(region)
	assertBuildError(t, err, common.ErrType)

	_, err = g.Group(nil, nil, nil)
	assertBuildError(t, err, common.ErrLength)

	_, err = g.Group([]OpId{region}, []OpKind{OP_SUM, OP_MAX}, []OpId{qty})
	assertBuildError(t, err, common.ErrLength)

	_, err = g.Sort(tab, []OpId{g.Col("region")}, []bool{true, false})
	assertBuildError(t, err, common.ErrLength)

	_, err = g.Sort(tab, []OpId{g.Col("nope")}, []bool{true})
	assertBuildError(t, err, common.ErrColumnNotFound)

	_, err = g.Sort(qty, []OpId{g.Col("qty")}, []bool{true})
	assertBuildError(t, err, common.ErrType)

	_, err = g.Head(qty, -1)
	assertBuildError(t, err, common.ErrDomain)

	_, err = g.Neg(OpId(1000))
	assertBuildError(t, err, common.ErrDomain)

	_, err = g.Join(tab, []OpId{g.Col("region")}, tab, []OpId{g.Col("sum_qty")}, JOIN_INNER)
	assertBuildError(t, err, common.ErrType)

	_, err = g.Join(tab, []OpId{g.Col("region")}, tab, []OpId{g.Col("region")}, JoinKind(7))
	assertBuildError(t, err, common.ErrDomain)

	_, err = g.Cast(qty, common.TID_INVALID)
	assertBuildError(t, err, common.ErrType)

	_, err = g.Cast(tab, common.TID_I64)
	assertBuildError(t, err, common.ErrType)

	_, err = g.If(qty, qty, price)
	assertBuildError(t, err, common.ErrType)

	isNull := op(g.IsNull(price))
	_, err = g.If(isNull, qty, region)
	assertBuildError(t, err, common.ErrType)

	_, err = g.Upper(qty)
	assertBuildError(t, err, common.ErrType)

	_, err = g.Substr(region, price, qty)
	assertBuildError(t, err, common.ErrType)

	_, err = g.Like(region, region)
	assertBuildError(t, err, common.ErrType)

	_, err = g.Concat(region)
	assertBuildError(t, err, common.ErrLength)

	_, err = g.Alias(qty, "")
	assertBuildError(t, err, common.ErrDomain)

	_, err = g.Alias(tab, "t")
	assertBuildError(t, err, common.ErrType)

	_, err = g.Select(tab, nil)
	assertBuildError(t, err, common.ErrLength)

	_, err = g.Select(tab, []OpId{g.Col("qty")})
	assertBuildError(t, err, common.ErrColumnNotFound)

	_, err = g.Select(tab, []OpId{qty})
	assertBuildError(t, err, common.ErrColumnNotFound)

	_, err = g.Select(qty, []OpId{g.Col("qty")})
	assertBuildError(t, err, common.ErrType)

	_, err = g.Project(tab, []OpId{g.Col("region"), op(g.Alias(qty, "region"))})
	assertBuildError(t, err, common.ErrDomain)

	_, err = g.Project(tab, []OpId{tab})
	assertBuildError(t, err, common.ErrType)
}

func Test_typeInference(t *testing.T) {
	g := newTestGraph(t, salesTable(t))
	op := mustOp(t)
	qty := op(g.Scan("qty"))
	price := op(g.Scan("price"))
	two := op(g.ConstAtom(chunk.NewI32Atom(2)))
	region := op(g.Scan("region"))
	word := op(g.ConstAtom(chunk.NewStrAtom("w%")))
	isNull := op(g.IsNull(price))

	tests := []struct {
		name  string
		id    OpId
		typ   common.TypeId
		shape Shape
	}{
		{"i64+i32", op(g.Add(qty, two)), common.TID_I64, SHAPE_VECTOR},
		{"i64*f64", op(g.Mul(qty, price)), common.TID_F64, SHAPE_VECTOR},
		{"div", op(g.Div(two, two)), common.TID_F64, SHAPE_ATOM},
		{"lt", op(g.Lt(qty, two)), common.TID_BOOL, SHAPE_VECTOR},
		{"ceil f64", op(g.Ceil(price)), common.TID_F64, SHAPE_VECTOR},
		{"floor i64", op(g.Floor(qty)), common.TID_I64, SHAPE_VECTOR},
		{"sqrt", op(g.Sqrt(qty)), common.TID_F64, SHAPE_VECTOR},
		{"sum i64", op(g.Sum(qty)), common.TID_I64, SHAPE_ATOM},
		{"avg", op(g.Avg(qty)), common.TID_F64, SHAPE_ATOM},
		{"count", op(g.Count(price)), common.TID_I64, SHAPE_ATOM},
		{"max f64", op(g.Max(price)), common.TID_F64, SHAPE_ATOM},
		{"count_distinct", op(g.CountDistinct(price)), common.TID_I64, SHAPE_ATOM},
		{"cast i32", op(g.Cast(price, common.TID_I32)), common.TID_I32, SHAPE_VECTOR},
		{"cast atom", op(g.Cast(two, common.TID_STR)), common.TID_STR, SHAPE_ATOM},
		{"if numeric", op(g.If(isNull, qty, price)), common.TID_F64, SHAPE_VECTOR},
		{"if text", op(g.If(isNull, region, word)), common.TID_SYM, SHAPE_VECTOR},
		{"if str", op(g.If(isNull, word, word)), common.TID_STR, SHAPE_VECTOR},
		{"upper sym", op(g.Upper(region)), common.TID_SYM, SHAPE_VECTOR},
		{"trim str", op(g.Trim(word)), common.TID_STR, SHAPE_ATOM},
		{"strlen", op(g.Strlen(region)), common.TID_I64, SHAPE_VECTOR},
		{"like", op(g.Like(region, word)), common.TID_BOOL, SHAPE_VECTOR},
		{"substr", op(g.Substr(region, two, two)), common.TID_SYM, SHAPE_VECTOR},
		{"concat sym", op(g.Concat(region, region)), common.TID_SYM, SHAPE_VECTOR},
		{"concat str", op(g.Concat(region, word)), common.TID_STR, SHAPE_VECTOR},
		{"alias", op(g.Alias(price, "p")), common.TID_F64, SHAPE_VECTOR},
		{"materialize", op(g.Materialize(qty)), common.TID_I64, SHAPE_VECTOR},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := g.Node(tt.id)
			assert.Equal(t, tt.typ, n.Typ)
			assert.Equal(t, tt.shape, n.Shape)
		})
	}
}

func Test_groupSchema(t *testing.T) {
	g := newTestGraph(t, salesTable(t))
	op := mustOp(t)
	region := op(g.Scan("region"))
	qty := op(g.Scan("qty"))
	double := op(g.Add(qty, qty))
	grp := op(g.Group([]OpId{region}, []OpKind{OP_SUM, OP_COUNT}, []OpId{qty, double}))
	n := g.Node(grp)
	require.Len(t, n.Schema, 3)
	names := make([]string, len(n.Schema))
	for i, f := range n.Schema {
		names[i] = sym.Str(f.Name)
	}
	assert.Equal(t, []string{"region", "sum_qty", "count_a1"}, names)
	assert.Equal(t, common.TID_SYM, n.Schema[0].Typ)
	assert.Equal(t, common.TID_I64, n.Schema[1].Typ)
}

func Test_parseOpKind(t *testing.T) {
	for _, k := range []OpKind{OP_SUM, OP_AVG, OP_LAST, OP_MAX2, OP_HEAD,
		OP_CAST, OP_LIKE, OP_CONCAT, OP_COUNT_DISTINCT, OP_PROJECT, OP_MATERIALIZE} {
		got, err := ParseOpKind(k.String())
		require.NoError(t, err)
		assert.Equal(t, k, got)
	}
	_, err := ParseOpKind("median")
	assert.True(t, errors.Is(err, common.ErrDomain))
}
