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
	"fmt"

	"github.com/daviszhen/colq/pkg/chunk"
	"github.com/daviszhen/colq/pkg/common"
	"github.com/daviszhen/colq/pkg/sym"
)

func buildErr(op OpKind, kind error, format string, args ...any) error {
	return common.NewBuildError(op.String(), kind, format, args...)
}

func (g *Graph) checkIds(op OpKind, ids ...OpId) error {
	for _, id := range ids {
		if !g.valid(id) {
			return buildErr(op, common.ErrDomain, "invalid operator id %d", id)
		}
	}
	return nil
}

// Scan reads a column of the bound table.
func (g *Graph) Scan(name string) (OpId, error) {
	if g.bound == nil {
		return InvalidOp, buildErr(OP_SCAN, common.ErrColumnNotFound, "no bound table for column %q", name)
	}
	id, ok := sym.Find(name)
	if !ok {
		return InvalidOp, buildErr(OP_SCAN, common.ErrColumnNotFound, "column %q", name)
	}
	col, ok := g.bound.ColumnBySym(id)
	if !ok {
		return InvalidOp, buildErr(OP_SCAN, common.ErrColumnNotFound, "column %q", name)
	}
	n := newNode(OP_SCAN)
	n.Name = id
	n.Shape = SHAPE_VECTOR
	n.Typ = col.Type()
	return g.add(n), nil
}

// Col names a column of the table input of Sort or Join. It is checked
// against that input when the structural node is built.
func (g *Graph) Col(name string) OpId {
	n := newNode(OP_SCAN)
	n.Name = sym.Intern(name)
	n.Unbound = true
	n.Shape = SHAPE_VECTOR
	return g.add(n)
}

// ConstAtom takes over the caller's reference to a.
func (g *Graph) ConstAtom(a *chunk.Atom) (OpId, error) {
	n := newNode(OP_CONST)
	n.Const = a
	n.Shape = SHAPE_ATOM
	n.Typ = a.Type()
	return g.add(n), nil
}

// ConstVector takes over the caller's reference to v.
func (g *Graph) ConstVector(v *chunk.Vector) (OpId, error) {
	n := newNode(OP_CONST)
	n.Const = v
	n.Shape = SHAPE_VECTOR
	n.Typ = v.Type()
	return g.add(n), nil
}

// ConstTable takes over the caller's reference to t.
func (g *Graph) ConstTable(t *chunk.Table) (OpId, error) {
	n := newNode(OP_CONST)
	n.Const = t
	n.Shape = SHAPE_TABLE
	n.Schema = tableSchema(t)
	return g.add(n), nil
}

func tableSchema(t *chunk.Table) []Field {
	ret := make([]Field, t.ColumnCount())
	for i := range ret {
		ret[i] = Field{Name: t.ColumnSym(i), Typ: t.Column(i).Type()}
	}
	return ret
}

func (g *Graph) binary(op OpKind, lhs, rhs OpId) (OpId, error) {
	if err := g.checkIds(op, lhs, rhs); err != nil {
		return InvalidOp, err
	}
	l, r := g.nodes[lhs], g.nodes[rhs]
	if l.Shape == SHAPE_TABLE || r.Shape == SHAPE_TABLE {
		return InvalidOp, buildErr(op, common.ErrType, "table operand")
	}
	typ, err := binaryType(op, l.Typ, r.Typ)
	if err != nil {
		return InvalidOp, err
	}
	n := newNode(op)
	n.Inputs = []OpId{lhs, rhs}
	n.Typ = typ
	n.Shape = SHAPE_ATOM
	if l.Shape == SHAPE_VECTOR || r.Shape == SHAPE_VECTOR {
		n.Shape = SHAPE_VECTOR
	}
	return g.add(n), nil
}

func binaryType(op OpKind, a, b common.TypeId) (common.TypeId, error) {
	switch {
	case op.IsComparison():
		if !common.Comparable(a, b) {
			return common.TID_INVALID, buildErr(op, common.ErrType, "cannot compare %s with %s", a, b)
		}
		return common.TID_BOOL, nil
	case op == OP_AND || op == OP_OR:
		if a != common.TID_BOOL || b != common.TID_BOOL {
			return common.TID_INVALID, buildErr(op, common.ErrType, "%s and %s are not bool", a, b)
		}
		return common.TID_BOOL, nil
	}
	if !a.IsNumeric() || !b.IsNumeric() {
		return common.TID_INVALID, buildErr(op, common.ErrType, "%s and %s are not numeric", a, b)
	}
	if op == OP_DIV {
		return common.TID_F64, nil
	}
	typ := common.Promote(a, b)
	if typ == common.TID_BOOL {
		typ = common.TID_I32
	}
	return typ, nil
}

func (g *Graph) Add(lhs, rhs OpId) (OpId, error) { return g.binary(OP_ADD, lhs, rhs) }
func (g *Graph) Sub(lhs, rhs OpId) (OpId, error) { return g.binary(OP_SUB, lhs, rhs) }
func (g *Graph) Mul(lhs, rhs OpId) (OpId, error) { return g.binary(OP_MUL, lhs, rhs) }
func (g *Graph) Div(lhs, rhs OpId) (OpId, error) { return g.binary(OP_DIV, lhs, rhs) }
func (g *Graph) Mod(lhs, rhs OpId) (OpId, error) { return g.binary(OP_MOD, lhs, rhs) }
func (g *Graph) Eq(lhs, rhs OpId) (OpId, error)  { return g.binary(OP_EQ, lhs, rhs) }
func (g *Graph) Ne(lhs, rhs OpId) (OpId, error)  { return g.binary(OP_NE, lhs, rhs) }
func (g *Graph) Lt(lhs, rhs OpId) (OpId, error)  { return g.binary(OP_LT, lhs, rhs) }
func (g *Graph) Le(lhs, rhs OpId) (OpId, error)  { return g.binary(OP_LE, lhs, rhs) }
func (g *Graph) Gt(lhs, rhs OpId) (OpId, error)  { return g.binary(OP_GT, lhs, rhs) }
func (g *Graph) Ge(lhs, rhs OpId) (OpId, error)  { return g.binary(OP_GE, lhs, rhs) }
func (g *Graph) And(lhs, rhs OpId) (OpId, error) { return g.binary(OP_AND, lhs, rhs) }
func (g *Graph) Or(lhs, rhs OpId) (OpId, error)  { return g.binary(OP_OR, lhs, rhs) }

func (g *Graph) Min2(lhs, rhs OpId) (OpId, error) { return g.binary(OP_MIN2, lhs, rhs) }
func (g *Graph) Max2(lhs, rhs OpId) (OpId, error) { return g.binary(OP_MAX2, lhs, rhs) }

// Binary builds the binary operator op.
func (g *Graph) Binary(op OpKind, lhs, rhs OpId) (OpId, error) {
	if !op.IsBinary() {
		return InvalidOp, buildErr(op, common.ErrDomain, "not a binary operator")
	}
	return g.binary(op, lhs, rhs)
}

func (g *Graph) unary(op OpKind, input OpId) (OpId, error) {
	if err := g.checkIds(op, input); err != nil {
		return InvalidOp, err
	}
	in := g.nodes[input]
	if in.Shape == SHAPE_TABLE {
		return InvalidOp, buildErr(op, common.ErrType, "table operand")
	}
	typ, err := unaryType(op, in.Typ)
	if err != nil {
		return InvalidOp, err
	}
	n := newNode(op)
	n.Inputs = []OpId{input}
	n.Shape = in.Shape
	n.Typ = typ
	return g.add(n), nil
}

func unaryType(op OpKind, a common.TypeId) (common.TypeId, error) {
	switch op {
	case OP_ISNULL:
		return common.TID_BOOL, nil
	case OP_NOT:
		if a != common.TID_BOOL {
			return common.TID_INVALID, buildErr(op, common.ErrType, "%s is not bool", a)
		}
		return common.TID_BOOL, nil
	}
	if !a.IsNumeric() {
		return common.TID_INVALID, buildErr(op, common.ErrType, "%s is not numeric", a)
	}
	switch op {
	case OP_SQRT, OP_LOG, OP_EXP:
		return common.TID_F64, nil
	}
	if a == common.TID_BOOL {
		return common.TID_I32, nil
	}
	return a, nil
}

func (g *Graph) Neg(input OpId) (OpId, error)    { return g.unary(OP_NEG, input) }
func (g *Graph) Abs(input OpId) (OpId, error)    { return g.unary(OP_ABS, input) }
func (g *Graph) Not(input OpId) (OpId, error)    { return g.unary(OP_NOT, input) }
func (g *Graph) Sqrt(input OpId) (OpId, error)   { return g.unary(OP_SQRT, input) }
func (g *Graph) Log(input OpId) (OpId, error)    { return g.unary(OP_LOG, input) }
func (g *Graph) Exp(input OpId) (OpId, error)    { return g.unary(OP_EXP, input) }
func (g *Graph) Ceil(input OpId) (OpId, error)   { return g.unary(OP_CEIL, input) }
func (g *Graph) Floor(input OpId) (OpId, error)  { return g.unary(OP_FLOOR, input) }
func (g *Graph) IsNull(input OpId) (OpId, error) { return g.unary(OP_ISNULL, input) }

// Unary builds the unary operator op.
func (g *Graph) Unary(op OpKind, input OpId) (OpId, error) {
	if !op.IsUnary() {
		return InvalidOp, buildErr(op, common.ErrDomain, "not a unary operator")
	}
	return g.unary(op, input)
}

// reductionType is the result type of aggregating a column of typ.
func reductionType(op OpKind, typ common.TypeId) (common.TypeId, error) {
	switch op {
	case OP_COUNT, OP_COUNT_DISTINCT:
		return common.TID_I64, nil
	case OP_FIRST, OP_LAST:
		return typ, nil
	}
	if !typ.IsNumeric() {
		return common.TID_INVALID, buildErr(op, common.ErrType, "%s is not numeric", typ)
	}
	switch op {
	case OP_SUM, OP_PROD:
		if typ == common.TID_F64 {
			return common.TID_F64, nil
		}
		return common.TID_I64, nil
	case OP_AVG:
		return common.TID_F64, nil
	case OP_MIN, OP_MAX:
		return typ, nil
	}
	return common.TID_INVALID, buildErr(op, common.ErrDomain, "not a reduction")
}

func (g *Graph) reduce(op OpKind, input OpId) (OpId, error) {
	if err := g.checkIds(op, input); err != nil {
		return InvalidOp, err
	}
	in := g.nodes[input]
	if in.Shape == SHAPE_TABLE {
		return InvalidOp, buildErr(op, common.ErrType, "table operand")
	}
	typ, err := reductionType(op, in.Typ)
	if err != nil {
		return InvalidOp, err
	}
	n := newNode(op)
	n.Inputs = []OpId{input}
	n.Shape = SHAPE_ATOM
	n.Typ = typ
	return g.add(n), nil
}

func (g *Graph) Sum(input OpId) (OpId, error)   { return g.reduce(OP_SUM, input) }
func (g *Graph) Prod(input OpId) (OpId, error)  { return g.reduce(OP_PROD, input) }
func (g *Graph) Min(input OpId) (OpId, error)   { return g.reduce(OP_MIN, input) }
func (g *Graph) Max(input OpId) (OpId, error)   { return g.reduce(OP_MAX, input) }
func (g *Graph) Count(input OpId) (OpId, error) { return g.reduce(OP_COUNT, input) }
func (g *Graph) Avg(input OpId) (OpId, error)   { return g.reduce(OP_AVG, input) }
func (g *Graph) First(input OpId) (OpId, error) { return g.reduce(OP_FIRST, input) }
func (g *Graph) Last(input OpId) (OpId, error)  { return g.reduce(OP_LAST, input) }

func (g *Graph) CountDistinct(input OpId) (OpId, error) {
	return g.reduce(OP_COUNT_DISTINCT, input)
}

// Reduce builds the reduction op.
func (g *Graph) Reduce(op OpKind, input OpId) (OpId, error) {
	if !op.IsReduction() {
		return InvalidOp, buildErr(op, common.ErrDomain, "not a reduction")
	}
	return g.reduce(op, input)
}

// Filter keeps the elements or rows of input where pred is true.
func (g *Graph) Filter(input, pred OpId) (OpId, error) {
	if err := g.checkIds(OP_FILTER, input, pred); err != nil {
		return InvalidOp, err
	}
	in, p := g.nodes[input], g.nodes[pred]
	if p.Typ != common.TID_BOOL || p.Shape == SHAPE_TABLE {
		return InvalidOp, buildErr(OP_FILTER, common.ErrType, "predicate is %s %s", p.Typ, p.Shape)
	}
	if in.Shape == SHAPE_ATOM {
		return InvalidOp, buildErr(OP_FILTER, common.ErrType, "atom input")
	}
	n := newNode(OP_FILTER)
	n.Inputs = []OpId{input, pred}
	n.Shape = in.Shape
	n.Typ = in.Typ
	n.Schema = in.Schema
	return g.add(n), nil
}

// keyColumns resolves key nodes naming columns of a table input.
func (g *Graph) keyColumns(op OpKind, schema []Field, keys []OpId) ([]int32, []common.TypeId, error) {
	names := make([]int32, len(keys))
	types := make([]common.TypeId, len(keys))
	for i, key := range keys {
		if err := g.checkIds(op, key); err != nil {
			return nil, nil, err
		}
		k := g.nodes[key]
		if k.Kind != OP_SCAN {
			return nil, nil, buildErr(op, common.ErrType, "key %d is %s, not a column", i, k.Kind)
		}
		found := false
		for _, f := range schema {
			if f.Name == k.Name {
				types[i] = f.Typ
				found = true
				break
			}
		}
		if !found {
			return nil, nil, buildErr(op, common.ErrColumnNotFound, "key column %q", sym.Str(k.Name))
		}
		names[i] = k.Name
	}
	return names, types, nil
}

// Sort orders the rows of table by keys, the first key most significant.
func (g *Graph) Sort(table OpId, keys []OpId, descs []bool) (OpId, error) {
	if err := g.checkIds(OP_SORT, table); err != nil {
		return InvalidOp, err
	}
	if len(keys) == 0 || len(keys) != len(descs) {
		return InvalidOp, buildErr(OP_SORT, common.ErrLength, "%d keys, %d directions", len(keys), len(descs))
	}
	in := g.nodes[table]
	if in.Shape != SHAPE_TABLE {
		return InvalidOp, buildErr(OP_SORT, common.ErrType, "input is %s", in.Shape)
	}
	names, _, err := g.keyColumns(OP_SORT, in.Schema, keys)
	if err != nil {
		return InvalidOp, err
	}
	n := newNode(OP_SORT)
	n.Inputs = []OpId{table}
	n.Shape = SHAPE_TABLE
	n.Schema = in.Schema
	n.KeyCols = names
	n.Descs = append([]bool(nil), descs...)
	return g.add(n), nil
}

// Group aggregates aggIns[i] with aggOps[i] per distinct key tuple.
func (g *Graph) Group(keys []OpId, aggOps []OpKind, aggIns []OpId) (OpId, error) {
	if len(keys) == 0 {
		return InvalidOp, buildErr(OP_GROUP, common.ErrLength, "no keys")
	}
	if len(aggOps) != len(aggIns) {
		return InvalidOp, buildErr(OP_GROUP, common.ErrLength, "%d aggregate ops, %d inputs", len(aggOps), len(aggIns))
	}
	if err := g.checkIds(OP_GROUP, keys...); err != nil {
		return InvalidOp, err
	}
	if err := g.checkIds(OP_GROUP, aggIns...); err != nil {
		return InvalidOp, err
	}
	n := newNode(OP_GROUP)
	n.Shape = SHAPE_TABLE
	n.NumKeys = len(keys)
	n.Inputs = append(append([]OpId(nil), keys...), aggIns...)
	n.AggOps = append([]OpKind(nil), aggOps...)
	for i, key := range keys {
		k := g.nodes[key]
		if k.Shape != SHAPE_VECTOR || !k.Typ.Valid() {
			return InvalidOp, buildErr(OP_GROUP, common.ErrType, "key %d is %s %s", i, k.Typ, k.Shape)
		}
		name := g.columnName(key)
		if name == 0 {
			name = sym.Intern(fmt.Sprintf("k%d", i))
		}
		n.OutNames = append(n.OutNames, name)
		n.Schema = append(n.Schema, Field{Name: name, Typ: k.Typ})
	}
	for i, op := range aggOps {
		in := g.nodes[aggIns[i]]
		if !op.IsReduction() {
			return InvalidOp, buildErr(OP_GROUP, common.ErrDomain, "%s is not an aggregate", op)
		}
		if in.Shape != SHAPE_VECTOR || !in.Typ.Valid() {
			return InvalidOp, buildErr(OP_GROUP, common.ErrType, "aggregate input %d is %s %s", i, in.Typ, in.Shape)
		}
		typ, err := reductionType(op, in.Typ)
		if err != nil {
			return InvalidOp, err
		}
		inName := sym.Str(g.columnName(aggIns[i]))
		if inName == "" {
			inName = fmt.Sprintf("a%d", i)
		}
		name := sym.Intern(op.String() + "_" + inName)
		n.OutNames = append(n.OutNames, name)
		n.Schema = append(n.Schema, Field{Name: name, Typ: typ})
	}
	return g.add(n), nil
}

// GroupHint attaches an explicit key cardinality estimate to a Group.
func (g *Graph) GroupHint(op OpId, cardinality int64) error {
	if err := g.checkIds(OP_GROUP, op); err != nil {
		return err
	}
	n := g.nodes[op]
	if n.Kind != OP_GROUP {
		return buildErr(OP_GROUP, common.ErrType, "node %d is %s", op, n.Kind)
	}
	if cardinality < 0 {
		return buildErr(OP_GROUP, common.ErrDomain, "negative cardinality %d", cardinality)
	}
	n.Hint = cardinality
	return nil
}

// SetGroupStrategy forces the aggregation strategy of a Group node.
func (g *Graph) SetGroupStrategy(op OpId, strategy AggStrategy) error {
	if err := g.checkIds(OP_GROUP, op); err != nil {
		return err
	}
	n := g.nodes[op]
	if n.Kind != OP_GROUP {
		return buildErr(OP_GROUP, common.ErrType, "node %d is %s", op, n.Kind)
	}
	n.Strategy = strategy
	return nil
}

// Join matches rows of left and right on equal key tuples.
func (g *Graph) Join(left OpId, leftKeys []OpId, right OpId, rightKeys []OpId, kind JoinKind) (OpId, error) {
	if err := g.checkIds(OP_JOIN, left, right); err != nil {
		return InvalidOp, err
	}
	if kind != JOIN_INNER && kind != JOIN_LEFT {
		return InvalidOp, buildErr(OP_JOIN, common.ErrDomain, "unknown join kind %d", int(kind))
	}
	if len(leftKeys) == 0 || len(leftKeys) != len(rightKeys) {
		return InvalidOp, buildErr(OP_JOIN, common.ErrLength, "%d left keys, %d right keys", len(leftKeys), len(rightKeys))
	}
	l, r := g.nodes[left], g.nodes[right]
	if l.Shape != SHAPE_TABLE || r.Shape != SHAPE_TABLE {
		return InvalidOp, buildErr(OP_JOIN, common.ErrType, "inputs are %s and %s", l.Shape, r.Shape)
	}
	lnames, ltypes, err := g.keyColumns(OP_JOIN, l.Schema, leftKeys)
	if err != nil {
		return InvalidOp, err
	}
	rnames, rtypes, err := g.keyColumns(OP_JOIN, r.Schema, rightKeys)
	if err != nil {
		return InvalidOp, err
	}
	for i := range ltypes {
		if !common.Comparable(ltypes[i], rtypes[i]) {
			return InvalidOp, buildErr(OP_JOIN, common.ErrType, "key %d: %s with %s", i, ltypes[i], rtypes[i])
		}
	}
	n := newNode(OP_JOIN)
	n.Inputs = []OpId{left, right}
	n.Shape = SHAPE_TABLE
	n.Schema = append(append([]Field(nil), l.Schema...), r.Schema...)
	n.KeyCols = lnames
	n.RightKeyCols = rnames
	n.JoinKind = kind
	return g.add(n), nil
}

func (g *Graph) headTail(op OpKind, input OpId, count int64) (OpId, error) {
	if err := g.checkIds(op, input); err != nil {
		return InvalidOp, err
	}
	if count < 0 {
		return InvalidOp, buildErr(op, common.ErrDomain, "negative count %d", count)
	}
	in := g.nodes[input]
	if in.Shape == SHAPE_ATOM {
		return InvalidOp, buildErr(op, common.ErrType, "atom input")
	}
	n := newNode(op)
	n.Inputs = []OpId{input}
	n.Shape = in.Shape
	n.Typ = in.Typ
	n.Schema = in.Schema
	n.N = count
	return g.add(n), nil
}

func (g *Graph) Head(input OpId, count int64) (OpId, error) {
	return g.headTail(OP_HEAD, input, count)
}

func (g *Graph) Tail(input OpId, count int64) (OpId, error) {
	return g.headTail(OP_TAIL, input, count)
}

// elementwise checks the operands of a per-element operator: no tables, a
// known element type. The result is a vector when any operand is.
func (g *Graph) elementwise(op OpKind, ids ...OpId) (Shape, error) {
	if err := g.checkIds(op, ids...); err != nil {
		return SHAPE_ATOM, err
	}
	shape := SHAPE_ATOM
	for i, id := range ids {
		in := g.nodes[id]
		if in.Shape == SHAPE_TABLE {
			return SHAPE_ATOM, buildErr(op, common.ErrType, "table operand")
		}
		if !in.Typ.Valid() {
			return SHAPE_ATOM, buildErr(op, common.ErrType, "operand %d has no element type", i)
		}
		if in.Shape == SHAPE_VECTOR {
			shape = SHAPE_VECTOR
		}
	}
	return shape, nil
}

// Cast converts input to typ.
func (g *Graph) Cast(input OpId, typ common.TypeId) (OpId, error) {
	shape, err := g.elementwise(OP_CAST, input)
	if err != nil {
		return InvalidOp, err
	}
	if !typ.Valid() {
		return InvalidOp, buildErr(OP_CAST, common.ErrType, "cast to %s", typ)
	}
	n := newNode(OP_CAST)
	n.Inputs = []OpId{input}
	n.Shape = shape
	n.Typ = typ
	return g.add(n), nil
}

func isText(typ common.TypeId) bool {
	return typ == common.TID_STR || typ == common.TID_SYM
}

func ifType(a, b common.TypeId) (common.TypeId, error) {
	switch {
	case a.IsNumeric() && b.IsNumeric():
		return common.Promote(a, b), nil
	case a == common.TID_STR && b == common.TID_STR:
		return common.TID_STR, nil
	case isText(a) && isText(b):
		return common.TID_SYM, nil
	}
	return common.TID_INVALID, buildErr(OP_IF, common.ErrType, "branches are %s and %s", a, b)
}

// If picks then where cond is true, els elsewhere.
func (g *Graph) If(cond, then, els OpId) (OpId, error) {
	shape, err := g.elementwise(OP_IF, cond, then, els)
	if err != nil {
		return InvalidOp, err
	}
	if c := g.nodes[cond]; c.Typ != common.TID_BOOL {
		return InvalidOp, buildErr(OP_IF, common.ErrType, "condition is %s", c.Typ)
	}
	typ, err := ifType(g.nodes[then].Typ, g.nodes[els].Typ)
	if err != nil {
		return InvalidOp, err
	}
	n := newNode(OP_IF)
	n.Inputs = []OpId{cond, then, els}
	n.Shape = shape
	n.Typ = typ
	return g.add(n), nil
}

// stringOp builds a string operator. The first operand is the text; check
// validates the rest.
func (g *Graph) stringOp(op OpKind, typ common.TypeId, ids []OpId, check func(i int, typ common.TypeId) bool) (OpId, error) {
	shape, err := g.elementwise(op, ids...)
	if err != nil {
		return InvalidOp, err
	}
	for i, id := range ids {
		in := g.nodes[id]
		if i == 0 && !isText(in.Typ) || i > 0 && !check(i, in.Typ) {
			return InvalidOp, buildErr(op, common.ErrType, "operand %d is %s", i, in.Typ)
		}
	}
	if typ == common.TID_INVALID {
		typ = g.nodes[ids[0]].Typ
	}
	n := newNode(op)
	n.Inputs = append([]OpId(nil), ids...)
	n.Shape = shape
	n.Typ = typ
	return g.add(n), nil
}

func textOperand(_ int, typ common.TypeId) bool {
	return isText(typ)
}

func (g *Graph) Upper(input OpId) (OpId, error) {
	return g.stringOp(OP_UPPER, common.TID_INVALID, []OpId{input}, nil)
}

func (g *Graph) Lower(input OpId) (OpId, error) {
	return g.stringOp(OP_LOWER, common.TID_INVALID, []OpId{input}, nil)
}

func (g *Graph) Trim(input OpId) (OpId, error) {
	return g.stringOp(OP_TRIM, common.TID_INVALID, []OpId{input}, nil)
}

// Strlen counts runes.
func (g *Graph) Strlen(input OpId) (OpId, error) {
	return g.stringOp(OP_STRLEN, common.TID_I64, []OpId{input}, nil)
}

// Like matches input against a SQL pattern atom: % is any run, _ one rune.
func (g *Graph) Like(input, pattern OpId) (OpId, error) {
	if err := g.checkIds(OP_LIKE, pattern); err != nil {
		return InvalidOp, err
	}
	if p := g.nodes[pattern]; p.Shape != SHAPE_ATOM {
		return InvalidOp, buildErr(OP_LIKE, common.ErrType, "pattern is a %s", p.Shape)
	}
	return g.stringOp(OP_LIKE, common.TID_BOOL, []OpId{input, pattern}, textOperand)
}

// Substr takes length runes from the 1-based rune position start.
func (g *Graph) Substr(input, start, length OpId) (OpId, error) {
	return g.stringOp(OP_SUBSTR, common.TID_INVALID, []OpId{input, start, length}, func(_ int, typ common.TypeId) bool {
		return typ.IsInteger()
	})
}

// Replace substitutes every occurrence of from with to.
func (g *Graph) Replace(input, from, to OpId) (OpId, error) {
	return g.stringOp(OP_REPLACE, common.TID_INVALID, []OpId{input, from, to}, textOperand)
}

// Concat joins two or more strings. The result is Sym when every input is.
func (g *Graph) Concat(inputs ...OpId) (OpId, error) {
	if len(inputs) < 2 {
		return InvalidOp, buildErr(OP_CONCAT, common.ErrLength, "%d inputs", len(inputs))
	}
	if err := g.checkIds(OP_CONCAT, inputs...); err != nil {
		return InvalidOp, err
	}
	typ := common.TID_SYM
	for _, id := range inputs {
		if g.nodes[id].Typ == common.TID_STR {
			typ = common.TID_STR
		}
	}
	return g.stringOp(OP_CONCAT, typ, inputs, textOperand)
}

// Alias names a vector or atom for Group and Project outputs.
func (g *Graph) Alias(input OpId, name string) (OpId, error) {
	if err := g.checkIds(OP_ALIAS, input); err != nil {
		return InvalidOp, err
	}
	if name == "" {
		return InvalidOp, buildErr(OP_ALIAS, common.ErrDomain, "empty name")
	}
	in := g.nodes[input]
	if in.Shape == SHAPE_TABLE {
		return InvalidOp, buildErr(OP_ALIAS, common.ErrType, "table operand")
	}
	n := newNode(OP_ALIAS)
	n.Inputs = []OpId{input}
	n.Shape = in.Shape
	n.Typ = in.Typ
	n.Unbound = in.Unbound
	n.Name = sym.Intern(name)
	return g.add(n), nil
}

// passColumn resolves a column reference, or an alias of one, to the column
// it reads and its output name.
func (g *Graph) passColumn(id OpId) (src, name int32, ok bool) {
	n := g.nodes[id]
	if n.Kind == OP_ALIAS {
		name = n.Name
		n = g.nodes[n.Inputs[0]]
	}
	if n.Kind != OP_SCAN {
		return 0, 0, false
	}
	if name == 0 {
		name = n.Name
	}
	return n.Name, name, true
}

func schemaType(schema []Field, name int32) (common.TypeId, bool) {
	for _, f := range schema {
		if f.Name == name {
			return f.Typ, true
		}
	}
	return common.TID_INVALID, false
}

func (g *Graph) tableInput(op OpKind, table OpId, cols []OpId) (*Node, error) {
	if err := g.checkIds(op, table); err != nil {
		return nil, err
	}
	if err := g.checkIds(op, cols...); err != nil {
		return nil, err
	}
	if len(cols) == 0 {
		return nil, buildErr(op, common.ErrLength, "no columns")
	}
	in := g.nodes[table]
	if in.Shape != SHAPE_TABLE {
		return nil, buildErr(op, common.ErrType, "input is %s", in.Shape)
	}
	return in, nil
}

func addOutput(op OpKind, n *Node, name int32, typ common.TypeId) error {
	for _, f := range n.Schema {
		if f.Name == name {
			return buildErr(op, common.ErrDomain, "duplicate output column %q", sym.Str(name))
		}
	}
	n.OutNames = append(n.OutNames, name)
	n.Schema = append(n.Schema, Field{Name: name, Typ: typ})
	return nil
}

// Select keeps the named columns of table in the given order.
func (g *Graph) Select(table OpId, cols []OpId) (OpId, error) {
	in, err := g.tableInput(OP_SELECT, table, cols)
	if err != nil {
		return InvalidOp, err
	}
	n := newNode(OP_SELECT)
	n.Inputs = []OpId{table}
	n.Shape = SHAPE_TABLE
	for i, col := range cols {
		src, name, ok := g.passColumn(col)
		if !ok {
			return InvalidOp, buildErr(OP_SELECT, common.ErrType, "column %d is %s, not a column", i, g.nodes[col].Kind)
		}
		typ, ok := schemaType(in.Schema, src)
		if !ok {
			return InvalidOp, buildErr(OP_SELECT, common.ErrColumnNotFound, "column %q", sym.Str(src))
		}
		if err = addOutput(OP_SELECT, n, name, typ); err != nil {
			return InvalidOp, err
		}
		n.PassCols = append(n.PassCols, src)
	}
	return g.add(n), nil
}

// Project builds a table with one column per expr. Col references pass the
// columns of table through; other exprs are computed and broadcast when they
// are atoms.
func (g *Graph) Project(table OpId, exprs []OpId) (OpId, error) {
	in, err := g.tableInput(OP_PROJECT, table, exprs)
	if err != nil {
		return InvalidOp, err
	}
	n := newNode(OP_PROJECT)
	n.Inputs = []OpId{table}
	n.Shape = SHAPE_TABLE
	for i, expr := range exprs {
		e := g.nodes[expr]
		if e.Unbound {
			src, name, _ := g.passColumn(expr)
			typ, ok := schemaType(in.Schema, src)
			if !ok {
				return InvalidOp, buildErr(OP_PROJECT, common.ErrColumnNotFound, "column %q", sym.Str(src))
			}
			if err = addOutput(OP_PROJECT, n, name, typ); err != nil {
				return InvalidOp, err
			}
			n.PassCols = append(n.PassCols, src)
			continue
		}
		if e.Shape == SHAPE_TABLE || !e.Typ.Valid() {
			return InvalidOp, buildErr(OP_PROJECT, common.ErrType, "expr %d is %s %s", i, e.Typ, e.Shape)
		}
		name := g.columnName(expr)
		if name == 0 {
			name = sym.Intern(fmt.Sprintf("c%d", i))
		}
		if err = addOutput(OP_PROJECT, n, name, e.Typ); err != nil {
			return InvalidOp, err
		}
		n.PassCols = append(n.PassCols, 0)
		n.Inputs = append(n.Inputs, expr)
	}
	return g.add(n), nil
}

// Materialize copies slices and segmented vectors into their own blocks.
func (g *Graph) Materialize(input OpId) (OpId, error) {
	if err := g.checkIds(OP_MATERIALIZE, input); err != nil {
		return InvalidOp, err
	}
	in := g.nodes[input]
	n := newNode(OP_MATERIALIZE)
	n.Inputs = []OpId{input}
	n.Shape = in.Shape
	n.Typ = in.Typ
	n.Schema = in.Schema
	return g.add(n), nil
}
