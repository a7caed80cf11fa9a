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
	"strings"

	"github.com/pkg/errors"

	"github.com/daviszhen/colq/pkg/chunk"
	"github.com/daviszhen/colq/pkg/common"
	"github.com/daviszhen/colq/pkg/sym"
)

// operandLen is the broadcast length of the operands, -1 when all are
// atoms.
func operandLen(vals ...chunk.Value) (int, error) {
	n := -1
	for _, v := range vals {
		vec, ok := v.(*chunk.Vector)
		if !ok {
			continue
		}
		if n >= 0 && vec.Len() != n {
			return 0, errors.Wrapf(common.ErrLength, "operands have %d and %d elements", n, vec.Len())
		}
		n = vec.Len()
	}
	return n, nil
}

func evalBinary(op OpKind, typ common.TypeId, lhs, rhs chunk.Value) (chunk.Value, error) {
	n, err := operandLen(lhs, rhs)
	if err != nil {
		return nil, err
	}
	scalar := n < 0
	if scalar {
		n = 1
	}
	lt, rt := valueType(lhs), valueType(rhs)
	var out *chunk.Vector
	switch {
	case op.IsComparison():
		out, err = compare(op, lhs, rhs, lt, rt, n)
	case op == OP_AND || op == OP_OR:
		if lt != common.TID_BOOL || rt != common.TID_BOOL {
			return nil, errors.Wrapf(common.ErrType, "%s on %s and %s", op, lt, rt)
		}
		out = chunk.NewVector(common.TID_BOOL, n)
		logic(op, toBool(lhs), toBool(rhs), out.Bools())
	case op == OP_DIV:
		if !lt.IsNumeric() || !rt.IsNumeric() {
			return nil, errors.Wrapf(common.ErrType, "%s on %s and %s", op, lt, rt)
		}
		out = chunk.NewVector(common.TID_F64, n)
		intDiv := lt != common.TID_F64 && rt != common.TID_F64
		divide(toF64(lhs), toF64(rhs), out.F64s(), intDiv)
	default:
		if !lt.IsNumeric() || !rt.IsNumeric() {
			return nil, errors.Wrapf(common.ErrType, "%s on %s and %s", op, lt, rt)
		}
		out = chunk.NewVector(typ, n)
		switch typ {
		case common.TID_I32:
			arithInt(op, toI32(lhs), toI32(rhs), out.I32s(), common.NullI32)
		case common.TID_I64:
			arithInt(op, toI64(lhs), toI64(rhs), out.I64s(), common.NullI64)
		case common.TID_F64:
			arithF64(op, toF64(lhs), toF64(rhs), out.F64s())
		default:
			out.Release()
			return nil, errors.Wrapf(common.ErrType, "%s result %s", op, typ)
		}
	}
	if err != nil {
		return nil, err
	}
	return boxResult(out, scalar), nil
}

type integer interface {
	~int32 | ~int64
}

// arithInt wraps on overflow and propagates nulls. Division by zero in mod
// yields null; mod takes the sign of the divisor.
func arithInt[T integer](op OpKind, a, b operand[T], out []T, null T) {
	for i := range out {
		x, y := a.at(i), b.at(i)
		if x == null || y == null {
			out[i] = null
			continue
		}
		switch op {
		case OP_ADD:
			out[i] = x + y
		case OP_SUB:
			out[i] = x - y
		case OP_MUL:
			out[i] = x * y
		case OP_MOD:
			if y == 0 {
				out[i] = null
				continue
			}
			r := x % y
			if r != 0 && (r < 0) != (y < 0) {
				r += y
			}
			out[i] = r
		case OP_MIN2:
			out[i] = min(x, y)
		case OP_MAX2:
			out[i] = max(x, y)
		}
	}
}

func arithF64(op OpKind, a, b operand[float64], out []float64) {
	for i := range out {
		x, y := a.at(i), b.at(i)
		switch op {
		case OP_ADD:
			out[i] = x + y
		case OP_SUB:
			out[i] = x - y
		case OP_MUL:
			out[i] = x * y
		case OP_MOD:
			if y == 0 {
				out[i] = math.NaN()
				continue
			}
			r := math.Mod(x, y)
			if r != 0 && (r < 0) != (y < 0) {
				r += y
			}
			out[i] = r
		case OP_MIN2:
			if math.IsNaN(x) || math.IsNaN(y) {
				out[i] = math.NaN()
			} else {
				out[i] = math.Min(x, y)
			}
		case OP_MAX2:
			if math.IsNaN(x) || math.IsNaN(y) {
				out[i] = math.NaN()
			} else {
				out[i] = math.Max(x, y)
			}
		}
	}
}

// divide always yields floats. Integer operands divided by zero give null.
func divide(a, b operand[float64], out []float64, intDiv bool) {
	for i := range out {
		x, y := a.at(i), b.at(i)
		if intDiv && y == 0 {
			out[i] = math.NaN()
			continue
		}
		out[i] = x / y
	}
}

func logic(op OpKind, a, b operand[bool], out []bool) {
	if op == OP_AND {
		for i := range out {
			out[i] = a.at(i) && b.at(i)
		}
		return
	}
	for i := range out {
		out[i] = a.at(i) || b.at(i)
	}
}

func cmpResult(op OpKind, c int) bool {
	switch op {
	case OP_EQ:
		return c == 0
	case OP_NE:
		return c != 0
	case OP_LT:
		return c < 0
	case OP_LE:
		return c <= 0
	case OP_GT:
		return c > 0
	case OP_GE:
		return c >= 0
	}
	return false
}

func compareOrdered[T int64 | float64 | string](op OpKind, a, b operand[T], out []bool) {
	switch op {
	case OP_EQ:
		for i := range out {
			out[i] = a.at(i) == b.at(i)
		}
	case OP_NE:
		for i := range out {
			out[i] = a.at(i) != b.at(i)
		}
	case OP_LT:
		for i := range out {
			out[i] = a.at(i) < b.at(i)
		}
	case OP_LE:
		for i := range out {
			out[i] = a.at(i) <= b.at(i)
		}
	case OP_GT:
		for i := range out {
			out[i] = a.at(i) > b.at(i)
		}
	case OP_GE:
		for i := range out {
			out[i] = a.at(i) >= b.at(i)
		}
	}
}

func toStr(v chunk.Value, n int) operand[string] {
	if a, ok := v.(*chunk.Atom); ok {
		return operand[string]{vals: []string{a.Str()}, scalar: true}
	}
	vec := v.(*chunk.Vector)
	out := make([]string, n)
	for i := range out {
		out[i] = vec.StrAt(i)
	}
	return operand[string]{vals: out}
}

func toSym(v chunk.Value) operand[int32] {
	if a, ok := v.(*chunk.Atom); ok {
		return operand[int32]{vals: []int32{a.Sym()}, scalar: true}
	}
	return operand[int32]{vals: v.(*chunk.Vector).Syms()}
}

func compare(op OpKind, lhs, rhs chunk.Value, lt, rt common.TypeId, n int) (*chunk.Vector, error) {
	if !common.Comparable(lt, rt) {
		return nil, errors.Wrapf(common.ErrType, "cannot compare %s with %s", lt, rt)
	}
	out := chunk.NewVector(common.TID_BOOL, n)
	res := out.Bools()
	switch {
	case lt == common.TID_STR:
		compareOrdered(op, toStr(lhs, n), toStr(rhs, n), res)
	case lt == common.TID_SYM:
		a, b := toSym(lhs), toSym(rhs)
		if op == OP_EQ || op == OP_NE {
			for i := range res {
				res[i] = (a.at(i) == b.at(i)) == (op == OP_EQ)
			}
			break
		}
		table := sym.G()
		for i := range res {
			x, y := a.at(i), b.at(i)
			if x == y {
				res[i] = cmpResult(op, 0)
				continue
			}
			res[i] = cmpResult(op, strings.Compare(table.MustStr(x), table.MustStr(y)))
		}
	case lt == common.TID_F64 || rt == common.TID_F64:
		compareOrdered(op, toF64(lhs), toF64(rhs), res)
	default:
		compareOrdered(op, toI64(lhs), toI64(rhs), res)
	}
	return out, nil
}
