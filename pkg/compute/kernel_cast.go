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
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cast"

	"github.com/daviszhen/colq/pkg/chunk"
	"github.com/daviszhen/colq/pkg/common"
	"github.com/daviszhen/colq/pkg/sym"
)

// operand is a typed view of an atom (one value, broadcast) or a vector.
type operand[T any] struct {
	vals   []T
	scalar bool
}

func (o operand[T]) at(i int) T {
	if o.scalar {
		return o.vals[0]
	}
	return o.vals[i]
}

func valueType(v chunk.Value) common.TypeId {
	switch x := v.(type) {
	case *chunk.Atom:
		return x.Type()
	case *chunk.Vector:
		return x.Type()
	}
	return common.TID_INVALID
}

// asVector views an atom as a one element vector. The result is a new
// reference.
func asVector(v chunk.Value) *chunk.Vector {
	switch x := v.(type) {
	case *chunk.Atom:
		return chunk.Broadcast(x, 1)
	case *chunk.Vector:
		x.Retain()
		return x
	}
	panic("usp")
}

func toI64(v chunk.Value) operand[int64] {
	if a, ok := v.(*chunk.Atom); ok {
		return operand[int64]{vals: []int64{a.I64()}, scalar: true}
	}
	return operand[int64]{vals: vectorI64(v.(*chunk.Vector))}
}

func toI32(v chunk.Value) operand[int32] {
	if a, ok := v.(*chunk.Atom); ok {
		if a.Type() == common.TID_BOOL {
			return operand[int32]{vals: []int32{int32(a.I64())}, scalar: true}
		}
		return operand[int32]{vals: []int32{a.I32()}, scalar: true}
	}
	vec := v.(*chunk.Vector)
	if vec.Type() == common.TID_I32 {
		return operand[int32]{vals: vec.I32s()}
	}
	src := vec.Bools()
	out := make([]int32, len(src))
	for i, b := range src {
		if b {
			out[i] = 1
		}
	}
	return operand[int32]{vals: out}
}

func toF64(v chunk.Value) operand[float64] {
	if a, ok := v.(*chunk.Atom); ok {
		return operand[float64]{vals: []float64{a.F64()}, scalar: true}
	}
	return operand[float64]{vals: vectorF64(v.(*chunk.Vector))}
}

func toBool(v chunk.Value) operand[bool] {
	if a, ok := v.(*chunk.Atom); ok {
		return operand[bool]{vals: []bool{a.Bool()}, scalar: true}
	}
	return operand[bool]{vals: v.(*chunk.Vector).Bools()}
}

// vectorI64 widens Bool, I32, I64 and Sym elements; I32 nulls become I64
// nulls.
func vectorI64(v *chunk.Vector) []int64 {
	switch v.Type() {
	case common.TID_I64:
		return v.I64s()
	case common.TID_I32, common.TID_SYM:
		src := chunk.GetSlice[int32](v)
		out := make([]int64, len(src))
		for i, x := range src {
			if x == common.NullI32 {
				out[i] = common.NullI64
			} else {
				out[i] = int64(x)
			}
		}
		return out
	case common.TID_BOOL:
		src := v.Bools()
		out := make([]int64, len(src))
		for i, b := range src {
			if b {
				out[i] = 1
			}
		}
		return out
	case common.TID_F64:
		src := v.F64s()
		out := make([]int64, len(src))
		for i, x := range src {
			if common.IsNullF64(x) {
				out[i] = common.NullI64
			} else {
				out[i] = int64(x)
			}
		}
		return out
	}
	panic("usp")
}

// vectorF64 converts numeric elements; integer nulls become NaN.
func vectorF64(v *chunk.Vector) []float64 {
	switch v.Type() {
	case common.TID_F64:
		return v.F64s()
	case common.TID_I64:
		src := v.I64s()
		out := make([]float64, len(src))
		for i, x := range src {
			if x == common.NullI64 {
				out[i] = common.F64Null()
			} else {
				out[i] = float64(x)
			}
		}
		return out
	case common.TID_I32:
		src := v.I32s()
		out := make([]float64, len(src))
		for i, x := range src {
			if x == common.NullI32 {
				out[i] = common.F64Null()
			} else {
				out[i] = float64(x)
			}
		}
		return out
	case common.TID_BOOL:
		src := v.Bools()
		out := make([]float64, len(src))
		for i, b := range src {
			if b {
				out[i] = 1
			}
		}
		return out
	}
	panic("usp")
}

// boxResult turns a one element result into an atom when both operands were
// atoms.
func boxResult(out *chunk.Vector, scalar bool) chunk.Value {
	if !scalar {
		return out
	}
	a := out.Get(0)
	out.Release()
	return a
}

func evalCast(typ common.TypeId, input chunk.Value) (chunk.Value, error) {
	in := asVector(input)
	defer in.Release()
	_, scalar := input.(*chunk.Atom)
	out, err := castVector(in, typ)
	if err != nil {
		return nil, err
	}
	return boxResult(out, scalar), nil
}

// castVector returns a new reference: in itself when it already has typ.
func castVector(in *chunk.Vector, typ common.TypeId) (*chunk.Vector, error) {
	from := in.Type()
	n := in.Len()
	switch {
	case from == typ:
		in.Retain()
		return in, nil
	case from.IsNumeric() && typ.IsNumeric():
		return castNumeric(in, typ), nil
	case from == common.TID_SYM && typ == common.TID_STR:
		b := chunk.NewStrBuilder(n)
		for _, id := range in.Syms() {
			b.Append(sym.Str(id))
		}
		return b.Build(), nil
	case from == common.TID_STR && typ == common.TID_SYM:
		out := chunk.NewVector(common.TID_SYM, n)
		ids := out.Syms()
		for i := range ids {
			ids[i] = sym.Intern(in.StrAt(i))
		}
		return out, nil
	case isText(from) && typ.IsNumeric():
		return parseText(in, typ), nil
	case from.IsNumeric() && isText(typ):
		strs := make([]string, n)
		for i := range strs {
			if !in.IsNull(i) {
				strs[i] = in.ElemString(i)
			}
		}
		if typ == common.TID_SYM {
			return chunk.NewSymVectorStrings(strs), nil
		}
		return chunk.NewStrVector(strs), nil
	}
	return nil, errors.Wrapf(common.ErrType, "cast %s to %s", from, typ)
}

//bounds of float64 values that truncate into int64
const (
	minI64F64 = -9223372036854775808.0
	maxI64F64 = 9223372036854775808.0
)

// castNumeric converts between Bool, I32, I64 and F64. Values outside the
// target range become null; Bool is "non-zero and not null".
func castNumeric(in *chunk.Vector, typ common.TypeId) *chunk.Vector {
	n := in.Len()
	out := chunk.NewVector(typ, n)
	switch typ {
	case common.TID_BOOL:
		res := out.Bools()
		for i, x := range vectorF64(in) {
			res[i] = x == x && x != 0
		}
	case common.TID_F64:
		copy(out.F64s(), vectorF64(in))
	case common.TID_I64:
		res := out.I64s()
		if in.Type() != common.TID_F64 {
			copy(res, vectorI64(in))
			break
		}
		for i, x := range in.F64s() {
			res[i] = truncF64(x)
		}
	case common.TID_I32:
		res := out.I32s()
		var src []int64
		if in.Type() == common.TID_F64 {
			src = make([]int64, n)
			for i, x := range in.F64s() {
				src[i] = truncF64(x)
			}
		} else {
			src = vectorI64(in)
		}
		for i, x := range src {
			if x == common.NullI64 || x < math.MinInt32 || x > math.MaxInt32 {
				res[i] = common.NullI32
			} else {
				res[i] = int32(x)
			}
		}
	}
	return out
}

func truncF64(x float64) int64 {
	if x != x || x < minI64F64 || x >= maxI64F64 {
		return common.NullI64
	}
	return int64(x)
}

// parseText reads numbers out of Str or Sym elements. Null or unparsable
// text becomes null, false for Bool.
func parseText(in *chunk.Vector, typ common.TypeId) *chunk.Vector {
	at := textAt(in)
	n := in.Len()
	out := chunk.NewVector(typ, n)
	for i := 0; i < n; i++ {
		s := strings.TrimSpace(at(i))
		switch typ {
		case common.TID_BOOL:
			out.Bools()[i] = cast.ToBool(s)
		case common.TID_F64:
			x, err := cast.ToFloat64E(s)
			if err != nil {
				x = common.F64Null()
			}
			out.F64s()[i] = x
		case common.TID_I64:
			x, err := strconv.ParseInt(s, 10, 64)
			if err != nil {
				x = common.NullI64
			}
			out.I64s()[i] = x
		case common.TID_I32:
			x, err := strconv.ParseInt(s, 10, 32)
			if err != nil {
				x = int64(common.NullI32)
			}
			out.I32s()[i] = int32(x)
		}
	}
	return out
}
