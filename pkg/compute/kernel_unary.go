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

	"github.com/pkg/errors"

	"github.com/daviszhen/colq/pkg/chunk"
	"github.com/daviszhen/colq/pkg/common"
)

func evalUnary(op OpKind, typ common.TypeId, input chunk.Value) (chunk.Value, error) {
	in := asVector(input)
	defer in.Release()
	_, scalar := input.(*chunk.Atom)
	n := in.Len()
	it := in.Type()

	var out *chunk.Vector
	switch op {
	case OP_ISNULL:
		out = chunk.NewVector(common.TID_BOOL, n)
		res := out.Bools()
		for i := range res {
			res[i] = in.IsNull(i)
		}
	case OP_NOT:
		if it != common.TID_BOOL {
			return nil, errors.Wrapf(common.ErrType, "not on %s", it)
		}
		out = chunk.NewVector(common.TID_BOOL, n)
		res := out.Bools()
		for i, b := range in.Bools() {
			res[i] = !b
		}
	case OP_SQRT, OP_LOG, OP_EXP:
		if !it.IsNumeric() {
			return nil, errors.Wrapf(common.ErrType, "%s on %s", op, it)
		}
		out = chunk.NewVector(common.TID_F64, n)
		mathF64(op, vectorF64(in), out.F64s())
	default:
		if !it.IsNumeric() {
			return nil, errors.Wrapf(common.ErrType, "%s on %s", op, it)
		}
		out = chunk.NewVector(typ, n)
		switch typ {
		case common.TID_I32:
			unaryInt(op, toI32(in).vals, out.I32s(), common.NullI32)
		case common.TID_I64:
			unaryInt(op, vectorI64(in), out.I64s(), common.NullI64)
		case common.TID_F64:
			unaryF64(op, in.F64s(), out.F64s())
		default:
			out.Release()
			return nil, errors.Wrapf(common.ErrType, "%s result %s", op, typ)
		}
	}
	return boxResult(out, scalar), nil
}

func unaryInt[T integer](op OpKind, src, out []T, null T) {
	for i, x := range src {
		if x == null {
			out[i] = null
			continue
		}
		switch op {
		case OP_NEG:
			out[i] = -x
		case OP_ABS:
			if x < 0 {
				x = -x
			}
			out[i] = x
		default:
			//ceil and floor of integers
			out[i] = x
		}
	}
}

func unaryF64(op OpKind, src, out []float64) {
	for i, x := range src {
		switch op {
		case OP_NEG:
			out[i] = -x
		case OP_ABS:
			out[i] = math.Abs(x)
		case OP_CEIL:
			out[i] = math.Ceil(x)
		case OP_FLOOR:
			out[i] = math.Floor(x)
		default:
			out[i] = x
		}
	}
}

func mathF64(op OpKind, src, out []float64) {
	switch op {
	case OP_SQRT:
		for i, x := range src {
			out[i] = math.Sqrt(x)
		}
	case OP_LOG:
		for i, x := range src {
			out[i] = math.Log(x)
		}
	case OP_EXP:
		for i, x := range src {
			out[i] = math.Exp(x)
		}
	}
}
