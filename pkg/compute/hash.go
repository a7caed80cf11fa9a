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

	"github.com/daviszhen/colq/pkg/chunk"
	"github.com/daviszhen/colq/pkg/common"
	"github.com/daviszhen/colq/pkg/util"
)

func hashF64(x float64) uint64 {
	switch {
	case x == 0:
		//+0 and -0
		x = 0
	case math.IsNaN(x):
		return util.HashU64(0x7ff8000000000001)
	}
	return util.HashU64(math.Float64bits(x))
}

// hashColumn writes the hash of every element of a contiguous vector into
// hashes, or combines it with the hashes already there.
func hashColumn(v *chunk.Vector, hashes []uint64, combine bool) {
	put := func(i int, h uint64) {
		if combine {
			hashes[i] = util.CombineHash(hashes[i], h)
		} else {
			hashes[i] = h
		}
	}
	switch v.Type() {
	case common.TID_BOOL:
		for i, b := range v.Bools() {
			if b {
				put(i, util.HashU64(1))
			} else {
				put(i, util.HashU64(0))
			}
		}
	case common.TID_I32, common.TID_SYM:
		for i, x := range chunk.GetSlice[int32](v) {
			put(i, util.HashU64(uint64(int64(x))))
		}
	case common.TID_I64:
		for i, x := range v.I64s() {
			put(i, util.HashU64(uint64(x)))
		}
	case common.TID_F64:
		for i, x := range v.F64s() {
			put(i, hashF64(x))
		}
	case common.TID_STR:
		for i := 0; i < v.Len(); i++ {
			put(i, util.HashString(v.StrAt(i)))
		}
	}
}

// equalFunc compares row a of v with row b of w; both have the type of v.
// Nulls equal nulls.
func equalFunc(v, w *chunk.Vector) func(a, b int) bool {
	switch v.Type() {
	case common.TID_BOOL:
		x, y := v.Bools(), w.Bools()
		return func(a, b int) bool { return x[a] == y[b] }
	case common.TID_I32, common.TID_SYM:
		x, y := chunk.GetSlice[int32](v), chunk.GetSlice[int32](w)
		return func(a, b int) bool { return x[a] == y[b] }
	case common.TID_I64:
		x, y := v.I64s(), w.I64s()
		return func(a, b int) bool { return x[a] == y[b] }
	case common.TID_F64:
		x, y := v.F64s(), w.F64s()
		return func(a, b int) bool {
			return x[a] == y[b] || (math.IsNaN(x[a]) && math.IsNaN(y[b]))
		}
	case common.TID_STR:
		return func(a, b int) bool { return v.StrAt(a) == w.StrAt(b) }
	}
	panic("usp")
}
