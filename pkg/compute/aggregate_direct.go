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
	"math/bits"

	"github.com/daviszhen/colq/pkg/chunk"
	"github.com/daviszhen/colq/pkg/common"
	"github.com/daviszhen/colq/pkg/mem"
)

func directEligible(keys []*chunk.Vector) bool {
	for _, k := range keys {
		if !k.Type().IsIntegral() {
			return false
		}
	}
	return true
}

// keyRange is the bounded domain of one direct-array key. Slot 0 holds nulls,
// value v maps to slot v-lo+1.
type keyRange struct {
	lo    int64
	slots uint64
}

func rangeOf[T int32 | int64](vals []T, null T, mask []bool) keyRange {
	lo, hi := int64(math.MaxInt64), int64(math.MinInt64)
	seen := false
	for i, x := range vals {
		if x == null || (mask != nil && !mask[i]) {
			continue
		}
		seen = true
		lo = min(lo, int64(x))
		hi = max(hi, int64(x))
	}
	if !seen {
		return keyRange{slots: 1}
	}
	span := uint64(hi) - uint64(lo)
	if span >= math.MaxUint64-1 {
		return keyRange{lo: lo, slots: math.MaxUint64}
	}
	return keyRange{lo: lo, slots: span + 2}
}

func addSlots[T int32 | int64](vals []T, null T, r keyRange, stride uint64, idx []uint64) {
	for i, x := range vals {
		if x != null {
			idx[i] += stride * (uint64(int64(x)-r.lo) + 1)
		}
	}
}

func keySlots(key *chunk.Vector, mask []bool) keyRange {
	switch key.Type() {
	case common.TID_BOOL:
		return keyRange{lo: 0, slots: 3}
	case common.TID_I32:
		return rangeOf(key.I32s(), common.NullI32, mask)
	case common.TID_SYM:
		return rangeOf(key.Syms(), common.NullSym, mask)
	case common.TID_I64:
		return rangeOf(key.I64s(), common.NullI64, mask)
	}
	return keyRange{slots: math.MaxUint64}
}

// directGroupIds resolves group ids through a dense slot array indexed by the
// composite key. It reports false when the key ranges need more than
// maxSlots slots.
func directGroupIds(a *mem.Arena, keys []*chunk.Vector, mask []bool, maxSlots uint64) (*groupIds, bool, error) {
	n := keys[0].Len()
	ranges := make([]keyRange, len(keys))
	total := uint64(1)
	for i, key := range keys {
		ranges[i] = keySlots(key, mask)
		hi, lo := bits.Mul64(total, ranges[i].slots)
		if hi != 0 || lo > maxSlots {
			return nil, false, nil
		}
		total = lo
	}

	idx, err := mem.Alloc[uint64](a, n)
	if err != nil {
		return nil, false, err
	}
	stride := uint64(1)
	for i, key := range keys {
		switch key.Type() {
		case common.TID_BOOL:
			for row, b := range key.Bools() {
				if b {
					idx[row] += stride * 2
				} else {
					idx[row] += stride
				}
			}
		case common.TID_I32:
			addSlots(key.I32s(), common.NullI32, ranges[i], stride, idx)
		case common.TID_SYM:
			addSlots(key.Syms(), common.NullSym, ranges[i], stride, idx)
		case common.TID_I64:
			addSlots(key.I64s(), common.NullI64, ranges[i], stride, idx)
		}
		stride *= ranges[i].slots
	}

	//slot -> group id + 1, 0 is empty
	table, err := mem.Alloc[int32](a, int(total))
	if err != nil {
		return nil, false, err
	}
	gids, err := mem.Alloc[int32](a, n)
	if err != nil {
		return nil, false, err
	}
	ids := &groupIds{gids: gids}
	for row, s := range idx {
		if mask != nil && !mask[row] {
			gids[row] = -1
			continue
		}
		g := table[s]
		if g == 0 {
			ids.firstRow = append(ids.firstRow, row)
			g = int32(len(ids.firstRow))
			table[s] = g
		}
		gids[row] = g - 1
	}
	return ids, true, nil
}
