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
	"github.com/daviszhen/colq/pkg/mem"
)

const (
	VALUES_PER_RADIX = 256
)

// RadixSortLSD stably reorders perm by keys, one byte per pass from the least
// significant of the low width bytes. keys is clobbered.
func RadixSortLSD(a *mem.Arena, keys []uint64, perm []int, width int) error {
	count := len(keys)
	tempKeys, err := mem.Alloc[uint64](a, count)
	if err != nil {
		return err
	}
	tempPerm, err := mem.Alloc[int](a, count)
	if err != nil {
		return err
	}
	origPerm := perm
	swap := false

	var counts [VALUES_PER_RADIX]int
	for r := 0; r < width; r++ {
		shift := uint(8 * r)
		clear(counts[:])
		for _, k := range keys {
			counts[byte(k>>shift)]++
		}

		maxCount := counts[0]
		for val := 1; val < VALUES_PER_RADIX; val++ {
			maxCount = max(maxCount, counts[val])
			counts[val] = counts[val] + counts[val-1]
		}
		if maxCount == count {
			continue
		}

		for i := count - 1; i >= 0; i-- {
			val := byte(keys[i] >> shift)
			counts[val]--
			radixOffset := counts[val]
			tempKeys[radixOffset] = keys[i]
			tempPerm[radixOffset] = perm[i]
		}
		keys, tempKeys = tempKeys, keys
		perm, tempPerm = tempPerm, perm
		swap = !swap
	}
	if swap {
		copy(origPerm, perm)
	}
	return nil
}
