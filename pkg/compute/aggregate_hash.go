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
	"github.com/pkg/errors"

	"github.com/daviszhen/colq/pkg/chunk"
	"github.com/daviszhen/colq/pkg/common"
	"github.com/daviszhen/colq/pkg/mem"
	"github.com/daviszhen/colq/pkg/util"
)

const minHashCapacity = 16

// hashGroupIds resolves group ids with an open addressing table over the
// combined key hash. A group is identified by the first row carrying its key.
func hashGroupIds(a *mem.Arena, keys []*chunk.Vector, mask []bool, maxGroups int) (*groupIds, error) {
	n := keys[0].Len()
	hashes, err := mem.Alloc[uint64](a, n)
	if err != nil {
		return nil, err
	}
	for i, key := range keys {
		hashColumn(key, hashes, i > 0)
	}
	eqs := make([]func(a, b int) bool, len(keys))
	for i, key := range keys {
		eqs[i] = equalFunc(key, key)
	}
	sameKey := func(a, b int) bool {
		for _, eq := range eqs {
			if !eq(a, b) {
				return false
			}
		}
		return true
	}

	capacity := util.NextPowerOfTwo(uint64(2 * n))
	if capacity < minHashCapacity {
		capacity = minHashCapacity
	}
	bitmask := capacity - 1
	//slot -> group id + 1, 0 is empty
	slots, err := mem.Alloc[int32](a, int(capacity))
	if err != nil {
		return nil, err
	}
	gids, err := mem.Alloc[int32](a, n)
	if err != nil {
		return nil, err
	}
	ids := &groupIds{gids: gids}
	var groupHash []uint64
	for row := 0; row < n; row++ {
		if mask != nil && !mask[row] {
			gids[row] = -1
			continue
		}
		h := hashes[row]
		pos := h & bitmask
		for {
			g := slots[pos]
			if g == 0 {
				if maxGroups > 0 && ids.count() >= maxGroups {
					return nil, errors.Wrapf(common.ErrExhausted, "more than %d groups", maxGroups)
				}
				ids.firstRow = append(ids.firstRow, row)
				groupHash = append(groupHash, h)
				g = int32(ids.count())
				slots[pos] = g
				gids[row] = g - 1
				break
			}
			if groupHash[g-1] == h && sameKey(ids.firstRow[g-1], row) {
				gids[row] = g - 1
				break
			}
			pos = (pos + 1) & bitmask
		}
	}
	return ids, nil
}
