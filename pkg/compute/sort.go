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
	"slices"
	"strings"

	"github.com/pkg/errors"

	"github.com/daviszhen/colq/pkg/chunk"
	"github.com/daviszhen/colq/pkg/common"
	"github.com/daviszhen/colq/pkg/sym"
	"github.com/daviszhen/colq/pkg/util"
)

// sortTable returns the rows of t ordered by keyCols. Every key pass is
// stable, so running them from the least significant key yields the
// lexicographic order and equal rows keep their input order.
func (g *Graph) sortTable(t *chunk.Table, keyCols []int32, descs []bool) (*chunk.Table, error) {
	n := t.RowCount()
	perm := make([]int, n)
	for i := range perm {
		perm[i] = i
	}
	for k := len(keyCols) - 1; k >= 0; k-- {
		col, ok := t.ColumnBySym(keyCols[k])
		if !ok {
			return nil, errors.Wrapf(common.ErrColumnNotFound, "sort key %q", sym.Str(keyCols[k]))
		}
		flat := col.Flatten()
		err := g.sortByColumn(flat, descs[k], perm)
		flat.Release()
		if err != nil {
			return nil, err
		}
	}

	names, cols := tableColumns(t)
	out, err := g.gatherTable(names, cols, perm)
	if err != nil {
		return nil, err
	}
	if !descs[0] {
		if i := out.ColumnIndexSym(keyCols[0]); i >= 0 {
			c := out.Column(i)
			c.SetAttrs(c.Attrs() | chunk.ATTR_SORTED)
		}
	}
	return out, nil
}

// sortByColumn stably reorders perm by the values of col at perm.
func (g *Graph) sortByColumn(col *chunk.Vector, desc bool, perm []int) error {
	if col.Type() == common.TID_STR {
		sortStrings(col, desc, perm)
		return nil
	}
	keys := make([]uint64, len(perm))
	width := 8
	switch col.Type() {
	case common.TID_BOOL:
		vals := col.Bools()
		for i, row := range perm {
			keys[i] = util.EncodeBoolKey(vals[row])
		}
		width = 1
	case common.TID_I32:
		vals := col.I32s()
		for i, row := range perm {
			keys[i] = util.EncodeInt32Key(vals[row])
		}
		width = 4
	case common.TID_I64:
		vals := col.I64s()
		for i, row := range perm {
			keys[i] = util.EncodeInt64Key(vals[row])
		}
	case common.TID_F64:
		vals := col.F64s()
		for i, row := range perm {
			x := vals[row]
			if x == 0 {
				//-0 sorts with +0
				x = 0
			}
			keys[i] = util.EncodeFloat64Key(x)
		}
	case common.TID_SYM:
		rank := symRanks(col.Syms())
		vals := col.Syms()
		for i, row := range perm {
			keys[i] = uint64(rank[vals[row]])
		}
		width = 4
	default:
		return errors.Wrapf(common.ErrType, "sort on %s", col.Type())
	}
	if desc {
		var mask uint64 = 1<<(8*uint(width)) - 1
		if width == 8 {
			mask = ^uint64(0)
		}
		for i := range keys {
			keys[i] = util.FlipKey(keys[i]) & mask
		}
	}
	return RadixSortLSD(g.arena, keys, perm, width)
}

// symRanks orders the distinct symbols of vals by their strings.
func symRanks(vals []int32) map[int32]uint32 {
	rank := make(map[int32]uint32)
	for _, id := range vals {
		rank[id] = 0
	}
	ids := make([]int32, 0, len(rank))
	for id := range rank {
		ids = append(ids, id)
	}
	table := sym.G()
	slices.SortFunc(ids, table.Compare)
	for i, id := range ids {
		rank[id] = uint32(i)
	}
	return rank
}

func sortStrings(col *chunk.Vector, desc bool, perm []int) {
	slices.SortStableFunc(perm, func(a, b int) int {
		if desc {
			return strings.Compare(col.StrAt(b), col.StrAt(a))
		}
		return strings.Compare(col.StrAt(a), col.StrAt(b))
	})
}
