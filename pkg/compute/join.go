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
	"go.uber.org/zap"

	"github.com/daviszhen/colq/pkg/chunk"
	"github.com/daviszhen/colq/pkg/common"
	"github.com/daviszhen/colq/pkg/mem"
	"github.com/daviszhen/colq/pkg/sym"
	"github.com/daviszhen/colq/pkg/util"
)

// joinSide holds the hashed key tuple of one join input.
type joinSide struct {
	hashes []uint64
	//row has a null key component
	nulls []bool
}

func newJoinSide(a *mem.Arena, n int) (*joinSide, error) {
	hashes, err := mem.Alloc[uint64](a, n)
	if err != nil {
		return nil, err
	}
	nulls, err := mem.Alloc[bool](a, n)
	if err != nil {
		return nil, err
	}
	return &joinSide{hashes: hashes, nulls: nulls}, nil
}

func (side *joinSide) put(i int, h uint64, null bool, combine bool) {
	if combine {
		side.hashes[i] = util.CombineHash(side.hashes[i], h)
	} else {
		side.hashes[i] = h
	}
	if null {
		side.nulls[i] = true
	}
}

// joinKeyPair hashes one left/right key pair in their common domain and
// returns the equality test of that pair.
func joinKeyPair(lv, rv *chunk.Vector, left, right *joinSide, combine bool) func(l, r int) bool {
	lt, rt := lv.Type(), rv.Type()
	switch {
	case lt == common.TID_STR:
		for i := 0; i < lv.Len(); i++ {
			s := lv.StrAt(i)
			left.put(i, util.HashString(s), s == common.NullStr, combine)
		}
		for i := 0; i < rv.Len(); i++ {
			s := rv.StrAt(i)
			right.put(i, util.HashString(s), s == common.NullStr, combine)
		}
		return func(l, r int) bool { return lv.StrAt(l) == rv.StrAt(r) }
	case lt == common.TID_SYM:
		ls, rs := lv.Syms(), rv.Syms()
		for i, x := range ls {
			left.put(i, util.HashU64(uint64(int64(x))), x == common.NullSym, combine)
		}
		for i, x := range rs {
			right.put(i, util.HashU64(uint64(int64(x))), x == common.NullSym, combine)
		}
		return func(l, r int) bool { return ls[l] == rs[r] }
	case lt == common.TID_F64 || rt == common.TID_F64:
		lf, rf := vectorF64(lv), vectorF64(rv)
		for i, x := range lf {
			left.put(i, hashF64(x), common.IsNullF64(x), combine)
		}
		for i, x := range rf {
			right.put(i, hashF64(x), common.IsNullF64(x), combine)
		}
		return func(l, r int) bool { return lf[l] == rf[r] }
	}
	li, ri := vectorI64(lv), vectorI64(rv)
	for i, x := range li {
		left.put(i, util.HashU64(uint64(x)), x == common.NullI64, combine)
	}
	for i, x := range ri {
		right.put(i, util.HashU64(uint64(x)), x == common.NullI64, combine)
	}
	return func(l, r int) bool { return li[l] == ri[r] }
}

// joinTables builds a chained hash index over the right keys and looks up
// every left row in it. Rows with a null key component never match.
func (g *Graph) joinTables(lt, rt *chunk.Table, lkeys, rkeys []int32, kind JoinKind) (*chunk.Table, error) {
	nl, nr := lt.RowCount(), rt.RowCount()
	left, err := newJoinSide(g.arena, nl)
	if err != nil {
		return nil, err
	}
	right, err := newJoinSide(g.arena, nr)
	if err != nil {
		return nil, err
	}
	eqs := make([]func(l, r int) bool, len(lkeys))
	for i := range lkeys {
		lv, ok := lt.ColumnBySym(lkeys[i])
		if !ok {
			return nil, errors.Wrapf(common.ErrColumnNotFound, "left join key %q", sym.Str(lkeys[i]))
		}
		rv, ok := rt.ColumnBySym(rkeys[i])
		if !ok {
			return nil, errors.Wrapf(common.ErrColumnNotFound, "right join key %q", sym.Str(rkeys[i]))
		}
		if !common.Comparable(lv.Type(), rv.Type()) {
			return nil, errors.Wrapf(common.ErrType, "join key %d: %s with %s", i, lv.Type(), rv.Type())
		}
		lf, rf := lv.Flatten(), rv.Flatten()
		defer lf.Release()
		defer rf.Release()
		eqs[i] = joinKeyPair(lf, rf, left, right, i > 0)
	}
	sameKey := func(l, r int) bool {
		for _, eq := range eqs {
			if !eq(l, r) {
				return false
			}
		}
		return true
	}

	capacity := util.NextPowerOfTwo(uint64(2 * nr))
	if capacity < minHashCapacity {
		capacity = minHashCapacity
	}
	bitmask := capacity - 1
	//bucket -> right row + 1, 0 ends the chain
	heads, err := mem.Alloc[int32](g.arena, int(capacity))
	if err != nil {
		return nil, err
	}
	next, err := mem.Alloc[int32](g.arena, nr)
	if err != nil {
		return nil, err
	}
	//insert backwards so every chain lists right rows in ascending order
	for r := nr - 1; r >= 0; r-- {
		if right.nulls[r] {
			continue
		}
		b := right.hashes[r] & bitmask
		next[r] = heads[b]
		heads[b] = int32(r + 1)
	}

	lidx := make([]int, 0, nl)
	ridx := make([]int, 0, nl)
	matched := 0
	for l := 0; l < nl; l++ {
		found := false
		if !left.nulls[l] {
			h := left.hashes[l]
			for e := heads[h&bitmask]; e != 0; e = next[e-1] {
				r := int(e - 1)
				if right.hashes[r] == h && sameKey(l, r) {
					lidx = append(lidx, l)
					ridx = append(ridx, r)
					found = true
				}
			}
		}
		if found {
			matched++
		} else if kind == JOIN_LEFT {
			lidx = append(lidx, l)
			ridx = append(ridx, -1)
		}
	}
	util.Debug("join",
		zap.String("kind", kind.String()),
		zap.Int("left", nl),
		zap.Int("right", nr),
		zap.Int("matchedLeft", matched),
		zap.Int("rows", len(lidx)))

	lnames, lcols := tableColumns(lt)
	rnames, rcols := tableColumns(rt)
	out := make([]*chunk.Vector, len(lcols)+len(rcols))
	err = g.parallel(len(out), len(lidx), func(i int) error {
		if i < len(lcols) {
			out[i] = lcols[i].Gather(lidx)
		} else {
			out[i] = rcols[i-len(lcols)].Gather(ridx)
		}
		return nil
	})
	if err != nil {
		for _, v := range out {
			if v != nil {
				v.Release()
			}
		}
		return nil, err
	}
	names := append(append([]int32(nil), lnames...), rnames...)
	t := chunk.NewTable()
	for i, v := range out {
		if err = t.AddColumnSym(names[i], v); err != nil {
			for _, rest := range out[i+1:] {
				rest.Release()
			}
			t.Release()
			return nil, err
		}
	}
	return t, nil
}
