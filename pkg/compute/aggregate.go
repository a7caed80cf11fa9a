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
	"github.com/daviszhen/colq/pkg/util"
)

// groupIds is the outcome of key resolution: a group id per row (-1 for
// masked rows) and the first row of every group, in order of appearance.
type groupIds struct {
	gids     []int32
	firstRow []int
}

func (ids *groupIds) count() int {
	return len(ids.firstRow)
}

// aggregate runs a Group node: resolve keys, accumulate every aggregate,
// then gather the key columns at each group's first row.
func (g *Graph) aggregate(node *Node, keys, aggIns []*chunk.Vector, mask []bool) (*chunk.Table, error) {
	n := keys[0].Len()
	for i, v := range keys {
		if v.Len() != n {
			return nil, errors.Wrapf(common.ErrLength, "key %d has %d rows, key 0 has %d", i, v.Len(), n)
		}
	}
	for i, v := range aggIns {
		if v.Len() != n {
			return nil, errors.Wrapf(common.ErrLength, "aggregate input %d has %d rows, keys have %d", i, v.Len(), n)
		}
	}
	if mask != nil && len(mask) != n {
		return nil, errors.Wrapf(common.ErrLength, "row mask has %d rows, keys have %d", len(mask), n)
	}

	var ids *groupIds
	var err error
	strategy := node.Strategy
	if strategy != AGG_HASH && directEligible(keys) {
		var ok bool
		ids, ok, err = directGroupIds(g.arena, keys, mask, g.cfg.Engine.DirectArrayMaxSlots)
		if err != nil {
			return nil, err
		}
		if !ok {
			if strategy == AGG_DIRECT {
				util.Debug("direct aggregation does not fit, fall back to hash",
					zap.Int("rows", n), zap.Int("keys", len(keys)))
			}
			ids = nil
		}
	}
	if ids == nil {
		ids, err = hashGroupIds(g.arena, keys, mask, g.cfg.Engine.MaxGroups)
		if err != nil {
			return nil, err
		}
	}

	out := make([]*chunk.Vector, 0, len(keys)+len(aggIns))
	release := func() {
		for _, v := range out {
			v.Release()
		}
	}
	for _, key := range keys {
		out = append(out, key.Gather(ids.firstRow))
	}
	for i, in := range aggIns {
		res, err := g.accumulate(node.AggOps[i], in, ids)
		if err != nil {
			release()
			return nil, err
		}
		out = append(out, res)
	}
	t := chunk.NewTable()
	for i, v := range out {
		if err = t.AddColumnSym(node.OutNames[i], v); err != nil {
			for _, rest := range out[i+1:] {
				rest.Release()
			}
			t.Release()
			return nil, err
		}
	}
	return t, nil
}

// reduceVector folds a whole vector into one atom through a single group.
func (g *Graph) reduceVector(op OpKind, in *chunk.Vector) (*chunk.Atom, error) {
	ids := &groupIds{firstRow: []int{-1}}
	if in.Len() > 0 {
		gids, err := mem.Alloc[int32](g.arena, in.Len())
		if err != nil {
			return nil, err
		}
		ids.gids = gids
		ids.firstRow[0] = 0
	}
	res, err := g.accumulate(op, in, ids)
	if err != nil {
		return nil, err
	}
	defer res.Release()
	return res.Get(0), nil
}

// accumulate computes one aggregate column with one slot per group.
func (g *Graph) accumulate(op OpKind, in *chunk.Vector, ids *groupIds) (*chunk.Vector, error) {
	ng := ids.count()
	typ := in.Type()
	switch op {
	case OP_COUNT:
		out := chunk.NewVector(common.TID_I64, ng)
		countNonNull(in, ids.gids, out.I64s())
		return out, nil
	case OP_COUNT_DISTINCT:
		out := chunk.NewVector(common.TID_I64, ng)
		if err := g.countDistinct(in, ids.gids, out.I64s()); err != nil {
			out.Release()
			return nil, err
		}
		return out, nil
	case OP_FIRST:
		return in.Gather(ids.firstRow), nil
	case OP_LAST:
		last := make([]int, ng)
		for i := range last {
			last[i] = -1
		}
		for row, gid := range ids.gids {
			if gid >= 0 {
				last[gid] = row
			}
		}
		return in.Gather(last), nil
	}
	if !typ.IsNumeric() {
		return nil, errors.Wrapf(common.ErrType, "%s on %s", op, typ)
	}
	switch op {
	case OP_SUM, OP_PROD:
		if typ == common.TID_F64 {
			out := chunk.NewVector(common.TID_F64, ng)
			sumProdF64(op, in.F64s(), ids.gids, out.F64s())
			return out, nil
		}
		out := chunk.NewVector(common.TID_I64, ng)
		sumProdInt(op, vectorI64(in), ids.gids, out.I64s())
		return out, nil
	case OP_AVG:
		out := chunk.NewVector(common.TID_F64, ng)
		avgF64(vectorF64(in), ids.gids, out.F64s())
		return out, nil
	case OP_MIN, OP_MAX:
		out := chunk.NewVector(typ, ng)
		switch typ {
		case common.TID_BOOL:
			minMaxBool(op, in.Bools(), ids.gids, out.Bools())
		case common.TID_I32:
			minMaxOrdered(op, in.I32s(), ids.gids, out.I32s(), common.NullI32, func(x int32) bool {
				return x == common.NullI32
			})
		case common.TID_I64:
			minMaxOrdered(op, in.I64s(), ids.gids, out.I64s(), common.NullI64, func(x int64) bool {
				return x == common.NullI64
			})
		case common.TID_F64:
			minMaxOrdered(op, in.F64s(), ids.gids, out.F64s(), common.F64Null(), common.IsNullF64)
		}
		return out, nil
	}
	return nil, errors.Wrapf(common.ErrDomain, "%s is not an aggregate", op)
}

func countNonNull(in *chunk.Vector, gids []int32, out []int64) {
	switch in.Type() {
	case common.TID_I32, common.TID_SYM:
		null := common.NullI32
		if in.Type() == common.TID_SYM {
			null = common.NullSym
		}
		for i, x := range chunk.GetSlice[int32](in) {
			if g := gids[i]; g >= 0 && x != null {
				out[g]++
			}
		}
	case common.TID_I64:
		for i, x := range in.I64s() {
			if g := gids[i]; g >= 0 && x != common.NullI64 {
				out[g]++
			}
		}
	case common.TID_F64:
		for i, x := range in.F64s() {
			if g := gids[i]; g >= 0 && x == x {
				out[g]++
			}
		}
	case common.TID_STR:
		offs, _ := in.StrData()
		for i, g := range gids {
			if g >= 0 && offs[i] != offs[i+1] {
				out[g]++
			}
		}
	case common.TID_BOOL:
		for _, g := range gids {
			if g >= 0 {
				out[g]++
			}
		}
	}
}

// countDistinct groups the rows again by (group id, value); every pair
// counts once for its group. Null values and masked rows are skipped.
func (g *Graph) countDistinct(in *chunk.Vector, gids []int32, out []int64) error {
	if len(gids) == 0 {
		return nil
	}
	mask := make([]bool, len(gids))
	for i, gid := range gids {
		mask[i] = gid >= 0 && !in.IsNull(i)
	}
	owner := chunk.NewI32Vector(gids)
	defer owner.Release()
	pairs, err := hashGroupIds(g.arena, []*chunk.Vector{owner, in}, mask, 0)
	if err != nil {
		return err
	}
	for _, row := range pairs.firstRow {
		out[gids[row]]++
	}
	return nil
}

func sumProdInt(op OpKind, vals []int64, gids []int32, out []int64) {
	if op == OP_PROD {
		util.Fill(out, 1)
		for i, x := range vals {
			if g := gids[i]; g >= 0 && x != common.NullI64 {
				out[g] *= x
			}
		}
		return
	}
	for i, x := range vals {
		if g := gids[i]; g >= 0 && x != common.NullI64 {
			out[g] += x
		}
	}
}

func sumProdF64(op OpKind, vals []float64, gids []int32, out []float64) {
	if op == OP_PROD {
		util.Fill(out, 1)
		for i, x := range vals {
			if g := gids[i]; g >= 0 && x == x {
				out[g] *= x
			}
		}
		return
	}
	for i, x := range vals {
		if g := gids[i]; g >= 0 && x == x {
			out[g] += x
		}
	}
}

func avgF64(vals []float64, gids []int32, out []float64) {
	counts := make([]int64, len(out))
	for i, x := range vals {
		if g := gids[i]; g >= 0 && x == x {
			out[g] += x
			counts[g]++
		}
	}
	for g, c := range counts {
		if c == 0 {
			out[g] = common.F64Null()
		} else {
			out[g] /= float64(c)
		}
	}
}

func minMaxOrdered[T int32 | int64 | float64](op OpKind, vals []T, gids []int32, out []T, null T, isNull func(T) bool) {
	set := make([]bool, len(out))
	for i, x := range vals {
		g := gids[i]
		if g < 0 || isNull(x) {
			continue
		}
		switch {
		case !set[g]:
			out[g] = x
			set[g] = true
		case op == OP_MIN && x < out[g]:
			out[g] = x
		case op == OP_MAX && x > out[g]:
			out[g] = x
		}
	}
	for g, ok := range set {
		if !ok {
			out[g] = null
		}
	}
}

func minMaxBool(op OpKind, vals []bool, gids []int32, out []bool) {
	set := make([]bool, len(out))
	for i, x := range vals {
		g := gids[i]
		if g < 0 {
			continue
		}
		switch {
		case !set[g]:
			out[g] = x
			set[g] = true
		case op == OP_MIN:
			out[g] = out[g] && x
		default:
			out[g] = out[g] || x
		}
	}
}
