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

	hll "github.com/axiomhq/hyperloglog"
	"github.com/bits-and-blooms/bitset"
	"github.com/huandu/go-clone"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/daviszhen/colq/pkg/chunk"
	"github.com/daviszhen/colq/pkg/common"
	"github.com/daviszhen/colq/pkg/sym"
	"github.com/daviszhen/colq/pkg/util"
)

// Optimize rewrites the graph reachable from root and returns the new root.
// Passes: predicate pushdown into Group, aggregation strategy selection,
// dead code elimination.
func Optimize(g *Graph, root OpId) (OpId, error) {
	if g.freed {
		return InvalidOp, errors.Wrap(common.ErrReleased, "graph already freed")
	}
	if !g.valid(root) {
		return InvalidOp, buildErr(OP_INVALID, common.ErrDomain, "invalid root %d", root)
	}
	root = g.pushdown(root)
	g.chooseStrategies(root)
	g.eliminateDeadCode(root)
	return root, nil
}

// reachable lists the nodes root depends on, children before parents.
func (g *Graph) reachable(root OpId) []OpId {
	seen := bitset.New(uint(len(g.nodes)))
	var order []OpId
	var visit func(id OpId)
	visit = func(id OpId) {
		if seen.Test(uint(id)) {
			return
		}
		seen.Set(uint(id))
		for _, child := range g.nodes[id].children() {
			visit(child)
		}
		order = append(order, id)
	}
	visit(root)
	return order
}

// pushdownPredicate returns the predicate shared by every input of a Group
// when all of them are filters of vectors over that same predicate.
func (g *Graph) pushdownPredicate(n *Node) (OpId, bool) {
	if n.Kind != OP_GROUP || n.Mask != InvalidOp {
		return InvalidOp, false
	}
	pred := InvalidOp
	for _, in := range n.Inputs {
		f := g.nodes[in]
		if f.Kind != OP_FILTER || g.nodes[f.Inputs[0]].Shape != SHAPE_VECTOR {
			return InvalidOp, false
		}
		if pred == InvalidOp {
			pred = f.Inputs[1]
		} else if pred != f.Inputs[1] {
			return InvalidOp, false
		}
	}
	return pred, pred != InvalidOp
}

// pushdown replaces Group(Filter(x1,p), ..., Filter(xn,p)) with a Group over
// x1..xn masked by p. Rewritten nodes and their ancestors are appended as
// copies; the original nodes stay untouched.
func (g *Graph) pushdown(root OpId) OpId {
	remap := make(map[OpId]OpId)
	mapped := func(id OpId) OpId {
		if to, ok := remap[id]; ok {
			return to
		}
		return id
	}
	for _, id := range g.reachable(root) {
		n := g.nodes[id]
		changed := false
		inputs := make([]OpId, len(n.Inputs))
		for i, in := range n.Inputs {
			inputs[i] = mapped(in)
			changed = changed || inputs[i] != in
		}
		mask := n.Mask
		if mask != InvalidOp {
			mask = mapped(mask)
			changed = changed || mask != n.Mask
		}
		rewired := *n
		rewired.Inputs = inputs
		pred, push := g.pushdownPredicate(&rewired)
		if !changed && !push {
			continue
		}
		c := clone.Clone(n).(*Node)
		c.Inputs = inputs
		c.Mask = mask
		if push {
			for i, in := range c.Inputs {
				c.Inputs[i] = g.nodes[in].Inputs[0]
			}
			c.Mask = pred
			util.Debug("push filter into group",
				zap.Int("group", int(id)),
				zap.Int("predicate", int(pred)))
		}
		remap[id] = g.add(c)
	}
	return mapped(root)
}

// chooseStrategies annotates every automatic Group with direct or hash
// aggregation.
func (g *Graph) chooseStrategies(root OpId) {
	estimates := make(map[int32]uint64)
	for _, id := range g.reachable(root) {
		n := g.nodes[id]
		if n.Kind != OP_GROUP || n.Strategy != AGG_AUTO {
			continue
		}
		n.Strategy = g.chooseStrategy(n, estimates)
		util.Debug("aggregation strategy",
			zap.Int("group", int(id)),
			zap.String("strategy", n.Strategy.String()))
	}
}

func (g *Graph) chooseStrategy(n *Node, estimates map[int32]uint64) AggStrategy {
	for _, key := range n.keys() {
		if !g.nodes[key].Typ.IsIntegral() {
			return AGG_HASH
		}
	}
	limit := g.cfg.Engine.DirectArrayMaxSlots
	if n.Hint > 0 {
		if uint64(n.Hint) <= limit {
			return AGG_DIRECT
		}
		return AGG_HASH
	}
	total := uint64(1)
	for _, key := range n.keys() {
		est, ok := g.keyCardinality(key, estimates)
		if !ok {
			return AGG_AUTO
		}
		//one slot for nulls
		hi, lo := bits.Mul64(total, est+1)
		if hi != 0 || lo > limit {
			return AGG_HASH
		}
		total = lo
	}
	return AGG_DIRECT
}

// keyCardinality estimates the distinct values of a key: an HLL sketch over
// the bound column for scans, the bound row count otherwise.
func (g *Graph) keyCardinality(key OpId, estimates map[int32]uint64) (uint64, bool) {
	if g.bound == nil {
		return 0, false
	}
	k := g.nodes[key]
	if k.Typ == common.TID_BOOL {
		return 2, true
	}
	if k.Kind != OP_SCAN || k.Unbound {
		return uint64(g.bound.RowCount()), true
	}
	if est, ok := estimates[k.Name]; ok {
		return est, true
	}
	col, ok := g.bound.ColumnBySym(k.Name)
	if !ok {
		return 0, false
	}
	est := distinctEstimate(col, g.cfg.Engine.HllSampleRows)
	util.Debug("distinct estimate",
		zap.String("column", sym.Str(k.Name)),
		zap.Uint64("estimate", est))
	estimates[k.Name] = est
	return est, true
}

// distinctEstimate sketches the first sampleRows values of col and scales
// the sample estimate to the whole column.
func distinctEstimate(col *chunk.Vector, sampleRows int) uint64 {
	total := col.Len()
	if total == 0 {
		return 0
	}
	count := min(total, sampleRows)
	sample := col.Slice(0, count)
	defer sample.Release()
	flat := sample.Flatten()
	defer flat.Release()
	hashes := make([]uint64, count)
	hashColumn(flat, hashes, false)
	sketch := hll.New14()
	for _, h := range hashes {
		sketch.InsertHash(h)
	}
	u := float64(min(sketch.Estimate(), uint64(count)))
	s := float64(count)
	n := float64(total)
	u1 := math.Pow(u/s, 2) * u
	est := u + u1/s*(n-s)
	return min(uint64(est), uint64(total))
}

// eliminateDeadCode marks the nodes root depends on; everything else is never
// evaluated.
func (g *Graph) eliminateDeadCode(root OpId) {
	live := bitset.New(uint(len(g.nodes)))
	for _, id := range g.reachable(root) {
		live.Set(uint(id))
	}
	util.Debug("dead code elimination",
		zap.Int("nodes", len(g.nodes)),
		zap.Uint("live", live.Count()))
	g.live = live
}
