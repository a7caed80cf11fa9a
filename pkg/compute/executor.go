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
	"fmt"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/daviszhen/colq/pkg/chunk"
	"github.com/daviszhen/colq/pkg/common"
	"github.com/daviszhen/colq/pkg/sym"
	"github.com/daviszhen/colq/pkg/util"
)

const (
	nodeNew uint8 = iota
	nodeExpanded
)

// Execute evaluates root and everything it depends on. Every node runs at
// most once per graph; results stay cached until Free. The returned value is
// retained for the caller.
func Execute(g *Graph, root OpId) (chunk.Value, error) {
	if g.freed {
		return nil, errors.Wrap(common.ErrReleased, "graph already freed")
	}
	if !g.valid(root) {
		return nil, &common.ExecError{Node: int(root), Op: OP_INVALID.String(),
			Err: errors.Wrapf(common.ErrDomain, "invalid operator id %d", root)}
	}
	if g.live != nil && uint(root) < g.live.Len() && !g.live.Test(uint(root)) {
		return nil, &common.ExecError{Node: int(root), Op: g.nodes[root].Kind.String(),
			Err: errors.Wrap(common.ErrDomain, "node was eliminated by the optimizer")}
	}
	if g.cfg.Debug.PrintPlan {
		util.Info("plan", zap.String("tree", g.Explain(root)))
	}

	state := make([]uint8, len(g.nodes))
	stack := []OpId{root}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		if g.cache[id] != nil {
			stack = stack[:len(stack)-1]
			continue
		}
		if state[id] == nodeNew {
			state[id] = nodeExpanded
			for _, child := range g.nodes[id].children() {
				if g.cache[child] == nil {
					stack = append(stack, child)
				}
			}
			continue
		}
		stack = stack[:len(stack)-1]
		n := g.nodes[id]
		if err := util.Inject(util.FAULTS_SCOPE_EXEC, n.Kind.String()); err != nil {
			return nil, &common.ExecError{Node: int(id), Op: n.Kind.String(), Err: err}
		}
		v, err := g.eval(n)
		if err != nil {
			util.Debug("execute failed",
				zap.Int("node", int(id)),
				zap.String("op", n.Kind.String()),
				zap.Error(err))
			return nil, &common.ExecError{Node: int(id), Op: n.Kind.String(), Err: err}
		}
		g.cache[id] = v
	}

	ret := g.cache[root]
	ret.Retain()
	if g.cfg.Debug.PrintResult {
		logValue(ret, g.cfg.Debug.MaxOutputRowCount)
	}
	return ret, nil
}

func logValue(v chunk.Value, maxRows int) {
	switch x := v.(type) {
	case *chunk.Table:
		x.Log("result", maxRows)
	default:
		util.Info("result", zap.String("value", x.String()))
	}
}

// args returns the cached results of the children of n, one reference each.
// Segmented vectors are flattened so kernels see contiguous data; head and
// tail slice them in place.
func (g *Graph) args(n *Node) []chunk.Value {
	children := n.children()
	ret := make([]chunk.Value, len(children))
	keepSegments := n.Kind == OP_HEAD || n.Kind == OP_TAIL
	for i, child := range children {
		v := g.cache[child]
		if vec, ok := v.(*chunk.Vector); ok && !vec.Contiguous() && !keepSegments {
			ret[i] = vec.Flatten()
			continue
		}
		v.Retain()
		ret[i] = v
	}
	return ret
}

func (g *Graph) eval(n *Node) (chunk.Value, error) {
	switch n.Kind {
	case OP_SCAN:
		return g.evalScan(n)
	case OP_CONST:
		n.Const.Retain()
		return n.Const, nil
	}

	args := g.args(n)
	defer func() {
		for _, v := range args {
			v.Release()
		}
	}()

	switch {
	case n.Kind.IsBinary():
		return evalBinary(n.Kind, n.Typ, args[0], args[1])
	case n.Kind.IsUnary():
		return evalUnary(n.Kind, n.Typ, args[0])
	case n.Kind.IsReduction():
		in := asVector(args[0])
		defer in.Release()
		return g.reduceVector(n.Kind, in)
	case n.Kind.IsString():
		return evalString(n.Kind, n.Typ, args)
	}

	switch n.Kind {
	case OP_FILTER:
		return g.evalFilter(args[0], args[1])
	case OP_SORT:
		t, err := asTable(args[0])
		if err != nil {
			return nil, err
		}
		return g.sortTable(t, n.KeyCols, n.Descs)
	case OP_GROUP:
		return g.evalGroup(n, args)
	case OP_JOIN:
		l, err := asTable(args[0])
		if err != nil {
			return nil, err
		}
		r, err := asTable(args[1])
		if err != nil {
			return nil, err
		}
		return g.joinTables(l, r, n.KeyCols, n.RightKeyCols, n.JoinKind)
	case OP_HEAD, OP_TAIL:
		return evalHeadTail(n.Kind, args[0], n.N)
	case OP_CAST:
		return evalCast(n.Typ, args[0])
	case OP_IF:
		return evalIf(n.Typ, args[0], args[1], args[2])
	case OP_ALIAS:
		args[0].Retain()
		return args[0], nil
	case OP_SELECT, OP_PROJECT:
		return g.project(n, args)
	case OP_MATERIALIZE:
		return materialize(args[0])
	}
	return nil, errors.Wrapf(common.ErrNYI, "operator %s", n.Kind)
}

func (g *Graph) evalScan(n *Node) (chunk.Value, error) {
	name := sym.Str(n.Name)
	if n.Unbound {
		return nil, errors.Wrapf(common.ErrColumnNotFound, "%q only names a key column", name)
	}
	if g.bound == nil {
		return nil, errors.Wrapf(common.ErrColumnNotFound, "no bound table for column %q", name)
	}
	col, ok := g.bound.ColumnBySym(n.Name)
	if !ok {
		return nil, errors.Wrapf(common.ErrColumnNotFound, "column %q", name)
	}
	col.Retain()
	return col, nil
}

func asTable(v chunk.Value) (*chunk.Table, error) {
	t, ok := v.(*chunk.Table)
	if !ok {
		return nil, errors.Wrapf(common.ErrType, "expect table, got %s", v.Kind())
	}
	return t, nil
}

func asColumn(v chunk.Value, what string) (*chunk.Vector, error) {
	vec, ok := v.(*chunk.Vector)
	if !ok {
		return nil, errors.Wrapf(common.ErrType, "%s is %s, not a vector", what, v.Kind())
	}
	return vec, nil
}

func (g *Graph) evalGroup(n *Node, args []chunk.Value) (chunk.Value, error) {
	keys := make([]*chunk.Vector, n.NumKeys)
	aggIns := make([]*chunk.Vector, len(n.AggOps))
	for i := range keys {
		vec, err := asColumn(args[i], fmt.Sprintf("key %d", i))
		if err != nil {
			return nil, err
		}
		keys[i] = vec
	}
	for i := range aggIns {
		vec, err := asColumn(args[n.NumKeys+i], fmt.Sprintf("aggregate input %d", i))
		if err != nil {
			return nil, err
		}
		aggIns[i] = vec
	}
	var mask []bool
	if n.Mask != InvalidOp {
		switch m := args[len(args)-1].(type) {
		case *chunk.Atom:
			if m.Type() != common.TID_BOOL {
				return nil, errors.Wrapf(common.ErrType, "row mask is %s", m.Type())
			}
			if !m.Bool() {
				mask = make([]bool, keys[0].Len())
			}
		case *chunk.Vector:
			if m.Type() != common.TID_BOOL {
				return nil, errors.Wrapf(common.ErrType, "row mask is %s", m.Type())
			}
			mask = m.Bools()
		default:
			return nil, errors.Wrap(common.ErrType, "table row mask")
		}
	}
	return g.aggregate(n, keys, aggIns, mask)
}
