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
	"context"
	"fmt"

	"github.com/bits-and-blooms/bitset"
	"github.com/pkg/errors"

	"github.com/daviszhen/colq/pkg/chunk"
	"github.com/daviszhen/colq/pkg/common"
	"github.com/daviszhen/colq/pkg/mem"
	"github.com/daviszhen/colq/pkg/util"
)

// OpId addresses a node inside its graph.
type OpId int32

const InvalidOp OpId = -1

type OpKind int

const (
	OP_INVALID OpKind = iota
	//source
	OP_SCAN
	OP_CONST
	//binary
	OP_ADD
	OP_SUB
	OP_MUL
	OP_DIV
	OP_MOD
	OP_EQ
	OP_NE
	OP_LT
	OP_LE
	OP_GT
	OP_GE
	OP_AND
	OP_OR
	OP_MIN2
	OP_MAX2
	//unary
	OP_NEG
	OP_ABS
	OP_NOT
	OP_SQRT
	OP_LOG
	OP_EXP
	OP_CEIL
	OP_FLOOR
	OP_ISNULL
	//conversion, selection
	OP_CAST
	OP_IF
	//string
	OP_LIKE
	OP_UPPER
	OP_LOWER
	OP_STRLEN
	OP_TRIM
	OP_SUBSTR
	OP_REPLACE
	OP_CONCAT
	//reduction
	OP_SUM
	OP_PROD
	OP_MIN
	OP_MAX
	OP_COUNT
	OP_AVG
	OP_FIRST
	OP_LAST
	OP_COUNT_DISTINCT
	//structural
	OP_FILTER
	OP_SORT
	OP_GROUP
	OP_JOIN
	OP_HEAD
	OP_TAIL
	OP_ALIAS
	OP_SELECT
	OP_PROJECT
	OP_MATERIALIZE
)

var opNames = map[OpKind]string{
	OP_INVALID: "invalid",
	OP_SCAN:    "scan",
	OP_CONST:   "const",
	OP_ADD:     "add",
	OP_SUB:     "sub",
	OP_MUL:     "mul",
	OP_DIV:     "div",
	OP_MOD:     "mod",
	OP_EQ:      "eq",
	OP_NE:      "ne",
	OP_LT:      "lt",
	OP_LE:      "le",
	OP_GT:      "gt",
	OP_GE:      "ge",
	OP_AND:     "and",
	OP_OR:      "or",
	OP_MIN2:    "min2",
	OP_MAX2:    "max2",
	OP_NEG:     "neg",
	OP_ABS:     "abs",
	OP_NOT:     "not",
	OP_SQRT:    "sqrt",
	OP_LOG:     "log",
	OP_EXP:     "exp",
	OP_CEIL:    "ceil",
	OP_FLOOR:   "floor",
	OP_ISNULL:  "isnull",
	OP_CAST:    "cast",
	OP_IF:      "if",
	OP_LIKE:    "like",
	OP_UPPER:   "upper",
	OP_LOWER:   "lower",
	OP_STRLEN:  "strlen",
	OP_TRIM:    "trim",
	OP_SUBSTR:  "substr",
	OP_REPLACE: "replace",
	OP_CONCAT:  "concat",
	OP_SUM:     "sum",
	OP_PROD:    "prod",
	OP_MIN:     "min",
	OP_MAX:     "max",
	OP_COUNT:   "count",
	OP_AVG:     "avg",
	OP_FIRST:   "first",
	OP_LAST:    "last",

	OP_COUNT_DISTINCT: "count_distinct",

	OP_FILTER:  "filter",
	OP_SORT:    "sort",
	OP_GROUP:   "group",
	OP_JOIN:    "join",
	OP_HEAD:    "head",
	OP_TAIL:    "tail",
	OP_ALIAS:   "alias",
	OP_SELECT:  "select",
	OP_PROJECT: "project",

	OP_MATERIALIZE: "materialize",
}

func (k OpKind) String() string {
	if s, ok := opNames[k]; ok {
		return s
	}
	return fmt.Sprintf("op(%d)", int(k))
}

// ParseOpKind is the inverse of OpKind.String.
func ParseOpKind(s string) (OpKind, error) {
	for k, name := range opNames {
		if name == s {
			return k, nil
		}
	}
	return OP_INVALID, errors.Wrapf(common.ErrDomain, "unknown operator %q", s)
}

func (k OpKind) IsBinary() bool {
	return k >= OP_ADD && k <= OP_MAX2
}

func (k OpKind) IsUnary() bool {
	return k >= OP_NEG && k <= OP_ISNULL
}

func (k OpKind) IsReduction() bool {
	return k >= OP_SUM && k <= OP_COUNT_DISTINCT
}

func (k OpKind) IsString() bool {
	return k >= OP_LIKE && k <= OP_CONCAT
}

func (k OpKind) IsComparison() bool {
	return k >= OP_EQ && k <= OP_GE
}

type Shape int

const (
	SHAPE_ATOM Shape = iota
	SHAPE_VECTOR
	SHAPE_TABLE
)

func (s Shape) String() string {
	switch s {
	case SHAPE_ATOM:
		return "atom"
	case SHAPE_VECTOR:
		return "vector"
	case SHAPE_TABLE:
		return "table"
	}
	return "?"
}

type JoinKind int

const (
	JOIN_INNER JoinKind = iota
	JOIN_LEFT
)

func (k JoinKind) String() string {
	switch k {
	case JOIN_INNER:
		return "inner"
	case JOIN_LEFT:
		return "left"
	}
	return fmt.Sprintf("join(%d)", int(k))
}

// AggStrategy is the physical plan of a Group node.
type AggStrategy int

const (
	//executor decides from the key ranges
	AGG_AUTO AggStrategy = iota
	AGG_DIRECT
	AGG_HASH
)

func (s AggStrategy) String() string {
	switch s {
	case AGG_DIRECT:
		return "direct"
	case AGG_HASH:
		return "hash"
	}
	return "auto"
}

type Field struct {
	Name int32
	Typ  common.TypeId
}

// Node is one operator. Nodes are immutable once added to the graph except
// for the Hint and Strategy annotations; the optimizer rewrites by appending
// copies.
type Node struct {
	Kind   OpKind
	Inputs []OpId
	Shape  Shape
	Typ    common.TypeId
	Schema []Field

	//scan: column name; alias: the new name
	Name int32
	//scan built by Col: checked against a structural input instead of
	//the bound table
	Unbound bool
	//const
	Const chunk.Value
	//head, tail
	N int64

	//sort: KeyCols + Descs; join: KeyCols (left) + RightKeyCols
	KeyCols      []int32
	RightKeyCols []int32
	Descs        []bool
	JoinKind     JoinKind

	//group: Inputs = keys then aggregate inputs
	NumKeys  int
	AggOps   []OpKind
	Mask     OpId
	Hint     int64
	Strategy AggStrategy
	//output names of group, select and project columns
	OutNames []int32
	//project: input column passed through per output, 0 for a computed
	//column taken from the next of Inputs[1:]
	PassCols []int32
}

func (n *Node) keys() []OpId {
	return n.Inputs[:n.NumKeys]
}

func (n *Node) aggInputs() []OpId {
	return n.Inputs[n.NumKeys:]
}

// children returns every node n depends on at execution time.
func (n *Node) children() []OpId {
	if n.Kind == OP_GROUP && n.Mask != InvalidOp {
		ret := make([]OpId, 0, len(n.Inputs)+1)
		ret = append(ret, n.Inputs...)
		return append(ret, n.Mask)
	}
	return n.Inputs
}

type Graph struct {
	ctx    context.Context
	bound  *chunk.Table
	nodes  []*Node
	cache  []chunk.Value
	arena  *mem.Arena
	blocks *mem.BlockPool
	pool   *util.Pool
	cfg    *util.Config
	//nil until the optimizer ran dead code elimination. Nodes added later
	//are live.
	live  *bitset.BitSet
	freed bool
}

type Option func(*Graph)

func WithPool(pool *util.Pool) Option {
	return func(g *Graph) {
		g.pool = pool
	}
}

func WithConfig(cfg *util.Config) Option {
	return func(g *Graph) {
		g.cfg = cfg
	}
}

func WithBlockPool(blocks *mem.BlockPool) Option {
	return func(g *Graph) {
		g.blocks = blocks
	}
}

func WithContext(ctx context.Context) Option {
	return func(g *Graph) {
		g.ctx = ctx
	}
}

// NewGraph binds a table for Scan resolution. The graph retains bound; nil
// means no bound table.
func NewGraph(bound *chunk.Table, opts ...Option) *Graph {
	g := &Graph{
		ctx:   context.Background(),
		bound: bound,
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.cfg == nil {
		g.cfg = util.DefaultConfig()
	}
	if g.blocks == nil {
		g.blocks = mem.NewBlockPool(g.cfg.Engine.ArenaBlockSize, g.cfg.Engine.ArenaLimit)
	}
	g.arena = mem.NewArena(g.blocks)
	g.arena.CheckOwner(g.cfg.Debug.CheckArenaOwner)
	if bound != nil {
		bound.Retain()
	}
	return g
}

func (g *Graph) Bound() *chunk.Table {
	return g.bound
}

func (g *Graph) Node(id OpId) *Node {
	return g.nodes[id]
}

func (g *Graph) NodeCount() int {
	return len(g.nodes)
}

func (g *Graph) Config() *util.Config {
	return g.cfg
}

// Free releases the arena, cached results, constants and the bound table.
// Results already returned by Execute stay valid.
func (g *Graph) Free() {
	if g.freed {
		return
	}
	g.freed = true
	for i, v := range g.cache {
		if v != nil {
			v.Release()
			g.cache[i] = nil
		}
	}
	for _, n := range g.nodes {
		if n.Const != nil {
			n.Const.Release()
			n.Const = nil
		}
	}
	if g.bound != nil {
		g.bound.Release()
		g.bound = nil
	}
	g.arena.Free()
}

func newNode(kind OpKind) *Node {
	return &Node{Kind: kind, Mask: InvalidOp}
}

func (g *Graph) add(n *Node) OpId {
	g.nodes = append(g.nodes, n)
	g.cache = append(g.cache, nil)
	return OpId(len(g.nodes) - 1)
}

func (g *Graph) valid(id OpId) bool {
	return id >= 0 && int(id) < len(g.nodes)
}

// columnName is the output name of node id: the column for scans, the
// alias for aliases, empty otherwise.
func (g *Graph) columnName(id OpId) int32 {
	n := g.nodes[id]
	if n.Kind == OP_SCAN || n.Kind == OP_ALIAS {
		return n.Name
	}
	return 0
}
