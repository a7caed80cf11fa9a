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
	"strings"

	"github.com/xlab/treeprint"

	"github.com/daviszhen/colq/pkg/sym"
)

// Explain renders the operators root depends on. Shared subtrees are printed
// once; later uses only name the node.
func (g *Graph) Explain(root OpId) string {
	if !g.valid(root) {
		return fmt.Sprintf("invalid operator %d", root)
	}
	tree := treeprint.NewWithRoot("Graph")
	printed := make(map[OpId]bool)
	g.printNode(tree, root, printed)
	return tree.String()
}

func symNames(ids []int32) string {
	bb := strings.Builder{}
	for i, id := range ids {
		if i > 0 {
			bb.WriteString(", ")
		}
		bb.WriteString(sym.Str(id))
	}
	return bb.String()
}

func (g *Graph) printNode(tree treeprint.Tree, id OpId, printed map[OpId]bool) {
	n := g.nodes[id]
	label := fmt.Sprintf("#%d %s", id, n.Kind)
	if printed[id] {
		tree.AddNode(label + " (shared)")
		return
	}
	printed[id] = true
	tree = tree.AddBranch(label)
	switch n.Kind {
	case OP_SCAN:
		tree.AddMetaNode("column", sym.Str(n.Name))
	case OP_CONST:
		tree.AddMetaNode("value", n.Const.String())
	case OP_SORT:
		tree.AddMetaNode("keys", symNames(n.KeyCols))
		tree.AddMetaNode("desc", fmt.Sprintf("%v", n.Descs))
	case OP_JOIN:
		tree.AddMetaNode("kind", n.JoinKind.String())
		tree.AddMetaNode("left keys", symNames(n.KeyCols))
		tree.AddMetaNode("right keys", symNames(n.RightKeyCols))
	case OP_GROUP:
		tree.AddMetaNode("strategy", n.Strategy.String())
		if n.Hint > 0 {
			tree.AddMetaNode("hint", fmt.Sprintf("%d", n.Hint))
		}
		tree.AddMetaNode("output", symNames(n.OutNames))
	case OP_HEAD, OP_TAIL:
		tree.AddMetaNode("n", fmt.Sprintf("%d", n.N))
	case OP_ALIAS:
		tree.AddMetaNode("name", sym.Str(n.Name))
	case OP_SELECT, OP_PROJECT:
		tree.AddMetaNode("output", symNames(n.OutNames))
	}
	if n.Shape == SHAPE_TABLE {
		fields := make([]string, len(n.Schema))
		for i, f := range n.Schema {
			fields[i] = fmt.Sprintf("%s:%s", sym.Str(f.Name), f.Typ)
		}
		tree.AddMetaNode("schema", strings.Join(fields, " "))
	} else {
		tree.AddMetaNode("type", fmt.Sprintf("%s %s", n.Shape, n.Typ))
	}
	for _, child := range n.Inputs {
		g.printNode(tree, child, printed)
	}
	if n.Kind == OP_GROUP && n.Mask != InvalidOp {
		g.printNode(tree.AddMetaBranch("mask", ""), n.Mask, printed)
	}
}
