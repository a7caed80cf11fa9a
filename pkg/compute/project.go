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
	"github.com/daviszhen/colq/pkg/sym"
)

// project assembles the output table of a Select or Project node. Passed
// through columns are shared with the input.
func (g *Graph) project(n *Node, args []chunk.Value) (*chunk.Table, error) {
	in, err := asTable(args[0])
	if err != nil {
		return nil, err
	}
	rows := in.RowCount()
	computed := args[1:]
	out := chunk.NewTable()
	for i, src := range n.PassCols {
		var col *chunk.Vector
		if src != 0 {
			c, ok := in.ColumnBySym(src)
			if !ok {
				out.Release()
				return nil, errors.Wrapf(common.ErrColumnNotFound, "column %q", sym.Str(src))
			}
			c.Retain()
			col = c
		} else {
			switch x := computed[0].(type) {
			case *chunk.Atom:
				col = chunk.Broadcast(x, rows)
			case *chunk.Vector:
				x.Retain()
				col = x
			default:
				out.Release()
				return nil, errors.Wrapf(common.ErrType, "column %q is a %s", sym.Str(n.OutNames[i]), x.Kind())
			}
			computed = computed[1:]
		}
		if col.Len() != rows {
			col.Release()
			out.Release()
			return nil, errors.Wrapf(common.ErrLength, "column %q has %d rows, input has %d",
				sym.Str(n.OutNames[i]), col.Len(), rows)
		}
		if err = out.AddColumnSym(n.OutNames[i], col); err != nil {
			out.Release()
			return nil, err
		}
	}
	return out, nil
}

// materialize returns v with every vector backed by its own block.
func materialize(v chunk.Value) (chunk.Value, error) {
	switch x := v.(type) {
	case *chunk.Vector:
		return x.Materialize(), nil
	case *chunk.Table:
		t, err := x.MapColumns(func(_ int, col *chunk.Vector) (*chunk.Vector, error) {
			return col.Materialize(), nil
		})
		if err != nil {
			return nil, err
		}
		return t, nil
	}
	v.Retain()
	return v, nil
}
