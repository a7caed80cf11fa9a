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

package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/daviszhen/colq/pkg/chunk"
	"github.com/daviszhen/colq/pkg/compute"
	"github.com/daviszhen/colq/pkg/engine"
	"github.com/daviszhen/colq/pkg/util"
)

var queryOpts struct {
	by   []string
	aggs []string
	sort []string
	desc bool
	head int64
}

//query cmd

var queryInfo = "group, sort and cut a partitioned table"
var queryCmd = &cobra.Command{
	Use:   "query",
	Short: queryInfo,
	Long:  queryInfo,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runQuery(os.Stdout)
	},
}

func initQueryCmd() {
	RootCmd.AddCommand(queryCmd)
	queryCmd.Flags().StringSliceVar(&queryOpts.by, "by", nil, "group keys")
	queryCmd.Flags().StringSliceVar(&queryOpts.aggs, "agg", nil, "aggregates, op:column. e.g. sum:qty,count:qty")
	queryCmd.Flags().StringSliceVar(&queryOpts.sort, "sort", nil, "sort keys, applied after grouping")
	queryCmd.Flags().BoolVar(&queryOpts.desc, "desc", false, "sort descending")
	queryCmd.Flags().Int64Var(&queryOpts.head, "head", 0, "keep the first n rows, 0 keeps all")
}

// buildQuery turns the query flags into operators over the bound table.
func buildQuery(g *compute.Graph) (compute.OpId, error) {
	bound := g.Bound()
	bound.Retain()
	root, err := g.ConstTable(bound)
	if err != nil {
		return compute.InvalidOp, err
	}
	if len(queryOpts.by) != 0 || len(queryOpts.aggs) != 0 {
		keys := make([]compute.OpId, 0, len(queryOpts.by))
		for _, name := range queryOpts.by {
			id, err := g.Scan(name)
			if err != nil {
				return compute.InvalidOp, err
			}
			keys = append(keys, id)
		}
		ops := make([]compute.OpKind, 0, len(queryOpts.aggs))
		ins := make([]compute.OpId, 0, len(queryOpts.aggs))
		for _, agg := range queryOpts.aggs {
			opName, col, ok := strings.Cut(agg, ":")
			if !ok {
				return compute.InvalidOp, fmt.Errorf("aggregate %q is not op:column", agg)
			}
			op, err := compute.ParseOpKind(opName)
			if err != nil {
				return compute.InvalidOp, err
			}
			in, err := g.Scan(col)
			if err != nil {
				return compute.InvalidOp, err
			}
			ops = append(ops, op)
			ins = append(ins, in)
		}
		root, err = g.Group(keys, ops, ins)
		if err != nil {
			return compute.InvalidOp, err
		}
	}
	if len(queryOpts.sort) != 0 {
		keys := make([]compute.OpId, len(queryOpts.sort))
		descs := make([]bool, len(queryOpts.sort))
		for i, name := range queryOpts.sort {
			keys[i] = g.Col(name)
			descs[i] = queryOpts.desc
		}
		root, err = g.Sort(root, keys, descs)
		if err != nil {
			return compute.InvalidOp, err
		}
	}
	if queryOpts.head > 0 {
		root, err = g.Head(root, queryOpts.head)
		if err != nil {
			return compute.InvalidOp, err
		}
	}
	return root, nil
}

func runQuery(w io.Writer) error {
	e, err := newEngine()
	if err != nil {
		return err
	}
	defer e.Close()
	db, err := openDB(e)
	if err != nil {
		return err
	}
	defer db.Close()

	tab, statuses, err := db.PartLoad(testerCfg.Storage.Table)
	if err != nil {
		return err
	}
	for _, st := range statuses {
		if !st.OK() {
			util.Warn("partition skipped", zap.String("partition", st.Key), zap.Error(st.Err))
		}
	}
	res, err := runGraph(e, tab, buildQuery)
	if err != nil {
		return err
	}
	defer res.Release()
	return printValue(w, res)
}

// runGraph binds tab to a fresh graph, builds the query and runs it. The
// caller's reference to tab is taken over.
func runGraph(e *engine.Engine, tab *chunk.Table, build func(*compute.Graph) (compute.OpId, error)) (chunk.Value, error) {
	g := e.NewGraph(tab)
	tab.Release()
	defer g.Free()
	root, err := build(g)
	if err != nil {
		return nil, err
	}
	return e.Run(g, root)
}

func printValue(w io.Writer, v chunk.Value) error {
	if tab, ok := v.(*chunk.Table); ok {
		return tab.Print(w, testerCfg.Debug.MaxOutputRowCount)
	}
	_, err := fmt.Fprintln(w, v.String())
	return err
}
