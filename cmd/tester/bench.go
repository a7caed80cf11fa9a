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
	"math/rand"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/daviszhen/colq/pkg/chunk"
	"github.com/daviszhen/colq/pkg/compute"
	"github.com/daviszhen/colq/pkg/engine"
	"github.com/daviszhen/colq/pkg/util"
)

var benchOpts struct {
	rows   int
	groups int
	seed   int64
	count  int
}

//bench cmd

var benchInfo = "time grouping, sorting and joining over synthetic data"
var benchCmd = &cobra.Command{
	Use:   "bench",
	Short: benchInfo,
	Long:  benchInfo,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runBench()
	},
}

func initBenchCmd() {
	RootCmd.AddCommand(benchCmd)
	benchCmd.Flags().IntVar(&benchOpts.rows, "rows", 1_000_000, "rows of the fact table")
	benchCmd.Flags().IntVar(&benchOpts.groups, "groups", 1000, "distinct keys")
	benchCmd.Flags().Int64Var(&benchOpts.seed, "seed", 1, "random seed")
	benchCmd.Flags().IntVar(&benchOpts.count, "count", 3, "runs per scenario")
}

// factTable has an integral key, a symbol key over the same groups and a
// float measure.
func factTable(rows, groups int, rnd *rand.Rand) (*chunk.Table, error) {
	ids := make([]int64, rows)
	names := make([]string, rows)
	vals := make([]float64, rows)
	for i := range ids {
		k := rnd.Intn(groups)
		ids[i] = int64(k)
		names[i] = fmt.Sprintf("k%d", k)
		vals[i] = rnd.Float64() * 100
	}
	tab := chunk.NewTable()
	if err := tab.AddColumn("id", chunk.NewI64Vector(ids)); err != nil {
		tab.Release()
		return nil, err
	}
	if err := tab.AddColumn("name", chunk.NewSymVectorStrings(names)); err != nil {
		tab.Release()
		return nil, err
	}
	if err := tab.AddColumn("val", chunk.NewF64Vector(vals)); err != nil {
		tab.Release()
		return nil, err
	}
	return tab, nil
}

func dimTable(groups int) (*chunk.Table, error) {
	ids := make([]int64, groups)
	weights := make([]int64, groups)
	for i := range ids {
		ids[i] = int64(i)
		weights[i] = int64(i % 7)
	}
	tab := chunk.NewTable()
	if err := tab.AddColumn("id", chunk.NewI64Vector(ids)); err != nil {
		tab.Release()
		return nil, err
	}
	if err := tab.AddColumn("weight", chunk.NewI64Vector(weights)); err != nil {
		tab.Release()
		return nil, err
	}
	return tab, nil
}

type benchCase struct {
	name  string
	build func(g *compute.Graph) (compute.OpId, error)
}

func groupCase(name, key string, strategy compute.AggStrategy) benchCase {
	return benchCase{
		name: name,
		build: func(g *compute.Graph) (compute.OpId, error) {
			k, err := g.Scan(key)
			if err != nil {
				return compute.InvalidOp, err
			}
			val, err := g.Scan("val")
			if err != nil {
				return compute.InvalidOp, err
			}
			grp, err := g.Group([]compute.OpId{k},
				[]compute.OpKind{compute.OP_SUM, compute.OP_COUNT},
				[]compute.OpId{val, val})
			if err != nil {
				return compute.InvalidOp, err
			}
			if strategy != compute.AGG_AUTO {
				if err = g.SetGroupStrategy(grp, strategy); err != nil {
					return compute.InvalidOp, err
				}
			}
			return grp, nil
		},
	}
}

func benchCases(dim *chunk.Table) []benchCase {
	return []benchCase{
		groupCase("group direct", "id", compute.AGG_DIRECT),
		groupCase("group hash", "id", compute.AGG_HASH),
		groupCase("group sym", "name", compute.AGG_AUTO),
		{
			name: "sort",
			build: func(g *compute.Graph) (compute.OpId, error) {
				bound := g.Bound()
				bound.Retain()
				in, err := g.ConstTable(bound)
				if err != nil {
					return compute.InvalidOp, err
				}
				return g.Sort(in, []compute.OpId{g.Col("id"), g.Col("val")}, []bool{false, true})
			},
		},
		{
			name: "join",
			build: func(g *compute.Graph) (compute.OpId, error) {
				bound := g.Bound()
				bound.Retain()
				l, err := g.ConstTable(bound)
				if err != nil {
					return compute.InvalidOp, err
				}
				dim.Retain()
				r, err := g.ConstTable(dim)
				if err != nil {
					return compute.InvalidOp, err
				}
				return g.Join(l, []compute.OpId{g.Col("id")}, r, []compute.OpId{g.Col("id")}, compute.JOIN_INNER)
			},
		},
	}
}

func runBench() error {
	if benchOpts.rows <= 0 || benchOpts.groups <= 0 || benchOpts.count <= 0 {
		return fmt.Errorf("--rows, --groups and --count must be positive")
	}
	e, err := newEngine()
	if err != nil {
		return err
	}
	defer e.Close()

	rnd := rand.New(rand.NewSource(benchOpts.seed))
	fact, err := factTable(benchOpts.rows, benchOpts.groups, rnd)
	if err != nil {
		return err
	}
	defer fact.Release()
	dim, err := dimTable(benchOpts.groups)
	if err != nil {
		return err
	}
	defer dim.Release()

	for _, bc := range benchCases(dim) {
		if err = runCase(e, fact, bc); err != nil {
			return fmt.Errorf("%s: %w", bc.name, err)
		}
	}
	return nil
}

func runCase(e *engine.Engine, fact *chunk.Table, bc benchCase) error {
	var best, total time.Duration
	rows := 0
	for i := 0; i < benchOpts.count; i++ {
		fact.Retain()
		start := time.Now()
		res, err := runGraph(e, fact, bc.build)
		if err != nil {
			return err
		}
		spent := time.Since(start)
		if tab, ok := res.(*chunk.Table); ok {
			rows = tab.RowCount()
		}
		res.Release()
		total += spent
		if i == 0 || spent < best {
			best = spent
		}
	}
	util.Info("bench",
		zap.String("case", bc.name),
		zap.Int("rows", benchOpts.rows),
		zap.Int("groups", benchOpts.groups),
		zap.Int("resultRows", rows),
		zap.Duration("best", best),
		zap.Duration("avg", total/time.Duration(benchOpts.count)))
	return nil
}
