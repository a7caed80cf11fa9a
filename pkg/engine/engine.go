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

// Package engine owns the process-wide resources a query needs: the symbol
// table, the arena block pool and the worker pool.
package engine

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/daviszhen/colq/pkg/chunk"
	"github.com/daviszhen/colq/pkg/common"
	"github.com/daviszhen/colq/pkg/compute"
	"github.com/daviszhen/colq/pkg/mem"
	"github.com/daviszhen/colq/pkg/storage"
	"github.com/daviszhen/colq/pkg/sym"
	"github.com/daviszhen/colq/pkg/util"
)

type Engine struct {
	cfg    *util.Config
	ctx    context.Context
	pool   *util.Pool
	blocks *mem.BlockPool

	closed    atomic.Bool
	closeOnce sync.Once
}

// New starts an engine. A nil cfg uses util.DefaultConfig.
func New(cfg *util.Config) (*Engine, error) {
	if cfg == nil {
		cfg = util.DefaultConfig()
	}
	if cfg.Debug.LogLevel != "" {
		if err := util.SetLevel(cfg.Debug.LogLevel); err != nil {
			return nil, errors.Wrapf(common.ErrDomain, "log level %q: %v", cfg.Debug.LogLevel, err)
		}
	}
	if cfg.Engine.ArenaBlockSize <= 0 {
		cfg.Engine.ArenaBlockSize = util.DefaultArenaBlockSize
	}
	sym.Init()
	e := &Engine{
		cfg:    cfg,
		ctx:    context.Background(),
		pool:   util.NewPool(cfg.Engine.Workers),
		blocks: mem.NewBlockPool(cfg.Engine.ArenaBlockSize, cfg.Engine.ArenaLimit),
	}
	util.Info("engine started",
		zap.Int("workers", e.pool.Size()),
		zap.Int("arenaBlockSize", cfg.Engine.ArenaBlockSize),
		zap.Int("arenaLimit", cfg.Engine.ArenaLimit))
	return e, nil
}

func (e *Engine) Config() *util.Config {
	return e.cfg
}

func (e *Engine) Pool() *util.Pool {
	return e.pool
}

// NewGraph binds t to a graph that allocates from the engine's block pool
// and runs parallel work on its worker pool.
func (e *Engine) NewGraph(t *chunk.Table) *compute.Graph {
	return compute.NewGraph(t,
		compute.WithContext(e.ctx),
		compute.WithConfig(e.cfg),
		compute.WithPool(e.pool),
		compute.WithBlockPool(e.blocks),
	)
}

// Run optimizes the graph below root and executes it.
func (e *Engine) Run(g *compute.Graph, root compute.OpId) (chunk.Value, error) {
	if e.closed.Load() {
		return nil, errors.Wrap(common.ErrReleased, "engine is closed")
	}
	root, err := compute.Optimize(g, root)
	if err != nil {
		return nil, err
	}
	return compute.Execute(g, root)
}

// OpenDB opens a database root whose partitions open on the worker pool.
func (e *Engine) OpenDB(root string) (*storage.DB, error) {
	if e.closed.Load() {
		return nil, errors.Wrap(common.ErrReleased, "engine is closed")
	}
	return storage.OpenDB(root, storage.WithPool(e.pool), storage.WithContext(e.ctx))
}

// Close tears the engine down: the worker pool stops accepting work and
// drains, then the block pool and the symbol table are dropped. Graphs
// must be freed before. Closing twice is a no-op.
func (e *Engine) Close() {
	e.closeOnce.Do(func() {
		e.closed.Store(true)
		e.pool.Close()
		e.blocks.Destroy()
		sym.Destroy()
		util.Info("engine closed")
	})
}
