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

package util

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var ErrPoolClosed = errors.New("worker pool closed")

// Pool bounds the number of goroutines working on disjoint slots of a task.
// Workers only read shared input and write their own output slot.
type Pool struct {
	size   int
	mu     sync.RWMutex
	closed bool
	active sync.WaitGroup
}

func NewPool(size int) *Pool {
	if size < 1 {
		size = 1
	}
	return &Pool{size: size}
}

func (p *Pool) Size() int {
	if p == nil {
		return 1
	}
	return p.size
}

// Run calls fn(i) for every i in [0,count) and returns the first error.
// A nil pool runs everything on the calling goroutine.
func (p *Pool) Run(ctx context.Context, count int, fn func(i int) error) error {
	if p == nil || p.size == 1 || count <= 1 {
		for i := 0; i < count; i++ {
			if err := fn(i); err != nil {
				return err
			}
		}
		return nil
	}
	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		return ErrPoolClosed
	}
	p.active.Add(1)
	p.mu.RUnlock()
	defer p.active.Done()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.size)
	for i := 0; i < count; i++ {
		i := i
		if gctx.Err() != nil {
			break
		}
		g.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = ConvertPanicError(r)
				}
			}()
			return fn(i)
		})
	}
	return g.Wait()
}

// Close stops accepting work and waits for in-flight runs.
func (p *Pool) Close() {
	if p == nil {
		return
	}
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.mu.Unlock()
	p.active.Wait()
	Debug("worker pool drained", zap.Int("size", p.size))
}
