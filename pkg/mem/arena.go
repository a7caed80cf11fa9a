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

package mem

import (
	"fmt"
	"sync"
	"unsafe"

	"github.com/petermattis/goid"
	"github.com/pkg/errors"

	"github.com/daviszhen/colq/pkg/common"
	"github.com/daviszhen/colq/pkg/util"
)

var ErrArenaDestroyed = errors.New("arena destroyed")

const blockAlign = 8

// BlockPool recycles fixed-size blocks between arenas and enforces a global
// byte budget. It is safe for concurrent use.
type BlockPool struct {
	mu        sync.Mutex
	blockSize int
	limit     int
	inUse     int
	free      [][]byte
	destroyed bool
}

// NewBlockPool creates a pool of blockSize blocks. limit <= 0 means unbounded.
func NewBlockPool(blockSize, limit int) *BlockPool {
	if blockSize <= 0 {
		blockSize = util.DefaultArenaBlockSize
	}
	return &BlockPool{
		blockSize: util.AlignValue8(blockSize),
		limit:     limit,
	}
}

func (pool *BlockPool) BlockSize() int {
	return pool.blockSize
}

func (pool *BlockPool) InUse() int {
	pool.mu.Lock()
	defer pool.mu.Unlock()
	return pool.inUse
}

func (pool *BlockPool) get(sz int) ([]byte, error) {
	pool.mu.Lock()
	defer pool.mu.Unlock()
	if pool.destroyed {
		return nil, ErrArenaDestroyed
	}
	if pool.limit > 0 && pool.inUse+sz > pool.limit {
		return nil, errors.Wrapf(common.ErrExhausted,
			"arena budget %d bytes, in use %d, want %d", pool.limit, pool.inUse, sz)
	}
	pool.inUse += sz
	if sz == pool.blockSize && len(pool.free) > 0 {
		blk := pool.free[len(pool.free)-1]
		pool.free = pool.free[:len(pool.free)-1]
		clear(blk)
		return blk, nil
	}
	return make([]byte, sz), nil
}

func (pool *BlockPool) put(blk []byte) {
	pool.mu.Lock()
	defer pool.mu.Unlock()
	pool.inUse -= len(blk)
	if !pool.destroyed && len(blk) == pool.blockSize {
		pool.free = append(pool.free, blk)
	}
}

// Destroy drops cached blocks. Arenas still holding blocks can free them, but
// no new allocation succeeds.
func (pool *BlockPool) Destroy() {
	pool.mu.Lock()
	defer pool.mu.Unlock()
	pool.destroyed = true
	pool.free = nil
}

// Arena is a bump allocator over pool blocks, freed all at once.
// It has a single writer: the goroutine that created it.
type Arena struct {
	pool       *BlockPool
	blocks     [][]byte
	cur        []byte
	off        int
	gen        uint64
	owner      int64
	checkOwner bool
	allocated  int
}

func NewArena(pool *BlockPool) *Arena {
	if pool == nil {
		pool = NewBlockPool(0, 0)
	}
	return &Arena{
		pool:  pool,
		owner: goid.Get(),
	}
}

// CheckOwner makes allocations from a goroutine other than the creator panic.
func (a *Arena) CheckOwner(on bool) {
	a.checkOwner = on
}

// Generation increases every time the arena is freed.
func (a *Arena) Generation() uint64 {
	return a.gen
}

func (a *Arena) Allocated() int {
	return a.allocated
}

// AllocBytes returns n zeroed bytes aligned to 8.
func (a *Arena) AllocBytes(n int) ([]byte, error) {
	if a.checkOwner {
		if id := goid.Get(); id != a.owner {
			panic(fmt.Sprintf("arena owned by goroutine %d used by %d", a.owner, id))
		}
	}
	if n == 0 {
		return nil, nil
	}
	n = util.AlignValue8(n)
	if n > a.pool.blockSize {
		blk, err := a.pool.get(n)
		if err != nil {
			return nil, err
		}
		a.blocks = append(a.blocks, blk)
		a.allocated += n
		return blk[:n:n], nil
	}
	if a.cur == nil || a.off+n > len(a.cur) {
		blk, err := a.pool.get(a.pool.blockSize)
		if err != nil {
			return nil, err
		}
		a.blocks = append(a.blocks, blk)
		a.cur = blk
		a.off = 0
	}
	ret := a.cur[a.off : a.off+n : a.off+n]
	a.off += n
	a.allocated += n
	return ret, nil
}

// Free returns every block to the pool. Slices handed out earlier must not be
// used afterwards.
func (a *Arena) Free() {
	for _, blk := range a.blocks {
		a.pool.put(blk)
	}
	a.blocks = nil
	a.cur = nil
	a.off = 0
	a.allocated = 0
	a.gen++
}

// Alloc allocates n elements of a pointer-free type T.
func Alloc[T any](a *Arena, n int) ([]T, error) {
	var zero T
	sz := int(unsafe.Sizeof(zero))
	if n == 0 {
		return nil, nil
	}
	buf, err := a.AllocBytes(n * sz)
	if err != nil {
		return nil, err
	}
	return util.PointerToSlice[T](util.BytesSliceToPointer(buf), n), nil
}
