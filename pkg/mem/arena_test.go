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
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daviszhen/colq/pkg/common"
)

func Test_arenaAlloc(t *testing.T) {
	pool := NewBlockPool(1024, 0)
	arena := NewArena(pool)

	a, err := Alloc[int64](arena, 10)
	require.NoError(t, err)
	require.Len(t, a, 10)
	for i := range a {
		a[i] = int64(i)
	}
	b, err := Alloc[int32](arena, 7)
	require.NoError(t, err)
	b[6] = 42
	assert.Equal(t, int64(9), a[9])

	big, err := Alloc[float64](arena, 1000)
	require.NoError(t, err)
	assert.Len(t, big, 1000)
	assert.True(t, pool.InUse() >= 8000)

	gen := arena.Generation()
	arena.Free()
	assert.Equal(t, gen+1, arena.Generation())
	assert.Equal(t, 0, pool.InUse())
	assert.Equal(t, 0, arena.Allocated())
}

func Test_arenaRecyclesZeroed(t *testing.T) {
	pool := NewBlockPool(256, 0)
	arena := NewArena(pool)
	a, err := Alloc[uint64](arena, 8)
	require.NoError(t, err)
	for i := range a {
		a[i] = 0xffff
	}
	arena.Free()

	b, err := Alloc[uint64](arena, 8)
	require.NoError(t, err)
	for _, v := range b {
		assert.Equal(t, uint64(0), v)
	}
}

func Test_arenaLimit(t *testing.T) {
	pool := NewBlockPool(128, 256)
	arena := NewArena(pool)
	_, err := arena.AllocBytes(100)
	require.NoError(t, err)
	_, err = arena.AllocBytes(100)
	require.NoError(t, err)
	_, err = arena.AllocBytes(100)
	assert.True(t, errors.Is(err, common.ErrExhausted))
}

func Test_arenaDestroyedPool(t *testing.T) {
	pool := NewBlockPool(128, 0)
	arena := NewArena(pool)
	_, err := arena.AllocBytes(16)
	require.NoError(t, err)
	pool.Destroy()
	arena.Free()
	_, err = arena.AllocBytes(16)
	assert.ErrorIs(t, err, ErrArenaDestroyed)
}

func Test_arenaOwner(t *testing.T) {
	arena := NewArena(nil)
	arena.CheckOwner(true)
	_, err := arena.AllocBytes(8)
	require.NoError(t, err)

	var wg sync.WaitGroup
	wg.Add(1)
	panicked := false
	go func() {
		defer wg.Done()
		defer func() {
			if r := recover(); r != nil {
				panicked = true
			}
		}()
		_, _ = arena.AllocBytes(8)
	}()
	wg.Wait()
	assert.True(t, panicked)
}
