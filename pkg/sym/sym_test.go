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

package sym

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daviszhen/colq/pkg/common"
)

func Test_intern(t *testing.T) {
	tab := New()
	assert.Equal(t, 1, tab.Count())
	a := tab.Intern("a")
	b := tab.Intern("b")
	assert.NotEqual(t, a, b)
	assert.Equal(t, a, tab.Intern("a"))
	assert.Equal(t, int32(0), tab.Intern(""))

	id, ok := tab.Find("b")
	assert.True(t, ok)
	assert.Equal(t, b, id)
	_, ok = tab.Find("zzz")
	assert.False(t, ok)

	s, ok := tab.Str(a)
	assert.True(t, ok)
	assert.Equal(t, "a", s)
	_, ok = tab.Str(100)
	assert.False(t, ok)

	assert.Equal(t, -1, tab.Compare(a, b))
	assert.Equal(t, 1, tab.Compare(b, a))
	assert.Equal(t, 0, tab.Compare(b, b))
}

func Test_internConcurrent(t *testing.T) {
	tab := New()
	const workers = 8
	const words = 200
	ids := make([][]int32, workers)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			ids[w] = make([]int32, words)
			for i := 0; i < words; i++ {
				ids[w][i] = tab.Intern(fmt.Sprintf("w%d", i))
			}
		}(w)
	}
	wg.Wait()
	for w := 1; w < workers; w++ {
		assert.Equal(t, ids[0], ids[w])
	}
	assert.Equal(t, words+1, tab.Count())
}

func Test_merge(t *testing.T) {
	tab := New()
	tab.Intern("x")
	require.NoError(t, tab.Merge([]string{"", "x", "y", "z"}))
	id, ok := tab.Find("z")
	require.True(t, ok)
	assert.Equal(t, int32(3), id)

	err := tab.Merge([]string{"", "q"})
	assert.True(t, errors.Is(err, common.ErrSymbolConflict))

	err = tab.Merge([]string{"", "x", "y", "z", "x"})
	assert.True(t, errors.Is(err, common.ErrSymbolConflict))
	assert.Equal(t, 4, tab.Count())

	err = tab.Merge([]string{"", "x", "y", "z", "w", "v", "w"})
	assert.True(t, errors.Is(err, common.ErrSymbolConflict))
	assert.Equal(t, 4, tab.Count())
	_, ok = tab.Find("w")
	assert.False(t, ok)

	fresh := New()
	err = fresh.Merge([]string{"", "a", "a"})
	assert.True(t, errors.Is(err, common.ErrSymbolConflict))
	assert.Equal(t, 1, fresh.Count())
}

func Test_global(t *testing.T) {
	id := Intern("global-key")
	assert.Equal(t, "global-key", Str(id))
	got, ok := Find("global-key")
	assert.True(t, ok)
	assert.Equal(t, id, got)
}
