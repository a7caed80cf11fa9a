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
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daviszhen/colq/pkg/chunk"
	"github.com/daviszhen/colq/pkg/common"
	"github.com/daviszhen/colq/pkg/mem"
	"github.com/daviszhen/colq/pkg/util"
)

func sortRows(t *testing.T, tab *chunk.Table, keys []string, descs []bool) []string {
	g := newTestGraph(t, nil)
	op := mustOp(t)
	tab.Retain()
	in := op(g.ConstTable(tab))
	keyOps := make([]OpId, len(keys))
	for i, k := range keys {
		keyOps[i] = g.Col(k)
	}
	sorted := op(g.Sort(in, keyOps, descs))
	return tableRows(execute(t, g, sorted).(*chunk.Table))
}

func Test_sortMultiKey(t *testing.T) {
	tab := newTestTable(t,
		testColumn{"sym", chunk.NewSymVectorStrings([]string{"pear", "apple", "pear", "fig", "apple"})},
		testColumn{"n", chunk.NewI32Vector([]int32{2, common.NullI32, 1, 3, 5})},
		testColumn{"f", chunk.NewF64Vector([]float64{0.5, -1, math.NaN(), 2, math.Inf(-1)})},
		testColumn{"s", chunk.NewStrVector([]string{"b", "a", "c", "", "a"})},
	)
	defer tab.Release()

	tests := []struct {
		name  string
		keys  []string
		descs []bool
		want  []string
	}{
		{"sym asc", []string{"sym"}, []bool{false}, []string{
			"apple,null,-1,a", "apple,5,-Inf,a", "fig,3,2,", "pear,2,0.5,b", "pear,1,null,c"}},
		{"sym asc n desc", []string{"sym", "n"}, []bool{false, true}, []string{
			"apple,5,-Inf,a", "apple,null,-1,a", "fig,3,2,", "pear,2,0.5,b", "pear,1,null,c"}},
		{"f asc", []string{"f"}, []bool{false}, []string{
			"pear,1,null,c", "apple,5,-Inf,a", "apple,null,-1,a", "pear,2,0.5,b", "fig,3,2,"}},
		{"f desc", []string{"f"}, []bool{true}, []string{
			"fig,3,2,", "pear,2,0.5,b", "apple,null,-1,a", "apple,5,-Inf,a", "pear,1,null,c"}},
		{"s desc sym asc", []string{"s", "sym"}, []bool{true, false}, []string{
			"pear,1,null,c", "pear,2,0.5,b", "apple,null,-1,a", "apple,5,-Inf,a", "fig,3,2,"}},
		{"n asc", []string{"n"}, []bool{false}, []string{
			"apple,null,-1,a", "pear,1,null,c", "pear,2,0.5,b", "fig,3,2,", "apple,5,-Inf,a"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, sortRows(t, tab, tt.keys, tt.descs))
		})
	}
}

func Test_sortStableAndIdempotent(t *testing.T) {
	r := rand.New(rand.NewSource(3))
	n := 5000
	keys := make([]int64, n)
	flags := make([]bool, n)
	seq := make([]int64, n)
	for i := range keys {
		keys[i] = int64(r.Intn(50)) - 25
		flags[i] = r.Intn(2) == 0
		seq[i] = int64(i)
	}
	tab := newTestTable(t,
		testColumn{"k", chunk.NewI64Vector(keys)},
		testColumn{"flag", chunk.NewBoolVector(flags)},
		testColumn{"seq", chunk.NewI64Vector(seq)},
	)
	defer tab.Release()

	g := newTestGraph(t, nil)
	op := mustOp(t)
	tab.Retain()
	in := op(g.ConstTable(tab))
	once := op(g.Sort(in, []OpId{g.Col("k"), g.Col("flag")}, []bool{true, false}))
	twice := op(g.Sort(once, []OpId{g.Col("k"), g.Col("flag")}, []bool{true, false}))
	first := execute(t, g, once).(*chunk.Table)
	second := execute(t, g, twice).(*chunk.Table)
	assert.Equal(t, tableRows(first), tableRows(second))

	k, _ := first.ColumnByName("k")
	f, _ := first.ColumnByName("flag")
	s, _ := first.ColumnByName("seq")
	for i := 1; i < n; i++ {
		pk, ck := k.I64s()[i-1], k.I64s()[i]
		require.GreaterOrEqual(t, pk, ck)
		if pk != ck {
			continue
		}
		pf, cf := f.Bools()[i-1], f.Bools()[i]
		require.False(t, pf && !cf)
		if pf == cf {
			//equal keys keep input order
			require.Less(t, s.I64s()[i-1], s.I64s()[i])
		}
	}
	//descending primary key is not marked sorted
	assert.Zero(t, k.Attrs()&chunk.ATTR_SORTED)
}

func Test_radixSortLSD(t *testing.T) {
	pool := mem.NewBlockPool(util.DefaultArenaBlockSize, 0)
	defer pool.Destroy()
	a := mem.NewArena(pool)
	defer a.Free()

	keys := []uint64{0x0300, 0x0101, 0x0300, 0x0001, 0xff00}
	perm := []int{0, 1, 2, 3, 4}
	require.NoError(t, RadixSortLSD(a, keys, perm, 2))
	assert.Equal(t, []int{3, 1, 0, 2, 4}, perm)

	//a single byte pass that moves nothing is skipped
	keys = []uint64{7, 7, 7}
	perm = []int{2, 0, 1}
	require.NoError(t, RadixSortLSD(a, keys, perm, 8))
	assert.Equal(t, []int{2, 0, 1}, perm)
}
