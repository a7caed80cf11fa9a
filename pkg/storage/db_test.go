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

package storage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daviszhen/colq/pkg/chunk"
	"github.com/daviszhen/colq/pkg/common"
	"github.com/daviszhen/colq/pkg/util"
)

func tradeTable(t *testing.T, syms []string, qty []int64) *chunk.Table {
	tab := chunk.NewTable()
	require.NoError(t, tab.AddColumn("sym", chunk.NewSymVectorStrings(syms)))
	require.NoError(t, tab.AddColumn("qty", chunk.NewI64Vector(qty)))
	return tab
}

// newTradeDB saves three good partitions of "trade":
//
//	2024.01.01  a 1, b 2
//	2024.01.02  c 3
//	2024.01.03  a 4, a 5, d 6
func newTradeDB(t *testing.T, opts ...Option) *DB {
	root := filepath.Join(t.TempDir(), "db")
	db, err := CreateDB(root, opts...)
	require.NoError(t, err)
	t.Cleanup(db.Close)
	for _, p := range []struct {
		key  string
		syms []string
		qty  []int64
	}{
		{"2024.01.01", []string{"a", "b"}, []int64{1, 2}},
		{"2024.01.02", []string{"c"}, []int64{3}},
		{"2024.01.03", []string{"a", "a", "d"}, []int64{4, 5, 6}},
	} {
		tab := tradeTable(t, p.syms, p.qty)
		require.NoError(t, db.SavePartition(p.key, "trade", tab))
		tab.Release()
	}
	return db
}

func Test_partLoad(t *testing.T) {
	pool := util.NewPool(3)
	defer pool.Close()
	db := newTradeDB(t)

	reopened, err := OpenDB(db.Root(), WithPool(pool))
	require.NoError(t, err)
	defer reopened.Close()
	assert.Equal(t, []string{"2024.01.01", "2024.01.02", "2024.01.03"}, reopened.Partitions())

	tab, statuses, err := reopened.PartLoad("trade")
	require.NoError(t, err)
	defer tab.Release()
	assert.Equal(t, []string{PartitionColumn, "sym", "qty"}, tab.Names())
	assert.Equal(t, []string{
		"2024.01.01,a,1",
		"2024.01.01,b,2",
		"2024.01.02,c,3",
		"2024.01.03,a,4",
		"2024.01.03,a,5",
		"2024.01.03,d,6",
	}, rows(tab))
	require.Len(t, statuses, 3)
	for _, st := range statuses {
		assert.True(t, st.OK(), "%s: %v", st.Key, st.Err)
	}
	assert.Equal(t, 3, statuses[2].Rows)

	//columns stay separate mappings
	qty, _ := tab.ColumnByName("qty")
	require.Equal(t, chunk.VEC_SEGMENTED, qty.Ownership())
	for _, seg := range qty.Segments() {
		assert.Equal(t, chunk.VEC_MAPPED, seg.Ownership())
	}

	//the table outlives the database
	reopened.Close()
	assert.Equal(t, "6", qty.ElemString(5))
}

func Test_partLoadBadPartitions(t *testing.T) {
	db := newTradeDB(t)
	root := db.Root()

	//missing column file
	require.NoError(t, os.Remove(filepath.Join(root, "2024.01.02", "trade", "qty")))
	//different schema
	other := chunk.NewTable()
	require.NoError(t, other.AddColumn("sym", chunk.NewSymVectorStrings([]string{"x"})))
	require.NoError(t, other.AddColumn("qty", chunk.NewF64Vector([]float64{1.5})))
	require.NoError(t, db.SavePartition("2024.01.04", "trade", other))
	other.Release()
	//corrupt header
	bad := tradeTable(t, []string{"y"}, []int64{9})
	require.NoError(t, db.SavePartition("2024.01.05", "trade", bad))
	bad.Release()
	require.NoError(t, os.WriteFile(filepath.Join(root, "2024.01.05", "trade", "sym"), []byte("garbage"), 0644))
	//no such table
	require.NoError(t, os.MkdirAll(filepath.Join(root, "2024.01.06"), 0755))

	tab, statuses, err := PartLoad(root, "trade")
	require.NoError(t, err)
	defer tab.Release()
	assert.Equal(t, 5, tab.RowCount())

	got := make(map[string]error, len(statuses))
	for _, st := range statuses {
		got[st.Key] = st.Err
	}
	require.Len(t, got, 6)
	assert.NoError(t, got["2024.01.01"])
	assert.NoError(t, got["2024.01.03"])
	assert.True(t, errors.Is(got["2024.01.02"], common.ErrIO))
	assert.True(t, errors.Is(got["2024.01.04"], common.ErrType))
	assert.True(t, errors.Is(got["2024.01.05"], common.ErrCorrupt))
	assert.True(t, errors.Is(got["2024.01.06"], common.ErrIO))
}

func Test_loadPartitions(t *testing.T) {
	db := newTradeDB(t)
	results, err := db.LoadPartitions("trade")
	require.NoError(t, err)
	defer releaseResults(results)
	require.Len(t, results, 3)
	assert.Equal(t, []string{"c,3"}, rows(results[1].Table))
	assert.Equal(t, 3, results[2].Rows)

	_, err = db.LoadPartitions("../etc")
	assert.True(t, errors.Is(err, common.ErrDomain))

	db.Close()
	_, err = db.LoadPartitions("trade")
	assert.True(t, errors.Is(err, common.ErrReleased))
	//closing twice is a no-op
	db.Close()
}

func Test_openDBErrors(t *testing.T) {
	root := t.TempDir()
	_, err := OpenDB(root)
	assert.True(t, errors.Is(err, common.ErrSymbolFile))

	_, _, err = PartLoad(root, "trade")
	assert.True(t, errors.Is(err, common.ErrSymbolFile))

	db, err := CreateDB(root)
	require.NoError(t, err)
	defer db.Close()
	_, _, err = db.PartLoad("trade")
	assert.True(t, errors.Is(err, common.ErrIO))

	tab := tradeTable(t, []string{"a"}, []int64{1})
	defer tab.Release()
	assert.True(t, errors.Is(db.SavePartition(SymFile, "trade", tab), common.ErrDomain))
	assert.True(t, errors.Is(db.SavePartition("2024.01.01", "", tab), common.ErrDomain))
}
