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
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daviszhen/colq/pkg/chunk"
	"github.com/daviszhen/colq/pkg/common"
	"github.com/daviszhen/colq/pkg/util"
)

func allTypesTable(t *testing.T) *chunk.Table {
	tab := chunk.NewTable()
	require.NoError(t, tab.AddColumn("flag", chunk.NewBoolVector([]bool{true, false, true})))
	require.NoError(t, tab.AddColumn("i32", chunk.NewI32Vector([]int32{-1, common.NullI32, 7})))
	require.NoError(t, tab.AddColumn("i64", chunk.NewI64Vector([]int64{1 << 40, 0, common.NullI64})))
	require.NoError(t, tab.AddColumn("f64", chunk.NewF64Vector([]float64{0.25, common.F64Null(), -3})))
	require.NoError(t, tab.AddColumn("str", chunk.NewStrVector([]string{"hello", "", "wörld"})))
	require.NoError(t, tab.AddColumn("sym", chunk.NewSymVectorStrings([]string{"ibm", "", "msft"})))
	return tab
}

func rows(tab *chunk.Table) []string {
	ret := make([]string, tab.RowCount())
	for i := range ret {
		ret[i] = strings.Join(tab.Row(i), ",")
	}
	return ret
}

func Test_columnRoundTrip(t *testing.T) {
	dir := t.TempDir()
	src := allTypesTable(t)
	defer src.Release()

	for i := 0; i < src.ColumnCount(); i++ {
		col := src.Column(i)
		t.Run(col.Type().String(), func(t *testing.T) {
			path := filepath.Join(dir, src.ColumnName(i))
			require.NoError(t, SaveColumn(col, path))
			got, err := LoadColumn(path)
			require.NoError(t, err)
			defer got.Release()
			assert.Equal(t, chunk.VEC_MAPPED, got.Ownership())
			assert.Equal(t, col.Type(), got.Type())
			require.Equal(t, col.Len(), got.Len())
			for j := 0; j < col.Len(); j++ {
				assert.Equal(t, col.ElemString(j), got.ElemString(j))
				assert.Equal(t, col.IsNull(j), got.IsNull(j))
			}
		})
	}

	//views are written as their own blocks
	s := src.Column(4).Slice(1, 2)
	defer s.Release()
	path := filepath.Join(dir, "slice")
	require.NoError(t, SaveColumn(s, path))
	got, err := LoadColumn(path)
	require.NoError(t, err)
	defer got.Release()
	assert.Equal(t, []string{"", "wörld"}, []string{got.StrAt(0), got.StrAt(1)})
}

func Test_loadColumnErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := LoadColumn(filepath.Join(dir, "missing"))
	assert.True(t, errors.Is(err, common.ErrIO))
	var pe *common.PathError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, filepath.Join(dir, "missing"), pe.Path)

	short := filepath.Join(dir, "short")
	require.NoError(t, os.WriteFile(short, []byte("TCOL"), 0644))
	_, err = LoadColumn(short)
	assert.True(t, errors.Is(err, common.ErrCorrupt))

	magic := filepath.Join(dir, "magic")
	require.NoError(t, os.WriteFile(magic, append([]byte("XCOL"), make([]byte, 28)...), 0644))
	_, err = LoadColumn(magic)
	assert.True(t, errors.Is(err, common.ErrCorrupt))
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, magic, pe.Path)

	truncated := filepath.Join(dir, "truncated")
	v := chunk.NewI64Vector([]int64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10})
	defer v.Release()
	require.NoError(t, SaveColumn(v, truncated))
	require.NoError(t, os.Truncate(truncated, 40))
	_, err = LoadColumn(truncated)
	assert.True(t, errors.Is(err, common.ErrCorrupt))
}

func Test_loadColumnOverflowingHeader(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name string
		h    chunk.Header
	}{
		{"i64 len wraps", chunk.Header{Typ: common.TID_I64, Len: 1 << 61}},
		{"i32 len wraps", chunk.Header{Typ: common.TID_I32, Len: 1 << 62}},
		{"str len wraps", chunk.Header{Typ: common.TID_STR, Len: 1 << 61}},
		{"str blob wraps", chunk.Header{Typ: common.TID_STR, Len: 1, Blob: 1<<63 - 8}},
		{"i64 one too many", chunk.Header{Typ: common.TID_I64, Len: 9}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, strings.ReplaceAll(tt.name, " ", "_"))
			block := append(tt.h.Bytes(), make([]byte, 64)...)
			require.NoError(t, os.WriteFile(path, block, 0644))
			v, err := LoadColumn(path)
			if v != nil {
				v.Release()
			}
			require.Error(t, err)
			assert.True(t, errors.Is(err, common.ErrCorrupt))
		})
	}
}

func Test_splayRoundTrip(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "trade")
	src := allTypesTable(t)
	defer src.Release()
	require.NoError(t, SplaySave(src, dir))
	assert.FileExists(t, filepath.Join(dir, ColumnIndexFile))

	got, err := SplayLoad(dir)
	require.NoError(t, err)
	defer got.Release()
	assert.Equal(t, src.Names(), got.Names())
	assert.Equal(t, src.Types(), got.Types())
	assert.Equal(t, rows(src), rows(got))

	//saving a loaded table rewrites it from the mapping
	again := filepath.Join(t.TempDir(), "trade")
	require.NoError(t, SplaySave(got, again))
	back, err := SplayLoad(again)
	require.NoError(t, err)
	defer back.Release()
	assert.Equal(t, rows(src), rows(back))
}

func Test_splayParallelLoad(t *testing.T) {
	dir := t.TempDir()
	src := allTypesTable(t)
	defer src.Release()
	require.NoError(t, SplaySave(src, dir))

	pool := util.NewPool(4)
	defer pool.Close()
	got, err := SplayLoadContext(context.Background(), pool, dir)
	require.NoError(t, err)
	defer got.Release()
	assert.Equal(t, rows(src), rows(got))
}

func Test_splayErrors(t *testing.T) {
	tests := []struct {
		name string
		cols []string
	}{
		{"empty", []string{""}},
		{"dot", []string{".hidden"}},
		{"separator", []string{"a/b"}},
		{"duplicate", []string{"a", "a"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tab := chunk.NewTable()
			defer tab.Release()
			for _, name := range tt.cols {
				require.NoError(t, tab.AddColumn(name, chunk.NewI32Vector([]int32{1})))
			}
			err := SplaySave(tab, t.TempDir())
			assert.True(t, errors.Is(err, common.ErrDomain), "%v", err)
		})
	}

	t.Run("missing column", func(t *testing.T) {
		dir := t.TempDir()
		src := allTypesTable(t)
		defer src.Release()
		require.NoError(t, SplaySave(src, dir))
		require.NoError(t, os.Remove(filepath.Join(dir, "f64")))
		_, err := SplayLoad(dir)
		assert.True(t, errors.Is(err, common.ErrIO))
		var pe *common.PathError
		require.True(t, errors.As(err, &pe))
		assert.Equal(t, filepath.Join(dir, "f64"), pe.Path)
	})

	t.Run("length mismatch", func(t *testing.T) {
		dir := t.TempDir()
		src := allTypesTable(t)
		defer src.Release()
		require.NoError(t, SplaySave(src, dir))
		short := chunk.NewI32Vector([]int32{1})
		defer short.Release()
		require.NoError(t, SaveColumn(short, filepath.Join(dir, "i32")))
		_, err := SplayLoad(dir)
		assert.True(t, errors.Is(err, common.ErrLength))
	})

	t.Run("unknown symbol", func(t *testing.T) {
		dir := t.TempDir()
		tab := chunk.NewTable()
		defer tab.Release()
		require.NoError(t, tab.AddColumn("s", chunk.NewSymVector([]int32{1 << 30})))
		require.NoError(t, SplaySave(tab, dir))
		_, err := SplayLoad(dir)
		assert.True(t, errors.Is(err, common.ErrSymbolFile))
	})

	t.Run("no index", func(t *testing.T) {
		_, err := SplayLoad(t.TempDir())
		assert.True(t, errors.Is(err, common.ErrIO))
	})
}

func Test_faultLoadColumn(t *testing.T) {
	dir := t.TempDir()
	src := allTypesTable(t)
	defer src.Release()
	require.NoError(t, SplaySave(src, dir))

	util.Open(util.FAULTS_SCOPE_STORAGE)
	defer util.Close(util.FAULTS_SCOPE_STORAGE)
	injected := errors.New("disk gone")
	util.Register(util.FAULTS_SCOPE_STORAGE, FAULT_LOAD_COLUMN, nil, func([]string) error {
		return injected
	})
	_, err := SplayLoad(dir)
	assert.True(t, errors.Is(err, injected))
}

func Test_symFile(t *testing.T) {
	root := t.TempDir()
	err := SymLoad(root)
	assert.True(t, errors.Is(err, common.ErrSymbolFile))

	tab := allTypesTable(t)
	tab.Release()
	require.NoError(t, SymSave(root))
	require.NoError(t, SymLoad(root))

	//id 1 is bound to another string in this process
	bad := t.TempDir()
	vec := chunk.NewStrVector([]string{"", "never interned before"})
	defer vec.Release()
	require.NoError(t, SaveColumn(vec, filepath.Join(bad, SymFile)))
	err = SymLoad(bad)
	assert.True(t, errors.Is(err, common.ErrSymbolConflict))
}
