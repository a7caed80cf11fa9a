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

package ingest

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	pqLocal "github.com/xitongsys/parquet-go-source/local"
	pqWriter "github.com/xitongsys/parquet-go/writer"

	"github.com/daviszhen/colq/pkg/chunk"
	"github.com/daviszhen/colq/pkg/common"
)

func rows(tab *chunk.Table) []string {
	ret := make([]string, tab.RowCount())
	for i := range ret {
		ret[i] = strings.Join(tab.Row(i), ",")
	}
	return ret
}

func Test_readCSVInference(t *testing.T) {
	input := "id,val,price,flag,note\n" +
		"a,10,1.5,true,x\n" +
		"b,,2,false,\n" +
		"c,-3,,TRUE,12\n"
	tab, err := ReadCSVFrom(strings.NewReader(input), Options{})
	require.NoError(t, err)
	defer tab.Release()

	assert.Equal(t, []string{"id", "val", "price", "flag", "note"}, tab.Names())
	assert.Equal(t, []common.TypeId{
		common.TID_SYM, common.TID_I64, common.TID_F64, common.TID_BOOL, common.TID_SYM,
	}, tab.Types())
	assert.Equal(t, []string{
		"a,10,1.5,true,x",
		"b,null,2,false,null",
		"c,-3,null,true,12",
	}, rows(tab))
	note, _ := tab.ColumnByName("note")
	assert.True(t, note.IsNull(1))
}

func Test_inferType(t *testing.T) {
	tests := []struct {
		fields []string
		want   common.TypeId
	}{
		{[]string{"1", "2"}, common.TID_I64},
		{[]string{"1", "2.5"}, common.TID_F64},
		{[]string{"1", "NaN"}, common.TID_F64},
		{[]string{"true", "False"}, common.TID_BOOL},
		{[]string{"true", ""}, common.TID_SYM},
		{[]string{"1", "true"}, common.TID_SYM},
		{[]string{"", ""}, common.TID_SYM},
		{nil, common.TID_SYM},
		{[]string{"-9223372036854775808"}, common.TID_F64},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, inferType(tt.fields), "%q", tt.fields)
	}
}

func Test_readCSVOptions(t *testing.T) {
	input := "k;v\n1;2\n3;4\n"
	tab, err := ReadCSVFrom(strings.NewReader(input), Options{
		Comma: ';',
		Types: map[string]common.TypeId{"k": common.TID_STR, "v": common.TID_I32},
	})
	require.NoError(t, err)
	defer tab.Release()
	assert.Equal(t, []common.TypeId{common.TID_STR, common.TID_I32}, tab.Types())
	assert.Equal(t, []string{"1,2", "3,4"}, rows(tab))

	_, err = ReadCSVFrom(strings.NewReader("k\nx\n"), Options{
		Types: map[string]common.TypeId{"k": common.TID_F64},
	})
	assert.True(t, errors.Is(err, common.ErrType))

	_, err = ReadCSVFrom(strings.NewReader(""), Options{})
	assert.True(t, errors.Is(err, common.ErrDomain))

	_, err = ReadCSVFrom(strings.NewReader("a,b\n1\n"), Options{})
	assert.True(t, errors.Is(err, common.ErrCorrupt))

	empty, err := ReadCSVFrom(strings.NewReader("a,b\n"), Options{})
	require.NoError(t, err)
	defer empty.Release()
	assert.Equal(t, 0, empty.RowCount())
	assert.Equal(t, 2, empty.ColumnCount())
}

func Test_readCSVFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "t.csv")
	require.NoError(t, os.WriteFile(path, []byte("id,val\na,10\na,20\nb,30\nb,40\n"), 0644))
	tab, err := ReadCSV(path, Options{})
	require.NoError(t, err)
	defer tab.Release()
	assert.Equal(t, 4, tab.RowCount())

	_, err = ReadCSV(filepath.Join(t.TempDir(), "missing.csv"), Options{})
	assert.True(t, errors.Is(err, common.ErrIO))
	var pe *common.PathError
	assert.True(t, errors.As(err, &pe))
}

type tradeRow struct {
	Sym   string  `parquet:"name=sym, type=BYTE_ARRAY, convertedtype=UTF8"`
	Qty   int64   `parquet:"name=qty, type=INT64"`
	Price float64 `parquet:"name=price, type=DOUBLE"`
	Ok    bool    `parquet:"name=ok, type=BOOLEAN"`
	Lot   *int32  `parquet:"name=lot, type=INT32, repetitiontype=OPTIONAL"`
}

func writeTrades(t *testing.T, path string, trades []tradeRow) {
	fw, err := pqLocal.NewLocalFileWriter(path)
	require.NoError(t, err)
	pw, err := pqWriter.NewParquetWriter(fw, new(tradeRow), 1)
	require.NoError(t, err)
	for _, tr := range trades {
		require.NoError(t, pw.Write(tr))
	}
	require.NoError(t, pw.WriteStop())
	require.NoError(t, fw.Close())
}

func Test_readParquet(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trade.parquet")
	lot := int32(100)
	writeTrades(t, path, []tradeRow{
		{Sym: "ibm", Qty: 10, Price: 1.25, Ok: true, Lot: &lot},
		{Sym: "msft", Qty: 20, Price: 2.5, Ok: false},
		{Sym: "ibm", Qty: 30, Price: 3.75, Ok: true, Lot: &lot},
	})

	tab, err := ReadParquet(path, []string{"sym", "qty", "price", "ok", "lot"})
	require.NoError(t, err)
	defer tab.Release()
	assert.Equal(t, []string{"sym", "qty", "price", "ok", "lot"}, tab.Names())
	assert.Equal(t, []common.TypeId{
		common.TID_SYM, common.TID_I64, common.TID_F64, common.TID_BOOL, common.TID_I32,
	}, tab.Types())
	assert.Equal(t, []string{
		"ibm,10,1.25,true,100",
		"msft,20,2.5,false,null",
		"ibm,30,3.75,true,100",
	}, rows(tab))

	some, err := ReadParquet(path, []string{"price"})
	require.NoError(t, err)
	defer some.Release()
	assert.Equal(t, 1, some.ColumnCount())
	assert.Equal(t, 3, some.RowCount())

	_, err = ReadParquet(path, []string{"nope"})
	assert.True(t, errors.Is(err, common.ErrColumnNotFound))
}
