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
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	pqLocal "github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/parquet"
	pqReader "github.com/xitongsys/parquet-go/reader"

	"github.com/daviszhen/colq/pkg/chunk"
	"github.com/daviszhen/colq/pkg/common"
	"github.com/daviszhen/colq/pkg/util"
)

type parquetColumn struct {
	name  string
	index int
	typ   common.TypeId
}

// ReadParquet reads the flat columns cols of a parquet file into a table,
// named as requested. No cols reads every column under its schema name.
// Byte arrays become Sym columns.
func ReadParquet(path string, cols []string) (*chunk.Table, error) {
	file, err := pqLocal.NewLocalFileReader(path)
	if err != nil {
		return nil, common.NewPathError("open", path, common.ErrIO, "%v", err)
	}
	defer file.Close()
	reader, err := pqReader.NewParquetColumnReader(file, 1)
	if err != nil {
		return nil, common.NewPathError("open", path, common.ErrCorrupt, "%v", err)
	}
	defer reader.ReadStop()

	leaves, err := parquetLeaves(reader.Footer)
	if err != nil {
		return nil, &common.PathError{Op: "schema", Path: path, Err: err}
	}
	selected := leaves
	if len(cols) > 0 {
		selected = make([]parquetColumn, 0, len(cols))
		for _, name := range cols {
			leaf, ok := findLeaf(leaves, name)
			if !ok {
				return nil, common.NewPathError("read", path, common.ErrColumnNotFound, "column %q", name)
			}
			leaf.name = name
			selected = append(selected, leaf)
		}
	}

	rows := reader.GetNumRows()
	t := chunk.NewTable()
	for _, leaf := range selected {
		values, _, _, err := reader.ReadColumnByIndex(int64(leaf.index), rows)
		if err != nil {
			t.Release()
			return nil, common.NewPathError("read", path, common.ErrIO, "column %q: %v", leaf.name, err)
		}
		col, err := parquetVector(leaf.typ, values)
		if err == nil {
			err = t.AddColumn(leaf.name, col)
		}
		if err != nil {
			t.Release()
			return nil, &common.PathError{Op: "read", Path: path, Err: errors.WithMessagef(err, "column %q", leaf.name)}
		}
	}
	util.Debug("parquet loaded",
		zap.String("path", path),
		zap.Int64("rows", rows),
		zap.Strings("columns", t.Names()))
	return t, nil
}

// parquetLeaves lists the leaf columns of a flat schema in column chunk
// order.
func parquetLeaves(meta *parquet.FileMetaData) ([]parquetColumn, error) {
	if meta == nil || len(meta.Schema) == 0 {
		return nil, errors.Wrap(common.ErrCorrupt, "parquet file has no schema")
	}
	leaves := make([]parquetColumn, 0, len(meta.Schema)-1)
	for _, elem := range meta.Schema[1:] {
		if elem.GetNumChildren() > 0 {
			return nil, errors.Wrapf(common.ErrNYI, "nested parquet column %q", elem.GetName())
		}
		if elem.GetRepetitionType() == parquet.FieldRepetitionType_REPEATED {
			return nil, errors.Wrapf(common.ErrNYI, "repeated parquet column %q", elem.GetName())
		}
		leaf := parquetColumn{name: elem.GetName(), index: len(leaves)}
		switch elem.GetType() {
		case parquet.Type_BOOLEAN:
			leaf.typ = common.TID_BOOL
		case parquet.Type_INT32:
			leaf.typ = common.TID_I32
		case parquet.Type_INT64:
			leaf.typ = common.TID_I64
		case parquet.Type_FLOAT, parquet.Type_DOUBLE:
			leaf.typ = common.TID_F64
		case parquet.Type_BYTE_ARRAY, parquet.Type_FIXED_LEN_BYTE_ARRAY:
			leaf.typ = common.TID_SYM
		default:
			leaf.typ = common.TID_INVALID
		}
		leaves = append(leaves, leaf)
	}
	return leaves, nil
}

func findLeaf(leaves []parquetColumn, name string) (parquetColumn, bool) {
	for _, leaf := range leaves {
		if leaf.name == name {
			return leaf, true
		}
	}
	for _, leaf := range leaves {
		if strings.EqualFold(leaf.name, name) {
			return leaf, true
		}
	}
	return parquetColumn{}, false
}

// parquetVector converts the values of one column. Nil values are nulls.
func parquetVector(typ common.TypeId, values []any) (*chunk.Vector, error) {
	n := len(values)
	switch typ {
	case common.TID_BOOL:
		vals := make([]bool, n)
		for i, val := range values {
			if b, ok := val.(bool); ok {
				vals[i] = b
			}
		}
		return chunk.NewBoolVector(vals), nil
	case common.TID_I32:
		vals := make([]int32, n)
		for i, val := range values {
			vals[i] = common.NullI32
			if v, ok := val.(int32); ok {
				vals[i] = v
			}
		}
		return chunk.NewI32Vector(vals), nil
	case common.TID_I64:
		vals := make([]int64, n)
		for i, val := range values {
			vals[i] = common.NullI64
			if v, ok := val.(int64); ok {
				vals[i] = v
			}
		}
		return chunk.NewI64Vector(vals), nil
	case common.TID_F64:
		vals := make([]float64, n)
		for i, val := range values {
			switch v := val.(type) {
			case float32:
				vals[i] = float64(v)
			case float64:
				vals[i] = v
			default:
				vals[i] = common.F64Null()
			}
		}
		return chunk.NewF64Vector(vals), nil
	case common.TID_SYM:
		strs := make([]string, n)
		for i, val := range values {
			if s, ok := val.(string); ok {
				strs[i] = s
			}
		}
		return chunk.NewSymVectorStrings(strs), nil
	}
	return nil, errors.Wrap(common.ErrNYI, "unsupported parquet physical type")
}
