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
	"encoding/csv"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/daviszhen/colq/pkg/chunk"
	"github.com/daviszhen/colq/pkg/common"
	"github.com/daviszhen/colq/pkg/util"
)

type Options struct {
	//field delimiter, ',' when zero
	Comma rune
	//column name -> forced type. Other columns are inferred.
	Types map[string]common.TypeId
}

// ReadCSV reads a CSV file whose first record names the columns.
func ReadCSV(path string, opts Options) (*chunk.Table, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, common.NewPathError("open", path, common.ErrIO, "%v", err)
	}
	defer file.Close()
	t, err := ReadCSVFrom(file, opts)
	if err != nil {
		return nil, &common.PathError{Op: "read", Path: path, Err: err}
	}
	util.Debug("csv loaded",
		zap.String("path", path),
		zap.Int("rows", t.RowCount()),
		zap.Strings("columns", t.Names()))
	return t, nil
}

// ReadCSVFrom reads CSV records from r. Empty fields are nulls. Column
// types not forced by opts are inferred from the fields: I64, then F64,
// then Bool, otherwise Sym.
func ReadCSVFrom(r io.Reader, opts Options) (*chunk.Table, error) {
	reader := csv.NewReader(r)
	if opts.Comma != 0 {
		reader.Comma = opts.Comma
	}
	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.Wrap(common.ErrDomain, "csv has no header")
		}
		return nil, csvError(err)
	}
	fields := make([][]string, len(header))
	for {
		rec, err := reader.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, csvError(err)
		}
		for j := range rec {
			fields[j] = append(fields[j], rec[j])
		}
	}

	t := chunk.NewTable()
	for j, name := range header {
		name = strings.TrimSpace(name)
		typ, forced := opts.Types[name]
		if !forced {
			typ = inferType(fields[j])
		}
		col, err := parseColumn(typ, fields[j])
		if err != nil {
			t.Release()
			return nil, errors.WithMessagef(err, "column %q", name)
		}
		if err = t.AddColumn(name, col); err != nil {
			t.Release()
			return nil, err
		}
	}
	return t, nil
}

func csvError(err error) error {
	var pe *csv.ParseError
	if errors.As(err, &pe) {
		return errors.Wrapf(common.ErrCorrupt, "%v", pe)
	}
	return errors.Wrapf(common.ErrIO, "%v", err)
}

func isBool(s string) bool {
	switch strings.ToLower(s) {
	case "true", "false":
		return true
	}
	return false
}

// inferType picks the narrowest type every non-empty field parses as. Bool
// has no null, so a Bool column must not have empty fields.
func inferType(fields []string) common.TypeId {
	ints, floats, bools, empty := true, true, true, 0
	for _, f := range fields {
		if f == "" {
			empty++
			continue
		}
		if ints {
			if v, err := strconv.ParseInt(f, 10, 64); err != nil || v == common.NullI64 {
				ints = false
			}
		}
		if floats && !ints {
			if _, err := strconv.ParseFloat(f, 64); err != nil {
				floats = false
			}
		}
		if bools && !isBool(f) {
			bools = false
		}
		if !ints && !floats && !bools {
			return common.TID_SYM
		}
	}
	switch {
	case empty == len(fields):
		return common.TID_SYM
	case ints:
		return common.TID_I64
	case floats:
		return common.TID_F64
	case bools && empty == 0:
		return common.TID_BOOL
	}
	return common.TID_SYM
}

func parseColumn(typ common.TypeId, fields []string) (*chunk.Vector, error) {
	n := len(fields)
	switch typ {
	case common.TID_BOOL:
		vals := make([]bool, n)
		for i, f := range fields {
			if f == "" {
				continue
			}
			v, err := strconv.ParseBool(f)
			if err != nil {
				return nil, fieldError(typ, i, f)
			}
			vals[i] = v
		}
		return chunk.NewBoolVector(vals), nil
	case common.TID_I32:
		vals := make([]int32, n)
		for i, f := range fields {
			if f == "" {
				vals[i] = common.NullI32
				continue
			}
			v, err := strconv.ParseInt(f, 10, 32)
			if err != nil || v == math.MinInt32 {
				return nil, fieldError(typ, i, f)
			}
			vals[i] = int32(v)
		}
		return chunk.NewI32Vector(vals), nil
	case common.TID_I64:
		vals := make([]int64, n)
		for i, f := range fields {
			if f == "" {
				vals[i] = common.NullI64
				continue
			}
			v, err := strconv.ParseInt(f, 10, 64)
			if err != nil || v == common.NullI64 {
				return nil, fieldError(typ, i, f)
			}
			vals[i] = v
		}
		return chunk.NewI64Vector(vals), nil
	case common.TID_F64:
		vals := make([]float64, n)
		for i, f := range fields {
			if f == "" {
				vals[i] = common.F64Null()
				continue
			}
			v, err := strconv.ParseFloat(f, 64)
			if err != nil {
				return nil, fieldError(typ, i, f)
			}
			vals[i] = v
		}
		return chunk.NewF64Vector(vals), nil
	case common.TID_STR:
		return chunk.NewStrVector(fields), nil
	case common.TID_SYM:
		return chunk.NewSymVectorStrings(fields), nil
	}
	return nil, errors.Wrapf(common.ErrNYI, "csv column of %s", typ)
}

func fieldError(typ common.TypeId, row int, field string) error {
	return errors.Wrapf(common.ErrType, "row %d: %q is not %s", row+1, field, typ)
}
