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

	"go.uber.org/zap"

	"github.com/daviszhen/colq/pkg/chunk"
	"github.com/daviszhen/colq/pkg/common"
	"github.com/daviszhen/colq/pkg/sym"
	"github.com/daviszhen/colq/pkg/util"
)

// ColumnIndexFile lists the column names of a splay directory in table
// order. It is a Str column file and is written after every column file.
const ColumnIndexFile = ".d"

func checkName(dir, name string) error {
	switch {
	case name == "":
		return common.NewPathError("check", dir, common.ErrDomain, "empty column name")
	case name[0] == '.':
		return common.NewPathError("check", dir, common.ErrDomain, "column name %q starts with '.'", name)
	case strings.ContainsAny(name, "/\\\x00") || strings.ContainsRune(name, os.PathSeparator):
		return common.NewPathError("check", dir, common.ErrDomain, "column name %q contains a path separator", name)
	}
	return nil
}

// SplaySave writes t to dir: one column file per column, named by the
// column, then the column index.
func SplaySave(t *chunk.Table, dir string) error {
	names := t.Names()
	seen := make(map[string]struct{}, len(names))
	for _, name := range names {
		if err := checkName(dir, name); err != nil {
			return err
		}
		if _, has := seen[name]; has {
			return common.NewPathError("check", dir, common.ErrDomain, "duplicate column name %q", name)
		}
		seen[name] = struct{}{}
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return common.NewPathError("mkdir", dir, common.ErrIO, "%v", err)
	}
	for i, name := range names {
		if err := SaveColumn(t.Column(i), filepath.Join(dir, name)); err != nil {
			return err
		}
	}
	index := chunk.NewStrVector(names)
	defer index.Release()
	if err := SaveColumn(index, filepath.Join(dir, ColumnIndexFile)); err != nil {
		return err
	}
	util.Debug("splay saved",
		zap.String("dir", dir),
		zap.Int("columns", len(names)),
		zap.Int("rows", t.RowCount()))
	return nil
}

// SplayLoad maps every column of the splay directory dir.
func SplayLoad(dir string) (*chunk.Table, error) {
	return SplayLoadContext(context.Background(), nil, dir)
}

// SplayLoadContext is SplayLoad with the column files mapped on pool.
func SplayLoadContext(ctx context.Context, pool *util.Pool, dir string) (*chunk.Table, error) {
	names, err := readColumnIndex(dir)
	if err != nil {
		return nil, err
	}
	for _, name := range names {
		if err = checkName(dir, name); err != nil {
			return nil, err
		}
	}
	symCount := int32(sym.G().Count())
	cols := make([]*chunk.Vector, len(names))
	err = pool.Run(ctx, len(names), func(i int) error {
		path := filepath.Join(dir, names[i])
		col, err := LoadColumn(path)
		if err != nil {
			return err
		}
		if col.Type() == common.TID_SYM {
			if err = checkSyms(col, symCount, path); err != nil {
				col.Release()
				return err
			}
		}
		cols[i] = col
		return nil
	})
	if err != nil {
		for _, col := range cols {
			if col != nil {
				col.Release()
			}
		}
		return nil, err
	}

	t := chunk.NewTable()
	for i, col := range cols {
		cols[i] = nil
		if err = t.AddColumn(names[i], col); err != nil {
			for _, rest := range cols[i+1:] {
				rest.Release()
			}
			t.Release()
			return nil, &common.PathError{Op: "load", Path: filepath.Join(dir, names[i]), Err: err}
		}
	}
	return t, nil
}

func readColumnIndex(dir string) ([]string, error) {
	path := filepath.Join(dir, ColumnIndexFile)
	index, err := LoadColumn(path)
	if err != nil {
		return nil, err
	}
	defer index.Release()
	if index.Type() != common.TID_STR {
		return nil, common.NewPathError("load", path, common.ErrCorrupt,
			"column index is %s, want %s", index.Type(), common.TID_STR)
	}
	names := make([]string, index.Len())
	for i := range names {
		names[i] = strings.Clone(index.StrAt(i))
	}
	return names, nil
}

// checkSyms fails when a symbol id is not in the loaded symbol table.
func checkSyms(col *chunk.Vector, count int32, path string) error {
	for i, id := range col.Syms() {
		if id < 0 || id >= count {
			return common.NewPathError("load", path, common.ErrSymbolFile,
				"row %d has symbol %d, table holds %d", i, id, count)
		}
	}
	return nil
}
