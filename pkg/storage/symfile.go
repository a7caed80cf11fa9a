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

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/daviszhen/colq/pkg/chunk"
	"github.com/daviszhen/colq/pkg/common"
	"github.com/daviszhen/colq/pkg/sym"
	"github.com/daviszhen/colq/pkg/util"
)

// SymFile holds the process symbol table at a database root, as a Str
// column whose row i is the string of id i.
const SymFile = "sym"

func SymSave(root string) error {
	strs := sym.G().Snapshot()
	vec := chunk.NewStrVector(strs)
	defer vec.Release()
	if err := os.MkdirAll(root, 0755); err != nil {
		return common.NewPathError("mkdir", root, common.ErrIO, "%v", err)
	}
	if err := SaveColumn(vec, filepath.Join(root, SymFile)); err != nil {
		return err
	}
	util.Debug("symbols saved", zap.String("root", root), zap.Int("count", len(strs)))
	return nil
}

// SymLoad merges the symbol file at root into the process symbol table.
// Ids already handed out must agree with the file.
func SymLoad(root string) error {
	path := filepath.Join(root, SymFile)
	if _, err := os.Stat(path); err != nil {
		return common.NewPathError("open", path, common.ErrSymbolFile, "%v", err)
	}
	vec, err := LoadColumn(path)
	if err != nil {
		return err
	}
	defer vec.Release()
	if vec.Type() != common.TID_STR {
		return common.NewPathError("load", path, common.ErrSymbolFile,
			"symbol file holds %s, want %s", vec.Type(), common.TID_STR)
	}
	strs := make([]string, vec.Len())
	for i := range strs {
		//Merge copies what it keeps
		strs[i] = vec.StrAt(i)
	}
	if err = sym.G().Merge(strs); err != nil {
		return &common.PathError{Op: "merge", Path: path, Err: errors.WithStack(err)}
	}
	util.Debug("symbols loaded", zap.String("root", root), zap.Int("count", len(strs)))
	return nil
}
