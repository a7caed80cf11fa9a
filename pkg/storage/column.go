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

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/daviszhen/colq/pkg/chunk"
	"github.com/daviszhen/colq/pkg/common"
	"github.com/daviszhen/colq/pkg/util"
)

const (
	FAULT_SAVE_COLUMN = "save_column"
	FAULT_LOAD_COLUMN = "load_column"
)

// SaveColumn writes the block of v to path. The file is byte-identical to
// the in-memory block, so LoadColumn only maps and validates it.
func SaveColumn(v *chunk.Vector, path string) error {
	if err := util.Inject(util.FAULTS_SCOPE_STORAGE, FAULT_SAVE_COLUMN); err != nil {
		return &common.PathError{Op: "save", Path: path, Err: err}
	}
	flat := v.Materialize()
	defer flat.Release()

	tmp := path + ".tmp"
	serial, err := util.NewFileSerialize(tmp)
	if err != nil {
		return common.NewPathError("create", tmp, common.ErrIO, "%v", err)
	}
	err = util.WriteBytes(flat.Block(), serial)
	if cerr := serial.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(tmp)
		return common.NewPathError("write", tmp, common.ErrIO, "%v", err)
	}
	if err = os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return common.NewPathError("rename", path, common.ErrIO, "%v", err)
	}
	return nil
}

// LoadColumn maps path read-only and returns a vector borrowing the
// mapping. The mapping is released with the last reference.
func LoadColumn(path string) (*chunk.Vector, error) {
	if err := util.Inject(util.FAULTS_SCOPE_STORAGE, FAULT_LOAD_COLUMN); err != nil {
		return nil, &common.PathError{Op: "load", Path: path, Err: err}
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, common.NewPathError("open", path, common.ErrIO, "%v", err)
	}
	defer file.Close()
	info, err := file.Stat()
	if err != nil {
		return nil, common.NewPathError("stat", path, common.ErrIO, "%v", err)
	}
	size := info.Size()
	if size < chunk.HeaderSize {
		return nil, common.NewPathError("load", path, common.ErrCorrupt,
			"file of %d bytes is shorter than header", size)
	}
	data, err := unix.Mmap(int(file.Fd()), 0, int(size), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return nil, common.NewPathError("mmap", path, common.ErrIO, "%v", err)
	}
	vec, err := chunk.NewMapped(data, func() error {
		return unix.Munmap(data)
	})
	if err != nil {
		if uerr := unix.Munmap(data); uerr != nil {
			util.Error("munmap failed", zap.String("path", path), zap.Error(uerr))
		}
		if !errors.Is(err, common.ErrCorrupt) {
			err = errors.Wrap(common.ErrCorrupt, err.Error())
		}
		return nil, &common.PathError{Op: "load", Path: path, Err: err}
	}
	return vec, nil
}
