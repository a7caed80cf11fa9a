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

package common

import (
	"fmt"

	"github.com/pkg/errors"
)

// Error kinds. Every error returned by the engine wraps exactly one of these,
// so callers test with errors.Is.
var (
	ErrType           = errors.New("type mismatch")
	ErrLength         = errors.New("length mismatch")
	ErrDomain         = errors.New("domain error")
	ErrColumnNotFound = errors.New("column not found")
	ErrIO             = errors.New("i/o error")
	ErrCorrupt        = errors.New("corrupt data")
	ErrNYI            = errors.New("not yet implemented")
	ErrExhausted      = errors.New("resource exhausted")
	ErrSymbolFile     = errors.New("symbol file")
	ErrSymbolConflict = errors.New("symbol conflict")
	ErrReleased       = errors.New("value already released")
)

// BuildError reports a malformed operator at construction time.
type BuildError struct {
	Op  string
	Err error
}

func (e *BuildError) Error() string {
	return fmt.Sprintf("build %s: %v", e.Op, e.Err)
}

func (e *BuildError) Unwrap() error {
	return e.Err
}

func (e *BuildError) Cause() error {
	return e.Err
}

func NewBuildError(op string, kind error, format string, args ...any) error {
	return &BuildError{Op: op, Err: errors.Wrapf(kind, format, args...)}
}

// ExecError reports the node that failed an execution.
type ExecError struct {
	Node int
	Op   string
	Err  error
}

func (e *ExecError) Error() string {
	return fmt.Sprintf("execute node %d (%s): %v", e.Node, e.Op, e.Err)
}

func (e *ExecError) Unwrap() error {
	return e.Err
}

func (e *ExecError) Cause() error {
	return e.Err
}

// PathError reports a storage failure together with the offending path.
type PathError struct {
	Op   string
	Path string
	Err  error
}

func (e *PathError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *PathError) Unwrap() error {
	return e.Err
}

func (e *PathError) Cause() error {
	return e.Err
}

func NewPathError(op, path string, kind error, format string, args ...any) error {
	return &PathError{Op: op, Path: path, Err: errors.Wrapf(kind, format, args...)}
}
