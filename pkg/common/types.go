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
	"math"
	"strings"
)

// TypeId is the element type tag. The numeric values are persisted in
// column file headers and must not change.
type TypeId uint8

const (
	TID_INVALID TypeId = 0
	TID_BOOL    TypeId = 1
	TID_I32     TypeId = 5
	TID_I64     TypeId = 6
	TID_F64     TypeId = 7
	TID_STR     TypeId = 8
	TID_SYM     TypeId = 14
)

var typeNames = map[TypeId]string{
	TID_INVALID: "invalid",
	TID_BOOL:    "bool",
	TID_I32:     "i32",
	TID_I64:     "i64",
	TID_F64:     "f64",
	TID_STR:     "str",
	TID_SYM:     "sym",
}

func (id TypeId) String() string {
	if s, ok := typeNames[id]; ok {
		return s
	}
	return fmt.Sprintf("type(%d)", uint8(id))
}

func ParseTypeId(s string) (TypeId, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for id, name := range typeNames {
		if name == s && id != TID_INVALID {
			return id, nil
		}
	}
	switch s {
	case "int", "integer", "int32":
		return TID_I32, nil
	case "long", "bigint", "int64":
		return TID_I64, nil
	case "double", "float", "float64":
		return TID_F64, nil
	case "string", "varchar":
		return TID_STR, nil
	case "symbol", "enum":
		return TID_SYM, nil
	case "boolean":
		return TID_BOOL, nil
	}
	return TID_INVALID, fmt.Errorf("unknown type name %q", s)
}

// Size returns the fixed element width in bytes, or 0 for variable width.
func (id TypeId) Size() int {
	switch id {
	case TID_BOOL:
		return 1
	case TID_I32, TID_SYM:
		return 4
	case TID_I64, TID_F64:
		return 8
	default:
		return 0
	}
}

func (id TypeId) Valid() bool {
	switch id {
	case TID_BOOL, TID_I32, TID_I64, TID_F64, TID_STR, TID_SYM:
		return true
	}
	return false
}

func (id TypeId) IsNumeric() bool {
	switch id {
	case TID_BOOL, TID_I32, TID_I64, TID_F64:
		return true
	}
	return false
}

func (id TypeId) IsInteger() bool {
	return id == TID_I32 || id == TID_I64
}

// IsIntegral covers every type whose elements are stored as integers and can
// be range-indexed.
func (id TypeId) IsIntegral() bool {
	switch id {
	case TID_BOOL, TID_I32, TID_I64, TID_SYM:
		return true
	}
	return false
}

func (id TypeId) rank() int {
	switch id {
	case TID_BOOL:
		return 1
	case TID_I32:
		return 2
	case TID_I64:
		return 3
	case TID_F64:
		return 4
	}
	return 0
}

// Promote returns the arithmetic result type of two numeric types.
func Promote(a, b TypeId) TypeId {
	if a.rank() >= b.rank() {
		return a
	}
	return b
}

// Comparable reports whether two element types may be compared or joined.
func Comparable(a, b TypeId) bool {
	if a.IsNumeric() && b.IsNumeric() {
		return true
	}
	return a == b && (a == TID_STR || a == TID_SYM)
}

const (
	NullI32 int32  = math.MinInt32
	NullI64 int64  = math.MinInt64
	NullSym int32  = 0
	NullStr string = ""
)

// F64Null returns the float null encoding (NaN).
func F64Null() float64 {
	return math.NaN()
}

func IsNullI32(v int32) bool {
	return v == NullI32
}

func IsNullI64(v int64) bool {
	return v == NullI64
}

func IsNullF64(v float64) bool {
	return v != v
}

func IsNullSym(v int32) bool {
	return v == NullSym
}
