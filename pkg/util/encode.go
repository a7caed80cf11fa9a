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

package util

import (
	"math"
)

// Order-preserving encoders: for any a < b, Encode(a) < Encode(b) as unsigned.

func EncodeInt64Key(value int64) uint64 {
	return uint64(value) ^ (1 << 63)
}

func EncodeInt32Key(value int32) uint64 {
	return uint64(uint32(value) ^ (1 << 31))
}

// EncodeFloat64Key maps NaN below -Inf.
func EncodeFloat64Key(value float64) uint64 {
	if math.IsNaN(value) {
		return 0
	}
	bits := math.Float64bits(value)
	if bits&(1<<63) != 0 {
		return ^bits
	}
	return bits | (1 << 63)
}

func EncodeBoolKey(value bool) uint64 {
	if value {
		return 1
	}
	return 0
}

// FlipKey turns an ascending key into a descending one.
func FlipKey(key uint64) uint64 {
	return ^key
}
