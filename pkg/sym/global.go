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

package sym

import (
	"sync/atomic"
)

var gTable atomic.Pointer[Table]

func init() {
	gTable.Store(New())
}

// Init installs a fresh process-wide table if none is present.
func Init() {
	gTable.CompareAndSwap(nil, New())
}

// Destroy drops the process-wide table. Ids handed out before are invalid
// until the symbol file is loaded again.
func Destroy() {
	gTable.Store(nil)
}

// G returns the process-wide table, creating one after Destroy.
func G() *Table {
	if t := gTable.Load(); t != nil {
		return t
	}
	Init()
	return gTable.Load()
}

func Intern(s string) int32 {
	return G().Intern(s)
}

func Find(s string) (int32, bool) {
	return G().Find(s)
}

func Str(id int32) string {
	return G().MustStr(id)
}
