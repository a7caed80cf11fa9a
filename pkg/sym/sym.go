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

// Package sym interns strings to dense int32 ids. Id 0 is the empty string,
// which doubles as the null symbol.
package sym

import (
	"sync"

	"github.com/pkg/errors"

	"github.com/daviszhen/colq/pkg/common"
)

type Table struct {
	mu      sync.RWMutex
	ids     map[string]int32
	strings []string
}

func New() *Table {
	t := &Table{
		ids:     make(map[string]int32, 256),
		strings: make([]string, 0, 256),
	}
	t.ids[""] = 0
	t.strings = append(t.strings, "")
	return t
}

// Intern returns the id of s, adding it if needed.
func (t *Table) Intern(s string) int32 {
	t.mu.RLock()
	id, ok := t.ids[s]
	t.mu.RUnlock()
	if ok {
		return id
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	//another writer may have won the race
	if id, ok = t.ids[s]; ok {
		return id
	}
	id = int32(len(t.strings))
	s = cloneString(s)
	t.strings = append(t.strings, s)
	t.ids[s] = id
	return id
}

func (t *Table) Find(s string) (int32, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	id, ok := t.ids[s]
	return id, ok
}

func (t *Table) Str(id int32) (string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if id < 0 || int(id) >= len(t.strings) {
		return "", false
	}
	return t.strings[id], true
}

// MustStr resolves id or returns "" for unknown ids.
func (t *Table) MustStr(id int32) string {
	s, _ := t.Str(id)
	return s
}

func (t *Table) Count() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.strings)
}

// Snapshot returns the strings in id order.
func (t *Table) Snapshot() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	ret := make([]string, len(t.strings))
	copy(ret, t.strings)
	return ret
}

// Merge interns strs so that strs[i] gets id i. It fails without changing
// anything when an id is already bound to another string or a string
// appears twice.
func (t *Table) Merge(strs []string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	fresh := make(map[string]int, max(len(strs)-len(t.strings), 0))
	for i, s := range strs {
		if i < len(t.strings) {
			if t.strings[i] != s {
				return errors.Wrapf(common.ErrSymbolConflict,
					"id %d is %q in memory and %q in file", i, t.strings[i], s)
			}
			continue
		}
		if prev, ok := t.ids[s]; ok {
			return errors.Wrapf(common.ErrSymbolConflict,
				"%q has id %d in memory and %d in file", s, prev, i)
		}
		if prev, ok := fresh[s]; ok {
			return errors.Wrapf(common.ErrSymbolConflict,
				"%q appears as id %d and %d in file", s, prev, i)
		}
		fresh[s] = i
	}
	for i := len(t.strings); i < len(strs); i++ {
		s := cloneString(strs[i])
		t.strings = append(t.strings, s)
		t.ids[s] = int32(i)
	}
	return nil
}

// Compare orders two ids by their strings.
func (t *Table) Compare(a, b int32) int {
	if a == b {
		return 0
	}
	sa, sb := t.MustStr(a), t.MustStr(b)
	switch {
	case sa < sb:
		return -1
	case sa > sb:
		return 1
	}
	return 0
}

// cloneString detaches s from buffers it may alias, e.g. a mapped file.
func cloneString(s string) string {
	if len(s) == 0 {
		return ""
	}
	b := make([]byte, len(s))
	copy(b, s)
	return string(b)
}
