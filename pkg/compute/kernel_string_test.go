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

package compute

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daviszhen/colq/pkg/chunk"
	"github.com/daviszhen/colq/pkg/common"
)

// peopleTable:
//
//	name      tag
//	" Ada "   x
//	straße    Y
//	null      null
//	bob       x
func peopleTable(t *testing.T) *chunk.Table {
	return newTestTable(t,
		testColumn{"name", chunk.NewStrVector([]string{" Ada ", "straße", "", "bob"})},
		testColumn{"tag", chunk.NewSymVectorStrings([]string{"x", "Y", "", "x"})},
	)
}

func texts(t *testing.T, v chunk.Value) []string {
	vec, ok := v.(*chunk.Vector)
	require.True(t, ok, "%s is not a vector", v.Kind())
	at := textAt(vec)
	ret := make([]string, vec.Len())
	for i := range ret {
		ret[i] = at(i)
	}
	return ret
}

func Test_caseTrimStrlen(t *testing.T) {
	g := newTestGraph(t, peopleTable(t))
	op := mustOp(t)
	name := op(g.Scan("name"))
	tag := op(g.Scan("tag"))

	upper := execute(t, g, op(g.Upper(name)))
	assert.Equal(t, common.TID_STR, upper.(*chunk.Vector).Type())
	assert.Equal(t, []string{" ADA ", "STRASSE", "", "BOB"}, texts(t, upper))

	lower := execute(t, g, op(g.Lower(tag))).(*chunk.Vector)
	require.Equal(t, common.TID_SYM, lower.Type())
	assert.Equal(t, []string{"x", "y", "", "x"}, texts(t, lower))
	assert.Equal(t, lower.Syms()[0], lower.Syms()[3])
	assert.Equal(t, common.NullSym, lower.Syms()[2])

	trim := execute(t, g, op(g.Trim(name)))
	assert.Equal(t, []string{"Ada", "straße", "", "bob"}, texts(t, trim))

	strlen := execute(t, g, op(g.Strlen(name))).(*chunk.Vector)
	assert.Equal(t, []int64{5, 6, common.NullI64, 3}, strlen.I64s())

	hi := op(g.ConstAtom(chunk.NewStrAtom("hi")))
	atom := execute(t, g, op(g.Upper(hi)))
	require.Equal(t, chunk.VK_ATOM, atom.Kind())
	assert.Equal(t, "HI", atom.(*chunk.Atom).Str())
}

func Test_compileLike(t *testing.T) {
	tests := []struct {
		pattern string
		s       string
		want    bool
	}{
		{"%", "abc", true},
		{"abc", "abc", true},
		{"abc", "abcd", false},
		{"a%", "abc", true},
		{"a%", "bac", false},
		{"%c", "abc", true},
		{"%b%", "abc", true},
		{"%d%", "abc", false},
		{"a_c", "abc", true},
		{"a_c", "ac", false},
		{"_b%", "abc", true},
		{"caf_", "café", true},
		{"%é", "café", true},
		{"a_%", "a\nb", true},
		{`a\%`, "a%", true},
		{`a\%`, "ab", false},
		{`a\_b`, "a_b", true},
		{`a\_b`, "axb", false},
		{"a.c", "abc", false},
	}
	for _, tt := range tests {
		t.Run(tt.pattern+"/"+tt.s, func(t *testing.T) {
			match, err := compileLike(tt.pattern)
			require.NoError(t, err)
			assert.Equal(t, tt.want, match(tt.s))
		})
	}
	_, err := compileLike(`ab\`)
	assert.True(t, errors.Is(err, common.ErrDomain))
}

func Test_like(t *testing.T) {
	g := newTestGraph(t, peopleTable(t))
	op := mustOp(t)
	name := op(g.Scan("name"))
	tag := op(g.Scan("tag"))

	x := op(g.ConstAtom(chunk.NewStrAtom("x%")))
	byTag := execute(t, g, op(g.Like(tag, x))).(*chunk.Vector)
	assert.Equal(t, []bool{true, false, false, true}, byTag.Bools())

	//null never matches
	all := op(g.ConstAtom(chunk.NewStrAtom("%")))
	byName := execute(t, g, op(g.Like(name, all))).(*chunk.Vector)
	assert.Equal(t, []bool{true, true, false, true}, byName.Bools())

	bad := op(g.ConstAtom(chunk.NewStrAtom(`x\`)))
	_, err := Execute(g, op(g.Like(name, bad)))
	assert.True(t, errors.Is(err, common.ErrDomain))
}

func Test_substrReplaceConcat(t *testing.T) {
	g := newTestGraph(t, peopleTable(t))
	op := mustOp(t)
	name := op(g.Scan("name"))
	tag := op(g.Scan("tag"))
	i64 := func(x int64) OpId {
		return op(g.ConstAtom(chunk.NewI64Atom(x)))
	}
	str := func(s string) OpId {
		return op(g.ConstAtom(chunk.NewStrAtom(s)))
	}

	sub := execute(t, g, op(g.Substr(name, i64(2), i64(3))))
	assert.Equal(t, []string{"Ada", "tra", "", "ob"}, texts(t, sub))

	//start below 1 reads from the first rune
	clamped := execute(t, g, op(g.Substr(name, i64(0), i64(2))))
	assert.Equal(t, []string{" A", "st", "", "bo"}, texts(t, clamped))

	tail := execute(t, g, op(g.Substr(str("straße"), i64(5), i64(10))))
	require.Equal(t, chunk.VK_ATOM, tail.Kind())
	assert.Equal(t, "ße", tail.(*chunk.Atom).Str())

	past := execute(t, g, op(g.Substr(name, i64(9), i64(1))))
	assert.Equal(t, []string{"", "", "", ""}, texts(t, past))

	_, err := Execute(g, op(g.Substr(name, i64(1), i64(-1))))
	assert.True(t, errors.Is(err, common.ErrDomain))

	replaced := execute(t, g, op(g.Replace(tag, str("x"), str("zz")))).(*chunk.Vector)
	assert.Equal(t, common.TID_SYM, replaced.Type())
	assert.Equal(t, []string{"zz", "Y", "", "zz"}, texts(t, replaced))

	same := execute(t, g, op(g.Replace(name, str(""), str("-"))))
	assert.Equal(t, []string{" Ada ", "straße", "", "bob"}, texts(t, same))

	mixed := execute(t, g, op(g.Concat(name, str("-"), tag))).(*chunk.Vector)
	assert.Equal(t, common.TID_STR, mixed.Type())
	assert.Equal(t, []string{" Ada -x", "straße-Y", "-", "bob-x"}, texts(t, mixed))

	syms := execute(t, g, op(g.Concat(tag, tag))).(*chunk.Vector)
	require.Equal(t, common.TID_SYM, syms.Type())
	assert.Equal(t, []string{"xx", "YY", "", "xx"}, texts(t, syms))
	assert.True(t, syms.IsNull(2))
}
