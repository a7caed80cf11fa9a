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
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/pkg/errors"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/daviszhen/colq/pkg/chunk"
	"github.com/daviszhen/colq/pkg/common"
	"github.com/daviszhen/colq/pkg/sym"
)

// textAt reads element i of a contiguous Str or Sym vector. Nulls read as "".
func textAt(v *chunk.Vector) func(i int) string {
	if v.Type() == common.TID_SYM {
		ids := v.Syms()
		return func(i int) string {
			return sym.Str(ids[i])
		}
	}
	return v.StrAt
}

func toText(v chunk.Value) operand[string] {
	if a, ok := v.(*chunk.Atom); ok {
		return operand[string]{vals: []string{a.Str()}, scalar: true}
	}
	vec := v.(*chunk.Vector)
	at := textAt(vec)
	vals := make([]string, vec.Len())
	for i := range vals {
		vals[i] = at(i)
	}
	return operand[string]{vals: vals}
}

func textVector(typ common.TypeId, strs []string) *chunk.Vector {
	if typ == common.TID_SYM {
		return chunk.NewSymVectorStrings(strs)
	}
	return chunk.NewStrVector(strs)
}

func evalString(op OpKind, typ common.TypeId, args []chunk.Value) (chunk.Value, error) {
	n, err := operandLen(args...)
	if err != nil {
		return nil, err
	}
	scalar := n < 0
	if scalar {
		n = 1
	}
	for i, arg := range args {
		t := valueType(arg)
		if op == OP_SUBSTR && i > 0 {
			if !t.IsInteger() {
				return nil, errors.Wrapf(common.ErrType, "%s operand %d is %s", op, i, t)
			}
		} else if !isText(t) {
			return nil, errors.Wrapf(common.ErrType, "%s operand %d is %s", op, i, t)
		}
	}

	var out *chunk.Vector
	switch op {
	case OP_UPPER:
		upper := cases.Upper(language.Und)
		out = mapText(args[0], upper.String)
	case OP_LOWER:
		lower := cases.Lower(language.Und)
		out = mapText(args[0], lower.String)
	case OP_TRIM:
		out = mapText(args[0], strings.TrimSpace)
	case OP_STRLEN:
		out = chunk.NewVector(common.TID_I64, n)
		text := toText(args[0])
		for i, res := 0, out.I64s(); i < n; i++ {
			if s := text.at(i); s == "" {
				res[i] = common.NullI64
			} else {
				res[i] = int64(utf8.RuneCountInString(s))
			}
		}
	case OP_LIKE:
		pattern, ok := args[1].(*chunk.Atom)
		if !ok {
			return nil, errors.Wrap(common.ErrType, "like pattern is not an atom")
		}
		match, err := compileLike(pattern.Str())
		if err != nil {
			return nil, err
		}
		out = chunk.NewVector(common.TID_BOOL, n)
		text := toText(args[0])
		for i, res := 0, out.Bools(); i < n; i++ {
			s := text.at(i)
			res[i] = s != "" && match(s)
		}
	case OP_SUBSTR:
		strs, err := substr(toText(args[0]), toI64(args[1]), toI64(args[2]), n)
		if err != nil {
			return nil, err
		}
		out = textVector(typ, strs)
	case OP_REPLACE:
		text, from, to := toText(args[0]), toText(args[1]), toText(args[2])
		strs := make([]string, n)
		for i := range strs {
			s, f := text.at(i), from.at(i)
			if f == "" {
				strs[i] = s
			} else {
				strs[i] = strings.ReplaceAll(s, f, to.at(i))
			}
		}
		out = textVector(typ, strs)
	case OP_CONCAT:
		parts := make([]operand[string], len(args))
		for i, arg := range args {
			parts[i] = toText(arg)
		}
		strs := make([]string, n)
		sb := strings.Builder{}
		for i := range strs {
			sb.Reset()
			for _, text := range parts {
				sb.WriteString(text.at(i))
			}
			strs[i] = sb.String()
		}
		out = textVector(typ, strs)
	default:
		return nil, errors.Wrapf(common.ErrDomain, "%s is not a string operator", op)
	}
	return boxResult(out, scalar), nil
}

// mapText applies fn to every string of input and keeps its type. Sym inputs
// transform each distinct symbol once.
func mapText(input chunk.Value, fn func(string) string) *chunk.Vector {
	in := asVector(input)
	defer in.Release()
	if in.Type() == common.TID_SYM {
		out := chunk.NewVector(common.TID_SYM, in.Len())
		res := out.Syms()
		done := make(map[int32]int32)
		for i, id := range in.Syms() {
			to, ok := done[id]
			if !ok {
				to = sym.Intern(fn(sym.Str(id)))
				done[id] = to
			}
			res[i] = to
		}
		return out
	}
	b := chunk.NewStrBuilder(in.Len())
	for i := 0; i < in.Len(); i++ {
		b.Append(fn(in.StrAt(i)))
	}
	return b.Build()
}

// substr is 1-based and counts runes. A start below 1 reads from the first
// rune; null start or length gives null.
func substr(text operand[string], start, length operand[int64], n int) ([]string, error) {
	strs := make([]string, n)
	for i := range strs {
		s, st, ln := text.at(i), start.at(i), length.at(i)
		if s == "" || st == common.NullI64 || ln == common.NullI64 {
			continue
		}
		if ln < 0 {
			return nil, errors.Wrapf(common.ErrDomain, "substr length %d", ln)
		}
		st = max(st, 1) - 1
		if utf8.RuneCountInString(s) == len(s) {
			if size := int64(len(s)); st < size {
				strs[i] = s[st : st+min(ln, size-st)]
			}
			continue
		}
		runes := []rune(s)
		if size := int64(len(runes)); st < size {
			strs[i] = string(runes[st : st+min(ln, size-st)])
		}
	}
	return strs, nil
}

func isWildcard(c byte) bool {
	return c == '%' || c == '_'
}

// compileLike picks the cheapest matcher for a SQL pattern: exact, prefix,
// suffix or substring tests when the only wildcards are a leading or trailing
// %, a regular expression otherwise.
func compileLike(pattern string) (func(string) bool, error) {
	if !strings.ContainsRune(pattern, '\\') {
		switch {
		case pattern == "%":
			return func(string) bool { return true }, nil
		case !strings.ContainsAny(pattern, "%_"):
			return func(s string) bool { return s == pattern }, nil
		case len(pattern) > 1 && !strings.ContainsAny(pattern[1:len(pattern)-1], "%_"):
			first, last := pattern[0], pattern[len(pattern)-1]
			switch {
			case first == '%' && last == '%':
				mid := pattern[1 : len(pattern)-1]
				return func(s string) bool { return strings.Contains(s, mid) }, nil
			case first == '%' && !isWildcard(last):
				suffix := pattern[1:]
				return func(s string) bool { return strings.HasSuffix(s, suffix) }, nil
			case last == '%' && !isWildcard(first):
				prefix := pattern[:len(pattern)-1]
				return func(s string) bool { return strings.HasPrefix(s, prefix) }, nil
			}
		}
	}
	re, err := likeRegexp(pattern)
	if err != nil {
		return nil, err
	}
	return re.MatchString, nil
}

// likeRegexp translates a SQL pattern; \ escapes the next rune.
func likeRegexp(pattern string) (*regexp.Regexp, error) {
	sb := strings.Builder{}
	sb.WriteString("^(?s:")
	escaped := false
	for _, r := range pattern {
		switch {
		case escaped:
			sb.WriteString(regexp.QuoteMeta(string(r)))
			escaped = false
		case r == '\\':
			escaped = true
		case r == '%':
			sb.WriteString(".*")
		case r == '_':
			sb.WriteString(".")
		default:
			sb.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	if escaped {
		return nil, errors.Wrapf(common.ErrDomain, "like pattern %q ends with an escape", pattern)
	}
	sb.WriteString(")$")
	re, err := regexp.Compile(sb.String())
	if err != nil {
		return nil, errors.Wrapf(common.ErrDomain, "like pattern %q: %v", pattern, err)
	}
	return re, nil
}
