package chunk

import (
	"fmt"
	"math"
	"strconv"
	"sync/atomic"

	"github.com/daviszhen/colq/pkg/common"
	"github.com/daviszhen/colq/pkg/sym"
)

type ValueKind int

const (
	VK_ATOM ValueKind = iota
	VK_VECTOR
	VK_TABLE
)

func (k ValueKind) String() string {
	switch k {
	case VK_ATOM:
		return "atom"
	case VK_VECTOR:
		return "vector"
	case VK_TABLE:
		return "table"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Value is one of *Atom, *Vector or *Table.
type Value interface {
	Kind() ValueKind
	Retain()
	Release()
	String() string
	value()
}

// Atom is a single typed scalar. Bool, I32, I64 and Sym keep their payload
// in i, F64 in f, Str in s.
type Atom struct {
	typ  common.TypeId
	i    int64
	f    float64
	s    string
	refs atomic.Int32
}

func newAtom(typ common.TypeId) *Atom {
	a := &Atom{typ: typ}
	a.refs.Store(1)
	return a
}

func NewBoolAtom(v bool) *Atom {
	a := newAtom(common.TID_BOOL)
	if v {
		a.i = 1
	}
	return a
}

func NewI32Atom(v int32) *Atom {
	a := newAtom(common.TID_I32)
	a.i = int64(v)
	return a
}

func NewI64Atom(v int64) *Atom {
	a := newAtom(common.TID_I64)
	a.i = v
	return a
}

func NewF64Atom(v float64) *Atom {
	a := newAtom(common.TID_F64)
	a.f = v
	return a
}

func NewStrAtom(v string) *Atom {
	a := newAtom(common.TID_STR)
	a.s = v
	return a
}

func NewSymAtom(id int32) *Atom {
	a := newAtom(common.TID_SYM)
	a.i = int64(id)
	return a
}

// NewSymAtomString interns s in the process-wide symbol table.
func NewSymAtomString(s string) *Atom {
	return NewSymAtom(sym.Intern(s))
}

// NullAtom returns the null of typ. Bool has no null and yields false.
func NullAtom(typ common.TypeId) *Atom {
	a := newAtom(typ)
	switch typ {
	case common.TID_I32:
		a.i = int64(common.NullI32)
	case common.TID_I64:
		a.i = common.NullI64
	case common.TID_F64:
		a.f = common.F64Null()
	}
	return a
}

func (a *Atom) value() {}

func (a *Atom) Kind() ValueKind {
	return VK_ATOM
}

func (a *Atom) Retain() {
	if a.refs.Add(1) <= 1 {
		panic(common.ErrReleased)
	}
}

func (a *Atom) Release() {
	if a.refs.Add(-1) < 0 {
		panic(common.ErrReleased)
	}
}

func (a *Atom) Type() common.TypeId {
	return a.typ
}

func (a *Atom) IsNull() bool {
	switch a.typ {
	case common.TID_I32:
		return int32(a.i) == common.NullI32
	case common.TID_I64:
		return a.i == common.NullI64
	case common.TID_F64:
		return common.IsNullF64(a.f)
	case common.TID_SYM:
		return int32(a.i) == common.NullSym
	case common.TID_STR:
		return a.s == common.NullStr
	}
	return false
}

func (a *Atom) Bool() bool {
	return a.i != 0
}

func (a *Atom) I32() int32 {
	return int32(a.i)
}

// I64 widens Bool, I32 and I64 payloads. The I32 null widens to the I64 null.
func (a *Atom) I64() int64 {
	if a.typ == common.TID_I32 && int32(a.i) == common.NullI32 {
		return common.NullI64
	}
	if a.typ == common.TID_F64 {
		if common.IsNullF64(a.f) {
			return common.NullI64
		}
		return int64(a.f)
	}
	return a.i
}

// F64 converts numeric payloads; nulls become NaN.
func (a *Atom) F64() float64 {
	switch a.typ {
	case common.TID_F64:
		return a.f
	case common.TID_I32, common.TID_I64:
		if a.IsNull() {
			return common.F64Null()
		}
		return float64(a.i)
	case common.TID_BOOL:
		return float64(a.i)
	}
	return common.F64Null()
}

func (a *Atom) Sym() int32 {
	return int32(a.i)
}

// Str returns the Str payload or the resolved symbol.
func (a *Atom) Str() string {
	if a.typ == common.TID_SYM {
		return sym.Str(int32(a.i))
	}
	return a.s
}

func (a *Atom) Equal(o *Atom) bool {
	if a.typ != o.typ {
		return false
	}
	if a.typ == common.TID_F64 {
		return a.f == o.f || (math.IsNaN(a.f) && math.IsNaN(o.f))
	}
	return a.i == o.i && a.s == o.s
}

func (a *Atom) String() string {
	if a.IsNull() && a.typ != common.TID_STR {
		return "null"
	}
	switch a.typ {
	case common.TID_BOOL:
		return strconv.FormatBool(a.i != 0)
	case common.TID_I32, common.TID_I64:
		return strconv.FormatInt(a.i, 10)
	case common.TID_F64:
		return strconv.FormatFloat(a.f, 'g', -1, 64)
	case common.TID_SYM:
		return sym.Str(int32(a.i))
	case common.TID_STR:
		return a.s
	}
	return "?"
}
