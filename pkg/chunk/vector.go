package chunk

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync/atomic"
	"unsafe"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/daviszhen/colq/pkg/common"
	"github.com/daviszhen/colq/pkg/sym"
	"github.com/daviszhen/colq/pkg/util"
)

type Ownership uint8

const (
	//heap block: header + data
	VEC_OWNED Ownership = iota
	//read-only mmap'd column file
	VEC_MAPPED
	//window over a parent vector
	VEC_SLICE
	//row-wise concatenation of child vectors
	VEC_SEGMENTED
)

func (o Ownership) String() string {
	switch o {
	case VEC_OWNED:
		return "owned"
	case VEC_MAPPED:
		return "mapped"
	case VEC_SLICE:
		return "slice"
	case VEC_SEGMENTED:
		return "segmented"
	}
	return fmt.Sprintf("ownership(%d)", uint8(o))
}

// Vector is a typed, reference counted column.
type Vector struct {
	own    Ownership
	typ    common.TypeId
	attrs  uint8
	length int
	refs   atomic.Int32
	gen    atomic.Uint32

	//owned, mapped
	block []byte
	//fixed-width element bytes
	data []byte
	//Str: length+1 offsets into blob
	offs []int64
	blob []byte

	//slice
	parent *Vector
	offset int

	//segmented
	segs   []*Vector
	starts []int

	unmap func() error
}

func (v *Vector) value() {}

func (v *Vector) Kind() ValueKind {
	return VK_VECTOR
}

func (v *Vector) Type() common.TypeId {
	return v.typ
}

func (v *Vector) Len() int {
	return v.length
}

func (v *Vector) Ownership() Ownership {
	return v.own
}

func (v *Vector) Attrs() uint8 {
	return v.attrs
}

// SetAttrs records attributes on an owned vector and its header.
func (v *Vector) SetAttrs(attrs uint8) {
	v.check()
	if v.own != VEC_OWNED {
		return
	}
	v.attrs = attrs
	v.block[5] = attrs
}

func (v *Vector) RefCount() int32 {
	return v.refs.Load()
}

// Generation counts how many times the vector reached refcount zero.
func (v *Vector) Generation() uint32 {
	return v.gen.Load()
}

func (v *Vector) check() {
	if v.refs.Load() <= 0 {
		panic(errors.Wrapf(common.ErrReleased, "%s %s vector, generation %d", v.own, v.typ, v.gen.Load()))
	}
}

func (v *Vector) Retain() {
	if v.refs.Add(1) <= 1 {
		panic(errors.Wrapf(common.ErrReleased, "retain %s vector", v.typ))
	}
}

func (v *Vector) Release() {
	n := v.refs.Add(-1)
	if n > 0 {
		return
	}
	if n < 0 {
		panic(errors.Wrapf(common.ErrReleased, "double release of %s vector", v.typ))
	}
	v.gen.Add(1)
	v.free()
}

func (v *Vector) free() {
	switch v.own {
	case VEC_MAPPED:
		if v.unmap != nil {
			if err := v.unmap(); err != nil {
				util.Error("unmap column failed", zap.Error(err))
			}
			v.unmap = nil
		}
	case VEC_SLICE:
		v.parent.Release()
		v.parent = nil
	case VEC_SEGMENTED:
		for _, seg := range v.segs {
			seg.Release()
		}
		v.segs = nil
		v.starts = nil
	}
	v.block = nil
	v.data = nil
	v.offs = nil
	v.blob = nil
}

func newVector(own Ownership, typ common.TypeId, length int) *Vector {
	v := &Vector{own: own, typ: typ, length: length}
	v.refs.Store(1)
	return v
}

// NewVector allocates an owned vector of n zero elements. Str elements are
// empty strings.
func NewVector(typ common.TypeId, n int) *Vector {
	util.AssertFunc(typ.Valid())
	h := Header{Typ: typ, Len: int64(n)}
	block := newBlock(int(h.DataSize()))
	h.Put(block)
	v := newVector(VEC_OWNED, typ, n)
	v.block = block
	v.setViews(h)
	return v
}

// NullVector allocates n nulls of typ.
func NullVector(typ common.TypeId, n int) *Vector {
	v := NewVector(typ, n)
	switch typ {
	case common.TID_I32:
		util.Fill(GetSlice[int32](v), common.NullI32)
	case common.TID_I64:
		util.Fill(GetSlice[int64](v), common.NullI64)
	case common.TID_F64:
		util.Fill(GetSlice[float64](v), common.F64Null())
	}
	return v
}

func (v *Vector) setViews(h Header) {
	body := v.block[HeaderSize : HeaderSize+int(h.DataSize())]
	v.attrs = h.Attrs
	if h.Typ == common.TID_STR {
		offBytes := (int(h.Len) + 1) * 8
		v.offs = util.ToSlice[int64](body[:offBytes], 8)
		v.blob = body[offBytes:]
		return
	}
	v.data = body
}

// FromBlock wraps a block laid out as header + data into an owned vector.
func FromBlock(block []byte) (*Vector, error) {
	if len(block) > 0 && uintptr(unsafe.Pointer(unsafe.SliceData(block)))%8 != 0 {
		aligned := newBlock(len(block) - HeaderSize)
		copy(aligned, block)
		block = aligned
	}
	return fromBlock(VEC_OWNED, block, nil)
}

// NewMapped wraps a read-only mapped block. unmap runs when the last
// reference is released.
func NewMapped(block []byte, unmap func() error) (*Vector, error) {
	return fromBlock(VEC_MAPPED, block, unmap)
}

func fromBlock(own Ownership, block []byte, unmap func() error) (*Vector, error) {
	h, err := ParseHeader(block)
	if err != nil {
		return nil, err
	}
	v := newVector(own, h.Typ, int(h.Len))
	v.block = block
	v.unmap = unmap
	v.setViews(h)
	switch h.Typ {
	case common.TID_STR:
		if v.offs[0] != 0 || v.offs[v.length] != h.Blob {
			return nil, errors.Wrapf(common.ErrCorrupt, "string offsets span [%d,%d], blob %d",
				v.offs[0], v.offs[v.length], h.Blob)
		}
		for i := 0; i < v.length; i++ {
			if v.offs[i] > v.offs[i+1] {
				return nil, errors.Wrapf(common.ErrCorrupt, "string offset %d decreases", i)
			}
		}
	case common.TID_BOOL:
		for i, b := range v.data {
			if b > 1 {
				return nil, errors.Wrapf(common.ErrCorrupt, "bool %d has byte %d", i, b)
			}
		}
	}
	return v, nil
}

// Block returns header + data of an owned or mapped vector, nil otherwise.
func (v *Vector) Block() []byte {
	v.check()
	if v.own == VEC_OWNED || v.own == VEC_MAPPED {
		return v.block
	}
	return nil
}

func (v *Vector) Contiguous() bool {
	return v.own != VEC_SEGMENTED
}

// GetSlice returns the elements of a contiguous fixed-width vector. T must
// match the element width: bool, int32, int64, float64.
func GetSlice[T any](v *Vector) []T {
	v.check()
	if !v.Contiguous() {
		panic("segmented vector has no contiguous data")
	}
	var zero T
	if int(unsafe.Sizeof(zero)) != v.typ.Size() {
		panic(fmt.Sprintf("element width %d does not match %s", unsafe.Sizeof(zero), v.typ))
	}
	if v.length == 0 {
		return nil
	}
	return util.ToSlice[T](v.data, v.typ.Size())
}

func (v *Vector) Bools() []bool {
	util.AssertFunc(v.typ == common.TID_BOOL)
	return GetSlice[bool](v)
}

func (v *Vector) I32s() []int32 {
	util.AssertFunc(v.typ == common.TID_I32)
	return GetSlice[int32](v)
}

func (v *Vector) I64s() []int64 {
	util.AssertFunc(v.typ == common.TID_I64)
	return GetSlice[int64](v)
}

func (v *Vector) F64s() []float64 {
	util.AssertFunc(v.typ == common.TID_F64)
	return GetSlice[float64](v)
}

func (v *Vector) Syms() []int32 {
	util.AssertFunc(v.typ == common.TID_SYM)
	return GetSlice[int32](v)
}

// StrData exposes the offsets and blob of a contiguous Str vector. Element i
// is blob[offs[i]:offs[i+1]].
func (v *Vector) StrData() ([]int64, []byte) {
	v.check()
	util.AssertFunc(v.typ == common.TID_STR && v.Contiguous())
	return v.offs, v.blob
}

// StrAt returns element i without copying.
func (v *Vector) StrAt(i int) string {
	if v.own == VEC_SEGMENTED {
		seg, j := v.locate(i)
		return seg.StrAt(j)
	}
	b := v.blob[v.offs[i]:v.offs[i+1]]
	return util.UnsafeBytesToString(b)
}

func (v *Vector) locate(i int) (*Vector, int) {
	s := sort.Search(len(v.segs), func(k int) bool {
		return v.starts[k+1] > i
	})
	return v.segs[s], i - v.starts[s]
}

func (v *Vector) IsNull(i int) bool {
	v.check()
	if v.own == VEC_SEGMENTED {
		seg, j := v.locate(i)
		return seg.IsNull(j)
	}
	switch v.typ {
	case common.TID_I32:
		return GetSlice[int32](v)[i] == common.NullI32
	case common.TID_I64:
		return GetSlice[int64](v)[i] == common.NullI64
	case common.TID_F64:
		return common.IsNullF64(GetSlice[float64](v)[i])
	case common.TID_SYM:
		return GetSlice[int32](v)[i] == common.NullSym
	case common.TID_STR:
		return v.offs[i] == v.offs[i+1]
	}
	return false
}

// Get boxes element i into a new atom.
func (v *Vector) Get(i int) *Atom {
	v.check()
	util.AssertFunc(i >= 0 && i < v.length)
	if v.own == VEC_SEGMENTED {
		seg, j := v.locate(i)
		return seg.Get(j)
	}
	switch v.typ {
	case common.TID_BOOL:
		return NewBoolAtom(GetSlice[bool](v)[i])
	case common.TID_I32:
		return NewI32Atom(GetSlice[int32](v)[i])
	case common.TID_I64:
		return NewI64Atom(GetSlice[int64](v)[i])
	case common.TID_F64:
		return NewF64Atom(GetSlice[float64](v)[i])
	case common.TID_SYM:
		return NewSymAtom(GetSlice[int32](v)[i])
	case common.TID_STR:
		return NewStrAtom(strings.Clone(v.StrAt(i)))
	}
	panic("usp")
}

// ElemString formats element i for display.
func (v *Vector) ElemString(i int) string {
	if v.own == VEC_SEGMENTED {
		seg, j := v.locate(i)
		return seg.ElemString(j)
	}
	if v.typ != common.TID_STR && v.IsNull(i) {
		return "null"
	}
	switch v.typ {
	case common.TID_BOOL:
		return strconv.FormatBool(GetSlice[bool](v)[i])
	case common.TID_I32:
		return strconv.FormatInt(int64(GetSlice[int32](v)[i]), 10)
	case common.TID_I64:
		return strconv.FormatInt(GetSlice[int64](v)[i], 10)
	case common.TID_F64:
		return strconv.FormatFloat(GetSlice[float64](v)[i], 'g', -1, 64)
	case common.TID_SYM:
		return sym.Str(GetSlice[int32](v)[i])
	case common.TID_STR:
		return v.StrAt(i)
	}
	return "?"
}

func (v *Vector) String() string {
	const preview = 8
	sb := strings.Builder{}
	sb.WriteString(v.typ.String())
	sb.WriteString("[")
	for i := 0; i < v.length && i < preview; i++ {
		if i > 0 {
			sb.WriteString(" ")
		}
		sb.WriteString(v.ElemString(i))
	}
	if v.length > preview {
		sb.WriteString(fmt.Sprintf(" ...%d more", v.length-preview))
	}
	sb.WriteString("]")
	return sb.String()
}
