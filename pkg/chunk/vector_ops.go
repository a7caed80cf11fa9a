package chunk

import (
	"sort"

	"github.com/pkg/errors"

	"github.com/daviszhen/colq/pkg/common"
	"github.com/daviszhen/colq/pkg/sym"
	"github.com/daviszhen/colq/pkg/util"
)

func fromSlice[T any](typ common.TypeId, vals []T) *Vector {
	v := NewVector(typ, len(vals))
	copy(GetSlice[T](v), vals)
	return v
}

func NewBoolVector(vals []bool) *Vector {
	return fromSlice(common.TID_BOOL, vals)
}

func NewI32Vector(vals []int32) *Vector {
	return fromSlice(common.TID_I32, vals)
}

func NewI64Vector(vals []int64) *Vector {
	return fromSlice(common.TID_I64, vals)
}

func NewF64Vector(vals []float64) *Vector {
	return fromSlice(common.TID_F64, vals)
}

func NewSymVector(ids []int32) *Vector {
	return fromSlice(common.TID_SYM, ids)
}

// NewSymVectorStrings interns strs in the process-wide symbol table.
func NewSymVectorStrings(strs []string) *Vector {
	v := NewVector(common.TID_SYM, len(strs))
	ids := GetSlice[int32](v)
	for i, s := range strs {
		ids[i] = sym.Intern(s)
	}
	return v
}

func NewStrVector(strs []string) *Vector {
	b := NewStrBuilder(len(strs))
	for _, s := range strs {
		b.Append(s)
	}
	return b.Build()
}

// StrBuilder accumulates strings for a new Str vector.
type StrBuilder struct {
	offs []int64
	blob []byte
}

func NewStrBuilder(capacity int) *StrBuilder {
	b := &StrBuilder{
		offs: make([]int64, 1, capacity+1),
	}
	return b
}

func (b *StrBuilder) Append(s string) {
	b.blob = append(b.blob, s...)
	b.offs = append(b.offs, int64(len(b.blob)))
}

func (b *StrBuilder) Len() int {
	return len(b.offs) - 1
}

func (b *StrBuilder) Build() *Vector {
	n := b.Len()
	h := Header{Typ: common.TID_STR, Len: int64(n), Blob: int64(len(b.blob))}
	block := newBlock(int(h.DataSize()))
	h.Put(block)
	v := newVector(VEC_OWNED, common.TID_STR, n)
	v.block = block
	v.setViews(h)
	copy(v.offs, b.offs)
	copy(v.blob, b.blob)
	return v
}

// Slice returns a zero-copy view of rows [off, off+n). The view retains its
// parent, so the parent's data outlives any release by other holders.
func (v *Vector) Slice(off, n int) *Vector {
	v.check()
	util.AssertFunc(off >= 0 && n >= 0 && off+n <= v.length)
	if v.own == VEC_SEGMENTED {
		return v.sliceSegments(off, n)
	}
	root, base := v, off
	if v.own == VEC_SLICE {
		root, base = v.parent, v.offset+off
	}
	root.Retain()
	s := newVector(VEC_SLICE, v.typ, n)
	s.parent = root
	s.offset = base
	if v.typ == common.TID_STR {
		s.offs = v.offs[off : off+n+1]
		s.blob = v.blob
	} else {
		sz := v.typ.Size()
		s.data = v.data[off*sz : (off+n)*sz]
	}
	return s
}

// sliceSegments slices the segments covering [off, off+n). A range inside
// one segment is a plain slice of it.
func (v *Vector) sliceSegments(off, n int) *Vector {
	if n == 0 {
		return v.segs[0].Slice(0, 0)
	}
	first, firstOff := v.locate(off)
	last, _ := v.locate(off + n - 1)
	if first == last {
		return first.Slice(firstOff, n)
	}
	lo := sort.SearchInts(v.starts, off+1) - 1
	parts := make([]*Vector, 0, 2)
	for s := lo; s < len(v.segs) && v.starts[s] < off+n; s++ {
		from := max(off, v.starts[s]) - v.starts[s]
		to := min(off+n, v.starts[s+1]) - v.starts[s]
		if to > from {
			parts = append(parts, v.segs[s].Slice(from, to-from))
		}
	}
	ret, err := NewSegmented(v.typ, parts)
	util.AssertFunc(err == nil)
	return ret
}

// NewSegmented concatenates segs row-wise without copying. It takes over the
// callers' references to segs.
func NewSegmented(typ common.TypeId, segs []*Vector) (*Vector, error) {
	flat := make([]*Vector, 0, len(segs))
	release := func() {
		for _, seg := range segs {
			seg.Release()
		}
		for _, seg := range flat {
			seg.Release()
		}
	}
	for i, seg := range segs {
		if seg.typ != typ {
			release()
			return nil, errors.Wrapf(common.ErrType, "segment %d is %s, want %s", i, seg.typ, typ)
		}
	}
	for i, seg := range segs {
		if seg.own == VEC_SEGMENTED {
			f := seg.Flatten()
			seg.Release()
			flat = append(flat, f)
		} else {
			flat = append(flat, seg)
		}
		segs[i] = nil
	}
	if len(flat) == 1 {
		return flat[0], nil
	}
	v := newVector(VEC_SEGMENTED, typ, 0)
	v.segs = flat
	v.starts = make([]int, len(flat)+1)
	for i, seg := range flat {
		v.starts[i+1] = v.starts[i] + seg.length
	}
	v.length = v.starts[len(flat)]
	return v, nil
}

// Segments returns the children of a segmented vector.
func (v *Vector) Segments() []*Vector {
	return v.segs
}

// Flatten returns a contiguous vector with the same elements: v itself
// (retained) unless v is segmented.
func (v *Vector) Flatten() *Vector {
	v.check()
	if v.own != VEC_SEGMENTED {
		v.Retain()
		return v
	}
	if v.typ == common.TID_STR {
		b := NewStrBuilder(v.length)
		for _, seg := range v.segs {
			for i := 0; i < seg.length; i++ {
				b.Append(seg.StrAt(i))
			}
		}
		return b.Build()
	}
	out := NewVector(v.typ, v.length)
	pos := 0
	for _, seg := range v.segs {
		pos += copy(out.data[pos:], seg.data)
	}
	return out
}

// Clone returns a fresh owned copy.
func (v *Vector) Clone() *Vector {
	v.check()
	if v.own == VEC_SEGMENTED {
		return v.Flatten()
	}
	if v.typ == common.TID_STR {
		b := NewStrBuilder(v.length)
		b.blob = make([]byte, 0, v.offs[v.length]-v.offs[0])
		for i := 0; i < v.length; i++ {
			b.Append(v.StrAt(i))
		}
		return b.Build()
	}
	out := NewVector(v.typ, v.length)
	copy(out.data, v.data)
	out.SetAttrs(v.attrs)
	return out
}

// Materialize returns a vector backed by its own block: v itself (retained)
// when owned or mapped, otherwise a clone.
func (v *Vector) Materialize() *Vector {
	v.check()
	if v.own == VEC_OWNED || v.own == VEC_MAPPED {
		v.Retain()
		return v
	}
	return v.Clone()
}

// Unique consumes the caller's reference to v and returns a vector the caller
// may mutate: v itself when it is owned and unshared, otherwise a clone.
func Unique(v *Vector) *Vector {
	v.check()
	if v.own == VEC_OWNED && v.refs.Load() == 1 {
		return v
	}
	c := v.Clone()
	v.Release()
	return c
}

// Gather builds an owned vector of the elements at idx. Negative indices
// produce nulls.
func (v *Vector) Gather(idx []int) *Vector {
	v.check()
	if v.own == VEC_SEGMENTED {
		flat := v.Flatten()
		defer flat.Release()
		return flat.Gather(idx)
	}
	switch v.typ {
	case common.TID_BOOL:
		return gatherFixed(v, idx, false)
	case common.TID_I32:
		return gatherFixed(v, idx, common.NullI32)
	case common.TID_I64:
		return gatherFixed(v, idx, common.NullI64)
	case common.TID_F64:
		return gatherFixed(v, idx, common.F64Null())
	case common.TID_SYM:
		return gatherFixed(v, idx, common.NullSym)
	case common.TID_STR:
		b := NewStrBuilder(len(idx))
		for _, i := range idx {
			if i < 0 {
				b.Append(common.NullStr)
			} else {
				b.Append(v.StrAt(i))
			}
		}
		return b.Build()
	}
	panic("usp")
}

func gatherFixed[T any](v *Vector, idx []int, null T) *Vector {
	src := GetSlice[T](v)
	out := NewVector(v.typ, len(idx))
	dst := GetSlice[T](out)
	for k, i := range idx {
		if i < 0 {
			dst[k] = null
		} else {
			dst[k] = src[i]
		}
	}
	return out
}

// Broadcast repeats atom a n times.
func Broadcast(a *Atom, n int) *Vector {
	switch a.typ {
	case common.TID_BOOL:
		v := NewVector(a.typ, n)
		util.Fill(GetSlice[bool](v), a.Bool())
		return v
	case common.TID_I32, common.TID_SYM:
		v := NewVector(a.typ, n)
		util.Fill(GetSlice[int32](v), int32(a.i))
		return v
	case common.TID_I64:
		v := NewVector(a.typ, n)
		util.Fill(GetSlice[int64](v), a.i)
		return v
	case common.TID_F64:
		v := NewVector(a.typ, n)
		util.Fill(GetSlice[float64](v), a.f)
		return v
	case common.TID_STR:
		b := NewStrBuilder(n)
		for i := 0; i < n; i++ {
			b.Append(a.s)
		}
		return b.Build()
	}
	panic("usp")
}
