package chunk

import (
	"encoding/binary"

	"github.com/pkg/errors"

	"github.com/daviszhen/colq/pkg/common"
	"github.com/daviszhen/colq/pkg/util"
)

// Column block layout, shared by in-memory vectors and column files:
//
//	0  magic "TCOL"
//	4  type   u8
//	5  attrs  u8
//	6  pad    u16
//	8  len    i64
//	16 reserved i64
//	24 blob   i64 (Str only: byte length of the string blob)
//	32 data
//
// Fixed-width data is len elements. Str data is (len+1) int64 offsets
// followed by the blob.
const (
	HeaderSize = 32
	Magic      = "TCOL"
)

const (
	ATTR_SORTED uint8 = 1 << iota
	ATTR_UNIQUE
)

type Header struct {
	Typ      common.TypeId
	Attrs    uint8
	Len      int64
	Reserved int64
	Blob     int64
}

// DataSize is the byte size of the data that follows the header.
func (h Header) DataSize() int64 {
	if h.Typ == common.TID_STR {
		return (h.Len+1)*8 + h.Blob
	}
	return h.Len * int64(h.Typ.Size())
}

func (h Header) Put(buf []byte) {
	util.AssertFunc(len(buf) >= HeaderSize)
	copy(buf[0:4], Magic)
	buf[4] = uint8(h.Typ)
	buf[5] = h.Attrs
	binary.LittleEndian.PutUint16(buf[6:8], 0)
	binary.LittleEndian.PutUint64(buf[8:16], uint64(h.Len))
	binary.LittleEndian.PutUint64(buf[16:24], uint64(h.Reserved))
	binary.LittleEndian.PutUint64(buf[24:32], uint64(h.Blob))
}

func (h Header) Bytes() []byte {
	buf := make([]byte, HeaderSize)
	h.Put(buf)
	return buf
}

// ParseHeader validates the header in buf against the block size.
func ParseHeader(buf []byte) (Header, error) {
	var h Header
	if len(buf) < HeaderSize {
		return h, errors.Wrapf(common.ErrCorrupt, "block of %d bytes is shorter than header", len(buf))
	}
	if string(buf[0:4]) != Magic {
		return h, errors.Wrapf(common.ErrCorrupt, "bad magic %q", buf[0:4])
	}
	h.Typ = common.TypeId(buf[4])
	if !h.Typ.Valid() {
		return h, errors.Wrapf(common.ErrCorrupt, "bad type tag %d", buf[4])
	}
	h.Attrs = buf[5]
	h.Len = int64(binary.LittleEndian.Uint64(buf[8:16]))
	h.Reserved = int64(binary.LittleEndian.Uint64(buf[16:24]))
	h.Blob = int64(binary.LittleEndian.Uint64(buf[24:32]))
	if h.Len < 0 || h.Blob < 0 {
		return h, errors.Wrapf(common.ErrCorrupt, "negative length %d or blob %d", h.Len, h.Blob)
	}
	if h.Typ != common.TID_STR && h.Blob != 0 {
		return h, errors.Wrapf(common.ErrCorrupt, "blob %d on %s column", h.Blob, h.Typ)
	}
	//bound the counts by the bytes present before multiplying
	avail := int64(len(buf)) - HeaderSize
	if h.Typ == common.TID_STR {
		if h.Len >= avail/8 || h.Blob > avail-(h.Len+1)*8 {
			return h, errors.Wrapf(common.ErrCorrupt, "block has %d data bytes, header claims %d strings in %d bytes",
				avail, h.Len, h.Blob)
		}
		return h, nil
	}
	if h.Len > avail/int64(h.Typ.Size()) {
		return h, errors.Wrapf(common.ErrCorrupt, "block has %d data bytes, header claims %d %s elements",
			avail, h.Len, h.Typ)
	}
	return h, nil
}

// newBlock returns a zeroed, 8-byte aligned block with room for the header
// and dataSize bytes.
func newBlock(dataSize int) []byte {
	total := HeaderSize + dataSize
	words := make([]uint64, util.AlignValue8(total)/8)
	return util.ToBytes(words)[:total]
}
