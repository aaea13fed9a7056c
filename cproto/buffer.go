// Package cproto implements the low-level pieces of the server's binary
// protocol: a growable varint buffer and the wire constants shared by the
// query compiler and the item codec.
package cproto

import (
	"encoding/binary"
	"math"
)

const MaxVarintLen64 = binary.MaxVarintLen64

func ensureCapacity(buf []byte, minCap int) []byte {
	c := cap(buf)
	if minCap > c {
		if c < 16 {
			c = 16
		}
		for minCap > c {
			c <<= 1
		}
		old := buf
		buf = make([]byte, len(old), c)
		copy(buf, old)
	}
	return buf
}

func grow(buf []byte, n int) (int, []byte) {
	off := len(buf)
	newLen := off + n
	buf = ensureCapacity(buf, newLen)
	return off, buf[:newLen]
}

// Buffer is an append-only byte sequence with a read cursor. Writers append
// at the end, readers consume from Off. The read cursor never passes the end
// of the written data; reading too far returns a *DataError.
type Buffer struct {
	buf []byte
	off int
}

func NewBuffer() *Buffer {
	return &Buffer{}
}

// NewReader returns a buffer positioned at the start of data. The buffer
// aliases data.
func NewReader(data []byte) *Buffer {
	return &Buffer{buf: data}
}

func (b *Buffer) Bytes() []byte  { return b.buf }
func (b *Buffer) Len() int       { return len(b.buf) }
func (b *Buffer) Off() int       { return b.off }
func (b *Buffer) Remaining() int { return len(b.buf) - b.off }
func (b *Buffer) Done() bool     { return b.off >= len(b.buf) }

func (b *Buffer) Reset() {
	b.buf = b.buf[:0]
	b.off = 0
}

// Clone returns a copy of the written bytes that does not alias the buffer.
func (b *Buffer) Clone() []byte {
	return append([]byte(nil), b.buf...)
}

func (b *Buffer) Grow(n int) (off int) {
	off, b.buf = grow(b.buf, n)
	return
}

func (b *Buffer) Trim(off int) {
	b.buf = b.buf[:off]
}

func (b *Buffer) Write(p []byte) (int, error) {
	b.PutRaw(p)
	return len(p), nil
}

func (b *Buffer) PutRaw(p []byte) *Buffer {
	off := b.Grow(len(p))
	copy(b.buf[off:], p)
	return b
}

func (b *Buffer) PutByte(v byte) *Buffer {
	off := b.Grow(1)
	b.buf[off] = v
	return b
}

func (b *Buffer) PutUvarint(v uint64) *Buffer {
	off := b.Grow(MaxVarintLen64)
	n := binary.PutUvarint(b.buf[off:], v)
	b.Trim(off + n)
	return b
}

// PutSvarint writes v zig-zag encoded, so small negative numbers stay short.
func (b *Buffer) PutSvarint(v int64) *Buffer {
	return b.PutUvarint(uint64(v<<1) ^ uint64(v>>63))
}

func (b *Buffer) PutBool(v bool) *Buffer {
	if v {
		return b.PutUvarint(1)
	}
	return b.PutUvarint(0)
}

func (b *Buffer) PutVString(s string) *Buffer {
	b.PutUvarint(uint64(len(s)))
	off := b.Grow(len(s))
	copy(b.buf[off:], s)
	return b
}

func (b *Buffer) PutVBytes(p []byte) *Buffer {
	b.PutUvarint(uint64(len(p)))
	return b.PutRaw(p)
}

func (b *Buffer) PutUint32(v uint32) *Buffer {
	off := b.Grow(4)
	binary.LittleEndian.PutUint32(b.buf[off:], v)
	return b
}

// SetUint32 overwrites four bytes at off, which must have been written before.
func (b *Buffer) SetUint32(off int, v uint32) {
	binary.LittleEndian.PutUint32(b.buf[off:off+4], v)
}

func (b *Buffer) PutUint64(v uint64) *Buffer {
	off := b.Grow(8)
	binary.LittleEndian.PutUint64(b.buf[off:], v)
	return b
}

func (b *Buffer) PutDouble(v float64) *Buffer {
	return b.PutUint64(math.Float64bits(v))
}

func (b *Buffer) PutFloat(v float32) *Buffer {
	return b.PutUint32(math.Float32bits(v))
}

func (b *Buffer) Uvarint() (uint64, error) {
	var v uint64
	var shift uint
	for i := 0; ; i++ {
		if b.off+i >= len(b.buf) {
			return 0, dataErrf(b.buf, b.off, ErrTruncatedData, "truncated uvarint")
		}
		if i == MaxVarintLen64 {
			return 0, dataErrf(b.buf, b.off, ErrMalformedVarint, "uvarint longer than %d bytes", MaxVarintLen64)
		}
		c := b.buf[b.off+i]
		if i == MaxVarintLen64-1 && c > 1 {
			return 0, dataErrf(b.buf, b.off, ErrMalformedVarint, "uvarint overflows 64 bits")
		}
		v |= uint64(c&0x7f) << shift
		if c < 0x80 {
			b.off += i + 1
			return v, nil
		}
		shift += 7
	}
}

func (b *Buffer) Uvarinti() (int, error) {
	v, err := b.Uvarint()
	if err != nil {
		return 0, err
	}
	if v > math.MaxInt {
		return 0, dataErrf(b.buf, b.off, ErrMalformedVarint, "value does not fit into int: %d", v)
	}
	return int(v), nil
}

func (b *Buffer) Svarint() (int64, error) {
	u, err := b.Uvarint()
	if err != nil {
		return 0, err
	}
	return int64(u>>1) ^ -int64(u&1), nil
}

func (b *Buffer) Bool() (bool, error) {
	v, err := b.Uvarint()
	return v != 0, err
}

func (b *Buffer) Raw(n int) ([]byte, error) {
	if n < 0 || b.Remaining() < n {
		return nil, dataErrf(b.buf, b.off, ErrTruncatedData, "not enough data: %d bytes remaining, %d wanted", b.Remaining(), n)
	}
	v := b.buf[b.off : b.off+n]
	b.off += n
	return v, nil
}

func (b *Buffer) VBytes() ([]byte, error) {
	start := b.off
	n, err := b.Uvarinti()
	if err != nil {
		return nil, err
	}
	v, err := b.Raw(n)
	if err != nil {
		b.off = start
	}
	return v, err
}

func (b *Buffer) VString() (string, error) {
	v, err := b.VBytes()
	return string(v), err
}

func (b *Buffer) Uint32() (uint32, error) {
	v, err := b.Raw(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(v), nil
}

func (b *Buffer) Uint64() (uint64, error) {
	v, err := b.Raw(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(v), nil
}

func (b *Buffer) Double() (float64, error) {
	v, err := b.Uint64()
	return math.Float64frombits(v), err
}

func (b *Buffer) Float() (float32, error) {
	v, err := b.Uint32()
	return math.Float32frombits(v), err
}
