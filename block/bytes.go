package block

import (
	"github.com/arloliu/apkblock/endian"
)

var engine = endian.GetLittleEndianEngine()

// Bytes is a leaf block owning a contiguous byte range.
type Bytes struct {
	buf []byte
}

var _ Block = (*Bytes)(nil)

// NewBytes creates a zero-filled leaf of the given size.
func NewBytes(size int) *Bytes {
	return &Bytes{buf: make([]byte, size)}
}

// Data returns the backing buffer. Writes through it are visible to the block.
func (b *Bytes) Data() []byte {
	return b.buf
}

// SetSize resizes the buffer, keeping the common prefix and zero-filling growth.
func (b *Bytes) SetSize(n int) {
	if n <= cap(b.buf) {
		old := len(b.buf)
		b.buf = b.buf[:n]
		if n > old {
			clear(b.buf[old:])
		}

		return
	}

	grown := make([]byte, n)
	copy(grown, b.buf)
	b.buf = grown
}

// CountBytes returns the buffer length.
func (b *Bytes) CountBytes() int {
	return len(b.buf)
}

// CountUpTo implements Block.
func (b *Bytes) CountUpTo(c *Counter) {
	if c.Enter(b) {
		return
	}
	c.Add(len(b.buf))
}

// WriteBytes implements Block.
func (b *Bytes) WriteBytes(w *Writer) error {
	w.Write(b.buf)
	return nil
}

// ReadBytes fills the whole buffer from r.
func (b *Bytes) ReadBytes(r *Reader) error {
	return r.ReadFull(b.buf)
}

// Uint8 returns the byte at off.
func (b *Bytes) Uint8(off int) uint8 {
	return b.buf[off]
}

// Uint16 returns the little-endian uint16 at off.
func (b *Bytes) Uint16(off int) uint16 {
	return engine.Uint16(b.buf[off:])
}

// Uint32 returns the little-endian uint32 at off.
func (b *Bytes) Uint32(off int) uint32 {
	return engine.Uint32(b.buf[off:])
}

// PutUint8 stores v at off.
func (b *Bytes) PutUint8(off int, v uint8) {
	b.buf[off] = v
}

// PutUint16 stores v little endian at off.
func (b *Bytes) PutUint16(off int, v uint16) {
	engine.PutUint16(b.buf[off:], v)
}

// PutUint32 stores v little endian at off.
func (b *Bytes) PutUint32(off int, v uint32) {
	engine.PutUint32(b.buf[off:], v)
}

// Field returns an integer view of width bytes at off.
func (b *Bytes) Field(off, width int) *IntField {
	return &IntField{b: b, off: off, width: width}
}

// Field is an integer slot that a reference keeps its raw value in.
type Field interface {
	Get() int
	Set(v int)
}

// IntField is a fixed-width unsigned little-endian slot inside a Bytes buffer.
// Set truncates v to the field width, so -1 stores all ones.
type IntField struct {
	b     *Bytes
	off   int
	width int
}

var _ Field = (*IntField)(nil)

// Get returns the stored value zero-extended to int.
func (f *IntField) Get() int {
	switch f.width {
	case 1:
		return int(f.b.Uint8(f.off))
	case 2:
		return int(f.b.Uint16(f.off))
	default:
		return int(f.b.Uint32(f.off))
	}
}

// Set stores v truncated to the field width.
func (f *IntField) Set(v int) {
	switch f.width {
	case 1:
		f.b.PutUint8(f.off, uint8(v))
	case 2:
		f.b.PutUint16(f.off, uint16(v))
	default:
		f.b.PutUint32(f.off, uint32(v))
	}
}

// Width returns the field width in bytes.
func (f *IntField) Width() int {
	return f.width
}

// AllOnes returns the all-bits-set value of the field width, the usual "no index"
// marker.
func (f *IntField) AllOnes() int {
	return 1<<(8*f.width) - 1
}

// Int is a detached integer slot for values serialized with a variable-width
// encoding (LEB128, sized encoded values).
type Int struct {
	v int
}

var _ Field = (*Int)(nil)

// NewInt creates a detached slot holding v.
func NewInt(v int) *Int {
	return &Int{v: v}
}

// Get returns the stored value.
func (i *Int) Get() int {
	return i.v
}

// Set stores v.
func (i *Int) Set(v int) {
	i.v = v
}
