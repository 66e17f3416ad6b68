package block

import (
	"bytes"
	"fmt"
	"io"

	"github.com/arloliu/apkblock/endian"
	"github.com/arloliu/apkblock/errs"
	"github.com/arloliu/apkblock/internal/pool"
)

// Writer is a sequential writer over a pooled byte buffer.
type Writer struct {
	buf *pool.ByteBuffer
}

// NewWriter creates a writer with room for sizeHint bytes.
func NewWriter(sizeHint int) *Writer {
	buf := pool.GetBlockBuffer()
	buf.Grow(sizeHint)

	return &Writer{buf: buf}
}

// Release returns the buffer to the pool. The writer must not be used afterwards.
func (w *Writer) Release() {
	pool.PutBlockBuffer(w.buf)
	w.buf = nil
}

// Position returns the number of bytes written.
func (w *Writer) Position() int {
	return w.buf.Len()
}

// Write appends p.
func (w *Writer) Write(p []byte) {
	w.buf.B = append(w.buf.B, p...)
}

// Uint8 appends one byte.
func (w *Writer) Uint8(v uint8) {
	w.buf.B = append(w.buf.B, v)
}

// Uint16 appends v little endian.
func (w *Writer) Uint16(v uint16) {
	w.buf.B = engine.AppendUint16(w.buf.B, v)
}

// Uint32 appends v little endian.
func (w *Writer) Uint32(v uint32) {
	w.buf.B = engine.AppendUint32(w.buf.B, v)
}

// ULEB128 appends v as unsigned LEB128.
func (w *Writer) ULEB128(v uint32) {
	w.buf.B = endian.AppendULEB128(w.buf.B, v)
}

// SLEB128 appends v as signed LEB128.
func (w *Writer) SLEB128(v int32) {
	w.buf.B = endian.AppendSLEB128(w.buf.B, v)
}

// Zero appends n zero bytes.
func (w *Writer) Zero(n int) {
	if n > 0 {
		w.buf.Zero(n)
	}
}

// Align pads with zeros to a multiple of n.
func (w *Writer) Align(n int) {
	pos := w.Position()
	w.Zero(AlignUp(pos, n) - pos)
}

// PutUint32At overwrites four bytes at an earlier position.
func (w *Writer) PutUint32At(pos int, v uint32) {
	engine.PutUint32(w.buf.B[pos:], v)
}

// Bytes returns the written bytes. The slice is only valid until Release.
func (w *Writer) Bytes() []byte {
	return w.buf.Bytes()
}

// WriteTo copies the written bytes to out.
func (w *Writer) WriteTo(out io.Writer) (int64, error) {
	return w.buf.WriteTo(out)
}

// Serialize writes b into a fresh byte slice and verifies the written length
// against b.CountBytes().
func Serialize(b Block) ([]byte, error) {
	size := b.CountBytes()
	w := NewWriter(size)
	defer w.Release()

	if err := b.WriteBytes(w); err != nil {
		return nil, err
	}
	if w.Position() != size {
		return nil, fmt.Errorf("%w: wrote %d bytes, counted %d", errs.ErrLayoutMismatch, w.Position(), size)
	}

	return bytes.Clone(w.Bytes()), nil
}
