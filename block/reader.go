package block

import (
	"fmt"

	"github.com/arloliu/apkblock/endian"
	"github.com/arloliu/apkblock/errs"
)

// Reader is a sequential, position-tracking reader over in-memory bytes.
//
// All methods fail with an error wrapping errs.ErrTruncated when fewer bytes
// remain than requested; the position is left unchanged in that case.
type Reader struct {
	data []byte
	pos  int
}

// NewReader creates a reader positioned at the start of data.
func NewReader(data []byte) *Reader {
	return &Reader{data: data}
}

// Position returns the current read position.
func (r *Reader) Position() int {
	return r.pos
}

// Len returns the total length of the underlying data.
func (r *Reader) Len() int {
	return len(r.data)
}

// Available returns the number of unread bytes.
func (r *Reader) Available() int {
	return len(r.data) - r.pos
}

// Seek moves to an absolute position.
func (r *Reader) Seek(pos int) error {
	if pos < 0 || pos > len(r.data) {
		return fmt.Errorf("%w: seek to %d, length %d", errs.ErrInvalidOffset, pos, len(r.data))
	}
	r.pos = pos

	return nil
}

func (r *Reader) need(n int) error {
	if n < 0 || r.pos+n > len(r.data) {
		return fmt.Errorf("%w: need %d bytes at %d, have %d", errs.ErrTruncated, n, r.pos, r.Available())
	}

	return nil
}

// Skip advances the position by n bytes.
func (r *Reader) Skip(n int) error {
	if err := r.need(n); err != nil {
		return err
	}
	r.pos += n

	return nil
}

// Read returns a copy of the next n bytes.
func (r *Reader) Read(n int) ([]byte, error) {
	if err := r.need(n); err != nil {
		return nil, err
	}
	out := make([]byte, n)
	copy(out, r.data[r.pos:])
	r.pos += n

	return out, nil
}

// ReadFull fills p completely.
func (r *Reader) ReadFull(p []byte) error {
	if err := r.need(len(p)); err != nil {
		return err
	}
	r.pos += copy(p, r.data[r.pos:])

	return nil
}

// Peek returns the next n bytes without consuming them. The slice aliases the input.
func (r *Reader) Peek(n int) ([]byte, error) {
	if err := r.need(n); err != nil {
		return nil, err
	}

	return r.data[r.pos : r.pos+n], nil
}

// Sub returns a reader over the next n bytes, with positions relative to the
// current position, and advances past them.
func (r *Reader) Sub(n int) (*Reader, error) {
	if err := r.need(n); err != nil {
		return nil, err
	}
	sub := &Reader{data: r.data[r.pos : r.pos+n]}
	r.pos += n

	return sub, nil
}

// Uint8 reads one byte.
func (r *Reader) Uint8() (uint8, error) {
	if err := r.need(1); err != nil {
		return 0, err
	}
	v := r.data[r.pos]
	r.pos++

	return v, nil
}

// Uint16 reads a little-endian uint16.
func (r *Reader) Uint16() (uint16, error) {
	if err := r.need(2); err != nil {
		return 0, err
	}
	v := engine.Uint16(r.data[r.pos:])
	r.pos += 2

	return v, nil
}

// Uint32 reads a little-endian uint32.
func (r *Reader) Uint32() (uint32, error) {
	if err := r.need(4); err != nil {
		return 0, err
	}
	v := engine.Uint32(r.data[r.pos:])
	r.pos += 4

	return v, nil
}

// ULEB128 reads an unsigned LEB128 value.
func (r *Reader) ULEB128() (uint32, error) {
	v, n := endian.ULEB128(r.data[r.pos:])
	if n == 0 {
		return 0, fmt.Errorf("%w: uleb128 at %d", errs.ErrTruncated, r.pos)
	}
	r.pos += n

	return v, nil
}

// SLEB128 reads a signed LEB128 value.
func (r *Reader) SLEB128() (int32, error) {
	v, n := endian.SLEB128(r.data[r.pos:])
	if n == 0 {
		return 0, fmt.Errorf("%w: sleb128 at %d", errs.ErrTruncated, r.pos)
	}
	r.pos += n

	return v, nil
}
