package arsc

import (
	"fmt"

	"github.com/arloliu/apkblock/block"
	"github.com/arloliu/apkblock/endian"
	"github.com/arloliu/apkblock/errs"
)

var engine = endian.GetLittleEndianEngine()

const chunkHeaderSize = 8

type chunkHeader struct {
	typ        ChunkType
	headerSize int
	size       int
}

// peekChunk reads the header of the chunk at the current position without
// consuming it and checks it against the remaining input.
func peekChunk(r *block.Reader) (chunkHeader, error) {
	b, err := r.Peek(chunkHeaderSize)
	if err != nil {
		return chunkHeader{}, err
	}
	h := chunkHeader{
		typ:        ChunkType(engine.Uint16(b)),
		headerSize: int(engine.Uint16(b[2:])),
		size:       int(engine.Uint32(b[4:])),
	}
	if h.headerSize < chunkHeaderSize || h.size < h.headerSize {
		return h, fmt.Errorf("%w: %s header %d, size %d", errs.ErrInvalidChunk, h.typ, h.headerSize, h.size)
	}
	if h.size > r.Available() {
		return h, fmt.Errorf("%w: %s of %d bytes, %d available", errs.ErrTruncated, h.typ, h.size, r.Available())
	}

	return h, nil
}

// nextChunk consumes the chunk at the current position.
//
// Returns:
//   - chunkHeader: the chunk header
//   - *block.Reader: a reader over the whole chunk, header included
//   - error: errs.ErrInvalidChunk or errs.ErrTruncated
func nextChunk(r *block.Reader) (chunkHeader, *block.Reader, error) {
	h, err := peekChunk(r)
	if err != nil {
		return h, nil, err
	}
	sub, err := r.Sub(h.size)

	return h, sub, err
}

// expectChunk consumes a chunk of type want.
func expectChunk(r *block.Reader, want ChunkType) (chunkHeader, *block.Reader, error) {
	h, sub, err := nextChunk(r)
	if err != nil {
		return h, nil, err
	}
	if h.typ != want {
		return h, nil, fmt.Errorf("%w: found %s, expected %s", errs.ErrInvalidChunk, h.typ, want)
	}

	return h, sub, nil
}

func putChunkHeader(b *block.Bytes, typ ChunkType, headerSize, size int) {
	b.PutUint16(0, uint16(typ))
	b.PutUint16(2, uint16(headerSize))
	b.PutUint32(4, uint32(size))
}

// RawChunk is a chunk kept as opaque bytes: an unknown type, or a chunk that
// failed to load.
type RawChunk struct {
	data *block.Bytes
	err  error
}

func readRawChunk(r *block.Reader) (*RawChunk, error) {
	data, err := r.Read(r.Len() - r.Position())
	if err != nil {
		return nil, err
	}
	c := &RawChunk{data: block.NewBytes(0)}
	c.data.SetSize(len(data))
	copy(c.data.Data(), data)

	return c, nil
}

// Type returns the chunk type.
func (c *RawChunk) Type() ChunkType {
	return ChunkType(c.data.Uint16(0))
}

// Err returns the load error that made the chunk opaque, nil for chunks of a
// type this package does not model.
func (c *RawChunk) Err() error {
	return c.err
}

// Data returns the chunk bytes.
func (c *RawChunk) Data() []byte {
	return c.data.Data()
}

// unsafe reports whether the chunk may hold string indexes this package
// cannot see.
func (c *RawChunk) unsafe() bool {
	return c.err != nil || !c.Type().holdsNoStrings()
}

// CountBytes implements block.Block.
func (c *RawChunk) CountBytes() int { return c.data.CountBytes() }

// CountUpTo implements block.Block.
func (c *RawChunk) CountUpTo(cnt *block.Counter) { countLeaf(cnt, c) }

// WriteBytes implements block.Block.
func (c *RawChunk) WriteBytes(w *block.Writer) error { return c.data.WriteBytes(w) }

func countLeaf(c *block.Counter, b block.Block) {
	if c.Enter(b) {
		return
	}
	c.Add(b.CountBytes())
}
