package dex

import (
	"crypto/sha1"
	"errors"
	"fmt"
	"hash/adler32"

	"github.com/arloliu/apkblock/block"
	"github.com/arloliu/apkblock/errs"
)

// Header field offsets.
const (
	offMagic      = 0
	offChecksum   = 8
	offSignature  = 12
	offFileSize   = 32
	offHeaderSize = 36
	offEndianTag  = 40
	offLink       = 44
	offMapOff     = 52
	offIDs        = 56
	signatureSize = 20
)

// header id slots, in header order.
const (
	slotStrings = iota
	slotTypes
	slotProtos
	slotFields
	slotMethods
	slotClasses
	slotData
)

// Header is the header_item.
type Header struct {
	data *block.Bytes
}

func newHeader(version string) *Header {
	h := &Header{data: block.NewBytes(HeaderSize)}
	copy(h.data.Data()[offMagic:], "dex\n"+version+"\x00")
	h.data.PutUint32(offHeaderSize, HeaderSize)
	h.data.PutUint32(offEndianTag, EndianTag)

	return h
}

// Version returns the three-digit format version.
func (h *Header) Version() string {
	return string(h.data.Data()[4:7])
}

// Checksum returns the stored adler32 checksum.
func (h *Header) Checksum() uint32 {
	return h.data.Uint32(offChecksum)
}

// Signature returns the stored SHA-1 signature.
func (h *Header) Signature() [signatureSize]byte {
	var sig [signatureSize]byte
	copy(sig[:], h.data.Data()[offSignature:])

	return sig
}

// FileSize returns the stored file size.
func (h *Header) FileSize() int {
	return int(h.data.Uint32(offFileSize))
}

// MapOffset returns the offset of the map list.
func (h *Header) MapOffset() int {
	return int(h.data.Uint32(offMapOff))
}

// Section returns the size and offset stored for an id slot.
func (h *Header) Section(slot int) (size, off int) {
	base := offIDs + 8*slot
	return int(h.data.Uint32(base)), int(h.data.Uint32(base + 4))
}

func (h *Header) setSection(slot, size, off int) {
	base := offIDs + 8*slot
	if size == 0 && slot != slotData {
		off = 0
	}
	h.data.PutUint32(base, uint32(size))
	h.data.PutUint32(base+4, uint32(off))
}

// CountBytes implements block.Block.
func (h *Header) CountBytes() int { return HeaderSize }

// CountUpTo implements block.Block.
func (h *Header) CountUpTo(c *block.Counter) { countLeaf(c, h) }

// WriteBytes implements block.Block.
func (h *Header) WriteBytes(w *block.Writer) error { return h.data.WriteBytes(w) }

func checkMagic(data []byte) (string, error) {
	if len(data) < HeaderSize {
		return "", fmt.Errorf("%w: %d bytes is shorter than the header", errs.ErrTruncated, len(data))
	}
	if string(data[:4]) != "dex\n" || data[7] != 0 {
		return "", fmt.Errorf("%w: % x", errs.ErrInvalidMagic, data[:8])
	}
	for _, c := range data[4:7] {
		if c < '0' || c > '9' {
			return "", fmt.Errorf("%w: version % x", errs.ErrInvalidMagic, data[4:7])
		}
	}

	return string(data[4:7]), nil
}

// sign recomputes the signature and checksum of a serialized file in place.
func sign(out []byte) {
	sig := sha1.Sum(out[offSignature+signatureSize:])
	copy(out[offSignature:], sig[:])
	engine.PutUint32(out[offChecksum:], adler32.Checksum(out[offSignature:]))
}

// Verify checks the checksum and signature of a serialized DEX file.
func Verify(data []byte) error {
	if _, err := checkMagic(data); err != nil {
		return err
	}
	var problems []error
	if got, want := adler32.Checksum(data[offSignature:]), engine.Uint32(data[offChecksum:]); got != want {
		problems = append(problems, fmt.Errorf("%w: checksum 0x%08x, stored 0x%08x", errs.ErrMalformedInput, got, want))
	}
	sig := sha1.Sum(data[offSignature+signatureSize:])
	if string(sig[:]) != string(data[offSignature:offSignature+signatureSize]) {
		problems = append(problems, fmt.Errorf("%w: signature mismatch", errs.ErrMalformedInput))
	}

	return errors.Join(problems...)
}

// mapEntry is one map_item.
type mapEntry struct {
	typ    ItemType
	size   int
	offset int
}

// MapList is the map_list describing every section.
type MapList struct {
	entries []mapEntry
	offset  int
}

// Alignment implements block.Aligned.
func (m *MapList) Alignment() int { return 4 }

// CountBytes implements block.Block.
func (m *MapList) CountBytes() int { return 4 + 12*len(m.entries) }

// CountUpTo implements block.Block.
func (m *MapList) CountUpTo(c *block.Counter) { countLeaf(c, m) }

// WriteBytes implements block.Block.
func (m *MapList) WriteBytes(w *block.Writer) error {
	w.Uint32(uint32(len(m.entries)))
	for _, e := range m.entries {
		w.Uint16(uint16(e.typ))
		w.Uint16(0)
		w.Uint32(uint32(e.size))
		w.Uint32(uint32(e.offset))
	}

	return nil
}

func (m *MapList) read(r *block.Reader) error {
	n, err := r.Uint32()
	if err != nil {
		return fmt.Errorf("map list: %w", err)
	}
	if int(n) > r.Available()/12 {
		return fmt.Errorf("%w: map list of %d entries", errs.ErrTruncated, n)
	}
	m.entries = make([]mapEntry, 0, n)
	for range n {
		typ, _ := r.Uint16()
		_, _ = r.Uint16()
		size, _ := r.Uint32()
		off, err := r.Uint32()
		if err != nil {
			return err
		}
		m.entries = append(m.entries, mapEntry{typ: ItemType(typ), size: int(size), offset: int(off)})
	}

	return nil
}
