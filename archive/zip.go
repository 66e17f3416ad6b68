package archive

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"
	"log/slog"
	"os"

	"github.com/klauspost/compress/zip"

	"github.com/arloliu/apkblock/errs"
)

// storedAlignment is the data alignment of uncompressed entries, as produced
// by zipalign.
const storedAlignment = 4

// alignmentExtraID is the extra field Android tools use to pad local headers.
const alignmentExtraID = 0xd935

// OpenZip reads every file of the zip (APK) at path into a new Memory archive.
func OpenZip(path string, opts ...Option) (*Memory, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}

	return ReadZip(f, info.Size(), opts...)
}

// ReadZip reads every file of a zip into a new Memory archive. Directory
// entries are skipped. Entries stored without compression keep that method
// when the archive is written back.
func ReadZip(r io.ReaderAt, size int64, opts ...Option) (*Memory, error) {
	zr, err := zip.NewReader(r, size)
	if err != nil {
		return nil, fmt.Errorf("open zip: %w", err)
	}

	m, err := NewMemory(opts...)
	if err != nil {
		return nil, err
	}

	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		if m.Has(f.Name) {
			return nil, fmt.Errorf("%w: zip entry %s", errs.ErrDuplicateKey, f.Name)
		}

		data, err := readZipFile(f)
		if err != nil {
			return nil, fmt.Errorf("zip entry %s: %w", f.Name, err)
		}
		e, err := m.pack(f.Name, data, DigestOf(data))
		if err != nil {
			return nil, err
		}
		e.stored = f.Method == zip.Store
		m.put(e)
	}

	m.cfg.logger.Debug("zip loaded",
		slog.Int("entries", m.Len()),
		slog.Int64("size", size))

	return m, nil
}

func readZipFile(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	return io.ReadAll(rc)
}

// countingWriter tracks the number of bytes written to the destination so
// stored entries can be aligned.
type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)

	return n, err
}

// WriteZip writes all entries to w in archive order. Entries read as stored,
// and resources.arsc, are written uncompressed with 4-byte data alignment;
// everything else is deflated.
//
// The output carries no timestamps, so equal archives produce equal bytes.
func (m *Memory) WriteZip(w io.Writer) error {
	cw := &countingWriter{w: w}
	zw := zip.NewWriter(cw)

	for _, name := range m.Names() {
		m.mu.RLock()
		e := m.entries[name]
		m.mu.RUnlock()
		if e == nil {
			continue
		}

		data, err := e.content()
		if err != nil {
			return fmt.Errorf("entry %s: %w", name, err)
		}

		if e.stored {
			if err := zw.Flush(); err != nil {
				return err
			}
			if err := writeStored(zw, cw.n, name, data); err != nil {
				return fmt.Errorf("entry %s: %w", name, err)
			}

			continue
		}

		fw, err := zw.CreateHeader(&zip.FileHeader{Name: name, Method: zip.Deflate})
		if err != nil {
			return fmt.Errorf("entry %s: %w", name, err)
		}
		if _, err := fw.Write(data); err != nil {
			return fmt.Errorf("entry %s: %w", name, err)
		}
	}

	return zw.Close()
}

// SaveZip writes the archive to a file at path.
func (m *Memory) SaveZip(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := m.WriteZip(f); err != nil {
		f.Close()
		return err
	}

	return f.Close()
}

// writeStored writes an uncompressed entry whose local header starts at offset,
// padding the header's extra field so the data begins on storedAlignment.
func writeStored(zw *zip.Writer, offset int64, name string, data []byte) error {
	const localHeaderSize = 30
	base := offset + localHeaderSize + int64(len(name)) + 6
	pad := (storedAlignment - base%storedAlignment) % storedAlignment

	extra := make([]byte, 6+pad)
	binary.LittleEndian.PutUint16(extra[0:], alignmentExtraID)
	binary.LittleEndian.PutUint16(extra[2:], uint16(2+pad))
	binary.LittleEndian.PutUint16(extra[4:], storedAlignment)

	fh := &zip.FileHeader{
		Name:               name,
		Method:             zip.Store,
		CRC32:              crc32.ChecksumIEEE(data),
		CompressedSize64:   uint64(len(data)),
		UncompressedSize64: uint64(len(data)),
		Extra:              extra,
	}
	fw, err := zw.CreateRaw(fh)
	if err != nil {
		return err
	}
	_, err = fw.Write(data)

	return err
}
