package archive

import (
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/arloliu/apkblock/compress"
	"github.com/arloliu/apkblock/errs"
	"github.com/arloliu/apkblock/format"
	"github.com/arloliu/apkblock/internal/options"
)

// entry is one stored file. data holds the content compressed with algo.
type entry struct {
	name   string
	algo   format.CompressionType
	size   int
	data   []byte
	digest Digest
	stored bool // written to zip without deflate
}

// Memory is an in-memory Archive. It is safe for concurrent use.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]*entry
	order   []string
	cfg     *config
}

var _ Archive = (*Memory)(nil)

// NewMemory creates an empty archive.
func NewMemory(opts ...Option) (*Memory, error) {
	cfg := defaultConfig()
	if err := options.Apply(cfg, opts...); err != nil {
		return nil, err
	}

	return &Memory{
		entries: make(map[string]*entry),
		cfg:     cfg,
	}, nil
}

// Logger returns the archive's logger.
func (m *Memory) Logger() *slog.Logger {
	return m.cfg.logger
}

// Names returns the entry names in insertion order.
func (m *Memory) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return slices.Clone(m.order)
}

// Len returns the number of entries.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return len(m.order)
}

// Has reports whether an entry exists.
func (m *Memory) Has(name string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, ok := m.entries[name]

	return ok
}

// Get returns a fresh copy of the uncompressed content of name. An empty
// entry reads as a non-nil empty slice whatever its source.
//
// Returns:
//   - []byte: entry content, owned by the caller
//   - error: errs.ErrEntryNotFound, a decompression failure, or errs.ErrDigestMismatch
//     when the stored content no longer matches its digest
func (m *Memory) Get(name string) ([]byte, error) {
	m.mu.RLock()
	e, ok := m.entries[name]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", errs.ErrEntryNotFound, name)
	}

	data, err := e.content()
	if err != nil {
		return nil, fmt.Errorf("entry %s: %w", name, err)
	}
	if DigestOf(data) != e.digest {
		return nil, fmt.Errorf("%w: %s", errs.ErrDigestMismatch, name)
	}
	if len(data) == 0 {
		return []byte{}, nil
	}

	return data, nil
}

// Digest returns the digest of an entry.
func (m *Memory) Digest(name string) (Digest, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.entries[name]
	if !ok {
		return Digest{}, false
	}

	return e.digest, true
}

// Size returns the uncompressed size of an entry, or -1 if it does not exist.
func (m *Memory) Size(name string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.entries[name]
	if !ok {
		return -1
	}

	return e.size
}

// Replace stores a copy of data under name. New entries are appended to the
// archive order; existing entries keep their position. Replacing an entry with
// identical content is a no-op.
func (m *Memory) Replace(name string, data []byte) error {
	if name == "" {
		return fmt.Errorf("%w: empty entry name", errs.ErrInvalidKey)
	}

	digest := DigestOf(data)

	m.mu.RLock()
	old, exists := m.entries[name]
	m.mu.RUnlock()
	if exists && old.digest == digest {
		return nil
	}

	e, err := m.pack(name, data, digest)
	if err != nil {
		return err
	}
	if exists {
		e.stored = old.stored
	} else {
		e.stored = name == TableName
	}

	m.put(e)
	m.cfg.logger.Debug("entry stored",
		slog.String("name", name),
		slog.Int("size", e.size),
		slog.Int("packed", len(e.data)),
		slog.String("codec", e.algo.String()))

	return nil
}

// Remove deletes an entry.
func (m *Memory) Remove(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.entries[name]; !ok {
		return false
	}
	delete(m.entries, name)
	m.order = slices.DeleteFunc(m.order, func(n string) bool { return n == name })
	m.cfg.logger.Debug("entry removed", slog.String("name", name))

	return true
}

// Stats sums the uncompressed and in-memory sizes of all entries.
func (m *Memory) Stats() compress.Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s := compress.Stats{Algorithm: m.cfg.compression}
	for _, e := range m.entries {
		s.Add(compress.Stats{OriginalSize: int64(e.size), CompressedSize: int64(len(e.data))})
	}

	return s
}

// TotalSize returns the sum of the uncompressed entry sizes.
func (m *Memory) TotalSize() int64 {
	return m.Stats().OriginalSize
}

func (m *Memory) put(e *entry) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.entries[e.name]; !ok {
		m.order = append(m.order, e.name)
	}
	m.entries[e.name] = e
}

// pack compresses data with the configured codec, falling back to no
// compression when the codec fails or does not shrink the entry.
func (m *Memory) pack(name string, data []byte, digest Digest) (*entry, error) {
	e := &entry{
		name:   name,
		algo:   format.CompressionNone,
		size:   len(data),
		digest: digest,
	}

	if m.cfg.compression != format.CompressionNone && len(data) > 0 {
		codec, err := compress.GetCodec(m.cfg.compression)
		if err != nil {
			return nil, err
		}
		packed, err := codec.Compress(data)
		if err == nil && len(packed) < len(data) {
			e.algo = m.cfg.compression
			e.data = packed

			return e, nil
		}
	}

	e.data = slices.Clone(data)

	return e, nil
}

func (e *entry) content() ([]byte, error) {
	if e.algo == format.CompressionNone {
		return slices.Clone(e.data), nil
	}

	codec, err := compress.GetCodec(e.algo)
	if err != nil {
		return nil, err
	}

	return compress.DecompressSize(codec, e.data, e.size)
}
