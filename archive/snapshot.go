package archive

import (
	"fmt"
	"log/slog"

	"github.com/fxamacker/cbor/v2"

	"github.com/arloliu/apkblock/errs"
	"github.com/arloliu/apkblock/format"
)

const snapshotVersion = 1

// snapshot is the CBOR form of a Memory archive. Entry data stays in its
// in-memory compressed form so a snapshot is cheap to take and restore.
type snapshot struct {
	Version int             `cbor:"1,keyasint"`
	Entries []snapshotEntry `cbor:"2,keyasint"`
}

type snapshotEntry struct {
	Name   string                 `cbor:"1,keyasint"`
	Algo   format.CompressionType `cbor:"2,keyasint"`
	Size   int                    `cbor:"3,keyasint"`
	Digest []byte                 `cbor:"4,keyasint"`
	Stored bool                   `cbor:"5,keyasint,omitempty"`
	Data   []byte                 `cbor:"6,keyasint"`
}

// encMode uses Core Deterministic Encoding so equal archives snapshot to equal
// bytes.
var encMode cbor.EncMode

var decMode cbor.DecMode

func init() {
	var err error

	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("archive: CBOR encoder initialization failed: " + err.Error())
	}

	decMode, err = cbor.DecOptions{
		MaxArrayElements: 1 << 20,
	}.DecMode()
	if err != nil {
		panic("archive: CBOR decoder initialization failed: " + err.Error())
	}
}

// Snapshot encodes the archive, entry order included, as CBOR.
func (m *Memory) Snapshot() ([]byte, error) {
	m.mu.RLock()
	snap := snapshot{
		Version: snapshotVersion,
		Entries: make([]snapshotEntry, 0, len(m.order)),
	}
	for _, name := range m.order {
		e := m.entries[name]
		snap.Entries = append(snap.Entries, snapshotEntry{
			Name:   e.name,
			Algo:   e.algo,
			Size:   e.size,
			Digest: e.digest[:],
			Stored: e.stored,
			Data:   e.data,
		})
	}
	m.mu.RUnlock()

	return encMode.Marshal(snap)
}

// LoadSnapshot restores an archive produced by Snapshot. Every entry is
// decompressed and checked against its digest.
//
// Returns:
//   - *Memory: restored archive, using opts for subsequent writes
//   - error: errs.ErrInvalidSnapshot for undecodable or inconsistent input,
//     errs.ErrDigestMismatch when an entry's content does not match its digest
func LoadSnapshot(data []byte, opts ...Option) (*Memory, error) {
	var snap snapshot
	if err := decMode.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("%w: %w", errs.ErrInvalidSnapshot, err)
	}
	if snap.Version != snapshotVersion {
		return nil, fmt.Errorf("%w: version %d", errs.ErrInvalidSnapshot, snap.Version)
	}

	m, err := NewMemory(opts...)
	if err != nil {
		return nil, err
	}

	for _, se := range snap.Entries {
		if se.Name == "" || len(se.Digest) != len(Digest{}) || se.Size < 0 {
			return nil, fmt.Errorf("%w: malformed entry %q", errs.ErrInvalidSnapshot, se.Name)
		}
		if m.Has(se.Name) {
			return nil, fmt.Errorf("%w: duplicate entry %s", errs.ErrInvalidSnapshot, se.Name)
		}

		e := &entry{
			name:   se.Name,
			algo:   se.Algo,
			size:   se.Size,
			data:   se.Data,
			stored: se.Stored,
		}
		copy(e.digest[:], se.Digest)

		content, err := e.content()
		if err != nil {
			return nil, fmt.Errorf("%w: entry %s: %w", errs.ErrInvalidSnapshot, se.Name, err)
		}
		if DigestOf(content) != e.digest {
			return nil, fmt.Errorf("%w: %s", errs.ErrDigestMismatch, se.Name)
		}
		m.put(e)
	}

	m.cfg.logger.Debug("snapshot restored", slog.Int("entries", m.Len()))

	return m, nil
}
