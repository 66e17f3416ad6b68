package archive

import (
	"encoding/hex"

	"github.com/zeebo/blake3"
)

// Digest is the keyed BLAKE3 hash of an entry's uncompressed content.
type Digest [32]byte

// entryDomainKey separates entry digests from any other BLAKE3 use of the same
// bytes. It is the ASCII domain name zero-padded to 32 bytes.
var entryDomainKey = [32]byte{
	'a', 'p', 'k', 'b', 'l', 'o', 'c', 'k', '.', 'a', 'r', 'c', 'h', 'i', 'v', 'e',
	'.', 'e', 'n', 't', 'r', 'y', 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
}

// DigestOf hashes data in the entry domain.
func DigestOf(data []byte) Digest {
	h, err := blake3.NewKeyed(entryDomainKey[:])
	if err != nil {
		// NewKeyed only fails on a key that is not 32 bytes.
		panic("archive: blake3 keyed hasher: " + err.Error())
	}
	_, _ = h.Write(data)

	var d Digest
	h.Sum(d[:0])

	return d
}

func (d Digest) String() string {
	return hex.EncodeToString(d[:])
}

// MarshalText implements encoding.TextMarshaler.
func (d Digest) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}
