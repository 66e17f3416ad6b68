// Package hash computes the 64-bit hashes used to bucket section keys.
package hash

import "github.com/cespare/xxhash/v2"

// Key hashes the canonical text of a key with xxHash64.
func Key(k interface{ String() string }) uint64 {
	return xxhash.Sum64String(k.String())
}
