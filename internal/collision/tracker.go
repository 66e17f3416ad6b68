// Package collision keeps hash-bucketed item indexes that tolerate hash collisions.
package collision

// Tracker maps 64-bit key hashes to the items stored under them.
//
// Distinct keys may share a hash; such items share a bucket and the caller
// disambiguates by comparing full keys. Collisions counts how many insertions
// landed in an already occupied bucket.
type Tracker[T comparable] struct {
	buckets    map[uint64][]T
	count      int
	collisions int
}

// NewTracker creates an empty tracker.
func NewTracker[T comparable]() *Tracker[T] {
	return &Tracker[T]{
		buckets: make(map[uint64][]T),
	}
}

// Track stores item under hash.
func (t *Tracker[T]) Track(hash uint64, item T) {
	bucket := t.buckets[hash]
	if len(bucket) > 0 {
		t.collisions++
	}
	t.buckets[hash] = append(bucket, item)
	t.count++
}

// Untrack removes item from the bucket of hash.
//
// Returns:
//   - bool: true if the item was present
func (t *Tracker[T]) Untrack(hash uint64, item T) bool {
	bucket := t.buckets[hash]
	for i, it := range bucket {
		if it != item {
			continue
		}

		if len(bucket) == 1 {
			delete(t.buckets, hash)
		} else {
			t.buckets[hash] = append(bucket[:i:i], bucket[i+1:]...)
		}
		t.count--

		return true
	}

	return false
}

// Bucket returns the items stored under hash. The slice must not be modified.
func (t *Tracker[T]) Bucket(hash uint64) []T {
	return t.buckets[hash]
}

// HasCollision reports whether any bucket ever received a second item.
func (t *Tracker[T]) HasCollision() bool {
	return t.collisions > 0
}

// Collisions returns the number of insertions into occupied buckets.
func (t *Tracker[T]) Collisions() int {
	return t.collisions
}

// Count returns the number of tracked items.
func (t *Tracker[T]) Count() int {
	return t.count
}

// Reset clears all buckets and counters.
func (t *Tracker[T]) Reset() {
	clear(t.buckets)
	t.count = 0
	t.collisions = 0
}
