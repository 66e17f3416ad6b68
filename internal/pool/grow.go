package pool

// GrowSlice makes room for extra more elements in s, enlarging the backing array
// in multiples of step instead of letting append pick a size.
//
// Parameters:
//   - s: slice to grow; its length is preserved
//   - extra: number of elements about to be appended
//   - step: growth increment, values below 1 are treated as 1
//
// Returns:
//   - []T: s itself or a copy with a larger backing array
//   - bool: true when a new backing array was allocated
func GrowSlice[T any](s []T, extra, step int) ([]T, bool) {
	need := len(s) + extra
	if need <= cap(s) {
		return s, false
	}
	if step < 1 {
		step = 1
	}

	newCap := cap(s)
	for newCap < need {
		newCap += step
	}

	grown := make([]T, len(s), newCap)
	copy(grown, s)

	return grown, true
}
