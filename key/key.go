// Package key defines the value-equality identities that sections deduplicate on.
//
// A Key is immutable. Two keys are equal when Compare returns 0; equality is
// structural and independent of which item (if any) currently carries the key.
// Compare gives a total order so sections can be sorted deterministically.
// Keys of different concrete types order by their canonical String form.
package key

import (
	"strings"
	"unicode/utf8"
)

// Key identifies a section item by content.
type Key interface {
	// String returns the canonical text of the key. Equal keys have equal text.
	String() string
	// Compare orders the key against other.
	Compare(other Key) int
}

// Compare orders two possibly absent keys; an absent key sorts first.
func Compare(a, b Key) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	default:
		return a.Compare(b)
	}
}

// Equal reports whether two possibly absent keys are equal.
func Equal(a, b Key) bool {
	return Compare(a, b) == 0
}

func fallback(a, b Key) int {
	return strings.Compare(a.String(), b.String())
}

// CompareStrings orders strings by their UTF-16 code units, the order DEX
// requires for its string table.
func CompareStrings(a, b string) int {
	for len(a) > 0 && len(b) > 0 {
		ra, na := utf8.DecodeRuneInString(a)
		rb, nb := utf8.DecodeRuneInString(b)
		if ra != rb {
			ua, ub := firstUnit(ra), firstUnit(rb)
			if ua != ub {
				if ua < ub {
					return -1
				}

				return 1
			}
			// same high surrogate, differing low surrogates
			if ra < rb {
				return -1
			}

			return 1
		}
		a, b = a[na:], b[nb:]
	}

	switch {
	case len(a) == len(b):
		return 0
	case len(a) == 0:
		return -1
	default:
		return 1
	}
}

func firstUnit(r rune) rune {
	if r < 0x10000 {
		return r
	}

	return 0xd800 + ((r - 0x10000) >> 10)
}

// StringKey is the key of a string pool entry.
type StringKey string

func (k StringKey) String() string { return string(k) }

// Compare implements Key.
func (k StringKey) Compare(other Key) int {
	if o, ok := other.(StringKey); ok {
		return CompareStrings(string(k), string(o))
	}

	return fallback(k, other)
}
