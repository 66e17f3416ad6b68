// Package errs defines the sentinel errors shared by every apkblock package.
//
// Callers test for a category with errors.Is; the concrete error usually wraps
// the sentinel with the offending position, chunk type or key:
//
//	if errors.Is(err, errs.ErrMalformedInput) {
//	    // input bytes are truncated or structurally invalid
//	}
package errs

import (
	"errors"
	"fmt"
)

// ErrMalformedInput is the root of every parse failure caused by the input bytes.
var ErrMalformedInput = errors.New("malformed input")

// Parse failures. Each wraps ErrMalformedInput.
var (
	ErrTruncated     = fmt.Errorf("%w: truncated data", ErrMalformedInput)
	ErrInvalidMagic  = fmt.Errorf("%w: invalid magic", ErrMalformedInput)
	ErrInvalidChunk  = fmt.Errorf("%w: invalid chunk", ErrMalformedInput)
	ErrInvalidOffset = fmt.Errorf("%w: offset out of range", ErrMalformedInput)
	ErrInvalidString = fmt.Errorf("%w: invalid string encoding", ErrMalformedInput)
)

// ErrUnsupported reports a well-formed structure this library does not model.
var ErrUnsupported = errors.New("unsupported structure")

// Reference resolution diagnostics. Resolution itself reports an absent item;
// these sentinels are returned by validation helpers that need an error value.
var (
	ErrDanglingReference = errors.New("dangling reference")
	ErrCircularReference = errors.New("circular reference")
)

// Invariant violations raised at the call site.
var (
	ErrInvalidKey     = errors.New("invalid key for section")
	ErrDuplicateKey   = errors.New("duplicate key in section")
	ErrImmutable      = errors.New("mutation of immutable collection")
	ErrLayoutMismatch = errors.New("serialized position disagrees with layout")
	ErrUnsafeSweep    = errors.New("sweep refused: opaque data may hold references")
)

// Archive collaborator errors.
var (
	ErrEntryNotFound   = errors.New("archive entry not found")
	ErrInvalidSnapshot = errors.New("invalid archive snapshot")
	ErrDigestMismatch  = errors.New("archive entry digest mismatch")
)
