package dex

import (
	"fmt"

	"github.com/arloliu/apkblock/block"
	"github.com/arloliu/apkblock/errs"
	"github.com/arloliu/apkblock/key"
	"github.com/arloliu/apkblock/ref"
	"github.com/arloliu/apkblock/section"
)

// item is the bookkeeping shared by every DEX item.
type item struct {
	section.Entry
	dex *Dex
}

// edger is implemented by items holding references.
type edger interface {
	// edges yields every outgoing reference and reports whether iteration
	// should continue.
	edges(yield func(ref.Edge) bool) bool
}

// reader is implemented by items loadable from a section.
type reader interface {
	read(r *block.Reader) error
}

func countLeaf(c *block.Counter, b block.Block) {
	if c.Enter(b) {
		return
	}
	c.Add(b.CountBytes())
}

func invalidKey(kind string, k key.Key) error {
	return fmt.Errorf("%w: %s cannot take key %v", errs.ErrInvalidKey, kind, k)
}

// keyOf returns the typed key of a reference target, the zero value when absent.
func keyOf[K key.Key, T section.Node](r *ref.Reference[T]) K {
	k, _ := r.Key().(K)
	return k
}
