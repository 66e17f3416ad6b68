package block

import (
	"fmt"

	"github.com/arloliu/apkblock/errs"
)

// List is an ordered container of child blocks, each padded to the list alignment.
// Sizes assume the list itself starts aligned.
type List[T Block] struct {
	items []T
	align int
}

var _ Block = (*List[*Bytes])(nil)

// NewList creates an empty list whose children start on align-byte boundaries.
func NewList[T Block](align int) *List[T] {
	return &List[T]{align: align}
}

// Len returns the number of children.
func (l *List[T]) Len() int {
	return len(l.items)
}

// At returns the child at index i.
func (l *List[T]) At(i int) T {
	return l.items[i]
}

// Items returns the children. The slice must not be modified.
func (l *List[T]) Items() []T {
	return l.items
}

// Add appends a child.
func (l *List[T]) Add(item T) {
	l.items = append(l.items, item)
}

// Set replaces all children.
func (l *List[T]) Set(items []T) {
	l.items = items
}

// Alignment implements Aligned.
func (l *List[T]) Alignment() int {
	return l.align
}

// CountBytes implements Block.
func (l *List[T]) CountBytes() int {
	pos := 0
	for _, it := range l.items {
		pos = AlignUp(pos, l.align)
		pos += it.CountBytes()
	}

	return pos
}

// CountUpTo implements Block.
func (l *List[T]) CountUpTo(c *Counter) {
	if c.Enter(l) {
		return
	}
	for _, it := range l.items {
		c.Align(l.align)
		it.CountUpTo(c)
		if c.Found() {
			return
		}
	}
}

// WriteBytes implements Block.
func (l *List[T]) WriteBytes(w *Writer) error {
	start := w.Position()
	for i, it := range l.items {
		w.Align(l.align)
		if err := it.WriteBytes(w); err != nil {
			return fmt.Errorf("list item %d: %w", i, err)
		}
	}
	if written := w.Position() - start; written != l.CountBytes() {
		return fmt.Errorf("%w: list wrote %d bytes, counted %d", errs.ErrLayoutMismatch, written, l.CountBytes())
	}

	return nil
}
