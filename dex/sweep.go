package dex

import (
	"fmt"
	"slices"

	"github.com/arloliu/apkblock/errs"
	"github.com/arloliu/apkblock/ref"
)

// sweepStep removes the unused items of one section.
type sweepStep struct {
	kinds []ItemType
	run   func() int
	// ids marks steps that renumber identifiers.
	ids bool
}

// sweepOrder lists the removable sections, referrers before their targets, so
// one pass over the list leaves no item that only removed items referred to.
func (d *Dex) sweepOrder() []sweepStep {
	return []sweepStep{
		{[]ItemType{TypeAnnotationsDirectoryItem}, d.sweepDirectories, false},
		{[]ItemType{TypeAnnotationSetRefList}, func() int { return ref.Sweep(d.annotationGroups, d.References()) }, false},
		{[]ItemType{TypeAnnotationSetItem}, func() int { return ref.Sweep(d.annotationSets, d.References()) }, false},
		{[]ItemType{TypeAnnotationItem}, func() int { return ref.Sweep(d.annotations, d.References()) }, false},
		{[]ItemType{TypeEncodedArrayItem}, func() int { return ref.Sweep(d.staticValues, d.References()) }, false},
		{[]ItemType{TypeCodeItem}, func() int { return ref.Sweep(d.codes, d.References()) }, false},
		{[]ItemType{TypeDebugInfoItem}, func() int { return ref.Sweep(d.debugInfos, d.References()) }, false},
		{[]ItemType{TypeMethodIDItem}, func() int { return ref.Sweep(d.methods, d.References()) }, true},
		{[]ItemType{TypeFieldIDItem}, func() int { return ref.Sweep(d.fields, d.References()) }, true},
		{[]ItemType{TypeProtoIDItem}, func() int { return ref.Sweep(d.protos, d.References()) }, true},
		{[]ItemType{TypeTypeList}, func() int { return ref.Sweep(d.typeLists, d.References()) }, false},
		{[]ItemType{TypeTypeIDItem}, func() int { return ref.Sweep(d.types, d.References()) }, true},
		{[]ItemType{TypeStringIDItem, TypeStringDataItem}, d.sweepStrings, true},
	}
}

// sweepDirectories detaches empty directories from their classes and removes
// every directory no class refers to.
func (d *Dex) sweepDirectories() int {
	for _, c := range d.classes.Items() {
		if dir, ok := c.Directory(); ok && dir.IsEmpty() {
			c.annotations.Clear()
		}
	}

	return ref.Sweep(d.directories, d.References())
}

func (d *Dex) sweepStrings() int {
	n := ref.Sweep(d.strings, d.References())
	ref.Sweep(d.stringData, d.References())

	return n
}

// RemoveUnusedStrings removes every string no item refers to.
//
// Returns:
//   - int: number of removed strings
//   - error: errs.ErrUnsafeSweep when code or debug info may hold string indexes
func (d *Dex) RemoveUnusedStrings() (int, error) {
	if d.Pinned() {
		return 0, fmt.Errorf("%w: %d code items", errs.ErrUnsafeSweep, d.codes.Len())
	}
	d.layout()

	return d.sweepStrings(), nil
}

// RemoveUnused removes unreferenced items of the given kinds, or of every
// removable kind when none is given. Class definitions are roots and are never
// removed. Nothing is removed when the call fails.
//
// Returns:
//   - int: total number of removed items
//   - error: errs.ErrUnsupported for a kind that cannot be swept,
//     errs.ErrUnsafeSweep for identifier kinds of a pinned container
func (d *Dex) RemoveUnused(kinds ...ItemType) (int, error) {
	order := d.sweepOrder()
	for _, k := range kinds {
		if !slices.ContainsFunc(order, func(s sweepStep) bool { return slices.Contains(s.kinds, k) }) {
			return 0, fmt.Errorf("%w: cannot sweep %s", errs.ErrUnsupported, k)
		}
	}
	selected := slices.DeleteFunc(order, func(s sweepStep) bool {
		return len(kinds) > 0 && !slices.ContainsFunc(s.kinds, func(k ItemType) bool { return slices.Contains(kinds, k) })
	})
	if d.Pinned() {
		for _, step := range selected {
			if step.ids {
				return 0, fmt.Errorf("%w: %s with code present", errs.ErrUnsafeSweep, step.kinds[0])
			}
		}
	}

	d.layout()
	total := 0
	for _, step := range selected {
		total += step.run()
	}

	return total, nil
}
