// Package section implements the deduplicating item pools of a container.
//
// A Section owns every item of one category (strings, types, method ids,
// annotation sets, ...). Items have a positional index, a byte offset that is
// valid after the owning container's refresh, and a usage counter filled by
// reference sweeps.
//
// GetOrCreate is the single canonicalization point: it returns the item already
// carrying an equal key or appends a new one. Keys are bucketed by their xxHash64
// so lookups stay O(1) for large string tables.
//
//	strings := section.New("strings", newString, section.WithAlignment(4))
//	s, err := strings.GetOrCreate(key.StringKey("Ljava/lang/Object;"))
//
// Loaders bypass deduplication with Append (real files may carry duplicates) and
// call Rehash once every item can compute its key.
package section
