// Package dex reads, edits and writes Android DEX containers.
//
// A Dex holds one section per item kind. Identifier sections (strings, types,
// prototypes, fields, methods, classes) are addressed by index; data sections
// (string data, type lists, annotations, annotation sets, parameter annotation
// groups, annotations directories) are addressed by byte offset. Items refer to
// each other through lazily resolved references, so any section may be read
// before the sections it points into.
//
// Edits go through the item setters and the GetOrCreate helpers, which never
// duplicate an existing entry. Shared annotation sets and groups are copy on
// write. Refresh sorts the identifier sections, lays out every section and
// pushes the resulting indexes and offsets into every reference; Bytes
// refreshes and serializes, recomputing the checksum and signature.
//
// Class data is modelled as field and method declarations. Code items and debug
// info are kept as raw bytes that may embed identifier indexes, so a container
// holding them is pinned: Refresh refuses to reorder identifiers and identifier
// sweeps fail with errs.ErrUnsafeSweep. Call sites, method handles and
// hidden-api data are rejected with errs.ErrUnsupported.
package dex
