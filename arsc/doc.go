// Package arsc edits Android resource tables (resources.arsc) and compiled
// binary XML documents such as AndroidManifest.xml.
//
// Both formats are trees of chunks. Each chunk starts with an eight byte header
// (type, header size, total size). String pools hold every string; values,
// entry keys, XML names and style spans refer to pool strings by index through
// ref.Reference, so pools can be reordered and swept like any other section.
//
// Parsing is tolerant: a malformed type chunk or package is kept as an opaque
// chunk and reported by LoadErrors, and its siblings load normally. Opaque
// chunks of unknown type make string sweeps unsafe; RemoveUnusedStrings refuses
// with errs.ErrUnsafeSweep in that case.
//
// Typical use:
//
//	table, err := arsc.ParseTable(data)
//	if err != nil {
//		return err
//	}
//	v, ok := table.ResolveValue(0x7f040001)
//	...
//	out, err := table.Bytes()
package arsc
