// Package block implements the byte-backed node tree shared by the DEX and ARSC
// containers, and the offset protocol layered on it.
//
// Every node implements Block:
//
//	type Block interface {
//	    CountBytes() int
//	    CountUpTo(c *Counter)
//	    WriteBytes(w *Writer) error
//	}
//
// CountBytes reports the node's own serialized size from cached child sizes.
// CountUpTo walks the subtree in serialization order, adding sizes to the
// Counter until the Counter's target node is met; OffsetOf wraps that walk and
// returns NotFound for unreachable targets. Containers stop descending as soon
// as the counter reports the target found, so one traversal serves any depth.
//
// # Refresh
//
// Mutations never recompute offsets. Containers track edits with a Generation
// and expose a single Refresh entry point that re-derives sizes bottom-up and
// pushes the resulting indexes and offsets into every reference field.
// Offsets read between an edit and the next refresh are stale.
//
// # I/O
//
// Reader is a sequential, position-tracking reader over in-memory bytes; all
// offset math is done by the caller through Seek and Sub. Writer appends to a
// pooled buffer; Serialize checks the written length against CountBytes.
package block
