// Package apkblock reads, edits and writes the binary containers inside Android
// packages: DEX files, resource tables (resources.arsc) and compiled XML
// documents such as AndroidManifest.xml.
//
// Every container is a tree of byte blocks. Items that refer to each other
// through indexes or file offsets hold references instead of raw numbers, so
// removing, adding or reordering items never leaves a stale index behind.
// Refresh recomputes all indexes, offsets and counts before serialization.
//
// # Basic Usage
//
// Removing unused strings from a DEX file:
//
//	d, _ := apkblock.ParseDex(data)
//	removed, _ := d.RemoveUnusedStrings()
//	out, _ := d.Bytes()
//
// Resolving a resource through aliases:
//
//	table, _ := apkblock.ParseTable(data)
//	if v, ok := table.ResolveValue(0x7f010000); ok {
//	    fmt.Println(v.Display())
//	}
//
// Optimizing a framework APK:
//
//	apk, _ := apkblock.OpenAPK("framework-res.apk")
//	res, _ := apkblock.OptimizeFramework(apk)
//	_ = apk.SaveZip("framework-optimized.apk")
//
// # Package Structure
//
// This package wraps the format packages (dex, arsc), the archive and the
// optimize policies for the common cases. The core building blocks live in
// block, section, ref, directory and offsets.
package apkblock

import (
	"context"
	"fmt"
	"io"

	"github.com/arloliu/apkblock/archive"
	"github.com/arloliu/apkblock/arsc"
	"github.com/arloliu/apkblock/dex"
	"github.com/arloliu/apkblock/errs"
	"github.com/arloliu/apkblock/format"
	"github.com/arloliu/apkblock/optimize"
	"github.com/arloliu/apkblock/textfmt"
)

// ParseDex parses a DEX file.
//
// Parameters:
//   - data: complete DEX file; the returned container may alias it
//
// Returns:
//   - *dex.Dex: editable container
//   - error: errs.ErrMalformedInput family or errs.ErrUnsupported
func ParseDex(data []byte) (*dex.Dex, error) {
	return dex.Parse(data)
}

// ParseTable parses a resource table. Malformed type chunks do not fail the
// parse; they are kept opaque and reported by Table.LoadErrors.
func ParseTable(data []byte) (*arsc.Table, error) {
	return arsc.ParseTable(data)
}

// ParseXML parses a compiled XML document.
func ParseXML(data []byte) (*arsc.Document, error) {
	return arsc.ParseXML(data)
}

// OpenAPK reads the zip at path into an in-memory archive.
func OpenAPK(path string, opts ...archive.Option) (*archive.Memory, error) {
	return archive.OpenZip(path, opts...)
}

// OptimizeFramework reduces a framework APK to its optimized resource table
// and a minimal manifest.
//
// Returns:
//   - optimize.FrameworkResult: sizes before and after, framework name and version
//   - error: errs.ErrEntryNotFound when a has no resource table, or a parse error
func OptimizeFramework(a archive.Archive, opts ...optimize.Option) (optimize.FrameworkResult, error) {
	o, err := optimize.NewFrameworkOptimizer(opts...)
	if err != nil {
		return optimize.FrameworkResult{}, err
	}

	return o.Optimize(a)
}

// StripStrings removes unused strings from every DEX file, the resource table
// and the manifest of a.
func StripStrings(ctx context.Context, a archive.Archive, opts ...optimize.Option) (optimize.StripResult, error) {
	s, err := optimize.NewStripper(opts...)
	if err != nil {
		return optimize.StripResult{}, err
	}

	return s.Strip(ctx, a)
}

// Dump detects the container kind of data and writes its text rendering to w.
func Dump(w io.Writer, data []byte) error {
	var (
		item textfmt.Appender
		err  error
	)
	switch kind := format.Detect(data); kind {
	case format.KindDex:
		item, err = dex.Parse(data)
	case format.KindTable:
		item, err = arsc.ParseTable(data)
	case format.KindXML:
		item, err = arsc.ParseXML(data)
	default:
		return fmt.Errorf("%w: unrecognized container", errs.ErrUnsupported)
	}
	if err != nil {
		return err
	}

	text, err := textfmt.Render(item)
	if err != nil {
		return err
	}
	_, err = io.WriteString(w, text)

	return err
}
