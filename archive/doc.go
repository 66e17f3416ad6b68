// Package archive holds the named entries of an APK in memory and moves them in
// and out of zip files and CBOR snapshots.
//
// The container codecs never touch files. They receive raw bytes for a named
// entry and hand bytes back:
//
//	apk, err := archive.OpenZip("framework-res.apk", archive.WithCompression(format.CompressionZstd))
//	data, err := apk.Get(archive.TableName)
//	...
//	err = apk.Replace(archive.TableName, table.Bytes())
//	err = apk.WriteZip(out)
//
// Entries are kept compressed with the configured codec and identified by a
// keyed BLAKE3 digest of their uncompressed content.
package archive
