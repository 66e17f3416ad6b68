// Package compress provides the codecs the archive uses to hold APK entries in
// memory.
//
// An APK is mostly DEX code, compiled XML and resource tables. The archive keeps
// each entry compressed with a selectable algorithm so large inputs (framework
// resource tables run to tens of megabytes) stay cheap while they are edited:
//
//	codec, err := compress.GetCodec(format.CompressionZstd)
//	packed, err := codec.Compress(entry)
//	entry, err = compress.DecompressSize(codec, packed, len(entry))
//
// Supported algorithms:
//   - None: entries are stored as-is
//   - Zstd: best ratio; klauspost/compress by default, valyala/gozstd when built
//     with the gozstd tag and cgo enabled
//   - S2: fast with a reasonable ratio
//   - LZ4: block format, fastest decompression
//
// All codecs are safe for concurrent use. Encoders and decoders are pooled.
package compress
