package compress

import (
	"testing"
)

func BenchmarkAllCodecs_Compress(b *testing.B) {
	data := dexLike(512 * 1024)
	for typ, codec := range allCodecs() {
		b.Run(typ.String(), func(b *testing.B) {
			b.SetBytes(int64(len(data)))
			b.ReportAllocs()
			for b.Loop() {
				if _, err := codec.Compress(data); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

func BenchmarkAllCodecs_Decompress(b *testing.B) {
	data := dexLike(512 * 1024)
	for typ, codec := range allCodecs() {
		packed, err := codec.Compress(data)
		if err != nil {
			b.Fatal(err)
		}
		b.Run(typ.String(), func(b *testing.B) {
			b.SetBytes(int64(len(data)))
			b.ReportAllocs()
			for b.Loop() {
				if _, err := DecompressSize(codec, packed, len(data)); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}
