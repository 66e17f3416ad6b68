package compress

import (
	"bytes"
	"crypto/rand"
	"fmt"
	"sync"
	"testing"

	"github.com/arloliu/apkblock/format"
	"github.com/stretchr/testify/require"
)

// dexLike builds a payload resembling DEX string data: repeated descriptors
// with a little variation.
func dexLike(size int) []byte {
	var buf bytes.Buffer
	for i := 0; buf.Len() < size; i++ {
		fmt.Fprintf(&buf, "Lcom/example/app/Class%d;\x00", i%37)
	}

	return buf.Bytes()[:size]
}

func allCodecs() map[format.CompressionType]Codec {
	return map[format.CompressionType]Codec{
		format.CompressionNone: NewNoOpCompressor(),
		format.CompressionZstd: NewZstdCompressor(),
		format.CompressionS2:   NewS2Compressor(),
		format.CompressionLZ4:  NewLZ4Compressor(),
	}
}

func TestGetCodec(t *testing.T) {
	for typ := range allCodecs() {
		codec, err := GetCodec(typ)
		require.NoError(t, err)
		require.NotNil(t, codec)

		created, err := CreateCodec(typ, "entry")
		require.NoError(t, err)
		require.IsType(t, codec, created)
	}

	_, err := GetCodec(format.CompressionType(0x7f))
	require.Error(t, err)

	_, err = CreateCodec(format.CompressionType(0x7f), "entry")
	require.ErrorContains(t, err, "invalid entry compression")
}

func TestAllCodecs_RoundTrip(t *testing.T) {
	sizes := []int{1, 64, 4096, 256 * 1024}
	for typ, codec := range allCodecs() {
		for _, size := range sizes {
			t.Run(fmt.Sprintf("%s_%d", typ, size), func(t *testing.T) {
				data := dexLike(size)

				packed, err := codec.Compress(data)
				require.NoError(t, err)

				out, err := codec.Decompress(packed)
				require.NoError(t, err)
				require.Equal(t, data, out)

				out, err = DecompressSize(codec, packed, len(data))
				require.NoError(t, err)
				require.Equal(t, data, out)
			})
		}
	}
}

func TestAllCodecs_EmptyData(t *testing.T) {
	for typ, codec := range allCodecs() {
		t.Run(typ.String(), func(t *testing.T) {
			packed, err := codec.Compress(nil)
			require.NoError(t, err)
			require.Empty(t, packed)

			out, err := DecompressSize(codec, packed, 0)
			require.NoError(t, err)
			require.Empty(t, out)
		})
	}
}

func TestAllCodecs_InvalidData(t *testing.T) {
	garbage := []byte{0xff, 0xfe, 0xfd, 0xfc, 0x00, 0x01, 0x02}
	for _, typ := range []format.CompressionType{format.CompressionZstd, format.CompressionS2, format.CompressionLZ4} {
		t.Run(typ.String(), func(t *testing.T) {
			codec, err := GetCodec(typ)
			require.NoError(t, err)

			_, err = DecompressSize(codec, garbage, 100)
			require.Error(t, err)
		})
	}
}

func TestDecompressSize_LengthMismatch(t *testing.T) {
	codec := NewZstdCompressor()
	data := dexLike(1000)
	packed, err := codec.Compress(data)
	require.NoError(t, err)

	_, err = DecompressSize(codec, packed, 999)
	require.ErrorContains(t, err, "expected 999")

	_, err = DecompressSize(NewNoOpCompressor(), data, 10)
	require.Error(t, err)
}

func TestLZ4_Incompressible(t *testing.T) {
	data := make([]byte, 4096)
	_, err := rand.Read(data)
	require.NoError(t, err)

	packed, err := NewLZ4Compressor().Compress(data)
	if err != nil {
		require.ErrorContains(t, err, "incompressible")
		return
	}

	out, err := DecompressSize(NewLZ4Compressor(), packed, len(data))
	require.NoError(t, err)
	require.Equal(t, data, out)
}

func TestAllCodecs_ConcurrentUsage(t *testing.T) {
	data := dexLike(32 * 1024)
	for typ, codec := range allCodecs() {
		t.Run(typ.String(), func(t *testing.T) {
			var wg sync.WaitGroup
			errCh := make(chan error, 8)
			for range 8 {
				wg.Add(1)
				go func() {
					defer wg.Done()
					for range 10 {
						packed, err := codec.Compress(data)
						if err != nil {
							errCh <- err
							return
						}
						out, err := DecompressSize(codec, packed, len(data))
						if err != nil {
							errCh <- err
							return
						}
						if !bytes.Equal(out, data) {
							errCh <- fmt.Errorf("%s: round trip mismatch", typ)
							return
						}
					}
				}()
			}
			wg.Wait()
			close(errCh)
			for err := range errCh {
				require.NoError(t, err)
			}
		})
	}
}

func TestStats(t *testing.T) {
	s := Stats{Algorithm: format.CompressionZstd, OriginalSize: 1000, CompressedSize: 250}
	require.InDelta(t, 0.25, s.Ratio(), 1e-9)
	require.InDelta(t, 75.0, s.SpaceSavings(), 1e-9)

	s.Add(Stats{OriginalSize: 1000, CompressedSize: 750})
	require.InDelta(t, 50.0, s.SpaceSavings(), 1e-9)

	require.Zero(t, Stats{}.Ratio())
	require.Zero(t, Stats{}.SpaceSavings())
}
