package codec

import (
	"bytes"
	"io"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Compressor compresses encoded payloads before they reach a store.
// Implementations must be safe for concurrent use.
type Compressor interface {
	Compress(src []byte) ([]byte, error)
	Decompress(src []byte) ([]byte, error)
	Name() string
}

// CompressorByName returns a built-in compressor by its stable name.
// The empty string selects None.
func CompressorByName(name string) (Compressor, bool) {
	switch name {
	case "", "none":
		return None{}, true
	case "lz4":
		return LZ4{}, true
	case "zstd":
		return Zstd{}, true
	default:
		return nil, false
	}
}

// None passes data through unchanged.
type None struct{}

// Compress returns src.
func (None) Compress(src []byte) ([]byte, error) { return src, nil }

// Decompress returns src.
func (None) Decompress(src []byte) ([]byte, error) { return src, nil }

// Name returns "none".
func (None) Name() string { return "none" }

// LZ4 uses the LZ4 frame format (github.com/pierrec/lz4/v4).
// Fast, with a modest ratio; the default for cached blocks.
type LZ4 struct{}

// Compress compresses src into a new LZ4 frame.
func (LZ4) Compress(src []byte) ([]byte, error) {
	var out bytes.Buffer
	zw := lz4.NewWriter(&out)

	if _, err := zw.Write(src); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

// Decompress decodes an LZ4 frame.
func (LZ4) Decompress(src []byte) ([]byte, error) {
	zr := lz4.NewReader(bytes.NewReader(src))
	return io.ReadAll(zr)
}

// Name returns "lz4".
func (LZ4) Name() string { return "lz4" }

var (
	zstdEncOnce sync.Once
	zstdEnc     *zstd.Encoder
	zstdEncErr  error
)

// zstdDecoders provides thread-safe access to zstd decoders.
var zstdDecoders = sync.Pool{
	New: func() any {
		d, _ := zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
		return d
	},
}

// Zstd uses github.com/klauspost/compress/zstd at the default level.
// Better ratio than LZ4; used for snapshots.
type Zstd struct{}

// Compress compresses src with a shared encoder.
func (Zstd) Compress(src []byte) ([]byte, error) {
	zstdEncOnce.Do(func() {
		zstdEnc, zstdEncErr = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	})
	if zstdEncErr != nil {
		return nil, zstdEncErr
	}
	return zstdEnc.EncodeAll(src, nil), nil
}

// Decompress decodes a zstd frame.
func (Zstd) Decompress(src []byte) ([]byte, error) {
	dec := zstdDecoders.Get().(*zstd.Decoder)
	defer zstdDecoders.Put(dec)
	return dec.DecodeAll(src, nil)
}

// Name returns "zstd".
func (Zstd) Name() string { return "zstd" }
