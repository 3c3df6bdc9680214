package spot

import (
	"bytes"
	"io"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/snappy"
	"github.com/klauspost/compress/zstd"

	"github.com/goforj/spot/cachecore"
)

// CompressionCodec represents a value compression algorithm.
type CompressionCodec = cachecore.CompressionCodec

const (
	CompressionNone   = cachecore.CompressionNone
	CompressionGzip   = cachecore.CompressionGzip
	CompressionSnappy = cachecore.CompressionSnappy
	CompressionZstd   = cachecore.CompressionZstd
)

var (
	compressMagic = []byte("CMP1")

	ErrValueTooLarge      = errors.New("spot: value exceeds max size")
	ErrUnsupportedCodec   = errors.New("spot: unsupported compression codec")
	ErrCorruptCompression = errors.New("spot: corrupt compressed payload")
)

var (
	zstdOnce    sync.Once
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
	zstdErr     error
)

func zstdCodec() (*zstd.Encoder, *zstd.Decoder, error) {
	zstdOnce.Do(func() {
		zstdEncoder, zstdErr = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest))
		if zstdErr != nil {
			return
		}
		zstdDecoder, zstdErr = zstd.NewReader(nil)
	})
	return zstdEncoder, zstdDecoder, zstdErr
}

func codecTag(codec CompressionCodec) (byte, bool) {
	switch codec {
	case CompressionGzip:
		return 'g', true
	case CompressionSnappy:
		return 's', true
	case CompressionZstd:
		return 'z', true
	}
	return 0, false
}

func encodeValue(codec CompressionCodec, max int, value []byte) ([]byte, error) {
	if max > 0 && len(value) > max {
		return nil, ErrValueTooLarge
	}
	if codec == CompressionNone || codec == "" {
		return value, nil
	}
	tag, ok := codecTag(codec)
	if !ok {
		return nil, errors.Wrapf(ErrUnsupportedCodec, "%q", codec)
	}

	var buf bytes.Buffer
	buf.Write(compressMagic)
	_ = buf.WriteByte(tag)
	switch codec {
	case CompressionGzip:
		zw, _ := gzip.NewWriterLevel(&buf, gzip.BestSpeed)
		if _, err := zw.Write(value); err != nil {
			return nil, err
		}
		if err := zw.Close(); err != nil {
			return nil, err
		}
	case CompressionSnappy:
		buf.Write(snappy.Encode(nil, value))
	case CompressionZstd:
		enc, _, err := zstdCodec()
		if err != nil {
			return nil, err
		}
		buf.Write(enc.EncodeAll(value, nil))
	}
	out := buf.Bytes()
	if max > 0 && len(out) > max {
		return nil, ErrValueTooLarge
	}
	return out, nil
}

// decodeValue passes through values written without compression.
func decodeValue(in []byte) ([]byte, error) {
	if len(in) < len(compressMagic)+1 || !bytes.Equal(in[:len(compressMagic)], compressMagic) {
		return in, nil
	}
	tag := in[len(compressMagic)]
	payload := in[len(compressMagic)+1:]
	switch tag {
	case 'g':
		gr, err := gzip.NewReader(bytes.NewReader(payload))
		if err != nil {
			return nil, ErrCorruptCompression
		}
		defer gr.Close()
		out, err := io.ReadAll(gr)
		if err != nil {
			return nil, ErrCorruptCompression
		}
		return out, nil
	case 's':
		out, err := snappy.Decode(nil, payload)
		if err != nil {
			return nil, ErrCorruptCompression
		}
		return out, nil
	case 'z':
		_, dec, err := zstdCodec()
		if err != nil {
			return nil, err
		}
		out, err := dec.DecodeAll(payload, nil)
		if err != nil {
			return nil, ErrCorruptCompression
		}
		return out, nil
	default:
		return nil, errors.Wrapf(ErrUnsupportedCodec, "tag %q", tag)
	}
}
