// Package frame detects and strips the optional compression envelope that
// producers put around OTLP payloads before publishing them to Kafka.
//
// Detection is by magic prefix only. A payload that carries a known magic but
// fails to decompress is returned unchanged together with the reason, so that
// the record decoder downstream gets a chance to fail explicitly.
package frame

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"slices"

	"github.com/dustin/go-humanize"
	"github.com/golang/snappy"
	"github.com/klauspost/compress/zstd"
)

// DefaultMaxDecompressedSize bounds the output of a single payload.
const DefaultMaxDecompressedSize = 64 << 20

// Codec identifies the compression envelope of a payload.
type Codec int

const (
	CodecNone Codec = iota
	CodecSnappy
	CodecXerialSnappy
	CodecLZ4
	CodecZstd
	CodecGzip
)

func (c Codec) String() string {
	switch c {
	case CodecNone:
		return "none"
	case CodecSnappy:
		return "snappy"
	case CodecXerialSnappy:
		return "xerial-snappy"
	case CodecLZ4:
		return "lz4"
	case CodecZstd:
		return "zstd"
	case CodecGzip:
		return "gzip"
	default:
		return fmt.Sprintf("unknown(%d)", int(c))
	}
}

var (
	// stream identifier chunk of the snappy framing format: type 0xff, length 6
	magicSnappy       = []byte{0xff, 0x06, 0x00, 0x00}
	magicXerialSnappy = []byte{0x82, 'S', 'N', 'A', 'P', 'P', 'Y', 0x00}
	magicLZ4          = []byte{0x04, 0x22, 0x4d, 0x18}
	magicZstd         = []byte{0x28, 0xb5, 0x2f, 0xfd}
	magicGzip         = []byte{0x1f, 0x8b}

	errTooLarge        = errors.New("decompressed payload exceeds size limit")
	errXerialMalformed = errors.New("malformed xerial framing")
)

// magic followed by the version and minimum compatible version, 4 bytes each
const xerialHeaderLen = 16

// Result is the outcome of Decompress. When Codec is CodecNone or Err is set,
// Bytes is the original payload.
type Result struct {
	Bytes        []byte
	Codec        Codec
	Decompressed bool
	// Err is the reason a detected envelope could not be removed.
	Err error
}

// Fallback reports whether an envelope was detected but the payload had to be
// passed on as-is.
func (r Result) Fallback() bool {
	return r.Codec != CodecNone && !r.Decompressed
}

// Detect classifies a payload by its magic prefix.
func Detect(payload []byte) Codec {
	switch {
	case bytes.HasPrefix(payload, magicSnappy):
		return CodecSnappy
	case bytes.HasPrefix(payload, magicXerialSnappy):
		return CodecXerialSnappy
	case bytes.HasPrefix(payload, magicLZ4):
		return CodecLZ4
	case bytes.HasPrefix(payload, magicZstd):
		return CodecZstd
	case bytes.HasPrefix(payload, magicGzip):
		return CodecGzip
	default:
		return CodecNone
	}
}

// Decoder removes compression envelopes. It is safe for concurrent use.
type Decoder struct {
	maxSize int64
	zstd    *zstd.Decoder
}

// NewDecoder returns a Decoder that refuses to produce more than maxSize bytes
// per payload. A maxSize <= 0 selects DefaultMaxDecompressedSize.
func NewDecoder(maxSize int64) (*Decoder, error) {
	if maxSize <= 0 {
		maxSize = DefaultMaxDecompressedSize
	}

	// DecodeAll on a nil-reader decoder is stateless and goroutine safe.
	zd, err := zstd.NewReader(nil,
		zstd.WithDecoderConcurrency(0),
		zstd.WithDecoderMaxMemory(uint64(maxSize)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
	}

	return &Decoder{
		maxSize: maxSize,
		zstd:    zd,
	}, nil
}

// Decompress detects the envelope of payload and removes it. It never fails:
// unknown payloads come back unchanged and decoding problems are reported in
// Result.Err.
func (d *Decoder) Decompress(payload []byte) Result {
	codec := Detect(payload)
	if codec == CodecNone {
		return Result{Bytes: payload, Codec: CodecNone}
	}

	out, err := d.decompress(codec, payload)
	if err == nil && int64(len(out)) > d.maxSize {
		err = d.tooLarge()
	}
	if err != nil {
		return Result{
			Bytes: payload,
			Codec: codec,
			Err:   fmt.Errorf("%s: %w", codec, err),
		}
	}

	return Result{
		Bytes:        out,
		Codec:        codec,
		Decompressed: true,
	}
}

func (d *Decoder) decompress(codec Codec, payload []byte) ([]byte, error) {
	switch codec {
	case CodecXerialSnappy:
		return d.decodeXerial(payload)
	case CodecZstd:
		return d.zstd.DecodeAll(payload, nil)
	}

	pool, ok := getReaderPool(codec)
	if !ok {
		return nil, fmt.Errorf("no reader for codec %s", codec)
	}

	r, err := pool.GetReader(bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	defer pool.PutReader(r)

	// read one byte past the limit so oversized payloads are detectable
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, io.LimitReader(r, d.maxSize+1)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (d *Decoder) tooLarge() error {
	return fmt.Errorf("%w (limit %s)", errTooLarge, humanize.IBytes(uint64(d.maxSize)))
}

// decodeXerial walks the length prefixed snappy blocks after the xerial
// header. The size a block declares is checked against the remaining budget
// before anything is allocated for it.
func (d *Decoder) decodeXerial(payload []byte) ([]byte, error) {
	if len(payload) < xerialHeaderLen {
		return nil, errXerialMalformed
	}

	var out []byte
	for rest := payload[xerialHeaderLen:]; len(rest) > 0; {
		if len(rest) < 4 {
			return nil, errXerialMalformed
		}
		size := binary.BigEndian.Uint32(rest)
		rest = rest[4:]
		if uint64(size) > uint64(len(rest)) {
			return nil, errXerialMalformed
		}
		block := rest[:size]
		rest = rest[size:]

		n, err := snappy.DecodedLen(block)
		if err != nil {
			return nil, err
		}
		if int64(len(out))+int64(n) > d.maxSize {
			return nil, d.tooLarge()
		}

		start := len(out)
		out = slices.Grow(out, n)[:start+n]
		if _, err := snappy.Decode(out[start:], block); err != nil {
			return nil, err
		}
	}
	return out, nil
}
