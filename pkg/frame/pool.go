package frame

import (
	"io"
	"sync"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/gzip"
	"github.com/pierrec/lz4/v4"
)

// ReaderPool hands out decompressing readers for one codec.
type ReaderPool interface {
	GetReader(io.Reader) (io.Reader, error)
	PutReader(io.Reader)
	Codec() Codec
}

var (
	// Snappy is the snappy framed stream pool
	Snappy SnappyPool
	// LZ4 is the lz4 frame pool
	LZ4 LZ4Pool
	// Gzip is the gnu zip pool
	Gzip GzipPool
)

func getReaderPool(c Codec) (ReaderPool, bool) {
	switch c {
	case CodecSnappy:
		return &Snappy, true
	case CodecLZ4:
		return &LZ4, true
	case CodecGzip:
		return &Gzip, true
	default:
		return nil, false
	}
}

// SnappyPool pools readers of the snappy framing format.
type SnappyPool struct {
	readers sync.Pool
}

// Codec implements ReaderPool
func (pool *SnappyPool) Codec() Codec {
	return CodecSnappy
}

// GetReader gets or creates a new snappy reader and resets it to read from src
func (pool *SnappyPool) GetReader(src io.Reader) (io.Reader, error) {
	if r := pool.readers.Get(); r != nil {
		reader := r.(*snappy.Reader)
		reader.Reset(src)
		return reader, nil
	}
	return snappy.NewReader(src), nil
}

// PutReader places back in the pool a snappy reader
func (pool *SnappyPool) PutReader(reader io.Reader) {
	pool.readers.Put(reader)
}

// LZ4Pool pools lz4 frame readers.
type LZ4Pool struct {
	readers sync.Pool
}

// Codec implements ReaderPool
func (pool *LZ4Pool) Codec() Codec {
	return CodecLZ4
}

// GetReader gets or creates a new lz4 reader and resets it to read from src
func (pool *LZ4Pool) GetReader(src io.Reader) (io.Reader, error) {
	var r *lz4.Reader
	if pooled := pool.readers.Get(); pooled != nil {
		r = pooled.(*lz4.Reader)
		r.Reset(src)
	} else {
		r = lz4.NewReader(src)
	}
	return r, nil
}

// PutReader places back in the pool an lz4 reader
func (pool *LZ4Pool) PutReader(reader io.Reader) {
	pool.readers.Put(reader)
}

// GzipPool pools gzip readers. Unlike the other pools creating a reader can
// fail because the gzip header is read eagerly.
type GzipPool struct {
	readers sync.Pool
}

// Codec implements ReaderPool
func (pool *GzipPool) Codec() Codec {
	return CodecGzip
}

// GetReader gets or creates a new gzip reader and resets it to read from src
func (pool *GzipPool) GetReader(src io.Reader) (io.Reader, error) {
	if r := pool.readers.Get(); r != nil {
		reader := r.(*gzip.Reader)
		if err := reader.Reset(src); err != nil {
			// a reader that failed to reset is unusable, drop it
			return nil, err
		}
		return reader, nil
	}
	reader, err := gzip.NewReader(src)
	if err != nil {
		return nil, err
	}
	return reader, nil
}

// PutReader places back in the pool a gzip reader
func (pool *GzipPool) PutReader(reader io.Reader) {
	pool.readers.Put(reader)
}
