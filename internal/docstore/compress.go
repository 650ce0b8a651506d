package docstore

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"

	"github.com/klauspost/compress/zstd"
	"github.com/minio/crc64nvme"
)

// envelope layout:
//   - magic (4 bytes) "MDZ1"
//   - CRC64 (8 bytes, uint64 little endian) - CRC64-NVME of the uncompressed document
//   - zstd frame
var envelopeMagic = []byte("MDZ1")

const envelopeHeaderSize = 12

// Compressed wraps a Store so documents are zstd compressed at rest and
// verified against a CRC64 checksum when read back. SAML aggregates are large
// and highly repetitive XML so they compress very well.
type Compressed struct {
	inner Store
	enc   *zstd.Encoder
	dec   *zstd.Decoder
}

var _ Store = (*Compressed)(nil)

// NewCompressed creates a compressing decorator around inner.
func NewCompressed(inner Store) (*Compressed, error) {
	// level 3 = SpeedDefault, good balance of compression and speed
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("failed to create encoder: %w", err)
	}

	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create decoder: %w", err)
	}

	return &Compressed{inner: inner, enc: enc, dec: dec}, nil
}

func (c *Compressed) Put(ctx context.Context, key string, data []byte) error {
	buf := bytes.NewBuffer(make([]byte, 0, envelopeHeaderSize+len(data)/4))
	buf.Write(envelopeMagic)
	_ = binary.Write(buf, binary.LittleEndian, computeCRC64(data))

	return c.inner.Put(ctx, key, c.enc.EncodeAll(data, buf.Bytes()))
}

func (c *Compressed) Get(ctx context.Context, key string) ([]byte, error) {
	stored, err := c.inner.Get(ctx, key)
	if err != nil {
		return nil, err
	}

	if len(stored) < envelopeHeaderSize || !bytes.Equal(stored[:4], envelopeMagic) {
		return nil, fmt.Errorf("%w: %s: missing envelope header", ErrCorrupt, key)
	}

	storedCRC := binary.LittleEndian.Uint64(stored[4:envelopeHeaderSize])

	data, err := c.dec.DecodeAll(stored[envelopeHeaderSize:], nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrCorrupt, key, err)
	}

	if computed := computeCRC64(data); computed != storedCRC {
		return nil, fmt.Errorf("%w: %s: CRC64 mismatch: stored=%x computed=%x", ErrCorrupt, key, storedCRC, computed)
	}

	return data, nil
}

func (c *Compressed) Delete(ctx context.Context, key string) error {
	return c.inner.Delete(ctx, key)
}

func (c *Compressed) Driver() Driver {
	return c.inner.Driver()
}

// computeCRC64 computes CRC64-NVME checksum
func computeCRC64(data []byte) uint64 {
	h := crc64nvme.New()
	h.Write(data)
	return h.Sum64()
}
