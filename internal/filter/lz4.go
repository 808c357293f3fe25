package filter

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/pierrec/lz4/v4"
)

var lz4CompressorPool = sync.Pool{
	New: func() any {
		return &lz4.Compressor{}
	},
}

// LZ4 implements the LZ4 block filter. The encoded form carries the
// decoded length as a 4-byte big-endian prefix.
type LZ4 struct{}

// NewLZ4 creates a new LZ4 filter.
func NewLZ4() *LZ4 {
	return &LZ4{}
}

func (f *LZ4) Name() string {
	return NameLZ4
}

func (f *LZ4) Encode(input []byte) ([]byte, error) {
	dst := make([]byte, 4+lz4.CompressBlockBound(len(input)))
	binary.BigEndian.PutUint32(dst, uint32(len(input)))
	if len(input) == 0 {
		return dst[:4], nil
	}

	lc, _ := lz4CompressorPool.Get().(*lz4.Compressor)
	defer lz4CompressorPool.Put(lc)

	n, err := lc.CompressBlock(input, dst[4:])
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, fmt.Errorf("lz4: incompressible block of %d bytes", len(input))
	}
	return dst[:4+n], nil
}

func (f *LZ4) Decode(input []byte) ([]byte, error) {
	if len(input) < 4 {
		return nil, fmt.Errorf("lz4: input too short for length prefix")
	}
	size := binary.BigEndian.Uint32(input)
	out := make([]byte, size)
	if size == 0 {
		return out, nil
	}
	n, err := lz4.UncompressBlock(input[4:], out)
	if err != nil {
		return nil, fmt.Errorf("lz4 decompress: %w", err)
	}
	if n != int(size) {
		return nil, fmt.Errorf("lz4: decoded %d bytes, expected %d", n, size)
	}
	return out, nil
}
