// Package binary provides block-aligned I/O and payload checksums for
// container parsing and writing.
package binary

import (
	"errors"
	"fmt"
	"io"
)

// BlockSize is the size of a header or data block. Every header and every
// data segment occupies a whole number of blocks.
const BlockSize = 2880

// ErrShortRead is returned when the source ends inside a requested range.
var ErrShortRead = errors.New("short read")

// Reader reads byte ranges from an io.ReaderAt with an independent
// position.
type Reader struct {
	r    io.ReaderAt
	size int64
	pos  int64
}

// NewReader creates a reader over r, which holds size bytes.
func NewReader(r io.ReaderAt, size int64) *Reader {
	return &Reader{r: r, size: size}
}

// At returns a new reader positioned at the given offset.
// The new reader shares the underlying io.ReaderAt but has independent position.
func (r *Reader) At(offset int64) *Reader {
	return &Reader{r: r.r, size: r.size, pos: offset}
}

// Pos returns the current read position.
func (r *Reader) Pos() int64 {
	return r.pos
}

// Size returns the total number of bytes in the source.
func (r *Reader) Size() int64 {
	return r.size
}

// Remaining returns the number of bytes between the position and the end.
func (r *Reader) Remaining() int64 {
	if r.pos >= r.size {
		return 0
	}
	return r.size - r.pos
}

// ReadBytes reads n bytes from the current position.
func (r *Reader) ReadBytes(n int) ([]byte, error) {
	if n < 0 {
		return nil, fmt.Errorf("negative read length %d", n)
	}
	if int64(n) > r.Remaining() {
		return nil, fmt.Errorf("%w: want %d bytes at offset %d, %d available",
			ErrShortRead, n, r.pos, r.Remaining())
	}
	buf := make([]byte, n)
	if err := r.ReadInto(buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// ReadInto fills buf from the current position.
func (r *Reader) ReadInto(buf []byte) error {
	if len(buf) == 0 {
		return nil
	}
	n, err := r.r.ReadAt(buf, r.pos)
	r.pos += int64(n)
	if n == len(buf) {
		return nil
	}
	if err == nil || err == io.EOF {
		err = ErrShortRead
	}
	return fmt.Errorf("reading %d bytes at offset %d: %w", len(buf), r.pos-int64(n), err)
}

// ReadBlock reads one whole block.
func (r *Reader) ReadBlock() ([]byte, error) {
	return r.ReadBytes(BlockSize)
}

// Skip advances the position by n bytes.
func (r *Reader) Skip(n int64) {
	r.pos += n
}

// AlignUp rounds n up to a multiple of alignment.
func AlignUp(n, alignment int64) int64 {
	if alignment <= 1 {
		return n
	}
	if rem := n % alignment; rem != 0 {
		return n + alignment - rem
	}
	return n
}

// PaddedSize returns n rounded up to whole blocks.
func PaddedSize(n int64) int64 {
	return AlignUp(n, BlockSize)
}
