package layout

import (
	"fmt"
	"io"
)

// Contiguous represents a payload stored as one addressable block.
type Contiguous struct {
	r        io.ReaderAt
	offset   int64
	dims     []int
	elemSize int
}

// NewContiguous creates a handler for a payload of shape dims starting at
// offset in r.
func NewContiguous(r io.ReaderAt, offset int64, dims []int, elemSize int) *Contiguous {
	return &Contiguous{
		r:        r,
		offset:   offset,
		dims:     append([]int(nil), dims...),
		elemSize: elemSize,
	}
}

// Size returns the payload size in bytes.
func (c *Contiguous) Size() int64 {
	return int64(NumElements(c.dims) * c.elemSize)
}

// Read reads the whole payload.
func (c *Contiguous) Read() ([]byte, error) {
	buf := make([]byte, c.Size())
	if err := c.readAt(buf, c.offset); err != nil {
		return nil, err
	}
	return buf, nil
}

// ReadSlice reads the section [start, start+count).
func (c *Contiguous) ReadSlice(start, count []int) ([]byte, error) {
	buf := make([]byte, NumElements(count)*c.elemSize)
	if err := c.ReadSliceInto(start, count, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// ReadSliceInto reads the section [start, start+count) into dst. Only the
// bytes of the section are read: runs along the trailing dimensions that
// the section covers completely are merged into single reads.
func (c *Contiguous) ReadSliceInto(start, count []int, dst []byte) error {
	if err := Validate(c.dims, start, count); err != nil {
		return err
	}
	total := NumElements(count)
	if len(dst) < total*c.elemSize {
		return fmt.Errorf("hyperslab destination holds %d bytes, need %d", len(dst), total*c.elemSize)
	}
	if total == 0 {
		return nil
	}

	// Find the outermost dimension k such that every dimension after it is
	// fully covered; a single read then spans count[k] rows of dims[k+1:].
	ndims := len(c.dims)
	k := ndims - 1
	for k > 0 && start[k] == 0 && count[k] == c.dims[k] {
		k--
	}
	strides := Strides(c.dims)
	runElems := count[k] * strides[k]
	runBytes := runElems * c.elemSize

	idx := make([]int, k)
	dstOff := 0
	for {
		elem := start[k] * strides[k]
		for d := 0; d < k; d++ {
			elem += (start[d] + idx[d]) * strides[d]
		}
		if err := c.readAt(dst[dstOff:dstOff+runBytes], c.offset+int64(elem*c.elemSize)); err != nil {
			return err
		}
		dstOff += runBytes

		// advance the odometer over dimensions [0, k)
		d := k - 1
		for ; d >= 0; d-- {
			idx[d]++
			if idx[d] < count[d] {
				break
			}
			idx[d] = 0
		}
		if d < 0 {
			return nil
		}
	}
}

func (c *Contiguous) readAt(buf []byte, off int64) error {
	n, err := c.r.ReadAt(buf, off)
	if n == len(buf) {
		return nil
	}
	if err == nil || err == io.EOF {
		err = io.ErrUnexpectedEOF
	}
	return fmt.Errorf("reading %d bytes at offset %d: %w", len(buf), off, err)
}
