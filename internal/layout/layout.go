package layout

import (
	"fmt"
)

// Layout is the interface for reading stored payload bytes.
type Layout interface {
	// Read returns the whole payload.
	Read() ([]byte, error)

	// ReadSlice returns the packed bytes of the section [start, start+count).
	ReadSlice(start, count []int) ([]byte, error)

	// ReadSliceInto fills dst with the packed bytes of the section.
	ReadSliceInto(start, count []int, dst []byte) error
}

// Validate checks that [start, start+count) lies within dims.
func Validate(dims, start, count []int) error {
	if len(dims) == 0 {
		return fmt.Errorf("cannot extract hyperslab from scalar array")
	}
	if len(start) != len(dims) || len(count) != len(dims) {
		return fmt.Errorf("hyperslab rank mismatch: dims %d, start %d, count %d",
			len(dims), len(start), len(count))
	}
	for d := range dims {
		if start[d] < 0 || count[d] < 0 || start[d]+count[d] > dims[d] {
			return fmt.Errorf("hyperslab out of bounds in dimension %d: start %d count %d size %d",
				d, start[d], count[d], dims[d])
		}
	}
	return nil
}

// NumElements returns the product of dims.
func NumElements(dims []int) int {
	n := 1
	for _, d := range dims {
		n *= d
	}
	return n
}

// Strides returns the row-major element strides for dims.
func Strides(dims []int) []int {
	strides := make([]int, len(dims))
	s := 1
	for d := len(dims) - 1; d >= 0; d-- {
		strides[d] = s
		s *= dims[d]
	}
	return strides
}

// Extract copies the section [start, start+count) of src, a row-major
// array of shape dims, into dst packed in row-major order.
func Extract[T any](src []T, dims, start, count []int, dst []T) error {
	if err := Validate(dims, start, count); err != nil {
		return err
	}
	if len(dst) < NumElements(count) {
		return fmt.Errorf("hyperslab destination holds %d elements, need %d", len(dst), NumElements(count))
	}
	if NumElements(count) == 0 {
		return nil
	}
	copySection(src, dst, dims, start, count, Strides(dims), Strides(count), 0, 0, 0, false)
	return nil
}

// Insert copies src, packed in row-major order with shape count, into the
// section [start, start+count) of dst, a row-major array of shape dims.
func Insert[T any](dst []T, dims, start, count []int, src []T) error {
	if err := Validate(dims, start, count); err != nil {
		return err
	}
	if len(src) < NumElements(count) {
		return fmt.Errorf("hyperslab source holds %d elements, need %d", len(src), NumElements(count))
	}
	if NumElements(count) == 0 {
		return nil
	}
	copySection(dst, src, dims, start, count, Strides(dims), Strides(count), 0, 0, 0, true)
	return nil
}

// copySection walks the section recursively. full is the row-major array
// and packed is the section buffer; reverse copies packed into full.
func copySection[T any](
	full, packed []T,
	dims, start, count []int,
	fullStrides, packedStrides []int,
	fullOffset, packedOffset int,
	dim int,
	reverse bool,
) {
	if dim == len(dims)-1 {
		// Innermost dimension - copy contiguously
		from := fullOffset + start[dim]
		n := count[dim]
		if reverse {
			copy(full[from:from+n], packed[packedOffset:packedOffset+n])
		} else {
			copy(packed[packedOffset:packedOffset+n], full[from:from+n])
		}
		return
	}

	for i := 0; i < count[dim]; i++ {
		copySection(full, packed, dims, start, count,
			fullStrides, packedStrides,
			fullOffset+(start[dim]+i)*fullStrides[dim],
			packedOffset+i*packedStrides[dim],
			dim+1, reverse)
	}
}
