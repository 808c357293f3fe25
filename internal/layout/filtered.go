package layout

import "fmt"

// Filtered represents an encoded payload. The loader returns the decoded
// payload bytes; it is called for every read and may cache.
type Filtered struct {
	load     func() ([]byte, error)
	dims     []int
	elemSize int
}

// NewFiltered creates a handler for a decoded payload of shape dims.
func NewFiltered(load func() ([]byte, error), dims []int, elemSize int) *Filtered {
	return &Filtered{
		load:     load,
		dims:     append([]int(nil), dims...),
		elemSize: elemSize,
	}
}

func (f *Filtered) decoded() ([]byte, error) {
	data, err := f.load()
	if err != nil {
		return nil, err
	}
	if want := NumElements(f.dims) * f.elemSize; len(data) != want {
		return nil, fmt.Errorf("decoded payload has %d bytes, expected %d", len(data), want)
	}
	return data, nil
}

// Read returns a copy of the decoded payload.
func (f *Filtered) Read() ([]byte, error) {
	data, err := f.decoded()
	if err != nil {
		return nil, err
	}
	return append([]byte(nil), data...), nil
}

// ReadSlice returns the section [start, start+count) of the decoded payload.
func (f *Filtered) ReadSlice(start, count []int) ([]byte, error) {
	buf := make([]byte, NumElements(count)*f.elemSize)
	if err := f.ReadSliceInto(start, count, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// ReadSliceInto fills dst with the section [start, start+count).
func (f *Filtered) ReadSliceInto(start, count []int, dst []byte) error {
	data, err := f.decoded()
	if err != nil {
		return err
	}
	// Treat each element as an opaque run of elemSize bytes by scaling the
	// innermost dimension.
	dims := append([]int(nil), f.dims...)
	s := append([]int(nil), start...)
	c := append([]int(nil), count...)
	last := len(dims) - 1
	if last >= 0 {
		dims[last] *= f.elemSize
		if len(s) == len(dims) && len(c) == len(dims) {
			s[last] *= f.elemSize
			c[last] *= f.elemSize
		}
	}
	return Extract(data, dims, s, c, dst)
}
