//go:build !unix

package mmap

// Open reports ErrUnsupported on platforms without mmap.
func Open(path string) (*Mapping, error) {
	return nil, ErrUnsupported
}
