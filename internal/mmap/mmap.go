// Package mmap provides read-only memory mappings of container files.
package mmap

import (
	"errors"
	"fmt"
	"io"
	"runtime/debug"
	"sync"
)

// ErrUnsupported is returned when the platform cannot map files.
var ErrUnsupported = errors.New("memory mapping not supported")

// ErrClosed is returned when reading from a released mapping.
var ErrClosed = errors.New("mapping is closed")

// Mapping is a read-only view of a whole file. It implements io.ReaderAt
// and must be released with Close.
type Mapping struct {
	mu     sync.RWMutex
	data   []byte
	size   int64
	unmap  func([]byte) error
	closed bool
}

// Size returns the mapped size in bytes.
func (m *Mapping) Size() int64 {
	return m.size
}

// ReadAt copies len(p) bytes starting at off. Reads go through the mapping
// with no system call for pages already in the page cache.
func (m *Mapping) ReadAt(p []byte, off int64) (n int, err error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return 0, ErrClosed
	}
	if off < 0 || off >= m.size {
		return 0, io.EOF
	}

	// An I/O error on the backing file surfaces as a fault while copying.
	old := debug.SetPanicOnFault(true)
	defer func() {
		debug.SetPanicOnFault(old)
		if r := recover(); r != nil {
			err = fmt.Errorf("page fault reading mapping at offset %d: %v", off, r)
		}
	}()

	n = copy(p, m.data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// Close unmaps the region. It is safe to call more than once.
func (m *Mapping) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	m.closed = true
	data := m.data
	m.data = nil
	if m.unmap == nil || len(data) == 0 {
		return nil
	}
	if err := m.unmap(data); err != nil {
		return fmt.Errorf("unmapping file: %w", err)
	}
	return nil
}

// Closed reports whether Close has been called.
func (m *Mapping) Closed() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.closed
}
