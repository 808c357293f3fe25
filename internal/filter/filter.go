package filter

import (
	"fmt"
	"sort"
)

// Filter is the interface implemented by all payload filters.
type Filter interface {
	// Name returns the filter identifier used in pipeline declarations.
	Name() string

	// Encode transforms decoded data to encoded form.
	Encode(input []byte) ([]byte, error)

	// Decode transforms encoded data to decoded form.
	Decode(input []byte) ([]byte, error)
}

// Filter names.
const (
	NameDeflate    = "deflate"
	NameShuffle    = "shuffle"
	NameFletcher32 = "fletcher32"
	NameZstd       = "zstd"
	NameS2         = "s2"
	NameLZ4        = "lz4"
)

// Registry maps filter names to filter constructors. The element size of
// the payload is passed to every constructor.
var Registry = map[string]func(elemSize int) Filter{
	NameDeflate:    func(int) Filter { return NewDeflate(6) },
	NameShuffle:    func(n int) Filter { return NewShuffle(n) },
	NameFletcher32: func(int) Filter { return NewFletcher32() },
	NameZstd:       func(int) Filter { return NewZstd() },
	NameS2:         func(int) Filter { return NewS2() },
	NameLZ4:        func(int) Filter { return NewLZ4() },
}

// New creates the named filter for elements of elemSize bytes.
func New(name string, elemSize int) (Filter, error) {
	constructor, ok := Registry[name]
	if !ok {
		return nil, fmt.Errorf("unsupported filter %q (available: %v)", name, Names())
	}
	return constructor(elemSize), nil
}

// Names returns the registered filter names in sorted order.
func Names() []string {
	names := make([]string, 0, len(Registry))
	for n := range Registry {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
