package mef

import "fmt"

// Pixels holds an image either in memory or as a deferred payload. The
// zero value holds nothing.
type Pixels struct {
	array *Array
	lazy  *LazyArray
}

// Materialized wraps an in-memory array.
func Materialized(a *Array) Pixels {
	return Pixels{array: a}
}

// Deferred wraps a lazy payload.
func Deferred(l *LazyArray) Pixels {
	return Pixels{lazy: l}
}

// IsZero reports whether p holds nothing.
func (p Pixels) IsZero() bool {
	return p.array == nil && p.lazy == nil
}

// IsLazy reports whether p holds an unresolved payload.
func (p Pixels) IsLazy() bool {
	return p.lazy != nil
}

// Array returns the in-memory array, or nil if p is lazy or empty.
func (p Pixels) Array() *Array {
	return p.array
}

// Lazy returns the deferred payload, or nil.
func (p Pixels) Lazy() *LazyArray {
	return p.lazy
}

// Shape returns the dimensions without resolving.
func (p Pixels) Shape() []int {
	switch {
	case p.array != nil:
		return p.array.Shape()
	case p.lazy != nil:
		return p.lazy.Shape()
	}
	return nil
}

// DType returns the element type without resolving.
func (p Pixels) DType() DType {
	switch {
	case p.array != nil:
		return p.array.DType()
	case p.lazy != nil:
		return p.lazy.DType()
	}
	return 0
}

// Resolve returns the values as an in-memory array, materializing a lazy
// payload. The result of a lazy payload is a fresh array each call.
func (p Pixels) Resolve() (*Array, error) {
	switch {
	case p.array != nil:
		return p.array, nil
	case p.lazy != nil:
		return p.lazy.Materialize()
	}
	return nil, nil
}

// Window returns a copy of the section.
func (p Pixels) Window(sec Section) (*Array, error) {
	return p.WindowInto(sec, nil)
}

// WindowInto copies the section into dst, reusing its buffer.
func (p Pixels) WindowInto(sec Section, dst *Array) (*Array, error) {
	switch {
	case p.array != nil:
		return p.array.WindowInto(sec, dst)
	case p.lazy != nil:
		return p.lazy.WindowInto(sec, dst)
	}
	return nil, fmt.Errorf("%w: window of empty pixels", ErrAttributeAccess)
}
