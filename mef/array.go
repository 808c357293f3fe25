package mef

import (
	"fmt"
	"math"
	"slices"

	"github.com/robert-malhotra/go-mef/internal/dtype"
	"github.com/robert-malhotra/go-mef/internal/layout"
)

// DType identifies the element type of an Array.
type DType = dtype.DType

// Element types.
const (
	Uint8   = dtype.Uint8
	Int8    = dtype.Int8
	Int16   = dtype.Int16
	Uint16  = dtype.Uint16
	Int32   = dtype.Int32
	Uint32  = dtype.Uint32
	Int64   = dtype.Int64
	Uint64  = dtype.Uint64
	Float32 = dtype.Float32
	Float64 = dtype.Float64
)

// Array is a materialized N-dimensional array in row-major order. Values
// are held as float64 and constrained to the range and precision of the
// element type. Stored int64 and uint64 payloads holding integers beyond
// 2^53 cannot be held exactly and fail to load with ErrTypeConstraint.
type Array struct {
	shape []int
	dtype DType
	data  []float64
}

// NewArray allocates a zero-filled array.
func NewArray(dt DType, shape ...int) *Array {
	return &Array{
		shape: slices.Clone(shape),
		dtype: dt,
		data:  make([]float64, layout.NumElements(shape)),
	}
}

// Full allocates an array filled with value.
func Full(dt DType, value float64, shape ...int) *Array {
	a := NewArray(dt, shape...)
	a.Fill(value)
	return a
}

// FromSlice wraps data as an array of the given shape. The slice is owned
// by the array afterwards; values are cast to dt.
func FromSlice(dt DType, data []float64, shape ...int) (*Array, error) {
	if n := layout.NumElements(shape); n != len(data) {
		return nil, fmt.Errorf("%w: %d values for shape %v (%d elements)", ErrShapeMismatch, len(data), shape, n)
	}
	a := &Array{shape: slices.Clone(shape), dtype: dt, data: data}
	a.cast()
	return a, nil
}

func (a *Array) cast() {
	if a.dtype == Float64 {
		return
	}
	for i, v := range a.data {
		a.data[i] = dtype.Cast(v, a.dtype)
	}
}

// Shape returns a copy of the dimensions.
func (a *Array) Shape() []int {
	return slices.Clone(a.shape)
}

// NDim returns the number of dimensions.
func (a *Array) NDim() int {
	return len(a.shape)
}

// Size returns the number of elements.
func (a *Array) Size() int {
	return len(a.data)
}

// DType returns the element type.
func (a *Array) DType() DType {
	return a.dtype
}

// Data returns the backing slice. Writes through it are visible in the
// array and are not cast.
func (a *Array) Data() []float64 {
	return a.data
}

func (a *Array) offset(idx []int) (int, error) {
	if len(idx) != len(a.shape) {
		return 0, fmt.Errorf("%w: %d indices for %d dimensions", ErrDimension, len(idx), len(a.shape))
	}
	off := 0
	for d, i := range idx {
		if i < 0 || i >= a.shape[d] {
			return 0, fmt.Errorf("index %d out of range for axis %d of size %d", i, d, a.shape[d])
		}
		off = off*a.shape[d] + i
	}
	return off, nil
}

// At returns the element at idx.
func (a *Array) At(idx ...int) (float64, error) {
	off, err := a.offset(idx)
	if err != nil {
		return 0, err
	}
	return a.data[off], nil
}

// Set stores v at idx.
func (a *Array) Set(v float64, idx ...int) error {
	off, err := a.offset(idx)
	if err != nil {
		return err
	}
	a.data[off] = dtype.Cast(v, a.dtype)
	return nil
}

// Fill sets every element to v.
func (a *Array) Fill(v float64) {
	v = dtype.Cast(v, a.dtype)
	for i := range a.data {
		a.data[i] = v
	}
}

// Clone returns a deep copy.
func (a *Array) Clone() *Array {
	return &Array{shape: slices.Clone(a.shape), dtype: a.dtype, data: slices.Clone(a.data)}
}

// AsType returns a copy converted to dt.
func (a *Array) AsType(dt DType) *Array {
	out := a.Clone()
	out.dtype = dt
	out.cast()
	return out
}

// SameShape reports whether a and b have equal dimensions.
func (a *Array) SameShape(b *Array) bool {
	return slices.Equal(a.shape, b.shape)
}

// Window returns a copy of the section.
func (a *Array) Window(sec Section) (*Array, error) {
	return a.WindowInto(sec, nil)
}

// WindowInto copies the section into dst, reusing its buffer when large
// enough. A nil dst allocates a new array.
func (a *Array) WindowInto(sec Section, dst *Array) (*Array, error) {
	if err := sec.check(a.shape); err != nil {
		return nil, err
	}
	dst = reuse(dst, a.dtype, sec.Shape())
	if err := layout.Extract(a.data, a.shape, sec.Start, sec.count(), dst.data); err != nil {
		return nil, err
	}
	return dst, nil
}

// SetSection writes src into the section. src must have the section's shape.
func (a *Array) SetSection(sec Section, src *Array) error {
	if err := sec.check(a.shape); err != nil {
		return err
	}
	if !slices.Equal(sec.Shape(), src.shape) {
		return shapeMismatch("set section", sec.Shape(), src.shape)
	}
	values := src.data
	if src.dtype != a.dtype {
		values = src.AsType(a.dtype).data
	}
	return layout.Insert(a.data, a.shape, sec.Start, sec.count(), values)
}

// reuse returns an array of the given type and shape, backed by dst's
// buffer when it has the capacity.
func reuse(dst *Array, dt DType, shape []int) *Array {
	n := layout.NumElements(shape)
	if dst == nil || cap(dst.data) < n {
		return NewArray(dt, shape...)
	}
	dst.dtype = dt
	dst.shape = append(dst.shape[:0], shape...)
	dst.data = dst.data[:n]
	return dst
}

// Equal reports whether both arrays have the same shape and values.
func (a *Array) Equal(b *Array) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.SameShape(b) && slices.Equal(a.data, b.data)
}

// AllClose reports whether both arrays have the same shape and every pair
// of values satisfies |a-b| <= atol + rtol*|b|.
func (a *Array) AllClose(b *Array, rtol, atol float64) bool {
	if a == nil || b == nil {
		return a == b
	}
	if !a.SameShape(b) {
		return false
	}
	for i, x := range a.data {
		y := b.data[i]
		if math.IsNaN(x) && math.IsNaN(y) {
			continue
		}
		if math.Abs(x-y) > atol+rtol*math.Abs(y) {
			return false
		}
	}
	return true
}

// Apply replaces every element v with fn(v).
func (a *Array) Apply(fn func(float64) float64) {
	for i, v := range a.data {
		a.data[i] = dtype.Cast(fn(v), a.dtype)
	}
}

func (a *Array) String() string {
	return fmt.Sprintf("Array(%s, %v)", a.dtype, a.shape)
}
