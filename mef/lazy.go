package mef

import (
	"errors"
	"fmt"
	"slices"

	"github.com/robert-malhotra/go-mef/internal/dtype"
	"github.com/robert-malhotra/go-mef/internal/layout"
	"github.com/robert-malhotra/go-mef/internal/mmap"
)

// LazyArray is a deferred reference to a stored image payload. Nothing is
// decoded until Materialize or Window is called; every call reads the
// source again.
type LazyArray struct {
	src    layout.Layout
	shape  []int
	bitpix int
	bscale float64
	bzero  float64
	dtype  DType
	role   string

	raw []byte
}

func newLazyArray(src layout.Layout, shape []int, bitpix int, bscale, bzero float64, role string) (*LazyArray, error) {
	dt, err := dtype.Resolve(bitpix, bscale, bzero, role == MaskRole)
	if err != nil {
		return nil, err
	}
	return &LazyArray{
		src:    src,
		shape:  slices.Clone(shape),
		bitpix: bitpix,
		bscale: bscale,
		bzero:  bzero,
		dtype:  dt,
		role:   role,
	}, nil
}

// Shape returns the logical dimensions, slowest axis first.
func (l *LazyArray) Shape() []int {
	return slices.Clone(l.shape)
}

// DType returns the type the payload resolves to.
func (l *LazyArray) DType() DType {
	return l.dtype
}

// Role returns the role name of the record the payload belongs to.
func (l *LazyArray) Role() string {
	return l.role
}

// Scale returns the stored affine rescale.
func (l *LazyArray) Scale() (bscale, bzero float64) {
	return l.bscale, l.bzero
}

// Materialize decodes the full payload and applies the rescale once.
func (l *LazyArray) Materialize() (*Array, error) {
	raw, err := l.src.Read()
	if err != nil {
		return nil, l.readErr("payload", err)
	}
	out := NewArray(l.dtype, l.shape...)
	if err := l.decode(raw, out.data); err != nil {
		return nil, err
	}
	return out, nil
}

// Window decodes only the section. The rest of the payload is not read
// from a mapped source.
func (l *LazyArray) Window(sec Section) (*Array, error) {
	return l.WindowInto(sec, nil)
}

// WindowInto decodes the section into dst, reusing its buffers.
func (l *LazyArray) WindowInto(sec Section, dst *Array) (*Array, error) {
	if err := sec.check(l.shape); err != nil {
		return nil, err
	}
	size, err := dtype.BitpixSize(l.bitpix)
	if err != nil {
		return nil, err
	}
	n := sec.Size() * size
	if cap(l.raw) < n {
		l.raw = make([]byte, n)
	}
	raw := l.raw[:n]
	if err := l.src.ReadSliceInto(sec.Start, sec.count(), raw); err != nil {
		return nil, l.readErr("window", err)
	}
	dst = reuse(dst, l.dtype, sec.Shape())
	if err := l.decode(raw, dst.data); err != nil {
		return nil, err
	}
	return dst, nil
}

func (l *LazyArray) readErr(what string, err error) error {
	if errors.Is(err, mmap.ErrClosed) {
		return fmt.Errorf("%w: reading %s %s", ErrClosed, l.role, what)
	}
	return fmt.Errorf("%w: reading %s %s: %v", ErrContainerFormat, l.role, what, err)
}

func (l *LazyArray) decode(raw []byte, dst []float64) error {
	err := dtype.Load(raw, l.bitpix, l.bscale, l.bzero, l.dtype, dst)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, dtype.ErrInexact):
		return fmt.Errorf("%w: %s payload: %v", ErrTypeConstraint, l.role, err)
	default:
		return fmt.Errorf("%w: %v", ErrContainerFormat, err)
	}
}

func (l *LazyArray) String() string {
	return fmt.Sprintf("LazyArray(%s, %v)", l.dtype, l.shape)
}
