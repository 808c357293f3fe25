package dtype

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

var be = binary.BigEndian

// ErrInexact is returned when a stored 64-bit integer has no exact float64
// representation.
var ErrInexact = errors.New("integer not exactly representable")

// Decode converts big-endian raw elements of the given bit depth into dst.
// Values are not rescaled. len(raw) must equal len(dst) times the element
// size.
func Decode(raw []byte, bitpix int, dst []float64) error {
	size, err := BitpixSize(bitpix)
	if err != nil {
		return err
	}
	if len(raw) != len(dst)*size {
		return fmt.Errorf("decode: %d bytes for %d elements of %d bytes", len(raw), len(dst), size)
	}

	switch bitpix {
	case 8:
		for i := range dst {
			dst[i] = float64(raw[i])
		}
	case 16:
		for i := range dst {
			dst[i] = float64(int16(be.Uint16(raw[i*2:])))
		}
	case 32:
		for i := range dst {
			dst[i] = float64(int32(be.Uint32(raw[i*4:])))
		}
	case 64:
		for i := range dst {
			dst[i] = float64(int64(be.Uint64(raw[i*8:])))
		}
	case -32:
		for i := range dst {
			dst[i] = float64(math.Float32frombits(be.Uint32(raw[i*4:])))
		}
	case -64:
		for i := range dst {
			dst[i] = math.Float64frombits(be.Uint64(raw[i*8:]))
		}
	}
	return nil
}

// Load decodes raw elements into dst as values of type d, applying the
// stored rescale. 64-bit integer payloads that resolve to Int64 or Uint64
// are converted in integer arithmetic; an element beyond float64 precision
// fails with ErrInexact instead of being rounded.
func Load(raw []byte, bitpix int, bscale, bzero float64, d DType, dst []float64) error {
	if bitpix != 64 || (d != Int64 && d != Uint64) {
		if err := Decode(raw, bitpix, dst); err != nil {
			return err
		}
		Rescale(dst, bscale, bzero, d)
		return nil
	}
	if len(raw) != len(dst)*8 {
		return fmt.Errorf("decode: %d bytes for %d elements of 8 bytes", len(raw), len(dst))
	}
	for i := range dst {
		bits := be.Uint64(raw[i*8:])
		if d == Uint64 {
			u := bits ^ (1 << 63)
			v := float64(u)
			if v >= 1<<64 || uint64(v) != u {
				return fmt.Errorf("%w: element %d is %d", ErrInexact, i, u)
			}
			dst[i] = v
			continue
		}
		n := int64(bits)
		v := float64(n)
		if v >= 1<<63 || int64(v) != n {
			return fmt.Errorf("%w: element %d is %d", ErrInexact, i, n)
		}
		dst[i] = v
	}
	return nil
}

// Rescale applies value*bscale + bzero in place and casts to d.
func Rescale(values []float64, bscale, bzero float64, d DType) {
	if bscale == 1 && bzero == 0 && !d.IsFloat() {
		return
	}
	for i, v := range values {
		values[i] = Cast(v*bscale+bzero, d)
	}
}

// Encode converts values of type d into their big-endian stored form using
// the layout returned by StorageFor.
func Encode(values []float64, d DType) ([]byte, error) {
	bitpix, _, err := StorageFor(d)
	if err != nil {
		return nil, err
	}
	size, _ := BitpixSize(bitpix)
	out := make([]byte, len(values)*size)

	switch d {
	case Uint8:
		for i, v := range values {
			out[i] = uint8(v)
		}
	case Int8:
		for i, v := range values {
			out[i] = uint8(int8(v)) ^ 0x80
		}
	case Int16:
		for i, v := range values {
			be.PutUint16(out[i*2:], uint16(int16(v)))
		}
	case Uint16:
		for i, v := range values {
			be.PutUint16(out[i*2:], uint16(v)^0x8000)
		}
	case Int32:
		for i, v := range values {
			be.PutUint32(out[i*4:], uint32(int32(v)))
		}
	case Uint32:
		for i, v := range values {
			be.PutUint32(out[i*4:], uint32(v)^0x80000000)
		}
	case Int64:
		for i, v := range values {
			be.PutUint64(out[i*8:], uint64(int64(v)))
		}
	case Uint64:
		for i, v := range values {
			be.PutUint64(out[i*8:], uint64(v)^(1<<63))
		}
	case Float32:
		for i, v := range values {
			be.PutUint32(out[i*4:], math.Float32bits(float32(v)))
		}
	case Float64:
		for i, v := range values {
			be.PutUint64(out[i*8:], math.Float64bits(v))
		}
	}
	return out, nil
}
