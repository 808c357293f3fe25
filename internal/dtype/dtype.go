package dtype

import (
	"fmt"
	"math"
)

// DType identifies an element type.
type DType uint8

const (
	Invalid DType = iota
	Uint8
	Int8
	Int16
	Uint16
	Int32
	Uint32
	Int64
	Uint64
	Float32
	Float64
)

var names = map[DType]string{
	Uint8:   "uint8",
	Int8:    "int8",
	Int16:   "int16",
	Uint16:  "uint16",
	Int32:   "int32",
	Uint32:  "uint32",
	Int64:   "int64",
	Uint64:  "uint64",
	Float32: "float32",
	Float64: "float64",
}

func (d DType) String() string {
	if n, ok := names[d]; ok {
		return n
	}
	return fmt.Sprintf("dtype(%d)", uint8(d))
}

// Parse returns the DType with the given name.
func Parse(name string) (DType, error) {
	for d, n := range names {
		if n == name {
			return d, nil
		}
	}
	return Invalid, fmt.Errorf("unknown dtype %q", name)
}

// Size returns the size of one element in bytes.
func (d DType) Size() int {
	switch d {
	case Uint8, Int8:
		return 1
	case Int16, Uint16:
		return 2
	case Int32, Uint32, Float32:
		return 4
	case Int64, Uint64, Float64:
		return 8
	default:
		return 0
	}
}

// IsFloat reports whether d is a floating-point type.
func (d DType) IsFloat() bool {
	return d == Float32 || d == Float64
}

// IsUnsigned reports whether d is an unsigned integer type.
func (d DType) IsUnsigned() bool {
	return d == Uint8 || d == Uint16 || d == Uint32 || d == Uint64
}

// Valid reports whether d names a concrete type.
func (d DType) Valid() bool {
	_, ok := names[d]
	return ok
}

// Promote returns the type that holds the result of combining a and b.
func Promote(a, b DType) DType {
	if a == b {
		return a
	}
	if a == Float32 && b.Size() <= 2 && !b.IsFloat() || b == Float32 && a.Size() <= 2 && !a.IsFloat() {
		return Float32
	}
	return Float64
}

// bounds of the integer types as float64. The 64-bit limits are the
// largest doubles that still convert without overflow.
var bounds = map[DType][2]float64{
	Uint8:  {0, math.MaxUint8},
	Int8:   {math.MinInt8, math.MaxInt8},
	Int16:  {math.MinInt16, math.MaxInt16},
	Uint16: {0, math.MaxUint16},
	Int32:  {math.MinInt32, math.MaxInt32},
	Uint32: {0, math.MaxUint32},
	Int64:  {math.MinInt64, math.Nextafter(math.Exp2(63), 0)},
	Uint64: {0, math.Nextafter(math.Exp2(64), 0)},
}

// Cast converts v to the value representable by d. Integer types truncate
// toward zero and saturate at the type's limits; NaN becomes 0.
func Cast(v float64, d DType) float64 {
	switch d {
	case Float32:
		return float64(float32(v))
	case Float64, Invalid:
		return v
	}
	if math.IsNaN(v) {
		return 0
	}
	b := bounds[d]
	return math.Trunc(min(max(v, b[0]), b[1]))
}

// BitpixSize returns the element size for a declared bit depth.
func BitpixSize(bitpix int) (int, error) {
	switch bitpix {
	case 8, 16, 32, 64:
		return bitpix / 8, nil
	case -32, -64:
		return -bitpix / 8, nil
	default:
		return 0, fmt.Errorf("unsupported BITPIX %d", bitpix)
	}
}

// Resolve returns the in-memory type of a stored payload. mask selects the
// reserved-mask-role rule, which always yields uint16.
func Resolve(bitpix int, bscale, bzero float64, mask bool) (DType, error) {
	if _, err := BitpixSize(bitpix); err != nil {
		return Invalid, err
	}
	if mask {
		return Uint16, nil
	}

	switch bitpix {
	case -32:
		return Float32, nil
	case -64:
		return Float64, nil
	}

	if bscale == 1 {
		switch {
		case bzero == 0:
			return direct(bitpix), nil
		case bitpix == 8 && bzero == -128:
			return Int8, nil
		case bitpix > 8 && bzero == math.Exp2(float64(bitpix-1)):
			return unsignedFor(bitpix), nil
		}
	}

	if bitpix <= 16 {
		return Float32, nil
	}
	return Float64, nil
}

func direct(bitpix int) DType {
	switch bitpix {
	case 8:
		return Uint8
	case 16:
		return Int16
	case 32:
		return Int32
	default:
		return Int64
	}
}

func unsignedFor(bitpix int) DType {
	switch bitpix {
	case 16:
		return Uint16
	case 32:
		return Uint32
	default:
		return Uint64
	}
}

// StorageFor returns the BITPIX and BZERO used to store d.
func StorageFor(d DType) (bitpix int, bzero float64, err error) {
	switch d {
	case Uint8:
		return 8, 0, nil
	case Int8:
		return 8, -128, nil
	case Int16:
		return 16, 0, nil
	case Uint16:
		return 16, 32768, nil
	case Int32:
		return 32, 0, nil
	case Uint32:
		return 32, 2147483648, nil
	case Int64:
		return 64, 0, nil
	case Uint64:
		return 64, math.Exp2(63), nil
	case Float32:
		return -32, 0, nil
	case Float64:
		return -64, 0, nil
	default:
		return 0, 0, fmt.Errorf("cannot store %s", d)
	}
}
