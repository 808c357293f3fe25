// Package dtype maps stored element encodings to in-memory element types.
//
// Stored arrays declare a bit depth (BITPIX) plus an optional affine
// rescale (BSCALE, BZERO). The in-memory type is resolved from both:
//
//	BITPIX | BSCALE/BZERO       | DType
//	-------|--------------------|---------
//	8      | 1 / 0              | uint8
//	8      | 1 / -128           | int8
//	16     | 1 / 0              | int16
//	16     | 1 / 32768          | uint16
//	32     | 1 / 0              | int32
//	32     | 1 / 2147483648     | uint32
//	64     | 1 / 0              | int64
//	64     | 1 / 2^63           | uint64
//	-32    | any                | float32
//	-64    | any                | float64
//	8, 16  | other              | float32
//	32, 64 | other              | float64
//
// Payloads stored under the reserved mask role always resolve to uint16.
//
// # Key Functions
//
//   - [Resolve]: picks the DType for a stored payload
//   - [StorageFor]: picks BITPIX/BZERO for writing a DType
//   - [Decode]: converts big-endian raw bytes to float64 values
//   - [Encode]: converts float64 values to big-endian raw bytes
package dtype
