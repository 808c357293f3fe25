// Package layout provides storage layout handlers for reading stored array
// payloads, whole or as rectangular sections (hyperslabs).
//
// Payloads are stored in row-major order: the last dimension varies
// fastest. Two layouts exist:
//
//   - [Contiguous]: the payload bytes are addressable in place (a file or
//     a memory mapping). Sections are read run by run, so only the bytes of
//     the requested section are touched.
//
//   - [Filtered]: the payload is stored encoded and must be decoded as a
//     whole before any section can be extracted. Decoding is delegated to a
//     loader, which may cache.
//
// # Multi-dimensional Copying
//
// [Extract] and [Insert] move a section between a full row-major array and
// a packed buffer. They work by recursively iterating through dimensions:
//
//  1. For each position in the current dimension, calculate the source and
//     destination offsets
//  2. Recurse to the next dimension until reaching the innermost dimension
//  3. At the innermost dimension, perform a contiguous copy
package layout
