// Package hdu scans a container into header/data units and encodes the
// structural keywords and table payloads of individual units.
//
// A container is a sequence of units. Each unit is a header (see package
// card) followed by a data block whose size follows from the header:
//
//	size = |BITPIX|/8 * GCOUNT * (PCOUNT + NAXIS1*...*NAXISn)
//
// unless the unit carries an encoded payload, in which case PSIZE gives the
// stored size. Data blocks are padded to whole blocks.
//
// # Key Functions
//
//   - [Scan]: locates every unit in a container
//   - [ImageCards]: structural keywords for an image unit
//   - [EncodeBinTable], [DecodeBinTable]: binary table payloads
//   - [EncodeASCIITable], [DecodeASCIITable]: text table payloads
//   - [IsStructural]: reports keywords owned by the format layer
package hdu
