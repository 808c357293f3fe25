// Package card encodes and decodes 80-byte header cards and the
// block-aligned headers built from them.
//
// A card is one keyword/value/comment triple:
//
//	NAXIS1  =                  100 / length of data axis 1
//	EXTNAME = 'SCI     '           / extension name
//	HISTORY free text
//
// Values decode to string, bool, int64 or float64. Commentary cards
// (COMMENT, HISTORY and blank keywords) carry their text as a string value
// and may repeat within a header.
//
// # Key Functions
//
//   - [Parse]: decodes one 80-byte card
//   - [Format]: encodes one card
//   - [DecodeHeader]: reads cards block by block until END
//   - [EncodeHeader]: writes cards plus END, padded to whole blocks
//   - [Wrap]: continues long commentary text on further cards
package card
