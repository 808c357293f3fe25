package hdu

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/robert-malhotra/go-mef/internal/binary"
	"github.com/robert-malhotra/go-mef/internal/card"
)

// ErrFormat is returned for containers that cannot be parsed.
var ErrFormat = errors.New("malformed container")

// Kind classifies a unit by its payload.
type Kind int

const (
	KindPrimary Kind = iota
	KindImage
	KindBinTable
	KindASCIITable
)

func (k Kind) String() string {
	switch k {
	case KindPrimary:
		return "primary"
	case KindImage:
		return "image"
	case KindBinTable:
		return "bintable"
	case KindASCIITable:
		return "table"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Structural keyword names.
const (
	KeySimple   = "SIMPLE"
	KeyXtension = "XTENSION"
	KeyBitpix   = "BITPIX"
	KeyNaxis    = "NAXIS"
	KeyPcount   = "PCOUNT"
	KeyGcount   = "GCOUNT"
	KeyExtend   = "EXTEND"
	KeyTfields  = "TFIELDS"
	KeyBscale   = "BSCALE"
	KeyBzero    = "BZERO"
	KeyPcodec   = "PCODEC"
	KeyPsize    = "PSIZE"
	KeyDatahash = "DATAHASH"
	KeyExtname  = "EXTNAME"
	KeyExtver   = "EXTVER"
)

// HDU is one header plus the location of its data.
type HDU struct {
	Cards      []card.Card
	Kind       Kind
	DataOffset int64
	DataSize   int64
}

// Lookup returns the value of the first card named key.
func (h *HDU) Lookup(key string) (any, bool) {
	return Lookup(h.Cards, key)
}

// Int returns an integer keyword.
func (h *HDU) Int(key string) (int64, error) {
	return Int(h.Cards, key)
}

// Dims returns the array dimensions in row-major order (slowest first),
// i.e. NAXISn reversed.
func (h *HDU) Dims() ([]int, error) {
	return Dims(h.Cards)
}

// Lookup returns the value of the first card named key.
func Lookup(cards []card.Card, key string) (any, bool) {
	for _, c := range cards {
		if c.Key == key {
			return c.Value, true
		}
	}
	return nil, false
}

// Int returns an integer keyword.
func Int(cards []card.Card, key string) (int64, error) {
	v, ok := Lookup(cards, key)
	if !ok {
		return 0, fmt.Errorf("%w: missing keyword %s", ErrFormat, key)
	}
	switch x := v.(type) {
	case int64:
		return x, nil
	case float64:
		if x == float64(int64(x)) {
			return int64(x), nil
		}
	}
	return 0, fmt.Errorf("%w: keyword %s is not an integer (%v)", ErrFormat, key, v)
}

// Float returns a numeric keyword, or def when it is absent.
func Float(cards []card.Card, key string, def float64) (float64, error) {
	v, ok := Lookup(cards, key)
	if !ok {
		return def, nil
	}
	switch x := v.(type) {
	case int64:
		return float64(x), nil
	case float64:
		return x, nil
	}
	return 0, fmt.Errorf("%w: keyword %s is not numeric (%v)", ErrFormat, key, v)
}

// Dims returns the array dimensions in row-major order.
func Dims(cards []card.Card) ([]int, error) {
	naxis, err := Int(cards, KeyNaxis)
	if err != nil {
		return nil, err
	}
	if naxis < 0 || naxis > 999 {
		return nil, fmt.Errorf("%w: NAXIS %d", ErrFormat, naxis)
	}
	dims := make([]int, naxis)
	for i := int64(1); i <= naxis; i++ {
		n, err := Int(cards, fmt.Sprintf("%s%d", KeyNaxis, i))
		if err != nil {
			return nil, err
		}
		if n < 0 {
			return nil, fmt.Errorf("%w: NAXIS%d is negative", ErrFormat, i)
		}
		dims[naxis-i] = int(n)
	}
	return dims, nil
}

// Scan locates every unit in r. Trailing bytes that do not start a new
// unit are ignored.
func Scan(r io.ReaderAt, size int64) ([]*HDU, error) {
	br := binary.NewReader(r, size)
	var units []*HDU

	for br.Remaining() >= binary.BlockSize {
		if len(units) > 0 {
			peek, err := br.At(br.Pos()).ReadBytes(8)
			if err != nil {
				return nil, err
			}
			if !bytes.Equal(peek, []byte("XTENSION")) {
				break
			}
		}

		cards, err := card.DecodeHeader(br)
		if err != nil {
			return nil, fmt.Errorf("%w: unit %d: %v", ErrFormat, len(units), err)
		}
		h := &HDU{Cards: cards, DataOffset: br.Pos()}

		if len(units) == 0 {
			if len(cards) == 0 || cards[0].Key != KeySimple || cards[0].Value != true {
				return nil, fmt.Errorf("%w: primary header does not start with SIMPLE = T", ErrFormat)
			}
			h.Kind = KindPrimary
		} else if h.Kind, err = kindOf(cards); err != nil {
			return nil, fmt.Errorf("unit %d: %w", len(units), err)
		}

		if h.DataSize, err = dataSize(cards); err != nil {
			return nil, fmt.Errorf("unit %d: %w", len(units), err)
		}
		padded := binary.PaddedSize(h.DataSize)
		if padded > br.Remaining() {
			// tolerate a missing final pad, never missing data
			if h.DataSize > br.Remaining() {
				return nil, fmt.Errorf("%w: unit %d: data truncated (%d of %d bytes)",
					ErrFormat, len(units), br.Remaining(), h.DataSize)
			}
			padded = br.Remaining()
		}
		br.Skip(padded)
		units = append(units, h)
	}

	if len(units) == 0 {
		return nil, fmt.Errorf("%w: no primary header", ErrFormat)
	}
	return units, nil
}

func kindOf(cards []card.Card) (Kind, error) {
	if len(cards) == 0 || cards[0].Key != KeyXtension {
		return 0, fmt.Errorf("%w: extension header does not start with XTENSION", ErrFormat)
	}
	name, _ := cards[0].Value.(string)
	switch strings.TrimSpace(name) {
	case "IMAGE":
		return KindImage, nil
	case "BINTABLE":
		return KindBinTable, nil
	case "TABLE":
		return KindASCIITable, nil
	default:
		return 0, fmt.Errorf("%w: unsupported extension type %q", ErrFormat, name)
	}
}

func dataSize(cards []card.Card) (int64, error) {
	if _, ok := Lookup(cards, KeyPcodec); ok {
		n, err := Int(cards, KeyPsize)
		if err != nil {
			return 0, err
		}
		if n < 0 {
			return 0, fmt.Errorf("%w: negative PSIZE", ErrFormat)
		}
		return n, nil
	}

	bitpix, err := Int(cards, KeyBitpix)
	if err != nil {
		return 0, err
	}
	elem := bitpix
	if elem < 0 {
		elem = -elem
	}
	if elem != 8 && elem != 16 && elem != 32 && elem != 64 {
		return 0, fmt.Errorf("%w: BITPIX %d", ErrFormat, bitpix)
	}
	dims, err := Dims(cards)
	if err != nil {
		return 0, err
	}
	if len(dims) == 0 {
		return 0, nil
	}

	pcount := int64(0)
	if v, err := Int(cards, KeyPcount); err == nil {
		pcount = v
	}
	gcount := int64(1)
	if v, err := Int(cards, KeyGcount); err == nil {
		gcount = v
	}

	n := int64(1)
	for _, d := range dims {
		n *= int64(d)
	}
	return elem / 8 * gcount * (pcount + n), nil
}
