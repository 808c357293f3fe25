package hdu

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/robert-malhotra/go-mef/internal/card"
)

// DecodeASCIITable decodes a text table payload. Aw columns decode to
// []string, Iw to []int64 and Fw.d/Ew.d/Dw.d to []float64.
func DecodeASCIITable(cards []card.Card, data []byte) ([]Column, error) {
	rowLen, err := Int(cards, "NAXIS1")
	if err != nil {
		return nil, err
	}
	rows, err := Int(cards, "NAXIS2")
	if err != nil {
		return nil, err
	}
	nfields, err := Int(cards, KeyTfields)
	if err != nil {
		return nil, err
	}
	if int64(len(data)) < rowLen*rows {
		return nil, fmt.Errorf("%w: table payload has %d bytes, need %d", ErrFormat, len(data), rowLen*rows)
	}

	cols := make([]Column, nfields)
	for i := range cols {
		name, unit := columnHeader(cards, i+1)
		cols[i] = Column{Name: name, Unit: unit}

		bcol, err := Int(cards, fmt.Sprintf("TBCOL%d", i+1))
		if err != nil {
			return nil, err
		}
		v, _ := Lookup(cards, fmt.Sprintf("TFORM%d", i+1))
		form, _ := v.(string)
		form = strings.TrimSpace(form)
		if len(form) < 2 {
			return nil, fmt.Errorf("%w: TFORM%d %q", ErrFormat, i+1, form)
		}
		widthText := form[1:]
		if dot := strings.IndexByte(widthText, '.'); dot >= 0 {
			widthText = widthText[:dot]
		}
		width, err := strconv.Atoi(widthText)
		if err != nil || width <= 0 {
			return nil, fmt.Errorf("%w: TFORM%d %q", ErrFormat, i+1, form)
		}
		start := int(bcol) - 1
		if start < 0 || int64(start+width) > rowLen {
			return nil, fmt.Errorf("%w: column %d exceeds row width", ErrFormat, i+1)
		}

		field := func(r int) string {
			off := r*int(rowLen) + start
			return string(bytes.TrimRight(data[off:off+width], " \x00"))
		}

		n := int(rows)
		switch form[0] {
		case 'A':
			out := make([]string, n)
			for r := range out {
				out[r] = field(r)
			}
			cols[i].Data = out
		case 'I':
			out := make([]int64, n)
			for r := range out {
				s := strings.TrimSpace(field(r))
				if s == "" {
					continue
				}
				if out[r], err = strconv.ParseInt(s, 10, 64); err != nil {
					return nil, fmt.Errorf("%w: column %d row %d: %v", ErrFormat, i+1, r, err)
				}
			}
			cols[i].Data = out
		case 'F', 'E', 'D':
			out := make([]float64, n)
			for r := range out {
				s := strings.TrimSpace(strings.ReplaceAll(field(r), "D", "E"))
				if s == "" {
					continue
				}
				if out[r], err = strconv.ParseFloat(s, 64); err != nil {
					return nil, fmt.Errorf("%w: column %d row %d: %v", ErrFormat, i+1, r, err)
				}
			}
			cols[i].Data = out
		default:
			return nil, fmt.Errorf("%w: unsupported TFORM%d %q", ErrFormat, i+1, form)
		}
	}
	return cols, nil
}

// EncodeASCIITable encodes string columns as a text table. It returns the
// structural cards and the unpadded payload.
func EncodeASCIITable(cols []Column) ([]card.Card, []byte, error) {
	rows, err := rowCount(cols)
	if err != nil {
		return nil, nil, err
	}

	widths := make([]int, len(cols))
	rowLen := 0
	for i, c := range cols {
		values, ok := c.Data.([]string)
		if !ok {
			return nil, nil, fmt.Errorf("column %q: text tables hold strings only, got %T", c.Name, c.Data)
		}
		w := 1
		for _, s := range values {
			for j := 0; j < len(s); j++ {
				if s[j] < 0x20 || s[j] > 0x7e {
					return nil, nil, fmt.Errorf("column %q: non-printable byte 0x%02x", c.Name, s[j])
				}
			}
			w = max(w, len(s))
		}
		widths[i] = w
		rowLen += w
	}

	cards := []card.Card{
		{Key: KeyXtension, Value: "TABLE", Comment: "text table extension"},
		{Key: KeyBitpix, Value: int64(8)},
		{Key: KeyNaxis, Value: int64(2)},
		{Key: "NAXIS1", Value: int64(rowLen), Comment: "width of table in characters"},
		{Key: "NAXIS2", Value: int64(rows), Comment: "number of rows"},
		{Key: KeyPcount, Value: int64(0)},
		{Key: KeyGcount, Value: int64(1)},
		{Key: KeyTfields, Value: int64(len(cols))},
	}
	col := 1
	for i, c := range cols {
		cards = append(cards,
			card.Card{Key: fmt.Sprintf("TTYPE%d", i+1), Value: c.Name},
			card.Card{Key: fmt.Sprintf("TBCOL%d", i+1), Value: int64(col)},
			card.Card{Key: fmt.Sprintf("TFORM%d", i+1), Value: fmt.Sprintf("A%d", widths[i])},
		)
		col += widths[i]
	}

	data := bytes.Repeat([]byte{' '}, rows*rowLen)
	offset := 0
	for i, c := range cols {
		values := c.Data.([]string)
		for r, s := range values {
			copy(data[r*rowLen+offset:], s)
		}
		offset += widths[i]
	}
	return cards, data, nil
}
