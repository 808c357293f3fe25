package hdu

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/robert-malhotra/go-mef/internal/card"
)

// Column is one decoded table column. Data holds one of []float64,
// []float32, []int64, []int32, []int16, []uint8, []bool or []string.
type Column struct {
	Name string
	Unit string
	Data any
}

// Len returns the number of rows in the column.
func (c Column) Len() int {
	switch d := c.Data.(type) {
	case []float64:
		return len(d)
	case []float32:
		return len(d)
	case []int64:
		return len(d)
	case []int32:
		return len(d)
	case []int16:
		return len(d)
	case []uint8:
		return len(d)
	case []bool:
		return len(d)
	case []string:
		return len(d)
	default:
		return 0
	}
}

type binField struct {
	code   byte
	repeat int
	width  int
}

func parseTForm(form string) (binField, error) {
	form = strings.TrimSpace(form)
	i := 0
	for i < len(form) && form[i] >= '0' && form[i] <= '9' {
		i++
	}
	if i == len(form) {
		return binField{}, fmt.Errorf("%w: TFORM %q", ErrFormat, form)
	}
	repeat := 1
	if i > 0 {
		var err error
		if repeat, err = strconv.Atoi(form[:i]); err != nil {
			return binField{}, fmt.Errorf("%w: TFORM %q", ErrFormat, form)
		}
	}
	f := binField{code: form[i], repeat: repeat}
	size := map[byte]int{'L': 1, 'B': 1, 'I': 2, 'J': 4, 'K': 8, 'E': 4, 'D': 8, 'A': 1}[f.code]
	if size == 0 {
		return binField{}, fmt.Errorf("%w: unsupported TFORM %q", ErrFormat, form)
	}
	if f.code != 'A' && repeat != 1 {
		return binField{}, fmt.Errorf("%w: unsupported vector column TFORM %q", ErrFormat, form)
	}
	f.width = size * repeat
	return f, nil
}

func columnHeader(cards []card.Card, i int) (name, unit string) {
	if v, ok := Lookup(cards, fmt.Sprintf("TTYPE%d", i)); ok {
		name, _ = v.(string)
	}
	if v, ok := Lookup(cards, fmt.Sprintf("TUNIT%d", i)); ok {
		unit, _ = v.(string)
	}
	if name == "" {
		name = fmt.Sprintf("col%d", i)
	}
	return name, unit
}

// DecodeBinTable decodes a binary table payload.
func DecodeBinTable(cards []card.Card, data []byte) ([]Column, error) {
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

	fields := make([]binField, nfields)
	total := 0
	for i := range fields {
		v, ok := Lookup(cards, fmt.Sprintf("TFORM%d", i+1))
		form, _ := v.(string)
		if !ok {
			return nil, fmt.Errorf("%w: missing TFORM%d", ErrFormat, i+1)
		}
		if fields[i], err = parseTForm(form); err != nil {
			return nil, err
		}
		total += fields[i].width
	}
	if int64(total) != rowLen {
		return nil, fmt.Errorf("%w: column widths sum to %d, NAXIS1 is %d", ErrFormat, total, rowLen)
	}

	cols := make([]Column, nfields)
	offset := 0
	be := binary.BigEndian
	for i, f := range fields {
		name, unit := columnHeader(cards, i+1)
		cols[i] = Column{Name: name, Unit: unit}
		n := int(rows)
		at := func(r int) []byte {
			start := r*int(rowLen) + offset
			return data[start : start+f.width]
		}
		switch f.code {
		case 'L':
			out := make([]bool, n)
			for r := range out {
				out[r] = at(r)[0] == 'T'
			}
			cols[i].Data = out
		case 'B':
			out := make([]uint8, n)
			for r := range out {
				out[r] = at(r)[0]
			}
			cols[i].Data = out
		case 'I':
			out := make([]int16, n)
			for r := range out {
				out[r] = int16(be.Uint16(at(r)))
			}
			cols[i].Data = out
		case 'J':
			out := make([]int32, n)
			for r := range out {
				out[r] = int32(be.Uint32(at(r)))
			}
			cols[i].Data = out
		case 'K':
			out := make([]int64, n)
			for r := range out {
				out[r] = int64(be.Uint64(at(r)))
			}
			cols[i].Data = out
		case 'E':
			out := make([]float32, n)
			for r := range out {
				out[r] = math.Float32frombits(be.Uint32(at(r)))
			}
			cols[i].Data = out
		case 'D':
			out := make([]float64, n)
			for r := range out {
				out[r] = math.Float64frombits(be.Uint64(at(r)))
			}
			cols[i].Data = out
		case 'A':
			out := make([]string, n)
			for r := range out {
				out[r] = strings.TrimRight(string(bytes.TrimRight(at(r), "\x00")), " ")
			}
			cols[i].Data = out
		}
		offset += f.width
	}
	return cols, nil
}

// EncodeBinTable encodes columns as a binary table. It returns the
// structural cards and the unpadded payload.
func EncodeBinTable(cols []Column) ([]card.Card, []byte, error) {
	rows, err := rowCount(cols)
	if err != nil {
		return nil, nil, err
	}

	forms := make([]binField, len(cols))
	rowLen := 0
	for i, c := range cols {
		var f binField
		switch d := c.Data.(type) {
		case []bool:
			f = binField{code: 'L', repeat: 1, width: 1}
		case []uint8:
			f = binField{code: 'B', repeat: 1, width: 1}
		case []int16:
			f = binField{code: 'I', repeat: 1, width: 2}
		case []int32:
			f = binField{code: 'J', repeat: 1, width: 4}
		case []int64:
			f = binField{code: 'K', repeat: 1, width: 8}
		case []float32:
			f = binField{code: 'E', repeat: 1, width: 4}
		case []float64:
			f = binField{code: 'D', repeat: 1, width: 8}
		case []string:
			w := 1
			for _, s := range d {
				w = max(w, len(s))
			}
			f = binField{code: 'A', repeat: w, width: w}
		default:
			return nil, nil, fmt.Errorf("column %q: unsupported type %T", c.Name, c.Data)
		}
		forms[i] = f
		rowLen += f.width
	}

	cards := []card.Card{
		{Key: KeyXtension, Value: "BINTABLE", Comment: "binary table extension"},
		{Key: KeyBitpix, Value: int64(8)},
		{Key: KeyNaxis, Value: int64(2)},
		{Key: "NAXIS1", Value: int64(rowLen), Comment: "width of table in bytes"},
		{Key: "NAXIS2", Value: int64(rows), Comment: "number of rows"},
		{Key: KeyPcount, Value: int64(0)},
		{Key: KeyGcount, Value: int64(1)},
		{Key: KeyTfields, Value: int64(len(cols))},
	}
	for i, c := range cols {
		form := string(forms[i].code)
		if forms[i].code == 'A' {
			form = fmt.Sprintf("%dA", forms[i].repeat)
		}
		cards = append(cards,
			card.Card{Key: fmt.Sprintf("TTYPE%d", i+1), Value: c.Name},
			card.Card{Key: fmt.Sprintf("TFORM%d", i+1), Value: form},
		)
		if c.Unit != "" {
			cards = append(cards, card.Card{Key: fmt.Sprintf("TUNIT%d", i+1), Value: c.Unit})
		}
	}

	data := make([]byte, rows*rowLen)
	be := binary.BigEndian
	offset := 0
	for i, c := range cols {
		f := forms[i]
		for r := 0; r < rows; r++ {
			field := data[r*rowLen+offset : r*rowLen+offset+f.width]
			switch d := c.Data.(type) {
			case []bool:
				field[0] = 'F'
				if d[r] {
					field[0] = 'T'
				}
			case []uint8:
				field[0] = d[r]
			case []int16:
				be.PutUint16(field, uint16(d[r]))
			case []int32:
				be.PutUint32(field, uint32(d[r]))
			case []int64:
				be.PutUint64(field, uint64(d[r]))
			case []float32:
				be.PutUint32(field, math.Float32bits(d[r]))
			case []float64:
				be.PutUint64(field, math.Float64bits(d[r]))
			case []string:
				copy(field, d[r])
			}
		}
		offset += f.width
	}
	return cards, data, nil
}

func rowCount(cols []Column) (int, error) {
	if len(cols) == 0 {
		return 0, fmt.Errorf("table has no columns")
	}
	rows := cols[0].Len()
	for _, c := range cols[1:] {
		if c.Len() != rows {
			return 0, fmt.Errorf("column %q has %d rows, expected %d", c.Name, c.Len(), rows)
		}
	}
	return rows, nil
}
