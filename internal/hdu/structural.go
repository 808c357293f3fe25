package hdu

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/robert-malhotra/go-mef/internal/card"
)

var structuralKeys = map[string]bool{
	KeySimple:   true,
	KeyXtension: true,
	KeyBitpix:   true,
	KeyNaxis:    true,
	KeyPcount:   true,
	KeyGcount:   true,
	KeyExtend:   true,
	KeyTfields:  true,
	KeyBscale:   true,
	KeyBzero:    true,
	KeyPcodec:   true,
	KeyPsize:    true,
	KeyDatahash: true,
	card.KeyEnd: true,
}

var indexedStructural = []string{"NAXIS", "TTYPE", "TFORM", "TUNIT", "TBCOL", "TSCAL", "TZERO", "TNULL", "TDISP", "TDIM"}

// IsStructural reports whether key is owned by the format layer and must be
// regenerated rather than copied when a unit is written.
func IsStructural(key string) bool {
	if structuralKeys[key] {
		return true
	}
	for _, prefix := range indexedStructural {
		if rest, ok := strings.CutPrefix(key, prefix); ok && rest != "" {
			if _, err := strconv.Atoi(rest); err == nil {
				return true
			}
		}
	}
	return false
}

// UserCards returns the cards of h that are not structural.
func UserCards(cards []card.Card) []card.Card {
	out := make([]card.Card, 0, len(cards))
	for _, c := range cards {
		if !IsStructural(c.Key) {
			out = append(out, c)
		}
	}
	return out
}

// PrimaryCards returns the structural cards of a primary unit. dims is in
// row-major order and may be empty.
func PrimaryCards(bitpix int, dims []int) []card.Card {
	cards := []card.Card{
		{Key: KeySimple, Value: true, Comment: "conforms to the container standard"},
		{Key: KeyBitpix, Value: int64(bitpix), Comment: "array data type"},
	}
	cards = append(cards, axisCards(dims)...)
	cards = append(cards, card.Card{Key: KeyExtend, Value: true, Comment: "extensions may be present"})
	return cards
}

// ImageCards returns the structural cards of an image extension.
func ImageCards(bitpix int, dims []int) []card.Card {
	cards := []card.Card{
		{Key: KeyXtension, Value: "IMAGE", Comment: "image extension"},
		{Key: KeyBitpix, Value: int64(bitpix), Comment: "array data type"},
	}
	cards = append(cards, axisCards(dims)...)
	cards = append(cards,
		card.Card{Key: KeyPcount, Value: int64(0), Comment: "number of parameters"},
		card.Card{Key: KeyGcount, Value: int64(1), Comment: "number of groups"},
	)
	return cards
}

func axisCards(dims []int) []card.Card {
	cards := []card.Card{{Key: KeyNaxis, Value: int64(len(dims)), Comment: "number of array dimensions"}}
	for i := len(dims) - 1; i >= 0; i-- {
		cards = append(cards, card.Card{
			Key:   fmt.Sprintf("%s%d", KeyNaxis, len(dims)-i),
			Value: int64(dims[i]),
		})
	}
	return cards
}

// ScaleCards returns BSCALE/BZERO cards when bzero is non-zero.
func ScaleCards(bzero float64) []card.Card {
	if bzero == 0 {
		return nil
	}
	return []card.Card{
		{Key: KeyBscale, Value: 1.0},
		{Key: KeyBzero, Value: bzero},
	}
}
