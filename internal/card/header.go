package card

import (
	"bytes"
	"fmt"

	"github.com/robert-malhotra/go-mef/internal/binary"
)

// DecodeHeader reads cards block by block from r until the END card and
// returns them without END. The reader is left at the start of the data
// that follows the header.
func DecodeHeader(r *binary.Reader) ([]Card, error) {
	var cards []Card
	for {
		block, err := r.ReadBlock()
		if err != nil {
			return nil, fmt.Errorf("reading header block: %w", err)
		}
		for off := 0; off < binary.BlockSize; off += Width {
			raw := block[off : off+Width]
			if isEnd(raw) {
				return cards, nil
			}
			c, err := Parse(raw)
			if err != nil {
				return nil, err
			}
			if c.Key == "" && c.Value == "" {
				// blank filler card
				continue
			}
			cards = append(cards, c)
		}
	}
}

func isEnd(raw []byte) bool {
	return bytes.Equal(bytes.TrimRight(raw, " "), []byte(KeyEnd))
}

// EncodeHeader formats cards followed by END and pads the result with
// spaces to whole blocks. Long commentary text continues on further cards
// with the same keyword.
func EncodeHeader(cards []Card) ([]byte, error) {
	var buf bytes.Buffer
	w := binary.NewWriter(&buf)
	for _, c := range cards {
		for _, part := range Wrap(c) {
			raw, err := Format(part)
			if err != nil {
				return nil, err
			}
			if err := w.WriteBytes(raw); err != nil {
				return nil, err
			}
		}
	}
	end, _ := Format(Card{Key: KeyEnd})
	if err := w.WriteBytes(end); err != nil {
		return nil, err
	}
	if err := w.PadBlock(' '); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
