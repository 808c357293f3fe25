package mef

import (
	"fmt"
	"strings"

	"github.com/robert-malhotra/go-mef/internal/card"
)

// Card is one keyword/value/comment triple. Values are string, bool,
// int64, float64 or nil.
type Card = card.Card

// Header is an ordered list of cards. Keywords are case-insensitive and
// stored upper-case. COMMENT and HISTORY cards may repeat; every other
// keyword appears at most once.
type Header struct {
	cards []Card
}

// NewHeader creates a header holding the given cards.
func NewHeader(cards ...Card) *Header {
	h := &Header{}
	for _, c := range cards {
		if card.IsCommentary(strings.ToUpper(c.Key)) {
			h.Add(c.Key, c.Value)
			continue
		}
		h.Set(c.Key, c.Value, c.Comment)
	}
	return h
}

func normKey(key string) string {
	return strings.ToUpper(strings.TrimSpace(key))
}

// Len returns the number of cards.
func (h *Header) Len() int {
	if h == nil {
		return 0
	}
	return len(h.cards)
}

// Cards returns a copy of the cards in order.
func (h *Header) Cards() []Card {
	if h == nil {
		return nil
	}
	return append([]Card(nil), h.cards...)
}

// Keys returns the distinct keywords in first-appearance order.
func (h *Header) Keys() []string {
	if h == nil {
		return nil
	}
	seen := make(map[string]bool, len(h.cards))
	var keys []string
	for _, c := range h.cards {
		if !seen[c.Key] {
			seen[c.Key] = true
			keys = append(keys, c.Key)
		}
	}
	return keys
}

func (h *Header) index(key string) int {
	if h == nil {
		return -1
	}
	key = normKey(key)
	for i, c := range h.cards {
		if c.Key == key {
			return i
		}
	}
	return -1
}

// Has reports whether key is present.
func (h *Header) Has(key string) bool {
	return h.index(key) >= 0
}

// Lookup returns the value of key and whether it was present.
func (h *Header) Lookup(key string) (any, bool) {
	i := h.index(key)
	if i < 0 {
		return nil, false
	}
	return h.cards[i].Value, true
}

// Get returns the value of key, or an error wrapping ErrKeyNotFound.
func (h *Header) Get(key string) (any, error) {
	v, ok := h.Lookup(key)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrKeyNotFound, normKey(key))
	}
	return v, nil
}

// Comment returns the comment of key.
func (h *Header) Comment(key string) string {
	i := h.index(key)
	if i < 0 {
		return ""
	}
	return h.cards[i].Comment
}

// String returns a string keyword.
func (h *Header) String(key string) (string, error) {
	v, err := h.Get(key)
	if err != nil {
		return "", err
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("%w: keyword %s is %T, not a string", ErrTypeConstraint, normKey(key), v)
	}
	return s, nil
}

// Int returns an integer keyword.
func (h *Header) Int(key string) (int64, error) {
	v, err := h.Get(key)
	if err != nil {
		return 0, err
	}
	switch x := v.(type) {
	case int64:
		return x, nil
	case float64:
		if x == float64(int64(x)) {
			return int64(x), nil
		}
	}
	return 0, fmt.Errorf("%w: keyword %s is %v, not an integer", ErrTypeConstraint, normKey(key), v)
}

// Float returns a numeric keyword.
func (h *Header) Float(key string) (float64, error) {
	v, err := h.Get(key)
	if err != nil {
		return 0, err
	}
	switch x := v.(type) {
	case int64:
		return float64(x), nil
	case float64:
		return x, nil
	}
	return 0, fmt.Errorf("%w: keyword %s is %v, not numeric", ErrTypeConstraint, normKey(key), v)
}

// Bool returns a logical keyword.
func (h *Header) Bool(key string) (bool, error) {
	v, err := h.Get(key)
	if err != nil {
		return false, err
	}
	b, ok := v.(bool)
	if !ok {
		return false, fmt.Errorf("%w: keyword %s is %v, not logical", ErrTypeConstraint, normKey(key), v)
	}
	return b, nil
}

// Set assigns value to key. An existing card keeps its position; its
// comment is replaced only when one is given. A new card is appended.
// Commentary keywords always append.
func (h *Header) Set(key string, value any, comment ...string) {
	key = normKey(key)
	value = card.Normalize(value)
	if card.IsCommentary(key) {
		h.Add(key, value)
		return
	}
	c := Card{Key: key, Value: value}
	if len(comment) > 0 {
		c.Comment = comment[0]
	}
	if i := h.index(key); i >= 0 {
		if len(comment) == 0 {
			c.Comment = h.cards[i].Comment
		}
		h.cards[i] = c
		return
	}
	h.cards = append(h.cards, c)
}

// Add appends a card without replacing existing cards of the same key.
func (h *Header) Add(key string, value any) {
	h.cards = append(h.cards, Card{Key: normKey(key), Value: card.Normalize(value)})
}

// Delete removes every card named key and reports whether any existed.
func (h *Header) Delete(key string) bool {
	if h == nil {
		return false
	}
	key = normKey(key)
	kept := h.cards[:0]
	removed := false
	for _, c := range h.cards {
		if c.Key == key {
			removed = true
			continue
		}
		kept = append(kept, c)
	}
	h.cards = kept
	return removed
}

// Update sets every card of other on h; commentary cards are appended.
func (h *Header) Update(other *Header) {
	for _, c := range other.Cards() {
		if card.IsCommentary(c.Key) {
			h.Add(c.Key, c.Value)
			continue
		}
		h.Set(c.Key, c.Value, c.Comment)
	}
}

// Clone returns a deep copy.
func (h *Header) Clone() *Header {
	if h == nil {
		return &Header{}
	}
	return &Header{cards: append([]Card(nil), h.cards...)}
}

// Equal reports whether both headers hold the same cards in the same order,
// ignoring the given keywords.
func (h *Header) Equal(other *Header, ignore ...string) bool {
	skip := make(map[string]bool, len(ignore))
	for _, k := range ignore {
		skip[normKey(k)] = true
	}
	filter := func(cards []Card) []Card {
		out := cards[:0:0]
		for _, c := range cards {
			if !skip[c.Key] {
				out = append(out, c)
			}
		}
		return out
	}
	a, b := filter(h.Cards()), filter(other.Cards())
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Key != b[i].Key || a[i].Value != b[i].Value {
			return false
		}
	}
	return true
}
