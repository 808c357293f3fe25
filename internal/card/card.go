package card

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Width is the fixed size of one card in bytes.
const Width = 80

// TextWidth is the room left for commentary text after the keyword field.
const TextWidth = Width - 8

// Card keyword constants used across the format layers.
const (
	KeyEnd     = "END"
	KeyComment = "COMMENT"
	KeyHistory = "HISTORY"
)

// ErrInvalidCard is returned for cards that cannot be decoded or encoded.
var ErrInvalidCard = errors.New("invalid header card")

// Card is a single keyword record.
type Card struct {
	Key     string
	Value   any
	Comment string
}

// IsCommentary reports whether key names a free-text card that may repeat.
func IsCommentary(key string) bool {
	return key == KeyComment || key == KeyHistory || key == ""
}

// ValidKey reports whether key can be stored in the 8-byte keyword field.
func ValidKey(key string) bool {
	if len(key) > 8 {
		return false
	}
	for _, r := range key {
		switch {
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
		default:
			return false
		}
	}
	return true
}

// Parse decodes one card.
func Parse(raw []byte) (Card, error) {
	if len(raw) != Width {
		return Card{}, fmt.Errorf("%w: length %d", ErrInvalidCard, len(raw))
	}
	for _, b := range raw {
		if b < 0x20 || b > 0x7e {
			return Card{}, fmt.Errorf("%w: non-ASCII byte 0x%02x", ErrInvalidCard, b)
		}
	}
	text := string(raw)
	key := strings.TrimRight(text[:8], " ")

	if IsCommentary(key) || text[8:10] != "= " {
		return Card{Key: key, Value: strings.TrimRight(text[8:], " ")}, nil
	}

	rest := strings.TrimLeft(text[10:], " ")
	if strings.HasPrefix(rest, "'") {
		value, after, err := parseString(rest)
		if err != nil {
			return Card{}, fmt.Errorf("%w: keyword %s: %v", ErrInvalidCard, key, err)
		}
		return Card{Key: key, Value: value, Comment: parseComment(after)}, nil
	}

	token := rest
	comment := ""
	if i := strings.IndexByte(rest, '/'); i >= 0 {
		token = rest[:i]
		comment = parseComment(rest[i:])
	}
	token = strings.TrimSpace(token)

	value, err := parseValue(token)
	if err != nil {
		return Card{}, fmt.Errorf("%w: keyword %s: %v", ErrInvalidCard, key, err)
	}
	return Card{Key: key, Value: value, Comment: comment}, nil
}

// parseString decodes a quoted string starting at s[0] and returns the
// unconsumed remainder.
func parseString(s string) (string, string, error) {
	var b strings.Builder
	for i := 1; i < len(s); i++ {
		if s[i] != '\'' {
			b.WriteByte(s[i])
			continue
		}
		if i+1 < len(s) && s[i+1] == '\'' {
			b.WriteByte('\'')
			i++
			continue
		}
		return strings.TrimRight(b.String(), " "), s[i+1:], nil
	}
	return "", "", errors.New("unterminated string")
}

func parseComment(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "/") {
		return ""
	}
	return strings.TrimSpace(s[1:])
}

func parseValue(token string) (any, error) {
	switch token {
	case "":
		return nil, nil
	case "T":
		return true, nil
	case "F":
		return false, nil
	}
	if i, err := strconv.ParseInt(token, 10, 64); err == nil {
		return i, nil
	}
	normalized := strings.NewReplacer("D", "E", "d", "e").Replace(token)
	if f, err := strconv.ParseFloat(normalized, 64); err == nil {
		return f, nil
	}
	if strings.HasPrefix(token, "(") {
		// complex values are kept verbatim
		return token, nil
	}
	return nil, fmt.Errorf("cannot decode value %q", token)
}

// Format encodes one card.
func Format(c Card) ([]byte, error) {
	if !ValidKey(c.Key) {
		return nil, fmt.Errorf("%w: keyword %q", ErrInvalidCard, c.Key)
	}

	var b strings.Builder
	b.WriteString(fmt.Sprintf("%-8s", c.Key))

	if IsCommentary(c.Key) || c.Key == KeyEnd {
		text := ""
		if c.Value != nil {
			text = fmt.Sprint(c.Value)
		}
		if !printable(text) {
			return nil, fmt.Errorf("%w: keyword %s: non-ASCII text", ErrInvalidCard, c.Key)
		}
		if len(text) > TextWidth {
			return nil, fmt.Errorf("%w: keyword %s: %d characters of text, at most %d fit", ErrInvalidCard, c.Key, len(text), TextWidth)
		}
		b.WriteString(text)
		return pad(b.String())
	}

	b.WriteString("= ")
	field, err := formatValue(c.Value)
	if err != nil {
		return nil, fmt.Errorf("%w: keyword %s: %v", ErrInvalidCard, c.Key, err)
	}
	if len(field) > Width-10 {
		return nil, fmt.Errorf("%w: keyword %s: value too long", ErrInvalidCard, c.Key)
	}
	b.WriteString(field)
	if c.Comment != "" {
		if !printable(c.Comment) {
			return nil, fmt.Errorf("%w: keyword %s: non-ASCII comment", ErrInvalidCard, c.Key)
		}
		b.WriteString(" / ")
		b.WriteString(c.Comment)
	}
	if b.Len() > Width {
		return nil, fmt.Errorf("%w: keyword %s: comment overflows the card by %d characters", ErrInvalidCard, c.Key, b.Len()-Width)
	}
	return pad(b.String())
}

// Wrap splits the text of a commentary card over as many cards as it
// needs. Other cards are returned unchanged.
func Wrap(c Card) []Card {
	text, ok := c.Value.(string)
	if !IsCommentary(c.Key) || !ok || len(text) <= TextWidth {
		return []Card{c}
	}
	var out []Card
	for len(text) > TextWidth {
		out = append(out, Card{Key: c.Key, Value: text[:TextWidth]})
		text = text[TextWidth:]
	}
	return append(out, Card{Key: c.Key, Value: text})
}

func printable(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < 0x20 || s[i] > 0x7e {
			return false
		}
	}
	return true
}

func formatValue(v any) (string, error) {
	switch x := v.(type) {
	case nil:
		return strings.Repeat(" ", 20), nil
	case string:
		for _, r := range x {
			if r < 0x20 || r > 0x7e {
				return "", fmt.Errorf("non-ASCII string value")
			}
		}
		escaped := strings.ReplaceAll(x, "'", "''")
		return fmt.Sprintf("%-20s", fmt.Sprintf("'%-8s'", escaped)), nil
	case bool:
		if x {
			return fmt.Sprintf("%20s", "T"), nil
		}
		return fmt.Sprintf("%20s", "F"), nil
	case int:
		return fmt.Sprintf("%20d", x), nil
	case int64:
		return fmt.Sprintf("%20d", x), nil
	case int32:
		return fmt.Sprintf("%20d", x), nil
	case uint16:
		return fmt.Sprintf("%20d", x), nil
	case float32:
		return formatFloat(float64(x))
	case float64:
		return formatFloat(x)
	default:
		return "", fmt.Errorf("unsupported value type %T", v)
	}
}

func formatFloat(f float64) (string, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return "", fmt.Errorf("non-finite value %v", f)
	}
	s := strconv.FormatFloat(f, 'G', -1, 64)
	if !strings.ContainsAny(s, ".E") {
		s += ".0"
	}
	return fmt.Sprintf("%20s", s), nil
}

func pad(s string) ([]byte, error) {
	if len(s) > Width {
		return nil, fmt.Errorf("%w: %d characters", ErrInvalidCard, len(s))
	}
	return []byte(fmt.Sprintf("%-80s", s)), nil
}

// Normalize converts Go numeric kinds to the canonical decoded types so that
// values compare equal before and after a round trip.
func Normalize(v any) any {
	switch x := v.(type) {
	case int:
		return int64(x)
	case int32:
		return int64(x)
	case uint16:
		return int64(x)
	case float32:
		return float64(x)
	default:
		return v
	}
}
