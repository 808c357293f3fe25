package mef

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// Section is an N-dimensional box: axis d spans [Start[d], Stop[d]).
// Axes are in array order, slowest first.
type Section struct {
	Start []int
	Stop  []int
}

// NewSection builds a section from (start, stop) pairs in array order.
func NewSection(bounds ...int) (Section, error) {
	if len(bounds)%2 != 0 {
		return Section{}, fmt.Errorf("section needs start/stop pairs, got %d values", len(bounds))
	}
	s := Section{}
	for i := 0; i < len(bounds); i += 2 {
		if bounds[i] > bounds[i+1] || bounds[i] < 0 {
			return Section{}, fmt.Errorf("invalid section bounds %d:%d", bounds[i], bounds[i+1])
		}
		s.Start = append(s.Start, bounds[i])
		s.Stop = append(s.Stop, bounds[i+1])
	}
	return s, nil
}

// FromShape returns the section covering a whole array.
func FromShape(shape []int) Section {
	return Section{Start: make([]int, len(shape)), Stop: slices.Clone(shape)}
}

// ParseSection parses an IRAF-style section "[x1:x2,y1:y2]" with 1-based
// inclusive bounds, fastest axis first.
func ParseSection(text string) (Section, error) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "[") || !strings.HasSuffix(text, "]") {
		return Section{}, fmt.Errorf("section %q is not enclosed in brackets", text)
	}
	parts := strings.Split(text[1:len(text)-1], ",")
	s := Section{Start: make([]int, len(parts)), Stop: make([]int, len(parts))}
	for i, p := range parts {
		lo, hi, ok := strings.Cut(strings.TrimSpace(p), ":")
		if !ok {
			return Section{}, fmt.Errorf("section %q: axis %d has no range", text, i+1)
		}
		a, err := strconv.Atoi(strings.TrimSpace(lo))
		if err != nil {
			return Section{}, fmt.Errorf("section %q: %w", text, err)
		}
		b, err := strconv.Atoi(strings.TrimSpace(hi))
		if err != nil {
			return Section{}, fmt.Errorf("section %q: %w", text, err)
		}
		if a < 1 || b < a {
			return Section{}, fmt.Errorf("section %q: invalid range %d:%d", text, a, b)
		}
		d := len(parts) - 1 - i
		s.Start[d] = a - 1
		s.Stop[d] = b
	}
	return s, nil
}

// IRAF formats the section as "[x1:x2,y1:y2]".
func (s Section) IRAF() string {
	parts := make([]string, s.NDim())
	for i := range parts {
		d := s.NDim() - 1 - i
		parts[i] = fmt.Sprintf("%d:%d", s.Start[d]+1, s.Stop[d])
	}
	return "[" + strings.Join(parts, ",") + "]"
}

func (s Section) String() string {
	parts := make([]string, s.NDim())
	for d := range parts {
		parts[d] = fmt.Sprintf("%d:%d", s.Start[d], s.Stop[d])
	}
	return "Section(" + strings.Join(parts, ", ") + ")"
}

// NDim returns the number of axes.
func (s Section) NDim() int {
	return len(s.Start)
}

// Shape returns the extent along each axis.
func (s Section) Shape() []int {
	return s.count()
}

func (s Section) count() []int {
	out := make([]int, len(s.Start))
	for d := range out {
		out[d] = s.Stop[d] - s.Start[d]
	}
	return out
}

// Size returns the number of elements in the section.
func (s Section) Size() int {
	n := 1
	for _, c := range s.count() {
		n *= c
	}
	return n
}

// Contains reports whether o lies entirely within s.
func (s Section) Contains(o Section) bool {
	if s.NDim() != o.NDim() {
		return false
	}
	for d := range s.Start {
		if o.Start[d] < s.Start[d] || o.Stop[d] > s.Stop[d] {
			return false
		}
	}
	return true
}

// Overlap returns the intersection of s and o and whether it is non-empty.
func (s Section) Overlap(o Section) (Section, bool) {
	if s.NDim() != o.NDim() {
		return Section{}, false
	}
	out := Section{Start: make([]int, s.NDim()), Stop: make([]int, s.NDim())}
	for d := range s.Start {
		out.Start[d] = max(s.Start[d], o.Start[d])
		out.Stop[d] = min(s.Stop[d], o.Stop[d])
		if out.Start[d] >= out.Stop[d] {
			return Section{}, false
		}
	}
	return out, true
}

// Shift returns s moved by delta along each axis.
func (s Section) Shift(delta ...int) (Section, error) {
	if len(delta) != s.NDim() {
		return Section{}, fmt.Errorf("%w: shift of %d axes for a %d-axis section", ErrDimension, len(delta), s.NDim())
	}
	out := Section{Start: slices.Clone(s.Start), Stop: slices.Clone(s.Stop)}
	for d, v := range delta {
		out.Start[d] += v
		out.Stop[d] += v
	}
	return out, nil
}

// IsSameSize reports whether s and o have the same shape.
func (s Section) IsSameSize(o Section) bool {
	return slices.Equal(s.count(), o.count())
}

// Equal reports whether s and o have identical bounds.
func (s Section) Equal(o Section) bool {
	return slices.Equal(s.Start, o.Start) && slices.Equal(s.Stop, o.Stop)
}

func (s Section) check(shape []int) error {
	if s.NDim() != len(shape) {
		return fmt.Errorf("%w: %d-axis section for a %d-axis array", ErrDimension, s.NDim(), len(shape))
	}
	if len(s.Stop) != len(s.Start) {
		return fmt.Errorf("section has %d starts and %d stops", len(s.Start), len(s.Stop))
	}
	for d := range shape {
		if s.Start[d] < 0 || s.Stop[d] > shape[d] || s.Start[d] > s.Stop[d] {
			return fmt.Errorf("section %s out of bounds for shape %v", s, shape)
		}
	}
	return nil
}
