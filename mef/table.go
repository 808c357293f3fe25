package mef

import (
	"fmt"
	"slices"

	"github.com/robert-malhotra/go-mef/internal/hdu"
)

// Column is one named table column. Data holds one of []float64,
// []float32, []int64, []int32, []int16, []uint8, []bool or []string.
type Column = hdu.Column

// Table is an ordered set of equal-length columns plus the user cards of
// the record it came from.
type Table struct {
	header *Header
	cols   []Column
}

// NewTable builds a table from columns of equal length.
func NewTable(cols ...Column) (*Table, error) {
	t := &Table{header: NewHeader()}
	for _, c := range cols {
		if err := t.AddColumn(c); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// NewStringTable builds a table of string columns named by names.
func NewStringTable(names ...string) *Table {
	t := &Table{header: NewHeader()}
	for _, n := range names {
		t.cols = append(t.cols, Column{Name: n, Data: []string{}})
	}
	return t
}

// Header returns the table's header.
func (t *Table) Header() *Header {
	return t.header
}

// Len returns the number of rows.
func (t *Table) Len() int {
	if len(t.cols) == 0 {
		return 0
	}
	return t.cols[0].Len()
}

// NumColumns returns the number of columns.
func (t *Table) NumColumns() int {
	return len(t.cols)
}

// Names returns the column names in order.
func (t *Table) Names() []string {
	out := make([]string, len(t.cols))
	for i, c := range t.cols {
		out[i] = c.Name
	}
	return out
}

// Columns returns the columns in order. The slices are shared.
func (t *Table) Columns() []Column {
	return slices.Clone(t.cols)
}

// Column returns the column with the given name.
func (t *Table) Column(name string) (Column, bool) {
	for _, c := range t.cols {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

// Strings returns a string column's values.
func (t *Table) Strings(name string) ([]string, error) {
	c, ok := t.Column(name)
	if !ok {
		return nil, fmt.Errorf("%w: column %q", ErrAttributeAccess, name)
	}
	s, ok := c.Data.([]string)
	if !ok {
		return nil, fmt.Errorf("%w: column %q holds %T", ErrTypeConstraint, name, c.Data)
	}
	return s, nil
}

// AddColumn appends a column. Its length must match the existing rows.
func (t *Table) AddColumn(c Column) error {
	if c.Name == "" {
		return fmt.Errorf("%w: column has no name", ErrTypeConstraint)
	}
	if _, ok := t.Column(c.Name); ok {
		return fmt.Errorf("%w: duplicate column %q", ErrTypeConstraint, c.Name)
	}
	if c.Len() == 0 && !emptyColumn(c.Data) {
		return fmt.Errorf("%w: column %q has unsupported type %T", ErrTypeConstraint, c.Name, c.Data)
	}
	if len(t.cols) > 0 && c.Len() != t.Len() {
		return shapeMismatch("add column", []int{t.Len()}, []int{c.Len()})
	}
	t.cols = append(t.cols, c)
	return nil
}

func emptyColumn(data any) bool {
	switch data.(type) {
	case []float64, []float32, []int64, []int32, []int16, []uint8, []bool, []string:
		return true
	}
	return false
}

// Row returns the values of row i in column order.
func (t *Table) Row(i int) ([]any, error) {
	if i < 0 || i >= t.Len() {
		return nil, fmt.Errorf("row %d out of range [0, %d)", i, t.Len())
	}
	out := make([]any, len(t.cols))
	for j, c := range t.cols {
		switch d := c.Data.(type) {
		case []float64:
			out[j] = d[i]
		case []float32:
			out[j] = d[i]
		case []int64:
			out[j] = d[i]
		case []int32:
			out[j] = d[i]
		case []int16:
			out[j] = d[i]
		case []uint8:
			out[j] = d[i]
		case []bool:
			out[j] = d[i]
		case []string:
			out[j] = d[i]
		}
	}
	return out, nil
}

// AddRow appends one value per column. Numeric values are converted to
// the column type.
func (t *Table) AddRow(values ...any) error {
	if len(values) != len(t.cols) {
		return shapeMismatch("add row", []int{len(t.cols)}, []int{len(values)})
	}
	next := make([]Column, len(t.cols))
	for j, c := range t.cols {
		data, err := appendValue(c.Data, values[j])
		if err != nil {
			return fmt.Errorf("column %q: %w", c.Name, err)
		}
		next[j] = Column{Name: c.Name, Unit: c.Unit, Data: data}
	}
	t.cols = next
	return nil
}

func appendValue(data, v any) (any, error) {
	if s, ok := data.([]string); ok {
		str, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("%w: %T into string column", ErrTypeConstraint, v)
		}
		return append(s, str), nil
	}
	if b, ok := data.([]bool); ok {
		flag, ok := v.(bool)
		if !ok {
			return nil, fmt.Errorf("%w: %T into logical column", ErrTypeConstraint, v)
		}
		return append(b, flag), nil
	}

	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int64:
		f = float64(n)
	case int32:
		f = float64(n)
	case int16:
		f = float64(n)
	case uint8:
		f = float64(n)
	default:
		return nil, fmt.Errorf("%w: %T into numeric column", ErrTypeConstraint, v)
	}
	switch d := data.(type) {
	case []float64:
		return append(d, f), nil
	case []float32:
		return append(d, float32(f)), nil
	case []int64:
		return append(d, int64(f)), nil
	case []int32:
		return append(d, int32(f)), nil
	case []int16:
		return append(d, int16(f)), nil
	case []uint8:
		return append(d, uint8(f)), nil
	}
	return nil, fmt.Errorf("%w: unsupported column type %T", ErrTypeConstraint, data)
}

// Clone returns a deep copy.
func (t *Table) Clone() *Table {
	out := &Table{header: t.header.Clone(), cols: make([]Column, len(t.cols))}
	for i, c := range t.cols {
		out.cols[i] = Column{Name: c.Name, Unit: c.Unit, Data: cloneData(c.Data)}
	}
	return out
}

func cloneData(data any) any {
	switch d := data.(type) {
	case []float64:
		return slices.Clone(d)
	case []float32:
		return slices.Clone(d)
	case []int64:
		return slices.Clone(d)
	case []int32:
		return slices.Clone(d)
	case []int16:
		return slices.Clone(d)
	case []uint8:
		return slices.Clone(d)
	case []bool:
		return slices.Clone(d)
	case []string:
		return slices.Clone(d)
	}
	return data
}

func (t *Table) String() string {
	return fmt.Sprintf("Table(%d rows, %v)", t.Len(), t.Names())
}
