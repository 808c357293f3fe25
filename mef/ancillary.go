package mef

import (
	"fmt"
	"maps"
	"slices"
)

// Ancillary is a unit's name-to-value map of extra arrays and tables.
// Names are iterated in sorted order.
type Ancillary struct {
	values map[string]any
}

func newAncillary() *Ancillary {
	return &Ancillary{values: make(map[string]any)}
}

// Get returns the value stored under name.
func (a *Ancillary) Get(name string) (any, bool) {
	v, ok := a.values[name]
	return v, ok
}

// Array returns the array stored under name.
func (a *Ancillary) Array(name string) (*Array, bool) {
	v, ok := a.values[name].(*Array)
	return v, ok
}

// Table returns the table stored under name.
func (a *Ancillary) Table(name string) (*Table, bool) {
	v, ok := a.values[name].(*Table)
	return v, ok
}

// Set stores an *Array or *Table under name, replacing any previous value.
func (a *Ancillary) Set(name string, value any) error {
	switch value.(type) {
	case *Array, *Table:
	default:
		return fmt.Errorf("%w: ancillary %s must be an array or table, got %T", ErrTypeConstraint, name, value)
	}
	if reservedName(name) {
		return fmt.Errorf("%w: %s is a reserved extension name", ErrTypeConstraint, name)
	}
	a.values[name] = value
	return nil
}

// Remove deletes name and reports whether it existed.
func (a *Ancillary) Remove(name string) bool {
	_, ok := a.values[name]
	delete(a.values, name)
	return ok
}

// Names returns the stored names in sorted order.
func (a *Ancillary) Names() []string {
	return slices.Sorted(maps.Keys(a.values))
}

// Len returns the number of entries.
func (a *Ancillary) Len() int {
	return len(a.values)
}

func (a *Ancillary) clone() *Ancillary {
	out := newAncillary()
	for k, v := range a.values {
		switch x := v.(type) {
		case *Array:
			out.values[k] = x.Clone()
		case *Table:
			out.values[k] = x.Clone()
		}
	}
	return out
}
