package mef

import (
	"fmt"

	"github.com/robert-malhotra/go-mef/internal/hdu"
)

// Record is one raw extension of a container: a role name, a version, a
// header and a payload. Payload is an *Array, a *LazyArray, a *Table or nil.
// Version 0 means the record has no version.
type Record struct {
	Name    string
	Version int
	Header  *Header
	Payload any

	primary bool
	ascii   bool
}

// NewPrimaryRecord creates the primary record. data may be nil.
func NewPrimaryRecord(h *Header, data *Array) *Record {
	if h == nil {
		h = NewHeader()
	}
	r := &Record{Header: h, primary: true}
	if data != nil {
		r.Payload = data
	}
	return r
}

// NewImageRecord creates an image extension. A non-empty name and a
// positive version are also written to the header.
func NewImageRecord(name string, version int, h *Header, data *Array) *Record {
	r := newRecord(name, version, h, nil)
	if data != nil {
		r.Payload = data
	}
	return r
}

// NewTableRecord creates a table extension. A nil header uses the table's
// own header.
func NewTableRecord(name string, version int, h *Header, t *Table) *Record {
	if h == nil {
		h = t.header
	}
	return newRecord(name, version, h, t)
}

func newRecord(name string, version int, h *Header, payload any) *Record {
	if h == nil {
		h = NewHeader()
	}
	if name != "" {
		h.Set(hdu.KeyExtname, name)
	}
	if version > 0 {
		h.Set(hdu.KeyExtver, version)
	}
	return &Record{Name: name, Version: version, Header: h, Payload: payload}
}

// IsPrimary reports whether r is the primary record.
func (r *Record) IsPrimary() bool {
	return r.primary
}

// IsImage reports whether r carries an image payload.
func (r *Record) IsImage() bool {
	switch r.Payload.(type) {
	case *Array, *LazyArray:
		return true
	}
	return false
}

// IsTable reports whether r carries a table payload.
func (r *Record) IsTable() bool {
	_, ok := r.Payload.(*Table)
	return ok
}

func (r *Record) pixels() Pixels {
	switch p := r.Payload.(type) {
	case *Array:
		return Materialized(p)
	case *LazyArray:
		return Deferred(p)
	}
	return Pixels{}
}

func (r *Record) setVersion(v int) {
	r.Version = v
	r.Header.Set(hdu.KeyExtver, v, "Added by mef")
}

func (r *Record) setName(name string) {
	r.Name = name
	r.Header.Set(hdu.KeyExtname, name, "Added by mef")
}

func (r *Record) String() string {
	kind := "empty"
	switch {
	case r.primary:
		kind = "primary"
	case r.IsImage():
		kind = "image"
	case r.IsTable():
		kind = "table"
	}
	return fmt.Sprintf("%s(%s,%d)", kind, r.Name, r.Version)
}
