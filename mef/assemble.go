package mef

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/robert-malhotra/go-mef/internal/hdu"
)

// AssembleFrom groups raw records into a Dataset. The first record is the
// primary; if it is not, an empty primary header is used.
//
// Image records without a version are given the next unused version in
// file order and, when unnamed, the SCI role; a DQ, VAR or WCS record
// without a version joins the science record before it. Assigned names and
// versions are written back to the record header. Each SCI record starts a unit, which collects the DQ, VAR
// and WCS records of the same version as its mask, variance and transform,
// and any other named record of that version as an ancillary entry.
// Remaining tables become dataset tables and remaining images are
// discarded with a warning.
//
// A lone primary record carrying an image is read as an empty primary plus
// one SCI unit.
func AssembleFrom(records []*Record, opts ...ReadOption) (*Dataset, error) {
	return assemble(records, "", nil, applyReadOptions(opts))
}

func assemble(records []*Record, path string, res *resources, o *readOptions) (*Dataset, error) {
	log := o.log()
	if len(records) == 0 {
		return nil, fmt.Errorf("%w: no records", ErrContainerFormat)
	}

	primary := records[0]
	exts := records[1:]
	if !primary.primary {
		primary = NewPrimaryRecord(nil, nil)
		exts = records
	}
	if len(exts) == 0 && primary.IsImage() {
		primary, exts = splitSingleImage(primary)
	}
	assignVersions(exts)
	exts = sortRecords(exts)

	d := New(primary.Header)
	d.logger = o.logger
	if res != nil {
		d.h = newHandle(res)
	}
	if path != "" {
		d.SetPath(path)
	} else if name, err := d.phu.String("ORIGNAME"); err == nil {
		d.origName = strings.TrimSpace(name)
	}
	if !d.phu.Has("ORIGNAME") && d.origName != "" {
		d.phu.Set("ORIGNAME", d.origName, "Original filename prior to processing")
	}

	seen := make(map[*Record]bool, len(exts))
	owned := make(map[int]bool)
	for _, sci := range exts {
		if sci.Name != SciRole {
			continue
		}
		seen[sci] = true
		u := newUnit(sci.pixels(), sci.Header)
		u.logger = d.logger
		u.version = sci.Version

		if owned[sci.Version] {
			log.Warn("multiple SCI records with the same version",
				zap.Int("extver", sci.Version))
			u.owner = uuid.Nil
			d.st.units = append(d.st.units, u)
			continue
		}
		owned[sci.Version] = true
		u.owner = d.id

		for _, r := range exts {
			if seen[r] || r.Version != sci.Version || r.Name == SciRole || globalOnly[r.Name] {
				continue
			}
			seen[r] = true
			attach(u, r, o, log)
		}
		if u.transform == nil && o.headerFallback {
			u.transform = headerTransform(log, u.header, d.phu)
		}
		d.st.units = append(d.st.units, u)
	}

	for _, r := range exts {
		if seen[r] {
			continue
		}
		switch {
		case r.IsTable() && r.Name != "":
			if _, dup := d.st.tables[r.Name]; dup {
				log.Warn("duplicate table replaced", zap.String("extname", r.Name))
			}
			d.st.tables[r.Name] = r.Payload.(*Table)
		case r.IsTable():
			log.Warn("discarding table without EXTNAME", zap.Int("extver", r.Version))
		case r.IsImage():
			log.Warn("discarding image without a SCI record",
				zap.String("extname", r.Name),
				zap.Int("extver", r.Version))
		}
	}
	return d, nil
}

// splitSingleImage turns a primary record with an image into an empty
// primary plus one SCI record.
func splitSingleImage(primary *Record) (*Record, []*Record) {
	phu := NewPrimaryRecord(primary.Header.Clone(), nil)
	h := primary.Header.Clone()
	h.Delete(hdu.KeySimple)
	h.Delete(hdu.KeyExtend)
	sci := &Record{Header: h, Payload: primary.Payload}
	sci.setName(SciRole)
	sci.setVersion(1)
	return phu, []*Record{sci}
}

// assignVersions numbers the records that have no version, in file order.
// A DQ, VAR or WCS record joins the latest science record that does not
// have that role yet; any other image takes the next unused version.
func assignVersions(exts []*Record) {
	highest := 0
	for _, r := range exts {
		if r.Version > 0 && r.Name != "" {
			highest = max(highest, r.Version)
		}
	}

	last := 0
	roles := make(map[string]bool)
	for _, r := range exts {
		if r.Version > 0 && r.Name != "" {
			if r.Name == SciRole {
				last = r.Version
				clear(roles)
			} else if r.Version == last {
				roles[r.Name] = true
			}
			continue
		}
		switch r.Name {
		case MaskRole, VarianceRole, TransformRole:
			if last > 0 && !roles[r.Name] {
				roles[r.Name] = true
				r.setVersion(last)
				continue
			}
		}
		if !r.IsImage() {
			continue
		}
		highest++
		if r.Name == "" {
			r.setName(SciRole)
		}
		if r.Version == 0 {
			r.setVersion(highest)
		}
		if r.Name == SciRole {
			last = r.Version
			clear(roles)
		}
	}
}

// sortRecords orders records by version, with SCI first, then named and
// then unnamed records. Versionless records go last in file order.
func sortRecords(exts []*Record) []*Record {
	rank := func(r *Record) int {
		switch r.Name {
		case SciRole:
			return 0
		case "":
			return 2
		}
		return 1
	}
	out := slices.Clone(exts)
	slices.SortStableFunc(out, func(a, b *Record) int {
		switch {
		case a.Version == 0 && b.Version == 0:
			return 0
		case a.Version == 0:
			return 1
		case b.Version == 0:
			return -1
		case a.Version != b.Version:
			return a.Version - b.Version
		}
		return rank(a) - rank(b)
	})
	return out
}

func attach(u *Unit, r *Record, o *readOptions, log *zap.Logger) {
	fields := []zap.Field{zap.String("extname", r.Name), zap.Int("extver", r.Version)}
	switch r.Name {
	case MaskRole, VarianceRole:
		p := r.pixels()
		if p.IsZero() {
			log.Warn("ignoring record without image data", fields...)
			return
		}
		if !slices.Equal(p.Shape(), u.Shape()) {
			log.Warn("ignoring record with a shape different from SCI", fields...)
			return
		}
		if r.Name == MaskRole {
			u.mask = p
		} else {
			u.variance = p
		}
	case TransformRole:
		t, err := decodeTransform(r, o.codec)
		if err != nil {
			log.Warn("cannot decode transform", append(fields, zap.Error(err))...)
			return
		}
		u.transform = t
	case "":
		log.Warn("ignoring record without EXTNAME", fields...)
	default:
		switch p := r.Payload.(type) {
		case *Table:
			u.anc.values[r.Name] = p
		case *Array:
			u.anc.values[r.Name] = p
		case *LazyArray:
			a, err := p.Materialize()
			if err != nil {
				log.Warn("cannot read ancillary image", append(fields, zap.Error(err))...)
				return
			}
			u.anc.values[r.Name] = a
		default:
			log.Warn("ignoring record without data", fields...)
		}
	}
}

func headerTransform(log *zap.Logger, headers ...*Header) Transform {
	for _, h := range headers {
		t, err := TransformFromHeader(h)
		if errors.Is(err, ErrKeyNotFound) {
			continue
		}
		if err != nil {
			log.Warn("cannot derive transform from header", zap.Error(err))
			return nil
		}
		return t
	}
	return nil
}

const transformColumn = "DOCUMENT"

func decodeTransform(r *Record, codec TransformCodec) (Transform, error) {
	t, ok := r.Payload.(*Table)
	if !ok || t.NumColumns() != 1 {
		return nil, fmt.Errorf("%w: transform record must be a one-column table", ErrTypeConstraint)
	}
	var doc []byte
	switch data := t.cols[0].Data.(type) {
	case []string:
		doc = []byte(strings.Join(data, "\n"))
	case []uint8:
		doc = data
	default:
		return nil, fmt.Errorf("%w: transform column holds %T", ErrTypeConstraint, data)
	}
	return codec.Decode(doc)
}

// transformRecord stores a transform document as a text table with one
// line per row, or as a byte table when the document is not text.
func transformRecord(t Transform, version int, codec TransformCodec) (*Record, error) {
	doc, err := codec.Encode(t)
	if err != nil {
		return nil, err
	}
	var (
		col   Column
		ascii bool
	)
	if printable(doc) {
		col = Column{Name: transformColumn, Data: strings.Split(string(doc), "\n")}
		ascii = true
	} else {
		col = Column{Name: transformColumn, Data: append([]uint8(nil), doc...)}
	}
	tbl := &Table{header: NewHeader(), cols: []Column{col}}
	rec := NewTableRecord(TransformRole, version, nil, tbl)
	rec.ascii = ascii
	return rec, nil
}

func printable(doc []byte) bool {
	for _, b := range doc {
		if b != '\n' && (b < 0x20 || b > 0x7e) {
			return false
		}
	}
	return true
}
