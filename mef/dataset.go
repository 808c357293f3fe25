package mef

import (
	"fmt"
	"maps"
	"path/filepath"
	"regexp"
	"slices"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var validName = regexp.MustCompile(`^[A-Z][A-Z0-9]*$`)

// globalOnly names are always stored as dataset tables, never as unit
// ancillary entries.
var globalOnly = map[string]bool{"REFCAT": true, "MDF": true}

var defaultKeywords = map[string]string{
	"instrument": "INSTRUME",
	"object":     "OBJECT",
	"telescope":  "TELESCOP",
}

type store struct {
	units  []*Unit
	tables map[string]*Table
}

// Dataset is a primary header, an ordered list of units and a set of
// dataset-wide tables. A Dataset returned by Slice or SliceRange is a view:
// it shares units and tables with its parent and cannot be appended to or
// deleted from.
//
// A Dataset is not safe for concurrent use.
type Dataset struct {
	id       uuid.UUID
	phu      *Header
	st       *store
	idx      []int
	single   bool
	path     string
	origName string
	h        *handle

	rules    []TagRule
	keywords map[string]string
	logger   *zap.Logger
}

// New creates an empty dataset. A nil phu starts empty.
func New(phu *Header) *Dataset {
	if phu == nil {
		phu = NewHeader()
	}
	return &Dataset{
		id:       uuid.New(),
		phu:      phu,
		st:       &store{tables: make(map[string]*Table)},
		keywords: maps.Clone(defaultKeywords),
	}
}

func (d *Dataset) log() *zap.Logger {
	if d.logger != nil {
		return d.logger
	}
	return Logger()
}

// ID returns the dataset's identity. Views share their parent's id.
func (d *Dataset) ID() uuid.UUID {
	return d.id
}

// PHU returns the primary header.
func (d *Dataset) PHU() *Header {
	return d.phu
}

func (d *Dataset) indices() []int {
	if d.idx != nil {
		return d.idx
	}
	out := make([]int, len(d.st.units))
	for i := range out {
		out[i] = i
	}
	return out
}

// Indices returns the positions of the dataset's units in the shared store.
func (d *Dataset) Indices() []int {
	return slices.Clone(d.indices())
}

// Len returns the number of units.
func (d *Dataset) Len() int {
	if d.idx != nil {
		return len(d.idx)
	}
	return len(d.st.units)
}

// IsSliced reports whether d is a view.
func (d *Dataset) IsSliced() bool {
	return d.idx != nil
}

// IsSingle reports whether d was sliced to exactly one unit by index.
func (d *Dataset) IsSingle() bool {
	return d.single
}

// Unit returns the i-th unit.
func (d *Dataset) Unit(i int) (*Unit, error) {
	if i < 0 || i >= d.Len() {
		return nil, fmt.Errorf("unit index %d out of range [0, %d)", i, d.Len())
	}
	return d.st.units[d.indices()[i]], nil
}

// Units returns the units in order.
func (d *Dataset) Units() []*Unit {
	idx := d.indices()
	out := make([]*Unit, len(idx))
	for i, j := range idx {
		out[i] = d.st.units[j]
	}
	return out
}

func (d *Dataset) view(idx []int) *Dataset {
	v := *d
	v.idx = idx
	v.single = false
	return &v
}

// Slice returns a single-unit view of the i-th unit.
func (d *Dataset) Slice(i int) (*Dataset, error) {
	if i < 0 || i >= d.Len() {
		return nil, fmt.Errorf("unit index %d out of range [0, %d)", i, d.Len())
	}
	v := d.view([]int{d.indices()[i]})
	v.single = true
	return v, nil
}

// SliceRange returns a view of units [lo, hi).
func (d *Dataset) SliceRange(lo, hi int) (*Dataset, error) {
	if lo < 0 || hi > d.Len() || lo > hi {
		return nil, fmt.Errorf("unit range [%d, %d) out of range [0, %d)", lo, hi, d.Len())
	}
	return d.view(slices.Clone(d.indices()[lo:hi])), nil
}

func (d *Dataset) normalizeName(name string) string {
	if name == "" || validName.MatchString(name) {
		return name
	}
	norm := cases.Upper(language.Und).String(strings.TrimSpace(name))
	d.log().Warn("extension name normalized",
		zap.String("name", name),
		zap.String("normalized", norm))
	return norm
}

func (d *Dataset) nextVersion() int {
	highest := 0
	for _, u := range d.st.units {
		if u.owner == d.id {
			highest = max(highest, u.version)
		}
	}
	return highest + 1
}

func (d *Dataset) adopt(u *Unit) {
	u.owner = d.id
	u.version = d.nextVersion()
	u.logger = d.logger
}

// Append adds value to an owning dataset. The accepted values are:
//
//   - *Table: stored as a dataset table under name.
//   - *Array: a new unit, when name is empty or SCI.
//   - *Dataset: the single unit of another dataset, deep copied.
//   - *Unit: appended as is.
//
// header, when given, becomes the header of a new unit or is merged into
// a table's header.
func (d *Dataset) Append(value any, name string, header *Header) error {
	if d.IsSliced() {
		return fmt.Errorf("%w: cannot append to a view", ErrTypeConstraint)
	}
	name = d.normalizeName(name)

	switch v := value.(type) {
	case *Table:
		return d.appendTable(v, name, header)
	case *Array:
		switch name {
		case "", SciRole:
		case MaskRole, VarianceRole:
			return fmt.Errorf("%w: %s must be set through the unit", ErrTypeConstraint, name)
		default:
			return fmt.Errorf("%w: image %s can only be attached to a unit", ErrTypeConstraint, name)
		}
		u := NewUnit(v, header)
		d.adopt(u)
		d.st.units = append(d.st.units, u)
	case *Dataset:
		if v.Len() != 1 {
			return fmt.Errorf("%w: only a single-unit dataset can be appended, got %d units", ErrTypeConstraint, v.Len())
		}
		src, _ := v.Unit(0)
		u := src.Clone()
		u.owner = uuid.Nil
		u.logger = d.logger
		d.st.units = append(d.st.units, u)
	case *Unit:
		if slices.Contains(d.st.units, v) {
			return fmt.Errorf("%w: unit already belongs to the dataset", ErrTypeConstraint)
		}
		d.st.units = append(d.st.units, v)
	default:
		return fmt.Errorf("%w: cannot append %T", ErrTypeConstraint, value)
	}
	return nil
}

func (d *Dataset) appendTable(t *Table, name string, header *Header) error {
	if name == "" {
		return fmt.Errorf("%w: a table needs a name", ErrTypeConstraint)
	}
	if reservedName(name) {
		return fmt.Errorf("%w: %s is a reserved extension name", ErrTypeConstraint, name)
	}
	if owner := d.ancillaryOwner(name); owner >= 0 {
		return fmt.Errorf("%w: %s is already an ancillary entry of unit %d", ErrTypeConstraint, name, owner)
	}
	if header != nil {
		t.header.Update(header)
	}
	d.st.tables[name] = t
	return nil
}

func (d *Dataset) ancillaryOwner(name string) int {
	for i, u := range d.st.units {
		if _, ok := u.anc.Get(name); ok {
			return i
		}
	}
	return -1
}

// SetExt stores value under name. On a single-unit view it becomes an
// ancillary entry of the unit; on an owning dataset it must be a table and
// becomes a dataset table.
func (d *Dataset) SetExt(name string, value any) error {
	name = d.normalizeName(name)
	if reservedName(name) {
		return fmt.Errorf("%w: %s is a reserved extension name", ErrTypeConstraint, name)
	}
	switch {
	case d.single:
		if _, ok := d.st.tables[name]; ok {
			return fmt.Errorf("%w: %s is already a dataset table", ErrTypeConstraint, name)
		}
		return d.st.units[d.indices()[0]].anc.Set(name, value)
	case d.IsSliced():
		return fmt.Errorf("%w: cannot set %s on a multi-unit view", ErrTypeConstraint, name)
	}
	t, ok := value.(*Table)
	if !ok {
		return fmt.Errorf("%w: dataset extension %s must be a table, got %T", ErrTypeConstraint, name, value)
	}
	return d.appendTable(t, name, nil)
}

// Ext returns the ancillary entry or dataset table named name.
func (d *Dataset) Ext(name string) (any, error) {
	if d.single {
		if v, ok := d.st.units[d.indices()[0]].anc.Get(name); ok {
			return v, nil
		}
	}
	if t, ok := d.st.tables[name]; ok {
		return t, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrAttributeAccess, name)
}

// DeleteExt removes the ancillary entry or dataset table named name.
func (d *Dataset) DeleteExt(name string) error {
	if d.single && d.st.units[d.indices()[0]].anc.Remove(name) {
		return nil
	}
	if _, ok := d.st.tables[name]; ok {
		if d.IsSliced() {
			return fmt.Errorf("%w: cannot delete dataset table %s from a view", ErrTypeConstraint, name)
		}
		delete(d.st.tables, name)
		return nil
	}
	return fmt.Errorf("%w: %s", ErrAttributeAccess, name)
}

// Exposed returns the names reachable through Ext, sorted.
func (d *Dataset) Exposed() []string {
	names := slices.Collect(maps.Keys(d.st.tables))
	if d.single {
		names = append(names, d.st.units[d.indices()[0]].anc.Names()...)
	}
	slices.Sort(names)
	return names
}

// Delete removes the i-th unit from an owning dataset. Views of that unit
// become invalid.
func (d *Dataset) Delete(i int) error {
	if d.IsSliced() {
		return fmt.Errorf("%w: cannot delete from a view", ErrTypeConstraint)
	}
	if i < 0 || i >= len(d.st.units) {
		return fmt.Errorf("unit index %d out of range [0, %d)", i, len(d.st.units))
	}
	d.st.units = slices.Delete(d.st.units, i, i+1)
	return nil
}

// Tables returns the names of the dataset tables, sorted.
func (d *Dataset) Tables() []string {
	return slices.Sorted(maps.Keys(d.st.tables))
}

// Table returns the dataset table named name.
func (d *Dataset) Table(name string) (*Table, error) {
	t, ok := d.st.tables[name]
	if !ok {
		return nil, fmt.Errorf("%w: table %s", ErrAttributeAccess, name)
	}
	return t, nil
}

// Close releases memory mappings held by the dataset. Views share the
// handle of their parent; clones hold their own. Close is idempotent.
func (d *Dataset) Close() error {
	if d.h == nil {
		return nil
	}
	return d.h.close()
}

// Clone returns an owning deep copy of d with a new id. Lazy payloads are
// shared; units owned by d are owned by the copy. A copy of a view is not
// itself a view, so it is never single.
func (d *Dataset) Clone() *Dataset {
	out := &Dataset{
		id:       uuid.New(),
		phu:      d.phu.Clone(),
		st:       &store{tables: make(map[string]*Table, len(d.st.tables))},
		path:     d.path,
		origName: d.origName,
		rules:    d.rules,
		keywords: maps.Clone(d.keywords),
		logger:   d.logger,
	}
	for _, u := range d.Units() {
		c := u.Clone()
		if c.owner == d.id {
			c.owner = out.id
		}
		out.st.units = append(out.st.units, c)
	}
	for name, t := range d.st.tables {
		out.st.tables[name] = t.Clone()
	}
	if d.h != nil {
		out.h = newHandle(d.h.res.acquire())
	}
	return out
}

// HeaderCollection is the headers of a dataset's units.
type HeaderCollection []*Header

// Get returns the value of key from every header; missing keys give nil.
func (hc HeaderCollection) Get(key string) []any {
	out := make([]any, len(hc))
	for i, h := range hc {
		out[i], _ = h.Lookup(key)
	}
	return out
}

// Set assigns key on every header.
func (hc HeaderCollection) Set(key string, value any, comment ...string) {
	for _, h := range hc {
		h.Set(key, value, comment...)
	}
}

// Delete removes key from every header.
func (hc HeaderCollection) Delete(key string) {
	for _, h := range hc {
		h.Delete(key)
	}
}

// Headers returns the unit headers.
func (d *Dataset) Headers() HeaderCollection {
	units := d.Units()
	out := make(HeaderCollection, len(units))
	for i, u := range units {
		out[i] = u.header
	}
	return out
}

// Tags resolves the dataset's tag rules. Tags are computed on every call.
func (d *Dataset) Tags() ([]string, error) {
	sets, err := evalTags(d, d.rules)
	if err != nil {
		return nil, err
	}
	return ResolveTags(sets), nil
}

// Keyword returns the value of the header keyword mapped to a descriptor,
// looked up in the primary header and then in each unit header.
func (d *Dataset) Keyword(descriptor string) (any, error) {
	key, ok := d.keywords[strings.ToLower(descriptor)]
	if !ok {
		return nil, fmt.Errorf("%w: no keyword for descriptor %q", ErrAttributeAccess, descriptor)
	}
	if v, ok := d.phu.Lookup(key); ok {
		return v, nil
	}
	for _, u := range d.Units() {
		if v, ok := u.header.Lookup(key); ok {
			return v, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrKeyNotFound, key)
}

func (d *Dataset) stringKeyword(descriptor string) (string, error) {
	v, err := d.Keyword(descriptor)
	if err != nil {
		return "", err
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("%w: %s is %T", ErrTypeConstraint, descriptor, v)
	}
	return strings.TrimSpace(s), nil
}

// Instrument returns the instrument name.
func (d *Dataset) Instrument() (string, error) {
	return d.stringKeyword("instrument")
}

// Object returns the target name.
func (d *Dataset) Object() (string, error) {
	return d.stringKeyword("object")
}

// Telescope returns the telescope name.
func (d *Dataset) Telescope() (string, error) {
	return d.stringKeyword("telescope")
}

// Path returns the file path the dataset was read from or will be written to.
func (d *Dataset) Path() string {
	return d.path
}

// SetPath sets the path. The first non-empty path also sets the original
// filename.
func (d *Dataset) SetPath(p string) {
	if d.path == "" && d.origName == "" && p != "" {
		d.origName = filepath.Base(p)
	}
	d.path = p
}

// Filename returns the base name of the path.
func (d *Dataset) Filename() string {
	if d.path == "" {
		return ""
	}
	return filepath.Base(d.path)
}

// SetFilename replaces the base name of the path, keeping its directory.
func (d *Dataset) SetFilename(name string) {
	if d.path == "" {
		d.SetPath(name)
		return
	}
	d.SetPath(filepath.Join(filepath.Dir(d.path), name))
}

// OrigFilename returns the filename the dataset was first read from.
func (d *Dataset) OrigFilename() string {
	return d.origName
}

// UpdateFilename rebuilds the filename as prefix + root + suffix + ext.
// With strip set, root and ext come from the original filename.
func (d *Dataset) UpdateFilename(prefix, suffix string, strip bool) error {
	name := d.Filename()
	if name == "" {
		orig, err := d.phu.String("ORIGNAME")
		if err != nil {
			return fmt.Errorf("dataset has no filename: %w", err)
		}
		name = orig
	}
	if strip && d.origName != "" {
		name = d.origName
	}
	ext := filepath.Ext(name)
	root := strings.TrimSuffix(name, ext)
	d.SetFilename(prefix + root + suffix + ext)
	return nil
}

// Crop trims every two-dimensional unit to the box [x1, x2] × [y1, y2],
// inclusive and 0-based, with x the fastest axis. Masks, variances and
// ancillary arrays of the unit's shape are cropped too; an affine
// transform is shifted to match.
func (d *Dataset) Crop(x1, y1, x2, y2 int) error {
	sec, err := NewSection(y1, y2+1, x1, x2+1)
	if err != nil {
		return err
	}
	for i, u := range d.Units() {
		shape := u.Shape()
		if len(shape) != 2 {
			continue
		}
		if err := u.crop(sec, shape); err != nil {
			return fmt.Errorf("cropping unit %d: %w", i, err)
		}
	}
	return nil
}

func (u *Unit) crop(sec Section, shape []int) error {
	cropped, err := u.data.Window(sec)
	if err != nil {
		return err
	}
	u.data = Materialized(cropped)
	for _, p := range []*Pixels{&u.mask, &u.variance} {
		if p.IsZero() {
			continue
		}
		w, err := p.Window(sec)
		if err != nil {
			return err
		}
		*p = Materialized(w)
	}
	for _, name := range u.anc.Names() {
		a, ok := u.anc.Array(name)
		if !ok || !slices.Equal(a.shape, shape) {
			continue
		}
		w, err := a.Window(sec)
		if err != nil {
			return err
		}
		u.anc.values[name] = w
	}
	if t, ok := u.transform.(*AffineTransform); ok {
		u.transform = t.Shift(float64(sec.Start[1]), float64(sec.Start[0]))
	}
	return nil
}

// Operate replaces each unit's data, mask and variance with fn applied to
// them.
func (d *Dataset) Operate(fn func(*Array) (*Array, error)) error {
	for i, u := range d.Units() {
		for _, p := range []*Pixels{&u.data, &u.mask, &u.variance} {
			if p.IsZero() {
				continue
			}
			a, err := resolveCached(p)
			if err != nil {
				return err
			}
			out, err := fn(a)
			if err != nil {
				return fmt.Errorf("operating on unit %d: %w", i, err)
			}
			*p = Materialized(out)
		}
	}
	return nil
}
