package mef

import (
	"fmt"
	"slices"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Reserved role names.
const (
	SciRole       = "SCI"
	MaskRole      = "DQ"
	VarianceRole  = "VAR"
	TransformRole = "WCS"
)

func reservedName(name string) bool {
	switch name {
	case SciRole, MaskRole, VarianceRole, TransformRole:
		return true
	}
	return false
}

// Unit groups a science array with its optional mask, variance,
// transform and ancillary entries. Mask and variance, when present, have
// the science array's shape.
type Unit struct {
	data      Pixels
	mask      Pixels
	variance  Pixels
	transform Transform
	anc       *Ancillary
	header    *Header

	owner   uuid.UUID
	version int
	logger  *zap.Logger
}

// NewUnit creates a unit around data. A nil header starts empty.
func NewUnit(data *Array, header *Header) *Unit {
	return newUnit(Materialized(data), header)
}

func newUnit(data Pixels, header *Header) *Unit {
	if header == nil {
		header = NewHeader()
	}
	return &Unit{data: data, header: header, anc: newAncillary()}
}

func (u *Unit) log() *zap.Logger {
	if u.logger != nil {
		return u.logger
	}
	return Logger()
}

// Header returns the unit's header.
func (u *Unit) Header() *Header {
	return u.header
}

// Version returns the version the unit was read or created with, or 0.
func (u *Unit) Version() int {
	return u.version
}

// Shape returns the science array's dimensions.
func (u *Unit) Shape() []int {
	return u.data.Shape()
}

// DataPixels returns the science array without resolving it.
func (u *Unit) DataPixels() Pixels {
	return u.data
}

// MaskPixels returns the mask without resolving it.
func (u *Unit) MaskPixels() Pixels {
	return u.mask
}

// VariancePixels returns the variance without resolving it.
func (u *Unit) VariancePixels() Pixels {
	return u.variance
}

func resolveCached(p *Pixels) (*Array, error) {
	if !p.IsLazy() {
		return p.array, nil
	}
	a, err := p.Resolve()
	if err != nil {
		return nil, err
	}
	*p = Materialized(a)
	return a, nil
}

// Data returns the science array, materializing it on first use.
func (u *Unit) Data() (*Array, error) {
	return resolveCached(&u.data)
}

// Mask returns the mask, or nil when absent.
func (u *Unit) Mask() (*Array, error) {
	return resolveCached(&u.mask)
}

// Variance returns the variance, or nil when absent.
func (u *Unit) Variance() (*Array, error) {
	return resolveCached(&u.variance)
}

// HasMask reports whether a mask is present.
func (u *Unit) HasMask() bool {
	return !u.mask.IsZero()
}

// HasVariance reports whether a variance is present.
func (u *Unit) HasVariance() bool {
	return !u.variance.IsZero()
}

// SetData replaces the science array.
func (u *Unit) SetData(a *Array) {
	u.data = Materialized(a)
}

func (u *Unit) checkShape(op string, a *Array) error {
	if want := u.data.Shape(); !slices.Equal(want, a.shape) {
		return shapeMismatch(op, want, a.shape)
	}
	return nil
}

// SetMask replaces the mask. A nil array removes it. With check set, a
// shape different from the science array's is rejected.
func (u *Unit) SetMask(a *Array, check bool) error {
	if a == nil {
		u.mask = Pixels{}
		return nil
	}
	if check {
		if err := u.checkShape("set mask", a); err != nil {
			return err
		}
	}
	u.mask = Materialized(a)
	return nil
}

// SetVariance replaces the variance. Negative values are clipped to zero
// with a warning.
func (u *Unit) SetVariance(a *Array, check bool) error {
	if a == nil {
		u.variance = Pixels{}
		return nil
	}
	if check {
		if err := u.checkShape("set variance", a); err != nil {
			return err
		}
	}
	clipVariance(a, u.log())
	u.variance = Materialized(a)
	return nil
}

func clipVariance(a *Array, log *zap.Logger) {
	clipped := 0
	for i, v := range a.data {
		if v < 0 {
			a.data[i] = 0
			clipped++
		}
	}
	if clipped > 0 {
		log.Warn("negative variance values clipped to zero", zap.Int("count", clipped))
	}
}

// Transform returns the coordinate transform, or nil.
func (u *Unit) Transform() Transform {
	return u.transform
}

// SetTransform replaces the coordinate transform.
func (u *Unit) SetTransform(t Transform) {
	u.transform = t
}

// Ancillary returns the unit's ancillary entries.
func (u *Unit) Ancillary() *Ancillary {
	return u.anc
}

// Owner returns the id of the dataset that read or created the unit.
func (u *Unit) Owner() uuid.UUID {
	return u.owner
}

// Clone returns a deep copy. Lazy payloads are shared.
func (u *Unit) Clone() *Unit {
	out := &Unit{
		data:      clonePixels(u.data),
		mask:      clonePixels(u.mask),
		variance:  clonePixels(u.variance),
		transform: cloneTransform(u.transform),
		anc:       u.anc.clone(),
		header:    u.header.Clone(),
		owner:     u.owner,
		version:   u.version,
		logger:    u.logger,
	}
	return out
}

func clonePixels(p Pixels) Pixels {
	if p.array != nil {
		return Materialized(p.array.Clone())
	}
	return p
}

func cloneTransform(t Transform) Transform {
	if a, ok := t.(*AffineTransform); ok {
		return a.clone()
	}
	return t
}

// UnitWindow is a section of a unit's arrays. Mask and Variance are nil
// when the unit has none.
type UnitWindow struct {
	Section  Section
	Data     *Array
	Mask     *Array
	Variance *Array
}

// Window reads the section of the science array, mask and variance. Lazy
// payloads are read without being materialized.
func (u *Unit) Window(sec Section) (*UnitWindow, error) {
	return u.WindowInto(sec, nil)
}

// WindowInto reads the section into dst, reusing its arrays.
func (u *Unit) WindowInto(sec Section, dst *UnitWindow) (*UnitWindow, error) {
	if dst == nil {
		dst = &UnitWindow{}
	}
	dst.Section = sec
	var err error
	if dst.Data, err = u.data.WindowInto(sec, dst.Data); err != nil {
		return nil, fmt.Errorf("data window: %w", err)
	}
	if u.mask.IsZero() {
		dst.Mask = nil
	} else if dst.Mask, err = u.mask.WindowInto(sec, dst.Mask); err != nil {
		return nil, fmt.Errorf("mask window: %w", err)
	}
	if u.variance.IsZero() {
		dst.Variance = nil
	} else if dst.Variance, err = u.variance.WindowInto(sec, dst.Variance); err != nil {
		return nil, fmt.Errorf("variance window: %w", err)
	}
	return dst, nil
}

// SetSection writes a window back into the unit's arrays, materializing
// them. A window mask or variance is only written when the unit has one.
func (u *Unit) SetSection(sec Section, w *UnitWindow) error {
	data, err := u.Data()
	if err != nil {
		return err
	}
	if err := data.SetSection(sec, w.Data); err != nil {
		return err
	}
	if w.Mask != nil && u.HasMask() {
		mask, err := u.Mask()
		if err != nil {
			return err
		}
		if err := mask.SetSection(sec, w.Mask); err != nil {
			return err
		}
	}
	if w.Variance != nil && u.HasVariance() {
		variance, err := u.Variance()
		if err != nil {
			return err
		}
		if err := variance.SetSection(sec, w.Variance); err != nil {
			return err
		}
	}
	return nil
}
