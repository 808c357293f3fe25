package mef

import (
	"fmt"
	"math"
	"slices"

	"github.com/robert-malhotra/go-mef/internal/dtype"
)

type arithOp int

const (
	opAdd arithOp = iota
	opSub
	opMul
	opDiv
)

func (op arithOp) String() string {
	return [...]string{"add", "subtract", "multiply", "divide"}[op]
}

func (op arithOp) apply(a, b float64) float64 {
	switch op {
	case opAdd:
		return a + b
	case opSub:
		return a - b
	case opMul:
		return a * b
	default:
		return a / b
	}
}

// Add adds operand to every unit in place. operand is a float64 or a
// *Dataset with the same number of units.
func (d *Dataset) Add(operand any) error {
	return d.arith(opAdd, operand)
}

// Subtract subtracts operand from every unit in place.
func (d *Dataset) Subtract(operand any) error {
	return d.arith(opSub, operand)
}

// Multiply multiplies every unit by operand in place.
func (d *Dataset) Multiply(operand any) error {
	return d.arith(opMul, operand)
}

// Divide divides every unit by operand in place.
func (d *Dataset) Divide(operand any) error {
	return d.arith(opDiv, operand)
}

// Plus returns a copy of d with operand added.
func (d *Dataset) Plus(operand any) (*Dataset, error) {
	return d.arithCopy(opAdd, operand)
}

// Minus returns a copy of d with operand subtracted.
func (d *Dataset) Minus(operand any) (*Dataset, error) {
	return d.arithCopy(opSub, operand)
}

// Times returns a copy of d multiplied by operand.
func (d *Dataset) Times(operand any) (*Dataset, error) {
	return d.arithCopy(opMul, operand)
}

// Over returns a copy of d divided by operand.
func (d *Dataset) Over(operand any) (*Dataset, error) {
	return d.arithCopy(opDiv, operand)
}

func (d *Dataset) arithCopy(op arithOp, operand any) (*Dataset, error) {
	out := d.Clone()
	if err := out.arith(op, operand); err != nil {
		out.Close()
		return nil, err
	}
	return out, nil
}

func (d *Dataset) arith(op arithOp, operand any) error {
	switch v := operand.(type) {
	case float64:
		return d.arithScalar(op, v)
	case int:
		return d.arithScalar(op, float64(v))
	case *Dataset:
		return d.arithDataset(op, v)
	default:
		return fmt.Errorf("%w: cannot %s %T", ErrTypeConstraint, op, operand)
	}
}

func (d *Dataset) arithScalar(op arithOp, s float64) error {
	for _, u := range d.Units() {
		a, err := u.Data()
		if err != nil {
			return err
		}
		dt := a.dtype
		if (s != math.Trunc(s) || op == opDiv) && !dt.IsFloat() {
			dt = Float64
		}
		out := NewArray(dt, a.shape...)
		for i, x := range a.data {
			out.data[i] = dtype.Cast(op.apply(x, s), dt)
		}
		u.SetData(out)

		if op == opMul || op == opDiv {
			v, err := u.Variance()
			if err != nil {
				return err
			}
			if v != nil {
				f := s * s
				if op == opDiv {
					f = 1 / f
				}
				v.Apply(func(x float64) float64 { return x * f })
			}
		}
	}
	return nil
}

func (d *Dataset) arithDataset(op arithOp, other *Dataset) error {
	if d.Len() != other.Len() {
		return shapeMismatch(op.String(), []int{d.Len()}, []int{other.Len()})
	}
	theirs := other.Units()
	results := make([]combined, d.Len())
	for i, u := range d.Units() {
		r, err := u.combine(op, theirs[i])
		if err != nil {
			return fmt.Errorf("unit %d: %w", i, err)
		}
		results[i] = r
	}
	for i, u := range d.Units() {
		results[i].apply(u)
	}
	if !d.IsSliced() {
		for name, t := range other.st.tables {
			if _, ok := d.st.tables[name]; !ok && d.ancillaryOwner(name) < 0 {
				d.st.tables[name] = t.Clone()
			}
		}
	}
	return nil
}

// combined holds the arrays a unit takes after an operation. A nil field
// leaves the unit's current value in place.
type combined struct {
	data, mask, variance *Array
}

func (c combined) apply(u *Unit) {
	u.SetData(c.data)
	if c.mask != nil {
		u.mask = Materialized(c.mask)
	}
	if c.variance != nil {
		u.variance = Materialized(c.variance)
	}
}

// combine computes op between u and o element by element without
// modifying either. u's header, transform and ancillary entries are kept
// when the result is applied.
func (u *Unit) combine(op arithOp, o *Unit) (combined, error) {
	var r combined
	a, err := u.Data()
	if err != nil {
		return r, err
	}
	b, err := o.Data()
	if err != nil {
		return r, err
	}
	if !a.SameShape(b) {
		return r, shapeMismatch(op.String(), a.shape, b.shape)
	}

	va, err := u.Variance()
	if err != nil {
		return r, err
	}
	vb, err := o.Variance()
	if err != nil {
		return r, err
	}
	ma, err := u.Mask()
	if err != nil {
		return r, err
	}
	mb, err := o.Mask()
	if err != nil {
		return r, err
	}
	for _, m := range []*Array{ma, mb} {
		if m != nil && !m.SameShape(a) {
			return r, shapeMismatch(op.String()+" mask", a.shape, m.shape)
		}
	}

	if va != nil || vb != nil {
		if r.variance, err = propagateVariance(op, a, b, va, vb); err != nil {
			return r, err
		}
	}

	switch {
	case mb == nil:
	case ma == nil:
		r.mask = mb.Clone()
	default:
		r.mask = ma.AsType(dtype.Promote(ma.dtype, mb.dtype))
		for i, m := range mb.data {
			r.mask.data[i] = float64(uint64(r.mask.data[i]) | uint64(m))
		}
	}

	dt := dtype.Promote(a.dtype, b.dtype)
	if op == opDiv && !dt.IsFloat() {
		dt = Float64
	}
	r.data = NewArray(dt, a.shape...)
	for i, x := range a.data {
		r.data.data[i] = dtype.Cast(op.apply(x, b.data[i]), dt)
	}
	return r, nil
}

// propagateVariance returns the variance of a op b for independent
// operands. A missing variance counts as zero.
func propagateVariance(op arithOp, a, b, va, vb *Array) (*Array, error) {
	for _, v := range []*Array{va, vb} {
		if v != nil && !slices.Equal(v.shape, a.shape) {
			return nil, shapeMismatch(op.String()+" variance", a.shape, v.shape)
		}
	}
	at := func(v *Array, i int) float64 {
		if v == nil {
			return 0
		}
		return v.data[i]
	}
	dt := Float32
	if va != nil && va.dtype == Float64 || vb != nil && vb.dtype == Float64 {
		dt = Float64
	}
	out := NewArray(dt, a.shape...)
	for i := range out.data {
		x, y := a.data[i], b.data[i]
		v1, v2 := at(va, i), at(vb, i)
		var v float64
		switch op {
		case opAdd, opSub:
			v = v1 + v2
		case opMul:
			v = y*y*v1 + x*x*v2
		case opDiv:
			y2 := y * y
			v = v1/y2 + x*x*v2/(y2*y2)
		}
		out.data[i] = dtype.Cast(v, dt)
	}
	return out, nil
}
