package mef

import (
	"errors"
	"fmt"
	"slices"
)

// Reducer combines the windows of every input over one box into a unit
// covering that box.
type Reducer func(windows []*UnitWindow) (*Unit, error)

// WindowOption configures WindowedOperation.
type WindowOption func(*windowOptions)

type windowOptions struct {
	shape    []int
	dtype    DType
	mask     bool
	variance bool
}

// WithOutputShape sets the full shape instead of taking it from the inputs.
func WithOutputShape(shape ...int) WindowOption {
	return func(o *windowOptions) {
		o.shape = slices.Clone(shape)
	}
}

// WithOutputDType sets the output data type. The default is the type of
// the first input.
func WithOutputDType(dt DType) WindowOption {
	return func(o *windowOptions) {
		o.dtype = dt
	}
}

// WithOutputMask gives the output a uint16 mask filled from the reducer's
// masks.
func WithOutputMask() WindowOption {
	return func(o *windowOptions) {
		o.mask = true
	}
}

// WithOutputVariance gives the output a zeroed variance filled from the
// reducer's variances.
func WithOutputVariance() WindowOption {
	return func(o *windowOptions) {
		o.variance = true
	}
}

// WindowedOperation applies fn box by box over a grid that splits the
// inputs' shape into blocks of kernel size, truncated at the edges, and
// writes each result into a new unit. Only one box of each input is held
// in memory at a time; the window buffers are reused between boxes.
//
// The output takes its header and transform from the first input. Arrays
// the reducer stores as ancillary entries are reassembled by name into
// full-shape arrays when there is more than one box.
func WindowedOperation(fn Reducer, inputs []*Unit, kernel []int, opts ...WindowOption) (*Unit, error) {
	if len(inputs) == 0 {
		return nil, errors.New("windowed operation needs at least one input")
	}
	o := &windowOptions{}
	for _, opt := range opts {
		opt(o)
	}

	shape := o.shape
	if shape == nil {
		shape = inputs[0].Shape()
		for _, in := range inputs[1:] {
			if !slices.Equal(in.Shape(), shape) {
				return nil, shapeMismatch("windowed operation", shape, in.Shape())
			}
		}
	}
	if len(kernel) != len(shape) {
		return nil, fmt.Errorf("%w: %d-axis kernel for %d-axis data", ErrDimension, len(kernel), len(shape))
	}
	for d, k := range kernel {
		if k <= 0 {
			return nil, fmt.Errorf("kernel axis %d has non-positive size %d", d, k)
		}
	}

	dt := o.dtype
	if !dt.Valid() {
		dt = inputs[0].data.DType()
	}
	out := NewUnit(NewArray(dt, shape...), inputs[0].header.Clone())
	out.transform = cloneTransform(inputs[0].transform)
	out.logger = inputs[0].logger
	if o.mask {
		out.mask = Materialized(NewArray(Uint16, shape...))
	}
	if o.variance {
		out.variance = Materialized(NewArray(dt, shape...))
	}

	boxes := gridBoxes(shape, kernel)
	windows := make([]*UnitWindow, len(inputs))
	type piece struct {
		sec Section
		arr *Array
	}
	extras := make(map[string][]piece)

	for _, box := range boxes {
		for i, in := range inputs {
			w, err := in.WindowInto(box, windows[i])
			if err != nil {
				return nil, fmt.Errorf("input %d window %s: %w", i, box, err)
			}
			windows[i] = w
		}
		res, err := fn(windows)
		if err != nil {
			return nil, fmt.Errorf("reducer on window %s: %w", box, err)
		}
		if res == nil {
			return nil, fmt.Errorf("%w: reducer returned no unit for window %s", ErrTypeConstraint, box)
		}
		if err := writeBox(out, box, res); err != nil {
			return nil, fmt.Errorf("window %s: %w", box, err)
		}
		for _, name := range res.anc.Names() {
			a, ok := res.anc.Array(name)
			if !ok {
				return nil, fmt.Errorf("%w: reducer ancillary %s is not an array", ErrTypeConstraint, name)
			}
			if len(boxes) > 1 {
				a = a.Clone()
			}
			extras[name] = append(extras[name], piece{sec: box, arr: a})
		}
	}

	for name, pieces := range extras {
		if len(boxes) == 1 {
			out.anc.values[name] = pieces[0].arr
			continue
		}
		full := NewArray(pieces[0].arr.dtype, shape...)
		for _, p := range pieces {
			if err := full.SetSection(p.sec, p.arr); err != nil {
				return nil, fmt.Errorf("reassembling %s: %w", name, err)
			}
		}
		out.anc.values[name] = full
	}
	return out, nil
}

func writeBox(out *Unit, box Section, res *Unit) error {
	data, err := res.Data()
	if err != nil {
		return err
	}
	if data == nil {
		return fmt.Errorf("%w: reducer result has no data", ErrTypeConstraint)
	}
	if err := out.data.array.SetSection(box, data); err != nil {
		return err
	}
	if out.mask.array != nil {
		if m, err := res.Mask(); err != nil {
			return err
		} else if m != nil {
			if err := out.mask.array.SetSection(box, m); err != nil {
				return err
			}
		}
	}
	if out.variance.array != nil {
		if v, err := res.Variance(); err != nil {
			return err
		} else if v != nil {
			if err := out.variance.array.SetSection(box, v); err != nil {
				return err
			}
		}
	}
	return nil
}

// gridBoxes splits shape into kernel-sized boxes in row-major order.
func gridBoxes(shape, kernel []int) []Section {
	counts := make([]int, len(shape))
	total := 1
	for d := range shape {
		counts[d] = (shape[d] + kernel[d] - 1) / kernel[d]
		total *= counts[d]
	}
	if total == 0 {
		return nil
	}
	boxes := make([]Section, 0, total)
	pos := make([]int, len(shape))
	for {
		sec := Section{Start: make([]int, len(shape)), Stop: make([]int, len(shape))}
		for d := range shape {
			sec.Start[d] = pos[d] * kernel[d]
			sec.Stop[d] = min(sec.Start[d]+kernel[d], shape[d])
		}
		boxes = append(boxes, sec)

		d := len(shape) - 1
		for ; d >= 0; d-- {
			pos[d]++
			if pos[d] < counts[d] {
				break
			}
			pos[d] = 0
		}
		if d < 0 {
			return boxes
		}
	}
}
