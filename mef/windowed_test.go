package mef

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// meanReducer averages the inputs and counts masked pixels into a COUNT
// ancillary array.
func meanReducer(windows []*UnitWindow) (*Unit, error) {
	shape := windows[0].Data.Shape()
	sum := NewArray(Float64, shape...)
	count := NewArray(Int16, shape...)
	mask := NewArray(Uint16, shape...)
	for _, w := range windows {
		for i, v := range w.Data.Data() {
			sum.Data()[i] += v / float64(len(windows))
		}
		if w.Mask != nil {
			for i, m := range w.Mask.Data() {
				if m != 0 {
					count.Data()[i]++
					mask.Data()[i] = 1
				}
			}
		}
	}
	u := NewUnit(sum, nil)
	if err := u.SetMask(mask, true); err != nil {
		return nil, err
	}
	if err := u.Ancillary().Set("COUNT", count); err != nil {
		return nil, err
	}
	return u, nil
}

func windowInputs(t *testing.T) []*Unit {
	t.Helper()
	var units []*Unit
	for i := 0; i < 3; i++ {
		u := NewUnit(seq(Float32, 7, 9), NewHeader(Card{Key: "INDEX", Value: i}))
		m := NewArray(Uint16, 7, 9)
		m.Data()[i*10] = 4
		require.NoError(t, u.SetMask(m, true))
		units = append(units, u)
	}
	return units
}

func TestWindowedOperationChunkingIsInvisible(t *testing.T) {
	inputs := windowInputs(t)
	whole, err := WindowedOperation(meanReducer, inputs, []int{7, 9},
		WithOutputDType(Float64), WithOutputMask())
	require.NoError(t, err)

	for _, kernel := range [][]int{{1, 9}, {3, 4}, {2, 2}, {7, 1}, {100, 100}} {
		out, err := WindowedOperation(meanReducer, inputs, kernel,
			WithOutputDType(Float64), WithOutputMask())
		require.NoError(t, err, "kernel %v", kernel)

		want, _ := whole.Data()
		got, _ := out.Data()
		assert.True(t, want.Equal(got), "kernel %v data", kernel)
		wm, _ := whole.Mask()
		gm, _ := out.Mask()
		assert.True(t, wm.Equal(gm), "kernel %v mask", kernel)

		wc, _ := whole.Ancillary().Array("COUNT")
		gc, ok := out.Ancillary().Array("COUNT")
		require.True(t, ok)
		assert.True(t, wc.Equal(gc), "kernel %v COUNT", kernel)
	}

	data, _ := whole.Data()
	assert.True(t, data.Equal(seq(Float64, 7, 9)))
	idx, _ := whole.Header().Int("INDEX")
	assert.EqualValues(t, 0, idx)
	count, _ := whole.Ancillary().Array("COUNT")
	assert.Equal(t, 1.0, count.Data()[10])
}

func TestWindowedOperationLazyInputs(t *testing.T) {
	d := New(nil)
	for i := 0; i < 2; i++ {
		require.NoError(t, d.Append(seq(Float32, 7, 9), "", nil))
	}
	raw := encode(t, d, WithCompression("zstd"))
	lazy, err := Read(bytes.NewReader(raw), int64(len(raw)))
	require.NoError(t, err)

	out, err := WindowedOperation(meanReducer, lazy.Units(), []int{2, 5})
	require.NoError(t, err)
	for _, u := range lazy.Units() {
		assert.True(t, u.DataPixels().IsLazy())
	}
	data, _ := out.Data()
	assert.Equal(t, Float32, data.DType())
	assert.True(t, data.Equal(seq(Float32, 7, 9)))
	assert.False(t, out.HasMask())
}

func TestWindowedOperationErrors(t *testing.T) {
	inputs := windowInputs(t)

	_, err := WindowedOperation(meanReducer, inputs, []int{2})
	assert.ErrorIs(t, err, ErrDimension)

	odd := append(inputs, NewUnit(NewArray(Float32, 7, 8), nil))
	_, err = WindowedOperation(meanReducer, odd, []int{2, 2})
	assert.ErrorIs(t, err, ErrShapeMismatch)

	_, err = WindowedOperation(meanReducer, nil, []int{2, 2})
	assert.Error(t, err)
	_, err = WindowedOperation(meanReducer, inputs, []int{0, 2})
	assert.Error(t, err)

	tableReducer := func(w []*UnitWindow) (*Unit, error) {
		u := NewUnit(w[0].Data.Clone(), nil)
		return u, u.Ancillary().Set("CAT", NewStringTable("id"))
	}
	_, err = WindowedOperation(tableReducer, inputs, []int{2, 2})
	assert.ErrorIs(t, err, ErrTypeConstraint)

	nilReducer := func([]*UnitWindow) (*Unit, error) { return nil, nil }
	_, err = WindowedOperation(nilReducer, inputs, []int{2, 2})
	assert.ErrorIs(t, err, ErrTypeConstraint)

	emptyReducer := func([]*UnitWindow) (*Unit, error) { return NewUnit(nil, nil), nil }
	_, err = WindowedOperation(emptyReducer, inputs, []int{2, 2})
	assert.ErrorIs(t, err, ErrTypeConstraint)
}

func TestGridBoxes(t *testing.T) {
	boxes := gridBoxes([]int{5, 3}, []int{2, 2})
	var got []string
	for _, b := range boxes {
		got = append(got, b.String())
	}
	assert.Equal(t, []string{
		"Section(0:2, 0:2)", "Section(0:2, 2:3)",
		"Section(2:4, 0:2)", "Section(2:4, 2:3)",
		"Section(4:5, 0:2)", "Section(4:5, 2:3)",
	}, got)
	assert.Empty(t, gridBoxes([]int{0, 3}, []int{1, 1}))
}
