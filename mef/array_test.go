package mef

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seq(dt DType, shape ...int) *Array {
	a := NewArray(dt, shape...)
	for i := range a.data {
		a.data[i] = float64(i)
	}
	return a
}

func TestFromSlice(t *testing.T) {
	a, err := FromSlice(Uint8, []float64{-1, 2.7, 300, 4}, 2, 2)
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 2, 255, 4}, a.Data())
	assert.Equal(t, []int{2, 2}, a.Shape())

	_, err = FromSlice(Float32, []float64{1, 2, 3}, 2, 2)
	assert.ErrorIs(t, err, ErrShapeMismatch)
}

func TestArrayAtSet(t *testing.T) {
	a := seq(Int16, 3, 4)
	v, err := a.At(2, 1)
	require.NoError(t, err)
	assert.Equal(t, 9.0, v)

	require.NoError(t, a.Set(-7.9, 0, 3))
	v, _ = a.At(0, 3)
	assert.Equal(t, -7.0, v)

	_, err = a.At(1)
	assert.ErrorIs(t, err, ErrDimension)
	_, err = a.At(3, 0)
	assert.Error(t, err)
}

func TestArrayWindowAndSetSection(t *testing.T) {
	a := seq(Float32, 4, 5)
	sec, err := NewSection(1, 3, 2, 5)
	require.NoError(t, err)

	w, err := a.Window(sec)
	require.NoError(t, err)
	assert.Equal(t, []int{2, 3}, w.Shape())
	assert.Equal(t, []float64{7, 8, 9, 12, 13, 14}, w.Data())

	w.Fill(-1)
	require.NoError(t, a.SetSection(sec, w))
	v, _ := a.At(2, 4)
	assert.Equal(t, -1.0, v)
	v, _ = a.At(0, 0)
	assert.Equal(t, 0.0, v)

	err = a.SetSection(sec, NewArray(Float32, 3, 2))
	var sm *ShapeMismatchError
	require.ErrorAs(t, err, &sm)
	assert.Equal(t, []int{2, 3}, sm.Want)

	bad, _ := NewSection(0, 5, 0, 1)
	_, err = a.Window(bad)
	assert.Error(t, err)
	_, err = a.Window(FromShape([]int{4}))
	assert.ErrorIs(t, err, ErrDimension)
}

func TestWindowIntoReusesBuffer(t *testing.T) {
	a := seq(Float64, 10, 10)
	big, _ := NewSection(0, 4, 0, 4)
	small, _ := NewSection(5, 7, 5, 8)

	dst, err := a.WindowInto(big, nil)
	require.NoError(t, err)
	backing := &dst.Data()[0]

	dst, err = a.WindowInto(small, dst)
	require.NoError(t, err)
	assert.Same(t, backing, &dst.Data()[0])
	assert.Equal(t, []int{2, 3}, dst.Shape())
	assert.Equal(t, []float64{55, 56, 57, 65, 66, 67}, dst.Data())
}

func TestAsTypeAndAllClose(t *testing.T) {
	a, _ := FromSlice(Float64, []float64{1.5, math.NaN(), -2.5}, 3)
	b := a.AsType(Int32)
	assert.Equal(t, Int32, b.DType())
	assert.Equal(t, 1.0, b.Data()[0])
	assert.Equal(t, Float64, a.DType())

	c := a.Clone()
	c.Data()[0] += 1e-9
	assert.True(t, a.AllClose(c, 1e-6, 0))
	assert.False(t, a.Equal(c))
	assert.False(t, a.AllClose(NewArray(Float64, 4), 1, 1))
}

func TestApplyCasts(t *testing.T) {
	a := Full(Uint8, 200, 2)
	a.Apply(func(v float64) float64 { return v * 2 })
	assert.Equal(t, []float64{255, 255}, a.Data())
}

func TestShapeMismatchErrorMessage(t *testing.T) {
	err := shapeMismatch("add", []int{2, 3}, []int{3, 2})
	assert.True(t, errors.Is(err, ErrShapeMismatch))
	assert.Equal(t, "add: shape mismatch: expected [2 3], got [3 2]", err.Error())
}
