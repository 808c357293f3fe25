package mef

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func unitDataset(t *testing.T, data, mask, variance *Array) *Dataset {
	t.Helper()
	d := New(nil)
	require.NoError(t, d.Append(data, "", nil))
	u, _ := d.Unit(0)
	if mask != nil {
		require.NoError(t, u.SetMask(mask, true))
	}
	if variance != nil {
		require.NoError(t, u.SetVariance(variance, true))
	}
	return d
}

func TestAddDatasets(t *testing.T) {
	m1 := NewArray(Uint16, 40, 50)
	m1.Data()[0] = 1
	m2 := NewArray(Uint16, 40, 50)
	m2.Data()[0] = 4
	m2.Data()[1] = 8

	a := unitDataset(t, Full(Float32, 1, 40, 50), m1, nil)
	b := unitDataset(t, Full(Float32, 2, 40, 50), m2, nil)

	sum, err := a.Plus(b)
	require.NoError(t, err)
	require.Equal(t, 1, sum.Len())

	u, _ := sum.Unit(0)
	data, _ := u.Data()
	assert.Equal(t, []int{40, 50}, data.Shape())
	assert.True(t, data.Equal(Full(Float32, 3, 40, 50)))
	mask, _ := u.Mask()
	assert.Equal(t, 5.0, mask.Data()[0])
	assert.Equal(t, 8.0, mask.Data()[1])
	assert.Equal(t, 0.0, mask.Data()[2])

	orig, _ := a.Unit(0)
	origData, _ := orig.Data()
	assert.Equal(t, 1.0, origData.Data()[0])
}

func TestArithInverse(t *testing.T) {
	base := seq(Float64, 3, 4)
	d := unitDataset(t, base.Clone(), nil, nil)
	other := unitDataset(t, Full(Float64, 2.5, 3, 4), nil, nil)

	require.NoError(t, d.Add(other))
	require.NoError(t, d.Subtract(other))
	require.NoError(t, d.Multiply(4.0))
	require.NoError(t, d.Divide(4))

	u, _ := d.Unit(0)
	data, _ := u.Data()
	assert.True(t, data.AllClose(base, 1e-12, 0))
}

func TestScalarPromotesIntegers(t *testing.T) {
	d := unitDataset(t, Full(Int16, 3, 2), nil, nil)
	require.NoError(t, d.Add(1))
	u, _ := d.Unit(0)
	data, _ := u.Data()
	assert.Equal(t, Int16, data.DType())
	assert.Equal(t, []float64{4, 4}, data.Data())

	require.NoError(t, d.Multiply(0.5))
	data, _ = u.Data()
	assert.Equal(t, Float64, data.DType())
	assert.Equal(t, []float64{2, 2}, data.Data())

	e := unitDataset(t, Full(Int32, 3, 2), nil, nil)
	require.NoError(t, e.Divide(2))
	eu, _ := e.Unit(0)
	ed, _ := eu.Data()
	assert.Equal(t, []float64{1.5, 1.5}, ed.Data())
}

func TestVariancePropagation(t *testing.T) {
	newPair := func() (*Dataset, *Dataset) {
		a := unitDataset(t, Full(Float32, 4, 2), nil, Full(Float32, 1, 2))
		b := unitDataset(t, Full(Float32, 2, 2), nil, Full(Float32, 0.5, 2))
		return a, b
	}
	tests := []struct {
		name string
		op   func(*Dataset, any) (*Dataset, error)
		want float64
	}{
		{"add", (*Dataset).Plus, 1.5},
		{"subtract", (*Dataset).Minus, 1.5},
		{"multiply", (*Dataset).Times, 2*2*1 + 4*4*0.5},
		{"divide", (*Dataset).Over, 1.0/4 + 16*0.5/16},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, b := newPair()
			out, err := tt.op(a, b)
			require.NoError(t, err)
			u, _ := out.Unit(0)
			v, err := u.Variance()
			require.NoError(t, err)
			require.NotNil(t, v)
			assert.InDelta(t, tt.want, v.Data()[0], 1e-6)
		})
	}

	a := unitDataset(t, Full(Float32, 4, 2), nil, Full(Float32, 1, 2))
	require.NoError(t, a.Multiply(3.0))
	u, _ := a.Unit(0)
	v, _ := u.Variance()
	assert.Equal(t, 9.0, v.Data()[0])
	require.NoError(t, a.Divide(3.0))
	v, _ = u.Variance()
	assert.InDelta(t, 1.0, v.Data()[0], 1e-6)
}

func TestVarianceFromOperandOnly(t *testing.T) {
	a := unitDataset(t, Full(Float32, 4, 2), nil, nil)
	b := unitDataset(t, Full(Float32, 2, 2), nil, Full(Float32, 0.5, 2))
	require.NoError(t, a.Add(b))
	u, _ := a.Unit(0)
	require.True(t, u.HasVariance())
	v, _ := u.Variance()
	assert.Equal(t, 0.5, v.Data()[0])
}

func TestArithErrors(t *testing.T) {
	a := unitDataset(t, Full(Float32, 1, 2, 2), nil, nil)
	b := unitDataset(t, Full(Float32, 1, 2, 3), nil, nil)

	var sm *ShapeMismatchError
	require.ErrorAs(t, a.Add(b), &sm)
	assert.Equal(t, []int{2, 2}, sm.Want)

	two := newTestDataset(t, 2, 2, 2)
	assert.ErrorIs(t, a.Add(two), ErrShapeMismatch)
	assert.ErrorIs(t, a.Add("1"), ErrTypeConstraint)
}

func TestArithFailureLeavesUnitsUntouched(t *testing.T) {
	a := newTestDataset(t, 2, 2)
	for _, u := range a.Units() {
		require.NoError(t, u.SetVariance(Full(Float32, 1, 2), true))
	}
	b := newTestDataset(t, 2, 2)
	for _, u := range b.Units() {
		require.NoError(t, u.SetVariance(Full(Float32, 0.5, 2), true))
	}
	bad, _ := b.Unit(1)
	bad.mask = Materialized(NewArray(Uint16, 3))

	err := a.Add(b)
	assert.ErrorIs(t, err, ErrShapeMismatch)
	for i, u := range a.Units() {
		data, _ := u.Data()
		assert.Equal(t, []float64{float64(i + 1), float64(i + 1)}, data.Data())
		v, _ := u.Variance()
		assert.Equal(t, []float64{1, 1}, v.Data())
		assert.False(t, u.HasMask())
	}
}

func TestArithAdoptsOperandTables(t *testing.T) {
	a := unitDataset(t, Full(Float32, 1, 2), nil, nil)
	b := unitDataset(t, Full(Float32, 1, 2), nil, nil)
	require.NoError(t, b.SetExt("REFCAT", NewStringTable("id")))
	require.NoError(t, b.SetExt("MDF", NewStringTable("slit")))
	require.NoError(t, a.SetExt("MDF", NewStringTable("own")))

	require.NoError(t, a.Add(b))
	assert.Equal(t, []string{"MDF", "REFCAT"}, a.Tables())
	mdf, _ := a.Table("MDF")
	assert.Equal(t, []string{"own"}, mdf.Names())

	refcat, _ := a.Table("REFCAT")
	bref, _ := b.Table("REFCAT")
	assert.NotSame(t, bref, refcat)
}

func TestArithOnView(t *testing.T) {
	d := newTestDataset(t, 3, 2)
	v, _ := d.SliceRange(1, 3)
	require.NoError(t, v.Multiply(10))

	want := []float64{1, 20, 30}
	for i, u := range d.Units() {
		data, _ := u.Data()
		assert.Equal(t, want[i], data.Data()[0])
	}
}
