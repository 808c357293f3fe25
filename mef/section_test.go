package mef

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSection(t *testing.T) {
	s, err := ParseSection("[11:20, 1:5]")
	require.NoError(t, err)
	assert.Equal(t, []int{0, 10}, s.Start)
	assert.Equal(t, []int{5, 20}, s.Stop)
	assert.Equal(t, []int{5, 10}, s.Shape())
	assert.Equal(t, "[11:20,1:5]", s.IRAF())
	assert.Equal(t, "Section(0:5, 10:20)", s.String())

	for _, bad := range []string{"11:20,1:5", "[1-5]", "[0:4]", "[5:4]", "[a:3]"} {
		_, err := ParseSection(bad)
		assert.Error(t, err, bad)
	}
}

func TestSectionGeometry(t *testing.T) {
	a, _ := NewSection(0, 10, 0, 10)
	b, _ := NewSection(5, 15, 2, 4)

	o, ok := a.Overlap(b)
	require.True(t, ok)
	assert.True(t, o.Equal(Section{Start: []int{5, 2}, Stop: []int{10, 4}}))
	assert.Equal(t, 10, o.Size())
	assert.False(t, a.Contains(b))
	assert.True(t, a.Contains(o))

	c, _ := NewSection(20, 30, 0, 1)
	_, ok = a.Overlap(c)
	assert.False(t, ok)

	shifted, err := b.Shift(-5, 1)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 3}, shifted.Start)
	assert.True(t, shifted.IsSameSize(b))

	_, err = b.Shift(1)
	assert.ErrorIs(t, err, ErrDimension)
}

func TestNewSectionErrors(t *testing.T) {
	_, err := NewSection(0, 1, 2)
	assert.Error(t, err)
	_, err = NewSection(3, 1)
	assert.Error(t, err)
	_, err = NewSection(-1, 1)
	assert.Error(t, err)
}
