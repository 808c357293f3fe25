package mef

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rotated() *AffineTransform {
	return &AffineTransform{
		CRPIX:  []float64{50, 40},
		CRVAL:  []float64{150.1, 2.2},
		Matrix: [][]float64{{0, -1e-4}, {1e-4, 0}},
		Frame:  "ICRS",
		Units:  []string{"deg", "deg"},
	}
}

func TestAffineForwardInverse(t *testing.T) {
	tr := rotated()
	world, err := tr.Forward(60, 45)
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{150.1 - 5e-4, 2.2 + 1e-3}, world, 1e-12)

	pix, err := tr.Inverse(world...)
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{60, 45}, pix, 1e-9)

	at, err := tr.Forward(tr.CRPIX...)
	require.NoError(t, err)
	assert.Equal(t, tr.CRVAL, at)

	_, err = tr.Forward(1)
	assert.ErrorIs(t, err, ErrDimension)
	_, err = tr.Inverse(1, 2, 3)
	assert.ErrorIs(t, err, ErrDimension)

	singular := NewAffineTransform([]float64{1, 1}, []float64{0, 0})
	singular.Matrix[1][1] = 0
	_, err = singular.Inverse(1, 1)
	assert.ErrorContains(t, err, "singular")

	broken := &AffineTransform{CRPIX: []float64{1}, CRVAL: []float64{1, 2}, Matrix: [][]float64{{1}}}
	_, err = broken.Forward(1)
	assert.Error(t, err)
}

func TestAffineShift(t *testing.T) {
	tr := rotated()
	shifted := tr.Shift(10, 5)
	assert.Equal(t, []float64{40, 35}, shifted.CRPIX)
	assert.Equal(t, []float64{50, 40}, tr.CRPIX)

	want, _ := tr.Forward(60, 45)
	got, _ := shifted.Forward(50, 40)
	assert.InDeltaSlice(t, want, got, 1e-12)
}

func TestTransformCodecs(t *testing.T) {
	codecs := map[string]TransformCodec{
		"yaml": YAMLTransformCodec{},
		"cbor": CBORTransformCodec{},
		"auto": AutoTransformCodec{},
	}
	for name, codec := range codecs {
		t.Run(name, func(t *testing.T) {
			doc, err := codec.Encode(rotated())
			require.NoError(t, err)
			assert.Equal(t, name != "cbor", isText(doc))

			back, err := AutoTransformCodec{}.Decode(doc)
			require.NoError(t, err)
			if diff := cmp.Diff(rotated(), back); diff != "" {
				t.Errorf("round trip mismatch (-want +got):\n%s", diff)
			}
		})
	}

	_, err := YAMLTransformCodec{}.Encode(failingTransform{})
	assert.ErrorIs(t, err, ErrTypeConstraint)
	_, err = YAMLTransformCodec{}.Decode([]byte("kind: spline\ncrpix: [1]\n"))
	assert.ErrorContains(t, err, "unknown transform kind")
	_, err = CBORTransformCodec{}.Decode([]byte{0xff, 0x00})
	assert.Error(t, err)
}

func TestTransformFromHeader(t *testing.T) {
	tests := []struct {
		name string
		h    *Header
		want *AffineTransform
	}{
		{
			name: "pc and cdelt",
			h: NewHeader(
				Card{Key: "CRPIX1", Value: 10.0}, Card{Key: "CRPIX2", Value: 20},
				Card{Key: "CRVAL1", Value: 180.0}, Card{Key: "CRVAL2", Value: -30.0},
				Card{Key: "CDELT1", Value: -2e-4}, Card{Key: "CDELT2", Value: 2e-4},
				Card{Key: "PC1_2", Value: 0.5},
				Card{Key: "CUNIT1", Value: "deg"}, Card{Key: "CUNIT2", Value: "deg"},
				Card{Key: "RADESYS", Value: "FK5"},
			),
			want: &AffineTransform{
				CRPIX:  []float64{10, 20},
				CRVAL:  []float64{180, -30},
				Matrix: [][]float64{{-2e-4, -1e-4}, {0, 2e-4}},
				Frame:  "FK5",
				Units:  []string{"deg", "deg"},
			},
		},
		{
			name: "cd matrix wins",
			h: NewHeader(
				Card{Key: "CRPIX1", Value: 1.0}, Card{Key: "CRPIX2", Value: 1.0},
				Card{Key: "CD1_1", Value: 3.0}, Card{Key: "CD2_2", Value: 4.0},
				Card{Key: "CDELT1", Value: 100.0},
			),
			want: &AffineTransform{
				CRPIX:  []float64{1, 1},
				CRVAL:  []float64{0, 0},
				Matrix: [][]float64{{3, 0}, {0, 4}},
			},
		},
		{
			name: "wcsaxes",
			h: NewHeader(
				Card{Key: "WCSAXES", Value: 1},
				Card{Key: "CRPIX1", Value: 5.0}, Card{Key: "CRPIX2", Value: 6.0},
				Card{Key: "CUNIT1", Value: "nm"},
			),
			want: &AffineTransform{
				CRPIX:  []float64{5},
				CRVAL:  []float64{0},
				Matrix: [][]float64{{1}},
				Units:  []string{"nm"},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := TransformFromHeader(tt.h)
			require.NoError(t, err)
			if diff := cmp.Diff(tt.want, got, cmpopts.EquateEmpty(), cmpopts.EquateApprox(0, 1e-15)); diff != "" {
				t.Errorf("TransformFromHeader mismatch (-want +got):\n%s", diff)
			}
		})
	}

	_, err := TransformFromHeader(NewHeader(Card{Key: "CRVAL1", Value: 1.0}))
	assert.ErrorIs(t, err, ErrKeyNotFound)
	_, err = TransformFromHeader(NewHeader(Card{Key: "CRPIX1", Value: "middle"}))
	assert.ErrorIs(t, err, ErrTypeConstraint)
}
