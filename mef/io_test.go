package mef

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/robert-malhotra/go-mef/internal/card"
)

// sampleDataset builds two 6×8 units; the first carries every optional
// part.
func sampleDataset(t *testing.T) *Dataset {
	t.Helper()
	d := New(NewHeader(
		Card{Key: "INSTRUME", Value: "GMOS-N"},
		Card{Key: "OBSTYPE", Value: "OBJECT"},
	))
	require.NoError(t, d.Append(seq(Float32, 6, 8), "", NewHeader(Card{Key: "GAIN", Value: 2.1})))
	require.NoError(t, d.Append(Full(Int16, -3, 6, 8), "", nil))

	u, _ := d.Unit(0)
	mask := NewArray(Uint16, 6, 8)
	mask.Data()[5] = 1
	mask.Data()[47] = 65535
	require.NoError(t, u.SetMask(mask, true))
	require.NoError(t, u.SetVariance(Full(Float32, 0.25, 6, 8), true))
	wcs := NewAffineTransform([]float64{4.5, 3.5}, []float64{150.1, 2.2})
	wcs.Matrix = [][]float64{{-1e-4, 0}, {0, 1e-4}}
	wcs.Frame = "ICRS"
	u.SetTransform(wcs)
	require.NoError(t, u.Ancillary().Set("OBJMASK", Full(Uint8, 1, 6, 8)))

	cat, err := NewTable(
		Column{Name: "id", Data: []int32{1, 2}},
		Column{Name: "flux", Unit: "adu", Data: []float64{10.5, 20.25}},
	)
	require.NoError(t, err)
	require.NoError(t, u.Ancillary().Set("OBJCAT", cat))

	refcat := NewStringTable("name")
	require.NoError(t, refcat.AddRow("HD 1234"))
	require.NoError(t, d.SetExt("REFCAT", refcat))
	return d
}

func encode(t *testing.T, d *Dataset, opts ...WriteOption) []byte {
	t.Helper()
	var buf bytes.Buffer
	n, err := WriteTo(d, &buf, opts...)
	require.NoError(t, err)
	require.EqualValues(t, buf.Len(), n)
	require.Zero(t, buf.Len()%2880)
	return buf.Bytes()
}

func rawContainer(t *testing.T, recs ...*Record) []byte {
	t.Helper()
	var buf bytes.Buffer
	_, err := writeRecords(&buf, recs, defaultWriteOptions())
	require.NoError(t, err)
	return buf.Bytes()
}

func assertSameDataset(t *testing.T, want, got *Dataset) {
	t.Helper()
	require.Equal(t, want.Len(), got.Len())
	for i, wu := range want.Units() {
		gu := got.Units()[i]
		for _, pair := range [][2]func() (*Array, error){
			{wu.Data, gu.Data}, {wu.Mask, gu.Mask}, {wu.Variance, gu.Variance},
		} {
			w, err := pair[0]()
			require.NoError(t, err)
			g, err := pair[1]()
			require.NoError(t, err)
			if w == nil {
				assert.Nil(t, g, "unit %d", i)
				continue
			}
			require.NotNil(t, g, "unit %d", i)
			assert.Equal(t, w.DType(), g.DType(), "unit %d", i)
			assert.True(t, w.Equal(g), "unit %d: %v != %v", i, w, g)
		}
		assert.True(t, wu.Header().Equal(gu.Header(), "EXTNAME", "EXTVER"), "unit %d header", i)
		assert.Equal(t, wu.Ancillary().Names(), gu.Ancillary().Names())

		if wu.Transform() == nil {
			assert.Nil(t, gu.Transform())
			continue
		}
		require.NotNil(t, gu.Transform())
		for _, pix := range [][]float64{{1, 1}, {8, 6}, {4.5, 3.5}} {
			w, err := wu.Transform().Forward(pix...)
			require.NoError(t, err)
			g, err := gu.Transform().Forward(pix...)
			require.NoError(t, err)
			assert.InDeltaSlice(t, w, g, 1e-7*150)
		}
	}
	assert.Equal(t, want.Tables(), got.Tables())
}

func TestWriteReadRoundTrip(t *testing.T) {
	d := sampleDataset(t)
	path := filepath.Join(t.TempDir(), "N20240101S0001.fits")
	require.NoError(t, WriteFile(d, path))
	assert.Equal(t, path, d.Path())

	for _, memmap := range []bool{true, false} {
		got, err := ReadFile(path, WithMemmap(memmap))
		require.NoError(t, err)

		u, _ := got.Unit(0)
		assert.Equal(t, memmap, u.DataPixels().IsLazy())

		assertSameDataset(t, d, got)
		assert.Equal(t, "N20240101S0001.fits", got.OrigFilename())
		orig, _ := got.PHU().String("ORIGNAME")
		assert.Equal(t, "N20240101S0001.fits", orig)
		n, _ := got.PHU().Int("NEXTEND")
		assert.EqualValues(t, 8, n)

		assert.Equal(t, 1, u.Version())
		assert.Equal(t, got.ID(), u.Owner())

		cat, ok := u.Ancillary().Table("OBJCAT")
		require.True(t, ok)
		flux, _ := cat.Column("flux")
		if diff := cmp.Diff([]float64{10.5, 20.25}, flux.Data); diff != "" {
			t.Errorf("OBJCAT flux mismatch (-want +got):\n%s", diff)
		}
		refcat, err := got.Table("REFCAT")
		require.NoError(t, err)
		names, _ := refcat.Strings("name")
		assert.Equal(t, []string{"HD 1234"}, names)
		require.NoError(t, got.Close())
	}
}

func TestRecordLayout(t *testing.T) {
	d := sampleDataset(t)
	recs, err := ToRecords(d)
	require.NoError(t, err)

	var layout []string
	for _, r := range recs {
		layout = append(layout, r.String())
	}
	assert.Equal(t, []string{
		"primary(,0)",
		"image(SCI,1)", "image(VAR,1)", "image(DQ,1)", "table(WCS,1)",
		"table(OBJCAT,1)", "image(OBJMASK,1)",
		"image(SCI,2)",
		"table(REFCAT,0)",
	}, layout)
	assert.False(t, recs[len(recs)-1].Header.Has("EXTVER"))
}

func TestBorrowedUnitsAreRenumbered(t *testing.T) {
	d := newTestDataset(t, 2, 2)
	other := newTestDataset(t, 3, 2)
	borrowed, _ := other.Slice(2)
	require.NoError(t, d.Append(borrowed, "", nil))
	require.NoError(t, d.Delete(0))

	recs, err := ToRecords(d)
	require.NoError(t, err)
	var versions []int
	for _, r := range recs[1:] {
		versions = append(versions, r.Version)
	}
	assert.Equal(t, []int{2, 3}, versions)
}

func TestUnversionedRecordsAreGrouped(t *testing.T) {
	mask := NewArray(Uint16, 40, 50)
	mask.Data()[0] = 1
	raw := rawContainer(t,
		NewPrimaryRecord(nil, nil),
		NewImageRecord("", 0, nil, Full(Float32, 1, 40, 50)),
		NewImageRecord(MaskRole, 0, nil, mask),
		NewImageRecord("", 0, nil, Full(Float32, 2, 40, 50)),
	)

	d, err := Read(bytes.NewReader(raw), int64(len(raw)))
	require.NoError(t, err)
	require.Equal(t, 2, d.Len())

	u, _ := d.Unit(0)
	assert.Equal(t, 1, u.Version())
	require.True(t, u.HasMask())
	m, err := u.Mask()
	require.NoError(t, err)
	assert.Equal(t, u.Shape(), m.Shape())
	assert.Equal(t, "Added by mef", u.Header().Comment("EXTVER"))

	second, _ := d.Unit(1)
	assert.Equal(t, 2, second.Version())
	assert.False(t, second.HasMask())
}

func TestSingleImageCompatibility(t *testing.T) {
	h := NewHeader(Card{Key: "OBJECT", Value: "M42"})
	raw := rawContainer(t, NewPrimaryRecord(h, seq(Int16, 3, 4)))

	d, err := Read(bytes.NewReader(raw), int64(len(raw)))
	require.NoError(t, err)
	require.Equal(t, 1, d.Len())

	u, _ := d.Unit(0)
	name, _ := u.Header().String("EXTNAME")
	assert.Equal(t, SciRole, name)
	assert.Equal(t, 1, u.Version())
	obj, _ := d.Object()
	assert.Equal(t, "M42", obj)

	data, _ := u.Data()
	assert.True(t, data.Equal(seq(Int16, 3, 4)))
}

func TestDuplicateScienceVersion(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	raw := rawContainer(t,
		NewPrimaryRecord(nil, nil),
		NewImageRecord(SciRole, 1, nil, Full(Float32, 1, 2)),
		NewImageRecord(SciRole, 1, nil, Full(Float32, 2, 2)),
		NewImageRecord(VarianceRole, 1, nil, Full(Float32, 3, 2)),
		NewImageRecord(MaskRole, 1, nil, NewArray(Uint16, 5)),
		NewImageRecord("STRAY", 4, nil, NewArray(Uint8, 1)),
	)

	d, err := Read(bytes.NewReader(raw), int64(len(raw)), WithLogger(zap.New(core)))
	require.NoError(t, err)
	require.Equal(t, 2, d.Len())
	assert.Equal(t, 1, logs.FilterMessage("multiple SCI records with the same version").Len())
	assert.Equal(t, 1, logs.FilterMessage("ignoring record with a shape different from SCI").Len())
	assert.Equal(t, 1, logs.FilterMessage("discarding image without a SCI record").Len())

	first, _ := d.Unit(0)
	assert.True(t, first.HasVariance())
	assert.False(t, first.HasMask())
	second, _ := d.Unit(1)
	assert.Equal(t, d.ID(), first.Owner())
	assert.NotEqual(t, d.ID(), second.Owner())

	recs, err := ToRecords(d)
	require.NoError(t, err)
	assert.Equal(t, 2, recs[len(recs)-1].Version)
}

func TestCompressedPayloads(t *testing.T) {
	d := sampleDataset(t)
	for _, pipeline := range []string{"shuffle,zstd", "deflate", "lz4", "s2,fletcher32"} {
		t.Run(pipeline, func(t *testing.T) {
			raw := encode(t, d, WithCompression(pipeline))
			got, err := Read(bytes.NewReader(raw), int64(len(raw)), WithBlockCacheSize(2))
			require.NoError(t, err)
			defer got.Close()

			u, _ := got.Unit(0)
			require.True(t, u.DataPixels().IsLazy())
			sec, _ := NewSection(2, 4, 3, 6)
			w, err := u.Window(sec)
			require.NoError(t, err)
			want, _ := seq(Float32, 6, 8).Window(sec)
			assert.True(t, want.Equal(w.Data))
			assert.Equal(t, []int{2, 3}, w.Mask.Shape())

			assertSameDataset(t, d, got)
		})
	}

	_, err := WriteTo(d, &bytes.Buffer{}, WithCompression("bzip2"))
	assert.Error(t, err)
}

func TestChecksumMismatch(t *testing.T) {
	raw := encode(t, newTestDataset(t, 1, 4, 4))
	raw[2*2880] ^= 0xff

	_, err := Read(bytes.NewReader(raw), int64(len(raw)))
	assert.ErrorIs(t, err, ErrContainerFormat)

	d, err := Read(bytes.NewReader(raw), int64(len(raw)), WithChecksumVerification(false))
	require.NoError(t, err)
	assert.Equal(t, 1, d.Len())

	plain := encode(t, newTestDataset(t, 1, 4, 4), WithoutChecksums())
	assert.NotContains(t, string(plain), "DATAHASH")
}

func TestInt64PayloadPrecision(t *testing.T) {
	a := NewArray(Int64, 2)
	a.Data()[0] = 1 << 53
	a.Data()[1] = -5
	d := New(nil)
	require.NoError(t, d.Append(a, "", nil))
	raw := encode(t, d, WithoutChecksums())

	got, err := Read(bytes.NewReader(raw), int64(len(raw)))
	require.NoError(t, err)
	u, _ := got.Unit(0)
	data, err := u.Data()
	require.NoError(t, err)
	assert.Equal(t, Int64, data.DType())
	assert.Equal(t, []float64{1 << 53, -5}, data.Data())

	off := 2 * 2880
	require.Equal(t, uint64(1<<53), binary.BigEndian.Uint64(raw[off:]))
	binary.BigEndian.PutUint64(raw[off:], 1<<53+1)

	_, err = Read(bytes.NewReader(raw), int64(len(raw)))
	assert.ErrorIs(t, err, ErrTypeConstraint)

	path := filepath.Join(t.TempDir(), "big.fits")
	require.NoError(t, os.WriteFile(path, raw, 0o644))
	lazy, err := ReadFile(path, WithMemmap(true))
	require.NoError(t, err)
	defer lazy.Close()
	lu, _ := lazy.Unit(0)
	_, err = lu.Data()
	assert.ErrorIs(t, err, ErrTypeConstraint)
}

func TestLongHeaderText(t *testing.T) {
	d := newTestDataset(t, 1, 2)
	note := strings.Repeat("flat field taken at twilight; ", 4)
	d.PHU().Add("HISTORY", note)
	raw := encode(t, d)

	got, err := Read(bytes.NewReader(raw), int64(len(raw)))
	require.NoError(t, err)
	var history []string
	for _, c := range got.PHU().Cards() {
		if c.Key == "HISTORY" {
			history = append(history, c.Value.(string))
		}
	}
	require.Len(t, history, 2)
	assert.Equal(t, strings.TrimRight(note, " "), history[0]+history[1])

	u, _ := d.Unit(0)
	u.Header().Set("GAIN", 2.1, strings.Repeat("electrons per count ", 4))
	_, err = WriteTo(d, &bytes.Buffer{})
	assert.ErrorIs(t, err, card.ErrInvalidCard)
}

func TestMalformedContainer(t *testing.T) {
	junk := bytes.Repeat([]byte("x"), 2880)
	_, err := Read(bytes.NewReader(junk), int64(len(junk)))
	assert.ErrorIs(t, err, ErrContainerFormat)

	_, err = ReadFile(filepath.Join(t.TempDir(), "missing.fits"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	_, err = AssembleFrom(nil)
	assert.ErrorIs(t, err, ErrContainerFormat)
}

func TestMemoryMappedLifetime(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lazy.fits")
	require.NoError(t, WriteFile(sampleDataset(t), path))

	d, err := ReadFile(path)
	require.NoError(t, err)
	c := d.Clone()
	view, _ := d.Slice(0)

	require.NoError(t, d.Close())
	require.NoError(t, view.Close())

	cu, _ := c.Unit(0)
	data, err := cu.Data()
	require.NoError(t, err)
	assert.True(t, data.Equal(seq(Float32, 6, 8)))
	require.NoError(t, c.Close())

	cu1, _ := c.Unit(1)
	_, err = cu1.Data()
	assert.ErrorIs(t, err, ErrClosed)
	u, _ := d.Unit(0)
	_, err = u.Data()
	assert.ErrorIs(t, err, ErrClosed)
	require.NoError(t, c.Close())
}

func TestWriteFileOverwrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.fits")
	d := newTestDataset(t, 1, 2, 2)
	require.NoError(t, WriteFile(d, path))
	assert.ErrorIs(t, WriteFile(d, path), ErrFileExists)
	require.NoError(t, WriteFile(d, path, WithOverwrite()))

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestWriteBackToMappedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "inplace.fits")
	require.NoError(t, WriteFile(sampleDataset(t), path))

	d, err := ReadFile(path)
	require.NoError(t, err)
	defer d.Close()
	require.NoError(t, d.Multiply(2))
	require.NoError(t, WriteFile(d, path, WithOverwrite()))

	got, err := ReadFile(path, WithMemmap(false))
	require.NoError(t, err)
	assertSameDataset(t, d, got)
}

func TestTransformCodecsRoundTrip(t *testing.T) {
	d := sampleDataset(t)
	for name, codec := range map[string]TransformCodec{
		"yaml": YAMLTransformCodec{},
		"cbor": CBORTransformCodec{},
	} {
		t.Run(name, func(t *testing.T) {
			recs, err := ToRecords(d, WithWriteTransformCodec(codec))
			require.NoError(t, err)
			wcs := recs[4]
			require.Equal(t, TransformRole, wcs.Name)
			assert.Equal(t, name == "yaml", wcs.ascii)

			raw := encode(t, d, WithWriteTransformCodec(codec))
			got, err := Read(bytes.NewReader(raw), int64(len(raw)))
			require.NoError(t, err)
			assertSameDataset(t, d, got)

			u, _ := got.Unit(0)
			affine, ok := u.Transform().(*AffineTransform)
			require.True(t, ok)
			assert.Equal(t, "ICRS", affine.Frame)
		})
	}
}

type failingTransform struct{}

func (failingTransform) NDim() int { return 2 }

func (failingTransform) Forward(pix ...float64) ([]float64, error) { return pix, nil }

func TestUnstorableTransformIsOmitted(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	d := newTestDataset(t, 1, 2, 2)
	u, _ := d.Unit(0)
	u.SetTransform(failingTransform{})

	recs, err := ToRecords(d, WithWriteLogger(zap.New(core)))
	require.NoError(t, err)
	assert.Len(t, recs, 2)
	assert.Equal(t, 1, logs.FilterMessage("omitting transform that cannot be stored").Len())
}

func TestHeaderTransformFallback(t *testing.T) {
	h := NewHeader(
		Card{Key: "CRPIX1", Value: 10.0},
		Card{Key: "CRPIX2", Value: 20.0},
		Card{Key: "CRVAL1", Value: 180.0},
		Card{Key: "CRVAL2", Value: -30.0},
		Card{Key: "CD1_1", Value: -2e-5},
		Card{Key: "CD2_2", Value: 2e-5},
		Card{Key: "RADESYS", Value: "FK5"},
	)
	raw := rawContainer(t,
		NewPrimaryRecord(nil, nil),
		NewImageRecord(SciRole, 1, h, NewArray(Float32, 4, 4)),
	)

	d, err := Read(bytes.NewReader(raw), int64(len(raw)))
	require.NoError(t, err)
	u, _ := d.Unit(0)
	require.NotNil(t, u.Transform())
	world, err := u.Transform().Forward(11, 20)
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{180 - 2e-5, -30}, world, 1e-12)

	d, err = Read(bytes.NewReader(raw), int64(len(raw)), WithHeaderTransforms(false))
	require.NoError(t, err)
	u, _ = d.Unit(0)
	assert.Nil(t, u.Transform())
}
