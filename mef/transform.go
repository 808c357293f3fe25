package mef

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"slices"
	"strconv"
	"unicode/utf8"

	"github.com/fxamacker/cbor/v2"
	"gopkg.in/yaml.v3"
)

// Transform maps pixel coordinates to world coordinates. Pixel coordinates
// are in header axis order (fastest axis first) and 1-based, matching
// CRPIXn.
type Transform interface {
	NDim() int
	Forward(pix ...float64) ([]float64, error)
}

// Inverter is implemented by transforms that can map world coordinates
// back to pixels.
type Inverter interface {
	Inverse(world ...float64) ([]float64, error)
}

// AffineTransform is world = Matrix·(pix - CRPIX) + CRVAL.
type AffineTransform struct {
	CRPIX  []float64   `yaml:"crpix" cbor:"crpix"`
	CRVAL  []float64   `yaml:"crval" cbor:"crval"`
	Matrix [][]float64 `yaml:"matrix" cbor:"matrix"`
	Frame  string      `yaml:"frame,omitempty" cbor:"frame,omitempty"`
	Units  []string    `yaml:"units,omitempty" cbor:"units,omitempty"`
}

// NewAffineTransform builds an identity-matrix transform of n axes.
func NewAffineTransform(crpix, crval []float64) *AffineTransform {
	n := len(crpix)
	m := make([][]float64, n)
	for i := range m {
		m[i] = make([]float64, n)
		m[i][i] = 1
	}
	return &AffineTransform{CRPIX: slices.Clone(crpix), CRVAL: slices.Clone(crval), Matrix: m}
}

func (t *AffineTransform) NDim() int {
	return len(t.CRPIX)
}

func (t *AffineTransform) validate() error {
	n := len(t.CRPIX)
	if n == 0 {
		return errors.New("affine transform has no axes")
	}
	if len(t.CRVAL) != n || len(t.Matrix) != n {
		return fmt.Errorf("affine transform axes disagree: crpix %d, crval %d, matrix %d", n, len(t.CRVAL), len(t.Matrix))
	}
	for i, row := range t.Matrix {
		if len(row) != n {
			return fmt.Errorf("affine transform matrix row %d has %d columns, want %d", i, len(row), n)
		}
	}
	return nil
}

func (t *AffineTransform) Forward(pix ...float64) ([]float64, error) {
	if err := t.validate(); err != nil {
		return nil, err
	}
	if len(pix) != t.NDim() {
		return nil, fmt.Errorf("%w: %d coordinates for a %d-axis transform", ErrDimension, len(pix), t.NDim())
	}
	out := slices.Clone(t.CRVAL)
	for i, row := range t.Matrix {
		for j, m := range row {
			out[i] += m * (pix[j] - t.CRPIX[j])
		}
	}
	return out, nil
}

// Inverse solves Matrix·d = world - CRVAL by Gaussian elimination with
// partial pivoting.
func (t *AffineTransform) Inverse(world ...float64) ([]float64, error) {
	if err := t.validate(); err != nil {
		return nil, err
	}
	n := t.NDim()
	if len(world) != n {
		return nil, fmt.Errorf("%w: %d coordinates for a %d-axis transform", ErrDimension, len(world), n)
	}
	a := make([][]float64, n)
	for i := range a {
		a[i] = append(slices.Clone(t.Matrix[i]), world[i]-t.CRVAL[i])
	}
	for col := 0; col < n; col++ {
		pivot := col
		for r := col + 1; r < n; r++ {
			if math.Abs(a[r][col]) > math.Abs(a[pivot][col]) {
				pivot = r
			}
		}
		if math.Abs(a[pivot][col]) < 1e-300 {
			return nil, errors.New("affine transform matrix is singular")
		}
		a[col], a[pivot] = a[pivot], a[col]
		for r := col + 1; r < n; r++ {
			f := a[r][col] / a[col][col]
			for c := col; c <= n; c++ {
				a[r][c] -= f * a[col][c]
			}
		}
	}
	out := make([]float64, n)
	for r := n - 1; r >= 0; r-- {
		s := a[r][n]
		for c := r + 1; c < n; c++ {
			s -= a[r][c] * out[c]
		}
		out[r] = s/a[r][r] + t.CRPIX[r]
	}
	return out, nil
}

// Shift returns a copy whose reference pixel is moved by -delta, so that
// the same world point maps to pixel p-delta. delta is in header axis
// order.
func (t *AffineTransform) Shift(delta ...float64) *AffineTransform {
	out := t.clone()
	for i := range out.CRPIX {
		if i < len(delta) {
			out.CRPIX[i] -= delta[i]
		}
	}
	return out
}

func (t *AffineTransform) clone() *AffineTransform {
	out := &AffineTransform{
		CRPIX: slices.Clone(t.CRPIX),
		CRVAL: slices.Clone(t.CRVAL),
		Frame: t.Frame,
		Units: slices.Clone(t.Units),
	}
	for _, row := range t.Matrix {
		out.Matrix = append(out.Matrix, slices.Clone(row))
	}
	return out
}

// TransformCodec converts transforms to and from storable documents.
type TransformCodec interface {
	Encode(t Transform) ([]byte, error)
	Decode(doc []byte) (Transform, error)
}

const affineKind = "affine"

type transformDoc struct {
	Kind   string      `yaml:"kind" cbor:"kind"`
	CRPIX  []float64   `yaml:"crpix" cbor:"crpix"`
	CRVAL  []float64   `yaml:"crval" cbor:"crval"`
	Matrix [][]float64 `yaml:"matrix,flow" cbor:"matrix"`
	Frame  string      `yaml:"frame,omitempty" cbor:"frame,omitempty"`
	Units  []string    `yaml:"units,omitempty,flow" cbor:"units,omitempty"`
}

func toDoc(t Transform) (*transformDoc, error) {
	a, ok := t.(*AffineTransform)
	if !ok {
		return nil, fmt.Errorf("%w: cannot store transform of type %T", ErrTypeConstraint, t)
	}
	if err := a.validate(); err != nil {
		return nil, err
	}
	return &transformDoc{
		Kind:   affineKind,
		CRPIX:  a.CRPIX,
		CRVAL:  a.CRVAL,
		Matrix: a.Matrix,
		Frame:  a.Frame,
		Units:  a.Units,
	}, nil
}

func fromDoc(doc *transformDoc) (Transform, error) {
	if doc.Kind != affineKind {
		return nil, fmt.Errorf("unknown transform kind %q", doc.Kind)
	}
	t := &AffineTransform{
		CRPIX:  doc.CRPIX,
		CRVAL:  doc.CRVAL,
		Matrix: doc.Matrix,
		Frame:  doc.Frame,
		Units:  doc.Units,
	}
	if err := t.validate(); err != nil {
		return nil, err
	}
	return t, nil
}

// YAMLTransformCodec stores transforms as YAML text.
type YAMLTransformCodec struct{}

func (YAMLTransformCodec) Encode(t Transform) ([]byte, error) {
	doc, err := toDoc(t)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return nil, fmt.Errorf("encoding transform: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("encoding transform: %w", err)
	}
	return buf.Bytes(), nil
}

func (YAMLTransformCodec) Decode(data []byte) (Transform, error) {
	doc := &transformDoc{}
	if err := yaml.Unmarshal(data, doc); err != nil {
		return nil, fmt.Errorf("decoding transform: %w", err)
	}
	return fromDoc(doc)
}

// CBORTransformCodec stores transforms as CBOR. The documents are binary
// and are written as byte tables.
type CBORTransformCodec struct{}

func (CBORTransformCodec) Encode(t Transform) ([]byte, error) {
	doc, err := toDoc(t)
	if err != nil {
		return nil, err
	}
	data, err := cbor.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encoding transform: %w", err)
	}
	return data, nil
}

func (CBORTransformCodec) Decode(data []byte) (Transform, error) {
	doc := &transformDoc{}
	if err := cbor.Unmarshal(data, doc); err != nil {
		return nil, fmt.Errorf("decoding transform: %w", err)
	}
	return fromDoc(doc)
}

// AutoTransformCodec writes YAML and reads either format.
type AutoTransformCodec struct{}

func (AutoTransformCodec) Encode(t Transform) ([]byte, error) {
	return YAMLTransformCodec{}.Encode(t)
}

func (AutoTransformCodec) Decode(data []byte) (Transform, error) {
	if isText(data) {
		return YAMLTransformCodec{}.Decode(data)
	}
	return CBORTransformCodec{}.Decode(data)
}

// isText reports whether data is printable UTF-8 with line breaks.
func isText(data []byte) bool {
	if !utf8.Valid(data) {
		return false
	}
	for _, b := range data {
		if b < 0x20 && b != '\n' && b != '\t' && b != '\r' {
			return false
		}
		if b == 0x7f {
			return false
		}
	}
	return true
}

// TransformFromHeader derives a linear transform from CRPIXn, CRVALn and
// either CDi_j or PCi_j with CDELTi. It returns ErrKeyNotFound when the
// header has no CRPIX1.
func TransformFromHeader(h *Header) (*AffineTransform, error) {
	if !h.Has("CRPIX1") {
		return nil, fmt.Errorf("%w: CRPIX1", ErrKeyNotFound)
	}
	n := 0
	if v, err := h.Int("WCSAXES"); err == nil {
		n = int(v)
	} else {
		for h.Has("CRPIX" + strconv.Itoa(n+1)) {
			n++
		}
	}

	t := &AffineTransform{CRPIX: make([]float64, n), CRVAL: make([]float64, n), Matrix: make([][]float64, n)}
	useCD := h.Has("CD1_1")
	for i := 1; i <= n; i++ {
		is := strconv.Itoa(i)
		var err error
		if t.CRPIX[i-1], err = floatOr(h, "CRPIX"+is, 0); err != nil {
			return nil, err
		}
		if t.CRVAL[i-1], err = floatOr(h, "CRVAL"+is, 0); err != nil {
			return nil, err
		}
		cdelt, err := floatOr(h, "CDELT"+is, 1)
		if err != nil {
			return nil, err
		}
		row := make([]float64, n)
		for j := 1; j <= n; j++ {
			key := is + "_" + strconv.Itoa(j)
			def := 0.0
			if i == j {
				def = 1
			}
			if useCD {
				if row[j-1], err = floatOr(h, "CD"+key, 0); err != nil {
					return nil, err
				}
				continue
			}
			pc, err := floatOr(h, "PC"+key, def)
			if err != nil {
				return nil, err
			}
			row[j-1] = pc * cdelt
		}
		t.Matrix[i-1] = row
		if u, ok := h.Lookup("CUNIT" + is); ok {
			if s, ok := u.(string); ok {
				t.Units = append(t.Units, s)
			}
		}
	}
	if len(t.Units) != n {
		t.Units = nil
	}
	if s, ok := h.Lookup("RADESYS"); ok {
		t.Frame, _ = s.(string)
	}
	return t, nil
}

func floatOr(h *Header, key string, def float64) (float64, error) {
	if !h.Has(key) {
		return def, nil
	}
	return h.Float(key)
}
