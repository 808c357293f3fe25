package filter

import "github.com/klauspost/compress/s2"

// S2 implements the S2 (Snappy-compatible) filter.
type S2 struct{}

// NewS2 creates a new S2 filter.
func NewS2() *S2 {
	return &S2{}
}

func (f *S2) Name() string {
	return NameS2
}

func (f *S2) Encode(input []byte) ([]byte, error) {
	return s2.Encode(nil, input), nil
}

func (f *S2) Decode(input []byte) ([]byte, error) {
	return s2.Decode(nil, input)
}
