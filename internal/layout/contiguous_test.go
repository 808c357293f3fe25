package layout

import (
	"bytes"
	"testing"
)

// countingReaderAt records the number of ReadAt calls and bytes read.
type countingReaderAt struct {
	data  []byte
	calls int
	bytes int
}

func (c *countingReaderAt) ReadAt(p []byte, off int64) (int, error) {
	c.calls++
	n := copy(p, c.data[off:])
	c.bytes += n
	return n, nil
}

// grid returns a row-major uint8 array of the given shape whose elements are
// their own flat index.
func grid(dims ...int) []byte {
	out := make([]byte, NumElements(dims))
	for i := range out {
		out[i] = byte(i)
	}
	return out
}

func TestExtract(t *testing.T) {
	// 3x4:
	//  0  1  2  3
	//  4  5  6  7
	//  8  9 10 11
	src := grid(3, 4)
	dst := make([]byte, 4)
	if err := Extract(src, []int{3, 4}, []int{1, 1}, []int{2, 2}, dst); err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	want := []byte{5, 6, 9, 10}
	if !bytes.Equal(dst, want) {
		t.Errorf("got %v, want %v", dst, want)
	}
}

func TestExtract3D(t *testing.T) {
	src := grid(2, 3, 4)
	dst := make([]byte, 2*1*2)
	if err := Extract(src, []int{2, 3, 4}, []int{0, 2, 1}, []int{2, 1, 2}, dst); err != nil {
		t.Fatal(err)
	}
	want := []byte{9, 10, 21, 22}
	if !bytes.Equal(dst, want) {
		t.Errorf("got %v, want %v", dst, want)
	}
}

func TestInsert(t *testing.T) {
	full := make([]float64, 6)
	if err := Insert(full, []int{2, 3}, []int{0, 1}, []int{2, 2}, []float64{1, 2, 3, 4}); err != nil {
		t.Fatal(err)
	}
	want := []float64{0, 1, 2, 0, 3, 4}
	for i := range want {
		if full[i] != want[i] {
			t.Errorf("element %d: got %v, want %v", i, full[i], want[i])
		}
	}
}

func TestValidate(t *testing.T) {
	if err := Validate([]int{3, 4}, []int{2, 0}, []int{2, 4}); err == nil {
		t.Error("expected out-of-bounds error")
	}
	if err := Validate([]int{3, 4}, []int{0}, []int{1}); err == nil {
		t.Error("expected rank mismatch error")
	}
	if err := Validate(nil, nil, nil); err == nil {
		t.Error("expected scalar error")
	}
}

func TestContiguousReadSlice(t *testing.T) {
	payload := grid(4, 5)
	file := append(make([]byte, 100), payload...)
	r := &countingReaderAt{data: file}

	c := NewContiguous(r, 100, []int{4, 5}, 1)
	if c.Size() != 20 {
		t.Errorf("expected size 20, got %d", c.Size())
	}

	got, err := c.ReadSlice([]int{1, 2}, []int{2, 3})
	if err != nil {
		t.Fatalf("ReadSlice failed: %v", err)
	}
	want := []byte{7, 8, 9, 12, 13, 14}
	if !bytes.Equal(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
	if r.bytes != 6 {
		t.Errorf("expected only 6 bytes read, got %d", r.bytes)
	}
	if r.calls != 2 {
		t.Errorf("expected one read per row, got %d", r.calls)
	}
}

func TestContiguousMergesFullRows(t *testing.T) {
	payload := grid(4, 5)
	r := &countingReaderAt{data: payload}
	c := NewContiguous(r, 0, []int{4, 5}, 1)

	got, err := c.ReadSlice([]int{1, 0}, []int{2, 5})
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, payload[5:15]) {
		t.Errorf("got %v", got)
	}
	if r.calls != 1 {
		t.Errorf("expected a single merged read, got %d", r.calls)
	}

	all, err := c.Read()
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(all, payload) {
		t.Error("Read mismatch")
	}
}

func TestContiguousMultiByteElements(t *testing.T) {
	// 2x2 array of 2-byte elements
	payload := []byte{0, 1, 0, 2, 0, 3, 0, 4}
	c := NewContiguous(bytes.NewReader(payload), 0, []int{2, 2}, 2)
	got, err := c.ReadSlice([]int{0, 1}, []int{2, 1})
	if err != nil {
		t.Fatal(err)
	}
	want := []byte{0, 2, 0, 4}
	if !bytes.Equal(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestContiguousShortSource(t *testing.T) {
	c := NewContiguous(bytes.NewReader([]byte{1, 2}), 0, []int{4}, 1)
	if _, err := c.Read(); err == nil {
		t.Error("expected error for truncated payload")
	}
}

func TestFiltered(t *testing.T) {
	payload := []byte{0, 1, 0, 2, 0, 3, 0, 4, 0, 5, 0, 6}
	loads := 0
	f := NewFiltered(func() ([]byte, error) {
		loads++
		return payload, nil
	}, []int{2, 3}, 2)

	got, err := f.ReadSlice([]int{1, 1}, []int{1, 2})
	if err != nil {
		t.Fatal(err)
	}
	want := []byte{0, 5, 0, 6}
	if !bytes.Equal(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}

	all, err := f.Read()
	if err != nil {
		t.Fatal(err)
	}
	all[0] = 0xFF
	if payload[0] == 0xFF {
		t.Error("Read should return a copy")
	}
	if loads != 2 {
		t.Errorf("expected 2 loads, got %d", loads)
	}

	bad := NewFiltered(func() ([]byte, error) { return []byte{1}, nil }, []int{2}, 2)
	if _, err := bad.Read(); err == nil {
		t.Error("expected size mismatch error")
	}
}
