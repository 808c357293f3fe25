package binary

import "io"

// Writer writes to a stream and tracks the number of bytes written so far.
type Writer struct {
	w   io.Writer
	pos int64
}

// NewWriter creates a writer over w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// Pos returns the current write position.
func (w *Writer) Pos() int64 {
	return w.pos
}

// WriteBytes writes the given bytes at the current position.
func (w *Writer) WriteBytes(data []byte) error {
	if len(data) == 0 {
		return nil
	}
	n, err := w.w.Write(data)
	w.pos += int64(n)
	return err
}

// PadBlock writes fill bytes until the position is a multiple of
// BlockSize.
func (w *Writer) PadBlock(fill byte) error {
	aligned := AlignUp(w.pos, BlockSize)
	if aligned == w.pos {
		return nil
	}
	pad := make([]byte, aligned-w.pos)
	if fill != 0 {
		for i := range pad {
			pad[i] = fill
		}
	}
	return w.WriteBytes(pad)
}
