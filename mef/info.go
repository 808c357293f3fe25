package mef

import (
	"fmt"
	"io"
	"strings"
)

const infoRow = "%-7s%-14s%-12s%-14s%s\n"

func formatShape(shape []int) string {
	parts := make([]string, len(shape))
	for i, n := range shape {
		parts[i] = fmt.Sprint(n)
	}
	return "(" + strings.Join(parts, ", ") + ")"
}

func infoLine(b *strings.Builder, cols ...any) {
	line := fmt.Sprintf(infoRow, cols...)
	b.WriteString(strings.TrimRight(line, " \n"))
	b.WriteByte('\n')
}

func pixelsKind(p Pixels) string {
	if p.IsLazy() {
		return "lazy"
	}
	return "array"
}

// Info writes a summary of d: its filename, tags, units and tables.
func (d *Dataset) Info(w io.Writer) error {
	var b strings.Builder
	name := d.Filename()
	if name == "" {
		name = "(none)"
	}
	fmt.Fprintf(&b, "Filename: %s\n", name)
	if tags, err := d.Tags(); err != nil {
		fmt.Fprintf(&b, "Tags: (error: %v)\n", err)
	} else {
		fmt.Fprintf(&b, "Tags: %s\n", strings.Join(tags, " "))
	}

	if d.Len() > 0 {
		b.WriteString("\nPixels Extensions\n")
		infoLine(&b, "Index", "Content", "Type", "Dimensions", "Format")
	}
	for i, u := range d.Units() {
		infoLine(&b, fmt.Sprintf("[%d]", i), "science",
			pixelsKind(u.data), formatShape(u.Shape()), u.data.DType())
		if u.HasVariance() {
			infoLine(&b, "", ".variance",
				pixelsKind(u.variance), formatShape(u.variance.Shape()), u.variance.DType())
		}
		if u.HasMask() {
			infoLine(&b, "", ".mask",
				pixelsKind(u.mask), formatShape(u.mask.Shape()), u.mask.DType())
		}
		if u.transform != nil {
			infoLine(&b, "", ".transform",
				"transform", fmt.Sprintf("%d axes", u.transform.NDim()), "")
		}
		for _, n := range u.anc.Names() {
			switch v := u.anc.values[n].(type) {
			case *Array:
				infoLine(&b, "", "."+n, "array", formatShape(v.shape), v.dtype)
			case *Table:
				infoLine(&b, "", "."+n, "table", formatShape([]int{v.Len(), v.NumColumns()}), "")
			}
		}
	}

	if tables := d.Tables(); len(tables) > 0 {
		b.WriteString("\nOther Extensions\n")
		fmt.Fprintf(&b, "%-21s%-12s%s\n", "Name", "Type", "Dimensions")
		for _, n := range tables {
			t := d.st.tables[n]
			fmt.Fprintf(&b, "%-21s%-12s%s\n", "."+n, "table", formatShape([]int{t.Len(), t.NumColumns()}))
		}
	}

	_, err := io.WriteString(w, b.String())
	return err
}
