package mef

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/zeebo/blake3"
)

// Names of the provenance tables.
const (
	ProvenanceTable    = "PROVENANCE"
	HistoryTable       = "HISTORY"
	legacyHistoryTable = "PROVHISTORY"
)

var (
	provenanceColumns = []string{"timestamp", "filename", "digest", "provenance_added_by"}
	historyColumns    = []string{"primitive", "args", "timestamp_start", "timestamp_stop"}
)

const timestampLayout = "2006-01-02T15:04:05.000000"

func formatTimestamp(ts time.Time) string {
	if ts.IsZero() {
		ts = time.Now()
	}
	return ts.UTC().Format(timestampLayout)
}

// AddProvenance records that filename, with the given digest, contributed
// to d through primitive. A row with the same filename, digest and
// primitive is not added twice. A zero ts means now.
func AddProvenance(d *Dataset, filename, digest, primitive string, ts time.Time) error {
	return addProvenanceRow(d, formatTimestamp(ts), filename, digest, primitive)
}

func addProvenanceRow(d *Dataset, ts, filename, digest, primitive string) error {
	t, err := stringTable(d, ProvenanceTable, provenanceColumns)
	if err != nil {
		return err
	}
	files, _ := t.Strings("filename")
	digests, _ := t.Strings("digest")
	prims, _ := t.Strings("provenance_added_by")
	for i := range files {
		if files[i] == filename && digests[i] == digest && prims[i] == primitive {
			return nil
		}
	}
	return t.AddRow(ts, filename, digest, primitive)
}

// AddHistory records a primitive run on d with its arguments. A legacy
// PROVHISTORY table is renamed to HISTORY first. Identical rows are not
// added twice.
func AddHistory(d *Dataset, start, stop time.Time, primitive, args string) error {
	return addHistoryRow(d, primitive, args, formatTimestamp(start), formatTimestamp(stop))
}

func addHistoryRow(d *Dataset, primitive, args, start, stop string) error {
	if legacy, ok := d.st.tables[legacyHistoryTable]; ok {
		delete(d.st.tables, legacyHistoryTable)
		d.st.tables[HistoryTable] = legacy
	}
	t, err := stringTable(d, HistoryTable, historyColumns)
	if err != nil {
		return err
	}
	cols := make([][]string, len(historyColumns))
	for i, name := range historyColumns {
		cols[i], _ = t.Strings(name)
	}
	for r := range cols[0] {
		if cols[0][r] == primitive && cols[1][r] == args && cols[2][r] == start && cols[3][r] == stop {
			return nil
		}
	}
	return t.AddRow(primitive, args, start, stop)
}

// stringTable returns the dataset table name with the given string
// columns, creating it if needed. Columns missing from an existing table
// are added empty and other columns are dropped.
func stringTable(d *Dataset, name string, columns []string) (*Table, error) {
	t, ok := d.st.tables[name]
	if !ok {
		if owner := d.ancillaryOwner(name); owner >= 0 {
			return nil, fmt.Errorf("%w: %s is an ancillary entry of unit %d", ErrTypeConstraint, name, owner)
		}
		t = NewStringTable(columns...)
		d.st.tables[name] = t
		return t, nil
	}

	rows := t.Len()
	rebuilt := &Table{header: t.header}
	for _, c := range columns {
		values, err := t.Strings(c)
		if err != nil {
			values = make([]string, rows)
		}
		rebuilt.cols = append(rebuilt.cols, Column{Name: c, Data: values})
	}
	d.st.tables[name] = rebuilt
	return rebuilt, nil
}

// CloneProvenance copies every provenance row of src into d.
func CloneProvenance(src *Table, d *Dataset) error {
	cols := make([][]string, len(provenanceColumns))
	for i, name := range provenanceColumns {
		values, err := src.Strings(name)
		if err != nil {
			return err
		}
		cols[i] = values
	}
	for r := range cols[0] {
		if err := addProvenanceRow(d, cols[0][r], cols[1][r], cols[2][r], cols[3][r]); err != nil {
			return err
		}
	}
	return nil
}

// CloneHistory copies every history row of src into d.
func CloneHistory(src *Table, d *Dataset) error {
	cols := make([][]string, len(historyColumns))
	for i, name := range historyColumns {
		values, err := src.Strings(name)
		if err != nil {
			return err
		}
		cols[i] = values
	}
	for r := range cols[0] {
		if err := addHistoryRow(d, cols[0][r], cols[1][r], cols[2][r], cols[3][r]); err != nil {
			return err
		}
	}
	return nil
}

// FileDigest returns the hex BLAKE3 digest of a file.
func FileDigest(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := blake3.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hashing %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
