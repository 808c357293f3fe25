package mef

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/robert-malhotra/go-mef/internal/binary"
	"github.com/robert-malhotra/go-mef/internal/card"
	"github.com/robert-malhotra/go-mef/internal/dtype"
	"github.com/robert-malhotra/go-mef/internal/filter"
	"github.com/robert-malhotra/go-mef/internal/hdu"
)

func applyWriteOptions(opts []WriteOption) *writeOptions {
	o := defaultWriteOptions()
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func (o *writeOptions) log() *zap.Logger {
	if o.logger != nil {
		return o.logger
	}
	return Logger()
}

// ToRecords lays d out as raw records: the primary, then for each unit its
// SCI, VAR, DQ and WCS records followed by its ancillary entries in name
// order, then the dataset tables in name order.
//
// Units read or created by d keep their version. Other units are numbered
// after the highest of those.
func ToRecords(d *Dataset, opts ...WriteOption) ([]*Record, error) {
	return toRecords(d, applyWriteOptions(opts))
}

func toRecords(d *Dataset, o *writeOptions) ([]*Record, error) {
	log := o.log()
	phu := d.phu.Clone()
	recs := []*Record{NewPrimaryRecord(phu, nil)}

	units := d.Units()
	next := 0
	for _, u := range units {
		if u.owner == d.id {
			next = max(next, u.version)
		}
	}

	for i, u := range units {
		ver := u.version
		if u.owner != d.id || ver <= 0 {
			next++
			ver = next
		}

		data, err := u.data.imagePayload()
		if err != nil {
			return nil, fmt.Errorf("unit %d: %w", i, err)
		}
		if data == nil {
			return nil, fmt.Errorf("%w: unit %d has no data", ErrTypeConstraint, i)
		}
		recs = append(recs, NewImageRecord(SciRole, ver, u.header.Clone(), nil).with(data))

		for _, part := range []struct {
			name string
			p    Pixels
		}{{VarianceRole, u.variance}, {MaskRole, u.mask}} {
			if part.p.IsZero() {
				continue
			}
			payload, err := part.p.imagePayload()
			if err != nil {
				return nil, fmt.Errorf("unit %d %s: %w", i, part.name, err)
			}
			recs = append(recs, NewImageRecord(part.name, ver, u.header.Clone(), nil).with(payload))
		}

		if u.transform != nil {
			rec, err := transformRecord(u.transform, ver, o.codec)
			if err != nil {
				log.Warn("omitting transform that cannot be stored",
					zap.Int("extver", ver), zap.Error(err))
			} else {
				recs = append(recs, rec)
			}
		}

		for _, name := range u.anc.Names() {
			switch v := u.anc.values[name].(type) {
			case *Array:
				recs = append(recs, NewImageRecord(name, ver, NewHeader(), v))
			case *Table:
				recs = append(recs, NewTableRecord(name, ver, v.header.Clone(), v))
			}
		}
	}

	for _, name := range d.Tables() {
		t := d.st.tables[name]
		h := t.header.Clone()
		h.Delete(hdu.KeyExtver)
		recs = append(recs, NewTableRecord(name, 0, h, t))
	}

	phu.Set("NEXTEND", len(recs)-1, "Number of extensions")
	return recs, nil
}

// imagePayload returns the value to store for p without materializing a
// lazy payload.
func (p Pixels) imagePayload() (any, error) {
	switch {
	case p.array != nil:
		return p.array, nil
	case p.lazy != nil:
		return p.lazy, nil
	}
	return nil, nil
}

func (r *Record) with(payload any) *Record {
	r.Payload = payload
	return r
}

// WriteTo writes d to w in container format and returns the number of
// bytes written.
func WriteTo(d *Dataset, w io.Writer, opts ...WriteOption) (int64, error) {
	o := applyWriteOptions(opts)
	recs, err := toRecords(d, o)
	if err != nil {
		return 0, err
	}
	return writeRecords(w, recs, o)
}

// WriteFile writes d to path. An existing file is replaced only with
// WithOverwrite. The file is written next to path and renamed into place,
// so a dataset mapped from path can be written back to it.
func WriteFile(d *Dataset, path string, opts ...WriteOption) error {
	o := applyWriteOptions(opts)
	if !o.overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%w: %s", ErrFileExists, path)
		} else if !errors.Is(err, os.ErrNotExist) {
			return err
		}
	}

	recs, err := toRecords(d, o)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	if _, err := writeRecords(tmp, recs, o); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if d.path == "" {
		d.SetPath(path)
	}
	return nil
}

func writeRecords(w io.Writer, recs []*Record, o *writeOptions) (int64, error) {
	bw := binary.NewWriter(w)
	for i, r := range recs {
		cards, payload, err := encodeRecord(r, o)
		if err != nil {
			return bw.Pos(), fmt.Errorf("encoding record %d (%s): %w", i, r, err)
		}
		hdr, err := card.EncodeHeader(cards)
		if err != nil {
			return bw.Pos(), fmt.Errorf("encoding record %d (%s): %w", i, r, err)
		}
		if err := bw.WriteBytes(hdr); err != nil {
			return bw.Pos(), err
		}
		if len(payload) == 0 {
			continue
		}
		if err := bw.WriteBytes(payload); err != nil {
			return bw.Pos(), err
		}
		if err := bw.PadBlock(0); err != nil {
			return bw.Pos(), err
		}
	}
	return bw.Pos(), nil
}

// encodeRecord returns the full card list and the unpadded payload of r.
func encodeRecord(r *Record, o *writeOptions) ([]card.Card, []byte, error) {
	var (
		cards   []card.Card
		payload []byte
		err     error
	)
	switch p := r.Payload.(type) {
	case nil:
		if !r.primary {
			return nil, nil, fmt.Errorf("%w: extension has no payload", ErrTypeConstraint)
		}
		cards = hdu.PrimaryCards(8, nil)
	case *Array, *LazyArray:
		if cards, payload, err = encodeImage(r, p, o.pipeline); err != nil {
			return nil, nil, err
		}
	case *Table:
		if r.ascii {
			cards, payload, err = hdu.EncodeASCIITable(p.cols)
		} else {
			cards, payload, err = hdu.EncodeBinTable(p.cols)
		}
		if err != nil {
			return nil, nil, err
		}
	default:
		return nil, nil, fmt.Errorf("%w: cannot store %T", ErrTypeConstraint, r.Payload)
	}

	if o.checksum && len(payload) > 0 {
		cards = append(cards, card.Card{Key: hdu.KeyDatahash, Value: binary.DataHash(payload), Comment: "payload checksum"})
	}
	return append(cards, hdu.UserCards(r.Header.Cards())...), payload, nil
}

func encodeImage(r *Record, payload any, pipeline string) ([]card.Card, []byte, error) {
	var arr *Array
	switch p := payload.(type) {
	case *Array:
		arr = p
	case *LazyArray:
		a, err := p.Materialize()
		if err != nil {
			return nil, nil, err
		}
		arr = a
	}

	bitpix, bzero, err := dtype.StorageFor(arr.dtype)
	if err != nil {
		return nil, nil, err
	}
	raw, err := dtype.Encode(arr.data, arr.dtype)
	if err != nil {
		return nil, nil, err
	}

	var cards []card.Card
	if r.primary {
		cards = hdu.PrimaryCards(bitpix, arr.shape)
	} else {
		cards = hdu.ImageCards(bitpix, arr.shape)
	}
	cards = append(cards, hdu.ScaleCards(bzero)...)

	if pipeline != "" {
		elemSize, _ := dtype.BitpixSize(bitpix)
		pipe, err := filter.Parse(pipeline, elemSize)
		if err != nil {
			return nil, nil, err
		}
		if !pipe.Empty() {
			if raw, err = pipe.Encode(raw); err != nil {
				return nil, nil, err
			}
			cards = append(cards,
				card.Card{Key: hdu.KeyPcodec, Value: pipe.String(), Comment: "payload filter pipeline"},
				card.Card{Key: hdu.KeyPsize, Value: int64(len(raw)), Comment: "encoded payload size"},
			)
		}
	}
	return cards, raw, nil
}
