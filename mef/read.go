package mef

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/robert-malhotra/go-mef/internal/binary"
	"github.com/robert-malhotra/go-mef/internal/blockcache"
	"github.com/robert-malhotra/go-mef/internal/dtype"
	"github.com/robert-malhotra/go-mef/internal/filter"
	"github.com/robert-malhotra/go-mef/internal/hdu"
	"github.com/robert-malhotra/go-mef/internal/layout"
	"github.com/robert-malhotra/go-mef/internal/mmap"
)

// Source is a scanned container, before it is assembled into a Dataset.
// Variants inspect it to decide whether they can read it.
type Source struct {
	path    string
	records []*Record
	res     *resources
	opts    *readOptions
}

// Path returns the file path, or "" for in-memory sources.
func (s *Source) Path() string {
	return s.path
}

// PHU returns the primary header.
func (s *Source) PHU() *Header {
	if len(s.records) == 0 {
		return NewHeader()
	}
	return s.records[0].Header
}

// Records returns the records in file order.
func (s *Source) Records() []*Record {
	return s.records
}

// Close releases the source's storage. A Dataset read from the source
// takes over this responsibility.
func (s *Source) Close() error {
	return s.res.release()
}

// payloadPolicy decides which image payloads stay lazy.
type payloadPolicy struct {
	plain   bool
	encoded bool
}

func openSource(path string, o *readOptions) (*Source, error) {
	res, err := newResources(path, o.cacheSize)
	if err != nil {
		return nil, err
	}

	var (
		r      io.ReaderAt
		size   int64
		policy payloadPolicy
	)
	if o.memmap {
		m, err := mmap.Open(path)
		switch {
		case err == nil:
			res.add(m)
			r, size = m, m.Size()
			policy = payloadPolicy{plain: true, encoded: true}
		case errors.Is(err, os.ErrNotExist):
			return nil, fmt.Errorf("opening %s: %w", path, err)
		default:
			o.log().Debug("memory mapping unavailable, reading eagerly",
				zap.String("path", path), zap.Error(err))
		}
	}
	if r == nil {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("opening %s: %w", path, err)
		}
		defer f.Close()
		fi, err := f.Stat()
		if err != nil {
			return nil, fmt.Errorf("opening %s: %w", path, err)
		}
		r, size = f, fi.Size()
	}

	recs, err := scanRecords(r, size, res, policy, o)
	if err != nil {
		res.release()
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return &Source{path: path, records: recs, res: res, opts: o}, nil
}

func readerSource(r io.ReaderAt, size int64, o *readOptions) (*Source, error) {
	res, err := newResources(fmt.Sprintf("reader:%p", r), o.cacheSize)
	if err != nil {
		return nil, err
	}
	recs, err := scanRecords(r, size, res, payloadPolicy{encoded: true}, o)
	if err != nil {
		res.release()
		return nil, err
	}
	return &Source{records: recs, res: res, opts: o}, nil
}

// ReadFile reads a container from disk without classification. Image
// payloads are memory mapped unless WithMemmap(false) is given; the
// returned Dataset must be closed to release the mapping.
func ReadFile(path string, opts ...ReadOption) (*Dataset, error) {
	o := applyReadOptions(opts)
	src, err := openSource(path, o)
	if err != nil {
		return nil, err
	}
	d, err := Generic.Read(src)
	if err != nil {
		src.Close()
		return nil, err
	}
	return d, nil
}

// Read reads a container from r without classification. Raw image
// payloads are materialized; encoded payloads are decoded on first use,
// so r must stay readable while the Dataset is in use.
func Read(r io.ReaderAt, size int64, opts ...ReadOption) (*Dataset, error) {
	o := applyReadOptions(opts)
	src, err := readerSource(r, size, o)
	if err != nil {
		return nil, err
	}
	d, err := Generic.Read(src)
	if err != nil {
		src.Close()
		return nil, err
	}
	return d, nil
}

func applyReadOptions(opts []ReadOption) *readOptions {
	o := defaultReadOptions()
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func scanRecords(r io.ReaderAt, size int64, res *resources, policy payloadPolicy, o *readOptions) ([]*Record, error) {
	units, err := hdu.Scan(r, size)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrContainerFormat, err)
	}
	recs := make([]*Record, 0, len(units))
	for i, u := range units {
		rec, err := decodeRecord(r, u, res, policy, o)
		if err != nil {
			return nil, fmt.Errorf("%w: record %d: %v", ErrContainerFormat, i, err)
		}
		recs = append(recs, rec)
	}
	return recs, nil
}

func readStored(r io.ReaderAt, off, n int64) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := io.ReadFull(io.NewSectionReader(r, off, n), buf); err != nil {
		return nil, err
	}
	return buf, nil
}

func decodeRecord(r io.ReaderAt, u *hdu.HDU, res *resources, policy payloadPolicy, o *readOptions) (*Record, error) {
	header := NewHeader(hdu.UserCards(u.Cards)...)
	rec := &Record{Header: header, primary: u.Kind == hdu.KindPrimary}
	if name, err := header.String(hdu.KeyExtname); err == nil {
		rec.Name = strings.TrimSpace(name)
	}
	if v, err := header.Int(hdu.KeyExtver); err == nil && v > 0 {
		rec.Version = int(v)
	}

	if o.verify {
		if v, ok := u.Lookup(hdu.KeyDatahash); ok {
			recorded, _ := v.(string)
			stored, err := readStored(r, u.DataOffset, u.DataSize)
			if err != nil {
				return nil, err
			}
			if err := binary.VerifyDataHash(stored, recorded); err != nil {
				return nil, err
			}
		}
	}

	switch u.Kind {
	case hdu.KindPrimary, hdu.KindImage:
		img, err := decodeImage(r, u, rec.Name, res, policy)
		if err != nil {
			return nil, err
		}
		if img != nil {
			rec.Payload = img
		}
	case hdu.KindBinTable, hdu.KindASCIITable:
		stored, err := readStored(r, u.DataOffset, u.DataSize)
		if err != nil {
			return nil, err
		}
		decode := hdu.DecodeBinTable
		if u.Kind == hdu.KindASCIITable {
			decode = hdu.DecodeASCIITable
			rec.ascii = true
		}
		cols, err := decode(u.Cards, stored)
		if err != nil {
			return nil, err
		}
		rec.Payload = &Table{header: header, cols: cols}
	}
	return rec, nil
}

// decodeImage returns the payload of an image unit: a *LazyArray, an
// *Array, or nil when the unit has no axes.
func decodeImage(r io.ReaderAt, u *hdu.HDU, role string, res *resources, policy payloadPolicy) (any, error) {
	dims, err := u.Dims()
	if err != nil || len(dims) == 0 {
		return nil, err
	}
	bitpix, err := u.Int(hdu.KeyBitpix)
	if err != nil {
		return nil, err
	}
	bscale, err := hdu.Float(u.Cards, hdu.KeyBscale, 1)
	if err != nil {
		return nil, err
	}
	bzero, err := hdu.Float(u.Cards, hdu.KeyBzero, 0)
	if err != nil {
		return nil, err
	}
	elemSize, err := dtype.BitpixSize(int(bitpix))
	if err != nil {
		return nil, err
	}

	var (
		src  layout.Layout
		lazy = policy.plain
	)
	if v, ok := u.Lookup(hdu.KeyPcodec); ok {
		decl, _ := v.(string)
		pipe, err := filter.Parse(decl, elemSize)
		if err != nil {
			return nil, err
		}
		key := blockcache.Key{Source: res.source, Offset: u.DataOffset}
		off, n := u.DataOffset, u.DataSize
		load := func() ([]byte, error) {
			return res.cache.Get(key, func() ([]byte, error) {
				stored, err := readStored(r, off, n)
				if err != nil {
					return nil, err
				}
				return pipe.Decode(stored)
			})
		}
		src = layout.NewFiltered(load, dims, elemSize)
		lazy = policy.encoded
	} else {
		src = layout.NewContiguous(r, u.DataOffset, dims, elemSize)
	}

	la, err := newLazyArray(src, dims, int(bitpix), bscale, bzero, role)
	if err != nil {
		return nil, err
	}
	if lazy {
		return la, nil
	}
	return la.Materialize()
}
