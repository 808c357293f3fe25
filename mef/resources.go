package mef

import (
	"errors"
	"io"
	"sync"

	"github.com/robert-malhotra/go-mef/internal/blockcache"
)

// resources holds the storage a lazily read dataset depends on. It is
// shared by every view and clone of the dataset and released when the
// last holder closes.
type resources struct {
	mu      sync.Mutex
	source  string
	closers []io.Closer
	cache   *blockcache.Cache
	refs    int
}

func newResources(source string, cacheSize int) (*resources, error) {
	cache, err := blockcache.New(cacheSize)
	if err != nil {
		return nil, err
	}
	return &resources{source: source, cache: cache, refs: 1}, nil
}

func (r *resources) add(c io.Closer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closers = append(r.closers, c)
}

func (r *resources) acquire() *resources {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.refs++
	return r
}

func (r *resources) release() error {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.refs == 0 {
		return nil
	}
	r.refs--
	if r.refs > 0 {
		return nil
	}
	var errs []error
	for _, c := range r.closers {
		errs = append(errs, c.Close())
	}
	r.closers = nil
	r.cache.Purge(r.source)
	return errors.Join(errs...)
}

// handle is one holder's claim on resources. Views share their parent's
// handle; clones get their own.
type handle struct {
	once sync.Once
	res  *resources
	err  error
}

func newHandle(res *resources) *handle {
	return &handle{res: res}
}

func (h *handle) close() error {
	h.once.Do(func() {
		h.err = h.res.release()
	})
	return h.err
}
