package mef

import (
	"fmt"
	"io"
	"maps"
	"slices"
	"sync"

	"go.uber.org/zap"
)

// Variant is one kind of dataset a source can be read as.
type Variant interface {
	// Name identifies the variant in a Registry.
	Name() string
	// Parent names the variant this one specializes, or "".
	Parent() string
	// Matches reports whether the variant can read src.
	Matches(src *Source) (bool, error)
	// Read assembles src into a Dataset.
	Read(src *Source) (*Dataset, error)
}

// Class is a Variant built from a match function, tag rules and
// descriptor keywords. A class inherits its base's rules and keywords.
type Class struct {
	name     string
	base     *Class
	match    func(*Source) (bool, error)
	rules    []TagRule
	keywords map[string]string
}

// Generic matches every source. It is the root of the class hierarchy.
var Generic = NewClass("Generic", nil, func(*Source) (bool, error) { return true, nil })

// NewClass creates a class. A nil base makes it a root class.
func NewClass(name string, base *Class, match func(*Source) (bool, error)) *Class {
	return &Class{name: name, base: base, match: match, keywords: make(map[string]string)}
}

// WithTagRules adds tag rules to c and returns it.
func (c *Class) WithTagRules(rules ...TagRule) *Class {
	c.rules = append(c.rules, rules...)
	return c
}

// WithDescriptor maps a descriptor to a header keyword and returns c.
func (c *Class) WithDescriptor(descriptor, keyword string) *Class {
	c.keywords[descriptor] = keyword
	return c
}

func (c *Class) Name() string {
	return c.name
}

func (c *Class) Parent() string {
	if c.base == nil {
		return ""
	}
	return c.base.name
}

func (c *Class) Matches(src *Source) (bool, error) {
	if c.match == nil {
		return false, nil
	}
	return c.match(src)
}

// TagRules returns the rules of c and its bases, bases first.
func (c *Class) TagRules() []TagRule {
	if c.base == nil {
		return slices.Clone(c.rules)
	}
	return append(c.base.TagRules(), c.rules...)
}

// Descriptors returns the descriptor keyword map of c and its bases.
func (c *Class) Descriptors() map[string]string {
	out := maps.Clone(defaultKeywords)
	if c.base != nil {
		out = c.base.Descriptors()
	}
	maps.Copy(out, c.keywords)
	return out
}

func (c *Class) Read(src *Source) (*Dataset, error) {
	d, err := assemble(src.records, src.path, src.res, src.opts)
	if err != nil {
		return nil, err
	}
	d.rules = c.TagRules()
	d.keywords = c.Descriptors()
	return d, nil
}

// Registry selects the variant to read a source with.
type Registry struct {
	mu       sync.RWMutex
	variants map[string]Variant
	order    []string
	logger   *zap.Logger
}

// NewRegistry creates a registry holding Generic and the given variants.
func NewRegistry(variants ...Variant) (*Registry, error) {
	r := &Registry{variants: make(map[string]Variant)}
	for _, v := range append([]Variant{Generic}, variants...) {
		if err := r.Add(v); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// SetLogger sets the logger used for match failures.
func (r *Registry) SetLogger(l *zap.Logger) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logger = l
}

func (r *Registry) log() *zap.Logger {
	if r.logger != nil {
		return r.logger
	}
	return Logger()
}

// Add registers v. Names must be unique.
func (r *Registry) Add(v Variant) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.variants[v.Name()]; ok {
		return fmt.Errorf("variant %s already registered", v.Name())
	}
	r.variants[v.Name()] = v
	r.order = append(r.order, v.Name())
	return nil
}

// Remove unregisters the named variant.
func (r *Registry) Remove(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.variants[name]; !ok {
		return false
	}
	delete(r.variants, name)
	r.order = slices.DeleteFunc(r.order, func(n string) bool { return n == name })
	return true
}

// Variants returns the registered variants in registration order.
func (r *Registry) Variants() []Variant {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Variant, len(r.order))
	for i, n := range r.order {
		out[i] = r.variants[n]
	}
	return out
}

// Lookup returns the named variant.
func (r *Registry) Lookup(name string) (Variant, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.variants[name]
	return v, ok
}

func (r *Registry) isAncestor(ancestor, of string) bool {
	seen := map[string]bool{}
	for cur := of; cur != "" && !seen[cur]; {
		seen[cur] = true
		v, ok := r.variants[cur]
		if !ok {
			return false
		}
		cur = v.Parent()
		if cur == ancestor {
			return true
		}
	}
	return false
}

// Resolve returns the one matching variant that is not an ancestor of
// another matching variant. Match errors are logged and collected; if no
// single variant remains the error is a *ClassificationError.
func (r *Registry) Resolve(src *Source) (Variant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var (
		matched  []string
		failures []error
	)
	for _, name := range r.order {
		ok, err := r.variants[name].Matches(src)
		if err != nil {
			r.log().Warn("variant match failed", zap.String("variant", name), zap.Error(err))
			failures = append(failures, fmt.Errorf("%s: %w", name, err))
			continue
		}
		if ok {
			matched = append(matched, name)
		}
	}

	var specific []string
	for _, m := range matched {
		ancestor := slices.ContainsFunc(matched, func(o string) bool {
			return o != m && r.isAncestor(m, o)
		})
		if !ancestor {
			specific = append(specific, m)
		}
	}
	if len(specific) != 1 {
		return nil, &ClassificationError{Path: src.path, Matches: specific, Failures: failures}
	}
	return r.variants[specific[0]], nil
}

func (r *Registry) read(src *Source) (*Dataset, error) {
	v, err := r.Resolve(src)
	if err != nil {
		src.Close()
		return nil, err
	}
	d, err := v.Read(src)
	if err != nil {
		src.Close()
		return nil, err
	}
	return d, nil
}

// Open reads the file at path as the variant that claims it.
func (r *Registry) Open(path string, opts ...ReadOption) (*Dataset, error) {
	src, err := openSource(path, applyReadOptions(opts))
	if err != nil {
		return nil, err
	}
	return r.read(src)
}

// Read reads a container from ra as the variant that claims it.
func (r *Registry) Read(ra io.ReaderAt, size int64, opts ...ReadOption) (*Dataset, error) {
	src, err := readerSource(ra, size, applyReadOptions(opts))
	if err != nil {
		return nil, err
	}
	return r.read(src)
}

// Create builds a dataset from a primary header and raw extension records
// and classifies it.
func (r *Registry) Create(phu *Header, records ...*Record) (*Dataset, error) {
	o := defaultReadOptions()
	src := &Source{
		records: append([]*Record{NewPrimaryRecord(phu, nil)}, records...),
		opts:    o,
	}
	return r.read(src)
}
