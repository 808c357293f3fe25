package mef

import (
	"go.uber.org/zap"

	"github.com/robert-malhotra/go-mef/internal/blockcache"
)

// ReadOption configures how a container is read.
type ReadOption func(*readOptions)

type readOptions struct {
	memmap         bool
	verify         bool
	codec          TransformCodec
	logger         *zap.Logger
	cacheSize      int
	headerFallback bool
}

func defaultReadOptions() *readOptions {
	return &readOptions{
		memmap:         true,
		verify:         true,
		codec:          AutoTransformCodec{},
		cacheSize:      blockcache.DefaultSize,
		headerFallback: true,
	}
}

func (o *readOptions) log() *zap.Logger {
	if o.logger != nil {
		return o.logger
	}
	return Logger()
}

// WithMemmap enables or disables memory mapping. When disabled, image
// payloads are materialized during the read.
func WithMemmap(enabled bool) ReadOption {
	return func(o *readOptions) {
		o.memmap = enabled
	}
}

// WithChecksumVerification enables or disables DATAHASH verification.
func WithChecksumVerification(enabled bool) ReadOption {
	return func(o *readOptions) {
		o.verify = enabled
	}
}

// WithReadTransformCodec sets the codec used to decode stored transforms.
func WithReadTransformCodec(c TransformCodec) ReadOption {
	return func(o *readOptions) {
		if c != nil {
			o.codec = c
		}
	}
}

// WithLogger sets the logger for warnings raised while reading. The
// resulting Dataset keeps using it.
func WithLogger(l *zap.Logger) ReadOption {
	return func(o *readOptions) {
		o.logger = l
	}
}

// WithBlockCacheSize sets how many decoded encoded payloads are kept per
// source.
func WithBlockCacheSize(n int) ReadOption {
	return func(o *readOptions) {
		if n > 0 {
			o.cacheSize = n
		}
	}
}

// WithHeaderTransforms enables or disables deriving a linear transform from
// header keywords when a unit has no stored transform.
func WithHeaderTransforms(enabled bool) ReadOption {
	return func(o *readOptions) {
		o.headerFallback = enabled
	}
}

// WriteOption configures how a Dataset is written.
type WriteOption func(*writeOptions)

type writeOptions struct {
	overwrite bool
	pipeline  string
	codec     TransformCodec
	checksum  bool
	logger    *zap.Logger
}

func defaultWriteOptions() *writeOptions {
	return &writeOptions{
		codec:    AutoTransformCodec{},
		checksum: true,
	}
}

// WithOverwrite allows WriteFile to replace an existing file.
func WithOverwrite() WriteOption {
	return func(o *writeOptions) {
		o.overwrite = true
	}
}

// WithCompression stores image payloads through the given filter pipeline,
// for example "shuffle,zstd". An empty pipeline stores payloads raw.
func WithCompression(pipeline string) WriteOption {
	return func(o *writeOptions) {
		o.pipeline = pipeline
	}
}

// WithWriteTransformCodec sets the codec used to store transforms.
func WithWriteTransformCodec(c TransformCodec) WriteOption {
	return func(o *writeOptions) {
		if c != nil {
			o.codec = c
		}
	}
}

// WithoutChecksums omits DATAHASH keywords.
func WithoutChecksums() WriteOption {
	return func(o *writeOptions) {
		o.checksum = false
	}
}

// WithWriteLogger sets the logger for warnings raised while writing.
func WithWriteLogger(l *zap.Logger) WriteOption {
	return func(o *writeOptions) {
		o.logger = l
	}
}
