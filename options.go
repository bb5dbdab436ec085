package georaster

import (
	"github.com/sirupsen/logrus"
)

const (
	DefaultRasterCacheCapacity  = 256 << 20 // 256MB.
	DefaultResponseCacheSize    = 64
	DefaultCachedDataRasterSize = 128
)

// An Option sets an option on a CachedDataRaster, RasterServer, or
// TiledRasterSet. Options that do not apply are ignored.
type Option func(*options)

type options struct {
	logger            logrus.FieldLogger
	cache             *RasterCache
	readers           []DataRasterReader
	responseCacheSize int
	instanceCacheSize int
}

func newOptions(opts []Option) *options {
	o := &options{
		logger:            logrus.StandardLogger(),
		responseCacheSize: DefaultResponseCacheSize,
		instanceCacheSize: DefaultCachedDataRasterSize,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.cache == nil {
		o.cache, _ = NewRasterCache(DefaultRasterCacheCapacity)
	}
	if o.readers == nil {
		o.readers = DefaultReaders()
	}
	return o
}

// WithLogger sets the logger.
func WithLogger(logger logrus.FieldLogger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithRasterCache sets the cache holding decoded rasters. Sharing a cache
// bounds the memory used by many servers or tile sets.
func WithRasterCache(cache *RasterCache) Option {
	return func(o *options) {
		o.cache = cache
	}
}

// WithReaders sets the readers tried, in order, for each source.
func WithReaders(readers ...DataRasterReader) Option {
	return func(o *options) {
		o.readers = readers
	}
}

// WithResponseCacheSize sets the number of encoded responses a RasterServer
// keeps. Zero disables the cache.
func WithResponseCacheSize(size int) Option {
	return func(o *options) {
		o.responseCacheSize = size
	}
}

// WithInstanceCacheSize sets the number of CachedDataRasters a
// TiledRasterSet keeps open.
func WithInstanceCacheSize(size int) Option {
	return func(o *options) {
		o.instanceCacheSize = size
	}
}
