package georaster

import (
	"errors"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sirupsen/logrus"
)

var (
	rasterDecodes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "georaster_raster_decodes_total",
		Help: "The total number of rasters decoded",
	})
	rasterDecodeRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "georaster_raster_decode_retries_total",
		Help: "The total number of decodes retried after running out of memory",
	})
)

// A CachedDataRaster is a DataRaster whose pixels are decoded from a source
// on first use and held in a RasterCache, from which they may be evicted and
// later decoded again.
//
// Decodes of the same CachedDataRaster are serialized so that at most one is
// in flight. Drawing and sub-raster extraction are serialized separately.
type CachedDataRaster struct {
	source         Source
	reader         DataRasterReader
	metadata       *Metadata
	cache          *RasterCache
	logger         logrus.FieldLogger
	retrievalMutex sync.Mutex
	usageMutex     sync.Mutex
	removeListener func()
}

// NewCachedDataRaster returns a new CachedDataRaster. The sector and pixel
// format are taken from metadata, or read from source with reader if
// metadata does not contain them.
func NewCachedDataRaster(source Source, reader DataRasterReader, metadata *Metadata, options ...Option) (*CachedDataRaster, error) {
	switch {
	case source == nil:
		return nil, newConfigError("source", "required")
	case reader == nil:
		return nil, newConfigError("reader", "required")
	}
	o := newOptions(options)

	m := metadata.Clone()
	if m.Sector == nil || m.PixelFormat == PixelFormatUnknown {
		readMetadata, err := reader.ReadMetadata(source, m)
		if err != nil {
			return nil, &SourceError{
				Source: source.Key(),
				Op:     "read metadata",
				Err:    err,
			}
		}
		m = readMetadata
	}
	if m.Sector == nil || m.PixelFormat == PixelFormatUnknown {
		return nil, &SourceError{
			Source: source.Key(),
			Op:     "read metadata",
			Err:    fmt.Errorf("%w: sector or pixel format", ErrIncompleteMetadata),
		}
	}

	c := &CachedDataRaster{
		source:   source,
		reader:   reader,
		metadata: m,
		cache:    o.cache,
		logger:   o.logger.WithField("source", source.Key()),
	}
	c.removeListener = c.cache.AddEvictionListener(c.onEvict)
	return c, nil
}

func (c *CachedDataRaster) Sector() Sector { return *c.metadata.Sector }
func (c *CachedDataRaster) Metadata() *Metadata { return c.metadata }
func (c *CachedDataRaster) Source() Source { return c.source }

// Width returns c's width, or zero if it is not known without decoding.
func (c *CachedDataRaster) Width() int {
	width, _ := c.metadata.Width()
	return width
}

// Height returns c's height, or zero if it is not known without decoding.
func (c *CachedDataRaster) Height() int {
	height, _ := c.metadata.Height()
	return height
}

// SizeInBytes returns the size of c's decoded rasters, or zero if they are
// not cached.
func (c *CachedDataRaster) SizeInBytes() int64 {
	entry, ok := c.cache.Peek(c.source.Key())
	if !ok {
		return 0
	}
	return rastersSize(entry.Rasters)
}

// DataRasters returns c's decoded rasters, decoding them if they are not
// cached. A failed decode is remembered and its error returned until the
// entry is evicted.
func (c *CachedDataRaster) DataRasters() ([]DataRaster, error) {
	c.retrievalMutex.Lock()
	defer c.retrievalMutex.Unlock()

	key := c.source.Key()
	if entry, ok := c.cache.Get(key); ok {
		return entry.Rasters, entry.Err
	}

	rasters, size, err := c.decode()
	if errors.Is(err, ErrOutOfMemory) {
		c.logger.WithError(err).Warn("releasing cached rasters and retrying")
		rasterDecodeRetries.Inc()
		releaseMemory(c.cache)
		rasters, size, err = c.decode()
	}
	if err != nil {
		err = &SourceError{
			Source: key,
			Op:     "read",
			Err:    err,
		}
		if !errors.Is(err, ErrOutOfMemory) {
			c.cache.Add(key, CacheEntry{Err: err}, 0)
		}
		return nil, err
	}

	c.cache.Add(key, CacheEntry{Rasters: rasters}, size)
	return rasters, nil
}

// decode reads c's rasters and measures their size.
func (c *CachedDataRaster) decode() ([]DataRaster, int64, error) {
	var rasters []DataRaster
	heapDelta, err := measureHeap(func() error {
		var err error
		rasters, err = c.reader.Read(c.source, c.metadata)
		return err
	})
	rasterDecodes.Inc()
	if err != nil {
		c.dispose(rasters)
		return nil, 0, err
	}
	return rasters, max(rastersSize(rasters), heapDelta), nil
}

// DrawOnTo draws c's rasters onto canvas. Nothing is decoded if c does not
// intersect canvas.
func (c *CachedDataRaster) DrawOnTo(canvas DataRaster) error {
	if !c.Sector().Intersects(canvas.Sector()) {
		return nil
	}
	c.usageMutex.Lock()
	defer c.usageMutex.Unlock()
	return c.withRetry("draw", func() error {
		return c.drawOnTo(canvas)
	})
}

// SubRaster returns a new raster resampled from c's rasters.
func (c *CachedDataRaster) SubRaster(width, height int, sector Sector, metadata *Metadata) (DataRaster, error) {
	m, err := subRasterMetadata(width, height, sector, metadata, c.metadata)
	if err != nil {
		return nil, err
	}
	c.usageMutex.Lock()
	defer c.usageMutex.Unlock()
	var canvas DataRaster
	if err := c.withRetry("sub-raster", func() error {
		var err error
		canvas, err = NewCanvas(m.PixelFormat, width, height, sector, m)
		if err != nil {
			return err
		}
		return c.drawOnTo(canvas)
	}); err != nil {
		return nil, err
	}
	return canvas, nil
}

func (c *CachedDataRaster) drawOnTo(canvas DataRaster) error {
	rasters, err := c.DataRasters()
	if err != nil {
		return err
	}
	for _, raster := range rasters {
		if err := raster.DrawOnTo(canvas); err != nil {
			return err
		}
	}
	return nil
}

// withRetry calls f, retrying once if it ran out of memory or if c's
// rasters were evicted and disposed while in use. Decode failures are
// returned as is, as DataRasters has already retried them.
func (c *CachedDataRaster) withRetry(op string, f func() error) error {
	err := f()
	var sourceError *SourceError
	switch {
	case err == nil:
		return nil
	case errors.As(err, &sourceError):
		return err
	case errors.Is(err, ErrOutOfMemory):
		c.logger.WithError(err).Warnf("%s: releasing cached rasters and retrying", op)
		releaseMemory(c.cache)
		err = f()
	case errors.Is(err, ErrDisposed):
		err = f()
	}
	switch {
	case err == nil:
		return nil
	case errors.As(err, &sourceError):
		return err
	default:
		return &SourceError{
			Source: c.source.Key(),
			Op:     op,
			Err:    err,
		}
	}
}

// Dispose removes c's rasters from the cache, disposing them. c remains
// usable.
func (c *CachedDataRaster) Dispose() error {
	c.cache.Remove(c.source.Key())
	return nil
}

// Close disposes c's rasters and stops c listening for evictions.
func (c *CachedDataRaster) Close() error {
	err := c.Dispose()
	c.removeListener()
	return err
}

func (c *CachedDataRaster) onEvict(key string, entry CacheEntry) {
	if key != c.source.Key() {
		return
	}
	c.dispose(entry.Rasters)
}

func (c *CachedDataRaster) dispose(rasters []DataRaster) {
	for _, raster := range rasters {
		if raster == nil {
			continue
		}
		if err := raster.Dispose(); err != nil {
			c.logger.WithError(err).Warn("dispose")
		}
	}
}
