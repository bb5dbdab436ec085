package georaster

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/maypok86/otter/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	rasterServerRequests = promauto.NewCounter(prometheus.CounterOpts{
		Name: "georaster_server_requests_total",
		Help: "The total number of raster server requests",
	})
	rasterServerComposites = promauto.NewCounter(prometheus.CounterOpts{
		Name: "georaster_server_composites_total",
		Help: "The total number of composites rendered by raster servers",
	})
)

// A RasterRequest is a request for a composite raster.
type RasterRequest struct {
	Width  int
	Height int
	Sector Sector

	// MimeType selects the output encoding. If empty, the default encoding
	// for the server's pixel format is used.
	MimeType string
}

type responseKey struct {
	request    RasterRequest
	generation int64
}

// A RasterServer composites rasters from an ordered list of sources.
type RasterServer struct {
	pixelFormat PixelFormat
	options     *options
	factory     *ReaderFactory
	mutex       sync.RWMutex
	rasters     []*CachedDataRaster
	sector      *Sector
	generation  atomic.Int64
	responses   *otter.Cache[responseKey, []byte]
}

// NewRasterServer returns a new RasterServer producing rasters of
// pixelFormat.
func NewRasterServer(pixelFormat PixelFormat, options ...Option) (*RasterServer, error) {
	if pixelFormat != PixelFormatImage && pixelFormat != PixelFormatElevation {
		return nil, newConfigError("pixel format", "must be image or elevation")
	}
	o := newOptions(options)
	s := &RasterServer{
		pixelFormat: pixelFormat,
		options:     o,
		factory:     NewReaderFactory(o.readers...),
	}
	if s.options.responseCacheSize > 0 {
		var err error
		s.responses, err = otter.New(&otter.Options[responseKey, []byte]{
			MaximumSize: s.options.responseCacheSize,
		})
		if err != nil {
			return nil, err
		}
	}
	return s, nil
}

// AddSource adds source to s, drawn over the sources already added. It
// returns false if no reader can read source or source's pixel format does
// not match s's.
func (s *RasterServer) AddSource(source Source, metadata *Metadata) (bool, error) {
	if source == nil {
		return false, newConfigError("source", "required")
	}
	reader, ok := s.factory.FindReader(source, metadata)
	if !ok {
		return false, nil
	}
	raster, err := NewCachedDataRaster(source, reader, metadata,
		WithLogger(s.options.logger),
		WithRasterCache(s.options.cache),
	)
	if err != nil {
		return false, err
	}
	if raster.Metadata().PixelFormat != s.pixelFormat {
		s.options.logger.WithField("source", source.Key()).Infof("pixel format %s", raster.Metadata().PixelFormat)
		return false, raster.Close()
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.rasters = append(s.rasters, raster)
	sector := raster.Sector()
	if s.sector != nil {
		sector = s.sector.Union(sector)
	}
	s.sector = &sector
	s.generation.Add(1)
	return true, nil
}

// Sector returns the union of the sectors of s's sources, and false if s has
// no sources.
func (s *RasterServer) Sector() (Sector, bool) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	if s.sector == nil {
		return Sector{}, false
	}
	return *s.sector, true
}

// PixelFormat returns the pixel format of rasters produced by s.
func (s *RasterServer) PixelFormat() PixelFormat {
	return s.pixelFormat
}

// Composite returns a new raster covering request's sector onto which every
// intersecting source is drawn in the order in which they were added.
func (s *RasterServer) Composite(request RasterRequest) (DataRaster, error) {
	if err := checkFrame(request.Width, request.Height, request.Sector); err != nil {
		return nil, err
	}
	metadata := NewMetadata(request.Width, request.Height, request.Sector)
	metadata.PixelFormat = s.pixelFormat
	canvas, err := NewCanvas(s.pixelFormat, request.Width, request.Height, request.Sector, metadata)
	if err != nil {
		return nil, err
	}

	s.mutex.RLock()
	rasters := s.rasters
	s.mutex.RUnlock()

	rasterServerComposites.Inc()
	for _, raster := range rasters {
		if !raster.Sector().Intersects(request.Sector) {
			continue
		}
		if err := raster.DrawOnTo(canvas); err != nil {
			_ = canvas.Dispose()
			return nil, err
		}
	}
	return canvas, nil
}

// Serve returns the composite for request, encoded. The returned slice may
// be shared with other callers and must not be modified.
func (s *RasterServer) Serve(ctx context.Context, request RasterRequest) ([]byte, error) {
	rasterServerRequests.Inc()
	if request.MimeType == "" {
		request.MimeType = DefaultMimeType(s.pixelFormat)
	}
	if err := s.checkMimeType(request.MimeType); err != nil {
		return nil, err
	}
	if s.responses == nil {
		return s.serve(request)
	}
	key := responseKey{
		request:    request,
		generation: s.generation.Load(),
	}
	return s.responses.Get(ctx, key, otter.LoaderFunc[responseKey, []byte](func(ctx context.Context, key responseKey) ([]byte, error) {
		return s.serve(key.request)
	}))
}

func (s *RasterServer) serve(request RasterRequest) ([]byte, error) {
	canvas, err := s.Composite(request)
	if err != nil {
		return nil, err
	}
	defer canvas.Dispose()
	return EncodeRaster(canvas, request.MimeType)
}

func (s *RasterServer) checkMimeType(mimeType string) error {
	switch {
	case s.pixelFormat == PixelFormatImage && (mimeType == MimeTypePNG || mimeType == MimeTypeJPEG || mimeType == MimeTypeTIFF):
		return nil
	case s.pixelFormat == PixelFormatElevation && (mimeType == MimeTypeBIL16 || mimeType == MimeTypeBIL32):
		return nil
	default:
		return fmt.Errorf("%s for %s: %w", mimeType, s.pixelFormat, ErrUnsupportedFormat)
	}
}

// Close releases s's sources.
func (s *RasterServer) Close() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	for _, raster := range s.rasters {
		if err := raster.Close(); err != nil {
			return err
		}
	}
	s.rasters = nil
	s.sector = nil
	s.generation.Add(1)
	return nil
}
