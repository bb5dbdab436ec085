package georaster

import (
	"context"
	"errors"
	"io/fs"
	"math"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	absentTileHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "georaster_absent_tile_hits_total",
		Help: "The total number of tiles skipped because they are absent",
	})
	tileInstanceCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "georaster_tile_instance_cache_hits_total",
		Help: "The total number of hits on the tile instance cache",
	})
	tileInstanceCacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "georaster_tile_instance_cache_misses_total",
		Help: "The total number of misses on the tile instance cache",
	})
	tileInstanceCacheEvictions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "georaster_tile_instance_cache_evictions_total",
		Help: "The total number of evictions from the tile instance cache",
	})
)

// A TiledRasterSet serves rasters from tiles laid out by a LevelSet in a
// filesystem.
type TiledRasterSet struct {
	mutex       sync.Mutex
	levelSet    *LevelSet
	fsys        fs.FS
	pixelFormat PixelFormat
	options     *options
	factory     *ReaderFactory
	tileCache   *lru.Cache[TileKey, *CachedDataRaster]
}

// NewTiledRasterSet returns a new TiledRasterSet reading tiles of
// pixelFormat from fsys at the paths given by levelSet.
func NewTiledRasterSet(levelSet *LevelSet, fsys fs.FS, pixelFormat PixelFormat, options ...Option) (*TiledRasterSet, error) {
	switch {
	case levelSet == nil:
		return nil, newConfigError("level set", "required")
	case fsys == nil:
		return nil, newConfigError("filesystem", "required")
	case pixelFormat != PixelFormatImage && pixelFormat != PixelFormatElevation:
		return nil, newConfigError("pixel format", "must be image or elevation")
	}
	o := newOptions(options)
	s := &TiledRasterSet{
		levelSet:    levelSet,
		fsys:        fsys,
		pixelFormat: pixelFormat,
		options:     o,
		factory:     NewReaderFactory(o.readers...),
	}
	var err error
	s.tileCache, err = lru.NewWithEvict(o.instanceCacheSize, func(key TileKey, value *CachedDataRaster) {
		if value != nil {
			_ = value.Close()
		}
	})
	if err != nil {
		return nil, err
	}
	return s, nil
}

// LevelSet returns s's level set.
func (s *TiledRasterSet) LevelSet() *LevelSet {
	return s.levelSet
}

// Composite returns a new raster of width by height pixels covering sector,
// drawn from the tiles of the level best matching the requested resolution.
// Absent tiles leave their part of the raster empty.
func (s *TiledRasterSet) Composite(ctx context.Context, sector Sector, width, height int) (DataRaster, error) {
	if err := checkFrame(width, height, sector); err != nil {
		return nil, err
	}
	var tiles []*Tile
	if levelNumber := s.levelSet.LevelForResolution(sector, sector.LatDelta()/float64(height)); levelNumber >= 0 {
		var err error
		tiles, err = s.levelSet.TilesInSector(sector, levelNumber)
		if err != nil {
			return nil, err
		}
	}

	metadata := NewMetadata(width, height, sector)
	metadata.PixelFormat = s.pixelFormat
	canvas, err := NewCanvas(s.pixelFormat, width, height, sector, metadata)
	if err != nil {
		return nil, err
	}
	for _, tile := range tiles {
		if err := ctx.Err(); err != nil {
			_ = canvas.Dispose()
			return nil, err
		}
		if err := s.drawTile(tile, canvas); err != nil {
			_ = canvas.Dispose()
			return nil, err
		}
	}
	return canvas, nil
}

// Elevations returns the elevations at latLons, sampled from the most
// detailed level permitted at each location that has data there. Missing
// elevations are represented by NaNs.
func (s *TiledRasterSet) Elevations(ctx context.Context, latLons []LatLon) ([]float64, error) {
	elevations := make([]float64, len(latLons))
	maxLevels := make([]int, len(latLons))
	lastLevel := s.levelSet.LastLevel().Number()
	for index, latLon := range latLons {
		elevations[index] = math.NaN()
		pointSector := Sector{MinLat: latLon.Lat, MaxLat: latLon.Lat, MinLon: latLon.Lon, MaxLon: latLon.Lon}
		maxLevels[index] = s.levelSet.ClampLevel(pointSector, lastLevel)
	}

	// Fall back to less detailed levels for elevations still missing.
	for levelNumber := lastLevel; levelNumber >= 0; levelNumber-- {
		if err := s.levelElevations(ctx, levelNumber, latLons, maxLevels, elevations); err != nil {
			return nil, err
		}
	}

	return elevations, nil
}

// levelElevations populates the missing elevations that may be sampled from
// levelNumber.
func (s *TiledRasterSet) levelElevations(ctx context.Context, levelNumber int, latLons []LatLon, maxLevels []int, elevations []float64) error {
	// Group indexes by tile.
	type groupStruct struct {
		tile    *Tile
		indexes []int
	}
	groupsByTileKey := make(map[TileKey]*groupStruct)
	for index, latLon := range latLons {
		if !math.IsNaN(elevations[index]) || maxLevels[index] < levelNumber {
			continue
		}
		tile, ok := s.levelSet.TileForLatLon(latLon, levelNumber)
		if !ok {
			continue
		}
		if group, ok := groupsByTileKey[tile.Key]; ok {
			group.indexes = append(group.indexes, index)
		} else {
			groupsByTileKey[tile.Key] = &groupStruct{
				tile:    tile,
				indexes: []int{index},
			}
		}
	}

	// Populate elevations one tile at a time.
	for _, group := range groupsByTileKey {
		if err := ctx.Err(); err != nil {
			return err
		}
		rasters, err := s.tileRasters(group.tile)
		if err != nil {
			return err
		}
		for _, index := range group.indexes {
			for _, raster := range rasters {
				if elevationRaster, ok := raster.(*ElevationRaster); ok {
					if elevation := elevationRaster.Elevation(latLons[index]); !math.IsNaN(elevation) {
						elevations[index] = elevation
						break
					}
				}
			}
		}
	}

	return nil
}

// Close releases the rasters of every open tile.
func (s *TiledRasterSet) Close() error {
	s.tileCache.Purge()
	return nil
}

func (s *TiledRasterSet) drawTile(tile *Tile, canvas DataRaster) error {
	raster, err := s.getTileCached(tile)
	if err != nil || raster == nil {
		return err
	}
	switch err := raster.DrawOnTo(canvas); {
	case errors.Is(err, fs.ErrNotExist):
		s.markAbsent(tile)
		return nil
	default:
		return err
	}
}

// tileRasters returns the decoded rasters of tile, or nil if tile is absent.
func (s *TiledRasterSet) tileRasters(tile *Tile) ([]DataRaster, error) {
	raster, err := s.getTileCached(tile)
	if err != nil || raster == nil {
		return nil, err
	}
	switch rasters, err := raster.DataRasters(); {
	case errors.Is(err, fs.ErrNotExist):
		s.markAbsent(tile)
		return nil, nil
	case err != nil:
		return nil, err
	default:
		return rasters, nil
	}
}

// getTile returns the raster of tile, or nil if tile does not exist.
func (s *TiledRasterSet) getTile(tile *Tile) (*CachedDataRaster, error) {
	path := tile.Path()
	switch _, err := fs.Stat(s.fsys, path); {
	case errors.Is(err, fs.ErrNotExist):
		s.markAbsent(tile)
		return nil, nil
	case err != nil:
		return nil, err
	}

	metadata := &Metadata{
		PixelFormat: s.pixelFormat,
	}
	metadata.SetSector(tile.Sector)
	if s.pixelFormat == PixelFormatElevation {
		if err := metadata.SetWidth(tile.Width()); err != nil {
			return nil, err
		}
		if err := metadata.SetHeight(tile.Height()); err != nil {
			return nil, err
		}
	}

	source := NewFileSource(s.fsys, path)
	reader, ok := s.factory.FindReader(source, metadata)
	if !ok {
		s.options.logger.WithField("tile", tile.String()).WithField("path", path).Warn("no reader")
		s.markAbsent(tile)
		return nil, nil
	}
	return NewCachedDataRaster(source, reader, metadata,
		WithLogger(s.options.logger.WithField("tile", tile.String())),
		WithRasterCache(s.options.cache),
	)
}

// getTileCached returns the raster of tile, using the cache if possible.
func (s *TiledRasterSet) getTileCached(tile *Tile) (*CachedDataRaster, error) {
	if s.levelSet.IsAbsent(tile.Key) {
		absentTileHits.Inc()
		return nil, nil
	}

	if raster, ok := s.tileCache.Get(tile.Key); ok {
		tileInstanceCacheHits.Inc()
		return raster, nil
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	if raster, ok := s.tileCache.Get(tile.Key); ok {
		tileInstanceCacheHits.Inc()
		return raster, nil
	}

	tileInstanceCacheMisses.Inc()

	raster, err := s.getTile(tile)
	if err != nil || raster == nil {
		return nil, err
	}

	if eviction := s.tileCache.Add(tile.Key, raster); eviction {
		tileInstanceCacheEvictions.Inc()
	}

	return raster, nil
}

func (s *TiledRasterSet) markAbsent(tile *Tile) {
	s.levelSet.MarkAbsent(tile.Key)
	s.tileCache.Remove(tile.Key)
}
