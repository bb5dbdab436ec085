package georaster

import (
	"strconv"
	"strings"
	"sync/atomic"
)

// DefaultPathTemplate is the tile path template used when none is given.
const DefaultPathTemplate = "{cache}/{level}/{row}/{row}_{col}{suffix}"

// A Level is one resolution step of a LevelSet. It is immutable except for
// its active flag and its absent tiles.
type Level struct {
	number       int
	name         string
	tileDelta    LatLon
	tileWidth    int
	tileHeight   int
	cacheName    string
	dataset      string
	formatSuffix string
	pathTemplate string
	active       atomic.Bool
	absentTiles  *AbsentTileList
}

// LevelParams are the parameters of a Level.
type LevelParams struct {
	Number       int
	Name         string
	TileDelta    LatLon
	TileWidth    int
	TileHeight   int
	CacheName    string
	Dataset      string
	FormatSuffix string
	PathTemplate string
	Inactive     bool
	AbsentTiles  *AbsentTileList
}

// NewLevel returns a new Level.
func NewLevel(params LevelParams) (*Level, error) {
	switch {
	case params.Number < 0:
		return nil, newConfigError("level number", "must not be negative")
	case !(params.TileDelta.Lat > 0) || !(params.TileDelta.Lon > 0):
		return nil, newConfigError("tile delta", "must be positive")
	case params.TileDelta.Lat > 180 || params.TileDelta.Lon > 360:
		return nil, newConfigError("tile delta", "larger than the globe")
	case params.TileWidth <= 0 || params.TileHeight <= 0:
		return nil, newConfigError("tile size", "must be positive")
	}

	l := &Level{
		number:       params.Number,
		name:         params.Name,
		tileDelta:    params.TileDelta,
		tileWidth:    params.TileWidth,
		tileHeight:   params.TileHeight,
		cacheName:    params.CacheName,
		dataset:      params.Dataset,
		formatSuffix: params.FormatSuffix,
		pathTemplate: params.PathTemplate,
		absentTiles:  params.AbsentTiles,
	}
	if l.name == "" {
		l.name = strconv.Itoa(l.number)
	}
	if l.pathTemplate == "" {
		l.pathTemplate = DefaultPathTemplate
	}
	if l.absentTiles == nil {
		var err error
		l.absentTiles, err = NewAbsentTileList(DefaultMaxAbsentTiles, DefaultMaxAbsentAttempts, DefaultMinAbsentCheckInterval)
		if err != nil {
			return nil, err
		}
	}
	l.active.Store(!params.Inactive)
	return l, nil
}

func (l *Level) Number() int { return l.number }
func (l *Level) Name() string { return l.name }
func (l *Level) TileDelta() LatLon { return l.tileDelta }
func (l *Level) TileWidth() int { return l.tileWidth }
func (l *Level) TileHeight() int { return l.tileHeight }
func (l *Level) CacheName() string { return l.cacheName }
func (l *Level) Dataset() string { return l.dataset }
func (l *Level) FormatSuffix() string { return l.formatSuffix }

// AbsentTiles returns l's absent tile list.
func (l *Level) AbsentTiles() *AbsentTileList {
	return l.absentTiles
}

// TexelSize returns the latitude extent of one texel in degrees.
func (l *Level) TexelSize() float64 {
	return l.tileDelta.Lat / float64(l.tileHeight)
}

// IsActive returns whether tiles may be requested from l.
func (l *Level) IsActive() bool {
	return l.active.Load()
}

// SetActive sets whether tiles may be requested from l.
func (l *Level) SetActive(active bool) {
	l.active.Store(active)
}

// Path returns the path of the tile at key, rendered from l's path template.
func (l *Level) Path(key TileKey) string {
	return strings.NewReplacer(
		"{cache}", l.cacheName,
		"{dataset}", l.dataset,
		"{level}", l.name,
		"{z}", strconv.Itoa(key.Level),
		"{row}", strconv.Itoa(key.Row),
		"{y}", strconv.Itoa(key.Row),
		"{col}", strconv.Itoa(key.Column),
		"{x}", strconv.Itoa(key.Column),
		"{suffix}", l.formatSuffix,
	).Replace(l.pathTemplate)
}

// copy returns a copy of l that shares l's absent tiles.
func (l *Level) copy() *Level {
	c := &Level{
		number:       l.number,
		name:         l.name,
		tileDelta:    l.tileDelta,
		tileWidth:    l.tileWidth,
		tileHeight:   l.tileHeight,
		cacheName:    l.cacheName,
		dataset:      l.dataset,
		formatSuffix: l.formatSuffix,
		pathTemplate: l.pathTemplate,
		absentTiles:  l.absentTiles,
	}
	c.active.Store(l.active.Load())
	return c
}
