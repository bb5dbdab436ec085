package georaster

import (
	"cmp"
	"fmt"
	"math"
	"slices"
	"time"
)

// tileEpsilon absorbs floating point error when a coordinate falls on a
// tile boundary.
const tileEpsilon = 1e-9

// A ResolutionLimit caps the level used for queries intersecting Sector.
type ResolutionLimit struct {
	Sector   Sector
	MaxLevel int
}

// A LevelSet is an ordered collection of Levels covering a Sector.
type LevelSet struct {
	sector     Sector
	tileOrigin LatLon
	levels     []*Level
	limits     []ResolutionLimit
}

// LevelSetParams are the parameters of a regular LevelSet, in which the tile
// delta halves from one level to the next.
type LevelSetParams struct {
	Sector                 Sector
	TileOrigin             *LatLon
	LevelZeroTileDelta     LatLon
	NumLevels              int
	NumEmptyLevels         int
	InactiveLevels         []int
	TileWidth              int
	TileHeight             int
	CacheName              string
	Dataset                string
	FormatSuffix           string
	PathTemplate           string
	MaxAbsentAttempts      int
	MinAbsentCheckInterval time.Duration
	MaxAbsentTiles         int
	Limits                 []ResolutionLimit
	Clock                  func() time.Time
}

// NewLevelSet returns a new regular LevelSet.
func NewLevelSet(params LevelSetParams) (*LevelSet, error) {
	if params.NumLevels <= 0 {
		return nil, newConfigError("number of levels", "must be positive")
	}
	if params.NumEmptyLevels < 0 || params.NumEmptyLevels > params.NumLevels {
		return nil, newConfigError("number of empty levels", "out of range")
	}
	tileOrigin := LatLon{Lat: params.Sector.MinLat, Lon: params.Sector.MinLon}
	if params.TileOrigin != nil {
		tileOrigin = *params.TileOrigin
	}
	maxAbsentAttempts := cmp.Or(params.MaxAbsentAttempts, DefaultMaxAbsentAttempts)
	minAbsentCheckInterval := cmp.Or(params.MinAbsentCheckInterval, DefaultMinAbsentCheckInterval)
	maxAbsentTiles := cmp.Or(params.MaxAbsentTiles, DefaultMaxAbsentTiles)
	var absentTileListOptions []AbsentTileListOption
	if params.Clock != nil {
		absentTileListOptions = append(absentTileListOptions, WithClock(params.Clock))
	}

	levels := make([]*Level, 0, params.NumLevels)
	tileDelta := params.LevelZeroTileDelta
	for i := range params.NumLevels {
		absentTiles, err := NewAbsentTileList(maxAbsentTiles, maxAbsentAttempts, minAbsentCheckInterval, absentTileListOptions...)
		if err != nil {
			return nil, err
		}
		level, err := NewLevel(LevelParams{
			Number:       i,
			TileDelta:    tileDelta,
			TileWidth:    params.TileWidth,
			TileHeight:   params.TileHeight,
			CacheName:    params.CacheName,
			Dataset:      params.Dataset,
			FormatSuffix: params.FormatSuffix,
			PathTemplate: params.PathTemplate,
			Inactive:     i < params.NumEmptyLevels || slices.Contains(params.InactiveLevels, i),
			AbsentTiles:  absentTiles,
		})
		if err != nil {
			return nil, fmt.Errorf("level %d: %w", i, err)
		}
		levels = append(levels, level)
		tileDelta = LatLon{Lat: tileDelta.Lat / 2, Lon: tileDelta.Lon / 2}
	}

	return NewLevelSetFromLevels(params.Sector, tileOrigin, levels, params.Limits...)
}

// NewLevelSetFromLevels returns a new LevelSet from explicit levels, which
// must be numbered 0 to N-1 with strictly decreasing tile deltas.
func NewLevelSetFromLevels(sector Sector, tileOrigin LatLon, levels []*Level, limits ...ResolutionLimit) (*LevelSet, error) {
	if sector.IsEmpty() {
		return nil, newConfigError("sector", "must not be empty")
	}
	if len(levels) == 0 {
		return nil, newConfigError("levels", "must not be empty")
	}
	if tileOrigin.Lat > sector.MinLat || tileOrigin.Lon > sector.MinLon {
		return nil, newConfigError("tile origin", "must not lie above or east of the sector's minimum corner")
	}
	for i, level := range levels {
		if level == nil {
			return nil, newConfigError("levels", fmt.Sprintf("level %d is nil", i))
		}
		if level.number != i {
			return nil, newConfigError("levels", fmt.Sprintf("level %d has number %d", i, level.number))
		}
		if i > 0 {
			prev := levels[i-1].tileDelta
			if !(level.tileDelta.Lat < prev.Lat) || !(level.tileDelta.Lon < prev.Lon) {
				return nil, newConfigError("levels", fmt.Sprintf("level %d tile delta does not decrease", i))
			}
		}
	}
	for _, limit := range limits {
		if limit.MaxLevel < 0 {
			return nil, newConfigError("resolution limit", "negative level")
		}
		if limit.Sector.IsEmpty() {
			return nil, newConfigError("resolution limit", "empty sector")
		}
	}

	sortedLimits := slices.Clone(limits)
	slices.SortStableFunc(sortedLimits, func(a, b ResolutionLimit) int {
		return cmp.Compare(b.MaxLevel, a.MaxLevel)
	})

	return &LevelSet{
		sector:     sector,
		tileOrigin: tileOrigin,
		levels:     slices.Clone(levels),
		limits:     sortedLimits,
	}, nil
}

// Copy returns a copy of s with independent active flags. Absent tile marks
// are shared with s.
func (s *LevelSet) Copy() *LevelSet {
	levels := make([]*Level, len(s.levels))
	for i, level := range s.levels {
		levels[i] = level.copy()
	}
	return &LevelSet{
		sector:     s.sector,
		tileOrigin: s.tileOrigin,
		levels:     levels,
		limits:     slices.Clone(s.limits),
	}
}

func (s *LevelSet) Sector() Sector { return s.sector }
func (s *LevelSet) TileOrigin() LatLon { return s.tileOrigin }
func (s *LevelSet) NumLevels() int { return len(s.levels) }
func (s *LevelSet) FirstLevel() *Level { return s.levels[0] }
func (s *LevelSet) LastLevel() *Level { return s.levels[len(s.levels)-1] }
func (s *LevelSet) ResolutionLimits() []ResolutionLimit { return slices.Clone(s.limits) }

// Level returns the level numbered levelNumber.
func (s *LevelSet) Level(levelNumber int) (*Level, bool) {
	if levelNumber < 0 || len(s.levels) <= levelNumber {
		return nil, false
	}
	return s.levels[levelNumber], true
}

// Levels returns s's levels.
func (s *LevelSet) Levels() []*Level {
	return slices.Clone(s.levels)
}

// ClampLevel returns levelNumber limited by every resolution limit whose
// sector intersects sector. Limits are applied from the most detailed to the
// least detailed, so the most restrictive applicable limit wins.
func (s *LevelSet) ClampLevel(sector Sector, levelNumber int) int {
	for _, limit := range s.limits {
		if limit.MaxLevel < levelNumber && intersectsOrContains(limit.Sector, sector) {
			levelNumber = limit.MaxLevel
		}
	}
	return levelNumber
}

// LevelForResolution returns the number of the least detailed level whose
// texel size is no larger than texelSize degrees, limited by s's resolution
// limits. If no level is detailed enough, the last level is used.
func (s *LevelSet) LevelForResolution(sector Sector, texelSize float64) int {
	levelNumber := len(s.levels) - 1
	for _, level := range s.levels {
		if level.TexelSize() <= texelSize {
			levelNumber = level.number
			break
		}
	}
	return s.ClampLevel(sector, levelNumber)
}

// TileNumber returns the absolute index of the tile at key within its level.
// It depends only on the tile origin and the level's tile delta.
func (s *LevelSet) TileNumber(key TileKey) int64 {
	level, ok := s.Level(key.Level)
	if !ok {
		return -1
	}
	columns := int64(math.Ceil((180 - s.tileOrigin.Lon) / level.tileDelta.Lon))
	return int64(key.Row)*columns + int64(key.Column)
}

// TileForLatLon returns the tile containing latLon at levelNumber.
func (s *LevelSet) TileForLatLon(latLon LatLon, levelNumber int) (*Tile, bool) {
	level, ok := s.Level(levelNumber)
	if !ok || !s.sector.Contains(latLon) {
		return nil, false
	}
	row := computeRow(level.tileDelta.Lat, latLon.Lat, s.tileOrigin.Lat)
	column := computeColumn(level.tileDelta.Lon, latLon.Lon, s.tileOrigin.Lon)
	// Points on the maximum edge of the set belong to the last tile.
	if latLon.Lat == s.sector.MaxLat && row > 0 && s.tileSector(level, row, column).MinLat == latLon.Lat {
		row--
	}
	if latLon.Lon == s.sector.MaxLon && column > 0 && s.tileSector(level, row, column).MinLon == latLon.Lon {
		column--
	}
	return s.newTile(level, row, column), true
}

// TilesInSector returns the tiles at levelNumber whose union covers the part
// of sector within s. Inactive levels yield no tiles.
func (s *LevelSet) TilesInSector(sector Sector, levelNumber int) ([]*Tile, error) {
	level, ok := s.Level(levelNumber)
	if !ok {
		return nil, fmt.Errorf("level %d: %w", levelNumber, ErrInvalidArgument)
	}
	if !level.IsActive() {
		return nil, nil
	}

	if sector.IsEmpty() {
		tile, ok := s.TileForLatLon(LatLon{Lat: sector.MinLat, Lon: sector.MinLon}, levelNumber)
		if !ok {
			return nil, nil
		}
		return []*Tile{tile}, nil
	}

	sector, ok = sector.Intersection(s.sector)
	if !ok {
		return nil, nil
	}

	minRow := computeRow(level.tileDelta.Lat, sector.MinLat, s.tileOrigin.Lat)
	maxRow := computeLastRow(level.tileDelta.Lat, sector.MaxLat, s.tileOrigin.Lat)
	minColumn := computeColumn(level.tileDelta.Lon, sector.MinLon, s.tileOrigin.Lon)
	maxColumn := computeLastColumn(level.tileDelta.Lon, sector.MaxLon, s.tileOrigin.Lon)

	tiles := make([]*Tile, 0, (maxRow-minRow+1)*(maxColumn-minColumn+1))
	for row := minRow; row <= maxRow; row++ {
		for column := minColumn; column <= maxColumn; column++ {
			tiles = append(tiles, s.newTile(level, row, column))
		}
	}
	return tiles, nil
}

// MarkAbsent records a failed attempt to fetch the tile at key.
func (s *LevelSet) MarkAbsent(key TileKey) {
	if level, ok := s.Level(key.Level); ok {
		level.absentTiles.MarkAbsent(s.TileNumber(key))
	}
}

// UnmarkAbsent forgets failed attempts to fetch the tile at key.
func (s *LevelSet) UnmarkAbsent(key TileKey) {
	if level, ok := s.Level(key.Level); ok {
		level.absentTiles.UnmarkAbsent(s.TileNumber(key))
	}
}

// IsAbsent returns whether the tile at key should not be fetched now.
func (s *LevelSet) IsAbsent(key TileKey) bool {
	level, ok := s.Level(key.Level)
	if !ok {
		return false
	}
	return level.absentTiles.IsAbsent(s.TileNumber(key))
}

func (s *LevelSet) newTile(level *Level, row, column int) *Tile {
	return &Tile{
		Key: TileKey{
			Level:  level.number,
			Row:    row,
			Column: column,
		},
		Sector: s.tileSector(level, row, column),
		Level:  level,
	}
}

func (s *LevelSet) tileSector(level *Level, row, column int) Sector {
	minLat := s.tileOrigin.Lat + float64(row)*level.tileDelta.Lat
	minLon := s.tileOrigin.Lon + float64(column)*level.tileDelta.Lon
	return Sector{
		MinLat: minLat,
		MaxLat: minLat + level.tileDelta.Lat,
		MinLon: minLon,
		MaxLon: minLon + level.tileDelta.Lon,
	}
}

func computeRow(delta, lat, originLat float64) int {
	return int(math.Floor((lat-originLat)/delta + tileEpsilon))
}

func computeColumn(delta, lon, originLon float64) int {
	return int(math.Floor((lon-originLon)/delta + tileEpsilon))
}

// computeLastRow returns the row of the last tile needed to cover up to lat,
// excluding a tile that would only touch lat at its lower edge.
func computeLastRow(delta, lat, originLat float64) int {
	return int(math.Ceil((lat-originLat)/delta-tileEpsilon)) - 1
}

func computeLastColumn(delta, lon, originLon float64) int {
	return int(math.Ceil((lon-originLon)/delta-tileEpsilon)) - 1
}

// intersectsOrContains returns whether sector overlaps limit, treating
// degenerate query sectors as points.
func intersectsOrContains(limit, sector Sector) bool {
	if sector.IsEmpty() {
		return limit.Contains(LatLon{Lat: sector.MinLat, Lon: sector.MinLon})
	}
	return limit.Intersects(sector)
}
