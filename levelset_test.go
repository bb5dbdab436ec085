package georaster

import (
	"errors"
	"math"
	"strconv"
	"testing"
	"time"

	"github.com/alecthomas/assert/v2"
)

func newTestLevelSet(t *testing.T, options ...func(*LevelSetParams)) *LevelSet {
	t.Helper()
	params := LevelSetParams{
		Sector:             FullSphere,
		LevelZeroTileDelta: LatLon{Lat: 36, Lon: 36},
		NumLevels:          4,
		TileWidth:          256,
		TileHeight:         256,
		CacheName:          "Earth/Test",
		FormatSuffix:       ".bil",
	}
	for _, option := range options {
		option(&params)
	}
	levelSet, err := NewLevelSet(params)
	assert.NoError(t, err)
	return levelSet
}

func TestLevelSet_TileForLatLon(t *testing.T) {
	levelSet := newTestLevelSet(t)
	tile, ok := levelSet.TileForLatLon(LatLon{Lat: 10, Lon: 20}, 0)
	assert.True(t, ok)
	assert.Equal(t, TileKey{Level: 0, Row: 2, Column: 5}, tile.Key)
	assert.Equal(t, Sector{MinLat: -18, MaxLat: 18, MinLon: 0, MaxLon: 36}, tile.Sector)
	assert.Equal(t, "Earth/Test/0/2/2_5.bil", tile.Path())

	tile, ok = levelSet.TileForLatLon(LatLon{Lat: 90, Lon: 180}, 0)
	assert.True(t, ok)
	assert.Equal(t, TileKey{Level: 0, Row: 4, Column: 9}, tile.Key)

	_, ok = levelSet.TileForLatLon(LatLon{Lat: 10, Lon: 20}, 4)
	assert.False(t, ok)
}

func TestLevelSet_TilesInSector(t *testing.T) {
	levelSet := newTestLevelSet(t)
	for i, tc := range []struct {
		sector   Sector
		level    int
		expected []TileKey
	}{
		{
			sector: Sector{MinLat: 0, MaxLat: 10, MinLon: 0, MaxLon: 10},
			level:  0,
			expected: []TileKey{
				{Level: 0, Row: 2, Column: 5},
			},
		},
		{
			sector: Sector{MinLat: -18, MaxLat: 18, MinLon: 0, MaxLon: 36},
			level:  0,
			expected: []TileKey{
				{Level: 0, Row: 2, Column: 5},
			},
		},
		{
			sector: Sector{MinLat: -20, MaxLat: 20, MinLon: -1, MaxLon: 1},
			level:  0,
			expected: []TileKey{
				{Level: 0, Row: 1, Column: 4},
				{Level: 0, Row: 1, Column: 5},
				{Level: 0, Row: 2, Column: 4},
				{Level: 0, Row: 2, Column: 5},
				{Level: 0, Row: 3, Column: 4},
				{Level: 0, Row: 3, Column: 5},
			},
		},
		{
			sector: Sector{MinLat: 0, MaxLat: 1, MinLon: 0, MaxLon: 1},
			level:  1,
			expected: []TileKey{
				{Level: 1, Row: 5, Column: 10},
			},
		},
		{
			sector: Sector{MinLat: 5, MaxLat: 5, MinLon: 5, MaxLon: 5},
			level:  0,
			expected: []TileKey{
				{Level: 0, Row: 2, Column: 5},
			},
		},
	} {
		t.Run(strconv.Itoa(i), func(t *testing.T) {
			tiles, err := levelSet.TilesInSector(tc.sector, tc.level)
			assert.NoError(t, err)
			actual := make([]TileKey, len(tiles))
			for i, tile := range tiles {
				actual[i] = tile.Key
			}
			assert.Equal(t, tc.expected, actual)
		})
	}

	_, err := levelSet.TilesInSector(FullSphere, 7)
	assert.IsError(t, err, ErrInvalidArgument)
}

func TestLevelSet_TilesInSectorCover(t *testing.T) {
	levelSet := newTestLevelSet(t)
	for _, sector := range []Sector{
		{MinLat: -3.5, MaxLat: 41.25, MinLon: -100.1, MaxLon: 7},
		{MinLat: -90, MaxLat: 90, MinLon: -180, MaxLon: 180},
		{MinLat: 17.9, MaxLat: 18.1, MinLon: 35.9, MaxLon: 36.1},
		{MinLat: 0.001, MaxLat: 0.002, MinLon: 0.001, MaxLon: 0.002},
	} {
		for levelNumber := range levelSet.NumLevels() {
			level, _ := levelSet.Level(levelNumber)
			tiles, err := levelSet.TilesInSector(sector, levelNumber)
			assert.NoError(t, err)
			assert.NotEqual(t, 0, len(tiles))

			covered := EmptySector
			for _, tile := range tiles {
				covered = covered.Union(tile.Sector)
				assert.True(t, tile.Sector.Intersects(sector))
			}
			assert.True(t, covered.ContainsSector(sector))
			assert.True(t, sector.MinLat-covered.MinLat < level.TileDelta().Lat)
			assert.True(t, covered.MaxLat-sector.MaxLat < level.TileDelta().Lat)
			assert.True(t, sector.MinLon-covered.MinLon < level.TileDelta().Lon)
			assert.True(t, covered.MaxLon-sector.MaxLon < level.TileDelta().Lon)

			rows := int(math.Round(covered.LatDelta() / level.TileDelta().Lat))
			columns := int(math.Round(covered.LonDelta() / level.TileDelta().Lon))
			assert.Equal(t, rows*columns, len(tiles))
		}
	}
}

func TestLevelSet_InactiveLevel(t *testing.T) {
	levelSet := newTestLevelSet(t, func(params *LevelSetParams) {
		params.NumEmptyLevels = 1
	})
	tiles, err := levelSet.TilesInSector(FullSphere, 0)
	assert.NoError(t, err)
	assert.Equal(t, 0, len(tiles))

	tiles, err = levelSet.TilesInSector(Sector{MinLat: 0, MaxLat: 1, MinLon: 0, MaxLon: 1}, 1)
	assert.NoError(t, err)
	assert.Equal(t, 1, len(tiles))

	copied := levelSet.Copy()
	copied.FirstLevel().SetActive(true)
	assert.True(t, copied.FirstLevel().IsActive())
	assert.False(t, levelSet.FirstLevel().IsActive())
}

func TestLevelSet_ClampLevel(t *testing.T) {
	levelSet := newTestLevelSet(t, func(params *LevelSetParams) {
		params.Limits = []ResolutionLimit{
			{Sector: Sector{MinLat: 0, MaxLat: 10, MinLon: 0, MaxLon: 10}, MaxLevel: 2},
			{Sector: Sector{MinLat: 5, MaxLat: 10, MinLon: 5, MaxLon: 10}, MaxLevel: 1},
			{Sector: Sector{MinLat: -10, MaxLat: 0, MinLon: -10, MaxLon: 0}, MaxLevel: 3},
		}
	})
	for _, tc := range []struct {
		sector   Sector
		level    int
		expected int
	}{
		{sector: Sector{MinLat: 20, MaxLat: 30, MinLon: 20, MaxLon: 30}, level: 3, expected: 3},
		{sector: Sector{MinLat: 1, MaxLat: 2, MinLon: 1, MaxLon: 2}, level: 3, expected: 2},
		{sector: Sector{MinLat: 6, MaxLat: 7, MinLon: 6, MaxLon: 7}, level: 3, expected: 1},
		{sector: Sector{MinLat: 6, MaxLat: 7, MinLon: 6, MaxLon: 7}, level: 0, expected: 0},
		{sector: Sector{MinLat: -5, MaxLat: 5, MinLon: -5, MaxLon: 5}, level: 3, expected: 2},
		{sector: Sector{MinLat: 8, MaxLat: 8, MinLon: 8, MaxLon: 8}, level: 3, expected: 1},
	} {
		assert.Equal(t, tc.expected, levelSet.ClampLevel(tc.sector, tc.level))
	}

	assert.Equal(t, 3, levelSet.LevelForResolution(Sector{MinLat: 20, MaxLat: 21, MinLon: 20, MaxLon: 21}, 0.0001))
	assert.Equal(t, 1, levelSet.LevelForResolution(Sector{MinLat: 20, MaxLat: 21, MinLon: 20, MaxLon: 21}, 18.0/256))
	assert.Equal(t, 0, levelSet.LevelForResolution(Sector{MinLat: 20, MaxLat: 21, MinLon: 20, MaxLon: 21}, 1))
	assert.Equal(t, 1, levelSet.LevelForResolution(Sector{MinLat: 6, MaxLat: 7, MinLon: 6, MaxLon: 7}, 0.0001))
}

func TestLevelSet_Absent(t *testing.T) {
	clock := &testClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	levelSet := newTestLevelSet(t, func(params *LevelSetParams) {
		params.MaxAbsentAttempts = 2
		params.MinAbsentCheckInterval = time.Minute
		params.Clock = clock.now
	})
	key := TileKey{Level: 1, Row: 3, Column: 7}
	assert.Equal(t, int64(3*20+7), levelSet.TileNumber(key))

	copied := levelSet.Copy()
	levelSet.MarkAbsent(key)
	assert.False(t, levelSet.IsAbsent(key))
	copied.MarkAbsent(key)
	assert.True(t, levelSet.IsAbsent(key))
	assert.True(t, copied.IsAbsent(key))
	assert.False(t, levelSet.IsAbsent(TileKey{Level: 2, Row: 3, Column: 7}))

	clock.advance(time.Minute)
	assert.False(t, levelSet.IsAbsent(key))

	levelSet.MarkAbsent(key)
	assert.True(t, levelSet.IsAbsent(key))
	levelSet.UnmarkAbsent(key)
	assert.False(t, levelSet.IsAbsent(key))
}

func TestNewLevelSet_Errors(t *testing.T) {
	for i, tc := range []func(*LevelSetParams){
		func(p *LevelSetParams) { p.NumLevels = 0 },
		func(p *LevelSetParams) { p.TileWidth = 0 },
		func(p *LevelSetParams) { p.TileHeight = -1 },
		func(p *LevelSetParams) { p.Sector = EmptySector },
		func(p *LevelSetParams) { p.LevelZeroTileDelta = LatLon{} },
		func(p *LevelSetParams) { p.TileOrigin = &LatLon{Lat: 0, Lon: 0} },
		func(p *LevelSetParams) { p.Limits = []ResolutionLimit{{Sector: FullSphere, MaxLevel: -1}} },
	} {
		t.Run(strconv.Itoa(i), func(t *testing.T) {
			params := LevelSetParams{
				Sector:             FullSphere,
				LevelZeroTileDelta: LatLon{Lat: 36, Lon: 36},
				NumLevels:          4,
				TileWidth:          256,
				TileHeight:         256,
			}
			tc(&params)
			_, err := NewLevelSet(params)
			var configError *ConfigError
			assert.True(t, errors.As(err, &configError))
		})
	}
}

func TestNewLevelSetFromLevels_NonMonotonic(t *testing.T) {
	level0, err := NewLevel(LevelParams{Number: 0, TileDelta: LatLon{Lat: 10, Lon: 10}, TileWidth: 1, TileHeight: 1})
	assert.NoError(t, err)
	level1, err := NewLevel(LevelParams{Number: 1, TileDelta: LatLon{Lat: 10, Lon: 5}, TileWidth: 1, TileHeight: 1})
	assert.NoError(t, err)
	_, err = NewLevelSetFromLevels(FullSphere, LatLon{Lat: -90, Lon: -180}, []*Level{level0, level1})
	assert.Error(t, err)
	_, err = NewLevelSetFromLevels(FullSphere, LatLon{Lat: -90, Lon: -180}, []*Level{level1})
	assert.Error(t, err)
}

func TestResolutionLimitsFromGeoJSON(t *testing.T) {
	limits, err := ResolutionLimitsFromGeoJSON([]byte(`{
		"type": "FeatureCollection",
		"features": [
			{
				"type": "Feature",
				"properties": {"maxLevel": 2},
				"geometry": {"type": "Polygon", "coordinates": [[[0, 0], [10, 0], [10, 5], [0, 5], [0, 0]]]}
			},
			{
				"type": "Feature",
				"properties": {},
				"geometry": {"type": "LineString", "coordinates": [[-20, -10], [-10, -5]]}
			}
		]
	}`), 7)
	assert.NoError(t, err)
	assert.Equal(t, []ResolutionLimit{
		{Sector: Sector{MinLat: 0, MaxLat: 5, MinLon: 0, MaxLon: 10}, MaxLevel: 2},
		{Sector: Sector{MinLat: -10, MaxLat: -5, MinLon: -20, MaxLon: -10}, MaxLevel: 7},
	}, limits)
}
