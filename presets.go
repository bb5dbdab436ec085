package georaster

import (
	"io/fs"
	"slices"
)

// EarthElevationsParams returns the parameters of a global elevation pyramid
// of 150x150 BIL tiles with 20 degree tiles at level zero.
func EarthElevationsParams() LevelSetParams {
	return LevelSetParams{
		Sector:             FullSphere,
		LevelZeroTileDelta: LatLon{Lat: 20, Lon: 20},
		NumLevels:          12,
		TileWidth:          150,
		TileHeight:         150,
		CacheName:          "Earth/EarthElevations",
		FormatSuffix:       ".bil",
	}
}

// BlueMarbleParams returns the parameters of a global imagery pyramid of
// 512x512 JPEG tiles with 36 degree tiles at level zero.
func BlueMarbleParams() LevelSetParams {
	return LevelSetParams{
		Sector:             FullSphere,
		LevelZeroTileDelta: LatLon{Lat: 36, Lon: 36},
		NumLevels:          5,
		TileWidth:          512,
		TileHeight:         512,
		CacheName:          "Earth/BlueMarble",
		FormatSuffix:       ".jpg",
	}
}

// NewEarthElevations returns a TiledRasterSet of the elevation tiles in fsys
// laid out by EarthElevationsParams.
func NewEarthElevations(fsys fs.FS, options ...Option) (*TiledRasterSet, error) {
	levelSet, err := NewLevelSet(EarthElevationsParams())
	if err != nil {
		return nil, err
	}
	return NewTiledRasterSet(levelSet, fsys, PixelFormatElevation, slices.Concat(
		[]Option{
			WithReaders(NewDataRasterReader(NewBILDecoder())),
		},
		options,
	)...)
}

// NewBlueMarble returns a TiledRasterSet of the image tiles in fsys laid out
// by BlueMarbleParams.
func NewBlueMarble(fsys fs.FS, options ...Option) (*TiledRasterSet, error) {
	levelSet, err := NewLevelSet(BlueMarbleParams())
	if err != nil {
		return nil, err
	}
	return NewTiledRasterSet(levelSet, fsys, PixelFormatImage, slices.Concat(
		[]Option{
			WithReaders(NewDataRasterReader(NewImageDecoder(WithMipMapping()))),
		},
		options,
	)...)
}
