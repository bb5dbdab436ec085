package georaster

import (
	"context"

	"github.com/twpayne/go-proj/v10"
)

// An ElevationService returns elevations from a TiledRasterSet at
// coordinates in a projected or geographic CRS.
type ElevationService struct {
	tiles *TiledRasterSet
	pj    *proj.PJ
}

// NewElevationService returns a new ElevationService accepting coordinates
// in crs, for example "EPSG:3035". Coordinates are in the traditional GIS
// order of easting then northing, or longitude then latitude.
func NewElevationService(tiles *TiledRasterSet, crs string) (*ElevationService, error) {
	if tiles == nil {
		return nil, newConfigError("tiles", "required")
	}
	pj, err := proj.NewCRSToCRS(crs, "EPSG:4326", nil)
	if err != nil {
		return nil, err
	}
	normalizedPJ, err := pj.NormalizeForVisualization()
	if err != nil {
		return nil, err
	}
	return &ElevationService{
		tiles: tiles,
		pj:    normalizedPJ,
	}, nil
}

// Elevation returns the elevations at coords, in s's CRS.
func (s *ElevationService) Elevation(ctx context.Context, coords [][]float64) ([]float64, error) {
	coords4326 := cloneCoords(coords)
	if err := s.pj.ForwardFloat64Slices(coords4326); err != nil {
		return nil, err
	}
	return s.Elevation4326(ctx, coords4326)
}

// Elevation4326 returns the elevations at coords, which are longitude and
// latitude pairs.
func (s *ElevationService) Elevation4326(ctx context.Context, coords [][]float64) ([]float64, error) {
	latLons := make([]LatLon, len(coords))
	for i, coord := range coords {
		latLons[i] = LatLon{Lat: coord[1], Lon: coord[0]}
	}
	return s.tiles.Elevations(ctx, latLons)
}

func cloneCoords(coords [][]float64) [][]float64 {
	clonedCoordsFlat := make([]float64, 2*len(coords))
	clonedCoords := make([][]float64, len(coords))
	for i, coord := range coords {
		copy(clonedCoordsFlat[2*i:2*i+2], coord)
		clonedCoords[i] = clonedCoordsFlat[2*i : 2*i+2]
	}
	return clonedCoords
}
