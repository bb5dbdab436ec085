package georaster

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"
)

// A LatLon is a geographic position in degrees.
type LatLon struct {
	Lat float64
	Lon float64
}

// A Sector is a latitude/longitude bounding rectangle in degrees.
type Sector struct {
	MinLat float64
	MaxLat float64
	MinLon float64
	MaxLon float64
}

// EmptySector is the degenerate sector.
var EmptySector = Sector{}

// FullSphere covers the whole globe.
var FullSphere = Sector{MinLat: -90, MaxLat: 90, MinLon: -180, MaxLon: 180}

// NewSector returns a new Sector, checking that its bounds are ordered and
// within the geographic range.
func NewSector(minLat, maxLat, minLon, maxLon float64) (Sector, error) {
	switch {
	case math.IsNaN(minLat) || math.IsNaN(maxLat) || math.IsNaN(minLon) || math.IsNaN(maxLon):
		return EmptySector, newConfigError("sector", "NaN bound")
	case minLat > maxLat:
		return EmptySector, newConfigError("sector", fmt.Sprintf("min latitude %g greater than max latitude %g", minLat, maxLat))
	case minLon > maxLon:
		return EmptySector, newConfigError("sector", fmt.Sprintf("min longitude %g greater than max longitude %g", minLon, maxLon))
	case minLat < -90 || maxLat > 90:
		return EmptySector, newConfigError("sector", "latitude out of range")
	case minLon < -180 || maxLon > 180:
		return EmptySector, newConfigError("sector", "longitude out of range")
	}
	return Sector{MinLat: minLat, MaxLat: maxLat, MinLon: minLon, MaxLon: maxLon}, nil
}

// MustNewSector returns a new Sector and panics on any error.
func MustNewSector(minLat, maxLat, minLon, maxLon float64) Sector {
	s, err := NewSector(minLat, maxLat, minLon, maxLon)
	if err != nil {
		panic(err)
	}
	return s
}

// SectorFromBound returns the Sector covering b, whose points are (lon, lat).
func SectorFromBound(b orb.Bound) Sector {
	return Sector{
		MinLat: b.Min.Lat(),
		MaxLat: b.Max.Lat(),
		MinLon: b.Min.Lon(),
		MaxLon: b.Max.Lon(),
	}
}

// Bound returns s as an orb.Bound.
func (s Sector) Bound() orb.Bound {
	return orb.Bound{
		Min: orb.Point{s.MinLon, s.MinLat},
		Max: orb.Point{s.MaxLon, s.MaxLat},
	}
}

// LatDelta returns the latitude extent of s.
func (s Sector) LatDelta() float64 {
	return s.MaxLat - s.MinLat
}

// LonDelta returns the longitude extent of s.
func (s Sector) LonDelta() float64 {
	return s.MaxLon - s.MinLon
}

// IsEmpty returns whether s has zero area or inverted bounds.
func (s Sector) IsEmpty() bool {
	return !(s.MinLat < s.MaxLat) || !(s.MinLon < s.MaxLon)
}

// Centroid returns the center of s.
func (s Sector) Centroid() LatLon {
	return LatLon{
		Lat: (s.MinLat + s.MaxLat) / 2,
		Lon: (s.MinLon + s.MaxLon) / 2,
	}
}

// Contains returns whether latLon lies within s, boundaries included.
func (s Sector) Contains(latLon LatLon) bool {
	return s.MinLat <= latLon.Lat && latLon.Lat <= s.MaxLat &&
		s.MinLon <= latLon.Lon && latLon.Lon <= s.MaxLon
}

// ContainsSector returns whether other lies entirely within s.
func (s Sector) ContainsSector(other Sector) bool {
	return s.MinLat <= other.MinLat && other.MaxLat <= s.MaxLat &&
		s.MinLon <= other.MinLon && other.MaxLon <= s.MaxLon
}

// Intersects returns whether s and other overlap with a positive area.
func (s Sector) Intersects(other Sector) bool {
	return s.MinLat < other.MaxLat && other.MinLat < s.MaxLat &&
		s.MinLon < other.MaxLon && other.MinLon < s.MaxLon
}

// Intersection returns the overlap of s and other. The second return value
// is false if they do not overlap with a positive area.
func (s Sector) Intersection(other Sector) (Sector, bool) {
	if !s.Intersects(other) {
		return EmptySector, false
	}
	return Sector{
		MinLat: max(s.MinLat, other.MinLat),
		MaxLat: min(s.MaxLat, other.MaxLat),
		MinLon: max(s.MinLon, other.MinLon),
		MaxLon: min(s.MaxLon, other.MaxLon),
	}, true
}

// Union returns the smallest sector containing both s and other. Empty
// sectors are ignored.
func (s Sector) Union(other Sector) Sector {
	switch {
	case s == EmptySector:
		return other
	case other == EmptySector:
		return s
	}
	return Sector{
		MinLat: min(s.MinLat, other.MinLat),
		MaxLat: max(s.MaxLat, other.MaxLat),
		MinLon: min(s.MinLon, other.MinLon),
		MaxLon: max(s.MaxLon, other.MaxLon),
	}
}

func (s Sector) String() string {
	return fmt.Sprintf("(%g, %g, %g, %g)", s.MinLat, s.MaxLat, s.MinLon, s.MaxLon)
}
