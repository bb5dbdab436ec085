package georaster

import (
	"fmt"

	"github.com/paulmach/orb/geojson"
)

// ResolutionLimitsFromGeoJSON returns a ResolutionLimit for each feature in
// the GeoJSON FeatureCollection data. The limit's sector is the feature's
// bound and its level is the feature's maxLevel property, or defaultMaxLevel
// if the property is absent.
func ResolutionLimitsFromGeoJSON(data []byte, defaultMaxLevel int) ([]ResolutionLimit, error) {
	featureCollection, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, err
	}
	limits := make([]ResolutionLimit, 0, len(featureCollection.Features))
	for i, feature := range featureCollection.Features {
		if feature.Geometry == nil {
			return nil, newConfigError("resolution limit", fmt.Sprintf("feature %d has no geometry", i))
		}
		sector := SectorFromBound(feature.Geometry.Bound())
		if sector.IsEmpty() {
			return nil, newConfigError("resolution limit", fmt.Sprintf("feature %d has an empty bound", i))
		}
		maxLevel := defaultMaxLevel
		switch value := feature.Properties["maxLevel"].(type) {
		case nil:
		case float64:
			maxLevel = int(value)
		default:
			return nil, newConfigError("resolution limit", fmt.Sprintf("feature %d: maxLevel is a %T", i, value))
		}
		limits = append(limits, ResolutionLimit{
			Sector:   sector,
			MaxLevel: maxLevel,
		})
	}
	return limits, nil
}
