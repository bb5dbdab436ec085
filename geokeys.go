package georaster

import (
	"errors"
	"fmt"
)

var errGeoKeyDirectory = errors.New("invalid GeoKey directory")

// A GeoKey identifies a key in a GeoTIFF GeoKey directory.
type GeoKey uint16

const (
	GeoKeyGTModelType  GeoKey = 1024
	GeoKeyGTRasterType GeoKey = 1025
	GeoKeyGTCitation   GeoKey = 1026

	GeoKeyGeodeticCRS            GeoKey = 2048
	GeoKeyGeogCitation           GeoKey = 2049
	GeoKeyGeodeticDatum          GeoKey = 2050
	GeoKeyPrimeMeridian          GeoKey = 2051
	GeoKeyLinearUnits            GeoKey = 2052
	GeoKeyGeogLinearUnitSize     GeoKey = 2053
	GeoKeyAngularUnits           GeoKey = 2054
	GeoKeyGeogAngularUnitSize    GeoKey = 2055
	GeoKeyEllipsoid              GeoKey = 2056
	GeoKeyEllipsoidSemiMajorAxis GeoKey = 2057
	GeoKeyEllipsoidSemiMinorAxis GeoKey = 2058
	GeoKeyEllipsoidInvFlattening GeoKey = 2059
	GeoKeyAzimuthUnits           GeoKey = 2060
	GeoKeyPrimeMeridianLongitude GeoKey = 2061

	GeoKeyProjectedCRS                                 GeoKey = 3072
	GeoKeyPCSCitation                                  GeoKey = 3073
	GeoKeyProjection                                   GeoKey = 3074
	GeoKeyProjMethod                                   GeoKey = 3075
	GeoKeyLinearUnits2                                 GeoKey = 3076
	GeoKeyProjectedLinearUnitSize                      GeoKey = 3077
	GeoKeyStandardParallel1GeoKeyProjAngularParameters GeoKey = 3078
	GeoKeyStandardParallel2GeoKeyProjAngularParameters GeoKey = 3079
	GeoKeyNaturalOriginLongitudeProjAngularParameters  GeoKey = 3080
	GeoKeyNaturalOriginLatitudeProjAngularParameters   GeoKey = 3081
	GeoKeyFalseEastingProjLinearParameters             GeoKey = 3082
	GeoKeyFalseNorthingProjLinearParameters            GeoKey = 3083
	GeoKeyFalseOriginLongitudeProjAngularParameters    GeoKey = 3084
	GeoKeyFalseOriginLatitudeProjAngularParameters     GeoKey = 3085
	GeoKeyFalseOriginEastingProjLinearParameters       GeoKey = 3086
	GeoKeyFalseOriginNorthingProjLinearParameters      GeoKey = 3087
	GeoKeyCenterLongitudeProjAngularParameters         GeoKey = 3088
	GeoKeyCenterLatitudeProjAngularParameters          GeoKey = 3089
	GeoKeyProjectionCenterEastingProjLinearParameters  GeoKey = 3090
	GeoKeyProjectionCenterNorthingProjLinearParameters GeoKey = 3091
	GeoKeyScaleAtNaturalOriginProjScalarParameters     GeoKey = 3092
	GeoKeyScaleAtCenterProjScalarParameters            GeoKey = 3093
	GeoKeyProjAzimuthAngle                             GeoKey = 3094
	GeoKeyStraightVerticalPoleProjAngularParameters    GeoKey = 3095

	GeoKeyVertical         GeoKey = 4096
	GeoKeyVerticalCitation GeoKey = 4097
	GeoKeyVerticalDatum    GeoKey = 4098
	GeoKeyVerticalUnits    GeoKey = 4099
)

// Values of GeoKeyGTModelType.
const (
	ModelTypeProjected  = 1
	ModelTypeGeographic = 2
	ModelTypeGeocentric = 3
)

// Values of GeoKeyGTRasterType.
const (
	RasterTypePixelIsArea  = 1
	RasterTypePixelIsPoint = 2
)

// Values of GeoKeyVerticalUnits and GeoKeyLinearUnits2.
const (
	LinearUnitMeter = 9001
	LinearUnitFoot  = 9002
)

// userDefined marks a user-defined GeoKey value.
const userDefined = 32767

// ParsedGeoKeys holds the values of a GeoKey directory, grouped by the TIFF
// tag holding them.
type ParsedGeoKeys struct {
	Params       map[GeoKey]int
	DoubleParams map[GeoKey]float64
	ASCIIParams  map[GeoKey]string
}

// ParseGeoKeys parses a GeoKey directory and its parameter tags.
func ParseGeoKeys(directory []uint16, doubleParams []float64, asciiParams []byte) (*ParsedGeoKeys, error) {
	if len(directory) < 4 {
		return nil, fmt.Errorf("%w: %d values", errGeoKeyDirectory, len(directory))
	}
	if version, revision, minorRevision := directory[0], directory[1], directory[2]; version != 1 || revision != 1 || minorRevision > 1 {
		return nil, fmt.Errorf("%w: version %d.%d.%d", errGeoKeyDirectory, version, revision, minorRevision)
	}
	numberOfKeys := int(directory[3])
	if len(directory) != 4+4*numberOfKeys {
		return nil, fmt.Errorf("%w: %d keys in %d values", errGeoKeyDirectory, numberOfKeys, len(directory))
	}

	parsedGeoKeys := &ParsedGeoKeys{
		Params:       make(map[GeoKey]int),
		DoubleParams: make(map[GeoKey]float64),
		ASCIIParams:  make(map[GeoKey]string),
	}
	for i := range numberOfKeys {
		keyValues := directory[4+4*i : 4+4*(i+1)]
		key := GeoKey(keyValues[0])
		location, count, index := int(keyValues[1]), int(keyValues[2]), int(keyValues[3])
		switch location {
		case 0:
			if count != 1 {
				return nil, fmt.Errorf("%w: key %d: count %d", errGeoKeyDirectory, key, count)
			}
			parsedGeoKeys.Params[key] = index
		case 34736: // GeoDoubleParamsTag
			if count != 1 {
				return nil, fmt.Errorf("key %d: %d doubles: %w", key, count, errors.ErrUnsupported)
			}
			if index >= len(doubleParams) {
				return nil, fmt.Errorf("%w: key %d: double index %d", errGeoKeyDirectory, key, index)
			}
			parsedGeoKeys.DoubleParams[key] = doubleParams[index]
		case 34737: // GeoASCIIParamsTag
			if index+count > len(asciiParams) {
				return nil, fmt.Errorf("%w: key %d: ASCII range %d+%d", errGeoKeyDirectory, key, index, count)
			}
			parsedGeoKeys.ASCIIParams[key] = string(asciiParams[index : index+count])
		default:
			return nil, fmt.Errorf("key %d: location %d: %w", key, location, errors.ErrUnsupported)
		}
	}
	return parsedGeoKeys, nil
}

// ModelType returns the model type, defaulting to geographic.
func (k *ParsedGeoKeys) ModelType() int {
	if modelType, ok := k.Params[GeoKeyGTModelType]; ok {
		return modelType
	}
	return ModelTypeGeographic
}

// PixelIsPoint returns whether pixel coordinates refer to pixel centers.
func (k *ParsedGeoKeys) PixelIsPoint() bool {
	return k.Params[GeoKeyGTRasterType] == RasterTypePixelIsPoint
}

// EPSG returns the EPSG code of the coordinate reference system, if known.
func (k *ParsedGeoKeys) EPSG() (int, bool) {
	key := GeoKeyGeodeticCRS
	if k.ModelType() == ModelTypeProjected {
		key = GeoKeyProjectedCRS
	}
	code, ok := k.Params[key]
	if !ok || code == userDefined {
		return 0, false
	}
	return code, true
}

// ElevationUnit returns the unit of vertical values.
func (k *ParsedGeoKeys) ElevationUnit() ElevationUnit {
	switch k.Params[GeoKeyVerticalUnits] {
	case LinearUnitFoot:
		return ElevationUnitFoot
	default:
		return ElevationUnitMeter
	}
}
