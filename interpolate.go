package georaster

import "math"

// A Sampler returns samples at integer pixel coordinates.
type Sampler interface {
	At(x, y int) (float64, bool)
}

// InterpolateBilinear returns the bilinear interpolation of s at each of
// coords, given as pixel coordinates where integer values fall on sample
// centers. Coordinates with no surrounding samples are NaN.
func InterpolateBilinear(s Sampler, coords [][]float64) []float64 {
	result := make([]float64, len(coords))
	for i, coord := range coords {
		if value, ok := interpolateBilinear(s, coord[0], coord[1]); ok {
			result[i] = value
		} else {
			result[i] = math.NaN()
		}
	}
	return result
}

// interpolateBilinear interpolates the four samples around (x, y). Missing
// samples are excluded and the remaining weights renormalized.
func interpolateBilinear(s Sampler, x, y float64) (float64, bool) {
	fx, fy := math.Floor(x), math.Floor(y)
	x0, y0 := int(fx), int(fy)
	dx, dy := x-fx, y-fy
	var sum, weights float64
	for _, corner := range [4]struct {
		x, y   int
		weight float64
	}{
		{x0, y0, (1 - dx) * (1 - dy)},
		{x0 + 1, y0, dx * (1 - dy)},
		{x0, y0 + 1, (1 - dx) * dy},
		{x0 + 1, y0 + 1, dx * dy},
	} {
		if corner.weight == 0 {
			continue
		}
		if value, ok := s.At(corner.x, corner.y); ok {
			sum += corner.weight * value
			weights += corner.weight
		}
	}
	if weights == 0 {
		// Edge of the raster: fall back to the nearest present sample.
		if value, ok := s.At(int(math.Round(x)), int(math.Round(y))); ok {
			return value, true
		}
		return 0, false
	}
	return sum / weights, true
}
