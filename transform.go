package georaster

import (
	"image"
	"math"

	"golang.org/x/image/math/f64"
)

// A Frame is a pixel grid laid over a sector.
type Frame struct {
	Width  int
	Height int
	Sector Sector
}

// ComputeTransform returns the affine transform that maps pixel coordinates
// in src to pixel coordinates in dst. Row order runs from north to south, so
// the vertical translation is measured from the maximum latitudes.
func ComputeTransform(src, dst Frame) f64.Aff3 {
	scaleX := float64(dst.Width) / float64(src.Width) * src.Sector.LonDelta() / dst.Sector.LonDelta()
	scaleY := float64(dst.Height) / float64(src.Height) * src.Sector.LatDelta() / dst.Sector.LatDelta()
	translateX := float64(dst.Width) * (src.Sector.MinLon - dst.Sector.MinLon) / dst.Sector.LonDelta()
	translateY := float64(dst.Height) * (dst.Sector.MaxLat - src.Sector.MaxLat) / dst.Sector.LatDelta()
	return f64.Aff3{
		scaleX, 0, translateX,
		0, scaleY, translateY,
	}
}

// InvertTransform returns the inverse of an axis-aligned transform.
func InvertTransform(m f64.Aff3) f64.Aff3 {
	return f64.Aff3{
		1 / m[0], 0, (0 - m[2]) / m[0],
		0, 1 / m[4], (0 - m[5]) / m[4],
	}
}

// ApplyTransform returns m applied to (x, y).
func ApplyTransform(m f64.Aff3, x, y float64) (float64, float64) {
	return m[0]*x + m[1]*y + m[2], m[3]*x + m[4]*y + m[5]
}

// ClipRect returns the rectangle of dst pixels touched by src under m: the
// floor and ceiling of the transformed corners of src, clipped to dst.
func ClipRect(m f64.Aff3, src, dst Frame) image.Rectangle {
	x0, y0 := ApplyTransform(m, 0, 0)
	x1, y1 := ApplyTransform(m, float64(src.Width), float64(src.Height))
	r := image.Rect(
		int(math.Floor(min(x0, x1))),
		int(math.Floor(min(y0, y1))),
		int(math.Ceil(max(x0, x1))),
		int(math.Ceil(max(y0, y1))),
	)
	return r.Intersect(image.Rect(0, 0, dst.Width, dst.Height))
}

// MipLevel returns the mip level to draw with under m, given that level 0 is
// the full resolution image and each subsequent level halves it. The level
// is floor(log2) of the larger number of source pixels per destination
// pixel, clamped to [0, maxLevel].
func MipLevel(m f64.Aff3, maxLevel int) int {
	ratio := max(1/math.Abs(m[0]), 1/math.Abs(m[4]))
	if !(ratio > 1) || math.IsInf(ratio, 0) {
		return 0
	}
	return min(int(math.Floor(math.Log2(ratio))), maxLevel)
}
