package georaster

import (
	"fmt"
	"math"
	"sync/atomic"
)

const (
	noDataBits = 0xff7fffff

	// DefaultInt16MissingDataSignal marks missing int16 samples.
	DefaultInt16MissingDataSignal = math.MinInt16
)

// DefaultFloat32MissingDataSignal marks missing float32 samples.
var DefaultFloat32MissingDataSignal = float64(math.Float32frombits(noDataBits))

// An ElevationRaster is a raster of elevation samples stored as int16 or
// float32, with a signal value marking missing samples.
type ElevationRaster struct {
	width             int
	height            int
	sector            Sector
	metadata          *Metadata
	dataType          DataType
	int16s            []int16
	float32s          []float32
	missingDataSignal float64
	disposed          atomic.Bool
}

// NewElevationRaster returns a new ElevationRaster with every sample missing.
// The data type is taken from metadata and defaults to float32.
func NewElevationRaster(width, height int, sector Sector, metadata *Metadata) (*ElevationRaster, error) {
	if err := checkFrame(width, height, sector); err != nil {
		return nil, err
	}
	dataType := DataTypeFloat32
	if metadata != nil && metadata.DataType != DataTypeUnknown {
		dataType = metadata.DataType
	}
	r, err := newElevationRaster(width, height, sector, dataType, metadata)
	if err != nil {
		return nil, err
	}
	switch r.dataType {
	case DataTypeInt16:
		r.int16s = make([]int16, width*height)
		if missing := int16(r.missingDataSignal); missing != 0 {
			for i := range r.int16s {
				r.int16s[i] = missing
			}
		}
	case DataTypeFloat32:
		r.float32s = make([]float32, width*height)
		missing := float32(r.missingDataSignal)
		for i := range r.float32s {
			r.float32s[i] = missing
		}
	}
	return r, nil
}

// NewInt16ElevationRaster returns a new ElevationRaster backed by samples,
// which are stored row by row from north to south.
func NewInt16ElevationRaster(width, height int, sector Sector, samples []int16, metadata *Metadata) (*ElevationRaster, error) {
	if err := checkFrame(width, height, sector); err != nil {
		return nil, err
	}
	if len(samples) != width*height {
		return nil, fmt.Errorf("%d samples for %dx%d raster: %w", len(samples), width, height, ErrInvalidArgument)
	}
	r, err := newElevationRaster(width, height, sector, DataTypeInt16, metadata)
	if err != nil {
		return nil, err
	}
	r.int16s = samples
	return r, nil
}

// NewFloat32ElevationRaster returns a new ElevationRaster backed by samples,
// which are stored row by row from north to south.
func NewFloat32ElevationRaster(width, height int, sector Sector, samples []float32, metadata *Metadata) (*ElevationRaster, error) {
	if err := checkFrame(width, height, sector); err != nil {
		return nil, err
	}
	if len(samples) != width*height {
		return nil, fmt.Errorf("%d samples for %dx%d raster: %w", len(samples), width, height, ErrInvalidArgument)
	}
	r, err := newElevationRaster(width, height, sector, DataTypeFloat32, metadata)
	if err != nil {
		return nil, err
	}
	r.float32s = samples
	return r, nil
}

func newElevationRaster(width, height int, sector Sector, dataType DataType, metadata *Metadata) (*ElevationRaster, error) {
	var missingDataSignal float64
	switch dataType {
	case DataTypeInt16:
		missingDataSignal = DefaultInt16MissingDataSignal
	case DataTypeFloat32:
		missingDataSignal = DefaultFloat32MissingDataSignal
	default:
		return nil, fmt.Errorf("data type %s: %w", dataType, ErrUnsupportedFormat)
	}

	m := metadata.Clone()
	if err := m.SetWidth(width); err != nil {
		return nil, err
	}
	if err := m.SetHeight(height); err != nil {
		return nil, err
	}
	m.SetSector(sector)
	m.PixelFormat = PixelFormatElevation
	m.DataType = dataType
	if m.MissingDataSignal != nil {
		missingDataSignal = *m.MissingDataSignal
	} else {
		m.SetMissingDataSignal(missingDataSignal)
	}

	return &ElevationRaster{
		width:             width,
		height:            height,
		sector:            sector,
		metadata:          m,
		dataType:          dataType,
		missingDataSignal: missingDataSignal,
	}, nil
}

func (r *ElevationRaster) Width() int { return r.width }
func (r *ElevationRaster) Height() int { return r.height }
func (r *ElevationRaster) Sector() Sector { return r.sector }
func (r *ElevationRaster) Metadata() *Metadata { return r.metadata }
func (r *ElevationRaster) DataType() DataType { return r.dataType }
func (r *ElevationRaster) MissingDataSignal() float64 { return r.missingDataSignal }

// Int16s returns r's samples if r is stored as int16.
func (r *ElevationRaster) Int16s() []int16 {
	return r.int16s
}

// Float32s returns r's samples if r is stored as float32.
func (r *ElevationRaster) Float32s() []float32 {
	return r.float32s
}

// SizeInBytes returns the size of r's samples.
func (r *ElevationRaster) SizeInBytes() int64 {
	return int64(r.width*r.height) * int64(r.dataType.Size())
}

// At returns the sample at (x, y) and whether it is present.
func (r *ElevationRaster) At(x, y int) (float64, bool) {
	if x < 0 || r.width <= x || y < 0 || r.height <= y {
		return 0, false
	}
	var value float64
	switch r.dataType {
	case DataTypeInt16:
		value = float64(r.int16s[y*r.width+x])
	default:
		f := r.float32s[y*r.width+x]
		if math.IsNaN(float64(f)) {
			return 0, false
		}
		value = float64(f)
	}
	if value == r.missingDataSignal {
		return 0, false
	}
	return value, true
}

// Set sets the sample at (x, y). Values are rounded when r is stored as
// int16.
func (r *ElevationRaster) Set(x, y int, value float64) {
	if x < 0 || r.width <= x || y < 0 || r.height <= y {
		return
	}
	switch r.dataType {
	case DataTypeInt16:
		r.int16s[y*r.width+x] = int16(max(math.MinInt16, min(math.MaxInt16, math.Round(value))))
	default:
		r.float32s[y*r.width+x] = float32(value)
	}
}

// DrawOnTo resamples r onto canvas, which must be an *ElevationRaster.
// Destination samples for which no source samples are present are left
// unchanged.
func (r *ElevationRaster) DrawOnTo(canvas DataRaster) error {
	if r.disposed.Load() {
		return ErrDisposed
	}
	dst, ok := canvas.(*ElevationRaster)
	if !ok {
		return fmt.Errorf("%T: %w", canvas, ErrIncompatibleRaster)
	}
	if dst == r {
		return fmt.Errorf("drawing onto itself: %w", ErrInvalidArgument)
	}
	if !r.sector.Intersects(dst.sector) {
		return nil
	}

	srcFrame, dstFrame := frameOf(r), frameOf(dst)
	s2d := ComputeTransform(srcFrame, dstFrame)
	clip := ClipRect(s2d, srcFrame, dstFrame)
	d2s := InvertTransform(s2d)
	for y := clip.Min.Y; y < clip.Max.Y; y++ {
		for x := clip.Min.X; x < clip.Max.X; x++ {
			// Map the destination pixel center to source pixel coordinates.
			sx, sy := ApplyTransform(d2s, float64(x)+0.5, float64(y)+0.5)
			if sx < 0 || float64(r.width) <= sx || sy < 0 || float64(r.height) <= sy {
				continue
			}
			if value, ok := interpolateBilinear(r, sx-0.5, sy-0.5); ok {
				dst.Set(x, y, value)
			}
		}
	}
	return nil
}

// SubRaster returns a new ElevationRaster resampled from r.
func (r *ElevationRaster) SubRaster(width, height int, sector Sector, metadata *Metadata) (DataRaster, error) {
	m, err := subRasterMetadata(width, height, sector, metadata, r.metadata)
	if err != nil {
		return nil, err
	}
	canvas, err := NewElevationRaster(width, height, sector, m)
	if err != nil {
		return nil, err
	}
	if err := r.DrawOnTo(canvas); err != nil {
		return nil, err
	}
	return canvas, nil
}

// Elevation returns the bilinearly interpolated elevation at latLon, or NaN
// if latLon is outside r or no samples around it are present.
func (r *ElevationRaster) Elevation(latLon LatLon) float64 {
	if !r.sector.Contains(latLon) {
		return math.NaN()
	}
	x := (latLon.Lon-r.sector.MinLon)/r.sector.LonDelta()*float64(r.width) - 0.5
	y := (r.sector.MaxLat-latLon.Lat)/r.sector.LatDelta()*float64(r.height) - 0.5
	value, ok := interpolateBilinear(r, x, y)
	if !ok {
		return math.NaN()
	}
	return value
}

// Dispose marks r as disposed.
func (r *ElevationRaster) Dispose() error {
	r.disposed.Store(true)
	return nil
}

// Disposed returns whether r has been disposed.
func (r *ElevationRaster) Disposed() bool {
	return r.disposed.Load()
}
