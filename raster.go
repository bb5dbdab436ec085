package georaster

import "fmt"

// A DataRaster is a georeferenced pixel grid.
type DataRaster interface {
	Width() int
	Height() int
	Sector() Sector
	Metadata() *Metadata

	// DrawOnTo resamples the raster into canvas wherever their sectors
	// overlap. Drawing onto a canvas with a disjoint sector does nothing.
	DrawOnTo(canvas DataRaster) error

	// SubRaster returns a new raster of width by height pixels covering
	// sector, resampled from the raster. Values in metadata take precedence
	// over the format-defining values inherited from the raster.
	SubRaster(width, height int, sector Sector, metadata *Metadata) (DataRaster, error)

	// SizeInBytes returns the size of the raster's pixel store.
	SizeInBytes() int64

	// Dispose releases the raster's resources.
	Dispose() error
}

// NewCanvas returns an empty raster of the given pixel format into which
// other rasters can be drawn.
func NewCanvas(pixelFormat PixelFormat, width, height int, sector Sector, metadata *Metadata) (DataRaster, error) {
	switch pixelFormat {
	case PixelFormatImage:
		return NewImageCanvas(width, height, sector, metadata)
	case PixelFormatElevation:
		return NewElevationRaster(width, height, sector, metadata)
	default:
		return nil, fmt.Errorf("pixel format %s: %w", pixelFormat, ErrUnsupportedFormat)
	}
}

// checkFrame validates the dimensions and sector of a new raster.
func checkFrame(width, height int, sector Sector) error {
	switch {
	case width <= 0:
		return fmt.Errorf("width %d: %w", width, ErrInvalidArgument)
	case height <= 0:
		return fmt.Errorf("height %d: %w", height, ErrInvalidArgument)
	case sector.IsEmpty():
		return fmt.Errorf("sector %s: %w", sector, ErrInvalidArgument)
	default:
		return nil
	}
}

// subRasterMetadata returns the metadata of a sub-raster of parent.
func subRasterMetadata(width, height int, sector Sector, metadata, parent *Metadata) (*Metadata, error) {
	if err := checkFrame(width, height, sector); err != nil {
		return nil, err
	}
	m := metadata.Clone()
	if err := m.SetWidth(width); err != nil {
		return nil, err
	}
	if err := m.SetHeight(height); err != nil {
		return nil, err
	}
	m.SetSector(sector)
	m.Inherit(parent)
	return m, nil
}

func frameOf(r DataRaster) Frame {
	return Frame{
		Width:  r.Width(),
		Height: r.Height(),
		Sector: r.Sector(),
	}
}
