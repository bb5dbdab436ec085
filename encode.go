package georaster

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"image/jpeg"
	"image/png"

	xtiff "golang.org/x/image/tiff"
)

// Output encodings.
const (
	MimeTypePNG   = "image/png"
	MimeTypeJPEG  = "image/jpeg"
	MimeTypeTIFF  = "image/tiff"
	MimeTypeBIL16 = "application/bil16"
	MimeTypeBIL32 = "application/bil32"
)

// DefaultJPEGQuality is the quality of JPEG output.
const DefaultJPEGQuality = 90

// DefaultMimeType returns the encoding used for rasters of pixelFormat when
// none is requested.
func DefaultMimeType(pixelFormat PixelFormat) string {
	if pixelFormat == PixelFormatElevation {
		return MimeTypeBIL16
	}
	return MimeTypePNG
}

// EncodeRaster serializes raster in the encoding named by mimeType. Imagery
// may be encoded as PNG, JPEG, or TIFF, and elevations as little-endian BIL.
func EncodeRaster(raster DataRaster, mimeType string) ([]byte, error) {
	switch raster := raster.(type) {
	case *ImageRaster:
		var buffer bytes.Buffer
		var err error
		switch mimeType {
		case MimeTypePNG:
			err = png.Encode(&buffer, raster.Image())
		case MimeTypeJPEG:
			err = jpeg.Encode(&buffer, raster.Image(), &jpeg.Options{Quality: DefaultJPEGQuality})
		case MimeTypeTIFF:
			err = xtiff.Encode(&buffer, raster.Image(), &xtiff.Options{Compression: xtiff.Deflate})
		default:
			return nil, fmt.Errorf("%s for imagery: %w", mimeType, ErrUnsupportedFormat)
		}
		if err != nil {
			return nil, err
		}
		return buffer.Bytes(), nil
	case *ElevationRaster:
		switch mimeType {
		case MimeTypeBIL16:
			return EncodeBIL(raster, DataTypeInt16, binary.LittleEndian)
		case MimeTypeBIL32:
			return EncodeBIL(raster, DataTypeFloat32, binary.LittleEndian)
		default:
			return nil, fmt.Errorf("%s for elevations: %w", mimeType, ErrUnsupportedFormat)
		}
	default:
		return nil, fmt.Errorf("%T: %w", raster, ErrIncompatibleRaster)
	}
}
