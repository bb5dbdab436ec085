package georaster

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"strconv"
	"strings"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
)

// worldFileSuffixes maps image suffixes to the suffixes of their world files.
var worldFileSuffixes = map[string][]string{
	".png":  {".pgw", ".pngw", ".wld"},
	".jpg":  {".jgw", ".jpgw", ".wld"},
	".jpeg": {".jgw", ".jpegw", ".wld"},
	".gif":  {".gfw", ".gifw", ".wld"},
	".bmp":  {".bpw", ".bmpw", ".wld"},
	".webp": {".wpw", ".webpw", ".wld"},
}

// A worldFile is an ESRI world file: the affine transform from pixel
// coordinates to the center of each pixel.
type worldFile struct {
	xScale    float64
	yRotation float64
	xRotation float64
	yScale    float64
	x         float64
	y         float64
}

func parseWorldFile(data []byte) (*worldFile, error) {
	fields := strings.Fields(string(data))
	if len(fields) != 6 {
		return nil, fmt.Errorf("%d values in world file: %w", len(fields), ErrUnsupportedFormat)
	}
	var values [6]float64
	for i, field := range fields {
		value, err := strconv.ParseFloat(field, 64)
		if err != nil {
			return nil, err
		}
		values[i] = value
	}
	w := &worldFile{
		xScale:    values[0],
		yRotation: values[1],
		xRotation: values[2],
		yScale:    values[3],
		x:         values[4],
		y:         values[5],
	}
	if w.xRotation != 0 || w.yRotation != 0 {
		return nil, fmt.Errorf("rotated world file: %w", ErrUnsupportedFormat)
	}
	return w, nil
}

// sector returns the sector covered by an image of the given size.
func (w *worldFile) sector(width, height int) (Sector, error) {
	minLon := w.x - w.xScale/2
	maxLat := w.y - w.yScale/2
	return NewSector(maxLat+float64(height)*w.yScale, maxLat, minLon, minLon+float64(width)*w.xScale)
}

// An ImageDecoder decodes PNG, JPEG, GIF, BMP, and WebP imagery. The sector
// is read from a world file alongside the image when present, and otherwise
// must be supplied in the metadata.
type ImageDecoder struct {
	options decoderOptions
}

// NewImageDecoder returns a new ImageDecoder.
func NewImageDecoder(options ...DecoderOption) *ImageDecoder {
	return &ImageDecoder{
		options: newDecoderOptions(options),
	}
}

func (d *ImageDecoder) Description() string { return "image" }

func (d *ImageDecoder) MimeTypes() []string {
	return []string{"image/png", "image/jpeg", "image/gif", "image/bmp", "image/webp"}
}

func (d *ImageDecoder) Suffixes() []string {
	return []string{".png", ".jpg", ".jpeg", ".gif", ".bmp", ".webp"}
}

// Probe returns whether source is a decodable image with a known sector.
func (d *ImageDecoder) Probe(source Source, metadata *Metadata) bool {
	m := metadata.Clone()
	if err := d.DecodeMetadata(source, m); err != nil {
		return false
	}
	return m.Sector != nil
}

// DecodeMetadata populates metadata from source's image header and world
// file.
func (d *ImageDecoder) DecodeMetadata(source Source, metadata *Metadata) error {
	file, err := source.Open()
	if err != nil {
		return err
	}
	defer file.Close()
	config, format, err := image.DecodeConfig(file)
	if err != nil {
		return err
	}
	if err := metadata.SetWidth(config.Width); err != nil {
		return err
	}
	if err := metadata.SetHeight(config.Height); err != nil {
		return err
	}
	metadata.PixelFormat = PixelFormatImage
	metadata.SetExtra("format", format)
	if metadata.Sector != nil {
		return nil
	}
	worldFile, err := d.readWorldFile(source)
	if err != nil {
		return err
	}
	if worldFile != nil {
		sector, err := worldFile.sector(config.Width, config.Height)
		if err != nil {
			return err
		}
		metadata.SetSector(sector)
	}
	return nil
}

// Decode decodes the image in source.
func (d *ImageDecoder) Decode(source Source, metadata *Metadata) ([]DataRaster, error) {
	m := metadata.Clone()
	if err := d.DecodeMetadata(source, m); err != nil {
		return nil, err
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	width, _ := m.Width()
	height, _ := m.Height()
	if err := d.options.checkDecodeBudget(width, height, 4); err != nil {
		return nil, err
	}

	data, err := readAll(source)
	if err != nil {
		return nil, err
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	if d.options.mipMapping {
		raster, err := NewMipMappedImageRaster(img, *m.Sector, m)
		if err != nil {
			return nil, err
		}
		return []DataRaster{raster}, nil
	}
	raster, err := NewImageRaster(img, *m.Sector, m)
	if err != nil {
		return nil, err
	}
	return []DataRaster{raster}, nil
}

// readWorldFile returns the first world file found alongside source, or nil.
func (d *ImageDecoder) readWorldFile(source Source) (*worldFile, error) {
	for _, suffix := range worldFileSuffixes[sourceSuffix(source)] {
		sibling, ok := source.Sibling(suffix)
		if !ok {
			continue
		}
		data, err := readAll(sibling)
		if err != nil {
			continue
		}
		return parseWorldFile(data)
	}
	return nil, nil
}
