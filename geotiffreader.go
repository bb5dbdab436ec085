package georaster

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/google/tiff"
	_ "github.com/google/tiff/bigtiff"
	_ "github.com/google/tiff/geotiff"
	"github.com/twpayne/go-proj/v10"
	xtiff "golang.org/x/image/tiff"
	"golang.org/x/image/tiff/lzw"
)

// TIFF compression schemes.
const (
	compressionNone         = 1
	compressionLZW          = 5
	compressionDeflate      = 8
	compressionAdobeDeflate = 32946
)

// TIFF sample formats.
const (
	sampleFormatUint  = 1
	sampleFormatInt   = 2
	sampleFormatFloat = 3
)

const (
	predictorNone       = 1
	predictorHorizontal = 2
)

// A geoTIFFIFD is a struct into which github.com/google/tiff can unmarshal an
// IFD.
type geoTIFFIFD struct {
	ImageWidth                uint32    `tiff:"field,tag=256"`
	ImageLength               uint32    `tiff:"field,tag=257"`
	BitsPerSample             []uint16  `tiff:"field,tag=258"`
	Compression               uint16    `tiff:"field,tag=259"`
	PhotometricInterpretation uint16    `tiff:"field,tag=262"`
	StripOffsets              []uint64  `tiff:"field,tag=273"`
	SamplesPerPixel           uint16    `tiff:"field,tag=277"`
	RowsPerStrip              uint32    `tiff:"field,tag=278"`
	StripByteCounts           []uint64  `tiff:"field,tag=279"`
	PlanarConfiguration       uint16    `tiff:"field,tag=284"`
	Predictor                 uint16    `tiff:"field,tag=317"`
	TileWidth                 uint32    `tiff:"field,tag=322"`
	TileLength                uint32    `tiff:"field,tag=323"`
	TileOffsets               []uint64  `tiff:"field,tag=324"`
	TileByteCounts            []uint64  `tiff:"field,tag=325"`
	SampleFormat              []uint16  `tiff:"field,tag=339"`
	ModelPixelScaleTag        []float64 `tiff:"field,tag=33550"`
	ModelTiepointTag          []float64 `tiff:"field,tag=33922"`
	GeoKeyDirectoryTag        []uint16  `tiff:"field,tag=34735"`
	GeoDoubleParamsTag        []float64 `tiff:"field,tag=34736"`
	GeoASCIIParamsTag         string    `tiff:"field,tag=34737"`
	GDALMetadata              string    `tiff:"field,tag=42112"`
	GDALNoData                string    `tiff:"field,tag=42113"`
}

func (ifd *geoTIFFIFD) bitsPerSample() int {
	if len(ifd.BitsPerSample) == 0 {
		return 1
	}
	return int(ifd.BitsPerSample[0])
}

func (ifd *geoTIFFIFD) sampleFormat() int {
	if len(ifd.SampleFormat) == 0 {
		return sampleFormatUint
	}
	return int(ifd.SampleFormat[0])
}

func (ifd *geoTIFFIFD) isGeoreferenced() bool {
	return len(ifd.ModelPixelScaleTag) >= 2 && len(ifd.ModelTiepointTag) >= 6
}

// isElevation returns whether ifd holds a single band of 16 or 32 bit
// samples, as elevation models do.
func (ifd *geoTIFFIFD) isElevation() bool {
	if ifd.SamplesPerPixel > 1 || ifd.PhotometricInterpretation > 1 {
		return false
	}
	switch ifd.bitsPerSample() {
	case 16, 32:
		return true
	default:
		return false
	}
}

func (ifd *geoTIFFIFD) dataType() DataType {
	switch bits, sampleFormat := ifd.bitsPerSample(), ifd.sampleFormat(); {
	case bits == 8 && sampleFormat == sampleFormatInt:
		return DataTypeInt8
	case bits == 16 && sampleFormat != sampleFormatFloat:
		return DataTypeInt16
	case bits == 32 && sampleFormat == sampleFormatFloat:
		return DataTypeFloat32
	case bits == 32:
		return DataTypeInt32
	default:
		return DataTypeUnknown
	}
}

// A GeoTIFFDecoder decodes GeoTIFF and BigTIFF files. Single band 16 and 32
// bit files are decoded as elevation, everything else as imagery.
type GeoTIFFDecoder struct {
	options decoderOptions
}

// NewGeoTIFFDecoder returns a new GeoTIFFDecoder.
func NewGeoTIFFDecoder(options ...DecoderOption) *GeoTIFFDecoder {
	return &GeoTIFFDecoder{
		options: newDecoderOptions(options),
	}
}

func (d *GeoTIFFDecoder) Description() string { return "GeoTIFF" }
func (d *GeoTIFFDecoder) MimeTypes() []string { return []string{"image/tiff", "image/geotiff"} }
func (d *GeoTIFFDecoder) Suffixes() []string { return []string{".tif", ".tiff", ".gtif"} }

// Probe returns whether source is a TIFF file that is georeferenced, or whose
// sector is given in metadata.
func (d *GeoTIFFDecoder) Probe(source Source, metadata *Metadata) bool {
	file, err := source.Open()
	if err != nil {
		return false
	}
	defer file.Close()
	ifd, _, err := parseGeoTIFF(file)
	if err != nil {
		return false
	}
	return ifd.isGeoreferenced() || metadata != nil && metadata.Sector != nil
}

// DecodeMetadata populates metadata from source's first IFD.
func (d *GeoTIFFDecoder) DecodeMetadata(source Source, metadata *Metadata) error {
	file, err := source.Open()
	if err != nil {
		return err
	}
	defer file.Close()
	ifd, byteOrder, err := parseGeoTIFF(file)
	if err != nil {
		return err
	}
	return populateGeoTIFFMetadata(ifd, byteOrder, metadata)
}

// Decode decodes the raster in source's first IFD.
func (d *GeoTIFFDecoder) Decode(source Source, metadata *Metadata) ([]DataRaster, error) {
	file, err := source.Open()
	if err != nil {
		return nil, err
	}
	defer file.Close()

	if metadata == nil {
		metadata = &Metadata{}
	}
	ifd, byteOrder, err := parseGeoTIFF(file)
	if err != nil {
		return nil, err
	}
	if err := populateGeoTIFFMetadata(ifd, byteOrder, metadata); err != nil {
		return nil, err
	}
	if err := metadata.Validate(); err != nil {
		return nil, err
	}

	var raster DataRaster
	switch metadata.PixelFormat {
	case PixelFormatElevation:
		raster, err = d.decodeElevation(file, ifd, byteOrder, metadata)
	default:
		raster, err = d.decodeImage(file, ifd, metadata)
	}
	if err != nil {
		return nil, err
	}
	return []DataRaster{raster}, nil
}

func (d *GeoTIFFDecoder) decodeImage(file SourceFile, ifd *geoTIFFIFD, metadata *Metadata) (DataRaster, error) {
	if err := d.options.checkDecodeBudget(int(ifd.ImageWidth), int(ifd.ImageLength), 4); err != nil {
		return nil, err
	}
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	img, err := xtiff.Decode(file)
	if err != nil {
		return nil, err
	}
	return NewImageRaster(img, *metadata.Sector, metadata)
}

func (d *GeoTIFFDecoder) decodeElevation(file SourceFile, ifd *geoTIFFIFD, byteOrder binary.ByteOrder, metadata *Metadata) (DataRaster, error) {
	width, height := int(ifd.ImageWidth), int(ifd.ImageLength)
	dataType := ifd.dataType()
	switch {
	case dataType != DataTypeInt16 && dataType != DataTypeFloat32:
		return nil, fmt.Errorf("%d bit samples in format %d: %w", ifd.bitsPerSample(), ifd.sampleFormat(), ErrUnsupportedFormat)
	case ifd.Predictor > predictorNone && (ifd.Predictor != predictorHorizontal || dataType != DataTypeInt16):
		return nil, fmt.Errorf("predictor %d: %w", ifd.Predictor, ErrUnsupportedFormat)
	}
	if err := d.options.checkDecodeBudget(width, height, dataType.Size()); err != nil {
		return nil, err
	}

	layout, err := newChunkLayout(ifd)
	if err != nil {
		return nil, err
	}
	bytesPerSample := dataType.Size()
	var int16s []int16
	var float32s []float32
	if dataType == DataTypeInt16 {
		int16s = make([]int16, width*height)
	} else {
		float32s = make([]float32, width*height)
	}

	for index := range layout.count {
		x0, y0, chunkWidth, chunkHeight := layout.chunk(index)
		data, err := readChunk(file, layout.offsets[index], layout.byteCounts[index], ifd.Compression, chunkWidth*chunkHeight*bytesPerSample)
		if err != nil {
			return nil, err
		}
		for y := range chunkHeight {
			if y0+y >= height {
				break
			}
			row := data[y*chunkWidth*bytesPerSample:]
			var previous int16
			for x := range chunkWidth {
				b := row[x*bytesPerSample:]
				if dataType == DataTypeInt16 {
					value := int16(byteOrder.Uint16(b))
					if ifd.Predictor == predictorHorizontal {
						value += previous
						previous = value
					}
					if x0+x < width {
						int16s[(y0+y)*width+x0+x] = value
					}
				} else if x0+x < width {
					float32s[(y0+y)*width+x0+x] = math.Float32frombits(byteOrder.Uint32(b))
				}
			}
		}
	}

	sector := *metadata.Sector
	if dataType == DataTypeInt16 {
		return NewInt16ElevationRaster(width, height, sector, int16s, metadata)
	}
	return NewFloat32ElevationRaster(width, height, sector, float32s, metadata)
}

// parseGeoTIFF parses the first IFD in file.
func parseGeoTIFF(file SourceFile) (*geoTIFFIFD, binary.ByteOrder, error) {
	var header [4]byte
	if _, err := file.ReadAt(header[:], 0); err != nil {
		return nil, nil, err
	}
	var byteOrder binary.ByteOrder
	switch string(header[:2]) {
	case "II":
		byteOrder = binary.LittleEndian
	case "MM":
		byteOrder = binary.BigEndian
	default:
		return nil, nil, fmt.Errorf("byte order %q: %w", header[:2], ErrUnsupportedFormat)
	}
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return nil, nil, err
	}

	tiffTIFF, err := tiff.Parse(file, tiff.GetTagSpace("GeoTIFF"), nil)
	if err != nil {
		return nil, nil, err
	}
	if len(tiffTIFF.IFDs()) == 0 {
		return nil, nil, fmt.Errorf("no IFDs: %w", ErrUnsupportedFormat)
	}

	var ifd geoTIFFIFD
	if err := tiff.UnmarshalIFD(tiffTIFF.IFDs()[0], &ifd); err != nil {
		return nil, nil, err
	}
	if ifd.ImageWidth == 0 || ifd.ImageLength == 0 {
		return nil, nil, fmt.Errorf("%dx%d image: %w", ifd.ImageWidth, ifd.ImageLength, ErrUnsupportedFormat)
	}
	if ifd.PlanarConfiguration > 1 && ifd.SamplesPerPixel > 1 {
		return nil, nil, fmt.Errorf("planar configuration %d: %w", ifd.PlanarConfiguration, errors.ErrUnsupported)
	}
	return &ifd, byteOrder, nil
}

// populateGeoTIFFMetadata sets the values in metadata that are not already
// set from ifd.
func populateGeoTIFFMetadata(ifd *geoTIFFIFD, byteOrder binary.ByteOrder, metadata *Metadata) error {
	if err := metadata.SetWidth(int(ifd.ImageWidth)); err != nil {
		return err
	}
	if err := metadata.SetHeight(int(ifd.ImageLength)); err != nil {
		return err
	}

	var geoKeys *ParsedGeoKeys
	if len(ifd.GeoKeyDirectoryTag) > 0 {
		var err error
		geoKeys, err = ParseGeoKeys(ifd.GeoKeyDirectoryTag, ifd.GeoDoubleParamsTag, []byte(ifd.GeoASCIIParamsTag))
		if err != nil {
			return err
		}
		if epsg, ok := geoKeys.EPSG(); ok {
			metadata.SetExtra("epsg", epsg)
		}
	}

	if metadata.Sector == nil && ifd.isGeoreferenced() {
		sector, err := geoTIFFSector(ifd, geoKeys)
		if err != nil {
			return err
		}
		metadata.SetSector(sector)
	}

	if metadata.PixelFormat == PixelFormatUnknown {
		if ifd.isElevation() {
			metadata.PixelFormat = PixelFormatElevation
		} else {
			metadata.PixelFormat = PixelFormatImage
		}
	}
	if metadata.PixelFormat != PixelFormatElevation {
		return nil
	}

	if metadata.DataType == DataTypeUnknown {
		metadata.DataType = ifd.dataType()
	}
	if metadata.ByteOrder == nil {
		metadata.ByteOrder = byteOrder
	}
	if metadata.MissingDataSignal == nil {
		if noData := strings.TrimRight(strings.TrimSpace(ifd.GDALNoData), "\x00"); noData != "" {
			if value, err := strconv.ParseFloat(noData, 64); err == nil {
				metadata.SetMissingDataSignal(value)
			}
		}
	}
	if metadata.ElevationUnit == ElevationUnitUnknown {
		metadata.ElevationUnit = ElevationUnitMeter
		if geoKeys != nil {
			metadata.ElevationUnit = geoKeys.ElevationUnit()
		}
	}
	if ifd.GDALMetadata != "" {
		metadata.SetExtra("gdal_metadata", ifd.GDALMetadata)
	}
	return nil
}

// geoTIFFSector returns the sector covered by ifd. Projected rasters have
// their corners reprojected to longitude and latitude.
func geoTIFFSector(ifd *geoTIFFIFD, geoKeys *ParsedGeoKeys) (Sector, error) {
	scaleX, scaleY := ifd.ModelPixelScaleTag[0], ifd.ModelPixelScaleTag[1]
	i, j := ifd.ModelTiepointTag[0], ifd.ModelTiepointTag[1]
	x, y := ifd.ModelTiepointTag[3], ifd.ModelTiepointTag[4]
	minX := x - i*scaleX
	maxY := y + j*scaleY
	if geoKeys != nil && geoKeys.PixelIsPoint() {
		minX -= scaleX / 2
		maxY += scaleY / 2
	}
	maxX := minX + float64(ifd.ImageWidth)*scaleX
	minY := maxY - float64(ifd.ImageLength)*scaleY

	if geoKeys == nil || geoKeys.ModelType() == ModelTypeGeographic {
		return NewSector(minY, maxY, minX, maxX)
	}
	if geoKeys.ModelType() != ModelTypeProjected {
		return Sector{}, fmt.Errorf("model type %d: %w", geoKeys.ModelType(), ErrUnsupportedFormat)
	}
	epsg, ok := geoKeys.EPSG()
	if !ok {
		return Sector{}, fmt.Errorf("user defined projection: %w", ErrUnsupportedFormat)
	}
	return projectedSector(epsg, minX, minY, maxX, maxY)
}

// projectedSector returns the sector enclosing the rectangle with the given
// corners in the coordinate reference system epsg.
func projectedSector(epsg int, minX, minY, maxX, maxY float64) (Sector, error) {
	pj, err := proj.NewCRSToCRS(fmt.Sprintf("EPSG:%d", epsg), "EPSG:4326", nil)
	if err != nil {
		return Sector{}, err
	}
	normalizedPJ, err := pj.NormalizeForVisualization()
	if err != nil {
		return Sector{}, err
	}
	coords := [][]float64{
		{minX, minY},
		{maxX, minY},
		{maxX, maxY},
		{minX, maxY},
	}
	if err := normalizedPJ.ForwardFloat64Slices(coords); err != nil {
		return Sector{}, err
	}
	sector := Sector{
		MinLat: math.Inf(1),
		MaxLat: math.Inf(-1),
		MinLon: math.Inf(1),
		MaxLon: math.Inf(-1),
	}
	for _, coord := range coords {
		sector.MinLon = min(sector.MinLon, coord[0])
		sector.MaxLon = max(sector.MaxLon, coord[0])
		sector.MinLat = min(sector.MinLat, coord[1])
		sector.MaxLat = max(sector.MaxLat, coord[1])
	}
	return NewSector(sector.MinLat, sector.MaxLat, sector.MinLon, sector.MaxLon)
}

// A chunkLayout describes the strips or tiles of an image.
type chunkLayout struct {
	count       int
	width       int
	height      int
	across      int
	imageHeight int
	offsets     []uint64
	byteCounts  []uint64
}

func newChunkLayout(ifd *geoTIFFIFD) (*chunkLayout, error) {
	imageWidth, imageHeight := int(ifd.ImageWidth), int(ifd.ImageLength)
	var layout chunkLayout
	if ifd.TileWidth > 0 && ifd.TileLength > 0 {
		layout = chunkLayout{
			width:      int(ifd.TileWidth),
			height:     int(ifd.TileLength),
			offsets:    ifd.TileOffsets,
			byteCounts: ifd.TileByteCounts,
		}
		layout.across = (imageWidth + layout.width - 1) / layout.width
		tilesDown := (imageHeight + layout.height - 1) / layout.height
		layout.count = layout.across * tilesDown
	} else {
		rowsPerStrip := int(ifd.RowsPerStrip)
		if rowsPerStrip <= 0 || rowsPerStrip > imageHeight {
			rowsPerStrip = imageHeight
		}
		layout = chunkLayout{
			width:       imageWidth,
			height:      rowsPerStrip,
			across:      1,
			imageHeight: imageHeight,
			offsets:     ifd.StripOffsets,
			byteCounts:  ifd.StripByteCounts,
		}
		layout.count = (imageHeight + rowsPerStrip - 1) / rowsPerStrip
	}
	if len(layout.offsets) != layout.count || len(layout.byteCounts) != layout.count {
		return nil, fmt.Errorf("%d offsets and %d byte counts for %d chunks: %w", len(layout.offsets), len(layout.byteCounts), layout.count, ErrUnsupportedFormat)
	}
	return &layout, nil
}

// chunk returns the origin and size of the chunk at index. The final strip
// may be shorter than the others.
func (l *chunkLayout) chunk(index int) (x0, y0, width, height int) {
	x0 = (index % l.across) * l.width
	y0 = (index / l.across) * l.height
	height = l.height
	if l.imageHeight > 0 {
		height = min(height, l.imageHeight-y0)
	}
	return x0, y0, l.width, height
}

// readChunk reads and decompresses a chunk of size bytes.
func readChunk(file SourceFile, offset, byteCount uint64, compression uint16, size int) ([]byte, error) {
	compressedData := make([]byte, byteCount)
	switch n, err := file.ReadAt(compressedData, int64(offset)); {
	case n != len(compressedData):
		if err == nil {
			err = errShortRead
		}
		return nil, err
	case err != nil && !errors.Is(err, io.EOF):
		return nil, err
	}

	var r io.Reader
	switch compression {
	case 0, compressionNone:
		if len(compressedData) < size {
			return nil, errShortRead
		}
		return compressedData[:size], nil
	case compressionLZW:
		lzwReader := lzw.NewReader(bytes.NewReader(compressedData), lzw.MSB, 8)
		defer lzwReader.Close()
		r = lzwReader
	case compressionDeflate, compressionAdobeDeflate:
		zlibReader, err := zlib.NewReader(bytes.NewReader(compressedData))
		if err != nil {
			return nil, err
		}
		defer zlibReader.Close()
		r = zlibReader
	default:
		return nil, fmt.Errorf("compression %d: %w", compression, ErrUnsupportedFormat)
	}

	data := make([]byte, size)
	if _, err := io.ReadFull(r, data); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
			return nil, errShortRead
		}
		return nil, err
	}
	return data, nil
}
