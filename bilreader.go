package georaster

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"math"
	"strconv"
	"strings"
)

// A bilHeader is the contents of an ESRI .hdr file.
type bilHeader struct {
	byteOrder binary.ByteOrder
	layout    string
	nRows     int
	nCols     int
	nBands    int
	nBits     int
	pixelType string
	ulXMap    float64
	ulYMap    float64
	xDim      float64
	yDim      float64
	noData    *float64
}

// parseBILHeader parses an ESRI .hdr file. Keys are case insensitive and
// unknown keys are ignored.
func parseBILHeader(data []byte) (*bilHeader, error) {
	header := &bilHeader{
		byteOrder: binary.LittleEndian,
		layout:    "BIL",
		nBands:    1,
		nBits:     16,
		pixelType: "SIGNEDINT",
		xDim:      math.NaN(),
		yDim:      math.NaN(),
		ulXMap:    math.NaN(),
		ulYMap:    math.NaN(),
	}
	scanner := bufio.NewScanner(bytes.NewReader(data))
	lineNumber := 0
	for scanner.Scan() {
		lineNumber++
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		if len(fields) != 2 {
			return nil, fmt.Errorf("line %d: %q: %w", lineNumber, scanner.Text(), ErrUnsupportedFormat)
		}
		key, value := strings.ToUpper(fields[0]), fields[1]
		var err error
		switch key {
		case "BYTEORDER":
			switch strings.ToUpper(value) {
			case "I", "LSBFIRST":
				header.byteOrder = binary.LittleEndian
			case "M", "MSBFIRST":
				header.byteOrder = binary.BigEndian
			default:
				err = fmt.Errorf("byte order %q: %w", value, ErrUnsupportedFormat)
			}
		case "LAYOUT", "INTERLEAVING":
			header.layout = strings.ToUpper(value)
		case "NROWS", "ROWS":
			header.nRows, err = strconv.Atoi(value)
		case "NCOLS", "COLS":
			header.nCols, err = strconv.Atoi(value)
		case "NBANDS", "BANDS":
			header.nBands, err = strconv.Atoi(value)
		case "NBITS":
			header.nBits, err = strconv.Atoi(value)
		case "PIXELTYPE":
			header.pixelType = strings.ToUpper(value)
		case "ULXMAP":
			header.ulXMap, err = strconv.ParseFloat(value, 64)
		case "ULYMAP":
			header.ulYMap, err = strconv.ParseFloat(value, 64)
		case "XDIM":
			header.xDim, err = strconv.ParseFloat(value, 64)
		case "YDIM":
			header.yDim, err = strconv.ParseFloat(value, 64)
		case "NODATA", "NODATA_VALUE":
			var noData float64
			noData, err = strconv.ParseFloat(value, 64)
			header.noData = &noData
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNumber, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if header.nBands != 1 {
		return nil, fmt.Errorf("%d bands: %w", header.nBands, ErrUnsupportedFormat)
	}
	return header, nil
}

func (h *bilHeader) dataType() DataType {
	switch {
	case h.nBits == 16 && h.pixelType != "FLOAT":
		return DataTypeInt16
	case h.nBits == 32 && h.pixelType == "FLOAT":
		return DataTypeFloat32
	case h.nBits == 32:
		return DataTypeInt32
	case h.nBits == 8:
		return DataTypeInt8
	default:
		return DataTypeUnknown
	}
}

// sector returns the sector covered by h. ULXMAP and ULYMAP refer to the
// center of the upper left pixel.
func (h *bilHeader) sector() (Sector, bool) {
	if math.IsNaN(h.ulXMap) || math.IsNaN(h.ulYMap) || math.IsNaN(h.xDim) || math.IsNaN(h.yDim) || h.nRows <= 0 || h.nCols <= 0 {
		return Sector{}, false
	}
	minLon := h.ulXMap - h.xDim/2
	maxLat := h.ulYMap + h.yDim/2
	sector, err := NewSector(maxLat-float64(h.nRows)*h.yDim, maxLat, minLon, minLon+float64(h.nCols)*h.xDim)
	return sector, err == nil
}

// A BILDecoder decodes single band elevation grids in band interleaved by
// line format. Georeferencing is read from an ESRI .hdr sidecar when present,
// and otherwise must be supplied in the metadata, as for tiles in a pyramid.
type BILDecoder struct {
	options decoderOptions
}

// NewBILDecoder returns a new BILDecoder.
func NewBILDecoder(options ...DecoderOption) *BILDecoder {
	return &BILDecoder{
		options: newDecoderOptions(options),
	}
}

func (d *BILDecoder) Description() string { return "ESRI BIL" }
func (d *BILDecoder) MimeTypes() []string { return []string{"application/bil", "application/bil16", "application/bil32"} }
func (d *BILDecoder) Suffixes() []string { return []string{".bil"} }

// Probe returns whether source has a readable header, or whether the
// metadata describes a grid matching source's size.
func (d *BILDecoder) Probe(source Source, metadata *Metadata) bool {
	m := metadata.Clone()
	if err := d.DecodeMetadata(source, m); err != nil {
		return false
	}
	width, _ := m.Width()
	height, _ := m.Height()
	if m.Sector == nil || width <= 0 || height <= 0 {
		return false
	}
	file, err := source.Open()
	if err != nil {
		return false
	}
	defer file.Close()
	size, err := file.Seek(0, io.SeekEnd)
	if err != nil {
		return false
	}
	return size >= int64(width*height*m.DataType.Size())
}

// DecodeMetadata populates metadata from source's header, if any.
func (d *BILDecoder) DecodeMetadata(source Source, metadata *Metadata) error {
	metadata.PixelFormat = PixelFormatElevation
	header, err := d.readHeader(source)
	if err != nil {
		return err
	}
	if header != nil {
		if header.layout != "BIL" {
			return fmt.Errorf("layout %s: %w", header.layout, ErrUnsupportedFormat)
		}
		if err := metadata.SetWidth(header.nCols); err != nil {
			return err
		}
		if err := metadata.SetHeight(header.nRows); err != nil {
			return err
		}
		if sector, ok := header.sector(); ok && metadata.Sector == nil {
			metadata.SetSector(sector)
		}
		if metadata.DataType == DataTypeUnknown {
			metadata.DataType = header.dataType()
		}
		if metadata.ByteOrder == nil {
			metadata.ByteOrder = header.byteOrder
		}
		if metadata.MissingDataSignal == nil && header.noData != nil {
			metadata.SetMissingDataSignal(*header.noData)
		}
	}
	if metadata.DataType == DataTypeUnknown {
		metadata.DataType = DataTypeInt16
	}
	if metadata.ByteOrder == nil {
		metadata.ByteOrder = binary.LittleEndian
	}
	if metadata.ElevationUnit == ElevationUnitUnknown {
		metadata.ElevationUnit = ElevationUnitMeter
	}
	return nil
}

// Decode decodes the grid in source.
func (d *BILDecoder) Decode(source Source, metadata *Metadata) ([]DataRaster, error) {
	m := metadata.Clone()
	if err := d.DecodeMetadata(source, m); err != nil {
		return nil, err
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	width, _ := m.Width()
	height, _ := m.Height()
	dataType := m.DataType
	if dataType != DataTypeInt16 && dataType != DataTypeFloat32 {
		return nil, fmt.Errorf("data type %s: %w", dataType, ErrUnsupportedFormat)
	}
	if err := d.options.checkDecodeBudget(width, height, dataType.Size()); err != nil {
		return nil, err
	}

	data, err := readAll(source)
	if err != nil {
		return nil, err
	}
	n := width * height
	if len(data) < n*dataType.Size() {
		return nil, errShortRead
	}

	var raster *ElevationRaster
	switch dataType {
	case DataTypeInt16:
		samples := make([]int16, n)
		for i := range samples {
			samples[i] = int16(m.ByteOrder.Uint16(data[2*i:]))
		}
		raster, err = NewInt16ElevationRaster(width, height, *m.Sector, samples, m)
	case DataTypeFloat32:
		samples := make([]float32, n)
		for i := range samples {
			samples[i] = math.Float32frombits(m.ByteOrder.Uint32(data[4*i:]))
		}
		raster, err = NewFloat32ElevationRaster(width, height, *m.Sector, samples, m)
	}
	if err != nil {
		return nil, err
	}
	return []DataRaster{raster}, nil
}

// readHeader returns source's header, or nil if it has none.
func (d *BILDecoder) readHeader(source Source) (*bilHeader, error) {
	hdr, ok := source.Sibling(".hdr")
	if !ok {
		return nil, nil
	}
	switch data, err := readAll(hdr); {
	case errors.Is(err, fs.ErrNotExist):
		return nil, nil
	case err != nil:
		return nil, err
	default:
		return parseBILHeader(data)
	}
}

// EncodeBIL returns the samples of r in band interleaved by line format with
// byteOrder.
func EncodeBIL(r *ElevationRaster, dataType DataType, byteOrder binary.ByteOrder) ([]byte, error) {
	n := r.Width() * r.Height()
	data := make([]byte, n*dataType.Size())
	for y := range r.Height() {
		for x := range r.Width() {
			i := y*r.Width() + x
			value, ok := r.At(x, y)
			switch dataType {
			case DataTypeInt16:
				sample := int16(DefaultInt16MissingDataSignal)
				if ok {
					sample = int16(max(math.MinInt16+1, min(math.MaxInt16, math.Round(value))))
				}
				byteOrder.PutUint16(data[2*i:], uint16(sample))
			case DataTypeFloat32:
				sample := float32(DefaultFloat32MissingDataSignal)
				if ok {
					sample = float32(value)
				}
				byteOrder.PutUint32(data[4*i:], math.Float32bits(sample))
			default:
				return nil, fmt.Errorf("data type %s: %w", dataType, ErrUnsupportedFormat)
			}
		}
	}
	return data, nil
}
