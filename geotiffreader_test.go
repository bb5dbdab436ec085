package georaster

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"image"
	"math"
	"sort"
	"testing"

	"github.com/alecthomas/assert/v2"
	xtiff "golang.org/x/image/tiff"
)

// TIFF field types.
const (
	tiffASCII  = 2
	tiffShort  = 3
	tiffLong   = 4
	tiffDouble = 12
)

type testTIFFEntry struct {
	tag       uint16
	fieldType uint16
	count     uint32
	value     []byte
}

func testTIFFShorts(tag uint16, values ...uint16) testTIFFEntry {
	value := make([]byte, 2*len(values))
	for i, v := range values {
		binary.LittleEndian.PutUint16(value[2*i:], v)
	}
	return testTIFFEntry{tag: tag, fieldType: tiffShort, count: uint32(len(values)), value: value}
}

func testTIFFLongs(tag uint16, values ...uint32) testTIFFEntry {
	value := make([]byte, 4*len(values))
	for i, v := range values {
		binary.LittleEndian.PutUint32(value[4*i:], v)
	}
	return testTIFFEntry{tag: tag, fieldType: tiffLong, count: uint32(len(values)), value: value}
}

func testTIFFDoubles(tag uint16, values ...float64) testTIFFEntry {
	value := make([]byte, 8*len(values))
	for i, v := range values {
		binary.LittleEndian.PutUint64(value[8*i:], math.Float64bits(v))
	}
	return testTIFFEntry{tag: tag, fieldType: tiffDouble, count: uint32(len(values)), value: value}
}

func testTIFFASCII(tag uint16, s string) testTIFFEntry {
	value := append([]byte(s), 0)
	return testTIFFEntry{tag: tag, fieldType: tiffASCII, count: uint32(len(value)), value: value}
}

type testGeoTIFF struct {
	width       int
	height      int
	samples     []int16
	compression uint16
	tiepoint    []float64
	scale       []float64
	geoKeys     []uint16
	noData      string
}

// encode returns a little-endian single strip int16 GeoTIFF.
func (g testGeoTIFF) encode(t *testing.T) []byte {
	t.Helper()

	stripData := make([]byte, 2*len(g.samples))
	for i, sample := range g.samples {
		binary.LittleEndian.PutUint16(stripData[2*i:], uint16(sample))
	}
	compression := g.compression
	if compression == compressionDeflate {
		var buffer bytes.Buffer
		w := zlib.NewWriter(&buffer)
		_, err := w.Write(stripData)
		assert.NoError(t, err)
		assert.NoError(t, w.Close())
		stripData = buffer.Bytes()
	} else {
		compression = compressionNone
	}

	entries := []testTIFFEntry{
		testTIFFShorts(256, uint16(g.width)),
		testTIFFShorts(257, uint16(g.height)),
		testTIFFShorts(258, 16),
		testTIFFShorts(259, compression),
		testTIFFShorts(262, 1),
		testTIFFLongs(273, 0), // Patched below.
		testTIFFShorts(277, 1),
		testTIFFShorts(278, uint16(g.height)),
		testTIFFLongs(279, uint32(len(stripData))),
		testTIFFShorts(284, 1),
		testTIFFShorts(339, sampleFormatInt),
	}
	if g.scale != nil {
		entries = append(entries, testTIFFDoubles(33550, g.scale...))
	}
	if g.tiepoint != nil {
		entries = append(entries, testTIFFDoubles(33922, g.tiepoint...))
	}
	if g.geoKeys != nil {
		entries = append(entries, testTIFFShorts(34735, g.geoKeys...))
	}
	if g.noData != "" {
		entries = append(entries, testTIFFASCII(42113, g.noData))
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].tag < entries[j].tag
	})

	const headerSize = 8
	ifdSize := 2 + 12*len(entries) + 4
	dataOffset := headerSize + ifdSize
	var extraData []byte
	offsets := make([]uint32, len(entries))
	for i, entry := range entries {
		if len(entry.value) > 4 {
			offsets[i] = uint32(dataOffset + len(extraData))
			extraData = append(extraData, entry.value...)
			if len(extraData)%2 == 1 {
				extraData = append(extraData, 0)
			}
		}
	}
	stripOffset := uint32(dataOffset + len(extraData))
	for i, entry := range entries {
		if entry.tag == 273 {
			binary.LittleEndian.PutUint32(entries[i].value, stripOffset)
		}
	}

	var buffer bytes.Buffer
	buffer.WriteString("II")
	_ = binary.Write(&buffer, binary.LittleEndian, uint16(42))
	_ = binary.Write(&buffer, binary.LittleEndian, uint32(headerSize))
	_ = binary.Write(&buffer, binary.LittleEndian, uint16(len(entries)))
	for i, entry := range entries {
		_ = binary.Write(&buffer, binary.LittleEndian, entry.tag)
		_ = binary.Write(&buffer, binary.LittleEndian, entry.fieldType)
		_ = binary.Write(&buffer, binary.LittleEndian, entry.count)
		if len(entry.value) > 4 {
			_ = binary.Write(&buffer, binary.LittleEndian, offsets[i])
		} else {
			var inline [4]byte
			copy(inline[:], entry.value)
			buffer.Write(inline[:])
		}
	}
	_ = binary.Write(&buffer, binary.LittleEndian, uint32(0))
	buffer.Write(extraData)
	buffer.Write(stripData)
	return buffer.Bytes()
}

func newTestGeoTIFF() testGeoTIFF {
	return testGeoTIFF{
		width:  4,
		height: 2,
		samples: []int16{
			1, 2, 3, 4,
			5, 6, -32768, 8,
		},
		tiepoint: []float64{0, 0, 0, 10, 50, 0},
		scale:    []float64{0.25, 0.5, 0},
		geoKeys: []uint16{
			1, 1, 0, 3,
			1024, 0, 1, ModelTypeGeographic,
			1025, 0, 1, RasterTypePixelIsArea,
			2048, 0, 1, 4326,
		},
		noData: "-32768",
	}
}

func TestGeoTIFFReader(t *testing.T) {
	for _, tc := range []struct {
		name        string
		compression uint16
	}{
		{
			name:        "uncompressed",
			compression: compressionNone,
		},
		{
			name:        "deflate",
			compression: compressionDeflate,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			g := newTestGeoTIFF()
			g.compression = tc.compression
			source := NewBytesSource("test", "test.tif", g.encode(t))
			reader := NewDataRasterReader(NewGeoTIFFDecoder())
			assert.True(t, reader.CanRead(source, nil))

			metadata, err := reader.ReadMetadata(source, nil)
			assert.NoError(t, err)
			width, _ := metadata.Width()
			height, _ := metadata.Height()
			assert.Equal(t, 4, width)
			assert.Equal(t, 2, height)
			assert.Equal(t, &Sector{MinLat: 49, MaxLat: 50, MinLon: 10, MaxLon: 11}, metadata.Sector)
			assert.Equal(t, PixelFormatElevation, metadata.PixelFormat)
			assert.Equal(t, DataTypeInt16, metadata.DataType)
			assert.Equal(t, ElevationUnitMeter, metadata.ElevationUnit)
			assert.Equal(t, -32768.0, *metadata.MissingDataSignal)
			assert.Equal(t, any(4326), metadata.Extra["epsg"])

			rasters, err := reader.Read(source, nil)
			assert.NoError(t, err)
			assert.Equal(t, 1, len(rasters))
			raster := rasters[0].(*ElevationRaster)
			assert.Equal(t, []int16{1, 2, 3, 4, 5, 6, -32768, 8}, raster.Int16s())
			value, ok := raster.At(3, 1)
			assert.True(t, ok)
			assert.Equal(t, 8.0, value)
			_, ok = raster.At(2, 1)
			assert.False(t, ok)
		})
	}
}

func TestGeoTIFFReaderPixelIsPoint(t *testing.T) {
	g := newTestGeoTIFF()
	g.geoKeys = []uint16{
		1, 1, 0, 2,
		1024, 0, 1, ModelTypeGeographic,
		1025, 0, 1, RasterTypePixelIsPoint,
	}
	g.tiepoint = []float64{0, 0, 0, 10.125, 49.75, 0}
	source := NewBytesSource("test", "test.tif", g.encode(t))
	metadata, err := NewDataRasterReader(NewGeoTIFFDecoder()).ReadMetadata(source, nil)
	assert.NoError(t, err)
	assert.Equal(t, &Sector{MinLat: 49, MaxLat: 50, MinLon: 10, MaxLon: 11}, metadata.Sector)
}

func TestGeoTIFFReaderOutOfMemory(t *testing.T) {
	source := NewBytesSource("test", "test.tif", newTestGeoTIFF().encode(t))
	reader := NewDataRasterReader(NewGeoTIFFDecoder(WithMaxDecodeBytes(8)))
	_, err := reader.Read(source, nil)
	assert.IsError(t, err, ErrOutOfMemory)

	reader = NewDataRasterReader(NewGeoTIFFDecoder(WithMaxDecodeBytes(16)))
	_, err = reader.Read(source, nil)
	assert.NoError(t, err)
}

func TestGeoTIFFReaderNotGeoreferenced(t *testing.T) {
	img := newUniformImage(3, 2, testRed)
	var buffer bytes.Buffer
	assert.NoError(t, xtiff.Encode(&buffer, img, nil))
	source := NewBytesSource("test", "", buffer.Bytes())
	reader := NewDataRasterReader(NewGeoTIFFDecoder())

	assert.False(t, reader.CanRead(source, nil))
	_, err := reader.Read(source, nil)
	assert.IsError(t, err, ErrUnsupportedFormat)

	sector := MustNewSector(0, 1, 0, 1)
	metadata := &Metadata{Sector: &sector}
	assert.True(t, reader.CanRead(source, metadata))
	rasters, err := reader.Read(source, metadata)
	assert.NoError(t, err)
	raster := rasters[0].(*ImageRaster)
	assert.Equal(t, sector, raster.Sector())
	assert.Equal(t, image.Rect(0, 0, 3, 2), raster.Image().Rect)
	assert.Equal(t, testRed, raster.Image().RGBAAt(2, 1))
}

func TestGeoTIFFReaderRejects(t *testing.T) {
	reader := NewDataRasterReader(NewGeoTIFFDecoder())
	data := newTestGeoTIFF().encode(t)
	assert.False(t, reader.CanRead(NewBytesSource("test", "test.png", data), nil))
	assert.False(t, reader.CanRead(NewBytesSource("test", "test.tif", []byte("not a tiff")), nil))
	assert.True(t, reader.CanRead(NewBytesSource("test", "TEST.TIF", data), nil))
}
