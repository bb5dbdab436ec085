package georaster

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/alecthomas/assert/v2"
)

const testBILHeader = `BYTEORDER      M
LAYOUT         BIL
NROWS          2
NCOLS          2
NBANDS         1
NBITS          16
ULXMAP         0.5
ULYMAP         1.5
XDIM           1
YDIM           1
NODATA         -9999
`

func TestBILReaderWithHeader(t *testing.T) {
	data := make([]byte, 8)
	for i, value := range []int16{1, 2, -9999, 4} {
		binary.BigEndian.PutUint16(data[2*i:], uint16(value))
	}
	source := NewBytesSource("test", "test.bil", data).WithSibling(".hdr", []byte(testBILHeader))
	reader := NewDataRasterReader(NewBILDecoder())
	assert.True(t, reader.CanRead(source, nil))

	metadata, err := reader.ReadMetadata(source, nil)
	assert.NoError(t, err)
	assert.Equal(t, &Sector{MinLat: 0, MaxLat: 2, MinLon: 0, MaxLon: 2}, metadata.Sector)
	assert.Equal(t, DataTypeInt16, metadata.DataType)
	assert.Equal(t, binary.ByteOrder(binary.BigEndian), metadata.ByteOrder)
	assert.Equal(t, -9999.0, *metadata.MissingDataSignal)

	rasters, err := reader.Read(source, nil)
	assert.NoError(t, err)
	raster := rasters[0].(*ElevationRaster)
	assert.Equal(t, []int16{1, 2, -9999, 4}, raster.Int16s())
	_, ok := raster.At(0, 1)
	assert.False(t, ok)
	value, ok := raster.At(1, 1)
	assert.True(t, ok)
	assert.Equal(t, 4.0, value)
}

func TestBILReaderWithMetadata(t *testing.T) {
	sector := MustNewSector(10, 11, 20, 21)
	src, err := NewFloat32ElevationRaster(3, 2, sector, []float32{
		1.5, 2.5, 3.5,
		4.5, float32(DefaultFloat32MissingDataSignal), 6.5,
	}, nil)
	assert.NoError(t, err)
	data, err := EncodeBIL(src, DataTypeFloat32, binary.LittleEndian)
	assert.NoError(t, err)
	assert.Equal(t, 24, len(data))

	source := NewBytesSource("test", "tiles/0/0/0_0.bil", data)
	reader := NewDataRasterReader(NewBILDecoder())
	assert.False(t, reader.CanRead(source, nil))

	metadata := NewMetadata(3, 2, sector)
	metadata.DataType = DataTypeFloat32
	assert.True(t, reader.CanRead(source, metadata))
	rasters, err := reader.Read(source, metadata)
	assert.NoError(t, err)
	assert.Equal(t, src.Float32s(), rasters[0].(*ElevationRaster).Float32s())

	tooBig := NewMetadata(30, 20, sector)
	assert.False(t, reader.CanRead(source, tooBig))
}

func TestBILReaderOutOfMemory(t *testing.T) {
	source := NewBytesSource("test", "test.bil", make([]byte, 8)).WithSibling(".hdr", []byte(testBILHeader))
	reader := NewDataRasterReader(NewBILDecoder(WithMaxDecodeBytes(4)))
	_, err := reader.Read(source, nil)
	assert.IsError(t, err, ErrOutOfMemory)
}

func TestParseBILHeaderErrors(t *testing.T) {
	for _, tc := range []struct {
		name   string
		header string
	}{
		{
			name:   "bands",
			header: "NBANDS 3\n",
		},
		{
			name:   "byte_order",
			header: "BYTEORDER X\n",
		},
		{
			name:   "fields",
			header: "NROWS 1 2\n",
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := parseBILHeader([]byte(tc.header))
			assert.IsError(t, err, ErrUnsupportedFormat)
		})
	}
	_, err := parseBILHeader([]byte("NROWS x\n"))
	assert.Error(t, err)
}

func TestEncodeBILInt16(t *testing.T) {
	r, err := NewElevationRaster(2, 1, MustNewSector(0, 1, 0, 2), &Metadata{DataType: DataTypeFloat32})
	assert.NoError(t, err)
	r.Set(0, 0, 1e6)
	data, err := EncodeBIL(r, DataTypeInt16, binary.LittleEndian)
	assert.NoError(t, err)
	assert.Equal(t, int16(math.MaxInt16), int16(binary.LittleEndian.Uint16(data)))
	assert.Equal(t, int16(math.MinInt16), int16(binary.LittleEndian.Uint16(data[2:])))
}
