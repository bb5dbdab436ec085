package georaster

import (
	"bytes"
	"image/png"
	"testing"

	"github.com/alecthomas/assert/v2"
)

func encodeTestPNG(t *testing.T, width, height int) []byte {
	t.Helper()
	var buffer bytes.Buffer
	assert.NoError(t, png.Encode(&buffer, newUniformImage(width, height, testRed)))
	return buffer.Bytes()
}

func TestImageReaderWorldFile(t *testing.T) {
	source := NewBytesSource("test", "img.png", encodeTestPNG(t, 4, 2)).
		WithSibling(".pgw", []byte("0.5\n0\n0\n-0.5\n10.25\n49.75\n"))
	reader := NewDataRasterReader(NewImageDecoder())
	assert.True(t, reader.CanRead(source, nil))

	metadata, err := reader.ReadMetadata(source, nil)
	assert.NoError(t, err)
	assert.Equal(t, &Sector{MinLat: 49, MaxLat: 50, MinLon: 10, MaxLon: 12}, metadata.Sector)
	assert.Equal(t, PixelFormatImage, metadata.PixelFormat)
	assert.Equal(t, any("png"), metadata.Extra["format"])

	rasters, err := reader.Read(source, nil)
	assert.NoError(t, err)
	raster := rasters[0].(*ImageRaster)
	assert.Equal(t, 4, raster.Width())
	assert.Equal(t, testRed, raster.Image().RGBAAt(3, 1))
}

func TestImageReaderMetadataSector(t *testing.T) {
	stream, err := NewStreamSource("stream", bytes.NewReader(encodeTestPNG(t, 8, 8)))
	assert.NoError(t, err)
	reader := NewDataRasterReader(NewImageDecoder(WithMipMapping()))
	assert.False(t, reader.CanRead(stream, nil))

	sector := MustNewSector(0, 1, 0, 1)
	metadata := &Metadata{Sector: &sector}
	assert.True(t, reader.CanRead(stream, metadata))
	rasters, err := reader.Read(stream, metadata)
	assert.NoError(t, err)
	raster := rasters[0].(*MipMappedImageRaster)
	assert.Equal(t, 3, raster.MaxLevel())
	assert.Equal(t, sector, raster.Sector())
}

func TestImageReaderRejects(t *testing.T) {
	reader := NewDataRasterReader(NewImageDecoder())
	sector := MustNewSector(0, 1, 0, 1)
	metadata := &Metadata{Sector: &sector}
	assert.False(t, reader.CanRead(NewBytesSource("test", "img.png", []byte("garbage")), metadata))
	assert.False(t, reader.CanRead(NewBytesSource("test", "img.bil", encodeTestPNG(t, 1, 1)), metadata))

	source := NewBytesSource("test", "img.png", encodeTestPNG(t, 1, 1)).
		WithSibling(".pgw", []byte("1\n0.1\n0\n-1\n0\n0\n"))
	assert.False(t, reader.CanRead(source, nil))
}

func TestImageReaderOutOfMemory(t *testing.T) {
	sector := MustNewSector(0, 1, 0, 1)
	source := NewBytesSource("test", "img.png", encodeTestPNG(t, 8, 8))
	reader := NewDataRasterReader(NewImageDecoder(WithMaxDecodeBytes(255)))
	_, err := reader.Read(source, &Metadata{Sector: &sector})
	assert.IsError(t, err, ErrOutOfMemory)
}
