package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/alecthomas/assert/v2"

	"github.com/twpayne/go-georaster"
)

func TestParseSector(t *testing.T) {
	sector, err := parseSector("0, 1.5,-10,10")
	assert.NoError(t, err)
	assert.Equal(t, georaster.Sector{MinLat: 0, MaxLat: 1.5, MinLon: -10, MaxLon: 10}, sector)

	_, err = parseSector("0,1,2")
	assert.Error(t, err)
	_, err = parseSector("0,1,a,2")
	assert.Error(t, err)
}

func TestMimeTypeForFilename(t *testing.T) {
	for _, tc := range []struct {
		filename string
		expected string
	}{
		{filename: "out.png", expected: georaster.MimeTypePNG},
		{filename: "out.JPG", expected: georaster.MimeTypeJPEG},
		{filename: "out.tiff", expected: georaster.MimeTypeTIFF},
		{filename: "out.bil", expected: georaster.MimeTypeBIL16},
		{filename: "out", expected: georaster.MimeTypePNG},
	} {
		assert.Equal(t, tc.expected, mimeTypeForFilename(tc.filename))
	}
}

func TestLoadConf(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "conf.toml")
	assert.NoError(t, os.WriteFile(filename, []byte(`
[server]
pixelFormat = "elevation"

[[sources]]
path = "a.bil"
sector = [0.0, 1.0, 0.0, 1.0]

[levelSet]
preset = "earth-elevations"
`), 0o666))
	conf, err := loadConf(filename)
	assert.NoError(t, err)
	assert.Equal(t, "elevation", conf.Server.PixelFormat)
	assert.Equal(t, 4, conf.Task.Workers)
	assert.Equal(t, 1, len(conf.Sources))
	assert.Equal(t, []float64{0, 1, 0, 1}, conf.Sources[0].Sector)

	levelSet, err := newLevelSet(conf)
	assert.NoError(t, err)
	assert.Equal(t, 12, levelSet.NumLevels())

	_, err = loadConf(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)
}
