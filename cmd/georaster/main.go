package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/twpayne/go-georaster"
)

var (
	hf         bool
	configPath string
	logLevel   string
)

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: georaster [-h] [-c filename] [-l logLevel] command [arguments]

Commands:
  compose [-sector minLat,maxLat,minLon,maxLon] [-size WxH] [-format mimeType] -o file
  tiles [-level n] [-o directory]
  elevation x y [x y]...

`)
	flag.PrintDefaults()
}

func run() error {
	flag.BoolVar(&hf, "h", false, "this help")
	flag.StringVar(&configPath, "c", "./conf/conf.toml", "set config `file`")
	flag.StringVar(&logLevel, "l", "info", "set log level")
	flag.Usage = usage
	flag.Parse()

	if hf || flag.NArg() == 0 {
		flag.Usage()
		return nil
	}

	conf, err := loadConf(configPath)
	if err != nil {
		return err
	}
	logger, err := newLogger(conf, logLevel)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	switch command, args := flag.Arg(0), flag.Args()[1:]; command {
	case "compose":
		return runCompose(ctx, conf, logger, args)
	case "tiles":
		return runTiles(ctx, conf, logger, args)
	case "elevation":
		return runElevation(ctx, conf, logger, args)
	default:
		return fmt.Errorf("%s: unknown command", command)
	}
}

func runCompose(ctx context.Context, conf *Conf, logger *logrus.Logger, args []string) error {
	flagSet := flag.NewFlagSet("compose", flag.ContinueOnError)
	sectorStr := flagSet.String("sector", "", "sector as minLat,maxLat,minLon,maxLon")
	size := flagSet.String("size", "512x512", "output size as WxH")
	format := flagSet.String("format", "", "output MIME type")
	output := flagSet.String("o", "", "output `file`")
	if err := flagSet.Parse(args); err != nil {
		return err
	}
	if *output == "" {
		return errors.New("compose: output file required")
	}

	server, err := newRasterServer(conf, logger)
	if err != nil {
		return err
	}
	defer server.Close()

	request := georaster.RasterRequest{
		MimeType: *format,
	}
	if request.MimeType == "" {
		request.MimeType = mimeTypeForFilename(*output)
	}
	if _, err := fmt.Sscanf(*size, "%dx%d", &request.Width, &request.Height); err != nil {
		return fmt.Errorf("%s: invalid size: %w", *size, err)
	}
	if *sectorStr != "" {
		request.Sector, err = parseSector(*sectorStr)
		if err != nil {
			return err
		}
	} else {
		var ok bool
		request.Sector, ok = server.Sector()
		if !ok {
			return errors.New("compose: no sources")
		}
	}

	data, err := server.Serve(ctx, request)
	if err != nil {
		return err
	}
	logger.WithField("sector", request.Sector).Infof("writing %s", *output)
	return os.WriteFile(*output, data, 0o666)
}

func runElevation(ctx context.Context, conf *Conf, logger *logrus.Logger, args []string) error {
	if len(args) == 0 || len(args)%2 != 0 {
		return errors.New("syntax: georaster elevation x y [x y]...")
	}
	coords := make([][]float64, 0, len(args)/2)
	for i := 0; i < len(args); i += 2 {
		x, err := strconv.ParseFloat(args[i], 64)
		if err != nil {
			return err
		}
		y, err := strconv.ParseFloat(args[i+1], 64)
		if err != nil {
			return err
		}
		coords = append(coords, []float64{x, y})
	}

	levelSet, err := newLevelSet(conf)
	if err != nil {
		return err
	}
	tiles, err := georaster.NewTiledRasterSet(levelSet, os.DirFS(conf.LevelSet.Root), georaster.PixelFormatElevation,
		georaster.WithLogger(logger),
		georaster.WithReaders(georaster.DefaultReaders()...),
	)
	if err != nil {
		return err
	}
	defer tiles.Close()

	elevationService, err := georaster.NewElevationService(tiles, conf.Elevation.CRS)
	if err != nil {
		return err
	}
	elevations, err := elevationService.Elevation(ctx, coords)
	if err != nil {
		return err
	}
	for _, elevation := range elevations {
		fmt.Println(elevation)
	}
	return nil
}

func newRasterServer(conf *Conf, logger *logrus.Logger) (*georaster.RasterServer, error) {
	pixelFormat, err := parsePixelFormat(conf.Server.PixelFormat)
	if err != nil {
		return nil, err
	}
	cache, err := georaster.NewRasterCache(conf.Cache.Capacity)
	if err != nil {
		return nil, err
	}
	var decoderOptions []georaster.DecoderOption
	if conf.Cache.MaxDecodeBytes > 0 {
		decoderOptions = append(decoderOptions, georaster.WithMaxDecodeBytes(conf.Cache.MaxDecodeBytes))
	}
	if pixelFormat == georaster.PixelFormatImage {
		decoderOptions = append(decoderOptions, georaster.WithMipMapping())
	}
	server, err := georaster.NewRasterServer(pixelFormat,
		georaster.WithLogger(logger),
		georaster.WithRasterCache(cache),
		georaster.WithReaders(georaster.DefaultReaders(decoderOptions...)...),
		georaster.WithResponseCacheSize(conf.Cache.ResponseCacheSize),
	)
	if err != nil {
		return nil, err
	}

	for _, sourceConf := range conf.Sources {
		source, err := newSource(sourceConf.Path)
		if err != nil {
			return nil, err
		}
		var metadata *georaster.Metadata
		if len(sourceConf.Sector) != 0 {
			sector, err := sectorFromSlice(sourceConf.Sector)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", sourceConf.Path, err)
			}
			metadata = &georaster.Metadata{}
			metadata.SetSector(sector)
		}
		switch ok, err := server.AddSource(source, metadata); {
		case err != nil:
			return nil, err
		case !ok:
			logger.WithField("source", sourceConf.Path).Warn("skipping unsupported source")
		default:
			logger.WithField("source", sourceConf.Path).Debug("added source")
		}
	}
	return server, nil
}

func newSource(path string) (georaster.Source, error) {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return georaster.NewURLSource(path)
	}
	return georaster.NewFileSource(os.DirFS(filepath.Dir(path)), filepath.Base(path)), nil
}

func newLevelSet(conf *Conf) (*georaster.LevelSet, error) {
	var params georaster.LevelSetParams
	switch preset := conf.LevelSet.Preset; preset {
	case "earth-elevations":
		params = georaster.EarthElevationsParams()
	case "blue-marble":
		params = georaster.BlueMarbleParams()
	case "":
		sector, err := sectorFromSlice(conf.LevelSet.Sector)
		if err != nil {
			return nil, err
		}
		params = georaster.LevelSetParams{
			Sector:             sector,
			LevelZeroTileDelta: georaster.LatLon{Lat: conf.LevelSet.LevelZeroTileDelta, Lon: conf.LevelSet.LevelZeroTileDelta},
			NumLevels:          conf.LevelSet.NumLevels,
			TileWidth:          conf.LevelSet.TileWidth,
			TileHeight:         conf.LevelSet.TileHeight,
			CacheName:          conf.LevelSet.CacheName,
			FormatSuffix:       conf.LevelSet.FormatSuffix,
			PathTemplate:       conf.LevelSet.PathTemplate,
		}
	default:
		return nil, fmt.Errorf("%s: unknown level set preset", preset)
	}
	if conf.LevelSet.Limits != "" {
		data, err := os.ReadFile(conf.LevelSet.Limits)
		if err != nil {
			return nil, err
		}
		params.Limits, err = georaster.ResolutionLimitsFromGeoJSON(data, conf.LevelSet.DefaultMaxLevel)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", conf.LevelSet.Limits, err)
		}
	}
	return georaster.NewLevelSet(params)
}

func parsePixelFormat(s string) (georaster.PixelFormat, error) {
	switch strings.ToLower(s) {
	case "image", "imagery":
		return georaster.PixelFormatImage, nil
	case "elevation":
		return georaster.PixelFormatElevation, nil
	default:
		return georaster.PixelFormatUnknown, fmt.Errorf("%s: unknown pixel format", s)
	}
}

func parseSector(s string) (georaster.Sector, error) {
	fields := strings.Split(s, ",")
	values := make([]float64, len(fields))
	for i, field := range fields {
		value, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
		if err != nil {
			return georaster.Sector{}, fmt.Errorf("%s: invalid sector: %w", s, err)
		}
		values[i] = value
	}
	return sectorFromSlice(values)
}

func sectorFromSlice(values []float64) (georaster.Sector, error) {
	if len(values) != 4 {
		return georaster.Sector{}, fmt.Errorf("sector has %d values, want 4", len(values))
	}
	return georaster.NewSector(values[0], values[1], values[2], values[3])
}

func mimeTypeForFilename(filename string) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".jpg", ".jpeg":
		return georaster.MimeTypeJPEG
	case ".tif", ".tiff":
		return georaster.MimeTypeTIFF
	case ".bil":
		return georaster.MimeTypeBIL16
	default:
		return georaster.MimeTypePNG
	}
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
