package main

import (
	"fmt"
	"os"

	"github.com/spf13/viper"
)

// A Conf is the command's configuration.
type Conf struct {
	Output struct {
		Directory      string `mapstructure:"directory"`
		LogDir         string `mapstructure:"logDir"`
		OutputTerminal bool   `mapstructure:"outputTerminal"`
	} `mapstructure:"output"`
	Task struct {
		Workers int `mapstructure:"workers"`
	} `mapstructure:"task"`
	Cache struct {
		Capacity          int64 `mapstructure:"capacity"`
		MaxDecodeBytes    int64 `mapstructure:"maxDecodeBytes"`
		ResponseCacheSize int   `mapstructure:"responseCacheSize"`
	} `mapstructure:"cache"`
	Server struct {
		PixelFormat string `mapstructure:"pixelFormat"`
	} `mapstructure:"server"`
	Sources []struct {
		Path   string    `mapstructure:"path"`
		Sector []float64 `mapstructure:"sector"`
	} `mapstructure:"sources"`
	LevelSet struct {
		Preset             string    `mapstructure:"preset"`
		Root               string    `mapstructure:"root"`
		Sector             []float64 `mapstructure:"sector"`
		LevelZeroTileDelta float64   `mapstructure:"levelZeroTileDelta"`
		NumLevels          int       `mapstructure:"numLevels"`
		TileWidth          int       `mapstructure:"tileWidth"`
		TileHeight         int       `mapstructure:"tileHeight"`
		CacheName          string    `mapstructure:"cacheName"`
		FormatSuffix       string    `mapstructure:"formatSuffix"`
		PathTemplate       string    `mapstructure:"pathTemplate"`
		Limits             string    `mapstructure:"limits"`
		DefaultMaxLevel    int       `mapstructure:"defaultMaxLevel"`
	} `mapstructure:"levelSet"`
	Elevation struct {
		CRS string `mapstructure:"crs"`
	} `mapstructure:"elevation"`
}

// loadConf reads the configuration from cfgFile.
func loadConf(cfgFile string) (*Conf, error) {
	if _, err := os.Stat(cfgFile); err != nil {
		return nil, fmt.Errorf("config file: %w", err)
	}
	v := viper.New()
	v.SetConfigType("toml")
	v.SetConfigFile(cfgFile)
	v.SetEnvPrefix("georaster")
	v.AutomaticEnv()
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("%s: %w", v.ConfigFileUsed(), err)
	}

	v.SetDefault("output.directory", "output")
	v.SetDefault("output.outputTerminal", true)
	v.SetDefault("task.workers", 4)
	v.SetDefault("cache.capacity", 256<<20)
	v.SetDefault("cache.responseCacheSize", 64)
	v.SetDefault("server.pixelFormat", "image")
	v.SetDefault("levelSet.root", ".")
	v.SetDefault("levelSet.sector", []float64{-90, 90, -180, 180})
	v.SetDefault("levelSet.levelZeroTileDelta", 36)
	v.SetDefault("levelSet.numLevels", 5)
	v.SetDefault("levelSet.tileWidth", 512)
	v.SetDefault("levelSet.tileHeight", 512)
	v.SetDefault("levelSet.defaultMaxLevel", 0)
	v.SetDefault("elevation.crs", "EPSG:4326")

	var conf Conf
	if err := v.Unmarshal(&conf); err != nil {
		return nil, err
	}
	return &conf, nil
}
