package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/teris-io/shortid"
	pb "gopkg.in/cheggaaa/pb.v1"

	"github.com/twpayne/go-georaster"
)

// A tilesTask renders every tile of one level of a level set from a
// RasterServer.
type tilesTask struct {
	id        string
	server    *georaster.RasterServer
	levelSet  *georaster.LevelSet
	level     *georaster.Level
	directory string
	mimeType  string
	suffix    string
	workers   int
	logger    logrus.FieldLogger
	failures  atomic.Int64
}

func runTiles(ctx context.Context, conf *Conf, logger *logrus.Logger, args []string) error {
	flagSet := flag.NewFlagSet("tiles", flag.ContinueOnError)
	levelNumber := flagSet.Int("level", 0, "level `number`")
	output := flagSet.String("o", conf.Output.Directory, "output `directory`")
	if err := flagSet.Parse(args); err != nil {
		return err
	}

	server, err := newRasterServer(conf, logger)
	if err != nil {
		return err
	}
	defer server.Close()
	levelSet, err := newLevelSet(conf)
	if err != nil {
		return err
	}
	level, ok := levelSet.Level(*levelNumber)
	if !ok {
		return fmt.Errorf("level %d: out of range", *levelNumber)
	}

	id, err := shortid.Generate()
	if err != nil {
		return err
	}
	mimeType := georaster.DefaultMimeType(server.PixelFormat())
	suffix := level.FormatSuffix()
	if suffix == "" {
		suffix = ".png"
		if server.PixelFormat() == georaster.PixelFormatElevation {
			suffix = ".bil"
		}
	}
	if server.PixelFormat() == georaster.PixelFormatImage {
		mimeType = mimeTypeForFilename(suffix)
	}

	task := &tilesTask{
		id:        id,
		server:    server,
		levelSet:  levelSet,
		level:     level,
		directory: *output,
		mimeType:  mimeType,
		suffix:    suffix,
		workers:   max(conf.Task.Workers, 1),
		logger:    logger.WithField("task", id),
	}
	return task.run(ctx)
}

func (t *tilesTask) run(ctx context.Context) error {
	sector, ok := t.server.Sector()
	if !ok {
		return errors.New("tiles: no sources")
	}
	tiles, err := t.levelSet.TilesInSector(sector, t.level.Number())
	if err != nil {
		return err
	}
	t.logger.Infof("level: %d, tiles: %d", t.level.Number(), len(tiles))

	bar := pb.New(len(tiles)).Prefix(fmt.Sprintf("Level %d : ", t.level.Number())).Postfix("\n")
	bar.SetRefreshRate(time.Second)
	bar.Start()

	var wg sync.WaitGroup
	workers := make(chan struct{}, t.workers)
loop:
	for _, tile := range tiles {
		select {
		case workers <- struct{}{}:
			wg.Add(1)
			go func() {
				defer func() {
					<-workers
					bar.Increment()
					wg.Done()
				}()
				if err := t.renderTile(ctx, tile); err != nil {
					t.failures.Add(1)
					t.logger.WithField("tile", tile.String()).WithError(err).Error("render")
				}
			}()
		case <-ctx.Done():
			t.logger.Info("canceled")
			break loop
		}
	}
	wg.Wait()
	bar.FinishPrint(fmt.Sprintf("Task %s level %d finished", t.id, t.level.Number()))

	if failures := t.failures.Load(); failures > 0 {
		return fmt.Errorf("%d tiles failed", failures)
	}
	return ctx.Err()
}

func (t *tilesTask) renderTile(ctx context.Context, tile *georaster.Tile) error {
	start := time.Now()
	data, err := t.server.Serve(ctx, georaster.RasterRequest{
		Width:    tile.Width(),
		Height:   tile.Height(),
		Sector:   tile.Sector,
		MimeType: t.mimeType,
	})
	if err != nil {
		return err
	}
	dir := filepath.Join(t.directory, strconv.Itoa(tile.Key.Level), strconv.Itoa(tile.Key.Row))
	if err := os.MkdirAll(dir, 0o777); err != nil {
		return err
	}
	filename := filepath.Join(dir, strconv.Itoa(tile.Key.Column)+t.suffix)
	if err := os.WriteFile(filename, data, 0o666); err != nil {
		return err
	}
	t.logger.Debugf("tile %s, %dms, %.2f kb", tile, time.Since(start).Milliseconds(), float64(len(data))/1024)
	return nil
}
