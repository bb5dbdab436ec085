package main

import (
	"io"
	"os"
	"path/filepath"
	"time"

	nested "github.com/antonfisher/nested-logrus-formatter"
	"github.com/shiena/ansicolor"
	"github.com/sirupsen/logrus"
)

// newLogger returns a logger writing to the terminal and to a daily file in
// logDir, if set.
func newLogger(conf *Conf, logLevel string) (*logrus.Logger, error) {
	logger := logrus.New()
	logger.SetFormatter(&nested.Formatter{
		HideKeys:        true,
		ShowFullLevel:   true,
		TimestampFormat: "2006-01-02 15:04:05.000",
	})

	var writers []io.Writer
	if logDir := conf.Output.LogDir; logDir != "" {
		if err := os.MkdirAll(logDir, 0o777); err != nil {
			return nil, err
		}
		filename := filepath.Join(logDir, time.Now().Format("2006-01-02.log"))
		file, err := os.OpenFile(filename, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o666)
		if err != nil {
			return nil, err
		}
		writers = append(writers, file)
	}
	if conf.Output.OutputTerminal {
		writers = append(writers, os.Stderr)
	}
	logger.SetOutput(ansicolor.NewAnsiColorWriter(io.MultiWriter(writers...)))

	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
	return logger, nil
}
