// Package logging configures the global zerolog logger
package logging

import (
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options selects the log destinations
type Options struct {
	Level      string
	File       string
	MaxSizeMB  int
	MaxBackups int

	// Console switches to human readable output
	Console bool
	// Out receives log output, stderr when nil
	Out io.Writer
}

// Init sets the global level and replaces log.Logger. The returned closer
// releases the log file, if any.
func Init(opts Options) (io.Closer, error) {
	level := zerolog.InfoLevel
	if opts.Level != "" {
		parsed, err := zerolog.ParseLevel(opts.Level)
		if err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", opts.Level, err)
		}
		level = parsed
	}
	zerolog.SetGlobalLevel(level)

	out := opts.Out
	if out == nil {
		out = os.Stderr
	}
	if opts.Console {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: "15:04:05.000"}
	}

	writers := []io.Writer{out}
	var closer io.Closer = nopCloser{}
	if opts.File != "" {
		file := &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    max(opts.MaxSizeMB, 1),
			MaxBackups: opts.MaxBackups,
		}
		writers = append(writers, file)
		closer = file
	}

	log.Logger = zerolog.New(io.MultiWriter(writers...)).
		With().Timestamp().Caller().Logger()

	return closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
