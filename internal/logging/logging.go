// Package logging builds the process logger: a rotating log file plus a
// channel of lines for the dashboard.
package logging

import (
	"errors"
	"io"
	"log"
	"os"
	"path/filepath"

	"gopkg.in/natefinch/lumberjack.v2"
)

const uiLineBuffer = 256

type Options struct {
	// File is the rotating log file. Empty disables file logging.
	File       string
	MaxSizeMB  int
	MaxBackups int
	// Echo also writes to this writer, e.g. os.Stderr for headless runs.
	Echo io.Writer
}

// Output owns the logger's sinks.
type Output struct {
	Logger *log.Logger
	ui     *ChannelWriter
	file   *lumberjack.Logger
}

func New(opts Options) (*Output, error) {
	out := &Output{ui: NewChannelWriter(uiLineBuffer)}
	writers := []io.Writer{out.ui}

	if opts.File != "" {
		if err := os.MkdirAll(filepath.Dir(opts.File), 0o755); err != nil {
			return nil, err
		}
		out.file = &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    opts.MaxSizeMB,
			MaxBackups: opts.MaxBackups,
		}
		writers = append(writers, out.file)
	}
	if opts.Echo != nil {
		writers = append(writers, opts.Echo)
	}

	out.Logger = log.New(io.MultiWriter(writers...), "", log.Ltime|log.Lmicroseconds)
	return out, nil
}

// UILines streams log lines for the dashboard.
func (o *Output) UILines() <-chan string {
	return o.ui.Lines()
}

func (o *Output) Close() error {
	var errs []error
	errs = append(errs, o.ui.Close())
	if o.file != nil {
		errs = append(errs, o.file.Close())
	}
	return errors.Join(errs...)
}
