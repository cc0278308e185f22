package logx

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"

	"gopkg.in/natefinch/lumberjack.v2"
)

type Options struct {
	File      string
	MaxSizeMB int
	MaxAgeDay int
	Console   io.Writer
}

// New builds a logger writing to the console and to a rotating file.
// An empty File logs to the console only.
func New(opts Options) (*log.Logger, io.Closer, error) {
	console := opts.Console
	if console == nil {
		console = os.Stderr
	}
	if opts.File == "" {
		return log.New(console, "", log.LstdFlags), io.NopCloser(nil), nil
	}

	if err := os.MkdirAll(filepath.Dir(opts.File), 0o755); err != nil {
		return nil, nil, fmt.Errorf("log dir: %w", err)
	}

	lj := &lumberjack.Logger{
		Filename:   opts.File,
		MaxSize:    opts.MaxSizeMB,
		MaxBackups: 3,
		MaxAge:     opts.MaxAgeDay,
		Compress:   true,
	}
	return log.New(io.MultiWriter(console, lj), "", log.LstdFlags), lj, nil
}
