package cfg

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/natefinch/lumberjack.v2"
)

// SetupLogger installs the default slog logger. When a log file is
// configured, output is also written to it with size based rotation.
// The returned closer releases the file.
func SetupLogger(cfg *Cfg) io.Closer {
	level := slog.LevelInfo
	if cfg.Debug {
		level = slog.LevelDebug
	}

	var (
		output  io.Writer = os.Stderr
		closer  io.Closer = nopCloser{}
		fileErr error
	)
	if cfg.LogFile != "" {
		if fileErr = os.MkdirAll(filepath.Dir(cfg.LogFile), 0755); fileErr == nil {
			fileWriter := &lumberjack.Logger{
				Filename:   cfg.LogFile,
				MaxSize:    64, // MB
				MaxBackups: 3,
				MaxAge:     7, // days
				Compress:   true,
			}
			output = io.MultiWriter(os.Stderr, fileWriter)
			closer = fileWriter
		}
	}

	logger := slog.New(slog.NewTextHandler(output, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	if fileErr != nil {
		slog.Warn("Log file disabled", "path", cfg.LogFile, "error", fileErr)
	}
	return closer
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
