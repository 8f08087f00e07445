// Package logger builds the logrus logger used by every component.
package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// timestampFormat keeps millisecond precision without a zone
const timestampFormat = "2006-01-02 15:04:05.000"

// Config controls level, format and destination of log output
type Config struct {
	Level  string // trace, debug, info, warn, error
	Format string // text or json
	File   string // empty logs to stdout

	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// New creates a logger from cfg. An unknown level falls back to info.
func New(cfg Config) (*logrus.Logger, error) {
	log := logrus.New()

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
		if cfg.Level != "" {
			log.Warnf("Invalid log level '%s', using 'info' as default", cfg.Level)
		}
	}
	log.SetLevel(level)

	if err := setFormatter(log, cfg.Format); err != nil {
		return nil, err
	}
	if err := setOutput(log, cfg); err != nil {
		return nil, err
	}
	return log, nil
}

// Init builds a logger from cfg and installs its settings on the logrus
// standard logger as well, for packages that log without an injected logger.
func Init(cfg Config) (*logrus.Logger, error) {
	log, err := New(cfg)
	if err != nil {
		return nil, err
	}
	std := logrus.StandardLogger()
	std.SetLevel(log.GetLevel())
	std.SetFormatter(log.Formatter)
	std.SetOutput(log.Out)
	return log, nil
}

func setFormatter(log *logrus.Logger, format string) error {
	switch strings.ToLower(format) {
	case "json":
		log.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: timestampFormat,
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime:  "timestamp",
				logrus.FieldKeyLevel: "level",
				logrus.FieldKeyMsg:   "message",
			},
		})
	case "text", "":
		log.SetFormatter(&logrus.TextFormatter{
			TimestampFormat: timestampFormat,
			FullTimestamp:   true,
		})
	default:
		return fmt.Errorf("unsupported log format: %s", format)
	}
	return nil
}

func setOutput(log *logrus.Logger, cfg Config) error {
	if cfg.File == "" {
		log.SetOutput(os.Stdout)
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(cfg.File), 0o755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}

	maxSize := cfg.MaxSizeMB
	if maxSize <= 0 {
		maxSize = 100
	}
	rotating := &lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    maxSize,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   cfg.Compress,
	}

	// debug runs also echo to the console
	if log.GetLevel() >= logrus.DebugLevel {
		log.SetOutput(io.MultiWriter(os.Stdout, rotating))
	} else {
		log.SetOutput(rotating)
	}
	return nil
}
