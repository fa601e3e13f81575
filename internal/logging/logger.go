// Package logging builds the process-wide zap logger, optionally rotating
// to disk via lumberjack when a file path is configured.
package logging

import (
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/thornxyz/revera/internal/config"
)

var (
	logger *zap.Logger
	once   sync.Once
)

// Setup initializes the process-wide logger from observability config. Safe
// to call multiple times; only the first call takes effect.
func Setup(cfg config.ObservabilityConfig) *zap.Logger {
	once.Do(func() {
		level := parseLevel(cfg.Logging.Level)

		encoderCfg := zapcore.EncoderConfig{
			TimeKey:        "time",
			LevelKey:       "level",
			NameKey:        "logger",
			CallerKey:      "caller",
			MessageKey:     "msg",
			StacktraceKey:  "stacktrace",
			LineEnding:     zapcore.DefaultLineEnding,
			EncodeLevel:    zapcore.CapitalLevelEncoder,
			EncodeTime:     zapcore.ISO8601TimeEncoder,
			EncodeDuration: zapcore.StringDurationEncoder,
			EncodeCaller:   zapcore.ShortCallerEncoder,
		}

		var encoder zapcore.Encoder
		if cfg.Logging.Format == "console" {
			encoder = zapcore.NewConsoleEncoder(encoderCfg)
		} else {
			encoder = zapcore.NewJSONEncoder(encoderCfg)
		}

		var cores []zapcore.Core
		cores = append(cores, zapcore.NewCore(encoder, zapcore.Lock(os.Stdout), level))

		if cfg.Logging.FilePath != "" {
			if err := os.MkdirAll(filepath.Dir(cfg.Logging.FilePath), 0o755); err == nil {
				fileWriter := zapcore.AddSync(&lumberjack.Logger{
					Filename:   cfg.Logging.FilePath,
					MaxSize:    100,
					MaxBackups: 5,
					MaxAge:     14,
					Compress:   true,
				})
				cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(encoderCfg), fileWriter, level))
			}
		}

		logger = zap.New(zapcore.NewTee(cores...), zap.AddCaller())
	})
	return logger
}

// Get returns the process logger, defaulting to a JSON logger at info
// level if Setup was never called.
func Get() *zap.Logger {
	if logger == nil {
		var cfg config.ObservabilityConfig
		cfg.Logging.Level = "info"
		cfg.Logging.Format = "json"
		return Setup(cfg)
	}
	return logger
}

func parseLevel(level string) zapcore.Level {
	switch level {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}
