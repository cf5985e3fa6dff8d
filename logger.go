package main

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	AtomicLevel = zap.NewAtomicLevelAt(zap.InfoLevel)
	Logger      = newLogger(AtomicLevel)
)

func newLogger(level zap.AtomicLevel) *zap.SugaredLogger {
	config := zap.Config{
		Level:    level,
		Encoding: "console",
		EncoderConfig: zapcore.EncoderConfig{
			MessageKey:     "M",
			LevelKey:       "L",
			TimeKey:        "T",
			LineEnding:     zapcore.DefaultLineEnding,
			EncodeLevel:    zapcore.CapitalLevelEncoder,
			EncodeTime:     zapcore.ISO8601TimeEncoder,
			EncodeDuration: zapcore.StringDurationEncoder,
		},
		OutputPaths:      []string{"stderr"},
		ErrorOutputPaths: []string{"stderr"},
	}
	logger, err := config.Build()
	if err != nil {
		panic(fmt.Errorf("failed to initialize logger: %w", err))
	}
	return logger.Sugar()
}

// SetLogLevel adjusts the global log level; an unparseable value keeps the
// current one.
func SetLogLevel(level string) {
	parsed, err := zap.ParseAtomicLevel(level)
	if err != nil {
		Logger.Warnf("failed to parse log level %q, keeping %v: %v", level, AtomicLevel.Level(), err)
		return
	}
	AtomicLevel.SetLevel(parsed.Level())
}
