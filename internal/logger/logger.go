package logger

import (
	"fmt"

	"github.com/newthinker/tradewatch/internal/config"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// New creates a new zap logger
func New(development bool) (*zap.Logger, error) {
	var cfg zap.Config

	if development {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		cfg = zap.NewProductionConfig()
	}

	return cfg.Build()
}

// Must creates a logger or panics
func Must(development bool) *zap.Logger {
	log, err := New(development)
	if err != nil {
		panic(err)
	}
	return log
}

// NewWithConfig builds a logger from the log section. When a file is set,
// output goes to a rotating file instead of stderr; the terminal dashboard
// needs this because it owns the screen.
func NewWithConfig(cfg config.LogConfig, development bool) (*zap.Logger, error) {
	if cfg.File == "" {
		log, err := New(development)
		if err != nil {
			return nil, err
		}
		if cfg.Level == "" {
			return log, nil
		}
		level, err := zapcore.ParseLevel(cfg.Level)
		if err != nil {
			return nil, fmt.Errorf("parsing log level: %w", err)
		}
		return log.WithOptions(zap.IncreaseLevel(level)), nil
	}

	level := zapcore.InfoLevel
	if development {
		level = zapcore.DebugLevel
	}
	if cfg.Level != "" && !development {
		parsed, err := zapcore.ParseLevel(cfg.Level)
		if err != nil {
			return nil, fmt.Errorf("parsing log level: %w", err)
		}
		level = parsed
	}

	sink := zapcore.AddSync(&lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   cfg.Compress,
	})
	encoder := zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
	return zap.New(zapcore.NewCore(encoder, sink, level), zap.AddCaller()), nil
}
