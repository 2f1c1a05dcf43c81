package infra

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewLogger строит корневой zap логгер по LoggerConfig.
// AtomicLevel отдается наружу для горячей смены уровня.
func NewLogger(cfg LoggerConfig) (*zap.Logger, zap.AtomicLevel, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, zap.AtomicLevel{}, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}

	var zc zap.Config
	if cfg.Format == "console" {
		zc = zap.NewDevelopmentConfig()
	} else {
		zc = zap.NewProductionConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)

	logger, err := zc.Build()
	if err != nil {
		return nil, zap.AtomicLevel{}, fmt.Errorf("build logger: %w", err)
	}
	return logger.Named("vitals"), zc.Level, nil
}

// ApplyLevel меняет уровень на лету; неизвестный уровень игнорируется.
func ApplyLevel(atom zap.AtomicLevel, level string) bool {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil || atom.Level() == lvl {
		return false
	}
	atom.SetLevel(lvl)
	return true
}
