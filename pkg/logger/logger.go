// Package logger builds the process-wide structured logger: JSON output
// via zap, rotated to disk via lumberjack.
package logger

import (
	"fmt"
	"os"

	"github.com/natefinch/lumberjack"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config controls where and how logs are written and rotated.
type Config struct {
	Path       string `yaml:"path"`
	Level      string `yaml:"level"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
	Console    bool   `yaml:"console"`
}

// DefaultConfig returns sane rotation defaults: 100MB per file, 5 backups,
// 30 days retention, info level, also echoed to stdout.
func DefaultConfig() Config {
	return Config{
		Path:       "beacon.log",
		Level:      "info",
		MaxSizeMB:  100,
		MaxBackups: 5,
		MaxAgeDays: 30,
		Compress:   true,
		Console:    true,
	}
}

var levelMap = map[string]zapcore.Level{
	"debug": zapcore.DebugLevel,
	"info":  zapcore.InfoLevel,
	"warn":  zapcore.WarnLevel,
	"error": zapcore.ErrorLevel,
	"fatal": zapcore.FatalLevel,
}

func resolveLevel(name string) zapcore.Level {
	if lvl, ok := levelMap[name]; ok {
		return lvl
	}
	return zapcore.InfoLevel
}

// New builds a *zap.Logger writing rotated JSON to cfg.Path, and mirrored
// to stdout when cfg.Console is set.
func New(cfg Config) (*zap.Logger, error) {
	enabler := zap.LevelEnablerFunc(func(lvl zapcore.Level) bool {
		return lvl >= resolveLevel(cfg.Level)
	})

	encoderConfig := zapcore.EncoderConfig{
		TimeKey:        "ts",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.SecondsDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}

	hook := &lumberjack.Logger{
		Filename:   cfg.Path,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   cfg.Compress,
	}

	fileCore := zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig), zapcore.AddSync(hook), enabler)
	cores := []zapcore.Core{fileCore}
	if cfg.Console {
		consoleCore := zapcore.NewCore(zapcore.NewConsoleEncoder(encoderConfig), zapcore.AddSync(os.Stdout), enabler)
		cores = append(cores, consoleCore)
	}

	return zap.New(zapcore.NewTee(cores...), zap.AddCaller()), nil
}

// Nop returns a logger that discards everything, for tests and callers
// that have not wired a real sink.
func Nop() *zap.Logger {
	return zap.NewNop()
}

// Banner prints the startup banner the way the teacher's own CLI does,
// now through the structured logger rather than raw stdout writes.
func Banner(log *zap.Logger, title, version string) {
	log.Info(fmt.Sprintf("%s starting", title), zap.String("version", version))
}
