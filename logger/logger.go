package logger

import (
	"io"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger is a thin wrapper that holds both the raw zap.Logger and its
// "Sugared" counterpart for convenience.
type Logger struct {
	*zap.Logger
	*zap.SugaredLogger
}

// Options controls where log entries go.
type Options struct {
	// Level is one of "debug", "info", "warn", "error" (case-insensitive).
	Level string
	// File, when set, receives a copy of every entry. It is rotated by
	// size and old files are compressed.
	File       string
	MaxSizeMB  int
	MaxBackups int
	// Console is where entries are written besides the file. Nil means
	// stderr so the interactive prompt on stdout stays readable.
	Console io.Writer
}

// New creates a logger writing JSON entries with ISO-8601 timestamps.
func New(opts Options) (*Logger, error) {
	var zapLevel zapcore.Level
	if err := zapLevel.UnmarshalText([]byte(opts.Level)); err != nil {
		return nil, err
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "ts"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
	enc := zapcore.NewJSONEncoder(encCfg)

	console := opts.Console
	if console == nil {
		console = os.Stderr
	}
	cores := []zapcore.Core{
		zapcore.NewCore(enc, zapcore.Lock(zapcore.AddSync(console)), zapLevel),
	}
	if opts.File != "" {
		cores = append(cores, zapcore.NewCore(enc.Clone(), zapcore.AddSync(rotatingFile(opts)), zapLevel))
	}

	zapLogger := zap.New(zapcore.NewTee(cores...), zap.AddCaller())
	return &Logger{
		Logger:        zapLogger,
		SugaredLogger: zapLogger.Sugar(),
	}, nil
}

func rotatingFile(opts Options) *lumberjack.Logger {
	maxSize := opts.MaxSizeMB
	if maxSize <= 0 {
		maxSize = 10
	}
	backups := opts.MaxBackups
	if backups <= 0 {
		backups = 3
	}
	return &lumberjack.Logger{
		Filename:   opts.File,
		MaxSize:    maxSize,
		MaxBackups: backups,
		Compress:   true,
	}
}

// Flush forces any buffered log entries to be written.
// Call this from `main` just before the program exits.
func Flush(l *zap.Logger) {
	// Sync on a console core can fail with EINVAL; nothing to do about it.
	_ = l.Sync()
}
