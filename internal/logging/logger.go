// Package logging provides zap logger helpers: the process logger used by the
// CLI, and the per-run text logger that writes training logs to the console
// and to the run's logs.txt.
package logging

import (
	"fmt"
	"io"

	"go.uber.org/zap"
	"go.uber.org/zap/buffer"
	"go.uber.org/zap/zapcore"
)

// New builds a zap.Logger configured for development or production.
func New(development bool) (*zap.Logger, error) {
	if development {
		cfg := zap.NewDevelopmentConfig()
		cfg.EncoderConfig.TimeKey = "ts"
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		logger, err := cfg.Build()
		if err != nil {
			return nil, fmt.Errorf("build dev logger: %w", err)
		}
		return logger, nil
	}
	cfg := zap.NewProductionConfig()
	cfg.DisableStacktrace = false
	cfg.EncoderConfig.TimeKey = "ts"
	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("build prod logger: %w", err)
	}
	return logger, nil
}

// TimeLayout is the timestamp layout of run log lines (month-day time).
const TimeLayout = "01-02 15:04:05"

// RunLoggerConfig configures NewRunLogger.
type RunLoggerConfig struct {
	// Name prefixes every line.
	Name string
	// Console receives colorized lines; nil disables console output.
	Console io.Writer
	// FilePath receives plain lines; empty disables file output.
	FilePath string
	// Level is the minimum level written (default info).
	Level zapcore.Level
}

// RunLogger is a run-scoped logger plus the handle of its log file.
type RunLogger struct {
	*zap.Logger
	closeFile func()
}

// Close syncs the logger and releases the log file.
func (l *RunLogger) Close() error {
	if l == nil {
		return nil
	}
	err := l.Sync()
	if l.closeFile != nil {
		l.closeFile()
		l.closeFile = nil
	}
	if err != nil {
		return fmt.Errorf("sync run logger: %w", err)
	}
	return nil
}

// NewRunLogger builds a logger whose lines read
//
//	[name][01-02 15:04:05]INFO: message
//
// on both sinks. Console lines color the name, timestamp, severity and message.
func NewRunLogger(cfg RunLoggerConfig) (*RunLogger, error) {
	level := zap.NewAtomicLevelAt(cfg.Level)
	var cores []zapcore.Core
	closeFile := func() {}

	if cfg.FilePath != "" {
		ws, closeFn, err := zap.Open(cfg.FilePath)
		if err != nil {
			return nil, fmt.Errorf("open run log %s: %w", cfg.FilePath, err)
		}
		closeFile = closeFn
		cores = append(cores, zapcore.NewCore(newLineEncoder(cfg.Name, false), ws, level))
	}
	if cfg.Console != nil {
		// Terminals reject fsync; only the file is synced.
		console := zapcore.AddSync(struct{ io.Writer }{cfg.Console})
		cores = append(cores, zapcore.NewCore(newLineEncoder(cfg.Name, true), console, level))
	}
	if len(cores) == 0 {
		return &RunLogger{Logger: zap.NewNop(), closeFile: closeFile}, nil
	}
	return &RunLogger{Logger: zap.New(zapcore.NewTee(cores...)), closeFile: closeFile}, nil
}

const (
	ansiReset   = "\x1b[0m"
	ansiBold    = "\x1b[1m"
	ansiRed     = "\x1b[31m"
	ansiGreen   = "\x1b[32m"
	ansiYellow  = "\x1b[33m"
	ansiBlue    = "\x1b[34m"
	ansiMagenta = "\x1b[35m"
	ansiWhite   = "\x1b[37m"
)

var linePool = buffer.NewPool()

// lineEncoder lays entries out as "[name][time]LEVEL: message". Structured
// fields, if any, are appended after the message by the embedded encoder.
type lineEncoder struct {
	zapcore.Encoder
	name  string
	color bool
}

func newLineEncoder(name string, color bool) zapcore.Encoder {
	fields := zapcore.NewConsoleEncoder(zapcore.EncoderConfig{
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeDuration: zapcore.StringDurationEncoder,
	})
	return lineEncoder{Encoder: fields, name: name, color: color}
}

func (e lineEncoder) Clone() zapcore.Encoder {
	return lineEncoder{Encoder: e.Encoder.Clone(), name: e.name, color: e.color}
}

func (e lineEncoder) EncodeEntry(ent zapcore.Entry, fields []zapcore.Field) (*buffer.Buffer, error) {
	line := linePool.Get()
	e.paint(line, ansiBold+ansiMagenta, "["+e.name+"]")
	e.paint(line, ansiBlue, "["+ent.Time.Format(TimeLayout)+"]")
	e.paint(line, levelColor(ent.Level), ent.Level.CapitalString()+":")
	// Console lines butt the message against the colored level; file lines
	// separate them with a space.
	if !e.color {
		line.AppendByte(' ')
	}
	e.paint(line, ansiWhite, ent.Message)

	rest, err := e.Encoder.EncodeEntry(zapcore.Entry{}, fields)
	if err != nil {
		line.Free()
		return nil, err
	}
	defer rest.Free()
	if tail := rest.Bytes(); len(tail) > len(zapcore.DefaultLineEnding) {
		line.AppendByte(' ')
		_, _ = line.Write(tail)
	} else {
		line.AppendString(zapcore.DefaultLineEnding)
	}
	return line, nil
}

func (e lineEncoder) paint(line *buffer.Buffer, color, text string) {
	if e.color {
		line.AppendString(color)
		line.AppendString(text)
		line.AppendString(ansiReset)
		return
	}
	line.AppendString(text)
}

func levelColor(l zapcore.Level) string {
	switch {
	case l >= zapcore.ErrorLevel:
		return ansiRed
	case l == zapcore.WarnLevel:
		return ansiYellow
	case l == zapcore.DebugLevel:
		return ansiMagenta
	default:
		return ansiGreen
	}
}
