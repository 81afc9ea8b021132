// Package logger provides the structured logging surface used throughout
// the daemon: a package-level Tracef/Debugf/Infof/Warnf/Errorf API backed
// by log/slog, with a choice of text or JSON output and a severity filter
// that can be reconfigured at runtime.
package logger

import (
	"context"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Severity names the logging levels SetSeverity and Config accept, ranked
// from least to most verbose.
type Severity string

const (
	OFF     Severity = "OFF"
	ERROR   Severity = "ERROR"
	WARNING Severity = "WARNING"
	INFO    Severity = "INFO"
	DEBUG   Severity = "DEBUG"
	TRACE   Severity = "TRACE"
)

// slog has no native level below Debug, so TRACE and OFF are modeled as
// levels outside slog's normal Debug..Error range.
const (
	LevelTrace = slog.Level(-8)
	LevelDebug = slog.LevelDebug
	LevelInfo  = slog.LevelInfo
	LevelWarn  = slog.LevelWarn
	LevelError = slog.LevelError
	LevelOff   = slog.Level(12)
)

var severityLevels = map[Severity]slog.Level{
	OFF:     LevelOff,
	ERROR:   LevelError,
	WARNING: LevelWarn,
	INFO:    LevelInfo,
	DEBUG:   LevelDebug,
	TRACE:   LevelTrace,
}

var levelNames = map[slog.Level]string{
	LevelTrace: "TRACE",
	LevelDebug: "DEBUG",
	LevelInfo:  "INFO",
	LevelWarn:  "WARNING",
	LevelError: "ERROR",
}

type loggerFactory struct {
	format string // "text" or "json"
	level  Severity
	prefix string
}

func (f *loggerFactory) createJsonOrTextHandler(w io.Writer, programLevel *slog.LevelVar, prefix string) slog.Handler {
	opts := &slog.HandlerOptions{
		Level: programLevel,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			switch a.Key {
			case slog.LevelKey:
				level := a.Value.Any().(slog.Level)
				name, ok := levelNames[level]
				if !ok {
					name = level.String()
				}
				a.Key = "severity"
				a.Value = slog.StringValue(name)
			case slog.MessageKey:
				a.Key = "message"
				a.Value = slog.StringValue(prefix + a.Value.String())
			case slog.TimeKey:
				now := a.Value.Time()
				if f.format == "json" {
					return slog.Attr{
						Key: "timestamp",
						Value: slog.GroupValue(
							slog.Int64("seconds", now.Unix()),
							slog.Int64("nanos", int64(now.Nanosecond())),
						),
					}
				}
				a.Value = slog.StringValue(now.Format("01/02/2006 15:04:05.000000"))
			}
			return a
		},
	}

	if f.format == "json" {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

var programLevel = &slog.LevelVar{}

var defaultLoggerFactory = &loggerFactory{
	format: "text",
	level:  INFO,
}

var defaultLogger = slog.New(defaultLoggerFactory.createJsonOrTextHandler(os.Stdout, programLevel, ""))

func setLoggingLevel(level Severity, v *slog.LevelVar) {
	l, ok := severityLevels[level]
	if !ok {
		l = LevelInfo
	}
	v.Set(l)
}

// SetSeverity reconfigures the threshold below which log calls are dropped.
func SetSeverity(level Severity) {
	defaultLoggerFactory.level = level
	setLoggingLevel(level, programLevel)
}

// SetLogFormat switches between "text" and "json" output. An empty or
// unrecognized format is treated as "json".
func SetLogFormat(format string) {
	if format != "text" {
		format = "json"
	}
	defaultLoggerFactory.format = format
	defaultLogger = slog.New(defaultLoggerFactory.createJsonOrTextHandler(os.Stdout, programLevel, ""))
}

func logAt(level slog.Level, format string, v ...any) {
	defaultLogger.Log(context.Background(), level, fmt.Sprintf(format, v...))
}

func Tracef(format string, v ...any) { logAt(LevelTrace, format, v...) }
func Debugf(format string, v ...any) { logAt(LevelDebug, format, v...) }
func Infof(format string, v ...any)  { logAt(LevelInfo, format, v...) }
func Warnf(format string, v ...any)  { logAt(LevelWarn, format, v...) }
func Errorf(format string, v ...any) { logAt(LevelError, format, v...) }

// legacyWriter adapts the default slog logger into an io.Writer, so a
// *log.Logger handed to a collaborator that predates structured logging
// (jacobsa/fuse's MountConfig.DebugLogger/ErrorLogger) still flows through
// the same severity filter and output format as everything else.
type legacyWriter struct {
	level  slog.Level
	prefix string
}

func (w legacyWriter) Write(p []byte) (int, error) {
	defaultLogger.Log(context.Background(), w.level, w.prefix+string(p))
	return len(p), nil
}

// NewLegacyLogger returns a standard library *log.Logger that forwards into
// the package's structured logger at the given level, for collaborators
// (notably fuse.MountConfig.DebugLogger/ErrorLogger) that require the
// log.Logger interface rather than this package's own API.
func NewLegacyLogger(level slog.Level, prefix string) *log.Logger {
	return log.New(legacyWriter{level: level, prefix: prefix}, "", 0)
}

// RotateConfig configures lumberjack-backed log rotation for InitLogFile.
type RotateConfig struct {
	MaxFileSizeMB   int
	BackupFileCount int
	Compress        bool
}

// DefaultRotateConfig returns the default rotation settings: 512 MB files,
// 10 backups, no compression.
func DefaultRotateConfig() RotateConfig {
	return RotateConfig{MaxFileSizeMB: 512, BackupFileCount: 10, Compress: false}
}

// Config is the ambient logging configuration InitLogFile applies. The CLI
// does not build one; it is filled in by the caller of InitLogFile.
type Config struct {
	FilePath string
	Format   string
	Severity Severity
	Rotate   RotateConfig
}

// asyncBufferSize bounds how many pending log lines InitLogFile's writer
// will queue before it starts dropping them, so a burst of logging never
// makes the FUSE event loop wait on disk I/O.
const asyncBufferSize = 1000

// InitLogFile redirects the default logger to cfg.FilePath, rotating via
// lumberjack per cfg.Rotate and writing through a non-blocking AsyncLogger
// so log I/O never competes with the engine's own suspension points.
func InitLogFile(cfg Config) error {
	if cfg.FilePath == "" {
		return fmt.Errorf("logger: empty log file path")
	}

	lj := &lumberjack.Logger{
		Filename:   cfg.FilePath,
		MaxSize:    cfg.Rotate.MaxFileSizeMB,
		MaxBackups: cfg.Rotate.BackupFileCount,
		Compress:   cfg.Rotate.Compress,
	}

	format := cfg.Format
	if format == "" {
		format = "json"
	}
	defaultLoggerFactory = &loggerFactory{format: format, level: cfg.Severity}
	setLoggingLevel(cfg.Severity, programLevel)

	async := NewAsyncLogger(lj, asyncBufferSize)
	defaultLogger = slog.New(defaultLoggerFactory.createJsonOrTextHandler(async, programLevel, ""))
	return nil
}
