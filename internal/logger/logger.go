// Package logger is the process-wide structured logger: charmbracelet/log
// on stderr, plus a rotating file when a log directory is configured.
package logger

import (
	"io"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	// Logger is the global logger instance
	Logger *log.Logger

	// file is the rotating writer, nil when logging to stderr only
	file *lumberjack.Logger
)

// Config holds logger configuration
type Config struct {
	Debug bool
	// Dir receives pet-feeder.log; empty logs to stderr only.
	Dir string
	// Quiet silences stderr when a file is configured.
	Quiet bool
}

// FileName is the log file written inside Config.Dir.
const FileName = "pet-feeder.log"

// Init initializes the global logger with the given configuration
func Init(cfg Config) error {
	var writer io.Writer = os.Stderr

	if cfg.Dir != "" {
		if err := os.MkdirAll(cfg.Dir, 0755); err != nil {
			return err
		}
		file = &lumberjack.Logger{
			Filename:   filepath.Join(cfg.Dir, FileName),
			MaxSize:    5, // megabytes; the Pi logs to an SD card
			MaxBackups: 3,
			MaxAge:     14, // days
			Compress:   true,
		}
		writer = file
		if !cfg.Quiet {
			writer = io.MultiWriter(os.Stderr, file)
		}
	}

	level := log.InfoLevel
	if cfg.Debug {
		level = log.DebugLevel
	}

	Logger = log.NewWithOptions(writer, log.Options{
		ReportCaller:    cfg.Debug,
		ReportTimestamp: true,
		Level:           level,
		Prefix:          "pet-feeder",
	})
	return nil
}

// Close flushes and closes the log file, if any.
func Close() error {
	if file == nil {
		return nil
	}
	err := file.Close()
	file = nil
	return err
}

// Writer returns an io.Writer that logs each line at info level, for
// libraries that want a plain writer (HTTP access logs).
func Writer() io.Writer {
	if Logger == nil {
		return io.Discard
	}
	return Logger.StandardLog(log.StandardLogOptions{ForceLevel: log.InfoLevel}).Writer()
}

// With returns a sub-logger carrying keyvals, or nil before Init.
func With(keyvals ...interface{}) *log.Logger {
	if Logger == nil {
		return nil
	}
	return Logger.With(keyvals...)
}

// Debug logs a debug message
func Debug(msg string, keyvals ...interface{}) {
	if Logger != nil {
		Logger.Debug(msg, keyvals...)
	}
}

// Info logs an info message
func Info(msg string, keyvals ...interface{}) {
	if Logger != nil {
		Logger.Info(msg, keyvals...)
	}
}

// Warn logs a warning message
func Warn(msg string, keyvals ...interface{}) {
	if Logger != nil {
		Logger.Warn(msg, keyvals...)
	}
}

// Error logs an error message
func Error(msg string, keyvals ...interface{}) {
	if Logger != nil {
		Logger.Error(msg, keyvals...)
	}
}

// Fatal logs a fatal error and exits
func Fatal(msg string, keyvals ...interface{}) {
	if Logger != nil {
		Logger.Fatal(msg, keyvals...)
	}
	os.Exit(1)
}
