// Package logger provides the process-wide structured logger. Verbose mode
// logs to stderr; otherwise each process logs to its own unique temp file,
// mirroring the original reference implementation's mkstemp("/tmp/%s_XXXXXX")
// log-file convention.
package logger

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

var (
	log     zerolog.Logger
	logFile *os.File
)

// Init configures the global logger. component names the process
// ("controller" or "worker"), used both as a structured field and as the
// temp-file name prefix. When verbose is true, logs go to stderr in
// human-readable form; otherwise they go to a unique temp file and
// Path() reports where.
func Init(component, level string, verbose bool) error {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)

	var output io.Writer
	if verbose {
		output = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	} else {
		f, err := os.CreateTemp("", fmt.Sprintf("%s-*.log", component))
		if err != nil {
			return fmt.Errorf("logger: create log file: %w", err)
		}
		logFile = f
		output = f
	}

	log = zerolog.New(output).
		With().
		Timestamp().
		Str("component", component).
		Logger()
	return nil
}

// Path returns the temp log file path, or "" when logging to stderr.
func Path() string {
	if logFile == nil {
		return ""
	}
	return logFile.Name()
}

// Close flushes and closes the log file, if one is open.
func Close() error {
	if logFile == nil {
		return nil
	}
	return logFile.Close()
}

func Get() *zerolog.Logger {
	return &log
}

func WithWorker(workerID string) zerolog.Logger {
	return log.With().Str("worker_id", workerID).Logger()
}

func WithTaskName(taskName string) zerolog.Logger {
	return log.With().Str("task_name", taskName).Logger()
}

func Debug() *zerolog.Event { return log.Debug() }
func Info() *zerolog.Event  { return log.Info() }
func Warn() *zerolog.Event  { return log.Warn() }
func Error() *zerolog.Event { return log.Error() }
func Fatal() *zerolog.Event { return log.Fatal() }
