// Package logging constructs the component loggers used across the engine.
package logging

import (
	"log"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"
)

// New returns a logger with the given bracketed prefix, e.g. "[watch] ".
// When logFile is non-empty, output goes to a size-rotated file; otherwise
// to stderr.
func New(prefix, logFile string) *log.Logger {
	if logFile == "" {
		return log.New(os.Stderr, prefix, log.LstdFlags)
	}
	return log.New(&lumberjack.Logger{
		Filename:   logFile,
		MaxSize:    10, // megabytes
		MaxBackups: 3,
		MaxAge:     30, // days
	}, prefix, log.LstdFlags)
}
