// Package logging configures the process-wide structured logger and the
// redaction rules applied to request/response traces.
package logging

import (
	"os"

	"github.com/mattn/go-isatty"
	"github.com/sirupsen/logrus"
)

// Options control logger construction.
type Options struct {
	Level string // debug, info, warn, error; default info
	JSON  bool   // force JSON output regardless of terminal detection
}

// New builds the root logger. Output is colorized text on a terminal and
// plain timestamped text otherwise; JSON when requested.
func New(opts Options) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(os.Stderr)

	level, err := logrus.ParseLevel(opts.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)

	if opts.JSON {
		log.SetFormatter(&logrus.JSONFormatter{})
		return log
	}

	tty := isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd())
	log.SetFormatter(&logrus.TextFormatter{
		ForceColors:     tty,
		DisableColors:   !tty,
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05.000",
	})
	return log
}

// Discard returns a logger whose output is dropped; used in tests.
func Discard() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(nopWriter{})
	return log
}

type nopWriter struct{}

func (nopWriter) Write(p []byte) (int, error) { return len(p), nil }
