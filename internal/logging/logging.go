// Package logging configures the process-wide logger. Messages go to
// a log file and, unless disabled, to stdout as well, so operators can
// tail either.
package logging

import (
	"fmt"
	"io"
	"os"

	"github.com/op/go-logging"
)

const module = "mladapter"

var format = logging.MustStringFormatter("%{time:2006-01-02 15:04:05} [%{level}] %{message}")

// Init opens (or creates) the log file at path and wires the file and
// stdout backends. The returned logger is meant to be built once in
// main and passed around.
func Init(path string, toStdout bool) (*logging.Logger, error) {
	writer, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("cannot open log file %s: %w", path, err)
	}

	log := logging.MustGetLogger(module)
	logging.SetFormatter(format)

	fileBackend := logging.NewLogBackend(writer, "", 0)
	if toStdout {
		stdoutBackend := logging.NewLogBackend(os.Stdout, "", 0)
		logging.SetBackend(fileBackend, stdoutBackend)
	} else {
		logging.SetBackend(fileBackend)
	}
	logging.SetLevel(logging.INFO, module)

	return log, nil
}

// Discard returns a logger that writes nowhere. For tests.
func Discard() *logging.Logger {
	log := logging.MustGetLogger(module)
	logging.SetBackend(logging.NewLogBackend(io.Discard, "", 0))
	return log
}
