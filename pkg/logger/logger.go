package logger

import (
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Package-level logger shared by the whole module. Init picks the output
// format from the runtime environment; before Init is called a sane
// console logger is already in place so early code can log.
var (
	mu  sync.RWMutex
	log = newConsoleLogger()
)

func newConsoleLogger() zerolog.Logger {
	writer := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	return zerolog.New(writer).With().Timestamp().Logger()
}

func newJSONLogger() zerolog.Logger {
	return zerolog.New(os.Stderr).With().Timestamp().Logger()
}

// Init configures the global logger. Production environments emit JSON
// lines, everything else gets the human-readable console writer.
func Init(environment string, debug bool) {
	level := zerolog.InfoLevel
	if debug {
		level = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(level)

	mu.Lock()
	defer mu.Unlock()
	if strings.EqualFold(environment, "production") {
		log = newJSONLogger()
	} else {
		log = newConsoleLogger()
	}
}

func current() zerolog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return log
}

// withFields attaches alternating key/value pairs to an event. Keys that
// are not strings are skipped rather than panicking, a trailing dangling
// key is ignored.
func withFields(ev *zerolog.Event, keysAndValues []interface{}) *zerolog.Event {
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		key, ok := keysAndValues[i].(string)
		if !ok {
			continue
		}
		ev = ev.Interface(key, keysAndValues[i+1])
	}
	return ev
}

func Debug(msg string, keysAndValues ...interface{}) {
	l := current()
	withFields(l.Debug(), keysAndValues).Msg(msg)
}

func Info(msg string, keysAndValues ...interface{}) {
	l := current()
	withFields(l.Info(), keysAndValues).Msg(msg)
}

// Infof logs a formatted message at info level.
func Infof(format string, args ...interface{}) {
	l := current()
	l.Info().Msgf(format, args...)
}

func Warn(msg string, keysAndValues ...interface{}) {
	l := current()
	withFields(l.Warn(), keysAndValues).Msg(msg)
}

func Error(msg string, err error, keysAndValues ...interface{}) {
	l := current()
	withFields(l.Error().Err(err), keysAndValues).Msg(msg)
}

// Fatal logs the message and terminates the process.
func Fatal(msg string, err error, keysAndValues ...interface{}) {
	l := current()
	withFields(l.Fatal().Err(err), keysAndValues).Msg(msg)
}
