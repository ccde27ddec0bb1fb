package storage

import (
	"fmt"
	"strings"

	"github.com/fystack/peermon/pkg/logger"
)

// quietBadgerLogger keeps badger's chatty INFO/DEBUG output at debug
// level, only real problems surface at their own severity.
type quietBadgerLogger struct{}

func newQuietBadgerLogger() *quietBadgerLogger {
	return &quietBadgerLogger{}
}

func (l *quietBadgerLogger) Errorf(format string, args ...interface{}) {
	logger.Error("badger: "+trimmedf(format, args...), nil)
}

func (l *quietBadgerLogger) Warningf(format string, args ...interface{}) {
	logger.Warn("badger: " + trimmedf(format, args...))
}

func (l *quietBadgerLogger) Infof(format string, args ...interface{}) {
	logger.Debug("badger: " + trimmedf(format, args...))
}

func (l *quietBadgerLogger) Debugf(format string, args ...interface{}) {
	logger.Debug("badger: " + trimmedf(format, args...))
}

func trimmedf(format string, args ...interface{}) string {
	return strings.TrimRight(fmt.Sprintf(format, args...), "\n")
}
