package core

import (
	"io"
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

var (
	once      sync.Once
	mu        sync.RWMutex
	singleton *log.Logger
)

// NewLogger builds a logger with the engine's default formatting. It is not
// installed anywhere; components that need their own sink use this directly.
func NewLogger(w io.Writer, level log.Level) *log.Logger {
	l := log.NewWithOptions(w, log.Options{
		ReportCaller:    true,
		ReportTimestamp: true,
		TimeFormat:      time.RFC3339,
		Prefix:          "Lumen 🔦 ",
	})
	l.SetLevel(level)
	return l
}

// InitLogging installs the process-wide logger. Only the first call has an
// effect, later calls return the already installed logger.
func InitLogging(w io.Writer, level log.Level) *log.Logger {
	once.Do(func() {
		mu.Lock()
		singleton = NewLogger(w, level)
		mu.Unlock()
	})
	return Logger()
}

// ShutdownLogging detaches the process-wide logger. Helpers called after
// shutdown fall back to the charmbracelet default logger.
func ShutdownLogging() {
	mu.Lock()
	singleton = nil
	mu.Unlock()
}

// Logger returns the process-wide logger, or the charmbracelet default when
// none is installed.
func Logger() *log.Logger {
	mu.RLock()
	defer mu.RUnlock()
	if singleton != nil {
		return singleton
	}
	return log.Default()
}

func LogDebug(msg string, args ...interface{}) {
	Logger().Debugf(msg, args...)
}

func LogInfo(msg string, args ...interface{}) {
	Logger().Infof(msg, args...)
}

func LogWarn(msg string, args ...interface{}) {
	Logger().Warnf(msg, args...)
}

func LogError(msg string, args ...interface{}) {
	Logger().Errorf(msg, args...)
}

func LogFatal(msg string, args ...interface{}) {
	Logger().Fatalf(msg, args...)
}
