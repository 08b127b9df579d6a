// Package logx is the structured logger every daemon in this tree builds
// on top of logrus, rather than reaching for the stdlib log package or a
// bare fmt.Println trail.
package logx

import (
	"os"
	"sync"

	"github.com/sirupsen/logrus"
)

// Logger wraps a logrus.Entry with the component-tagged, variadic
// key/value calling convention used throughout this tree
// (logger.Info("message", "key", value, ...)) instead of logrus's own
// WithFields chaining at every call site.
type Logger struct {
	entry *logrus.Entry

	mu        sync.RWMutex
	verbosity bool
}

// NewLogger builds a Logger tagged with component, at the given level
// ("trace", "debug", "info", "warn", "error"). An unrecognized level
// falls back to info rather than erroring, since a daemon should never
// fail to start over a typo'd log_level.
func NewLogger(level, component string) *Logger {
	base := logrus.New()
	base.SetOutput(os.Stderr)
	base.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})
	base.SetLevel(parseLevel(level))

	return &Logger{
		entry: base.WithField("component", component),
	}
}

func parseLevel(level string) logrus.Level {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return logrus.InfoLevel
	}
	return lvl
}

// SetLevel changes the logger's minimum level at runtime, used when a
// daemon reloads configuration without restarting.
func (l *Logger) SetLevel(level string) {
	l.entry.Logger.SetLevel(parseLevel(level))
}

// SetJSON switches the output formatter to JSON, for deployments that
// ship logs to a collector instead of a terminal.
func (l *Logger) SetJSON() {
	l.entry.Logger.SetFormatter(&logrus.JSONFormatter{})
}

// SetVerbose toggles whether LogVerbose actually emits anything.
func (l *Logger) SetVerbose(v bool) {
	l.mu.Lock()
	l.verbosity = v
	l.mu.Unlock()
}

// WithField returns a derived Logger carrying an additional persistent
// field, mirroring logrus.Entry.WithField without exposing logrus types
// to callers outside this package.
func (l *Logger) WithField(key string, value interface{}) *Logger {
	return &Logger{entry: l.entry.WithField(key, value)}
}

// With is WithField's variadic form for attaching several fields at
// once: logger.With("iface", name, "phase", phase.String()).
func (l *Logger) With(kv ...interface{}) *Logger {
	return &Logger{entry: l.entry.WithFields(kvToFields(kv))}
}

func kvToFields(kv []interface{}) logrus.Fields {
	fields := make(logrus.Fields, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			continue
		}
		fields[key] = kv[i+1]
	}
	return fields
}

// Trace logs at trace level.
func (l *Logger) Trace(msg string, kv ...interface{}) {
	l.withFields(kv).Trace(msg)
}

// Debug logs at debug level.
func (l *Logger) Debug(msg string, kv ...interface{}) {
	l.withFields(kv).Debug(msg)
}

// Info logs at info level.
func (l *Logger) Info(msg string, kv ...interface{}) {
	l.withFields(kv).Info(msg)
}

// Warn logs at warn level.
func (l *Logger) Warn(msg string, kv ...interface{}) {
	l.withFields(kv).Warn(msg)
}

// Error logs at error level.
func (l *Logger) Error(msg string, kv ...interface{}) {
	l.withFields(kv).Error(msg)
}

// withFields accepts either a flat key/value variadic list or, as a
// convenience for call sites that already built a map (e.g.
// PerformanceLogger), a single map[string]interface{} argument.
func (l *Logger) withFields(kv []interface{}) *logrus.Entry {
	if len(kv) == 1 {
		if fields, ok := kv[0].(map[string]interface{}); ok {
			return l.entry.WithFields(fields)
		}
	}
	return l.entry.WithFields(kvToFields(kv))
}

// LogVerbose emits a debug-level structured event only when verbose
// logging has been enabled, used for the high-frequency per-channel
// dwell traces that would otherwise flood a production log at info
// level.
func (l *Logger) LogVerbose(event string, fields map[string]interface{}) {
	l.mu.RLock()
	v := l.verbosity
	l.mu.RUnlock()
	if !v {
		return
	}
	l.entry.WithFields(fields).WithField("event", event).Debug("verbose event")
}
