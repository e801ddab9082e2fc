// Package logward is a structured logging facade: a small set of
// severity levels, an immutable entry model and pluggable transports
// that render or forward entries to their destinations.
package logward

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
)

// Config carries the Logger construction options.
type Config struct {
	// Level is the threshold; entries below it (numerically above) are
	// discarded before reaching any transport.
	Level Level
	// Transports is the initial sink list. More can be added later with
	// AddTransport.
	Transports []Transport
}

// Logger routes entries to all registered transports above the
// configured level threshold. Each Logger owns its configuration and
// transport list; there is no process-wide instance.
type Logger struct {
	mu         sync.RWMutex
	level      Level
	transports []Transport
}

// New creates a Logger from the given config.
func New(cfg Config) *Logger {
	return &Logger{
		level:      cfg.Level,
		transports: append([]Transport(nil), cfg.Transports...),
	}
}

// AddTransport registers an additional sink.
func (l *Logger) AddTransport(t Transport) {
	if t == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.transports = append(l.transports, t)
}

// SetLevel changes the threshold for subsequent log calls.
func (l *Logger) SetLevel(level Level) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.level = level
}

// Level returns the current threshold.
func (l *Logger) Level() Level {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.level
}

// Log creates an entry and fans it out to every registered transport.
// It never fails: transport panics are swallowed so logging cannot
// crash the host application.
func (l *Logger) Log(level Level, msg string, fields ...Fields) {
	l.mu.RLock()
	threshold := l.level
	transports := l.transports
	l.mu.RUnlock()

	if !level.Enabled(threshold) {
		return
	}

	entry := Entry{
		Message: msg,
		Level:   level,
		Time:    time.Now(),
		Fields:  mergeFields(fields),
	}

	for _, t := range transports {
		dispatch(t, entry)
	}
}

func dispatch(t Transport, entry Entry) {
	defer func() {
		// A misbehaving transport must not take the caller down.
		_ = recover()
	}()
	t.Log(entry)
}

func mergeFields(fields []Fields) Fields {
	switch len(fields) {
	case 0:
		return nil
	case 1:
		return fields[0]
	}
	merged := make(Fields)
	for _, f := range fields {
		for k, v := range f {
			merged[k] = v
		}
	}
	return merged
}

// Error logs at ErrorLevel.
func (l *Logger) Error(msg string, fields ...Fields) { l.Log(ErrorLevel, msg, fields...) }

// Warn logs at WarnLevel.
func (l *Logger) Warn(msg string, fields ...Fields) { l.Log(WarnLevel, msg, fields...) }

// Audit logs at AuditLevel.
func (l *Logger) Audit(msg string, fields ...Fields) { l.Log(AuditLevel, msg, fields...) }

// Info logs at InfoLevel.
func (l *Logger) Info(msg string, fields ...Fields) { l.Log(InfoLevel, msg, fields...) }

// HTTP logs at HTTPLevel.
func (l *Logger) HTTP(msg string, fields ...Fields) { l.Log(HTTPLevel, msg, fields...) }

// Verbose logs at VerboseLevel.
func (l *Logger) Verbose(msg string, fields ...Fields) { l.Log(VerboseLevel, msg, fields...) }

// Debug logs at DebugLevel.
func (l *Logger) Debug(msg string, fields ...Fields) { l.Log(DebugLevel, msg, fields...) }

// Silly logs at SillyLevel.
func (l *Logger) Silly(msg string, fields ...Fields) { l.Log(SillyLevel, msg, fields...) }

// Close shuts down every transport that implements Closer and returns
// the combined teardown errors, if any. The Logger must not be used
// after Close.
func (l *Logger) Close(ctx context.Context) error {
	l.mu.Lock()
	transports := l.transports
	l.transports = nil
	l.mu.Unlock()

	var errs []error
	for _, t := range transports {
		if c, ok := t.(Closer); ok {
			if err := c.Close(ctx); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}
