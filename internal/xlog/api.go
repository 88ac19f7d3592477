// Package xlog provides the structured logging contract used across the
// pubsub module: endpoint connection lifecycle events and the broker's
// accept/forward loop log through the same minimal
// interface so the core packages never depend on a specific backend.
package xlog

// Fields provides additional contextual information on logs; particularly
// useful for structured messages (conn_id, topic, client_count, ...).
type Fields = map[string]any

// Level values assign a severity value to logged messages.
type Level uint

const (
	// Debug level should be used for information broadly interesting to
	// developers and operators. Might include minor, recoverable failures.
	Debug Level = 0

	// Info level should be used for informational messages that highlight
	// the progress of the application: broker startup, handshakes, teardown.
	Info Level = 1

	// Warning level should be used for potentially harmful situations that
	// do not stop processing, such as a dropped handshake or a forward
	// failure scoped to a single destination connection.
	Warning Level = 2

	// Error events of considerable importance that will prevent a single
	// operation from completing but do not take down the process.
	Error Level = 3

	// Panic level precedes a call to panic().
	Panic Level = 4

	// Fatal level precedes a call to os.Exit(1).
	Fatal Level = 5
)

// String returns a textual representation of a level value.
func (l Level) String() string {
	switch l {
	case Debug:
		return "debug"
	case Info:
		return "info"
	case Warning:
		return "warning"
	case Error:
		return "error"
	case Panic:
		return "panic"
	case Fatal:
		return "fatal"
	default:
		return "invalid-level"
	}
}

// SimpleLogger defines the minimal leveled-logging surface every backend
// must implement.
type SimpleLogger interface {
	Debug(args ...any)
	Debugf(format string, args ...any)
	Info(args ...any)
	Infof(format string, args ...any)
	Warning(args ...any)
	Warningf(format string, args ...any)
	Error(args ...any)
	Errorf(format string, args ...any)
	Panic(args ...any)
	Panicf(format string, args ...any)
	Fatal(args ...any)
	Fatalf(format string, args ...any)
}

// Logger instances add structured-field support on top of SimpleLogger.
type Logger interface {
	SimpleLogger // include leveled logging support

	// WithFields adds additional tags to a message to support structured
	// logging. For example: log.WithFields(fields).Debug("message")
	WithFields(fields Fields) Logger

	// WithField adds a single key/value pair to the next chained message.
	WithField(key string, value any) Logger

	// SetLevel adjusts the verbosity of the logger instance. Messages below
	// the configured level are discarded.
	SetLevel(lvl Level)

	// Sub returns a new logger instance using the provided tags. Every
	// message generated by the sub-logger includes the fields set on `tags`.
	Sub(tags Fields) Logger

	// Print logs a message at the specified level.
	Print(level Level, args ...any)

	// Printf logs a formatted message at the specified level.
	Printf(level Level, format string, args ...any)
}
