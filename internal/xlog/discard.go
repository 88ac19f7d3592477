package xlog

// Discard returns a no-op logger. Used as the default for components that
// are not given an explicit logger.
func Discard() Logger {
	return discardLogger{}
}

type discardLogger struct{}

func (discardLogger) Debug(args ...any)                       {}
func (discardLogger) Debugf(format string, args ...any)       {}
func (discardLogger) Info(args ...any)                        {}
func (discardLogger) Infof(format string, args ...any)        {}
func (discardLogger) Warning(args ...any)                     {}
func (discardLogger) Warningf(format string, args ...any)     {}
func (discardLogger) Error(args ...any)                       {}
func (discardLogger) Errorf(format string, args ...any)       {}
func (discardLogger) Panic(args ...any)                       {}
func (discardLogger) Panicf(format string, args ...any)       {}
func (discardLogger) Fatal(args ...any)                       {}
func (discardLogger) Fatalf(format string, args ...any)       {}
func (discardLogger) SetLevel(lvl Level)                      {}
func (d discardLogger) WithFields(fields Fields) Logger       { return d }
func (d discardLogger) WithField(key string, value any) Logger { return d }
func (d discardLogger) Sub(tags Fields) Logger                { return d }
func (discardLogger) Print(level Level, args ...any)          {}
func (discardLogger) Printf(level Level, format string, args ...any) {}
