package log

import (
	"context"
	"fmt"
	"log/slog"
	"os"
)

// osExit is swapped in tests.
var osExit = os.Exit

func (l *BaseLogger) Debug(msg string, fields ...Field) { l.log(DebugLevel, msg, fields) }
func (l *BaseLogger) Info(msg string, fields ...Field)  { l.log(InfoLevel, msg, fields) }
func (l *BaseLogger) Warn(msg string, fields ...Field)  { l.log(WarnLevel, msg, fields) }
func (l *BaseLogger) Error(msg string, fields ...Field) { l.log(ErrorLevel, msg, fields) }

// Fatal logs at error severity and terminates the process.
func (l *BaseLogger) Fatal(msg string, fields ...Field) {
	l.log(FatalLevel, msg, fields)
	osExit(1)
}

func (l *BaseLogger) Debugf(msg string, args ...interface{}) { l.logArgs(DebugLevel, msg, args) }
func (l *BaseLogger) Infof(msg string, args ...interface{})  { l.logArgs(InfoLevel, msg, args) }
func (l *BaseLogger) Warnf(msg string, args ...interface{})  { l.logArgs(WarnLevel, msg, args) }
func (l *BaseLogger) Errorf(msg string, args ...interface{}) { l.logArgs(ErrorLevel, msg, args) }

func (l *BaseLogger) Fatalf(msg string, args ...interface{}) {
	l.logArgs(FatalLevel, msg, args)
	osExit(1)
}

// WithField returns a child logger carrying key=value.
func (l *BaseLogger) WithField(key string, value interface{}) Logger {
	return l.WithFields(Fields{key: value})
}

// WithFields returns a child logger carrying all fields.
func (l *BaseLogger) WithFields(fields Fields) Logger {
	nl := l.clone()
	for k, v := range fields {
		nl.fields[k] = v
	}
	nl.rebuild()
	return nl
}

// WithError returns a child logger carrying the error message.
func (l *BaseLogger) WithError(err error) Logger {
	f := Err(err)
	return l.WithField(f.Key, f.Value)
}

// With returns a child logger carrying fields.
func (l *BaseLogger) With(fields ...Field) Logger {
	nl := l.clone()
	for _, f := range fields {
		nl.fields[f.Key] = f.Value
	}
	nl.rebuild()
	return nl
}

// WithContext returns a child logger carrying well-known context values.
func (l *BaseLogger) WithContext(ctx context.Context) Logger {
	return l.WithFields(ContextExtractor(ctx))
}

// WithComponent tags logs with a component name.
func (l *BaseLogger) WithComponent(component string) Logger {
	return l.With(Component(component))
}

func (l *BaseLogger) SetLevel(level Level) { l.level = level }
func (l *BaseLogger) GetLevel() Level      { return l.level }

func (l *BaseLogger) clone() *BaseLogger {
	nl := *l
	nl.fields = make(Fields, len(l.fields))
	for k, v := range l.fields {
		nl.fields[k] = v
	}
	nl.outputs = append([]Output(nil), l.outputs...)
	return &nl
}

// rebuild points the slog pipeline at this logger so level and base fields
// follow the clone.
func (l *BaseLogger) rebuild() {
	l.slogLogger = slog.New(newBridgeHandler(l))
}

func (l *BaseLogger) log(level Level, msg string, fields []Field) {
	if level < l.level {
		return
	}
	l.slogLogger.LogAttrs(context.Background(), toSlogLevel(level), msg, fieldAttrs(fields)...)
}

func (l *BaseLogger) logArgs(level Level, msg string, args []interface{}) {
	if level < l.level {
		return
	}
	// printf-style when the message carries verbs, key/value pairs otherwise
	if hasVerb(msg) {
		l.slogLogger.LogAttrs(context.Background(), toSlogLevel(level), fmt.Sprintf(msg, args...))
		return
	}
	l.slogLogger.LogAttrs(context.Background(), toSlogLevel(level), msg, pairAttrs(args)...)
}

func hasVerb(s string) bool {
	for i := 0; i < len(s)-1; i++ {
		if s[i] == '%' && s[i+1] != '%' {
			return true
		}
		if s[i] == '%' {
			i++
		}
	}
	return false
}
