package logger

import "sync"

// LoggerInstance defines the interface for logging backends.
type LoggerInstance interface {
	Log(message string, keyvals ...any)
	Debug(message string, keyvals ...any)
	Info(message string, keyvals ...any)
	Warn(message string, keyvals ...any)
	Error(message string, keyvals ...any)
	Fatal(message string, keyvals ...any)
}

// Logger holds multiple logging backends and dispatches log calls to all of
// them. Fields are prepended to the key/value pairs of every call.
type Logger struct {
	instances []LoggerInstance
	fields    []any
}

var (
	mu        sync.RWMutex
	singleton *Logger
)

func getSingleton() *Logger {
	mu.RLock()
	defer mu.RUnlock()
	return singleton
}

// Init initializes the global logger with one or more logging backends.
// Calls made before Init are dropped.
func Init(instances ...LoggerInstance) {
	mu.Lock()
	defer mu.Unlock()
	singleton = &Logger{
		instances: instances,
	}
}

// With returns a logger that adds keyvals to every call. It dispatches to
// the backends configured at the time of the call to With.
func With(keyvals ...any) *Logger {
	l := getSingleton()
	if l == nil {
		return &Logger{}
	}
	return l.With(keyvals...)
}

func (l *Logger) With(keyvals ...any) *Logger {
	fields := make([]any, 0, len(l.fields)+len(keyvals))
	fields = append(fields, l.fields...)
	fields = append(fields, keyvals...)
	return &Logger{instances: l.instances, fields: fields}
}

func (l *Logger) merge(keyvals []any) []any {
	if len(l.fields) == 0 {
		return keyvals
	}
	out := make([]any, 0, len(l.fields)+len(keyvals))
	out = append(out, l.fields...)
	return append(out, keyvals...)
}

func (l *Logger) Log(message string, keyvals ...any) {
	kv := l.merge(keyvals)
	for _, instance := range l.instances {
		instance.Log(message, kv...)
	}
}

func (l *Logger) Debug(message string, keyvals ...any) {
	kv := l.merge(keyvals)
	for _, instance := range l.instances {
		instance.Debug(message, kv...)
	}
}

func (l *Logger) Info(message string, keyvals ...any) {
	kv := l.merge(keyvals)
	for _, instance := range l.instances {
		instance.Info(message, kv...)
	}
}

func (l *Logger) Warn(message string, keyvals ...any) {
	kv := l.merge(keyvals)
	for _, instance := range l.instances {
		instance.Warn(message, kv...)
	}
}

func (l *Logger) Error(message string, keyvals ...any) {
	kv := l.merge(keyvals)
	for _, instance := range l.instances {
		instance.Error(message, kv...)
	}
}

func (l *Logger) Fatal(message string, keyvals ...any) {
	kv := l.merge(keyvals)
	for _, instance := range l.instances {
		instance.Fatal(message, kv...)
	}
}

// Log writes a message at the default log level to all configured backends.
func Log(message string, keyvals ...any) {
	if l := getSingleton(); l != nil {
		l.Log(message, keyvals...)
	}
}

// Debug writes a message at DEBUG level to all configured backends.
func Debug(message string, keyvals ...any) {
	if l := getSingleton(); l != nil {
		l.Debug(message, keyvals...)
	}
}

// Info writes a message at INFO level to all configured backends.
func Info(message string, keyvals ...any) {
	if l := getSingleton(); l != nil {
		l.Info(message, keyvals...)
	}
}

// Warn writes a message at WARN level to all configured backends.
func Warn(message string, keyvals ...any) {
	if l := getSingleton(); l != nil {
		l.Warn(message, keyvals...)
	}
}

// Error writes a message at ERROR level to all configured backends.
func Error(message string, keyvals ...any) {
	if l := getSingleton(); l != nil {
		l.Error(message, keyvals...)
	}
}

// Fatal writes a message at FATAL level and terminates the program.
func Fatal(message string, keyvals ...any) {
	if l := getSingleton(); l != nil {
		l.Fatal(message, keyvals...)
	}
}
