package types

// Logger is the structured logger used across the engine.
//
// Arguments after the message are alternating key-value pairs. Implementations
// must be safe for concurrent use: activation logs from worker goroutines.
//
// There is deliberately no Fatal level. Nothing in the activation path is allowed
// to terminate the host process.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)

	// With returns a logger that adds keysAndValues to every entry, typically the
	// subscription being worked on.
	With(keysAndValues ...any) Logger
}
