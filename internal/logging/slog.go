package logging

import (
	"io"
	"log/slog"

	"github.com/arloliu/subwatch/types"
)

// SlogLogger adapts a *slog.Logger to types.Logger.
type SlogLogger struct {
	logger *slog.Logger
}

// Compile-time assertion that SlogLogger implements Logger.
var _ types.Logger = (*SlogLogger)(nil)

// NewSlog wraps an existing slog logger.
//
// Parameters:
//   - logger: The underlying slog.Logger; nil selects slog.Default()
//
// Returns:
//   - *SlogLogger: Logger writing through the given slog.Logger
func NewSlog(logger *slog.Logger) *SlogLogger {
	if logger == nil {
		logger = slog.Default()
	}

	return &SlogLogger{logger: logger}
}

// NewSlogDefault returns a logger backed by slog.Default().
func NewSlogDefault() *SlogLogger {
	return NewSlog(nil)
}

// NewSlogJSON returns a logger emitting JSON lines to w at the given level, with every
// entry tagged component=subwatch.
//
// Example:
//
//	logger := logging.NewSlogJSON(os.Stderr, slog.LevelDebug)
//	engine, err := subwatch.NewEngine(cfg, store, subwatch.WithLogger(logger))
func NewSlogJSON(w io.Writer, level slog.Level) *SlogLogger {
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})

	return NewSlog(slog.New(handler).With("component", "subwatch"))
}

func (l *SlogLogger) Debug(msg string, keysAndValues ...any) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l *SlogLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Info(msg, keysAndValues...)
}

func (l *SlogLogger) Warn(msg string, keysAndValues ...any) {
	l.logger.Warn(msg, keysAndValues...)
}

func (l *SlogLogger) Error(msg string, keysAndValues ...any) {
	l.logger.Error(msg, keysAndValues...)
}

// With returns a child logger carrying keysAndValues as slog attributes.
func (l *SlogLogger) With(keysAndValues ...any) types.Logger {
	return &SlogLogger{logger: l.logger.With(keysAndValues...)}
}
