package logging

import "github.com/arloliu/subwatch/types"

// NopLogger discards everything. It is the engine's default logger.
//
// Example:
//
//	engine, err := subwatch.NewEngine(cfg, store, subwatch.WithLogger(logging.NewNop()))
type NopLogger struct{}

// Compile-time assertion that NopLogger implements Logger.
var _ types.Logger = (*NopLogger)(nil)

// NewNop returns a logger that discards all entries.
func NewNop() *NopLogger {
	return &NopLogger{}
}

func (n *NopLogger) Debug(_ string, _ ...any) {}

func (n *NopLogger) Info(_ string, _ ...any) {}

func (n *NopLogger) Warn(_ string, _ ...any) {}

func (n *NopLogger) Error(_ string, _ ...any) {}

// With returns the receiver; there is nothing to attach fields to.
func (n *NopLogger) With(_ ...any) types.Logger {
	return n
}
