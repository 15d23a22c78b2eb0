package logging

import (
	"fmt"
	"strings"
	"testing"

	"github.com/arloliu/subwatch/types"
)

// TestLogger writes entries through testing.TB so they show up next to the failing
// test. Fields added with With are printed before the per-call fields.
type TestLogger struct {
	t      testing.TB
	fields []any
}

// Compile-time assertion that TestLogger implements Logger.
var _ types.Logger = (*TestLogger)(nil)

// NewTest creates a test logger.
//
// Parameters:
//   - t: Test or benchmark to log through
//
// Returns:
//   - *TestLogger: Logger using t.Logf
//
// Example:
//
//	func TestActivation(t *testing.T) {
//	    engine, err := subwatch.NewEngine(cfg, store, subwatch.WithLogger(logging.NewTest(t)))
//	    ...
//	}
func NewTest(t testing.TB) *TestLogger {
	return &TestLogger{t: t}
}

func (l *TestLogger) Debug(msg string, keysAndValues ...any) {
	l.log("DEBUG", msg, keysAndValues)
}

func (l *TestLogger) Info(msg string, keysAndValues ...any) {
	l.log("INFO", msg, keysAndValues)
}

func (l *TestLogger) Warn(msg string, keysAndValues ...any) {
	l.log("WARN", msg, keysAndValues)
}

func (l *TestLogger) Error(msg string, keysAndValues ...any) {
	l.log("ERROR", msg, keysAndValues)
}

// With returns a logger sharing t with the accumulated fields extended.
func (l *TestLogger) With(keysAndValues ...any) types.Logger {
	fields := make([]any, 0, len(l.fields)+len(keysAndValues))
	fields = append(fields, l.fields...)
	fields = append(fields, keysAndValues...)

	return &TestLogger{t: l.t, fields: fields}
}

func (l *TestLogger) log(level, msg string, keysAndValues []any) {
	l.t.Helper()
	l.t.Logf("%s: %s%s%s", level, msg, formatKeyValues(l.fields), formatKeyValues(keysAndValues))
}

// formatKeyValues renders pairs as " k=v"; a trailing key without a value is
// printed as k=<missing>.
func formatKeyValues(keysAndValues []any) string {
	var sb strings.Builder
	for i := 0; i < len(keysAndValues); i += 2 {
		if i+1 < len(keysAndValues) {
			fmt.Fprintf(&sb, " %v=%v", keysAndValues[i], keysAndValues[i+1])
		} else {
			fmt.Fprintf(&sb, " %v=<missing>", keysAndValues[i])
		}
	}

	return sb.String()
}
