package testing

import (
	"testing"

	"github.com/arloliu/subwatch/internal/logging"
	"github.com/arloliu/subwatch/types"
)

// NewTestLogger returns a logger that writes through t.Logf.
//
// Loggers handed to an engine must not outlive the test: stop the engine (for
// example in t.Cleanup) before the test returns.
func NewTestLogger(t *testing.T) types.Logger {
	return logging.NewTest(t)
}
