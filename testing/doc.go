// Package testing provides test helpers for subwatch and code embedding it.
//
// Key utilities:
//   - StartEmbeddedNATS: In-process NATS server with JetStream
//   - StartJetStream: Embedded server plus a JetStream context
//   - CreateJetStreamKV: In-memory KV bucket
//   - NewTestLogger: Logger writing to testing.T
//
// Example usage:
//
//	import (
//	    "testing"
//	    subwatchtest "github.com/arloliu/subwatch/testing"
//	)
//
//	func TestWithNATS(t *testing.T) {
//	    js := subwatchtest.StartJetStream(t)
//	    // open a kvstore.Store on js
//	}
package testing
