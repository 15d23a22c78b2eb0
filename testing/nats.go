package testing

import (
	"fmt"
	"testing"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// StartEmbeddedNATS starts an in-process NATS server with JetStream enabled.
//
// The server listens on a random port and keeps JetStream data under t.TempDir().
// Server and client connection are shut down through t.Cleanup.
//
// Parameters:
//   - t: Testing context for logging and cleanup
//
// Returns:
//   - *server.Server: The embedded server
//   - *nats.Conn: Connected client
//
// Example:
//
//	func TestFeed(t *testing.T) {
//	    _, nc := subwatchtest.StartEmbeddedNATS(t)
//	    js, _ := jetstream.New(nc)
//	    store, _ := kvstore.Open(t.Context(), js, jetstream.KeyValueConfig{})
//	}
func StartEmbeddedNATS(t *testing.T) (*server.Server, *nats.Conn) {
	t.Helper()

	ns, err := server.NewServer(&server.Options{
		Host:      "127.0.0.1",
		Port:      -1,
		JetStream: true,
		StoreDir:  t.TempDir(),
		NoLog:     true,
	})
	if err != nil {
		t.Fatalf("create embedded NATS server: %v", err)
	}

	go ns.Start()

	if !ns.ReadyForConnections(5 * time.Second) {
		ns.Shutdown()
		t.Fatal("embedded NATS server not ready within 5s")
	}

	nc, err := nats.Connect(ns.ClientURL(), nats.Timeout(2*time.Second))
	if err != nil {
		ns.Shutdown()
		t.Fatalf("connect to embedded NATS server: %v", err)
	}

	t.Cleanup(func() {
		nc.Close()
		ns.Shutdown()
		ns.WaitForShutdown()
	})

	return ns, nc
}

// StartJetStream starts an embedded server and returns a JetStream context on it.
func StartJetStream(t *testing.T) jetstream.JetStream {
	t.Helper()

	_, nc := StartEmbeddedNATS(t)
	js, err := jetstream.New(nc)
	if err != nil {
		t.Fatalf("create JetStream context: %v", err)
	}

	return js
}

// CreateJetStreamKV creates an in-memory KV bucket for tests.
//
// Parameters:
//   - t: Testing context
//   - nc: Connection from StartEmbeddedNATS
//   - bucketName: Bucket to create
//
// Returns:
//   - jetstream.KeyValue: The created bucket
func CreateJetStreamKV(t *testing.T, nc *nats.Conn, bucketName string) jetstream.KeyValue {
	t.Helper()

	js, err := jetstream.New(nc)
	if err != nil {
		t.Fatalf("create JetStream context: %v", err)
	}

	kv, err := js.CreateKeyValue(t.Context(), jetstream.KeyValueConfig{
		Bucket:      bucketName,
		Description: fmt.Sprintf("test bucket %s", bucketName),
		Storage:     jetstream.MemoryStorage,
		History:     1,
	})
	if err != nil {
		t.Fatalf("create KV bucket %s: %v", bucketName, err)
	}

	return kv
}
