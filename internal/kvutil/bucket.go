// Package kvutil holds helpers shared by NATS JetStream KeyValue backed stores.
package kvutil

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"
)

// EnsureBucket creates the bucket or opens it when another process created it first.
//
// Creation races between processes surface as ErrBucketExists and are resolved by
// opening the existing bucket. Other failures are retried up to attempts times with
// doubling delays starting at 10ms.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - js: JetStream context
//   - cfg: Bucket configuration
//   - attempts: Maximum attempts (defaults to 3 when <= 0)
//
// Returns:
//   - jetstream.KeyValue: The bucket handle
//   - error: Last failure after all attempts, or ctx.Err()
func EnsureBucket(ctx context.Context, js jetstream.JetStream, cfg jetstream.KeyValueConfig, attempts int) (jetstream.KeyValue, error) {
	if attempts <= 0 {
		attempts = 3
	}

	var lastErr error
	delay := 10 * time.Millisecond

	for i := 0; i < attempts; i++ {
		kv, err := js.CreateKeyValue(ctx, cfg)
		if err == nil {
			return kv, nil
		}

		if errors.Is(err, jetstream.ErrBucketExists) {
			kv, openErr := js.KeyValue(ctx, cfg.Bucket)
			if openErr == nil {
				return kv, nil
			}
			lastErr = fmt.Errorf("open existing bucket: %w", openErr)
		} else {
			lastErr = err
		}

		if ctx.Err() != nil {
			return nil, fmt.Errorf("ensure bucket %s: %w", cfg.Bucket, ctx.Err())
		}
		if i == attempts-1 {
			break
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}

	return nil, fmt.Errorf("ensure bucket %s after %d attempts: %w", cfg.Bucket, attempts, lastErr)
}
