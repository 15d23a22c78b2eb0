package types

import "context"

// Hooks defines callbacks for subscription lifecycle events observed by the engine.
//
// All hooks are optional. Activation hooks run on the goroutine that performed the
// activation, which is a worker pool goroutine whenever activation was deferred past a
// commit. Hook errors are logged but never fail the activation.
//
// Best practices for hook implementation:
//   - Complete quickly
//   - Respect context cancellation
//   - Make hooks idempotent (may be called more than once for one subscription)
//
// Example:
//
//	hooks := &subwatch.Hooks{
//	    OnActivated: func(ctx context.Context, sub subwatch.CanonicalSubscription) error {
//	        return notifier.Handshake(ctx, sub.Endpoint)
//	    },
//	}
type Hooks struct {
	// OnActivated is called after a subscription moved from Requested to Active.
	OnActivated func(ctx context.Context, sub CanonicalSubscription) error

	// OnActivationFailed is called after a subscription was moved to Error.
	OnActivationFailed func(ctx context.Context, sub CanonicalSubscription, reason string) error

	// OnError is called when a failure is isolated behind the deferred boundary.
	OnError func(ctx context.Context, err error) error
}
