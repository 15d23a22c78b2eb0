package types

import "context"

// ChangeHandler receives change events from a ChangeSource.
type ChangeHandler func(ctx context.Context, ev ResourceChangedEvent) error

// ChangeFeed is a running subscription to a ChangeSource.
type ChangeFeed interface {
	// Stop ends the feed and waits for its goroutines to exit. Safe to call twice.
	Stop() error
}

// ChangeSource publishes record changes made by any writer, including other processes
// writing to the same durable store.
type ChangeSource interface {
	// Watch delivers every later change to records of resourceType to handler.
	//
	// Parameters:
	//   - ctx: Lifetime of the feed; cancelling it stops delivery
	//   - resourceType: Record type to watch
	//   - handler: Called sequentially for each change
	//
	// Returns:
	//   - ChangeFeed: Handle used to stop the feed
	//   - error: Failure to start watching
	Watch(ctx context.Context, resourceType string, handler ChangeHandler) (ChangeFeed, error)
}
