package kvstore

import (
	"context"
	"fmt"
	"sync"

	"github.com/arloliu/subwatch/internal/kvutil"
	"github.com/arloliu/subwatch/types"
	"github.com/nats-io/nats.go/jetstream"
)

// Feed delivers bucket changes for one resource type to a handler.
//
// Puts become update events (the router treats create and update alike); deletes and
// purges become delete events. Events are delivered one at a time, in bucket order.
type Feed struct {
	resourceType string
	pattern      string
	watcher      jetstream.KeyWatcher
	handler      types.ChangeHandler
	logger       types.Logger

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// Compile-time assertion that Feed implements ChangeFeed.
var _ types.ChangeFeed = (*Feed)(nil)

// Watch starts a feed of later changes to records of resourceType.
//
// Only updates made after Watch returns are delivered; existing records are not
// replayed. Pair it with an engine resync to cover state written earlier.
func (s *Store) Watch(ctx context.Context, resourceType string, handler types.ChangeHandler) (types.ChangeFeed, error) {
	pattern := kvutil.TypePattern(resourceType)

	watcher, err := s.kv.Watch(ctx, pattern, jetstream.UpdatesOnly())
	if err != nil {
		return nil, fmt.Errorf("watch %s: %w", pattern, err)
	}

	f := &Feed{
		resourceType: resourceType,
		pattern:      pattern,
		watcher:      watcher,
		handler:      handler,
		logger:       s.logger,
		stopCh:       make(chan struct{}),
		doneCh:       make(chan struct{}),
	}
	s.logger.Info("record change feed started", "pattern", pattern)

	go f.run(ctx)

	return f, nil
}

// Stop ends the feed and waits for the delivery goroutine to exit.
func (f *Feed) Stop() error {
	var err error
	f.stopOnce.Do(func() {
		close(f.stopCh)
		err = f.watcher.Stop()
		<-f.doneCh
		f.logger.Debug("record change feed stopped", "pattern", f.pattern)
	})

	return err
}

func (f *Feed) run(ctx context.Context) {
	defer close(f.doneCh)

	updates := f.watcher.Updates()
	for {
		select {
		case <-ctx.Done():
			return
		case <-f.stopCh:
			return
		case entry, ok := <-updates:
			if !ok {
				return
			}
			if entry == nil {
				continue
			}

			ev, err := f.toEvent(entry)
			if err != nil {
				f.logger.Warn("skipping undecodable change", "key", entry.Key(), "error", err)
				continue
			}
			if err := f.handler(ctx, ev); err != nil {
				f.logger.Error("change handler failed",
					"key", entry.Key(), "operation", ev.Operation().String(), "error", err)
			}
		}
	}
}

func (f *Feed) toEvent(entry jetstream.KeyValueEntry) (types.ResourceChangedEvent, error) {
	_, id, err := kvutil.SplitRecordKey(entry.Key())
	if err != nil {
		return types.ResourceChangedEvent{}, err
	}

	switch entry.Operation() {
	case jetstream.KeyValuePut:
		return types.NewUpdateEvent(recordFromEntry(f.resourceType, id, entry)), nil
	case jetstream.KeyValueDelete, jetstream.KeyValuePurge:
		return types.NewDeleteEvent(f.resourceType, id), nil
	default:
		return types.ResourceChangedEvent{}, fmt.Errorf("unknown kv operation %v", entry.Operation())
	}
}
