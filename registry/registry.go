// Package registry holds the in-memory index of active, dispatch-ready subscriptions.
package registry

import (
	"slices"
	"time"

	"github.com/arloliu/subwatch/criteria"
	"github.com/arloliu/subwatch/types"
	"github.com/puzpuzpuz/xsync/v4"
	"github.com/zeebo/xxh3"
)

// Entry is a registered subscription plus its precompiled filter state.
//
// Entries are immutable once stored; Lookup and Range hand out copies.
type Entry struct {
	// Subscription is the canonical subscription as observed when registered.
	Subscription types.CanonicalSubscription

	// Matcher is the compiled criteria.
	Matcher *criteria.Matcher

	// Fingerprint identifies the channel and criteria Matcher was built for.
	Fingerprint uint64

	// RegisteredAt is when the entry was stored.
	RegisteredAt time.Time
}

// Registry is a concurrent map from subscription identity to Entry.
//
// All operations are safe for concurrent use. Insertions and removals are atomic with
// respect to Lookup: an entry is either fully visible or absent.
type Registry struct {
	entries *xsync.Map[string, *Entry]
	logger  types.Logger
	metrics types.RegistryMetrics
}

// New creates an empty registry.
//
// Parameters:
//   - logger: Logger for registry mutations
//   - metrics: Metrics collector for registry size and mutations
//
// Returns:
//   - *Registry: Empty registry
func New(logger types.Logger, metrics types.RegistryMetrics) *Registry {
	return &Registry{
		entries: xsync.NewMap[string, *Entry](),
		logger:  logger,
		metrics: metrics,
	}
}

// Fingerprint hashes the parts of a subscription that affect dispatch.
func Fingerprint(sub types.CanonicalSubscription) uint64 {
	return xxh3.HashString(sub.ChannelType.String() + "\x00" + sub.Criteria)
}

func newEntry(sub types.CanonicalSubscription, matcher *criteria.Matcher) *Entry {
	return &Entry{
		Subscription: sub,
		Matcher:      matcher,
		Fingerprint:  Fingerprint(sub),
		RegisteredAt: time.Now(),
	}
}

// RegisterIfAbsent inserts the subscription unless one with the same identity exists.
//
// Returns:
//   - bool: true if a new entry was inserted, false if the identity was already registered
func (r *Registry) RegisterIfAbsent(sub types.CanonicalSubscription, matcher *criteria.Matcher) bool {
	_, loaded := r.entries.LoadOrStore(sub.ID, newEntry(sub, matcher))
	r.recordMutation("register", !loaded)
	if !loaded {
		r.logger.Info("subscription registered", "subscription", sub.ID, "criteria", sub.Criteria)
	}

	return !loaded
}

// Refresh registers the subscription or brings an existing entry up to date.
//
// A changed channel or criteria replaces the entry with one built on matcher. Any
// other difference (endpoint, version, error reason) keeps the compiled matcher and
// the registration time but stores the new subscription details. A subscription
// older than the one already held for the same channel and criteria is ignored.
//
// Returns:
//   - bool: true if the registry changed
func (r *Registry) Refresh(sub types.CanonicalSubscription, matcher *criteria.Matcher) bool {
	fp := Fingerprint(sub)
	replaced, updated := false, false

	r.entries.Compute(sub.ID, func(old *Entry, loaded bool) (*Entry, xsync.ComputeOp) {
		switch {
		case !loaded || old.Fingerprint != fp:
			replaced = true
			return newEntry(sub, matcher), xsync.UpdateOp
		case old.Subscription == sub || sub.Version < old.Subscription.Version:
			return old, xsync.CancelOp
		default:
			updated = true
			next := *old
			next.Subscription = sub

			return &next, xsync.UpdateOp
		}
	})

	changed := replaced || updated
	r.recordMutation("refresh", changed)
	switch {
	case replaced:
		r.logger.Info("subscription registered", "subscription", sub.ID, "criteria", sub.Criteria)
	case updated:
		r.logger.Debug("subscription details refreshed",
			"subscription", sub.ID, "endpoint", sub.Endpoint, "version", sub.Version)
	}

	return changed
}

// Unregister removes the entry if present. It is a no-op otherwise.
//
// Returns:
//   - bool: true if an entry was removed
func (r *Registry) Unregister(id string) bool {
	_, removed := r.entries.LoadAndDelete(id)
	r.recordMutation("unregister", removed)
	if removed {
		r.logger.Info("subscription unregistered", "subscription", id)
	}

	return removed
}

// UnregisterIfStatusNotActive removes the entry when observed is not Active.
//
// Used to reconcile an update that moved a subscription away from Active.
//
// Returns:
//   - bool: true if an entry was removed
func (r *Registry) UnregisterIfStatusNotActive(id string, observed types.SubscriptionStatus) bool {
	if observed == types.StatusActive {
		return false
	}

	return r.Unregister(id)
}

// Lookup returns a copy of the entry for id.
func (r *Registry) Lookup(id string) (Entry, bool) {
	e, ok := r.entries.Load(id)
	if !ok {
		return Entry{}, false
	}

	return *e, true
}

// Size returns the number of registered subscriptions.
func (r *Registry) Size() int {
	return r.entries.Size()
}

// Range calls fn for every entry until fn returns false.
//
// Range does not block mutations; entries added or removed concurrently may or may
// not be observed.
func (r *Registry) Range(fn func(Entry) bool) {
	r.entries.Range(func(_ string, e *Entry) bool {
		return fn(*e)
	})
}

// Match returns the sorted identities of subscriptions whose criteria match the resource.
//
// Matchers that fail to evaluate are logged at debug level and treated as non-matching.
func (r *Registry) Match(resourceType string, resource map[string]any) []string {
	var ids []string

	r.entries.Range(func(id string, e *Entry) bool {
		if e.Matcher == nil {
			return true
		}
		ok, err := e.Matcher.Matches(resourceType, resource)
		if err != nil {
			r.logger.Debug("matcher evaluation failed", "subscription", id, "error", err)
			return true
		}
		if ok {
			ids = append(ids, id)
		}

		return true
	})
	slices.Sort(ids)

	return ids
}

func (r *Registry) recordMutation(op string, changed bool) {
	r.metrics.RecordRegistryMutation(op, changed)
	if changed {
		r.metrics.RecordRegistrySize(r.entries.Size())
	}
}
