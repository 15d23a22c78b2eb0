// Package types provides core type definitions and interfaces for the subwatch library.
//
// This package contains shared types that are used across multiple packages in the
// library. By keeping these types in a separate package, we avoid import cycles
// between the root subwatch package and its internal implementations.
//
// Key types:
//   - SubscriptionStatus: Subscription lifecycle status and its transition rule
//   - CanonicalSubscription: Normalized, storage-agnostic view of a subscription
//   - ResourceChangedEvent: A create/update/delete notification for a resource record
//   - Action: The outcome of one activation decision
//   - RecordStore: Durable record store contract
//   - Logger: Structured logging interface
//   - MetricsCollector: Metrics recording interface
package types
