// Package subwatch activates subscription records and keeps an in-memory registry of
// the active ones in step with durable storage.
//
// Writes to "Subscription" records are routed through an Engine. The engine validates
// the subscription's criteria before the write is accepted, and after the enclosing
// transaction commits it moves Requested subscriptions to Active, writes that status
// back and registers them. Subscriptions whose criteria fail at activation end in Error
// with a reason. Deletes unregister immediately.
//
// # Quick Start
//
//	store := memstore.New()
//	engine, err := subwatch.NewEngine(subwatch.DefaultConfig(), store,
//	    subwatch.WithLogger(logging.NewSlogDefault()),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := engine.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer engine.Stop(context.Background())
//
//	writes := engine.Intercept()
//	err = txn.Run(ctx, func(ctx context.Context) error {
//	    _, err := writes.Create(ctx, subscriptionRecord)
//	    return err
//	})
//
// # Transactions
//
// The engine asks a txn.Probe whether the write happened inside a transaction. The
// default probe looks for a txn scope in the context (txn.Run, txn.RunInTx or
// txn.Begin). Inside a transaction, activation is deferred to a bounded worker pool and
// only runs after commit; a rollback drops it. Outside one, activation runs inline.
//
// # Lifecycle
//
//	INIT → RESYNCING → RUNNING → STOPPING → STOPPED
//
// Start rebuilds the registry from storage (Resync), which also repairs work lost to a
// crash between a commit and its deferred activation.
//
// # Stores
//
// store/memstore, store/sqlstore (SQLite or PostgreSQL) and store/kvstore (NATS
// JetStream KV) implement RecordStore. The KV store also implements ChangeSource, so
// status edits made by other processes reach the registry through WithChangeSource.
package subwatch
