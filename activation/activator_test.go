package activation

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/arloliu/subwatch/canonical"
	"github.com/arloliu/subwatch/criteria"
	"github.com/arloliu/subwatch/internal/logging"
	"github.com/arloliu/subwatch/internal/metrics"
	"github.com/arloliu/subwatch/registry"
	"github.com/arloliu/subwatch/store/memstore"
	"github.com/arloliu/subwatch/types"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

var restHookOnly = types.NewChannelSet(types.ChannelRestHook)

func payload(id, status, criteria, channel string) []byte {
	return fmt.Appendf(nil,
		`{"resourceType":"Subscription","id":%q,"status":%q,"criteria":%q,"channel":{"type":%q,"endpoint":"https://example.org/hook"}}`,
		id, status, criteria, channel)
}

type fixture struct {
	store     types.RecordStore
	mem       *memstore.Store
	registry  *registry.Registry
	activator *Activator
	canon     canonical.JSONCanonicalizer
	activated atomic.Int32
	failed    atomic.Int32
	conflicts atomic.Int32
}

type conflictCounter struct {
	*metrics.NopMetrics
	n *atomic.Int32
}

func (c conflictCounter) RecordActivationConflict() { c.n.Add(1) }

func newFixture(t *testing.T, store types.RecordStore, opts ...Option) *fixture {
	t.Helper()

	validator, err := criteria.NewValidator(criteria.NewCatalog(criteria.DefaultResourceTypes...))
	require.NoError(t, err)

	f := &fixture{canon: canonical.New()}
	if store == nil {
		f.mem = memstore.New()
		store = f.mem
	}
	f.store = store
	f.registry = registry.New(logging.NewNop(), metrics.NewNop())

	hooks := &types.Hooks{
		OnActivated: func(context.Context, types.CanonicalSubscription) error {
			f.activated.Add(1)
			return nil
		},
		OnActivationFailed: func(context.Context, types.CanonicalSubscription, string) error {
			f.failed.Add(1)
			return errors.New("hook errors are only logged")
		},
	}

	base := []Option{
		WithHooks(hooks),
		WithLogger(logging.NewTest(t)),
		WithMetrics(conflictCounter{NopMetrics: metrics.NewNop(), n: &f.conflicts}),
		WithConflictRetry(2, 1, 1),
	}
	f.activator = New(store, f.canon, validator, f.registry, restHookOnly, append(base, opts...)...)

	return f
}

func (f *fixture) seed(t *testing.T, id, status, crit, channel string) types.CanonicalSubscription {
	t.Helper()

	rec, err := f.store.Create(context.Background(), types.Record{
		ID:           id,
		ResourceType: types.SubscriptionResourceType,
		Payload:      payload(id, status, crit, channel),
	})
	require.NoError(t, err)

	sub, err := f.canon.Canonicalize(rec)
	require.NoError(t, err)

	return sub
}

func (f *fixture) stored(t *testing.T, id string) (types.Record, types.CanonicalSubscription) {
	t.Helper()

	rec, err := f.store.Read(context.Background(), types.SubscriptionResourceType, id)
	require.NoError(t, err)
	sub, err := f.canon.Canonicalize(rec)
	require.NoError(t, err)

	return rec, sub
}

func TestDecide(t *testing.T) {
	tests := []struct {
		name    string
		status  types.SubscriptionStatus
		channel types.ChannelType
		want    types.Action
	}{
		{"requested", types.StatusRequested, types.ChannelRestHook, types.ActionActivateThenRegister},
		{"active", types.StatusActive, types.ChannelRestHook, types.ActionRegister},
		{"error", types.StatusError, types.ChannelRestHook, types.ActionUnregister},
		{"off", types.StatusOff, types.ChannelRestHook, types.ActionUnregister},
		{"unknown", types.StatusUnknown, types.ChannelRestHook, types.ActionUnregister},
		{"unsupported requested", types.StatusRequested, types.ChannelEmail, types.ActionIgnore},
		{"unsupported active", types.StatusActive, types.ChannelWebsocket, types.ActionIgnore},
		{"unknown channel", types.StatusActive, types.ChannelUnknown, types.ActionIgnore},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sub := types.CanonicalSubscription{ID: "S1", Status: tt.status, ChannelType: tt.channel}
			require.Equal(t, tt.want, Decide(sub, restHookOnly))
		})
	}
}

func TestApply_ActivatesRequested(t *testing.T) {
	f := newFixture(t, nil)
	sub := f.seed(t, "S1", "requested", "Patient?name=Smith", "rest-hook")

	action, err := f.activator.Apply(context.Background(), sub)
	require.NoError(t, err)
	require.Equal(t, types.ActionActivateThenRegister, action)

	rec, stored := f.stored(t, "S1")
	require.Equal(t, types.StatusActive, stored.Status)
	require.Equal(t, int64(2), rec.Version)

	entry, ok := f.registry.Lookup("S1")
	require.True(t, ok)
	require.Equal(t, types.StatusActive, entry.Subscription.Status)
	require.Equal(t, int32(1), f.activated.Load())
}

func TestApply_ReroutesActivatedRecord(t *testing.T) {
	var routed []types.ResourceChangedEvent
	var f *fixture
	router := func(ctx context.Context, ev types.ResourceChangedEvent) error {
		routed = append(routed, ev)
		rec, ok := ev.Payload()
		require.True(t, ok)
		sub, err := f.canon.Canonicalize(rec)
		require.NoError(t, err)
		_, err = f.activator.Apply(ctx, sub)

		return err
	}
	f = newFixture(t, nil, WithRouter(router))
	sub := f.seed(t, "S1", "requested", "Patient?name=Smith", "rest-hook")

	action, err := f.activator.Apply(context.Background(), sub)
	require.NoError(t, err)
	require.Equal(t, types.ActionActivateThenRegister, action)

	require.Len(t, routed, 1, "re-entry observes Active and stops")
	require.Equal(t, types.OperationUpdate, routed[0].Operation())
	rec, _ := routed[0].Payload()
	require.Equal(t, "active", gjson.GetBytes(rec.Payload, "status").String())

	_, ok := f.registry.Lookup("S1")
	require.True(t, ok)
	require.Equal(t, 1, f.registry.Size())
}

func TestApply_RouterFailureStillRegisters(t *testing.T) {
	f := newFixture(t, nil, WithRouter(func(context.Context, types.ResourceChangedEvent) error {
		return errors.New("router down")
	}))
	sub := f.seed(t, "S1", "requested", "Patient?name=Smith", "rest-hook")

	action, err := f.activator.Apply(context.Background(), sub)
	require.NoError(t, err)
	require.Equal(t, types.ActionActivateThenRegister, action)
	_, ok := f.registry.Lookup("S1")
	require.True(t, ok)
}

func TestApply_InvalidCriteriaPersistsError(t *testing.T) {
	f := newFixture(t, nil)
	sub := f.seed(t, "S1", "requested", "Patient?name==", "rest-hook")

	action, err := f.activator.Apply(context.Background(), sub)
	require.NoError(t, err)
	require.Equal(t, types.ActionReject, action)

	_, stored := f.stored(t, "S1")
	require.Equal(t, types.StatusError, stored.Status)
	require.Contains(t, stored.ErrorReason, "invalid subscription criteria submitted")
	require.Equal(t, 0, f.registry.Size())
	require.Equal(t, int32(1), f.failed.Load())
}

func TestApply_UnknownResourceTypeRejected(t *testing.T) {
	f := newFixture(t, nil)
	sub := f.seed(t, "S1", "requested", "Spaceship?name=x", "rest-hook")

	action, err := f.activator.Apply(context.Background(), sub)
	require.NoError(t, err)
	require.Equal(t, types.ActionReject, action)

	_, stored := f.stored(t, "S1")
	require.Equal(t, types.StatusError, stored.Status)
}

func TestApply_RereadsDurableStatus(t *testing.T) {
	f := newFixture(t, nil)
	stale := f.seed(t, "S1", "requested", "Patient?name=Smith", "rest-hook")

	// Another writer switched the subscription off before activation ran.
	rec, _ := f.stored(t, "S1")
	off, err := f.canon.WithStatus(rec, types.StatusOff, "")
	require.NoError(t, err)
	_, err = f.store.Update(context.Background(), off)
	require.NoError(t, err)

	action, err := f.activator.Apply(context.Background(), stale)
	require.NoError(t, err)
	require.Equal(t, types.ActionUnregister, action)

	_, stored := f.stored(t, "S1")
	require.Equal(t, types.StatusOff, stored.Status)
	require.Equal(t, 0, f.registry.Size())
	require.Equal(t, int32(0), f.activated.Load())
}

func TestApply_DeletedBeforeActivation(t *testing.T) {
	f := newFixture(t, nil)
	sub := f.seed(t, "S1", "requested", "Patient?name=Smith", "rest-hook")
	require.NoError(t, f.store.Delete(context.Background(), types.SubscriptionResourceType, "S1"))

	action, err := f.activator.Apply(context.Background(), sub)
	require.NoError(t, err)
	require.Equal(t, types.ActionUnregister, action)
}

// conflictingStore reports a stale version for the first n updates.
type conflictingStore struct {
	types.RecordStore
	n atomic.Int32
}

func (s *conflictingStore) Update(ctx context.Context, rec types.Record) (types.Record, error) {
	if s.n.Add(-1) >= 0 {
		return types.Record{}, types.ErrStaleRecord
	}

	return s.RecordStore.Update(ctx, rec)
}

func TestApply_RetriesStaleWrite(t *testing.T) {
	store := &conflictingStore{RecordStore: memstore.New()}
	store.n.Store(2)
	f := newFixture(t, store)
	sub := f.seed(t, "S1", "requested", "Patient?name=Smith", "rest-hook")

	action, err := f.activator.Apply(context.Background(), sub)
	require.NoError(t, err)
	require.Equal(t, types.ActionActivateThenRegister, action)
	require.Equal(t, int32(2), f.conflicts.Load())

	_, stored := f.stored(t, "S1")
	require.Equal(t, types.StatusActive, stored.Status)
}

func TestApply_GivesUpAfterMaxConflicts(t *testing.T) {
	store := &conflictingStore{RecordStore: memstore.New()}
	store.n.Store(100)
	f := newFixture(t, store)
	sub := f.seed(t, "S1", "requested", "Patient?name=Smith", "rest-hook")

	_, err := f.activator.Apply(context.Background(), sub)
	require.ErrorIs(t, err, types.ErrStaleRecord)
	require.Equal(t, int32(3), f.conflicts.Load())
	require.Equal(t, 0, f.registry.Size())
}

func TestApply_BusinessRuleRejection(t *testing.T) {
	mem := memstore.New(memstore.WithRule(func(_ context.Context, _, next types.Record) error {
		if gjson.GetBytes(next.Payload, "status").String() == "active" {
			return &types.RejectedError{Reason: "activation quota exceeded"}
		}

		return nil
	}))
	f := newFixture(t, mem)
	sub := f.seed(t, "S1", "requested", "Patient?name=Smith", "rest-hook")

	action, err := f.activator.Apply(context.Background(), sub)
	require.NoError(t, err)
	require.Equal(t, types.ActionReject, action)

	_, stored := f.stored(t, "S1")
	require.Equal(t, types.StatusError, stored.Status)
	require.Contains(t, stored.ErrorReason, "activation quota exceeded")
	require.Equal(t, 0, f.registry.Size())
}

func TestApply_UnsupportedChannelIgnored(t *testing.T) {
	f := newFixture(t, nil)
	sub := f.seed(t, "S1", "requested", "Patient?name=Smith", "email")

	action, err := f.activator.Apply(context.Background(), sub)
	require.NoError(t, err)
	require.Equal(t, types.ActionIgnore, action)

	_, stored := f.stored(t, "S1")
	require.Equal(t, types.StatusRequested, stored.Status, "ignored subscriptions are not written")
	require.Equal(t, 0, f.registry.Size())
}

func TestApply_ChannelSwitchedToUnsupportedUnregisters(t *testing.T) {
	f := newFixture(t, nil)
	sub := f.seed(t, "S1", "active", "Patient?name=Smith", "rest-hook")

	action, err := f.activator.Apply(context.Background(), sub)
	require.NoError(t, err)
	require.Equal(t, types.ActionRegister, action)
	require.Equal(t, 1, f.registry.Size())

	rec, _ := f.stored(t, "S1")
	rec.Payload = payload("S1", "active", "Patient?name=Smith", "websocket")
	saved, err := f.store.Update(context.Background(), rec)
	require.NoError(t, err)
	switched, err := f.canon.Canonicalize(saved)
	require.NoError(t, err)

	action, err = f.activator.Apply(context.Background(), switched)
	require.NoError(t, err)
	require.Equal(t, types.ActionIgnore, action)
	require.Equal(t, 0, f.registry.Size())

	_, stored := f.stored(t, "S1")
	require.Equal(t, types.StatusActive, stored.Status, "ignored subscriptions are not written")
	require.Equal(t, saved.Version, stored.Version)
}

func TestApply_ActiveRegistersAndRefreshes(t *testing.T) {
	f := newFixture(t, nil)
	sub := f.seed(t, "S1", "active", "Patient?name=Smith", "rest-hook")

	action, err := f.activator.Apply(context.Background(), sub)
	require.NoError(t, err)
	require.Equal(t, types.ActionRegister, action)
	first, ok := f.registry.Lookup("S1")
	require.True(t, ok)

	// Idempotent.
	_, err = f.activator.Apply(context.Background(), sub)
	require.NoError(t, err)
	again, _ := f.registry.Lookup("S1")
	require.Equal(t, first.Fingerprint, again.Fingerprint)
	require.Equal(t, 1, f.registry.Size())

	sub.Criteria = "Observation?code=1234"
	_, err = f.activator.Apply(context.Background(), sub)
	require.NoError(t, err)
	edited, _ := f.registry.Lookup("S1")
	require.NotEqual(t, first.Fingerprint, edited.Fingerprint)
	require.Equal(t, "Observation", edited.Matcher.ResourceType())
}

func TestApply_ActiveWithInvalidCriteriaMovesToError(t *testing.T) {
	f := newFixture(t, nil)
	sub := f.seed(t, "S1", "active", "Patient?name==", "rest-hook")

	action, err := f.activator.Apply(context.Background(), sub)
	require.NoError(t, err)
	require.Equal(t, types.ActionReject, action)

	_, stored := f.stored(t, "S1")
	require.Equal(t, types.StatusError, stored.Status)
	require.Equal(t, 0, f.registry.Size())
}

func TestApply_NonActiveUnregisters(t *testing.T) {
	f := newFixture(t, nil)
	sub := f.seed(t, "S1", "active", "Patient?name=Smith", "rest-hook")
	_, err := f.activator.Apply(context.Background(), sub)
	require.NoError(t, err)
	require.Equal(t, 1, f.registry.Size())

	sub.Status = types.StatusOff
	action, err := f.activator.Apply(context.Background(), sub)
	require.NoError(t, err)
	require.Equal(t, types.ActionUnregister, action)
	require.Equal(t, 0, f.registry.Size())

	// Idempotent.
	action, err = f.activator.Apply(context.Background(), sub)
	require.NoError(t, err)
	require.Equal(t, types.ActionUnregister, action)
}

func TestReconcile_UsesDurableState(t *testing.T) {
	f := newFixture(t, nil)
	f.seed(t, "S1", "requested", "Patient?name=Smith", "rest-hook")

	action, err := f.activator.Reconcile(context.Background(), "S1")
	require.NoError(t, err)
	require.Equal(t, types.ActionActivateThenRegister, action)

	_, stored := f.stored(t, "S1")
	require.Equal(t, types.StatusActive, stored.Status)
	_, ok := f.registry.Lookup("S1")
	require.True(t, ok)
}

func TestReconcile_MissingRecordUnregisters(t *testing.T) {
	f := newFixture(t, nil)
	sub := f.seed(t, "S1", "active", "Patient?name=Smith", "rest-hook")
	_, err := f.activator.Apply(context.Background(), sub)
	require.NoError(t, err)
	require.Equal(t, 1, f.registry.Size())

	require.NoError(t, f.store.Delete(context.Background(), types.SubscriptionResourceType, "S1"))

	action, err := f.activator.Reconcile(context.Background(), "S1")
	require.NoError(t, err)
	require.Equal(t, types.ActionUnregister, action)
	require.Equal(t, 0, f.registry.Size())
}
