package sqlstore

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/arloliu/subwatch/txn"
	"github.com/arloliu/subwatch/types"
	"github.com/stretchr/testify/require"
)

func openTempStore(t *testing.T) *Store {
	t.Helper()

	s, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "records.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	return s
}

func subscription(id, payload string) types.Record {
	return types.Record{ID: id, ResourceType: types.SubscriptionResourceType, Payload: []byte(payload)}
}

func TestOpenSQLite_RequiresPath(t *testing.T) {
	_, err := OpenSQLite(context.Background(), " ")
	require.Error(t, err)
}

func TestSQLite_CRUD(t *testing.T) {
	ctx := context.Background()
	s := openTempStore(t)
	require.Equal(t, DialectSQLite, s.Dialect())

	created, err := s.Create(ctx, subscription("S1", `{"status":"requested"}`))
	require.NoError(t, err)
	require.Equal(t, int64(1), created.Version)

	_, err = s.Create(ctx, subscription("S1", `{}`))
	require.ErrorIs(t, err, types.ErrRecordExists)

	got, err := s.Read(ctx, types.SubscriptionResourceType, "S1")
	require.NoError(t, err)
	require.JSONEq(t, `{"status":"requested"}`, string(got.Payload))
	require.True(t, created.UpdatedAt.Equal(got.UpdatedAt))

	got.Payload = []byte(`{"status":"active"}`)
	updated, err := s.Update(ctx, got)
	require.NoError(t, err)
	require.Equal(t, int64(2), updated.Version)

	_, err = s.Update(ctx, got)
	require.ErrorIs(t, err, types.ErrStaleRecord)

	require.NoError(t, s.Delete(ctx, types.SubscriptionResourceType, "S1"))
	require.ErrorIs(t, s.Delete(ctx, types.SubscriptionResourceType, "S1"), types.ErrRecordNotFound)

	_, err = s.Read(ctx, types.SubscriptionResourceType, "S1")
	require.ErrorIs(t, err, types.ErrRecordNotFound)
	_, err = s.Update(ctx, updated)
	require.ErrorIs(t, err, types.ErrRecordNotFound)
}

func TestSQLite_CreateAssignsID(t *testing.T) {
	s := openTempStore(t)

	rec, err := s.Create(context.Background(), subscription("", `{}`))
	require.NoError(t, err)
	require.NotEmpty(t, rec.ID)
}

func TestSQLite_List(t *testing.T) {
	ctx := context.Background()
	s := openTempStore(t)

	for _, id := range []string{"S2", "S1"} {
		_, err := s.Create(ctx, subscription(id, `{}`))
		require.NoError(t, err)
	}
	_, err := s.Create(ctx, types.Record{ID: "P1", ResourceType: "Patient", Payload: []byte(`{}`)})
	require.NoError(t, err)

	list, err := s.List(ctx, types.SubscriptionResourceType)
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.Equal(t, "S1", list[0].ID)
	require.Equal(t, "S2", list[1].ID)
}

func TestSQLite_JoinsAmbientTransaction(t *testing.T) {
	s := openTempStore(t)

	fired := false
	err := txn.RunInTx(context.Background(), s.DB(), func(ctx context.Context) error {
		if _, err := s.Create(ctx, subscription("S1", `{}`)); err != nil {
			return err
		}
		if err := txn.RegisterCommitHook(ctx, func() { fired = true }); err != nil {
			return err
		}

		return errors.New("abort")
	})
	require.EqualError(t, err, "abort")
	require.False(t, fired)

	_, err = s.Read(context.Background(), types.SubscriptionResourceType, "S1")
	require.ErrorIs(t, err, types.ErrRecordNotFound, "rolled back insert is not visible")

	err = txn.RunInTx(context.Background(), s.DB(), func(ctx context.Context) error {
		_, err := s.Create(ctx, subscription("S1", `{}`))
		if err != nil {
			return err
		}

		return txn.RegisterCommitHook(ctx, func() { fired = true })
	})
	require.NoError(t, err)
	require.True(t, fired)

	_, err = s.Read(context.Background(), types.SubscriptionResourceType, "S1")
	require.NoError(t, err)
}

func TestParseDialect(t *testing.T) {
	d, err := ParseDialect("PostgreSQL")
	require.NoError(t, err)
	require.Equal(t, DialectPostgres, d)

	d, err = ParseDialect("sqlite")
	require.NoError(t, err)
	require.Equal(t, DialectSQLite, d)

	_, err = ParseDialect("oracle")
	require.Error(t, err)
}

func TestRebind(t *testing.T) {
	q := `UPDATE records SET payload = ? WHERE id = ? AND version = ?`
	require.Equal(t, q, DialectSQLite.rebind(q))
	require.Equal(t, `UPDATE records SET payload = $1 WHERE id = $2 AND version = $3`, DialectPostgres.rebind(q))
}
