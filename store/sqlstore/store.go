// Package sqlstore provides a types.RecordStore over database/sql.
//
// Records live in a single table keyed by (resource_type, id) with an integer version
// column used for optimistic concurrency. Writes join the *sql.Tx carried by a txn
// scope in the context, so a store write and the engine's commit hooks share one
// transaction boundary.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/arloliu/subwatch/store/sqlstore/migrations"
	"github.com/arloliu/subwatch/txn"
	"github.com/arloliu/subwatch/types"
	"github.com/google/uuid"
	_ "github.com/lib/pq"  // postgres driver
	_ "modernc.org/sqlite" // sqlite driver
)

// Store persists records in a SQL table.
type Store struct {
	db      *sql.DB
	dialect Dialect
	now     func() time.Time
}

// Compile-time assertion that Store implements RecordStore.
var _ types.RecordStore = (*Store)(nil)

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// New wraps an open database handle. Call Migrate before first use on a new database.
func New(db *sql.DB, dialect Dialect) *Store {
	return &Store{db: db, dialect: dialect, now: time.Now}
}

// OpenSQLite opens (creating if needed) a SQLite database file and applies the schema.
func OpenSQLite(ctx context.Context, path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"

	return open(ctx, DialectSQLite, dsn)
}

// OpenPostgres connects to PostgreSQL and applies the schema.
func OpenPostgres(ctx context.Context, dsn string) (*Store, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("postgres dsn is required")
	}

	return open(ctx, DialectPostgres, dsn)
}

func open(ctx context.Context, dialect Dialect, dsn string) (*Store, error) {
	db, err := sql.Open(dialect.DriverName(), dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s db: %w", dialect, err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s db: %w", dialect, err)
	}

	s := New(db, dialect)
	if err := s.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return s, nil
}

// Migrate creates the records table if it does not exist.
func (s *Store) Migrate(ctx context.Context) error {
	schema, err := migrations.FS.ReadFile(s.dialect.schemaFile())
	if err != nil {
		return fmt.Errorf("read %s schema: %w", s.dialect, err)
	}
	if _, err := s.db.ExecContext(ctx, string(schema)); err != nil {
		return fmt.Errorf("apply %s schema: %w", s.dialect, err)
	}

	return nil
}

// DB returns the underlying handle, for use with txn.RunInTx.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Dialect returns the store's SQL dialect.
func (s *Store) Dialect() Dialect {
	return s.dialect
}

// Close closes the database handle.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}

	return s.db.Close()
}

func (s *Store) q(ctx context.Context) querier {
	if tx := txn.SQLTx(ctx); tx != nil {
		return tx
	}

	return s.db
}

// Create inserts rec at Version 1. An empty ID is replaced by a random UUID.
func (s *Store) Create(ctx context.Context, rec types.Record) (types.Record, error) {
	if err := ctx.Err(); err != nil {
		return types.Record{}, err
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	rec.Version = 1
	rec.UpdatedAt = s.now().UTC().Truncate(time.Millisecond)

	_, err := s.q(ctx).ExecContext(ctx,
		s.dialect.rebind(`INSERT INTO records (resource_type, id, version, payload, updated_at) VALUES (?, ?, ?, ?, ?)`),
		rec.ResourceType, rec.ID, rec.Version, rec.Payload, toMillis(rec.UpdatedAt),
	)
	if err != nil {
		if s.dialect.isUniqueViolation(err) {
			return types.Record{}, fmt.Errorf("%w: %s/%s", types.ErrRecordExists, rec.ResourceType, rec.ID)
		}

		return types.Record{}, fmt.Errorf("create record %s/%s: %w", rec.ResourceType, rec.ID, err)
	}

	return rec, nil
}

// Read returns the stored record.
func (s *Store) Read(ctx context.Context, resourceType, id string) (types.Record, error) {
	if err := ctx.Err(); err != nil {
		return types.Record{}, err
	}

	row := s.q(ctx).QueryRowContext(ctx,
		s.dialect.rebind(`SELECT version, payload, updated_at FROM records WHERE resource_type = ? AND id = ?`),
		resourceType, id,
	)

	rec := types.Record{ID: id, ResourceType: resourceType}
	var updatedAt int64
	if err := row.Scan(&rec.Version, &rec.Payload, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Record{}, fmt.Errorf("%w: %s/%s", types.ErrRecordNotFound, resourceType, id)
		}

		return types.Record{}, fmt.Errorf("read record %s/%s: %w", resourceType, id, err)
	}
	rec.UpdatedAt = fromMillis(updatedAt)

	return rec, nil
}

// Update writes rec when rec.Version matches the stored version.
//
// Returns:
//   - types.Record: Stored record with Version incremented
//   - error: ErrRecordNotFound or ErrStaleRecord
func (s *Store) Update(ctx context.Context, rec types.Record) (types.Record, error) {
	if err := ctx.Err(); err != nil {
		return types.Record{}, err
	}

	q := s.q(ctx)
	updatedAt := s.now().UTC().Truncate(time.Millisecond)
	res, err := q.ExecContext(ctx,
		s.dialect.rebind(`UPDATE records SET payload = ?, version = version + 1, updated_at = ? WHERE resource_type = ? AND id = ? AND version = ?`),
		rec.Payload, toMillis(updatedAt), rec.ResourceType, rec.ID, rec.Version,
	)
	if err != nil {
		return types.Record{}, fmt.Errorf("update record %s/%s: %w", rec.ResourceType, rec.ID, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return types.Record{}, fmt.Errorf("update record %s/%s: %w", rec.ResourceType, rec.ID, err)
	}
	if n == 0 {
		var current int64
		err := q.QueryRowContext(ctx,
			s.dialect.rebind(`SELECT version FROM records WHERE resource_type = ? AND id = ?`),
			rec.ResourceType, rec.ID,
		).Scan(&current)
		if errors.Is(err, sql.ErrNoRows) {
			return types.Record{}, fmt.Errorf("%w: %s/%s", types.ErrRecordNotFound, rec.ResourceType, rec.ID)
		}
		if err != nil {
			return types.Record{}, fmt.Errorf("update record %s/%s: %w", rec.ResourceType, rec.ID, err)
		}

		return types.Record{}, fmt.Errorf("%w: %s/%s at version %d, write based on %d",
			types.ErrStaleRecord, rec.ResourceType, rec.ID, current, rec.Version)
	}

	rec.Version++
	rec.UpdatedAt = updatedAt

	return rec, nil
}

// Delete removes the record.
func (s *Store) Delete(ctx context.Context, resourceType, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	res, err := s.q(ctx).ExecContext(ctx,
		s.dialect.rebind(`DELETE FROM records WHERE resource_type = ? AND id = ?`),
		resourceType, id,
	)
	if err != nil {
		return fmt.Errorf("delete record %s/%s: %w", resourceType, id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete record %s/%s: %w", resourceType, id, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s/%s", types.ErrRecordNotFound, resourceType, id)
	}

	return nil
}

// List returns all records of resourceType ordered by ID.
func (s *Store) List(ctx context.Context, resourceType string) ([]types.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	rows, err := s.q(ctx).QueryContext(ctx,
		s.dialect.rebind(`SELECT id, version, payload, updated_at FROM records WHERE resource_type = ? ORDER BY id`),
		resourceType,
	)
	if err != nil {
		return nil, fmt.Errorf("list records %s: %w", resourceType, err)
	}
	defer rows.Close()

	var out []types.Record
	for rows.Next() {
		rec := types.Record{ResourceType: resourceType}
		var updatedAt int64
		if err := rows.Scan(&rec.ID, &rec.Version, &rec.Payload, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan record %s: %w", resourceType, err)
		}
		rec.UpdatedAt = fromMillis(updatedAt)
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list records %s: %w", resourceType, err)
	}

	return out, nil
}
