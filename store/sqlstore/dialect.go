package sqlstore

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/lib/pq"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"
)

// Dialect selects placeholder syntax, schema and error classification.
type Dialect int

const (
	// DialectSQLite targets modernc.org/sqlite (driver name "sqlite").
	DialectSQLite Dialect = iota
	// DialectPostgres targets github.com/lib/pq (driver name "postgres").
	DialectPostgres
)

// String returns the dialect name.
func (d Dialect) String() string {
	switch d {
	case DialectSQLite:
		return "sqlite"
	case DialectPostgres:
		return "postgres"
	default:
		return "unknown"
	}
}

// DriverName returns the database/sql driver name registered for the dialect.
func (d Dialect) DriverName() string {
	return d.String()
}

func (d Dialect) schemaFile() string {
	return d.String() + ".sql"
}

// rebind rewrites '?' placeholders into the dialect's syntax.
func (d Dialect) rebind(query string) string {
	if d != DialectPostgres {
		return query
	}

	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))

			continue
		}
		b.WriteRune(r)
	}

	return b.String()
}

func (d Dialect) isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}

	switch d {
	case DialectPostgres:
		var pqErr *pq.Error
		if errors.As(err, &pqErr) {
			return pqErr.Code == "23505"
		}
	case DialectSQLite:
		var sqliteErr *msqlite.Error
		if errors.As(err, &sqliteErr) {
			switch sqliteErr.Code() {
			case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
				return true
			}
		}
	}

	return strings.Contains(strings.ToLower(err.Error()), "unique constraint")
}

// ParseDialect maps a dialect name to a Dialect.
func ParseDialect(name string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "sqlite", "sqlite3":
		return DialectSQLite, nil
	case "postgres", "postgresql", "pq":
		return DialectPostgres, nil
	default:
		return 0, fmt.Errorf("unknown sql dialect %q", name)
	}
}
