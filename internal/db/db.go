// Package db opens the principal store connection. Postgres is used when a DSN
// is configured; otherwise a local SQLite file keeps single-host setups working.
package db

import (
	"database/sql"
	"errors"
	"strconv"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

// Dialect is the SQL flavour chosen once at startup. Queries are written with
// '?' placeholders and rebound per dialect.
type Dialect string

const (
	Postgres Dialect = "postgres"
	SQLite   Dialect = "sqlite"
)

// DriverName returns the database/sql driver registered for the dialect.
func (d Dialect) DriverName() string {
	if d == Postgres {
		return "pgx"
	}
	return "sqlite"
}

// MigrationDir is the directory under MigrationFS holding this dialect's migrations.
func (d Dialect) MigrationDir() string {
	return "migrations/" + string(d)
}

// Rebind rewrites '?' placeholders into the dialect's bind syntax.
// SQLite accepts '?' as-is; Postgres needs $1..$n.
func (d Dialect) Rebind(query string) string {
	if d != Postgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

// Open opens a connection for the dialect and verifies it with a ping. Caller must call Close when done.
func Open(dialect Dialect, dsn string) (*sql.DB, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, errors.New("db: empty DSN")
	}
	if dialect == SQLite {
		dsn = sqliteDSN(dsn)
	}
	conn, err := sql.Open(dialect.DriverName(), dsn)
	if err != nil {
		return nil, err
	}
	if dialect == SQLite {
		// A single writer avoids SQLITE_BUSY between the sweeper and reactive handlers.
		conn.SetMaxOpenConns(1)
	}
	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return conn, nil
}

// sqliteDSN turns a bare file path into a modernc DSN with a busy timeout and WAL.
func sqliteDSN(path string) string {
	if strings.HasPrefix(path, "file:") || strings.Contains(path, "?") {
		return path
	}
	return "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
}
