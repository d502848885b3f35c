package database

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	sqlbuilder "github.com/huandu/go-sqlbuilder"
	"github.com/lib/pq"
	_ "modernc.org/sqlite"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// DB is a pooled connection together with the SQL dialect it speaks.
type DB struct {
	*sql.DB
	driver string
	flavor sqlbuilder.Flavor
}

// NewConnection opens the database and waits until it answers, retrying with
// exponential backoff for up to maxWait.
func NewConnection(ctx context.Context, driver, dsn string, maxWait time.Duration) (*DB, error) {
	db, err := Open(driver, dsn)
	if err != nil {
		return nil, err
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 250 * time.Millisecond
	policy.MaxInterval = 5 * time.Second
	policy.MaxElapsedTime = maxWait

	ping := func() error {
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		return db.PingContext(pingCtx)
	}
	notify := func(err error, wait time.Duration) {
		slog.Warn("Database not reachable, retrying", "driver", driver, "retry_in", wait, "error", err)
	}

	if err := backoff.RetryNotify(ping, backoff.WithContext(policy, ctx), notify); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return db, nil
}

// Open configures the pool without checking connectivity.
func Open(driver, dsn string) (*DB, error) {
	switch driver {
	case DriverPostgres:
		sqlDB, err := sql.Open("postgres", dsn)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}

		sqlDB.SetMaxOpenConns(20)
		sqlDB.SetMaxIdleConns(10)
		sqlDB.SetConnMaxLifetime(time.Hour)
		sqlDB.SetConnMaxIdleTime(time.Hour)

		return &DB{DB: sqlDB, driver: driver, flavor: sqlbuilder.PostgreSQL}, nil

	case DriverSQLite:
		sqlDB, err := sql.Open("sqlite", sqliteDSN(dsn))
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}

		// SQLite only supports one writer at a time. The connection is never
		// recycled so in-memory databases survive.
		sqlDB.SetMaxOpenConns(1)
		sqlDB.SetMaxIdleConns(1)

		return &DB{DB: sqlDB, driver: driver, flavor: sqlbuilder.SQLite}, nil

	default:
		return nil, fmt.Errorf("unsupported database driver: %s", driver)
	}
}

func (db *DB) Driver() string {
	return db.driver
}

func sqliteDSN(dsn string) string {
	if strings.Contains(dsn, "?") {
		return dsn
	}
	pragmas := "?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
	if !strings.Contains(dsn, ":memory:") {
		pragmas += "&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
	}
	return dsn + pragmas
}

// stringList binds a string slice as a Postgres array or, on SQLite, as JSON text.
func (db *DB) stringList(v []string) any {
	if db.driver == DriverPostgres {
		return pq.Array(v)
	}
	return Categories(v)
}

func (db *DB) stringListDest(v *[]string) any {
	if db.driver == DriverPostgres {
		return pq.Array(v)
	}
	return (*Categories)(v)
}
