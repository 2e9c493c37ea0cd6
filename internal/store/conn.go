package store

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3" // registers the "sqlite3" driver

	"github.com/hadv/ethaura-passkeys/internal/apierror"
	"github.com/hadv/ethaura-passkeys/internal/log"
	"github.com/hadv/ethaura-passkeys/internal/metrics"
)

// Config configures the SQLite-backed storage engine.
type Config struct {
	// File is the path to the primary database file.
	File string
	// CacheSizeKiB is the page cache size. Defaults to 64 MiB.
	CacheSizeKiB int
	// BusyTimeout bounds how long a writer retries against a locked
	// resource before failing. Defaults to 5s per the storage contract.
	BusyTimeout time.Duration
}

// Open creates the SQLite-backed storage engine, applies its durability
// PRAGMAs and runs migrations idempotently.
func (c Config) Open(logger log.Logger, m *metrics.Metrics) (*conn, error) {
	if c.CacheSizeKiB == 0 {
		c.CacheSizeKiB = 64 * 1024
	}
	if c.BusyTimeout == 0 {
		c.BusyTimeout = 5 * time.Second
	}

	db, err := sql.Open("sqlite3", c.File)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	// A single connection serializes every statement at the database/sql
	// level, reads included: within this process a reader waits until an
	// in-flight write or transaction releases the connection. WAL journaling
	// is still enabled below.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL;",
		fmt.Sprintf("PRAGMA busy_timeout = %d;", c.BusyTimeout.Milliseconds()),
		"PRAGMA synchronous = NORMAL;",
		"PRAGMA foreign_keys = ON;",
		fmt.Sprintf("PRAGMA cache_size = -%d;", c.CacheSizeKiB),
		"PRAGMA temp_store = MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return nil, fmt.Errorf("apply pragma %q: %w", p, err)
		}
	}

	co := &conn{db: db, dbFile: c.File, logger: logger, metrics: m}
	if err := co.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return co, nil
}

// conn is the main database connection. It implements Storage.
type conn struct {
	db      *sql.DB
	dbFile  string
	logger  log.Logger
	metrics *metrics.Metrics
}

func (c *conn) Close() error { return c.db.Close() }

// trans wraps a single SQLite transaction.
type trans struct {
	tx *sql.Tx
	c  *conn
}

func (c *conn) record(err error) error {
	c.metrics.RecordQuery(err)
	if isBusy(err) {
		return apierror.Wrap(apierror.CodeBusy, "storage busy, retry", err)
	}
	return err
}

func (c *conn) exec(query string, args ...interface{}) (sql.Result, error) {
	res, err := c.db.Exec(query, args...)
	return res, c.record(err)
}

func (c *conn) query(query string, args ...interface{}) (*sql.Rows, error) {
	rows, err := c.db.Query(query, args...)
	return rows, c.record(err)
}

func (c *conn) queryRow(query string, args ...interface{}) *sql.Row {
	return c.db.QueryRow(query, args...)
}

// execTx runs fn inside a single transaction. It does not itself retry on
// SQLITE_BUSY: the driver's busy_timeout PRAGMA already bounds internal
// retries to 5s; a failure past that point is surfaced as CodeBusy.
func (c *conn) execTx(fn func(*trans) error) error {
	sqlTx, err := c.db.Begin()
	if err != nil {
		return c.record(err)
	}
	t := &trans{tx: sqlTx, c: c}
	if err := fn(t); err != nil {
		_ = sqlTx.Rollback()
		return c.record(err)
	}
	if err := sqlTx.Commit(); err != nil {
		return c.record(err)
	}
	c.metrics.RecordQuery(nil)
	return nil
}

func (t *trans) exec(query string, args ...interface{}) (sql.Result, error) {
	return t.tx.Exec(query, args...)
}

func (t *trans) queryRow(query string, args ...interface{}) *sql.Row {
	return t.tx.QueryRow(query, args...)
}

func (t *trans) query(query string, args ...interface{}) (*sql.Rows, error) {
	return t.tx.Query(query, args...)
}
