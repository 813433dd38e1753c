// Package persistence provides SQLite-based storage for the tick log, the
// year-event cache and world metadata.
package persistence

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/talgya/hamlet/internal/engine"
)

//go:embed migrations/*.sql
var migrations embed.FS

var (
	// ErrStoreUnavailable wraps failures to open or acquire the database.
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrSchema wraps failures to create or upgrade the schema.
	ErrSchema = errors.New("schema initialization failed")
)

// DefaultBusyTimeout bounds how long a tick waits for another writer.
const DefaultBusyTimeout = 5 * time.Second

// DB wraps a SQLite connection for world state persistence.
type DB struct {
	conn *sqlx.DB
}

// Open opens or creates a SQLite database at the given path and brings its
// schema up to date. Write transactions take the database lock up front and
// wait up to busyTimeout for a concurrent tick to finish.
func Open(path string, busyTimeout time.Duration) (*DB, error) {
	if busyTimeout <= 0 {
		busyTimeout = DefaultBusyTimeout
	}
	dsn := fmt.Sprintf("%s?_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)&_txlock=immediate",
		path, busyTimeout.Milliseconds())

	conn, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", ErrStoreUnavailable, path, err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("%w: ping %s: %v", ErrStoreUnavailable, path, err)
	}

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("%w: %v", ErrSchema, err)
	}

	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) migrate() error {
	src, err := iofs.New(migrations, "migrations")
	if err != nil {
		return fmt.Errorf("migration source: %w", err)
	}
	defer src.Close()

	driver, err := sqlite.WithInstance(db.conn.DB, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("migration driver: %w", err)
	}
	// Not closed: the driver's Close would close the shared *sql.DB.
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("migrator: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate up: %w", err)
	}

	version, dirty, err := m.Version()
	if err == nil {
		slog.Debug("schema ready", "version", version, "dirty", dirty)
	}
	return nil
}

// InTx runs fn in a single immediate transaction. The transaction commits
// only if fn returns nil.
func (db *DB) InTx(ctx context.Context, fn func(engine.Ledger) error) error {
	tx, err := db.conn.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin: %v", ErrStoreUnavailable, err)
	}
	defer tx.Rollback()

	if err := fn(ledger{q: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (db *DB) reader() ledger { return ledger{q: db.conn} }

// LatestTick returns the most recently appended record, or nil for an empty log.
func (db *DB) LatestTick(ctx context.Context) (*engine.TickRecord, error) {
	return db.reader().LatestTick(ctx)
}

// RecentTicks returns up to limit of the newest records in append order.
func (db *DB) RecentTicks(ctx context.Context, limit int) ([]engine.TickRecord, error) {
	return db.reader().RecentTicks(ctx, limit)
}

// Ticks returns records with tick index in [from, to] in append order.
// A limit of zero or less returns all of them.
func (db *DB) Ticks(ctx context.Context, from, to int64, limit int) ([]engine.TickRecord, error) {
	return db.reader().Ticks(ctx, from, to, limit)
}

// YearWindow returns the records of one simulated year.
func (db *DB) YearWindow(ctx context.Context, year int64) ([]engine.TickRecord, error) {
	return db.reader().YearWindow(ctx, year)
}

// YearEvent returns the stored events for year, or nil.
func (db *DB) YearEvent(ctx context.Context, year int64) (*engine.YearEvents, error) {
	return db.reader().YearEvent(ctx, year)
}

// Meta retrieves a metadata value.
func (db *DB) Meta(ctx context.Context, key string) (string, bool, error) {
	return db.reader().Meta(ctx, key)
}
