package archive

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"log"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// EnsureSchema idempotently creates the signal_messages table and its
// secondary indexes via golang-migrate, then best-effort promotes the
// table to a TimescaleDB hypertable and adds the composite primary key
// a hypertable requires. Both best-effort steps log a warning and
// continue if the TimescaleDB extension is absent or the key already
// exists, per spec §4.1. The database itself is created earlier, by
// NewPool, before a pool can be opened against it.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	if err := runMigrations(pool); err != nil {
		return fmt.Errorf("run schema migrations: %w", err)
	}

	ensureHypertable(ctx, pool)
	ensureCompositePrimaryKey(ctx, pool)

	return nil
}

func runMigrations(pool *pgxpool.Pool) error {
	source, err := iofs.New(migrationFS, "migrations")
	if err != nil {
		return fmt.Errorf("load embedded migrations: %w", err)
	}

	db := stdlib.OpenDBFromPool(pool)
	defer db.Close()

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("open migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "signalbus", driver)
	if err != nil {
		return fmt.Errorf("construct migrator: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}

// ensureHypertable converts signal_messages into a TimescaleDB
// hypertable partitioned on timestamp. Absence of the timescaledb
// extension is logged and tolerated, not treated as fatal.
func ensureHypertable(ctx context.Context, pool *pgxpool.Pool) {
	_, err := pool.Exec(ctx, `SELECT create_hypertable('signal_messages', 'timestamp', if_not_exists => TRUE)`)
	if err != nil {
		log.Printf("archive: hypertable conversion skipped (timescaledb extension likely absent): %v", err)
	}
}

// ensureCompositePrimaryKey adds the (id, timestamp) composite primary
// key a hypertable partitioned on timestamp requires. It tolerates the
// key already existing from a prior run.
func ensureCompositePrimaryKey(ctx context.Context, pool *pgxpool.Pool) {
	_, err := pool.Exec(ctx, `
		ALTER TABLE signal_messages
		ADD CONSTRAINT signal_messages_pkey PRIMARY KEY (id, timestamp)`)
	if err != nil {
		log.Printf("archive: composite primary key not applied (may already exist): %v", err)
	}
}
