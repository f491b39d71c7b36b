package archive

import (
	"context"
	"fmt"
	"log"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PoolConfig carries the Timescale/Postgres connection parameters (spec
// §6).
type PoolConfig struct {
	Host     string
	Port     int
	Database string
	Username string
	Password string
}

// dsn builds a libpq-style connection string from cfg.
func (cfg PoolConfig) dsn() string {
	return fmt.Sprintf("host=%s port=%d dbname=%s user=%s password=%s sslmode=disable",
		cfg.Host, cfg.Port, cfg.Database, cfg.Username, cfg.Password)
}

// maintenanceDSN connects to the server's default "postgres" database, the
// one guaranteed to exist, so the target database can be created if it is
// missing.
func (cfg PoolConfig) maintenanceDSN() string {
	return fmt.Sprintf("host=%s port=%d dbname=postgres user=%s password=%s sslmode=disable",
		cfg.Host, cfg.Port, cfg.Username, cfg.Password)
}

// NewPool opens a pgx connection pool to the Timescale/Postgres database
// described by cfg, creating the database first if it does not already
// exist (spec §4.1's "creates database ... if missing"), then verifying
// connectivity with a ping before returning.
func NewPool(ctx context.Context, cfg PoolConfig) (*pgxpool.Pool, error) {
	if err := ensureDatabase(ctx, cfg); err != nil {
		return nil, fmt.Errorf("ensure database exists: %w", err)
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.dsn())
	if err != nil {
		return nil, fmt.Errorf("parse pool config: %w", err)
	}
	poolCfg.MaxConns = 10
	poolCfg.MaxConnLifetime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("open connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	log.Printf("archive: connected to %s:%d/%s", cfg.Host, cfg.Port, cfg.Database)
	return pool, nil
}

// validDatabaseName is deliberately conservative: CREATE DATABASE cannot be
// parameterized, so the name is checked against this pattern before being
// interpolated into SQL.
var validDatabaseName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// ensureDatabase connects to the server's maintenance database and issues
// CREATE DATABASE for cfg.Database if it is not already present in
// pg_database. A fresh Postgres/TimescaleDB instance has no database but
// the default "postgres" one, so this must run before any pool is opened
// against cfg.Database.
func ensureDatabase(ctx context.Context, cfg PoolConfig) error {
	conn, err := pgx.Connect(ctx, cfg.maintenanceDSN())
	if err != nil {
		return fmt.Errorf("connect to maintenance database: %w", err)
	}
	defer conn.Close(ctx)

	var exists bool
	if err := conn.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM pg_database WHERE datname = $1)`, cfg.Database,
	).Scan(&exists); err != nil {
		return fmt.Errorf("check database existence: %w", err)
	}
	if exists {
		return nil
	}

	if !validDatabaseName.MatchString(cfg.Database) {
		return fmt.Errorf("refusing to create database with unsafe name %q", cfg.Database)
	}

	if _, err := conn.Exec(ctx, fmt.Sprintf("CREATE DATABASE %s", cfg.Database)); err != nil {
		return fmt.Errorf("create database %q: %w", cfg.Database, err)
	}

	log.Printf("archive: created database %q", cfg.Database)
	return nil
}
