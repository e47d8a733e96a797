// Package database wraps the PostgreSQL connection pool used by the
// analytics service: one primary for writes and optional read replicas
// for the query-heavy statistics path.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/lib/pq"

	"userlytics/pkg/structlog"
)

// DBConfig configuration for database connection
type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string

	// Connection pool settings
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration

	// Timeouts
	ConnectTimeout time.Duration

	// Read replica hosts, same port/credentials as primary
	ReplicaHosts []string
}

// Database represents a database connection with primary and replicas
type Database struct {
	Primary  *sql.DB
	Replicas []*sql.DB
	config   DBConfig

	mu      sync.Mutex
	rrIndex int // round-robin index for replicas
}

// NewDatabase opens the primary connection and any configured replicas.
// A replica that fails to connect is skipped with a warning; reads fall
// back to the primary when no replica is reachable.
func NewDatabase(config DBConfig) (*Database, error) {
	if config.MaxOpenConns == 0 {
		config.MaxOpenConns = 25
	}
	if config.MaxIdleConns == 0 {
		config.MaxIdleConns = 5
	}
	if config.ConnMaxLifetime == 0 {
		config.ConnMaxLifetime = 5 * time.Minute
	}
	if config.ConnMaxIdleTime == 0 {
		config.ConnMaxIdleTime = 1 * time.Minute
	}
	if config.ConnectTimeout == 0 {
		config.ConnectTimeout = 10 * time.Second
	}
	if config.SSLMode == "" {
		config.SSLMode = "disable"
	}

	db := &Database{config: config}

	primary, err := db.connect(config.Host)
	if err != nil {
		return nil, fmt.Errorf("connect to primary database: %w", err)
	}
	db.Primary = primary

	for _, host := range config.ReplicaHosts {
		replica, err := db.connect(host)
		if err != nil {
			structlog.Warn("replica unavailable", structlog.Fields{"host": host, "error": err.Error()})
			continue
		}
		db.Replicas = append(db.Replicas, replica)
	}

	return db, nil
}

func (db *Database) connect(host string) (*sql.DB, error) {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s connect_timeout=%d",
		host, db.config.Port, db.config.User, db.config.Password, db.config.DBName,
		db.config.SSLMode, int(db.config.ConnectTimeout.Seconds()))

	conn, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database connection: %w", err)
	}

	conn.SetMaxOpenConns(db.config.MaxOpenConns)
	conn.SetMaxIdleConns(db.config.MaxIdleConns)
	conn.SetConnMaxLifetime(db.config.ConnMaxLifetime)
	conn.SetConnMaxIdleTime(db.config.ConnMaxIdleTime)

	ctx, cancel := context.WithTimeout(context.Background(), db.config.ConnectTimeout)
	defer cancel()

	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return conn, nil
}

// Reader returns a replica connection using round-robin, or the primary
// when no replicas are configured.
func (db *Database) Reader() *sql.DB {
	db.mu.Lock()
	defer db.mu.Unlock()

	if len(db.Replicas) == 0 {
		return db.Primary
	}

	replica := db.Replicas[db.rrIndex]
	db.rrIndex = (db.rrIndex + 1) % len(db.Replicas)
	return replica
}

// Query executes a read query on a replica (or primary if no replicas).
func (db *Database) Query(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	return db.Reader().QueryContext(ctx, query, args...)
}

// QueryRow executes a read query for a single row on a replica.
func (db *Database) QueryRow(ctx context.Context, query string, args ...interface{}) *sql.Row {
	return db.Reader().QueryRowContext(ctx, query, args...)
}

// Exec executes a write query on the primary database.
func (db *Database) Exec(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	return db.Primary.ExecContext(ctx, query, args...)
}

// QueryRowPrimary executes a single-row statement on the primary; writes
// with a RETURNING clause go through here, never through a replica.
func (db *Database) QueryRowPrimary(ctx context.Context, query string, args ...interface{}) *sql.Row {
	return db.Primary.QueryRowContext(ctx, query, args...)
}

// Conn checks out a dedicated connection from the primary pool. Callers
// own the connection until they Close it; the bulk loader uses this so
// each worker streams through its own session.
func (db *Database) Conn(ctx context.Context) (*sql.Conn, error) {
	return db.Primary.Conn(ctx)
}

// Begin starts a transaction on the primary database.
func (db *Database) Begin(ctx context.Context) (*sql.Tx, error) {
	return db.Primary.BeginTx(ctx, nil)
}

// WithTransaction executes fn within a transaction, rolling back on error.
func (db *Database) WithTransaction(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("transaction error: %v, rollback error: %w", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	return nil
}

// Ping checks connectivity to the primary and all replicas.
func (db *Database) Ping(ctx context.Context) error {
	if err := db.Primary.PingContext(ctx); err != nil {
		return fmt.Errorf("primary database ping failed: %w", err)
	}

	for i, replica := range db.Replicas {
		if err := replica.PingContext(ctx); err != nil {
			return fmt.Errorf("replica %d ping failed: %w", i, err)
		}
	}

	return nil
}

// Close closes all database connections.
func (db *Database) Close() error {
	var errs []error

	if err := db.Primary.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close primary: %w", err))
	}

	for i, replica := range db.Replicas {
		if err := replica.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close replica %d: %w", i, err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors closing database connections: %v", errs)
	}

	return nil
}
