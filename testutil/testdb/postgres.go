package testdb

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	migrate "github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// TestDB represents a test database instance
type TestDB struct {
	Container *postgres.PostgresContainer
	Pool      *pgxpool.Pool
	ConnStr   string
}

// NewTestDB starts a PostgreSQL container and applies every up migration
// with golang-migrate, the same path the server takes with AUTO_MIGRATE.
func NewTestDB(ctx context.Context) (*TestDB, error) {
	sourceURL, err := migrationsSource()
	if err != nil {
		return nil, err
	}

	container, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("coopledger_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(120*time.Second),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to start postgres container: %w", err)
	}

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		container.Terminate(ctx)
		return nil, fmt.Errorf("failed to get connection string: %w", err)
	}

	if err := applyMigrations(sourceURL, connStr); err != nil {
		container.Terminate(ctx)
		return nil, err
	}

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		container.Terminate(ctx)
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		container.Terminate(ctx)
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &TestDB{
		Container: container,
		Pool:      pool,
		ConnStr:   connStr,
	}, nil
}

func applyMigrations(sourceURL, connStr string) error {
	m, err := migrate.New(sourceURL, connStr)
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	return nil
}

// tables lists every table the migrations create. TRUNCATE skips the row
// triggers that keep journal rows immutable.
var tables = []string{
	"workflow_history",
	"meeting_attendees",
	"meetings",
	"payroll_items",
	"payroll_runs",
	"loan_emi_schedules",
	"loan_applications",
	"loan_products",
	"saving_transactions",
	"saving_accounts",
	"saving_products",
	"share_transactions",
	"share_accounts",
	"members",
	"share_classes",
	"sequence_counters",
	"journal_lines",
	"journal_entries",
	"product_gl_maps",
	"account_balances",
	"accounts",
}

// Reset clears all data from the database
func (db *TestDB) Reset(ctx context.Context) error {
	_, err := db.Pool.Exec(ctx, "TRUNCATE TABLE "+strings.Join(tables, ", ")+" CASCADE")
	if err != nil {
		return fmt.Errorf("failed to truncate tables: %w", err)
	}
	return nil
}

// Close closes the connection pool and terminates the container
func (db *TestDB) Close(ctx context.Context) error {
	if db.Pool != nil {
		db.Pool.Close()
	}
	if db.Container != nil {
		return db.Container.Terminate(ctx)
	}
	return nil
}

// migrationsSource returns a file:// URL for the repo's migrations directory
func migrationsSource() (string, error) {
	_, filename, _, ok := runtime.Caller(0)
	if !ok {
		return "", errors.New("failed to get current file path")
	}

	// testutil/testdb/postgres.go -> migrations/
	dir := filepath.Join(filepath.Dir(filepath.Dir(filepath.Dir(filename))), "migrations")
	if _, err := os.Stat(dir); err != nil {
		return "", fmt.Errorf("migrations directory not found: %w", err)
	}
	return "file://" + filepath.ToSlash(dir), nil
}
