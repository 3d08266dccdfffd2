// Package database opens the configured SQL backend and runs its migrations.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"time"

	"github.com/asakaida/polyload/internal/infrastructure/config"
	"github.com/golang-migrate/migrate/v4"
	migratedb "github.com/golang-migrate/migrate/v4/database"
	_ "github.com/golang-migrate/migrate/v4/source/file"
)

// MigrationsDir is the migrations root relative to the project root
const MigrationsDir = "internal/infrastructure/database/migrations"

// Database is an open connection together with the driver it was opened with
type Database struct {
	DB     *sql.DB
	Driver string
}

// Open connects to the backend selected by cfg.Driver
func Open(cfg *config.DatabaseConfig) (*Database, error) {
	switch cfg.Driver {
	case config.DriverPostgres, "":
		return NewPostgres(cfg)
	case config.DriverSQLite:
		return NewSQLite(cfg.SQLitePath)
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", cfg.Driver)
	}
}

// MigrationsPath returns the migrations directory for driver below root
func MigrationsPath(root, driver string) string {
	return filepath.Join(root, MigrationsDir, driver)
}

// NewMigrate creates a migrate instance reading migrations from migrationsPath
func (d *Database) NewMigrate(migrationsPath string) (*migrate.Migrate, error) {
	driver, err := d.migrateDriver()
	if err != nil {
		return nil, fmt.Errorf("failed to create migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance(
		fmt.Sprintf("file://%s", migrationsPath),
		d.Driver,
		driver,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create migration instance: %w", err)
	}
	return m, nil
}

func (d *Database) migrateDriver() (migratedb.Driver, error) {
	if d.Driver == config.DriverSQLite {
		return newSQLiteMigrateDriver(d.DB)
	}
	return newPostgresMigrateDriver(d.DB)
}

// RunMigrations runs database migrations
func (d *Database) RunMigrations(migrationsPath string) error {
	m, err := d.NewMigrate(migrationsPath)
	if err != nil {
		return err
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// HealthCheck checks if the database connection is healthy
func (d *Database) HealthCheck() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := d.DB.PingContext(ctx); err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}
	return nil
}

// Close closes the database connection
func (d *Database) Close() error {
	if d.DB != nil {
		return d.DB.Close()
	}
	return nil
}
