package postgres

import (
	"database/sql"
	"fmt"
	"os"
	"testing"

	"github.com/asakaida/polyload/internal/infrastructure/config"
	"github.com/asakaida/polyload/internal/infrastructure/database"
)

// SetupTestDB connects to the test database and runs migrations.
// The test is skipped unless POLYLOAD_PG_TESTS=1.
func SetupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	if os.Getenv("POLYLOAD_PG_TESTS") != "1" {
		t.Skip("set POLYLOAD_PG_TESTS=1 to run postgres integration tests")
	}

	if err := config.InitConfig("test"); err != nil {
		t.Fatalf("Failed to init config: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	pg, err := database.NewPostgres(&cfg.Database)
	if err != nil {
		t.Fatalf("Failed to connect to database: %v", err)
	}

	path := database.MigrationsPath(config.ProjectRoot(), config.DriverPostgres)
	if err := pg.RunMigrations(path); err != nil {
		t.Fatalf("Failed to run migrations: %v", err)
	}

	return pg.DB
}

// CleanupTestDB removes test rows and closes the connection
func CleanupTestDB(t *testing.T, db *sql.DB) {
	t.Helper()

	tables := []string{"images", "likes", "comments", "posts", "categories", "users"}
	for _, table := range tables {
		_, err := db.Exec(fmt.Sprintf("DELETE FROM %s", table))
		if err != nil {
			t.Logf("Warning: Failed to clean up table %s: %v", table, err)
		}
	}

	if err := db.Close(); err != nil {
		t.Logf("Warning: Failed to close database: %v", err)
	}
}
