package main

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"

	"github.com/asakaida/polyload/internal/infrastructure/config"
	"github.com/asakaida/polyload/internal/infrastructure/database"
	"github.com/golang-migrate/migrate/v4"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		log.Fatalf("Failed to execute command: %v", err)
	}
}

func newRootCmd() *cobra.Command {
	var env string

	root := &cobra.Command{
		Use:   "migrate",
		Short: "Database migration tool for polyload",
		Long: `Database migration tool for polyload.
Manages the PostgreSQL or SQLite tables backing the models using golang-migrate.
The driver is taken from DB_DRIVER.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&env, "env", "e", "dev", "Environment to use (dev, test, prod)")

	run := func(fn func(m *migrate.Migrate, out io.Writer, args []string) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			return withMigrate(env, func(m *migrate.Migrate) error {
				return fn(m, cmd.OutOrStdout(), args)
			})
		}
	}

	root.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE:  run(runUp),
	})
	root.AddCommand(&cobra.Command{
		Use:   "down [steps]",
		Short: "Roll back migrations (default: 1)",
		Args:  cobra.MaximumNArgs(1),
		RunE:  run(runDown),
	})
	root.AddCommand(&cobra.Command{
		Use:   "goto <version>",
		Short: "Migrate to a specific version",
		Args:  cobra.ExactArgs(1),
		RunE:  run(runGoto),
	})
	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show current migration version",
		Args:  cobra.NoArgs,
		RunE:  run(runVersion),
	})
	root.AddCommand(&cobra.Command{
		Use:   "force <version>",
		Short: "Force set migration version (use with caution)",
		Long:  `Force set the migration version without running migrations. Use with caution.`,
		Args:  cobra.ExactArgs(1),
		RunE:  run(runForce),
	})
	return root
}

// withMigrate connects to the configured database and hands fn a migrate
// instance reading the migrations of that driver
func withMigrate(env string, fn func(m *migrate.Migrate) error) error {
	if err := config.InitConfig(env); err != nil {
		return fmt.Errorf("failed to initialize config: %w", err)
	}
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	db, err := database.Open(&cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	path := database.MigrationsPath(config.ProjectRoot(), db.Driver)
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("migrations for %s not found: %w", db.Driver, err)
	}

	m, err := db.NewMigrate(path)
	if err != nil {
		return err
	}
	defer m.Close()

	return fn(m)
}

func runUp(m *migrate.Migrate, out io.Writer, _ []string) error {
	err := m.Up()
	if errors.Is(err, migrate.ErrNoChange) {
		fmt.Fprintln(out, "No migrations to apply")
		return nil
	}
	if err != nil {
		return fmt.Errorf("migration up failed: %w", err)
	}
	fmt.Fprintln(out, "Migration up completed successfully")
	return nil
}

func runDown(m *migrate.Migrate, out io.Writer, args []string) error {
	steps := 1
	if len(args) > 0 {
		n, err := strconv.Atoi(args[0])
		if err != nil || n < 1 {
			return fmt.Errorf("invalid steps %q: want a positive number", args[0])
		}
		steps = n
	}

	err := m.Steps(-steps)
	if errors.Is(err, migrate.ErrNoChange) {
		fmt.Fprintln(out, "No migrations to roll back")
		return nil
	}
	if err != nil {
		return fmt.Errorf("migration down failed: %w", err)
	}
	fmt.Fprintf(out, "Rolled back %d migration(s)\n", steps)
	return nil
}

func runGoto(m *migrate.Migrate, out io.Writer, args []string) error {
	version, err := strconv.ParseUint(args[0], 10, 32)
	if err != nil {
		return fmt.Errorf("invalid version %q", args[0])
	}

	err = m.Migrate(uint(version))
	if errors.Is(err, migrate.ErrNoChange) {
		fmt.Fprintf(out, "Already at version %d\n", version)
		return nil
	}
	if err != nil {
		return fmt.Errorf("migration goto failed: %w", err)
	}
	fmt.Fprintf(out, "Migrated to version %d\n", version)
	return nil
}

func runVersion(m *migrate.Migrate, out io.Writer, _ []string) error {
	version, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		fmt.Fprintln(out, "Current version: none (no migrations applied)")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to get version: %w", err)
	}

	if dirty {
		fmt.Fprintf(out, "Current version: %d (dirty - migration may have failed)\n", version)
		return nil
	}
	fmt.Fprintf(out, "Current version: %d\n", version)
	return nil
}

func runForce(m *migrate.Migrate, out io.Writer, args []string) error {
	version, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("invalid version %q", args[0])
	}
	if err := m.Force(version); err != nil {
		return fmt.Errorf("migration force failed: %w", err)
	}
	fmt.Fprintf(out, "Migration forced to version %d\n", version)
	return nil
}
