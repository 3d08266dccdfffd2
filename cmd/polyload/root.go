package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/asakaida/polyload/internal/infrastructure/config"
	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "polyload",
		Short: "Eager loading for polymorphic models",
		Long: `polyload loads records together with their relationships, including
polymorphic ones, in a fixed number of batched queries.

Models are described in a small DSL (see "polyload fmt").`,
		SilenceUsage: true,
	}

	root.PersistentFlags().StringP("env", "e", "dev", "Environment to use (dev, test, prod)")

	root.AddCommand(newValidateCmd())
	root.AddCommand(newFmtCmd())
	root.AddCommand(newPlanCmd())
	root.AddCommand(newLoadCmd())
	return root
}

// readSchemaFile reads a model DSL file. Relative paths that do not exist
// in the working directory are tried against the project root.
func readSchemaFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil && os.IsNotExist(err) && !filepath.IsAbs(path) {
		data, err = os.ReadFile(filepath.Join(config.ProjectRoot(), path))
	}
	if err != nil {
		return "", fmt.Errorf("failed to read schema file: %w", err)
	}
	return string(data), nil
}
