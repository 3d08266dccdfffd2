package main

import (
	"context"
	"fmt"
	"os"

	"github.com/asakaida/polyload/internal/registry"
	"github.com/asakaida/polyload/internal/repositories/memory"
	"github.com/asakaida/polyload/internal/services"
	"github.com/asakaida/polyload/internal/services/parser"
	"github.com/spf13/cobra"
)

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <file>",
		Short: "Check a model file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dsl, err := readSchemaFile(args[0])
			if err != nil {
				return err
			}

			reg := registry.New()
			svc, err := services.NewModelService(reg, memory.NewRowStore(), nil)
			if err != nil {
				return err
			}
			names, err := svc.LoadSchema(context.Background(), dsl)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d entities OK\n", args[0], len(names))
			return nil
		},
	}
}

func newFmtCmd() *cobra.Command {
	var explicit, write bool

	cmd := &cobra.Command{
		Use:   "fmt <file>",
		Short: "Print a model file in canonical form",
		Long: `Print a model file in canonical form.

With --explicit every default (table, key, join columns) is written out.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dsl, err := readSchemaFile(args[0])
			if err != nil {
				return err
			}

			ast, err := parser.Parse(dsl)
			if err != nil {
				return fmt.Errorf("failed to parse DSL: %w", err)
			}
			if err := parser.NewValidator(ast).Validate(); err != nil {
				return fmt.Errorf("schema validation failed: %w", err)
			}

			if explicit {
				schemas, err := parser.ASTToSchemas(ast)
				if err != nil {
					return fmt.Errorf("failed to convert schema: %w", err)
				}
				ast = parser.SchemasToAST(schemas)
			}

			out := parser.NewGenerator().Generate(ast)
			if write {
				return os.WriteFile(args[0], []byte(out), 0o644)
			}
			_, err = fmt.Fprint(cmd.OutOrStdout(), out)
			return err
		},
	}

	cmd.Flags().BoolVar(&explicit, "explicit", false, "Write out every default")
	cmd.Flags().BoolVarP(&write, "write", "w", false, "Write the result back to the file")
	return cmd
}

func newPlanCmd() *cobra.Command {
	var with []string
	var strict bool

	cmd := &cobra.Command{
		Use:   "plan <file> <entity>",
		Short: "Show the eager-load plan for an entity",
		Long: `Show the eager-load plan for an entity: its default "with" paths merged
with the ones given on the command line.

Loading skips relations a model does not declare. With --strict such a
segment is an error wherever the owning model is known before loading.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			dsl, err := readSchemaFile(args[0])
			if err != nil {
				return err
			}

			svc, err := services.NewModelService(registry.New(), memory.NewRowStore(), nil)
			if err != nil {
				return err
			}
			if _, err := svc.LoadSchema(context.Background(), dsl); err != nil {
				return err
			}

			plan, err := svc.Plan(args[1], with...)
			if err != nil {
				return err
			}
			if strict {
				if err := svc.CheckPaths(args[1], with...); err != nil {
					return err
				}
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s\n%s", args[1], plan)
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&with, "with", nil, "Relationship path to load (repeatable, comma separated)")
	cmd.Flags().BoolVar(&strict, "strict", false, "Fail on relations the models do not declare")
	return cmd
}
