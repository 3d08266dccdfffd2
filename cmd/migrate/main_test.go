package main

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	viper.Reset()
	t.Cleanup(viper.Reset)

	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestMigrate_SQLite(t *testing.T) {
	t.Setenv("DB_DRIVER", "sqlite")
	t.Setenv("SQLITE_PATH", filepath.Join(t.TempDir(), "polyload.db"))

	steps := []struct {
		args []string
		want string
	}{
		{[]string{"version"}, "Current version: none (no migrations applied)\n"},
		{[]string{"up"}, "Migration up completed successfully\n"},
		{[]string{"up"}, "No migrations to apply\n"},
		{[]string{"version"}, "Current version: 1\n"},
		{[]string{"down"}, "Rolled back 1 migration(s)\n"},
		{[]string{"goto", "1"}, "Migrated to version 1\n"},
		{[]string{"goto", "1"}, "Already at version 1\n"},
		{[]string{"force", "1"}, "Migration forced to version 1\n"},
	}

	for _, step := range steps {
		out, err := execute(t, step.args...)
		require.NoError(t, err, "migrate %v", step.args)
		assert.Equal(t, step.want, out, "migrate %v", step.args)
	}
}

func TestMigrate_Errors(t *testing.T) {
	t.Setenv("DB_DRIVER", "sqlite")
	t.Setenv("SQLITE_PATH", filepath.Join(t.TempDir(), "polyload.db"))

	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{name: "bad steps", args: []string{"down", "two"}, wantErr: "invalid steps"},
		{name: "zero steps", args: []string{"down", "0"}, wantErr: "invalid steps"},
		{name: "bad goto version", args: []string{"goto", "v1"}, wantErr: "invalid version"},
		{name: "bad force version", args: []string{"force", "x"}, wantErr: "invalid version"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := execute(t, tt.args...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}

	t.Run("unsupported driver", func(t *testing.T) {
		t.Setenv("DB_DRIVER", "mysql")
		_, err := execute(t, "version")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unsupported DB_DRIVER")
	})
}
