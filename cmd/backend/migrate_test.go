package main

import (
	"bytes"
	"database/sql"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveMigrationsPath(t *testing.T) {
	tests := []struct {
		name   string
		args   []string
		config string
		want   string
	}{
		{name: "built-in by default", want: ""},
		{name: "config directory", config: "/srv/migrations", want: "/srv/migrations"},
		{name: "flag overrides config", args: []string{"--path", "./local"}, config: "/srv/migrations", want: "./local"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var path string
			cmd := &cobra.Command{Use: "up"}
			cmd.Flags().StringVarP(&path, "path", "p", "", "")
			require.NoError(t, cmd.ParseFlags(tt.args))

			migrationsPath = path
			assert.Equal(t, tt.want, resolveMigrationsPath(cmd, DatabaseConfig{MigrationsPath: tt.config}))
		})
	}
}

func TestMigrate_SQLiteIsRejected(t *testing.T) {
	t.Setenv("DATABASE_DRIVER", "sqlite")
	configFile = ""

	err := withMigrationDB(migrateUpCmd, func(_ *sql.DB, _ string) error {
		t.Fatal("sqlite must not reach the migrator")
		return nil
	})
	assert.ErrorIs(t, err, errSQLiteMigrations)
}

func TestVersionCmd(t *testing.T) {
	var out bytes.Buffer
	versionCmd.SetOut(&out)
	defer versionCmd.SetOut(nil)

	versionCmd.Run(versionCmd, nil)
	assert.Equal(t, "backend dev (commit unknown, built unknown)\n", out.String())
}
