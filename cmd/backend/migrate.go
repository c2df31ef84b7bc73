package main

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/hairizuanbinnoorazman/persona-navigator/database"
	"github.com/spf13/cobra"
)

var errSQLiteMigrations = errors.New("sqlite databases are migrated automatically on serve")

// migrationsPath overrides database.migrations_path when the flag is set.
var migrationsPath string

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Manage the MySQL schema",
	Long: `Applies or reverts the schema migrations. The migrations built into the binary are
used unless --path or database.migrations_path names a directory.`,
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply all pending migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withMigrationDB(cmd, func(sqlDB *sql.DB, path string) error {
			if err := database.RunMigrations(sqlDB, path); err != nil {
				return err
			}
			return reportVersion(cmd, sqlDB, path, "schema up to date")
		})
	},
}

var migrateDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Revert the most recent migration",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withMigrationDB(cmd, func(sqlDB *sql.DB, path string) error {
			if err := database.RollbackMigration(sqlDB, path); err != nil {
				return err
			}
			return reportVersion(cmd, sqlDB, path, "rolled back one migration")
		})
	},
}

var migrateVersionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show the applied schema version",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withMigrationDB(cmd, func(sqlDB *sql.DB, path string) error {
			return reportVersion(cmd, sqlDB, path, "schema")
		})
	},
}

func init() {
	migrateCmd.AddCommand(migrateUpCmd, migrateDownCmd, migrateVersionCmd)

	migrateCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file path")
	migrateCmd.PersistentFlags().StringVarP(&migrationsPath, "path", "p", "", "migrations directory (default: built-in migrations)")

	rootCmd.AddCommand(migrateCmd)
}

// resolveMigrationsPath picks the flag over the config value. Empty means the built-in set.
func resolveMigrationsPath(cmd *cobra.Command, cfg DatabaseConfig) string {
	if cmd.Flags().Changed("path") {
		return migrationsPath
	}
	return cfg.MigrationsPath
}

// withMigrationDB opens the configured MySQL database for the duration of fn.
func withMigrationDB(cmd *cobra.Command, fn func(sqlDB *sql.DB, path string) error) error {
	cfg, err := LoadConfig(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if strings.EqualFold(cfg.Database.Driver, "sqlite") {
		return errSQLiteMigrations
	}

	db, err := database.Connect(databaseConfig(cfg.Database))
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get database instance: %w", err)
	}
	defer sqlDB.Close()

	return fn(sqlDB, resolveMigrationsPath(cmd, cfg.Database))
}

func reportVersion(cmd *cobra.Command, sqlDB *sql.DB, path, label string) error {
	version, dirty, err := database.MigrationVersion(sqlDB, path)
	if err != nil {
		return err
	}
	state := "clean"
	if dirty {
		state = "dirty"
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s: version %d (%s)\n", label, version, state)
	return nil
}
