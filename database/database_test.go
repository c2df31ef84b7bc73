package database

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_DSN(t *testing.T) {
	cfg := Config{Host: "db", Port: 3306, User: "nav", Password: "secret", Database: "personas"}
	assert.Equal(t, "nav:secret@tcp(db:3306)/personas?charset=utf8mb4&parseTime=True&loc=UTC&multiStatements=true", cfg.DSN())
}

func TestConnect_SQLite(t *testing.T) {
	db, err := Connect(Config{
		Driver:       "sqlite",
		Database:     filepath.Join(t.TempDir(), "nav.db"),
		MaxOpenConns: 1,
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	defer sqlDB.Close()

	assert.Equal(t, 1, sqlDB.Stats().MaxOpenConnections)
	require.NoError(t, db.Exec("CREATE TABLE ping_check (id INTEGER)").Error)
}

func TestConnect_UnsupportedDriver(t *testing.T) {
	_, err := Connect(Config{Driver: "postgres"})
	assert.ErrorIs(t, err, ErrUnsupportedDriver)
}

func TestEmbeddedMigrations(t *testing.T) {
	src, err := embeddedMigrations()
	require.NoError(t, err)
	defer src.Close()

	var versions []uint
	version, err := src.First()
	require.NoError(t, err)
	for {
		versions = append(versions, version)

		up, name, err := src.ReadUp(version)
		require.NoError(t, err, "version %d has no up migration", version)
		body, err := io.ReadAll(up)
		up.Close()
		require.NoError(t, err)
		assert.Contains(t, strings.ToUpper(string(body)), "CREATE TABLE", name)

		down, _, err := src.ReadDown(version)
		require.NoError(t, err, "version %d has no down migration", version)
		down.Close()

		version, err = src.Next(version)
		if errors.Is(err, os.ErrNotExist) {
			break
		}
		require.NoError(t, err)
	}
	assert.Equal(t, []uint{1, 2, 3, 4}, versions)
}
