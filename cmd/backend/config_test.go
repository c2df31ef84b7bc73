package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/hairizuanbinnoorazman/persona-navigator/agent"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "mysql", cfg.Database.Driver)
	assert.Empty(t, cfg.Database.MigrationsPath)
	assert.Equal(t, 30, cfg.Agent.MaxSteps)
	assert.Equal(t, 3, cfg.Agent.StuckWindow)
	assert.Equal(t, 2*time.Second, cfg.Agent.RenderDelay)
	assert.Equal(t, time.Hour, cfg.Server.LiveRetention)
	assert.Equal(t, 5, cfg.Pool.MaxSessions)
	assert.Equal(t, 60, cfg.Screencast.Quality)
	assert.Equal(t, "bedrock", cfg.Reasoning.Provider)
	assert.Empty(t, cfg.Provider.APIKey)
}

func TestLoadConfig_FileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
database:
  driver: sqlite
  database: /tmp/nav.db
  migrations_path: ./migrations
agent:
  max_steps: 12
screencast:
  max_fps: 2.5
reasoning:
  provider: gemini
`), 0o600))
	t.Setenv("POOL_MAX_SESSIONS", "9")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "./migrations", cfg.Database.MigrationsPath)
	assert.Equal(t, 12, cfg.Agent.MaxSteps)
	assert.Equal(t, 2.5, cfg.Screencast.MaxFPS)
	assert.Equal(t, "gemini", cfg.Reasoning.Provider)
	assert.Equal(t, 9, cfg.Pool.MaxSessions)
}

func TestLoadStudy(t *testing.T) {
	study, err := loadStudy(strings.NewReader(`
name: signup
task:
  goal: Create an account
  start_url: https://app.example/signup
personas:
  - name: Ada
    viewport: tablet
`))
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, study.ID)
	assert.Equal(t, "Create an account", study.Task.Goal)
	assert.Equal(t, "tablet", study.Personas[0].Viewport)

	_, err = loadStudy(strings.NewReader("name: x\nunknown: 1\n"))
	assert.Error(t, err)

	_, err = loadStudy(strings.NewReader("name: x\n"))
	assert.ErrorIs(t, err, agent.ErrInvalidStudy)
}
