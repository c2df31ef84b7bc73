package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Storage    StorageConfig
	Log        LogConfig
	Agent      AgentConfig
	Pool       PoolConfig
	Provider   ProviderConfig
	Screencast ScreencastConfig
	Reasoning  ReasoningConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host           string
	Port           int
	ReadTimeout    time.Duration
	APIKey         string
	AllowedOrigins []string
	HubBuffer      int
	// LiveRetention is how long finished sessions stay in the live snapshot.
	LiveRetention time.Duration
}

// DatabaseConfig holds database connection configuration.
type DatabaseConfig struct {
	Driver       string // "mysql" or "sqlite"
	Host         string
	Port         int
	User         string
	Password     string
	Database     string
	MaxOpenConns int
	MaxIdleConns int
	// MigrationsPath is a directory of migration files. Empty uses the migrations built into
	// the binary.
	MigrationsPath string
}

// StorageConfig holds blob storage configuration.
type StorageConfig struct {
	Type     string // "local" or "s3"
	BaseDir  string // For local: "./uploads"
	S3Bucket string
	S3Region string
	S3Prefix string
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level      string
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// AgentConfig holds navigation loop and study queue configuration.
type AgentConfig struct {
	MaxSteps           int
	StuckWindow        int
	CompletionProgress int
	HistoryWindow      int
	RenderDelay        time.Duration
	NavigateTimeout    time.Duration
	Workers            int
	QueueSize          int
}

// PoolConfig holds browser session pool configuration.
type PoolConfig struct {
	MaxSessions        int
	Headless           bool
	ChromeBin          string
	NoSandbox          bool
	LeaseCheckInterval time.Duration
	MaxLeaseAge        time.Duration
}

// ProviderConfig holds remote browser provider configuration. An empty APIKey selects the
// local browser backend.
type ProviderConfig struct {
	BaseURL         string
	APIKey          string
	ProjectID       string
	CreateAttempts  int
	BackoffBase     time.Duration
	RecordSession   bool
	AdvancedStealth bool
	SolveCaptchas   bool
}

// ScreencastConfig holds live frame streaming configuration.
type ScreencastConfig struct {
	Enabled       bool
	Quality       int
	MaxWidth      int
	MaxHeight     int
	EveryNthFrame int
	MaxFPS        float64
	Replay        bool
	ReplayEvery   int
}

// ReasoningConfig holds language model configuration.
type ReasoningConfig struct {
	Provider  string // "bedrock" or "gemini"
	Model     string
	Region    string
	APIKey    string
	MaxTokens int
	Timeout   time.Duration
}

// LoadConfig loads configuration from file and environment variables.
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()

	// Set config file
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	// Enable environment variable overrides
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Set defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.api_key", "")
	v.SetDefault("server.allowed_origins", []string{})
	v.SetDefault("server.hub_buffer", 256)
	v.SetDefault("server.live_retention", "1h")

	v.SetDefault("database.driver", "mysql")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 3306)
	v.SetDefault("database.user", "root")
	v.SetDefault("database.password", "password")
	v.SetDefault("database.database", "persona_navigator")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.migrations_path", "")

	v.SetDefault("storage.type", "local")
	v.SetDefault("storage.base_dir", "./uploads")
	v.SetDefault("storage.s3_bucket", "")
	v.SetDefault("storage.s3_region", "us-east-1")
	v.SetDefault("storage.s3_prefix", "")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 100)
	v.SetDefault("log.max_backups", 5)
	v.SetDefault("log.max_age_days", 14)

	v.SetDefault("agent.max_steps", 30)
	v.SetDefault("agent.stuck_window", 3)
	v.SetDefault("agent.completion_progress", 95)
	v.SetDefault("agent.history_window", 8)
	v.SetDefault("agent.render_delay", "2s")
	v.SetDefault("agent.navigate_timeout", "30s")
	v.SetDefault("agent.workers", 2)
	v.SetDefault("agent.queue_size", 16)

	v.SetDefault("pool.max_sessions", 5)
	v.SetDefault("pool.headless", true)
	v.SetDefault("pool.chrome_bin", "")
	v.SetDefault("pool.no_sandbox", false)
	v.SetDefault("pool.lease_check_interval", "1m")
	v.SetDefault("pool.max_lease_age", "30m")

	v.SetDefault("provider.base_url", "https://api.browserbase.com")
	v.SetDefault("provider.api_key", "")
	v.SetDefault("provider.project_id", "")
	v.SetDefault("provider.create_attempts", 3)
	v.SetDefault("provider.backoff_base", "5s")
	v.SetDefault("provider.record_session", true)
	v.SetDefault("provider.advanced_stealth", false)
	v.SetDefault("provider.solve_captchas", true)

	v.SetDefault("screencast.enabled", true)
	v.SetDefault("screencast.quality", 60)
	v.SetDefault("screencast.max_width", 1280)
	v.SetDefault("screencast.max_height", 800)
	v.SetDefault("screencast.every_nth_frame", 1)
	v.SetDefault("screencast.max_fps", 0)
	v.SetDefault("screencast.replay", false)
	v.SetDefault("screencast.replay_every", 3)

	v.SetDefault("reasoning.provider", "bedrock")
	v.SetDefault("reasoning.model", "anthropic.claude-sonnet-4-6")
	v.SetDefault("reasoning.region", "us-east-1")
	v.SetDefault("reasoning.api_key", "")
	v.SetDefault("reasoning.max_tokens", 2048)
	v.SetDefault("reasoning.timeout", "60s")

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found; using defaults
	}

	// Parse configuration
	var config Config

	config.Server.Host = v.GetString("server.host")
	config.Server.Port = v.GetInt("server.port")
	config.Server.ReadTimeout = v.GetDuration("server.read_timeout")
	config.Server.APIKey = v.GetString("server.api_key")
	config.Server.AllowedOrigins = v.GetStringSlice("server.allowed_origins")
	config.Server.HubBuffer = v.GetInt("server.hub_buffer")
	config.Server.LiveRetention = v.GetDuration("server.live_retention")

	config.Database.Driver = v.GetString("database.driver")
	config.Database.Host = v.GetString("database.host")
	config.Database.Port = v.GetInt("database.port")
	config.Database.User = v.GetString("database.user")
	config.Database.Password = v.GetString("database.password")
	config.Database.Database = v.GetString("database.database")
	config.Database.MaxOpenConns = v.GetInt("database.max_open_conns")
	config.Database.MaxIdleConns = v.GetInt("database.max_idle_conns")
	config.Database.MigrationsPath = v.GetString("database.migrations_path")

	config.Storage.Type = v.GetString("storage.type")
	config.Storage.BaseDir = v.GetString("storage.base_dir")
	config.Storage.S3Bucket = v.GetString("storage.s3_bucket")
	config.Storage.S3Region = v.GetString("storage.s3_region")
	config.Storage.S3Prefix = v.GetString("storage.s3_prefix")

	config.Log.Level = v.GetString("log.level")
	config.Log.File = v.GetString("log.file")
	config.Log.MaxSizeMB = v.GetInt("log.max_size_mb")
	config.Log.MaxBackups = v.GetInt("log.max_backups")
	config.Log.MaxAgeDays = v.GetInt("log.max_age_days")

	config.Agent.MaxSteps = v.GetInt("agent.max_steps")
	config.Agent.StuckWindow = v.GetInt("agent.stuck_window")
	config.Agent.CompletionProgress = v.GetInt("agent.completion_progress")
	config.Agent.HistoryWindow = v.GetInt("agent.history_window")
	config.Agent.RenderDelay = v.GetDuration("agent.render_delay")
	config.Agent.NavigateTimeout = v.GetDuration("agent.navigate_timeout")
	config.Agent.Workers = v.GetInt("agent.workers")
	config.Agent.QueueSize = v.GetInt("agent.queue_size")

	config.Pool.MaxSessions = v.GetInt("pool.max_sessions")
	config.Pool.Headless = v.GetBool("pool.headless")
	config.Pool.ChromeBin = v.GetString("pool.chrome_bin")
	config.Pool.NoSandbox = v.GetBool("pool.no_sandbox")
	config.Pool.LeaseCheckInterval = v.GetDuration("pool.lease_check_interval")
	config.Pool.MaxLeaseAge = v.GetDuration("pool.max_lease_age")

	config.Provider.BaseURL = v.GetString("provider.base_url")
	config.Provider.APIKey = v.GetString("provider.api_key")
	config.Provider.ProjectID = v.GetString("provider.project_id")
	config.Provider.CreateAttempts = v.GetInt("provider.create_attempts")
	config.Provider.BackoffBase = v.GetDuration("provider.backoff_base")
	config.Provider.RecordSession = v.GetBool("provider.record_session")
	config.Provider.AdvancedStealth = v.GetBool("provider.advanced_stealth")
	config.Provider.SolveCaptchas = v.GetBool("provider.solve_captchas")

	config.Screencast.Enabled = v.GetBool("screencast.enabled")
	config.Screencast.Quality = v.GetInt("screencast.quality")
	config.Screencast.MaxWidth = v.GetInt("screencast.max_width")
	config.Screencast.MaxHeight = v.GetInt("screencast.max_height")
	config.Screencast.EveryNthFrame = v.GetInt("screencast.every_nth_frame")
	config.Screencast.MaxFPS = v.GetFloat64("screencast.max_fps")
	config.Screencast.Replay = v.GetBool("screencast.replay")
	config.Screencast.ReplayEvery = v.GetInt("screencast.replay_every")

	config.Reasoning.Provider = v.GetString("reasoning.provider")
	config.Reasoning.Model = v.GetString("reasoning.model")
	config.Reasoning.Region = v.GetString("reasoning.region")
	config.Reasoning.APIKey = v.GetString("reasoning.api_key")
	config.Reasoning.MaxTokens = v.GetInt("reasoning.max_tokens")
	config.Reasoning.Timeout = v.GetDuration("reasoning.timeout")

	return &config, nil
}
