package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const configTemplate = `# navctl configuration
url: http://localhost:8080
# Must match server.api_key on the server. Leave empty when the server runs without one.
api_key: ""
timeout: 30s
`

var cfg *viper.Viper

// initConfig resolves settings from ~/.navctl.yaml, NAVCTL_* env vars and flags, in
// increasing priority.
func initConfig() error {
	cfg = viper.New()
	cfg.SetConfigName(".navctl")
	cfg.SetConfigType("yaml")

	home, err := os.UserHomeDir()
	if err == nil {
		cfg.AddConfigPath(home)
	}

	cfg.SetDefault("url", "http://localhost:8080")
	cfg.SetDefault("api_key", "")
	cfg.SetDefault("timeout", "30s")

	cfg.SetEnvPrefix("NAVCTL")
	cfg.AutomaticEnv()

	if err := cfg.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if flagURL != "" {
		cfg.Set("url", flagURL)
	}
	if flagAPIKey != "" {
		cfg.Set("api_key", flagAPIKey)
	}

	return nil
}

func getConfigURL() string {
	return strings.TrimRight(cfg.GetString("url"), "/")
}

func getConfigAPIKey() string {
	return cfg.GetString("api_key")
}

func getConfigTimeout() time.Duration {
	if d := cfg.GetDuration("timeout"); d > 0 {
		return d
	}
	return 30 * time.Second
}

// maskKey keeps only the ends of a key visible.
func maskKey(key string) string {
	switch {
	case key == "":
		return "(not set)"
	case len(key) > 8:
		return key[:4] + "..." + key[len(key)-4:]
	default:
		return "****"
	}
}

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage navctl configuration",
	}

	cmd.AddCommand(newConfigInitCmd())
	cmd.AddCommand(newConfigShowCmd())
	return cmd
}

func newConfigInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Write a config template to ~/.navctl.yaml",
		RunE: func(cmd *cobra.Command, args []string) error {
			home, err := os.UserHomeDir()
			if err != nil {
				return fmt.Errorf("failed to get home directory: %w", err)
			}

			path := filepath.Join(home, ".navctl.yaml")
			if _, err := os.Stat(path); err == nil {
				printMessage("Config file already exists at " + path)
				return nil
			}

			if err := os.WriteFile(path, []byte(configTemplate), 0600); err != nil {
				return fmt.Errorf("failed to write config file: %w", err)
			}

			printMessage("Config file created at " + path)
			return nil
		},
	}
}

func newConfigShowCmd() *cobra.Command {
	var check bool

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the resolved configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			used := cfg.ConfigFileUsed()
			if used == "" {
				used = "(none)"
			}
			printFields(
				field{"URL", getConfigURL()},
				field{"API key", maskKey(getConfigAPIKey())},
				field{"Timeout", getConfigTimeout().String()},
				field{"Config file", used},
			)

			if !check {
				return nil
			}
			client, err := getClient()
			if err != nil {
				return err
			}
			if _, err := client.Get("/health", nil); err != nil {
				return fmt.Errorf("server not reachable: %w", err)
			}
			printMessage("Server:  healthy")
			return nil
		},
	}

	cmd.Flags().BoolVar(&check, "check", false, "Also call the server's health endpoint")
	return cmd
}
