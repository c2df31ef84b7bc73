package reasoning

import (
	"context"
	"fmt"
	"strings"
)

// Config selects and configures the model backend.
type Config struct {
	Provider  string // bedrock or gemini
	Model     string
	Region    string
	APIKey    string
	MaxTokens int
}

// NewModel builds the Model named by cfg.Provider.
func NewModel(ctx context.Context, cfg Config) (Model, error) {
	switch strings.ToLower(cfg.Provider) {
	case "", "bedrock":
		if cfg.Region == "" {
			return nil, fmt.Errorf("bedrock region is required")
		}
		return NewBedrockModel(cfg.Region, cfg.Model, cfg.MaxTokens)
	case "gemini":
		return NewGeminiModel(ctx, cfg.APIKey, cfg.Model, cfg.MaxTokens)
	default:
		return nil, fmt.Errorf("unsupported reasoning provider: %s", cfg.Provider)
	}
}
