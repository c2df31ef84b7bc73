package agent

import (
	"time"
)

// Config holds the agent loop configuration.
type Config struct {
	// MaxSteps bounds the steps of one session.
	MaxSteps int
	// StuckWindow is how many consecutive steps on the same page with the same progress
	// count as stuck.
	StuckWindow int
	// CompletionProgress is the progress estimate treated as task completion.
	CompletionProgress int
	// HistoryWindow is how many earlier steps are shown to the reasoning service.
	HistoryWindow int
	// HistoryNarrationLimit truncates each history narration to this many runes.
	HistoryNarrationLimit int

	NavigateTimeout time.Duration
	PerceiveTimeout time.Duration
	// RenderDelay is the pause after the initial navigation for client-side rendering.
	RenderDelay time.Duration
}

// DefaultConfig returns the production loop settings.
func DefaultConfig() Config {
	return Config{
		MaxSteps:              30,
		StuckWindow:           3,
		CompletionProgress:    95,
		HistoryWindow:         8,
		HistoryNarrationLimit: 200,
		NavigateTimeout:       30 * time.Second,
		PerceiveTimeout:       15 * time.Second,
		RenderDelay:           2 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.MaxSteps <= 0 {
		c.MaxSteps = def.MaxSteps
	}
	if c.StuckWindow <= 0 {
		c.StuckWindow = def.StuckWindow
	}
	if c.CompletionProgress <= 0 {
		c.CompletionProgress = def.CompletionProgress
	}
	if c.HistoryWindow <= 0 {
		c.HistoryWindow = def.HistoryWindow
	}
	if c.HistoryNarrationLimit <= 0 {
		c.HistoryNarrationLimit = def.HistoryNarrationLimit
	}
	if c.NavigateTimeout <= 0 {
		c.NavigateTimeout = def.NavigateTimeout
	}
	if c.PerceiveTimeout <= 0 {
		c.PerceiveTimeout = def.PerceiveTimeout
	}
	if c.RenderDelay < 0 {
		c.RenderDelay = 0
	}
	return c
}
