package session

import (
	"github.com/hairizuanbinnoorazman/persona-navigator/logger"
)

// Config selects the pool backend. A provider API key selects the cloud backend.
type Config struct {
	MaxSessions int
	Provider    ProviderConfig
	Local       LocalConfig
}

// NewBackend builds the backend selected by cfg.
func NewBackend(cfg Config, log logger.Logger) (Backend, error) {
	if cfg.Provider.APIKey != "" {
		client, err := NewProviderClient(cfg.Provider, log)
		if err != nil {
			return nil, err
		}
		return NewCloudBackend(client, nil, log), nil
	}
	return NewLocalBackend(cfg.Local, log)
}

// New builds the backend and the pool over it.
func New(cfg Config, log logger.Logger) (*Pool, error) {
	backend, err := NewBackend(cfg, log)
	if err != nil {
		return nil, err
	}
	pool, err := NewPool(backend, cfg.MaxSessions, log)
	if err != nil {
		_ = backend.Close()
		return nil, err
	}
	return pool, nil
}
