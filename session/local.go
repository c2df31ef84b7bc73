package session

import (
	"context"
	"fmt"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/stealth"
	"github.com/google/uuid"
	"github.com/hairizuanbinnoorazman/persona-navigator/browser"
	"github.com/hairizuanbinnoorazman/persona-navigator/logger"
)

// LocalConfig configures the shared local browser.
type LocalConfig struct {
	Headless  bool
	ChromeBin string
	NoSandbox bool
}

// LocalBackend leases isolated incognito contexts from one shared browser process.
type LocalBackend struct {
	browser  *rod.Browser
	launcher *launcher.Launcher
	logger   logger.Logger
}

// NewLocalBackend launches the shared browser.
func NewLocalBackend(cfg LocalConfig, log logger.Logger) (*LocalBackend, error) {
	l := launcher.New().Headless(cfg.Headless)
	if cfg.ChromeBin != "" {
		l = l.Bin(cfg.ChromeBin)
	}
	if cfg.NoSandbox {
		l = l.NoSandbox(true)
	}
	controlURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("failed to launch chrome: %w", err)
	}

	b := rod.New().ControlURL(controlURL)
	if err := b.Connect(); err != nil {
		l.Kill()
		return nil, fmt.Errorf("failed to connect to chrome: %w", err)
	}

	log.Info(context.Background(), "launched local chrome", map[string]interface{}{
		"headless": cfg.Headless,
	})
	return &LocalBackend{browser: b, launcher: l, logger: log}, nil
}

func (b *LocalBackend) Cloud() bool { return false }

func (b *LocalBackend) Provision(ctx context.Context, vp Viewport) (*BrowserSession, error) {
	incognito, err := b.browser.Incognito()
	if err != nil {
		return nil, fmt.Errorf("failed to create browser context: %w", err)
	}

	page, err := stealth.Page(incognito)
	if err != nil {
		_ = incognito.Close()
		return nil, fmt.Errorf("failed to open page: %w", err)
	}
	if err := applyViewport(page, vp); err != nil {
		_ = incognito.Close()
		return nil, fmt.Errorf("failed to apply viewport: %w", err)
	}

	return &BrowserSession{
		ID:        uuid.New(),
		Viewport:  vp,
		Page:      browser.NewRodPage(page),
		RodPage:   page,
		CreatedAt: time.Now(),
		teardown:  incognito.Close,
	}, nil
}

// Teardown disposes the lease's browser context; the shared browser keeps running.
func (b *LocalBackend) Teardown(ctx context.Context, s *BrowserSession) error {
	if s.teardown == nil {
		return nil
	}
	return s.teardown()
}

func (b *LocalBackend) Close() error {
	err := b.browser.Close()
	b.launcher.Kill()
	return err
}
