package session

import (
	"context"
	"fmt"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/google/uuid"
	"github.com/hairizuanbinnoorazman/persona-navigator/browser"
	"github.com/hairizuanbinnoorazman/persona-navigator/logger"
)

// Connection is an attached remote browser.
type Connection struct {
	Page    browser.Page
	RodPage *rod.Page
	Close   func() error
}

// Connector attaches to a remote browser over its debugging endpoint.
type Connector func(ctx context.Context, connectURL string, vp Viewport) (*Connection, error)

type provider interface {
	CreateSession(ctx context.Context, vp Viewport) (*ProviderSession, error)
	LiveViewURL(ctx context.Context, sessionID string) string
	ReleaseSession(ctx context.Context, sessionID string) error
}

// CloudBackend provisions one remote provider session per lease.
type CloudBackend struct {
	provider provider
	connect  Connector
	logger   logger.Logger
}

// NewCloudBackend creates a backend over the provider client. A nil connector uses rod.
func NewCloudBackend(client *ProviderClient, connect Connector, log logger.Logger) *CloudBackend {
	if connect == nil {
		connect = RodConnect
	}
	return &CloudBackend{provider: client, connect: connect, logger: log}
}

func (b *CloudBackend) Cloud() bool { return true }

func (b *CloudBackend) Close() error { return nil }

func (b *CloudBackend) Provision(ctx context.Context, vp Viewport) (*BrowserSession, error) {
	ps, err := b.provider.CreateSession(ctx, vp)
	if err != nil {
		return nil, err
	}

	conn, err := b.connect(ctx, ps.ConnectURL, vp)
	if err != nil {
		if relErr := b.provider.ReleaseSession(context.WithoutCancel(ctx), ps.ID); relErr != nil {
			b.logger.Warn(ctx, "failed to release provider session after connect error", map[string]interface{}{
				"provider_session_id": ps.ID,
				"error":               relErr.Error(),
			})
		}
		return nil, fmt.Errorf("connect to provider session %s: %w", ps.ID, err)
	}

	return &BrowserSession{
		ID:                uuid.New(),
		Viewport:          vp,
		Page:              conn.Page,
		RodPage:           conn.RodPage,
		ProviderSessionID: ps.ID,
		ConnectURL:        ps.ConnectURL,
		LiveViewURL:       b.provider.LiveViewURL(ctx, ps.ID),
		CreatedAt:         time.Now(),
		teardown:          conn.Close,
	}, nil
}

// Teardown closes the local handle, then asks the provider to reclaim the session. Provider
// failures are logged only.
func (b *CloudBackend) Teardown(ctx context.Context, s *BrowserSession) error {
	var closeErr error
	if s.teardown != nil {
		closeErr = s.teardown()
	}
	if s.ProviderSessionID != "" {
		if err := b.provider.ReleaseSession(ctx, s.ProviderSessionID); err != nil {
			b.logger.Warn(ctx, "provider release failed", map[string]interface{}{
				"provider_session_id": s.ProviderSessionID,
				"error":               err.Error(),
			})
		}
	}
	return closeErr
}

// RodConnect attaches rod to connectURL and prepares the first page for vp.
func RodConnect(ctx context.Context, connectURL string, vp Viewport) (*Connection, error) {
	b := rod.New().ControlURL(connectURL).Context(ctx)
	if err := b.Connect(); err != nil {
		return nil, err
	}
	// Detach from the provisioning context so the connection outlives Acquire.
	b = b.Context(context.Background())

	pages, err := b.Pages()
	if err != nil {
		_ = b.Close()
		return nil, err
	}
	var page *rod.Page
	if len(pages) > 0 {
		page = pages.First()
	} else if page, err = b.Page(proto.TargetCreateTarget{}); err != nil {
		_ = b.Close()
		return nil, err
	}
	if err := applyViewport(page, vp); err != nil {
		_ = b.Close()
		return nil, err
	}
	return &Connection{Page: browser.NewRodPage(page), RodPage: page, Close: b.Close}, nil
}

func applyViewport(page *rod.Page, vp Viewport) error {
	return page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             vp.Width,
		Height:            vp.Height,
		DeviceScaleFactor: vp.DeviceScaleFactor,
		Mobile:            vp.Mobile,
	})
}
