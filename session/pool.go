package session

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/hairizuanbinnoorazman/persona-navigator/logger"
	"golang.org/x/sync/semaphore"
)

// Backend provisions and tears down browser sessions for the pool.
type Backend interface {
	Provision(ctx context.Context, vp Viewport) (*BrowserSession, error)
	Teardown(ctx context.Context, s *BrowserSession) error
	Cloud() bool
	Close() error
}

// Pool leases at most max sessions at a time.
type Pool struct {
	sem     *semaphore.Weighted
	max     int64
	inUse   atomic.Int64
	backend Backend
	store   *Store
	logger  logger.Logger

	mu     sync.Mutex
	closed bool
	stopCh chan struct{}
}

// NewPool creates a pool over backend with capacity maxSessions.
func NewPool(backend Backend, maxSessions int, log logger.Logger) (*Pool, error) {
	if maxSessions < 1 {
		return nil, fmt.Errorf("pool capacity must be at least 1, got %d", maxSessions)
	}
	return &Pool{
		sem:     semaphore.NewWeighted(int64(maxSessions)),
		max:     int64(maxSessions),
		backend: backend,
		store:   NewStore(),
		logger:  log,
		stopCh:  make(chan struct{}),
	}, nil
}

// Acquire blocks until a slot is free or ctx is done, then provisions a session. A failed
// provision returns the slot before the error is returned.
func (p *Pool) Acquire(ctx context.Context, vp Viewport) (*BrowserSession, error) {
	if p.isClosed() {
		return nil, ErrPoolClosed
	}
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("waiting for session capacity: %w", err)
	}
	p.inUse.Add(1)

	if p.isClosed() {
		p.returnSlot()
		return nil, ErrPoolClosed
	}

	s, err := p.backend.Provision(ctx, vp)
	if err != nil {
		p.returnSlot()
		p.logger.Error(ctx, "failed to provision browser session", map[string]interface{}{
			"viewport": vp.Name,
			"cloud":    p.backend.Cloud(),
			"error":    err.Error(),
		})
		return nil, err
	}
	p.store.Set(s)

	p.logger.Info(ctx, "browser session leased", map[string]interface{}{
		"lease_id":            s.ID.String(),
		"provider_session_id": s.ProviderSessionID,
		"viewport":            vp.Name,
		"active":              p.inUse.Load(),
	})
	return s, nil
}

// Release tears the session down and returns its slot. Repeated calls are no-ops. The slot
// is returned even when teardown fails; the teardown error is still reported.
func (p *Pool) Release(ctx context.Context, s *BrowserSession) error {
	if s == nil || !s.markReleased() {
		return nil
	}
	defer func() {
		p.store.Delete(s.ID)
		p.returnSlot()
	}()

	if err := p.backend.Teardown(ctx, s); err != nil {
		p.logger.Warn(ctx, "browser session teardown failed", map[string]interface{}{
			"lease_id": s.ID.String(),
			"error":    err.Error(),
		})
		return fmt.Errorf("release session %s: %w", s.ID, err)
	}

	p.logger.Info(ctx, "browser session released", map[string]interface{}{
		"lease_id": s.ID.String(),
	})
	return nil
}

func (p *Pool) returnSlot() {
	p.inUse.Add(-1)
	p.sem.Release(1)
}

// ActiveCount is the number of slots currently held.
func (p *Pool) ActiveCount() int {
	return int(p.inUse.Load())
}

// Capacity is the configured maximum number of concurrent sessions.
func (p *Pool) Capacity() int {
	return int(p.max)
}

// IsCloudBacked reports whether sessions come from the remote provider.
func (p *Pool) IsCloudBacked() bool {
	return p.backend.Cloud()
}

// Get returns a leased session by handle.
func (p *Pool) Get(id string) (*BrowserSession, error) {
	handle, err := uuid.Parse(id)
	if err != nil {
		return nil, ErrSessionNotFound
	}
	return p.store.Get(handle)
}

// StartLeaseMonitor periodically logs sessions leased for longer than maxAge.
func (p *Pool) StartLeaseMonitor(interval, maxAge time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		for {
			select {
			case <-ticker.C:
				for _, s := range p.store.OlderThan(maxAge) {
					p.logger.Warn(context.Background(), "browser session leased for too long", map[string]interface{}{
						"lease_id":            s.ID.String(),
						"provider_session_id": s.ProviderSessionID,
						"leased_for":          time.Since(s.CreatedAt).Round(time.Second).String(),
					})
				}
			case <-p.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Close releases every outstanding session and shuts the backend down.
func (p *Pool) Close(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.stopCh)
	p.mu.Unlock()

	for _, s := range p.store.List() {
		_ = p.Release(ctx, s)
	}
	return p.backend.Close()
}

func (p *Pool) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}
