// Package screencast republishes a page's compositor frames on the broadcast transport.
package screencast

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hairizuanbinnoorazman/persona-navigator/broadcast"
	"github.com/hairizuanbinnoorazman/persona-navigator/logger"
	"github.com/hairizuanbinnoorazman/persona-navigator/storage"
	"golang.org/x/time/rate"
)

// Frame is one delivered compositor frame.
type Frame struct {
	Data []byte
	// AckID is the source's frame handle passed back to Ack.
	AckID int
}

// Source delivers frames from a browser page.
type Source interface {
	// Start begins delivery; onFrame is called sequentially from the source's own goroutine.
	Start(ctx context.Context, opts Options, onFrame func(Frame)) error
	Ack(ctx context.Context, ackID int) error
	Stop(ctx context.Context) error
}

// Options configures the frame stream.
type Options struct {
	Quality       int
	MaxWidth      int
	MaxHeight     int
	EveryNthFrame int
	// MaxFPS limits published frames per second; excess frames are dropped. Zero disables.
	MaxFPS float64
	// Replay keeps every ReplayEvery-th frame in memory and writes them to storage on Stop.
	Replay      bool
	ReplayEvery int
}

// DefaultOptions returns the production stream settings.
func DefaultOptions() Options {
	return Options{
		Quality:       60,
		MaxWidth:      1280,
		MaxHeight:     800,
		EveryNthFrame: 1,
		ReplayEvery:   3,
	}
}

type replayFrame struct {
	data       []byte
	capturedAt time.Time
}

// Streamer owns one page's frame stream.
type Streamer struct {
	sessionID string
	source    Source
	publisher broadcast.Publisher
	blobs     storage.BlobStorage
	opts      Options
	limiter   *rate.Limiter
	logger    logger.Logger

	received  atomic.Int64
	published atomic.Int64

	mu      sync.Mutex
	replay  []replayFrame
	started bool
	stopped bool
}

// NewStreamer creates a streamer for the logical session sessionID. blobs may be nil when
// replay is disabled.
func NewStreamer(sessionID string, source Source, publisher broadcast.Publisher, blobs storage.BlobStorage, opts Options, log logger.Logger) *Streamer {
	def := DefaultOptions()
	if opts.Quality <= 0 {
		opts.Quality = def.Quality
	}
	if opts.MaxWidth <= 0 {
		opts.MaxWidth = def.MaxWidth
	}
	if opts.MaxHeight <= 0 {
		opts.MaxHeight = def.MaxHeight
	}
	if opts.EveryNthFrame <= 0 {
		opts.EveryNthFrame = def.EveryNthFrame
	}
	if opts.ReplayEvery <= 0 {
		opts.ReplayEvery = def.ReplayEvery
	}
	s := &Streamer{
		sessionID: sessionID,
		source:    source,
		publisher: publisher,
		blobs:     blobs,
		opts:      opts,
		logger:    log.WithField("session_id", sessionID),
	}
	if opts.MaxFPS > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(opts.MaxFPS), 1)
	}
	return s
}

// Start attaches to the source and begins republishing frames.
func (s *Streamer) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return fmt.Errorf("streamer for %s already started", s.sessionID)
	}
	s.started = true
	s.mu.Unlock()

	if err := s.source.Start(ctx, s.opts, s.handleFrame); err != nil {
		return fmt.Errorf("failed to start screencast: %w", err)
	}
	s.logger.Info(ctx, "screencast started", map[string]interface{}{
		"quality":    s.opts.Quality,
		"max_width":  s.opts.MaxWidth,
		"max_height": s.opts.MaxHeight,
	})
	return nil
}

// handleFrame acks before doing anything else so the source keeps sending. Nothing in here
// may escape to the source's event loop.
func (s *Streamer) handleFrame(f Frame) {
	ctx := context.Background()
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error(ctx, "screencast frame handler panicked", map[string]interface{}{
				"panic": fmt.Sprint(r),
			})
		}
	}()

	if err := s.source.Ack(ctx, f.AckID); err != nil {
		s.logger.Debug(ctx, "screencast ack failed", map[string]interface{}{
			"error": err.Error(),
		})
	}

	n := s.received.Add(1)
	if s.opts.Replay && n%int64(s.opts.ReplayEvery) == 0 {
		s.keepForReplay(f.Data)
	}

	if s.limiter != nil && !s.limiter.Allow() {
		return
	}

	msg, err := EncodeFrame(s.sessionID, f.Data)
	if err != nil {
		s.logger.Warn(ctx, "screencast frame not encodable", map[string]interface{}{
			"error": err.Error(),
		})
		return
	}
	err = s.publisher.Publish(ctx, broadcast.Message{
		Channel: broadcast.ScreencastChannel(s.sessionID),
		Data:    msg,
		Binary:  true,
	})
	if err != nil {
		s.logger.Debug(ctx, "screencast publish failed", map[string]interface{}{
			"error": err.Error(),
		})
		return
	}
	s.published.Add(1)
}

func (s *Streamer) keepForReplay(data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	s.replay = append(s.replay, replayFrame{data: append([]byte(nil), data...), capturedAt: time.Now()})
}

// Stats returns the number of frames received and published.
func (s *Streamer) Stats() (received, published int64) {
	return s.received.Load(), s.published.Load()
}

// Stop ends the stream and, with replay enabled, writes kept frames to storage. It is safe
// to call after the page is gone and more than once; source failures are swallowed.
func (s *Streamer) Stop(ctx context.Context) {
	s.mu.Lock()
	if s.stopped || !s.started {
		s.stopped = true
		s.mu.Unlock()
		return
	}
	s.stopped = true
	frames := s.replay
	s.replay = nil
	s.mu.Unlock()

	if err := s.source.Stop(ctx); err != nil {
		s.logger.Debug(ctx, "screencast stop failed", map[string]interface{}{
			"error": err.Error(),
		})
	}

	received, published := s.Stats()
	s.logger.Info(ctx, "screencast stopped", map[string]interface{}{
		"frames_received":  received,
		"frames_published": published,
	})

	if len(frames) > 0 && s.blobs != nil {
		if err := s.flushReplay(ctx, frames); err != nil {
			s.logger.Warn(ctx, "failed to write replay frames", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}
}
