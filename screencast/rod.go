package screencast

import (
	"context"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

// RodSource streams frames from a rod page over the CDP Page.screencast* methods.
type RodSource struct {
	page *rod.Page

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewRodSource creates a source for page.
func NewRodSource(page *rod.Page) *RodSource {
	return &RodSource{page: page}
}

// Start subscribes to frame events and then asks the browser to start sending them.
func (r *RodSource) Start(ctx context.Context, opts Options, onFrame func(Frame)) error {
	// The listener outlives ctx; Stop cancels it.
	lctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	wait := r.page.Context(lctx).EachEvent(func(e *proto.PageScreencastFrame) {
		onFrame(Frame{Data: e.Data, AckID: e.SessionID})
	})
	go func() {
		defer close(done)
		wait()
	}()

	quality, maxWidth, maxHeight, everyNth := opts.Quality, opts.MaxWidth, opts.MaxHeight, opts.EveryNthFrame
	err := proto.PageStartScreencast{
		Format:        proto.PageStartScreencastFormatJpeg,
		Quality:       &quality,
		MaxWidth:      &maxWidth,
		MaxHeight:     &maxHeight,
		EveryNthFrame: &everyNth,
	}.Call(r.page.Context(ctx))
	if err != nil {
		cancel()
		<-done
		return err
	}

	r.mu.Lock()
	r.cancel, r.done = cancel, done
	r.mu.Unlock()
	return nil
}

// Ack tells the browser the frame was received.
func (r *RodSource) Ack(ctx context.Context, ackID int) error {
	return proto.PageScreencastFrameAck{SessionID: ackID}.Call(r.page.Context(ctx))
}

// Stop stops the screencast and detaches the listener. The listener is detached even when
// the stop call fails because the page is already gone.
func (r *RodSource) Stop(ctx context.Context) error {
	err := proto.PageStopScreencast{}.Call(r.page.Context(ctx))

	r.mu.Lock()
	cancel, done := r.cancel, r.done
	r.cancel, r.done = nil, nil
	r.mu.Unlock()

	if cancel != nil {
		cancel()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
		}
	}
	return err
}
