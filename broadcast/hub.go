// Package broadcast is the in-process publish/subscribe transport for live study events and
// screencast frames. A Hub is constructed by the server and passed to its publishers and
// subscribers; Close tears it down.
package broadcast

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/hairizuanbinnoorazman/persona-navigator/logger"
)

// ErrHubClosed is returned by Publish after Close.
var ErrHubClosed = errors.New("broadcast hub closed")

const (
	screencastPrefix = "screencast:"
	studyPrefix      = "study:"
)

// ScreencastChannel carries binary frames for one logical session.
func ScreencastChannel(sessionID string) string { return screencastPrefix + sessionID }

// StudyChannel carries JSON events for one study.
func StudyChannel(studyID string) string { return studyPrefix + studyID }

// Message is one published payload.
type Message struct {
	Channel string
	Data    []byte
	Binary  bool
}

// Publisher publishes messages.
type Publisher interface {
	Publish(ctx context.Context, msg Message) error
}

// Hub fans published messages out to matching subscriptions. Delivery never blocks the
// publisher: a subscriber whose buffer is full misses the message.
type Hub struct {
	mu     sync.RWMutex
	subs   map[uint64]*Subscription
	nextID uint64
	closed bool
	buffer int
	logger logger.Logger
}

// NewHub creates a hub whose subscriptions buffer up to buffer messages.
func NewHub(buffer int, log logger.Logger) *Hub {
	if buffer <= 0 {
		buffer = 256
	}
	return &Hub{
		subs:   make(map[uint64]*Subscription),
		buffer: buffer,
		logger: log,
	}
}

// Publish delivers msg to every subscription whose channel set matches msg.Channel.
func (h *Hub) Publish(ctx context.Context, msg Message) error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return ErrHubClosed
	}
	for _, s := range h.subs {
		s.deliver(msg)
	}
	return nil
}

// PublishJSON marshals v and publishes it as a text message.
func (h *Hub) PublishJSON(ctx context.Context, channel string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	return h.Publish(ctx, Message{Channel: channel, Data: data})
}

// Subscribe registers a subscription to channels. A channel ending in "*" matches by prefix.
func (h *Hub) Subscribe(channels ...string) *Subscription {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.nextID++
	s := &Subscription{
		id:       h.nextID,
		hub:      h,
		channels: make(map[string]struct{}),
		ch:       make(chan Message, h.buffer),
	}
	for _, c := range channels {
		s.channels[c] = struct{}{}
	}
	if h.closed {
		s.closeCh()
		return s
	}
	h.subs[s.id] = s
	return s
}

// Subscribers returns the number of live subscriptions.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Close ends every subscription and rejects further publishes.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for id, s := range h.subs {
		s.closeCh()
		delete(h.subs, id)
	}
}

func (h *Hub) remove(id uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.subs, id)
}

// Subscription receives messages on C until it is closed.
type Subscription struct {
	id  uint64
	hub *Hub

	mu       sync.Mutex
	channels map[string]struct{}
	ch       chan Message
	done     bool
	dropped  atomic.Int64
}

// C is closed when the subscription or the hub is closed.
func (s *Subscription) C() <-chan Message { return s.ch }

// Dropped counts messages missed because the buffer was full.
func (s *Subscription) Dropped() int64 { return s.dropped.Load() }

// Add subscribes to one more channel.
func (s *Subscription) Add(channel string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.channels[channel] = struct{}{}
}

// Has reports whether channel is in the subscription set.
func (s *Subscription) Has(channel string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.channels[channel]
	return ok
}

// Reset atomically replaces the channel set, discards undelivered messages and queues the
// message built by first ahead of anything published afterwards. first runs while delivery
// to this subscription is paused, so no event can slip in between it and the new set.
func (s *Subscription) Reset(first func() (Message, bool), channels ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return
	}

	for drained := false; !drained; {
		select {
		case <-s.ch:
		default:
			drained = true
		}
	}

	s.channels = make(map[string]struct{}, len(channels))
	for _, c := range channels {
		s.channels[c] = struct{}{}
	}
	if first != nil {
		if msg, ok := first(); ok {
			s.ch <- msg
		}
	}
}

// Close unregisters the subscription. It is safe to call more than once.
func (s *Subscription) Close() {
	s.hub.remove(s.id)
	s.closeCh()
}

func (s *Subscription) closeCh() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.done {
		s.done = true
		close(s.ch)
	}
}

func (s *Subscription) deliver(msg Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done || !s.matches(msg.Channel) {
		return
	}
	select {
	case s.ch <- msg:
	default:
		s.dropped.Add(1)
	}
}

func (s *Subscription) matches(channel string) bool {
	if _, ok := s.channels[channel]; ok {
		return true
	}
	for c := range s.channels {
		if prefix, ok := strings.CutSuffix(c, "*"); ok && strings.HasPrefix(channel, prefix) {
			return true
		}
	}
	return false
}
