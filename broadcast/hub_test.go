package broadcast

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/hairizuanbinnoorazman/persona-navigator/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func receive(t *testing.T, s *Subscription) Message {
	t.Helper()
	select {
	case msg, ok := <-s.C():
		require.True(t, ok, "subscription closed")
		return msg
	case <-time.After(time.Second):
		t.Fatal("no message received")
	}
	return Message{}
}

func assertEmpty(t *testing.T, s *Subscription) {
	t.Helper()
	select {
	case msg := <-s.C():
		t.Fatalf("unexpected message on %s", msg.Channel)
	default:
	}
}

func TestHub_PublishRoutesByChannel(t *testing.T) {
	hub := NewHub(8, logger.NewTestLogger())
	defer hub.Close()
	ctx := context.Background()

	study := hub.Subscribe(StudyChannel("s1"))
	frames := hub.Subscribe("screencast:*")
	other := hub.Subscribe(StudyChannel("s2"))

	require.NoError(t, hub.PublishJSON(ctx, StudyChannel("s1"), map[string]string{"type": "step"}))
	require.NoError(t, hub.Publish(ctx, Message{Channel: ScreencastChannel("abc"), Data: []byte{0, 1}, Binary: true}))

	msg := receive(t, study)
	assert.Equal(t, "study:s1", msg.Channel)
	assert.JSONEq(t, `{"type":"step"}`, string(msg.Data))
	assert.False(t, msg.Binary)

	frame := receive(t, frames)
	assert.True(t, frame.Binary)
	assert.Equal(t, []byte{0, 1}, frame.Data)

	assertEmpty(t, study)
	assertEmpty(t, other)
	assert.Equal(t, 3, hub.Subscribers())
}

func TestHub_SlowSubscriberDropsInsteadOfBlocking(t *testing.T) {
	hub := NewHub(2, logger.NewTestLogger())
	defer hub.Close()
	s := hub.Subscribe("study:x")

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			_ = hub.Publish(context.Background(), Message{Channel: "study:x"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a full subscriber")
	}
	assert.Equal(t, int64(8), s.Dropped())
}

func TestSubscription_ResetQueuesFirstMessage(t *testing.T) {
	hub := NewHub(8, logger.NewTestLogger())
	defer hub.Close()
	ctx := context.Background()

	s := hub.Subscribe(StudyChannel("old"))
	require.NoError(t, hub.Publish(ctx, Message{Channel: StudyChannel("old"), Data: []byte("stale")}))

	s.Reset(func() (Message, bool) {
		return Message{Channel: StudyChannel("new"), Data: []byte("snapshot")}, true
	}, StudyChannel("new"))
	require.NoError(t, hub.Publish(ctx, Message{Channel: StudyChannel("old"), Data: []byte("ignored")}))
	require.NoError(t, hub.Publish(ctx, Message{Channel: StudyChannel("new"), Data: []byte("live")}))

	assert.Equal(t, "snapshot", string(receive(t, s).Data))
	assert.Equal(t, "live", string(receive(t, s).Data))
	assertEmpty(t, s)

	s.Add(ScreencastChannel("sess"))
	assert.True(t, s.Has(ScreencastChannel("sess")))
}

func TestHub_CloseEndsSubscriptions(t *testing.T) {
	hub := NewHub(1, logger.NewTestLogger())
	s := hub.Subscribe("study:a")

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for range s.C() {
		}
	}()

	hub.Close()
	wg.Wait()

	assert.ErrorIs(t, hub.Publish(context.Background(), Message{Channel: "study:a"}), ErrHubClosed)
	s.Close()
	hub.Close()

	late := hub.Subscribe("study:a")
	_, ok := <-late.C()
	assert.False(t, ok)
}

func TestSubscription_CloseUnregisters(t *testing.T) {
	hub := NewHub(1, logger.NewTestLogger())
	defer hub.Close()
	s := hub.Subscribe("study:a")
	s.Close()
	s.Close()
	assert.Equal(t, 0, hub.Subscribers())
	assert.NoError(t, hub.Publish(context.Background(), Message{Channel: "study:a"}))
}
