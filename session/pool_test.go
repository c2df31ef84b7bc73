package session

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/hairizuanbinnoorazman/persona-navigator/logger"
	"github.com/hairizuanbinnoorazman/persona-navigator/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

var leakOpts = []goleak.Option{
	goleak.IgnoreTopFunction("net/http.(*persistConn).readLoop"),
	goleak.IgnoreTopFunction("net/http.(*persistConn).writeLoop"),
	goleak.IgnoreTopFunction("internal/poll.runtime_pollWait"),
}

type fakeBackend struct {
	mu           sync.Mutex
	provisionErr error
	teardownErr  error
	provisioned  int
	tornDown     int
	closed       bool
}

func (f *fakeBackend) Provision(ctx context.Context, vp Viewport) (*BrowserSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.provisionErr != nil {
		return nil, f.provisionErr
	}
	f.provisioned++
	page := testutil.NewFakePage("about:blank")
	return &BrowserSession{
		ID:        uuid.New(),
		Viewport:  vp,
		Page:      page,
		CreatedAt: time.Now(),
		teardown:  page.Close,
	}, nil
}

func (f *fakeBackend) Teardown(ctx context.Context, s *BrowserSession) error {
	f.mu.Lock()
	f.tornDown++
	err := f.teardownErr
	f.mu.Unlock()
	if s.teardown != nil {
		_ = s.teardown()
	}
	return err
}

func (f *fakeBackend) Cloud() bool { return false }

func (f *fakeBackend) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func newTestPool(t *testing.T, backend Backend, capacity int) *Pool {
	t.Helper()
	p, err := NewPool(backend, capacity, logger.NewTestLogger())
	require.NoError(t, err)
	return p
}

func TestNewPool_InvalidCapacity(t *testing.T) {
	_, err := NewPool(&fakeBackend{}, 0, logger.NewTestLogger())
	assert.Error(t, err)
}

func TestPool_AcquireBlocksAtCapacity(t *testing.T) {
	defer goleak.VerifyNone(t, leakOpts...)

	ctx := context.Background()
	p := newTestPool(t, &fakeBackend{}, 1)

	first, err := p.Acquire(ctx, Desktop)
	require.NoError(t, err)
	assert.Equal(t, 1, p.ActiveCount())

	acquired := make(chan *BrowserSession)
	go func() {
		s, err := p.Acquire(ctx, Laptop)
		if err != nil {
			close(acquired)
			return
		}
		acquired <- s
	}()

	select {
	case <-acquired:
		t.Fatal("acquire beyond capacity did not block")
	case <-time.After(50 * time.Millisecond):
	}

	require.NoError(t, p.Release(ctx, first))

	select {
	case second, ok := <-acquired:
		require.True(t, ok)
		assert.Equal(t, "laptop", second.Viewport.Name)
		require.NoError(t, p.Release(ctx, second))
	case <-time.After(2 * time.Second):
		t.Fatal("acquire did not resume after release")
	}
	assert.Equal(t, 0, p.ActiveCount())
}

func TestPool_AcquireIsCancellable(t *testing.T) {
	p := newTestPool(t, &fakeBackend{}, 1)
	s, err := p.Acquire(context.Background(), Desktop)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = p.Acquire(ctx, Desktop)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, p.ActiveCount())

	require.NoError(t, p.Release(context.Background(), s))
}

func TestPool_ProvisionFailureReturnsSlot(t *testing.T) {
	backend := &fakeBackend{provisionErr: errors.New("chrome crashed")}
	p := newTestPool(t, backend, 1)

	_, err := p.Acquire(context.Background(), Desktop)
	require.Error(t, err)
	assert.Equal(t, 0, p.ActiveCount())

	backend.provisionErr = nil
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	s, err := p.Acquire(ctx, Desktop)
	require.NoError(t, err)
	require.NoError(t, p.Release(ctx, s))
}

func TestPool_ReleaseRestoresCapacityWhenTeardownFails(t *testing.T) {
	backend := &fakeBackend{teardownErr: errors.New("target closed")}
	p := newTestPool(t, backend, 1)
	ctx := context.Background()

	s, err := p.Acquire(ctx, Desktop)
	require.NoError(t, err)

	err = p.Release(ctx, s)
	assert.Error(t, err)
	assert.Equal(t, 0, p.ActiveCount())
	assert.True(t, s.Released())

	tctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	_, err = p.Acquire(tctx, Desktop)
	assert.NoError(t, err)
}

func TestPool_ReleaseIsIdempotent(t *testing.T) {
	backend := &fakeBackend{}
	p := newTestPool(t, backend, 2)
	ctx := context.Background()

	s, err := p.Acquire(ctx, Desktop)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = p.Release(ctx, s)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, backend.tornDown)
	assert.Equal(t, 0, p.ActiveCount())
	assert.NoError(t, p.Release(ctx, nil))
}

func TestPool_GetAndClose(t *testing.T) {
	backend := &fakeBackend{}
	p := newTestPool(t, backend, 2)
	ctx := context.Background()

	s, err := p.Acquire(ctx, Tablet)
	require.NoError(t, err)

	got, err := p.Get(s.ID.String())
	require.NoError(t, err)
	assert.Same(t, s, got)

	_, err = p.Get("not-a-uuid")
	assert.ErrorIs(t, err, ErrSessionNotFound)

	require.NoError(t, p.Close(ctx))
	assert.True(t, s.Released())
	assert.True(t, backend.closed)
	assert.Equal(t, 0, p.ActiveCount())

	_, err = p.Acquire(ctx, Desktop)
	assert.ErrorIs(t, err, ErrPoolClosed)
	assert.NoError(t, p.Close(ctx))
}

func TestPool_CloudRateLimitedDoesNotLeakCapacity(t *testing.T) {
	client, _ := newTestProvider(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	connected := false
	backend := NewCloudBackend(client, func(ctx context.Context, url string, vp Viewport) (*Connection, error) {
		connected = true
		return nil, errors.New("unreachable")
	}, logger.NewTestLogger())

	p := newTestPool(t, backend, 1)
	assert.True(t, p.IsCloudBacked())

	_, err := p.Acquire(context.Background(), Desktop)
	assert.ErrorIs(t, err, ErrRateLimited)
	assert.Equal(t, 0, p.ActiveCount())
	assert.False(t, connected)

	assert.True(t, p.sem.TryAcquire(1), "slot leaked after rate limiting")
	p.sem.Release(1)
}

func TestCloudBackend_ProvisionAndTeardown(t *testing.T) {
	var (
		mu    sync.Mutex
		paths []string
	)
	client, _ := newTestProvider(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		paths = append(paths, r.Method+" "+r.URL.Path)
		mu.Unlock()
		switch r.URL.Path {
		case "/v1/sessions":
			_, _ = w.Write([]byte(`{"id":"sess-7","connectUrl":"wss://c/7"}`))
		case "/v1/sessions/sess-7/debug":
			_, _ = w.Write([]byte(`{"debuggerUrl":"https://live/7"}`))
		case "/v1/sessions/sess-7":
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))

	page := testutil.NewFakePage("about:blank")
	backend := NewCloudBackend(client, func(ctx context.Context, url string, vp Viewport) (*Connection, error) {
		assert.Equal(t, "wss://c/7", url)
		return &Connection{Page: page, Close: page.Close}, nil
	}, logger.NewTestLogger())

	s, err := backend.Provision(context.Background(), Desktop)
	require.NoError(t, err)
	assert.Equal(t, "sess-7", s.ProviderSessionID)
	assert.Equal(t, "https://live/7", s.LiveViewURL)

	// provider release failure is logged, not returned
	assert.NoError(t, backend.Teardown(context.Background(), s))
	assert.True(t, page.Closed())
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"POST /v1/sessions", "GET /v1/sessions/sess-7/debug", "POST /v1/sessions/sess-7"}, paths)
}

func TestCloudBackend_ConnectFailureReleasesProviderSession(t *testing.T) {
	var released atomic.Bool
	client, _ := newTestProvider(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/v1/sessions/sess-8" {
			released.Store(true)
		}
		_, _ = w.Write([]byte(`{"id":"sess-8","connectUrl":"wss://c/8"}`))
	}))
	backend := NewCloudBackend(client, func(ctx context.Context, url string, vp Viewport) (*Connection, error) {
		return nil, errors.New("handshake failed")
	}, logger.NewTestLogger())

	_, err := backend.Provision(context.Background(), Desktop)
	assert.Error(t, err)
	assert.True(t, released.Load())
}

func TestViewportByName(t *testing.T) {
	assert.Equal(t, Mobile, ViewportByName(" Mobile "))
	assert.Equal(t, Desktop, ViewportByName("smartwatch"))
	assert.Equal(t, 1440, ViewportByName("laptop").Width)
}
