package session

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hairizuanbinnoorazman/persona-navigator/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sleepRecorder struct {
	mu    sync.Mutex
	waits []time.Duration
}

func (s *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.waits = append(s.waits, d)
	s.mu.Unlock()
	return ctx.Err()
}

func newTestProvider(t *testing.T, handler http.Handler) (*ProviderClient, *sleepRecorder) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewProviderClient(ProviderConfig{
		BaseURL:       server.URL,
		APIKey:        "bb-test-key",
		ProjectID:     "proj-1",
		RecordSession: true,
		SolveCaptchas: true,
	}, logger.NewTestLogger())
	require.NoError(t, err)

	rec := &sleepRecorder{}
	client.sleep = rec.sleep
	return client, rec
}

func TestNewProviderClient_RequiresKey(t *testing.T) {
	_, err := NewProviderClient(ProviderConfig{}, logger.NewTestLogger())
	assert.Error(t, err)
}

func TestProviderClient_CreateSession(t *testing.T) {
	var got createSessionRequest
	client, _ := newTestProvider(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/sessions", r.URL.Path)
		assert.Equal(t, "bb-test-key", r.Header.Get("X-BB-API-Key"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"sess-1","connectUrl":"wss://connect.example/sess-1","status":"RUNNING"}`))
	}))

	ps, err := client.CreateSession(context.Background(), Mobile)
	require.NoError(t, err)
	assert.Equal(t, "sess-1", ps.ID)
	assert.Equal(t, "wss://connect.example/sess-1", ps.ConnectURL)

	assert.Equal(t, "proj-1", got.ProjectID)
	assert.Equal(t, 390, got.BrowserSettings.Viewport.Width)
	assert.Equal(t, 844, got.BrowserSettings.Viewport.Height)
	assert.True(t, got.BrowserSettings.RecordSession)
	assert.True(t, got.BrowserSettings.SolveCaptchas)
}

func TestProviderClient_CreateSession_RateLimitBackoff(t *testing.T) {
	tests := []struct {
		name       string
		retryAfter string
		wantWaits  []time.Duration
	}{
		{name: "geometric backoff", wantWaits: []time.Duration{5 * time.Second, 10 * time.Second}},
		{name: "retry-after honored", retryAfter: "2", wantWaits: []time.Duration{2 * time.Second, 2 * time.Second}},
		{name: "retry-after capped", retryAfter: "3600", wantWaits: []time.Duration{time.Minute, time.Minute}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			client, rec := newTestProvider(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				calls.Add(1)
				if tt.retryAfter != "" {
					w.Header().Set("Retry-After", tt.retryAfter)
				}
				w.WriteHeader(http.StatusTooManyRequests)
			}))

			_, err := client.CreateSession(context.Background(), Desktop)
			assert.ErrorIs(t, err, ErrRateLimited)
			assert.Equal(t, int32(3), calls.Load())
			assert.Equal(t, tt.wantWaits, rec.waits)
		})
	}
}

func TestProviderClient_CreateSession_RecoversAfter429(t *testing.T) {
	var calls atomic.Int32
	client, rec := newTestProvider(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(`{"id":"sess-2","connectUrl":"wss://c/2"}`))
	}))

	ps, err := client.CreateSession(context.Background(), Desktop)
	require.NoError(t, err)
	assert.Equal(t, "sess-2", ps.ID)
	assert.Equal(t, []time.Duration{5 * time.Second}, rec.waits)
}

func TestProviderClient_CreateSession_ServerError(t *testing.T) {
	client, rec := newTestProvider(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusPaymentRequired)
	}))

	_, err := client.CreateSession(context.Background(), Desktop)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrRateLimited)
	assert.Contains(t, err.Error(), "quota exceeded")
	assert.Empty(t, rec.waits)
}

func TestProviderClient_LiveViewURL(t *testing.T) {
	var calls atomic.Int32
	client, rec := newTestProvider(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/sessions/sess-1/debug", r.URL.Path)
		switch calls.Add(1) {
		case 1:
			w.WriteHeader(http.StatusNotFound)
		case 2:
			w.WriteHeader(http.StatusTooEarly)
		case 3:
			w.WriteHeader(http.StatusConflict)
		default:
			_, _ = w.Write([]byte(`{"debuggerFullscreenUrl":"https://live.example/sess-1"}`))
		}
	}))

	assert.Equal(t, "https://live.example/sess-1", client.LiveViewURL(context.Background(), "sess-1"))
	assert.Len(t, rec.waits, 3)
}

func TestProviderClient_LiveViewURL_GivesUp(t *testing.T) {
	client, rec := newTestProvider(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))

	assert.Equal(t, "", client.LiveViewURL(context.Background(), "sess-1"))
	assert.Len(t, rec.waits, 4)
}

func TestProviderClient_ReleaseSession(t *testing.T) {
	var body map[string]string
	client, _ := newTestProvider(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/sessions/sess-9", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.WriteHeader(http.StatusOK)
	}))

	require.NoError(t, client.ReleaseSession(context.Background(), "sess-9"))
	assert.Equal(t, "REQUEST_RELEASE", body["status"])
	assert.Equal(t, "proj-1", body["projectId"])
}
