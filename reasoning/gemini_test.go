package reasoning

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
)

// geminiServer answers generateContent calls with reply and records each request body.
type geminiServer struct {
	mu     sync.Mutex
	paths  []string
	bodies []map[string]interface{}
}

func newGeminiModel(t *testing.T, status int, reply string) (*GeminiModel, *geminiServer) {
	t.Helper()
	gs := &geminiServer{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		var body map[string]interface{}
		_ = json.Unmarshal(raw, &body)

		gs.mu.Lock()
		gs.paths = append(gs.paths, r.URL.Path)
		gs.bodies = append(gs.bodies, body)
		gs.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, reply)
	}))
	t.Cleanup(srv.Close)

	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:      "test-key",
		Backend:     genai.BackendGeminiAPI,
		HTTPClient:  srv.Client(),
		HTTPOptions: genai.HTTPOptions{BaseURL: srv.URL},
	})
	require.NoError(t, err)
	return NewGeminiModelWithClient(client, "", 256), gs
}

func candidate(text string) string {
	data, _ := json.Marshal(text)
	return `{"candidates":[{"content":{"role":"model","parts":[{"text":` + string(data) + `}]},"finishReason":"STOP"}]}`
}

func TestGeminiModel_Complete(t *testing.T) {
	m, gs := newGeminiModel(t, http.StatusOK, candidate("  {\"action_type\":\"done\"}\n"))

	out, err := m.Complete(context.Background(), "Where next?", []byte{0xff, 0xd8, 0xff})
	require.NoError(t, err)
	assert.Equal(t, `{"action_type":"done"}`, out)

	require.Len(t, gs.paths, 1)
	assert.True(t, strings.HasSuffix(gs.paths[0], "/models/gemini-2.5-flash:generateContent"), gs.paths[0])

	body := gs.bodies[0]
	raw, err := json.Marshal(body["contents"])
	require.NoError(t, err)
	assert.Contains(t, string(raw), "Where next?")
	assert.Contains(t, string(raw), "image/jpeg")

	cfg, ok := body["generationConfig"].(map[string]interface{})
	require.True(t, ok, "request has no generationConfig")
	assert.EqualValues(t, 256, cfg["maxOutputTokens"])
	assert.Equal(t, "application/json", cfg["responseMimeType"])
}

func TestGeminiModel_CompleteWithoutImage(t *testing.T) {
	m, gs := newGeminiModel(t, http.StatusOK, candidate(`{"ok":true}`))

	_, err := m.Complete(context.Background(), "Describe the page", nil)
	require.NoError(t, err)

	raw, err := json.Marshal(gs.bodies[0]["contents"])
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "inlineData")
}

func TestGeminiModel_CompleteErrors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		reply   string
		wantErr error
	}{
		{name: "blank text", status: http.StatusOK, reply: candidate("   "), wantErr: ErrEmptyResponse},
		{name: "no candidates", status: http.StatusOK, reply: `{"candidates":[]}`, wantErr: ErrEmptyResponse},
		{name: "rejected request", status: http.StatusBadRequest, reply: `{"error":{"code":400,"message":"bad image","status":"INVALID_ARGUMENT"}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, _ := newGeminiModel(t, tt.status, tt.reply)
			_, err := m.Complete(context.Background(), "Where next?", nil)
			require.Error(t, err)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.Contains(t, err.Error(), "failed to generate content")
			}
		})
	}
}
