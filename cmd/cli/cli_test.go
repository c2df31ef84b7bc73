package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hairizuanbinnoorazman/persona-navigator/agent"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadStudyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "study.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
name: checkout
task:
  goal: Buy a pair of socks
  start_url: https://shop.example
personas:
  - name: Ada
    viewport: mobile
    behavioral_rules: Reads every label before clicking.
    attributes:
      age: "67"
  - name: Bo
`), 0o600))

	req, err := readStudyFile(path)
	require.NoError(t, err)
	assert.Equal(t, "checkout", req.Name)
	assert.Equal(t, "https://shop.example", req.Task.StartURL)
	require.Len(t, req.Personas, 2)
	assert.Equal(t, "67", req.Personas[0].Attributes["age"])
	assert.Equal(t, "mobile", req.Personas[0].Viewport)

	require.NoError(t, os.WriteFile(path, []byte("name: empty\n"), 0o600))
	_, err = readStudyFile(path)
	assert.ErrorIs(t, err, agent.ErrInvalidStudy)
}

func TestClient_WebsocketURL(t *testing.T) {
	tests := []struct {
		base string
		key  string
		want string
	}{
		{"http://localhost:8080", "", "ws://localhost:8080/ws/live"},
		{"https://nav.example", "k", "wss://nav.example/ws/live?token=k"},
	}
	for _, tc := range tests {
		c := &Client{baseURL: tc.base, apiKey: tc.key}
		got, err := c.WebsocketURL("/ws/live")
		require.NoError(t, err)
		assert.Equal(t, tc.want, got)
	}
}

func TestDescribeEvent(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"step", `{"type":"step","persona_name":"Ada","step":3,"progress":40,"emotional_state":"confused","narration":"Where is the cart?"}`,
			"[Ada] step 3 (40%, confused): Where is the cart?"},
		{"shift", `{"type":"emotional_shift","persona_name":"Ada","step":4,"from":"curious","to":"frustrated"}`,
			"[Ada] step 4: curious -> frustrated"},
		{"snapshot", `{"type":"snapshot","sessions":[{"active":true},{"active":false}]}`,
			"snapshot: 2 sessions, 1 active"},
		{"not json", `frame`, "frame"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, describeEvent([]byte(tc.in)))
		})
	}
}

func TestFormatTime(t *testing.T) {
	assert.Equal(t, "-", formatTime(nil))
	ts := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)
	assert.Equal(t, "2026-03-04 05:06:07", formatTime(&ts))
}

func TestMaskKey(t *testing.T) {
	assert.Equal(t, "(not set)", maskKey(""))
	assert.Equal(t, "****", maskKey("short"))
	assert.Equal(t, "abcd...wxyz", maskKey("abcdefghijklmnopqrstuvwxyz"))
}
