package reasoning

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/hairizuanbinnoorazman/persona-navigator/browser"
	"github.com/hairizuanbinnoorazman/persona-navigator/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scriptedModel struct {
	mu      sync.Mutex
	outputs []string
	errs    []error
	prompts []string
}

func (m *scriptedModel) Complete(ctx context.Context, prompt string, image []byte) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	i := len(m.prompts)
	m.prompts = append(m.prompts, prompt)
	if i < len(m.errs) && m.errs[i] != nil {
		return "", m.errs[i]
	}
	if i < len(m.outputs) {
		return m.outputs[i], nil
	}
	return "", ErrEmptyResponse
}

const validDecision = `{"narration":"ok","action":{"type":"scroll","direction":"down"},"task_progress":10}`

func TestReasoner_Decide(t *testing.T) {
	model := &scriptedModel{outputs: []string{validDecision}}
	r := NewReasoner(model, 0, logger.NewTestLogger())

	d, err := r.Decide(context.Background(), Request{Task: "buy socks", StepNumber: 1})
	require.NoError(t, err)
	assert.Equal(t, browser.Scroll{Direction: "down"}, d.Action)
	assert.Len(t, model.prompts, 1)
}

func TestReasoner_RetriesMalformedOnce(t *testing.T) {
	model := &scriptedModel{outputs: []string{"not json", validDecision}}
	log := logger.NewTestLogger()
	r := NewReasoner(model, 0, log)

	d, err := r.Decide(context.Background(), Request{Task: "buy socks"})
	require.NoError(t, err)
	assert.Equal(t, 10, d.TaskProgress)

	require.Len(t, model.prompts, 2)
	assert.NotContains(t, model.prompts[0], "<correction>")
	assert.Contains(t, model.prompts[1], "Return ONLY a single valid JSON object")
	assert.True(t, log.HasMessage("warn", "malformed decision, retrying with clarification"))
}

func TestReasoner_FailsAfterSecondMalformed(t *testing.T) {
	model := &scriptedModel{outputs: []string{"nope", "still nope", validDecision}}
	r := NewReasoner(model, 0, logger.NewTestLogger())

	_, err := r.Decide(context.Background(), Request{})
	assert.ErrorIs(t, err, ErrMalformedDecision)
	assert.Len(t, model.prompts, 2)
}

func TestReasoner_TransportErrorIsNotRetried(t *testing.T) {
	model := &scriptedModel{errs: []error{errors.New("throttled")}, outputs: []string{"", validDecision}}
	r := NewReasoner(model, 0, logger.NewTestLogger())

	_, err := r.Decide(context.Background(), Request{})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrMalformedDecision)
	assert.Len(t, model.prompts, 1)
}

func TestBuildPrompt(t *testing.T) {
	p := BuildPrompt(Request{
		PersonaName:       "Grace",
		PersonaAttributes: map[string]string{"tech_literacy": "low", "age": "71"},
		BehavioralRules:   "Reads everything twice.",
		Task:              "Find the opening hours",
		URL:               "https://library.example",
		Title:             "City Library",
		StepNumber:        4,
		Elements:          `[0] <a> "Hours" selector=#hours at (10,10)`,
		History: []HistoryEntry{
			{Step: 3, Action: "Click #menu", URL: "https://library.example", Success: false, Progress: 20, Narration: "Where is it?"},
		},
	})

	assert.Contains(t, p, "<name>Grace</name>")
	assert.Less(t, strings.Index(p, `name="age"`), strings.Index(p, `name="tech_literacy"`))
	assert.Contains(t, p, "Reads everything twice.")
	assert.Contains(t, p, `<page step="4">`)
	assert.Contains(t, p, "3. [failed] Click #menu (https://library.example, progress 20%) Where is it?")
	assert.Contains(t, p, "double_click_at")
}

type fakeBedrock struct {
	body []byte
	out  string
}

func (f *fakeBedrock) InvokeModel(ctx context.Context, in *bedrockruntime.InvokeModelInput, _ ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error) {
	f.body = in.Body
	return &bedrockruntime.InvokeModelOutput{Body: []byte(f.out)}, nil
}

func TestBedrockModel_Complete(t *testing.T) {
	fake := &fakeBedrock{out: `{"content":[{"type":"text","text":"{\"a\":"},{"type":"text","text":"1}"}],"stop_reason":"end_turn"}`}
	m := NewBedrockModelWithClient(fake, "anthropic.claude", 0)

	out, err := m.Complete(context.Background(), "hello", []byte{0xFF, 0xD8})
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, out)

	var req struct {
		MaxTokens int `json:"max_tokens"`
		Messages  []struct {
			Content []map[string]interface{} `json:"content"`
		} `json:"messages"`
	}
	require.NoError(t, json.Unmarshal(fake.body, &req))
	assert.Equal(t, 1024, req.MaxTokens)
	require.Len(t, req.Messages[0].Content, 2)
	assert.Equal(t, "image", req.Messages[0].Content[0]["type"])
	assert.Equal(t, "hello", req.Messages[0].Content[1]["text"])

	fake.out = `{"content":[]}`
	_, err = m.Complete(context.Background(), "hello", nil)
	assert.ErrorIs(t, err, ErrEmptyResponse)
}
