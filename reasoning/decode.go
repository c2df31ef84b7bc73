package reasoning

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/hairizuanbinnoorazman/persona-navigator/browser"
)

var validSeverities = map[string]bool{
	"low":      true,
	"medium":   true,
	"high":     true,
	"critical": true,
}

type wireAction struct {
	Type string `json:"type"`
	browser.Params
}

type wireDecision struct {
	Narration      string      `json:"narration"`
	Action         *wireAction `json:"action"`
	Issues         []Issue     `json:"issues"`
	Confidence     *float64    `json:"confidence"`
	TaskProgress   *float64    `json:"task_progress"`
	EmotionalState string      `json:"emotional_state"`
	Reasoning      string      `json:"reasoning"`
}

// DecodeDecision parses raw model output. Markdown fences and prose around the JSON object
// are tolerated; everything past that must match the decision schema.
func DecodeDecision(raw string) (*Decision, error) {
	text := stripFences(strings.TrimSpace(raw))
	if text == "" {
		return nil, fmt.Errorf("%w: empty output", ErrMalformedDecision)
	}

	var w wireDecision
	if err := json.Unmarshal([]byte(text), &w); err != nil {
		obj, ok := extractObject(text)
		if !ok {
			return nil, fmt.Errorf("%w: no JSON object found", ErrMalformedDecision)
		}
		w = wireDecision{}
		if err := json.Unmarshal([]byte(obj), &w); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedDecision, err)
		}
	}
	return w.validate()
}

func (w wireDecision) validate() (*Decision, error) {
	if w.Action == nil || strings.TrimSpace(w.Action.Type) == "" {
		return nil, fmt.Errorf("%w: missing action", ErrMalformedDecision)
	}
	action, err := browser.ParseAction(w.Action.Type, w.Action.Params)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedDecision, err)
	}

	d := &Decision{
		Narration:      strings.TrimSpace(w.Narration),
		Action:         action,
		Reasoning:      strings.TrimSpace(w.Reasoning),
		EmotionalState: strings.ToLower(strings.TrimSpace(w.EmotionalState)),
		Confidence:     0.5,
	}
	if d.EmotionalState == "" {
		d.EmotionalState = "neutral"
	}
	if w.Confidence != nil {
		d.Confidence = math.Max(0, math.Min(1, *w.Confidence))
	}
	if w.TaskProgress != nil {
		d.TaskProgress = int(math.Round(math.Max(0, math.Min(100, *w.TaskProgress))))
	}
	for _, is := range w.Issues {
		desc := strings.TrimSpace(is.Description)
		if desc == "" {
			continue
		}
		sev := strings.ToLower(strings.TrimSpace(is.Severity))
		if !validSeverities[sev] {
			sev = "medium"
		}
		d.Issues = append(d.Issues, Issue{Severity: sev, Description: desc})
	}
	return d, nil
}

func stripFences(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	if idx := strings.Index(s, "\n"); idx != -1 {
		s = s[idx+1:]
	} else {
		s = strings.TrimPrefix(s, "```")
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// extractObject returns the first balanced top-level {...} in s, skipping braces inside
// JSON strings.
func extractObject(s string) (string, bool) {
	start := strings.Index(s, "{")
	if start < 0 {
		return "", false
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}
