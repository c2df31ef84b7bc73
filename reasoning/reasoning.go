// Package reasoning asks an external model what a persona does next and decodes the answer
// into a validated Decision.
package reasoning

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hairizuanbinnoorazman/persona-navigator/browser"
	"github.com/hairizuanbinnoorazman/persona-navigator/logger"
)

var (
	// ErrMalformedDecision is returned when the model output cannot be decoded into a Decision.
	ErrMalformedDecision = errors.New("malformed decision")
	// ErrEmptyResponse is returned by models that produced no text.
	ErrEmptyResponse = errors.New("empty model response")
)

// Issue is a usability problem the persona noticed on the page.
type Issue struct {
	Severity    string `json:"severity"`
	Description string `json:"description"`
}

// Decision is one validated step decision.
type Decision struct {
	Narration      string
	Action         browser.Action
	Issues         []Issue
	Confidence     float64
	TaskProgress   int
	EmotionalState string
	Reasoning      string
}

// HistoryEntry summarizes one earlier step for the model.
type HistoryEntry struct {
	Step      int
	Action    string
	Narration string
	URL       string
	Success   bool
	Progress  int
}

// Request carries everything the model sees for one step.
type Request struct {
	PersonaName       string
	PersonaAttributes map[string]string
	BehavioralRules   string
	Task              string

	Screenshot []byte
	Elements   string
	URL        string
	Title      string
	StepNumber int
	History    []HistoryEntry
}

// Client decides the next step.
type Client interface {
	Decide(ctx context.Context, req Request) (*Decision, error)
}

// Model is a text completion backend that accepts an optional JPEG image.
type Model interface {
	Complete(ctx context.Context, prompt string, image []byte) (string, error)
}

// Reasoner is the Client backed by a Model.
type Reasoner struct {
	model   Model
	timeout time.Duration
	logger  logger.Logger
}

// NewReasoner creates a Reasoner. A zero timeout means 60s per model call.
func NewReasoner(model Model, timeout time.Duration, log logger.Logger) *Reasoner {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Reasoner{model: model, timeout: timeout, logger: log}
}

// Decide calls the model and decodes its answer. A malformed answer is retried once with an
// explicit clarification; a second malformed answer or any transport error fails the call.
func (r *Reasoner) Decide(ctx context.Context, req Request) (*Decision, error) {
	prompt := BuildPrompt(req)

	raw, err := r.complete(ctx, prompt, req.Screenshot)
	if err != nil {
		return nil, err
	}
	decision, err := DecodeDecision(raw)
	if err == nil {
		return decision, nil
	}
	if !errors.Is(err, ErrMalformedDecision) {
		return nil, err
	}

	r.logger.Warn(ctx, "malformed decision, retrying with clarification", map[string]interface{}{
		"step":  req.StepNumber,
		"error": err.Error(),
	})

	raw, err = r.complete(ctx, prompt+clarification, req.Screenshot)
	if err != nil {
		return nil, err
	}
	decision, err = DecodeDecision(raw)
	if err != nil {
		return nil, fmt.Errorf("after clarification: %w", err)
	}
	return decision, nil
}

func (r *Reasoner) complete(ctx context.Context, prompt string, image []byte) (string, error) {
	cctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	out, err := r.model.Complete(cctx, prompt, image)
	if err != nil {
		return "", fmt.Errorf("reasoning call failed: %w", err)
	}
	return out, nil
}
