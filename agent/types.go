package agent

import (
	"github.com/google/uuid"
	"github.com/hairizuanbinnoorazman/persona-navigator/browser"
	"github.com/hairizuanbinnoorazman/persona-navigator/reasoning"
)

// Persona is the simulated user driving a session.
type Persona struct {
	ID              string            `json:"id" yaml:"id"`
	Name            string            `json:"name" yaml:"name"`
	Attributes      map[string]string `json:"attributes" yaml:"attributes"`
	BehavioralRules string            `json:"behavioral_rules" yaml:"behavioral_rules"`
	// Viewport names a session.Viewport profile; empty means desktop.
	Viewport string `json:"viewport,omitempty" yaml:"viewport,omitempty"`
}

// Task is the goal a persona pursues.
type Task struct {
	Goal     string `json:"goal" yaml:"goal"`
	StartURL string `json:"start_url" yaml:"start_url"`
}

// Study runs one task for several personas.
type Study struct {
	ID       uuid.UUID `json:"id" yaml:"id"`
	Name     string    `json:"name" yaml:"name"`
	Task     Task      `json:"task" yaml:"task"`
	Personas []Persona `json:"personas" yaml:"personas"`
}

// StepOutcome is one completed step.
type StepOutcome struct {
	StepNumber int    `json:"step_number"`
	URL        string `json:"url"`
	Title      string `json:"title"`

	Narration      string            `json:"narration"`
	Reasoning      string            `json:"reasoning,omitempty"`
	Confidence     float64           `json:"confidence"`
	TaskProgress   int               `json:"task_progress"`
	EmotionalState string            `json:"emotional_state"`
	Issues         []reasoning.Issue `json:"issues,omitempty"`

	Action browser.Kind   `json:"action"`
	Result browser.Result `json:"result"`

	ClickX      *int   `json:"click_x,omitempty"`
	ClickY      *int   `json:"click_y,omitempty"`
	ClickTarget string `json:"click_target,omitempty"`

	ScreenshotPath string `json:"screenshot_path,omitempty"`
	// Degraded marks a step whose perceive/decide/act sequence failed.
	Degraded bool `json:"degraded,omitempty"`
}

// NavigationResult is the terminal summary of one session attempt. Error is the only
// user-visible failure; an empty Error means none.
type NavigationResult struct {
	SessionID     uuid.UUID     `json:"session_id"`
	PersonaName   string        `json:"persona_name"`
	TaskCompleted bool          `json:"task_completed"`
	GaveUp        bool          `json:"gave_up"`
	TotalSteps    int           `json:"total_steps"`
	Error         string        `json:"error,omitempty"`
	Steps         []StepOutcome `json:"steps"`
}
