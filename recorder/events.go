package recorder

import "time"

// Event types published on a study channel.
const (
	EventStep             = "step"
	EventProgress         = "progress"
	EventError            = "error"
	EventEmotionalShift   = "emotional_shift"
	EventSnapshot         = "snapshot"
	EventSessionStarted   = "session_started"
	EventSessionCompleted = "session_completed"
)

// StepEvent is the enriched live view of one recorded step.
type StepEvent struct {
	Type              string    `json:"type"`
	StudyID           string    `json:"study_id"`
	SessionID         string    `json:"session_id"`
	PersonaName       string    `json:"persona_name"`
	Step              int       `json:"step"`
	URL               string    `json:"url"`
	Title             string    `json:"title"`
	Narration         string    `json:"narration"`
	Action            string    `json:"action"`
	ActionDescription string    `json:"action_description"`
	ActionSuccess     bool      `json:"action_success"`
	Progress          int       `json:"progress"`
	Confidence        float64   `json:"confidence"`
	EmotionalState    string    `json:"emotional_state"`
	IssueCount        int       `json:"issue_count"`
	LiveViewURL       string    `json:"live_view_url,omitempty"`
	ScreenshotPath    string    `json:"screenshot_path,omitempty"`
	ClickX            *int      `json:"click_x,omitempty"`
	ClickY            *int      `json:"click_y,omitempty"`
	Timestamp         time.Time `json:"timestamp"`
}

// EmotionalShiftEvent marks a large change in a persona's emotional state between steps.
type EmotionalShiftEvent struct {
	Type        string    `json:"type"`
	StudyID     string    `json:"study_id"`
	SessionID   string    `json:"session_id"`
	PersonaName string    `json:"persona_name"`
	Step        int       `json:"step"`
	From        string    `json:"from"`
	To          string    `json:"to"`
	Delta       int       `json:"delta"`
	Timestamp   time.Time `json:"timestamp"`
}

// ProgressEvent reports a session phase change outside of a recorded step.
type ProgressEvent struct {
	Type        string    `json:"type"`
	StudyID     string    `json:"study_id"`
	SessionID   string    `json:"session_id"`
	PersonaName string    `json:"persona_name"`
	Message     string    `json:"message"`
	Timestamp   time.Time `json:"timestamp"`
}

// ErrorEvent reports a terminal session failure.
type ErrorEvent struct {
	Type        string    `json:"type"`
	StudyID     string    `json:"study_id"`
	SessionID   string    `json:"session_id"`
	PersonaName string    `json:"persona_name"`
	Error       string    `json:"error"`
	Timestamp   time.Time `json:"timestamp"`
}

// SessionEvent marks the start or end of a persona session.
type SessionEvent struct {
	Type          string    `json:"type"`
	StudyID       string    `json:"study_id"`
	SessionID     string    `json:"session_id"`
	PersonaName   string    `json:"persona_name"`
	LiveViewURL   string    `json:"live_view_url,omitempty"`
	Status        string    `json:"status"`
	TotalSteps    int       `json:"total_steps"`
	TaskCompleted bool      `json:"task_completed"`
	GaveUp        bool      `json:"gave_up"`
	Error         string    `json:"error,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

// SnapshotEvent catches a newly subscribed observer up with a study.
type SnapshotEvent struct {
	Type     string         `json:"type"`
	StudyID  string         `json:"study_id"`
	Sessions []LiveSnapshot `json:"sessions"`
}
