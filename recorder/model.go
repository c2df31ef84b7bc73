package recorder

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var (
	// ErrSessionNotFound is returned when a persona session row does not exist.
	ErrSessionNotFound = errors.New("persona session not found")
)

// SessionStatus is the lifecycle state of a persona session row.
type SessionStatus string

const (
	StatusRunning   SessionStatus = "running"
	StatusCompleted SessionStatus = "completed"
	StatusGaveUp    SessionStatus = "gave_up"
	StatusStepLimit SessionStatus = "step_limit_reached"
	StatusFailed    SessionStatus = "failed"
)

// PersonaSession is one logical persona-task attempt.
type PersonaSession struct {
	ID            uuid.UUID     `json:"id" gorm:"type:char(36);primaryKey"`
	StudyID       uuid.UUID     `json:"study_id" gorm:"type:char(36);not null;index"`
	PersonaName   string        `json:"persona_name" gorm:"type:varchar(255);not null"`
	TaskGoal      string        `json:"task_goal" gorm:"type:text"`
	StartURL      string        `json:"start_url" gorm:"type:varchar(2048)"`
	Status        SessionStatus `json:"status" gorm:"type:varchar(32);not null"`
	LiveViewURL   string        `json:"live_view_url" gorm:"type:varchar(2048)"`
	TotalSteps    int           `json:"total_steps"`
	TaskCompleted bool          `json:"task_completed"`
	GaveUp        bool          `json:"gave_up"`
	Error         string        `json:"error" gorm:"type:text"`
	CompletedAt   *time.Time    `json:"completed_at"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

// BeforeCreate hook to generate UUID before creating a new session.
func (s *PersonaSession) BeforeCreate(tx *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}

// TableName specifies the table name for GORM.
func (s *PersonaSession) TableName() string {
	return "persona_sessions"
}

// Step is one persisted navigation step.
type Step struct {
	ID                uuid.UUID `json:"id" gorm:"type:char(36);primaryKey"`
	SessionID         uuid.UUID `json:"session_id" gorm:"type:char(36);not null;uniqueIndex:idx_session_step"`
	StepNumber        int       `json:"step_number" gorm:"not null;uniqueIndex:idx_session_step"`
	URL               string    `json:"url" gorm:"type:varchar(2048)"`
	Title             string    `json:"title" gorm:"type:varchar(512)"`
	ActionKind        string    `json:"action_kind" gorm:"type:varchar(32);not null"`
	ActionDescription string    `json:"action_description" gorm:"type:text"`
	ActionSuccess     bool      `json:"action_success"`
	ActionError       string    `json:"action_error" gorm:"type:text"`
	Narration         string    `json:"narration" gorm:"type:text"`
	Reasoning         string    `json:"reasoning" gorm:"type:text"`
	Confidence        float64   `json:"confidence"`
	TaskProgress      int       `json:"task_progress"`
	EmotionalState    string    `json:"emotional_state" gorm:"type:varchar(64)"`
	ScreenshotPath    string    `json:"screenshot_path" gorm:"type:varchar(1024)"`
	ClickX            *int      `json:"click_x,omitempty"`
	ClickY            *int      `json:"click_y,omitempty"`
	ClickTarget       string    `json:"click_target,omitempty" gorm:"type:varchar(512)"`
	CreatedAt         time.Time `json:"created_at"`
}

// BeforeCreate hook to generate UUID before creating a new step.
func (s *Step) BeforeCreate(tx *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}

// TableName specifies the table name for GORM.
func (s *Step) TableName() string {
	return "navigation_steps"
}

// Issue is a usability problem the persona reported on a step.
type Issue struct {
	ID          uuid.UUID `json:"id" gorm:"type:char(36);primaryKey"`
	StepID      uuid.UUID `json:"step_id" gorm:"type:char(36);not null;index"`
	SessionID   uuid.UUID `json:"session_id" gorm:"type:char(36);not null;index"`
	Severity    string    `json:"severity" gorm:"type:varchar(16);not null"`
	Description string    `json:"description" gorm:"type:text;not null"`
	CreatedAt   time.Time `json:"created_at"`
}

// BeforeCreate hook to generate UUID before creating a new issue.
func (i *Issue) BeforeCreate(tx *gorm.DB) error {
	if i.ID == uuid.Nil {
		i.ID = uuid.New()
	}
	return nil
}

// TableName specifies the table name for GORM.
func (i *Issue) TableName() string {
	return "step_issues"
}
