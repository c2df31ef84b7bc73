package studyrun

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var (
	ErrRunNotFound       = errors.New("study run not found")
	ErrMissingID         = errors.New("study run needs a study id")
	ErrRunAlreadyStarted = errors.New("study run already started")
	ErrRunFinished       = errors.New("study run already finished")
	ErrInvalidStatus     = errors.New("invalid study run status")
)

type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
	StatusRejected  Status = "rejected"
)

func (s Status) IsValid() bool {
	switch s {
	case StatusQueued, StatusRunning, StatusCompleted, StatusFailed, StatusCancelled, StatusRejected:
		return true
	}
	return false
}

// IsTerminal reports whether no further transition is allowed.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled, StatusRejected:
		return true
	}
	return false
}

// JSONMap is a custom type for JSON columns.
type JSONMap map[string]interface{}

func (j JSONMap) Value() (driver.Value, error) {
	if j == nil {
		return json.Marshal(map[string]interface{}{})
	}
	return json.Marshal(j)
}

func (j *JSONMap) Scan(value interface{}) error {
	if value == nil {
		*j = make(JSONMap)
		return nil
	}
	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return errors.New("failed to scan JSONMap: not a byte slice")
	}
	var m map[string]interface{}
	if err := json.Unmarshal(bytes, &m); err != nil {
		return err
	}
	*j = m
	return nil
}

// Run is the lifecycle record of one submitted study. Its id is the study id.
type Run struct {
	ID         uuid.UUID  `json:"id" gorm:"type:char(36);primaryKey"`
	Name       string     `json:"name" gorm:"type:varchar(255)"`
	Status     Status     `json:"status" gorm:"type:varchar(20);not null;default:'queued';index:idx_study_runs_status"`
	Definition JSONMap    `json:"definition" gorm:"type:json"`
	Summary    JSONMap    `json:"summary" gorm:"type:json"`
	Personas   int        `json:"personas" gorm:"not null;default:0"`
	Error      string     `json:"error,omitempty" gorm:"type:text"`
	StartTime  *time.Time `json:"start_time,omitempty"`
	EndTime    *time.Time `json:"end_time,omitempty"`
	Duration   *int64     `json:"duration,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

func (Run) TableName() string {
	return "study_runs"
}

func (r *Run) BeforeCreate(tx *gorm.DB) error {
	if r.Status == "" {
		r.Status = StatusQueued
	}
	return nil
}

func (r *Run) Validate() error {
	if r.ID == uuid.Nil {
		return ErrMissingID
	}
	if r.Status != "" && !r.Status.IsValid() {
		return ErrInvalidStatus
	}
	return nil
}

// Start marks the run as picked up by a worker.
func (r *Run) Start() error {
	if r.Status != StatusQueued {
		return ErrRunAlreadyStarted
	}
	now := time.Now()
	r.Status = StatusRunning
	r.StartTime = &now
	return nil
}

// Finish moves a queued or running run to a terminal status.
func (r *Run) Finish(status Status, summary JSONMap, errMsg string) error {
	if !status.IsTerminal() {
		return ErrInvalidStatus
	}
	if r.Status.IsTerminal() {
		return ErrRunFinished
	}
	now := time.Now()
	r.Status = status
	r.EndTime = &now
	r.Summary = summary
	r.Error = errMsg
	if r.StartTime != nil {
		duration := now.Sub(*r.StartTime).Milliseconds()
		r.Duration = &duration
	}
	return nil
}
