// Package recorder persists navigation steps and propagates live session state to observers.
package recorder

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hairizuanbinnoorazman/persona-navigator/broadcast"
	"github.com/hairizuanbinnoorazman/persona-navigator/logger"
	"github.com/hairizuanbinnoorazman/persona-navigator/reasoning"
	"github.com/hairizuanbinnoorazman/persona-navigator/storage"
)

// StepRecord is everything known about one completed step.
type StepRecord struct {
	SessionID   uuid.UUID
	StudyID     uuid.UUID
	PersonaName string
	LiveViewURL string

	StepNumber int
	URL        string
	Title      string

	Narration      string
	Reasoning      string
	Confidence     float64
	TaskProgress   int
	EmotionalState string
	Issues         []reasoning.Issue

	ActionKind        string
	ActionDescription string
	ActionSuccess     bool
	ActionError       string

	ClickX      *int
	ClickY      *int
	ClickTarget string

	// Screenshot is written to blob storage by SaveStep, which then sets ScreenshotPath.
	Screenshot     []byte
	ScreenshotPath string
}

// SessionInfo describes a persona session at start.
type SessionInfo struct {
	SessionID   uuid.UUID
	StudyID     uuid.UUID
	PersonaName string
	TaskGoal    string
	StartURL    string
	LiveViewURL string
}

// Completion is the terminal summary of a persona session.
type Completion struct {
	TotalSteps    int
	TaskCompleted bool
	GaveUp        bool
	Error         string
}

// Status maps a completion to the stored session status.
func (c Completion) Status() SessionStatus {
	switch {
	case c.Error != "":
		return StatusFailed
	case c.TaskCompleted:
		return StatusCompleted
	case c.GaveUp:
		return StatusGaveUp
	default:
		return StatusStepLimit
	}
}

// Recorder writes steps for one study run. Relational writes from concurrent agent loops are
// serialized by a mutex owned by this instance; screenshots and publishing are not.
type Recorder struct {
	store     Store
	blobs     storage.BlobStorage
	publisher broadcast.Publisher
	live      *LiveState
	logger    logger.Logger

	mu sync.Mutex

	// lastEmotion maps session id to the previous emotional state label.
	lastEmotion sync.Map
}

// New creates a recorder. live is shared with the observer transport.
func New(store Store, blobs storage.BlobStorage, publisher broadcast.Publisher, live *LiveState, log logger.Logger) *Recorder {
	return &Recorder{
		store:     store,
		blobs:     blobs,
		publisher: publisher,
		live:      live,
		logger:    log,
	}
}

// ScreenshotPrefix is the blob storage prefix for a session's step screenshots.
func ScreenshotPrefix(sessionID uuid.UUID) string {
	return path.Join("screenshots", sessionID.String())
}

// SaveStep persists rec. A screenshot that cannot be stored is logged and the step is still
// written without it.
func (r *Recorder) SaveStep(ctx context.Context, rec *StepRecord) error {
	if len(rec.Screenshot) > 0 && r.blobs != nil {
		p, err := storage.SaveBytes(ctx, r.blobs, ScreenshotPrefix(rec.SessionID), "jpg", rec.Screenshot)
		if err != nil {
			r.logger.Warn(ctx, "failed to store step screenshot", map[string]interface{}{
				"error":       err.Error(),
				"session_id":  rec.SessionID.String(),
				"step_number": rec.StepNumber,
			})
		} else {
			rec.ScreenshotPath = p
		}
	}

	step := &Step{
		SessionID:         rec.SessionID,
		StepNumber:        rec.StepNumber,
		URL:               rec.URL,
		Title:             rec.Title,
		ActionKind:        rec.ActionKind,
		ActionDescription: rec.ActionDescription,
		ActionSuccess:     rec.ActionSuccess,
		ActionError:       rec.ActionError,
		Narration:         rec.Narration,
		Reasoning:         rec.Reasoning,
		Confidence:        rec.Confidence,
		TaskProgress:      rec.TaskProgress,
		EmotionalState:    rec.EmotionalState,
		ScreenshotPath:    rec.ScreenshotPath,
		ClickX:            rec.ClickX,
		ClickY:            rec.ClickY,
		ClickTarget:       rec.ClickTarget,
	}
	issues := make([]*Issue, 0, len(rec.Issues))
	for _, is := range rec.Issues {
		issues = append(issues, &Issue{Severity: is.Severity, Description: is.Description})
	}

	r.mu.Lock()
	err := r.store.SaveStep(ctx, step, issues)
	r.mu.Unlock()
	if err != nil {
		return fmt.Errorf("failed to save step %d: %w", rec.StepNumber, err)
	}
	return nil
}

// PublishStepEvent broadcasts rec on its study channel and updates the live snapshot.
// Publish failures are logged only.
func (r *Recorder) PublishStepEvent(ctx context.Context, rec *StepRecord) {
	now := time.Now().UTC()
	studyChannel := broadcast.StudyChannel(rec.StudyID.String())

	r.publish(ctx, studyChannel, StepEvent{
		Type:              EventStep,
		StudyID:           rec.StudyID.String(),
		SessionID:         rec.SessionID.String(),
		PersonaName:       rec.PersonaName,
		Step:              rec.StepNumber,
		URL:               rec.URL,
		Title:             rec.Title,
		Narration:         rec.Narration,
		Action:            rec.ActionKind,
		ActionDescription: rec.ActionDescription,
		ActionSuccess:     rec.ActionSuccess,
		Progress:          rec.TaskProgress,
		Confidence:        rec.Confidence,
		EmotionalState:    rec.EmotionalState,
		IssueCount:        len(rec.Issues),
		LiveViewURL:       rec.LiveViewURL,
		ScreenshotPath:    rec.ScreenshotPath,
		ClickX:            rec.ClickX,
		ClickY:            rec.ClickY,
		Timestamp:         now,
	})

	r.live.update(rec.SessionID, func(s *LiveSnapshot) {
		s.StudyID = rec.StudyID.String()
		s.PersonaName = rec.PersonaName
		s.Step = rec.StepNumber
		s.Narration = rec.Narration
		if rec.ScreenshotPath != "" {
			s.ScreenshotPath = rec.ScreenshotPath
		}
		if rec.LiveViewURL != "" {
			s.LiveViewURL = rec.LiveViewURL
		}
		s.Progress = rec.TaskProgress
		s.EmotionalState = rec.EmotionalState
		s.Active = true
	})

	if rec.EmotionalState == "" {
		return
	}
	prev, seen := r.lastEmotion.Swap(rec.SessionID, rec.EmotionalState)
	if !seen {
		return
	}
	if delta, shifted := EmotionShift(prev.(string), rec.EmotionalState); shifted {
		r.publish(ctx, studyChannel, EmotionalShiftEvent{
			Type:        EventEmotionalShift,
			StudyID:     rec.StudyID.String(),
			SessionID:   rec.SessionID.String(),
			PersonaName: rec.PersonaName,
			Step:        rec.StepNumber,
			From:        prev.(string),
			To:          rec.EmotionalState,
			Delta:       delta,
			Timestamp:   now,
		})
	}
}

// BeginSession writes the session row, marks the session active and announces it.
func (r *Recorder) BeginSession(ctx context.Context, info SessionInfo) error {
	row := &PersonaSession{
		ID:          info.SessionID,
		StudyID:     info.StudyID,
		PersonaName: info.PersonaName,
		TaskGoal:    info.TaskGoal,
		StartURL:    info.StartURL,
		Status:      StatusRunning,
		LiveViewURL: info.LiveViewURL,
	}
	r.mu.Lock()
	err := r.store.CreateSession(ctx, row)
	r.mu.Unlock()
	if err != nil {
		return fmt.Errorf("failed to record session start: %w", err)
	}

	r.live.update(info.SessionID, func(s *LiveSnapshot) {
		s.StudyID = info.StudyID.String()
		s.PersonaName = info.PersonaName
		s.LiveViewURL = info.LiveViewURL
		s.EmotionalState = "neutral"
		s.Active = true
	})

	r.publish(ctx, broadcast.StudyChannel(info.StudyID.String()), SessionEvent{
		Type:        EventSessionStarted,
		StudyID:     info.StudyID.String(),
		SessionID:   info.SessionID.String(),
		PersonaName: info.PersonaName,
		LiveViewURL: info.LiveViewURL,
		Status:      string(StatusRunning),
		Timestamp:   time.Now().UTC(),
	})
	return nil
}

// CompleteSession stores the final outcome, marks the snapshot inactive and announces the end.
func (r *Recorder) CompleteSession(ctx context.Context, sessionID uuid.UUID, c Completion) error {
	r.lastEmotion.Delete(sessionID)

	r.mu.Lock()
	row, err := r.store.GetSession(ctx, sessionID)
	if err == nil {
		now := time.Now().UTC()
		row.Status = c.Status()
		row.TotalSteps = c.TotalSteps
		row.TaskCompleted = c.TaskCompleted
		row.GaveUp = c.GaveUp
		row.Error = c.Error
		row.CompletedAt = &now
		err = r.store.UpdateSession(ctx, row)
	}
	r.mu.Unlock()
	if err != nil {
		return fmt.Errorf("failed to record session completion: %w", err)
	}

	r.live.update(sessionID, func(s *LiveSnapshot) {
		s.Active = false
	})

	studyID := row.StudyID.String()
	channel := broadcast.StudyChannel(studyID)
	now := time.Now().UTC()
	if c.Error != "" {
		r.publish(ctx, channel, ErrorEvent{
			Type:        EventError,
			StudyID:     studyID,
			SessionID:   sessionID.String(),
			PersonaName: row.PersonaName,
			Error:       c.Error,
			Timestamp:   now,
		})
	}
	r.publish(ctx, channel, SessionEvent{
		Type:          EventSessionCompleted,
		StudyID:       studyID,
		SessionID:     sessionID.String(),
		PersonaName:   row.PersonaName,
		LiveViewURL:   row.LiveViewURL,
		Status:        string(row.Status),
		TotalSteps:    c.TotalSteps,
		TaskCompleted: c.TaskCompleted,
		GaveUp:        c.GaveUp,
		Error:         c.Error,
		Timestamp:     now,
	})
	return nil
}

// PublishProgress announces a session phase change, such as navigation to the start page.
func (r *Recorder) PublishProgress(ctx context.Context, studyID, sessionID uuid.UUID, personaName, message string) {
	r.publish(ctx, broadcast.StudyChannel(studyID.String()), ProgressEvent{
		Type:        EventProgress,
		StudyID:     studyID.String(),
		SessionID:   sessionID.String(),
		PersonaName: personaName,
		Message:     message,
		Timestamp:   time.Now().UTC(),
	})
}

// PublishError announces a session failure that happened before a session row existed.
func (r *Recorder) PublishError(ctx context.Context, studyID, sessionID uuid.UUID, personaName, message string) {
	r.publish(ctx, broadcast.StudyChannel(studyID.String()), ErrorEvent{
		Type:        EventError,
		StudyID:     studyID.String(),
		SessionID:   sessionID.String(),
		PersonaName: personaName,
		Error:       message,
		Timestamp:   time.Now().UTC(),
	})
}

// Snapshot returns the live state of studyID's sessions.
func (r *Recorder) Snapshot(studyID uuid.UUID) []LiveSnapshot {
	return r.live.Study(studyID)
}

func (r *Recorder) publish(ctx context.Context, channel string, event interface{}) {
	data, err := json.Marshal(event)
	if err != nil {
		r.logger.Error(ctx, "failed to marshal live event", map[string]interface{}{
			"error":   err.Error(),
			"channel": channel,
		})
		return
	}
	if err := r.publisher.Publish(ctx, broadcast.Message{Channel: channel, Data: data}); err != nil {
		r.logger.Warn(ctx, "failed to publish live event", map[string]interface{}{
			"error":   err.Error(),
			"channel": channel,
		})
	}
}
