package agent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hairizuanbinnoorazman/persona-navigator/logger"
	"github.com/hairizuanbinnoorazman/persona-navigator/reasoning"
	"github.com/hairizuanbinnoorazman/persona-navigator/recorder"
	"github.com/hairizuanbinnoorazman/persona-navigator/session"
	"golang.org/x/sync/errgroup"
)

var (
	// ErrInvalidStudy is returned when a study cannot be run as submitted.
	ErrInvalidStudy = errors.New("invalid study")
)

// Leaser hands out browser sessions.
type Leaser interface {
	Acquire(ctx context.Context, vp session.Viewport) (*session.BrowserSession, error)
	Release(ctx context.Context, s *session.BrowserSession) error
}

// StudyRecorder is the recorder a study run writes to.
type StudyRecorder interface {
	StepRecorder
	BeginSession(ctx context.Context, info recorder.SessionInfo) error
	CompleteSession(ctx context.Context, sessionID uuid.UUID, c recorder.Completion) error
	PublishProgress(ctx context.Context, studyID, sessionID uuid.UUID, personaName, message string)
	PublishError(ctx context.Context, studyID, sessionID uuid.UUID, personaName, message string)
}

// Stream is a live frame stream attached to a leased session.
type Stream interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context)
}

// StreamFactory builds the stream for a session, or returns nil when the session cannot be
// streamed.
type StreamFactory func(sessionID uuid.UUID, s *session.BrowserSession) Stream

// Runner runs every persona of a study concurrently against a shared session pool.
type Runner struct {
	cfg      Config
	pool     Leaser
	reasoner reasoning.Client
	executor ActionExecutor
	streams  StreamFactory
	logger   logger.Logger

	// CleanupTimeout bounds stream stop, completion recording and lease release.
	CleanupTimeout time.Duration
}

// NewRunner creates a runner. streams may be nil to disable live frames.
func NewRunner(cfg Config, pool Leaser, reasoner reasoning.Client, executor ActionExecutor, streams StreamFactory, log logger.Logger) *Runner {
	return &Runner{
		cfg:            cfg,
		pool:           pool,
		reasoner:       reasoner,
		executor:       executor,
		streams:        streams,
		logger:         log,
		CleanupTimeout: 30 * time.Second,
	}
}

// Validate checks that study can be run.
func (s Study) Validate() error {
	if s.Task.StartURL == "" {
		return fmt.Errorf("%w: task start_url is required", ErrInvalidStudy)
	}
	if s.Task.Goal == "" {
		return fmt.Errorf("%w: task goal is required", ErrInvalidStudy)
	}
	if len(s.Personas) == 0 {
		return fmt.Errorf("%w: at least one persona is required", ErrInvalidStudy)
	}
	for i, p := range s.Personas {
		if p.Name == "" {
			return fmt.Errorf("%w: persona %d has no name", ErrInvalidStudy, i)
		}
	}
	return nil
}

// Run runs study and returns one result per persona, in persona order. Per-persona failures
// are reported in each result; the error is only for an invalid study.
func (r *Runner) Run(ctx context.Context, study Study, rec StudyRecorder) ([]NavigationResult, error) {
	if err := study.Validate(); err != nil {
		return nil, err
	}
	if study.ID == uuid.Nil {
		study.ID = uuid.New()
	}

	r.logger.Info(ctx, "study started", map[string]interface{}{
		"study_id": study.ID.String(),
		"personas": len(study.Personas),
	})

	loop := NewLoop(r.cfg, r.reasoner, r.executor, rec, r.logger)
	results := make([]NavigationResult, len(study.Personas))

	var g errgroup.Group
	for i, persona := range study.Personas {
		g.Go(func() error {
			results[i] = r.runPersona(ctx, loop, study, persona, rec)
			return nil
		})
	}
	_ = g.Wait()

	completed := 0
	for _, res := range results {
		if res.TaskCompleted {
			completed++
		}
	}
	r.logger.Info(ctx, "study finished", map[string]interface{}{
		"study_id":  study.ID.String(),
		"completed": completed,
		"personas":  len(results),
	})
	return results, nil
}

// runPersona leases a session, streams it and runs the loop. The deferred cleanup stops the
// stream and releases the lease exactly once on every path, cancellation included.
func (r *Runner) runPersona(ctx context.Context, loop *Loop, study Study, persona Persona, rec StudyRecorder) (result NavigationResult) {
	sessionID := uuid.New()
	ctx = logger.WithSessionID(ctx, sessionID.String())
	log := r.logger.WithFields(map[string]interface{}{
		"study_id": study.ID.String(),
		"persona":  persona.Name,
	})
	result = NavigationResult{SessionID: sessionID, PersonaName: persona.Name, Steps: []StepOutcome{}}

	rec.PublishProgress(ctx, study.ID, sessionID, persona.Name, "waiting for a browser session")
	bs, err := r.pool.Acquire(ctx, session.ViewportByName(persona.Viewport))
	if err != nil {
		result.Error = fmt.Sprintf("failed to acquire browser session: %v", err)
		log.Error(ctx, "failed to acquire browser session", map[string]interface{}{
			"error": err.Error(),
		})
		rec.PublishError(ctx, study.ID, sessionID, persona.Name, result.Error)
		return result
	}

	var stream Stream
	defer func() {
		cctx, cancel := r.cleanupContext(ctx)
		defer cancel()
		if stream != nil {
			stream.Stop(cctx)
		}
		if err := r.pool.Release(cctx, bs); err != nil {
			log.Warn(cctx, "failed to release browser session", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}()

	began := true
	if err := rec.BeginSession(ctx, recorder.SessionInfo{
		SessionID:   sessionID,
		StudyID:     study.ID,
		PersonaName: persona.Name,
		TaskGoal:    study.Task.Goal,
		StartURL:    study.Task.StartURL,
		LiveViewURL: bs.LiveViewURL,
	}); err != nil {
		began = false
		log.Error(ctx, "failed to record session start", map[string]interface{}{
			"error": err.Error(),
		})
	}

	if r.streams != nil {
		if s := r.streams(sessionID, bs); s != nil {
			if err := s.Start(ctx); err != nil {
				log.Warn(ctx, "live stream unavailable", map[string]interface{}{
					"error": err.Error(),
				})
			} else {
				stream = s
			}
		}
	}

	result = loop.Navigate(ctx, Run{
		SessionID:   sessionID,
		StudyID:     study.ID,
		Persona:     persona,
		Task:        study.Task,
		Page:        bs.Page,
		LiveViewURL: bs.LiveViewURL,
	})

	cctx, cancel := r.cleanupContext(ctx)
	defer cancel()
	if began {
		if err := rec.CompleteSession(cctx, sessionID, recorder.Completion{
			TotalSteps:    result.TotalSteps,
			TaskCompleted: result.TaskCompleted,
			GaveUp:        result.GaveUp,
			Error:         result.Error,
		}); err != nil {
			log.Error(cctx, "failed to record session completion", map[string]interface{}{
				"error": err.Error(),
			})
		}
	} else if result.Error != "" {
		rec.PublishError(cctx, study.ID, sessionID, persona.Name, result.Error)
	}
	return result
}

// cleanupContext outlives ctx's cancellation but not its values.
func (r *Runner) cleanupContext(ctx context.Context) (context.Context, context.CancelFunc) {
	timeout := r.CleanupTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return context.WithTimeout(context.WithoutCancel(ctx), timeout)
}
