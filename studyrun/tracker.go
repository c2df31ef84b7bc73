package studyrun

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/hairizuanbinnoorazman/persona-navigator/agent"
	"github.com/hairizuanbinnoorazman/persona-navigator/logger"
)

// Queue accepts a validated study for asynchronous execution.
type Queue interface {
	Submit(study agent.Study) (agent.Study, error)
}

// Tracker keeps a Run row in step with a study as it moves through the worker queue.
// Tracking failures are logged and never fail the study itself.
type Tracker struct {
	store  Store
	queue  Queue
	logger logger.Logger
}

// NewTracker creates a tracker. queue may be nil when studies are run inline.
func NewTracker(store Store, queue Queue, log logger.Logger) *Tracker {
	return &Tracker{
		store:  store,
		queue:  queue,
		logger: log,
	}
}

// Record validates study, assigns its id and stores it as queued.
func (t *Tracker) Record(ctx context.Context, study agent.Study) (agent.Study, error) {
	if err := study.Validate(); err != nil {
		return study, err
	}
	if study.ID == uuid.Nil {
		study.ID = uuid.New()
	}
	run := &Run{
		ID:         study.ID,
		Name:       study.Name,
		Status:     StatusQueued,
		Definition: definition(study),
		Personas:   len(study.Personas),
	}
	if err := t.store.Create(ctx, run); err != nil {
		return study, err
	}
	return study, nil
}

// Submit records study and hands it to the queue. A study the queue refuses is kept
// as rejected.
func (t *Tracker) Submit(ctx context.Context, study agent.Study) (agent.Study, error) {
	if t.queue == nil {
		return study, errors.New("study tracker has no queue")
	}
	study, err := t.Record(ctx, study)
	if err != nil {
		return study, err
	}
	if _, err := t.queue.Submit(study); err != nil {
		if ferr := t.store.Finish(ctx, study.ID, StatusRejected, nil, err.Error()); ferr != nil {
			t.logger.Warn(ctx, "failed to mark study run rejected", map[string]interface{}{
				"error":    ferr.Error(),
				"study_id": study.ID.String(),
			})
		}
		return study, err
	}
	return study, nil
}

// Started marks the study as picked up by a worker.
func (t *Tracker) Started(ctx context.Context, study agent.Study) {
	if err := t.store.Start(ctx, study.ID); err != nil {
		t.logger.Warn(ctx, "failed to mark study run started", map[string]interface{}{
			"error":    err.Error(),
			"study_id": study.ID.String(),
		})
	}
}

// Finished stores the outcome of a study. A cancelled ctx marks the run cancelled.
func (t *Tracker) Finished(ctx context.Context, study agent.Study, results []agent.NavigationResult, runErr error) {
	status := StatusCompleted
	errMsg := ""
	switch {
	case ctx.Err() != nil:
		status = StatusCancelled
		errMsg = ctx.Err().Error()
	case runErr != nil:
		status = StatusFailed
		errMsg = runErr.Error()
	}

	writeCtx := context.WithoutCancel(ctx)
	if err := t.store.Finish(writeCtx, study.ID, status, Summarize(results), errMsg); err != nil {
		t.logger.Warn(writeCtx, "failed to mark study run finished", map[string]interface{}{
			"error":    err.Error(),
			"study_id": study.ID.String(),
			"status":   string(status),
		})
	}
}

// Summarize counts persona outcomes.
func Summarize(results []agent.NavigationResult) JSONMap {
	var completed, gaveUp, errored, steps int
	for _, r := range results {
		switch {
		case r.TaskCompleted:
			completed++
		case r.Error != "":
			errored++
		case r.GaveUp:
			gaveUp++
		}
		steps += r.TotalSteps
	}
	return JSONMap{
		"personas":    len(results),
		"completed":   completed,
		"gave_up":     gaveUp,
		"errored":     errored,
		"total_steps": steps,
	}
}

func definition(study agent.Study) JSONMap {
	return JSONMap{
		"task":     study.Task,
		"personas": study.Personas,
	}
}
