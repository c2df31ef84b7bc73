package agent

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/hairizuanbinnoorazman/persona-navigator/logger"
)

// ErrQueueFull is returned by Submit when every queue slot is taken.
var ErrQueueFull = errors.New("study queue is full")

// ErrWorkerPoolStopped is returned by Submit after the pool's context is done.
var ErrWorkerPoolStopped = errors.New("worker pool stopped")

// RecorderFactory creates the recorder for one study run.
type RecorderFactory func(studyID uuid.UUID) StudyRecorder

// StudyHandler receives the results of a finished study.
type StudyHandler func(ctx context.Context, study Study, results []NavigationResult, err error)

// WorkerPool runs submitted studies on a fixed number of goroutines. Browser capacity is
// still bounded by the session pool, so workers only bound how many studies are in flight.
type WorkerPool struct {
	Work chan Study
	// OnStart, when set, runs before a worker starts a study. Set it before Start.
	OnStart func(ctx context.Context, study Study)

	maxWorkers int
	runner     *Runner
	recorders  RecorderFactory
	onDone     StudyHandler
	logger     logger.Logger

	wg      sync.WaitGroup
	mu      sync.Mutex
	stopped bool
}

// NewWorkerPool creates a new worker pool with room for queueSize waiting studies.
func NewWorkerPool(maxWorkers, queueSize int, runner *Runner, recorders RecorderFactory, onDone StudyHandler, log logger.Logger) *WorkerPool {
	if maxWorkers < 1 {
		maxWorkers = 1
	}
	if queueSize < 1 {
		queueSize = maxWorkers
	}
	return &WorkerPool{
		Work:       make(chan Study, queueSize),
		maxWorkers: maxWorkers,
		runner:     runner,
		recorders:  recorders,
		onDone:     onDone,
		logger:     log,
	}
}

// Submit queues study without blocking. The study gets an id if it has none.
func (p *WorkerPool) Submit(study Study) (Study, error) {
	if err := study.Validate(); err != nil {
		return study, err
	}
	if study.ID == uuid.Nil {
		study.ID = uuid.New()
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		return study, ErrWorkerPoolStopped
	}
	select {
	case p.Work <- study:
		return study, nil
	default:
		return study, ErrQueueFull
	}
}

// Start spawns worker goroutines that run queued studies until ctx is done.
func (p *WorkerPool) Start(ctx context.Context) {
	p.logger.Info(ctx, "starting worker pool", map[string]interface{}{
		"max_workers": p.maxWorkers,
	})
	for i := 0; i < p.maxWorkers; i++ {
		p.wg.Add(1)
		go p.worker(ctx, i)
	}
	go func() {
		<-ctx.Done()
		p.mu.Lock()
		p.stopped = true
		p.mu.Unlock()
	}()
}

// Wait blocks until every worker has returned.
func (p *WorkerPool) Wait() {
	p.wg.Wait()
}

func (p *WorkerPool) worker(ctx context.Context, id int) {
	defer p.wg.Done()
	p.logger.Info(ctx, "worker started", map[string]interface{}{
		"worker_id": id,
	})
	for {
		select {
		case study := <-p.Work:
			p.logger.Info(ctx, "worker processing study", map[string]interface{}{
				"worker_id": id,
				"study_id":  study.ID.String(),
			})
			if p.OnStart != nil {
				p.OnStart(ctx, study)
			}
			results, err := p.runner.Run(ctx, study, p.recorders(study.ID))
			if err != nil {
				p.logger.Error(ctx, "study failed", map[string]interface{}{
					"worker_id": id,
					"study_id":  study.ID.String(),
					"error":     err.Error(),
				})
			}
			if p.onDone != nil {
				p.onDone(ctx, study, results, err)
			}
		case <-ctx.Done():
			p.logger.Info(ctx, "worker stopping", map[string]interface{}{
				"worker_id": id,
			})
			return
		}
	}
}
