package studyrun

import (
	"context"

	"github.com/google/uuid"
)

type Store interface {
	Create(ctx context.Context, run *Run) error
	GetByID(ctx context.Context, id uuid.UUID) (*Run, error)
	List(ctx context.Context, status Status, limit, offset int) ([]*Run, error)
	Count(ctx context.Context, status Status) (int, error)
	Start(ctx context.Context, id uuid.UUID) error
	Finish(ctx context.Context, id uuid.UUID, status Status, summary JSONMap, errMsg string) error
	// CancelUnfinished cancels every queued or running run and returns how many there were.
	CancelUnfinished(ctx context.Context, reason string) (int, error)
}
