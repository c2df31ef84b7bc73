package recorder

import (
	"context"

	"github.com/google/uuid"
)

// Store defines the interface for persona session persistence operations.
type Store interface {
	// CreateSession inserts a new persona session row.
	CreateSession(ctx context.Context, s *PersonaSession) error

	// UpdateSession saves all fields of an existing persona session row.
	UpdateSession(ctx context.Context, s *PersonaSession) error

	// GetSession retrieves a persona session by id.
	GetSession(ctx context.Context, id uuid.UUID) (*PersonaSession, error)

	// ListSessionsByStudy retrieves the sessions of a study, oldest first.
	ListSessionsByStudy(ctx context.Context, studyID uuid.UUID) ([]*PersonaSession, error)

	// SaveStep writes a step and its issues in one transaction.
	SaveStep(ctx context.Context, step *Step, issues []*Issue) error

	// ListSteps retrieves a session's steps ordered by step number.
	ListSteps(ctx context.Context, sessionID uuid.UUID) ([]*Step, error)

	// ListIssues retrieves a session's issues.
	ListIssues(ctx context.Context, sessionID uuid.UUID) ([]*Issue, error)
}
