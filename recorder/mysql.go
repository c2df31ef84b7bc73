package recorder

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/hairizuanbinnoorazman/persona-navigator/logger"
	"gorm.io/gorm"
)

// MySQLStore implements Store using GORM and MySQL.
type MySQLStore struct {
	db     *gorm.DB
	logger logger.Logger
}

// NewMySQLStore creates a new MySQL-backed recorder store.
func NewMySQLStore(db *gorm.DB, log logger.Logger) *MySQLStore {
	return &MySQLStore{
		db:     db,
		logger: log,
	}
}

// CreateSession inserts a new persona session row.
func (s *MySQLStore) CreateSession(ctx context.Context, ps *PersonaSession) error {
	if err := s.db.WithContext(ctx).Create(ps).Error; err != nil {
		s.logger.Error(ctx, "failed to create persona session", map[string]interface{}{
			"error":    err.Error(),
			"study_id": ps.StudyID.String(),
		})
		return err
	}
	return nil
}

// UpdateSession saves all fields of an existing persona session row.
func (s *MySQLStore) UpdateSession(ctx context.Context, ps *PersonaSession) error {
	result := s.db.WithContext(ctx).Model(ps).Select("*").Omit("created_at").Updates(ps)
	if result.Error != nil {
		s.logger.Error(ctx, "failed to update persona session", map[string]interface{}{
			"error":      result.Error.Error(),
			"session_id": ps.ID.String(),
		})
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// GetSession retrieves a persona session by id.
func (s *MySQLStore) GetSession(ctx context.Context, id uuid.UUID) (*PersonaSession, error) {
	var ps PersonaSession
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&ps).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSessionNotFound
		}
		s.logger.Error(ctx, "failed to get persona session", map[string]interface{}{
			"error":      err.Error(),
			"session_id": id.String(),
		})
		return nil, err
	}
	return &ps, nil
}

// ListSessionsByStudy retrieves the sessions of a study, oldest first.
func (s *MySQLStore) ListSessionsByStudy(ctx context.Context, studyID uuid.UUID) ([]*PersonaSession, error) {
	var sessions []*PersonaSession
	err := s.db.WithContext(ctx).
		Where("study_id = ?", studyID).
		Order("created_at ASC").
		Find(&sessions).Error

	if err != nil {
		s.logger.Error(ctx, "failed to list persona sessions", map[string]interface{}{
			"error":    err.Error(),
			"study_id": studyID.String(),
		})
		return nil, err
	}
	return sessions, nil
}

// SaveStep writes a step and its issues in one transaction.
func (s *MySQLStore) SaveStep(ctx context.Context, step *Step, issues []*Issue) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(step).Error; err != nil {
			return err
		}
		if len(issues) == 0 {
			return nil
		}
		for _, issue := range issues {
			issue.StepID = step.ID
			issue.SessionID = step.SessionID
		}
		return tx.Create(&issues).Error
	})
	if err != nil {
		s.logger.Error(ctx, "failed to save step", map[string]interface{}{
			"error":       err.Error(),
			"session_id":  step.SessionID.String(),
			"step_number": step.StepNumber,
		})
		return err
	}
	return nil
}

// ListSteps retrieves a session's steps ordered by step number.
func (s *MySQLStore) ListSteps(ctx context.Context, sessionID uuid.UUID) ([]*Step, error) {
	var steps []*Step
	err := s.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("step_number ASC").
		Find(&steps).Error

	if err != nil {
		s.logger.Error(ctx, "failed to list steps", map[string]interface{}{
			"error":      err.Error(),
			"session_id": sessionID.String(),
		})
		return nil, err
	}
	return steps, nil
}

// ListIssues retrieves a session's issues.
func (s *MySQLStore) ListIssues(ctx context.Context, sessionID uuid.UUID) ([]*Issue, error) {
	var issues []*Issue
	err := s.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("created_at ASC").
		Find(&issues).Error

	if err != nil {
		s.logger.Error(ctx, "failed to list issues", map[string]interface{}{
			"error":      err.Error(),
			"session_id": sessionID.String(),
		})
		return nil, err
	}
	return issues, nil
}
