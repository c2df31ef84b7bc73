package studyrun

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/hairizuanbinnoorazman/persona-navigator/logger"
	"gorm.io/gorm"
)

// MySQLStore implements the Store interface using GORM and MySQL.
type MySQLStore struct {
	db     *gorm.DB
	logger logger.Logger
}

// NewMySQLStore creates a new MySQL-backed study run store.
func NewMySQLStore(db *gorm.DB, log logger.Logger) *MySQLStore {
	return &MySQLStore{
		db:     db,
		logger: log,
	}
}

// Create inserts a new study run.
func (s *MySQLStore) Create(ctx context.Context, r *Run) error {
	if err := r.Validate(); err != nil {
		return err
	}

	if err := s.db.WithContext(ctx).Create(r).Error; err != nil {
		s.logger.Error(ctx, "failed to create study run", map[string]interface{}{
			"error":    err.Error(),
			"study_id": r.ID.String(),
		})
		return err
	}

	s.logger.Info(ctx, "study run created", map[string]interface{}{
		"study_id": r.ID.String(),
		"personas": r.Personas,
	})

	return nil
}

// GetByID retrieves a study run by its study id.
func (s *MySQLStore) GetByID(ctx context.Context, id uuid.UUID) (*Run, error) {
	var r Run
	err := s.db.WithContext(ctx).
		Where("id = ?", id).
		First(&r).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRunNotFound
		}
		s.logger.Error(ctx, "failed to get study run by ID", map[string]interface{}{
			"error":    err.Error(),
			"study_id": id.String(),
		})
		return nil, err
	}

	return &r, nil
}

// List retrieves a page of study runs, newest first. An empty status lists every run.
func (s *MySQLStore) List(ctx context.Context, status Status, limit, offset int) ([]*Run, error) {
	var runs []*Run
	query := s.db.WithContext(ctx)
	if status != "" {
		query = query.Where("status = ?", status)
	}
	err := query.
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&runs).Error

	if err != nil {
		s.logger.Error(ctx, "failed to list study runs", map[string]interface{}{
			"error":  err.Error(),
			"status": string(status),
			"limit":  limit,
			"offset": offset,
		})
		return nil, err
	}

	return runs, nil
}

// Count returns the number of study runs with status, or of all runs for an empty status.
func (s *MySQLStore) Count(ctx context.Context, status Status) (int, error) {
	var count int64
	query := s.db.WithContext(ctx).Model(&Run{})
	if status != "" {
		query = query.Where("status = ?", status)
	}
	if err := query.Count(&count).Error; err != nil {
		s.logger.Error(ctx, "failed to count study runs", map[string]interface{}{
			"error":  err.Error(),
			"status": string(status),
		})
		return 0, err
	}

	return int(count), nil
}

// Start marks a study run as running.
func (s *MySQLStore) Start(ctx context.Context, id uuid.UUID) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var r Run
		if err := tx.Where("id = ?", id).First(&r).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrRunNotFound
			}
			return err
		}

		if err := r.Start(); err != nil {
			return err
		}

		return tx.Save(&r).Error
	})

	if err != nil {
		if !errors.Is(err, ErrRunNotFound) && !errors.Is(err, ErrRunAlreadyStarted) {
			s.logger.Error(ctx, "failed to start study run", map[string]interface{}{
				"error":    err.Error(),
				"study_id": id.String(),
			})
		}
		return err
	}

	s.logger.Info(ctx, "study run started", map[string]interface{}{
		"study_id": id.String(),
	})

	return nil
}

// Finish records the terminal status and summary of a study run.
func (s *MySQLStore) Finish(ctx context.Context, id uuid.UUID, status Status, summary JSONMap, errMsg string) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var r Run
		if err := tx.Where("id = ?", id).First(&r).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrRunNotFound
			}
			return err
		}

		if err := r.Finish(status, summary, errMsg); err != nil {
			return err
		}

		return tx.Save(&r).Error
	})

	if err != nil {
		if !errors.Is(err, ErrRunNotFound) && !errors.Is(err, ErrRunFinished) {
			s.logger.Error(ctx, "failed to finish study run", map[string]interface{}{
				"error":    err.Error(),
				"study_id": id.String(),
				"status":   string(status),
			})
		}
		return err
	}

	s.logger.Info(ctx, "study run finished", map[string]interface{}{
		"study_id": id.String(),
		"status":   string(status),
	})

	return nil
}

// CancelUnfinished cancels runs that a previous process queued or started but never finished.
func (s *MySQLStore) CancelUnfinished(ctx context.Context, reason string) (int, error) {
	result := s.db.WithContext(ctx).
		Model(&Run{}).
		Where("status IN ?", []Status{StatusQueued, StatusRunning}).
		Updates(map[string]interface{}{
			"status":   StatusCancelled,
			"error":    reason,
			"end_time": time.Now(),
		})
	if result.Error != nil {
		s.logger.Error(ctx, "failed to cancel unfinished study runs", map[string]interface{}{
			"error": result.Error.Error(),
		})
		return 0, result.Error
	}
	return int(result.RowsAffected), nil
}
