package studyrun

import (
	"testing"

	"github.com/hairizuanbinnoorazman/persona-navigator/logger"
	"github.com/hairizuanbinnoorazman/persona-navigator/testutil"
	"gorm.io/gorm"
)

// setupTestStore creates a test database and study run store for testing.
func setupTestStore(t *testing.T) (*gorm.DB, Store) {
	db := testutil.SetupTestDB(t, &Run{})

	log := logger.NewTestLogger()
	store := NewMySQLStore(db, log)

	return db, store
}
