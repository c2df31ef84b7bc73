package testutil

import (
	"testing"

	"gorm.io/gorm"
)

// CreateFixtures inserts rows as given, so timestamps and statuses set by the test are kept.
func CreateFixtures(t *testing.T, db *gorm.DB, models ...interface{}) {
	t.Helper()
	for _, model := range models {
		if err := db.Create(model).Error; err != nil {
			t.Fatalf("failed to create %T fixture: %v", model, err)
		}
	}
}
