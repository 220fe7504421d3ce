package store

import (
	"context"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/lecturehall/classroom-oauth/internal/models"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("could not open test database: %v", err)
	}

	if err := db.AutoMigrate(
		&models.OAuthApplication{},
		&models.OAuthSecret{},
		&models.OAuthUserGrant{},
		&models.User{},
	); err != nil {
		t.Fatalf("could not migrate test database: %v", err)
	}

	return db
}

// fakeRevoker records which client ids had their pairs swept.
type fakeRevoker struct {
	revoked []string
}

func (f *fakeRevoker) RevokeAllPairs(_ context.Context, clientID string) error {
	f.revoked = append(f.revoked, clientID)
	return nil
}
