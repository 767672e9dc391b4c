// Package testutil holds helpers shared by package tests.
package testutil

import (
	"fmt"
	"net/url"
	"testing"

	"github.com/huangang/codemender/internal/models"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewDB opens a named shared in-memory SQLite database, migrated, isolated by test name.
func NewDB(t testing.TB) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_busy_timeout=5000", url.PathEscape(t.Name()))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("test db handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := models.Migrate(db); err != nil {
		t.Fatalf("migrate test db: %v", err)
	}

	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

// CreateProject inserts a minimal project owned by userID.
func CreateProject(t testing.TB, db *gorm.DB, userID uint) *models.Project {
	t.Helper()
	p := &models.Project{
		Name:      "demo",
		Owner:     "acme",
		Repo:      "demo",
		URL:       "https://github.com/acme/demo",
		Branch:    "main",
		CreatedBy: userID,
	}
	if err := db.Create(p).Error; err != nil {
		t.Fatalf("create project: %v", err)
	}
	return p
}
