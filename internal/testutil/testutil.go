// Package testutil builds in-memory databases and fixtures for package tests.
package testutil

import (
	"testing"
	"time"

	"github.com/clasedesurf/reservations/internal/database"
	"github.com/clasedesurf/reservations/internal/models"
	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewDB opens a migrated in-memory SQLite database. The pool holds a single
// connection so concurrent goroutines share one database and queue on it.
func NewDB(tb testing.TB) *gorm.DB {
	tb.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		tb.Fatalf("failed to connect database: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		tb.Fatalf("failed to get sql.DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	tb.Cleanup(func() { sqlDB.Close() })

	if err := database.Migrate(db); err != nil {
		tb.Fatalf("failed to migrate: %v", err)
	}
	return db
}

func CreateSchool(tb testing.TB, db *gorm.DB, ownerID uint) models.School {
	tb.Helper()
	school := models.School{Name: "Olas Norte", OwnerID: ownerID}
	if err := db.Create(&school).Error; err != nil {
		tb.Fatalf("failed to create school: %v", err)
	}
	return school
}

// CreateClass creates a one hour class starting tomorrow.
func CreateClass(tb testing.TB, db *gorm.DB, schoolID uint, capacity int, price string) models.Class {
	tb.Helper()
	class := models.Class{
		Title:           "Morning session",
		Date:            time.Now().Add(24 * time.Hour),
		DurationMinutes: 60,
		Capacity:        capacity,
		Price:           decimal.RequireFromString(price),
		Level:           models.LevelBeginner,
		SchoolID:        schoolID,
	}
	if err := db.Create(&class).Error; err != nil {
		tb.Fatalf("failed to create class: %v", err)
	}
	return class
}

func CreateProduct(tb testing.TB, db *gorm.DB, schoolID uint, name, price string, active bool) models.Product {
	tb.Helper()
	product := models.Product{SchoolID: schoolID, Name: name, Price: decimal.RequireFromString(price), IsActive: active}
	if err := db.Create(&product).Error; err != nil {
		tb.Fatalf("failed to create product: %v", err)
	}
	return product
}

// CreateCode creates an active code valid from yesterday until next month.
// maxUses < 1 means unlimited.
func CreateCode(tb testing.TB, db *gorm.DB, code string, percentage string, maxUses, usedCount int, schoolID *uint) models.DiscountCode {
	tb.Helper()
	dc := models.DiscountCode{
		Code:               code,
		DiscountPercentage: decimal.RequireFromString(percentage),
		ValidFrom:          time.Now().Add(-24 * time.Hour),
		ValidTo:            time.Now().Add(30 * 24 * time.Hour),
		IsActive:           true,
		UsedCount:          usedCount,
		SchoolID:           schoolID,
	}
	if maxUses > 0 {
		dc.MaxUses = &maxUses
	}
	if err := db.Create(&dc).Error; err != nil {
		tb.Fatalf("failed to create discount code: %v", err)
	}
	return dc
}

// Participants returns n valid participant records.
func Participants(n int) []models.Participant {
	out := make([]models.Participant, n)
	for i := range out {
		out[i] = models.Participant{
			Name:          "Surfer",
			Age:           25 + i,
			Height:        170,
			Weight:        70,
			CanSwim:       true,
			SwimmingLevel: models.SwimmingBasic,
		}
	}
	return out
}
