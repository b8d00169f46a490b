package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type ClassLevel string

const (
	LevelBeginner     ClassLevel = "BEGINNER"
	LevelIntermediate ClassLevel = "INTERMEDIATE"
	LevelAdvanced     ClassLevel = "ADVANCED"
)

type Class struct {
	gorm.Model
	Title           string          `json:"title"`
	Date            time.Time       `json:"date"`
	DurationMinutes int             `json:"durationMinutes"`
	Capacity        int             `json:"capacity" gorm:"check:capacity >= 1"`
	Price           decimal.Decimal `json:"price" gorm:"type:decimal(10,2)"`
	Level           ClassLevel      `json:"level" gorm:"type:varchar(16)"`
	SchoolID        uint            `json:"schoolId" gorm:"index"`
	School          School          `json:"-"`
}

// EndsAt is the moment after which a confirmed reservation counts as completed.
func (c Class) EndsAt() time.Time {
	return c.Date.Add(time.Duration(c.DurationMinutes) * time.Minute)
}
