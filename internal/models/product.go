package models

import (
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Product is an add-on sold by a school next to its classes (board rental, wetsuit, photos).
type Product struct {
	gorm.Model
	SchoolID uint            `json:"schoolId" gorm:"index"`
	Name     string          `json:"name"`
	Price    decimal.Decimal `json:"price" gorm:"type:decimal(10,2)"`
	IsActive bool            `json:"isActive"`
}
