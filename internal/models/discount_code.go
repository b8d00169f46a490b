package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type DiscountCode struct {
	gorm.Model
	Code               string          `json:"code" gorm:"uniqueIndex;size:50"`
	Description        string          `json:"description,omitempty"`
	DiscountPercentage decimal.Decimal `json:"discountPercentage" gorm:"type:decimal(5,2)"`
	ValidFrom          time.Time       `json:"validFrom"`
	ValidTo            time.Time       `json:"validTo"`
	IsActive           bool            `json:"isActive"`
	MaxUses            *int            `json:"maxUses,omitempty"`
	UsedCount          int             `json:"usedCount"`
	SchoolID           *uint           `json:"schoolId,omitempty" gorm:"index"`
}

// Exhausted reports whether every allowed use has been redeemed.
func (d DiscountCode) Exhausted() bool {
	return d.MaxUses != nil && d.UsedCount >= *d.MaxUses
}
