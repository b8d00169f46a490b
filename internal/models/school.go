package models

import (
	"gorm.io/gorm"
)

// School is read-only here. OwnerID is the user acting as its SCHOOL_ADMIN.
type School struct {
	gorm.Model
	Name    string `json:"name"`
	OwnerID uint   `json:"ownerId" gorm:"index"`
}
