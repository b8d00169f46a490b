package models

import (
	"gorm.io/gorm"
)

// ReservationHistory records every status change of a reservation, written in
// the same transaction as the change itself.
type ReservationHistory struct {
	gorm.Model
	ReservationID uint              `json:"reservationId" gorm:"index"`
	ActorID       uint              `json:"actorId"`
	ActorRole     string            `json:"actorRole"`
	FromStatus    ReservationStatus `json:"fromStatus" gorm:"type:varchar(16)"`
	ToStatus      ReservationStatus `json:"toStatus" gorm:"type:varchar(16)"`
}
