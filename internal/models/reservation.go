package models

import (
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type ReservationStatus string

const (
	ReservationPending   ReservationStatus = "PENDING"
	ReservationConfirmed ReservationStatus = "CONFIRMED"
	ReservationCanceled  ReservationStatus = "CANCELED"
	ReservationCompleted ReservationStatus = "COMPLETED"
)

// ActiveReservationStatuses are the statuses that hold seats in a class.
var ActiveReservationStatuses = []ReservationStatus{
	ReservationPending,
	ReservationConfirmed,
	ReservationCompleted,
}

func (s ReservationStatus) Valid() bool {
	switch s {
	case ReservationPending, ReservationConfirmed, ReservationCanceled, ReservationCompleted:
		return true
	}
	return false
}

// Terminal reports whether no transition may leave s.
func (s ReservationStatus) Terminal() bool {
	return s == ReservationCanceled || s == ReservationCompleted
}

type SwimmingLevel string

const (
	SwimmingNone         SwimmingLevel = "NONE"
	SwimmingBasic        SwimmingLevel = "BASIC"
	SwimmingIntermediate SwimmingLevel = "INTERMEDIATE"
	SwimmingAdvanced     SwimmingLevel = "ADVANCED"
)

// Participant is one person attending under a reservation. Height is in
// centimetres and weight in kilograms; zero means not provided.
type Participant struct {
	Name            string        `json:"name" validate:"required,min=2,max=100"`
	Age             int           `json:"age" validate:"gte=5,lte=100"`
	Height          int           `json:"height,omitempty" validate:"omitempty,gte=100,lte=250"`
	Weight          int           `json:"weight,omitempty" validate:"omitempty,gte=20,lte=200"`
	CanSwim         bool          `json:"canSwim"`
	SwimmingLevel   SwimmingLevel `json:"swimmingLevel" validate:"required,oneof=NONE BASIC INTERMEDIATE ADVANCED"`
	HasSurfedBefore bool          `json:"hasSurfedBefore"`
	Injuries        string        `json:"injuries,omitempty" validate:"max=1000"`
	Comments        string        `json:"comments,omitempty" validate:"max=500"`
}

type Reservation struct {
	gorm.Model
	ClassID          uint                             `json:"classId" gorm:"index"`
	Class            Class                            `json:"-"`
	UserID           uint                             `json:"userId" gorm:"index"`
	Status           ReservationStatus                `json:"status" gorm:"type:varchar(16);index"`
	ParticipantCount int                              `json:"participantCount"`
	Participants     datatypes.JSONSlice[Participant] `json:"participants"`
	SpecialRequest   string                           `json:"specialRequest,omitempty"`
	Addons           []ReservationAddon               `json:"addons,omitempty"`
	Payment          *Payment                         `json:"payment,omitempty"`
}

// ReservationAddon snapshots the price of a product at the time it was booked.
type ReservationAddon struct {
	gorm.Model
	ReservationID uint            `json:"reservationId" gorm:"index"`
	ProductID     uint            `json:"productId"`
	Name          string          `json:"name"`
	Price         decimal.Decimal `json:"price" gorm:"type:decimal(10,2)"`
}
