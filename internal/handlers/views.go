package handlers

import (
	"time"

	"github.com/clasedesurf/reservations/internal/models"
)

// Money leaves the service as fixed two-decimal strings so clients never
// see float rounding.

type AddonView struct {
	ProductID uint   `json:"productId"`
	Name      string `json:"name"`
	Price     string `json:"price" example:"15.00"`
}

type PaymentView struct {
	ID             uint                 `json:"id"`
	ReservationID  uint                 `json:"reservationId"`
	Status         models.PaymentStatus `json:"status"`
	Amount         string               `json:"amount" example:"160.00"`
	OriginalAmount string               `json:"originalAmount" example:"200.00"`
	DiscountAmount string               `json:"discountAmount" example:"40.00"`
	DiscountCodeID *uint                `json:"discountCodeId,omitempty"`
	PaidAt         *time.Time           `json:"paidAt,omitempty"`
	PaymentMethod  string               `json:"paymentMethod,omitempty"`
	TransactionID  string               `json:"transactionId,omitempty"`
	VoucherImage   string               `json:"voucherImage,omitempty"`
	VoucherNotes   string               `json:"voucherNotes,omitempty"`
	CreatedAt      time.Time            `json:"createdAt"`
	UpdatedAt      time.Time            `json:"updatedAt"`
}

type ReservationView struct {
	ID               uint                     `json:"id"`
	ClassID          uint                     `json:"classId"`
	UserID           uint                     `json:"userId"`
	Status           models.ReservationStatus `json:"status"`
	ParticipantCount int                      `json:"participantCount"`
	Participants     []models.Participant     `json:"participants"`
	SpecialRequest   string                   `json:"specialRequest,omitempty"`
	Addons           []AddonView              `json:"addons,omitempty"`
	Payment          *PaymentView             `json:"payment,omitempty"`
	CreatedAt        time.Time                `json:"createdAt"`
	UpdatedAt        time.Time                `json:"updatedAt"`
}

type DiscountCodeView struct {
	ID                 uint      `json:"id"`
	Code               string    `json:"code"`
	Description        string    `json:"description,omitempty"`
	DiscountPercentage string    `json:"discountPercentage" example:"20.00"`
	ValidFrom          time.Time `json:"validFrom"`
	ValidTo            time.Time `json:"validTo"`
	IsActive           bool      `json:"isActive"`
	MaxUses            *int      `json:"maxUses,omitempty"`
	UsedCount          int       `json:"usedCount"`
	SchoolID           *uint     `json:"schoolId,omitempty"`
}

func paymentView(p *models.Payment) *PaymentView {
	if p == nil {
		return nil
	}
	return &PaymentView{
		ID:             p.ID,
		ReservationID:  p.ReservationID,
		Status:         p.Status,
		Amount:         p.Amount.StringFixed(2),
		OriginalAmount: p.OriginalAmount.StringFixed(2),
		DiscountAmount: p.DiscountAmount.StringFixed(2),
		DiscountCodeID: p.DiscountCodeID,
		PaidAt:         p.PaidAt,
		PaymentMethod:  p.PaymentMethod,
		TransactionID:  p.TransactionID,
		VoucherImage:   p.VoucherImage,
		VoucherNotes:   p.VoucherNotes,
		CreatedAt:      p.CreatedAt,
		UpdatedAt:      p.UpdatedAt,
	}
}

func reservationView(r *models.Reservation) ReservationView {
	v := ReservationView{
		ID:               r.ID,
		ClassID:          r.ClassID,
		UserID:           r.UserID,
		Status:           r.Status,
		ParticipantCount: r.ParticipantCount,
		Participants:     []models.Participant(r.Participants),
		SpecialRequest:   r.SpecialRequest,
		Payment:          paymentView(r.Payment),
		CreatedAt:        r.CreatedAt,
		UpdatedAt:        r.UpdatedAt,
	}
	for _, a := range r.Addons {
		v.Addons = append(v.Addons, AddonView{ProductID: a.ProductID, Name: a.Name, Price: a.Price.StringFixed(2)})
	}
	return v
}

func discountCodeView(dc *models.DiscountCode) DiscountCodeView {
	return DiscountCodeView{
		ID:                 dc.ID,
		Code:               dc.Code,
		Description:        dc.Description,
		DiscountPercentage: dc.DiscountPercentage.StringFixed(2),
		ValidFrom:          dc.ValidFrom,
		ValidTo:            dc.ValidTo,
		IsActive:           dc.IsActive,
		MaxUses:            dc.MaxUses,
		UsedCount:          dc.UsedCount,
		SchoolID:           dc.SchoolID,
	}
}
