package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type PaymentStatus string

const (
	PaymentUnpaid   PaymentStatus = "UNPAID"
	PaymentPending  PaymentStatus = "PENDING"
	PaymentPaid     PaymentStatus = "PAID"
	PaymentRefunded PaymentStatus = "REFUNDED"
)

func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentUnpaid, PaymentPending, PaymentPaid, PaymentRefunded:
		return true
	}
	return false
}

// PaymentDetails is the voucher metadata staff and students may change.
// It never carries amounts.
type PaymentDetails struct {
	PaymentMethod string `json:"paymentMethod,omitempty"`
	TransactionID string `json:"transactionId,omitempty"`
	VoucherImage  string `json:"voucherImage,omitempty"`
	VoucherNotes  string `json:"voucherNotes,omitempty"`
}

type Payment struct {
	gorm.Model
	ReservationID  uint            `json:"reservationId" gorm:"uniqueIndex"`
	Amount         decimal.Decimal `json:"amount" gorm:"type:decimal(10,2)"`
	OriginalAmount decimal.Decimal `json:"originalAmount" gorm:"type:decimal(10,2)"`
	DiscountAmount decimal.Decimal `json:"discountAmount" gorm:"type:decimal(10,2)"`
	DiscountCodeID *uint           `json:"discountCodeId,omitempty" gorm:"index"`
	Status         PaymentStatus   `json:"status" gorm:"type:varchar(16);index"`
	PaidAt         *time.Time      `json:"paidAt,omitempty"`
	PaymentDetails `gorm:"embedded"`
}
