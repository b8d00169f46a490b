// Package pricing derives the payable amount of a reservation.
package pricing

import (
	"math"

	"github.com/clasedesurf/reservations/internal/apperr"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

type Breakdown struct {
	OriginalAmount decimal.Decimal `json:"originalAmount"`
	DiscountAmount decimal.Decimal `json:"discountAmount"`
	FinalAmount    decimal.Decimal `json:"finalAmount"`
}

// Discount is the part of a validated discount code that affects the price.
type Discount struct {
	Percentage decimal.Decimal
}

// FromFloat converts a client supplied amount, rejecting NaN, infinities and
// negative values.
func FromFloat(v float64) (decimal.Decimal, error) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return decimal.Zero, apperr.New(apperr.Validation, "amount must be a finite number")
	}
	if v < 0 {
		return decimal.Zero, apperr.New(apperr.Validation, "amount must not be negative")
	}
	return decimal.NewFromFloat(v), nil
}

// ApplyPercentage returns the discount on amount, rounded to cents, and what
// remains to pay.
func ApplyPercentage(amount, percentage decimal.Decimal) (discount, final decimal.Decimal, err error) {
	if amount.IsNegative() {
		return decimal.Zero, decimal.Zero, apperr.New(apperr.Validation, "amount must not be negative")
	}
	if percentage.IsNegative() || percentage.GreaterThan(hundred) {
		return decimal.Zero, decimal.Zero, apperr.New(apperr.Validation, "discount percentage must be between 0 and 100")
	}
	discount = amount.Mul(percentage).Div(hundred).Round(2)
	return discount, amount.Sub(discount), nil
}

// Compute prices a reservation. The discount only applies to the class
// portion (unitPrice * participantCount), never to add-ons.
func Compute(unitPrice decimal.Decimal, participantCount int, addonPrices []decimal.Decimal, discount *Discount) (Breakdown, error) {
	if unitPrice.IsNegative() {
		return Breakdown{}, apperr.New(apperr.Validation, "class price must not be negative")
	}
	if participantCount < 1 {
		return Breakdown{}, apperr.New(apperr.Validation, "at least one participant is required")
	}

	classPortion := unitPrice.Mul(decimal.NewFromInt(int64(participantCount)))

	addons := decimal.Zero
	for _, p := range addonPrices {
		if p.IsNegative() {
			return Breakdown{}, apperr.New(apperr.Validation, "add-on price must not be negative")
		}
		addons = addons.Add(p)
	}

	original := classPortion.Add(addons)
	discountAmount := decimal.Zero
	if discount != nil {
		d, _, err := ApplyPercentage(classPortion, discount.Percentage)
		if err != nil {
			return Breakdown{}, err
		}
		discountAmount = d
	}

	return Breakdown{
		OriginalAmount: original,
		DiscountAmount: discountAmount,
		FinalAmount:    original.Sub(discountAmount),
	}, nil
}
