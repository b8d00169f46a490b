// Package discount validates promotional codes and redeems them.
//
// Validation has no side effects and may be called as often as a client
// likes. Redemption is a single guarded UPDATE that increments used_count only
// while uses remain, so concurrent redeemers can never push a code past its
// limit: the losers see zero affected rows and get DiscountExhausted.
package discount

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/clasedesurf/reservations/internal/apperr"
	"github.com/clasedesurf/reservations/internal/metrics"
	"github.com/clasedesurf/reservations/internal/models"
	"github.com/clasedesurf/reservations/internal/pricing"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type Reason string

const (
	ReasonNotFound      Reason = "NOT_FOUND"
	ReasonInactive      Reason = "INACTIVE"
	ReasonNotYetValid   Reason = "NOT_YET_VALID"
	ReasonExpired       Reason = "EXPIRED"
	ReasonExhausted     Reason = "EXHAUSTED"
	ReasonWrongSchool   Reason = "WRONG_SCHOOL"
	ReasonClassNotFound Reason = "CLASS_NOT_FOUND"
)

var reasonMessages = map[Reason]string{
	ReasonNotFound:      "Discount code not found",
	ReasonInactive:      "Discount code is not active",
	ReasonNotYetValid:   "Discount code is not yet valid",
	ReasonExpired:       "Discount code has expired",
	ReasonExhausted:     "Discount code has reached its usage limit",
	ReasonWrongSchool:   "Discount code is not valid for this school",
	ReasonClassNotFound: "Class not found",
}

type Result struct {
	Valid          bool
	DiscountCodeID uint
	Code           string
	Percentage     decimal.Decimal
	DiscountAmount decimal.Decimal
	FinalAmount    decimal.Decimal
	Reason         Reason
	Message        string
}

// Err turns an invalid result into DiscountExhausted or DiscountInvalid.
func (r Result) Err() error {
	if r.Valid {
		return nil
	}
	if r.Reason == ReasonExhausted {
		return apperr.New(apperr.DiscountExhausted, r.Message)
	}
	return apperr.New(apperr.DiscountInvalid, r.Message)
}

func invalid(reason Reason, amount decimal.Decimal) Result {
	return Result{
		Reason:         reason,
		Message:        reasonMessages[reason],
		DiscountAmount: decimal.Zero,
		FinalAmount:    amount,
	}
}

type Option func(*Service)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

type Service struct {
	db  *gorm.DB
	now func() time.Time
}

func NewService(db *gorm.DB, opts ...Option) *Service {
	s := &Service{db: db, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Normalize returns the canonical spelling of a code. Codes are stored
// upper case, which makes lookups case-insensitive.
func Normalize(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Validate previews code against amount for classID. A zero classID skips the
// school check.
func (s *Service) Validate(ctx context.Context, code string, amount decimal.Decimal, classID uint) (Result, error) {
	var schoolID *uint
	if classID != 0 {
		var class models.Class
		if err := s.db.WithContext(ctx).Select("id", "school_id").First(&class, classID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return invalid(ReasonClassNotFound, amount), nil
			}
			return Result{}, fmt.Errorf("load class: %w", err)
		}
		schoolID = &class.SchoolID
	}
	return s.Check(ctx, s.db, code, amount, schoolID)
}

// Check evaluates code on db, which may be an open transaction. An invalid
// code is reported through Result, not as an error.
func (s *Service) Check(ctx context.Context, db *gorm.DB, code string, amount decimal.Decimal, schoolID *uint) (Result, error) {
	if amount.IsNegative() {
		return Result{}, apperr.New(apperr.Validation, "amount must not be negative")
	}

	normalized := Normalize(code)
	if normalized == "" {
		return invalid(ReasonNotFound, amount), nil
	}

	var dc models.DiscountCode
	if err := db.WithContext(ctx).Where("code = ?", normalized).First(&dc).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return invalid(ReasonNotFound, amount), nil
		}
		return Result{}, fmt.Errorf("load discount code: %w", err)
	}

	now := s.now()
	switch {
	case !dc.IsActive:
		return invalid(ReasonInactive, amount), nil
	case now.Before(dc.ValidFrom):
		return invalid(ReasonNotYetValid, amount), nil
	case now.After(dc.ValidTo):
		return invalid(ReasonExpired, amount), nil
	case dc.SchoolID != nil && schoolID != nil && *dc.SchoolID != *schoolID:
		return invalid(ReasonWrongSchool, amount), nil
	case dc.Exhausted():
		return invalid(ReasonExhausted, amount), nil
	}

	discountAmount, final, err := pricing.ApplyPercentage(amount, dc.DiscountPercentage)
	if err != nil {
		return Result{}, err
	}

	return Result{
		Valid:          true,
		DiscountCodeID: dc.ID,
		Code:           dc.Code,
		Percentage:     dc.DiscountPercentage,
		DiscountAmount: discountAmount,
		FinalAmount:    final,
		Message:        fmt.Sprintf("%s%% discount applied", dc.DiscountPercentage.String()),
	}, nil
}

// Redeem consumes one use of the code. It must run in the same transaction
// that persists the reservation paying with it.
func (s *Service) Redeem(ctx context.Context, tx *gorm.DB, discountCodeID uint) error {
	res := tx.WithContext(ctx).
		Model(&models.DiscountCode{}).
		Where("id = ? AND (max_uses IS NULL OR used_count < max_uses)", discountCodeID).
		UpdateColumn("used_count", gorm.Expr("used_count + 1"))
	if res.Error != nil {
		metrics.RecordRedemption("error")
		return fmt.Errorf("redeem discount code %d: %w", discountCodeID, res.Error)
	}
	if res.RowsAffected == 0 {
		metrics.RecordRedemption("exhausted")
		return apperr.New(apperr.DiscountExhausted, "Discount code just ran out, try again without it")
	}
	metrics.RecordRedemption("redeemed")
	return nil
}
